// Package project binds a build file to output directories and turns its
// steps into a graph the build orchestrator can run.
package project

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/systemstart/stepwise/pkg/api"
	"github.com/systemstart/stepwise/pkg/fingerprint"
	"github.com/systemstart/stepwise/pkg/graph"
	"github.com/systemstart/stepwise/pkg/steps"
)

// Target is a build file bound to one output directory.
type Target struct {
	Name      string
	OutputDir string
	BuildFile *api.BuildFile
	// Context is the interpolated template data of every step.
	Context map[string]any
	// Excludes covers, relative to the source directory, everything any
	// target of the build file writes there.
	Excludes []string
}

// NewTargets resolves the targets of bf. Template data layers the global
// context, the build file context and the target context, in that order.
func NewTargets(bf *api.BuildFile, globalContext map[string]any, outputOverride string) ([]Target, error) {
	resolved := bf.ResolvedTargets(outputOverride)
	excludes, err := writtenPaths(bf, resolved)
	if err != nil {
		return nil, err
	}
	targets := make([]Target, 0, len(resolved))

	for _, rt := range resolved {
		ctx := MergeContext(globalContext, bf.Context, rt.Context)
		ctx["target"] = rt.Name
		ctx["outputDir"] = rt.Output
		ctx["sourceDir"] = bf.Dir
		if err := InterpolateContext(ctx); err != nil {
			return nil, fmt.Errorf("target %q: interpolating context: %w", rt.Name, err)
		}

		targets = append(targets, Target{
			Name:      rt.Name,
			OutputDir: rt.Output,
			BuildFile: bf,
			Context:   ctx,
			Excludes:  excludes,
		})
	}
	return targets, nil
}

// writtenPaths returns glob patterns, relative to the source directory, of
// everything the targets write below it. An output directory inside the
// source directory is covered as a whole. When the output directory is the
// source directory itself, the declared outputs of its steps are covered and
// steps that would write over their own sources are rejected.
func writtenPaths(bf *api.BuildFile, resolved []api.TargetConfig) ([]string, error) {
	var patterns []string
	for _, rt := range resolved {
		rel, ok := steps.RelativeDir(bf.Dir, rt.Output)
		if !ok {
			continue
		}
		if rel != "." {
			patterns = append(patterns, path.Join(rel, "**"))
			continue
		}

		for _, cfg := range bf.Steps {
			var written string
			switch {
			case cfg.Generate != nil:
				written = filepath.ToSlash(filepath.Clean(cfg.Generate.Output))
			case cfg.Copy != nil && cfg.Copy.To != "":
				written = path.Join(filepath.ToSlash(filepath.Clean(cfg.Copy.To)), "**")
			case cfg.Template == nil && cfg.Copy == nil:
				continue
			}
			if written == "" || written == "**" {
				return nil, fmt.Errorf("target %q: step %q would write over its own source files", rt.Name, cfg.Name)
			}
			if written != ".." && !strings.HasPrefix(written, "../") {
				patterns = append(patterns, written)
			}
		}
	}
	slices.Sort(patterns)
	return slices.Compact(patterns), nil
}

// Graph registers one graph step per build file step, in file order.
func (t Target) Graph() (*graph.Graph, error) {
	g := graph.New()
	for _, cfg := range t.BuildFile.Steps {
		step, err := steps.NewStep(cfg)
		if err != nil {
			return nil, fmt.Errorf("creating step %q: %w", cfg.Name, err)
		}

		sc := steps.StepContext{
			SourceDir:    t.BuildFile.Dir,
			OutputDir:    t.OutputDir,
			TemplateData: t.Context,
			Env:          cfg.Env,
			Excludes:     t.Excludes,
		}
		err = g.Register(graph.Step{
			ID:          cfg.Name,
			DependsOn:   cfg.DependsOn,
			Fingerprint: t.fingerprint(cfg, sc),
			Action: func(ctx context.Context) error {
				return step.Run(ctx, sc)
			},
		})
		if err != nil {
			return nil, fmt.Errorf("registering step %q: %w", cfg.Name, err)
		}
	}
	return g, nil
}

// fingerprint covers the step configuration, the template data, the step
// environment and every source file the step reads. Files below the output
// directory never count as inputs.
func (t Target) fingerprint(cfg api.StepConfig, sc steps.StepContext) graph.FingerprintFunc {
	files := cfg.SourceFiles()
	if len(files.Include) == 0 && (cfg.Template != nil || cfg.Copy != nil) {
		files.Include = []string{api.DefaultFileInclude}
	}
	include := append(slices.Clone(cfg.Inputs), files.Include...)
	exclude := append(slices.Clone(files.Exclude), sc.OutputExcludes()...)

	return func() (string, error) {
		return fingerprint.NewDigest().
			Value("config", cfg).
			Value("context", t.Context).
			Env(cfg.Env).
			Files(os.DirFS(sc.SourceDir), include, exclude).
			Sum()
	}
}
