package project

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/systemstart/stepwise/pkg/build"
)

// Options configure how targets are built.
type Options struct {
	Workers  int
	Reporter build.Reporter
	Logger   *slog.Logger
}

// Build carries out d for each target in order and returns one result per
// target that was attempted. A failed target does not stop the others; an
// interrupt does.
func Build(ctx context.Context, targets []Target, d build.Directive, opts Options) ([]*build.BuildResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var (
		results []*build.BuildResult
		failed  []string
	)
	for _, t := range targets {
		if ctx.Err() != nil {
			logger.Warn("interrupted, skipping remaining targets", "target", t.Name)
			break
		}

		log := logger.With("target", t.Name)
		log.Info("building target", "output", t.OutputDir, "directive", d.String())

		res, err := buildTarget(ctx, t, d, opts, log)
		if err != nil {
			log.Error("target failed", "error", err)
			failed = append(failed, t.Name)
			continue
		}
		results = append(results, res)
		if !res.Success() {
			failed = append(failed, t.Name)
		}
	}

	if len(failed) > 0 {
		return results, fmt.Errorf("%d target(s) failed: %v", len(failed), failed)
	}
	if err := ctx.Err(); err != nil {
		return results, fmt.Errorf("%w: %w", build.ErrInterrupted, err)
	}
	return results, nil
}

func buildTarget(ctx context.Context, t Target, d build.Directive, opts Options, log *slog.Logger) (*build.BuildResult, error) {
	g, err := t.Graph()
	if err != nil {
		return nil, err
	}

	o, err := build.New(build.Config{
		OutputDir: t.OutputDir,
		Graph:     g,
		Reporter:  opts.Reporter,
		Workers:   opts.Workers,
		Logger:    log,
	})
	if err != nil {
		return nil, fmt.Errorf("creating orchestrator: %w", err)
	}
	return o.Execute(ctx, d), nil
}
