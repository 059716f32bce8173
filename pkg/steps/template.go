package steps

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/systemstart/stepwise/pkg/api"
)

type templateStep struct {
	name string
	cfg  *api.TemplateConfig
}

// NewTemplateStep creates a template step.
func NewTemplateStep(name string, cfg *api.TemplateConfig) Step {
	return &templateStep{name: name, cfg: cfg}
}

func (s *templateStep) Name() string { return s.name }

func (s *templateStep) Run(ctx context.Context, sc StepContext) error {
	files, err := selectFiles(sc, s.cfg.Files)
	if err != nil {
		return fmt.Errorf("filtering files: %w", err)
	}

	slog.Info("template step processing files", "step", s.name, "count", len(files))

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := renderFile(sc, file, s.cfg.Strip); err != nil {
			return fmt.Errorf("processing %s: %w", file, err)
		}
	}

	return nil
}

func renderFile(sc StepContext, filename, strip string) error {
	srcPath := filepath.Join(sc.SourceDir, filename)

	content, err := os.ReadFile(srcPath)
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}
	info, err := os.Stat(srcPath)
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}

	tmpl, err := template.New(filepath.Base(filename)).Funcs(sprig.FuncMap()).Parse(string(content))
	if err != nil {
		return fmt.Errorf("parsing template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, sc.TemplateData); err != nil {
		return fmt.Errorf("executing template: %w", err)
	}

	target := filename
	if strip != "" {
		if trimmed := strings.TrimSuffix(target, strip); trimmed != "" {
			target = trimmed
		}
	}
	if err := writeOutput(filepath.Join(sc.OutputDir, target), buf.Bytes(), info.Mode().Perm()); err != nil {
		return err
	}

	slog.Debug("template rendered", "file", filename, "output", target)
	return nil
}
