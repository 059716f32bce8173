package steps

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/systemstart/stepwise/pkg/api"
)

type generateStep struct {
	name string
	cfg  *api.GenerateConfig
}

// NewGenerateStep creates a generate step.
func NewGenerateStep(name string, cfg *api.GenerateConfig) Step {
	return &generateStep{name: name, cfg: cfg}
}

func (s *generateStep) Name() string { return s.name }

func (s *generateStep) Run(_ context.Context, sc StepContext) error {
	tmpl, err := template.New(s.name).Funcs(sprig.FuncMap()).Parse(s.cfg.Template)
	if err != nil {
		return fmt.Errorf("parsing template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, sc.TemplateData); err != nil {
		return fmt.Errorf("executing template: %w", err)
	}

	if err := writeOutput(filepath.Join(sc.OutputDir, s.cfg.Output), buf.Bytes(), 0o600); err != nil {
		return err
	}

	slog.Info("generate step wrote file", "step", s.name, "output", s.cfg.Output)
	return nil
}
