package steps

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/systemstart/stepwise/pkg/api"
)

type copyStep struct {
	name string
	cfg  *api.CopyConfig
}

// NewCopyStep creates a copy step.
func NewCopyStep(name string, cfg *api.CopyConfig) Step {
	return &copyStep{name: name, cfg: cfg}
}

func (s *copyStep) Name() string { return s.name }

func (s *copyStep) Run(ctx context.Context, sc StepContext) error {
	files, err := selectFiles(sc, s.cfg.Files)
	if err != nil {
		return fmt.Errorf("filtering files: %w", err)
	}

	dst := filepath.Join(sc.OutputDir, s.cfg.To)
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := copyFile(filepath.Join(sc.SourceDir, rel), filepath.Join(dst, rel)); err != nil {
			return err
		}
	}

	slog.Info("copy step copied files", "step", s.name, "count", len(files), "to", dst)
	return nil
}

func copyFile(srcPath, target string) error {
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", srcPath, err)
	}

	info, err := os.Stat(srcPath)
	if err != nil {
		return fmt.Errorf("stat %s: %w", srcPath, err)
	}

	if err := writeOutput(target, data, info.Mode().Perm()); err != nil {
		return fmt.Errorf("copying %s: %w", srcPath, err)
	}
	return nil
}
