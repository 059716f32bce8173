package steps

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/systemstart/stepwise/pkg/api"
)

// waitDelay bounds how long a killed command may keep its output pipes open.
const waitDelay = 5 * time.Second

type commandStep struct {
	name string
	cfg  *api.CommandConfig
}

// NewCommandStep creates a command step.
func NewCommandStep(name string, cfg *api.CommandConfig) Step {
	return &commandStep{name: name, cfg: cfg}
}

func (s *commandStep) Name() string { return s.name }

func (s *commandStep) Run(ctx context.Context, sc StepContext) error {
	program := s.cfg.Run[0]
	if _, err := exec.LookPath(program); err != nil {
		return fmt.Errorf("%s binary not found in PATH: %w", program, err)
	}

	dir := s.workDir(sc)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating working directory: %w", err)
	}

	slog.Info("running command", "step", s.name, "command", program, "dir", dir)

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, program, s.cfg.Run[1:]...)
	cmd.Dir = dir
	cmd.Env = commandEnv(os.Environ(), sc.Env)
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if s.cfg.Timeout > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s timed out after %s: %w", program, s.cfg.Timeout, ctx.Err())
		}
		return fmt.Errorf("%s failed: %w\nstderr: %s", program, err, strings.TrimSpace(stderr.String()))
	}

	if stdout.Len() > 0 {
		slog.Debug("command output", "step", s.name, "stdout", stdout.String())
	}
	return nil
}

// workDir resolves the configured directory against the output directory,
// or against the source directory when it starts with SourceDirKeyword.
func (s *commandStep) workDir(sc StepContext) string {
	dir := s.cfg.Dir
	base := sc.OutputDir
	if rest, ok := strings.CutPrefix(dir, api.SourceDirKeyword); ok {
		base = sc.SourceDir
		dir = strings.TrimLeft(rest, `/\`)
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(base, dir)
}

// commandEnv appends extra to base in sorted key order. Later entries win.
func commandEnv(base []string, extra map[string]string) []string {
	env := slices.Clone(base)
	for _, k := range slices.Sorted(maps.Keys(extra)) {
		env = append(env, k+"="+extra[k])
	}
	return env
}
