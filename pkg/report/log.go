// Package report holds Reporter implementations for pkg/build.
package report

import (
	"log/slog"
	"time"

	"github.com/systemstart/stepwise/pkg/build"
)

// LogReporter writes every event as a structured log record.
type LogReporter struct {
	Logger *slog.Logger
}

// NewLogReporter returns a LogReporter on logger, or on slog.Default() when
// logger is nil.
func NewLogReporter(logger *slog.Logger) *LogReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogReporter{Logger: logger}
}

func (r *LogReporter) StepStarted(id string) {
	r.Logger.Info("step started", "step", id)
}

func (r *LogReporter) StepSkipped(id string) {
	r.Logger.Debug("step up to date", "step", id)
}

func (r *LogReporter) StepSucceeded(id string, elapsed time.Duration) {
	r.Logger.Info("step succeeded", "step", id, "elapsed", elapsed.Round(time.Millisecond))
}

func (r *LogReporter) StepFailed(id string, err error) {
	r.Logger.Error("step failed", "step", id, "error", err)
}

func (r *LogReporter) BuildCompleted(result *build.BuildResult) {
	attrs := []any{
		"run", result.RunID,
		"directive", result.Directive.String(),
		"phase", result.Phase.String(),
		"succeeded", result.Count(build.StatusSucceeded),
		"skipped", result.Count(build.StatusSkipped),
		"failed", result.Count(build.StatusFailed),
		"elapsed", result.Duration.Round(time.Millisecond),
	}
	if len(result.NotRun) > 0 {
		attrs = append(attrs, "notRun", result.NotRun)
	}

	if result.Success() {
		r.Logger.Info("build completed", attrs...)
		return
	}
	if result.Err != nil {
		attrs = append(attrs, "error", result.Err)
	}
	r.Logger.Error("build failed", attrs...)
}

// Multi forwards every event to each reporter in order.
type Multi []build.Reporter

func (m Multi) StepStarted(id string) {
	for _, r := range m {
		r.StepStarted(id)
	}
}

func (m Multi) StepSkipped(id string) {
	for _, r := range m {
		r.StepSkipped(id)
	}
}

func (m Multi) StepSucceeded(id string, elapsed time.Duration) {
	for _, r := range m {
		r.StepSucceeded(id, elapsed)
	}
}

func (m Multi) StepFailed(id string, err error) {
	for _, r := range m {
		r.StepFailed(id, err)
	}
}

func (m Multi) BuildCompleted(result *build.BuildResult) {
	for _, r := range m {
		r.BuildCompleted(result)
	}
}
