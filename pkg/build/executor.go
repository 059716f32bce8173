package build

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/systemstart/stepwise/pkg/graph"
)

// Executor runs a single step's action. It adds timing and turns every
// failure, panics included, into a failed StepResult.
type Executor struct {
	now func() time.Time
	log *slog.Logger
}

// NewExecutor returns an executor using the wall clock. A nil logger means
// slog.Default.
func NewExecutor(logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{now: time.Now, log: logger}
}

// WithLogger returns a copy of e logging to logger.
func (e *Executor) WithLogger(logger *slog.Logger) *Executor {
	c := *e
	c.log = logger
	return &c
}

// Run invokes the action of step.
func (e *Executor) Run(ctx context.Context, step *graph.Step) (res StepResult) {
	res.ID = step.ID
	start := e.now()

	defer func() {
		res.Duration = e.now().Sub(start)
		if r := recover(); r != nil {
			res.Status = StatusFailed
			res.Err = &StepError{ID: step.ID, Err: fmt.Errorf("%w: panic: %v", ErrStepActionFailed, r)}
		}
	}()

	if e.log != nil {
		e.log.Debug("running step action", "step", step.ID)
	}
	if err := step.Action(ctx); err != nil {
		res.Status = StatusFailed
		res.Err = &StepError{ID: step.ID, Err: fmt.Errorf("%w: %w", ErrStepActionFailed, err)}
		return res
	}

	res.Status = StatusSucceeded
	return res
}
