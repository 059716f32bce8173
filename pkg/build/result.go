package build

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrStepActionFailed = errors.New("step action failed")
	ErrUnknownDirective = errors.New("unknown directive")
	ErrInterrupted      = errors.New("build interrupted")
)

// Status is the outcome of one step in one invocation.
type Status int

const (
	StatusSkipped Status = iota
	StatusSucceeded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSkipped:
		return "skipped"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// StepError ties a failure to the step it happened in.
type StepError struct {
	ID  string
	Err error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q: %v", e.ID, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// StepResult is the outcome of a single step.
type StepResult struct {
	ID       string
	Status   Status
	Duration time.Duration
	Err      error
}

// BuildResult aggregates the outcome of one invocation.
type BuildResult struct {
	RunID     string
	Directive Directive
	Phase     Phase
	History   []Phase

	// Steps holds one result per reported step, in reporting order.
	Steps []StepResult
	// NotRun lists planned steps that were never dispatched.
	NotRun []string
	// Plan is the execution plan, when one was produced.
	Plan *Plan

	// Err is set when the invocation failed for a reason other than a step
	// failure: validation, planning, state access or interruption.
	Err         error
	Interrupted bool
	Duration    time.Duration
}

// Success reports whether the invocation completed with no failed step.
func (r *BuildResult) Success() bool {
	return r.Phase == PhaseCompleted && r.Err == nil && len(r.Failed()) == 0
}

// Failed returns the results of failed steps.
func (r *BuildResult) Failed() []StepResult {
	var out []StepResult
	for _, s := range r.Steps {
		if s.Status == StatusFailed {
			out = append(out, s)
		}
	}
	return out
}

// Result returns the result of the step with the given id.
func (r *BuildResult) Result(id string) (StepResult, bool) {
	for _, s := range r.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return StepResult{}, false
}

// Count returns how many steps ended with status st.
func (r *BuildResult) Count(st Status) int {
	n := 0
	for _, s := range r.Steps {
		if s.Status == st {
			n++
		}
	}
	return n
}
