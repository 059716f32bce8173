package build

import "time"

// Reporter receives status events. The scheduler delivers every event from a
// single goroutine, so implementations need no locking of their own.
type Reporter interface {
	StepStarted(id string)
	StepSkipped(id string)
	StepSucceeded(id string, elapsed time.Duration)
	StepFailed(id string, err error)
	BuildCompleted(result *BuildResult)
}

// NopReporter discards every event.
type NopReporter struct{}

func (NopReporter) StepStarted(string)                  {}
func (NopReporter) StepSkipped(string)                  {}
func (NopReporter) StepSucceeded(string, time.Duration) {}
func (NopReporter) StepFailed(string, error)            {}
func (NopReporter) BuildCompleted(*BuildResult)         {}
