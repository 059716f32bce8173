package report

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/systemstart/stepwise/pkg/build"
)

// Summary writes the aggregate report of an invocation to W once the build
// completes. Step events are ignored.
type Summary struct {
	W io.Writer
	// Verbose lists every step of the plan, not only failures.
	Verbose bool
}

func (s *Summary) StepStarted(string)                  {}
func (s *Summary) StepSkipped(string)                  {}
func (s *Summary) StepSucceeded(string, time.Duration) {}
func (s *Summary) StepFailed(string, error)            {}

func (s *Summary) BuildCompleted(result *build.BuildResult) {
	// Write errors on a report sink cannot change the build outcome.
	_ = WriteSummary(s.W, result, s.Verbose || result.Directive.Verb == build.VerbPlan)
}

// WriteSummary renders result as plain text. With plan set, every plan entry
// is listed with its reason.
func WriteSummary(w io.Writer, result *build.BuildResult, plan bool) error {
	var b strings.Builder

	outcome := "succeeded"
	switch {
	case result.Interrupted:
		outcome = "interrupted"
	case !result.Success():
		outcome = "FAILED"
	}
	fmt.Fprintf(&b, "%s %s in %s (run %s)\n",
		result.Directive.String(), outcome, result.Duration.Round(time.Millisecond), result.RunID)
	fmt.Fprintf(&b, "  succeeded: %d, skipped: %d, failed: %d, not run: %d\n",
		result.Count(build.StatusSucceeded), result.Count(build.StatusSkipped),
		result.Count(build.StatusFailed), len(result.NotRun))

	if plan && result.Plan != nil {
		b.WriteString("plan:\n")
		for _, e := range result.Plan.Entries {
			state := "pass-through"
			if e.Stale {
				state = "stale (" + e.Reason + ")"
			}
			fmt.Fprintf(&b, "  %-24s %s\n", e.Step.ID, state)
		}
		for _, id := range result.Plan.Unchanged {
			fmt.Fprintf(&b, "  %-24s up to date\n", id)
		}
	}

	if failed := result.Failed(); len(failed) > 0 {
		b.WriteString("failed steps:\n")
		for _, f := range failed {
			fmt.Fprintf(&b, "  %s: %v\n", f.ID, f.Err)
		}
	}
	if len(result.NotRun) > 0 {
		fmt.Fprintf(&b, "not run: %s\n", strings.Join(result.NotRun, ", "))
	}
	var stepErr *build.StepError
	if result.Err != nil && !errors.As(result.Err, &stepErr) {
		fmt.Fprintf(&b, "error: %v\n", result.Err)
	}

	_, err := io.WriteString(w, b.String())
	return err
}
