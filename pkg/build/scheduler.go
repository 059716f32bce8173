package build

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/systemstart/stepwise/pkg/fingerprint"
	"github.com/systemstart/stepwise/pkg/graph"
	"golang.org/x/sync/errgroup"
)

// Policy decides how recorded fingerprints are used while planning.
type Policy int

const (
	// PolicyNormal rebuilds steps whose fingerprint changed.
	PolicyNormal Policy = iota
	// PolicyForce rebuilds every requested step regardless of records.
	PolicyForce
	// PolicyClear drops the records of the requested steps, then builds.
	PolicyClear
)

func (p Policy) String() string {
	switch p {
	case PolicyNormal:
		return "normal"
	case PolicyForce:
		return "force"
	case PolicyClear:
		return "clear"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// Stale reasons.
const (
	ReasonNoRecord   = "no record"
	ReasonChanged    = "inputs changed"
	ReasonForced     = "forced"
	ReasonDependency = "dependency stale"
)

// PlanEntry is one step of an execution plan. Entries that are not stale are
// pass-throughs: they are kept because a stale step depends on them, and they
// are reported as skipped without running.
type PlanEntry struct {
	Step   *graph.Step
	Stale  bool
	Reason string
	Digest string
	// DependsOn holds the dependencies that are part of the closure.
	DependsOn []string
}

// Plan is an ordered execution plan.
type Plan struct {
	Entries []PlanEntry
	// Unchanged lists requested steps that are up to date and needed by no
	// stale step, in topological order.
	Unchanged []string
}

// IDs returns the entry identifiers in plan order.
func (p *Plan) IDs() []string {
	ids := make([]string, len(p.Entries))
	for i, e := range p.Entries {
		ids[i] = e.Step.ID
	}
	return ids
}

// StaleIDs returns the identifiers of entries that will run.
func (p *Plan) StaleIDs() []string {
	var ids []string
	for _, e := range p.Entries {
		if e.Stale {
			ids = append(ids, e.Step.ID)
		}
	}
	return ids
}

// Scheduler plans and drives step execution.
type Scheduler struct {
	// Workers bounds how many actions run at once. Values below 1 mean 1.
	Workers int
	Logger  *slog.Logger
}

func (s *Scheduler) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Plan computes the closure of requested, orders it and selects the stale
// steps plus the up to date steps they depend on. An empty request plans the
// whole graph. The graph must have been validated.
func (s *Scheduler) Plan(g *graph.Graph, store *fingerprint.Store, requested []string, policy Policy) (*Plan, error) {
	closure, err := g.Closure(requested)
	if err != nil {
		return nil, fmt.Errorf("resolving requested steps: %w", err)
	}
	order, err := g.TopologicalOrder(closure)
	if err != nil {
		return nil, fmt.Errorf("ordering steps: %w", err)
	}

	entries := make(map[string]*PlanEntry, len(order))
	for _, id := range order {
		step, _ := g.Step(id)
		entry := &PlanEntry{Step: step}
		for _, dep := range step.DependsOn {
			if _, ok := entries[dep]; ok {
				entry.DependsOn = append(entry.DependsOn, dep)
			}
		}

		digest, err := stepDigest(step)
		if err != nil {
			return nil, &StepError{ID: id, Err: fmt.Errorf("%w: computing fingerprint: %w", ErrStepActionFailed, err)}
		}
		entry.Digest = digest

		switch {
		case policy == PolicyForce:
			entry.Stale, entry.Reason = true, ReasonForced
		case store.IsStale(id, digest):
			entry.Stale, entry.Reason = true, ReasonChanged
			if _, ok := store.Record(id); !ok {
				entry.Reason = ReasonNoRecord
			}
		}
		if !entry.Stale {
			for _, dep := range entry.DependsOn {
				if entries[dep].Stale {
					entry.Stale, entry.Reason = true, ReasonDependency
					break
				}
			}
		}
		entries[id] = entry
	}

	// Every ancestor of a stale step must be present, rebuilt or not.
	needed := make(map[string]bool, len(order))
	for i := len(order) - 1; i >= 0; i-- {
		e := entries[order[i]]
		if e.Stale || needed[e.Step.ID] {
			needed[e.Step.ID] = true
			for _, dep := range e.DependsOn {
				needed[dep] = true
			}
		}
	}

	plan := &Plan{}
	for _, id := range order {
		if needed[id] {
			plan.Entries = append(plan.Entries, *entries[id])
		} else {
			plan.Unchanged = append(plan.Unchanged, id)
		}
	}
	return plan, nil
}

func stepDigest(step *graph.Step) (string, error) {
	if step.Fingerprint == nil {
		return "", nil
	}
	return step.Fingerprint()
}

type completion struct {
	entry  *PlanEntry
	result StepResult
}

// Run executes plan. Unchanged steps and pass-through entries are reported as
// skipped. Stale entries run once all their plan dependencies finished; after
// a successful action the step's fingerprint is committed before any
// dependent is dispatched. After the first failure, or once ctx is done, no
// further step is dispatched; steps already running are awaited and recorded.
// Actions receive a context that is not cancelled with ctx.
func (s *Scheduler) Run(ctx context.Context, plan *Plan, exec *Executor, store *fingerprint.Store, reporter Reporter, result *BuildResult) {
	workers := max(s.Workers, 1)
	log := s.logger()
	actionCtx := context.WithoutCancel(ctx)

	for _, id := range plan.Unchanged {
		reporter.StepSkipped(id)
		result.Steps = append(result.Steps, StepResult{ID: id, Status: StatusSkipped})
	}

	var eg errgroup.Group
	eg.SetLimit(workers)
	completions := make(chan completion, len(plan.Entries))

	finished := make(map[string]bool, len(plan.Entries))
	dispatched := make([]bool, len(plan.Entries))
	inFlight := 0
	failed := false
	done := ctx.Done()

	ready := func(e *PlanEntry) bool {
		for _, dep := range e.DependsOn {
			if !finished[dep] {
				return false
			}
		}
		return true
	}

	dispatch := func() {
		for progress := true; progress; {
			progress = false
			for i := range plan.Entries {
				if failed || result.Interrupted || inFlight >= workers {
					return
				}
				e := &plan.Entries[i]
				if dispatched[i] || !ready(e) {
					continue
				}
				dispatched[i] = true
				progress = true

				if !e.Stale {
					reporter.StepSkipped(e.Step.ID)
					result.Steps = append(result.Steps, StepResult{ID: e.Step.ID, Status: StatusSkipped})
					finished[e.Step.ID] = true
					continue
				}

				inFlight++
				reporter.StepStarted(e.Step.ID)
				log.Info("running step", "step", e.Step.ID, "reason", e.Reason)
				eg.Go(func() error {
					completions <- completion{entry: e, result: runEntry(actionCtx, e, exec, store)}
					return nil
				})
			}
		}
	}

	for {
		if ctx.Err() != nil && !result.Interrupted {
			result.Interrupted = true
			done = nil
		}
		dispatch()
		if inFlight == 0 {
			break
		}

		select {
		case c := <-completions:
			inFlight--
			id := c.entry.Step.ID
			result.Steps = append(result.Steps, c.result)
			if c.result.Status == StatusFailed {
				failed = true
				reporter.StepFailed(id, c.result.Err)
				log.Error("step failed", "step", id, "error", c.result.Err)
				continue
			}
			finished[id] = true
			reporter.StepSucceeded(id, c.result.Duration)
			log.Info("step succeeded", "step", id, "duration", c.result.Duration)
		case <-done:
			result.Interrupted = true
			done = nil
			log.Warn("interrupt received, waiting for running steps", "running", inFlight)
		}
	}
	_ = eg.Wait()

	for i, e := range plan.Entries {
		if !dispatched[i] {
			result.NotRun = append(result.NotRun, e.Step.ID)
		}
	}
	if result.Interrupted {
		result.Err = fmt.Errorf("%w: %w", ErrInterrupted, context.Cause(ctx))
	}
}

// runEntry executes a stale entry and commits its fingerprint on success. The
// digest is taken again once dependencies finished, since their outputs may be
// among the step's inputs.
func runEntry(ctx context.Context, e *PlanEntry, exec *Executor, store *fingerprint.Store) StepResult {
	digest, err := stepDigest(e.Step)
	if err != nil {
		return StepResult{
			ID:     e.Step.ID,
			Status: StatusFailed,
			Err:    &StepError{ID: e.Step.ID, Err: fmt.Errorf("%w: computing fingerprint: %w", ErrStepActionFailed, err)},
		}
	}

	res := exec.Run(ctx, e.Step)
	if res.Status != StatusSucceeded {
		return res
	}
	if err := store.Commit(e.Step.ID, digest); err != nil {
		res.Status = StatusFailed
		res.Err = &StepError{ID: e.Step.ID, Err: err}
	}
	return res
}
