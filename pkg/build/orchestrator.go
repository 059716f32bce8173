// Package build runs a graph of steps incrementally: it plans which steps are
// stale, executes them in dependency order and reports what happened.
//
// The Orchestrator is the entry point. It never panics or returns an error
// from Execute; every outcome is a *BuildResult.
package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/systemstart/stepwise/pkg/fingerprint"
	"github.com/systemstart/stepwise/pkg/graph"
)

// Phase is the lifecycle state of one invocation.
type Phase int

const (
	PhaseInitialized Phase = iota
	PhaseValidated
	PhasePlanned
	PhaseRunning
	PhaseCompleted
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseInitialized:
		return "initialized"
	case PhaseValidated:
		return "validated"
	case PhasePlanned:
		return "planned"
	case PhaseRunning:
		return "running"
	case PhaseCompleted:
		return "completed"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

var transitions = map[Phase][]Phase{
	PhaseInitialized: {PhaseValidated, PhaseFailed},
	PhaseValidated:   {PhasePlanned, PhaseFailed},
	PhasePlanned:     {PhaseRunning, PhaseFailed},
	PhaseRunning:     {PhaseCompleted, PhaseFailed},
}

// Config is everything an Orchestrator needs.
type Config struct {
	OutputDir string
	Graph     *graph.Graph
	Reporter  Reporter
	// Workers bounds parallel step actions; 0 or 1 runs steps one at a time.
	Workers int
	Logger  *slog.Logger
}

// Orchestrator composes graph, fingerprint store, scheduler and executor for
// one output directory.
type Orchestrator struct {
	cfg       Config
	store     *fingerprint.Store
	scheduler *Scheduler
	executor  *Executor
	log       *slog.Logger
}

// New checks cfg and returns an orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.OutputDir == "" {
		return nil, errors.New("output directory is required")
	}
	if cfg.Graph == nil {
		return nil, errors.New("step graph is required")
	}
	if cfg.Reporter == nil {
		cfg.Reporter = NopReporter{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Orchestrator{
		cfg:       cfg,
		store:     fingerprint.NewStore(cfg.OutputDir),
		scheduler: &Scheduler{Workers: cfg.Workers, Logger: cfg.Logger},
		executor:  NewExecutor(cfg.Logger),
		log:       cfg.Logger,
	}, nil
}

// Store returns the fingerprint store of the output directory.
func (o *Orchestrator) Store() *fingerprint.Store { return o.store }

// Execute carries out d and returns the aggregate result.
func (o *Orchestrator) Execute(ctx context.Context, d Directive) (result *BuildResult) {
	start := time.Now()
	result = &BuildResult{
		RunID:     uuid.NewString(),
		Directive: d,
		Phase:     PhaseInitialized,
		History:   []Phase{PhaseInitialized},
	}
	log := o.log.With("run", result.RunID, "directive", d.String())

	defer func() {
		if r := recover(); r != nil {
			result.Err = fmt.Errorf("internal error: %v", r)
			o.fail(log, result)
		}
		result.Duration = time.Since(start)
		o.cfg.Reporter.BuildCompleted(result)
	}()

	policy, err := d.Policy()
	if err != nil {
		result.Err = err
		o.fail(log, result)
		return result
	}

	if err := o.cfg.Graph.Validate(); err != nil {
		result.Err = fmt.Errorf("validating step graph: %w", err)
		o.fail(log, result)
		return result
	}
	o.advance(log, result, PhaseValidated)

	if err := os.MkdirAll(o.cfg.OutputDir, 0o750); err != nil {
		result.Err = fmt.Errorf("creating output directory: %w", err)
		o.fail(log, result)
		return result
	}

	o.store.Load()
	if err := o.store.LoadError(); err != nil {
		log.Warn("fingerprint state discarded, rebuilding", "error", err)
	}

	if policy == PolicyClear {
		if err := o.clear(d.Steps); err != nil {
			result.Err = err
			o.fail(log, result)
			return result
		}
	}

	plan, err := o.scheduler.Plan(o.cfg.Graph, o.store, d.Steps, policy)
	if err != nil {
		var stepErr *StepError
		if errors.As(err, &stepErr) {
			o.cfg.Reporter.StepFailed(stepErr.ID, err)
			result.Steps = append(result.Steps, StepResult{ID: stepErr.ID, Status: StatusFailed, Err: err})
		}
		result.Err = fmt.Errorf("planning: %w", err)
		o.fail(log, result)
		return result
	}
	result.Plan = plan
	o.advance(log, result, PhasePlanned)
	log.Info("plan ready", "steps", len(plan.Entries), "stale", len(plan.StaleIDs()), "unchanged", len(plan.Unchanged))

	o.advance(log, result, PhaseRunning)
	if d.Verb != VerbPlan {
		scheduler := *o.scheduler
		scheduler.Logger = log
		scheduler.Run(ctx, plan, o.executor.WithLogger(log), o.store, o.cfg.Reporter, result)
	}

	if result.Err != nil || len(result.Failed()) > 0 {
		o.fail(log, result)
		return result
	}
	o.advance(log, result, PhaseCompleted)
	return result
}

// clear drops the records of the requested closure, or all records when no
// step was requested.
func (o *Orchestrator) clear(requested []string) error {
	if len(requested) == 0 {
		if err := o.store.Clear(); err != nil {
			return fmt.Errorf("clearing fingerprints: %w", err)
		}
		return nil
	}

	closure, err := o.cfg.Graph.Closure(requested)
	if err != nil {
		return fmt.Errorf("resolving requested steps: %w", err)
	}
	if err := o.store.Clear(closure...); err != nil {
		return fmt.Errorf("clearing fingerprints: %w", err)
	}
	return nil
}

func (o *Orchestrator) advance(log *slog.Logger, result *BuildResult, to Phase) {
	for _, allowed := range transitions[result.Phase] {
		if allowed == to {
			log.Debug("build phase", "from", result.Phase, "to", to)
			result.Phase = to
			result.History = append(result.History, to)
			return
		}
	}
	panic(fmt.Sprintf("illegal phase transition %s -> %s", result.Phase, to))
}

func (o *Orchestrator) fail(log *slog.Logger, result *BuildResult) {
	if result.Phase == PhaseFailed {
		return
	}
	if result.Err != nil {
		log.Error("build failed", "phase", result.Phase, "error", result.Err)
	} else {
		log.Error("build failed", "phase", result.Phase, "failed", len(result.Failed()))
	}
	result.Phase = PhaseFailed
	result.History = append(result.History, PhaseFailed)
}
