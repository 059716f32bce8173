package build

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/systemstart/stepwise/pkg/graph"
)

// recorder is a Reporter that keeps every event as a string.
type recorder struct {
	mu       sync.Mutex
	events   []string
	final    *BuildResult
	onFailed func(id string)
}

func (r *recorder) add(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recorder) StepStarted(id string)                  { r.add("start %s", id) }
func (r *recorder) StepSkipped(id string)                  { r.add("skip %s", id) }
func (r *recorder) StepSucceeded(id string, _ time.Duration) { r.add("ok %s", id) }
func (r *recorder) StepFailed(id string, _ error) {
	r.add("fail %s", id)
	if r.onFailed != nil {
		r.onFailed(id)
	}
}
func (r *recorder) BuildCompleted(res *BuildResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.final = res
}

func (r *recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// fixture builds graphs whose fingerprints come from a mutable map and whose
// actions count their runs.
type fixture struct {
	t *testing.T

	mu      sync.Mutex
	inputs  map[string]string
	runs    map[string]int
	order   []string
	actions map[string]func(ctx context.Context) error
}

func newFixture(t *testing.T) *fixture {
	return &fixture{
		t:       t,
		inputs:  make(map[string]string),
		runs:    make(map[string]int),
		actions: make(map[string]func(ctx context.Context) error),
	}
}

func (f *fixture) setInput(id, v string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs[id] = v
}

func (f *fixture) runCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs[id]
}

func (f *fixture) ran() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.order...)
}

func (f *fixture) resetRuns() {
	f.mu.Lock()
	defer f.mu.Unlock()
	clear(f.runs)
	f.order = nil
}

func (f *fixture) failWith(id string, err error) {
	f.actions[id] = func(context.Context) error { return err }
}

func (f *fixture) step(id string, deps ...string) graph.Step {
	f.mu.Lock()
	if _, ok := f.inputs[id]; !ok {
		f.inputs[id] = "v1"
	}
	f.mu.Unlock()

	return graph.Step{
		ID:        id,
		DependsOn: deps,
		Fingerprint: func() (string, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			return id + "=" + f.inputs[id], nil
		},
		Action: func(ctx context.Context) error {
			f.mu.Lock()
			f.runs[id]++
			f.order = append(f.order, id)
			action := f.actions[id]
			f.mu.Unlock()
			if action != nil {
				return action(ctx)
			}
			return nil
		},
	}
}

func (f *fixture) graph(steps ...graph.Step) *graph.Graph {
	f.t.Helper()
	g := graph.New()
	for _, s := range steps {
		require.NoError(f.t, g.Register(s))
	}
	return g
}

func newOrchestrator(t *testing.T, dir string, g *graph.Graph, rep Reporter, workers int) *Orchestrator {
	t.Helper()
	o, err := New(Config{OutputDir: dir, Graph: g, Reporter: rep, Workers: workers})
	require.NoError(t, err)
	return o
}

var errDiskFull = errors.New("disk full")
