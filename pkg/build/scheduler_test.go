package build

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systemstart/stepwise/pkg/fingerprint"
	"github.com/systemstart/stepwise/pkg/graph"
)

func TestExecutor_WrapsFailureAndMeasures(t *testing.T) {
	tick := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e := &Executor{now: func() time.Time {
		tick = tick.Add(250 * time.Millisecond)
		return tick
	}}

	cause := errors.New("compiler exited 2")
	res := e.Run(context.Background(), &graph.Step{ID: "cc", Action: func(context.Context) error { return cause }})

	assert.Equal(t, "cc", res.ID)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, 250*time.Millisecond, res.Duration)
	assert.ErrorIs(t, res.Err, ErrStepActionFailed)
	assert.ErrorIs(t, res.Err, cause)

	var stepErr *StepError
	require.ErrorAs(t, res.Err, &stepErr)
	assert.Equal(t, "cc", stepErr.ID)
}

func TestExecutor_Success(t *testing.T) {
	res := NewExecutor(nil).Run(context.Background(), &graph.Step{ID: "ok", Action: func(context.Context) error { return nil }})
	assert.Equal(t, StatusSucceeded, res.Status)
	assert.NoError(t, res.Err)
}

func TestScheduler_ParallelRespectsDependencies(t *testing.T) {
	f := newFixture(t)
	var running, peak atomic.Int32
	for _, id := range []string{"a1", "a2", "a3", "b", "c1", "c2"} {
		f.actions[id] = func(context.Context) error {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			running.Add(-1)
			return nil
		}
	}
	g := f.graph(
		f.step("a1"), f.step("a2"), f.step("a3"),
		f.step("b", "a1", "a2", "a3"),
		f.step("c1", "b"), f.step("c2", "b"),
	)
	require.NoError(t, g.Validate())

	store := fingerprint.NewStore(t.TempDir())
	s := &Scheduler{Workers: 2}
	plan, err := s.Plan(g, store, nil, PolicyNormal)
	require.NoError(t, err)

	res := &BuildResult{}
	s.Run(context.Background(), plan, NewExecutor(nil), store, &recorder{}, res)

	assert.Equal(t, 6, res.Count(StatusSucceeded))
	assert.LessOrEqual(t, peak.Load(), int32(2))

	pos := map[string]int{}
	for i, id := range f.ran() {
		pos[id] = i
	}
	for _, a := range []string{"a1", "a2", "a3"} {
		assert.Less(t, pos[a], pos["b"])
	}
	assert.Less(t, pos["b"], pos["c1"])
	assert.Less(t, pos["b"], pos["c2"])
}

func TestScheduler_ParallelFailFastStopsDispatch(t *testing.T) {
	f := newFixture(t)
	failureSeen := make(chan struct{})
	f.failWith("a", errDiskFull)
	f.actions["b"] = func(context.Context) error {
		<-failureSeen
		return nil
	}
	g := f.graph(f.step("a"), f.step("b"), f.step("c"), f.step("d"))
	require.NoError(t, g.Validate())

	store := fingerprint.NewStore(t.TempDir())
	s := &Scheduler{Workers: 2}
	plan, err := s.Plan(g, store, nil, PolicyNormal)
	require.NoError(t, err)

	rec := &recorder{onFailed: func(id string) {
		if id == "a" {
			close(failureSeen)
		}
	}}
	res := &BuildResult{}
	s.Run(context.Background(), plan, NewExecutor(nil), store, rec, res)

	assert.ElementsMatch(t, []string{"a", "b"}, f.ran())
	assert.Equal(t, []string{"c", "d"}, res.NotRun)

	b, ok := res.Result("b")
	require.True(t, ok, "in-flight step must be awaited and recorded")
	assert.Equal(t, StatusSucceeded, b.Status)
	assert.False(t, store.IsStale("b", "b=v1"), "in-flight success is still committed")
}

func TestScheduler_InterruptStopsDispatchAndAwaitsRunning(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var actionCtxErr error
	f.actions["a"] = func(actx context.Context) error {
		cancel()
		time.Sleep(5 * time.Millisecond)
		actionCtxErr = actx.Err()
		return nil
	}
	g := f.graph(f.step("a"), f.step("b", "a"), f.step("c"))
	require.NoError(t, g.Validate())

	store := fingerprint.NewStore(t.TempDir())
	s := &Scheduler{Workers: 1}
	plan, err := s.Plan(g, store, nil, PolicyNormal)
	require.NoError(t, err)

	res := &BuildResult{}
	s.Run(ctx, plan, NewExecutor(nil), store, &recorder{}, res)

	assert.True(t, res.Interrupted)
	assert.ErrorIs(t, res.Err, ErrInterrupted)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.NoError(t, actionCtxErr, "running actions are not cancelled")
	assert.Equal(t, []string{"a"}, f.ran())
	assert.Equal(t, []string{"b", "c"}, res.NotRun)
	assert.False(t, store.IsStale("a", "a=v1"))
}

func TestScheduler_AlreadyCancelledRunsNothing(t *testing.T) {
	f := newFixture(t)
	g := f.graph(f.step("a"))
	require.NoError(t, g.Validate())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := fingerprint.NewStore(t.TempDir())
	s := &Scheduler{}
	plan, err := s.Plan(g, store, nil, PolicyNormal)
	require.NoError(t, err)

	res := &BuildResult{}
	s.Run(ctx, plan, NewExecutor(nil), store, &recorder{}, res)
	assert.True(t, res.Interrupted)
	assert.Empty(t, f.ran())
	assert.Equal(t, []string{"a"}, res.NotRun)
}

func TestScheduler_PlanForcePolicy(t *testing.T) {
	f := newFixture(t)
	g := f.graph(f.step("a"), f.step("b", "a"))
	require.NoError(t, g.Validate())

	store := fingerprint.NewStore(t.TempDir())
	require.NoError(t, store.Commit("a", "a=v1"))
	require.NoError(t, store.Commit("b", "b=v1"))

	s := &Scheduler{}
	plan, err := s.Plan(g, store, nil, PolicyNormal)
	require.NoError(t, err)
	assert.Empty(t, plan.Entries)
	assert.Equal(t, []string{"a", "b"}, plan.Unchanged)

	plan, err = s.Plan(g, store, nil, PolicyForce)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, plan.StaleIDs())
	assert.Equal(t, ReasonForced, plan.Entries[1].Reason)
}

func TestParseDirective(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    Directive
		wantErr error
	}{
		{"empty", nil, Directive{Verb: VerbBuild}, nil},
		{"build all", []string{"build"}, Directive{Verb: VerbBuild}, nil},
		{"filters", []string{"REBUILD", "compile", " ", "link"}, Directive{Verb: VerbRebuild, Steps: []string{"compile", "link"}}, nil},
		{"clean", []string{"clean"}, Directive{Verb: VerbClean}, nil},
		{"plan", []string{"plan", "x"}, Directive{Verb: VerbPlan, Steps: []string{"x"}}, nil},
		{"unknown", []string{"deploy"}, Directive{}, ErrUnknownDirective},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDirective(tt.args)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDirective_Policy(t *testing.T) {
	for verb, want := range map[Verb]Policy{
		VerbBuild:   PolicyNormal,
		VerbPlan:    PolicyNormal,
		VerbRebuild: PolicyForce,
		VerbClean:   PolicyClear,
	} {
		got, err := Directive{Verb: verb}.Policy()
		require.NoError(t, err)
		assert.Equal(t, want, got, "verb %s", verb)
	}
	assert.Equal(t, "rebuild a b", Directive{Verb: VerbRebuild, Steps: []string{"a", "b"}}.String())
}
