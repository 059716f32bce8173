// Package graph holds build steps and the dependency edges between them.
//
// A Graph is filled with Register during setup and checked with Validate before
// any ordering query. Orderings are deterministic: steps without an ordering
// constraint between them keep their registration order.
package graph

import (
	"container/heap"
	"context"
	"fmt"
	"slices"
)

// Action performs the work of a step.
type Action func(ctx context.Context) error

// FingerprintFunc returns a comparable digest of a step's inputs.
type FingerprintFunc func() (string, error)

// Step is a unit of build work. Steps are not modified after registration.
type Step struct {
	ID          string
	DependsOn   []string
	Fingerprint FingerprintFunc
	Action      Action
}

// Graph maps step identifiers to steps.
type Graph struct {
	steps map[string]*Step
	order []string
	index map[string]int
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		steps: make(map[string]*Step),
		index: make(map[string]int),
	}
}

// Register adds a step. The step's dependency list is copied.
func (g *Graph) Register(step Step) error {
	if step.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidStep)
	}
	if step.Action == nil {
		return fmt.Errorf("%w: step %q has no action", ErrInvalidStep, step.ID)
	}
	if _, exists := g.steps[step.ID]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateStep, step.ID)
	}

	step.DependsOn = slices.Clone(step.DependsOn)
	g.index[step.ID] = len(g.order)
	g.order = append(g.order, step.ID)
	g.steps[step.ID] = &step
	return nil
}

// Step returns the registered step with the given id.
func (g *Graph) Step(id string) (*Step, bool) {
	s, ok := g.steps[id]
	return s, ok
}

// IDs returns all step identifiers in registration order.
func (g *Graph) IDs() []string {
	return slices.Clone(g.order)
}

// Len returns the number of registered steps.
func (g *Graph) Len() int { return len(g.order) }

// Validate checks that every dependency resolves and that the edges contain no cycle.
func (g *Graph) Validate() error {
	for _, id := range g.order {
		for _, dep := range g.steps[id].DependsOn {
			if _, ok := g.steps[dep]; !ok {
				return &UnknownDependencyError{Step: id, Dependency: dep}
			}
		}
	}

	if cycle := g.findCycle(); len(cycle) > 0 {
		return &CycleError{Members: cycle}
	}
	return nil
}

// Dependencies returns the direct dependencies of id, in declaration order.
func (g *Graph) Dependencies(id string) ([]string, error) {
	s, ok := g.steps[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStep, id)
	}
	return slices.Clone(s.DependsOn), nil
}

// Dependents returns the steps that directly depend on id, in registration order.
func (g *Graph) Dependents(id string) ([]string, error) {
	if _, ok := g.steps[id]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStep, id)
	}
	var out []string
	for _, other := range g.order {
		if slices.Contains(g.steps[other].DependsOn, id) {
			out = append(out, other)
		}
	}
	return out, nil
}

// Closure returns the requested steps together with all of their transitive
// dependencies, in registration order. An empty request selects every step.
func (g *Graph) Closure(ids []string) ([]string, error) {
	if len(ids) == 0 {
		return g.IDs(), nil
	}

	selected := make(map[string]bool, len(ids))
	stack := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := g.steps[id]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownStep, id)
		}
		stack = append(stack, id)
	}

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if selected[id] {
			continue
		}
		selected[id] = true
		for _, dep := range g.steps[id].DependsOn {
			if _, ok := g.steps[dep]; !ok {
				return nil, &UnknownDependencyError{Step: id, Dependency: dep}
			}
			stack = append(stack, dep)
		}
	}

	out := make([]string, 0, len(selected))
	for _, id := range g.order {
		if selected[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

// TopologicalOrder orders subset so that every dependency precedes its
// dependents. Only edges between members of subset are considered. Steps with
// no ordering constraint between them keep registration order. A nil subset
// orders the whole graph.
func (g *Graph) TopologicalOrder(subset []string) ([]string, error) {
	if subset == nil {
		subset = g.order
	}

	member := make(map[string]bool, len(subset))
	for _, id := range subset {
		if _, ok := g.steps[id]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownStep, id)
		}
		member[id] = true
	}

	indeg := make(map[string]int, len(member))
	dependents := make(map[string][]string, len(member))
	for id := range member {
		for _, dep := range g.steps[id].DependsOn {
			if !member[dep] {
				continue
			}
			indeg[id]++
			dependents[dep] = append(dependents[dep], id)
		}
	}

	ready := &indexHeap{}
	for id := range member {
		if indeg[id] == 0 {
			heap.Push(ready, g.index[id])
		}
	}

	out := make([]string, 0, len(member))
	for ready.Len() > 0 {
		id := g.order[heap.Pop(ready).(int)]
		out = append(out, id)
		for _, next := range dependents[id] {
			indeg[next]--
			if indeg[next] == 0 {
				heap.Push(ready, g.index[next])
			}
		}
	}

	if len(out) != len(member) {
		return nil, &CycleError{Members: g.findCycle()}
	}
	return out, nil
}

// findCycle walks dependency edges depth-first in registration order and
// returns the members of the first cycle found, or nil.
func (g *Graph) findCycle() []string {
	const (
		white = iota
		gray
		black
	)

	color := make(map[string]int, len(g.order))
	var path []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		path = append(path, id)
		for _, dep := range g.steps[id].DependsOn {
			if _, ok := g.steps[dep]; !ok {
				continue
			}
			switch color[dep] {
			case white:
				if visit(dep) {
					return true
				}
			case gray:
				start := slices.Index(path, dep)
				cycle = slices.Clone(path[start:])
				return true
			}
		}
		path = path[:len(path)-1]
		color[id] = black
		return false
	}

	for _, id := range g.order {
		if color[id] == white && visit(id) {
			return cycle
		}
	}
	return nil
}

type indexHeap []int

func (h indexHeap) Len() int           { return len(h) }
func (h indexHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h indexHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *indexHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *indexHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
