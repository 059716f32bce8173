package graph

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDuplicateStep     = errors.New("duplicate step")
	ErrUnknownDependency = errors.New("unknown dependency")
	ErrCyclicDependency  = errors.New("cyclic dependency")
	ErrUnknownStep       = errors.New("unknown step")
	ErrInvalidStep       = errors.New("invalid step")
)

// UnknownDependencyError names the step whose dependency does not resolve.
type UnknownDependencyError struct {
	Step       string
	Dependency string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("%s: step %q depends on %q", ErrUnknownDependency, e.Step, e.Dependency)
}

func (e *UnknownDependencyError) Unwrap() error { return ErrUnknownDependency }

// CycleError carries the members of one dependency cycle, in edge order.
type CycleError struct {
	Members []string
}

func (e *CycleError) Error() string {
	if len(e.Members) == 0 {
		return ErrCyclicDependency.Error()
	}
	path := append(append([]string{}, e.Members...), e.Members[0])
	return fmt.Sprintf("%s: %s", ErrCyclicDependency, strings.Join(path, " -> "))
}

func (e *CycleError) Unwrap() error { return ErrCyclicDependency }
