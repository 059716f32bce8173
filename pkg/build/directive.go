package build

import (
	"fmt"
	"strings"
)

// Verb selects what an invocation does.
type Verb string

const (
	VerbBuild   Verb = "build"
	VerbRebuild Verb = "rebuild"
	VerbClean   Verb = "clean"
	VerbPlan    Verb = "plan"
)

// Verbs lists the accepted verbs.
var Verbs = []Verb{VerbBuild, VerbRebuild, VerbClean, VerbPlan}

// Directive is a verb with optional step filters. No filter means every step.
type Directive struct {
	Verb  Verb
	Steps []string
}

func (d Directive) String() string {
	if len(d.Steps) == 0 {
		return string(d.Verb)
	}
	return string(d.Verb) + " " + strings.Join(d.Steps, " ")
}

// Policy returns the fingerprint policy of the directive's verb.
func (d Directive) Policy() (Policy, error) {
	switch d.Verb {
	case VerbBuild, VerbPlan:
		return PolicyNormal, nil
	case VerbRebuild:
		return PolicyForce, nil
	case VerbClean:
		return PolicyClear, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownDirective, d.Verb)
	}
}

// ParseDirective reads a verb followed by step names. Empty args mean a build
// of every step.
func ParseDirective(args []string) (Directive, error) {
	if len(args) == 0 {
		return Directive{Verb: VerbBuild}, nil
	}

	d := Directive{Verb: Verb(strings.ToLower(args[0]))}
	if _, err := d.Policy(); err != nil {
		return Directive{}, err
	}
	for _, name := range args[1:] {
		if name = strings.TrimSpace(name); name != "" {
			d.Steps = append(d.Steps, name)
		}
	}
	return d, nil
}
