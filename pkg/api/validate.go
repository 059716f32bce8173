package api

import (
	"fmt"
)

var validStepTypes = map[string]bool{
	StepTypeTemplate: true,
	StepTypeGenerate: true,
	StepTypeCommand:  true,
	StepTypeCopy:     true,
}

// Validate checks the build file for errors. Dependency cycles are left to
// the step graph.
func (b *BuildFile) Validate() error {
	if len(b.Steps) == 0 {
		return fmt.Errorf("build file has no steps")
	}

	names := make(map[string]int)
	for i, step := range b.Steps {
		if step.Name == "" {
			return fmt.Errorf("step %d: name is required", i)
		}
		if prev, exists := names[step.Name]; exists {
			return fmt.Errorf("step %d: duplicate step name %q (first defined at step %d)", i, step.Name, prev)
		}
		names[step.Name] = i

		if !validStepTypes[step.Type] {
			return fmt.Errorf("step %q: unknown type %q", step.Name, step.Type)
		}

		if err := validateStepConfig(step); err != nil {
			return fmt.Errorf("step %q: %w", step.Name, err)
		}
	}

	for _, step := range b.Steps {
		for _, dep := range step.DependsOn {
			if _, ok := names[dep]; !ok {
				return fmt.Errorf("step %q: dependsOn references unknown step %q", step.Name, dep)
			}
		}
	}

	return b.validateTargets()
}

func validateStepConfig(step StepConfig) error {
	switch step.Type {
	case StepTypeTemplate:
		if step.Template == nil {
			return fmt.Errorf("template config is required")
		}
	case StepTypeGenerate:
		return validateGenerateConfig(step)
	case StepTypeCommand:
		if step.Command == nil {
			return fmt.Errorf("command config is required")
		}
		if len(step.Command.Run) == 0 || step.Command.Run[0] == "" {
			return fmt.Errorf("command.run is required")
		}
		if step.Command.Timeout < 0 {
			return fmt.Errorf("command.timeout must not be negative")
		}
	case StepTypeCopy:
		if step.Copy == nil {
			return fmt.Errorf("copy config is required")
		}
	}
	return nil
}

func validateGenerateConfig(step StepConfig) error {
	if step.Generate == nil {
		return fmt.Errorf("generate config is required")
	}
	if step.Generate.Output == "" {
		return fmt.Errorf("generate.output is required")
	}
	if step.Generate.Template == "" {
		return fmt.Errorf("generate.template is required")
	}
	return nil
}

func (b *BuildFile) validateTargets() error {
	names := make(map[string]bool)
	outputs := make(map[string]bool)

	for i, t := range b.Targets {
		if t.Name == "" {
			return fmt.Errorf("target %d: name is required", i)
		}
		if t.Output == "" {
			return fmt.Errorf("target %q: output is required", t.Name)
		}
		if names[t.Name] {
			return fmt.Errorf("target %q: duplicate name", t.Name)
		}
		names[t.Name] = true
		if outputs[t.Output] {
			return fmt.Errorf("target %q: duplicate output path %q", t.Name, t.Output)
		}
		outputs[t.Output] = true
	}

	return nil
}
