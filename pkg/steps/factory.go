package steps

import (
	"fmt"

	"github.com/systemstart/stepwise/pkg/api"
)

// NewStep creates a Step implementation from a StepConfig.
func NewStep(cfg api.StepConfig) (Step, error) {
	switch cfg.Type {
	case api.StepTypeTemplate:
		return NewTemplateStep(cfg.Name, cfg.Template), nil
	case api.StepTypeGenerate:
		return NewGenerateStep(cfg.Name, cfg.Generate), nil
	case api.StepTypeCommand:
		return NewCommandStep(cfg.Name, cfg.Command), nil
	case api.StepTypeCopy:
		return NewCopyStep(cfg.Name, cfg.Copy), nil
	default:
		return nil, fmt.Errorf("unknown step type: %s", cfg.Type)
	}
}
