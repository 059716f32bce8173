package api

import "time"

const (
	DefaultBuildFile   = "stepwise.yaml"
	DefaultFileInclude = "**/*"

	// SourceDirKeyword makes a command run in the build file's directory
	// instead of the output directory.
	SourceDirKeyword = "@source"

	StepTypeTemplate = "template"
	StepTypeGenerate = "generate"
	StepTypeCommand  = "command"
	StepTypeCopy     = "copy"
)

// BuildFile is the stepwise.yaml configuration format.
type BuildFile struct {
	// Output is the output directory, relative to the build file. It is
	// ignored when Targets is set.
	Output  string         `yaml:"output"`
	Context map[string]any `yaml:"context"`
	Steps   []StepConfig   `yaml:"steps"`
	Targets []TargetConfig `yaml:"targets,omitempty"`

	// Set by the loader, not from YAML.
	Dir      string `yaml:"-"`
	FilePath string `yaml:"-"`
}

// TargetConfig builds the same steps into another output directory with
// extra context.
type TargetConfig struct {
	Name    string         `yaml:"name"`
	Output  string         `yaml:"output"`
	Context map[string]any `yaml:"context,omitempty"`
}

// StepConfig defines a single build step.
type StepConfig struct {
	Name      string            `yaml:"name"`
	Type      string            `yaml:"type"`
	DependsOn []string          `yaml:"dependsOn,omitempty"`
	Inputs    []string          `yaml:"inputs,omitempty"`
	Env       map[string]string `yaml:"env,omitempty"`

	Template *TemplateConfig `yaml:"template,omitempty"`
	Generate *GenerateConfig `yaml:"generate,omitempty"`
	Command  *CommandConfig  `yaml:"command,omitempty"`
	Copy     *CopyConfig     `yaml:"copy,omitempty"`
}

// FileFilter defines include/exclude glob patterns.
type FileFilter struct {
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
}

// TemplateConfig configures the template step.
type TemplateConfig struct {
	Files FileFilter `yaml:"files"`
	// Strip is removed from the end of rendered file names, e.g. ".tmpl".
	Strip string `yaml:"strip,omitempty"`
}

// GenerateConfig configures the generate step.
type GenerateConfig struct {
	Output   string `yaml:"output"`
	Template string `yaml:"template"`
}

// CommandConfig configures the command step.
type CommandConfig struct {
	Run []string `yaml:"run"`
	Dir string   `yaml:"dir,omitempty"`
	// Timeout stops the command after the given duration, e.g. "60s".
	// Zero means no limit.
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// CopyConfig configures the copy step.
type CopyConfig struct {
	Files FileFilter `yaml:"files"`
	To    string     `yaml:"to,omitempty"`
}

// SourceFiles returns the include/exclude globs over the source directory
// that a step reads by itself, beside its declared inputs.
func (s StepConfig) SourceFiles() FileFilter {
	switch {
	case s.Template != nil:
		return s.Template.Files
	case s.Copy != nil:
		return s.Copy.Files
	default:
		return FileFilter{}
	}
}
