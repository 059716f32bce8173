package steps

import "context"

// StepContext provides the runtime context for a step.
type StepContext struct {
	// SourceDir holds the build file and the files steps read.
	SourceDir string
	// OutputDir receives everything steps produce.
	OutputDir    string
	TemplateData map[string]any
	Env          map[string]string
	// Excludes lists glob patterns, relative to SourceDir, of files written
	// by builds, such as the output directories of other targets.
	Excludes []string
}

// Step is the interface all build steps implement.
type Step interface {
	Name() string
	Run(ctx context.Context, sc StepContext) error
}
