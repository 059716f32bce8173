package api

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LoadBuildFile reads a stepwise.yaml file, sets Dir/FilePath, and validates it.
func LoadBuildFile(filename string) (*BuildFile, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading build file: %w", err)
	}

	var b BuildFile
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parsing build file: %w", err)
	}

	absPath, err := filepath.Abs(filename)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}
	b.FilePath = absPath
	b.Dir = filepath.Dir(absPath)

	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("validating build file %s: %w", filename, err)
	}

	return &b, nil
}

// ResolvedTargets returns the targets to build. Without explicit targets the
// build file's own output is the only target, named after its directory.
// Relative output paths are made absolute against the build file directory.
// override replaces the output of the implicit target and is ignored when
// targets are declared; callers resolve it beforehand.
func (b *BuildFile) ResolvedTargets(override string) []TargetConfig {
	if len(b.Targets) == 0 {
		out := b.Output
		if override != "" {
			out = override
		}
		if out == "" {
			out = "build"
		}
		return []TargetConfig{{Name: filepath.Base(out), Output: b.abs(out)}}
	}

	targets := make([]TargetConfig, len(b.Targets))
	for i, t := range b.Targets {
		t.Output = b.abs(t.Output)
		targets[i] = t
	}
	return targets
}

func (b *BuildFile) abs(p string) string {
	if filepath.IsAbs(p) || b.Dir == "" {
		return p
	}
	return filepath.Join(b.Dir, p)
}
