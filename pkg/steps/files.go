package steps

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/systemstart/stepwise/pkg/api"
	"github.com/systemstart/stepwise/pkg/fingerprint"
)

// RelativeDir returns dir relative to sourceDir in slash form. It reports
// false when dir lies outside sourceDir.
func RelativeDir(sourceDir, dir string) (string, bool) {
	rel, err := filepath.Rel(sourceDir, dir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// OutputExcludes returns glob patterns, relative to SourceDir, of files that
// are never inputs: build state directories, the output directory when it
// lies below the source directory, and the extra Excludes of the context.
func (sc StepContext) OutputExcludes() []string {
	excludes := []string{"**/" + fingerprint.StateDirName + "/**"}
	if rel, ok := RelativeDir(sc.SourceDir, sc.OutputDir); ok && rel != "." {
		excludes = append(excludes, path.Join(rel, "**"))
	}
	return append(excludes, sc.Excludes...)
}

// selectFiles returns the regular source files matched by filter, defaulting
// to every file. Files of the output directory are never selected.
func selectFiles(sc StepContext, filter api.FileFilter) ([]string, error) {
	include := filter.Include
	if len(include) == 0 {
		include = []string{api.DefaultFileInclude}
	}
	exclude := append(slices.Clone(filter.Exclude), sc.OutputExcludes()...)
	return fingerprint.MatchFiles(os.DirFS(sc.SourceDir), include, exclude)
}

// writeOutput writes data to name below the output directory, creating parent
// directories.
func writeOutput(name string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(name), 0o750); err != nil {
		return fmt.Errorf("creating parent directories: %w", err)
	}
	if err := os.WriteFile(name, data, perm); err != nil {
		return fmt.Errorf("writing output file: %w", err)
	}
	return nil
}
