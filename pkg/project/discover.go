package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/systemstart/stepwise/pkg/api"
)

var ErrBuildFileNotFound = errors.New("build file not found")

// FindBuildFile looks for stepwise.yaml in start and then in its parents, up
// to maxDepth levels above start. A maxDepth of -1 means up to the filesystem
// root. 0 means only start itself.
func FindBuildFile(start string, maxDepth int) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("resolving start directory: %w", err)
	}

	for depth := 0; maxDepth < 0 || depth <= maxDepth; depth++ {
		candidate := filepath.Join(dir, api.DefaultBuildFile)
		info, err := os.Stat(candidate)
		switch {
		case err == nil && info.Mode().IsRegular():
			return candidate, nil
		case err != nil && !errors.Is(err, os.ErrNotExist):
			return "", fmt.Errorf("checking %s: %w", candidate, err)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("%w: no %s in %s or its parents", ErrBuildFileNotFound, api.DefaultBuildFile, start)
}
