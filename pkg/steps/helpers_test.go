package steps

import (
	"os"
	"path/filepath"
	"testing"
)

// writeTestFile writes content to a file in dir, creating parent directories
// and failing the test on error.
func writeTestFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

// newStepContext returns a context with fresh source and output directories.
func newStepContext(t *testing.T, data map[string]any) StepContext {
	t.Helper()
	return StepContext{
		SourceDir:    t.TempDir(),
		OutputDir:    t.TempDir(),
		TemplateData: data,
	}
}

func readOutput(t *testing.T, sc StepContext, name string) string {
	t.Helper()
	content, err := os.ReadFile(filepath.Join(sc.OutputDir, name))
	if err != nil {
		t.Fatalf("reading output %s: %v", name, err)
	}
	return string(content)
}
