package steps

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/systemstart/stepwise/pkg/api"
)

func TestTemplateStep_Run(t *testing.T) {
	sc := newStepContext(t, map[string]any{"domain": "example.com"})
	writeTestFile(t, sc.SourceDir, "test.yaml", "host: {{ .domain }}")

	step := NewTemplateStep("render", &api.TemplateConfig{
		Files: api.FileFilter{Include: []string{"**/*.yaml"}},
	})

	if err := step.Run(context.Background(), sc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := readOutput(t, sc, "test.yaml"); got != "host: example.com" {
		t.Fatalf("expected 'host: example.com', got %q", got)
	}

	source, _ := os.ReadFile(filepath.Join(sc.SourceDir, "test.yaml"))
	if string(source) != "host: {{ .domain }}" {
		t.Fatalf("source file must stay untouched, got %q", string(source))
	}
}

func TestTemplateStep_DefaultInclude(t *testing.T) {
	sc := newStepContext(t, map[string]any{"x": "42"})
	writeTestFile(t, sc.SourceDir, "a.yaml", "v: {{ .x }}")
	writeTestFile(t, sc.SourceDir, "sub/b.yaml", "w: {{ .x }}")

	step := NewTemplateStep("render", &api.TemplateConfig{})

	if err := step.Run(context.Background(), sc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, f := range []string{"a.yaml", "sub/b.yaml"} {
		if got := readOutput(t, sc, f); !strings.Contains(got, "42") {
			t.Fatalf("file %s not rendered: %q", f, got)
		}
	}
}

func TestTemplateStep_ExcludeAndStrip(t *testing.T) {
	sc := newStepContext(t, map[string]any{"x": "done"})
	writeTestFile(t, sc.SourceDir, "config.ini.tmpl", "v={{ .x }}")
	writeTestFile(t, sc.SourceDir, "skip.tmpl", "v={{ .x }}")

	step := NewTemplateStep("render", &api.TemplateConfig{
		Files: api.FileFilter{
			Include: []string{"*.tmpl"},
			Exclude: []string{"skip.tmpl"},
		},
		Strip: ".tmpl",
	})

	if err := step.Run(context.Background(), sc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := readOutput(t, sc, "config.ini"); got != "v=done" {
		t.Fatalf("config.ini not rendered: %q", got)
	}
	if _, err := os.Stat(filepath.Join(sc.OutputDir, "skip")); !os.IsNotExist(err) {
		t.Fatalf("excluded file should not be rendered, stat err: %v", err)
	}
}

func TestTemplateStep_SprigFunctions(t *testing.T) {
	sc := newStepContext(t, map[string]any{})
	writeTestFile(t, sc.SourceDir, "test.yaml", `v: {{ "hello" | upper }}`)

	step := NewTemplateStep("render", &api.TemplateConfig{
		Files: api.FileFilter{Include: []string{"*.yaml"}},
	})

	if err := step.Run(context.Background(), sc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := readOutput(t, sc, "test.yaml"); got != "v: HELLO" {
		t.Fatalf("expected 'v: HELLO', got %q", got)
	}
}

func TestTemplateStep_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"invalid syntax", "v: {{ .unclosed", "parsing template"},
		{"execution failure", `{{ fail "boom" }}`, "executing template"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := newStepContext(t, map[string]any{})
			writeTestFile(t, sc.SourceDir, "bad.yaml", tt.content)

			step := NewTemplateStep("render", &api.TemplateConfig{
				Files: api.FileFilter{Include: []string{"*.yaml"}},
			})

			err := step.Run(context.Background(), sc)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestTemplateStep_NoMatchingFiles(t *testing.T) {
	sc := newStepContext(t, map[string]any{})
	writeTestFile(t, sc.SourceDir, "test.txt", "plain text")

	step := NewTemplateStep("render", &api.TemplateConfig{
		Files: api.FileFilter{Include: []string{"*.yaml"}},
	})

	// No error, just zero files processed
	if err := step.Run(context.Background(), sc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTemplateStep_CancelledContext(t *testing.T) {
	sc := newStepContext(t, map[string]any{})
	writeTestFile(t, sc.SourceDir, "a.yaml", "v: 1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewTemplateStep("render", &api.TemplateConfig{}).Run(ctx, sc)
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
