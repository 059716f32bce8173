package project

import (
	"bytes"
	"fmt"
	"maps"
	"os"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"gopkg.in/yaml.v3"
)

// LoadContextFile reads a YAML file and returns it as a map.
func LoadContextFile(filename string) (map[string]any, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading context file: %w", err)
	}

	var ctx map[string]any
	if err := yaml.Unmarshal(data, &ctx); err != nil {
		return nil, fmt.Errorf("parsing context file: %w", err)
	}

	if ctx == nil {
		ctx = make(map[string]any)
	}

	return ctx, nil
}

// MergeContext shallow-merges layers in order. Keys of later layers override
// earlier ones at the top level.
func MergeContext(layers ...map[string]any) map[string]any {
	n := 0
	for _, l := range layers {
		n += len(l)
	}
	merged := make(map[string]any, n)
	for _, l := range layers {
		maps.Copy(merged, l)
	}
	return merged
}

// InterpolateContext renders string values that contain template actions
// against the context itself, walking nested maps and lists. Rendering is a
// single pass: a value that expands to another template is not rendered again.
func InterpolateContext(ctx map[string]any) error {
	snapshot := maps.Clone(ctx)
	for k, v := range ctx {
		out, err := interpolate(k, v, snapshot)
		if err != nil {
			return err
		}
		ctx[k] = out
	}
	return nil
}

func interpolate(path string, v any, data map[string]any) (any, error) {
	switch val := v.(type) {
	case string:
		if !strings.Contains(val, "{{") {
			return val, nil
		}
		tmpl, err := template.New(path).Funcs(sprig.FuncMap()).Option("missingkey=error").Parse(val)
		if err != nil {
			return nil, fmt.Errorf("parsing context value %s: %w", path, err)
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			return nil, fmt.Errorf("rendering context value %s: %w", path, err)
		}
		return buf.String(), nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			r, err := interpolate(path+"."+k, item, data)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			r, err := interpolate(fmt.Sprintf("%s[%d]", path, i), item, data)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return v, nil
	}
}
