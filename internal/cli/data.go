package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/omniql-engine/x8ql/engine/accessor"
)

// readData loads a YAML or JSON file. Numbers come back as int64 or
// float64, the same types the parser produces for literals.
func readData(path string) (any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}
	var v any
	if err := yaml.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return normalize(v)
}

func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return accessor.DecodeJSON(data)
}

// readItems loads a file holding a list of documents.
func readItems(path string) ([]any, error) {
	v, err := readData(path)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	items, ok := accessor.Items(v)
	if !ok {
		return nil, fmt.Errorf("%s: expected a list of documents", path)
	}
	return items, nil
}

// readCollections loads a file mapping collection names to document lists.
func readCollections(path string) (map[string][]any, error) {
	v, err := readData(path)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s: expected collections keyed by name", path)
	}
	out := make(map[string][]any, len(m))
	for name, docs := range m {
		items, ok := accessor.Items(docs)
		if !ok {
			return nil, fmt.Errorf("%s: collection %s is not a list", path, name)
		}
		out[name] = items
	}
	return out, nil
}

// parseParams reads name=value pairs. Values are YAML scalars or flow
// collections, so n=3, tags=[a, b] and name="x y" all work.
func parseParams(pairs []string) (map[string]any, error) {
	params := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid param %q: expected name=value", pair)
		}
		var v any
		if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("invalid param %s: %w", name, err)
		}
		v, err := normalize(v)
		if err != nil {
			return nil, fmt.Errorf("invalid param %s: %w", name, err)
		}
		params[strings.TrimPrefix(name, "@")] = v
	}
	return params, nil
}

// toRows converts documents for row output.
func toRows(items []any) []map[string]any {
	rows := make([]map[string]any, len(items))
	for i, item := range items {
		if m, ok := item.(map[string]any); ok {
			rows[i] = m
			continue
		}
		rows[i] = map[string]any{"value": item}
	}
	return rows
}
