package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/rulecql/internal/compiler"
	"github.com/roach88/rulecql/internal/elm"
)

// marshalLibrary converts a library to canonical JSON TEXT for storage.
// The stored text hashes to the same value as the in-memory library.
func marshalLibrary(lib *elm.Library) (string, error) {
	data, err := elm.MarshalCanonical(lib)
	if err != nil {
		return "", fmt.Errorf("marshal library: %w", err)
	}
	return string(data), nil
}

// marshalDiagnostics converts diagnostics to canonical JSON TEXT.
// A nil slice is stored as [].
func marshalDiagnostics(diags []compiler.Diagnostic) (string, error) {
	tree := make([]any, len(diags))
	for i, d := range diags {
		m := map[string]any{
			"code":    string(d.Code),
			"message": d.Message,
		}
		if d.Predicate != "" {
			m["predicate"] = d.Predicate
		}
		if d.Scope != "" {
			m["scope"] = d.Scope
		}
		tree[i] = m
	}
	data, err := elm.MarshalCanonical(tree)
	if err != nil {
		return "", fmt.Errorf("marshal diagnostics: %w", err)
	}
	return string(data), nil
}

// unmarshalDiagnostics parses stored diagnostics. Returns an empty slice,
// not nil, for an empty column.
func unmarshalDiagnostics(data string) ([]compiler.Diagnostic, error) {
	diags := []compiler.Diagnostic{}
	if data == "" || data == "[]" {
		return diags, nil
	}
	if err := json.Unmarshal([]byte(data), &diags); err != nil {
		return nil, fmt.Errorf("unmarshal diagnostics: %w", err)
	}
	return diags, nil
}
