package rulegraph

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadRule reads and parses a rule YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or fails structural validation.
func LoadRule(path string) (*Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule file: %w", err)
	}
	rule, err := ParseRule(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rule, nil
}

// ParseRule parses rule YAML with strict field validation.
func ParseRule(data []byte) (*Rule, error) {
	var rule Rule
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&rule); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateRule(&rule); err != nil {
		return nil, fmt.Errorf("invalid rule: %w", err)
	}
	return &rule, nil
}

// validateRule checks that required fields are present and node ids are unique.
func validateRule(r *Rule) error {
	if r.Label == "" {
		return fmt.Errorf("label is required")
	}
	if r.Root == nil {
		return fmt.Errorf("root is required")
	}
	seen := make(map[string]bool)
	var err error
	Walk(r.Root, func(n *Node) bool {
		if err != nil {
			return false
		}
		err = validateNode(n, seen)
		return err == nil
	})
	return err
}

// validateNode checks one node; Walk reaches its children.
func validateNode(n *Node, seen map[string]bool) error {
	if n.ID == "" {
		return fmt.Errorf("node id is required")
	}
	if seen[n.ID] {
		return fmt.Errorf("duplicate node id %q", n.ID)
	}
	seen[n.ID] = true

	if n.IsCompound() {
		if len(n.Parts) > 0 {
			return fmt.Errorf("node %s: compound nodes cannot have parts", n.ID)
		}
		for i, child := range n.Children {
			if child == nil {
				return fmt.Errorf("node %s: child %d is null", n.ID, i)
			}
		}
		return nil
	}

	if len(n.Parts) == 0 {
		return fmt.Errorf("node %s: predicate has no parts", n.ID)
	}
	for i, p := range n.Parts {
		if p.Kind == KindModelElement && p.Concept == nil {
			return fmt.Errorf("node %s part %d: modelElement requires concept", n.ID, i)
		}
	}
	return nil
}

// Walk visits nodes depth-first in document order. Walk stops descending
// into a node when fn returns false.
func Walk(n *Node, fn func(*Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, child := range n.Children {
		Walk(child, fn)
	}
}
