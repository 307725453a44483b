package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a compilation test scenario: one rule file and the
// assertions its compiled library must satisfy.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Rule is the path to the rule YAML file.
	// Relative paths are resolved against the scenario file's directory.
	Rule string `yaml:"rule"`

	// RunID is an optional fixed run id. Defaults to "test-run-default".
	RunID string `yaml:"run_id,omitempty"`

	// Assertions validate the compiled library.
	Assertions []Assertion `yaml:"assertions"`
}

// Assertion validates one property of a compilation.
type Assertion struct {
	// Type specifies the assertion type; see the package documentation.
	Type string `yaml:"type"`

	// Name is a statement name (definition_exists).
	Name string `yaml:"name,omitempty"`

	// Names lists statement or value-set names (definition_order, value_sets).
	Names []string `yaml:"names,omitempty"`

	// Code is a diagnostic code (diagnostic_count) or error code (compile_error).
	Code string `yaml:"code,omitempty"`

	// Count is the expected number of diagnostics (diagnostic_count).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertDefinitionOrder  = "definition_order"
	AssertDefinitionExists = "definition_exists"
	AssertDiagnosticCount  = "diagnostic_count"
	AssertCompileError     = "compile_error"
	AssertLibraryValid     = "library_valid"
	AssertValueSets        = "value_sets"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Resolve the rule path BEFORE validation
	if scenario.Rule != "" && !filepath.IsAbs(scenario.Rule) {
		scenario.Rule = filepath.Join(filepath.Dir(path), scenario.Rule)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Rule == "" {
		return fmt.Errorf("rule is required")
	}
	if _, err := os.Stat(s.Rule); os.IsNotExist(err) {
		return fmt.Errorf("rule file not found: %s", s.Rule)
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertDefinitionOrder, AssertValueSets:
		if len(a.Names) == 0 {
			return fmt.Errorf("assertions[%d]: names list is required for %s", index, a.Type)
		}
	case AssertDefinitionExists:
		if a.Name == "" {
			return fmt.Errorf("assertions[%d]: name is required for definition_exists", index)
		}
	case AssertDiagnosticCount:
		if a.Code == "" {
			return fmt.Errorf("assertions[%d]: code is required for diagnostic_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for diagnostic_count", index)
		}
	case AssertCompileError:
		if a.Code == "" {
			return fmt.Errorf("assertions[%d]: code is required for compile_error", index)
		}
	case AssertLibraryValid:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
