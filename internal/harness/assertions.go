package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/rulecql/internal/compiler"
	"github.com/roach88/rulecql/internal/elm"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type       string   // Assertion type for categorization
	Expected   string   // Human-readable expected outcome
	Actual     string   // Human-readable actual outcome
	Statements []string // Statement names of the library, for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Statements) > 0 {
		fmt.Fprintf(&buf, "\nStatements:\n")
		for i, name := range e.Statements {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, name)
		}
	}

	return buf.String()
}

func statementNames(lib *elm.Library) []string {
	names := make([]string, len(lib.Statements))
	for i, def := range lib.Statements {
		names[i] = def.Name
	}
	return names
}

// assertDefinitionOrder checks the full statement list, in order.
func assertDefinitionOrder(lib *elm.Library, assertion Assertion) error {
	names := statementNames(lib)
	if slices.Equal(names, assertion.Names) {
		return nil
	}
	return &AssertionError{
		Type:       AssertDefinitionOrder,
		Expected:   fmt.Sprintf("%q", assertion.Names),
		Actual:     fmt.Sprintf("%q", names),
		Statements: names,
	}
}

// assertDefinitionExists checks that a statement with the given name exists.
func assertDefinitionExists(lib *elm.Library, assertion Assertion) error {
	if _, ok := lib.Statement(assertion.Name); ok {
		return nil
	}
	return &AssertionError{
		Type:       AssertDefinitionExists,
		Expected:   fmt.Sprintf("statement %q", assertion.Name),
		Actual:     "not found",
		Statements: statementNames(lib),
	}
}

// assertDiagnosticCount checks how many diagnostics carry a code.
func assertDiagnosticCount(diags []compiler.Diagnostic, assertion Assertion) error {
	count := 0
	for _, d := range diags {
		if string(d.Code) == assertion.Code {
			count++
		}
	}
	if count == assertion.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertDiagnosticCount,
		Expected: fmt.Sprintf("%d %s diagnostics", assertion.Count, assertion.Code),
		Actual:   fmt.Sprintf("%d", count),
	}
}

// assertValueSets checks the declared value-set names, in order.
func assertValueSets(lib *elm.Library, assertion Assertion) error {
	names := make([]string, len(lib.ValueSets))
	for i, vs := range lib.ValueSets {
		names[i] = vs.Name
	}
	if slices.Equal(names, assertion.Names) {
		return nil
	}
	return &AssertionError{
		Type:     AssertValueSets,
		Expected: fmt.Sprintf("%q", assertion.Names),
		Actual:   fmt.Sprintf("%q", names),
	}
}

// assertLibraryValid checks elm.Validate reports no warnings.
func assertLibraryValid(lib *elm.Library) error {
	v := elm.Validate(lib)
	if v.Valid {
		return nil
	}
	return &AssertionError{
		Type:       AssertLibraryValid,
		Expected:   "no structural warnings",
		Actual:     strings.Join(v.Warnings, "; "),
		Statements: statementNames(lib),
	}
}

// assertCompileError checks that compilation failed with the given code.
func assertCompileError(err error, assertion Assertion) error {
	if err == nil {
		return &AssertionError{
			Type:     AssertCompileError,
			Expected: fmt.Sprintf("compile error %s", assertion.Code),
			Actual:   "compilation succeeded",
		}
	}
	if code := compiler.CodeOf(err); code != assertion.Code {
		return &AssertionError{
			Type:     AssertCompileError,
			Expected: fmt.Sprintf("compile error %s", assertion.Code),
			Actual:   err.Error(),
		}
	}
	return nil
}

// EvaluateAssertions checks every assertion against result and returns the
// failure messages. An empty slice means every assertion held.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		if assertion.Type == AssertCompileError {
			err = assertCompileError(result.Err, assertion)
		} else if result.Compilation == nil {
			err = fmt.Errorf("assertion[%d]: %s requires a library, compilation failed: %v", i, assertion.Type, result.Err)
		} else {
			lib := result.Compilation.Library
			switch assertion.Type {
			case AssertDefinitionOrder:
				err = assertDefinitionOrder(lib, assertion)
			case AssertDefinitionExists:
				err = assertDefinitionExists(lib, assertion)
			case AssertDiagnosticCount:
				err = assertDiagnosticCount(result.Compilation.Diagnostics, assertion)
			case AssertValueSets:
				err = assertValueSets(lib, assertion)
			case AssertLibraryValid:
				err = assertLibraryValid(lib)
			default:
				err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
			}
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
