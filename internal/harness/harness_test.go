package harness

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rulecql/internal/compiler"
	"github.com/roach88/rulecql/internal/elm"
)

func TestRun_Scenarios(t *testing.T) {
	for _, name := range []string{"adult_patient", "adult_diabetic", "unknown_concept"} {
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario("testdata/scenarios/" + name + ".yaml")
			require.NoError(t, err)

			result, err := Run(scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, result.Errors)
		})
	}
}

func TestRun_RecordsCompilation(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/adult_diabetic.yaml")
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	require.NotNil(t, result.Compilation)

	assert.Equal(t, int64(1), result.Seq)
	assert.Equal(t, "run-adult-diabetic", result.Compilation.RunID)
	assert.Equal(t, "Adult_diabetic", result.Compilation.Library.Identifier.ID)
	assert.Equal(t, "2.1.0", result.Compilation.Library.Identifier.Version)
	assert.NoError(t, result.Err)
}

func TestRun_CompileErrorKeptOnResult(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/unknown_concept.yaml")
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.Nil(t, result.Compilation)
	require.Error(t, result.Err)
	assert.Equal(t, compiler.ErrUnknownConcept, compiler.CodeOf(result.Err))
	assert.Zero(t, result.Seq)
}

func TestRun_FailingAssertionsReported(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/adult_patient.yaml")
	require.NoError(t, err)
	scenario.Assertions = []Assertion{
		{Type: AssertDefinitionExists, Name: "Nope"},
		{Type: AssertCompileError, Code: compiler.ErrUnknownConcept},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "definition_exists")
	assert.Contains(t, result.Errors[1], "compilation succeeded")
}

func testLibrary() *elm.Library {
	return &elm.Library{
		Identifier: elm.VersionedIdentifier{ID: "L"},
		ValueSets:  []elm.ValueSetDef{{Name: "Diabetes", ID: "urn:vs:diabetes"}},
		Statements: []elm.ExpressionDef{
			{Name: "A", Context: "Patient", Expression: &elm.Literal{ValueType: elm.SystemType("Boolean"), Value: "true"}},
			{Name: "MeetsCriteria", Context: "Patient", Expression: &elm.ExpressionRef{Name: "A"}},
		},
	}
}

func TestEvaluateAssertions(t *testing.T) {
	passing := &Result{Compilation: &compiler.Result{
		Library: testLibrary(),
		Diagnostics: []compiler.Diagnostic{
			{Code: compiler.DiagOneOperand, Message: "m"},
		},
	}}

	tests := []struct {
		name      string
		result    *Result
		assertion Assertion
		wantErr   string
	}{
		{"order ok", passing, Assertion{Type: AssertDefinitionOrder, Names: []string{"A", "MeetsCriteria"}}, ""},
		{"order wrong", passing, Assertion{Type: AssertDefinitionOrder, Names: []string{"MeetsCriteria", "A"}}, "definition_order"},
		{"exists ok", passing, Assertion{Type: AssertDefinitionExists, Name: "A"}, ""},
		{"exists missing", passing, Assertion{Type: AssertDefinitionExists, Name: "B"}, `statement "B"`},
		{"count ok", passing, Assertion{Type: AssertDiagnosticCount, Code: "one-operand", Count: 1}, ""},
		{"count zero ok", passing, Assertion{Type: AssertDiagnosticCount, Code: "empty-scope"}, ""},
		{"count wrong", passing, Assertion{Type: AssertDiagnosticCount, Code: "one-operand", Count: 2}, "2 one-operand diagnostics"},
		{"value sets ok", passing, Assertion{Type: AssertValueSets, Names: []string{"Diabetes"}}, ""},
		{"value sets wrong", passing, Assertion{Type: AssertValueSets, Names: []string{"Insulin"}}, "value_sets"},
		{"valid", passing, Assertion{Type: AssertLibraryValid}, ""},
		{"unknown type", passing, Assertion{Type: "final_state"}, "unknown assertion type"},
		{
			"compile error ok",
			&Result{Err: &compiler.CompileError{Code: compiler.ErrUnknownOperator, Message: "m"}},
			Assertion{Type: AssertCompileError, Code: compiler.ErrUnknownOperator},
			"",
		},
		{
			"compile error wrong code",
			&Result{Err: &compiler.CompileError{Code: compiler.ErrUnknownOperator, Message: "m"}},
			Assertion{Type: AssertCompileError, Code: compiler.ErrUnknownConcept},
			"E203",
		},
		{
			"plain error has no code",
			&Result{Err: errors.New("boom")},
			Assertion{Type: AssertCompileError, Code: compiler.ErrUnknownConcept},
			"boom",
		},
		{
			"library assertion after failed compile",
			&Result{Err: errors.New("boom")},
			Assertion{Type: AssertLibraryValid},
			"compilation failed: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := EvaluateAssertions(tt.result, []Assertion{tt.assertion})
			if tt.wantErr == "" {
				assert.Empty(t, errs)
				return
			}
			require.Len(t, errs, 1)
			assert.Contains(t, errs[0], tt.wantErr)
		})
	}
}

func TestEvaluateAssertions_InvalidLibrary(t *testing.T) {
	lib := testLibrary()
	lib.Statements = append(lib.Statements, elm.ExpressionDef{
		Name:       "Dangling",
		Context:    "Patient",
		Expression: &elm.ExpressionRef{Name: "Missing"},
	})
	result := &Result{Compilation: &compiler.Result{Library: lib}}

	errs := EvaluateAssertions(result, []Assertion{{Type: AssertLibraryValid}})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], `undefined expression "Missing"`)
	assert.Contains(t, errs[0], "[3] Dangling")
}

func TestResult_AddError(t *testing.T) {
	r := NewResult()
	assert.True(t, r.Pass)

	r.AddError("bad %d", 1)
	assert.False(t, r.Pass)
	assert.Equal(t, []string{"bad 1"}, r.Errors)
}
