package elm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Valid(t *testing.T) {
	lib := &Library{
		Codes:     []CodeDef{{Name: "Active", ID: "active", CodeSystem: "ClinicalStatus"}},
		ValueSets: []ValueSetDef{{Name: "Diabetes", ID: "urn:vs"}},
		Statements: []ExpressionDef{
			{Name: "A", Expression: &Binary{Operator: OpIn, Left: &AliasRef{Name: "C"}, Right: &ValueSetRef{Name: "Diabetes"}}},
			{Name: "B", Expression: &BinaryBoolean{
				Operator: ConjunctionAnd,
				Left:     &ExpressionRef{Name: "A"},
				Right:    &Binary{Operator: OpEquivalent, Left: &AliasRef{Name: "S"}, Right: &CodeRef{Name: "Active"}},
			}},
		},
	}

	result := Validate(lib)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Warnings)
}

func TestValidate_Warnings(t *testing.T) {
	tests := []struct {
		name    string
		lib     *Library
		warning string
	}{
		{
			name: "duplicate definition",
			lib: &Library{Statements: []ExpressionDef{
				{Name: "A", Expression: &Null{}},
				{Name: "A", Expression: &Null{}},
			}},
			warning: `duplicate definition name "A"`,
		},
		{
			name:    "missing expression",
			lib:     &Library{Statements: []ExpressionDef{{Name: "A"}}},
			warning: `definition "A" has no expression`,
		},
		{
			name:    "dangling expression ref",
			lib:     &Library{Statements: []ExpressionDef{{Name: "A", Expression: &ExpressionRef{Name: "Missing"}}}},
			warning: `A: reference to undefined expression "Missing"`,
		},
		{
			name:    "dangling code ref",
			lib:     &Library{Statements: []ExpressionDef{{Name: "A", Expression: &CodeRef{Name: "Active"}}}},
			warning: `A: reference to undefined code "Active"`,
		},
		{
			name:    "dangling value set ref",
			lib:     &Library{Statements: []ExpressionDef{{Name: "A", Expression: &ValueSetRef{Name: "Diabetes"}}}},
			warning: `A: reference to undefined value set "Diabetes"`,
		},
		{
			name:    "nil operand",
			lib:     &Library{Statements: []ExpressionDef{{Name: "A", Expression: &Binary{Operator: OpEqual, Left: &Null{}}}}},
			warning: "A: *elm.Binary has a nil operand",
		},
		{
			name: "invalid conjunction",
			lib: &Library{Statements: []ExpressionDef{{Name: "A", Expression: &BinaryBoolean{
				Operator: ConjunctionNone, Left: &Null{}, Right: &Null{},
			}}}},
			warning: `A: invalid conjunction ""`,
		},
		{
			name:    "query without source",
			lib:     &Library{Statements: []ExpressionDef{{Name: "A", Expression: &Query{}}}},
			warning: "A: query without source",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Validate(tt.lib)
			assert.False(t, result.Valid)
			assert.Contains(t, result.Warnings, tt.warning)
		})
	}
}

func TestValidate_ExternalReferencesAreNotChecked(t *testing.T) {
	lib := &Library{Statements: []ExpressionDef{{
		Name:       "A",
		Expression: &ExpressionRef{Name: "Elsewhere", LibraryName: "Common"},
	}}}
	assert.True(t, Validate(lib).Valid)
}

func TestWalk_PreOrder(t *testing.T) {
	tree := &BinaryBoolean{
		Operator: ConjunctionAnd,
		Left:     &Not{Operand: &ExpressionRef{Name: "A"}},
		Right:    &ExpressionRef{Name: "B"},
	}

	var seen []string
	Walk(tree, func(e Expression) bool {
		if ref, ok := e.(*ExpressionRef); ok {
			seen = append(seen, ref.Name)
		}
		return true
	})
	assert.Equal(t, []string{"A", "B"}, seen)
}

func TestWalk_StopsDescending(t *testing.T) {
	tree := &Not{Operand: &ExpressionRef{Name: "A"}}

	count := 0
	Walk(tree, func(e Expression) bool {
		count++
		return false
	})
	assert.Equal(t, 1, count)
}

func TestChildren(t *testing.T) {
	q := &Query{
		Source: []AliasedQuerySource{{Alias: "C", Expression: &Retrieve{DataType: "x"}}},
		Where:  &Null{},
		Return: &ReturnClause{Expression: &AliasRef{Name: "C"}},
	}
	require.Len(t, Children(q), 3)
	assert.Empty(t, Children(&Literal{}))
	assert.Empty(t, Children(&Property{Path: "id", Scope: "C"}))
}
