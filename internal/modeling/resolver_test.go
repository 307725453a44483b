package modeling

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rulecql/internal/elm"
	"github.com/roach88/rulecql/internal/modelinfo"
	"github.com/roach88/rulecql/internal/rulegraph"
	"github.com/roach88/rulecql/internal/terminology"
)

func newResolver(t *testing.T) (*Resolver, *terminology.Registry) {
	t.Helper()
	model, err := modelinfo.LoadFHIR()
	require.NoError(t, err)
	terms := terminology.NewRegistry()
	return NewResolver(NewBuilder(model.Bind(terms), terms)), terms
}

func key(template, path string) rulegraph.ConceptKey {
	return rulegraph.ConceptKey{Template: template, Path: path}
}

func TestKeys_Complete(t *testing.T) {
	keys := Keys()
	assert.Len(t, keys, 16)
	assert.Equal(t, key("AllergyIntolerance", "Code"), keys[0])
	assert.Contains(t, keys, key("Patient", "Age"))
	assert.Contains(t, keys, key("VitalSign", "Value"))
}

func TestResolve_EveryKey(t *testing.T) {
	r, _ := newResolver(t)
	for _, k := range Keys() {
		t.Run(k.String(), func(t *testing.T) {
			e, err := r.Resolve(k)
			require.NoError(t, err)
			require.NotNil(t, e)

			_, err = elm.ExpressionMap(e)
			assert.NoError(t, err, "fragment must serialize")
		})
	}
}

func TestResolve_UnknownConcept(t *testing.T) {
	r, _ := newResolver(t)

	tests := []struct {
		name   string
		key    rulegraph.ConceptKey
		reason string
	}{
		{"unknown template", key("Immunization", "Code"), "no such template"},
		{"unknown path", key("Patient", "Height"), "no such concept path"},
		{"case sensitive template", key("patient", "Age"), "no such template"},
		{"case sensitive path", key("Patient", "age"), "no such concept path"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(tt.key)
			require.Error(t, err)
			assert.True(t, IsUnknownConcept(err))
			assert.Contains(t, err.Error(), tt.reason)
		})
	}
}

func TestResolve_FreshTrees(t *testing.T) {
	r, _ := newResolver(t)
	a, err := r.Resolve(key("Condition", "Code"))
	require.NoError(t, err)
	b, err := r.Resolve(key("Condition", "Code"))
	require.NoError(t, err)

	assert.NotSame(t, a, b)
	assert.True(t, elm.Equal(a, b))
}

func TestResolve_Age(t *testing.T) {
	r, _ := newResolver(t)
	e, err := r.Resolve(key("Patient", "Age"))
	require.NoError(t, err)

	fn, ok := e.(*elm.FunctionRef)
	require.True(t, ok, "got %T", e)
	assert.Equal(t, "CalculateAgeAt", fn.Name)
	require.Len(t, fn.Operand, 2)

	birthDate, ok := fn.Operand[0].(*elm.Property)
	require.True(t, ok)
	assert.Equal(t, "birthDate", birthDate.Path)
	assert.Equal(t, "{http://hl7.org/fhir}date", birthDate.ResultTypeName)
	assert.Equal(t, &elm.ExpressionRef{Name: "Patient"}, birthDate.Source)

	today, ok := fn.Operand[1].(*elm.FunctionRef)
	require.True(t, ok)
	assert.Equal(t, "Today", today.Name)
	assert.Empty(t, today.Operand)
}

func TestResolve_FilteredProjection(t *testing.T) {
	r, terms := newResolver(t)
	e, err := r.Resolve(key("Condition", "Code"))
	require.NoError(t, err)

	q, ok := e.(*elm.Query)
	require.True(t, ok)
	require.Len(t, q.Source, 1)
	assert.Equal(t, "C", q.Source[0].Alias)

	retrieve, ok := q.Source[0].Expression.(*elm.Retrieve)
	require.True(t, ok)
	assert.Equal(t, "{http://hl7.org/fhir}Condition", retrieve.DataType)
	assert.Equal(t, "category", retrieve.CodeProperty)
	assert.Equal(t, &elm.CodeRef{Name: "Problem List Item"}, retrieve.Codes)

	require.NotNil(t, q.Return)
	assert.Equal(t, &elm.Property{Path: "code", Scope: "C", ResultTypeName: "{http://hl7.org/fhir}CodeableConcept"}, q.Return.Expression)

	lib := &elm.Library{}
	terms.Apply(lib)
	require.Len(t, lib.Codes, 1)
	assert.Equal(t, "problem-list-item", lib.Codes[0].ID)
	assert.Equal(t, "ConditionCategoryCodes", lib.Codes[0].CodeSystem)
}

func TestResolve_StatusFilteredProjection(t *testing.T) {
	r, terms := newResolver(t)
	e, err := r.Resolve(key("Observation", "Value"))
	require.NoError(t, err)

	q, ok := e.(*elm.Query)
	require.True(t, ok)

	// not IsNull(First(from {codes} S where S ~ O.status return S))
	not, ok := q.Where.(*elm.Not)
	require.True(t, ok, "where is %T", q.Where)
	isNull, ok := not.Operand.(*elm.Unary)
	require.True(t, ok)
	assert.Equal(t, elm.OpIsNull, isNull.Operator)
	first, ok := isNull.Operand.(*elm.Unary)
	require.True(t, ok)
	assert.Equal(t, elm.OpFirst, first.Operator)

	match, ok := first.Operand.(*elm.Query)
	require.True(t, ok)
	list, ok := match.Source[0].Expression.(*elm.List)
	require.True(t, ok)
	assert.Len(t, list.Elements, 3)
	equiv, ok := match.Where.(*elm.Binary)
	require.True(t, ok)
	assert.Equal(t, elm.OpEquivalent, equiv.Operator)
	assert.Equal(t, &elm.AliasRef{Name: "S"}, equiv.Left)

	as, ok := q.Return.Expression.(*elm.As)
	require.True(t, ok)
	assert.Equal(t, "{http://hl7.org/fhir}Quantity", as.AsType)
	assert.False(t, as.Strict)

	lib := &elm.Library{}
	terms.Apply(lib)
	var names []string
	for _, c := range lib.Codes {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"Final", "Amended", "Corrected"}, names)
	require.Len(t, lib.CodeSystems, 1)
	assert.Equal(t, "http://hl7.org/fhir/observation-status", lib.CodeSystems[0].ID)
}

func TestResolve_ReferenceUnion(t *testing.T) {
	r, _ := newResolver(t)
	e, err := r.Resolve(key("MedicationRequest", "Medication"))
	require.NoError(t, err)

	u, ok := e.(*elm.Union)
	require.True(t, ok, "got %T", e)

	direct, ok := u.Left.(*elm.Query)
	require.True(t, ok)
	assert.Empty(t, direct.Let)
	assert.Equal(t, "medication", direct.Return.Expression.(*elm.Property).Path)

	indirect, ok := u.Right.(*elm.Query)
	require.True(t, ok)
	require.Len(t, indirect.Let, 1)
	assert.Equal(t, "R", indirect.Let[0].Identifier)

	target, ok := indirect.Let[0].Expression.(*elm.Retrieve)
	require.True(t, ok)
	assert.Equal(t, "{http://hl7.org/fhir}Medication", target.DataType)
	assert.Equal(t, "id", target.CodeProperty)

	last, ok := target.Codes.(*elm.Unary)
	require.True(t, ok)
	assert.Equal(t, elm.OpLast, last.Operator)
	split, ok := last.Operand.(*elm.Split)
	require.True(t, ok)
	assert.Equal(t, "medication.reference", split.StringToSplit.(*elm.Property).Path)
	assert.Equal(t, "M", split.StringToSplit.(*elm.Property).Scope)
	assert.Equal(t, "/", split.Separator.(*elm.Literal).Value)

	ret, ok := indirect.Return.Expression.(*elm.Property)
	require.True(t, ok)
	assert.Equal(t, "code", ret.Path)
	assert.Equal(t, "R", ret.Scope)
}

func TestResolve_ReferenceListUnion(t *testing.T) {
	r, _ := newResolver(t)
	e, err := r.Resolve(key("MedicationRequest", "ReasonCode"))
	require.NoError(t, err)

	u, ok := e.(*elm.Union)
	require.True(t, ok, "got %T", e)
	direct, ok := u.Left.(*elm.Query)
	require.True(t, ok)
	assert.Equal(t, "reasonCode", direct.Return.Expression.(*elm.Property).Path)

	indirect, ok := u.Right.(*elm.Query)
	require.True(t, ok)
	require.Len(t, indirect.Source, 2)
	assert.Equal(t, "M", indirect.Source[0].Alias)
	assert.IsType(t, &elm.Retrieve{}, indirect.Source[0].Expression)

	elements, ok := indirect.Source[1].Expression.(*elm.Property)
	require.True(t, ok)
	assert.Equal(t, "reasonReference", elements.Path)
	assert.Equal(t, "M", elements.Scope)

	require.Len(t, indirect.Let, 1)
	target, ok := indirect.Let[0].Expression.(*elm.Retrieve)
	require.True(t, ok)
	assert.Equal(t, "{http://hl7.org/fhir}Condition", target.DataType)
	assert.Equal(t, "id", target.CodeProperty)

	last, ok := target.Codes.(*elm.Unary)
	require.True(t, ok)
	assert.Equal(t, elm.OpLast, last.Operator)
	split, ok := last.Operand.(*elm.Split)
	require.True(t, ok)

	// The split runs on one reference string, not on the list.
	ref, ok := split.StringToSplit.(*elm.Property)
	require.True(t, ok)
	assert.Equal(t, "reference", ref.Path)
	assert.Equal(t, indirect.Source[1].Alias, ref.Scope)
	assert.Equal(t, "{http://hl7.org/fhir}string", ref.ResultTypeName)

	ret := indirect.Return.Expression.(*elm.Property)
	assert.Equal(t, "code", ret.Path)
	assert.Equal(t, "R", ret.Scope)
}

func TestResolve_FlattenedUnion(t *testing.T) {
	r, _ := newResolver(t)
	for _, k := range []rulegraph.ConceptKey{key("Encounter", "ReasonCode"), key("MedicationStatement", "ReasonCode")} {
		e, err := r.Resolve(k)
		require.NoError(t, err)

		u, ok := e.(*elm.Union)
		require.True(t, ok)
		left, ok := u.Left.(*elm.Flatten)
		require.True(t, ok, "%s: left is %T", k, u.Left)
		right, ok := u.Right.(*elm.Flatten)
		require.True(t, ok, "%s: right is %T", k, u.Right)

		assert.IsType(t, &elm.Query{}, left.Operand)
		require.IsType(t, &elm.Query{}, right.Operand)
		assert.Len(t, right.Operand.(*elm.Query).Let, 1)
	}
}

func TestResolveCountQuery(t *testing.T) {
	r, _ := newResolver(t)
	b := r.Builder()

	node := b.CountDistinct(&elm.ExpressionRef{Name: "Encounters"})
	e, err := r.ResolveCountQuery(node, b.Integer(2), elm.OpGreaterOrEqual)
	require.NoError(t, err)
	assert.Equal(t, &elm.Binary{Operator: elm.OpGreaterOrEqual, Left: node, Right: b.Integer(2)}, e)

	_, err = r.ResolveCountQuery(nil, b.Integer(2), elm.OpEqual)
	assert.Error(t, err)
	_, err = r.ResolveCountQuery(node, nil, elm.OpEqual)
	assert.Error(t, err)
	_, err = r.ResolveCountQuery(node, b.Integer(2), "")
	assert.Error(t, err)
}
