// Package modeling maps clinical concept keys onto retrieval and query
// fragments of the logic IR.
//
// Builder constructs individual IR nodes with model-resolved result types.
// Resolver holds the fixed dispatch table from (template, path) to one of the
// four query shapes the compiler knows how to emit.
package modeling

import (
	"fmt"
	"strconv"

	"github.com/roach88/rulecql/internal/elm"
	"github.com/roach88/rulecql/internal/terminology"
)

// ModelName is the namespace passed to the type resolver for model types.
const ModelName = "FHIR"

// profileBase prefixes resource names to form retrieve template ids.
const profileBase = "http://hl7.org/fhir/StructureDefinition/"

// ContextDefinition names the definition that yields the context patient.
const ContextDefinition = "Patient"

// Builder constructs IR nodes. It is owned by a single compilation session.
type Builder struct {
	types elm.TypeResolver
	terms *terminology.Registry
}

// NewBuilder creates a builder resolving types through types and declaring
// codes in terms.
func NewBuilder(types elm.TypeResolver, terms *terminology.Registry) *Builder {
	return &Builder{types: types, terms: terms}
}

// Integer returns an Integer literal.
func (b *Builder) Integer(n int64) *elm.Literal {
	return &elm.Literal{ValueType: elm.SystemType("Integer"), Value: strconv.FormatInt(n, 10)}
}

// Decimal returns a Decimal literal.
func (b *Builder) Decimal(v float64) *elm.Literal {
	return &elm.Literal{ValueType: elm.SystemType("Decimal"), Value: strconv.FormatFloat(v, 'f', -1, 64)}
}

// Number returns an Integer literal for whole values and a Decimal otherwise.
func (b *Builder) Number(v float64) *elm.Literal {
	if v == float64(int64(v)) {
		return b.Integer(int64(v))
	}
	return b.Decimal(v)
}

// String returns a String literal.
func (b *Builder) String(s string) *elm.Literal {
	return &elm.Literal{ValueType: elm.SystemType("String"), Value: s}
}

// Boolean returns a Boolean literal.
func (b *Builder) Boolean(v bool) *elm.Literal {
	return &elm.Literal{ValueType: elm.SystemType("Boolean"), Value: strconv.FormatBool(v)}
}

// Null returns a null typed as the named system type; "" leaves it untyped.
func (b *Builder) Null(systemType string) *elm.Null {
	if systemType == "" {
		return &elm.Null{}
	}
	return &elm.Null{ResultTypeName: elm.SystemType(systemType)}
}

// Quantity returns a quantity literal.
func (b *Builder) Quantity(value float64, unit string) *elm.Quantity {
	return &elm.Quantity{Value: value, Unit: unit}
}

// Code returns a shared reference to c, declaring it in the library.
func (b *Builder) Code(c terminology.Code) *elm.CodeRef {
	return b.terms.Reference(c)
}

// ValueSet resolves a value-set reference through the type resolver.
func (b *Builder) ValueSet(url, display string) (elm.Expression, error) {
	return b.types.ResolveValueSetReference(url, display)
}

// Property returns a scoped property access on a value of type typeName.
// The result type is resolved from the model; choice and list results are
// left untyped.
func (b *Builder) Property(typeName, path, scope string) (*elm.Property, error) {
	resultType, err := b.resultType(typeName, path)
	if err != nil {
		return nil, err
	}
	return &elm.Property{Path: path, Scope: scope, ResultTypeName: resultType}, nil
}

// PropertyOf returns a property access navigating off source.
func (b *Builder) PropertyOf(source elm.Expression, typeName, path string) (*elm.Property, error) {
	resultType, err := b.resultType(typeName, path)
	if err != nil {
		return nil, err
	}
	return &elm.Property{Path: path, Source: source, ResultTypeName: resultType}, nil
}

func (b *Builder) resultType(typeName, path string) (string, error) {
	desc, err := b.types.ResolvePath(typeName, path)
	if err != nil {
		return "", fmt.Errorf("resolve %s.%s: %w", typeName, path, err)
	}
	if desc.List || desc.IsChoice() {
		return "", nil
	}
	return desc.QualifiedName(), nil
}

// TypeName returns the qualified name of a model type.
func (b *Builder) TypeName(name string) (string, error) {
	desc, err := b.types.ResolveTypeName(ModelName, name)
	if err != nil {
		return "", err
	}
	return desc.QualifiedName(), nil
}

// Retrieve returns an unfiltered retrieve of resource.
func (b *Builder) Retrieve(resource string) (*elm.Retrieve, error) {
	dataType, err := b.TypeName(resource)
	if err != nil {
		return nil, err
	}
	return &elm.Retrieve{DataType: dataType, TemplateID: profileBase + resource}, nil
}

// FilteredRetrieve returns a retrieve of resource filtered by codeProperty in codes.
func (b *Builder) FilteredRetrieve(resource, codeProperty string, codes elm.Expression) (*elm.Retrieve, error) {
	r, err := b.Retrieve(resource)
	if err != nil {
		return nil, err
	}
	if _, err := b.types.ResolvePath(resource, codeProperty); err != nil {
		return nil, fmt.Errorf("resolve %s.%s: %w", resource, codeProperty, err)
	}
	r.CodeProperty = codeProperty
	r.Codes = codes
	return r, nil
}

// Cast wraps e in a non-strict As to the named model type.
func (b *Builder) Cast(e elm.Expression, typeName string) (*elm.As, error) {
	asType, err := b.TypeName(typeName)
	if err != nil {
		return nil, err
	}
	return &elm.As{Operand: e, AsType: asType}, nil
}

// FilteredProjection builds
//
//	from [resource: codePath in code] alias return alias.field
func (b *Builder) FilteredProjection(resource, alias, codePath string, code terminology.Code, field string) (*elm.Query, error) {
	source, err := b.FilteredRetrieve(resource, codePath, b.Code(code))
	if err != nil {
		return nil, err
	}
	ret, err := b.Property(resource, field, alias)
	if err != nil {
		return nil, err
	}
	return &elm.Query{
		Source: []elm.AliasedQuerySource{{Alias: alias, Expression: source}},
		Return: &elm.ReturnClause{Expression: ret},
	}, nil
}

// statusAlias is the alias bound to each candidate code in a membership test.
const statusAlias = "S"

// Membership builds an inline list-membership test of value against codes:
//
//	not IsNull(First(from ({codes}) S where S ~ value return S))
func (b *Builder) Membership(value elm.Expression, codes []terminology.Code) elm.Expression {
	elements := make([]elm.Expression, len(codes))
	for i, c := range codes {
		elements[i] = b.Code(c)
	}
	match := &elm.Query{
		Source: []elm.AliasedQuerySource{{Alias: statusAlias, Expression: &elm.List{Elements: elements}}},
		Where: &elm.Binary{
			Operator: elm.OpEquivalent,
			Left:     &elm.AliasRef{Name: statusAlias},
			Right:    value,
		},
		Return: &elm.ReturnClause{Expression: &elm.AliasRef{Name: statusAlias}},
	}
	return &elm.Not{Operand: &elm.Unary{Operator: elm.OpIsNull, Operand: b.First(match)}}
}

// StatusFilteredProjection builds
//
//	from [resource] alias where <alias.statusPath in statuses> return alias.field
//
// The returned field is cast to castType when castType is not empty.
func (b *Builder) StatusFilteredProjection(resource, alias, statusPath string, statuses []terminology.Code, field, castType string) (*elm.Query, error) {
	source, err := b.Retrieve(resource)
	if err != nil {
		return nil, err
	}
	status, err := b.Property(resource, statusPath, alias)
	if err != nil {
		return nil, err
	}
	prop, err := b.Property(resource, field, alias)
	if err != nil {
		return nil, err
	}

	var ret elm.Expression = prop
	if castType != "" {
		if ret, err = b.Cast(prop, castType); err != nil {
			return nil, err
		}
	}

	return &elm.Query{
		Source: []elm.AliasedQuerySource{{Alias: alias, Expression: source}},
		Where:  b.Membership(status, statuses),
		Return: &elm.ReturnClause{Expression: ret},
	}, nil
}

// letIdentifier names the let clause that binds the referenced resource.
const letIdentifier = "R"

// elementAlias names one element of a list-valued reference field.
const elementAlias = "Ref"

// referenceSeparator splits a literal reference ("Medication/123") into type and id.
const referenceSeparator = "/"

// ReferenceUnion builds the union of a directly coded field and a field
// reached by following a reference:
//
//	(from [resource] alias return alias.directField)
//	union
//	(from [resource] alias
//	   let R: [target: id in Last(Split(alias.referenceField.reference, '/'))]
//	   return R.targetField)
//
// A list-valued reference field is iterated as a second source, so each
// element is split on its own:
//
//	(from [resource] alias, alias.referenceField Ref
//	   let R: [target: id in Last(Split(Ref.reference, '/'))]
//	   return R.targetField)
//
// When flatten is set each side is wrapped in Flatten, for multi-valued fields.
func (b *Builder) ReferenceUnion(resource, alias, directField, referenceField, target, targetField string, flatten bool) (elm.Expression, error) {
	directSource, err := b.Retrieve(resource)
	if err != nil {
		return nil, err
	}
	direct, err := b.Property(resource, directField, alias)
	if err != nil {
		return nil, err
	}

	indirectSource, err := b.Retrieve(resource)
	if err != nil {
		return nil, err
	}
	refField, err := b.types.ResolvePath(resource, referenceField)
	if err != nil {
		return nil, fmt.Errorf("resolve %s.%s: %w", resource, referenceField, err)
	}
	sources := []elm.AliasedQuerySource{{Alias: alias, Expression: indirectSource}}
	var ref *elm.Property
	if refField.List {
		elements, err := b.Property(resource, referenceField, alias)
		if err != nil {
			return nil, err
		}
		sources = append(sources, elm.AliasedQuerySource{Alias: elementAlias, Expression: elements})
		ref, err = b.Property("Reference", "reference", elementAlias)
		if err != nil {
			return nil, err
		}
	} else {
		ref, err = b.Property(resource, referenceField+".reference", alias)
		if err != nil {
			return nil, err
		}
	}
	targetID := &elm.Unary{
		Operator: elm.OpLast,
		Operand:  &elm.Split{StringToSplit: ref, Separator: b.String(referenceSeparator)},
	}
	referenced, err := b.FilteredRetrieve(target, "id", targetID)
	if err != nil {
		return nil, err
	}
	targetProp, err := b.Property(target, targetField, letIdentifier)
	if err != nil {
		return nil, err
	}

	var left elm.Expression = &elm.Query{
		Source: []elm.AliasedQuerySource{{Alias: alias, Expression: directSource}},
		Return: &elm.ReturnClause{Expression: direct},
	}
	var right elm.Expression = &elm.Query{
		Source: sources,
		Let:    []elm.LetClause{{Identifier: letIdentifier, Expression: referenced}},
		Return: &elm.ReturnClause{Expression: targetProp},
	}
	if flatten {
		left = b.Flatten(left)
		right = b.Flatten(right)
	}
	return b.Union(left, right), nil
}

// Age returns the patient's age today: CalculateAgeAt(Patient.birthDate, Today()).
func (b *Builder) Age() (elm.Expression, error) {
	birthDate, err := b.PropertyOf(&elm.ExpressionRef{Name: ContextDefinition}, "Patient", "birthDate")
	if err != nil {
		return nil, err
	}
	return &elm.FunctionRef{
		Name:    "CalculateAgeAt",
		Operand: []elm.Expression{birthDate, &elm.FunctionRef{Name: "Today", Operand: []elm.Expression{}}},
	}, nil
}

// CountDistinct returns Count(Distinct(e)).
func (b *Builder) CountDistinct(e elm.Expression) elm.Expression {
	return &elm.Unary{Operator: elm.OpCount, Operand: &elm.Unary{Operator: elm.OpDistinct, Operand: e}}
}

// First returns First(e).
func (b *Builder) First(e elm.Expression) elm.Expression {
	return &elm.Unary{Operator: elm.OpFirst, Operand: e}
}

// Union returns left union right.
func (b *Builder) Union(left, right elm.Expression) elm.Expression {
	return &elm.Union{Left: left, Right: right}
}

// Flatten returns Flatten(e).
func (b *Builder) Flatten(e elm.Expression) elm.Expression {
	return &elm.Flatten{Operand: e}
}
