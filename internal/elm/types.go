package elm

import "fmt"

// Namespaces used to qualify type names.
const (
	TypesNamespace = "urn:hl7-org:elm-types:r1"
	FHIRNamespace  = "http://hl7.org/fhir"
)

// QName returns a qualified type name in ELM notation: {namespace}name.
func QName(namespace, name string) string {
	return fmt.Sprintf("{%s}%s", namespace, name)
}

// SystemType returns the qualified name of a system type (Integer, Decimal, ...).
func SystemType(name string) string {
	return QName(TypesNamespace, name)
}

// FHIRType returns the qualified name of a FHIR model type.
func FHIRType(name string) string {
	return QName(FHIRNamespace, name)
}

// Expression is a node of the logic-expression IR.
//
// This is a sealed interface - only types in this package implement it.
type Expression interface {
	expressionNode() // Marker method - seals interface to this package
}

// Literal is a typed system literal. Value holds the lexical form.
type Literal struct {
	ValueType string // qualified system type, e.g. {urn:hl7-org:elm-types:r1}Integer
	Value     string
}

func (*Literal) expressionNode() {}

// Null is a null literal, optionally typed.
type Null struct {
	ResultTypeName string
}

func (*Null) expressionNode() {}

// Quantity is a decimal value with a UCUM (or calendar) unit.
type Quantity struct {
	Value float64
	Unit  string
}

func (*Quantity) expressionNode() {}

// Property is a path access. Either Source is set (navigation off an
// expression) or Scope names a query alias or let identifier.
type Property struct {
	Path           string
	Scope          string
	Source         Expression
	ResultTypeName string
}

func (*Property) expressionNode() {}

// Retrieve fetches all instances of a model type, optionally filtered by
// matching CodeProperty against Codes.
//
// Semantics:
//
//	[DataType: CodeProperty in Codes]
//
// Reference following reuses the same node with CodeProperty "id" and a
// Codes expression computing the identifier.
type Retrieve struct {
	DataType     string
	TemplateID   string
	CodeProperty string
	Codes        Expression
}

func (*Retrieve) expressionNode() {}

// AliasedQuerySource binds an alias to a source expression inside a Query.
type AliasedQuerySource struct {
	Alias      string
	Expression Expression
}

// LetClause binds an identifier to an expression evaluated per source row.
type LetClause struct {
	Identifier string
	Expression Expression
}

// ReturnClause projects each row of a Query.
type ReturnClause struct {
	Distinct   bool
	Expression Expression
}

// Query is a projected query over one or more aliased sources.
//
// Semantics:
//
//	from <Source...> let <Let...> where <Where> return <Return>
//
// Where and Return are optional; a nil Return yields the source rows.
type Query struct {
	Source []AliasedQuerySource
	Let    []LetClause
	Where  Expression
	Return *ReturnClause
}

func (*Query) expressionNode() {}

// Union is the set union of two lists. Duplicates across the operands are kept
// as-is by the compiler; no deduplication is attempted.
type Union struct {
	Left  Expression
	Right Expression
}

func (*Union) expressionNode() {}

// Flatten turns a list of lists into a single-level list.
type Flatten struct {
	Operand Expression
}

func (*Flatten) expressionNode() {}

// FunctionRef invokes a named function, optionally from an included library.
type FunctionRef struct {
	LibraryName string
	Name        string
	Operand     []Expression
}

func (*FunctionRef) expressionNode() {}

// Conjunction is the boolean operator used to combine sibling predicates.
type Conjunction string

const (
	ConjunctionNone Conjunction = ""
	ConjunctionAnd  Conjunction = "And"
	ConjunctionOr   Conjunction = "Or"
)

// BinaryBoolean combines two boolean expressions with And or Or.
type BinaryBoolean struct {
	Operator Conjunction
	Left     Expression
	Right    Expression
}

func (*BinaryBoolean) expressionNode() {}

// Not negates a boolean expression.
type Not struct {
	Operand Expression
}

func (*Not) expressionNode() {}

// BinaryOperator names a two-operand comparison or membership operator.
type BinaryOperator string

const (
	OpEqual          BinaryOperator = "Equal"
	OpNotEqual       BinaryOperator = "NotEqual"
	OpEquivalent     BinaryOperator = "Equivalent"
	OpLess           BinaryOperator = "Less"
	OpLessOrEqual    BinaryOperator = "LessOrEqual"
	OpGreater        BinaryOperator = "Greater"
	OpGreaterOrEqual BinaryOperator = "GreaterOrEqual"
	OpIn             BinaryOperator = "In"
	OpContains       BinaryOperator = "Contains"
)

// Binary is a comparison or membership test between two operands.
type Binary struct {
	Operator BinaryOperator
	Left     Expression
	Right    Expression
}

func (*Binary) expressionNode() {}

// UnaryOperator names a single-operand operator.
type UnaryOperator string

const (
	OpIsNull        UnaryOperator = "IsNull"
	OpExists        UnaryOperator = "Exists"
	OpFirst         UnaryOperator = "First"
	OpLast          UnaryOperator = "Last"
	OpCount         UnaryOperator = "Count"
	OpDistinct      UnaryOperator = "Distinct"
	OpSingletonFrom UnaryOperator = "SingletonFrom"
)

// Unary applies a single-operand operator.
type Unary struct {
	Operator UnaryOperator
	Operand  Expression
}

func (*Unary) expressionNode() {}

// Split splits a string on a literal separator.
type Split struct {
	StringToSplit Expression
	Separator     Expression
}

func (*Split) expressionNode() {}

// As casts an operand to a model or system type.
type As struct {
	Operand Expression
	AsType  string
	Strict  bool
}

func (*As) expressionNode() {}

// List is an inline list selector.
type List struct {
	Elements []Expression
}

func (*List) expressionNode() {}

// CodeRef references a CodeDef of a library.
type CodeRef struct {
	Name        string
	LibraryName string
}

func (*CodeRef) expressionNode() {}

// ValueSetRef references a ValueSetDef of a library.
type ValueSetRef struct {
	Name        string
	LibraryName string
}

func (*ValueSetRef) expressionNode() {}

// ExpressionRef references a named ExpressionDef.
type ExpressionRef struct {
	Name        string
	LibraryName string
}

func (*ExpressionRef) expressionNode() {}

// AliasRef references a query source alias.
type AliasRef struct {
	Name string
}

func (*AliasRef) expressionNode() {}

// QueryLetRef references a let identifier of the enclosing query.
type QueryLetRef struct {
	Name string
}

func (*QueryLetRef) expressionNode() {}
