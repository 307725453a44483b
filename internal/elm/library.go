package elm

// VersionedIdentifier names a library.
type VersionedIdentifier struct {
	ID      string `json:"id"`
	Version string `json:"version,omitempty"`
}

// UsingDef declares the data model a library is written against.
type UsingDef struct {
	LocalIdentifier string `json:"localIdentifier"`
	URI             string `json:"uri"`
	Version         string `json:"version,omitempty"`
}

// IncludeDef declares a dependency on another library.
type IncludeDef struct {
	LocalIdentifier string `json:"localIdentifier"`
	Path            string `json:"path"`
	Version         string `json:"version,omitempty"`
}

// CodeSystemDef declares a code system.
type CodeSystemDef struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// CodeDef declares a single code from a code system.
type CodeDef struct {
	Name       string `json:"name"`
	ID         string `json:"id"`
	Display    string `json:"display,omitempty"`
	CodeSystem string `json:"codeSystem"`
}

// ValueSetDef declares a value set by canonical URL.
type ValueSetDef struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// ExpressionDef is a named expression definition evaluated in a context.
type ExpressionDef struct {
	Name       string
	Context    string
	Expression Expression
}

// Library is the top-level compilation unit.
type Library struct {
	Identifier  VersionedIdentifier
	Usings      []UsingDef
	Includes    []IncludeDef
	CodeSystems []CodeSystemDef
	Codes       []CodeDef
	ValueSets   []ValueSetDef
	Contexts    []string
	Statements  []ExpressionDef
}

// Statement returns the definition with the given name.
func (l *Library) Statement(name string) (ExpressionDef, bool) {
	for _, def := range l.Statements {
		if def.Name == name {
			return def, true
		}
	}
	return ExpressionDef{}, false
}

// TypeDescriptor describes the data type of a model element.
type TypeDescriptor struct {
	Namespace string   // e.g. http://hl7.org/fhir
	Name      string   // element type name, e.g. CodeableConcept
	List      bool     // element repeats
	Choices   []string // set for choice elements, e.g. value[x]
}

// QualifiedName returns the {namespace}name form.
func (t TypeDescriptor) QualifiedName() string {
	return QName(t.Namespace, t.Name)
}

// IsChoice reports whether the element allows more than one type.
func (t TypeDescriptor) IsChoice() bool {
	return len(t.Choices) > 0
}

// TypeResolver answers model questions for the query builder.
//
// ResolvePath returns the type reached by walking a dotted path from typeName.
// ResolveTypeName returns the descriptor of a named model type.
// ResolveValueSetReference returns a reusable reference to the value set at url.
type TypeResolver interface {
	ResolvePath(typeName, path string) (TypeDescriptor, error)
	ResolveTypeName(namespace, name string) (TypeDescriptor, error)
	ResolveValueSetReference(url, display string) (Expression, error)
}
