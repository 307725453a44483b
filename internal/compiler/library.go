package compiler

import (
	"fmt"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/rulecql/internal/elm"
	"github.com/roach88/rulecql/internal/modeling"
	"github.com/roach88/rulecql/internal/terminology"
)

const (
	// DefaultContext is the evaluation context of every definition.
	DefaultContext = "Patient"

	// CriteriaDefinition names the top-level composite of a library.
	CriteriaDefinition = "MeetsCriteria"

	// DefaultLibraryVersion is used when neither rule nor assembler set one.
	DefaultLibraryVersion = "1.0.0"

	// DefaultModelVersion is the FHIR version declared by the using clause.
	DefaultModelVersion = "4.0.1"

	maxLabelLength = 100
	maxNameLength  = 64
)

// Assembler turns closed definitions into a library.
//
// Thread-safety: Assembler is safe for concurrent use; the sequential
// fallback counter is shared by every library it names. Callers that need
// fallback names in a fixed order take them with LibraryName before
// compiling concurrently.
type Assembler struct {
	mu           sync.Mutex
	next         int
	version      string
	modelVersion string
}

// AssemblerOption configures an Assembler.
type AssemblerOption func(*Assembler)

// WithLibraryVersion sets the version of libraries whose rule has none.
func WithLibraryVersion(v string) AssemblerOption {
	return func(a *Assembler) {
		if v != "" {
			a.version = v
		}
	}
}

// WithModelVersion sets the FHIR version of the using clause.
func WithModelVersion(v string) AssemblerOption {
	return func(a *Assembler) {
		if v != "" {
			a.modelVersion = v
		}
	}
}

// NewAssembler creates an assembler.
func NewAssembler(opts ...AssemblerOption) *Assembler {
	a := &Assembler{version: DefaultLibraryVersion, modelVersion: DefaultModelVersion}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// LibraryName derives a library identifier from a rule label.
//
// Labels containing '=' or longer than 100 characters get a sequential name
// (RuleLibrary1, RuleLibrary2, ...). Otherwise diacritics are stripped,
// characters outside [A-Za-z0-9_] become '_', runs of '_' collapse, the
// result is trimmed of '_', prefixed with "R_" when it starts with a digit
// and truncated to 64 characters.
func (a *Assembler) LibraryName(label string) string {
	if strings.Contains(label, "=") || utf8.RuneCountInString(label) > maxLabelLength {
		return a.sequentialName()
	}
	name := sanitizeName(label)
	if name == "" {
		return a.sequentialName()
	}
	return name
}

func (a *Assembler) sequentialName() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.next++
	return fmt.Sprintf("RuleLibrary%d", a.next)
}

func sanitizeName(label string) string {
	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(stripMarks, label)
	if err != nil {
		folded = label
	}

	var b strings.Builder
	underscore := false
	for _, r := range folded {
		valid := r < utf8.RuneSelf && (unicode.IsLetter(r) || unicode.IsDigit(r))
		if valid {
			b.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore {
			b.WriteByte('_')
			underscore = true
		}
	}

	name := strings.Trim(b.String(), "_")
	if name != "" && name[0] >= '0' && name[0] <= '9' {
		name = "R_" + name
	}
	if len(name) > maxNameLength {
		name = strings.TrimRight(name[:maxNameLength], "_")
	}
	return name
}

// Assembly is the input of Assemble.
type Assembly struct {
	Label       string
	Name        string // library identifier; LibraryName(Label) when empty
	Version     string
	Definitions []elm.ExpressionDef
	References  []ReferenceEntry // left on the reference stack, in push order
	Terminology *terminology.Registry
	Builder     *modeling.Builder
}

// Assemble builds the library: using FHIR, include FHIRHelpers, the
// terminology declarations, the Patient context definition, the
// definitions in close order, and MeetsCriteria over the top-level
// references.
func (a *Assembler) Assemble(in Assembly) (*elm.Library, error) {
	version := in.Version
	if version == "" {
		version = a.version
	}

	name := in.Name
	if name == "" {
		name = a.LibraryName(in.Label)
	}

	lib := &elm.Library{
		Identifier: elm.VersionedIdentifier{ID: name, Version: version},
		Usings: []elm.UsingDef{
			{LocalIdentifier: "FHIR", URI: elm.FHIRNamespace, Version: a.modelVersion},
		},
		Includes: []elm.IncludeDef{
			{LocalIdentifier: "FHIRHelpers", Path: "FHIRHelpers", Version: a.modelVersion},
		},
		Contexts: []string{DefaultContext},
	}

	patients, err := in.Builder.Retrieve("Patient")
	if err != nil {
		return nil, wrapError(ErrModelResolution, err, "context %s", DefaultContext)
	}
	lib.Statements = append(lib.Statements, elm.ExpressionDef{
		Name:       modeling.ContextDefinition,
		Context:    DefaultContext,
		Expression: &elm.Unary{Operator: elm.OpSingletonFrom, Operand: patients},
	})

	reserved := map[string]bool{modeling.ContextDefinition: true, CriteriaDefinition: true}
	for _, def := range in.Definitions {
		if reserved[def.Name] {
			return nil, newError(ErrDuplicateScope, "definition name %q is reserved", def.Name)
		}
		lib.Statements = append(lib.Statements, def)
	}

	if criteria := foldReferences(in.References); criteria != nil {
		lib.Statements = append(lib.Statements, elm.ExpressionDef{
			Name:       CriteriaDefinition,
			Context:    DefaultContext,
			Expression: criteria,
		})
	}

	// Terminology is applied last: the context retrieve and every
	// definition have been built by now.
	in.Terminology.Apply(lib)
	return lib, nil
}

// foldReferences folds references in LIFO order, like a scope close.
func foldReferences(refs []ReferenceEntry) elm.Expression {
	if len(refs) == 0 {
		return nil
	}
	last := refs[len(refs)-1]
	var body elm.Expression = &elm.ExpressionRef{Name: last.Target}
	for i := len(refs) - 2; i >= 0; i-- {
		conj := refs[i].Conjunction
		if conj == elm.ConjunctionNone {
			conj = elm.ConjunctionAnd
		}
		body = &elm.BinaryBoolean{Operator: conj, Left: body, Right: &elm.ExpressionRef{Name: refs[i].Target}}
	}
	return body
}
