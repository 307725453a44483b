// Package modelinfo resolves element types of the target data model.
//
// Model information is declared in CUE (fhir.cue, embedded) and loaded with the
// CUE Go API. The resulting Model is immutable and safe to share between
// concurrent compilations; Bind attaches a per-compilation value-set source to
// produce an elm.TypeResolver.
package modelinfo

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/rulecql/internal/elm"
)

//go:embed fhir.cue
var fhirCUE []byte

// Model is a loaded model description.
type Model struct {
	Name    string
	URL     string
	Version string

	types      map[string]map[string]string // type -> element -> type spec
	primitives map[string]string            // primitive -> system type
}

// LoadFHIR loads the embedded FHIR R4 model info.
func LoadFHIR() (*Model, error) {
	return Parse(fhirCUE, "fhir.cue")
}

// Parse compiles CUE model info source into a Model.
func Parse(src []byte, filename string) (*Model, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile model info: %w", err)
	}

	m := &Model{
		types:      make(map[string]map[string]string),
		primitives: make(map[string]string),
	}

	var err error
	if m.Name, err = lookupString(v, "model.name"); err != nil {
		return nil, err
	}
	if m.URL, err = lookupString(v, "model.url"); err != nil {
		return nil, err
	}
	if m.Version, err = lookupString(v, "model.version"); err != nil {
		return nil, err
	}

	if m.primitives, err = stringFields(v.LookupPath(cue.ParsePath("primitives"))); err != nil {
		return nil, fmt.Errorf("primitives: %w", err)
	}

	typesVal := v.LookupPath(cue.ParsePath("types"))
	if !typesVal.Exists() {
		return nil, fmt.Errorf("model info declares no types")
	}
	iter, err := typesVal.Fields()
	if err != nil {
		return nil, fmt.Errorf("types: %w", err)
	}
	for iter.Next() {
		elements, err := stringFields(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("type %s: %w", iter.Label(), err)
		}
		m.types[iter.Label()] = elements
	}

	return m, nil
}

func lookupString(v cue.Value, path string) (string, error) {
	f := v.LookupPath(cue.ParsePath(path))
	if !f.Exists() {
		return "", fmt.Errorf("model info: %s is required", path)
	}
	s, err := f.String()
	if err != nil {
		return "", fmt.Errorf("model info: %s: %w", path, err)
	}
	return s, nil
}

func stringFields(v cue.Value) (map[string]string, error) {
	out := make(map[string]string)
	if !v.Exists() {
		return out, nil
	}
	iter, err := v.Fields()
	if err != nil {
		return nil, err
	}
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", iter.Label(), err)
		}
		out[iter.Label()] = s
	}
	return out, nil
}

// TypeNames returns the declared complex type names, sorted.
func (m *Model) TypeNames() []string {
	names := make([]string, 0, len(m.types))
	for name := range m.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// typeSpec is a parsed element type: T, List<T> or Choice<A,B>.
type typeSpec struct {
	name    string
	list    bool
	choices []string
}

func parseTypeSpec(s string) typeSpec {
	s = strings.TrimSpace(s)
	if inner, ok := unwrap(s, "List"); ok {
		spec := parseTypeSpec(inner)
		spec.list = true
		return spec
	}
	if inner, ok := unwrap(s, "Choice"); ok {
		parts := strings.Split(inner, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return typeSpec{name: "Choice", choices: parts}
	}
	return typeSpec{name: s}
}

func unwrap(s, generic string) (string, bool) {
	prefix := generic + "<"
	if strings.HasPrefix(s, prefix) && strings.HasSuffix(s, ">") {
		return s[len(prefix) : len(s)-1], true
	}
	return "", false
}

// element looks up an element on a complex or primitive type.
func (m *Model) element(typeName, element string) (string, bool) {
	if elems, ok := m.types[typeName]; ok {
		spec, ok := elems[element]
		return spec, ok
	}
	if sys, ok := m.primitives[typeName]; ok && element == "value" {
		return "System." + sys, true
	}
	return "", false
}

// ResolvePath walks a dotted path from typeName and returns the element type.
// Choice elements are navigated through whichever member declares the next
// segment; repetition anywhere along the path makes the result a list.
func (m *Model) ResolvePath(typeName, path string) (elm.TypeDescriptor, error) {
	if _, ok := m.types[typeName]; !ok {
		if _, ok := m.primitives[typeName]; !ok {
			return elm.TypeDescriptor{}, fmt.Errorf("unknown type %q", typeName)
		}
	}
	if path == "" {
		return m.descriptor(typeSpec{name: typeName}), nil
	}

	cur := typeSpec{name: typeName}
	list := false
	for _, seg := range strings.Split(path, ".") {
		candidates := cur.choices
		if len(candidates) == 0 {
			candidates = []string{cur.name}
		}

		found := false
		for _, candidate := range candidates {
			spec, ok := m.element(candidate, seg)
			if !ok {
				continue
			}
			cur = parseTypeSpec(spec)
			found = true
			break
		}
		if !found {
			return elm.TypeDescriptor{}, fmt.Errorf("unknown element %q in path %q of %s", seg, path, typeName)
		}
		list = list || cur.list
	}

	desc := m.descriptor(cur)
	desc.List = list
	return desc, nil
}

func (m *Model) descriptor(spec typeSpec) elm.TypeDescriptor {
	if sys, ok := strings.CutPrefix(spec.name, "System."); ok {
		return elm.TypeDescriptor{Namespace: elm.TypesNamespace, Name: sys, List: spec.list}
	}
	return elm.TypeDescriptor{
		Namespace: m.URL,
		Name:      spec.name,
		List:      spec.list,
		Choices:   spec.choices,
	}
}

// systemTypes are the system types ResolveTypeName accepts in the System namespace.
var systemTypes = map[string]bool{
	"Any": true, "Boolean": true, "Code": true, "Concept": true, "Date": true,
	"DateTime": true, "Decimal": true, "Integer": true, "Quantity": true,
	"String": true, "Time": true,
}

// ResolveTypeName returns the descriptor of a named type. namespace is the
// model name ("FHIR"), the model URL, or "System".
func (m *Model) ResolveTypeName(namespace, name string) (elm.TypeDescriptor, error) {
	switch namespace {
	case "System", elm.TypesNamespace:
		if !systemTypes[name] {
			return elm.TypeDescriptor{}, fmt.Errorf("unknown system type %q", name)
		}
		return elm.TypeDescriptor{Namespace: elm.TypesNamespace, Name: name}, nil
	case m.Name, m.URL:
		_, isComplex := m.types[name]
		_, isPrimitive := m.primitives[name]
		if !isComplex && !isPrimitive {
			return elm.TypeDescriptor{}, fmt.Errorf("unknown %s type %q", m.Name, name)
		}
		return elm.TypeDescriptor{Namespace: m.URL, Name: name}, nil
	default:
		return elm.TypeDescriptor{}, fmt.Errorf("unknown model namespace %q", namespace)
	}
}

// ValueSetSource declares value sets for one library.
type ValueSetSource interface {
	ValueSet(url, display string) *elm.ValueSetRef
}

// Bind returns a TypeResolver that answers model questions from m and
// declares value sets in src.
func (m *Model) Bind(src ValueSetSource) elm.TypeResolver {
	return &boundResolver{Model: m, valueSets: src}
}

type boundResolver struct {
	*Model
	valueSets ValueSetSource
}

func (r *boundResolver) ResolveValueSetReference(url, display string) (elm.Expression, error) {
	if url == "" {
		return nil, fmt.Errorf("value set %q has no URL", display)
	}
	return r.valueSets.ValueSet(url, display), nil
}
