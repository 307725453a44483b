// Package terminology tracks the code systems, codes and value sets a compiled
// library declares, and hands out reusable references to them.
package terminology

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/roach88/rulecql/internal/elm"
)

// DefaultValueSetURLTemplate builds a value-set URL from a slugified display name.
const DefaultValueSetURLTemplate = "http://example.org/fhir/ValueSet/%s"

// CodeSystem is a named code system.
type CodeSystem struct {
	Name string
	URL  string
}

// Well-known FHIR code systems referenced by the modeling table.
var (
	ConditionCategory   = CodeSystem{Name: "ConditionCategoryCodes", URL: "http://terminology.hl7.org/CodeSystem/condition-category"}
	ConditionClinical   = CodeSystem{Name: "ConditionClinicalStatusCodes", URL: "http://terminology.hl7.org/CodeSystem/condition-clinical"}
	ObservationCategory = CodeSystem{Name: "ObservationCategoryCodes", URL: "http://terminology.hl7.org/CodeSystem/observation-category"}
	AllergyClinical     = CodeSystem{Name: "AllergyIntoleranceClinicalStatusCodes", URL: "http://terminology.hl7.org/CodeSystem/allergyintolerance-clinical"}
	ObservationStatus   = CodeSystem{Name: "ObservationStatus", URL: "http://hl7.org/fhir/observation-status"}
	EventStatus         = CodeSystem{Name: "EventStatus", URL: "http://hl7.org/fhir/event-status"}
)

// Code is a single code within a system. Name is the library-level
// definition name and defaults to Display.
type Code struct {
	System  CodeSystem
	Code    string
	Display string
	Name    string
}

// DefName returns the name of the CodeDef declared for c.
func (c Code) DefName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Display
}

// Codes used by the modeling table and the compiler.
var (
	ProblemListItem      = Code{System: ConditionCategory, Code: "problem-list-item", Display: "Problem List Item"}
	ActiveCondition      = Code{System: ConditionClinical, Code: "active", Display: "Active"}
	RecurrenceCondition  = Code{System: ConditionClinical, Code: "recurrence", Display: "Recurrence"}
	RelapseCondition     = Code{System: ConditionClinical, Code: "relapse", Display: "Relapse"}
	LaboratoryCategory   = Code{System: ObservationCategory, Code: "laboratory", Display: "Laboratory"}
	VitalSignsCategory   = Code{System: ObservationCategory, Code: "vital-signs", Display: "Vital Signs"}
	ActiveAllergy        = Code{System: AllergyClinical, Code: "active", Display: "Active", Name: "Allergy Active"}
	FinalObservation     = Code{System: ObservationStatus, Code: "final", Display: "Final"}
	AmendedObservation   = Code{System: ObservationStatus, Code: "amended", Display: "Amended"}
	CorrectedObservation = Code{System: ObservationStatus, Code: "corrected", Display: "Corrected"}
	CompletedEvent       = Code{System: EventStatus, Code: "completed", Display: "Completed"}
)

// codeNames holds the CodeDef names of the codes above. Value sets never take
// one of these names, whether or not the code is declared yet.
var codeNames = func() map[string]bool {
	names := make(map[string]bool)
	for _, c := range []Code{
		ProblemListItem, ActiveCondition, RecurrenceCondition, RelapseCondition,
		LaboratoryCategory, VitalSignsCategory, ActiveAllergy,
		FinalObservation, AmendedObservation, CorrectedObservation, CompletedEvent,
	} {
		names[c.DefName()] = true
	}
	return names
}()

// Registry collects terminology declarations for one library.
//
// Registry is not safe for concurrent use; each compilation session owns one.
type Registry struct {
	urlTemplate string
	mapped      map[string]string

	systems   []elm.CodeSystemDef
	codes     []elm.CodeDef
	valueSets []elm.ValueSetDef

	systemNames map[string]bool
	codeRefs    map[string]*elm.CodeRef
	valueSetIDs map[string]*elm.ValueSetRef
	setNames    map[string]bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithURLTemplate sets the fmt template used for unmapped value-set displays.
// The template receives one %s: the slugified display name.
func WithURLTemplate(template string) Option {
	return func(r *Registry) {
		if template != "" {
			r.urlTemplate = template
		}
	}
}

// WithValueSetMap sets explicit display -> URL mappings.
func WithValueSetMap(m map[string]string) Option {
	return func(r *Registry) {
		for display, url := range m {
			r.mapped[normalizeDisplay(display)] = url
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		urlTemplate: DefaultValueSetURLTemplate,
		mapped:      make(map[string]string),
		systemNames: make(map[string]bool),
		codeRefs:    make(map[string]*elm.CodeRef),
		valueSetIDs: make(map[string]*elm.ValueSetRef),
		setNames:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reference declares c (and its code system) and returns a shared CodeRef.
// Callers must not mutate the returned node.
func (r *Registry) Reference(c Code) *elm.CodeRef {
	name := c.DefName()
	if ref, ok := r.codeRefs[name]; ok {
		return ref
	}

	if !r.systemNames[c.System.Name] {
		r.systemNames[c.System.Name] = true
		r.systems = append(r.systems, elm.CodeSystemDef{Name: c.System.Name, ID: c.System.URL})
	}
	r.codes = append(r.codes, elm.CodeDef{
		Name:       name,
		ID:         c.Code,
		Display:    c.Display,
		CodeSystem: c.System.Name,
	})

	ref := &elm.CodeRef{Name: name}
	r.codeRefs[name] = ref
	return ref
}

// ValueSetURL returns the URL for a value-set display name. mapped is false
// when no explicit mapping exists and the URL was built from the template.
func (r *Registry) ValueSetURL(display string) (url string, mapped bool) {
	if url, ok := r.mapped[normalizeDisplay(display)]; ok {
		return url, true
	}
	return fmt.Sprintf(r.urlTemplate, Slug(display)), false
}

// ValueSet declares the value set at url and returns a shared ValueSetRef.
// The same url always yields the same reference.
func (r *Registry) ValueSet(url, display string) *elm.ValueSetRef {
	if ref, ok := r.valueSetIDs[url]; ok {
		return ref
	}

	name := strings.TrimSpace(display)
	if name == "" {
		name = Slug(url)
	}
	base := name
	for i := 2; r.nameTaken(name); i++ {
		name = fmt.Sprintf("%s (%d)", base, i)
	}
	r.setNames[name] = true
	r.valueSets = append(r.valueSets, elm.ValueSetDef{Name: name, ID: url})

	ref := &elm.ValueSetRef{Name: name}
	r.valueSetIDs[url] = ref
	return ref
}

func (r *Registry) nameTaken(name string) bool {
	return r.setNames[name] || r.codeRefs[name] != nil || codeNames[name]
}

// Apply copies the collected declarations into lib, in declaration order.
func (r *Registry) Apply(lib *elm.Library) {
	lib.CodeSystems = append(lib.CodeSystems, r.systems...)
	lib.Codes = append(lib.Codes, r.codes...)
	lib.ValueSets = append(lib.ValueSets, r.valueSets...)
}

// Slug converts a display name into a URL path segment: lower case, with
// runs of characters outside [a-z0-9] collapsed to a single '-'.
func Slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range foldCase(strings.TrimSpace(s)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

func normalizeDisplay(s string) string {
	return foldCase(strings.TrimSpace(s))
}

// foldCase lower-cases s. A Caser is stateful, so one is built per call.
func foldCase(s string) string {
	return cases.Lower(language.Und).String(s)
}

// valueSetMapFile is the on-disk format of a value-set mapping file.
type valueSetMapFile struct {
	ValueSets []struct {
		Display string `yaml:"display"`
		URL     string `yaml:"url"`
	} `yaml:"valuesets"`
}

// LoadValueSetMap reads a YAML file of display -> URL mappings:
//
//	valuesets:
//	  - display: Diabetes
//	    url: http://cts.nlm.nih.gov/fhir/ValueSet/2.16.840.1.113883.3.464.1003.103.12.1001
//
// Unknown fields are rejected.
func LoadValueSetMap(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read value set map: %w", err)
	}
	defer f.Close()

	var file valueSetMapFile
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse value set map: %w", err)
	}

	out := make(map[string]string, len(file.ValueSets))
	for i, vs := range file.ValueSets {
		if vs.Display == "" || vs.URL == "" {
			return nil, fmt.Errorf("value set map entry %d: display and url are required", i)
		}
		out[vs.Display] = vs.URL
	}
	return out, nil
}
