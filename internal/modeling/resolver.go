package modeling

import (
	"fmt"
	"sort"

	"github.com/roach88/rulecql/internal/elm"
	"github.com/roach88/rulecql/internal/rulegraph"
	"github.com/roach88/rulecql/internal/terminology"
)

// builderFunc builds the IR fragment for one concept.
type builderFunc func(*Builder) (elm.Expression, error)

var (
	conditionStatuses   = []terminology.Code{terminology.ActiveCondition, terminology.RecurrenceCondition, terminology.RelapseCondition}
	observationStatuses = []terminology.Code{terminology.FinalObservation, terminology.AmendedObservation, terminology.CorrectedObservation}
)

// concepts is the dispatch table: template -> concept path -> builder.
var concepts = map[string]map[string]builderFunc{
	"Patient": {
		"Age": func(b *Builder) (elm.Expression, error) {
			return b.Age()
		},
		"Gender": func(b *Builder) (elm.Expression, error) {
			return b.PropertyOf(&elm.ExpressionRef{Name: ContextDefinition}, "Patient", "gender")
		},
	},
	"Condition": {
		"Code": func(b *Builder) (elm.Expression, error) {
			return b.FilteredProjection("Condition", "C", "category", terminology.ProblemListItem, "code")
		},
		"ClinicalStatus": func(b *Builder) (elm.Expression, error) {
			return b.StatusFilteredProjection("Condition", "C", "clinicalStatus", conditionStatuses, "clinicalStatus", "")
		},
		"OnsetDate": func(b *Builder) (elm.Expression, error) {
			return b.StatusFilteredProjection("Condition", "C", "clinicalStatus", conditionStatuses, "onset", "dateTime")
		},
	},
	"Observation": {
		"Code": func(b *Builder) (elm.Expression, error) {
			return b.FilteredProjection("Observation", "O", "category", terminology.LaboratoryCategory, "code")
		},
		"Value": func(b *Builder) (elm.Expression, error) {
			return b.StatusFilteredProjection("Observation", "O", "status", observationStatuses, "value", "Quantity")
		},
		"EffectiveDate": func(b *Builder) (elm.Expression, error) {
			return b.StatusFilteredProjection("Observation", "O", "status", observationStatuses, "effective", "dateTime")
		},
	},
	"VitalSign": {
		"Value": func(b *Builder) (elm.Expression, error) {
			return b.FilteredProjection("Observation", "O", "category", terminology.VitalSignsCategory, "value")
		},
	},
	"MedicationRequest": {
		"Medication": func(b *Builder) (elm.Expression, error) {
			return b.ReferenceUnion("MedicationRequest", "M", "medication", "medication", "Medication", "code", false)
		},
		"ReasonCode": func(b *Builder) (elm.Expression, error) {
			return b.ReferenceUnion("MedicationRequest", "M", "reasonCode", "reasonReference", "Condition", "code", false)
		},
	},
	"MedicationStatement": {
		"Medication": func(b *Builder) (elm.Expression, error) {
			return b.ReferenceUnion("MedicationStatement", "M", "medication", "medication", "Medication", "code", false)
		},
		"ReasonCode": func(b *Builder) (elm.Expression, error) {
			return b.ReferenceUnion("MedicationStatement", "M", "reasonCode", "reasonReference", "Condition", "code", true)
		},
	},
	"Encounter": {
		"ReasonCode": func(b *Builder) (elm.Expression, error) {
			return b.ReferenceUnion("Encounter", "E", "reasonCode", "reasonReference", "Condition", "code", true)
		},
	},
	"Procedure": {
		"Code": func(b *Builder) (elm.Expression, error) {
			return b.StatusFilteredProjection("Procedure", "P", "status", []terminology.Code{terminology.CompletedEvent}, "code", "")
		},
	},
	"AllergyIntolerance": {
		"Code": func(b *Builder) (elm.Expression, error) {
			return b.StatusFilteredProjection("AllergyIntolerance", "A", "clinicalStatus", []terminology.Code{terminology.ActiveAllergy}, "code", "")
		},
	},
}

// Keys returns every concept key the dispatch table handles, sorted by
// template then path.
func Keys() []rulegraph.ConceptKey {
	var keys []rulegraph.ConceptKey
	for template, paths := range concepts {
		for path := range paths {
			keys = append(keys, rulegraph.ConceptKey{Template: template, Path: path})
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Template != keys[j].Template {
			return keys[i].Template < keys[j].Template
		}
		return keys[i].Path < keys[j].Path
	})
	return keys
}

// Resolver maps concept keys to IR fragments.
//
// Every call builds a fresh tree; the caller owns the result.
type Resolver struct {
	builder *Builder
}

// NewResolver creates a resolver building through b.
func NewResolver(b *Builder) *Resolver {
	return &Resolver{builder: b}
}

// Builder returns the builder the resolver constructs nodes with.
func (r *Resolver) Builder() *Builder {
	return r.builder
}

// Resolve returns the IR fragment for key. Unknown templates and paths
// fail with a *ConceptError.
func (r *Resolver) Resolve(key rulegraph.ConceptKey) (elm.Expression, error) {
	paths, ok := concepts[key.Template]
	if !ok {
		return nil, &ConceptError{Key: key, Reason: "no such template"}
	}
	build, ok := paths[key.Path]
	if !ok {
		return nil, &ConceptError{Key: key, Reason: "no such concept path"}
	}
	e, err := build(r.builder)
	if err != nil {
		return nil, &ConceptError{Key: key, Reason: "model resolution failed", Err: err}
	}
	return e, nil
}

// ResolveCountQuery compares an aggregate node against limit:
//
//	op(node, limit)
func (r *Resolver) ResolveCountQuery(node, limit elm.Expression, op elm.BinaryOperator) (elm.Expression, error) {
	if node == nil {
		return nil, fmt.Errorf("count query: missing aggregate")
	}
	if limit == nil {
		return nil, fmt.Errorf("count query: missing limit")
	}
	if op == "" {
		return nil, fmt.Errorf("count query: missing operator")
	}
	return &elm.Binary{Operator: op, Left: node, Right: limit}, nil
}
