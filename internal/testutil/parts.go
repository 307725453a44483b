// Package testutil provides builders for rule graphs and deterministic
// collaborators used across package tests.
package testutil

import (
	"strconv"

	"github.com/roach88/rulecql/internal/rulegraph"
)

// Number is a numeric data-input part.
func Number(v float64) rulegraph.Part {
	return rulegraph.Part{
		Kind:         rulegraph.KindDataInput,
		DataClass:    rulegraph.ClassNumeric,
		Text:         strconv.FormatFloat(v, 'f', -1, 64),
		NumericValue: &v,
	}
}

// Quantity is a quantity data-input part whose text carries the unit.
func Quantity(text string, v float64) rulegraph.Part {
	return rulegraph.Part{
		Kind:         rulegraph.KindDataInput,
		DataClass:    rulegraph.ClassQuantity,
		Text:         text,
		NumericValue: &v,
	}
}

// String is a string data-input part.
func String(s string) rulegraph.Part {
	return rulegraph.Part{Kind: rulegraph.KindDataInput, DataClass: rulegraph.ClassString, Text: s}
}

// Bool is a boolean data-input part.
func Bool(v bool) rulegraph.Part {
	return rulegraph.Part{Kind: rulegraph.KindDataInput, DataClass: rulegraph.ClassBoolean, Text: strconv.FormatBool(v)}
}

// Text is a free-text part.
func Text(s string) rulegraph.Part {
	return rulegraph.Part{Kind: rulegraph.KindText, Text: s}
}

// Concept is a model-element part naming a concept key.
func Concept(template, path string) rulegraph.Part {
	return rulegraph.Part{
		Kind:    rulegraph.KindModelElement,
		Concept: &rulegraph.ConceptKey{Template: template, Path: path},
	}
}

// Function is a function part; it opens or closes an aggregate.
func Function(name string) rulegraph.Part {
	return rulegraph.Part{Kind: rulegraph.KindFunction, Text: name}
}

// Term is a terminology lookup part.
func Term(code, display string) rulegraph.Part {
	return rulegraph.Part{
		Kind: rulegraph.KindDataInput,
		Code: &rulegraph.TerminologyCode{Code: code, Display: display},
	}
}

// Leaf is a predicate node.
func Leaf(id, operator string, parts ...rulegraph.Part) *rulegraph.Node {
	return &rulegraph.Node{ID: id, Operator: operator, Parts: parts}
}

// Group is a compound node named by text.
func Group(id, text, conjunction string, children ...*rulegraph.Node) *rulegraph.Node {
	return &rulegraph.Node{ID: id, Text: text, Conjunction: conjunction, Children: children}
}
