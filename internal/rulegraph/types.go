package rulegraph

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// PartKind classifies a predicate part.
type PartKind int

const (
	KindDataInput PartKind = iota
	KindModelElement
	KindResource
	KindText
	KindFunction
)

var partKindNames = map[PartKind]string{
	KindDataInput:    "dataInput",
	KindModelElement: "modelElement",
	KindResource:     "resource",
	KindText:         "text",
	KindFunction:     "function",
}

func (k PartKind) String() string {
	if name, ok := partKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("PartKind(%d)", int(k))
}

// ParsePartKind parses a part kind name, case-insensitively.
func ParsePartKind(s string) (PartKind, error) {
	for kind, name := range partKindNames {
		if strings.EqualFold(name, s) {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("unknown part kind %q", s)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (k *PartKind) UnmarshalYAML(value *yaml.Node) error {
	kind, err := ParsePartKind(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*k = kind
	return nil
}

// DataClass is the data class of a data-input part.
type DataClass int

const (
	ClassNone DataClass = iota
	ClassNumeric
	ClassQuantity
	ClassString
	ClassBoolean
)

var dataClassNames = map[DataClass]string{
	ClassNone:     "none",
	ClassNumeric:  "numeric",
	ClassQuantity: "quantity",
	ClassString:   "string",
	ClassBoolean:  "boolean",
}

func (c DataClass) String() string {
	if name, ok := dataClassNames[c]; ok {
		return name
	}
	return fmt.Sprintf("DataClass(%d)", int(c))
}

// ParseDataClass parses a data class name, case-insensitively. The empty
// string is ClassNone.
func ParseDataClass(s string) (DataClass, error) {
	if s == "" {
		return ClassNone, nil
	}
	for class, name := range dataClassNames {
		if strings.EqualFold(name, s) {
			return class, nil
		}
	}
	return 0, fmt.Errorf("unknown data class %q", s)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *DataClass) UnmarshalYAML(value *yaml.Node) error {
	class, err := ParseDataClass(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*c = class
	return nil
}

// ConceptKey identifies a modeled clinical concept. Keys compare exactly and
// case-sensitively; ConceptKey is comparable and usable as a map key.
type ConceptKey struct {
	Template string `yaml:"template"`
	Path     string `yaml:"path"`
}

func (k ConceptKey) String() string {
	return k.Template + "." + k.Path
}

// TerminologyCode is a code/concept lookup surfaced as a part visit.
type TerminologyCode struct {
	Code    string `yaml:"code"`
	Display string `yaml:"display"`
}

// Part is one node visited while walking a predicate.
type Part struct {
	ID           string           `yaml:"id,omitempty"`
	Kind         PartKind         `yaml:"kind"`
	DataClass    DataClass        `yaml:"dataClass,omitempty"`
	Text         string           `yaml:"text,omitempty"`
	NumericValue *float64         `yaml:"value,omitempty"`
	Unit         string           `yaml:"unit,omitempty"`
	Concept      *ConceptKey      `yaml:"concept,omitempty"`
	Operator     string           `yaml:"operator,omitempty"`
	Code         *TerminologyCode `yaml:"code,omitempty"`
}

// Node is a predicate or a compound group of predicates.
type Node struct {
	ID          string  `yaml:"id"`
	Alias       string  `yaml:"alias,omitempty"`
	Text        string  `yaml:"text,omitempty"`
	Label       string  `yaml:"label,omitempty"`
	Conjunction string  `yaml:"conjunction,omitempty"`
	Operator    string  `yaml:"operator,omitempty"`
	Parts       []Part  `yaml:"parts,omitempty"`
	Children    []*Node `yaml:"children,omitempty"`
}

// IsCompound reports whether n groups child predicates.
func (n *Node) IsCompound() bool {
	return len(n.Children) > 0
}

// Rule is one clinical decision criterion.
type Rule struct {
	Label   string `yaml:"label"`
	Version string `yaml:"version,omitempty"`
	Root    *Node  `yaml:"root"`
}
