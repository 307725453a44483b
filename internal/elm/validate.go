package elm

import "fmt"

// Children returns the direct sub-expressions of e in a stable order.
func Children(e Expression) []Expression {
	switch n := e.(type) {
	case *Property:
		return nonNil(n.Source)
	case *Retrieve:
		return nonNil(n.Codes)
	case *Query:
		var out []Expression
		for _, src := range n.Source {
			out = append(out, src.Expression)
		}
		for _, let := range n.Let {
			out = append(out, let.Expression)
		}
		out = append(out, nonNil(n.Where)...)
		if n.Return != nil {
			out = append(out, n.Return.Expression)
		}
		return out
	case *Union:
		return []Expression{n.Left, n.Right}
	case *Flatten:
		return []Expression{n.Operand}
	case *FunctionRef:
		return n.Operand
	case *BinaryBoolean:
		return []Expression{n.Left, n.Right}
	case *Not:
		return []Expression{n.Operand}
	case *Binary:
		return []Expression{n.Left, n.Right}
	case *Unary:
		return []Expression{n.Operand}
	case *Split:
		return []Expression{n.StringToSplit, n.Separator}
	case *As:
		return []Expression{n.Operand}
	case *List:
		return n.Elements
	default:
		return nil
	}
}

func nonNil(e Expression) []Expression {
	if e == nil {
		return nil
	}
	return []Expression{e}
}

// Walk visits e and its descendants depth-first, pre-order. Walk stops
// descending into a node when fn returns false.
func Walk(e Expression, fn func(Expression) bool) {
	if e == nil || !fn(e) {
		return
	}
	for _, child := range Children(e) {
		Walk(child, fn)
	}
}

// ValidationResult contains structural findings for a library.
type ValidationResult struct {
	// Valid is true when no warnings were produced.
	Valid bool

	// Warnings lists structural problems. They do not prevent serialization.
	Warnings []string
}

// Validate checks a library for structural problems: nil operands,
// unknown conjunctions, dangling references, and duplicate definition names.
//
// This is not conformance validation; it only checks that the tree the
// compiler produced is internally consistent.
//
// Validate is a pure function with no side effects.
func Validate(lib *Library) ValidationResult {
	v := &validator{
		warnings:    []string{},
		expressions: make(map[string]bool),
		codes:       make(map[string]bool),
		valueSets:   make(map[string]bool),
	}

	for _, c := range lib.Codes {
		v.codes[c.Name] = true
	}
	for _, vs := range lib.ValueSets {
		v.valueSets[vs.Name] = true
	}
	for _, def := range lib.Statements {
		if v.expressions[def.Name] {
			v.addWarning("duplicate definition name %q", def.Name)
		}
		v.expressions[def.Name] = true
	}

	for _, def := range lib.Statements {
		if def.Expression == nil {
			v.addWarning("definition %q has no expression", def.Name)
			continue
		}
		v.validateExpression(def.Name, def.Expression)
	}

	return ValidationResult{
		Valid:    len(v.warnings) == 0,
		Warnings: v.warnings,
	}
}

// validator accumulates warnings during traversal.
type validator struct {
	warnings    []string
	expressions map[string]bool
	codes       map[string]bool
	valueSets   map[string]bool
}

func (v *validator) addWarning(format string, args ...any) {
	v.warnings = append(v.warnings, fmt.Sprintf(format, args...))
}

func (v *validator) validateExpression(def string, e Expression) {
	Walk(e, func(n Expression) bool {
		switch node := n.(type) {
		case *BinaryBoolean:
			if node.Operator != ConjunctionAnd && node.Operator != ConjunctionOr {
				v.addWarning("%s: invalid conjunction %q", def, node.Operator)
			}
		case *Query:
			if len(node.Source) == 0 {
				v.addWarning("%s: query without source", def)
			}
			if node.Return != nil && node.Return.Expression == nil {
				v.addWarning("%s: query return clause without expression", def)
			}
		case *ExpressionRef:
			if node.LibraryName == "" && !v.expressions[node.Name] {
				v.addWarning("%s: reference to undefined expression %q", def, node.Name)
			}
		case *CodeRef:
			if node.LibraryName == "" && !v.codes[node.Name] {
				v.addWarning("%s: reference to undefined code %q", def, node.Name)
			}
		case *ValueSetRef:
			if node.LibraryName == "" && !v.valueSets[node.Name] {
				v.addWarning("%s: reference to undefined value set %q", def, node.Name)
			}
		}
		for _, child := range Children(n) {
			if child == nil {
				v.addWarning("%s: %T has a nil operand", def, n)
			}
		}
		return true
	})
}
