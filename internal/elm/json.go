package elm

import (
	"encoding/json"
	"fmt"
)

// MarshalExpression marshals an expression to ELM-flavoured JSON.
// NOTE: This is NOT canonical marshaling. Use MarshalCanonical for hashing.
func MarshalExpression(e Expression) ([]byte, error) {
	m, err := ExpressionMap(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

// ExpressionMap converts an expression tree into nested maps and slices
// suitable for JSON encoding. Absent optional fields are omitted.
func ExpressionMap(e Expression) (map[string]any, error) {
	if e == nil {
		return nil, fmt.Errorf("nil expression")
	}

	switch n := e.(type) {
	case *Literal:
		return node("Literal", "valueType", n.ValueType, "value", n.Value), nil

	case *Null:
		m := node("Null")
		setString(m, "resultTypeName", n.ResultTypeName)
		return m, nil

	case *Quantity:
		return node("Quantity", "value", n.Value, "unit", n.Unit), nil

	case *Property:
		m := node("Property", "path", n.Path)
		setString(m, "scope", n.Scope)
		setString(m, "resultTypeName", n.ResultTypeName)
		if n.Source != nil {
			src, err := ExpressionMap(n.Source)
			if err != nil {
				return nil, fmt.Errorf("Property.source: %w", err)
			}
			m["source"] = src
		}
		return m, nil

	case *Retrieve:
		m := node("Retrieve", "dataType", n.DataType)
		setString(m, "templateId", n.TemplateID)
		setString(m, "codeProperty", n.CodeProperty)
		if n.Codes != nil {
			codes, err := ExpressionMap(n.Codes)
			if err != nil {
				return nil, fmt.Errorf("Retrieve.codes: %w", err)
			}
			m["codes"] = codes
		}
		return m, nil

	case *Query:
		return queryMap(n)

	case *Union:
		return operands("Union", n.Left, n.Right)

	case *Flatten:
		return unary("Flatten", "operand", n.Operand)

	case *FunctionRef:
		m := node("FunctionRef", "name", n.Name)
		setString(m, "libraryName", n.LibraryName)
		ops, err := operandList(n.Operand)
		if err != nil {
			return nil, fmt.Errorf("FunctionRef %s: %w", n.Name, err)
		}
		m["operand"] = ops
		return m, nil

	case *BinaryBoolean:
		if n.Operator != ConjunctionAnd && n.Operator != ConjunctionOr {
			return nil, fmt.Errorf("invalid conjunction %q", n.Operator)
		}
		return operands(string(n.Operator), n.Left, n.Right)

	case *Not:
		return unary("Not", "operand", n.Operand)

	case *Binary:
		return operands(string(n.Operator), n.Left, n.Right)

	case *Unary:
		key := "operand"
		switch n.Operator {
		case OpFirst, OpLast, OpCount:
			key = "source"
		}
		return unary(string(n.Operator), key, n.Operand)

	case *Split:
		s, err := ExpressionMap(n.StringToSplit)
		if err != nil {
			return nil, fmt.Errorf("Split.stringToSplit: %w", err)
		}
		sep, err := ExpressionMap(n.Separator)
		if err != nil {
			return nil, fmt.Errorf("Split.separator: %w", err)
		}
		return node("Split", "stringToSplit", s, "separator", sep), nil

	case *As:
		m, err := unary("As", "operand", n.Operand)
		if err != nil {
			return nil, err
		}
		m["asType"] = n.AsType
		m["strict"] = n.Strict
		return m, nil

	case *List:
		elems, err := operandList(n.Elements)
		if err != nil {
			return nil, fmt.Errorf("List: %w", err)
		}
		return node("List", "element", elems), nil

	case *CodeRef:
		return refMap("CodeRef", n.Name, n.LibraryName), nil

	case *ValueSetRef:
		return refMap("ValueSetRef", n.Name, n.LibraryName), nil

	case *ExpressionRef:
		return refMap("ExpressionRef", n.Name, n.LibraryName), nil

	case *AliasRef:
		return node("AliasRef", "name", n.Name), nil

	case *QueryLetRef:
		return node("QueryLetRef", "name", n.Name), nil

	default:
		return nil, fmt.Errorf("unsupported expression type: %T", e)
	}
}

func queryMap(q *Query) (map[string]any, error) {
	m := node("Query")

	sources := make([]any, len(q.Source))
	for i, src := range q.Source {
		expr, err := ExpressionMap(src.Expression)
		if err != nil {
			return nil, fmt.Errorf("Query.source[%d]: %w", i, err)
		}
		sources[i] = map[string]any{"alias": src.Alias, "expression": expr}
	}
	m["source"] = sources

	if len(q.Let) > 0 {
		lets := make([]any, len(q.Let))
		for i, let := range q.Let {
			expr, err := ExpressionMap(let.Expression)
			if err != nil {
				return nil, fmt.Errorf("Query.let[%d]: %w", i, err)
			}
			lets[i] = map[string]any{"identifier": let.Identifier, "expression": expr}
		}
		m["let"] = lets
	}

	if q.Where != nil {
		where, err := ExpressionMap(q.Where)
		if err != nil {
			return nil, fmt.Errorf("Query.where: %w", err)
		}
		m["where"] = where
	}

	if q.Return != nil {
		ret, err := ExpressionMap(q.Return.Expression)
		if err != nil {
			return nil, fmt.Errorf("Query.return: %w", err)
		}
		m["return"] = map[string]any{"distinct": q.Return.Distinct, "expression": ret}
	}

	return m, nil
}

func node(typ string, kv ...any) map[string]any {
	m := map[string]any{"type": typ}
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i].(string)] = kv[i+1]
	}
	return m
}

func setString(m map[string]any, key, value string) {
	if value != "" {
		m[key] = value
	}
}

func refMap(typ, name, library string) map[string]any {
	m := node(typ, "name", name)
	setString(m, "libraryName", library)
	return m
}

func unary(typ, key string, operand Expression) (map[string]any, error) {
	op, err := ExpressionMap(operand)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", typ, key, err)
	}
	return node(typ, key, op), nil
}

func operands(typ string, left, right Expression) (map[string]any, error) {
	l, err := ExpressionMap(left)
	if err != nil {
		return nil, fmt.Errorf("%s.operand[0]: %w", typ, err)
	}
	r, err := ExpressionMap(right)
	if err != nil {
		return nil, fmt.Errorf("%s.operand[1]: %w", typ, err)
	}
	return node(typ, "operand", []any{l, r}), nil
}

func operandList(exprs []Expression) ([]any, error) {
	out := make([]any, len(exprs))
	for i, e := range exprs {
		m, err := ExpressionMap(e)
		if err != nil {
			return nil, fmt.Errorf("operand[%d]: %w", i, err)
		}
		out[i] = m
	}
	return out, nil
}

// LibraryMap converts a library into nested maps and slices.
func LibraryMap(l *Library) (map[string]any, error) {
	ident := map[string]any{"id": l.Identifier.ID}
	setString(ident, "version", l.Identifier.Version)

	m := map[string]any{"identifier": ident}

	if len(l.Usings) > 0 {
		usings := make([]any, len(l.Usings))
		for i, u := range l.Usings {
			um := map[string]any{"localIdentifier": u.LocalIdentifier, "uri": u.URI}
			setString(um, "version", u.Version)
			usings[i] = um
		}
		m["usings"] = usings
	}
	if len(l.Includes) > 0 {
		includes := make([]any, len(l.Includes))
		for i, inc := range l.Includes {
			im := map[string]any{"localIdentifier": inc.LocalIdentifier, "path": inc.Path}
			setString(im, "version", inc.Version)
			includes[i] = im
		}
		m["includes"] = includes
	}
	if len(l.CodeSystems) > 0 {
		systems := make([]any, len(l.CodeSystems))
		for i, cs := range l.CodeSystems {
			systems[i] = map[string]any{"name": cs.Name, "id": cs.ID}
		}
		m["codeSystems"] = systems
	}
	if len(l.Codes) > 0 {
		codes := make([]any, len(l.Codes))
		for i, c := range l.Codes {
			cm := map[string]any{"name": c.Name, "id": c.ID, "codeSystem": c.CodeSystem}
			setString(cm, "display", c.Display)
			codes[i] = cm
		}
		m["codes"] = codes
	}
	if len(l.ValueSets) > 0 {
		sets := make([]any, len(l.ValueSets))
		for i, vs := range l.ValueSets {
			sets[i] = map[string]any{"name": vs.Name, "id": vs.ID}
		}
		m["valueSets"] = sets
	}
	if len(l.Contexts) > 0 {
		contexts := make([]any, len(l.Contexts))
		for i, c := range l.Contexts {
			contexts[i] = map[string]any{"name": c}
		}
		m["contexts"] = contexts
	}

	statements := make([]any, len(l.Statements))
	for i, def := range l.Statements {
		expr, err := ExpressionMap(def.Expression)
		if err != nil {
			return nil, fmt.Errorf("statement %q: %w", def.Name, err)
		}
		statements[i] = map[string]any{
			"name":       def.Name,
			"context":    def.Context,
			"expression": expr,
		}
	}
	m["statements"] = statements

	return m, nil
}

// MarshalJSON implements json.Marshaler for Library.
func (l *Library) MarshalJSON() ([]byte, error) {
	m, err := LibraryMap(l)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{"library": m})
}
