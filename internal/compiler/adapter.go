package compiler

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/roach88/rulecql/internal/elm"
	"github.com/roach88/rulecql/internal/modeling"
	"github.com/roach88/rulecql/internal/rulegraph"
	"github.com/roach88/rulecql/internal/terminology"
)

const (
	// countUnique is the only recognized aggregate function.
	countUnique = "count-unique"

	// nullSentinel is the string value standing for a typed null.
	nullSentinel = "Null"

	// activeDisplay selects the canonical active clinical-status code.
	activeDisplay = "Active"

	// ageMarker is the text part standing for the patient's age.
	ageMarker = "Age"

	// ageUnit is the unit given to plain numbers compared against an age.
	ageUnit = "years"
)

var ageKey = rulegraph.ConceptKey{Template: "Patient", Path: "Age"}

// calendarUnits maps calendar-unit codes to quantity units.
var calendarUnits = map[string]string{
	"y": "year",
	"m": "month",
	"d": "day",
}

// calendarDisplays are display names of time units. A terminology part
// with one of these displays must carry a code from calendarUnits.
var calendarDisplays = map[string]bool{
	"year": true, "years": true, "month": true, "months": true,
	"week": true, "weeks": true, "day": true, "days": true,
	"hour": true, "hours": true, "minute": true, "minutes": true,
}

// Adapter accumulates the parts of one predicate into CompilerState and
// turns the state into an expression on Finish.
//
// An Adapter is owned by one session and reused across its predicates.
type Adapter struct {
	state     CompilerState
	resolver  *modeling.Resolver
	builder   *modeling.Builder
	terms     *terminology.Registry
	stacks    *Stacks
	diags     *Diagnostics
	predicate string
}

// NewAdapter creates an adapter that pushes finished predicates onto stacks.
func NewAdapter(resolver *modeling.Resolver, terms *terminology.Registry, stacks *Stacks, diags *Diagnostics) *Adapter {
	return &Adapter{
		resolver: resolver,
		builder:  resolver.Builder(),
		terms:    terms,
		stacks:   stacks,
		diags:    diags,
	}
}

// Begin resets the state for the predicate with the given id.
func (a *Adapter) Begin(predicateID string) {
	a.state.Reset()
	a.predicate = predicateID
}

// State returns a copy of the in-flight state.
func (a *Adapter) State() CompilerState {
	return a.state
}

// Observe folds one part into the state.
func (a *Adapter) Observe(part rulegraph.Part) error {
	if part.Operator != "" {
		a.state.Operator = part.Operator
	}

	var err error
	switch {
	case part.Kind == rulegraph.KindFunction:
		err = a.observeFunction(part)
	case part.Concept != nil:
		err = a.observeConcept(*part.Concept)
	case part.Code != nil:
		err = a.observeTerminology(*part.Code)
	case strings.EqualFold(strings.TrimSpace(part.Text), ageMarker):
		err = a.observeConcept(ageKey)
	case part.DataClass == rulegraph.ClassNumeric || part.DataClass == rulegraph.ClassQuantity:
		err = a.resolveQuantity(part)
	case part.DataClass == rulegraph.ClassBoolean:
		err = a.observeBoolean(part)
	case part.DataClass == rulegraph.ClassString:
		a.observeString(part)
	}
	return a.locate(err)
}

// locate attaches the predicate id to compile errors that lack one.
func (a *Adapter) locate(err error) error {
	var ce *CompileError
	if errors.As(err, &ce) && ce.Predicate == "" {
		ce.Predicate = a.predicate
	}
	return err
}

func (a *Adapter) reject(what string) {
	a.diags.add(Diagnostic{
		Code:      DiagSlotOverflow,
		Message:   fmt.Sprintf("%s rejected: operand slot already filled", what),
		Predicate: a.predicate,
	})
}

func (a *Adapter) observeFunction(part rulegraph.Part) error {
	name := strings.TrimSpace(part.Text)

	if !a.state.StartedFunction {
		if !strings.EqualFold(name, countUnique) {
			return newError(ErrUnknownFunction, "unknown aggregate function %q", name)
		}
		a.state.StartedFunction = true
		return nil
	}

	if name != "" && !strings.EqualFold(name, countUnique) {
		return newError(ErrUnknownFunction, "aggregate %q closed by %q", countUnique, name)
	}
	if a.state.FunctionKey == nil {
		return newError(ErrInvalidPart, "aggregate %q has no concept", countUnique)
	}

	resolved, err := a.resolve(*a.state.FunctionKey)
	if err != nil {
		return err
	}
	a.state.StartedFunction = false
	a.state.FunctionKey = nil

	if !a.state.TakeLeft(ExpressionSlot(a.builder.CountDistinct(resolved))) {
		a.reject("aggregate")
		return nil
	}
	a.state.CountLeft = true
	return nil
}

func (a *Adapter) observeConcept(key rulegraph.ConceptKey) error {
	if a.state.StartedFunction {
		a.state.FunctionKey = &key
		return nil
	}

	e, err := a.resolve(key)
	if err != nil {
		return err
	}
	if key == ageKey {
		if !a.state.TakeLeft(ExpressionSlot(e)) {
			a.reject(fmt.Sprintf("concept %s", key))
			return nil
		}
		a.state.AgeLeft = true
		return nil
	}
	if !a.state.Assign(ExpressionSlot(e)) {
		a.reject(fmt.Sprintf("concept %s", key))
	}
	return nil
}

func (a *Adapter) resolve(key rulegraph.ConceptKey) (elm.Expression, error) {
	e, err := a.resolver.Resolve(key)
	if err == nil {
		return e, nil
	}
	var ce *modeling.ConceptError
	if errors.As(err, &ce) && ce.Err != nil {
		return nil, wrapError(ErrModelResolution, err, "concept %s", key)
	}
	return nil, wrapError(ErrUnknownConcept, err, "concept %s", key)
}

func (a *Adapter) observeTerminology(code rulegraph.TerminologyCode) error {
	unit, isUnit, err := calendarUnit(code)
	if err != nil {
		return err
	}
	if isUnit {
		return a.refineUnit(unit)
	}

	display := strings.TrimSpace(code.Display)
	if display == "" {
		display = strings.TrimSpace(code.Code)
	}
	if display == "" {
		return newError(ErrInvalidPart, "terminology part has neither code nor display")
	}

	var value elm.Expression
	if display == activeDisplay {
		value = a.builder.Code(terminology.ActiveCondition)
	} else {
		url, mapped := a.terms.ValueSetURL(display)
		if !mapped {
			a.diags.add(Diagnostic{
				Code:      DiagUnmappedValueSet,
				Message:   fmt.Sprintf("no value set mapped for %q, using %s", display, url),
				Predicate: a.predicate,
			})
		}
		if value, err = a.builder.ValueSet(url, display); err != nil {
			return wrapError(ErrUnresolvedValueSet, err, "value set %q", display)
		}
	}

	if !a.state.AssignRight(ExpressionSlot(value)) {
		a.reject(fmt.Sprintf("terminology %q", display))
	}
	return nil
}

func calendarUnit(code rulegraph.TerminologyCode) (unit string, ok bool, err error) {
	if unit, ok := calendarUnits[strings.ToLower(strings.TrimSpace(code.Code))]; ok {
		return unit, true, nil
	}
	if calendarDisplays[strings.ToLower(strings.TrimSpace(code.Display))] {
		return "", false, newError(ErrUnknownCalendarUnit, "calendar unit %q has code %q, want y, m or d", code.Display, code.Code)
	}
	return "", false, nil
}

// refineUnit re-types the right operand as a calendar quantity.
func (a *Adapter) refineUnit(unit string) error {
	magnitude, ok := a.state.Right.Magnitude()
	if !ok {
		return newError(ErrUnitWithoutValue, "unit %q needs a numeric right operand, have %s", unit, a.state.Right.Kind())
	}
	a.state.Right = QuantitySlot(magnitude, unit)
	return nil
}

// resolveQuantity fills the first empty slot with a number or quantity.
func (a *Adapter) resolveQuantity(part rulegraph.Part) error {
	value, unit, err := parseQuantity(part)
	if err != nil {
		return err
	}

	slot := QuantitySlot(value, unit)
	if unit == "" {
		slot = NumberSlot(a.builder.Number(value), value)
	}
	if !a.state.Assign(slot) {
		a.reject(fmt.Sprintf("value %q", part.Text))
	}
	return nil
}

// parseQuantity reads the magnitude from NumericValue or the leading number
// of Text, and the unit from Unit or the rest of Text. The phrase
// "mg/24 hours" normalizes to the UCUM unit mg/(24.h).
func parseQuantity(part rulegraph.Part) (float64, string, error) {
	words := strings.Fields(part.Text)

	var value float64
	found := false
	if part.NumericValue != nil {
		value, found = *part.NumericValue, true
	}
	if len(words) > 0 {
		if v, err := strconv.ParseFloat(words[0], 64); err == nil {
			if !found {
				value, found = v, true
			}
			words = words[1:]
		}
	}
	if !found {
		return 0, "", newError(ErrInvalidPart, "no numeric value in %q", part.Text)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, "", newError(ErrInvalidPart, "non-finite numeric value in %q", part.Text)
	}

	unitWords := strings.Fields(part.Unit)
	all := append(append([]string{}, words...), unitWords...)
	if hasWord(all, "mg/24") && hasWord(all, "hours") {
		return value, "mg/(24.h)", nil
	}
	if len(unitWords) > 0 {
		return value, strings.Join(unitWords, " "), nil
	}
	return value, strings.Join(words, " "), nil
}

func hasWord(words []string, w string) bool {
	for _, x := range words {
		if strings.EqualFold(x, w) {
			return true
		}
	}
	return false
}

func (a *Adapter) observeBoolean(part rulegraph.Part) error {
	v, err := strconv.ParseBool(strings.TrimSpace(part.Text))
	if err != nil {
		return newError(ErrInvalidPart, "invalid boolean %q", part.Text)
	}
	if !a.state.AssignRight(LiteralSlot(a.builder.Boolean(v))) {
		a.reject(fmt.Sprintf("boolean %q", part.Text))
	}
	return nil
}

func (a *Adapter) observeString(part rulegraph.Part) {
	if strings.EqualFold(strings.TrimSpace(part.Text), nullSentinel) {
		if !a.state.AssignRight(LiteralSlot(a.builder.Null("Any"))) {
			a.reject("null")
		}
		return
	}
	if !a.state.Assign(LiteralSlot(a.builder.String(part.Text))) {
		a.reject(fmt.Sprintf("string %q", part.Text))
	}
}

// Finish builds the predicate from the state, pushes it onto the expression
// stack and resets the state. operator overrides any operator observed on a
// part.
func (a *Adapter) Finish(operator string) (elm.Expression, error) {
	defer a.state.Reset()

	e, err := a.build(operator)
	if err != nil {
		return nil, a.locate(err)
	}
	a.stacks.PushExpression(e)
	return e, nil
}

func (a *Adapter) build(operator string) (elm.Expression, error) {
	token := operator
	if token == "" {
		token = a.state.Operator
	}
	if token == "" {
		return nil, newError(ErrMissingOperator, "predicate has no operator")
	}
	op, err := ParseOperator(token)
	if err != nil {
		return nil, err
	}
	if a.state.StartedFunction {
		return nil, newError(ErrUnclosedFunction, "aggregate %q was not closed", countUnique)
	}
	if a.state.Left.IsEmpty() && a.state.Right.IsEmpty() {
		return nil, newError(ErrNoOperands, "predicate has no operands")
	}

	if op.IsUnary() {
		return a.buildUnary(op), nil
	}
	return a.buildBinary(op)
}

func (a *Adapter) buildUnary(op Operator) elm.Expression {
	operand := a.state.Left.Expression()
	if operand == nil {
		operand = a.state.Right.Expression()
	} else if !a.state.Right.IsEmpty() {
		a.reject(fmt.Sprintf("right operand of %q", op.Token))
	}

	switch op.Unary {
	case TestExists:
		return &elm.Unary{Operator: elm.OpExists, Operand: operand}
	case TestIsNull:
		return &elm.Unary{Operator: elm.OpIsNull, Operand: operand}
	default:
		return &elm.Not{Operand: &elm.Unary{Operator: elm.OpIsNull, Operand: operand}}
	}
}

func (a *Adapter) buildBinary(op Operator) (elm.Expression, error) {
	left := a.state.Left.Expression()
	right := a.state.Right.Expression()

	if a.state.AgeLeft && a.state.Right.Kind() == SlotLiteral {
		if magnitude, ok := a.state.Right.Magnitude(); ok {
			right = a.builder.Quantity(magnitude, ageUnit)
		}
	}

	if left == nil || right == nil {
		a.diags.add(Diagnostic{
			Code:      DiagOneOperand,
			Message:   fmt.Sprintf("%q predicate has one operand", op.Token),
			Predicate: a.predicate,
		})
		if left == nil {
			left = a.builder.Null("Any")
		}
		if right == nil {
			right = a.builder.Null("Any")
		}
	}

	if a.state.CountLeft {
		return a.resolver.ResolveCountQuery(left, right, op.Binary)
	}

	binop := op.Binary
	if binop == elm.OpEqual {
		switch right.(type) {
		case *elm.ValueSetRef:
			binop = elm.OpIn
		case *elm.CodeRef:
			binop = elm.OpEquivalent
		}
	}
	return &elm.Binary{Operator: binop, Left: left, Right: right}, nil
}
