package gridrules

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/chosenoffset/gridrules/pkg/gridrules/parser"
	"github.com/chosenoffset/gridrules/pkg/gridrules/variables"
)

type Object interface {
	Type() ObjectType
	Inspect() string
}

type ObjectType string

const (
	NUMBER_OBJ  ObjectType = "NUMBER"
	BOOLEAN_OBJ ObjectType = "BOOLEAN"
	TEXT_OBJ    ObjectType = "TEXT"
	ARRAY_OBJ   ObjectType = "ARRAY"
)

type Number struct {
	Value float64
}

func (n *Number) Inspect() string  { return strconv.FormatFloat(n.Value, 'f', -1, 64) }
func (n *Number) Type() ObjectType { return NUMBER_OBJ }

type Boolean struct {
	Value bool
}

func (b *Boolean) Inspect() string  { return strconv.FormatBool(b.Value) }
func (b *Boolean) Type() ObjectType { return BOOLEAN_OBJ }

type Text struct {
	Value string
}

func (t *Text) Inspect() string  { return t.Value }
func (t *Text) Type() ObjectType { return TEXT_OBJ }

type Array struct {
	Elements []string
}

func (a *Array) Inspect() string  { return "[" + parser.Combine(a.Elements).Literal + "]" }
func (a *Array) Type() ObjectType { return ARRAY_OBJ }

var (
	TRUE  = &Boolean{Value: true}
	FALSE = &Boolean{Value: false}
)

func nativeBool(b bool) *Boolean {
	if b {
		return TRUE
	}
	return FALSE
}

// Eval evaluates a parsed expression against the bound variables.
func Eval(node parser.Expression, vars *variables.Storage) (Object, error) {
	switch node := node.(type) {
	case *parser.Identifier:
		v, err := vars.Get(node.Value)
		if err != nil {
			return nil, err
		}
		if f, ok := v.Float(); ok {
			return &Number{Value: f}, nil
		}
		return &Text{Value: v.String()}, nil

	case *parser.NumberLiteral:
		return &Number{Value: node.Value}, nil

	case *parser.StringLiteral:
		return &Text{Value: node.Value}, nil

	case *parser.BooleanLiteral:
		return nativeBool(node.Value), nil

	case *parser.ArrayLiteral:
		return &Array{Elements: node.Elements}, nil

	case *parser.PrefixExpression:
		right, err := Eval(node.Right, vars)
		if err != nil {
			return nil, err
		}
		return evalPrefixExpression(node.Operator, right)

	case *parser.InfixExpression:
		switch node.Operator {
		case "AND", "OR":
			return evalLogicalExpression(node, vars)
		}
		left, err := Eval(node.Left, vars)
		if err != nil {
			return nil, err
		}
		right, err := Eval(node.Right, vars)
		if err != nil {
			return nil, err
		}
		return evalInfixExpression(node.Operator, left, right)

	default:
		return nil, fmt.Errorf("unknown node type: %T", node)
	}
}

// EvalBool evaluates a rule condition, which must produce a boolean.
func EvalBool(node parser.Expression, vars *variables.Storage) (bool, error) {
	result, err := Eval(node, vars)
	if err != nil {
		return false, err
	}
	b, ok := result.(*Boolean)
	if !ok {
		return false, fmt.Errorf("condition is %s, not %s", result.Type(), BOOLEAN_OBJ)
	}
	return b.Value, nil
}

func evalPrefixExpression(operator string, right Object) (Object, error) {
	switch operator {
	case "NOT":
		if b, ok := right.(*Boolean); ok {
			return nativeBool(!b.Value), nil
		}
	case "-":
		if n, ok := right.(*Number); ok {
			return &Number{Value: -n.Value}, nil
		}
	default:
		return nil, fmt.Errorf("unknown operator: %s", operator)
	}
	return nil, &TypeMismatchError{Operator: operator, Right: right.Type()}
}

// evalLogicalExpression short-circuits: the right operand is not evaluated,
// and so cannot fail, once the left one decides the result.
func evalLogicalExpression(node *parser.InfixExpression, vars *variables.Storage) (Object, error) {
	left, err := Eval(node.Left, vars)
	if err != nil {
		return nil, err
	}
	l, ok := left.(*Boolean)
	if !ok {
		return nil, &TypeMismatchError{Operator: node.Operator, Left: left.Type(), Right: BOOLEAN_OBJ}
	}
	if (node.Operator == "AND" && !l.Value) || (node.Operator == "OR" && l.Value) {
		return l, nil
	}

	right, err := Eval(node.Right, vars)
	if err != nil {
		return nil, err
	}
	r, ok := right.(*Boolean)
	if !ok {
		return nil, &TypeMismatchError{Operator: node.Operator, Left: BOOLEAN_OBJ, Right: right.Type()}
	}
	return r, nil
}

func evalInfixExpression(operator string, left, right Object) (Object, error) {
	switch {
	case operator == "IN":
		return evalMembership(left, right)
	case left.Type() == NUMBER_OBJ && right.Type() == NUMBER_OBJ:
		return evalNumberInfixExpression(operator, left.(*Number).Value, right.(*Number).Value)
	case left.Type() == TEXT_OBJ && right.Type() == TEXT_OBJ:
		return evalEquality(operator, left.(*Text).Value == right.(*Text).Value, left, right)
	case left.Type() == BOOLEAN_OBJ && right.Type() == BOOLEAN_OBJ:
		return evalEquality(operator, left.(*Boolean).Value == right.(*Boolean).Value, left, right)
	default:
		return nil, &TypeMismatchError{Operator: operator, Left: left.Type(), Right: right.Type()}
	}
}

func evalNumberInfixExpression(operator string, l, r float64) (Object, error) {
	switch operator {
	case "<":
		return nativeBool(l < r), nil
	case ">":
		return nativeBool(l > r), nil
	case "<=":
		return nativeBool(l <= r), nil
	case ">=":
		return nativeBool(l >= r), nil
	case "==":
		return nativeBool(l == r), nil
	case "!=":
		return nativeBool(l != r), nil
	default:
		return nil, fmt.Errorf("unknown operator: %s", operator)
	}
}

// evalEquality handles the operators defined on text and booleans.
func evalEquality(operator string, equal bool, left, right Object) (Object, error) {
	switch operator {
	case "==":
		return nativeBool(equal), nil
	case "!=":
		return nativeBool(!equal), nil
	default:
		return nil, &TypeMismatchError{Operator: operator, Left: left.Type(), Right: right.Type()}
	}
}

// evalMembership compares the left operand's text form with each element,
// so both `mode IN ["eco"]` and `relay IN ["1"]` work.
func evalMembership(left, right Object) (Object, error) {
	arr, ok := right.(*Array)
	if !ok || left.Type() == ARRAY_OBJ {
		return nil, &TypeMismatchError{Operator: "IN", Left: left.Type(), Right: right.Type()}
	}
	return nativeBool(slices.Contains(arr.Elements, left.Inspect())), nil
}
