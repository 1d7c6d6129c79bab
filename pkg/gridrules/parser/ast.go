package parser

import (
	"bytes"
	"strconv"
	"strings"
)

type Node interface {
	TokenLiteral() string
	String() string
	// CountNodes reports the size of the subtree rooted at this node.
	CountNodes() int
}

type Expression interface {
	Node
	expressionNode()
}

type Identifier struct {
	Token Token // the IDENT token
	Value string
}

func (i *Identifier) expressionNode()      {}
func (i *Identifier) TokenLiteral() string { return i.Token.Literal }
func (i *Identifier) String() string       { return i.Value }
func (i *Identifier) CountNodes() int      { return 1 }

type NumberLiteral struct {
	Token Token // the NUMBER token
	Value float64
}

func (nl *NumberLiteral) expressionNode()      {}
func (nl *NumberLiteral) TokenLiteral() string { return nl.Token.Literal }
func (nl *NumberLiteral) String() string       { return nl.Token.Literal }
func (nl *NumberLiteral) CountNodes() int      { return 1 }

type StringLiteral struct {
	Token Token
	Value string
}

func (sl *StringLiteral) expressionNode()      {}
func (sl *StringLiteral) TokenLiteral() string { return sl.Token.Literal }
func (sl *StringLiteral) String() string       { return strconv.Quote(sl.Value) }
func (sl *StringLiteral) CountNodes() int      { return 1 }

type BooleanLiteral struct {
	Token Token
	Value bool
}

func (bl *BooleanLiteral) expressionNode()      {}
func (bl *BooleanLiteral) TokenLiteral() string { return bl.Token.Literal }
func (bl *BooleanLiteral) String() string       { return strconv.FormatBool(bl.Value) }
func (bl *BooleanLiteral) CountNodes() int      { return 1 }

// ArrayLiteral holds the elements of an ARRAY token after separation.
type ArrayLiteral struct {
	Token    Token // the ARRAY token
	Elements []string
}

func (al *ArrayLiteral) expressionNode()      {}
func (al *ArrayLiteral) TokenLiteral() string { return al.Token.Literal }
func (al *ArrayLiteral) String() string {
	return "[" + Combine(al.Elements).Literal + "]"
}
func (al *ArrayLiteral) CountNodes() int { return 1 + len(al.Elements) }

type PrefixExpression struct {
	Token    Token // the prefix token, e.g. NOT, -
	Operator string
	Right    Expression
}

func (pe *PrefixExpression) expressionNode()      {}
func (pe *PrefixExpression) TokenLiteral() string { return pe.Token.Literal }
func (pe *PrefixExpression) String() string {
	var out bytes.Buffer
	out.WriteString("(")
	out.WriteString(pe.Operator)
	if pe.Operator == "NOT" {
		out.WriteString(" ")
	}
	if pe.Right != nil {
		out.WriteString(pe.Right.String())
	}
	out.WriteString(")")
	return out.String()
}
func (pe *PrefixExpression) CountNodes() int { return 1 + countNodes(pe.Right) }

type InfixExpression struct {
	Token    Token // the operator token
	Left     Expression
	Operator string
	Right    Expression
}

func (ie *InfixExpression) expressionNode()      {}
func (ie *InfixExpression) TokenLiteral() string { return ie.Token.Literal }
func (ie *InfixExpression) String() string {
	var out bytes.Buffer
	out.WriteString("(")
	if ie.Left != nil {
		out.WriteString(ie.Left.String())
	}
	out.WriteString(" " + ie.Operator + " ")
	if ie.Right != nil {
		out.WriteString(ie.Right.String())
	}
	out.WriteString(")")
	return out.String()
}
func (ie *InfixExpression) CountNodes() int {
	return 1 + countNodes(ie.Left) + countNodes(ie.Right)
}

func countNodes(n Expression) int {
	if n == nil {
		return 0
	}
	return n.CountNodes()
}

// Identifiers lists the distinct variable names referenced by exp, in order
// of first appearance.
func Identifiers(exp Expression) []string {
	var names []string
	seen := make(map[string]bool)
	var walk func(Expression)
	walk = func(e Expression) {
		switch n := e.(type) {
		case *Identifier:
			if !seen[n.Value] {
				seen[n.Value] = true
				names = append(names, n.Value)
			}
		case *PrefixExpression:
			walk(n.Right)
		case *InfixExpression:
			walk(n.Left)
			walk(n.Right)
		}
	}
	walk(exp)
	return names
}

// canonicalOperator maps the spelling variants of an operator onto one form.
func canonicalOperator(tok Token) string {
	switch tok.Type {
	case EQ:
		return "=="
	case AND, OR, NOT, IN:
		return tok.Type.String()
	default:
		return strings.ToUpper(tok.Literal)
	}
}
