package parser

import (
	"fmt"
	"strings"
)

// LexError reports malformed expression text at a byte offset.
type LexError struct {
	Position int
	Line     int
	Column   int
	Message  string
}

func (e *LexError) Error() string {
	return fmt.Sprintf("lex error at line %d, column %d (offset %d): %s", e.Line, e.Column, e.Position, e.Message)
}

// TypeError reports an operation applied to the wrong kind of token.
type TypeError struct {
	Op   string
	Want TokenType
	Got  TokenType
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("%s: not an array token (want %s, got %s)", e.Op, e.Want, e.Got)
}

// UnsupportedElementError reports an array element that is not a string literal.
type UnsupportedElementError struct {
	Element Token
}

func (e *UnsupportedElementError) Error() string {
	return fmt.Sprintf("only string-literal array elements are supported, got %s %q",
		e.Element.Type.Class(), e.Element.Literal)
}

// SyntaxError collects the problems found while parsing one expression.
type SyntaxError struct {
	Expression string
	Errors     []error
}

func (e *SyntaxError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("syntax error in %q: %s", e.Expression, strings.Join(msgs, "; "))
}

func (e *SyntaxError) Unwrap() []error {
	return e.Errors
}
