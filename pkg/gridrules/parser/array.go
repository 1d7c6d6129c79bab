package parser

import (
	"fmt"
	"strings"
)

// Separate decomposes an ARRAY token into its string elements, in order.
// Commas between elements are skipped; any other element kind is rejected.
func Separate(tok Token) ([]string, error) {
	if tok.Type != ARRAY {
		return nil, &TypeError{Op: "separate", Want: ARRAY, Got: tok.Type}
	}

	elements := make([]string, 0)
	for sub, err := range Tokens(tok.Literal) {
		if err != nil {
			return nil, fmt.Errorf("array at offset %d: %w", tok.Position, err)
		}
		switch sub.Type {
		case STRING:
			elements = append(elements, sub.Literal)
		case COMMA:
			continue
		default:
			return nil, &UnsupportedElementError{Element: sub}
		}
	}
	return elements, nil
}

// Combine renders elements as a single ARRAY token that Separate accepts.
// Elements must not contain double quotes.
func Combine(elements []string) Token {
	var b strings.Builder
	for i, element := range elements {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('"')
		b.WriteString(element)
		b.WriteByte('"')
	}
	return Token{Type: ARRAY, Literal: b.String()}
}
