package parser

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLexer(t *testing.T) {
	t.Run("Classification", testLexerClassification)
	t.Run("WordOperators", testLexerWordOperators)
	t.Run("ArrayToken", testLexerArrayToken)
	t.Run("Positions", testLexerPositions)
	t.Run("Errors", testLexerErrors)
	t.Run("Restartable", testLexerRestartable)
	t.Run("NulInsideQuotes", testLexerNulInsideQuotes)
}

func testLexerClassification(t *testing.T) {
	input := `voltage >= 230.5 && mode != "eco", (relay) < 1 <= 2 > 3 == 4 = 5 ! -6`

	expected := []struct {
		typ     TokenType
		literal string
		class   TokenClass
	}{
		{IDENT, "voltage", ClassIdentifier},
		{GTE, ">=", ClassOperator},
		{NUMBER, "230.5", ClassNumber},
		{AND, "&&", ClassOperator},
		{IDENT, "mode", ClassIdentifier},
		{NOT_EQ, "!=", ClassOperator},
		{STRING, "eco", ClassString},
		{COMMA, ",", ClassSeparator},
		{LPAREN, "(", ClassGrouping},
		{IDENT, "relay", ClassIdentifier},
		{RPAREN, ")", ClassGrouping},
		{LT, "<", ClassOperator},
		{NUMBER, "1", ClassNumber},
		{LTE, "<=", ClassOperator},
		{NUMBER, "2", ClassNumber},
		{GT, ">", ClassOperator},
		{NUMBER, "3", ClassNumber},
		{EQ, "==", ClassOperator},
		{NUMBER, "4", ClassNumber},
		{EQ, "=", ClassOperator},
		{NUMBER, "5", ClassNumber},
		{NOT, "!", ClassOperator},
		{MINUS, "-", ClassOperator},
		{NUMBER, "6", ClassNumber},
	}

	tokens, err := Tokenize(input)
	require.NoError(t, err)
	require.Len(t, tokens, len(expected))

	for i, tt := range expected {
		assert.Equal(t, tt.typ, tokens[i].Type, "token %d type", i)
		assert.Equal(t, tt.literal, tokens[i].Literal, "token %d literal", i)
		assert.Equal(t, tt.class, tokens[i].Type.Class(), "token %d class", i)
	}
}

func testLexerWordOperators(t *testing.T) {
	tokens, err := Tokenize(`a AND b or NOT c In d TRUE false`)
	require.NoError(t, err)

	types := make([]TokenType, len(tokens))
	for i, tok := range tokens {
		types[i] = tok.Type
	}
	assert.Equal(t, []TokenType{IDENT, AND, IDENT, OR, NOT, IDENT, IN, IDENT, TRUE, FALSE}, types)
	assert.Equal(t, ClassKeyword, TRUE.Class())
}

func testLexerArrayToken(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{`["a", "b"]`, `"a", "b"`},
		{`[]`, ``},
		{`["x]y", 'z[']`, `"x]y", 'z['`},
		{`[["nested"]]`, `["nested"]`},
	}

	for _, tt := range tests {
		tokens, err := Tokenize(tt.input)
		require.NoError(t, err, tt.input)
		require.Len(t, tokens, 1, tt.input)
		assert.Equal(t, ARRAY, tokens[0].Type)
		assert.Equal(t, tt.expected, tokens[0].Literal)
	}
}

func testLexerPositions(t *testing.T) {
	tokens, err := Tokenize("voltage\n  > 10")
	require.NoError(t, err)
	require.Len(t, tokens, 3)

	assert.Equal(t, 0, tokens[0].Position)
	assert.Equal(t, 1, tokens[0].Line)
	assert.Equal(t, 1, tokens[0].Column)

	assert.Equal(t, 10, tokens[1].Position)
	assert.Equal(t, 2, tokens[1].Line)
	assert.Equal(t, 3, tokens[1].Column)
}

func testLexerErrors(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		position int
		message  string
	}{
		{"UnterminatedString", `mode == "eco`, 8, "unterminated string literal"},
		{"UnterminatedArray", `mode in ["a", "b"`, 8, "unterminated array literal"},
		{"UnterminatedQuoteInArray", `mode in ["a]`, 8, "unterminated array literal"},
		{"UnknownCharacter", `voltage # 3`, 8, "unexpected character '#'"},
		{"SingleAmpersand", `a & b`, 2, "unexpected '&', expected '&&'"},
		{"SinglePipe", `a | b`, 2, "unexpected '|', expected '||'"},
		{"StrayBracket", `a ]`, 2, "unexpected character ']'"},
		{"NulByte", "voltage > 1\x00 @@@ garbage ((", 11, `unexpected character '\x00'`},
		{"NulInUnterminatedString", "mode == \"eco\x00", 8, "unterminated string literal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Tokenize(tt.input)
			require.Error(t, err)

			var lexErr *LexError
			require.True(t, errors.As(err, &lexErr), "expected *LexError, got %T", err)
			assert.Equal(t, tt.position, lexErr.Position)
			assert.Equal(t, tt.message, lexErr.Message)
		})
	}
}

func testLexerNulInsideQuotes(t *testing.T) {
	tokens, err := Tokenize("mode == \"a\x00b\" AND tag in [\"\x00\"]")
	require.NoError(t, err)
	require.Len(t, tokens, 7)

	assert.Equal(t, STRING, tokens[2].Type)
	assert.Equal(t, "a\x00b", tokens[2].Literal)
	assert.Equal(t, ARRAY, tokens[6].Type)
	assert.Equal(t, "\"\x00\"", tokens[6].Literal)
}

func testLexerRestartable(t *testing.T) {
	seq := Tokens("a > 1")

	var first, second []string
	for tok, err := range seq {
		require.NoError(t, err)
		first = append(first, tok.Literal)
	}
	for tok, err := range seq {
		require.NoError(t, err)
		second = append(second, tok.Literal)
		break
	}

	assert.Equal(t, []string{"a", ">", "1"}, first)
	assert.Equal(t, []string{"a"}, second)
}

func TestLexerErrorIsSticky(t *testing.T) {
	l := NewLexer("a $ b")

	tok, err := l.NextToken()
	require.NoError(t, err)
	assert.Equal(t, IDENT, tok.Type)

	_, err = l.NextToken()
	require.Error(t, err)

	tok, again := l.NextToken()
	assert.Equal(t, ILLEGAL, tok.Type)
	assert.Same(t, err, again)
}
