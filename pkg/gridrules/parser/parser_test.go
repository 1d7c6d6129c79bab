package parser

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOperatorPrecedence(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{`voltage > 200 AND frequency < 49.5`, `((voltage > 200) AND (frequency < 49.5))`},
		{`a OR b AND c`, `(a OR (b AND c))`},
		{`(a OR b) AND c`, `((a OR b) AND c)`},
		{`NOT a == b`, `((NOT a) == b)`},
		{`not (a == b)`, `(NOT (a == b))`},
		{`a = 1 || b != 2`, `((a == 1) OR (b != 2))`},
		{`power_factor >= -0.5`, `(power_factor >= (-0.5))`},
		{`mode in ["eco", "boost"]`, `(mode IN ["eco", "boost"])`},
		{`relay == true && load <= .75`, `((relay == true) AND (load <= .75))`},
		{`mode == 'off'`, `(mode == "off")`},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			exp, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, exp.String())
		})
	}
}

func TestParseLiterals(t *testing.T) {
	exp, err := Parse(`mode IN ['a', "b"]`)
	require.NoError(t, err)

	infix, ok := exp.(*InfixExpression)
	require.True(t, ok)
	assert.Equal(t, "IN", infix.Operator)

	array, ok := infix.Right.(*ArrayLiteral)
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, array.Elements)

	exp, err = Parse(`49.95`)
	require.NoError(t, err)
	number, ok := exp.(*NumberLiteral)
	require.True(t, ok)
	assert.InDelta(t, 49.95, number.Value, 1e-9)
}

func TestParseErrors(t *testing.T) {
	t.Run("LexErrorTakesPrecedence", func(t *testing.T) {
		_, err := Parse(`voltage > "open`)

		var lexErr *LexError
		require.True(t, errors.As(err, &lexErr))
	})

	t.Run("NulDoesNotTruncate", func(t *testing.T) {
		exp, err := Parse("voltage > 1\x00 OR ((((")
		assert.Nil(t, exp)

		var lexErr *LexError
		require.True(t, errors.As(err, &lexErr), "got %v", err)
		assert.Equal(t, 11, lexErr.Position)
	})

	t.Run("Syntax", func(t *testing.T) {
		for _, input := range []string{
			``,
			`voltage >`,
			`voltage > 10 10`,
			`(voltage > 10`,
			`AND voltage`,
			`voltage > 10)`,
		} {
			_, err := Parse(input)

			var syntaxErr *SyntaxError
			require.True(t, errors.As(err, &syntaxErr), "input %q gave %v", input, err)
			assert.NotEmpty(t, syntaxErr.Errors)
		}
	})

	t.Run("UnsupportedArrayElement", func(t *testing.T) {
		_, err := Parse(`mode in ["a", 2]`)

		var elemErr *UnsupportedElementError
		require.True(t, errors.As(err, &elemErr))
		assert.Equal(t, NUMBER, elemErr.Element.Type)
	})
}

func TestCountNodesAndIdentifiers(t *testing.T) {
	exp, err := Parse(`voltage > 200 AND (frequency < 49.5 OR voltage > 250) AND mode in ["a", "b"]`)
	require.NoError(t, err)

	// 3 joins, 3 comparisons, 1 IN, 7 scalar leaves, array node plus 2 elements.
	assert.Equal(t, 17, exp.CountNodes())
	assert.Equal(t, []string{"voltage", "frequency", "mode"}, Identifiers(exp))
}
