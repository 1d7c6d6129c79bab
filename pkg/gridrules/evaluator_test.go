package gridrules

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chosenoffset/gridrules/pkg/gridrules/parser"
	"github.com/chosenoffset/gridrules/pkg/gridrules/variables"
)

func testVars() *variables.Storage {
	vars := variables.New()
	vars.Set("voltage", variables.Number(210))
	vars.Set("frequency", variables.Number(49.0))
	vars.Set("power_factor", variables.Number(-0.4))
	vars.Set("relay", variables.Bool(true))
	vars.Set("mode", variables.Text("eco"))
	return vars
}

func evalString(t *testing.T, input string, vars *variables.Storage) (bool, error) {
	t.Helper()
	exp, err := parser.Parse(input)
	require.NoError(t, err)
	return EvalBool(exp, vars)
}

func TestEvalBool(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{`voltage > 200 AND frequency < 49.5`, true},
		{`voltage > 200 and frequency > 49.5`, false},
		{`voltage >= 210 && voltage <= 210`, true},
		{`voltage = 210`, true},
		{`voltage != 210`, false},
		{`power_factor < -0.3`, true},
		{`-power_factor > 0`, true},
		{`relay == 1`, true},
		{`NOT (relay == 0)`, true},
		{`!(voltage > 100) || mode == "eco"`, true},
		{`mode == 'eco'`, true},
		{`mode != "boost"`, true},
		{`mode IN ["night", "eco"]`, true},
		{`mode in ['boost']`, false},
		{`relay IN ["1"]`, true},
		{`true`, true},
		{`false == false`, true},
		{`(voltage > 250 OR frequency < 49.5) AND NOT false`, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := evalString(t, tt.input, testVars())
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestEvalErrors(t *testing.T) {
	t.Run("UnknownVariable", func(t *testing.T) {
		_, err := evalString(t, `missing_var > 1`, testVars())
		assert.ErrorIs(t, err, variables.ErrUnknownVariable)
	})

	t.Run("TypeMismatch", func(t *testing.T) {
		for _, input := range []string{
			`mode > 3`,
			`voltage == "high"`,
			`relay == true`,
			`voltage AND true`,
			`false OR voltage`,
			`NOT voltage`,
			`-mode == 1`,
			`voltage IN 3`,
			`["a"] IN ["a"]`,
			`"a" < "b"`,
		} {
			_, err := evalString(t, input, testVars())
			var mismatch *TypeMismatchError
			assert.True(t, errors.As(err, &mismatch), "%s: got %v", input, err)
		}
	})

	t.Run("NonBooleanCondition", func(t *testing.T) {
		_, err := evalString(t, `voltage`, testVars())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "condition is NUMBER")
	})

	t.Run("ShortCircuit", func(t *testing.T) {
		// the right operands reference an unbound name and are never reached
		got, err := evalString(t, `voltage < 0 AND missing_var > 1`, testVars())
		require.NoError(t, err)
		assert.False(t, got)

		got, err = evalString(t, `voltage > 0 OR missing_var > 1`, testVars())
		require.NoError(t, err)
		assert.True(t, got)
	})
}

func TestEndToEndExpression(t *testing.T) {
	const rule = `voltage > 200 AND frequency < 49.5`
	vars := variables.New()

	vars.Set("voltage", variables.Number(210))
	vars.Set("frequency", variables.Number(49.0))
	got, err := evalString(t, rule, vars)
	require.NoError(t, err)
	assert.True(t, got)

	vars.Set("voltage", variables.Number(190))
	got, err = evalString(t, rule, vars)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestCompile(t *testing.T) {
	_, err := Compile(`a > 1 AND b > 2 AND c > 3`, 5)
	assert.ErrorIs(t, err, ErrRuleTooComplex)

	exp, err := Compile(`a > 1 AND b > 2 AND c > 3`, 0)
	require.NoError(t, err)
	assert.Equal(t, 11, exp.CountNodes())

	_, err = Compile(`a >`, 10)
	var syntaxErr *parser.SyntaxError
	assert.True(t, errors.As(err, &syntaxErr))
}
