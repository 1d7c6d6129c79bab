package gridrules

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chosenoffset/gridrules/pkg/gridrules/parser"
	"github.com/chosenoffset/gridrules/pkg/gridrules/rulestore"
)

// Rule text comes from operators over the management API, so hostile
// input must stay data: it either parses into an ordinary comparison or is
// rejected with an error.
func TestHostileExpressions(t *testing.T) {
	vars := testVars()

	harmless := []struct {
		name string
		rule string
	}{
		{"PathTraversal", `mode == "../../../etc/passwd"`},
		{"SQLInjection", `mode == "'; DROP TABLE rules; --"`},
		{"ScriptInjection", `mode IN ["<script>alert(1)</script>", "eco"]`},
		{"FormatVerbs", `mode == '%n%n%s%x'`},
		{"EscapeLookalike", `mode == "eco\x00admin"`},
		{"LargeString", `mode == "` + strings.Repeat("A", 10000) + `"`},
		{"DeepNesting", strings.Repeat("(", 500) + "voltage > 1" + strings.Repeat(")", 500)},
	}
	for _, tc := range harmless {
		t.Run(tc.name, func(t *testing.T) {
			exp, err := Compile(tc.rule, 256)
			require.NoError(t, err)
			_, err = EvalBool(exp, vars)
			assert.NoError(t, err)
		})
	}

	rejected := []struct {
		name string
		rule string
	}{
		{"CallSyntax", `exec("rm -rf /")`},
		{"Interpolation", `${os.Getenv("HOME")} == 1`},
		{"DotAccess", `os.env == 1`},
		{"Semicolon", `voltage > 1; voltage < 2`},
		{"NestedArray", `mode IN [["eco"]]`},
		{"UnbalancedNesting", strings.Repeat("(", 50) + "voltage > 1"},
		{"NonASCII", `voltage > 1 ∧ frequency < 50`},
	}
	for _, tc := range rejected {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Compile(tc.rule, 256)
			assert.Error(t, err)
		})
	}
}

func TestComplexityLimit(t *testing.T) {
	many := strings.TrimSuffix(strings.Repeat("voltage > 1 AND ", 10), " AND ")
	exp, err := Compile(many, 0)
	require.NoError(t, err)
	require.Equal(t, 39, exp.CountNodes())

	t.Run("CompileRejects", func(t *testing.T) {
		_, err := Compile(many, 38)
		require.ErrorIs(t, err, ErrRuleTooComplex)
		assert.Contains(t, err.Error(), "39 nodes exceeds limit of 38")

		_, err = Compile(many, 39)
		assert.NoError(t, err)
	})

	t.Run("ParenthesesAreFree", func(t *testing.T) {
		exp, err := Compile(strings.Repeat("(", 100)+"voltage"+strings.Repeat(")", 100)+" > 1", 3)
		require.NoError(t, err)
		assert.Equal(t, 3, exp.CountNodes())
	})

	t.Run("ReasonerSkipsOversizedRule", func(t *testing.T) {
		unit := NewUnit("unit-1",
			rulestore.NewRule(2, many, "too_big"),
			rulestore.NewRule(1, `voltage >= 0`, "ok"),
		)
		rec := &recorder{}
		report, err := NewReasoner(rec, MatchAll, 10, nil).Reason(unit, unit)
		require.NoError(t, err)

		assert.Equal(t, 1, report.Failed)
		assert.Equal(t, []string{"unit-1:ok"}, rec.commands())

		var ruleErr *RuleError
		require.True(t, errors.As(report.Errors[0], &ruleErr))
		assert.Equal(t, 0, ruleErr.Index)
		assert.ErrorIs(t, ruleErr, ErrRuleTooComplex)
	})

	t.Run("ManagementRejects", func(t *testing.T) {
		opts := DefaultOptions()
		opts.MaxRuleComplexity = 10
		unit := NewUnit("unit-1")
		m := NewManagement(NewEngine(NewRegistry(unit), &recorder{}, opts, nil))

		err := m.AppendRules("unit-1", []rulestore.Rule{rulestore.NewRule(1, many, "x")})
		require.ErrorIs(t, err, ErrRuleTooComplex)
		assert.Zero(t, unit.Rules().Len())

		v := m.Validate(many)
		assert.False(t, v.Valid)
		assert.NotEmpty(t, v.Tokens, "tokens are reported even when the rule is refused")
	})
}

func TestLexErrorPosition(t *testing.T) {
	_, err := Compile(`voltage > 1 AND mode == "eco`, 0)
	var lexErr *parser.LexError
	require.True(t, errors.As(err, &lexErr))
	assert.Equal(t, 24, lexErr.Position)
}
