package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chosenoffset/gridrules/pkg/gridrules"
	"github.com/chosenoffset/gridrules/pkg/gridrules/parser"
	"github.com/chosenoffset/gridrules/pkg/gridrules/variables"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration and compile every rule",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		out := cmd.OutOrStdout()
		if err := cfg.Validate(); err != nil {
			for _, e := range flatten(err) {
				fmt.Fprintln(out, "FAIL", e)
			}
			return errors.New("configuration is invalid")
		}

		owners, err := cfg.Rules()
		if err != nil {
			return err
		}
		for _, o := range owners {
			fmt.Fprintf(out, "ok   %s: %d rules\n", o.Owner, len(o.Rules))
		}
		return nil
	},
}

var lexCmd = &cobra.Command{
	Use:   "lex <expression>",
	Short: "Print the tokens of an expression",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		for tok, err := range parser.Tokens(args[0]) {
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%4d  %-15s %-8s %q\n", tok.Position, tok.Type.Class(), tok.Type, tok.Literal)
		}
		return nil
	},
}

var evalVars []string

var evalCmd = &cobra.Command{
	Use:     "eval <expression>",
	Short:   "Evaluate an expression against the given variables",
	Example: `  gridrules eval 'voltage > 250 AND mode == "eco"' --var voltage=253 --var mode=eco`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vars, err := bindVars(evalVars)
		if err != nil {
			return err
		}
		exp, err := gridrules.Compile(args[0], cfg.Engine.MaxRuleComplexity)
		if err != nil {
			return err
		}
		result, err := gridrules.Eval(exp, vars)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s  =>  %s (%s)\n", exp, result.Inspect(), result.Type())
		return nil
	},
}

// bindVars parses name=value pairs. Values that parse as numbers are
// numbers, true and false are booleans (stored as 1 and 0), anything else is text.
func bindVars(pairs []string) (*variables.Storage, error) {
	vars := variables.New()
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("--var %q: want name=value", pair)
		}
		switch f, err := strconv.ParseFloat(raw, 64); {
		case err == nil:
			vars.Set(name, variables.Number(f))
		case raw == "true" || raw == "false":
			vars.Set(name, variables.Bool(raw == "true"))
		default:
			vars.Set(name, variables.Text(raw))
		}
	}
	return vars, nil
}

// flatten expands joined errors into their leaves.
func flatten(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []error
		for _, e := range joined.Unwrap() {
			out = append(out, flatten(e)...)
		}
		return out
	}
	return []error{err}
}
