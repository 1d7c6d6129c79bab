package gridrules

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/chosenoffset/gridrules/pkg/gridrules/actions"
	"github.com/chosenoffset/gridrules/pkg/gridrules/parser"
	"github.com/chosenoffset/gridrules/pkg/gridrules/rulestore"
	"github.com/chosenoffset/gridrules/pkg/gridrules/variables"
)

// MatchPolicy decides whether one matching rule ends an owner's pass.
type MatchPolicy int

const (
	// MatchAll evaluates every rule; each match dispatches its command.
	MatchAll MatchPolicy = iota
	// FirstMatch stops after the highest-priority matching rule.
	FirstMatch
)

func (p MatchPolicy) String() string {
	if p == FirstMatch {
		return "first"
	}
	return "all"
}

func ParseMatchPolicy(s string) (MatchPolicy, error) {
	switch strings.ToLower(s) {
	case "", "all":
		return MatchAll, nil
	case "first":
		return FirstMatch, nil
	default:
		return MatchAll, fmt.Errorf("unknown match policy %q (want all or first)", s)
	}
}

// Dispatcher accepts commands for the control loop. Send must not block.
type Dispatcher interface {
	Send(actions.Message) error
}

// Compile parses expression and enforces the node limit. A limit of zero or
// less disables the check.
func Compile(expression string, maxComplexity int) (parser.Expression, error) {
	exp, err := parser.Parse(expression)
	if err != nil {
		return nil, err
	}
	if n := exp.CountNodes(); maxComplexity > 0 && n > maxComplexity {
		return nil, fmt.Errorf("%w: %d nodes exceeds limit of %d", ErrRuleTooComplex, n, maxComplexity)
	}
	return exp, nil
}

// OwnerReport describes one owner's reasoning pass.
type OwnerReport struct {
	Owner      string    `json:"owner"`
	Kind       OwnerKind `json:"kind"`
	Evaluated  int       `json:"evaluated"`
	Matched    int       `json:"matched"`
	Failed     int       `json:"failed"`
	Dispatched int       `json:"dispatched"`
	Dropped    int       `json:"dropped"`
	// Errors holds one *RuleError per failed rule.
	Errors []error `json:"-"`
}

type Reasoner struct {
	dispatcher    Dispatcher
	policy        MatchPolicy
	maxComplexity int
	logger        *zap.Logger
}

func NewReasoner(dispatcher Dispatcher, policy MatchPolicy, maxComplexity int, logger *zap.Logger) *Reasoner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reasoner{
		dispatcher:    dispatcher,
		policy:        policy,
		maxComplexity: maxComplexity,
		logger:        logger,
	}
}

// Reason evaluates every rule of owner in priority order and dispatches the
// command of each match. Variables are loaded from unit and then owner; for
// the unit's own pass owner is the unit itself.
//
// Rule failures are reported in OwnerReport.Errors and never returned. The
// returned error is an *OwnerError and means the owner's state could not be
// read, so no rule was evaluated.
func (r *Reasoner) Reason(unit *Unit, owner Owner) (OwnerReport, error) {
	report := OwnerReport{Owner: owner.ID(), Kind: owner.Kind()}

	var unitSource variables.Source
	if unit != nil && owner.Kind() == ModuleOwner {
		unitSource = unit
	}

	vars := variables.New()
	if err := vars.Load(unitSource, owner); err != nil {
		return report, &OwnerError{Owner: owner.ID(), Kind: owner.Kind(), Err: err}
	}

	log := r.logger.With(zap.String("owner", owner.ID()), zap.Stringer("owner_kind", owner.Kind()))

	for _, entry := range rulestore.PriorityOrder(owner.Rules().Rules()) {
		report.Evaluated++

		matched, err := r.evaluate(entry.Rule, vars)
		if err != nil {
			ruleErr := &RuleError{
				Owner:      owner.ID(),
				Index:      entry.Index,
				Priority:   entry.Rule.Priority,
				Expression: entry.Rule.Expression,
				Err:        err,
			}
			report.Failed++
			report.Errors = append(report.Errors, ruleErr)
			log.Warn("rule evaluation failed",
				zap.Int("rule_index", entry.Index),
				zap.Int("priority", entry.Rule.Priority),
				zap.String("expression", entry.Rule.Expression),
				zap.Error(err))
			continue
		}
		if !matched {
			continue
		}

		report.Matched++
		if err := r.dispatch(owner, entry); err != nil {
			report.Dropped++
			log.Warn("command not dispatched",
				zap.Int("rule_index", entry.Index),
				zap.String("command", entry.Rule.Command),
				zap.Error(err))
		} else {
			report.Dispatched++
			log.Debug("command dispatched",
				zap.Int("rule_index", entry.Index),
				zap.Int("priority", entry.Rule.Priority),
				zap.String("command", entry.Rule.Command))
		}

		if r.policy == FirstMatch {
			break
		}
	}
	return report, nil
}

func (r *Reasoner) evaluate(rule rulestore.Rule, vars *variables.Storage) (bool, error) {
	exp, err := Compile(rule.Expression, r.maxComplexity)
	if err != nil {
		return false, err
	}
	return EvalBool(exp, vars)
}

func (r *Reasoner) dispatch(owner Owner, entry rulestore.Entry) error {
	if r.dispatcher == nil {
		return errors.New("no dispatcher configured")
	}
	var msg actions.Message
	switch owner.Kind() {
	case ModuleOwner:
		msg = actions.NewModuleCommand(owner.ID(), entry.Rule.Command, entry.Rule.Priority, entry.Index)
	default:
		msg = actions.NewUnitCommand(owner.ID(), entry.Rule.Command, entry.Rule.Priority, entry.Index)
	}
	return r.dispatcher.Send(msg)
}
