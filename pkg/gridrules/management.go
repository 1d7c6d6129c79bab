package gridrules

import (
	"errors"
	"fmt"

	"github.com/chosenoffset/gridrules/pkg/gridrules/dashboard"
	"github.com/chosenoffset/gridrules/pkg/gridrules/metrics"
	"github.com/chosenoffset/gridrules/pkg/gridrules/parser"
	"github.com/chosenoffset/gridrules/pkg/gridrules/rulestore"
)

// Management exposes an engine to the dashboard API.
type Management struct {
	engine *Engine
}

func NewManagement(engine *Engine) *Management {
	return &Management{engine: engine}
}

var _ dashboard.Backend = (*Management)(nil)

func (m *Management) Owners() []dashboard.OwnerInfo {
	owners := m.engine.Registry().Owners()
	infos := make([]dashboard.OwnerInfo, len(owners))
	for i, o := range owners {
		infos[i] = dashboard.OwnerInfo{
			ID:      o.ID(),
			Kind:    o.Kind().String(),
			Rules:   o.Rules().Len(),
			Version: o.Rules().Version(),
		}
	}
	return infos
}

func (m *Management) store(id string) (*rulestore.Store, error) {
	owner, err := m.engine.Registry().Owner(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", dashboard.ErrNotFound, err)
	}
	return owner.Rules(), nil
}

// check rejects rules the engine would be unable to evaluate.
func (m *Management) check(rules ...rulestore.Rule) error {
	var errs []error
	for i, r := range rules {
		if _, err := Compile(r.Expression, m.engine.Options().MaxRuleComplexity); err != nil {
			errs = append(errs, fmt.Errorf("rule %d: %w", i, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", dashboard.ErrInvalid, errors.Join(errs...))
	}
	return nil
}

func (m *Management) Rules(id string) ([]rulestore.Rule, error) {
	s, err := m.store(id)
	if err != nil {
		return nil, err
	}
	return s.Rules(), nil
}

func (m *Management) ReplaceRules(id string, rules []rulestore.Rule) error {
	s, err := m.store(id)
	if err != nil {
		return err
	}
	if err := m.check(rules...); err != nil {
		return err
	}
	s.ReplaceAll(rules...)
	return nil
}

func (m *Management) AppendRules(id string, rules []rulestore.Rule) error {
	s, err := m.store(id)
	if err != nil {
		return err
	}
	if err := m.check(rules...); err != nil {
		return err
	}
	s.Append(rules...)
	return nil
}

func (m *Management) ReplaceRule(id string, index int, rule rulestore.Rule) error {
	s, err := m.store(id)
	if err != nil {
		return err
	}
	if err := m.check(rule); err != nil {
		return err
	}
	return s.ReplaceAt(index, rule)
}

func (m *Management) ClearRules(id string) error {
	s, err := m.store(id)
	if err != nil {
		return err
	}
	s.Clear()
	return nil
}

func (m *Management) Validate(expression string) dashboard.Validation {
	return Validate(expression, m.engine.Options().MaxRuleComplexity)
}

// Validate lexes and compiles expression and describes the outcome.
func Validate(expression string, maxComplexity int) dashboard.Validation {
	var v dashboard.Validation

	tokens, err := parser.Tokenize(expression)
	if err != nil {
		v.Error = err.Error()
		return v
	}
	for _, tok := range tokens {
		v.Tokens = append(v.Tokens, dashboard.TokenInfo{
			Type:     tok.Type.String(),
			Class:    string(tok.Type.Class()),
			Literal:  tok.Literal,
			Position: tok.Position,
		})
	}

	exp, err := Compile(expression, maxComplexity)
	if err != nil {
		v.Error = err.Error()
		return v
	}
	v.Valid = true
	v.Tree = exp.String()
	v.Identifiers = parser.Identifiers(exp)
	v.Nodes = exp.CountNodes()
	return v
}

func (m *Management) Pause()  { m.engine.Pause() }
func (m *Management) Resume() { m.engine.Resume() }

func (m *Management) Status() dashboard.Status {
	return dashboard.Status{
		Ready:   m.engine.Ready(),
		Paused:  m.engine.Paused(),
		Running: m.engine.IsRunning(),
		Current: m.engine.Cycles().GetCurrent(),
		Totals:  m.engine.Cycles().Totals(),
	}
}

func (m *Management) Cycles() []metrics.CycleStats {
	return m.engine.Cycles().GetHistory()
}

func (m *Management) SetReadings(readings map[string]float64) error {
	if err := m.engine.Registry().Unit().SetReadings(readings); err != nil {
		return fmt.Errorf("%w: %w", dashboard.ErrInvalid, err)
	}
	return nil
}
