package gridrules

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/chosenoffset/gridrules/pkg/gridrules/rulestore"
	"github.com/chosenoffset/gridrules/pkg/gridrules/variables"
)

type OwnerKind int

const (
	UnitOwner OwnerKind = iota
	ModuleOwner
)

func (k OwnerKind) String() string {
	if k == ModuleOwner {
		return "module"
	}
	return "unit"
}

func (k OwnerKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Owner is anything that holds a rule list and can be reasoned about.
type Owner interface {
	ID() string
	Kind() OwnerKind
	// Attributes is a snapshot of the owner's current named state.
	Attributes() (map[string]variables.Value, error)
	Rules() *rulestore.Store
}

// Electrical quantities every unit exposes to its rules.
const (
	Voltage       = "voltage"
	Current       = "current"
	Frequency     = "frequency"
	ActivePower   = "active_power"
	ReactivePower = "reactive_power"
	ApparentPower = "apparent_power"
	PowerFactor   = "power_factor"
	Energy        = "energy"
)

var UnitQuantities = []string{
	Voltage, Current, Frequency,
	ActivePower, ReactivePower, ApparentPower,
	PowerFactor, Energy,
}

var ErrUnknownQuantity = errors.New("unknown quantity")

// Unit is the top-level measuring device.
type Unit struct {
	id    string
	rules *rulestore.Store

	mu       sync.RWMutex
	readings map[string]float64
	updated  time.Time
}

func NewUnit(id string, rules ...rulestore.Rule) *Unit {
	readings := make(map[string]float64, len(UnitQuantities))
	for _, q := range UnitQuantities {
		readings[q] = 0
	}
	return &Unit{id: id, rules: rulestore.New(rules...), readings: readings}
}

func (u *Unit) ID() string              { return u.id }
func (u *Unit) Kind() OwnerKind         { return UnitOwner }
func (u *Unit) Rules() *rulestore.Store { return u.rules }

// SetReading updates one quantity.
func (u *Unit) SetReading(name string, value float64) error {
	return u.SetReadings(map[string]float64{name: value})
}

// SetReadings updates several quantities at once. If any name is not a unit
// quantity nothing is changed.
func (u *Unit) SetReadings(readings map[string]float64) error {
	for name := range readings {
		if !slices.Contains(UnitQuantities, name) {
			return fmt.Errorf("%w %q", ErrUnknownQuantity, name)
		}
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	maps.Copy(u.readings, readings)
	u.updated = time.Now()
	return nil
}

func (u *Unit) Readings() map[string]float64 {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return maps.Clone(u.readings)
}

// Updated reports when readings last changed.
func (u *Unit) Updated() time.Time {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.updated
}

func (u *Unit) Attributes() (map[string]variables.Value, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	attrs := make(map[string]variables.Value, len(u.readings))
	for name, v := range u.readings {
		attrs[name] = variables.Number(v)
	}
	return attrs, nil
}

// ModuleState is the observable state of an attached module.
type ModuleState struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Relay       bool    `json:"relay" yaml:"relay"`
	Load        float64 `json:"load" yaml:"load"`
	Temperature float64 `json:"temperature" yaml:"temperature"`
	Mode        string  `json:"mode" yaml:"mode"`
}

// Module is a device attached to the unit, such as a relay board or a
// controllable load.
type Module struct {
	id    string
	rules *rulestore.Store

	mu    sync.RWMutex
	state ModuleState
	fault error
}

func NewModule(id string, rules ...rulestore.Rule) *Module {
	return &Module{id: id, rules: rulestore.New(rules...)}
}

func (m *Module) ID() string              { return m.id }
func (m *Module) Kind() OwnerKind         { return ModuleOwner }
func (m *Module) Rules() *rulestore.Store { return m.rules }

func (m *Module) State() ModuleState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Module) SetState(s ModuleState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
}

// Update applies fn to the state under the module's lock.
func (m *Module) Update(fn func(*ModuleState)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.state)
}

// SetFault marks the module unreachable: Attributes fails with err until
// SetFault(nil) is called.
func (m *Module) SetFault(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fault = err
}

func (m *Module) Attributes() (map[string]variables.Value, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.fault != nil {
		return nil, fmt.Errorf("module %s unreachable: %w", m.id, m.fault)
	}
	return map[string]variables.Value{
		"state":       variables.Bool(m.state.Enabled),
		"relay":       variables.Bool(m.state.Relay),
		"load":        variables.Number(m.state.Load),
		"temperature": variables.Number(m.state.Temperature),
		"mode":        variables.Text(m.state.Mode),
	}, nil
}
