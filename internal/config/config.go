package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chosenoffset/gridrules/pkg/gridrules"
	"github.com/chosenoffset/gridrules/pkg/gridrules/rulestore"
)

// Config holds the gridrules configuration.
type Config struct {
	Engine    EngineConfig    `yaml:"engine"`
	Logging   LoggingConfig   `yaml:"logging"`
	Dashboard DashboardConfig `yaml:"dashboard"`

	// Unit is the measuring device; Modules are attached to it and are
	// reasoned about in the order listed.
	Unit    UnitConfig     `yaml:"unit"`
	Modules []ModuleConfig `yaml:"modules"`
}

type EngineConfig struct {
	Interval           string `yaml:"interval"`
	MatchPolicy        string `yaml:"match_policy"`         // all, first
	OwnerFailurePolicy string `yaml:"owner_failure_policy"` // continue, abort
	MaxRuleComplexity  int    `yaml:"max_rule_complexity"`
	HistorySize        int    `yaml:"history_size"`
	QueueSize          int    `yaml:"queue_size"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`  // debug, info, warn, error
	Format      string `yaml:"format"` // json, console
	Development bool   `yaml:"development"`
}

type DashboardConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type UnitConfig struct {
	ID       string             `yaml:"id"`
	Readings map[string]float64 `yaml:"readings,omitempty"`
	Rules    []rulestore.Record `yaml:"rules"`
}

type ModuleConfig struct {
	ID    string                `yaml:"id"`
	State gridrules.ModuleState `yaml:"state"`
	Rules []rulestore.Record    `yaml:"rules"`
}

// DefaultConfig returns the default configuration: one unit and no modules.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Interval:           "10s",
			MatchPolicy:        "all",
			OwnerFailurePolicy: "continue",
			MaxRuleComplexity:  256,
			HistorySize:        360,
			QueueSize:          64,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Dashboard: DashboardConfig{
			Enabled: true,
			Addr:    ":8090",
		},
		Unit: UnitConfig{ID: "unit"},
	}
}

// Load reads a YAML configuration over the defaults. A missing file yields
// the defaults. Environment overrides are applied either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() error {
	if level := os.Getenv("GRIDRULES_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if addr := os.Getenv("GRIDRULES_DASHBOARD_ADDR"); addr != "" {
		c.Dashboard.Addr = addr
	}
	if interval := os.Getenv("GRIDRULES_INTERVAL"); interval != "" {
		if _, err := time.ParseDuration(interval); err != nil {
			return fmt.Errorf("GRIDRULES_INTERVAL: %w", err)
		}
		c.Engine.Interval = interval
	}
	return nil
}

// Options converts the engine section.
func (c *Config) Options() (gridrules.Options, error) {
	opts := gridrules.DefaultOptions()

	if c.Engine.Interval != "" {
		d, err := time.ParseDuration(c.Engine.Interval)
		if err != nil {
			return opts, fmt.Errorf("engine.interval: %w", err)
		}
		if d <= 0 {
			return opts, fmt.Errorf("engine.interval must be positive, got %s", d)
		}
		opts.Interval = d
	}

	var err error
	if opts.MatchPolicy, err = gridrules.ParseMatchPolicy(c.Engine.MatchPolicy); err != nil {
		return opts, fmt.Errorf("engine.match_policy: %w", err)
	}
	if opts.OwnerFailurePolicy, err = gridrules.ParseOwnerFailurePolicy(c.Engine.OwnerFailurePolicy); err != nil {
		return opts, fmt.Errorf("engine.owner_failure_policy: %w", err)
	}
	if c.Engine.MaxRuleComplexity != 0 {
		opts.MaxRuleComplexity = c.Engine.MaxRuleComplexity
	}
	if c.Engine.HistorySize > 0 {
		opts.HistorySize = c.Engine.HistorySize
	}
	return opts, nil
}

// OwnerRules is the rule list configured for one owner.
type OwnerRules struct {
	Owner string
	Rules []rulestore.Rule
}

// Rules converts every owner's records, unit first. Each incomplete record
// is reported; the error is nil only when every record converted.
func (c *Config) Rules() ([]OwnerRules, error) {
	var errs []error
	convert := func(owner string, records []rulestore.Record) OwnerRules {
		result := rulestore.Document{Rules: records}.Load()
		for _, err := range result.Errors {
			errs = append(errs, fmt.Errorf("%s: %w", owner, err))
		}
		return OwnerRules{Owner: owner, Rules: result.Rules}
	}

	out := []OwnerRules{convert(c.Unit.ID, c.Unit.Rules)}
	for _, m := range c.Modules {
		out = append(out, convert(m.ID, m.Rules))
	}
	return out, errors.Join(errs...)
}

// Validate reports every problem found in the configuration. Rule
// expressions are compiled so a bad rule is caught before the engine starts.
func (c *Config) Validate() error {
	var errs []error

	opts, err := c.Options()
	if err != nil {
		errs = append(errs, err)
	}
	if c.Engine.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("engine.queue_size must not be negative, got %d", c.Engine.QueueSize))
	}
	if c.Dashboard.Enabled && c.Dashboard.Addr == "" {
		errs = append(errs, errors.New("dashboard.addr is required when the dashboard is enabled"))
	}

	if c.Unit.ID == "" {
		errs = append(errs, errors.New("unit.id is required"))
	}
	for name := range c.Unit.Readings {
		if !slices.Contains(gridrules.UnitQuantities, name) {
			errs = append(errs, fmt.Errorf("unit.readings: %w %q", gridrules.ErrUnknownQuantity, name))
		}
	}
	seen := map[string]bool{c.Unit.ID: true}
	for i, m := range c.Modules {
		switch {
		case m.ID == "":
			errs = append(errs, fmt.Errorf("modules[%d]: id is required", i))
		case seen[m.ID]:
			errs = append(errs, fmt.Errorf("modules[%d]: %w: %q", i, gridrules.ErrDuplicateModule, m.ID))
		}
		seen[m.ID] = true
	}

	owners, err := c.Rules()
	if err != nil {
		errs = append(errs, err)
	}
	for _, o := range owners {
		for i, r := range o.Rules {
			if _, err := gridrules.Compile(r.Expression, opts.MaxRuleComplexity); err != nil {
				errs = append(errs, fmt.Errorf("%s: rule %d: %w", o.Owner, i, err))
			}
		}
	}
	return errors.Join(errs...)
}

// BuildRegistry creates the unit and modules described by the configuration.
func (c *Config) BuildRegistry() (*gridrules.Registry, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	owners, err := c.Rules()
	if err != nil {
		return nil, err
	}

	unit := gridrules.NewUnit(c.Unit.ID, owners[0].Rules...)
	if err := unit.SetReadings(c.Unit.Readings); err != nil {
		return nil, err
	}
	registry := gridrules.NewRegistry(unit)
	for i, m := range c.Modules {
		module := gridrules.NewModule(m.ID, owners[i+1].Rules...)
		module.SetState(m.State)
		if err := registry.AddModule(module); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
