package metrics

import (
	"sync"
	"time"
)

// CycleStats summarises one reasoning pass over every owner.
type CycleStats struct {
	CycleID        string        `json:"cycle_id"`
	Sequence       uint64        `json:"sequence"`
	Started        time.Time     `json:"started"`
	Duration       time.Duration `json:"duration"`
	OwnersReasoned int           `json:"owners_reasoned"`
	OwnerFailures  int           `json:"owner_failures"`
	RulesEvaluated int           `json:"rules_evaluated"`
	RulesMatched   int           `json:"rules_matched"`
	RuleFailures   int           `json:"rule_failures"`
	Dispatched     int           `json:"dispatched"`
	Dropped        int           `json:"dropped"`

	// Aborted is set when the pass stopped before reaching every owner.
	Aborted bool   `json:"aborted"`
	Failure string `json:"failure,omitempty"`
}

// Totals accumulates CycleStats over the collector's lifetime, including
// cycles that have since fallen out of the history window.
type Totals struct {
	Cycles         uint64 `json:"cycles"`
	AbortedCycles  uint64 `json:"aborted_cycles"`
	OwnerFailures  uint64 `json:"owner_failures"`
	RulesEvaluated uint64 `json:"rules_evaluated"`
	RulesMatched   uint64 `json:"rules_matched"`
	RuleFailures   uint64 `json:"rule_failures"`
	Dispatched     uint64 `json:"dispatched"`
	Dropped        uint64 `json:"dropped"`
}

type CycleCollector struct {
	mu         sync.RWMutex
	current    CycleStats
	history    []CycleStats
	maxHistory int
	totals     Totals
}

func NewCycleCollector(maxHistory int) *CycleCollector {
	if maxHistory <= 0 {
		maxHistory = 360
	}
	return &CycleCollector{
		history:    make([]CycleStats, 0, maxHistory),
		maxHistory: maxHistory,
	}
}

func (cc *CycleCollector) Record(stats CycleStats) {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	cc.current = stats
	cc.history = append(cc.history, stats)
	if len(cc.history) > cc.maxHistory {
		copy(cc.history, cc.history[1:])
		cc.history = cc.history[:cc.maxHistory]
	}

	cc.totals.Cycles++
	if stats.Aborted {
		cc.totals.AbortedCycles++
	}
	cc.totals.OwnerFailures += uint64(stats.OwnerFailures)
	cc.totals.RulesEvaluated += uint64(stats.RulesEvaluated)
	cc.totals.RulesMatched += uint64(stats.RulesMatched)
	cc.totals.RuleFailures += uint64(stats.RuleFailures)
	cc.totals.Dispatched += uint64(stats.Dispatched)
	cc.totals.Dropped += uint64(stats.Dropped)
}

// GetCurrent returns the most recent cycle, or the zero value before the
// first one is recorded.
func (cc *CycleCollector) GetCurrent() CycleStats {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return cc.current
}

func (cc *CycleCollector) GetHistory() []CycleStats {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	history := make([]CycleStats, len(cc.history))
	copy(history, cc.history)
	return history
}

// GetHistoryWindow returns the cycles that started within the last d.
func (cc *CycleCollector) GetHistoryWindow(d time.Duration) []CycleStats {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	cutoff := time.Now().Add(-d)
	result := []CycleStats{}
	for _, stats := range cc.history {
		if stats.Started.After(cutoff) {
			result = append(result, stats)
		}
	}
	return result
}

func (cc *CycleCollector) Totals() Totals {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return cc.totals
}

// AverageDuration is the mean pass duration over the last d.
func (cc *CycleCollector) AverageDuration(d time.Duration) time.Duration {
	window := cc.GetHistoryWindow(d)
	if len(window) == 0 {
		return 0
	}
	var sum time.Duration
	for _, stats := range window {
		sum += stats.Duration
	}
	return sum / time.Duration(len(window))
}
