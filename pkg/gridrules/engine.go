package gridrules

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chosenoffset/gridrules/pkg/gridrules/gate"
	"github.com/chosenoffset/gridrules/pkg/gridrules/metrics"
)

// OwnerFailurePolicy decides what a failed owner pass does to the rest of
// the cycle.
type OwnerFailurePolicy int

const (
	// ContinueOnOwnerFailure logs the failure and moves on to the next owner.
	ContinueOnOwnerFailure OwnerFailurePolicy = iota
	// AbortCycleOnOwnerFailure abandons the cycle at the failing owner.
	AbortCycleOnOwnerFailure
)

func (p OwnerFailurePolicy) String() string {
	if p == AbortCycleOnOwnerFailure {
		return "abort"
	}
	return "continue"
}

func ParseOwnerFailurePolicy(s string) (OwnerFailurePolicy, error) {
	switch strings.ToLower(s) {
	case "", "continue":
		return ContinueOnOwnerFailure, nil
	case "abort":
		return AbortCycleOnOwnerFailure, nil
	default:
		return ContinueOnOwnerFailure, fmt.Errorf("unknown owner failure policy %q (want continue or abort)", s)
	}
}

type Options struct {
	// Interval is the pause between the end of one cycle and the start of
	// the next.
	Interval           time.Duration
	MatchPolicy        MatchPolicy
	OwnerFailurePolicy OwnerFailurePolicy
	// MaxRuleComplexity caps the AST node count of a single rule.
	MaxRuleComplexity int
	// HistorySize is the number of cycles kept for inspection.
	HistorySize int
}

func DefaultOptions() Options {
	return Options{
		Interval:           10 * time.Second,
		MatchPolicy:        MatchAll,
		OwnerFailurePolicy: ContinueOnOwnerFailure,
		MaxRuleComplexity:  256,
		HistorySize:        360,
	}
}

// EventSink receives engine events, for example the dashboard feed.
type EventSink func(eventType, message, owner string, data interface{})

// Engine is the periodic reasoning task. It waits until marked ready, then
// on every cycle waits for the pause gate to be open, reasons about the unit
// and every module, and sleeps for the configured interval.
type Engine struct {
	registry *Registry
	reasoner *Reasoner
	opts     Options
	logger   *zap.Logger

	ready    *gate.Gate
	unpaused *gate.Gate

	cycles   *metrics.CycleCollector
	sequence atomic.Uint64

	mu      sync.RWMutex
	sink    EventSink
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewEngine(registry *Registry, dispatcher Dispatcher, opts Options, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultOptions().Interval
	}
	logger = logger.Named("engine")
	return &Engine{
		registry: registry,
		reasoner: NewReasoner(dispatcher, opts.MatchPolicy, opts.MaxRuleComplexity, logger),
		opts:     opts,
		logger:   logger,
		ready:    gate.New(false),
		unpaused: gate.New(true),
		cycles:   metrics.NewCycleCollector(opts.HistorySize),
	}
}

func (e *Engine) Options() Options { return e.opts }

func (e *Engine) Registry() *Registry { return e.registry }

func (e *Engine) Cycles() *metrics.CycleCollector { return e.cycles }

func (e *Engine) SetEventSink(sink EventSink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sink = sink
}

// emit delivers an event to the sink. A panicking sink is logged and the
// event is lost; the engine keeps running.
func (e *Engine) emit(eventType, message, owner string, data interface{}) {
	e.mu.RLock()
	sink := e.sink
	e.mu.RUnlock()
	if sink == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("event sink failed",
				zap.String("event", eventType),
				zap.Error(&PanicError{Value: r}))
		}
	}()
	sink(eventType, message, owner, data)
}

// MarkReady releases the engine's start-up wait. It is a one-shot signal.
func (e *Engine) MarkReady() { e.ready.Open() }

func (e *Engine) Ready() bool { return e.ready.IsOpen() }

// Pause holds the engine before its next cycle. A cycle already under way
// runs to completion.
func (e *Engine) Pause() {
	if e.unpaused.Close() {
		e.logger.Info("paused")
		e.emit("paused", "rule engine paused", "", nil)
	}
}

func (e *Engine) Resume() {
	if e.unpaused.Open() {
		e.logger.Info("resumed")
		e.emit("resumed", "rule engine resumed", "", nil)
	}
}

func (e *Engine) Paused() bool { return !e.unpaused.IsOpen() }

// Run drives cycles until ctx is cancelled. Cycle failures are logged and
// never end the loop, so Run only returns on shutdown, and then returns nil.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("waiting for readiness")
	if err := e.ready.Wait(ctx); err != nil {
		return nil
	}
	e.logger.Info("started", zap.Duration("interval", e.opts.Interval),
		zap.Stringer("match_policy", e.opts.MatchPolicy),
		zap.Stringer("owner_failure_policy", e.opts.OwnerFailurePolicy))

	for {
		if err := e.unpaused.Wait(ctx); err != nil {
			break
		}
		_, _ = e.RunCycle()
		if !sleep(ctx, e.opts.Interval) {
			break
		}
	}
	e.logger.Info("stopped")
	return nil
}

// sleep reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Start runs the engine in the background until Stop is called or ctx is
// cancelled. Start is idempotent.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	e.running = true
	e.cancel = cancel
	e.done = done

	go func() {
		defer close(done)
		_ = e.Run(ctx)
		e.mu.Lock()
		if e.done == done {
			e.running, e.cancel, e.done = false, nil, nil
		}
		e.mu.Unlock()
	}()
}

// Stop cancels a started engine and waits for it to return.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.running, e.cancel, e.done = false, nil, nil
	e.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// RunCycle performs one reasoning pass over the unit and then every module.
// The returned error is a *CycleFailure when the pass was abandoned; the
// statistics are recorded either way.
func (e *Engine) RunCycle() (stats metrics.CycleStats, err error) {
	stats = metrics.CycleStats{
		CycleID:  uuid.NewString(),
		Sequence: e.sequence.Add(1),
		Started:  time.Now(),
	}
	log := e.logger.With(zap.Uint64("cycle", stats.Sequence))

	defer func() {
		if r := recover(); r != nil {
			err = &CycleFailure{CycleID: stats.CycleID, Err: &PanicError{Value: r}}
		}
		stats.Duration = time.Since(stats.Started)
		if err != nil {
			stats.Aborted = true
			stats.Failure = err.Error()
			log.Error("cycle failed", zap.Error(err))
			e.emit("cycle_failure", err.Error(), "", stats)
		} else {
			log.Debug("cycle complete",
				zap.Int("owners", stats.OwnersReasoned),
				zap.Int("matched", stats.RulesMatched),
				zap.Duration("duration", stats.Duration))
		}
		e.cycles.Record(stats)
		e.emit("cycle", fmt.Sprintf("cycle %d complete", stats.Sequence), "", stats)
	}()

	unit := e.registry.Unit()
	for _, owner := range e.registry.Owners() {
		report, ownerErr := e.reasonOwner(unit, owner)

		stats.OwnersReasoned++
		stats.RulesEvaluated += report.Evaluated
		stats.RulesMatched += report.Matched
		stats.RuleFailures += report.Failed
		stats.Dispatched += report.Dispatched
		stats.Dropped += report.Dropped

		for _, ruleErr := range report.Errors {
			e.emit("rule_error", ruleErr.Error(), owner.ID(), nil)
		}

		if ownerErr != nil {
			stats.OwnerFailures++
			log.Error("owner reasoning failed",
				zap.String("owner", owner.ID()),
				zap.Stringer("owner_kind", owner.Kind()),
				zap.Error(ownerErr))
			e.emit("owner_error", ownerErr.Error(), owner.ID(), nil)

			if e.opts.OwnerFailurePolicy == AbortCycleOnOwnerFailure {
				return stats, &CycleFailure{CycleID: stats.CycleID, Err: ownerErr}
			}
		}
	}
	return stats, nil
}

// reasonOwner turns a panic inside one owner's pass into an *OwnerError.
func (e *Engine) reasonOwner(unit *Unit, owner Owner) (report OwnerReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			report = OwnerReport{Owner: owner.ID(), Kind: owner.Kind()}
			err = &OwnerError{Owner: owner.ID(), Kind: owner.Kind(), Err: &PanicError{Value: r}}
		}
	}()
	return e.reasoner.Reason(unit, owner)
}
