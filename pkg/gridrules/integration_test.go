package gridrules

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/chosenoffset/gridrules/pkg/gridrules/actions"
	"github.com/chosenoffset/gridrules/pkg/gridrules/rulestore"
)

func TestIntegrationSuite(t *testing.T) {
	t.Run("ClosedLoop", testClosedLoop)
	t.Run("QueueBackpressure", testQueueBackpressure)
	t.Run("ConcurrentOperations", testConcurrentOperations)
}

// run starts the engine and control loop and returns a stop function that
// waits for both.
func run(t *testing.T, engine *Engine, control *actions.Control) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return control.Run(ctx) })
	g.Go(func() error { return engine.Run(ctx) })
	engine.MarkReady()
	return func() {
		cancel()
		require.NoError(t, g.Wait())
	}
}

func testClosedLoop(t *testing.T) {
	unit := NewUnit("unit-1")
	require.NoError(t, unit.SetReading(Voltage, 262))
	heater := NewModule("heater",
		rulestore.NewRule(2, `relay == 1 AND voltage > 250`, "relay_off"),
		rulestore.NewRule(1, `relay == 0 AND voltage <= 250`, "relay_on"),
	)
	heater.SetState(ModuleState{Enabled: true, Relay: true})

	registry := NewRegistry(unit)
	require.NoError(t, registry.AddModule(heater))

	queue := actions.NewQueue(16)
	handlers := actions.NewRegistry()
	handlers.RegisterHandler(actions.ModuleCommandKind, actions.HandlerFunc(
		func(_ context.Context, m actions.Message) error {
			on := m.Env().Command == "relay_on"
			heater.Update(func(s *ModuleState) { s.Relay = on })
			return nil
		}))

	opts := DefaultOptions()
	opts.Interval = 2 * time.Millisecond
	engine := NewEngine(registry, queue, opts, nil)
	control := actions.NewControl(queue, handlers, nil)
	stop := run(t, engine, control)
	defer stop()

	require.Eventually(t, func() bool { return !heater.State().Relay },
		time.Second, time.Millisecond, "overvoltage switches the heater off")

	require.NoError(t, unit.SetReading(Voltage, 231))
	require.Eventually(t, func() bool { return heater.State().Relay },
		time.Second, time.Millisecond, "nominal voltage switches it back on")

	assert.GreaterOrEqual(t, control.Handled(), uint64(2))
	assert.Zero(t, control.Failed())
}

func testQueueBackpressure(t *testing.T) {
	unit := NewUnit("unit-1",
		rulestore.NewRule(3, `voltage >= 0`, "a"),
		rulestore.NewRule(2, `voltage >= 0`, "b"),
		rulestore.NewRule(1, `voltage >= 0`, "c"),
	)
	queue := actions.NewQueue(1)
	engine := NewEngine(NewRegistry(unit), queue, DefaultOptions(), nil)

	stats, err := engine.RunCycle()
	require.NoError(t, err)
	assert.Equal(t, 3, stats.RulesMatched)
	assert.Equal(t, 1, stats.Dispatched)
	assert.Equal(t, 2, stats.Dropped)
	assert.Equal(t, uint64(2), queue.Dropped())

	m := <-queue.Receive()
	assert.Equal(t, "a", m.Env().Command, "the highest priority command got through")
}

func testConcurrentOperations(t *testing.T) {
	unit := NewUnit("unit-1", rulestore.NewRule(1, `voltage > 240`, "alarm"))
	registry := NewRegistry(unit)
	for i := range 4 {
		m := NewModule(fmt.Sprintf("m%d", i), rulestore.NewRule(1, `load > 0.5`, "shed"))
		require.NoError(t, registry.AddModule(m))
	}

	queue := actions.NewQueue(1024)
	handlers := actions.NewRegistry()
	noop := actions.HandlerFunc(func(context.Context, actions.Message) error { return nil })
	handlers.RegisterHandler(actions.UnitCommandKind, noop)
	handlers.RegisterHandler(actions.ModuleCommandKind, noop)

	opts := DefaultOptions()
	opts.Interval = time.Millisecond
	engine := NewEngine(registry, queue, opts, nil)
	mgmt := NewManagement(engine)
	stop := run(t, engine, actions.NewControl(queue, handlers, nil))

	var wg sync.WaitGroup
	for w := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			owner := fmt.Sprintf("m%d", w)
			for i := range 50 {
				rules := []rulestore.Rule{rulestore.NewRule(i, fmt.Sprintf(`load > %d`, i%3), "shed")}
				assert.NoError(t, mgmt.ReplaceRules(owner, rules))
				assert.NoError(t, mgmt.SetReadings(map[string]float64{Voltage: float64(200 + i)}))
				if i%10 == 0 {
					mgmt.Pause()
					mgmt.Resume()
				}
				_ = mgmt.Status()
			}
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool { return engine.Cycles().Totals().Cycles > 0 },
		time.Second, time.Millisecond)
	stop()

	totals := engine.Cycles().Totals()
	assert.Zero(t, totals.AbortedCycles)
	assert.Zero(t, totals.RuleFailures)
	for _, o := range registry.Owners()[1:] {
		assert.Equal(t, 1, o.Rules().Len())
	}
}
