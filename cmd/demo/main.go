package main

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chosenoffset/gridrules/pkg/gridrules"
	"github.com/chosenoffset/gridrules/pkg/gridrules/actions"
	"github.com/chosenoffset/gridrules/pkg/gridrules/dashboard"
	"github.com/chosenoffset/gridrules/pkg/gridrules/rulestore"
)

func main() {
	fmt.Println("Starting gridrules demo...")

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	unit := gridrules.NewUnit("meter-1",
		rulestore.NewRule(10, `voltage > 250 OR voltage < 210`, "voltage_alarm"),
		rulestore.NewRule(5, `frequency < 49.8`, "underfrequency"),
		rulestore.NewRule(1, `power_factor < 0.85 AND active_power > 2000`, "poor_power_factor"),
	)
	heater := gridrules.NewModule("heater",
		rulestore.NewRule(10, `relay == 1 AND (voltage < 215 OR frequency < 49.8)`, "relay_off"),
		rulestore.NewRule(5, `relay == 0 AND voltage >= 225 AND frequency >= 49.9`, "relay_on"),
		rulestore.NewRule(1, `temperature > 70`, "relay_off"),
	)
	heater.SetState(gridrules.ModuleState{Enabled: true, Relay: true, Load: 0.6, Mode: "eco"})
	battery := gridrules.NewModule("battery",
		rulestore.NewRule(1, `mode IN ["idle"] AND active_power > 2500`, "discharge"),
		rulestore.NewRule(0, `mode == "discharge" AND active_power < 1500`, "idle"),
	)
	battery.SetState(gridrules.ModuleState{Enabled: true, Mode: "idle"})

	registry := gridrules.NewRegistry(unit)
	for _, m := range []*gridrules.Module{heater, battery} {
		if err := registry.AddModule(m); err != nil {
			log.Fatalf("add module: %v", err)
		}
	}

	opts := gridrules.DefaultOptions()
	opts.Interval = 2 * time.Second

	queue := actions.NewQueue(64)
	handlers := actions.NewRegistry()
	engine := gridrules.NewEngine(registry, queue, opts, logger)
	server := dashboard.NewServer(":9090", gridrules.NewManagement(engine), logger)
	engine.SetEventSink(server.SendEventUpdate)

	logCommands := actions.NewLogHandler(logger)
	feed := actions.NewDashboardHandler(server.SendEventUpdate)
	handlers.RegisterHandler(actions.UnitCommandKind, logCommands)
	handlers.RegisterHandler(actions.UnitCommandKind, feed)
	handlers.RegisterHandler(actions.ModuleCommandKind, logCommands)
	handlers.RegisterHandler(actions.ModuleCommandKind, actuator(registry))
	handlers.RegisterHandler(actions.ModuleCommandKind, feed)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(ctx) })
	g.Go(func() error { return actions.NewControl(queue, handlers, logger).Run(ctx) })
	g.Go(func() error { return engine.Run(ctx) })
	g.Go(func() error { return simulate(ctx, unit, heater) })

	fmt.Println("Dashboard API available at: http://localhost:9090")
	fmt.Println("API endpoints:")
	fmt.Println("  - GET  /api/status                - Engine state and totals")
	fmt.Println("  - GET  /api/owners                - Unit and modules")
	fmt.Println("  - GET  /api/owners/{id}/rules     - Rules of one owner")
	fmt.Println("  - POST /api/rules/validate        - Check an expression")
	fmt.Println("  - POST /api/pause, /api/resume    - Hold or release the engine")
	fmt.Println("  - GET  /ws                        - Live event feed")
	fmt.Println()
	fmt.Println("Simulating grid readings to trigger rules...")

	engine.MarkReady()
	if err := g.Wait(); err != nil {
		log.Fatalf("demo: %v", err)
	}
}

// actuator applies module commands to the simulated modules.
func actuator(registry *gridrules.Registry) actions.Handler {
	return actions.HandlerFunc(func(_ context.Context, m actions.Message) error {
		env := m.Env()
		owner, err := registry.Owner(env.Owner)
		if err != nil {
			return err
		}
		module, ok := owner.(*gridrules.Module)
		if !ok {
			return fmt.Errorf("%s is not a module", env.Owner)
		}

		switch env.Command {
		case "relay_on", "relay_off":
			module.Update(func(s *gridrules.ModuleState) { s.Relay = env.Command == "relay_on" })
		case "discharge", "idle":
			module.Update(func(s *gridrules.ModuleState) { s.Mode = env.Command })
		default:
			return fmt.Errorf("module %s: unknown command %q", env.Owner, env.Command)
		}
		return nil
	})
}

// simulate drifts the unit's readings around nominal values with the
// occasional sag, and heats or cools the heater with its relay.
func simulate(ctx context.Context, unit *gridrules.Unit, heater *gridrules.Module) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		phase := time.Since(start).Seconds() / 20
		voltage := 230 + 18*math.Sin(phase) + rand.NormFloat64()*2
		frequency := 50 + 0.15*math.Sin(phase/3) + rand.NormFloat64()*0.02
		if rand.IntN(15) == 0 {
			voltage -= 25
			fmt.Println("Injected voltage sag")
		}

		state := heater.State()
		heaterPower := 0.0
		if state.Relay {
			heaterPower = 2000 * state.Load
		}
		current := (800 + heaterPower) / voltage
		pf := 0.92 + rand.NormFloat64()*0.04
		apparent := voltage * current
		active := apparent * pf

		err := unit.SetReadings(map[string]float64{
			gridrules.Voltage:       voltage,
			gridrules.Current:       current,
			gridrules.Frequency:     frequency,
			gridrules.ActivePower:   active,
			gridrules.ApparentPower: apparent,
			gridrules.ReactivePower: math.Sqrt(math.Max(apparent*apparent-active*active, 0)),
			gridrules.PowerFactor:   pf,
			gridrules.Energy:        unit.Readings()[gridrules.Energy] + active/3600/1000,
		})
		if err != nil {
			return err
		}

		heater.Update(func(s *gridrules.ModuleState) {
			if s.Relay {
				s.Temperature = math.Min(s.Temperature+1.5, 90)
			} else {
				s.Temperature = math.Max(s.Temperature-1, 20)
			}
		})
	}
}
