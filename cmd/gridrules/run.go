package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chosenoffset/gridrules/pkg/gridrules"
	"github.com/chosenoffset/gridrules/pkg/gridrules/actions"
	"github.com/chosenoffset/gridrules/pkg/gridrules/dashboard"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the rule engine until interrupted",
	Long: `Builds the unit and modules from the configuration, then runs the
command control loop, the rule engine and, when enabled, the management
dashboard until SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runEngine,
}

func runEngine(cmd *cobra.Command, _ []string) error {
	opts, err := cfg.Options()
	if err != nil {
		return err
	}
	registry, err := cfg.BuildRegistry()
	if err != nil {
		return err
	}

	queue := actions.NewQueue(cfg.Engine.QueueSize)
	handlers := actions.NewRegistry()
	logHandler := actions.NewLogHandler(logger)
	handlers.RegisterHandler(actions.UnitCommandKind, logHandler)
	handlers.RegisterHandler(actions.ModuleCommandKind, logHandler)

	engine := gridrules.NewEngine(registry, queue, opts, logger)
	control := actions.NewControl(queue, handlers, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	if cfg.Dashboard.Enabled {
		server := dashboard.NewServer(cfg.Dashboard.Addr, gridrules.NewManagement(engine), logger)
		engine.SetEventSink(server.SendEventUpdate)
		feed := actions.NewDashboardHandler(server.SendEventUpdate)
		handlers.RegisterHandler(actions.UnitCommandKind, feed)
		handlers.RegisterHandler(actions.ModuleCommandKind, feed)
		g.Go(func() error { return server.Run(ctx) })
	}
	g.Go(func() error { return control.Run(ctx) })
	g.Go(func() error { return engine.Run(ctx) })

	logger.Info("gridrules starting",
		zap.String("unit", registry.Unit().ID()),
		zap.Int("modules", len(registry.Modules())),
		zap.Bool("dashboard", cfg.Dashboard.Enabled))
	engine.MarkReady()

	err = g.Wait()
	logger.Info("gridrules stopped",
		zap.Uint64("commands_sent", queue.Sent()),
		zap.Uint64("commands_dropped", queue.Dropped()),
		zap.Uint64("commands_handled", control.Handled()),
		zap.Uint64("commands_failed", control.Failed()))
	return err
}
