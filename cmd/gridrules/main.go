// Command gridrules runs the rule engine for a measuring unit and its
// attached modules, and offers tools for writing rules.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chosenoffset/gridrules/internal/config"
	"github.com/chosenoffset/gridrules/internal/logging"
)

var (
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "gridrules",
	Short: "Priority-ordered automation rules for a power measuring unit",
	Long: `gridrules periodically evaluates user-written rules against the
readings of a measuring unit and the state of its attached modules, and
dispatches the command of every rule that holds.

Rules are boolean expressions over named variables, for example:

  voltage > 250 AND frequency < 49.8
  mode IN ["eco", "night"] OR NOT (relay == 1)`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}
		logger, err = logging.New(cfg.Logging)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "gridrules.yaml", "configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	evalCmd.Flags().StringArrayVar(&evalVars, "var", nil, "bind a variable, name=value (repeatable)")

	rootCmd.AddCommand(runCmd, checkCmd, lexCmd, evalCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
