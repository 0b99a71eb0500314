// Package main implements the parallax CLI: a natural-language UI
// automation runner built from four cooperating agents (Planner, Executor,
// Observer, Archivist) coordinated by a self-healing orchestrator.
//
// Entry point and command registration, grounded on the teacher's
// cmd/nerd/main.go (rootCmd, PersistentPreRunE/PersistentPostRun zap +
// internal logging bootstrap, global persistent flags).
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"parallax/internal/logging"
)

var (
	verbose    bool
	configPath string
	workspace  string
	timeout    time.Duration

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "parallax",
	Short: "Parallax - natural-language UI automation runner",
	Long: `Parallax turns a natural-language task into a browser automation run.

A Planner agent drafts a plan, an Executor agent drives it against a real
browser through a locator-resolution cascade, an Observer agent captures
state after every action, and an Archivist agent persists the run as a
reusable dataset. A self-healing orchestrator retries failed attempts with
adjustments learned from each failure.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		ws := workspace
		if ws == "" {
			ws, _ = os.Getwd()
		}
		_ = godotenv.Load(filepath.Join(ws, ".env"))

		if err := logging.Initialize(ws); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to initialize file logging: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "parallax.yaml", "path to the config file")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "workspace directory (default: current)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "run timeout")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(constitutionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
