package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose bool
	cfgPath string
	envPath string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command. It is assigned in init rather than in
// its declaration because the command's hooks refer back to rootCmd, which
// the compiler rejects as an initialization cycle in a var initializer.
var rootCmd *cobra.Command

func init() {
	rootCmd = &cobra.Command{
		Use:   "hivemind",
		Short: "hivemind - confidence-based task assignment for a hive of agents",
		Long: `hivemind runs a hive of specialist agents behind one orchestrator.

Mention the orchestrator with a request and it opens a coordination thread
where every specialist posts a confidence report. The most confident
specialist is assigned directly; when nobody clears the discussion threshold
the hive negotiates over multiple rounds before assigning, and it declines
outright when no one reaches minimum confidence.

Run without arguments to start the interactive console.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Skip logger init for interactive mode (it has its own UI)
			if cmd.Name() == rootCmd.Name() || cmd.Name() == "console" {
				return nil
			}

			// Initialize logger
			config := zap.NewProductionConfig()
			if verbose {
				config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			var err error
			logger, err = config.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Default behavior: launch the interactive console
			return runConsole(cmd, args)
		},
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "hivemind.yaml", "Path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&envPath, "env", ".env", "Path to an optional dotenv file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(consoleCmd)
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
