// Package main implements the assistant CLI: the command-line surface
// over the hierarchical memory system, the query router, and the task
// orchestrator.
//
// # File Index
//
//   - main.go          - entry point, rootCmd, global flags, bootstrap/teardown
//   - cmd_memory.go     - memory record|recall|context
//   - cmd_facts.go      - facts search|stats
//   - cmd_tasks.go      - tasks create|list|delete|run
//   - cmd_schedule.go   - schedule parse
//   - cmd_identity.go   - identity show
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"assistantcore/internal/app"
	"assistantcore/internal/config"
)

var (
	workspace  string
	configPath string
	verbose    bool

	runtime *app.App
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "assistant",
	Short: "Autonomous digital-assistant core: memory, recall, and scheduled tasks",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		l, err := zcfg.Build()
		if err != nil {
			return fmt.Errorf("init console logger: %w", err)
		}
		logger = l

		// schedule parse is a pure function over an expression string; it
		// needs no workspace and must work even with no prior state.
		if cmd.Name() == "parse" {
			return nil
		}
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if workspace != "" {
			cfg.WorkspacePath = workspace
		}
		a, err := app.Open(cfg)
		if err != nil {
			logger.Error("failed to open workspace", zap.Error(err))
			return fmt.Errorf("open workspace: %w", err)
		}
		runtime = a
		registerBuiltinTemplates(runtime.Orchestrator)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logger != nil {
			_ = logger.Sync()
		}
		if runtime == nil {
			return nil
		}
		return runtime.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&workspace, "workspace", "", "workspace directory (overrides config)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "assistant.yaml", "path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug-level console logging")

	rootCmd.AddCommand(memoryCmd)
	rootCmd.AddCommand(factsCmd)
	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(identityCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
