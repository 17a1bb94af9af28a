package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// serveCmd runs the Task Orchestrator's background tick loop in the
// foreground until interrupted, per spec.md §4.J/§5 (a persistent
// cron-like scheduler running independently of any single CLI
// invocation). Crash recovery (§4.J) runs as part of Orchestrator.Start.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler tick loop in the foreground until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if err := runtime.Orchestrator.Start(ctx); err != nil {
			return fmt.Errorf("start orchestrator: %w", err)
		}
		logger.Info("scheduler started", zap.Duration("tick_interval", runtime.Config.GetSchedulerTick()))

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		logger.Info("shutting down scheduler")
		runtime.Orchestrator.Stop()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
