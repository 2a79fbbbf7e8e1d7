package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/harunnryd/callagent/pkg/agent"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Accept browser calls until SIGINT or SIGTERM",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := agent.LoadConfig(configPath)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		engine, err := agent.NewEngine(ctx, agent.Options{Config: cfg, Banner: os.Stdout})
		if err != nil {
			return err
		}
		if err := engine.Start(context.Background()); err != nil {
			_ = engine.Stop()
			return err
		}
		<-ctx.Done()
		slog.Info("shutdown_requested")
		return engine.Stop()
	},
}
