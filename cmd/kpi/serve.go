package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zulandar/kpiyard/internal/db"
	"github.com/zulandar/kpiyard/internal/notify"
	"github.com/zulandar/kpiyard/internal/plan"
	"github.com/zulandar/kpiyard/internal/scoring"
	"github.com/zulandar/kpiyard/internal/server"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the KPI HTTP API",
		Long:  "Serves the plan workflow and scoring API. Requests authenticate with an HS256 bearer token.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfig, "path to kpiyard config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides server.port)")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.Server.JWTSecret == "" {
		return fmt.Errorf("server.jwt_secret (or KPI_JWT_SECRET) is required")
	}
	if port <= 0 {
		port = cfg.Server.Port
	}

	notifier, err := notify.FromConfig(cfg.Notify, gormDB)
	if err != nil {
		return err
	}
	notes := notify.NewDispatcher(notifier, notify.DefaultTimeout)
	defer notes.Wait()

	retry := db.PolicyFromConfig(cfg.Retry)
	plans := plan.NewService(gormDB, notes)
	plans.Retry = retry
	scores := scoring.NewService(gormDB, notes)
	scores.Retry = retry

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
		cancel()
	}()

	return server.Start(ctx, server.StartOpts{
		DB:      gormDB,
		Plans:   plans,
		Scoring: scores,
		Secret:  []byte(cfg.Server.JWTSecret),
		Port:    port,
		Out:     cmd.OutOrStdout(),
	})
}
