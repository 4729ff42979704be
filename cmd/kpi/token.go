package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/kpiyard/internal/config"
	"github.com/zulandar/kpiyard/internal/identity"
)

func newTokenCmd() *cobra.Command {
	var (
		configPath string
		admin      bool
		ttl        time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token <employee-id>",
		Short: "Mint an API bearer token for an employee",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.Server.JWTSecret == "" {
				return fmt.Errorf("server.jwt_secret (or KPI_JWT_SECRET) is required")
			}
			tok, err := identity.Sign([]byte(cfg.Server.JWTSecret), identity.Actor{EmployeeID: args[0], IsAdmin: admin}, ttl, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfig, "path to kpiyard config file")
	cmd.Flags().BoolVar(&admin, "admin", false, "grant the admin claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
