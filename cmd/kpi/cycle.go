package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/kpiyard/internal/cycle"
	"github.com/zulandar/kpiyard/internal/gate"
	"github.com/zulandar/kpiyard/internal/models"
)

func newGatesCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "gates <cycle-id>",
		Short: "Show which activities of a cycle are open",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			c, err := cycle.Get(cmd.Context(), gormDB, args[0])
			if err != nil {
				return err
			}
			printGates(cmd, c, time.Now())
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfig, "path to kpiyard config file")
	return cmd
}

func printGates(cmd *cobra.Command, c *models.Cycle, now time.Time) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Cycle %s (%s)", c.ID, c.Name)
	if c.ClosedAt != nil {
		fmt.Fprintf(out, " closed %s", c.ClosedAt.Format(time.RFC3339))
	}
	fmt.Fprintln(out)
	for _, t := range []string{models.ActivityDefine, models.ActivityEvaluate, models.ActivitySummary} {
		state := "closed"
		if a := c.Activity(t); a != nil && gate.IsOpen(*a, now) {
			state = "open"
		}
		fmt.Fprintf(out, "  %-9s %s%s\n", t, state, window(c.Activity(t)))
	}
}

func window(a *models.Activity) string {
	if a == nil || (a.StartAt == nil && a.EndAt == nil) {
		return ""
	}
	format := func(t *time.Time) string {
		if t == nil {
			return "…"
		}
		return t.Format("2006-01-02 15:04")
	}
	return fmt.Sprintf("  [%s → %s]", format(a.StartAt), format(a.EndAt))
}

func newCycleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cycle",
		Short: "Evaluation cycle commands",
	}

	cmd.AddCommand(newCycleListCmd())
	cmd.AddCommand(newCycleCloseCmd())
	cmd.AddCommand(newCycleRollCmd())
	return cmd
}

func newCycleListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cycles",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			cycles, err := cycle.List(cmd.Context(), gormDB)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(cycles) == 0 {
				fmt.Fprintln(out, "No cycles found.")
				return nil
			}
			for _, c := range cycles {
				status := "open"
				if c.ClosedAt != nil {
					status = "closed"
				}
				recurrence := c.Recurrence
				if recurrence == "" {
					recurrence = "-"
				}
				fmt.Fprintf(out, "%-36s  %-6s  %-18s  %-14s  %s\n", c.ID, status, c.DefineMode, recurrence, c.Name)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfig, "path to kpiyard config file")
	return cmd
}

func newCycleCloseCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "close <cycle-id>",
		Short: "Freeze a cycle against further writes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			if err := cycle.Close(cmd.Context(), gormDB, args[0], time.Now()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Closed cycle %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfig, "path to kpiyard config file")
	return cmd
}

func newCycleRollCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "roll <cycle-id>",
		Short: "Create the next period of a recurring cycle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			next, err := cycle.Roll(cmd.Context(), gormDB, args[0], time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created cycle %s (%s)\n", next.ID, next.Name)
			printGates(cmd, next, time.Now())
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfig, "path to kpiyard config file")
	return cmd
}
