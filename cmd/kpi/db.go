package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zulandar/kpiyard/internal/config"
	"github.com/zulandar/kpiyard/internal/db"
	"golang.org/x/term"
	"gorm.io/gorm"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBInitCmd())
	cmd.AddCommand(newDBResetCmd())
	return cmd
}

func newDBInitCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the kpiyard database",
		Long:  "Migrates all tables and seeds KPI types and cycles from the config file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBInit(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfig, "path to kpiyard config file")
	return cmd
}

func runDBInit(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Connected to %s database\n", cfg.Database.Driver)

	if err := migrateAndSeed(out, gormDB, cfg); err != nil {
		return err
	}
	fmt.Fprintln(out, "\nkpiyard database initialized successfully.")
	return nil
}

func migrateAndSeed(out io.Writer, gormDB *gorm.DB, cfg *config.Config) error {
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))

	if err := db.SeedKpiTypes(gormDB, cfg.KpiTypes); err != nil {
		return err
	}
	fmt.Fprintf(out, "Seeded %d KPI types\n", len(cfg.KpiTypes))

	if err := db.SeedCycles(gormDB, cfg.Cycles); err != nil {
		return err
	}
	assignments := 0
	for _, c := range cfg.Cycles {
		assignments += len(c.Assignments)
	}
	fmt.Fprintf(out, "Seeded %d cycles with %d assignments\n", len(cfg.Cycles), assignments)
	return nil
}

func newDBResetCmd() *cobra.Command {
	var (
		configPath string
		yes        bool
	)

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop and re-initialize the kpiyard database",
		Long: `Drops every kpiyard table, then migrates and seeds again from config.
Plans, scores and notifications are lost.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBReset(cmd, configPath, yes)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfig, "path to kpiyard config file")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation prompt")
	return cmd
}

func runDBReset(cmd *cobra.Command, configPath string, skipConfirm bool) error {
	out := cmd.OutOrStdout()

	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	if !skipConfirm {
		if !interactive(cmd.InOrStdin()) {
			return fmt.Errorf("refusing to reset without a terminal; pass --yes")
		}
		if !confirmReset(cmd, cfg.Database.Driver) {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	if err := db.DropAll(gormDB); err != nil {
		return err
	}
	fmt.Fprintln(out, "Dropped all tables")

	if err := migrateAndSeed(out, gormDB, cfg); err != nil {
		return err
	}
	fmt.Fprintln(out, "\nkpiyard database reset and re-initialized successfully.")
	return nil
}

// interactive reports whether in is a terminal. Readers that are not files
// (tests feeding a buffer) count as interactive.
func interactive(in io.Reader) bool {
	f, ok := in.(*os.File)
	if !ok {
		return true
	}
	return term.IsTerminal(int(f.Fd()))
}

func confirmReset(cmd *cobra.Command, driver string) bool {
	out := cmd.OutOrStdout()
	in := cmd.InOrStdin()

	fmt.Fprintf(out, "WARNING: This will permanently delete all kpiyard data in the %s database.\n", driver)
	fmt.Fprintln(out, "This action cannot be undone.")
	fmt.Fprintln(out)
	fmt.Fprint(out, "Type \"yes\" to confirm: ")

	scanner := bufio.NewScanner(in)
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text()) == "yes"
	}
	return false
}
