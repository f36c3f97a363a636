package cli

import (
	"fmt"

	"github.com/babysteps/progression/internal/infra"
	"github.com/spf13/cobra"
)

func init() {
	downCmd.Flags().Int("steps", 1, "number of migrations to roll back")
	migrateCmd.AddCommand(upCmd, downCmd, versionCmd)
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return infra.RunMigrations(cfg.DSN(), logger)
	},
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		steps, _ := cmd.Flags().GetInt("steps")
		if steps <= 0 {
			return fmt.Errorf("--steps must be positive")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return infra.RollbackMigrations(cfg.DSN(), steps, logger)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		v, dirty, err := infra.MigrationVersion(cfg.DSN())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", v, dirty)
		return nil
	},
}
