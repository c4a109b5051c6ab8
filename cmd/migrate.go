package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nutribot/nutribot/internal/config"
	"github.com/nutribot/nutribot/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrate()
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := storage.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := storage.Migrate(db); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}

	fmt.Printf("database %s is up to date\n", cfg.DatabasePath)
	return nil
}
