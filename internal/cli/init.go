package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lherron/curio/internal/config"
	"github.com/lherron/curio/internal/db"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the catalog database",
	Long: `Initialize creates the SQLite database and runs any pending schema
migrations. Safe to run repeatedly; an up-to-date database is left alone.`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return exitError(1, fmt.Errorf("failed to load config: %w", err))
	}

	// Override DB path from flag if provided
	if dbPath := cmd.Flag("db").Value.String(); dbPath != "" {
		cfg.DBPath = dbPath
	}

	// Check if database already exists
	dbExists := false
	if _, err := os.Stat(cfg.DBPath); err == nil {
		dbExists = true
	}

	// Open database (creates file if it doesn't exist)
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return exitError(1, fmt.Errorf("failed to open database: %w", err))
	}
	defer database.Close()

	// Run migrations
	applied, err := database.Migrate()
	if err != nil {
		return exitError(1, fmt.Errorf("failed to run migrations: %w", err))
	}

	if !dbExists {
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Initialized new database at %s\n", cfg.DBPath)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Database already initialized at %s\n", cfg.DBPath)
	}
	if len(applied) > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Applied %d migration(s)\n", len(applied))
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Schema up to date\n")
	}

	return nil
}
