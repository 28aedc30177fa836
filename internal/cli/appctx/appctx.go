// Package appctx provides a shared bootstrap helper for CLI commands.
// It centralizes config loading, database opening, and registry setup
// to reduce boilerplate across commands.
package appctx

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lherron/curio/internal/config"
	"github.com/lherron/curio/internal/db"
	"github.com/lherron/curio/internal/registry"
	"github.com/lherron/curio/internal/store"
)

// App holds the shared application context for commands.
type App struct {
	// Config is the loaded configuration
	Config *config.Config

	// DB is the opened database connection (nil if NeedsDB is false)
	DB *db.DB

	// Registry holds the registered record types, with any policy-file
	// overrides already applied
	Registry *registry.Registry

	// Store wraps DB with record primitives (nil if NeedsDB is false)
	Store *store.Store

	// Actor is the acting identity for audit purposes. Empty means
	// anonymous; merges are still recorded.
	Actor string
}

// Close releases resources held by the App.
// Safe to call multiple times.
func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
		a.DB = nil
	}
}

// Options configures the bootstrap behavior.
type Options struct {
	// NeedsDB indicates whether to open the database.
	// Defaults to true.
	NeedsDB bool
}

// DefaultOptions returns default options (DB required).
func DefaultOptions() Options {
	return Options{NeedsDB: true}
}

// RunFunc is the signature for command run functions.
type RunFunc func(app *App, cmd *cobra.Command, args []string) error

// WithApp wraps a command's run function with shared bootstrap logic.
// It loads config, opens the database, and builds the registry and store.
// The database is closed automatically when the wrapped function returns.
func WithApp(opts Options, fn RunFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		app, err := Bootstrap(cmd, opts)
		if err != nil {
			return err
		}
		defer app.Close()

		return fn(app, cmd, args)
	}
}

// Bootstrap initializes the App according to the given options.
// Callers are responsible for calling App.Close() when done.
func Bootstrap(cmd *cobra.Command, opts Options) (*App, error) {
	app := &App{}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	app.Config = cfg

	// Override DB path from --db flag if provided
	if dbFlag := cmd.Flag("db"); dbFlag != nil {
		if dbPath := dbFlag.Value.String(); dbPath != "" {
			app.Config.DBPath = dbPath
		}
	}

	// Override policy file from --policy flag if provided
	if policyFlag := cmd.Flag("policy"); policyFlag != nil {
		if policyPath := policyFlag.Value.String(); policyPath != "" {
			app.Config.PolicyPath = policyPath
		}
	}

	// Build the type registry, applying policy overrides when configured
	reg := registry.Default()
	if app.Config.PolicyPath != "" {
		if err := reg.LoadPolicyFile(app.Config.PolicyPath); err != nil {
			return nil, fmt.Errorf("failed to load policy file: %w", err)
		}
	}
	app.Registry = reg

	// Open database if needed
	if opts.NeedsDB {
		database, err := db.Open(app.Config.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Check for pending migrations
		_, pending, err := database.MigrationStatus()
		if err != nil {
			database.Close()
			return nil, fmt.Errorf("failed to check migration status: %w", err)
		}
		if len(pending) > 0 {
			database.Close()
			return nil, fmt.Errorf("database requires migration: %d pending migration(s). Run 'curio init' to update", len(pending))
		}

		app.DB = database
		app.Store = store.New(database, reg)
	}

	// Resolve actor from --as flag, env, or config; empty is allowed
	if asFlag := cmd.Flag("as"); asFlag != nil {
		app.Actor = asFlag.Value.String()
	}
	if app.Actor == "" {
		app.Actor = cfg.GetActor()
	}

	return app, nil
}
