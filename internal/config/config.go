// Package config loads application configuration from the environment, an
// optional .env.local, and an optional user-level YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	DBPath       string `yaml:"db_path"`
	PolicyPath   string `yaml:"policy_path"` // optional merge-policy overrides
	DefaultActor string `yaml:"default_actor"`
	Output       string `yaml:"output"`
}

// Load loads configuration from multiple sources with precedence:
// 1. Environment variables
// 2. ./.env.local (dotenv) - walks up parent directories to find it
// 3. ~/.config/curio/config.yaml (YAML)
func Load() (*Config, error) {
	cfg := &Config{
		Output: "table",
	}

	// Load .env.local if it exists (walking up parent directories)
	if envPath := findEnvLocal(); envPath != "" {
		_ = godotenv.Load(envPath)
	}

	// Load ~/.config/curio/config.yaml if it exists; the file is optional.
	_ = loadYAMLConfig(cfg)

	// Override with environment variables
	if dbPath := os.Getenv("CURIO_DB_PATH"); dbPath != "" {
		cfg.DBPath = dbPath
	}
	if policyPath := os.Getenv("CURIO_POLICY_PATH"); policyPath != "" {
		cfg.PolicyPath = policyPath
	}
	if actor := os.Getenv("CURIO_ACTOR"); actor != "" {
		cfg.DefaultActor = actor
	}
	if output := os.Getenv("CURIO_OUTPUT"); output != "" {
		cfg.Output = output
	}

	// Set defaults if not configured
	if cfg.DBPath == "" {
		// Check for project-local database first
		if _, err := os.Stat(".curio/curio.db"); err == nil {
			cfg.DBPath = ".curio/curio.db"
		} else {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("failed to get home directory: %w", err)
			}
			cfg.DBPath = filepath.Join(homeDir, ".local", "share", "curio", "curio.db")
		}
	}

	return cfg, nil
}

// loadYAMLConfig loads configuration from ~/.config/curio/config.yaml
func loadYAMLConfig(cfg *Config) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	configPath := filepath.Join(homeDir, ".config", "curio", "config.yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

// findEnvLocal searches for .env.local starting from cwd and walking up
// parent directories. Stops at the user's home directory.
// Returns the path to .env.local if found, empty string otherwise.
func findEnvLocal() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		// If we can't get home dir, just check cwd
		if _, err := os.Stat(".env.local"); err == nil {
			return ".env.local"
		}
		return ""
	}

	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	// Clean paths for reliable comparison
	homeDir = filepath.Clean(homeDir)
	dir := filepath.Clean(cwd)

	for {
		envPath := filepath.Join(dir, ".env.local")
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}

		// Stop if we've reached home directory
		if dir == homeDir {
			break
		}

		parent := filepath.Dir(dir)

		// Stop if we've reached the filesystem root
		if parent == dir {
			break
		}

		dir = parent
	}

	return ""
}

// GetActor returns the acting user from environment or config. May be empty;
// merges record a null actor in that case.
func (c *Config) GetActor() string {
	if actor := os.Getenv("CURIO_ACTOR"); actor != "" {
		return actor
	}
	return c.DefaultActor
}
