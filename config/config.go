// Package config loads backend configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Provider selections.
const (
	ProviderDoubao    = "doubao"
	ProviderAnthropic = "anthropic"
	ProviderMock      = "mock"
)

// Config is the resolved backend configuration.
type Config struct {
	// Port the HTTP server listens on.
	Port int

	// Provider selects the upstream: doubao, anthropic or mock.
	Provider string

	// APIKey authenticates against the selected provider.
	APIKey string

	// BaseURL overrides the provider endpoint (302.AI gateway by default
	// for doubao).
	BaseURL string

	// Model overrides the provider default model.
	Model string

	// DBPath is the SQLite file backing the memory store.
	DBPath string

	// AgentsFile optionally replaces the builtin agent catalog with a YAML
	// file.
	AgentsFile string

	// ContextTurns bounds the session context window merged into prompts.
	ContextTurns int

	// Reindex rebuilds the semantic index from the turn log at startup.
	Reindex bool
}

// Load reads configuration from FLOWMATIK_* environment variables, applying
// defaults for everything unset.
func Load() (*Config, error) {
	cfg := &Config{
		Port:         getIntEnv("FLOWMATIK_PORT", 8080),
		Provider:     getEnv("FLOWMATIK_PROVIDER", ProviderDoubao),
		APIKey:       os.Getenv("FLOWMATIK_API_KEY"),
		BaseURL:      os.Getenv("FLOWMATIK_BASE_URL"),
		Model:        os.Getenv("FLOWMATIK_MODEL"),
		DBPath:       getEnv("FLOWMATIK_DB_PATH", "flowmatik-memory.db"),
		AgentsFile:   os.Getenv("FLOWMATIK_AGENTS_FILE"),
		ContextTurns: getIntEnv("FLOWMATIK_CONTEXT_TURNS", 10),
		Reindex:      getBoolEnv("FLOWMATIK_REINDEX", true),
	}

	switch cfg.Provider {
	case ProviderDoubao, ProviderAnthropic, ProviderMock:
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
	if cfg.Provider != ProviderMock && cfg.APIKey == "" {
		return nil, fmt.Errorf("FLOWMATIK_API_KEY is required for provider %q", cfg.Provider)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", cfg.Port)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getBoolEnv(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
