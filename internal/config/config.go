// Package config provides configuration management for Keeper.
// Settings come from three layers: built-in defaults, an optional YAML
// config file, and environment variables with the KEEPER_ prefix.
// Environment variables win over the file; the file wins over defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the Keeper application.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	LLM      LLMConfig      `yaml:"llm"`
	Graph    GraphConfig    `yaml:"graph"`
	Security SecurityConfig `yaml:"security"`
	Backup   BackupConfig   `yaml:"backup"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"` // default: 7515
	Host string `yaml:"host"` // default: 127.0.0.1
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StorageConfig contains database and storage configuration.
type StorageConfig struct {
	Engine      string `yaml:"engine"`       // sqlite or postgres (default: sqlite)
	DataPath    string `yaml:"data_path"`    // sqlite data directory (default: ./data)
	PostgresDSN string `yaml:"postgres_dsn"` // required when engine is postgres
}

// LLMConfig contains extraction and embedding collaborator configuration.
type LLMConfig struct {
	Provider             string        `yaml:"provider"` // ollama, openai, or none (default: ollama)
	OllamaURL            string        `yaml:"ollama_url"`
	OllamaModel          string        `yaml:"ollama_model"`
	OllamaEmbeddingModel string        `yaml:"ollama_embedding_model"`
	OpenAIAPIKey         string        `yaml:"openai_api_key"`
	OpenAIModel          string        `yaml:"openai_model"`
	OpenAIEmbeddingModel string        `yaml:"openai_embedding_model"`
	Timeout              time.Duration `yaml:"timeout"`
}

// GraphConfig contains knowledge graph behaviour settings.
type GraphConfig struct {
	// EmbeddingMerge selects how entity vectors combine on merge:
	// "average" (running mean) or "recompute" (keep incumbent, let a
	// later re-embed replace it).
	EmbeddingMerge string `yaml:"embedding_merge"`

	// TrustedSources are provenance tags that win source-trust
	// tie-breaks during conflict resolution.
	TrustedSources []string `yaml:"trusted_sources"`
}

// SecurityConfig contains authentication and rate limit settings.
type SecurityConfig struct {
	Mode      string  `yaml:"mode"`      // development or production (default: development)
	APIToken  string  `yaml:"api_token"` // required in production mode
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

// BackupConfig contains backup configuration.
type BackupConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Interval      time.Duration `yaml:"interval"`
	Path          string        `yaml:"path"`
	RetentionDays int           `yaml:"retention_days"`
}

// Load builds configuration from defaults, the YAML file at path (or
// KEEPER_CONFIG when path is empty), and KEEPER_ environment variables,
// in that order of increasing precedence. A missing config file is only
// an error when the path was given explicitly.
func Load(path string) (*Config, error) {
	cfg := defaults()

	explicit := path != ""
	if path == "" {
		path = os.Getenv("KEEPER_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if explicit || !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Engine {
	case "sqlite":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("config: postgres engine requires a DSN")
		}
	default:
		return fmt.Errorf("config: unknown storage engine %q", c.Storage.Engine)
	}
	if c.Security.Mode == "production" && c.Security.APIToken == "" {
		return fmt.Errorf("config: production mode requires an API token")
	}
	return nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 7515,
			Host: "127.0.0.1",
		},
		Storage: StorageConfig{
			Engine:   "sqlite",
			DataPath: "./data",
		},
		LLM: LLMConfig{
			Provider:             "ollama",
			OllamaURL:            "http://localhost:11434",
			OllamaModel:          "qwen2.5:7b",
			OllamaEmbeddingModel: "nomic-embed-text",
			OpenAIModel:          "gpt-4o-mini",
			OpenAIEmbeddingModel: "text-embedding-3-small",
			Timeout:              30 * time.Second,
		},
		Graph: GraphConfig{
			EmbeddingMerge: "average",
			TrustedSources: []string{"user", "user_confirmed"},
		},
		Security: SecurityConfig{
			Mode:      "development",
			RateLimit: 25,
			RateBurst: 50,
		},
		Backup: BackupConfig{
			Enabled:       false,
			Interval:      24 * time.Hour,
			Path:          "./backups",
			RetentionDays: 30,
		},
	}
}

func applyEnv(cfg *Config) {
	cfg.Server.Port = getEnvInt("KEEPER_PORT", cfg.Server.Port)
	cfg.Server.Host = getEnv("KEEPER_HOST", cfg.Server.Host)

	cfg.Storage.Engine = getEnv("KEEPER_STORAGE_ENGINE", cfg.Storage.Engine)
	cfg.Storage.DataPath = getEnv("KEEPER_DATA_PATH", cfg.Storage.DataPath)
	cfg.Storage.PostgresDSN = getEnv("KEEPER_POSTGRES_DSN", cfg.Storage.PostgresDSN)

	cfg.LLM.Provider = getEnv("KEEPER_LLM_PROVIDER", cfg.LLM.Provider)
	cfg.LLM.OllamaURL = getEnv("KEEPER_OLLAMA_URL", cfg.LLM.OllamaURL)
	cfg.LLM.OllamaModel = getEnv("KEEPER_OLLAMA_MODEL", cfg.LLM.OllamaModel)
	cfg.LLM.OllamaEmbeddingModel = getEnv("KEEPER_EMBEDDING_MODEL", cfg.LLM.OllamaEmbeddingModel)
	cfg.LLM.OpenAIAPIKey = getEnv("KEEPER_OPENAI_API_KEY", cfg.LLM.OpenAIAPIKey)
	cfg.LLM.OpenAIModel = getEnv("KEEPER_OPENAI_MODEL", cfg.LLM.OpenAIModel)
	cfg.LLM.OpenAIEmbeddingModel = getEnv("KEEPER_OPENAI_EMBEDDING_MODEL", cfg.LLM.OpenAIEmbeddingModel)
	cfg.LLM.Timeout = getEnvDuration("KEEPER_LLM_TIMEOUT", cfg.LLM.Timeout)

	cfg.Graph.EmbeddingMerge = getEnv("KEEPER_EMBEDDING_MERGE", cfg.Graph.EmbeddingMerge)

	cfg.Security.Mode = getEnv("KEEPER_SECURITY_MODE", cfg.Security.Mode)
	cfg.Security.APIToken = getEnv("KEEPER_API_TOKEN", cfg.Security.APIToken)

	cfg.Backup.Enabled = getEnvBool("KEEPER_BACKUP_ENABLED", cfg.Backup.Enabled)
	cfg.Backup.Interval = getEnvDuration("KEEPER_BACKUP_INTERVAL", cfg.Backup.Interval)
	cfg.Backup.Path = getEnv("KEEPER_BACKUP_PATH", cfg.Backup.Path)
	cfg.Backup.RetentionDays = getEnvInt("KEEPER_BACKUP_RETENTION_DAYS", cfg.Backup.RetentionDays)
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
// If the environment variable exists but cannot be parsed as an integer,
// it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value.
// It recognizes "true", "1", "yes" as true and "false", "0", "no" as false.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch value {
		case "true", "1", "yes", "True", "TRUE", "Yes", "YES":
			return true
		case "false", "0", "no", "False", "FALSE", "No", "NO":
			return false
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable ("30s", "24h")
// or returns a default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
