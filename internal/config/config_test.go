package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/keeper/internal/config"
)

func TestLoad_DefaultHostIsLocalhost(t *testing.T) {
	_ = os.Unsetenv("KEEPER_HOST")
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host,
		"Default host must be 127.0.0.1 for security")
	assert.Equal(t, "127.0.0.1:7515", cfg.Server.Addr())
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Storage.Engine)
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, "average", cfg.Graph.EmbeddingMerge)
	assert.Equal(t, []string{"user", "user_confirmed"}, cfg.Graph.TrustedSources)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
	assert.False(t, cfg.Backup.Enabled)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("KEEPER_PORT", "9000")
	t.Setenv("KEEPER_LLM_PROVIDER", "openai")
	t.Setenv("KEEPER_LLM_TIMEOUT", "45s")
	t.Setenv("KEEPER_BACKUP_ENABLED", "yes")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 45*time.Second, cfg.LLM.Timeout)
	assert.True(t, cfg.Backup.Enabled)
}

func TestLoad_MalformedEnvFallsBackToDefault(t *testing.T) {
	t.Setenv("KEEPER_PORT", "not-a-number")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, 7515, cfg.Server.Port)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keeper.yaml")
	data := []byte("server:\n  port: 8080\nstorage:\n  engine: sqlite\n  data_path: /tmp/keeper\n")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "/tmp/keeper", cfg.Storage.DataPath)
}

func TestLoad_EnvWinsOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keeper.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 8080\n"), 0o644))
	t.Setenv("KEEPER_PORT", "9001")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9001, cfg.Server.Port)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_Validation(t *testing.T) {
	t.Setenv("KEEPER_STORAGE_ENGINE", "postgres")
	_, err := config.Load("")
	assert.Error(t, err, "postgres engine without DSN")

	t.Setenv("KEEPER_POSTGRES_DSN", "postgres://localhost/keeper")
	_, err = config.Load("")
	assert.NoError(t, err)

	t.Setenv("KEEPER_STORAGE_ENGINE", "cloud")
	_, err = config.Load("")
	assert.Error(t, err, "unknown storage engine")
}

func TestLoad_ProductionRequiresToken(t *testing.T) {
	t.Setenv("KEEPER_SECURITY_MODE", "production")
	_, err := config.Load("")
	assert.Error(t, err)

	t.Setenv("KEEPER_API_TOKEN", "secret")
	_, err = config.Load("")
	assert.NoError(t, err)
}
