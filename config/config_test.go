package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.App.Environment)
	assert.True(t, cfg.App.Debug)
	assert.Equal(t, StoreSQLite, cfg.Store.Backend)
	assert.Equal(t, "data/nst.db", cfg.Store.SQLitePath)
	assert.Equal(t, 2*time.Second, cfg.Session.MinLoadingDuration)
	assert.Equal(t, 60*time.Second, cfg.Session.GenerationTimeout)
	assert.Equal(t, 6*time.Hour, cfg.Redis.ContentTTL)
	assert.Equal(t, "gemini-2.5-flash", cfg.Gemini.Model)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "info", cfg.Observability.LogLevel)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/nst")
	t.Setenv("SESSION_MIN_LOADING_DURATION", "500ms")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, StorePostgres, cfg.Store.Backend)
	assert.Equal(t, "postgres://u:p@db:5432/nst", cfg.Database.URL)
	assert.Equal(t, 500*time.Millisecond, cfg.Session.MinLoadingDuration)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "debug", cfg.Observability.LogLevel)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nst.toml")
	content := `
[store]
backend = "memory"

[gemini]
model = "gemini-2.0-flash"
temperature = 0.2

[http]
addr = ":9090"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	v := viper.New()
	v.SetConfigFile(path)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, StoreMemory, cfg.Store.Backend)
	assert.Equal(t, "gemini-2.0-flash", cfg.Gemini.Model)
	assert.InDelta(t, 0.2, cfg.Gemini.Temperature, 1e-9)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
}

func TestLoad_EnvBeatsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nst.toml")
	require.NoError(t, os.WriteFile(path, []byte("[http]\naddr = \":9090\"\n"), 0o600))
	t.Setenv("HTTP_ADDR", ":7070")

	v := viper.New()
	v.SetConfigFile(path)
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.HTTP.Addr)
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("LOG_LEVEL", "verbose")

	_, err := Load(viper.New())
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "STORE_BACKEND=memory is not allowed in production")
	assert.Contains(t, msg, "GEMINI_API_KEY is required in production")
	assert.Contains(t, msg, "LOG_LEVEL")
}

func TestValidate_PostgresNeedsURL(t *testing.T) {
	t.Setenv("STORE_BACKEND", "postgres")

	_, err := Load(viper.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestValidate_UnknownBackend(t *testing.T) {
	t.Setenv("STORE_BACKEND", "mongo")

	_, err := Load(viper.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"mongo"`)
}

func TestEnvironmentHelpers(t *testing.T) {
	cfg := &Config{App: AppConfig{Environment: EnvProduction}}
	assert.True(t, cfg.IsProduction())
	assert.False(t, cfg.IsDevelopment())
}
