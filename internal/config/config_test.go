package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"imagegen/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable the loader reads so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		APIKeyEnv,
		EnvPrefix + "PROVIDER_API_KEY",
		EnvPrefix + "PORT",
		EnvPrefix + "HOST",
		EnvPrefix + "ARTIFACT_DIR",
		EnvPrefix + "ARTIFACT_RETENTION",
		EnvPrefix + "RATE_LIMIT_REQUESTS",
		EnvPrefix + "RATE_LIMIT_WINDOW",
		EnvPrefix + "STORAGE_TYPE",
		EnvPrefix + "STORAGE_PATH",
		EnvPrefix + "DATABASE_DSN",
		EnvPrefix + "LOG_LEVEL",
		EnvPrefix + "DEFAULT_SEED",
		EnvPrefix + "TRACING_SAMPLE_RATE",
		EnvPrefix + "INBOUND_TRUST_PROXY_HEADERS",
	} {
		t.Setenv(key, "")
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	clearEnv(t)

	configFile := writeFile(t, "imagegen.yaml", `
server:
  port: 8081
  host: "localhost"
  read_timeout: 10s

provider:
  base_url: "https://images.example.test"
  timeout: 30s
  defaults:
    model: "black-forest-labs/FLUX.1-dev"
    width: 1024
    height: 768
    steps: 12
    seed: -1

artifacts:
  directory: "/var/lib/imagegen/images"
  retention: 2h
  sweep_on_list: false

rate_limit:
  requests_per_window: 3
  window: 30s

storage:
  type: "json"
  path: "/var/lib/imagegen/history.json"
  retention: 24h

logging:
  level: "debug"
  format: "text"
`)

	config, err := LoadWithEnvFile(configFile, "")
	require.NoError(t, err)

	assert.Equal(t, 8081, config.Server.Port)
	assert.Equal(t, "localhost", config.Server.Host)
	assert.Equal(t, 10*time.Second, config.Server.ReadTimeout)
	assert.Equal(t, 120*time.Second, config.Server.WriteTimeout) // Default

	assert.Equal(t, "https://images.example.test", config.Provider.BaseURL)
	assert.Equal(t, 30*time.Second, config.Provider.Timeout)
	assert.Equal(t, "black-forest-labs/FLUX.1-dev", config.Provider.Defaults.Model)
	assert.Equal(t, 1024, config.Provider.Defaults.Width)
	assert.Equal(t, 768, config.Provider.Defaults.Height)
	assert.Equal(t, 12, config.Provider.Defaults.Steps)
	assert.Equal(t, int64(-1), config.Provider.Defaults.Seed)

	assert.Equal(t, "/var/lib/imagegen/images", config.Artifacts.Directory)
	assert.Equal(t, 2*time.Hour, config.Artifacts.Retention)
	assert.False(t, config.Artifacts.SweepOnList)
	assert.Equal(t, 5*time.Minute, config.Artifacts.SweepInterval) // Default

	assert.Equal(t, 3, config.RateLimit.RequestsPerWindow)
	assert.Equal(t, 30*time.Second, config.RateLimit.Window)

	assert.Equal(t, "json", config.Storage.Type)
	assert.Equal(t, 24*time.Hour, config.Storage.Retention)
	assert.Equal(t, "debug", config.Logging.Level)
	assert.Equal(t, "text", config.Logging.Format)
}

func TestLoad_WithDefaults(t *testing.T) {
	clearEnv(t)

	config, err := LoadWithEnvFile("", "")
	require.NoError(t, err)

	assert.Equal(t, models.NewDefaultConfig(), config)
}

func TestLoad_WithEnvironmentVariables(t *testing.T) {
	clearEnv(t)
	t.Setenv("IMAGEGEN_PORT", "9999")
	t.Setenv("IMAGEGEN_HOST", "127.0.0.1")
	t.Setenv("IMAGEGEN_ARTIFACT_DIR", "/tmp/images")
	t.Setenv("IMAGEGEN_ARTIFACT_RETENTION", "15m")
	t.Setenv("IMAGEGEN_RATE_LIMIT_REQUESTS", "2")
	t.Setenv("IMAGEGEN_STORAGE_TYPE", "memory")
	t.Setenv("IMAGEGEN_LOG_LEVEL", "warn")
	t.Setenv("IMAGEGEN_DEFAULT_SEED", "7")
	t.Setenv("IMAGEGEN_TRACING_SAMPLE_RATE", "0.25")
	t.Setenv("IMAGEGEN_INBOUND_TRUST_PROXY_HEADERS", "true")

	// Config file with different values (should be overridden by env vars)
	configFile := writeFile(t, "env.yaml", `
server:
  port: 8080
  host: "localhost"
storage:
  type: "json"
  path: "./data.json"
logging:
  level: "info"
`)

	config, err := LoadWithEnvFile(configFile, "")
	require.NoError(t, err)

	assert.Equal(t, 9999, config.Server.Port)
	assert.Equal(t, "127.0.0.1", config.Server.Host)
	assert.Equal(t, "/tmp/images", config.Artifacts.Directory)
	assert.Equal(t, 15*time.Minute, config.Artifacts.Retention)
	assert.Equal(t, 2, config.RateLimit.RequestsPerWindow)
	assert.Equal(t, "memory", config.Storage.Type)
	assert.Equal(t, "./data.json", config.Storage.Path) // From file
	assert.Equal(t, "warn", config.Logging.Level)
	assert.Equal(t, int64(7), config.Provider.Defaults.Seed)
	assert.Equal(t, 0.25, config.Observability.Tracing.SampleRate)
	assert.True(t, config.RateLimit.Inbound.TrustProxyHeaders)
}

func TestLoad_InvalidEnvironmentValuesIgnored(t *testing.T) {
	clearEnv(t)
	t.Setenv("IMAGEGEN_PORT", "not-a-number")
	t.Setenv("IMAGEGEN_RATE_LIMIT_WINDOW", "soon")

	config, err := LoadWithEnvFile("", "")
	require.NoError(t, err)

	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, time.Minute, config.RateLimit.Window)
}

func TestLoad_APIKeyFromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv(APIKeyEnv, "tok-from-env")

	config, err := LoadWithEnvFile("", "")
	require.NoError(t, err)
	assert.Equal(t, "tok-from-env", config.Provider.APIKey)
}

func TestLoad_APIKeyFromDotEnv(t *testing.T) {
	clearEnv(t)
	envFile := writeFile(t, ".env", "# local secrets\nTOGETHER_API_KEY=tok-from-dotenv\nIMAGEGEN_LOG_LEVEL=debug\n")

	config, err := LoadWithEnvFile("", envFile)
	require.NoError(t, err)

	assert.Equal(t, "tok-from-dotenv", config.Provider.APIKey)
	assert.Equal(t, "debug", config.Logging.Level)

	// The dotenv file is read, not exported
	assert.Empty(t, os.Getenv(APIKeyEnv))
}

func TestLoad_ProcessEnvironmentBeatsDotEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(APIKeyEnv, "tok-from-env")
	envFile := writeFile(t, ".env", "TOGETHER_API_KEY=tok-from-dotenv\n")

	config, err := LoadWithEnvFile("", envFile)
	require.NoError(t, err)
	assert.Equal(t, "tok-from-env", config.Provider.APIKey)
}

func TestLoad_MissingDotEnvIgnored(t *testing.T) {
	clearEnv(t)

	_, err := LoadWithEnvFile("", filepath.Join(t.TempDir(), ".env"))
	assert.NoError(t, err)
}

func TestLoad_NonExistentFile(t *testing.T) {
	clearEnv(t)

	_, err := LoadWithEnvFile("/non/existent/path.yaml", "")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearEnv(t)
	configFile := writeFile(t, "invalid.yaml", `
server:
  port: 8080
  invalid: [unclosed array
`)

	_, err := LoadWithEnvFile(configFile, "")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML config")
}

func TestLoad_EmptyConfigFile(t *testing.T) {
	clearEnv(t)
	configFile := writeFile(t, "empty.yaml", "")

	config, err := LoadWithEnvFile(configFile, "")
	require.NoError(t, err)

	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, "generated_images", config.Artifacts.Directory)
	assert.Equal(t, "memory", config.Storage.Type)
}

func TestLoad_ValidationFailure(t *testing.T) {
	clearEnv(t)
	configFile := writeFile(t, "bad.yaml", `
provider:
  defaults:
    width: 500
`)

	_, err := LoadWithEnvFile(configFile, "")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
	assert.Contains(t, err.Error(), "width must be between 512 and 1024")
}

func TestLoad_WithDatabaseConfig(t *testing.T) {
	clearEnv(t)
	configFile := writeFile(t, "db.yaml", `
storage:
  type: "postgres"
  database:
    max_open_conns: 20
`)
	t.Setenv("IMAGEGEN_DATABASE_DSN", "postgres://imagegen@localhost/imagegen?sslmode=disable")

	config, err := LoadWithEnvFile(configFile, "")
	require.NoError(t, err)

	assert.Equal(t, "postgres", config.Storage.Type)
	assert.Equal(t, "postgres://imagegen@localhost/imagegen?sslmode=disable", config.Storage.Database.DSN)
	assert.Equal(t, 20, config.Storage.Database.MaxOpenConns)
}

func TestSaveExample(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "imagegen.example.yaml")

	require.NoError(t, SaveExample(path))

	config, err := LoadWithEnvFile(path, "")
	require.NoError(t, err)

	assert.Equal(t, models.StorageTypeSQLite, config.Storage.Type)
	assert.NotEmpty(t, config.Storage.Database.DSN)
	assert.Empty(t, config.Provider.APIKey)
	assert.Equal(t, time.Hour, config.Artifacts.Retention)
	assert.Equal(t, models.DefaultModel, config.Provider.Defaults.Model)
}
