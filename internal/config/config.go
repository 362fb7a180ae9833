package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"imagegen/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "IMAGEGEN_"

// APIKeyEnv is the provider credential variable, read from the process
// environment or the .env file.
const APIKeyEnv = "TOGETHER_API_KEY"

// DefaultEnvFile is read from the working directory when present.
const DefaultEnvFile = ".env"

// Load loads configuration from defaults, a YAML file, the .env file in the
// working directory, and environment variables, in that order of precedence.
func Load(configPath string) (*models.Config, error) {
	return LoadWithEnvFile(configPath, DefaultEnvFile)
}

// LoadWithEnvFile is Load with an explicit dotenv path. A missing dotenv file
// is ignored; variables already set in the process environment win over it.
func LoadWithEnvFile(configPath, envFile string) (*models.Config, error) {
	// Start with default configuration
	config := models.NewDefaultConfig()

	// Load from file if provided and exists
	if configPath != "" {
		if err := loadFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	env, err := newEnvSource(envFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	// Override with environment variables
	loadFromEnvironment(config, env)

	// Validate the final configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// envSource resolves variables from the process environment first and the
// dotenv file second.
type envSource struct {
	dotenv map[string]string
}

func newEnvSource(envFile string) (*envSource, error) {
	src := &envSource{dotenv: map[string]string{}}
	if envFile == "" {
		return src, nil
	}

	values, err := godotenv.Read(envFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return src, nil
		}
		return nil, err
	}
	src.dotenv = values
	return src, nil
}

func (e *envSource) get(key string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return e.dotenv[key]
}

func (e *envSource) setString(key string, dst *string) {
	if v := e.get(key); v != "" {
		*dst = v
	}
}

func (e *envSource) setInt(key string, dst *int) {
	v := e.get(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("Ignoring invalid integer environment value", "variable", key, "value", v)
		return
	}
	*dst = n
}

func (e *envSource) setInt64(key string, dst *int64) {
	v := e.get(key)
	if v == "" {
		return
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		slog.Warn("Ignoring invalid integer environment value", "variable", key, "value", v)
		return
	}
	*dst = n
}

func (e *envSource) setDuration(key string, dst *time.Duration) {
	v := e.get(key)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("Ignoring invalid duration environment value", "variable", key, "value", v)
		return
	}
	*dst = d
}

func (e *envSource) setBool(key string, dst *bool) {
	if v := e.get(key); v != "" {
		*dst = strings.ToLower(v) == "true"
	}
}

func (e *envSource) setFloat(key string, dst *float64) {
	v := e.get(key)
	if v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("Ignoring invalid number environment value", "variable", key, "value", v)
		return
	}
	*dst = f
}

// inlineSecrets mirrors config keys that should come from the environment.
type inlineSecrets struct {
	Provider struct {
		APIKey string `yaml:"api_key"`
	} `yaml:"provider"`
	Storage struct {
		Database struct {
			DSN string `yaml:"dsn"`
		} `yaml:"database"`
	} `yaml:"storage"`
}

// warnInlineSecrets logs a warning when the YAML file carries credentials.
// The values are still honoured.
func warnInlineSecrets(data []byte) {
	var s inlineSecrets
	if err := yaml.Unmarshal(data, &s); err != nil {
		return
	}
	if s.Provider.APIKey != "" {
		slog.Warn("Provider API key found in config file; prefer the environment.", "config_key", "provider.api_key", "env", APIKeyEnv)
	}
	if strings.Contains(s.Storage.Database.DSN, "password=") {
		slog.Warn("Database password found in config file; prefer the environment.", "config_key", "storage.database.dsn", "env", EnvPrefix+"DATABASE_DSN")
	}
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(config *models.Config, filePath string) error {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", filePath)
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	warnInlineSecrets(data)
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

// loadFromEnvironment applies IMAGEGEN_* overrides and the provider key.
func loadFromEnvironment(config *models.Config, env *envSource) {
	p := EnvPrefix

	// Server configuration
	env.setInt(p+"PORT", &config.Server.Port)
	env.setString(p+"HOST", &config.Server.Host)
	env.setDuration(p+"READ_TIMEOUT", &config.Server.ReadTimeout)
	env.setDuration(p+"WRITE_TIMEOUT", &config.Server.WriteTimeout)
	env.setDuration(p+"IDLE_TIMEOUT", &config.Server.IdleTimeout)
	env.setBool(p+"TLS_ENABLED", &config.Server.TLSEnabled)
	env.setString(p+"TLS_CERT_FILE", &config.Server.TLSCertFile)
	env.setString(p+"TLS_KEY_FILE", &config.Server.TLSKeyFile)

	// Provider configuration
	env.setString(APIKeyEnv, &config.Provider.APIKey)
	env.setString(p+"PROVIDER_API_KEY", &config.Provider.APIKey)
	env.setString(p+"PROVIDER_BASE_URL", &config.Provider.BaseURL)
	env.setDuration(p+"PROVIDER_TIMEOUT", &config.Provider.Timeout)
	env.setString(p+"DEFAULT_MODEL", &config.Provider.Defaults.Model)
	env.setInt(p+"DEFAULT_WIDTH", &config.Provider.Defaults.Width)
	env.setInt(p+"DEFAULT_HEIGHT", &config.Provider.Defaults.Height)
	env.setInt(p+"DEFAULT_STEPS", &config.Provider.Defaults.Steps)
	env.setInt64(p+"DEFAULT_SEED", &config.Provider.Defaults.Seed)

	// Artifact configuration
	env.setString(p+"ARTIFACT_DIR", &config.Artifacts.Directory)
	env.setDuration(p+"ARTIFACT_RETENTION", &config.Artifacts.Retention)
	env.setDuration(p+"ARTIFACT_SWEEP_INTERVAL", &config.Artifacts.SweepInterval)
	env.setBool(p+"ARTIFACT_SWEEP_ON_LIST", &config.Artifacts.SweepOnList)

	// Rate limit configuration
	env.setInt(p+"RATE_LIMIT_REQUESTS", &config.RateLimit.RequestsPerWindow)
	env.setDuration(p+"RATE_LIMIT_WINDOW", &config.RateLimit.Window)
	env.setBool(p+"INBOUND_LIMIT_ENABLED", &config.RateLimit.Inbound.Enabled)
	env.setInt(p+"INBOUND_LIMIT_RPM", &config.RateLimit.Inbound.RequestsPerMinute)
	env.setInt(p+"INBOUND_LIMIT_BURST", &config.RateLimit.Inbound.BurstSize)
	env.setBool(p+"INBOUND_TRUST_PROXY_HEADERS", &config.RateLimit.Inbound.TrustProxyHeaders)

	// Storage configuration
	env.setString(p+"STORAGE_TYPE", &config.Storage.Type)
	env.setString(p+"STORAGE_PATH", &config.Storage.Path)
	env.setDuration(p+"STORAGE_RETENTION", &config.Storage.Retention)
	env.setString(p+"DATABASE_DSN", &config.Storage.Database.DSN)
	env.setInt(p+"DATABASE_MAX_OPEN_CONNS", &config.Storage.Database.MaxOpenConns)
	env.setInt(p+"DATABASE_MAX_IDLE_CONNS", &config.Storage.Database.MaxIdleConns)

	// Logging configuration
	env.setString(p+"LOG_LEVEL", &config.Logging.Level)
	env.setString(p+"LOG_FORMAT", &config.Logging.Format)
	env.setString(p+"LOG_OUTPUT", &config.Logging.Output)
	env.setString(p+"LOG_FILE_PATH", &config.Logging.FilePath)

	// Metrics configuration
	env.setBool(p+"METRICS_ENABLED", &config.Metrics.Enabled)
	env.setString(p+"METRICS_PATH", &config.Metrics.Path)
	env.setInt(p+"METRICS_PORT", &config.Metrics.Port)

	// Observability configuration
	env.setString(p+"SERVICE_NAME", &config.Observability.ServiceName)
	env.setBool(p+"TRACING_ENABLED", &config.Observability.Tracing.Enabled)
	env.setString(p+"TRACING_EXPORTER", &config.Observability.Tracing.Exporter)
	env.setString(p+"OTLP_ENDPOINT", &config.Observability.Tracing.OTLPEndpoint)
	env.setFloat(p+"TRACING_SAMPLE_RATE", &config.Observability.Tracing.SampleRate)
}

// SaveExample saves an example configuration file. The provider key is left
// out; set TOGETHER_API_KEY instead.
func SaveExample(filePath string) error {
	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	config := models.NewDefaultConfig()
	config.Provider.APIKey = ""

	// Example persistent history
	config.Storage.Type = models.StorageTypeSQLite
	config.Storage.Database.DSN = "file:./data/generations.db"

	// Example TLS configuration
	config.Server.TLSCertFile = "/path/to/cert.pem"
	config.Server.TLSKeyFile = "/path/to/key.pem"

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
