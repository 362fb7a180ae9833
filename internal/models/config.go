// Package models - Service configuration and operational settings.
// This file defines configuration structures for all service components.
//
// Configuration Philosophy:
// - Hierarchical configuration with logical grouping (server, provider, artifacts, etc.)
// - Defaults that match the provider's free tier out of the box
// - Validation to catch misconfigurations before the first request
package models

import (
	"errors"
	"fmt"
	"time"
)

// Storage type constants
const (
	StorageTypeJSON     = "json"
	StorageTypeMemory   = "memory"
	StorageTypePostgres = "postgres"
	StorageTypeSQLite   = "sqlite"
)

// Provider defaults
const (
	DefaultProviderBaseURL = "https://api.together.xyz"
	DefaultModel           = "black-forest-labs/FLUX.1-schnell-Free"
	DefaultWidth           = 576
	DefaultHeight          = 1024
	DefaultSteps           = 4
	DefaultSeed            = MinSeed // fresh image on every call
)

// Config is the root configuration structure containing all service settings.
//
// Configuration Structure:
// - Server: HTTP server and network settings
// - Provider: upstream image generation API
// - Artifacts: image directory and retention
// - RateLimit: outbound provider window and inbound client limits
// - Storage: generation history backend
// - Logging: Structured logging and output configuration
// - Metrics / Observability: Prometheus and tracing
type Config struct {
	Server        ServerConfig        `yaml:"server" json:"server"`
	Provider      ProviderConfig      `yaml:"provider" json:"provider"`
	Artifacts     ArtifactConfig      `yaml:"artifacts" json:"artifacts"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit" json:"rate_limit"`
	Storage       StorageConfig       `yaml:"storage" json:"storage"`
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics" json:"metrics"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

type ServerConfig struct {
	Port         int           `yaml:"port" json:"port"`
	Host         string        `yaml:"host" json:"host"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	TLSEnabled   bool          `yaml:"tls_enabled" json:"tls_enabled"`
	TLSCertFile  string        `yaml:"tls_cert_file" json:"tls_cert_file"`
	TLSKeyFile   string        `yaml:"tls_key_file" json:"tls_key_file"`
	CORS         CORSConfig    `yaml:"cors" json:"cors"`
}

type CORSConfig struct {
	Enabled        bool     `yaml:"enabled" json:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" json:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" json:"allowed_headers"`
	MaxAge         int      `yaml:"max_age" json:"max_age"`
}

// ProviderConfig points at the upstream image generation API.
// APIKey is normally supplied through TOGETHER_API_KEY rather than the file.
type ProviderConfig struct {
	APIKey           string             `yaml:"api_key" json:"-"`
	BaseURL          string             `yaml:"base_url" json:"base_url"`
	Timeout          time.Duration      `yaml:"timeout" json:"timeout"`
	MaxResponseBytes int64              `yaml:"max_response_bytes" json:"max_response_bytes"`
	Defaults         GenerationDefaults `yaml:"defaults" json:"defaults"`
}

// GenerationDefaults fill parameters a request leaves unset.
type GenerationDefaults struct {
	Model  string `yaml:"model" json:"model"`
	Width  int    `yaml:"width" json:"width"`
	Height int    `yaml:"height" json:"height"`
	Steps  int    `yaml:"steps" json:"steps"`
	Seed   int64  `yaml:"seed" json:"seed"`
}

// ArtifactConfig controls where images live and how long they are kept.
type ArtifactConfig struct {
	Directory     string        `yaml:"directory" json:"directory"`
	Retention     time.Duration `yaml:"retention" json:"retention"`
	SweepInterval time.Duration `yaml:"sweep_interval" json:"sweep_interval"`
	SweepOnList   bool          `yaml:"sweep_on_list" json:"sweep_on_list"`
}

// RateLimitConfig holds the outbound provider window and the inbound
// per-client limit for the generate endpoint.
type RateLimitConfig struct {
	RequestsPerWindow int                `yaml:"requests_per_window" json:"requests_per_window"`
	Window            time.Duration      `yaml:"window" json:"window"`
	Inbound           InboundLimitConfig `yaml:"inbound" json:"inbound"`
}

type InboundLimitConfig struct {
	Enabled           bool          `yaml:"enabled" json:"enabled"`
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
	BurstSize         int           `yaml:"burst_size" json:"burst_size"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval" json:"cleanup_interval"`
	// TrustProxyHeaders keys clients by X-Forwarded-For / X-Real-IP.
	// Enable only behind a reverse proxy that overwrites those headers.
	TrustProxyHeaders bool `yaml:"trust_proxy_headers" json:"trust_proxy_headers"`
}

// StorageConfig selects the generation history backend.
type StorageConfig struct {
	Type      string            `yaml:"type" json:"type"`
	Path      string            `yaml:"path" json:"path"`
	Retention time.Duration     `yaml:"retention" json:"retention"`
	Database  DatabaseConfig    `yaml:"database" json:"database"`
	Options   map[string]string `yaml:"options" json:"options"`
}

type DatabaseConfig struct {
	DSN             string        `yaml:"dsn" json:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
}

type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Format   string `yaml:"format" json:"format"`
	Output   string `yaml:"output" json:"output"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
	Port    int    `yaml:"port" json:"port"`
}

type ObservabilityConfig struct {
	ServiceName string        `yaml:"service_name" json:"service_name"`
	Tracing     TracingConfig `yaml:"tracing" json:"tracing"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	Exporter     string  `yaml:"exporter" json:"exporter"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate" json:"sample_rate"`
}

// NewDefaultConfig creates a configuration with working defaults.
//
// Default Values Rationale:
// - 6 requests per minute: the provider's free-tier ceiling
// - 1 hour artifact retention: the gallery shows a session's recent work
// - Memory history: no external dependencies for a local run
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  60 * time.Second,
			CORS: CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type"},
				MaxAge:         86400,
			},
		},
		Provider: ProviderConfig{
			BaseURL:          DefaultProviderBaseURL,
			Timeout:          90 * time.Second,
			MaxResponseBytes: 32 << 20,
			Defaults: GenerationDefaults{
				Model:  DefaultModel,
				Width:  DefaultWidth,
				Height: DefaultHeight,
				Steps:  DefaultSteps,
				Seed:   DefaultSeed,
			},
		},
		Artifacts: ArtifactConfig{
			Directory:     "generated_images",
			Retention:     time.Hour,
			SweepInterval: 5 * time.Minute,
			SweepOnList:   true,
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: 6,
			Window:            time.Minute,
			Inbound: InboundLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 30,
				BurstSize:         5,
				CleanupInterval:   5 * time.Minute,
			},
		},
		Storage: StorageConfig{
			Type:      StorageTypeMemory,
			Path:      "./data/generations.json",
			Retention: 7 * 24 * time.Hour,
			Database: DatabaseConfig{
				MaxOpenConns:    10,
				MaxIdleConns:    2,
				ConnMaxLifetime: 5 * time.Minute,
			},
			Options: make(map[string]string),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9090,
		},
		Observability: ObservabilityConfig{
			ServiceName: "imagegen",
			Tracing: TracingConfig{
				Enabled:    false,
				Exporter:   "stdout",
				SampleRate: 1.0,
			},
		},
	}
}

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}

	if err := c.Provider.Validate(); err != nil {
		return fmt.Errorf("invalid provider config: %w", err)
	}

	if err := c.Artifacts.Validate(); err != nil {
		return fmt.Errorf("invalid artifacts config: %w", err)
	}

	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("invalid rate limit config: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("invalid storage config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("invalid metrics config: %w", err)
	}

	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("invalid observability config: %w", err)
	}

	return nil
}

func (sc *ServerConfig) Validate() error {
	if sc.Port <= 0 || sc.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}

	if sc.Host == "" {
		return errors.New("host cannot be empty")
	}

	if sc.ReadTimeout < 0 {
		return errors.New("read timeout cannot be negative")
	}

	if sc.WriteTimeout < 0 {
		return errors.New("write timeout cannot be negative")
	}

	if sc.IdleTimeout < 0 {
		return errors.New("idle timeout cannot be negative")
	}

	if sc.TLSEnabled {
		if sc.TLSCertFile == "" {
			return errors.New("TLS cert file is required when TLS is enabled")
		}
		if sc.TLSKeyFile == "" {
			return errors.New("TLS key file is required when TLS is enabled")
		}
	}

	return nil
}

// Validate checks the provider settings. A missing API key is not an error
// here; the service starts and reports the provider as unconfigured.
func (pc *ProviderConfig) Validate() error {
	if pc.BaseURL == "" {
		return errors.New("base URL cannot be empty")
	}
	if pc.Timeout < 0 {
		return errors.New("timeout cannot be negative")
	}
	if pc.MaxResponseBytes <= 0 {
		return errors.New("max response bytes must be positive")
	}

	d := pc.Defaults
	req := GenerateRequest{Prompt: "-", Model: d.Model, Width: d.Width, Height: d.Height, Steps: d.Steps, Seed: &d.Seed}
	if err := req.Validate(); err != nil {
		return fmt.Errorf("invalid generation defaults: %w", err)
	}
	return nil
}

func (ac *ArtifactConfig) Validate() error {
	if ac.Directory == "" {
		return errors.New("artifact directory cannot be empty")
	}
	if ac.Retention <= 0 {
		return errors.New("retention must be positive")
	}
	if ac.SweepInterval < 0 {
		return errors.New("sweep interval cannot be negative")
	}
	return nil
}

func (rc *RateLimitConfig) Validate() error {
	if rc.RequestsPerWindow < 0 {
		return errors.New("requests per window cannot be negative")
	}
	if rc.Window <= 0 {
		return errors.New("window must be positive")
	}
	if rc.Inbound.Enabled {
		if rc.Inbound.RequestsPerMinute <= 0 {
			return errors.New("inbound requests per minute must be positive")
		}
		if rc.Inbound.BurstSize <= 0 {
			return errors.New("inbound burst size must be positive")
		}
		if rc.Inbound.CleanupInterval < 0 {
			return errors.New("inbound cleanup interval cannot be negative")
		}
	}
	return nil
}

func (stc *StorageConfig) Validate() error {
	switch stc.Type {
	case StorageTypeMemory:
	case StorageTypeJSON:
		if stc.Path == "" {
			return errors.New("path is required for JSON storage")
		}
	case StorageTypePostgres, StorageTypeSQLite:
		if stc.Database.DSN == "" {
			return errors.New("database DSN is required for database storage")
		}
	default:
		return fmt.Errorf("invalid storage type: %s", stc.Type)
	}

	if stc.Retention < 0 {
		return errors.New("history retention cannot be negative")
	}

	return nil
}

func (lc *LoggingConfig) Validate() error {
	if !contains([]string{"debug", "info", "warn", "error"}, lc.Level) {
		return fmt.Errorf("invalid log level: %s", lc.Level)
	}

	if !contains([]string{"json", "text"}, lc.Format) {
		return fmt.Errorf("invalid log format: %s", lc.Format)
	}

	if !contains([]string{"stdout", "stderr", "file"}, lc.Output) {
		return fmt.Errorf("invalid log output: %s", lc.Output)
	}

	if lc.Output == "file" && lc.FilePath == "" {
		return errors.New("file path is required when output is file")
	}

	return nil
}

func (mc *MetricsConfig) Validate() error {
	if !mc.Enabled {
		return nil
	}

	if mc.Path == "" {
		return errors.New("metrics path cannot be empty")
	}

	if mc.Port <= 0 || mc.Port > 65535 {
		return errors.New("metrics port must be between 1 and 65535")
	}

	return nil
}

func (oc *ObservabilityConfig) Validate() error {
	if !oc.Tracing.Enabled {
		return nil
	}

	switch oc.Tracing.Exporter {
	case "stdout":
	case "otlp":
		if oc.Tracing.OTLPEndpoint == "" {
			return errors.New("OTLP endpoint is required when tracing exporter is otlp")
		}
	default:
		return fmt.Errorf("invalid tracing exporter: %s", oc.Tracing.Exporter)
	}

	if oc.Tracing.SampleRate < 0 || oc.Tracing.SampleRate > 1 {
		return errors.New("tracing sample rate must be between 0 and 1")
	}

	return nil
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
