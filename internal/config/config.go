// Package config manages the tapd daemon configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (TAPD_* prefix, runtime override)
//  2. Config file (~/.tapd/config.yaml)
//  3. Default values (safe local-only defaults)
//
// Main configuration categories:
//   - Network: bind address, port, localhost enforcement
//   - Request limits: timeout, body size, concurrent connections, rate limit
//   - CORS: enablement and allowed-origin list
//   - Capture: output directory for recorded files, engine simulation
//   - Logging and tracing
//
// Every numeric limit has a documented valid range. Sanitize clamps values
// back into range; Validate rejects what cannot be clamped (a bind address
// that is not an IP literal). Mutations are persisted through Save so the
// effective configuration survives restarts.
//
// Error Handling:
//   - Uses sentinel errors for errors.Is() checks
//   - Wrap with context using fmt.Errorf("%w: details", ErrXxx)
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"log/slog"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidBindAddress indicates the bind address is not an IP literal.
	ErrInvalidBindAddress = errors.New("invalid bind address")

	// ErrInvalidOutputDirectory indicates the capture output directory is unusable.
	ErrInvalidOutputDirectory = errors.New("invalid output directory")
)

// Valid ranges and defaults for every numeric limit. Out-of-range values are
// clamped to the nearest bound by Sanitize.
const (
	DefaultPort = 5742
	MinPort     = 1
	MaxPort     = 65535

	DefaultRequestTimeoutSeconds = 30
	MinRequestTimeoutSeconds     = 1
	MaxRequestTimeoutSeconds     = 300

	DefaultMaxRequestBodyBytes = 1 << 20 // 1 MiB
	MinMaxRequestBodyBytes     = 1
	MaxMaxRequestBodyBytes     = 10 << 20 // 10 MiB

	DefaultMaxConcurrentConnections = 10
	MinMaxConcurrentConnections     = 1
	MaxMaxConcurrentConnections     = 100

	DefaultMaxRequestsPerMinute = 60
	MinMaxRequestsPerMinute     = 1
	MaxMaxRequestsPerMinute     = 1000
)

// DefaultBindAddress is the loopback address the daemon binds by default.
// LocalOnly sanitization rewrites any non-loopback address back to it.
const DefaultBindAddress = "127.0.0.1"

// Config stores the daemon configuration. Instances handed out by Manager
// are snapshots: the serve loop captures one per listener start and never
// shares a mutable copy across connections.
type Config struct {
	// Network binding
	BindAddress string `mapstructure:"bind_address" json:"bind_address"`
	Port        int    `mapstructure:"port" json:"port"`
	LocalOnly   bool   `mapstructure:"local_only" json:"local_only"`

	// Request handling limits
	RequestTimeoutSeconds    int   `mapstructure:"request_timeout_seconds" json:"request_timeout_seconds"`
	MaxRequestBodyBytes      int64 `mapstructure:"max_request_body_bytes" json:"max_request_body_bytes"`
	MaxConcurrentConnections int   `mapstructure:"max_concurrent_connections" json:"max_concurrent_connections"`
	MaxRequestsPerMinute     int   `mapstructure:"max_requests_per_minute" json:"max_requests_per_minute"`

	// CORS policy. An empty origin list with CORS enabled allows any origin.
	EnableCORS     bool     `mapstructure:"enable_cors" json:"enable_cors"`
	AllowedOrigins []string `mapstructure:"allowed_origins" json:"allowed_origins"`

	// Capture output
	OutputDirectory string `mapstructure:"output_directory" json:"output_directory"`
	SimulateEngine  bool   `mapstructure:"simulate_engine" json:"simulate_engine"`

	// Logging
	LogLevel string `mapstructure:"log_level" json:"log_level"`
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`

	// Tracing. Empty endpoint disables the exporter entirely.
	TraceEndpoint string `mapstructure:"trace_endpoint" json:"trace_endpoint"`
}

// Addr returns the host:port the listener binds.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.BindAddress, strconv.Itoa(c.Port))
}

// Clone returns an independent copy. Slices are copied so a snapshot cannot
// be mutated through a previously returned pointer.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	dup := *c
	dup.AllowedOrigins = append([]string(nil), c.AllowedOrigins...)
	return &dup
}

// Manager owns the configuration lifecycle: load, sanitize, validate,
// persist, watch. One Manager exists per daemon process.
type Manager struct {
	v    *viper.Viper
	dir  string
	path string

	// mu guards v and cfg. Viper instances are not goroutine-safe, and the
	// Watch goroutine reloads concurrently with Save callers.
	mu  sync.Mutex
	cfg *Config
}

// NewManager creates a Manager rooted at dir. An empty dir resolves to
// ~/.tapd. The directory is created if missing (0750, the file may hold a
// user-chosen output path).
func NewManager(dir string) (*Manager, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting user home directory: %w", err)
		}
		dir = filepath.Join(home, ".tapd")
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	setDefaults(v, dir)
	bindEnvVariables(v)

	return &Manager{
		v:    v,
		dir:  dir,
		path: filepath.Join(dir, "config.yaml"),
	}, nil
}

// Dir returns the configuration directory.
func (m *Manager) Dir() string { return m.dir }

// Path returns the configuration file path.
func (m *Manager) Path() string { return m.path }

// Load reads the configuration from all sources, sanitizes it, and
// validates the result. A missing config file is not an error; defaults
// and environment variables apply.
func (m *Manager) Load() (*Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_path", m.dir,
			"config_name", "config.yaml")
	}

	var cfg Config
	if err := m.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	for _, adj := range cfg.Sanitize() {
		slog.Warn("configuration value adjusted", "adjustment", adj)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	m.cfg = cfg.Clone()

	return &cfg, nil
}

// Current returns the most recently loaded snapshot, or nil before the
// first successful Load.
func (m *Manager) Current() *Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.Clone()
}

// Save sanitizes, validates, and persists cfg to the config file, then
// adopts it as the current snapshot. Every mutation goes through here so
// the on-disk file always reflects the effective configuration.
func (m *Manager) Save(cfg *Config) error {
	if cfg == nil {
		return ErrConfigNil
	}

	for _, adj := range cfg.Sanitize() {
		slog.Warn("configuration value adjusted", "adjustment", adj)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating configuration: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.v.Set("bind_address", cfg.BindAddress)
	m.v.Set("port", cfg.Port)
	m.v.Set("local_only", cfg.LocalOnly)
	m.v.Set("request_timeout_seconds", cfg.RequestTimeoutSeconds)
	m.v.Set("max_request_body_bytes", cfg.MaxRequestBodyBytes)
	m.v.Set("max_concurrent_connections", cfg.MaxConcurrentConnections)
	m.v.Set("max_requests_per_minute", cfg.MaxRequestsPerMinute)
	m.v.Set("enable_cors", cfg.EnableCORS)
	m.v.Set("allowed_origins", cfg.AllowedOrigins)
	m.v.Set("output_directory", cfg.OutputDirectory)
	m.v.Set("simulate_engine", cfg.SimulateEngine)
	m.v.Set("log_level", cfg.LogLevel)
	m.v.Set("log_json", cfg.LogJSON)
	m.v.Set("trace_endpoint", cfg.TraceEndpoint)

	if err := m.v.WriteConfigAs(m.path); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	m.cfg = cfg.Clone()

	return nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper, dir string) {
	// Network defaults: loopback only
	v.SetDefault("bind_address", DefaultBindAddress)
	v.SetDefault("port", DefaultPort)
	v.SetDefault("local_only", true)

	// Request limit defaults
	v.SetDefault("request_timeout_seconds", DefaultRequestTimeoutSeconds)
	v.SetDefault("max_request_body_bytes", DefaultMaxRequestBodyBytes)
	v.SetDefault("max_concurrent_connections", DefaultMaxConcurrentConnections)
	v.SetDefault("max_requests_per_minute", DefaultMaxRequestsPerMinute)

	// CORS defaults: enabled, any origin (the daemon is loopback-bound)
	v.SetDefault("enable_cors", true)
	v.SetDefault("allowed_origins", []string{})

	// Capture defaults
	v.SetDefault("output_directory", filepath.Join(dir, "recordings"))
	v.SetDefault("simulate_engine", false)

	// Logging defaults
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)

	// Tracing disabled unless an endpoint is configured
	v.SetDefault("trace_endpoint", "")
}

// bindEnvVariables binds the TAPD_* environment overrides explicitly.
func bindEnvVariables(v *viper.Viper) {
	// BindEnv only fails on an empty key; these are hardcoded.
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("binding %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("bind_address", "TAPD_BIND_ADDRESS")
	mustBind("port", "TAPD_PORT")
	mustBind("local_only", "TAPD_LOCAL_ONLY")
	mustBind("request_timeout_seconds", "TAPD_REQUEST_TIMEOUT_SECONDS")
	mustBind("max_request_body_bytes", "TAPD_MAX_REQUEST_BODY_BYTES")
	mustBind("max_concurrent_connections", "TAPD_MAX_CONCURRENT_CONNECTIONS")
	mustBind("max_requests_per_minute", "TAPD_MAX_REQUESTS_PER_MINUTE")
	mustBind("enable_cors", "TAPD_ENABLE_CORS")
	mustBind("allowed_origins", "TAPD_ALLOWED_ORIGINS")
	mustBind("output_directory", "TAPD_OUTPUT_DIRECTORY")
	mustBind("simulate_engine", "TAPD_SIMULATE_ENGINE")
	mustBind("log_level", "TAPD_LOG_LEVEL")
	mustBind("log_json", "TAPD_LOG_JSON")
	mustBind("trace_endpoint", "TAPD_TRACE_ENDPOINT")
}
