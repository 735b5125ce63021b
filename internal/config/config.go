package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vango-dev/observ/internal/errors"
	"github.com/vango-dev/observ/pkg/observ"
	"gopkg.in/yaml.v3"
)

const (
	// ConfigFileName is the name of the JSON configuration file.
	ConfigFileName = "observ.json"

	// YAMLConfigFileName is the name of the YAML configuration file. It is
	// used when no observ.json exists.
	YAMLConfigFileName = "observ.yaml"

	// DefaultInspectorAddress is the default inspector listen address.
	DefaultInspectorAddress = ":7070"

	// DefaultCapacity is the default number of recorded flushes.
	DefaultCapacity = 256

	// DefaultNamespace is the default Prometheus namespace.
	DefaultNamespace = "observ"

	// DefaultRegion is the default archive region.
	DefaultRegion = "us-east-1"
)

// Config represents the complete observ configuration.
type Config struct {
	// Budget bounds the work of a single flush.
	Budget BudgetConfig `json:"budget,omitempty" yaml:"budget,omitempty"`

	// Debug contains development diagnostics.
	Debug DebugConfig `json:"debug,omitempty" yaml:"debug,omitempty"`

	// Inspector contains inspector server settings.
	Inspector InspectorConfig `json:"inspector,omitempty" yaml:"inspector,omitempty"`

	// Metrics contains Prometheus settings.
	Metrics MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`

	// Tracing contains OpenTelemetry settings.
	Tracing TracingConfig `json:"tracing,omitempty" yaml:"tracing,omitempty"`

	// Archive contains S3 trace archive settings.
	Archive ArchiveConfig `json:"archive,omitempty" yaml:"archive,omitempty"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// BudgetConfig mirrors observ.Budget.
type BudgetConfig struct {
	// MaxRounds bounds propagation rounds per flush (default 100).
	MaxRounds int `json:"maxRounds,omitempty" yaml:"maxRounds,omitempty"`

	// MaxRunsPerFlush bounds observer runs per flush. Zero means no limit.
	MaxRunsPerFlush int `json:"maxRunsPerFlush,omitempty" yaml:"maxRunsPerFlush,omitempty"`
}

// DebugConfig contains development diagnostics.
type DebugConfig struct {
	// IncludeSourceLocations records the caller in usage errors.
	IncludeSourceLocations bool `json:"includeSourceLocations,omitempty" yaml:"includeSourceLocations,omitempty"`

	// LogFlushes logs every flush round at debug level.
	LogFlushes bool `json:"logFlushes,omitempty" yaml:"logFlushes,omitempty"`

	// LogRuns logs every observer run at debug level.
	LogRuns bool `json:"logRuns,omitempty" yaml:"logRuns,omitempty"`

	// LogLevel is one of debug, info, warn, error (default info).
	LogLevel string `json:"logLevel,omitempty" yaml:"logLevel,omitempty"`
}

// InspectorConfig contains inspector server settings.
type InspectorConfig struct {
	// Address is the listen address.
	Address string `json:"address,omitempty" yaml:"address,omitempty"`

	// Capacity is the number of flushes kept by the recorder.
	Capacity int `json:"capacity,omitempty" yaml:"capacity,omitempty"`

	// WriteTimeout bounds stream writes (e.g., "5s").
	WriteTimeout string `json:"writeTimeout,omitempty" yaml:"writeTimeout,omitempty"`
}

// MetricsConfig contains Prometheus settings.
type MetricsConfig struct {
	// Enabled registers the flush collectors.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Namespace is the metrics namespace.
	Namespace string `json:"namespace,omitempty" yaml:"namespace,omitempty"`

	// Subsystem is the metrics subsystem.
	Subsystem string `json:"subsystem,omitempty" yaml:"subsystem,omitempty"`
}

// TracingConfig contains OpenTelemetry settings.
type TracingConfig struct {
	// Enabled installs the tracing hooks.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// TracerName is the tracer name (default "observ").
	TracerName string `json:"tracerName,omitempty" yaml:"tracerName,omitempty"`

	// DirectRuns traces runs outside flushes too.
	DirectRuns bool `json:"directRuns,omitempty" yaml:"directRuns,omitempty"`
}

// ArchiveConfig contains S3 trace archive settings.
type ArchiveConfig struct {
	// Bucket is the target bucket.
	Bucket string `json:"bucket,omitempty" yaml:"bucket,omitempty"`

	// Prefix is the key prefix for uploaded traces.
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty"`

	// Region is the bucket region.
	Region string `json:"region,omitempty" yaml:"region,omitempty"`

	// Endpoint overrides the S3 endpoint, for S3-compatible stores.
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`

	// PathStyle addresses buckets by path instead of subdomain.
	PathStyle bool `json:"pathStyle,omitempty" yaml:"pathStyle,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		Budget: BudgetConfig{
			MaxRounds: observ.DefaultMaxRounds,
		},
		Debug: DebugConfig{
			LogLevel: "info",
		},
		Inspector: InspectorConfig{
			Address:      DefaultInspectorAddress,
			Capacity:     DefaultCapacity,
			WriteTimeout: "5s",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: DefaultNamespace,
		},
		Tracing: TracingConfig{
			TracerName: "observ",
		},
		Archive: ArchiveConfig{
			Prefix: "traces",
			Region: DefaultRegion,
		},
	}
}

// Load reads configuration from the specified directory. It looks for
// observ.json, then observ.yaml.
func Load(dir string) (*Config, error) {
	for _, name := range []string{ConfigFileName, YAMLConfigFileName, "observ.yml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}
	return nil, errors.New("R060").
		WithDetail("No observ.json or observ.yaml found in " + dir)
}

// LoadFile reads configuration from the specified file path. Files ending
// in .yaml or .yml are parsed as YAML, everything else as JSON. Unknown
// keys are rejected in YAML files.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("R060").
				WithDetail("No config found at " + path)
		}
		return nil, errors.New("R061").Wrap(err)
	}

	cfg := New()
	if isYAML(path) {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, errors.New("R061").
				WithDetail("Failed to parse " + filepath.Base(path) + ": " + err.Error()).
				WithSuggestion("Check that " + filepath.Base(path) + " is valid YAML with known keys")
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errors.New("R061").
				WithDetail("Failed to parse " + filepath.Base(path) + ": " + err.Error()).
				WithSuggestion("Check that " + filepath.Base(path) + " is valid JSON")
		}
	}

	cfg.configPath = path
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	if c.Budget.MaxRounds == 0 {
		c.Budget.MaxRounds = observ.DefaultMaxRounds
	}
	if c.Debug.LogLevel == "" {
		c.Debug.LogLevel = "info"
	}
	if c.Inspector.Address == "" {
		c.Inspector.Address = DefaultInspectorAddress
	}
	if c.Inspector.Capacity == 0 {
		c.Inspector.Capacity = DefaultCapacity
	}
	if c.Inspector.WriteTimeout == "" {
		c.Inspector.WriteTimeout = "5s"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = DefaultNamespace
	}
	if c.Tracing.TracerName == "" {
		c.Tracing.TracerName = "observ"
	}
	if c.Archive.Region == "" {
		c.Archive.Region = DefaultRegion
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Budget.MaxRounds < 0 || c.Budget.MaxRunsPerFlush < 0 {
		return errors.New("R061").
			WithDetail("budget limits must not be negative")
	}
	if c.Inspector.Capacity < 0 {
		return errors.New("R061").
			WithDetail("inspector.capacity must not be negative")
	}
	if _, err := time.ParseDuration(c.Inspector.WriteTimeout); err != nil {
		return errors.New("R061").
			WithDetail("inspector.writeTimeout: " + err.Error())
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Debug.LogLevel)); err != nil {
		return errors.New("R061").
			WithDetail("debug.logLevel: " + err.Error()).
			WithSuggestion("Use one of debug, info, warn, error")
	}
	return nil
}

// RuntimeBudget returns the configured flush budget.
func (c *Config) RuntimeBudget() observ.Budget {
	return observ.Budget{
		MaxRounds:       c.Budget.MaxRounds,
		MaxRunsPerFlush: c.Budget.MaxRunsPerFlush,
	}
}

// ApplyDebug installs the debug flags on the observ package.
func (c *Config) ApplyDebug() {
	observ.Debug.IncludeSourceLocations = c.Debug.IncludeSourceLocations
	observ.Debug.LogFlushes = c.Debug.LogFlushes
	observ.Debug.LogRuns = c.Debug.LogRuns
}

// LogLevel returns the parsed log level, info when invalid.
func (c *Config) LogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Debug.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// WriteTimeout returns the parsed inspector write timeout.
func (c *Config) WriteTimeout() time.Duration {
	d, err := time.ParseDuration(c.Inspector.WriteTimeout)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	for _, name := range []string{ConfigFileName, YAMLConfigFileName, "observ.yml"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}

// LoadOrDefault loads the config from dir, or returns defaults when dir
// holds none. Parse errors are still reported.
func LoadOrDefault(dir string) (*Config, error) {
	if !Exists(dir) {
		return New(), nil
	}
	return Load(dir)
}
