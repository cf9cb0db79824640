// Package config handles configuration loading, validation, and management for plainid.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"plainid/internal/analysis"
	"plainid/internal/trend"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete tool configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Analysis tunes the entropy-trend engine.
	Analysis AnalysisConfig `toml:"analysis" json:"analysis" yaml:"analysis"`

	// Storage configuration for run history.
	Storage StorageConfig `toml:"storage" json:"storage" yaml:"storage"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// Watch configuration for the challenge inbox.
	Watch WatchConfig `toml:"watch" json:"watch" yaml:"watch"`

	// Bench configuration for accuracy evaluation.
	Bench BenchConfig `toml:"bench" json:"bench" yaml:"bench"`

	// mu protects concurrent access to the config.
	mu sync.RWMutex `toml:"-" json:"-" yaml:"-"`
}

// AnalysisConfig holds engine parameters.
type AnalysisConfig struct {
	// SearchSpace is how many leading symbols are analysed.
	SearchSpace int `toml:"search_space" json:"search_space" yaml:"search_space"`

	// InitialWindow is the trend's initial window; 0 uses SearchSpace.
	InitialWindow int `toml:"initial_window" json:"initial_window" yaml:"initial_window"`

	// WindowFactor sets the trend window end to initial * factor.
	WindowFactor int `toml:"window_factor" json:"window_factor" yaml:"window_factor"`

	StrictThreshold float64 `toml:"strict_threshold" json:"strict_threshold" yaml:"strict_threshold"`
	RetryThreshold  float64 `toml:"retry_threshold" json:"retry_threshold" yaml:"retry_threshold"`
	OutlierFactor   float64 `toml:"outlier_factor" json:"outlier_factor" yaml:"outlier_factor"`

	// NoiseRatio bounds the escalation at ceil(search_space * noise_ratio).
	NoiseRatio float64 `toml:"noise_ratio" json:"noise_ratio" yaml:"noise_ratio"`

	// VotePolicy is "lower_entropy" or "both_members".
	VotePolicy string `toml:"vote_policy" json:"vote_policy" yaml:"vote_policy"`

	// Fallback is "best_effort" or "none".
	Fallback string `toml:"fallback" json:"fallback" yaml:"fallback"`

	// Parallel computes the five trends of a pass concurrently.
	Parallel bool `toml:"parallel" json:"parallel" yaml:"parallel"`
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	// Enabled records runs and bench trials in the database.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// Path is the SQLite database file.
	Path string `toml:"path" json:"path" yaml:"path"`

	// BusyTimeoutMs is the SQLite busy timeout.
	BusyTimeoutMs int `toml:"busy_timeout_ms" json:"busy_timeout_ms" yaml:"busy_timeout_ms"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is the log output: "stdout", "stderr", "file", or a file path.
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the path to the log file (when Output is "file").
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// MaxSizeMB is the maximum log file size before rotation.
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is the number of old log files to keep.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`

	// MaxAgeDays is the maximum age of log files in days.
	MaxAgeDays int `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`

	// Compress determines whether to compress rotated logs.
	Compress bool `toml:"compress" json:"compress" yaml:"compress"`
}

// WatchConfig holds inbox watching configuration.
type WatchConfig struct {
	// Inbox is the directory scanned for challenge files.
	Inbox string `toml:"inbox" json:"inbox" yaml:"inbox"`

	// Extensions lists the challenge file extensions picked up.
	Extensions []string `toml:"extensions" json:"extensions" yaml:"extensions"`

	// DebounceMs is how long a file must stay unchanged before analysis.
	DebounceMs int `toml:"debounce_ms" json:"debounce_ms" yaml:"debounce_ms"`

	// MetricsAddr serves /metrics while watching. Empty disables it.
	MetricsAddr string `toml:"metrics_addr" json:"metrics_addr" yaml:"metrics_addr"`
}

// BenchConfig holds evaluation defaults.
type BenchConfig struct {
	KeyLengths []int   `toml:"key_lengths" json:"key_lengths" yaml:"key_lengths"`
	Trials     int     `toml:"trials" json:"trials" yaml:"trials"`
	NoiseProb  float64 `toml:"noise_prob" json:"noise_prob" yaml:"noise_prob"`
	Seed       uint64  `toml:"seed" json:"seed" yaml:"seed"`
	Workers    int     `toml:"workers" json:"workers" yaml:"workers"`
}

// DefaultConfig returns a configuration with the tuned defaults.
func DefaultConfig() *Config {
	dir := Dir()
	opts := analysis.DefaultOptions()

	return &Config{
		Version: Version,
		Analysis: AnalysisConfig{
			SearchSpace:     opts.SearchSpace,
			InitialWindow:   opts.InitialWindow,
			WindowFactor:    opts.WindowFactor,
			StrictThreshold: opts.StrictThreshold,
			RetryThreshold:  opts.RetryThreshold,
			OutlierFactor:   opts.OutlierFactor,
			NoiseRatio:      opts.NoiseRatio,
			VotePolicy:      string(opts.VotePolicy),
			Fallback:        string(opts.Fallback),
			Parallel:        opts.Parallel,
		},
		Storage: StorageConfig{
			Enabled:       true,
			Path:          filepath.Join(dir, "plainid.db"),
			BusyTimeoutMs: 5000,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   filepath.Join(dir, "logs", "plainid.log"),
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 30,
			Compress:   true,
		},
		Watch: WatchConfig{
			Inbox:      filepath.Join(dir, "inbox"),
			Extensions: []string{".json", ".yaml", ".yml", ".toml"},
			DebounceMs: 500,
		},
		Bench: BenchConfig{
			KeyLengths: []int{1, 3, 5, 7, 9, 11, 13, 15, 17, 19, 21, 23},
			Trials:     1,
			NoiseProb:  0.05,
			Seed:       1,
			Workers:    4,
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(Dir(), "config.toml")
}

// Load reads configuration from the specified path.
// If the file doesn't exist, returns default configuration.
// Supports TOML, JSON, and YAML formats based on file extension.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = ConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.ApplyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := decode(path, data, cfg); err != nil {
		return nil, err
	}

	// Apply environment variable overrides
	cfg.ApplyEnvOverrides()

	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch filepath.Ext(path) {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("decode JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("decode YAML: %w", err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("decode TOML: %w", err)
		}
	default:
		// Try TOML by default
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("decode config (unknown format): %w", err)
		}
	}
	return nil
}

// Encode renders the configuration in the format named by ext
// (".toml", ".json", ".yaml" or ".yml"; TOML otherwise).
func (c *Config) Encode(ext string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch ext {
	case ".json":
		return json.MarshalIndent(c, "", "  ")
	case ".yaml", ".yml":
		return yaml.Marshal(c)
	default:
		var buf bytes.Buffer
		buf.WriteString("# plainid configuration\n")
		if err := toml.NewEncoder(&buf).Encode(c); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
}

// Save writes the configuration to path, choosing the format by extension.
func Save(cfg *Config, path string) error {
	data, err := cfg.Encode(filepath.Ext(path))
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// EnsureDirectories creates the directories the configured files live in.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.Storage.Path),
		filepath.Dir(c.Logging.FilePath),
		c.Watch.Inbox,
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}

// Dir returns the base plainid directory.
// Uses platform-specific paths or the PLAINID_DATA_DIR environment override.
func Dir() string {
	if envDir := os.Getenv("PLAINID_DATA_DIR"); envDir != "" {
		return envDir
	}
	return PlatformDataDir()
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables are prefixed with PLAINID_. Values that do not parse
// leave the setting unchanged.
func (c *Config) ApplyEnvOverrides() {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Analysis overrides
	envInt("PLAINID_SEARCH_SPACE", &c.Analysis.SearchSpace)
	envFloat("PLAINID_STRICT_THRESHOLD", &c.Analysis.StrictThreshold)
	envFloat("PLAINID_RETRY_THRESHOLD", &c.Analysis.RetryThreshold)
	envFloat("PLAINID_NOISE_RATIO", &c.Analysis.NoiseRatio)
	if v := os.Getenv("PLAINID_VOTE_POLICY"); v != "" {
		c.Analysis.VotePolicy = v
	}
	if v := os.Getenv("PLAINID_FALLBACK"); v != "" {
		c.Analysis.Fallback = v
	}

	// Storage overrides
	if v := os.Getenv("PLAINID_DB_PATH"); v != "" {
		c.Storage.Path = v
	}

	// Logging overrides
	if v := os.Getenv("PLAINID_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("PLAINID_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}

	// Watch overrides
	if v := os.Getenv("PLAINID_INBOX"); v != "" {
		c.Watch.Inbox = v
	}
	if v := os.Getenv("PLAINID_METRICS_ADDR"); v != "" {
		c.Watch.MetricsAddr = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	clone := &Config{
		Version:  c.Version,
		Analysis: c.Analysis,
		Storage:  c.Storage,
		Logging:  c.Logging,
		Watch:    c.Watch,
		Bench:    c.Bench,
	}

	// Deep copy slices
	clone.Watch.Extensions = append([]string{}, c.Watch.Extensions...)
	clone.Bench.KeyLengths = append([]int{}, c.Bench.KeyLengths...)

	return clone
}

// EngineOptions converts the analysis section into engine options.
func (a AnalysisConfig) EngineOptions() (analysis.Options, error) {
	policy, err := trend.ParseVotePolicy(a.VotePolicy)
	if err != nil {
		return analysis.Options{}, err
	}
	fallback, err := analysis.ParseFallback(a.Fallback)
	if err != nil {
		return analysis.Options{}, err
	}

	return analysis.Options{
		SearchSpace:     a.SearchSpace,
		InitialWindow:   a.InitialWindow,
		WindowFactor:    a.WindowFactor,
		StrictThreshold: a.StrictThreshold,
		RetryThreshold:  a.RetryThreshold,
		OutlierFactor:   a.OutlierFactor,
		NoiseRatio:      a.NoiseRatio,
		VotePolicy:      policy,
		Fallback:        fallback,
		Parallel:        a.Parallel,
	}, nil
}
