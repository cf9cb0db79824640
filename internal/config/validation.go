package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"plainid/internal/analysis"
	"plainid/internal/trend"
)

// ErrInvalidConfig is returned when validation fails.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Is lets callers match any validation failure against ErrInvalidConfig.
func (e ValidationErrors) Is(target error) bool {
	return target == ErrInvalidConfig
}

// ValidateConfig checks every section and returns all problems at once as
// ValidationErrors.
func ValidateConfig(c *Config) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var v validator
	v.check(c.Version >= 1 && c.Version <= Version, "version",
		"unsupported version %d (current: %d)", c.Version, Version)

	validateAnalysis(&v, &c.Analysis)
	validateStorage(&v, &c.Storage)
	validateLogging(&v, &c.Logging)
	validateWatch(&v, &c.Watch)
	validateBench(&v, &c.Bench)

	if len(v.errs) > 0 {
		return v.errs
	}
	return nil
}

type validator struct {
	errs ValidationErrors
}

// check records a problem with field unless ok holds.
func (v *validator) check(ok bool, field, format string, args ...any) {
	if !ok {
		v.errs = append(v.errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}
}

func validateAnalysis(v *validator, a *AnalysisConfig) {
	v.check(a.SearchSpace >= 1, "analysis.search_space", "search space must be at least 1")
	v.check(a.InitialWindow >= 0, "analysis.initial_window", "initial window cannot be negative")
	v.check(a.WindowFactor >= 1, "analysis.window_factor", "window factor must be at least 1")
	v.check(a.StrictThreshold >= 0, "analysis.strict_threshold", "threshold cannot be negative")
	v.check(a.RetryThreshold >= 0, "analysis.retry_threshold", "threshold cannot be negative")
	v.check(a.OutlierFactor >= 0, "analysis.outlier_factor", "outlier factor cannot be negative")
	v.check(a.NoiseRatio >= 0 && a.NoiseRatio < 1, "analysis.noise_ratio", "noise ratio must be in [0, 1)")

	_, err := trend.ParseVotePolicy(a.VotePolicy)
	v.check(err == nil, "analysis.vote_policy",
		"invalid vote policy: %s (valid: lower_entropy, both_members)", a.VotePolicy)
	_, err = analysis.ParseFallback(a.Fallback)
	v.check(err == nil, "analysis.fallback",
		"invalid fallback: %s (valid: best_effort, none)", a.Fallback)
}

func validateStorage(v *validator, s *StorageConfig) {
	v.check(!s.Enabled || s.Path != "", "storage.path", "database path is required when storage is enabled")
	v.check(s.BusyTimeoutMs >= 0, "storage.busy_timeout_ms", "busy timeout cannot be negative")
}

func validateLogging(v *validator, l *LoggingConfig) {
	_, known := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}[l.Level]
	v.check(known, "logging.level", "invalid log level: %s (valid: debug, info, warn, error)", l.Level)
	v.check(l.Format == "text" || l.Format == "json", "logging.format",
		"invalid log format: %s (valid: text, json)", l.Format)

	// Any other non-empty output is a file path.
	v.check(l.Output != "", "logging.output", "log output is required")
	if l.Output == "file" || l.Output == "both" {
		v.check(l.FilePath != "", "logging.file_path", "file path is required when output is '%s'", l.Output)
	}

	v.check(l.MaxSizeMB >= 1, "logging.max_size_mb", "max size must be at least 1 MB")
	v.check(l.MaxBackups >= 0, "logging.max_backups", "max backups cannot be negative")
	v.check(l.MaxAgeDays >= 0, "logging.max_age_days", "max age cannot be negative")
}

func validateWatch(v *validator, w *WatchConfig) {
	v.check(w.DebounceMs >= 0 && w.DebounceMs <= 60000, "watch.debounce_ms",
		"debounce must be between 0 and 60000ms")
	for i, ext := range w.Extensions {
		v.check(strings.HasPrefix(ext, "."), fmt.Sprintf("watch.extensions[%d]", i),
			"extension must start with a dot: %s", ext)
	}
	if w.MetricsAddr != "" {
		_, _, err := net.SplitHostPort(w.MetricsAddr)
		v.check(err == nil, "watch.metrics_addr", "invalid listen address: %v", err)
	}
}

func validateBench(v *validator, b *BenchConfig) {
	for i, n := range b.KeyLengths {
		v.check(n >= 1, fmt.Sprintf("bench.key_lengths[%d]", i), "key length must be at least 1")
	}
	v.check(b.Trials >= 1, "bench.trials", "trials must be at least 1")
	v.check(b.NoiseProb >= 0 && b.NoiseProb < 1, "bench.noise_prob", "noise probability must be in [0, 1)")
	v.check(b.Workers >= 1, "bench.workers", "workers must be at least 1")
}
