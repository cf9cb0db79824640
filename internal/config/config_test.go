package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"plainid/internal/analysis"
	"plainid/internal/trend"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestDefaultConfig(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PLAINID_DATA_DIR", dir)

	cfg := DefaultConfig()
	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}

	if cfg.Analysis.SearchSpace != 30 {
		t.Errorf("expected search space 30, got %d", cfg.Analysis.SearchSpace)
	}
	if cfg.Analysis.StrictThreshold != 2.5 || cfg.Analysis.RetryThreshold != 2.0 {
		t.Errorf("unexpected thresholds %v/%v", cfg.Analysis.StrictThreshold, cfg.Analysis.RetryThreshold)
	}
	if cfg.Analysis.VotePolicy != "lower_entropy" {
		t.Errorf("expected lower_entropy, got %s", cfg.Analysis.VotePolicy)
	}

	if !strings.HasPrefix(cfg.Storage.Path, dir) {
		t.Errorf("database path should live under %s: %s", dir, cfg.Storage.Path)
	}
	if !strings.HasPrefix(cfg.Watch.Inbox, dir) {
		t.Errorf("inbox should live under %s: %s", dir, cfg.Watch.Inbox)
	}
}

func TestConfigPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PLAINID_DATA_DIR", dir)

	if got, want := ConfigPath(), filepath.Join(dir, "config.toml"); got != want {
		t.Errorf("ConfigPath() = %s, want %s", got, want)
	}
}

func TestDirFallsBackToPlatform(t *testing.T) {
	t.Setenv("PLAINID_DATA_DIR", "")
	if Dir() != PlatformDataDir() {
		t.Errorf("Dir() = %s, want %s", Dir(), PlatformDataDir())
	}
	if !strings.Contains(PlatformDataDir(), "plainid") {
		t.Errorf("platform dir should name plainid: %s", PlatformDataDir())
	}
}

func TestLoadNonexistent(t *testing.T) {
	t.Setenv("PLAINID_DATA_DIR", t.TempDir())

	cfg, err := Load("/nonexistent/path/config.toml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Analysis.SearchSpace != 30 {
		t.Errorf("expected default search space, got %d", cfg.Analysis.SearchSpace)
	}
}

func TestLoadFormats(t *testing.T) {
	t.Setenv("PLAINID_DATA_DIR", t.TempDir())

	tests := []struct {
		name    string
		content string
	}{
		{"config.toml", "[analysis]\nsearch_space = 40\nvote_policy = \"both_members\"\n"},
		{"config.json", `{"analysis": {"search_space": 40, "vote_policy": "both_members"}}`},
		{"config.yaml", "analysis:\n  search_space: 40\n  vote_policy: both_members\n"},
		{"config.conf", "[analysis]\nsearch_space = 40\nvote_policy = \"both_members\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.name)
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatalf("failed to write config: %v", err)
			}

			cfg, err := Load(path)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if cfg.Analysis.SearchSpace != 40 {
				t.Errorf("expected search space 40, got %d", cfg.Analysis.SearchSpace)
			}
			if cfg.Analysis.VotePolicy != "both_members" {
				t.Errorf("expected both_members, got %s", cfg.Analysis.VotePolicy)
			}
			// unspecified keys keep their defaults
			if cfg.Analysis.RetryThreshold != 2.0 {
				t.Errorf("expected default retry threshold, got %v", cfg.Analysis.RetryThreshold)
			}
		})
	}
}

func TestLoadInvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[analysis\nsearch_space = "), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid TOML")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PLAINID_DATA_DIR", t.TempDir())
	t.Setenv("PLAINID_SEARCH_SPACE", "45")
	t.Setenv("PLAINID_STRICT_THRESHOLD", "3.25")
	t.Setenv("PLAINID_RETRY_THRESHOLD", "not-a-number")
	t.Setenv("PLAINID_FALLBACK", "none")
	t.Setenv("PLAINID_DB_PATH", "/var/lib/plainid/runs.db")
	t.Setenv("PLAINID_LOG_LEVEL", "debug")
	t.Setenv("PLAINID_INBOX", "/srv/inbox")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Analysis.SearchSpace != 45 {
		t.Errorf("search space = %d", cfg.Analysis.SearchSpace)
	}
	if cfg.Analysis.StrictThreshold != 3.25 {
		t.Errorf("strict threshold = %v", cfg.Analysis.StrictThreshold)
	}
	if cfg.Analysis.RetryThreshold != 2.0 {
		t.Errorf("unparseable override should be ignored, got %v", cfg.Analysis.RetryThreshold)
	}
	if cfg.Analysis.Fallback != "none" {
		t.Errorf("fallback = %s", cfg.Analysis.Fallback)
	}
	if cfg.Storage.Path != "/var/lib/plainid/runs.db" {
		t.Errorf("db path = %s", cfg.Storage.Path)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %s", cfg.Logging.Level)
	}
	if cfg.Watch.Inbox != "/srv/inbox" {
		t.Errorf("inbox = %s", cfg.Watch.Inbox)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	t.Setenv("PLAINID_DATA_DIR", t.TempDir())

	for _, ext := range []string{".toml", ".json", ".yaml"} {
		t.Run(ext, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Analysis.SearchSpace = 50
			cfg.Bench.KeyLengths = []int{2, 4}

			path := filepath.Join(t.TempDir(), "nested", "config"+ext)
			if err := Save(cfg, path); err != nil {
				t.Fatalf("Save failed: %v", err)
			}

			info, err := os.Stat(path)
			if err != nil {
				t.Fatal(err)
			}
			if info.Mode().Perm() != 0600 {
				t.Errorf("expected mode 0600, got %v", info.Mode().Perm())
			}

			got, err := Load(path)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if got.Analysis.SearchSpace != 50 {
				t.Errorf("search space = %d", got.Analysis.SearchSpace)
			}
			if len(got.Bench.KeyLengths) != 2 || got.Bench.KeyLengths[1] != 4 {
				t.Errorf("key lengths = %v", got.Bench.KeyLengths)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	t.Setenv("PLAINID_DATA_DIR", t.TempDir())

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"version", func(c *Config) { c.Version = 99 }, "version"},
		{"search space", func(c *Config) { c.Analysis.SearchSpace = 0 }, "analysis.search_space"},
		{"window factor", func(c *Config) { c.Analysis.WindowFactor = 0 }, "analysis.window_factor"},
		{"noise ratio", func(c *Config) { c.Analysis.NoiseRatio = 1 }, "analysis.noise_ratio"},
		{"vote policy", func(c *Config) { c.Analysis.VotePolicy = "majority" }, "analysis.vote_policy"},
		{"fallback", func(c *Config) { c.Analysis.Fallback = "guess" }, "analysis.fallback"},
		{"db path", func(c *Config) { c.Storage.Path = "" }, "storage.path"},
		{"log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"log file", func(c *Config) { c.Logging.Output, c.Logging.FilePath = "file", "" }, "logging.file_path"},
		{"extension", func(c *Config) { c.Watch.Extensions = []string{"json"} }, "watch.extensions[0]"},
		{"debounce", func(c *Config) { c.Watch.DebounceMs = 120000 }, "watch.debounce_ms"},
		{"metrics addr", func(c *Config) { c.Watch.MetricsAddr = "9464" }, "watch.metrics_addr"},
		{"both without file", func(c *Config) { c.Logging.Output, c.Logging.FilePath = "both", "" }, "logging.file_path"},
		{"key length", func(c *Config) { c.Bench.KeyLengths = []int{3, 0} }, "bench.key_lengths[1]"},
		{"noise prob", func(c *Config) { c.Bench.NoiseProb = 1.5 }, "bench.noise_prob"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("error should match ErrInvalidConfig: %v", err)
			}

			var verrs ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("expected ValidationErrors, got %T", err)
			}
			found := false
			for _, v := range verrs {
				if v.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("no error for field %s in %v", tt.field, verrs)
			}
		})
	}
}

func TestStorageDisabledNeedsNoPath(t *testing.T) {
	t.Setenv("PLAINID_DATA_DIR", t.TempDir())

	cfg := DefaultConfig()
	cfg.Storage.Enabled = false
	cfg.Storage.Path = ""
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestEngineOptions(t *testing.T) {
	t.Setenv("PLAINID_DATA_DIR", t.TempDir())

	cfg := DefaultConfig()
	opts, err := cfg.Analysis.EngineOptions()
	if err != nil {
		t.Fatal(err)
	}

	want := analysis.DefaultOptions()
	if opts.SearchSpace != want.SearchSpace || opts.WindowEnd() != want.WindowEnd() || opts.MaxNoise() != want.MaxNoise() {
		t.Errorf("engine options %+v differ from defaults %+v", opts, want)
	}
	if opts.VotePolicy != trend.VoteLowerEntropy || opts.Fallback != analysis.FallbackBestEffort {
		t.Errorf("unexpected policy %s / fallback %s", opts.VotePolicy, opts.Fallback)
	}

	cfg.Analysis.VotePolicy = "unknown"
	if _, err := cfg.Analysis.EngineOptions(); !errors.Is(err, trend.ErrVotePolicy) {
		t.Errorf("expected ErrVotePolicy, got %v", err)
	}
}

func TestClone(t *testing.T) {
	t.Setenv("PLAINID_DATA_DIR", t.TempDir())

	cfg := DefaultConfig()
	clone := cfg.Clone()
	clone.Watch.Extensions[0] = ".txt"
	clone.Bench.KeyLengths[0] = 99

	if cfg.Watch.Extensions[0] == ".txt" || cfg.Bench.KeyLengths[0] == 99 {
		t.Error("clone shares slices with the original")
	}
}

func TestEnsureDirectories(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("PLAINID_DATA_DIR", tmpDir)

	cfg := DefaultConfig()
	cfg.Storage.Path = filepath.Join(tmpDir, "a", "b", "runs.db")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{filepath.Join(tmpDir, "a", "b"), filepath.Join(tmpDir, "logs"), filepath.Join(tmpDir, "inbox")} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("directory %s was not created", dir)
		}
	}
}

func TestLoadOrCreate(t *testing.T) {
	t.Setenv("PLAINID_DATA_DIR", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.toml")

	_, created, err := LoadOrCreate(path)
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Error("expected the file to be created")
	}

	_, created, err = LoadOrCreate(path)
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Error("second call should load the existing file")
	}
}

func TestLoaderReloads(t *testing.T) {
	t.Setenv("PLAINID_DATA_DIR", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[analysis]\nsearch_space = 30\n"), 0600); err != nil {
		t.Fatal(err)
	}

	l := NewLoader(path)
	l.debounce = 10 * time.Millisecond
	if _, err := l.Load(); err != nil {
		t.Fatal(err)
	}

	changed := make(chan *Config, 1)
	l.OnChange(func(c *Config) {
		select {
		case changed <- c:
		default:
		}
	})
	if err := l.Watch(); err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	if err := os.WriteFile(path, []byte("[analysis]\nsearch_space = 60\n"), 0600); err != nil {
		t.Fatal(err)
	}

	select {
	case c := <-changed:
		if c.Analysis.SearchSpace != 60 {
			t.Errorf("reloaded search space = %d", c.Analysis.SearchSpace)
		}
		if l.Config().Analysis.SearchSpace != 60 {
			t.Errorf("loader still holds the old config")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload observed")
	}
}

func TestLoaderRejectsInvalidReload(t *testing.T) {
	t.Setenv("PLAINID_DATA_DIR", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[analysis]\nsearch_space = 30\n"), 0600); err != nil {
		t.Fatal(err)
	}

	l := NewLoader(path)
	l.debounce = 10 * time.Millisecond
	if _, err := l.Load(); err != nil {
		t.Fatal(err)
	}
	if err := l.Watch(); err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	if err := os.WriteFile(path, []byte("[analysis]\nsearch_space = 0\n"), 0600); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-l.Errors():
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected a validation error, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no error reported")
	}
	if l.Config().Analysis.SearchSpace != 30 {
		t.Errorf("invalid reload replaced the config")
	}
}
