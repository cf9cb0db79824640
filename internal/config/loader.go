package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"plainid/internal/watcher"
)

// Loader holds the current configuration and reloads it when the file
// changes on disk. Saves that leave the content unchanged are ignored.
type Loader struct {
	path     string
	debounce time.Duration

	mu       sync.RWMutex
	config   *Config
	hash     [32]byte
	onChange []func(*Config)

	w    *watcher.Watcher
	errs chan error
	stop chan struct{}
	done chan struct{}
}

// NewLoader creates a loader for the file at path.
func NewLoader(path string) *Loader {
	return &Loader{
		path:     path,
		debounce: 100 * time.Millisecond,
		errs:     make(chan error, 1),
		stop:     make(chan struct{}),
	}
}

// Load reads, parses and validates the configuration file.
func (l *Loader) Load() (*Config, error) {
	cfg, hash, err := l.read()
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.config, l.hash = cfg, hash
	l.mu.Unlock()
	return cfg, nil
}

// read loads and validates the file, returning its content hash. A missing
// file yields the defaults and a zero hash.
func (l *Loader) read() (*Config, [32]byte, error) {
	var hash [32]byte
	if h, _, err := watcher.HashFile(l.path); err == nil {
		hash = h
	}
	cfg, err := Load(l.path)
	if err != nil {
		return nil, hash, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, hash, fmt.Errorf("validation failed: %w", err)
	}
	return cfg, hash, nil
}

// Config returns the current configuration.
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config
}

// Watch starts reloading the configuration when its file changes. Registered
// callbacks receive each new configuration; an invalid file keeps the
// previous one and is reported on Errors.
func (l *Loader) Watch() error {
	abs, err := filepath.Abs(l.path)
	if err != nil {
		return err
	}

	w, err := watcher.New(filepath.Dir(abs),
		watcher.WithExtensions(filepath.Ext(abs)),
		watcher.WithDebounce(l.debounce),
	)
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Start(); err != nil {
		w.Stop()
		return fmt.Errorf("watch directory: %w", err)
	}

	l.w = w
	l.done = make(chan struct{})
	go l.loop(abs)
	return nil
}

func (l *Loader) loop(path string) {
	defer close(l.done)

	for {
		select {
		case <-l.stop:
			return

		case ev, ok := <-l.w.Events():
			if !ok {
				return
			}
			if ev.Path != path {
				continue
			}
			l.mu.RLock()
			same := l.config != nil && ev.Hash == l.hash
			l.mu.RUnlock()
			if !same {
				l.reload()
			}

		case err, ok := <-l.w.Errors():
			if !ok {
				return
			}
			l.report(err)
		}
	}
}

func (l *Loader) report(err error) {
	select {
	case l.errs <- err:
	default:
	}
}

func (l *Loader) reload() {
	cfg, hash, err := l.read()
	if err != nil {
		l.report(fmt.Errorf("reload config: %w", err))
		return
	}

	l.mu.Lock()
	l.config, l.hash = cfg, hash
	callbacks := append([]func(*Config){}, l.onChange...)
	l.mu.Unlock()

	for _, cb := range callbacks {
		cb(cfg)
	}
}

// OnChange registers a callback invoked after each successful reload.
func (l *Loader) OnChange(cb func(*Config)) {
	l.mu.Lock()
	l.onChange = append(l.onChange, cb)
	l.mu.Unlock()
}

// Errors reports reload failures. Errors are dropped while one is pending.
func (l *Loader) Errors() <-chan error {
	return l.errs
}

// Close stops watching. It is safe to call when Watch was never called.
func (l *Loader) Close() error {
	select {
	case <-l.stop:
		return nil
	default:
		close(l.stop)
	}
	if l.w == nil {
		return nil
	}
	<-l.done
	return l.w.Stop()
}

// LoadOrCreate loads the configuration from the specified path,
// creating a default configuration file if it doesn't exist.
func LoadOrCreate(path string) (*Config, bool, error) {
	if path == "" {
		path = ConfigPath()
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := Save(cfg, path); err != nil {
			return nil, false, fmt.Errorf("create default config: %w", err)
		}
		cfg.ApplyEnvOverrides()
		return cfg, true, nil
	}

	cfg, err := NewLoader(path).Load()
	if err != nil {
		return nil, false, err
	}
	return cfg, false, nil
}
