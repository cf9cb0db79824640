// Package watcher monitors an inbox directory and reports challenge files
// once they stop changing.
package watcher

import (
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/crypto/blake2b"
)

// Event represents a file that is ready to be read.
type Event struct {
	Path      string
	Hash      [32]byte
	Size      int64
	Timestamp time.Time
}

// Fingerprint returns the hex BLAKE2b-256 digest of the file.
func (e Event) Fingerprint() string {
	return hex.EncodeToString(e.Hash[:])
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets how long a file must stay unchanged before it is
// reported.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		w.interval = d
	}
}

// WithExtensions limits the watcher to files with these extensions
// (for example ".json"). Matching is case-insensitive.
func WithExtensions(exts ...string) Option {
	return func(w *Watcher) {
		w.exts = make([]string, len(exts))
		for i, e := range exts {
			w.exts[i] = strings.ToLower(e)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		w.logger = l
	}
}

// Watcher monitors a directory for new or changed files.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	dir       string
	exts      []string
	interval  time.Duration
	logger    *slog.Logger

	pending pending

	events chan Event
	errors chan error

	done chan struct{}
	wg   sync.WaitGroup
}

// pending maps a path to the time it last changed.
type pending struct {
	mu    sync.Mutex
	files map[string]time.Time
}

func (p *pending) touch(path string, at time.Time) {
	p.mu.Lock()
	p.files[path] = at
	p.mu.Unlock()
}

func (p *pending) forget(path string) {
	p.mu.Lock()
	delete(p.files, path)
	p.mu.Unlock()
}

// quiet returns the files unchanged since cutoff, oldest change first.
func (p *pending) quiet(cutoff time.Time) []candidate {
	p.mu.Lock()
	var out []candidate
	for path, at := range p.files {
		if !at.After(cutoff) {
			out = append(out, candidate{path: path, changed: at})
		}
	}
	p.mu.Unlock()

	slices.SortFunc(out, func(a, b candidate) int { return a.changed.Compare(b.changed) })
	return out
}

// settle removes c if it has not changed since quiet returned it and
// reports whether it did.
func (p *pending) settle(c candidate, emit func() bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if at, ok := p.files[c.path]; !ok || !at.Equal(c.changed) {
		return false
	}
	if !emit() {
		return false
	}
	delete(p.files, c.path)
	return true
}

func (p *pending) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.files)
}

type candidate struct {
	path    string
	changed time.Time
}

// New creates a watcher over dir. The directory is created if missing.
func New(dir string, opts ...Option) (*Watcher, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, err
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsWatcher: fsWatcher,
		dir:       abs,
		interval:  500 * time.Millisecond,
		logger:    slog.New(slog.DiscardHandler),
		pending:   pending{files: make(map[string]time.Time)},
		events:    make(chan Event, 100),
		errors:    make(chan error, 10),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

// Events returns the channel of stable files.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Errors returns the channel of errors.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string {
	return w.dir
}

// Start begins watching. Files already in the directory are reported too.
func (w *Watcher) Start() error {
	if err := w.fsWatcher.Add(w.dir); err != nil {
		return err
	}

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			w.trackFile(filepath.Join(w.dir, entry.Name()))
		}
	}

	w.wg.Add(2)
	go w.eventLoop()
	go w.debounceLoop()

	w.logger.Info("watching inbox", "dir", w.dir, "tracked", w.TrackedFiles())
	return nil
}

// Stop shuts down the watcher and closes its channels.
func (w *Watcher) Stop() error {
	close(w.done)
	w.wg.Wait()
	close(w.events)
	close(w.errors)
	return w.fsWatcher.Close()
}

func (w *Watcher) matches(path string) bool {
	if len(w.exts) == 0 {
		return true
	}
	return slices.Contains(w.exts, strings.ToLower(filepath.Ext(path)))
}

func (w *Watcher) trackFile(path string) {
	if !w.matches(path) {
		return
	}
	if info, err := os.Stat(path); err == nil {
		w.pending.touch(path, info.ModTime())
	}
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if !w.matches(event.Name) {
				continue
			}

			switch {
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				w.pending.forget(event.Name)
			case event.Has(fsnotify.Write), event.Has(fsnotify.Create):
				if info, err := os.Stat(event.Name); err == nil && !info.IsDir() {
					w.pending.touch(event.Name, time.Now())
				}
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.report(err)
		}
	}
}

func (w *Watcher) report(err error) {
	select {
	case w.errors <- err:
	default:
		w.logger.Warn("dropped watcher error", "error", err)
	}
}

func (w *Watcher) debounceLoop() {
	defer w.wg.Done()

	tick := min(max(w.interval/4, 10*time.Millisecond), time.Second)
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return

		case now := <-ticker.C:
			w.emitStable(now)
		}
	}
}

// emitStable reports files that have not changed for the debounce
// interval. Hashing happens without holding the pending lock; a file that
// changes meanwhile waits for the next tick.
func (w *Watcher) emitStable(now time.Time) {
	for _, c := range w.pending.quiet(now.Add(-w.interval)) {
		hash, size, err := HashFile(c.path)
		if err != nil {
			if w.pending.settle(c, func() bool { return true }) {
				w.report(err)
			}
			continue
		}

		ev := Event{Path: c.path, Hash: hash, Size: size, Timestamp: now}
		sent := w.pending.settle(c, func() bool {
			select {
			case w.events <- ev:
				return true
			default:
				return false
			}
		})
		if sent {
			w.logger.Debug("file stable", "path", c.path, "size", size)
		}
	}
}

// HashFile computes the BLAKE2b-256 digest of a file by streaming it.
func HashFile(path string) ([32]byte, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return [32]byte{}, 0, err
	}
	defer f.Close()

	h, err := blake2b.New256(nil)
	if err != nil {
		return [32]byte{}, 0, err
	}
	size, err := io.Copy(h, f)
	if err != nil {
		return [32]byte{}, 0, err
	}

	var hash [32]byte
	copy(hash[:], h.Sum(nil))
	return hash, size, nil
}

// TrackedFiles returns the number of files waiting to stabilise.
func (w *Watcher) TrackedFiles() int {
	return w.pending.len()
}
