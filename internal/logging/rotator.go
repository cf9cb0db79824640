package logging

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

// Rotation controls when a RotatingFile starts a new file and how many old
// ones it keeps.
type Rotation struct {
	MaxBytes   int64         // 0 disables size rotation
	Daily      bool          // also rotate when the day changes
	MaxBackups int           // 0 keeps every backup
	MaxAge     time.Duration // 0 keeps backups regardless of age
	Compress   bool          // gzip backups
}

// RotatingFile is an io.Writer over an append-only file. Backups are named
// <name>-<timestamp><ext>[.gz] next to the active file and are compressed and
// pruned in the background; Close waits for that work.
type RotatingFile struct {
	path string
	rot  Rotation

	mu       sync.Mutex
	file     *os.File
	size     int64
	openedAt time.Time
	bg       sync.WaitGroup
	now      func() time.Time
}

// OpenRotating opens path for appending, creating its directory.
func OpenRotating(path string, rot Rotation) (*RotatingFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	r := &RotatingFile{path: path, rot: rot, now: time.Now}
	if err := r.open(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *RotatingFile) open() error {
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
	if err != nil {
		return fmt.Errorf("open %s: %w", r.path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat %s: %w", r.path, err)
	}
	r.file, r.size, r.openedAt = f, info.Size(), r.now()
	return nil
}

// Write appends p, rotating first when p would overflow the size limit or
// the day has changed. A single write is never split across files.
func (r *RotatingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		if err := r.open(); err != nil {
			return 0, err
		}
	}
	if r.due(int64(len(p))) {
		if err := r.rotate(); err != nil {
			return 0, fmt.Errorf("rotate %s: %w", r.path, err)
		}
	}

	n, err := r.file.Write(p)
	r.size += int64(n)
	return n, err
}

func (r *RotatingFile) due(next int64) bool {
	if r.size == 0 {
		return false
	}
	if r.rot.MaxBytes > 0 && r.size+next > r.rot.MaxBytes {
		return true
	}
	if !r.rot.Daily {
		return false
	}
	y1, m1, d1 := r.openedAt.Date()
	y2, m2, d2 := r.now().Date()
	return y1 != y2 || m1 != m2 || d1 != d2
}

func (r *RotatingFile) rotate() error {
	if err := r.file.Close(); err != nil {
		return err
	}
	r.file = nil

	dir, name, ext := r.parts()
	backup := filepath.Join(dir, name+"-"+r.now().Format("20060102-150405.000000")+ext)
	if err := os.Rename(r.path, backup); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := r.open(); err != nil {
		return err
	}

	r.bg.Add(1)
	go func() {
		defer r.bg.Done()
		if r.rot.Compress {
			gzipFile(backup)
		}
		r.prune()
	}()
	return nil
}

func (r *RotatingFile) parts() (dir, name, ext string) {
	base := filepath.Base(r.path)
	ext = filepath.Ext(base)
	return filepath.Dir(r.path), strings.TrimSuffix(base, ext), ext
}

// gzipFile replaces path with path.gz. On failure the original stays.
func gzipFile(path string) {
	in, err := os.Open(path)
	if err != nil {
		return
	}
	defer in.Close()

	out, err := os.Create(path + ".gz")
	if err != nil {
		return
	}

	gz := gzip.NewWriter(out)
	gz.Name = filepath.Base(path)
	_, err = io.Copy(gz, in)
	if cerr := gz.Close(); err == nil {
		err = cerr
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path + ".gz")
		return
	}
	in.Close()
	os.Remove(path)
}

// prune removes the oldest backups beyond MaxBackups, then any older than
// MaxAge.
func (r *RotatingFile) prune() {
	backups, err := r.Backups()
	if err != nil {
		return
	}

	if n := r.rot.MaxBackups; n > 0 && len(backups) > n {
		for _, path := range backups[:len(backups)-n] {
			os.Remove(path)
		}
		backups = backups[len(backups)-n:]
	}

	if r.rot.MaxAge > 0 {
		cutoff := r.now().Add(-r.rot.MaxAge)
		for _, path := range backups {
			if info, err := os.Stat(path); err == nil && info.ModTime().Before(cutoff) {
				os.Remove(path)
			}
		}
	}
}

// Backups lists rotated files, oldest first. The timestamp in the name
// sorts lexically.
func (r *RotatingFile) Backups() ([]string, error) {
	return backupsOf(r.path)
}

func backupsOf(path string) ([]string, error) {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), name+"-*"+ext+"*"))
	if err != nil {
		return nil, err
	}
	slices.Sort(matches)
	return matches, nil
}

// Path returns the active file.
func (r *RotatingFile) Path() string {
	return r.path
}

// Close waits for background compression and closes the active file.
func (r *RotatingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.bg.Wait()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}
