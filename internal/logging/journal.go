package logging

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"plainid/internal/analysis"
)

// EventType names a journal entry.
type EventType string

// Journal event types.
const (
	EventStartup           EventType = "startup"
	EventShutdown          EventType = "shutdown"
	EventRunFinished       EventType = "run_finished"
	EventRunFailed         EventType = "run_failed"
	EventChallengeReceived EventType = "challenge_received"
	EventChallengeRejected EventType = "challenge_rejected"
	EventBenchFinished     EventType = "bench_finished"
	EventConfigReloaded    EventType = "config_reloaded"
)

// Event is one line of the journal.
type Event struct {
	Timestamp time.Time      `json:"timestamp" yaml:"timestamp"`
	Type      EventType      `json:"event_type" yaml:"event_type"`
	Component string         `json:"component" yaml:"component"`
	RunID     string         `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Source    string         `json:"source,omitempty" yaml:"source,omitempty"`
	Result    string         `json:"result" yaml:"result"` // "success" or "failure"
	Details   map[string]any `json:"details,omitempty" yaml:"details,omitempty"`
	Error     string         `json:"error,omitempty" yaml:"error,omitempty"`
}

// Journal appends events as JSON lines to a rotated file. Unlike the
// diagnostic log it is meant to be read back, one entry per run or
// inbox file.
type Journal struct {
	component string
	file      *RotatingFile
	w         io.Writer
	mu        sync.Mutex
}

// JournalRotation keeps about 500MB of history for up to 90 days.
var JournalRotation = Rotation{
	MaxBytes:   50 << 20,
	MaxBackups: 10,
	MaxAge:     90 * 24 * time.Hour,
	Compress:   true,
}

// NewJournal opens (or creates) the journal at path.
func NewJournal(path string) (*Journal, error) {
	f, err := OpenRotating(path, JournalRotation)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &Journal{component: "plainid", file: f, w: f}, nil
}

// NewJournalWriter returns a journal that writes to w.
func NewJournalWriter(w io.Writer) *Journal {
	return &Journal{component: "plainid", w: w}
}

// Log writes an event, filling in the timestamp, component and run ID.
func (j *Journal) Log(ctx context.Context, event Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Component == "" {
		event.Component = j.component
	}
	if event.RunID == "" {
		event.RunID = RunIDFromContext(ctx)
	}
	if event.Result == "" {
		event.Result = "success"
		if event.Error != "" {
			event.Result = "failure"
		}
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal journal event: %w", err)
	}
	data = append(data, '\n')
	if _, err := j.w.Write(data); err != nil {
		return fmt.Errorf("write journal event: %w", err)
	}
	return nil
}

// LogRun records the outcome of an analysis.
func (j *Journal) LogRun(ctx context.Context, source string, res *analysis.Result) error {
	details := map[string]any{
		"outcome":  string(res.Outcome),
		"stage":    string(res.Stage),
		"std_dev":  res.StdDev,
		"attempts": len(res.Attempts),
		"removed":  len(res.Removed),
	}
	if idx, ok := res.Answer(); ok {
		details["index"] = idx
	}
	return j.Log(ctx, Event{
		Type:    EventRunFinished,
		RunID:   res.ID,
		Source:  source,
		Details: details,
	})
}

// LogRunError records an analysis that could not run.
func (j *Journal) LogRunError(ctx context.Context, source string, err error) error {
	return j.Log(ctx, Event{
		Type:   EventRunFailed,
		Source: source,
		Error:  err.Error(),
	})
}

// LogChallenge records a file picked up from the inbox. A non-nil err
// marks it rejected.
func (j *Journal) LogChallenge(ctx context.Context, path, fingerprint string, err error) error {
	event := Event{
		Type:    EventChallengeReceived,
		Source:  path,
		Details: map[string]any{"fingerprint": fingerprint},
	}
	if err != nil {
		event.Type = EventChallengeRejected
		event.Error = err.Error()
	}
	return j.Log(ctx, event)
}

// LogBench records a finished evaluation.
func (j *Journal) LogBench(ctx context.Context, trials int, accuracy float64, elapsed time.Duration) error {
	return j.Log(ctx, Event{
		Type: EventBenchFinished,
		Details: map[string]any{
			"trials":     trials,
			"accuracy":   accuracy,
			"elapsed_ms": elapsed.Milliseconds(),
		},
	})
}

// LogConfigReload records a configuration file change.
func (j *Journal) LogConfigReload(ctx context.Context, path string, err error) error {
	event := Event{Type: EventConfigReloaded, Source: path}
	if err != nil {
		event.Error = err.Error()
	}
	return j.Log(ctx, event)
}

// LogStartup logs process start.
func (j *Journal) LogStartup(ctx context.Context, version string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	details["version"] = version
	return j.Log(ctx, Event{Type: EventStartup, Details: details})
}

// LogShutdown logs process exit.
func (j *Journal) LogShutdown(ctx context.Context, reason string) error {
	return j.Log(ctx, Event{
		Type:    EventShutdown,
		Details: map[string]any{"reason": reason},
	})
}

// Close closes the underlying file, if any.
func (j *Journal) Close() error {
	if j.file != nil {
		return j.file.Close()
	}
	return nil
}

// ReadJournal decodes the events in r, in order.
func ReadJournal(r io.Reader) ([]Event, error) {
	var events []Event
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for line := 1; scanner.Scan(); line++ {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return events, fmt.Errorf("journal line %d: %w", line, err)
		}
		events = append(events, e)
	}
	return events, scanner.Err()
}

// ReadJournalFile decodes one journal file, gunzipping it when its name
// ends in .gz.
func ReadJournalFile(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}
	events, err := ReadJournal(r)
	if err != nil {
		return events, fmt.Errorf("%s: %w", path, err)
	}
	return events, nil
}

// ReadJournalHistory decodes the rotated backups of the journal at path,
// oldest first, followed by the active file. A missing active file is not
// an error.
func ReadJournalHistory(path string) ([]Event, error) {
	files, err := backupsOf(path)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err == nil {
		files = append(files, path)
	}

	var events []Event
	for _, file := range files {
		e, err := ReadJournalFile(file)
		if err != nil {
			return events, err
		}
		events = append(events, e...)
	}
	return events, nil
}
