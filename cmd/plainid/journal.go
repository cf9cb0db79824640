package main

import (
	"flag"
	"os"
	"strings"
	"time"

	"plainid/internal/logging"
	"plainid/internal/report"
)

func cmdJournal(args []string) error {
	fs := flag.NewFlagSet("journal", flag.ExitOnError)
	limit := fs.Int("n", 20, "number of most recent entries shown (0 for all)")
	eventType := fs.String("type", "", "only entries of this event type (e.g. run_finished)")
	runID := fs.String("run", "", "only entries of this run ID (a prefix is enough)")
	formatStr := fs.String("format", "text", "output format: text, json, yaml")
	fs.Parse(args)

	format, err := report.ParseFormat(*formatStr)
	if err != nil {
		return err
	}
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	events, err := logging.ReadJournalHistory(journalPath(cfg))
	if err != nil {
		return err
	}
	events = filterEvents(events, logging.EventType(*eventType), *runID, *limit)

	if format != report.FormatText {
		return report.Encode(os.Stdout, format, events)
	}
	report.PrintJournal(os.Stdout, events, time.Now())
	return nil
}

// filterEvents keeps the last limit events matching kind and run ID prefix.
// Empty filters match everything.
func filterEvents(events []logging.Event, kind logging.EventType, runID string, limit int) []logging.Event {
	var out []logging.Event
	for _, e := range events {
		if kind != "" && e.Type != kind {
			continue
		}
		if !strings.HasPrefix(e.RunID, runID) {
			continue
		}
		out = append(out, e)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}
