package report

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"

	"plainid/internal/analysis"
	"plainid/internal/bench"
	"plainid/internal/kasiski"
	"plainid/internal/logging"
	"plainid/internal/store"
)

// PrintBench writes the accuracy table of a bench session: one row per key
// length with a mark per expected candidate. Single-trial sessions use O/X,
// otherwise each cell is hits/trials.
func PrintBench(w io.Writer, t *bench.Table) {
	if t == nil {
		fmt.Fprintln(w, "No bench data available")
		return
	}

	heading(w, "=", "                         ACCURACY EVALUATION")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Session:        %s\n", t.ID)
	fmt.Fprintf(w, "Trials:         %s\n", humanize.Comma(int64(len(t.Results))))
	fmt.Fprintf(w, "Noise Prob:     %.3f\n", t.NoiseProb)
	fmt.Fprintf(w, "Seed:           %d\n", t.Seed)
	fmt.Fprintf(w, "Elapsed:        %s\n", FormatDuration(t.Elapsed))
	fmt.Fprintln(w)

	header := []string{"Key Length"}
	for i := 1; i <= analysis.CandidateCount; i++ {
		header = append(header, fmt.Sprintf("Correct%d", i))
	}
	header = append(header, "Accuracy")

	rows := [][]string{header}
	for _, r := range t.Rows() {
		row := []string{fmt.Sprint(r.KeyLength)}
		for _, c := range r.Correct {
			switch {
			case r.Trials == 1 && c == 1:
				row = append(row, "O")
			case r.Trials == 1:
				row = append(row, "X")
			default:
				row = append(row, fmt.Sprintf("%d/%d", c, r.Trials))
			}
		}
		row = append(row, formatPercent(r.Accuracy()))
		rows = append(rows, row)
	}
	printGrid(w, rows)
	fmt.Fprintln(w)

	outcomes := t.Outcomes()
	keys := make([]string, 0, len(outcomes))
	for o := range outcomes {
		keys = append(keys, string(o))
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%-15s %s\n", k+":", humanize.Comma(int64(outcomes[analysis.Outcome(k)])))
	}

	fmt.Fprintln(w, strings.Repeat("=", width))
	fmt.Fprintf(w, "OVERALL ACCURACY: %s\n", formatPercent(t.Accuracy()))
	fmt.Fprintln(w, strings.Repeat("=", width))
}

// PrintAccuracy writes stored accuracy aggregates.
func PrintAccuracy(w io.Writer, acc []store.Accuracy) {
	if len(acc) == 0 {
		fmt.Fprintln(w, "No trials recorded")
		return
	}
	rows := [][]string{{"Key Length", "Trials", "Correct", "Accuracy"}}
	for _, a := range acc {
		rows = append(rows, []string{
			fmt.Sprint(a.KeyLength),
			humanize.Comma(int64(a.Trials)),
			humanize.Comma(int64(a.Correct)),
			formatPercent(a.Ratio()),
		})
	}
	printGrid(w, rows)
}

// PrintKasiski writes the key length estimates, best first.
func PrintKasiski(w io.Writer, factors []kasiski.Factor) {
	if len(factors) == 0 {
		fmt.Fprintln(w, "No repeated substrings found")
		return
	}
	rows := [][]string{{"Rank", "Key Length", "Distances", "Score"}}
	for i, f := range factors {
		rows = append(rows, []string{
			fmt.Sprint(i + 1),
			fmt.Sprint(f.Length),
			fmt.Sprint(f.Count),
			fmt.Sprintf("%.3f", f.Score),
		})
	}
	printGrid(w, rows)
}

// PrintHistory lists recorded runs with their age relative to now.
func PrintHistory(w io.Writer, runs []store.Run, now time.Time) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return
	}
	rows := [][]string{{"Run", "When", "Source", "Cipher", "Outcome", "Answer", "StdDev"}}
	for _, r := range runs {
		answer := "-"
		if r.Index >= 0 && r.Outcome != analysis.OutcomeNoConclusion {
			answer = fmt.Sprint(r.Index)
			if r.Expected != nil {
				if *r.Expected == r.Index {
					answer += " (ok)"
				} else {
					answer += fmt.Sprintf(" (want %d)", *r.Expected)
				}
			}
		}
		rows = append(rows, []string{
			shortID(r.ID),
			humanize.RelTime(r.CreatedAt, now, "ago", "from now"),
			Preview(r.Source, 24),
			fmt.Sprintf("%s/%s", r.CipherHash.Short(), humanize.Comma(int64(r.CipherLen))),
			string(r.Outcome),
			answer,
			fmt.Sprintf("%.3f", r.StdDev),
		})
	}
	printGrid(w, rows)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatPercent(ratio float64) string {
	return humanize.FtoaWithDigits(ratio*100, 1) + "%"
}

// printGrid writes rows as left-aligned columns separated by two spaces,
// underlining the first row. Widths are display cells, so wide runes in
// file names keep the columns straight.
func printGrid(w io.Writer, rows [][]string) {
	var widths []int
	for _, row := range rows {
		for i, cell := range row {
			if i >= len(widths) {
				widths = append(widths, 0)
			}
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}

	line := func(row []string) {
		var b strings.Builder
		for i, cell := range row {
			if i > 0 {
				b.WriteString("  ")
			}
			if i == len(row)-1 {
				b.WriteString(cell)
			} else {
				b.WriteString(runewidth.FillRight(cell, widths[i]))
			}
		}
		fmt.Fprintln(w, b.String())
	}

	for i, row := range rows {
		line(row)
		if i == 0 {
			sep := make([]string, len(row))
			for j := range row {
				sep[j] = strings.Repeat("-", widths[j])
			}
			line(sep)
		}
	}
}

// PrintJournal lists journal events, oldest first, with their age relative
// to now.
func PrintJournal(w io.Writer, events []logging.Event, now time.Time) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No journal entries")
		return
	}
	rows := [][]string{{"When", "Event", "Run", "Source", "Detail"}}
	for _, e := range events {
		detail := e.Error
		if detail == "" {
			detail = journalDetail(e)
		}
		rows = append(rows, []string{
			humanize.RelTime(e.Timestamp, now, "ago", "from now"),
			string(e.Type),
			shortID(e.RunID),
			Preview(e.Source, 24),
			Preview(detail, 40),
		})
	}
	printGrid(w, rows)
}

func journalDetail(e logging.Event) string {
	switch e.Type {
	case logging.EventRunFinished:
		if idx, ok := e.Details["index"]; ok {
			return fmt.Sprintf("%v candidate %v", e.Details["outcome"], idx)
		}
		return fmt.Sprint(e.Details["outcome"])
	case logging.EventBenchFinished:
		acc, _ := e.Details["accuracy"].(float64)
		return fmt.Sprintf("%v trials, %s", e.Details["trials"], formatPercent(acc))
	case logging.EventStartup:
		return fmt.Sprint(e.Details["version"])
	case logging.EventShutdown:
		return fmt.Sprint(e.Details["reason"])
	default:
		return ""
	}
}

// PrintStats writes a summary of the history database.
func PrintStats(w io.Writer, path string, st *store.Stats, now time.Time) {
	fmt.Fprintf(w, "Database:       %s\n", path)
	schema := fmt.Sprintf("v%d", st.SchemaVersion)
	if st.SchemaVersion < st.LatestVersion {
		schema += fmt.Sprintf(" (v%d available)", st.LatestVersion)
	}
	fmt.Fprintf(w, "Schema:         %s\n", schema)
	fmt.Fprintf(w, "Runs:           %s\n", humanize.Comma(int64(st.Runs)))
	if !st.LastRun.IsZero() {
		fmt.Fprintf(w, "Last Run:       %s\n", humanize.RelTime(st.LastRun, now, "ago", "from now"))
	}
	fmt.Fprintf(w, "Bench Trials:   %s in %s sessions\n", humanize.Comma(int64(st.Trials)), humanize.Comma(int64(st.Benches)))
}
