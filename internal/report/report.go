// Package report renders analysis results, bench tables and history as
// text, JSON or YAML.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"gopkg.in/yaml.v3"

	"plainid/internal/analysis"
)

// Format selects an output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ErrFormat is returned for an unknown output format.
var ErrFormat = errors.New("report: unknown format")

// ParseFormat converts a flag value to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrFormat, s)
	}
}

// Encode writes v as JSON or YAML.
func Encode(w io.Writer, format Format, v any) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("%w: %q cannot encode values", ErrFormat, format)
	}
}

const width = 72

func heading(w io.Writer, ch, title string) {
	fmt.Fprintln(w, strings.Repeat(ch, width))
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, strings.Repeat(ch, width))
}

// PrintResult writes a formatted analysis report to w.
func PrintResult(w io.Writer, res *analysis.Result, candidates []string) {
	if res == nil {
		fmt.Fprintln(w, "No result available")
		return
	}

	fmt.Fprintln(w, strings.Repeat("=", width))
	fmt.Fprintln(w, "                    PLAINTEXT IDENTIFICATION")
	fmt.Fprintln(w, strings.Repeat("=", width))
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Run:            %s\n", res.ID)
	fmt.Fprintf(w, "Outcome:        %s\n", res.Outcome)
	fmt.Fprintf(w, "Stage:          %s\n", res.Stage)
	fmt.Fprintf(w, "Max Noise:      %d\n", res.MaxNoise)
	fmt.Fprintf(w, "Attempts:       %d\n", len(res.Attempts))
	fmt.Fprintf(w, "Elapsed:        %s\n", FormatDuration(res.Elapsed))
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Std Deviation:  %7.3f  %s\n", res.StdDev, FormatMetricBar(res.StdDev, 0, 5, 20))
	fmt.Fprintf(w, "  -> %s\n", interpretStdDev(res.StdDev))
	if len(res.Removed) > 0 {
		fmt.Fprintf(w, "Removed:        %s\n", formatInts(res.Removed))
	}
	fmt.Fprintln(w)

	if len(res.Attempts) > 0 {
		heading(w, "-", "ATTEMPTS")
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%-3s %-9s %-9s %-5s %8s %8s  %-12s %s\n",
			"#", "Stage", "Candidate", "Noise", "Mean", "StdDev", "Status", "Index")
		for i, a := range res.Attempts {
			cand := "-"
			if a.Candidate >= 0 {
				cand = fmt.Sprint(a.Candidate)
			}
			idx := "-"
			if a.Index >= 0 {
				idx = fmt.Sprint(a.Index)
			}
			fmt.Fprintf(w, "%-3d %-9s %-9s %-5d %8.3f %8.3f  %-12s %s\n",
				i+1, a.Stage, cand, a.Noise, a.Mean, a.StdDev, a.Status, idx)
		}
		fmt.Fprintln(w)
	}

	if len(candidates) > 0 {
		heading(w, "-", "CANDIDATES")
		fmt.Fprintln(w)
		answer, ok := res.Answer()
		for i, c := range candidates {
			marker := "   "
			if ok && i == answer {
				marker = ">>>"
			}
			fmt.Fprintf(w, "%s %d. %s\n", marker, i, Preview(c, 60))
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, strings.Repeat("=", width))
	fmt.Fprintf(w, "ASSESSMENT: %s\n", assessment(res))
	fmt.Fprintln(w, strings.Repeat("=", width))
}

func assessment(res *analysis.Result) string {
	answer, ok := res.Answer()
	switch {
	case !ok:
		return "NO CONCLUSION"
	case res.Conclusive():
		return fmt.Sprintf("CANDIDATE %d (%s pass)", answer, res.Stage)
	default:
		return fmt.Sprintf("CANDIDATE %d (best effort, low confidence)", answer)
	}
}

func interpretStdDev(sd float64) string {
	switch {
	case sd >= 2.5:
		return "Strong separation: one trend stands apart"
	case sd >= 2.0:
		return "Moderate separation: accepted after denoising"
	case sd > 0:
		return "Weak separation: trends are close together"
	default:
		return "No separation measured"
	}
}

// Preview shortens s to n display cells, marking the cut with "...".
func Preview(s string, n int) string {
	if n <= 3 {
		return s
	}
	return runewidth.Truncate(s, n, "...")
}

func formatInts(v []int) string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, ", ")
}

// FormatDuration rounds d to a readable precision.
func FormatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "0s"
	case d < time.Millisecond:
		return d.Round(time.Microsecond).String()
	case d < time.Second:
		return d.Round(10 * time.Microsecond).String()
	default:
		return d.Round(time.Millisecond).String()
	}
}

// FormatMetricBar produces an ASCII bar for value within [min, max].
func FormatMetricBar(value, min, max float64, width int) string {
	if width <= 0 {
		return ""
	}
	if max <= min {
		return strings.Repeat("-", width)
	}

	normalized := (value - min) / (max - min)
	if normalized < 0 {
		normalized = 0
	}
	if normalized > 1 {
		normalized = 1
	}

	filled := int(normalized * float64(width))
	if filled > width {
		filled = width
	}

	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]"
}
