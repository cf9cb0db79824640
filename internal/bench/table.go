package bench

import (
	"time"

	"plainid/internal/analysis"
	"plainid/internal/store"
)

// Table holds the trials of a session in job order: key length, then
// expected candidate, then trial.
type Table struct {
	ID         string        `json:"id" yaml:"id"`
	KeyLengths []int         `json:"key_lengths" yaml:"key_lengths"`
	Trials     int           `json:"trials" yaml:"trials"`
	NoiseProb  float64       `json:"noise_prob" yaml:"noise_prob"`
	Seed       uint64        `json:"seed" yaml:"seed"`
	Results    []store.Trial `json:"results" yaml:"results"`
	Elapsed    time.Duration `json:"elapsed" yaml:"elapsed"`
}

// Row summarises one key length.
type Row struct {
	KeyLength int `json:"key_length" yaml:"key_length"`

	// Correct[e] counts the trials of candidate e that were answered
	// correctly, out of Trials.
	Correct [analysis.CandidateCount]int `json:"correct" yaml:"correct"`
	Trials  int                          `json:"trials" yaml:"trials"`
}

// Total returns the number of trials in the row.
func (r Row) Total() int {
	return r.Trials * analysis.CandidateCount
}

// Hits returns the number of correct trials in the row.
func (r Row) Hits() int {
	n := 0
	for _, c := range r.Correct {
		n += c
	}
	return n
}

// Accuracy returns Hits/Total.
func (r Row) Accuracy() float64 {
	if r.Total() == 0 {
		return 0
	}
	return float64(r.Hits()) / float64(r.Total())
}

// Rows groups the results by key length, in ascending order.
func (t *Table) Rows() []Row {
	rows := make([]Row, len(t.KeyLengths))
	index := make(map[int]int, len(t.KeyLengths))
	for i, l := range t.KeyLengths {
		rows[i] = Row{KeyLength: l, Trials: t.Trials}
		index[l] = i
	}
	for _, r := range t.Results {
		i, ok := index[r.KeyLength]
		if !ok || r.Expected < 0 || r.Expected >= analysis.CandidateCount {
			continue
		}
		if r.Correct {
			rows[i].Correct[r.Expected]++
		}
	}
	return rows
}

// Accuracy returns the fraction of correct trials over the whole session.
func (t *Table) Accuracy() float64 {
	if len(t.Results) == 0 {
		return 0
	}
	n := 0
	for _, r := range t.Results {
		if r.Correct {
			n++
		}
	}
	return float64(n) / float64(len(t.Results))
}

// Outcomes counts trials per engine outcome.
func (t *Table) Outcomes() map[analysis.Outcome]int {
	out := make(map[analysis.Outcome]int)
	for _, r := range t.Results {
		out[r.Outcome]++
	}
	return out
}
