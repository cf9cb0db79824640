package analysis

import (
	"time"

	"plainid/internal/trend"
)

// Outcome classifies a Result.
type Outcome string

const (
	OutcomeConclusive   Outcome = "conclusive"    // a comparison singled out one candidate
	OutcomeBestEffort   Outcome = "best_effort"   // fallback to the largest stddev
	OutcomeNoConclusion Outcome = "no_conclusion" // nothing to report
)

// Stage names the pass that produced an answer or attempt.
type Stage string

const (
	StageRaw      Stage = "raw"
	StageDenoised Stage = "denoised"
	StageFallback Stage = "fallback"
	StageNone     Stage = "none"
)

// Attempt records one trend comparison made during a run.
type Attempt struct {
	Stage     Stage        `json:"stage" yaml:"stage"`
	Candidate int          `json:"candidate" yaml:"candidate"` // searcher's candidate, -1 for the raw pass
	Noise     int          `json:"noise" yaml:"noise"`         // assumed noise count
	Removed   []int        `json:"removed,omitempty" yaml:"removed,omitempty"`
	Mean      float64      `json:"mean" yaml:"mean"`
	StdDev    float64      `json:"stddev" yaml:"stddev"`
	Status    trend.Status `json:"status" yaml:"status"`
	Index     int          `json:"index" yaml:"index"`
}

// Result is the outcome of Engine.Run.
type Result struct {
	ID       string        `json:"id" yaml:"id"`
	Outcome  Outcome       `json:"outcome" yaml:"outcome"`
	Stage    Stage         `json:"stage" yaml:"stage"`
	Index    int           `json:"index" yaml:"index"`
	StdDev   float64       `json:"stddev" yaml:"stddev"`
	MaxNoise int           `json:"max_noise" yaml:"max_noise"`
	Removed  []int         `json:"removed,omitempty" yaml:"removed,omitempty"`
	Attempts []Attempt     `json:"attempts" yaml:"attempts"`
	Elapsed  time.Duration `json:"elapsed" yaml:"elapsed"`
}

// Answer returns the chosen candidate index, or false when the run reached
// no conclusion.
func (r *Result) Answer() (int, bool) {
	if r == nil || r.Outcome == OutcomeNoConclusion || r.Index < 0 {
		return -1, false
	}
	return r.Index, true
}

// Conclusive reports whether the answer came from a comparison rather than
// the fallback.
func (r *Result) Conclusive() bool {
	return r != nil && r.Outcome == OutcomeConclusive
}
