// Package store provides SQLite-based history of analyses and bench trials.
package store

import (
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"

	"plainid/internal/analysis"
)

// Fingerprint identifies a ciphertext without storing it.
type Fingerprint [32]byte

// FingerprintOf returns the BLAKE2b-256 digest of text.
func FingerprintOf(text string) Fingerprint {
	return Fingerprint(blake2b.Sum256([]byte(text)))
}

func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// MarshalText encodes the fingerprint as hex.
func (f Fingerprint) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText decodes 64 hex digits.
func (f *Fingerprint) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("decode fingerprint: %w", err)
	}
	if len(b) != len(f) {
		return fmt.Errorf("fingerprint has %d bytes, want %d", len(b), len(f))
	}
	copy(f[:], b)
	return nil
}

// Short returns the first 12 hex digits.
func (f Fingerprint) Short() string {
	return f.String()[:12]
}

// Run is one recorded analysis.
type Run struct {
	ID         string           `json:"id" yaml:"id"`
	CreatedAt  time.Time        `json:"created_at" yaml:"created_at"`
	Source     string           `json:"source" yaml:"source"`
	CipherHash Fingerprint      `json:"cipher_hash" yaml:"cipher_hash"`
	CipherLen  int              `json:"cipher_len" yaml:"cipher_len"`
	Outcome    analysis.Outcome `json:"outcome" yaml:"outcome"`
	Stage      analysis.Stage   `json:"stage" yaml:"stage"`
	Index      int              `json:"index" yaml:"index"`
	StdDev     float64          `json:"stddev" yaml:"stddev"`
	Attempts   int              `json:"attempts" yaml:"attempts"`
	Removed    []int            `json:"removed" yaml:"removed"`
	Elapsed    time.Duration    `json:"elapsed" yaml:"elapsed"`
	Expected   *int             `json:"expected,omitempty" yaml:"expected,omitempty"`
}

// NewRun builds the record for res computed over ciphertext.
func NewRun(source, ciphertext string, res *analysis.Result) *Run {
	return &Run{
		ID:         res.ID,
		CreatedAt:  time.Now().UTC(),
		Source:     source,
		CipherHash: FingerprintOf(ciphertext),
		CipherLen:  len(ciphertext),
		Outcome:    res.Outcome,
		Stage:      res.Stage,
		Index:      res.Index,
		StdDev:     res.StdDev,
		Attempts:   len(res.Attempts),
		Removed:    append([]int(nil), res.Removed...),
		Elapsed:    res.Elapsed,
	}
}

// Trial is one generated challenge of a bench session.
type Trial struct {
	ID        int64            `json:"id" yaml:"id"`
	BenchID   string           `json:"bench_id" yaml:"bench_id"`
	KeyLength int              `json:"key_length" yaml:"key_length"`
	Expected  int              `json:"expected" yaml:"expected"`
	Got       int              `json:"got" yaml:"got"` // -1 when the engine gave no answer
	Correct   bool             `json:"correct" yaml:"correct"`
	Outcome   analysis.Outcome `json:"outcome" yaml:"outcome"`
	Noise     int              `json:"noise" yaml:"noise"`
	CreatedAt time.Time        `json:"created_at" yaml:"created_at"`
}

// Accuracy aggregates trials for one key length.
type Accuracy struct {
	KeyLength int `json:"key_length" yaml:"key_length"`
	Trials    int `json:"trials" yaml:"trials"`
	Correct   int `json:"correct" yaml:"correct"`
}

// Ratio returns Correct/Trials, or 0 with no trials.
func (a Accuracy) Ratio() float64 {
	if a.Trials == 0 {
		return 0
	}
	return float64(a.Correct) / float64(a.Trials)
}
