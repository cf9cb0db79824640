// Package denoise searches for ciphertext characters that were inserted as
// noise, by removing positions that locally minimise the residual entropy
// against one candidate plaintext.
package denoise

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"plainid/internal/codec"
	"plainid/internal/entropy"
)

// ErrTooShort is returned when the ciphertext cannot lose a character and
// still cover the search window, or the candidate is shorter than it.
var ErrTooShort = errors.New("denoise: text shorter than search window")

// Option configures a Searcher.
type Option func(*Searcher)

// WithLogger sets the logger used for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Searcher removes one noise character per Step. Each hypothesis is a new
// stream; earlier hypotheses returned by Cipher stay valid.
type Searcher struct {
	candidate codec.Stream
	window    int
	logger    *slog.Logger

	cipher  codec.Stream
	origin  []int // origin[i] is the original offset of cipher[i]
	cursor  int
	removed []int
}

// NewSearcher prepares a search of cipher against candidate over the first
// window symbols.
func NewSearcher(cipher, candidate codec.Stream, window int, opts ...Option) (*Searcher, error) {
	if window < 1 {
		return nil, fmt.Errorf("%w: window %d", ErrTooShort, window)
	}
	if len(cipher) <= window || len(candidate) < window {
		return nil, fmt.Errorf("%w: cipher %d, candidate %d, window %d",
			ErrTooShort, len(cipher), len(candidate), window)
	}

	origin := make([]int, len(cipher))
	for i := range origin {
		origin[i] = i
	}

	s := &Searcher{
		candidate: candidate,
		window:    window,
		logger:    slog.New(slog.DiscardHandler),
		cipher:    cipher,
		origin:    origin,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Step runs one greedy pass from the cursor and commits the first local
// minimum. It returns the removed position in original ciphertext offsets,
// or false when the cursor has reached the end of the window or the
// ciphertext can no longer lose a character.
func (s *Searcher) Step() (int, bool) {
	if s.cursor >= s.window || len(s.cipher) <= s.window {
		return 0, false
	}

	best, bestH := -1, math.Inf(1)
	for q := s.cursor; q < s.window; q++ {
		h := s.entropyWithout(q)
		if h < bestH {
			best, bestH = q, h
			continue
		}
		if h > bestH {
			break
		}
	}

	pos := s.origin[best]
	s.logger.Debug("removing noise candidate",
		"position", pos, "entropy", bestH, "cursor", s.cursor)

	s.cipher = s.cipher.RemoveAt(best)
	origin := make([]int, 0, len(s.origin)-1)
	origin = append(origin, s.origin[:best]...)
	s.origin = append(origin, s.origin[best+1:]...)
	s.cursor = best
	s.removed = append(s.removed, pos)

	return pos, true
}

// entropyWithout measures the windowed residual entropy with the character
// at q dropped from the current hypothesis.
func (s *Searcher) entropyWithout(q int) float64 {
	var acc entropy.Accumulator
	for i := 0; i < s.window; i++ {
		c := s.cipher[i]
		if i >= q {
			c = s.cipher[i+1]
		}
		acc.Add(codec.Residual(c, s.candidate[i]))
	}
	h, _ := acc.Entropy()
	return h
}

// Cipher returns the current hypothesis. Callers must not modify it.
func (s *Searcher) Cipher() codec.Stream {
	return s.cipher
}

// Removed returns the original offsets removed so far, in commit order.
func (s *Searcher) Removed() []int {
	out := make([]int, len(s.removed))
	copy(out, s.removed)
	return out
}

// Hypothesis is a cleaned ciphertext and the original offsets removed to
// produce it.
type Hypothesis struct {
	Cipher  codec.Stream
	Removed []int
}

// OptimizeFor removes up to expected noise characters from cipher. Fewer
// are removed when the cursor reaches the end of the window first.
func OptimizeFor(cipher, candidate codec.Stream, window, expected int, opts ...Option) (Hypothesis, error) {
	s, err := NewSearcher(cipher, candidate, window, opts...)
	if err != nil {
		return Hypothesis{}, err
	}
	for i := 0; i < expected; i++ {
		if _, ok := s.Step(); !ok {
			break
		}
	}
	return Hypothesis{Cipher: s.Cipher(), Removed: s.Removed()}, nil
}
