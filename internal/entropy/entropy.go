// Package entropy estimates Shannon entropy (natural log) of symbol streams
// and tracks how it evolves as an observation window grows.
package entropy

import (
	"errors"
	"fmt"
	"math"

	"plainid/internal/codec"
)

var (
	// ErrEmptyCounter is returned when entropy is requested with no observations.
	ErrEmptyCounter = errors.New("entropy: counter has no observations")

	// ErrWindow is returned when trend window parameters are inconsistent.
	ErrWindow = errors.New("entropy: invalid window")
)

// MaxEntropy is the entropy of the uniform distribution over the alphabet, ln(27).
var MaxEntropy = math.Log(codec.AlphabetSize)

// Counter maps each observed symbol to its count. Symbols never observed
// have no key.
type Counter map[codec.Symbol]int

// NewCounter counts the symbols of s.
func NewCounter(s codec.Stream) Counter {
	c := make(Counter)
	for _, sym := range s {
		c[sym]++
	}
	return c
}

// Total returns the number of observations.
func (c Counter) Total() int {
	n := 0
	for _, cnt := range c {
		n += cnt
	}
	return n
}

// Compute returns H = -sum p*ln(p) over the counter's distribution.
func Compute(c Counter) (float64, error) {
	total := c.Total()
	if total == 0 {
		return 0, ErrEmptyCounter
	}

	h := 0.0
	n := float64(total)
	for _, cnt := range c {
		if cnt > 0 {
			p := float64(cnt) / n
			h -= p * math.Log(p)
		}
	}
	return h, nil
}

// Accumulator folds symbols in one at a time and keeps the entropy current
// in O(1) per symbol, using H = ln(N) - (sum c*ln c)/N.
type Accumulator struct {
	counts  [codec.AlphabetSize]int
	total   int
	sumCLnC float64
}

// Add folds one symbol into the distribution.
func (a *Accumulator) Add(s codec.Symbol) {
	c := a.counts[s]
	if c > 0 {
		a.sumCLnC -= clnc(c)
	}
	a.counts[s] = c + 1
	a.sumCLnC += clnc(c + 1)
	a.total++
}

// AddStream folds every symbol of s.
func (a *Accumulator) AddStream(s codec.Stream) {
	for _, sym := range s {
		a.Add(sym)
	}
}

// Total returns the number of folded symbols.
func (a *Accumulator) Total() int {
	return a.total
}

// Count returns how often s was folded in.
func (a *Accumulator) Count(s codec.Symbol) int {
	return a.counts[s]
}

// Entropy returns the current entropy. It fails when nothing has been added.
func (a *Accumulator) Entropy() (float64, error) {
	if a.total == 0 {
		return 0, ErrEmptyCounter
	}
	n := float64(a.total)
	h := math.Log(n) - a.sumCLnC/n
	if h < 0 {
		// rounding when a single symbol dominates
		h = 0
	}
	return h, nil
}

// Counter exports the observed symbols as a Counter.
func (a *Accumulator) Counter() Counter {
	c := make(Counter)
	for sym, cnt := range a.counts {
		if cnt > 0 {
			c[codec.Symbol(sym)] = cnt
		}
	}
	return c
}

func clnc(c int) float64 {
	f := float64(c)
	return f * math.Log(f)
}

// Window returns the entropy of s[start:end].
func Window(s codec.Stream, start, end int) (float64, error) {
	if start < 0 || end > len(s) || start >= end {
		return 0, fmt.Errorf("%w: [%d, %d) over %d symbols", ErrWindow, start, end, len(s))
	}
	var acc Accumulator
	acc.AddStream(s[start:end])
	return acc.Entropy()
}

// Trend returns the entropy of s[windowStart : windowStart+initial] followed
// by the entropy after each further symbol is folded in, stopping one symbol
// short of windowEnd. The result has windowEnd-windowStart-initial elements.
func Trend(s codec.Stream, windowStart, windowEnd, initial int) ([]float64, error) {
	if windowStart < 0 || initial < 1 || windowStart+initial > windowEnd || windowEnd > len(s) {
		return nil, fmt.Errorf("%w: start=%d end=%d initial=%d over %d symbols",
			ErrWindow, windowStart, windowEnd, initial, len(s))
	}

	size := windowEnd - windowStart - initial
	if size == 0 {
		return []float64{}, nil
	}

	trend := make([]float64, 0, size)

	var acc Accumulator
	acc.AddStream(s[windowStart : windowStart+initial])
	h, err := acc.Entropy()
	if err != nil {
		return nil, err
	}
	trend = append(trend, h)

	for i := windowStart + initial; i < windowEnd-1; i++ {
		acc.Add(s[i])
		h, err := acc.Entropy()
		if err != nil {
			return nil, err
		}
		trend = append(trend, h)
	}

	return trend, nil
}
