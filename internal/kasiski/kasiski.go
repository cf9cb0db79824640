// Package kasiski estimates the key length of a repeating-key ciphertext
// from the spacing of repeated substrings.
package kasiski

import (
	"math"
	"sort"
	"strings"

	"plainid/internal/codec"
)

// Options bounds the substrings examined and the factors reported.
type Options struct {
	MinSubstring int
	MaxSubstring int
	MinFactor    int
	MaxFactor    int
	Limit        int
}

// DefaultOptions returns substring and factor bounds of [3, 24] and a limit
// of three factors.
func DefaultOptions() Options {
	return Options{
		MinSubstring: 3,
		MaxSubstring: 24,
		MinFactor:    3,
		MaxFactor:    24,
		Limit:        3,
	}
}

// Factor is a candidate key length.
type Factor struct {
	Length int     `json:"length" yaml:"length"`
	Count  int     `json:"count" yaml:"count"` // distinct distances divisible by Length
	Score  float64 `json:"score" yaml:"score"`
}

// Occurrences returns the non-overlapping offsets of sub in s.
func Occurrences(s, sub string) []int {
	if sub == "" {
		return nil
	}
	var out []int
	from := 0
	for {
		i := strings.Index(s[from:], sub)
		if i < 0 {
			return out
		}
		out = append(out, from+i)
		from += i + len(sub)
	}
}

// Distances collects the distinct gaps between consecutive occurrences of
// every repeated substring, in ascending order.
func Distances(ciphertext string, opts Options) []int {
	seen := make(map[string]bool)
	gaps := make(map[int]bool)

	for t := opts.MinSubstring; t <= opts.MaxSubstring; t++ {
		for i := 0; i+t <= len(ciphertext); i++ {
			sub := ciphertext[i : i+t]
			if seen[sub] {
				continue
			}
			seen[sub] = true

			occ := Occurrences(ciphertext, sub)
			for k := 1; k < len(occ); k++ {
				gaps[occ[k]-occ[k-1]] = true
			}
		}
	}

	out := make([]int, 0, len(gaps))
	for d := range gaps {
		out = append(out, d)
	}
	sort.Ints(out)
	return out
}

// Divisors returns the divisors of n in [lo, hi], including n itself.
func Divisors(n, lo, hi int) []int {
	var out []int
	for f := max(lo, 1); f <= min(n, hi); f++ {
		if n%f == 0 {
			out = append(out, f)
		}
	}
	return out
}

// Estimate scores each plausible key length by count*(1+ln(f-2)) and
// returns the best opts.Limit factors, highest score first.
func Estimate(ciphertext string, opts Options) ([]Factor, error) {
	if err := codec.Validate(ciphertext); err != nil {
		return nil, err
	}

	counts := make(map[int]int)
	for _, d := range Distances(ciphertext, opts) {
		for _, f := range Divisors(d, opts.MinFactor, opts.MaxFactor) {
			counts[f]++
		}
	}

	factors := make([]Factor, 0, len(counts))
	for f, c := range counts {
		weight := 1.0
		if f > 2 {
			weight += math.Log(float64(f - 2))
		}
		factors = append(factors, Factor{Length: f, Count: c, Score: float64(c) * weight})
	}

	sort.Slice(factors, func(i, j int) bool {
		if factors[i].Score != factors[j].Score {
			return factors[i].Score > factors[j].Score
		}
		return factors[i].Length < factors[j].Length
	})

	if opts.Limit > 0 && len(factors) > opts.Limit {
		factors = factors[:opts.Limit]
	}
	return factors, nil
}
