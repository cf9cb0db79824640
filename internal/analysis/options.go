package analysis

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"plainid/internal/trend"
)

// Fallback selects what Run returns when no attempt is conclusive.
type Fallback string

const (
	// FallbackBestEffort answers with the candidate whose denoised
	// hypotheses reached the largest standard deviation.
	FallbackBestEffort Fallback = "best_effort"

	// FallbackNone reports no conclusion.
	FallbackNone Fallback = "none"
)

// ErrFallback is returned for an unknown fallback name.
var ErrFallback = errors.New("analysis: unknown fallback policy")

// ParseFallback converts a configuration value to a Fallback.
func ParseFallback(s string) (Fallback, error) {
	switch Fallback(s) {
	case FallbackBestEffort, "":
		return FallbackBestEffort, nil
	case FallbackNone:
		return FallbackNone, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrFallback, s)
	}
}

// Options tunes the engine. The zero value is not usable; start from
// DefaultOptions.
type Options struct {
	// SearchSpace is the number of leading symbols analysed.
	SearchSpace int

	// InitialWindow is the trend's initial window. Zero means SearchSpace.
	InitialWindow int

	// WindowFactor sets the trend window end to InitialWindow * WindowFactor.
	WindowFactor int

	StrictThreshold float64 // stddev threshold for the raw pass
	RetryThreshold  float64 // stddev threshold for denoised passes
	OutlierFactor   float64

	// NoiseRatio bounds the escalation: r_max = ceil(SearchSpace * NoiseRatio).
	NoiseRatio float64

	VotePolicy trend.VotePolicy
	Fallback   Fallback

	// Parallel computes the five trends of a pass concurrently.
	Parallel bool

	Logger *slog.Logger
}

// DefaultOptions returns the tuned defaults.
func DefaultOptions() Options {
	return Options{
		SearchSpace:     30,
		WindowFactor:    3,
		StrictThreshold: 2.5,
		RetryThreshold:  2.0,
		OutlierFactor:   trend.DefaultOutlierFactor,
		NoiseRatio:      0.075,
		VotePolicy:      trend.VoteLowerEntropy,
		Fallback:        FallbackBestEffort,
		Parallel:        true,
	}
}

// Initial returns the effective initial trend window.
func (o Options) Initial() int {
	if o.InitialWindow > 0 {
		return o.InitialWindow
	}
	return o.SearchSpace
}

// WindowEnd returns the exclusive end of the trend window.
func (o Options) WindowEnd() int {
	return o.Initial() * o.WindowFactor
}

// MaxNoise returns r_max, the highest assumed noise count tried.
func (o Options) MaxNoise() int {
	if o.NoiseRatio <= 0 {
		return 0
	}
	return int(math.Ceil(float64(o.SearchSpace) * o.NoiseRatio))
}

func (o Options) validate() error {
	if o.SearchSpace < 1 {
		return fmt.Errorf("%w: search space %d", ErrSearchSpace, o.SearchSpace)
	}
	if o.InitialWindow < 0 {
		return fmt.Errorf("%w: initial window %d", ErrSearchSpace, o.InitialWindow)
	}
	if o.WindowFactor < 1 {
		return fmt.Errorf("%w: window factor %d", ErrSearchSpace, o.WindowFactor)
	}
	if o.NoiseRatio < 0 || o.NoiseRatio >= 1 {
		return fmt.Errorf("%w: noise ratio %v", ErrSearchSpace, o.NoiseRatio)
	}
	if _, err := trend.ParseVotePolicy(string(o.VotePolicy)); err != nil {
		return err
	}
	if _, err := ParseFallback(string(o.Fallback)); err != nil {
		return err
	}
	return nil
}
