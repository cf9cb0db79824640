// Package analysis decides which of five candidate plaintexts produced a
// noisy repeating-key ciphertext, by comparing the entropy trends of their
// residual streams and, when that is inconclusive, denoising the ciphertext
// one character at a time.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"plainid/internal/codec"
	"plainid/internal/denoise"
	"plainid/internal/entropy"
	"plainid/internal/trend"
)

// CandidateCount is the number of candidate plaintexts per analysis.
const CandidateCount = trend.Count

var (
	// ErrCandidateCount is returned when not exactly CandidateCount candidates are given.
	ErrCandidateCount = errors.New("analysis: wrong number of candidates")

	// ErrSearchSpace is returned for unusable window options.
	ErrSearchSpace = errors.New("analysis: invalid search space")

	// ErrTextTooShort is returned when a text cannot cover the trend window.
	ErrTextTooShort = errors.New("analysis: text too short for search space")
)

// Engine runs one analysis. It owns its inputs and can be run repeatedly;
// separate engines may run in parallel.
type Engine struct {
	cipher     codec.Stream
	candidates []codec.Stream
	opts       Options
	logger     *slog.Logger
}

// New validates the inputs and builds an engine. Every precondition is
// checked here; Run only fails on cancellation.
func New(ciphertext string, candidates []string, opts Options) (*Engine, error) {
	if len(candidates) != CandidateCount {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrCandidateCount, len(candidates), CandidateCount)
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}

	cipher, err := codec.Encode(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("ciphertext: %w", err)
	}

	need := max(opts.WindowEnd(), opts.SearchSpace)
	streams := make([]codec.Stream, len(candidates))
	for i, c := range candidates {
		s, err := codec.Encode(c)
		if err != nil {
			return nil, fmt.Errorf("candidate %d: %w", i, err)
		}
		if len(s) < need {
			return nil, fmt.Errorf("%w: candidate %d has %d symbols, need %d",
				ErrTextTooShort, i, len(s), need)
		}
		streams[i] = s
	}

	rmax := opts.MaxNoise()
	if needCipher := max(opts.WindowEnd(), opts.SearchSpace+1) + rmax; len(cipher) < needCipher {
		return nil, fmt.Errorf("%w: ciphertext has %d symbols, need %d",
			ErrTextTooShort, len(cipher), needCipher)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Engine{
		cipher:     cipher,
		candidates: streams,
		opts:       opts,
		logger:     logger,
	}, nil
}

// Options returns the engine's options.
func (e *Engine) Options() Options {
	return e.opts
}

// Run compares the raw residual trends and, if that is inconclusive,
// escalates the assumed noise count, denoising against each candidate in
// turn until a comparison singles one out. The first conclusive comparison
// wins. Without one, the configured fallback decides.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	res := &Result{
		ID:       uuid.NewString(),
		Index:    -1,
		MaxNoise: e.opts.MaxNoise(),
	}
	logger := e.logger.With("run_id", res.ID)

	finish := func() (*Result, error) {
		res.Elapsed = time.Since(start)
		logger.Info("analysis finished",
			"outcome", res.Outcome, "stage", res.Stage, "index", res.Index,
			"stddev", res.StdDev, "attempts", len(res.Attempts))
		return res, nil
	}

	raw, err := e.compare(ctx, e.cipher, e.opts.StrictThreshold)
	if err != nil {
		return nil, err
	}
	res.Attempts = append(res.Attempts, raw.attempt(StageRaw, -1, 0, nil))
	if raw.detection.Found() {
		res.Outcome, res.Stage = OutcomeConclusive, StageRaw
		res.Index, res.StdDev = raw.detection.Index, raw.comparator.StdDev()
		return finish()
	}

	rmax := e.opts.MaxNoise()
	searchers := make([]*denoise.Searcher, len(e.candidates))
	for j, cand := range e.candidates {
		s, err := denoise.NewSearcher(e.cipher, cand, e.opts.SearchSpace,
			denoise.WithLogger(logger.With("candidate", j)))
		if err != nil {
			return nil, fmt.Errorf("candidate %d: %w", j, err)
		}
		searchers[j] = s
	}

	best := make([]float64, len(e.candidates))
	tried := make([]bool, len(e.candidates))

	for r := 1; r <= rmax; r++ {
		for j, s := range searchers {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if _, ok := s.Step(); !ok {
				logger.Debug("search exhausted", "candidate", j, "noise", r)
				continue
			}

			removed := s.Removed()
			logger.Debug("trying denoised hypothesis", "candidate", j, "noise", r, "removed", removed)

			pass, err := e.compare(ctx, s.Cipher(), e.opts.RetryThreshold)
			if err != nil {
				return nil, err
			}
			res.Attempts = append(res.Attempts, pass.attempt(StageDenoised, j, r, removed))

			sd := pass.comparator.StdDev()
			if !tried[j] || sd > best[j] {
				best[j] = sd
			}
			tried[j] = true

			if pass.detection.Found() {
				res.Outcome, res.Stage = OutcomeConclusive, StageDenoised
				res.Index, res.StdDev = pass.detection.Index, sd
				res.Removed = removed
				return finish()
			}
		}
	}

	res.Outcome, res.Stage = OutcomeNoConclusion, StageNone
	if e.opts.Fallback == FallbackNone {
		return finish()
	}

	// ties go to the lowest index
	for j := range best {
		if !tried[j] {
			continue
		}
		if res.Index < 0 || best[j] > best[res.Index] {
			res.Index = j
		}
	}
	if res.Index >= 0 {
		res.Outcome, res.Stage = OutcomeBestEffort, StageFallback
		res.StdDev = best[res.Index]
	}
	return finish()
}

type comparison struct {
	comparator *trend.Comparator
	detection  trend.Detection
}

func (c comparison) attempt(stage Stage, candidate, noise int, removed []int) Attempt {
	return Attempt{
		Stage:     stage,
		Candidate: candidate,
		Noise:     noise,
		Removed:   removed,
		Mean:      c.comparator.Mean(),
		StdDev:    c.comparator.StdDev(),
		Status:    c.detection.Status,
		Index:     c.detection.Index,
	}
}

// compare builds the Trend Set of cipher against every candidate and runs
// the anomaly vote.
func (e *Engine) compare(ctx context.Context, cipher codec.Stream, threshold float64) (comparison, error) {
	trends, err := e.trends(ctx, cipher)
	if err != nil {
		return comparison{}, err
	}

	c, err := trend.NewComparator(trends,
		trend.WithThreshold(threshold),
		trend.WithOutlierFactor(e.opts.OutlierFactor),
		trend.WithVotePolicy(e.opts.VotePolicy),
		trend.WithLogger(e.logger),
	)
	if err != nil {
		return comparison{}, err
	}
	return comparison{comparator: c, detection: c.DetectAnomaly()}, nil
}

// trends computes one entropy trend per candidate. Each goroutine writes
// only its own slot.
func (e *Engine) trends(ctx context.Context, cipher codec.Stream) ([][]float64, error) {
	out := make([][]float64, len(e.candidates))
	initial, end := e.opts.Initial(), e.opts.WindowEnd()

	one := func(j int) error {
		residual := codec.ResidualStream(cipher, e.candidates[j])
		t, err := entropy.Trend(residual, 0, end, initial)
		if err != nil {
			return fmt.Errorf("candidate %d: %w", j, err)
		}
		out[j] = t
		return nil
	}

	if !e.opts.Parallel {
		for j := range e.candidates {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := one(j); err != nil {
				return nil, err
			}
		}
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for j := range e.candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return one(j)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
