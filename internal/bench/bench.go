// Package bench measures engine accuracy on synthetic challenges.
//
// For every key length, every candidate and every trial a random key
// encrypts the candidate, noise is scattered through the ciphertext, and the
// engine is asked which candidate produced it.
package bench

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"plainid/internal/analysis"
	"plainid/internal/store"
	"plainid/internal/synth"
)

var (
	// ErrNoKeyLengths is returned when Config.KeyLengths is empty.
	ErrNoKeyLengths = errors.New("bench: no key lengths")

	// ErrTrials is returned for a non-positive trial count.
	ErrTrials = errors.New("bench: trials must be positive")
)

// Recorder persists trials. *store.Store satisfies it.
type Recorder interface {
	InsertTrial(t *store.Trial) (int64, error)
}

// Config describes a bench session.
type Config struct {
	Candidates []string
	KeyLengths []int
	Trials     int // per key length and candidate
	NoiseProb  float64
	Seed       uint64
	Workers    int

	Engine analysis.Options

	// Recorder, when set, receives every finished trial.
	Recorder Recorder

	// OnTrial is called after each trial from the worker that ran it.
	OnTrial func(store.Trial)

	Logger *slog.Logger
}

type job struct {
	keyLength int
	expected  int
	trial     int
}

// seed derives an independent stream per job so results do not depend on
// scheduling.
func (j job) seed(base uint64) uint64 {
	return base ^ uint64(j.keyLength)<<40 ^ uint64(j.expected)<<32 ^ uint64(j.trial)
}

// Run executes the session and returns its table. Trials run concurrently
// on at most Workers goroutines; the first engine or recorder error cancels
// the rest.
func Run(ctx context.Context, cfg Config) (*Table, error) {
	if len(cfg.KeyLengths) == 0 {
		return nil, ErrNoKeyLengths
	}
	if cfg.Trials < 1 {
		return nil, fmt.Errorf("%w: %d", ErrTrials, cfg.Trials)
	}
	if len(cfg.Candidates) != analysis.CandidateCount {
		return nil, fmt.Errorf("%w: got %d, want %d",
			analysis.ErrCandidateCount, len(cfg.Candidates), analysis.CandidateCount)
	}
	for _, l := range cfg.KeyLengths {
		if l < 1 {
			return nil, fmt.Errorf("bench: invalid key length %d", l)
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}

	keyLengths := slices.Clone(cfg.KeyLengths)
	slices.Sort(keyLengths)
	keyLengths = slices.Compact(keyLengths)

	var jobs []job
	for _, l := range keyLengths {
		for e := range cfg.Candidates {
			for t := 0; t < cfg.Trials; t++ {
				jobs = append(jobs, job{keyLength: l, expected: e, trial: t})
			}
		}
	}

	table := &Table{
		ID:         uuid.NewString(),
		KeyLengths: keyLengths,
		Trials:     cfg.Trials,
		NoiseProb:  cfg.NoiseProb,
		Seed:       cfg.Seed,
		Results:    make([]store.Trial, len(jobs)),
	}
	logger = logger.With("bench_id", table.ID)
	logger.Info("bench started", "trials", len(jobs), "workers", workers)

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, j := range jobs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			trial, err := runTrial(gctx, cfg, j)
			if err != nil {
				return fmt.Errorf("key length %d, candidate %d, trial %d: %w",
					j.keyLength, j.expected, j.trial, err)
			}
			trial.BenchID = table.ID

			if cfg.Recorder != nil {
				id, err := cfg.Recorder.InsertTrial(&trial)
				if err != nil {
					return err
				}
				trial.ID = id
			}
			table.Results[i] = trial

			logger.Debug("trial finished",
				"key_length", j.keyLength, "expected", j.expected,
				"got", trial.Got, "correct", trial.Correct)
			if cfg.OnTrial != nil {
				cfg.OnTrial(trial)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	table.Elapsed = time.Since(start)
	logger.Info("bench finished", "accuracy", table.Accuracy(), "elapsed", table.Elapsed)
	return table, nil
}

func runTrial(ctx context.Context, cfg Config, j job) (store.Trial, error) {
	rng := synth.NewRand(j.seed(cfg.Seed))
	gen := synth.Generator{
		Key:       synth.RandomKey(rng, j.keyLength),
		NoiseProb: cfg.NoiseProb,
		Rand:      rng,
	}
	sample, err := gen.Generate(cfg.Candidates[j.expected])
	if err != nil {
		return store.Trial{}, err
	}

	engine, err := analysis.New(sample.Ciphertext, cfg.Candidates, cfg.Engine)
	if err != nil {
		return store.Trial{}, err
	}
	res, err := engine.Run(ctx)
	if err != nil {
		return store.Trial{}, err
	}

	got, ok := res.Answer()
	return store.Trial{
		KeyLength: j.keyLength,
		Expected:  j.expected,
		Got:       got,
		Correct:   ok && got == j.expected,
		Outcome:   res.Outcome,
		Noise:     len(sample.Noise),
		CreatedAt: time.Now().UTC(),
	}, nil
}
