package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"plainid/internal/analysis"
	"plainid/internal/challenge"
	"plainid/internal/config"
	"plainid/internal/logging"
	"plainid/internal/metrics"
	"plainid/internal/store"
)

// app holds what every analysing command needs.
type app struct {
	cfg     *config.Config
	logger  *logging.Logger
	store   *store.Store // nil when storage is disabled
	journal *logging.Journal
	metrics *metrics.Metrics
}

func journalPath(cfg *config.Config) string {
	return filepath.Join(filepath.Dir(cfg.Logging.FilePath), "journal.jsonl")
}

func openApp(cfg *config.Config, component string) (*app, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	logCfg, err := logging.FromSettings(cfg.Logging)
	if err != nil {
		return nil, err
	}
	logCfg.Component = component
	logger, err := logging.New(logCfg)
	if err != nil {
		return nil, err
	}
	logging.SetDefault(logger)

	rt := &app{cfg: cfg, logger: logger, metrics: metrics.New(nil)}

	rt.journal, err = logging.NewJournal(journalPath(cfg))
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("open journal: %w", err)
	}

	if cfg.Storage.Enabled {
		busy := time.Duration(cfg.Storage.BusyTimeoutMs) * time.Millisecond
		rt.store, err = store.OpenWithTimeout(cfg.Storage.Path, busy)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("open store: %w", err)
		}
	}
	return rt, nil
}

func (rt *app) Close() error {
	var errs []error
	if rt.store != nil {
		errs = append(errs, rt.store.Close())
	}
	if rt.journal != nil {
		errs = append(errs, rt.journal.Close())
	}
	errs = append(errs, rt.logger.Close())
	return errors.Join(errs...)
}

func (rt *app) engineOptions() (analysis.Options, error) {
	opts, err := rt.cfg.Analysis.EngineOptions()
	if err != nil {
		return opts, err
	}
	opts.Logger = rt.logger.WithComponent("analysis").Logger
	return opts, nil
}

// analyze runs one challenge and records the result in the store and
// journal. Recording failures are logged, not returned.
func (rt *app) analyze(ctx context.Context, source string, ch *challenge.Challenge) (*analysis.Result, error) {
	base, err := rt.engineOptions()
	if err != nil {
		return nil, err
	}

	engine, err := ch.Engine(base)
	if err != nil {
		rt.runFailed(ctx, source, err)
		return nil, err
	}
	res, err := engine.Run(ctx)
	if err != nil {
		rt.runFailed(ctx, source, err)
		return nil, err
	}

	rt.metrics.RecordRun(res)
	if correct, known := ch.Check(res); known {
		rt.metrics.RecordCheck(correct)
	}

	ctx = logging.ContextWithRunID(ctx, res.ID)
	if err := rt.journal.LogRun(ctx, source, res); err != nil {
		rt.logger.Warn("journal write failed", "error", err)
	}

	if rt.store != nil {
		run := store.NewRun(source, ch.Ciphertext, res)
		run.Expected = ch.Expected
		if err := rt.store.InsertRun(run); err != nil {
			rt.logger.Warn("failed to record run", "run_id", res.ID, "error", err)
		}
	}
	return res, nil
}

func (rt *app) runFailed(ctx context.Context, source string, err error) {
	rt.metrics.RecordRunError()
	rt.journal.LogRunError(ctx, source, err)
}
