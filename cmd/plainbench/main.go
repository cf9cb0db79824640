// Command plainbench measures identification accuracy on synthetic
// challenges.
//
// Every candidate is encrypted under a random key of each requested length,
// noise is scattered through the ciphertext, and the engine is asked which
// candidate it came from.
//
// Usage:
//
//	plainbench [flags]
//
// Examples:
//
//	# Default sweep over odd key lengths 1..23
//	plainbench
//
//	# Ten noisy trials per cell, recorded in the history database
//	plainbench -keys 3,5,7 -trials 10 -noise 0.1 -store
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/term"

	"plainid/internal/bench"
	"plainid/internal/config"
	"plainid/internal/dictionary"
	"plainid/internal/logging"
	"plainid/internal/metrics"
	"plainid/internal/report"
	"plainid/internal/store"
)

var (
	// Version information (set at build time)
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	_ = godotenv.Load(".env")

	configPath := flag.String("config", "", "path to config file")
	keysStr := flag.String("keys", "", "comma separated key lengths (default: bench.key_lengths)")
	trials := flag.Int("trials", 0, "trials per key length and candidate (default: bench.trials)")
	noise := flag.Float64("noise", -1, "noise probability per symbol (default: bench.noise_prob)")
	seed := flag.Uint64("seed", 0, "random seed (default: bench.seed)")
	workers := flag.Int("workers", 0, "concurrent trials (default: bench.workers)")
	dictPath := flag.String("dict", "", "candidate dictionary (default: builtin)")
	formatStr := flag.String("format", "text", "output format: text, json, yaml")
	record := flag.Bool("store", false, "record trials in the history database")
	metricsOut := flag.String("metrics-out", "", "write Prometheus textfile metrics to this path")
	verbose := flag.Bool("verbose", false, "debug logging")
	quiet := flag.Bool("quiet", false, "only print the overall accuracy")
	versionFlag := flag.Bool("version", false, "print version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "plainbench - Measure plaintext identification accuracy\n\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [flags]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nOutput Formats:\n")
		fmt.Fprintf(os.Stderr, "  text      - Accuracy table (default)\n")
		fmt.Fprintf(os.Stderr, "  json      - Every trial as JSON\n")
		fmt.Fprintf(os.Stderr, "  yaml      - Every trial as YAML\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -keys 1,3,5\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -trials 10 -noise 0.1 -store\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -metrics-out /var/lib/node_exporter/plainbench.prom\n", os.Args[0])
	}

	flag.Parse()

	if *versionFlag {
		fmt.Printf("plainbench %s (commit: %s, built: %s)\n", version, commit, buildTime)
		os.Exit(0)
	}

	format, err := report.ParseFormat(*formatStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	path := *configPath
	if path == "" {
		if path = config.FindConfigFile(); path == "" {
			path = config.ConfigPath()
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if *keysStr != "" {
		keys, err := parseKeyLengths(*keysStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(2)
		}
		cfg.Bench.KeyLengths = keys
	}
	if *trials > 0 {
		cfg.Bench.Trials = *trials
	}
	if *noise >= 0 {
		cfg.Bench.NoiseProb = *noise
	}
	if *seed != 0 {
		cfg.Bench.Seed = *seed
	}
	if *workers > 0 {
		cfg.Bench.Workers = *workers
	}
	if *verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	opts := runOptions{
		dictPath:   *dictPath,
		record:     *record,
		metricsOut: *metricsOut,
		format:     format,
		quiet:      *quiet,
	}
	if err := run(cfg, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type runOptions struct {
	dictPath   string
	record     bool
	metricsOut string
	format     report.Format
	quiet      bool
}

func run(cfg *config.Config, opts runOptions) error {
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	logCfg, err := logging.FromSettings(cfg.Logging)
	if err != nil {
		return err
	}
	logCfg.Component = "bench"
	logger, err := logging.New(logCfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	candidates := dictionary.Builtin()
	if opts.dictPath != "" {
		if candidates, err = dictionary.Load(opts.dictPath); err != nil {
			return err
		}
	}

	engine, err := cfg.Analysis.EngineOptions()
	if err != nil {
		return err
	}
	engine.Logger = logger.WithComponent("analysis").Logger

	benchCfg := bench.Config{
		Candidates: candidates,
		KeyLengths: cfg.Bench.KeyLengths,
		Trials:     cfg.Bench.Trials,
		NoiseProb:  cfg.Bench.NoiseProb,
		Seed:       cfg.Bench.Seed,
		Workers:    cfg.Bench.Workers,
		Engine:     engine,
		Logger:     logger.Logger,
	}

	m := metrics.New(nil)
	var progress func()
	if !opts.quiet && term.IsTerminal(int(os.Stderr.Fd())) {
		distinct := make(map[int]bool)
		for _, l := range cfg.Bench.KeyLengths {
			distinct[l] = true
		}
		total := len(distinct) * len(candidates) * cfg.Bench.Trials
		var done atomic.Int64
		progress = func() {
			fmt.Fprintf(os.Stderr, "\r%d/%d trials", done.Add(1), total)
		}
		defer fmt.Fprintln(os.Stderr)
	}
	benchCfg.OnTrial = func(t store.Trial) {
		m.RecordTrial(t)
		if progress != nil {
			progress()
		}
	}

	if opts.record {
		s, err := store.Open(cfg.Storage.Path)
		if err != nil {
			return err
		}
		defer s.Close()
		benchCfg.Recorder = s
	}

	journal, err := logging.NewJournal(filepath.Join(filepath.Dir(cfg.Logging.FilePath), "journal.jsonl"))
	if err != nil {
		return err
	}
	defer journal.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	table, err := bench.Run(ctx, benchCfg)
	if err != nil {
		return err
	}
	if err := journal.LogBench(ctx, len(table.Results), table.Accuracy(), table.Elapsed); err != nil {
		logger.Warn("journal write failed", "error", err)
	}

	if opts.metricsOut != "" {
		if err := writeTextfile(opts.metricsOut, m.Registry()); err != nil {
			logger.Warn("metrics write failed", "path", opts.metricsOut, "error", err)
		}
	}

	switch {
	case opts.quiet:
		fmt.Printf("%.1f%%\n", table.Accuracy()*100)
	case opts.format == report.FormatText:
		report.PrintBench(os.Stdout, table)
	default:
		return report.Encode(os.Stdout, opts.format, table)
	}
	return nil
}

// writeTextfile replaces path atomically so a collector never reads a
// partial file.
func writeTextfile(path string, r *metrics.Registry) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".plainbench-*.prom")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := r.WritePrometheus(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func parseKeyLengths(s string) ([]int, error) {
	var keys []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid key length %q", part)
		}
		keys = append(keys, n)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("no key lengths in %q", s)
	}
	return keys, nil
}
