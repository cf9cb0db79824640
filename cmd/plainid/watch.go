package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"plainid/internal/challenge"
	"plainid/internal/config"
	"plainid/internal/report"
	"plainid/internal/watcher"
)

func cmdWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	inbox := fs.String("inbox", "", "directory to watch (default: watch.inbox)")
	outDir := fs.String("out", "", "write a <name>.result.json per challenge into this directory")
	metricsAddr := fs.String("metrics", "", "serve Prometheus metrics on this address (default: watch.metrics_addr)")
	fs.Parse(args)

	path := resolveConfigPath()
	loader := config.NewLoader(path)
	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	if *verbose {
		cfg.Logging.Level = "debug"
	}
	if *inbox != "" {
		cfg.Watch.Inbox = *inbox
	}
	if *metricsAddr != "" {
		cfg.Watch.MetricsAddr = *metricsAddr
	}

	a, err := openApp(cfg, "watch")
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.journal.LogStartup(ctx, version, map[string]any{"inbox": cfg.Watch.Inbox, "config": path})

	// Only the [analysis] section is applied without a restart.
	reloads := make(chan *config.Config, 1)
	loader.OnChange(func(c *config.Config) {
		select {
		case <-reloads:
		default:
		}
		reloads <- c
	})
	if err := loader.Watch(); err != nil {
		a.logger.Warn("config hot reload disabled", "path", path, "error", err)
	}
	defer loader.Close()

	w, err := watcher.New(cfg.Watch.Inbox,
		watcher.WithExtensions(cfg.Watch.Extensions...),
		watcher.WithDebounce(time.Duration(cfg.Watch.DebounceMs)*time.Millisecond),
		watcher.WithLogger(a.logger.WithComponent("watcher").Logger),
	)
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Start(); err != nil {
		w.Stop()
		return fmt.Errorf("start watcher: %w", err)
	}
	defer w.Stop()

	if *outDir != "" {
		if err := os.MkdirAll(*outDir, 0755); err != nil {
			return err
		}
	}

	if cfg.Watch.MetricsAddr != "" {
		srv := serveMetrics(a, cfg.Watch.MetricsAddr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	fmt.Printf("Watching %s (Ctrl-C to stop)\n", w.Dir())

	for {
		select {
		case <-ctx.Done():
			a.journal.LogShutdown(context.Background(), "signal")
			fmt.Println("Stopped")
			return nil

		case c := <-reloads:
			a.cfg.Analysis = c.Analysis
			a.logger.Info("analysis settings reloaded", "search_space", c.Analysis.SearchSpace)
			a.journal.LogConfigReload(ctx, path, nil)
			a.metrics.RecordReload(nil)

		case err := <-loader.Errors():
			a.logger.Warn("config reload rejected", "error", err)
			a.journal.LogConfigReload(ctx, path, err)
			a.metrics.RecordReload(err)

		case ev, ok := <-w.Events():
			if !ok {
				return nil
			}
			handleChallenge(ctx, a, ev, *outDir)

		case err, ok := <-w.Errors():
			if !ok {
				return nil
			}
			a.logger.Warn("watcher error", "error", err)
		}
	}
}

func handleChallenge(ctx context.Context, a *app, ev watcher.Event, outDir string) {
	name := filepath.Base(ev.Path)
	logger := a.logger.With("file", name, "fingerprint", ev.Fingerprint()[:12])

	ch, err := challenge.Load(ev.Path)
	a.journal.LogChallenge(ctx, ev.Path, ev.Fingerprint(), err)
	a.metrics.RecordChallenge(err)
	if err != nil {
		logger.Warn("challenge rejected", "error", err)
		fmt.Printf("%-24s rejected: %v\n", name, err)
		return
	}

	res, err := a.analyze(ctx, ev.Path, ch)
	if err != nil {
		logger.Error("analysis failed", "error", err)
		fmt.Printf("%-24s failed: %v\n", name, err)
		return
	}

	answer := "no conclusion"
	if idx, ok := res.Answer(); ok {
		answer = fmt.Sprintf("candidate %d", idx)
	}
	line := fmt.Sprintf("%-24s %-14s %-12s stddev %.3f", name, answer, res.Outcome, res.StdDev)
	if correct, known := ch.Check(res); known {
		if correct {
			line += "  ok"
		} else {
			line += fmt.Sprintf("  expected %d", *ch.Expected)
		}
	}
	fmt.Println(line)

	if outDir == "" {
		return
	}
	out := filepath.Join(outDir, strings.TrimSuffix(name, filepath.Ext(name))+".result.json")
	f, err := os.Create(out)
	if err != nil {
		logger.Warn("write result failed", "error", err)
		return
	}
	defer f.Close()
	if err := report.Encode(f, report.FormatJSON, res); err != nil {
		logger.Warn("write result failed", "error", err)
	}
}

// serveMetrics exposes the app's metrics on addr until shut down.
func serveMetrics(a *app, addr string) *http.Server {
	mux := http.NewServeMux()
	handler := a.metrics.Registry().HTTPHandler()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		a.metrics.UpdateUptime()
		handler.ServeHTTP(w, r)
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server stopped", "addr", addr, "error", err)
		}
	}()
	a.logger.Info("serving metrics", "addr", addr)
	return srv
}
