package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"plainid/internal/config"
	"plainid/internal/report"
	"plainid/internal/store"
)

func cmdHistory(args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	limit := fs.Int("n", 20, "number of runs shown (0 for all)")
	cipher := fs.String("cipher", "", "only runs of this ciphertext fingerprint (64 hex digits)")
	accuracy := fs.Bool("accuracy", false, "show bench accuracy instead of runs")
	bench := fs.String("bench", "", "limit -accuracy to one bench session")
	stats := fs.Bool("stats", false, "show database statistics instead of runs")
	formatStr := fs.String("format", "text", "output format: text, json, yaml")
	fs.Parse(args)

	format, err := report.ParseFormat(*formatStr)
	if err != nil {
		return err
	}
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Storage.Enabled {
		return fmt.Errorf("storage is disabled in the configuration")
	}
	if _, err := os.Stat(cfg.Storage.Path); os.IsNotExist(err) {
		fmt.Println("No database found")
		return nil
	}

	s, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer s.Close()

	if *stats {
		st, err := s.Stats()
		if err != nil {
			return err
		}
		if format != report.FormatText {
			return report.Encode(os.Stdout, format, st)
		}
		report.PrintStats(os.Stdout, cfg.Storage.Path, st, time.Now())
		return nil
	}

	if *accuracy {
		acc, err := s.Accuracy(*bench)
		if err != nil {
			return err
		}
		if format != report.FormatText {
			return report.Encode(os.Stdout, format, acc)
		}
		report.PrintAccuracy(os.Stdout, acc)
		return nil
	}

	var runs []store.Run
	if *cipher != "" {
		fp, err := parseFingerprint(*cipher)
		if err != nil {
			return err
		}
		runs, err = s.RunsForCipher(fp)
		if err != nil {
			return err
		}
	} else {
		runs, err = s.ListRuns(*limit)
		if err != nil {
			return err
		}
	}

	if format != report.FormatText {
		return report.Encode(os.Stdout, format, runs)
	}
	report.PrintHistory(os.Stdout, runs, time.Now())
	return nil
}

func parseFingerprint(s string) (store.Fingerprint, error) {
	var fp store.Fingerprint
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(fp) {
		return fp, fmt.Errorf("invalid fingerprint %q", s)
	}
	copy(fp[:], b)
	return fp, nil
}

func cmdConfig(args []string) error {
	sub := "show"
	if len(args) > 0 {
		sub = args[0]
	}
	path := resolveConfigPath()

	switch sub {
	case "path":
		fmt.Println(path)
		return nil

	case "init":
		cfg, created, err := config.LoadOrCreate(path)
		if err != nil {
			return err
		}
		if err := cfg.EnsureDirectories(); err != nil {
			return err
		}
		if created {
			fmt.Printf("Created %s\n", path)
		} else {
			fmt.Printf("Config already exists at %s\n", path)
		}
		return nil

	case "show":
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		ext := filepath.Ext(path)
		if len(args) > 1 {
			ext = "." + args[1]
		}
		data, err := cfg.Encode(ext)
		if err != nil {
			return err
		}
		os.Stdout.Write(data)
		return nil

	default:
		fmt.Fprintln(os.Stderr, "Usage: plainid config [show [toml|json|yaml]|init|path]")
		os.Exit(1)
	}
	return nil
}
