package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"plainid/internal/challenge"
	"plainid/internal/dictionary"
	"plainid/internal/kasiski"
	"plainid/internal/report"
)

func readText(path string) (string, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

func cmdAnalyze(args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	cipherPath := fs.String("cipher", "", "raw ciphertext file (\"-\" for stdin) instead of a challenge")
	dictPath := fs.String("dict", "", "candidate dictionary for -cipher (default: builtin)")
	searchSpace := fs.Int("search-space", 0, "override the search space")
	expected := fs.Int("expected", -1, "expected candidate index for -cipher")
	formatStr := fs.String("format", "text", "output format: text, json, yaml")
	fs.Parse(args)

	format, err := report.ParseFormat(*formatStr)
	if err != nil {
		return err
	}

	var (
		ch     *challenge.Challenge
		source string
	)
	switch {
	case *cipherPath != "":
		ch, err = rawChallenge(*cipherPath, *dictPath)
		if err != nil {
			return err
		}
		if *expected >= 0 {
			ch.Expected = expected
		}
		source = *cipherPath
		if source == "-" {
			source = "stdin"
		}
	case fs.NArg() >= 1:
		source = fs.Arg(0)
		ch, err = challenge.Load(source)
		if err != nil {
			return err
		}
	default:
		fmt.Fprintln(os.Stderr, "Usage: plainid analyze <challenge> | -cipher <file> [-dict file]")
		os.Exit(1)
	}
	if *searchSpace > 0 {
		ch.SearchSpace = *searchSpace
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := openApp(cfg, "analyze")
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := a.analyze(ctx, source, ch)
	if err != nil {
		return err
	}

	if format == report.FormatText {
		report.PrintResult(os.Stdout, res, ch.Candidates)
		if correct, known := ch.Check(res); known {
			verdict := "WRONG"
			if correct {
				verdict = "CORRECT"
			}
			fmt.Printf("Expected candidate %d: %s\n", *ch.Expected, verdict)
		}
		return nil
	}
	return report.Encode(os.Stdout, format, res)
}

func rawChallenge(cipherPath, dictPath string) (*challenge.Challenge, error) {
	text, err := readText(cipherPath)
	if err != nil {
		return nil, fmt.Errorf("read ciphertext: %w", err)
	}

	candidates := dictionary.Builtin()
	if dictPath != "" {
		candidates, err = dictionary.Load(dictPath)
		if err != nil {
			return nil, err
		}
	}
	return &challenge.Challenge{Ciphertext: text, Candidates: candidates}, nil
}

func cmdKasiski(args []string) error {
	fs := flag.NewFlagSet("kasiski", flag.ExitOnError)
	limit := fs.Int("limit", 3, "number of key lengths reported")
	minLen := fs.Int("min", 3, "smallest key length considered")
	maxLen := fs.Int("max", 24, "largest key length considered")
	formatStr := fs.String("format", "text", "output format: text, json, yaml")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: plainid kasiski <file|-> [-limit n] [-min n] [-max n]")
		os.Exit(1)
	}
	format, err := report.ParseFormat(*formatStr)
	if err != nil {
		return err
	}

	text, err := kasiskiInput(fs.Arg(0))
	if err != nil {
		return err
	}

	opts := kasiski.DefaultOptions()
	opts.Limit = *limit
	opts.MinFactor, opts.MaxFactor = *minLen, *maxLen

	factors, err := kasiski.Estimate(text, opts)
	if err != nil {
		return err
	}
	if format == report.FormatText {
		report.PrintKasiski(os.Stdout, factors)
		return nil
	}
	return report.Encode(os.Stdout, format, factors)
}

// kasiskiInput reads the ciphertext of a challenge file, or the whole file
// for any other extension.
func kasiskiInput(path string) (string, error) {
	if _, err := challenge.Format(path); err == nil {
		ch, err := challenge.Load(path)
		if err != nil {
			return "", err
		}
		return ch.Ciphertext, nil
	}
	return readText(path)
}
