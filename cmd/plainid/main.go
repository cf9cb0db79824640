// plainid identifies which of five candidate plaintexts produced a noisy
// repeating-key ciphertext.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"plainid/internal/config"
)

var (
	// Version information (set at build time)
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

var (
	configPath = flag.String("config", "", "path to config file")
	verbose    = flag.Bool("v", false, "debug logging")
)

func main() {
	_ = godotenv.Load(".env")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	cmd := flag.Arg(0)
	args := flag.Args()[1:]

	var err error
	switch cmd {
	case "analyze":
		err = cmdAnalyze(args)
	case "kasiski":
		err = cmdKasiski(args)
	case "watch":
		err = cmdWatch(args)
	case "history":
		err = cmdHistory(args)
	case "journal":
		err = cmdJournal(args)
	case "config":
		err = cmdConfig(args)
	case "version":
		fmt.Printf("plainid %s (commit: %s, built: %s)\n", version, commit, buildTime)
	case "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `plainid - Identify the plaintext behind a noisy repeating-key ciphertext

Usage: plainid [options] <command> [args]

Commands:
  analyze <challenge>       Analyse a challenge file (JSON, YAML or TOML)
  analyze -cipher <file>    Analyse a raw ciphertext ("-" reads stdin)
  kasiski <file>            Estimate the key length of a ciphertext
  watch                     Analyse challenge files dropped into the inbox
  history                   List recorded runs and bench accuracy
  journal                   Show the run journal, including rotated files
  config [show|init|path]   Show or create the configuration file
  version                   Print version information
  help                      Show this help message

Options:
  -config <path>  Path to config file (default: $PLAINID_DATA_DIR/config.toml)
  -v              Debug logging

Environment:
  PLAINID_* variables override configuration values. A .env file in the
  working directory is loaded first.`)
}

func resolveConfigPath() string {
	if *configPath != "" {
		return *configPath
	}
	if found := config.FindConfigFile(); found != "" {
		return found
	}
	return config.ConfigPath()
}

func loadConfig() (*config.Config, string, error) {
	path := resolveConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, path, err
	}
	if *verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, path, nil
}
