// Command plaingen writes synthetic challenge files.
//
// Usage:
//
//	plaingen [flags]
//
// Examples:
//
//	# Five challenges over the builtin candidates, key length 7
//	plaingen -n 5 -keylen 7 -out challenges
//
//	# A fixed key and random plaintexts drawn from a word list
//	plaingen -key "1 12 3" -words words.txt -format yaml
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"plainid/internal/analysis"
	"plainid/internal/challenge"
	"plainid/internal/dictionary"
	"plainid/internal/synth"
)

var (
	// Version information (set at build time)
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	_ = godotenv.Load(".env")

	count := flag.Int("n", 1, "number of challenges")
	keyStr := flag.String("key", "", "fixed key, e.g. \"1 12 3\" (default: random)")
	keyLen := flag.Int("keylen", 5, "random key length when -key is not set")
	noise := flag.Float64("noise", 0.05, "noise probability per symbol")
	seed := flag.Uint64("seed", 1, "random seed")
	expected := flag.Int("expected", -1, "candidate to encrypt (default: random)")
	dictPath := flag.String("dict", "", "candidate dictionary (default: builtin)")
	wordsPath := flag.String("words", "", "word list; candidates are composed from random words")
	length := flag.Int("length", 500, "plaintext length when composing from -words")
	outDir := flag.String("out", ".", "output directory")
	prefix := flag.String("prefix", "challenge", "file name prefix")
	formatStr := flag.String("format", "json", "file format: json, yaml, toml")
	hide := flag.Bool("hide", false, "omit the expected index, key and noise from the files")
	versionFlag := flag.Bool("version", false, "print version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "plaingen - Generate synthetic plaintext identification challenges\n\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [flags]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *versionFlag {
		fmt.Printf("plaingen %s (commit: %s, built: %s)\n", version, commit, buildTime)
		os.Exit(0)
	}

	ext := "." + strings.ToLower(*formatStr)
	if _, err := challenge.Format(ext); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	if *expected >= analysis.CandidateCount {
		fmt.Fprintf(os.Stderr, "Error: -expected must be below %d\n", analysis.CandidateCount)
		os.Exit(2)
	}

	var fixedKey synth.Key
	if *keyStr != "" {
		k, err := synth.ParseKey(*keyStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(2)
		}
		fixedKey = k
	} else if *keyLen < 1 {
		fmt.Fprintf(os.Stderr, "Error: -keylen must be positive\n")
		os.Exit(2)
	}

	var (
		candidates []string
		words      []string
		err        error
	)
	switch {
	case *wordsPath != "":
		words, err = dictionary.LoadWords(*wordsPath)
	case *dictPath != "":
		candidates, err = dictionary.Load(*dictPath)
	default:
		candidates = dictionary.Builtin()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	opts := genOptions{
		count:    *count,
		key:      fixedKey,
		keyLen:   *keyLen,
		noise:    *noise,
		seed:     *seed,
		expected: *expected,
		length:   *length,
		outDir:   *outDir,
		prefix:   *prefix,
		ext:      ext,
		hide:     *hide,
	}
	if err := generate(opts, candidates, words, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type genOptions struct {
	count    int
	key      synth.Key // nil draws a random key of keyLen per challenge
	keyLen   int
	noise    float64
	seed     uint64
	expected int // negative draws the candidate
	length   int
	outDir   string
	prefix   string
	ext      string
	hide     bool
}

// generate writes opts.count challenge files. With words set, every
// challenge gets five freshly composed candidates.
func generate(opts genOptions, candidates, words []string, out io.Writer) error {
	rng := synth.NewRand(opts.seed)
	for i := 0; i < opts.count; i++ {
		set := candidates
		if words != nil {
			set = make([]string, analysis.CandidateCount)
			for j := range set {
				set[j] = synth.Compose(rng, words, opts.length)
			}
		}

		key := opts.key
		if key == nil {
			key = synth.RandomKey(rng, opts.keyLen)
		}
		want := opts.expected
		if want < 0 {
			want = rng.IntN(analysis.CandidateCount)
		}

		gen := synth.Generator{Key: key, NoiseProb: opts.noise, Rand: rng}
		sample, err := gen.Generate(set[want])
		if err != nil {
			return err
		}

		ch := &challenge.Challenge{Ciphertext: sample.Ciphertext, Candidates: set}
		if !opts.hide {
			ch.Expected = &want
			ch.Key = key.String()
			ch.Noise = sample.Noise
		}

		path := filepath.Join(opts.outDir, fmt.Sprintf("%s-%03d%s", opts.prefix, i+1, opts.ext))
		if err := challenge.Save(path, ch); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		fmt.Fprintf(out, "%s  key length %d, candidate %d, %d noise\n", path, len(key), want, len(sample.Noise))
	}
	return nil
}
