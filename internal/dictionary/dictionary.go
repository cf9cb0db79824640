// Package dictionary reads candidate plaintext files.
//
// A candidate file starts with one header line and then holds five records,
// each made of three ignored lines followed by the candidate text. A word
// file starts with two header lines and then lists one word per line.
package dictionary

import (
	"bufio"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"plainid/internal/codec"
)

// Records is the number of candidates in a candidate file.
const Records = 5

// ErrMalformed is returned when a file ends early or holds invalid text.
var ErrMalformed = errors.New("dictionary: malformed file")

//go:embed builtin.txt
var builtinText string

var builtin = sync.OnceValue(func() []string {
	texts, err := Parse(strings.NewReader(builtinText))
	if err != nil {
		panic(fmt.Sprintf("dictionary: builtin candidates: %v", err))
	}
	return texts
})

// Builtin returns the five bundled candidate plaintexts.
func Builtin() []string {
	out := make([]string, Records)
	copy(out, builtin())
	return out
}

func newScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	return sc
}

// Parse reads a candidate file.
func Parse(r io.Reader) ([]string, error) {
	sc := newScanner(r)
	line := 0
	next := func() (string, error) {
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return "", err
			}
			return "", fmt.Errorf("%w: unexpected end of file after line %d", ErrMalformed, line)
		}
		line++
		return strings.TrimRight(sc.Text(), "\r"), nil
	}

	if _, err := next(); err != nil {
		return nil, err
	}

	texts := make([]string, 0, Records)
	for i := 0; i < Records; i++ {
		for j := 0; j < 3; j++ {
			if _, err := next(); err != nil {
				return nil, err
			}
		}
		text, err := next()
		if err != nil {
			return nil, err
		}
		if err := codec.Validate(text); err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrMalformed, line, err)
		}
		texts = append(texts, text)
	}
	return texts, nil
}

// Load reads a candidate file from disk.
func Load(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	texts, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return texts, nil
}

// ParseWords reads a word file. Blank lines are skipped.
func ParseWords(r io.Reader) ([]string, error) {
	sc := newScanner(r)
	var words []string
	line := 0
	for sc.Scan() {
		line++
		if line <= 2 {
			continue
		}
		w := strings.TrimSpace(sc.Text())
		if w == "" {
			continue
		}
		if err := codec.Validate(w); err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrMalformed, line, err)
		}
		words = append(words, w)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if line < 2 {
		return nil, fmt.Errorf("%w: missing header", ErrMalformed)
	}
	return words, nil
}

// LoadWords reads a word file from disk.
func LoadWords(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	words, err := ParseWords(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return words, nil
}

// Words splits texts into their distinct words, in first-seen order.
func Words(texts []string) []string {
	seen := make(map[string]bool)
	var words []string
	for _, t := range texts {
		for _, w := range strings.Fields(t) {
			if !seen[w] {
				seen[w] = true
				words = append(words, w)
			}
		}
	}
	return words
}
