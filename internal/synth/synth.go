// Package synth produces repeating-key ciphertexts with optional noise
// insertion, for fixtures, benchmarks and the generator tool.
package synth

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"

	"plainid/internal/codec"
)

var (
	// ErrKey is returned for an empty key or a key symbol outside [0, 26].
	ErrKey = errors.New("synth: invalid key")

	// ErrNoise is returned for inconsistent noise positions or probabilities.
	ErrNoise = errors.New("synth: invalid noise")
)

// Key is a repeating substitution key.
type Key []codec.Symbol

// ParseKey reads a whitespace separated key such as "1 12 3".
func ParseKey(s string) (Key, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty key", ErrKey)
	}
	key := make(Key, len(fields))
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrKey, f, err)
		}
		if v < 0 || v >= codec.AlphabetSize {
			return nil, fmt.Errorf("%w: symbol %d out of range", ErrKey, v)
		}
		key[i] = codec.Symbol(v)
	}
	return key, nil
}

// String formats the key the way ParseKey reads it.
func (k Key) String() string {
	parts := make([]string, len(k))
	for i, s := range k {
		parts[i] = strconv.Itoa(int(s))
	}
	return strings.Join(parts, " ")
}

// RandomKey draws a key of the given length.
func RandomKey(rng *rand.Rand, length int) Key {
	key := make(Key, length)
	for i := range key {
		key[i] = codec.Symbol(rng.IntN(codec.AlphabetSize))
	}
	return key
}

// Encrypt shifts every plaintext symbol by key[i mod len(key)].
func Encrypt(plaintext string, key Key) (string, error) {
	if len(key) == 0 {
		return "", fmt.Errorf("%w: empty key", ErrKey)
	}
	p, err := codec.Encode(plaintext)
	if err != nil {
		return "", err
	}
	c := make(codec.Stream, len(p))
	for i, s := range p {
		c[i] = codec.Shift(s, key[i%len(key)])
	}
	return c.String(), nil
}

// InsertAt inserts chars[k] so that it ends up at offset positions[k] of
// the result. Positions must be strictly increasing.
func InsertAt(text string, positions []int, chars string) (string, error) {
	if len(positions) != len(chars) {
		return "", fmt.Errorf("%w: %d positions for %d characters", ErrNoise, len(positions), len(chars))
	}
	if !sort.IntsAreSorted(positions) {
		return "", fmt.Errorf("%w: positions not sorted", ErrNoise)
	}

	var b strings.Builder
	b.Grow(len(text) + len(chars))
	src := 0
	for k, pos := range positions {
		if k > 0 && pos == positions[k-1] {
			return "", fmt.Errorf("%w: duplicate position %d", ErrNoise, pos)
		}
		if _, ok := codec.SymbolOf(chars[k]); !ok {
			return "", fmt.Errorf("%w: %q", codec.ErrInvalidCharacter, chars[k])
		}
		// result offset pos holds text[src] until we reach it
		take := pos - b.Len()
		if take < 0 || src+take > len(text) {
			return "", fmt.Errorf("%w: position %d out of range", ErrNoise, pos)
		}
		b.WriteString(text[src : src+take])
		src += take
		b.WriteByte(chars[k])
	}
	b.WriteString(text[src:])
	return b.String(), nil
}

// Generator encrypts plaintexts and scatters random characters through the
// ciphertext. Not safe for concurrent use because of Rand.
type Generator struct {
	Key Key

	// NoiseProb is the chance of inserting a random symbol before each
	// plaintext symbol.
	NoiseProb float64

	Rand *rand.Rand
}

// Sample is one generated ciphertext.
type Sample struct {
	Ciphertext string
	Noise      []int // offsets of inserted characters in Ciphertext
}

// Generate encrypts plaintext and inserts noise.
func (g *Generator) Generate(plaintext string) (Sample, error) {
	if g.NoiseProb < 0 || g.NoiseProb >= 1 {
		return Sample{}, fmt.Errorf("%w: probability %v", ErrNoise, g.NoiseProb)
	}
	cipher, err := Encrypt(plaintext, g.Key)
	if err != nil {
		return Sample{}, err
	}
	if g.NoiseProb == 0 {
		return Sample{Ciphertext: cipher}, nil
	}

	var (
		b     strings.Builder
		noise []int
	)
	b.Grow(len(cipher) + len(cipher)/8)
	for i := 0; i < len(cipher); i++ {
		if g.Rand.Float64() < g.NoiseProb {
			noise = append(noise, b.Len())
			b.WriteByte(codec.Char(codec.Symbol(g.Rand.IntN(codec.AlphabetSize))))
		}
		b.WriteByte(cipher[i])
	}
	return Sample{Ciphertext: b.String(), Noise: noise}, nil
}

// Compose joins randomly drawn words with single spaces until the text is
// length bytes long, cutting the last word if needed. It returns "" for an
// empty word list.
func Compose(rng *rand.Rand, words []string, length int) string {
	if len(words) == 0 || length <= 0 {
		return ""
	}
	var b strings.Builder
	b.Grow(length + 16)
	for b.Len() < length {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(words[rng.IntN(len(words))])
	}
	return b.String()[:length]
}

// NewRand returns a deterministic source for the given seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
