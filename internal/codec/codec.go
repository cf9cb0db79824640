// Package codec maps the 27-symbol alphabet (space and a-z) to integers and
// computes modular residuals between symbol streams.
package codec

import (
	"errors"
	"fmt"
)

// AlphabetSize is the number of symbols: space plus 26 lowercase letters.
const AlphabetSize = 27

// Alphabet lists the characters in symbol order.
const Alphabet = " abcdefghijklmnopqrstuvwxyz"

// ErrInvalidCharacter is returned when text contains a byte outside the alphabet.
var ErrInvalidCharacter = errors.New("invalid character")

// InvalidCharacterError reports the first offending byte of an input text.
type InvalidCharacterError struct {
	Char   byte
	Offset int
}

func (e *InvalidCharacterError) Error() string {
	return fmt.Sprintf("codec: %v %q at offset %d", ErrInvalidCharacter, e.Char, e.Offset)
}

func (e *InvalidCharacterError) Unwrap() error {
	return ErrInvalidCharacter
}

// Symbol is an alphabet index in [0, 26]; 0 is space, 1..26 are a..z.
type Symbol uint8

// Stream is an encoded text, one Symbol per input character.
type Stream []Symbol

// SymbolOf encodes a single character.
func SymbolOf(c byte) (Symbol, bool) {
	switch {
	case c == ' ':
		return 0, true
	case c >= 'a' && c <= 'z':
		return Symbol(c-'a') + 1, true
	default:
		return 0, false
	}
}

// Char returns the character for s. Symbols outside the alphabet wrap mod 27.
func Char(s Symbol) byte {
	return Alphabet[int(s)%AlphabetSize]
}

// Encode converts text to a Stream. It fails on the first character that is
// not a space or a lowercase ASCII letter.
func Encode(text string) (Stream, error) {
	stream := make(Stream, len(text))
	for i := 0; i < len(text); i++ {
		s, ok := SymbolOf(text[i])
		if !ok {
			return nil, &InvalidCharacterError{Char: text[i], Offset: i}
		}
		stream[i] = s
	}
	return stream, nil
}

// Validate reports whether every character of text belongs to the alphabet.
func Validate(text string) error {
	for i := 0; i < len(text); i++ {
		if _, ok := SymbolOf(text[i]); !ok {
			return &InvalidCharacterError{Char: text[i], Offset: i}
		}
	}
	return nil
}

// String decodes the stream back to text.
func (s Stream) String() string {
	buf := make([]byte, len(s))
	for i, sym := range s {
		buf[i] = Char(sym)
	}
	return string(buf)
}

// Residual returns (cipher - candidate) mod 27, always in [0, 26].
func Residual(cipher, candidate Symbol) Symbol {
	d := int(cipher) - int(candidate)
	if d < 0 {
		d += AlphabetSize
	}
	return Symbol(d % AlphabetSize)
}

// Shift returns (plain + key) mod 27, the forward substitution.
func Shift(plain, key Symbol) Symbol {
	return Symbol((int(plain) + int(key)) % AlphabetSize)
}

// ResidualStream cancels candidate out of cipher position by position. The
// result has length min(len(cipher), len(candidate)).
func ResidualStream(cipher, candidate Stream) Stream {
	n := min(len(cipher), len(candidate))
	out := make(Stream, n)
	for i := 0; i < n; i++ {
		out[i] = Residual(cipher[i], candidate[i])
	}
	return out
}

// RemoveAt returns a copy of s without the element at i. Out-of-range
// indexes return an unchanged copy.
func (s Stream) RemoveAt(i int) Stream {
	if i < 0 || i >= len(s) {
		out := make(Stream, len(s))
		copy(out, s)
		return out
	}
	out := make(Stream, 0, len(s)-1)
	out = append(out, s[:i]...)
	return append(out, s[i+1:]...)
}

// RemoveAt returns text without the character at i. Out-of-range indexes
// return text unchanged.
func RemoveAt(text string, i int) string {
	if i < 0 || i >= len(text) {
		return text
	}
	return text[:i] + text[i+1:]
}
