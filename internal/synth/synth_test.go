package synth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plainid/internal/codec"
)

func TestParseKey(t *testing.T) {
	key, err := ParseKey("1 12 3")
	require.NoError(t, err)
	assert.Equal(t, Key{1, 12, 3}, key)
	assert.Equal(t, "1 12 3", key.String())

	for _, bad := range []string{"", "   ", "1 27", "-1", "a b"} {
		_, err := ParseKey(bad)
		assert.ErrorIs(t, err, ErrKey, "input %q", bad)
	}
}

func TestEncrypt(t *testing.T) {
	tests := []struct {
		plain string
		key   Key
		want  string
	}{
		{"abc", Key{1}, "bcd"},
		{"z", Key{1}, " "},
		{"   ", Key{1, 2, 3}, "abc"},
		{"aaaa", Key{0, 26}, "a a "},
	}
	for _, tt := range tests {
		got, err := Encrypt(tt.plain, tt.key)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "Encrypt(%q, %v)", tt.plain, tt.key)
	}

	_, err := Encrypt("abc", nil)
	assert.ErrorIs(t, err, ErrKey)
	_, err = Encrypt("ABC", Key{1})
	assert.ErrorIs(t, err, codec.ErrInvalidCharacter)
}

func TestEncryptResidualIsKey(t *testing.T) {
	plain := "the residual of a true match repeats the key"
	key := Key{4, 0, 19, 8}
	cipher, err := Encrypt(plain, key)
	require.NoError(t, err)

	c, _ := codec.Encode(cipher)
	p, _ := codec.Encode(plain)
	for i, r := range codec.ResidualStream(c, p) {
		assert.Equal(t, key[i%len(key)], r, "offset %d", i)
	}
}

func TestInsertAt(t *testing.T) {
	got, err := InsertAt("abcdef", []int{0, 3, 8}, "xyz")
	require.NoError(t, err)
	assert.Equal(t, "xabycdefz", got)

	for i, pos := range []int{0, 3, 8} {
		assert.Equal(t, "xyz"[i], got[pos])
	}

	got, err = InsertAt("abc", nil, "")
	require.NoError(t, err)
	assert.Equal(t, "abc", got)

	_, err = InsertAt("abc", []int{2, 1}, "xy")
	assert.ErrorIs(t, err, ErrNoise)
	_, err = InsertAt("abc", []int{1, 1}, "xy")
	assert.ErrorIs(t, err, ErrNoise)
	_, err = InsertAt("abc", []int{9}, "x")
	assert.ErrorIs(t, err, ErrNoise)
	_, err = InsertAt("abc", []int{1}, "xy")
	assert.ErrorIs(t, err, ErrNoise)
	_, err = InsertAt("abc", []int{1}, "X")
	assert.ErrorIs(t, err, codec.ErrInvalidCharacter)
}

func TestGeneratorNoise(t *testing.T) {
	plain := "a fairly long plaintext so that several noise characters land in it"
	g := &Generator{Key: Key{3, 1, 4, 1, 5}, NoiseProb: 0.3, Rand: NewRand(7)}

	s, err := g.Generate(plain)
	require.NoError(t, err)
	assert.Len(t, s.Ciphertext, len(plain)+len(s.Noise))
	require.NoError(t, codec.Validate(s.Ciphertext))

	// removing the reported offsets, last first, restores the clean cipher
	clean := s.Ciphertext
	for i := len(s.Noise) - 1; i >= 0; i-- {
		clean = codec.RemoveAt(clean, s.Noise[i])
	}
	want, err := Encrypt(plain, g.Key)
	require.NoError(t, err)
	assert.Equal(t, want, clean)
}

func TestGeneratorDeterministic(t *testing.T) {
	gen := func() Sample {
		g := &Generator{Key: Key{2, 7}, NoiseProb: 0.1, Rand: NewRand(42)}
		s, err := g.Generate("the same seed gives the same sample every time")
		require.NoError(t, err)
		return s
	}
	assert.Equal(t, gen(), gen())
}

func TestGeneratorWithoutNoise(t *testing.T) {
	g := &Generator{Key: Key{5}}
	s, err := g.Generate("abc")
	require.NoError(t, err)
	assert.Equal(t, "fgh", s.Ciphertext)
	assert.Empty(t, s.Noise)

	g.NoiseProb = 1
	_, err = g.Generate("abc")
	assert.ErrorIs(t, err, ErrNoise)
}

func TestRandomKey(t *testing.T) {
	key := RandomKey(NewRand(1), 9)
	assert.Len(t, key, 9)
	for _, s := range key {
		assert.Less(t, int(s), codec.AlphabetSize)
	}
	assert.Equal(t, key, RandomKey(NewRand(1), 9))
}

func TestCompose(t *testing.T) {
	words := []string{"alpha", "beta", "gamma"}
	text := Compose(NewRand(3), words, 120)
	require.Len(t, text, 120)
	require.NoError(t, codec.Validate(text))

	for _, w := range strings.Fields(text)[:len(strings.Fields(text))-1] {
		assert.Contains(t, words, w)
	}
	assert.Equal(t, text, Compose(NewRand(3), words, 120))
	assert.Empty(t, Compose(NewRand(3), nil, 10))
	assert.Empty(t, Compose(NewRand(3), words, 0))
}
