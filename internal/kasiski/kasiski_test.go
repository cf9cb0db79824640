package kasiski

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plainid/internal/codec"
)

func TestOccurrencesNonOverlapping(t *testing.T) {
	tests := []struct {
		s, sub string
		want   []int
	}{
		{"aaaa", "aa", []int{0, 2}},
		{"abcabcabc", "abc", []int{0, 3, 6}},
		{"abcabcabc", "bca", []int{1, 4}},
		{"abc", "x", nil},
		{"abc", "", nil},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, Occurrences(tt.s, tt.sub)); diff != "" {
			t.Errorf("Occurrences(%q, %q) mismatch (-want +got):\n%s", tt.s, tt.sub, diff)
		}
	}
}

func TestDivisors(t *testing.T) {
	assert.Equal(t, []int{3, 4, 6, 12}, Divisors(12, 3, 24))
	assert.Equal(t, []int{3, 6}, Divisors(6, 3, 24))
	assert.Equal(t, []int{4, 5, 10, 20}, Divisors(100, 3, 24))
	assert.Equal(t, []int{7}, Divisors(7, 3, 24), "a prime is its own factor")
	assert.Empty(t, Divisors(2, 3, 24))
	assert.Equal(t, []int{1, 2, 4}, Divisors(4, 0, 24))
}

func TestPeriodicText(t *testing.T) {
	got, err := Estimate("abcdefabcdefabcdef", DefaultOptions())
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, 6, got[0].Length)
	assert.Equal(t, 1, got[0].Count)
	assert.InDelta(t, 1+math.Log(4), got[0].Score, 1e-12)
	assert.Equal(t, 3, got[1].Length)
	assert.InDelta(t, 1.0, got[1].Score, 1e-12)
}

func TestDistances(t *testing.T) {
	assert.Equal(t, []int{6}, Distances("abcdefabcdefabcdef", DefaultOptions()))
	assert.Empty(t, Distances("abcdefghijklmnopqrstuvwxyz", DefaultOptions()))
}

func TestLimitAndTies(t *testing.T) {
	// distances 3, 6 and 9 score 3 ahead of 9 ahead of 6
	text := "xyzabcabcxyzqqqxyz"
	opts := DefaultOptions()
	opts.MinSubstring = 3
	opts.MaxSubstring = 3
	opts.Limit = 0

	all, err := Estimate(text, opts)
	require.NoError(t, err)
	for i := 1; i < len(all); i++ {
		prev, cur := all[i-1], all[i]
		assert.True(t, prev.Score > cur.Score || (prev.Score == cur.Score && prev.Length < cur.Length),
			"order broken at %d: %+v then %+v", i, prev, cur)
	}

	require.Len(t, all, 3)
	assert.Equal(t, []int{3, 9, 6}, []int{all[0].Length, all[1].Length, all[2].Length})

	opts.Limit = 2
	top, err := Estimate(text, opts)
	require.NoError(t, err)
	assert.Len(t, top, 2)
	assert.Equal(t, all[:2], top)
}

func TestRepeatingKeyCipher(t *testing.T) {
	// a plaintext that repeats every 20 symbols under a key of length 5
	plain := "attack at dawn then "
	for len(plain) < 200 {
		plain += "attack at dawn then "
	}
	key := []codec.Symbol{3, 14, 1, 22, 9}
	p, err := codec.Encode(plain)
	require.NoError(t, err)
	c := make(codec.Stream, len(p))
	for i, s := range p {
		c[i] = codec.Shift(s, key[i%len(key)])
	}

	got, err := Estimate(c.String(), DefaultOptions())
	require.NoError(t, err)
	require.NotEmpty(t, got)

	// repeats sit 20 and 40 apart
	require.Len(t, got, 3)
	assert.Equal(t, []int{20, 10, 5}, []int{got[0].Length, got[1].Length, got[2].Length})
	assert.Equal(t, []int{20, 40}, Distances(c.String(), DefaultOptions()))
}

func TestEstimateRejectsInvalidText(t *testing.T) {
	_, err := Estimate("ABC", DefaultOptions())
	assert.ErrorIs(t, err, codec.ErrInvalidCharacter)
}
