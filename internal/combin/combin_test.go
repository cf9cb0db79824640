package combin

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, c *Combination) [][]int {
	t.Helper()
	var out [][]int
	for {
		comb, ok := c.Next()
		if !ok {
			return out
		}
		out = append(out, comb)
	}
}

func TestPairsOfFiveOrder(t *testing.T) {
	c, err := Pairs(5)
	require.NoError(t, err)
	assert.Equal(t, 10, c.Size())

	want := [][]int{
		{0, 1}, {0, 2}, {0, 3}, {0, 4},
		{1, 2}, {1, 3}, {1, 4},
		{2, 3}, {2, 4},
		{3, 4},
	}
	got := collect(t, c)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("pair order mismatch (-want +got):\n%s", diff)
	}
}

func TestExhaustionIsTerminal(t *testing.T) {
	c, err := Pairs(5)
	require.NoError(t, err)

	_ = collect(t, c)
	assert.Equal(t, 0, c.Remaining())

	for i := 0; i < 3; i++ {
		comb, ok := c.Next()
		assert.False(t, ok)
		assert.Nil(t, comb)
	}
}

func TestThreeOfFive(t *testing.T) {
	c, err := New(5, 3)
	require.NoError(t, err)

	got := collect(t, c)
	want := [][]int{
		{0, 1, 2}, {0, 1, 3}, {0, 1, 4}, {0, 2, 3}, {0, 2, 4},
		{0, 3, 4}, {1, 2, 3}, {1, 2, 4}, {1, 3, 4}, {2, 3, 4},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("combination order mismatch (-want +got):\n%s", diff)
	}
}

func TestNoRepeatsAndStrictlyIncreasing(t *testing.T) {
	tests := []struct {
		n, k int
	}{
		{6, 2}, {7, 3}, {8, 4}, {5, 5}, {9, 1},
	}

	for _, tt := range tests {
		c, err := New(tt.n, tt.k)
		require.NoError(t, err)

		seen := make(map[[8]int]bool)
		got := collect(t, c)
		assert.Len(t, got, Binomial(tt.n, tt.k), "n=%d k=%d", tt.n, tt.k)

		for _, comb := range got {
			var key [8]int
			for i, v := range comb {
				key[i] = v + 1
				if i > 0 {
					assert.Less(t, comb[i-1], v)
				}
				assert.Less(t, v, tt.n)
			}
			assert.False(t, seen[key], "repeated combination %v", comb)
			seen[key] = true
		}
	}
}

func TestEmptyCombination(t *testing.T) {
	c, err := New(4, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Size())

	comb, ok := c.Next()
	assert.True(t, ok)
	assert.Empty(t, comb)

	_, ok = c.Next()
	assert.False(t, ok)
}

func TestInvalidArity(t *testing.T) {
	for _, tc := range [][2]int{{3, 4}, {3, -1}, {-1, 0}} {
		_, err := New(tc[0], tc[1])
		assert.True(t, errors.Is(err, ErrInvalidArity), "n=%d k=%d", tc[0], tc[1])
	}
}

func TestReturnedSliceIsOwned(t *testing.T) {
	c, err := Pairs(4)
	require.NoError(t, err)

	first, _ := c.Next()
	first[0] = 99
	second, _ := c.Next()
	assert.Equal(t, []int{0, 2}, second)
}

func TestBinomial(t *testing.T) {
	tests := []struct {
		n, k, want int
	}{
		{5, 2, 10},
		{5, 0, 1},
		{5, 5, 1},
		{10, 3, 120},
		{27, 2, 351},
		{4, 5, 0},
		{4, -1, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Binomial(tt.n, tt.k), "C(%d,%d)", tt.n, tt.k)
	}
}
