// Package combin enumerates k-element index combinations in lexicographic order.
package combin

import (
	"errors"
	"fmt"
)

// ErrInvalidArity is returned when k is outside [0, n].
var ErrInvalidArity = errors.New("combin: k must satisfy 0 <= k <= n")

// Combination yields every k-subset of {0, ..., n-1} exactly once, starting
// from {0, 1, ..., k-1}. It is not restartable; build a new one to traverse
// again.
type Combination struct {
	n, k    int
	state   []int
	total   int
	current int
}

// New creates an enumerator over the k-subsets of n items.
func New(n, k int) (*Combination, error) {
	if k < 0 || n < 0 || k > n {
		return nil, fmt.Errorf("%w (n=%d, k=%d)", ErrInvalidArity, n, k)
	}

	state := make([]int, k)
	for i := range state {
		state[i] = i
	}

	return &Combination{
		n:     n,
		k:     k,
		state: state,
		total: Binomial(n, k),
	}, nil
}

// Pairs returns an enumerator over all unordered pairs i<j of n items.
func Pairs(n int) (*Combination, error) {
	return New(n, 2)
}

// Size returns the total number of combinations, C(n, k).
func (c *Combination) Size() int {
	return c.total
}

// Remaining returns how many combinations have not been produced yet.
func (c *Combination) Remaining() int {
	return c.total - c.current
}

// Next returns the next combination, or false once all C(n, k) have been
// produced. The returned slice is owned by the caller.
func (c *Combination) Next() ([]int, bool) {
	if c.current >= c.total {
		return nil, false
	}

	comb := make([]int, c.k)
	copy(comb, c.state)
	c.current++

	if c.current < c.total {
		c.advance()
	}

	return comb, true
}

// advance moves state to its lexicographic successor: the rightmost index
// below its ceiling n-(k-i) is incremented and everything to its right is
// reset to consecutive successors.
func (c *Combination) advance() {
	i := c.k - 1
	for i > 0 && c.state[i] == c.n-(c.k-i) {
		i--
	}
	c.state[i]++
	for j := i + 1; j < c.k; j++ {
		c.state[j] = c.state[j-1] + 1
	}
}

// Binomial returns C(n, k), or 0 when k is out of range.
func Binomial(n, k int) int {
	if k < 0 || n < 0 || k > n {
		return 0
	}
	if k > n-k {
		k = n - k
	}

	result := 1
	for i := 0; i < k; i++ {
		result = result * (n - i) / (i + 1)
	}
	return result
}
