// Package trend compares entropy trends pairwise and votes on the one
// candidate whose trend diverges from the rest.
//
// Comparison is two-pass: all pair distances are measured first to derive
// the mean and standard deviation, then the same pairs are walked again in
// the same order and every pair above mean + factor*stddev casts a vote.
package trend

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"plainid/internal/combin"
)

// Count is the number of trends in a Trend Set.
const Count = 5

// Defaults used when no option overrides them.
const (
	DefaultThreshold     = 2.5
	DefaultOutlierFactor = 0.25
)

var (
	// ErrTrendCount is returned when the set does not hold exactly Count trends.
	ErrTrendCount = errors.New("trend: wrong number of trends")

	// ErrTrendLength is returned when trends in a set differ in length.
	ErrTrendLength = errors.New("trend: trends differ in length")

	// ErrVotePolicy is returned for an unknown vote policy name.
	ErrVotePolicy = errors.New("trend: unknown vote policy")
)

// VotePolicy decides which member of an outlier pair receives the vote.
type VotePolicy string

const (
	// VoteLowerEntropy implicates j when the signed sum of (trend_i - trend_j)
	// is positive and i otherwise.
	VoteLowerEntropy VotePolicy = "lower_entropy"

	// VoteBothMembers implicates both indices of every outlier pair.
	VoteBothMembers VotePolicy = "both_members"
)

// ParseVotePolicy converts a configuration value to a VotePolicy.
func ParseVotePolicy(s string) (VotePolicy, error) {
	switch VotePolicy(s) {
	case VoteLowerEntropy, "":
		return VoteLowerEntropy, nil
	case VoteBothMembers:
		return VoteBothMembers, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrVotePolicy, s)
	}
}

// Status explains the outcome of DetectAnomaly.
type Status string

const (
	StatusAnomaly      Status = "anomaly"       // a single index won the vote
	StatusLowDeviation Status = "low_deviation" // stddev below threshold
	StatusTie          Status = "tie"           // several indices share the top count
	StatusNoVotes      Status = "no_votes"      // no pair exceeded the outlier cut
)

// Detection is the result of DetectAnomaly. Index is only meaningful when
// Status is StatusAnomaly.
type Detection struct {
	Index  int    `json:"index"`
	Status Status `json:"status"`
	Votes  []int  `json:"votes,omitempty"`
}

// Found reports whether a single anomalous index was identified.
func (d Detection) Found() bool {
	return d.Status == StatusAnomaly
}

// Pair is the comparison of two trends.
type Pair struct {
	I, J      int
	Distance  float64 // sum of squared per-step differences
	SignedSum float64 // sum of (trend_i - trend_j)
}

// Option configures a Comparator.
type Option func(*Comparator)

// WithThreshold sets the minimum standard deviation required to vote.
func WithThreshold(threshold float64) Option {
	return func(c *Comparator) {
		c.threshold = threshold
	}
}

// WithOutlierFactor sets f in the outlier cut mean + f*stddev.
func WithOutlierFactor(f float64) Option {
	return func(c *Comparator) {
		c.outlierFactor = f
	}
}

// WithVotePolicy selects how outlier pairs vote.
func WithVotePolicy(p VotePolicy) Option {
	return func(c *Comparator) {
		c.policy = p
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Comparator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Comparator holds the pairwise statistics of one Trend Set.
type Comparator struct {
	trends        [][]float64
	threshold     float64
	outlierFactor float64
	policy        VotePolicy
	logger        *slog.Logger

	pairs  []Pair
	mean   float64
	stdDev float64
}

// NewComparator measures every pair of trends. The trends are not copied
// and must not be modified while the comparator is in use.
func NewComparator(trends [][]float64, opts ...Option) (*Comparator, error) {
	if len(trends) != Count {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrTrendCount, len(trends), Count)
	}
	for i, t := range trends {
		if len(t) != len(trends[0]) {
			return nil, fmt.Errorf("%w: trend %d has %d values, trend 0 has %d",
				ErrTrendLength, i, len(t), len(trends[0]))
		}
	}

	c := &Comparator{
		trends:        trends,
		threshold:     DefaultThreshold,
		outlierFactor: DefaultOutlierFactor,
		policy:        VoteLowerEntropy,
		logger:        slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}

	it, err := combin.Pairs(len(trends))
	if err != nil {
		return nil, err
	}
	c.pairs = make([]Pair, 0, it.Size())

	var sum, sqrSum float64
	for {
		idx, ok := it.Next()
		if !ok {
			break
		}
		p := measure(trends, idx[0], idx[1])
		c.logger.Debug("pair distance", "i", p.I, "j", p.J, "distance", p.Distance)

		c.pairs = append(c.pairs, p)
		sum += p.Distance
		sqrSum += p.Distance * p.Distance
	}

	n := float64(len(c.pairs))
	c.mean = sum / n
	variance := sqrSum/n - c.mean*c.mean
	if variance < 0 {
		variance = 0
	}
	c.stdDev = math.Sqrt(variance)

	c.logger.Debug("trend statistics", "mean", c.mean, "stddev", c.stdDev)
	return c, nil
}

func measure(trends [][]float64, i, j int) Pair {
	p := Pair{I: i, J: j}
	ti, tj := trends[i], trends[j]
	for k := range ti {
		d := ti[k] - tj[k]
		p.Distance += d * d
		p.SignedSum += d
	}
	return p
}

// Mean returns the mean pair distance.
func (c *Comparator) Mean() float64 { return c.mean }

// StdDev returns the population standard deviation of the pair distances.
func (c *Comparator) StdDev() float64 { return c.stdDev }

// Pairs returns the measured pairs in enumeration order.
func (c *Comparator) Pairs() []Pair {
	out := make([]Pair, len(c.pairs))
	copy(out, c.pairs)
	return out
}

// Distances returns the pair distances in enumeration order.
func (c *Comparator) Distances() []float64 {
	out := make([]float64, len(c.pairs))
	for i, p := range c.pairs {
		out[i] = p.Distance
	}
	return out
}

// Cut returns the distance above which a pair counts as an outlier.
func (c *Comparator) Cut() float64 {
	return c.mean + c.outlierFactor*c.stdDev
}

// DetectAnomaly votes on the divergent trend. A single index with the
// strictly highest vote count is returned as StatusAnomaly.
func (c *Comparator) DetectAnomaly() Detection {
	if c.stdDev < c.threshold {
		c.logger.Debug("standard deviation below threshold",
			"stddev", c.stdDev, "threshold", c.threshold)
		return Detection{Index: -1, Status: StatusLowDeviation}
	}

	// Re-enumerate so the vote order is the enumerator's, not the slice's.
	it, err := combin.Pairs(len(c.trends))
	if err != nil {
		return Detection{Index: -1, Status: StatusNoVotes}
	}

	cut := c.Cut()
	votes := make([]int, len(c.trends))
	for k := 0; ; k++ {
		idx, ok := it.Next()
		if !ok {
			break
		}
		p := c.pairs[k]
		if p.I != idx[0] || p.J != idx[1] {
			panic(fmt.Sprintf("trend: pair order changed at %d", k))
		}
		if p.Distance <= cut {
			continue
		}

		switch c.policy {
		case VoteBothMembers:
			votes[p.I]++
			votes[p.J]++
		default:
			if p.SignedSum > 0 {
				votes[p.J]++
			} else {
				votes[p.I]++
			}
		}
		c.logger.Debug("outlier pair", "i", p.I, "j", p.J, "distance", p.Distance, "cut", cut)
	}

	best, bestCount, tied := -1, 0, false
	for i, v := range votes {
		switch {
		case v > bestCount:
			best, bestCount, tied = i, v, false
		case v == bestCount && v > 0:
			tied = true
		}
	}

	switch {
	case bestCount == 0:
		return Detection{Index: -1, Status: StatusNoVotes, Votes: votes}
	case tied:
		c.logger.Debug("most voted index is not unique", "votes", votes)
		return Detection{Index: -1, Status: StatusTie, Votes: votes}
	default:
		c.logger.Debug("anomaly detected", "index", best, "votes", votes)
		return Detection{Index: best, Status: StatusAnomaly, Votes: votes}
	}
}
