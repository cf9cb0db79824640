package analysis

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"plainid/internal/codec"
	"plainid/internal/dictionary"
	"plainid/internal/synth"
	"plainid/internal/trend"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// distinctKey keeps the true residual on seven symbols, none of them 20.
var distinctKey = synth.Key{1, 2, 3, 4, 5, 6, 7}

func encrypt(t *testing.T, plain string, key synth.Key) string {
	t.Helper()
	c, err := synth.Encrypt(plain, key)
	require.NoError(t, err)
	return c
}

// noiseFor returns a character whose residual against the first symbol of
// plain is 20, outside distinctKey.
func noiseFor(t *testing.T, plain string) string {
	t.Helper()
	p, err := codec.Encode(plain[:1])
	require.NoError(t, err)
	return string(codec.Char(codec.Shift(p[0], 20)))
}

func run(t *testing.T, cipher string, candidates []string, opts Options) *Result {
	t.Helper()
	e, err := New(cipher, candidates, opts)
	require.NoError(t, err)
	res, err := e.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

// shiftedCandidates returns five constant shifts of one text. Their
// residuals against any ciphertext are relabelings of each other, so every
// trend in every pass is identical.
func shiftedCandidates(t *testing.T, text string) []string {
	t.Helper()
	out := make([]string, CandidateCount)
	for j := range out {
		out[j] = encrypt(t, text, synth.Key{codec.Symbol(j)})
	}
	return out
}

func TestRunCleanCiphertext(t *testing.T) {
	candidates := dictionary.Builtin()
	cipher := encrypt(t, candidates[2], distinctKey)

	for _, policy := range []trend.VotePolicy{trend.VoteLowerEntropy, trend.VoteBothMembers} {
		t.Run(string(policy), func(t *testing.T) {
			opts := DefaultOptions()
			opts.VotePolicy = policy

			res := run(t, cipher, candidates, opts)

			idx, ok := res.Answer()
			require.True(t, ok)
			assert.Equal(t, 2, idx)
			assert.Equal(t, OutcomeConclusive, res.Outcome)
			assert.Equal(t, StageRaw, res.Stage)
			assert.Len(t, res.Attempts, 1)
			assert.GreaterOrEqual(t, res.StdDev, opts.StrictThreshold)
			assert.NotEmpty(t, res.ID)
		})
	}
}

func TestRunEveryCandidate(t *testing.T) {
	candidates := dictionary.Builtin()
	for want := range candidates {
		cipher := encrypt(t, candidates[want], synth.Key{9, 14, 2, 25, 11})
		res := run(t, cipher, candidates, DefaultOptions())

		idx, ok := res.Answer()
		require.True(t, ok, "candidate %d", want)
		assert.Equal(t, want, idx)
		assert.True(t, res.Conclusive())
	}
}

func TestRunRecoversFromNoise(t *testing.T) {
	candidates := dictionary.Builtin()
	clean := encrypt(t, candidates[2], distinctKey)

	tests := []struct {
		name   string
		cipher string
	}{
		{"leading insertion", noiseFor(t, candidates[2]) + clean},
		{"insertion past the window", func() string {
			c, err := synth.InsertAt(noiseFor(t, candidates[2])+clean, []int{150}, "q")
			require.NoError(t, err)
			return c
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := run(t, tt.cipher, candidates, DefaultOptions())

			idx, ok := res.Answer()
			require.True(t, ok)
			assert.Equal(t, 2, idx)
			assert.Equal(t, OutcomeConclusive, res.Outcome)
		})
	}
}

// The insertions were drawn at random once and pinned, so the escalation
// has to reach two or three removals before a comparison is conclusive.
func TestRunRecoversFromScatteredNoise(t *testing.T) {
	candidates := dictionary.Builtin()
	clean := encrypt(t, candidates[2], distinctKey)

	tests := []struct {
		name      string
		positions []int
		chars     string
		noise     int
	}{
		{"two insertions", []int{2, 11}, "fx", 2},
		{"two insertions from the start", []int{0, 16}, "xb", 2},
		{"three insertions", []int{4, 12, 20}, "bcr", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cipher, err := synth.InsertAt(clean, tt.positions, tt.chars)
			require.NoError(t, err)

			opts := DefaultOptions()
			res := run(t, cipher, candidates, opts)

			idx, ok := res.Answer()
			require.True(t, ok)
			assert.Equal(t, 2, idx)
			assert.Equal(t, OutcomeConclusive, res.Outcome)
			assert.Equal(t, StageDenoised, res.Stage)
			assert.Len(t, res.Removed, tt.noise)
			assert.GreaterOrEqual(t, res.StdDev, opts.RetryThreshold)

			last := res.Attempts[len(res.Attempts)-1]
			assert.Equal(t, tt.noise, last.Noise)
			assert.Equal(t, 2, last.Index)
		})
	}
}

func TestRunUnrelatedFallsBack(t *testing.T) {
	builtin := dictionary.Builtin()
	candidates := shiftedCandidates(t, builtin[1])
	cipher := encrypt(t, builtin[0], distinctKey)

	opts := DefaultOptions()
	res := run(t, cipher, candidates, opts)

	assert.Equal(t, OutcomeBestEffort, res.Outcome)
	assert.Equal(t, StageFallback, res.Stage)
	assert.False(t, res.Conclusive())
	assert.Equal(t, 0.0, res.StdDev)

	idx, ok := res.Answer()
	require.True(t, ok)
	assert.Equal(t, 0, idx)

	// one raw pass plus one attempt per candidate and noise level
	require.Len(t, res.Attempts, 1+CandidateCount*opts.MaxNoise())
	for _, a := range res.Attempts {
		assert.Equal(t, trend.StatusLowDeviation, a.Status)
		assert.Equal(t, 0.0, a.StdDev)
	}
	last := res.Attempts[len(res.Attempts)-1]
	assert.Equal(t, StageDenoised, last.Stage)
	assert.Equal(t, CandidateCount-1, last.Candidate)
	assert.Equal(t, opts.MaxNoise(), last.Noise)
	assert.Len(t, last.Removed, opts.MaxNoise())
}

func TestRunUnrelatedWithoutFallback(t *testing.T) {
	builtin := dictionary.Builtin()
	candidates := shiftedCandidates(t, builtin[1])
	cipher := encrypt(t, builtin[0], distinctKey)

	opts := DefaultOptions()
	opts.Fallback = FallbackNone
	res := run(t, cipher, candidates, opts)

	assert.Equal(t, OutcomeNoConclusion, res.Outcome)
	assert.Equal(t, StageNone, res.Stage)
	_, ok := res.Answer()
	assert.False(t, ok)
}

func TestRunWithoutEscalation(t *testing.T) {
	builtin := dictionary.Builtin()
	candidates := shiftedCandidates(t, builtin[3])
	cipher := encrypt(t, builtin[4], distinctKey)

	opts := DefaultOptions()
	opts.NoiseRatio = 0
	res := run(t, cipher, candidates, opts)

	// only the raw pass ran, so even best effort has nothing to pick
	assert.Equal(t, OutcomeNoConclusion, res.Outcome)
	assert.Len(t, res.Attempts, 1)
	assert.Equal(t, 0, res.MaxNoise)
}

func TestParallelMatchesSequential(t *testing.T) {
	candidates := dictionary.Builtin()
	cipher := noiseFor(t, candidates[2]) + encrypt(t, candidates[2], distinctKey)

	seq := DefaultOptions()
	seq.Parallel = false
	par := DefaultOptions()
	par.Parallel = true

	a := run(t, cipher, candidates, seq)
	b := run(t, cipher, candidates, par)

	opt := cmpopts.IgnoreFields(Result{}, "ID", "Elapsed")
	if diff := cmp.Diff(a, b, opt); diff != "" {
		t.Errorf("parallel run differs (-sequential +parallel):\n%s", diff)
	}
	assert.NotEqual(t, a.ID, b.ID)
}

func TestRunLogsOutcome(t *testing.T) {
	candidates := dictionary.Builtin()
	cipher := encrypt(t, candidates[1], distinctKey)

	var buf bytes.Buffer
	opts := DefaultOptions()
	opts.Logger = slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	res := run(t, cipher, candidates, opts)
	assert.Equal(t, 1, res.Index)

	out := buf.String()
	assert.Contains(t, out, "analysis finished")
	assert.Contains(t, out, "outcome=conclusive")
	assert.Contains(t, out, "pair distance")
	assert.Contains(t, out, "run_id="+res.ID)
}

func TestRunCanceled(t *testing.T) {
	candidates := dictionary.Builtin()
	e, err := New(encrypt(t, candidates[0], distinctKey), candidates, DefaultOptions())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = e.Run(ctx)
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

func TestNewPreconditions(t *testing.T) {
	candidates := dictionary.Builtin()
	cipher := encrypt(t, candidates[0], distinctKey)

	tests := []struct {
		name       string
		cipher     string
		candidates []string
		mutate     func(*Options)
		want       error
	}{
		{"four candidates", cipher, candidates[:4], nil, ErrCandidateCount},
		{"six candidates", cipher, append(dictionary.Builtin(), candidates[0]), nil, ErrCandidateCount},
		{"uppercase cipher", "X" + cipher, candidates, nil, codec.ErrInvalidCharacter},
		{"invalid candidate", cipher, []string{candidates[0], candidates[1], "bad!", candidates[3], candidates[4]}, nil, codec.ErrInvalidCharacter},
		{"short candidate", cipher, []string{candidates[0], candidates[1], candidates[2][:89], candidates[3], candidates[4]}, nil, ErrTextTooShort},
		{"short cipher", cipher[:92], candidates, nil, ErrTextTooShort},
		{"zero search space", cipher, candidates, func(o *Options) { o.SearchSpace = 0 }, ErrSearchSpace},
		{"zero window factor", cipher, candidates, func(o *Options) { o.WindowFactor = 0 }, ErrSearchSpace},
		{"noise ratio of one", cipher, candidates, func(o *Options) { o.NoiseRatio = 1 }, ErrSearchSpace},
		{"unknown vote policy", cipher, candidates, func(o *Options) { o.VotePolicy = "larger_index" }, trend.ErrVotePolicy},
		{"unknown fallback", cipher, candidates, func(o *Options) { o.Fallback = "random" }, ErrFallback},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			if tt.mutate != nil {
				tt.mutate(&opts)
			}
			_, err := New(tt.cipher, tt.candidates, opts)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	// exactly at the limits
	_, err := New(cipher[:93], []string{candidates[0], candidates[1], candidates[2][:90], candidates[3], candidates[4]}, DefaultOptions())
	assert.NoError(t, err)
}

func TestOptionsWindows(t *testing.T) {
	tests := []struct {
		space, initial, factor int
		ratio                  float64
		wantInitial, wantEnd   int
		wantNoise              int
	}{
		{30, 0, 3, 0.075, 30, 90, 3},
		{10, 0, 3, 0.075, 10, 30, 1},
		{100, 0, 3, 0.075, 100, 300, 8},
		{30, 12, 4, 0.075, 12, 48, 3},
		{30, 0, 3, 0, 30, 90, 0},
	}
	for _, tt := range tests {
		o := DefaultOptions()
		o.SearchSpace, o.InitialWindow, o.WindowFactor, o.NoiseRatio = tt.space, tt.initial, tt.factor, tt.ratio
		assert.Equal(t, tt.wantInitial, o.Initial())
		assert.Equal(t, tt.wantEnd, o.WindowEnd())
		assert.Equal(t, tt.wantNoise, o.MaxNoise())
	}
}

func TestParseFallback(t *testing.T) {
	f, err := ParseFallback("")
	require.NoError(t, err)
	assert.Equal(t, FallbackBestEffort, f)

	f, err = ParseFallback("none")
	require.NoError(t, err)
	assert.Equal(t, FallbackNone, f)

	_, err = ParseFallback("coin")
	assert.ErrorIs(t, err, ErrFallback)
}

func TestResultAnswer(t *testing.T) {
	var nilResult *Result
	_, ok := nilResult.Answer()
	assert.False(t, ok)

	r := &Result{Outcome: OutcomeNoConclusion, Index: -1}
	_, ok = r.Answer()
	assert.False(t, ok)

	r = &Result{Outcome: OutcomeBestEffort, Index: 3}
	idx, ok := r.Answer()
	assert.True(t, ok)
	assert.Equal(t, 3, idx)
	assert.False(t, r.Conclusive())
	assert.True(t, strings.HasPrefix(string(r.Outcome), "best"))
}
