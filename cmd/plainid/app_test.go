package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plainid/internal/challenge"
	"plainid/internal/config"
	"plainid/internal/dictionary"
	"plainid/internal/logging"
	"plainid/internal/synth"
)

func testApp(t *testing.T) *app {
	t.Helper()
	t.Setenv("PLAINID_DATA_DIR", t.TempDir())
	cfg := config.DefaultConfig()
	cfg.Logging.Level = "error"

	a, err := openApp(cfg, "test")
	require.NoError(t, err)
	return a
}

func TestAnalyzeRecords(t *testing.T) {
	a := testApp(t)

	candidates := dictionary.Builtin()
	g := &synth.Generator{Key: synth.Key{3, 1, 4}, Rand: synth.NewRand(1)}
	sample, err := g.Generate(candidates[2])
	require.NoError(t, err)
	expected := 2
	ch := &challenge.Challenge{Ciphertext: sample.Ciphertext, Candidates: candidates, Expected: &expected}

	res, err := a.analyze(context.Background(), "inbox/two.json", ch)
	require.NoError(t, err)

	run, err := a.store.GetRun(res.ID)
	require.NoError(t, err)
	assert.Equal(t, "inbox/two.json", run.Source)
	require.NotNil(t, run.Expected)
	assert.Equal(t, 2, *run.Expected)

	snap := a.metrics.Registry().Snapshot()
	runs := `plainid_runs_total{outcome="` + string(res.Outcome) + `",stage="` + string(res.Stage) + `"}`
	assert.Equal(t, 1.0, snap[runs])
	assert.Equal(t, 1.0, snap[`plainid_checked_runs_total{correct="true"}`]+snap[`plainid_checked_runs_total{correct="false"}`])

	path := journalPath(a.cfg)
	require.NoError(t, a.Close())

	events, err := logging.ReadJournalHistory(path)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, logging.EventRunFinished, events[0].Type)
	assert.Equal(t, res.ID, events[0].RunID)
}

func TestAnalyzeFailure(t *testing.T) {
	a := testApp(t)

	_, err := a.analyze(context.Background(), "stdin", &challenge.Challenge{Ciphertext: "abc"})
	require.Error(t, err)
	assert.Equal(t, 1.0, a.metrics.Registry().Snapshot()["plainid_run_errors_total"])

	path := journalPath(a.cfg)
	require.NoError(t, a.Close())
	events, err := logging.ReadJournalHistory(path)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, logging.EventRunFailed, events[0].Type)
	assert.Equal(t, "failure", events[0].Result)
}

func TestFilterEvents(t *testing.T) {
	now := time.Now()
	events := []logging.Event{
		{Timestamp: now, Type: logging.EventStartup},
		{Timestamp: now, Type: logging.EventRunFinished, RunID: "aaaa-1"},
		{Timestamp: now, Type: logging.EventRunFinished, RunID: "bbbb-2"},
		{Timestamp: now, Type: logging.EventRunFailed},
		{Timestamp: now, Type: logging.EventRunFinished, RunID: "aaaa-3"},
	}

	assert.Len(t, filterEvents(events, "", "", 0), 5)
	assert.Len(t, filterEvents(events, logging.EventRunFinished, "", 0), 3)

	last := filterEvents(events, "", "", 2)
	require.Len(t, last, 2)
	assert.Equal(t, "aaaa-3", last[1].RunID)

	byRun := filterEvents(events, logging.EventRunFinished, "aaaa", 0)
	require.Len(t, byRun, 2)
	assert.Equal(t, "aaaa-1", byRun[0].RunID)
}

func TestParseFingerprint(t *testing.T) {
	hex := "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"
	fp, err := parseFingerprint(hex)
	require.NoError(t, err)
	assert.Equal(t, byte(0x11), fp[1])

	_, err = parseFingerprint("abcd")
	assert.Error(t, err)
	_, err = parseFingerprint("zz")
	assert.Error(t, err)
}

func TestKasiskiInput(t *testing.T) {
	dir := t.TempDir()

	raw := filepath.Join(dir, "cipher.txt")
	require.NoError(t, os.WriteFile(raw, []byte("abc def\r\n"), 0644))
	got, err := kasiskiInput(raw)
	require.NoError(t, err)
	assert.Equal(t, "abc def", got)

	ch := &challenge.Challenge{Ciphertext: "xyz", Candidates: dictionary.Builtin()}
	path := filepath.Join(dir, "c.json")
	require.NoError(t, challenge.Save(path, ch))
	got, err = kasiskiInput(path)
	require.NoError(t, err)
	assert.Equal(t, "xyz", got)
}
