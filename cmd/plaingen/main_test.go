package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plainid/internal/challenge"
	"plainid/internal/dictionary"
	"plainid/internal/synth"
)

func TestGenerate(t *testing.T) {
	dir := t.TempDir()
	opts := genOptions{
		count:    3,
		key:      synth.Key{1, 12, 3},
		noise:    0.05,
		seed:     7,
		expected: 4,
		outDir:   dir,
		prefix:   "c",
		ext:      ".yaml",
	}

	var out bytes.Buffer
	require.NoError(t, generate(opts, dictionary.Builtin(), nil, &out))
	assert.Equal(t, 3, strings.Count(out.String(), "\n"))

	ch, err := challenge.Load(filepath.Join(dir, "c-002.yaml"))
	require.NoError(t, err)
	require.NotNil(t, ch.Expected)
	assert.Equal(t, 4, *ch.Expected)
	assert.Equal(t, "1 12 3", ch.Key)
	assert.Equal(t, dictionary.Builtin(), ch.Candidates)
	assert.GreaterOrEqual(t, len(ch.Ciphertext), len(ch.Candidates[4]))
}

func TestGenerateHiddenFromWords(t *testing.T) {
	dir := t.TempDir()
	opts := genOptions{
		count:    1,
		keyLen:   4,
		seed:     3,
		expected: -1,
		length:   80,
		outDir:   dir,
		prefix:   "w",
		ext:      ".json",
		hide:     true,
	}

	words := []string{"alpha", "bravo", "charlie", "delta"}
	require.NoError(t, generate(opts, nil, words, &bytes.Buffer{}))

	ch, err := challenge.Load(filepath.Join(dir, "w-001.json"))
	require.NoError(t, err)
	assert.Nil(t, ch.Expected)
	assert.Empty(t, ch.Key)
	require.Len(t, ch.Candidates, 5)
	for _, c := range ch.Candidates {
		assert.Len(t, c, 80)
	}
	assert.Len(t, ch.Ciphertext, 80, "no noise inserted at probability 0")
}
