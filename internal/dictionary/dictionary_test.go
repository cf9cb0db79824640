package dictionary

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plainid/internal/codec"
)

func TestBuiltin(t *testing.T) {
	texts := Builtin()
	require.Len(t, texts, Records)

	for i, text := range texts {
		assert.Len(t, text, 600, "candidate %d", i)
		assert.NoError(t, codec.Validate(text), "candidate %d", i)
	}
	assert.True(t, strings.HasPrefix(texts[0], "barmiest hastes"))
	assert.True(t, strings.HasPrefix(texts[4], "schmeering institutor"))

	// callers get their own copy
	texts[0] = "changed"
	assert.NotEqual(t, "changed", Builtin()[0])
}

func TestParse(t *testing.T) {
	var b strings.Builder
	b.WriteString("header\n")
	for i := 0; i < Records; i++ {
		b.WriteString("\nplaintext\n\n")
		b.WriteString(strings.Repeat(string(rune('a'+i)), 4) + " text\r\n")
	}

	texts, err := Parse(strings.NewReader(b.String()))
	require.NoError(t, err)
	assert.Equal(t, []string{"aaaa text", "bbbb text", "cccc text", "dddd text", "eeee text"}, texts)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"header only", "header\n"},
		{"short record", "header\n\n\n\nabc\n\n\n"},
		{"invalid text", "header\n\n\n\nAbc\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input))
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestParseWords(t *testing.T) {
	input := "words\n---\nalpha\n\nbeta \ngamma\n"
	words, err := ParseWords(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, words)

	_, err = ParseWords(strings.NewReader("h1\nh2\nBad\n"))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = ParseWords(strings.NewReader("only\n"))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plaintext1.txt")
	require.NoError(t, os.WriteFile(path, []byte(builtinText), 0o600))

	texts, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Builtin(), texts)

	_, err = Load(filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)
}

func TestWords(t *testing.T) {
	got := Words([]string{"a b a", "c b d"})
	assert.Equal(t, []string{"a", "b", "c", "d"}, got)

	all := Words(Builtin())
	assert.NotEmpty(t, all)
	for _, w := range all {
		assert.NotContains(t, w, " ")
	}
}
