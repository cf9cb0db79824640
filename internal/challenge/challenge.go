// Package challenge reads and writes challenge documents: a ciphertext, the
// five candidate plaintexts, and optional metadata about how it was made.
package challenge

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"plainid/internal/analysis"
)

//go:embed challenge.schema.json
var schemaJSON []byte

const schemaURL = "https://plainid.dev/schema/challenge-v1.schema.json"

var (
	// ErrInvalid is returned when a document does not match the schema.
	ErrInvalid = errors.New("invalid challenge")

	// ErrFormat is returned for an unsupported file extension.
	ErrFormat = errors.New("unsupported challenge format")
)

// Challenge is one identification task.
type Challenge struct {
	Ciphertext string   `json:"ciphertext" yaml:"ciphertext" toml:"ciphertext"`
	Candidates []string `json:"candidates" yaml:"candidates" toml:"candidates"`

	// SearchSpace overrides the engine's search space when non-zero.
	SearchSpace int `json:"search_space,omitempty" yaml:"search_space,omitempty" toml:"search_space,omitempty"`

	// Expected is the index of the true plaintext, when known.
	Expected *int `json:"expected,omitempty" yaml:"expected,omitempty" toml:"expected,omitempty"`

	// Key and Noise record how a synthetic challenge was generated.
	Key   string `json:"key,omitempty" yaml:"key,omitempty" toml:"key,omitempty"`
	Noise []int  `json:"noise,omitempty" yaml:"noise,omitempty" toml:"noise,omitempty"`
}

var compiled = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return compiler.Compile(schemaURL)
})

// Schema returns the embedded JSON Schema document.
func Schema() []byte {
	return append([]byte(nil), schemaJSON...)
}

// Format names the encoding chosen by a file extension: "json", "yaml" or
// "toml".
func Format(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json", nil
	case ".yaml", ".yml":
		return "yaml", nil
	case ".toml":
		return "toml", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrFormat, filepath.Ext(path))
	}
}

// Load reads and validates the challenge at path.
func Load(path string) (*Challenge, error) {
	format, err := Format(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read challenge: %w", err)
	}
	c, err := Decode(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return c, nil
}

// Decode parses data in the given format and validates it against the
// schema before mapping it onto a Challenge.
func Decode(data []byte, format string) (*Challenge, error) {
	var doc any
	switch format {
	case "json":
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode JSON: %w", err)
		}
	case "yaml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode YAML: %w", err)
		}
	case "toml":
		var m map[string]any
		if _, err := toml.Decode(string(data), &m); err != nil {
			return nil, fmt.Errorf("decode TOML: %w", err)
		}
		doc = m
	default:
		return nil, fmt.Errorf("%w: %q", ErrFormat, format)
	}

	// Normalise through JSON so every format validates the same value types.
	normalised, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("normalise document: %w", err)
	}
	var instance any
	if err := json.Unmarshal(normalised, &instance); err != nil {
		return nil, fmt.Errorf("normalise document: %w", err)
	}

	schema, err := compiled()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(instance); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	var c Challenge
	if err := json.Unmarshal(normalised, &c); err != nil {
		return nil, fmt.Errorf("decode challenge: %w", err)
	}
	return &c, nil
}

// Encode renders c in the given format.
func Encode(c *Challenge, format string) ([]byte, error) {
	switch format {
	case "json":
		data, err := json.MarshalIndent(c, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	case "yaml":
		return yaml.Marshal(c)
	case "toml":
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(c); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrFormat, format)
	}
}

// Save writes c to path, choosing the format by extension.
func Save(path string, c *Challenge) error {
	format, err := Format(path)
	if err != nil {
		return err
	}
	data, err := Encode(c, format)
	if err != nil {
		return fmt.Errorf("encode challenge: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create challenge directory: %w", err)
		}
	}
	return os.WriteFile(path, data, 0644)
}

// Options returns base with the challenge's search space applied.
func (c *Challenge) Options(base analysis.Options) analysis.Options {
	if c.SearchSpace > 0 {
		base.SearchSpace = c.SearchSpace
	}
	return base
}

// Check reports whether res names the expected candidate. known is false
// when the challenge carries no expectation; a result without an answer
// counts as wrong.
func (c *Challenge) Check(res *analysis.Result) (correct, known bool) {
	if c.Expected == nil {
		return false, false
	}
	idx, ok := res.Answer()
	if !ok {
		return false, true
	}
	return idx == *c.Expected, true
}

// Engine builds an analysis engine for the challenge, with base adjusted by
// Options.
func (c *Challenge) Engine(base analysis.Options) (*analysis.Engine, error) {
	return analysis.New(c.Ciphertext, c.Candidates, c.Options(base))
}
