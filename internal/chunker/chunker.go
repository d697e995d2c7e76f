// Package chunker splits extracted page text into overlapping fixed-size
// windows. Token counts are approximated as characters/4.
package chunker

import (
	"errors"
	"fmt"
	"strings"
)

const (
	CharsPerToken = 4

	DefaultChunkSizeTokens = 600
	DefaultOverlapTokens   = 80
)

var ErrInvalidConfig = errors.New("invalid chunk config")

type Config struct {
	ChunkSizeTokens int
	OverlapTokens   int
}

func DefaultConfig() Config {
	return Config{
		ChunkSizeTokens: DefaultChunkSizeTokens,
		OverlapTokens:   DefaultOverlapTokens,
	}
}

// Validate rejects configurations where the window would never advance.
func (c Config) Validate() error {
	if c.ChunkSizeTokens <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfig, c.ChunkSizeTokens)
	}
	if c.OverlapTokens < 0 {
		return fmt.Errorf("%w: overlap must not be negative, got %d", ErrInvalidConfig, c.OverlapTokens)
	}
	if c.OverlapTokens >= c.ChunkSizeTokens {
		return fmt.Errorf("%w: overlap %d must be less than chunk size %d", ErrInvalidConfig, c.OverlapTokens, c.ChunkSizeTokens)
	}
	return nil
}

// WindowChars is the window width in characters.
func (c Config) WindowChars() int {
	return c.ChunkSizeTokens * CharsPerToken
}

// StrideChars is how far each window start advances.
func (c Config) StrideChars() int {
	return (c.ChunkSizeTokens - c.OverlapTokens) * CharsPerToken
}

// Window is a half-open [Start, End) range of rune offsets into the text.
type Window struct {
	Start int
	End   int
}

// Windows returns the raw window offsets over text, before trimming.
func Windows(text string, cfg Config) ([]Window, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return windows(len([]rune(text)), cfg), nil
}

func windows(length int, cfg Config) []Window {
	size, stride := cfg.WindowChars(), cfg.StrideChars()

	var out []Window
	for start := 0; start < length; start += stride {
		end := start + size
		if end > length {
			end = length
		}
		out = append(out, Window{Start: start, End: end})
	}
	return out
}

// Split cuts text into trimmed, non-empty chunks in document order.
// Offsets are counted in runes so multibyte text is never cut mid-character.
func Split(text string, cfg Config) ([]string, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	runes := []rune(text)
	var chunks []string
	for _, w := range windows(len(runes), cfg) {
		chunk := strings.TrimSpace(string(runes[w.Start:w.End]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
	}
	return chunks, nil
}

// EstimateTokens returns the characters/4 token estimate used for sizing.
func EstimateTokens(text string) int {
	n := len([]rune(text))
	return (n + CharsPerToken - 1) / CharsPerToken
}
