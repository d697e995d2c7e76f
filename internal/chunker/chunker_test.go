package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitShortTextSingleChunk(t *testing.T) {
	chunks, err := Split("  hello campus  ", DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, []string{"hello campus"}, chunks)
}

func TestSplitEmptyText(t *testing.T) {
	chunks, err := Split("", DefaultConfig())
	require.NoError(t, err)
	assert.Empty(t, chunks)

	chunks, err = Split("     \n\t ", Config{ChunkSizeTokens: 1, OverlapTokens: 0})
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestWindowsAdvanceByStrideAndCoverText(t *testing.T) {
	cases := []struct {
		name   string
		length int
		cfg    Config
	}{
		{"exact multiple", 80, Config{ChunkSizeTokens: 5, OverlapTokens: 1}},
		{"ragged tail", 97, Config{ChunkSizeTokens: 5, OverlapTokens: 2}},
		{"no overlap", 33, Config{ChunkSizeTokens: 2, OverlapTokens: 0}},
		{"defaults", 10_000, DefaultConfig()},
		{"shorter than window", 7, Config{ChunkSizeTokens: 10, OverlapTokens: 3}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			text := strings.Repeat("x", tc.length)
			ws, err := Windows(text, tc.cfg)
			require.NoError(t, err)
			require.NotEmpty(t, ws)

			stride := (tc.cfg.ChunkSizeTokens - tc.cfg.OverlapTokens) * 4
			assert.Equal(t, 0, ws[0].Start)
			for i := 1; i < len(ws); i++ {
				assert.Equal(t, stride, ws[i].Start-ws[i-1].Start, "window %d", i)
			}

			covered := make([]bool, tc.length)
			for _, w := range ws {
				assert.LessOrEqual(t, w.End-w.Start, tc.cfg.ChunkSizeTokens*4)
				for i := w.Start; i < w.End; i++ {
					covered[i] = true
				}
			}
			for i, c := range covered {
				require.True(t, c, "offset %d not covered", i)
			}
			assert.Less(t, ws[len(ws)-1].Start, tc.length)
		})
	}
}

func TestSplitOverlapSharesText(t *testing.T) {
	text := "abcdefghijklmnopqrstuvwxyz0123456789"
	chunks, err := Split(text, Config{ChunkSizeTokens: 3, OverlapTokens: 1})
	require.NoError(t, err)

	// window 12 chars, stride 8
	require.Equal(t, []string{
		"abcdefghijkl",
		"ijklmnopqrst",
		"qrstuvwxyz01",
		"yz0123456789",
		"6789",
	}, chunks)
}

func TestSplitIsDeterministic(t *testing.T) {
	text := strings.Repeat("Admissions open in September. ", 300)
	first, err := Split(text, DefaultConfig())
	require.NoError(t, err)
	second, err := Split(text, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSplitDoesNotBreakRunes(t *testing.T) {
	text := strings.Repeat("日本語のテキスト", 20)
	chunks, err := Split(text, Config{ChunkSizeTokens: 2, OverlapTokens: 1})
	require.NoError(t, err)
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), 8)
		assert.True(t, strings.Contains(text, c))
	}
}

func TestInvalidConfigRejected(t *testing.T) {
	for _, cfg := range []Config{
		{ChunkSizeTokens: 10, OverlapTokens: 10},
		{ChunkSizeTokens: 10, OverlapTokens: 12},
		{ChunkSizeTokens: 0, OverlapTokens: 0},
		{ChunkSizeTokens: 10, OverlapTokens: -1},
	} {
		_, err := Split("some text", cfg)
		assert.ErrorIs(t, err, ErrInvalidConfig, "%+v", cfg)
	}
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc"))
	assert.Equal(t, 2, EstimateTokens("abcde"))
}
