package service

import (
	"strings"
	"testing"

	"github.com/docsage/docsage/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitText_InvalidParams(t *testing.T) {
	tests := []struct {
		name string
		cfg  ChunkConfig
	}{
		{"zero chunk size", ChunkConfig{ChunkSize: 0, Overlap: 10}},
		{"zero overlap", ChunkConfig{ChunkSize: 100, Overlap: 0}},
		{"negative overlap", ChunkConfig{ChunkSize: 100, Overlap: -1}},
		{"overlap equals chunk size", ChunkConfig{ChunkSize: 100, Overlap: 100}},
		{"overlap exceeds chunk size", ChunkConfig{ChunkSize: 100, Overlap: 150}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := SplitText("some text", tt.cfg)
			assert.ErrorIs(t, err, domain.ErrInvalidChunkParams)
		})
	}
}

func TestSplitText_EmptyText(t *testing.T) {
	spans, err := SplitText("", DefaultChunkConfig())
	require.NoError(t, err)
	assert.Empty(t, spans)

	spans, err = SplitText("   \n\t  ", DefaultChunkConfig())
	require.NoError(t, err)
	assert.Empty(t, spans)
}

func TestSplitText_ShortText_SingleSpan(t *testing.T) {
	text := "A short document."
	spans, err := SplitText(text, DefaultChunkConfig())
	require.NoError(t, err)

	require.Len(t, spans, 1)
	assert.Equal(t, text, spans[0].Text)
	assert.Equal(t, 0, spans[0].Index)
	assert.Equal(t, 0, spans[0].StartChar)
	assert.Equal(t, len([]rune(text)), spans[0].EndChar)
}

func TestSplitText_OverlapProperty(t *testing.T) {
	cfg := ChunkConfig{ChunkSize: 100, Overlap: 20}
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 40)

	spans, err := SplitText(text, cfg)
	require.NoError(t, err)
	require.Greater(t, len(spans), 2)

	for i := 0; i < len(spans)-1; i++ {
		assert.Equal(t, cfg.Overlap, spans[i].EndChar-spans[i+1].StartChar,
			"spans %d and %d must overlap by exactly %d", i, i+1, cfg.Overlap)
	}
}

func TestSplitText_Deterministic(t *testing.T) {
	cfg := ChunkConfig{ChunkSize: 80, Overlap: 15}
	text := strings.Repeat("Sentences end here. More words follow! Question? Yes.\n", 30)

	first, err := SplitText(text, cfg)
	require.NoError(t, err)
	second, err := SplitText(text, cfg)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestSplitText_PrefersSentenceBoundary(t *testing.T) {
	// First sentence ends within the lookback window of the raw cut, so the
	// cut lands right after the terminator rather than mid-word.
	text := "This sentence ends here. The following one keeps going for a while longer than the window."
	spans, err := SplitText(text, ChunkConfig{ChunkSize: 30, Overlap: 5})
	require.NoError(t, err)

	require.NotEmpty(t, spans)
	assert.Equal(t, "This sentence ends here.", spans[0].Text)
}

func TestSplitText_OffsetsWithinText(t *testing.T) {
	cfg := ChunkConfig{ChunkSize: 60, Overlap: 10}
	text := strings.Repeat("Words and more words flow on without any stop ", 20)
	total := len([]rune(text))

	spans, err := SplitText(text, cfg)
	require.NoError(t, err)
	require.NotEmpty(t, spans)

	for _, s := range spans {
		assert.GreaterOrEqual(t, s.StartChar, 0)
		assert.Less(t, s.StartChar, s.EndChar)
		assert.LessOrEqual(t, s.EndChar, total)
	}
	assert.Equal(t, total, spans[len(spans)-1].EndChar)
}

func TestSplitText_IndexesAreSequential(t *testing.T) {
	cfg := ChunkConfig{ChunkSize: 50, Overlap: 10}
	text := strings.Repeat("Some content here. ", 30)

	spans, err := SplitText(text, cfg)
	require.NoError(t, err)

	for i, s := range spans {
		assert.Equal(t, i, s.Index)
	}
}
