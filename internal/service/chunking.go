package service

import (
	"strings"
	"unicode"

	"github.com/docsage/docsage/internal/domain"
)

// ChunkConfig controls document chunking for embeddings.
type ChunkConfig struct {
	ChunkSize int
	Overlap   int
}

// DefaultChunkConfig provides sane defaults for chunking.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		ChunkSize: 500,
		Overlap:   50,
	}
}

// Validate checks the chunking parameters.
func (c ChunkConfig) Validate() error {
	if c.ChunkSize <= 0 || c.Overlap <= 0 || c.Overlap >= c.ChunkSize {
		return domain.ErrInvalidChunkParams
	}
	return nil
}

// ChunkSpan is one segment of a document's text. Offsets are rune positions
// into the original text with StartChar < EndChar; consecutive spans overlap
// by the configured overlap.
type ChunkSpan struct {
	Text      string
	Index     int
	StartChar int
	EndChar   int
}

// boundaryLookbackDivisor bounds how far back from the raw cut point the
// splitter searches for a sentence or paragraph boundary.
const boundaryLookbackDivisor = 4

// SplitText splits text into overlapping, boundary-aware spans. The split is
// deterministic for identical inputs. Empty or all-whitespace text yields no
// spans; text shorter than the chunk size yields a single span covering it.
func SplitText(text string, cfg ChunkConfig) ([]ChunkSpan, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	runes := []rune(text)
	spans := make([]ChunkSpan, 0, len(runes)/cfg.ChunkSize+1)
	start := 0

	for start < len(runes) {
		end := start + cfg.ChunkSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = cutPoint(runes, start, end, cfg.ChunkSize/boundaryLookbackDivisor)
		}

		segment := strings.TrimSpace(string(runes[start:end]))
		if segment != "" {
			spans = append(spans, ChunkSpan{
				Text:      segment,
				Index:     len(spans),
				StartChar: start,
				EndChar:   end,
			})
		}

		if end >= len(runes) {
			break
		}

		next := end - cfg.Overlap
		if next <= start {
			next = end
		}
		start = next
	}

	return spans, nil
}

// cutPoint searches backward from the raw window end for the nearest
// sentence- or paragraph-terminating boundary, falling back to the nearest
// space, and finally to the raw position when the lookback window holds no
// boundary at all.
func cutPoint(runes []rune, start, end, lookback int) int {
	floor := end - lookback
	if floor < start+1 {
		floor = start + 1
	}

	for i := end; i > floor; i-- {
		r := runes[i-1]
		if r == '\n' {
			return i
		}
		if isSentenceTerminator(r) && i < len(runes) && unicode.IsSpace(runes[i]) {
			return i
		}
	}

	for i := end; i > floor; i-- {
		if unicode.IsSpace(runes[i-1]) {
			return i
		}
	}

	return end
}

func isSentenceTerminator(r rune) bool {
	switch r {
	case '.', '!', '?':
		return true
	}
	return false
}
