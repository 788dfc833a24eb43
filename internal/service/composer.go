package service

import (
	"fmt"

	"github.com/docsage/docsage/internal/domain"
)

// sourceDisplayMaxChars bounds chunk text in composed sources.
const sourceDisplayMaxChars = 200

// Source is one citation in a composed answer.
type Source struct {
	Text       string  `json:"text"`
	Filename   string  `json:"filename"`
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	StartChar  int     `json:"start_char"`
	EndChar    int     `json:"end_char"`
	Distance   float64 `json:"distance"`
	Relevance  float64 `json:"relevance_score"`
	Citation   string  `json:"citation"`
}

// ComposedAnswer is the final answer text with its structured citations.
type ComposedAnswer struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// ComposeAnswer assembles the final response from the generated answer text
// and the retrieval results backing it, in the supplied order.
func ComposeAnswer(answer string, results []*domain.RetrievalResult) *ComposedAnswer {
	return &ComposedAnswer{
		Answer:  answer,
		Sources: ComposeSources(results),
	}
}

// ComposeSources builds the citation list. Rank in the citation string is
// 1-based and follows the supplied order.
func ComposeSources(results []*domain.RetrievalResult) []Source {
	sources := make([]Source, 0, len(results))
	for _, r := range results {
		if r == nil || r.Chunk == nil {
			continue
		}
		c := r.Chunk
		rank := len(sources) + 1

		text := c.Text
		if len([]rune(text)) > sourceDisplayMaxChars {
			text = string([]rune(text)[:sourceDisplayMaxChars]) + "..."
		}

		sources = append(sources, Source{
			Text:       text,
			Filename:   c.Filename,
			DocumentID: c.DocumentID,
			ChunkIndex: c.ChunkIndex,
			StartChar:  c.StartChar,
			EndChar:    c.EndChar,
			Distance:   r.Distance,
			Relevance:  r.Relevance,
			Citation: fmt.Sprintf("[%d] %s (Chunk %d, Chars %d-%d)",
				rank, c.Filename, c.ChunkIndex, c.StartChar, c.EndChar),
		})
	}
	return sources
}
