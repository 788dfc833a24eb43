package service

import (
	"context"

	"github.com/docsage/docsage/internal/domain"
)

// EmbeddingClient defines the interface for generating embeddings. One
// vector is returned per input text, in input order, all with the fixed
// deployment dimension. Implementations report transport failures and
// malformed output as domain.ErrEmbeddingUnavailable.
type EmbeddingClient interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// LLMClient defines the interface for text completion against the external
// language model. Unavailability and timeouts surface as
// domain.ErrLLMUnavailable.
type LLMClient interface {
	Complete(ctx context.Context, prompt string, temperature float32, maxTokens int) (string, error)
}

// embedSingle embeds one text through the batch interface.
func embedSingle(ctx context.Context, client EmbeddingClient, text string) ([]float32, error) {
	vecs, err := client.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, domain.NewDomainError(domain.ErrCodeEmbeddingUnavailable, "embedding service returned wrong result count")
	}
	return vecs[0], nil
}
