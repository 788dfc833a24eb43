package service

import (
	"context"
)

// QueryConfig holds the single-shot query policy.
type QueryConfig struct {
	// K is the default number of chunks retrieved when the caller does not
	// specify one.
	K int
	// Temperature is the LLM sampling temperature.
	Temperature float32
	// MaxTokens bounds the completion length.
	MaxTokens int
}

// DefaultQueryConfig provides the default query policy.
func DefaultQueryConfig() QueryConfig {
	return QueryConfig{
		K:           5,
		Temperature: 0.1,
		MaxTokens:   512,
	}
}

// QueryService runs the plain retrieve-then-generate pipeline without the
// agent's explicit reasoning trace. The same grounding rules apply: the
// model only ever sees retrieved chunk texts, and an empty retrieval set
// yields the fixed refusal instead of a generation call.
type QueryService struct {
	retriever ChunkRetriever
	llm       LLMClient
	cfg       QueryConfig
}

// NewQueryService creates a new QueryService instance.
func NewQueryService(retriever ChunkRetriever, llm LLMClient, cfg QueryConfig) *QueryService {
	if cfg.K <= 0 {
		cfg.K = DefaultQueryConfig().K
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultQueryConfig().MaxTokens
	}
	return &QueryService{
		retriever: retriever,
		llm:       llm,
		cfg:       cfg,
	}
}

// Answer retrieves context for the question and generates a grounded
// answer with citations.
func (s *QueryService) Answer(ctx context.Context, question, ownerID string, k int) (*ComposedAnswer, error) {
	if k <= 0 {
		k = s.cfg.K
	}

	results, err := s.retriever.Retrieve(ctx, question, ownerID, k)
	if err != nil {
		return nil, err
	}

	if len(results) == 0 {
		return ComposeAnswer(RefusalAnswer, nil), nil
	}

	contexts := make([]string, len(results))
	for i, r := range results {
		contexts[i] = r.Chunk.Text
	}

	answer, err := s.llm.Complete(ctx, buildGroundedPrompt(question, contexts), s.cfg.Temperature, s.cfg.MaxTokens)
	if err != nil {
		return nil, err
	}

	return ComposeAnswer(answer, results), nil
}
