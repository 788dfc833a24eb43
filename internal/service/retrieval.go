package service

import (
	"context"
	"log"
	"strings"

	"github.com/docsage/docsage/internal/domain"
	"github.com/docsage/docsage/internal/vectorindex"
)

const (
	// Over-fetch: tenant filtering discards hits that belong to other
	// owners, so the index is asked for more candidates than requested.
	defaultCandidateMultiplier = 4
	defaultMinCandidates       = 20
	defaultMaxCandidates       = 200
)

// SearchIndex is the read side of the vector index consumed by the
// retriever.
type SearchIndex interface {
	Search(query []float32, k int) ([]vectorindex.Hit, error)
}

// RetrieverConfig holds the retrieval policy knobs. The relevance transform
// and admission threshold are tunable configuration, not fixed truths.
type RetrieverConfig struct {
	// Temperature is the decay constant of the distance-to-relevance
	// transform exp(-distance/T).
	Temperature float64
	// MinRelevance is the retrieval-admission threshold; hits scoring below
	// it are dropped.
	MinRelevance float64
}

// DefaultRetrieverConfig provides the default retrieval policy.
func DefaultRetrieverConfig() RetrieverConfig {
	return RetrieverConfig{
		Temperature:  domain.DefaultRelevanceTemperature,
		MinRelevance: 0.85,
	}
}

// Retriever embeds a question, searches the vector index, joins hits with
// chunk metadata and applies relevance filtering and tenant scoping. Tenant
// isolation is enforced here, not assumed upstream.
type Retriever struct {
	embedder EmbeddingClient
	index    SearchIndex
	store    MetadataStore
	cfg      RetrieverConfig
}

// NewRetriever creates a new Retriever instance.
func NewRetriever(embedder EmbeddingClient, index SearchIndex, store MetadataStore, cfg RetrieverConfig) *Retriever {
	if cfg.Temperature <= 0 {
		cfg.Temperature = domain.DefaultRelevanceTemperature
	}
	return &Retriever{
		embedder: embedder,
		index:    index,
		store:    store,
		cfg:      cfg,
	}
}

// Retrieve returns up to k chunks relevant to the question, scoped to the
// owner, in ascending distance order. An empty result is valid data, not an
// error; downstream treats it as insufficient context.
func (r *Retriever) Retrieve(ctx context.Context, question, ownerID string, k int) ([]*domain.RetrievalResult, error) {
	if strings.TrimSpace(question) == "" {
		return nil, domain.ErrEmptyQuestion
	}
	if ownerID == "" {
		return nil, domain.ErrMissingRequiredField
	}
	if k <= 0 {
		return nil, domain.ErrInvalidK
	}

	queryVec, err := embedSingle(ctx, r.embedder, question)
	if err != nil {
		return nil, err
	}

	candidateLimit := k * defaultCandidateMultiplier
	if candidateLimit < defaultMinCandidates {
		candidateLimit = defaultMinCandidates
	}
	if candidateLimit > defaultMaxCandidates {
		candidateLimit = defaultMaxCandidates
	}

	hits, err := r.index.Search(queryVec, candidateLimit)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "vector index search failed", err)
	}
	if len(hits) == 0 {
		return []*domain.RetrievalResult{}, nil
	}

	positions := make([]int, len(hits))
	for i, h := range hits {
		positions[i] = h.Position
	}

	chunks, err := r.store.GetChunksBySlots(ctx, positions, ownerID)
	if err != nil {
		return nil, err
	}

	bySlot := make(map[int]*domain.Chunk, len(chunks))
	for _, c := range chunks {
		bySlot[c.SlotPosition] = c
	}

	results := make([]*domain.RetrievalResult, 0, k)
	for _, h := range hits {
		chunk, ok := bySlot[h.Position]
		if !ok {
			continue
		}
		if chunk.OwnerID != ownerID {
			// Cross-tenant rows must never surface past this boundary, even
			// if the store's own filtering misbehaves.
			log.Printf("retriever: dropped cross-tenant chunk %s at slot %d", chunk.ID, h.Position)
			continue
		}

		distance := float64(h.Distance)
		score := domain.RelevanceScore(distance, r.cfg.Temperature)
		if score < r.cfg.MinRelevance {
			continue
		}

		results = append(results, &domain.RetrievalResult{
			Chunk:     chunk,
			Distance:  distance,
			Relevance: score,
		})
		if len(results) == k {
			break
		}
	}

	return results, nil
}
