package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/docsage/docsage/internal/api"
	"github.com/docsage/docsage/internal/api/middleware"
	"github.com/docsage/docsage/internal/domain"
	"github.com/docsage/docsage/internal/service"
)

// maxK bounds the per-request chunk count.
const maxK = 20

type SearchService interface {
	Retrieve(ctx context.Context, question, ownerID string, k int) ([]*domain.RetrievalResult, error)
}

type AnswerService interface {
	Answer(ctx context.Context, question, ownerID string, k int) (*service.ComposedAnswer, error)
}

type AgentService interface {
	Run(ctx context.Context, question, ownerID string, k int) (*service.AgentResult, error)
}

type QueryHandler struct {
	retriever SearchService
	query     AnswerService
	agent     AgentService
}

func NewQueryHandler(retriever SearchService, query AnswerService, agent AgentService) *QueryHandler {
	return &QueryHandler{retriever: retriever, query: query, agent: agent}
}

type QueryRequest struct {
	Question string `json:"question"`
	K        int    `json:"k,omitempty"`
}

type SearchResultResponse struct {
	Text       string  `json:"text"`
	Filename   string  `json:"filename"`
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	StartChar  int     `json:"start_char"`
	EndChar    int     `json:"end_char"`
	Distance   float64 `json:"distance"`
	Relevance  float64 `json:"relevance_score"`
}

type SearchResponse struct {
	Results []*SearchResultResponse `json:"results"`
}

type AnswerResponse struct {
	Answer  string           `json:"answer"`
	Sources []service.Source `json:"sources"`
}

type AgentResponse struct {
	Answer  string           `json:"answer"`
	Phase   string           `json:"phase"`
	Trace   []string         `json:"trace"`
	Sources []service.Source `json:"sources"`
}

func decodeQueryRequest(w http.ResponseWriter, r *http.Request) (*QueryRequest, bool) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}
	if req.Question == "" {
		api.HandleError(w, domain.ErrEmptyQuestion)
		return nil, false
	}
	if req.K < 0 || req.K > maxK {
		api.HandleError(w, domain.ErrInvalidK)
		return nil, false
	}
	return &req, true
}

func (h *QueryHandler) Search(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.GetOwnerID(r.Context())
	if ownerID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	req, ok := decodeQueryRequest(w, r)
	if !ok {
		return
	}

	k := req.K
	if k == 0 {
		k = service.DefaultQueryConfig().K
	}

	results, err := h.retriever.Retrieve(r.Context(), req.Question, ownerID, k)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*SearchResultResponse, 0, len(results))
	for _, res := range results {
		if res == nil || res.Chunk == nil {
			continue
		}
		responses = append(responses, &SearchResultResponse{
			Text:       res.Chunk.Text,
			Filename:   res.Chunk.Filename,
			DocumentID: res.Chunk.DocumentID,
			ChunkIndex: res.Chunk.ChunkIndex,
			StartChar:  res.Chunk.StartChar,
			EndChar:    res.Chunk.EndChar,
			Distance:   res.Distance,
			Relevance:  res.Relevance,
		})
	}

	api.Success(w, http.StatusOK, SearchResponse{Results: responses})
}

func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.GetOwnerID(r.Context())
	if ownerID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	req, ok := decodeQueryRequest(w, r)
	if !ok {
		return
	}

	answer, err := h.query.Answer(r.Context(), req.Question, ownerID, req.K)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, AnswerResponse{
		Answer:  answer.Answer,
		Sources: answer.Sources,
	})
}

func (h *QueryHandler) AgentQuery(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.GetOwnerID(r.Context())
	if ownerID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	req, ok := decodeQueryRequest(w, r)
	if !ok {
		return
	}

	result, err := h.agent.Run(r.Context(), req.Question, ownerID, req.K)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, AgentResponse{
		Answer:  result.Answer,
		Phase:   string(result.Phase),
		Trace:   result.Trace,
		Sources: service.ComposeSources(result.Results),
	})
}
