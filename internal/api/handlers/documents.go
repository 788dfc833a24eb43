package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/docsage/docsage/internal/api"
	"github.com/docsage/docsage/internal/api/middleware"
	"github.com/docsage/docsage/internal/domain"
	"github.com/docsage/docsage/internal/service"
)

type IngestionService interface {
	Ingest(ctx context.Context, input service.IngestInput) (*service.IngestOutput, error)
	Delete(ctx context.Context, documentID, ownerID string) error
}

type DocumentReader interface {
	GetDocument(ctx context.Context, documentID, ownerID string) (*domain.Document, error)
	ListDocuments(ctx context.Context, ownerID string) ([]*domain.Document, error)
}

type DocumentHandler struct {
	svc   IngestionService
	store DocumentReader
}

func NewDocumentHandler(svc IngestionService, store DocumentReader) *DocumentHandler {
	return &DocumentHandler{svc: svc, store: store}
}

type IngestRequest struct {
	Filename string `json:"filename"`
	Text     string `json:"text"`
}

type IngestResponse struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	ChunkCount int    `json:"chunk_count"`
}

type DocumentResponse struct {
	ID            string `json:"id"`
	Filename      string `json:"filename"`
	ContentLength int    `json:"content_length"`
	ChunkCount    int    `json:"chunk_count"`
	CreatedAt     string `json:"created_at"`
}

type DocumentListResponse struct {
	Documents []*DocumentResponse `json:"documents"`
}

func (h *DocumentHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.GetOwnerID(r.Context())
	if ownerID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Filename == "" {
		api.Error(w, http.StatusBadRequest, "filename is required")
		return
	}

	output, err := h.svc.Ingest(r.Context(), service.IngestInput{
		OwnerID:  ownerID,
		Filename: req.Filename,
		Text:     req.Text,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, IngestResponse{
		DocumentID: output.DocumentID,
		Filename:   output.Filename,
		ChunkCount: output.ChunkCount,
	})
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.GetOwnerID(r.Context())
	if ownerID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id := chi.URLParam(r, "id")
	doc, err := h.store.GetDocument(r.Context(), id, ownerID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, documentResponse(doc))
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.GetOwnerID(r.Context())
	if ownerID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	docs, err := h.store.ListDocuments(r.Context(), ownerID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*DocumentResponse, len(docs))
	for i, doc := range docs {
		responses[i] = documentResponse(doc)
	}

	api.Success(w, http.StatusOK, DocumentListResponse{Documents: responses})
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.GetOwnerID(r.Context())
	if ownerID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.svc.Delete(r.Context(), id, ownerID); err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func documentResponse(doc *domain.Document) *DocumentResponse {
	return &DocumentResponse{
		ID:            doc.ID,
		Filename:      doc.Filename,
		ContentLength: doc.ContentLength,
		ChunkCount:    doc.ChunkCount,
		CreatedAt:     doc.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}
