package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/docsage/docsage/internal/api/handlers"
	"github.com/docsage/docsage/internal/api/middleware"
	"github.com/docsage/docsage/internal/domain"
	"github.com/docsage/docsage/internal/service"
)

type MockSearchService struct {
	mock.Mock
}

func (m *MockSearchService) Retrieve(ctx context.Context, question, ownerID string, k int) ([]*domain.RetrievalResult, error) {
	args := m.Called(ctx, question, ownerID, k)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.RetrievalResult), args.Error(1)
}

type MockIngestionService struct {
	mock.Mock
}

func (m *MockIngestionService) Ingest(ctx context.Context, input service.IngestInput) (*service.IngestOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.IngestOutput), args.Error(1)
}

func (m *MockIngestionService) Delete(ctx context.Context, documentID, ownerID string) error {
	args := m.Called(ctx, documentID, ownerID)
	return args.Error(0)
}

func newTestRouter(ingest *MockIngestionService, search *MockSearchService) http.Handler {
	validator := middleware.NewStaticKeyValidator(map[string]string{"test-key": "tenant-a"})
	return NewRouter(RouterConfig{
		AuthValidator:   validator,
		DocumentHandler: handlers.NewDocumentHandler(ingest, nil),
		QueryHandler:    handlers.NewQueryHandler(search, nil, nil),
	})
}

func TestRouter_Health(t *testing.T) {
	router := newTestRouter(new(MockIngestionService), new(MockSearchService))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestRouter_RequiresAuth(t *testing.T) {
	router := newTestRouter(new(MockIngestionService), new(MockSearchService))

	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_IngestRoute(t *testing.T) {
	ingest := new(MockIngestionService)
	ingest.On("Ingest", mock.Anything, mock.MatchedBy(func(input service.IngestInput) bool {
		return input.OwnerID == "tenant-a" && input.Filename == "notes.txt"
	})).Return(&service.IngestOutput{DocumentID: "d-1", Filename: "notes.txt", ChunkCount: 1}, nil)

	router := newTestRouter(ingest, new(MockSearchService))

	body, _ := json.Marshal(map[string]string{"filename": "notes.txt", "text": "hello"})
	req := httptest.NewRequest(http.MethodPost, "/documents", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer test-key")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	ingest.AssertExpectations(t)
}

func TestRouter_SearchRoute(t *testing.T) {
	search := new(MockSearchService)
	search.On("Retrieve", mock.Anything, "question", "tenant-a", 5).Return([]*domain.RetrievalResult{}, nil)

	router := newTestRouter(new(MockIngestionService), search)

	body, _ := json.Marshal(map[string]string{"question": "question"})
	req := httptest.NewRequest(http.MethodPost, "/search", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer test-key")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	search.AssertExpectations(t)
}

func TestRouter_RequestIDHeader(t *testing.T) {
	router := newTestRouter(new(MockIngestionService), new(MockSearchService))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	require.NotEmpty(t, w.Header().Get("X-Request-ID"))
}
