//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/docsage/docsage/internal/api/handlers"
	"github.com/docsage/docsage/internal/api/middleware"
	"github.com/docsage/docsage/internal/domain"
	"github.com/docsage/docsage/internal/server"
	"github.com/docsage/docsage/internal/service"
	"github.com/docsage/docsage/internal/vectorindex"
)

const (
	testDim = 4

	tenantAKey = "ds_e2e_tenant_a"
	tenantBKey = "ds_e2e_tenant_b"
)

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T          *testing.T
	Ctx        context.Context
	Server     *httptest.Server
	HTTPClient *http.Client
	Store      *memStore
	Index      *vectorindex.FlatIndex
	LLM        *fakeLLM
}

// SetupE2EEnv wires the full pipeline behind a real HTTP server. Embeddings
// and completions come from deterministic fakes; the metadata store runs in
// memory with the same pending/committed semantics as the SQL store.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	store := newMemStore()

	index, err := vectorindex.NewFlatIndex(testDim)
	if err != nil {
		t.Fatalf("failed to create index: %v", err)
	}

	embedder := &fakeEmbedder{}
	llm := &fakeLLM{answer: "Guido van Rossum created Python in 1991."}

	ingestSvc := service.NewIngestService(store, index, embedder, service.DefaultChunkConfig())
	retriever := service.NewRetriever(embedder, index, store, service.DefaultRetrieverConfig())
	querySvc := service.NewQueryService(retriever, llm, service.DefaultQueryConfig())
	agent := service.NewAgent(retriever, llm, service.DefaultAgentConfig())

	validator := middleware.NewStaticKeyValidator(map[string]string{
		tenantAKey: "tenant-a",
		tenantBKey: "tenant-b",
	})

	router := server.NewRouter(server.RouterConfig{
		AuthValidator:   validator,
		DocumentHandler: handlers.NewDocumentHandler(ingestSvc, store),
		QueryHandler:    handlers.NewQueryHandler(retriever, querySvc, agent),
	})

	return &E2ETestEnv{
		T:          t,
		Ctx:        context.Background(),
		Server:     httptest.NewServer(router),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Store:      store,
		Index:      index,
		LLM:        llm,
	}
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.Server != nil {
		e.Server.Close()
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Data      json.RawMessage `json:"data"`
	Error     string          `json:"error,omitempty"`
	Retryable bool            `json:"retryable,omitempty"`
}

// Get performs a GET request
func (e *E2ETestEnv) Get(path, authToken string) (*APIResponse, error) {
	return e.doRequest("GET", path, nil, authToken)
}

// Post performs a POST request
func (e *E2ETestEnv) Post(path string, body interface{}, authToken string) (*APIResponse, error) {
	return e.doRequest("POST", path, body, authToken)
}

// Delete performs a DELETE request
func (e *E2ETestEnv) Delete(path, authToken string) (*APIResponse, error) {
	return e.doRequest("DELETE", path, nil, authToken)
}

// PostStatus performs a POST request and returns the raw status code and
// body, for tests that assert on error responses.
func (e *E2ETestEnv) PostStatus(path string, body interface{}, authToken string) (int, []byte) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		e.T.Fatalf("failed to marshal body: %v", err)
	}

	req, err := http.NewRequest("POST", e.Server.URL+path, bytes.NewReader(jsonData))
	if err != nil {
		e.T.Fatalf("failed to create request: %v", err)
	}
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		e.T.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		e.T.Fatalf("failed to read response: %v", err)
	}
	return resp.StatusCode, respBody
}

func (e *E2ETestEnv) doRequest(method, path string, body interface{}, authToken string) (*APIResponse, error) {
	url := e.Server.URL + path

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return nil, err
	}

	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var apiResp APIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
		}
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, apiResp.Error)
	}

	return &apiResp, nil
}

// fakeEmbedder maps texts to fixed topic vectors so distances in the index
// are exact and the relevance thresholds behave predictably.
type fakeEmbedder struct{}

func (f *fakeEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, t := range texts {
		vecs[i] = topicVector(t)
	}
	return vecs, nil
}

func topicVector(text string) []float32 {
	t := strings.ToLower(text)
	switch {
	case strings.Contains(t, "python"):
		return []float32{1, 0, 0, 0}
	case strings.Contains(t, "gopher"):
		return []float32{0, 1, 0, 0}
	default:
		return []float32{0, 0, 1, 0}
	}
}

// fakeLLM returns a canned completion, or the configured error.
type fakeLLM struct {
	mu     sync.Mutex
	answer string
	err    error
	calls  int
}

func (f *fakeLLM) Complete(ctx context.Context, prompt string, temperature float32, maxTokens int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

// Fail makes subsequent completions return err; pass nil to recover.
func (f *fakeLLM) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// Calls reports how many completions were requested.
func (f *fakeLLM) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// memStore is an in-memory MetadataStore with the same two-step commit and
// tenant scoping behavior as the SQL store.
type memStore struct {
	mu     sync.Mutex
	docs   map[string]*domain.Document
	chunks map[string][]domain.Chunk
}

func newMemStore() *memStore {
	return &memStore{
		docs:   make(map[string]*domain.Document),
		chunks: make(map[string][]domain.Chunk),
	}
}

func (m *memStore) PutDocument(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error {
	if err := domain.ValidateDocument(doc); err != nil {
		return domain.NewDomainErrorWithCause(domain.ErrCodeMetadataStore, "invalid document", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	d := *doc
	cs := make([]domain.Chunk, len(chunks))
	copy(cs, chunks)
	m.docs[d.ID] = &d
	m.chunks[d.ID] = cs
	return nil
}

func (m *memStore) CommitDocument(ctx context.Context, documentID string, slotStart int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[documentID]
	if !ok || doc.Status != domain.DocumentStatusPending {
		return domain.ErrDocumentNotFound
	}

	cs := m.chunks[documentID]
	for i := range cs {
		cs[i].SlotPosition = slotStart + cs[i].ChunkIndex
	}
	doc.SlotStart = slotStart
	doc.SlotEnd = slotStart + len(cs)
	doc.Status = domain.DocumentStatusCommitted
	return nil
}

func (m *memStore) DeletePending(ctx context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[documentID]
	if !ok || doc.Status != domain.DocumentStatusPending {
		return nil
	}
	delete(m.docs, documentID)
	delete(m.chunks, documentID)
	return nil
}

func (m *memStore) GetDocument(ctx context.Context, documentID, ownerID string) (*domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[documentID]
	if !ok || doc.Status != domain.DocumentStatusCommitted || doc.OwnerID != ownerID {
		return nil, domain.ErrDocumentNotFound
	}
	d := *doc
	return &d, nil
}

func (m *memStore) ListDocuments(ctx context.Context, ownerID string) ([]*domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	docs := make([]*domain.Document, 0)
	for _, doc := range m.docs {
		if doc.Status != domain.DocumentStatusCommitted || doc.OwnerID != ownerID {
			continue
		}
		d := *doc
		docs = append(docs, &d)
	}
	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.After(docs[j].CreatedAt)
		}
		return docs[i].ID < docs[j].ID
	})
	return docs, nil
}

func (m *memStore) GetChunksBySlots(ctx context.Context, positions []int, ownerID string) ([]*domain.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wanted := make(map[int]bool, len(positions))
	for _, p := range positions {
		wanted[p] = true
	}

	chunks := make([]*domain.Chunk, 0)
	for docID, cs := range m.chunks {
		doc := m.docs[docID]
		if doc == nil || doc.Status != domain.DocumentStatusCommitted || doc.OwnerID != ownerID {
			continue
		}
		for i := range cs {
			if wanted[cs[i].SlotPosition] {
				c := cs[i]
				chunks = append(chunks, &c)
			}
		}
	}
	return chunks, nil
}

func (m *memStore) DeleteDocument(ctx context.Context, documentID, ownerID string) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[documentID]
	if !ok || doc.OwnerID != ownerID {
		return nil, domain.ErrDocumentNotFound
	}

	freed := make([]int, 0)
	for _, c := range m.chunks[documentID] {
		if c.SlotPosition >= 0 {
			freed = append(freed, c.SlotPosition)
		}
	}
	delete(m.docs, documentID)
	delete(m.chunks, documentID)
	return freed, nil
}

func (m *memStore) ListCommittedChunks(ctx context.Context) ([]*domain.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	chunks := make([]*domain.Chunk, 0)
	for docID, cs := range m.chunks {
		doc := m.docs[docID]
		if doc == nil || doc.Status != domain.DocumentStatusCommitted {
			continue
		}
		for i := range cs {
			c := cs[i]
			chunks = append(chunks, &c)
		}
	}
	sort.Slice(chunks, func(i, j int) bool {
		return chunks[i].SlotPosition < chunks[j].SlotPosition
	})
	return chunks, nil
}
