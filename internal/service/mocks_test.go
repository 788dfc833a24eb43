package service

import (
	"context"
	"fmt"

	"github.com/docsage/docsage/internal/domain"
	"github.com/docsage/docsage/internal/vectorindex"
	"github.com/stretchr/testify/mock"
)

// MockEmbeddingClient mocks the embedding adapter
type MockEmbeddingClient struct {
	mock.Mock
}

func (m *MockEmbeddingClient) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

// MockLLMClient mocks the completion service
type MockLLMClient struct {
	mock.Mock
}

func (m *MockLLMClient) Complete(ctx context.Context, prompt string, temperature float32, maxTokens int) (string, error) {
	args := m.Called(ctx, prompt, temperature, maxTokens)
	return args.String(0), args.Error(1)
}

// MockSearchIndex mocks the read side of the vector index
type MockSearchIndex struct {
	mock.Mock
}

func (m *MockSearchIndex) Search(query []float32, k int) ([]vectorindex.Hit, error) {
	args := m.Called(query, k)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]vectorindex.Hit), args.Error(1)
}

// MockVectorIndex mocks the write side of the vector index
type MockVectorIndex struct {
	mock.Mock
}

func (m *MockVectorIndex) InsertBatch(vecs [][]float32) (int, int, error) {
	args := m.Called(vecs)
	return args.Int(0), args.Int(1), args.Error(2)
}

func (m *MockVectorIndex) Invalidate(positions []int) {
	m.Called(positions)
}

func (m *MockVectorIndex) Dimension() int {
	args := m.Called()
	return args.Int(0)
}

func (m *MockVectorIndex) Len() int {
	args := m.Called()
	return args.Int(0)
}

// MockMetadataStore mocks the external document store
type MockMetadataStore struct {
	mock.Mock
}

func (m *MockMetadataStore) PutDocument(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error {
	args := m.Called(ctx, doc, chunks)
	return args.Error(0)
}

func (m *MockMetadataStore) CommitDocument(ctx context.Context, documentID string, slotStart int) error {
	args := m.Called(ctx, documentID, slotStart)
	return args.Error(0)
}

func (m *MockMetadataStore) DeletePending(ctx context.Context, documentID string) error {
	args := m.Called(ctx, documentID)
	return args.Error(0)
}

func (m *MockMetadataStore) GetDocument(ctx context.Context, documentID, ownerID string) (*domain.Document, error) {
	args := m.Called(ctx, documentID, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockMetadataStore) ListDocuments(ctx context.Context, ownerID string) ([]*domain.Document, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Document), args.Error(1)
}

func (m *MockMetadataStore) GetChunksBySlots(ctx context.Context, positions []int, ownerID string) ([]*domain.Chunk, error) {
	args := m.Called(ctx, positions, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Chunk), args.Error(1)
}

func (m *MockMetadataStore) DeleteDocument(ctx context.Context, documentID, ownerID string) ([]int, error) {
	args := m.Called(ctx, documentID, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int), args.Error(1)
}

func (m *MockMetadataStore) ListCommittedChunks(ctx context.Context) ([]*domain.Chunk, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Chunk), args.Error(1)
}

// MockRetriever mocks the agent's retrieval dependency
type MockRetriever struct {
	mock.Mock
}

func (m *MockRetriever) Retrieve(ctx context.Context, question, ownerID string, k int) ([]*domain.RetrievalResult, error) {
	args := m.Called(ctx, question, ownerID, k)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.RetrievalResult), args.Error(1)
}

// fixedUUIDGen yields a deterministic sequence of ids
type fixedUUIDGen struct {
	prefix string
	n      int
}

func (g *fixedUUIDGen) NewString() string {
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
