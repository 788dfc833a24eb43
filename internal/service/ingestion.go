package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/docsage/docsage/internal/domain"
	"github.com/google/uuid"
)

// VectorIndex is the write side of the vector index consumed by ingestion.
type VectorIndex interface {
	InsertBatch(vecs [][]float32) (start, count int, err error)
	Invalidate(positions []int)
	Dimension() int
	Len() int
}

// ArchiveStore optionally keeps the raw document text in object storage so
// documents can be re-chunked and re-embedded later.
type ArchiveStore interface {
	PutObject(ctx context.Context, key string, body []byte, contentType string) error
}

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}

// IngestInput is one document to ingest.
type IngestInput struct {
	OwnerID  string
	Filename string
	Text     string
}

// IngestOutput reports an ingested document: its id, chunk count and the
// contiguous vector index slot range [SlotStart, SlotEnd) it claimed.
type IngestOutput struct {
	DocumentID string
	Filename   string
	ChunkCount int
	SlotStart  int
	SlotEnd    int
}

// IngestService turns raw document text into committed chunks and index
// vectors. Ingestion is all-or-nothing per document: the two-step commit
// writes metadata as pending, inserts vectors, then marks the metadata
// committed; any failure rolls the partial write back.
type IngestService struct {
	store    MetadataStore
	index    VectorIndex
	embedder EmbeddingClient
	archive  ArchiveStore // optional
	chunkCfg ChunkConfig
	uuidGen  UUIDGenerator
}

// NewIngestService creates a new IngestService instance.
func NewIngestService(store MetadataStore, index VectorIndex, embedder EmbeddingClient, chunkCfg ChunkConfig) *IngestService {
	return &IngestService{
		store:    store,
		index:    index,
		embedder: embedder,
		chunkCfg: chunkCfg,
		uuidGen:  &DefaultUUIDGenerator{},
	}
}

// WithArchive enables raw-text archival to object storage.
func (s *IngestService) WithArchive(archive ArchiveStore) *IngestService {
	s.archive = archive
	return s
}

// WithUUIDGenerator overrides UUID generation (for testing).
func (s *IngestService) WithUUIDGenerator(gen UUIDGenerator) *IngestService {
	s.uuidGen = gen
	return s
}

// Ingest chunks, embeds and stores one document. A document that chunks to
// nothing is committed with an empty slot range; that is not an error.
func (s *IngestService) Ingest(ctx context.Context, input IngestInput) (*IngestOutput, error) {
	if input.OwnerID == "" || input.Filename == "" {
		return nil, domain.ErrMissingRequiredField
	}

	spans, err := SplitText(input.Text, s.chunkCfg)
	if err != nil {
		return nil, err
	}

	docID := s.uuidGen.NewString()
	if len(spans) == 0 {
		// A document that chunks to nothing is still recorded, with an
		// empty slot range, so the returned id resolves.
		doc := &domain.Document{
			ID:            docID,
			OwnerID:       input.OwnerID,
			Filename:      input.Filename,
			ContentLength: len([]rune(input.Text)),
			Status:        domain.DocumentStatusPending,
			CreatedAt:     time.Now().UTC(),
		}
		if err := s.store.PutDocument(ctx, doc, nil); err != nil {
			return nil, err
		}
		if err := s.store.CommitDocument(ctx, docID, -1); err != nil {
			s.rollbackPending(ctx, docID, nil)
			return nil, err
		}
		return &IngestOutput{DocumentID: docID, Filename: input.Filename, SlotStart: -1, SlotEnd: -1}, nil
	}

	texts := make([]string, len(spans))
	for i, span := range spans {
		texts[i] = span.Text
	}

	// Embed before any write so an unavailable embedding service leaves no
	// partial state behind.
	vectors, err := s.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, err
	}
	for _, v := range vectors {
		if len(v) != s.index.Dimension() {
			return nil, domain.NewDomainError(domain.ErrCodeEmbeddingUnavailable,
				fmt.Sprintf("embedding has wrong dimensions: got %d, want %d", len(v), s.index.Dimension()))
		}
	}

	now := time.Now().UTC()
	doc := &domain.Document{
		ID:            docID,
		OwnerID:       input.OwnerID,
		Filename:      input.Filename,
		ContentLength: len([]rune(input.Text)),
		ChunkCount:    len(spans),
		Status:        domain.DocumentStatusPending,
		CreatedAt:     now,
	}

	chunks := make([]domain.Chunk, len(spans))
	for i, span := range spans {
		chunks[i] = domain.Chunk{
			ID:           s.uuidGen.NewString(),
			DocumentID:   docID,
			OwnerID:      input.OwnerID,
			Filename:     input.Filename,
			ChunkIndex:   span.Index,
			Text:         span.Text,
			StartChar:    span.StartChar,
			EndChar:      span.EndChar,
			SlotPosition: -1, // assigned at commit
			Embedding:    vectors[i],
			CreatedAt:    now,
		}
	}

	// Step 1: metadata first, in pending status. A crash after this point
	// leaves a recoverable orphan rather than a silent inconsistency.
	if err := s.store.PutDocument(ctx, doc, chunks); err != nil {
		return nil, err
	}

	// Step 2: claim a contiguous slot range in the index.
	slotStart, slotCount, err := s.index.InsertBatch(vectors)
	if err != nil {
		s.rollbackPending(ctx, docID, nil)
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "vector index insert failed", err)
	}

	// Step 3: assign slot positions and mark committed. On failure the
	// inserted vectors are tombstoned (compensating delete) so index and
	// store stay consistent.
	if err := s.store.CommitDocument(ctx, docID, slotStart); err != nil {
		positions := make([]int, slotCount)
		for i := range positions {
			positions[i] = slotStart + i
		}
		s.rollbackPending(ctx, docID, positions)
		return nil, err
	}

	if s.archive != nil {
		key := fmt.Sprintf("%s/%s/raw.txt", input.OwnerID, docID)
		if err := s.archive.PutObject(ctx, key, []byte(input.Text), "text/plain"); err != nil {
			log.Printf("ingest: raw text archive failed for document %s: %v", docID, err)
		}
	}

	return &IngestOutput{
		DocumentID: docID,
		Filename:   input.Filename,
		ChunkCount: len(spans),
		SlotStart:  slotStart,
		SlotEnd:    slotStart + slotCount,
	}, nil
}

// Delete removes a document as a whole unit: chunk rows cascade and the
// freed index slots are invalidated.
func (s *IngestService) Delete(ctx context.Context, documentID, ownerID string) error {
	positions, err := s.store.DeleteDocument(ctx, documentID, ownerID)
	if err != nil {
		return err
	}
	s.index.Invalidate(positions)
	return nil
}

func (s *IngestService) rollbackPending(ctx context.Context, docID string, positions []int) {
	if len(positions) > 0 {
		s.index.Invalidate(positions)
	}
	if err := s.store.DeletePending(ctx, docID); err != nil {
		// The document is still pending, so recovery on the next startup
		// will clean it up.
		log.Printf("ingest: rollback of pending document %s failed: %v", docID, err)
	}
}

// ReconcileIndex brings the vector index in line with committed chunk
// metadata. An empty index is rebuilt in full. An index restored from a
// snapshot that predates the latest commits is topped up so every committed
// chunk's slot position resolves to its vector and the next insert claims a
// fresh slot. Slots whose chunks are gone from the store, whether deleted
// documents or deletions the snapshot missed, become tombstones so surviving
// positions stay identical.
func ReconcileIndex(ctx context.Context, store MetadataStore, index VectorIndex) error {
	chunks, err := store.ListCommittedChunks(ctx)
	if err != nil {
		return err
	}

	loaded := index.Len()
	total := loaded
	if len(chunks) > 0 {
		if end := chunks[len(chunks)-1].SlotPosition + 1; end > total {
			total = end
		}
	}
	if total == 0 {
		return nil
	}

	occupied := make([]bool, total)
	vectors := make([][]float32, total-loaded)
	for _, c := range chunks {
		if c.SlotPosition < 0 || c.SlotPosition >= total {
			return fmt.Errorf("chunk %s has slot position %d outside reconcile range", c.ID, c.SlotPosition)
		}
		if len(c.Embedding) != index.Dimension() {
			return fmt.Errorf("chunk %s embedding dimension %d does not match index dimension %d",
				c.ID, len(c.Embedding), index.Dimension())
		}
		occupied[c.SlotPosition] = true
		if c.SlotPosition >= loaded {
			vectors[c.SlotPosition-loaded] = c.Embedding
		}
	}

	var gaps []int
	for pos := 0; pos < total; pos++ {
		if !occupied[pos] {
			gaps = append(gaps, pos)
			if pos >= loaded {
				vectors[pos-loaded] = make([]float32, index.Dimension())
			}
		}
	}

	if len(vectors) > 0 {
		start, _, err := index.InsertBatch(vectors)
		if err != nil {
			return fmt.Errorf("failed to reconcile index: %w", err)
		}
		if start != loaded {
			return fmt.Errorf("index reconcile expected to claim slot %d, claimed %d", loaded, start)
		}
	}
	index.Invalidate(gaps)

	log.Printf("index reconciled: %d committed chunks, %d slots appended, %d tombstoned",
		len(chunks), total-loaded, len(gaps))
	return nil
}
