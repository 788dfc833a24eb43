package service

import (
	"context"

	"github.com/docsage/docsage/internal/domain"
)

// MetadataStore is the narrow interface to the external document store the
// core reads and writes through. Implementations report failures as
// METADATA_STORE_ERROR domain errors, which are retryable at the ingestion
// transaction boundary.
type MetadataStore interface {
	// PutDocument writes a document record and its chunk records in one
	// transaction. Chunks carry no slot positions yet; the document stays in
	// pending status until CommitDocument.
	PutDocument(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error

	// CommitDocument assigns the contiguous slot range claimed in the vector
	// index (position = slotStart + chunk index) and flips the document to
	// committed, in one transaction.
	CommitDocument(ctx context.Context, documentID string, slotStart int) error

	// DeletePending removes a pending document and its chunks, the rollback
	// path of a failed two-step commit.
	DeletePending(ctx context.Context, documentID string) error

	// GetDocument returns a committed document scoped to its owner.
	GetDocument(ctx context.Context, documentID, ownerID string) (*domain.Document, error)

	// ListDocuments returns the owner's committed documents, newest first.
	ListDocuments(ctx context.Context, ownerID string) ([]*domain.Document, error)

	// GetChunksBySlots resolves vector index slot positions to chunks,
	// filtered to the matching owner. Missing positions are skipped.
	GetChunksBySlots(ctx context.Context, positions []int, ownerID string) ([]*domain.Chunk, error)

	// DeleteDocument removes a document and all its chunks as a unit and
	// returns the vector index slot positions that must be invalidated.
	DeleteDocument(ctx context.Context, documentID, ownerID string) ([]int, error)

	// ListCommittedChunks returns every committed chunk with its embedding,
	// ordered by slot position, for index rebuilds.
	ListCommittedChunks(ctx context.Context) ([]*domain.Chunk, error)
}
