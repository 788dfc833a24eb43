// Package repository implements the metadata store on PostgreSQL with
// pgvector, keeping chunk embeddings alongside chunk records so the
// in-memory vector index can be rebuilt from durable state.
package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/docsage/docsage/internal/domain"
)

// Store persists documents and chunks. It satisfies service.MetadataStore.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func storeErr(op string, err error) error {
	return domain.NewDomainErrorWithCause(domain.ErrCodeMetadataStore, op, err)
}

// PutDocument writes the document and its chunks in one transaction, in
// pending status and without slot positions.
func (s *Store) PutDocument(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error {
	if err := domain.ValidateDocument(doc); err != nil {
		return domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid document", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return storeErr("failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO documents
			(id, owner_id, filename, content_length, chunk_count, slot_start, slot_end, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, -1, -1, $6, $7)`,
		doc.ID, doc.OwnerID, doc.Filename, doc.ContentLength, doc.ChunkCount, doc.Status, doc.CreatedAt,
	)
	if err != nil {
		return storeErr("failed to insert document", err)
	}

	for _, c := range chunks {
		_, err = tx.Exec(ctx,
			`INSERT INTO chunks
				(id, document_id, owner_id, filename, chunk_index, text, start_char, end_char, slot_position, embedding, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, -1, $9, $10)`,
			c.ID, c.DocumentID, c.OwnerID, c.Filename, c.ChunkIndex, c.Text, c.StartChar, c.EndChar,
			pgvector.NewVector(c.Embedding), c.CreatedAt,
		)
		if err != nil {
			return storeErr("failed to insert chunk", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return storeErr("failed to commit document write", err)
	}
	return nil
}

// CommitDocument assigns slot positions from the claimed contiguous range
// and flips the document to committed.
func (s *Store) CommitDocument(ctx context.Context, documentID string, slotStart int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return storeErr("failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`UPDATE chunks SET slot_position = $1 + chunk_index WHERE document_id = $2`,
		slotStart, documentID,
	)
	if err != nil {
		return storeErr("failed to assign slot positions", err)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE documents
		 SET status = $1, slot_start = $2, slot_end = $2 + chunk_count
		 WHERE id = $3 AND status = $4`,
		domain.DocumentStatusCommitted, slotStart, documentID, domain.DocumentStatusPending,
	)
	if err != nil {
		return storeErr("failed to commit document", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return storeErr("failed to commit document update", err)
	}
	return nil
}

// DeletePending removes a pending document; chunk rows cascade.
func (s *Store) DeletePending(ctx context.Context, documentID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM documents WHERE id = $1 AND status = $2`,
		documentID, domain.DocumentStatusPending,
	)
	if err != nil {
		return storeErr("failed to delete pending document", err)
	}
	return nil
}

// DeletePendingOlderThan removes pending orphans left behind by crashes
// between the two commit steps. Used at startup recovery.
func (s *Store) DeletePendingOlderThan(ctx context.Context, seconds int) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM documents
		 WHERE status = $1 AND created_at < now() - make_interval(secs => $2)`,
		domain.DocumentStatusPending, seconds,
	)
	if err != nil {
		return 0, storeErr("failed to delete pending orphans", err)
	}
	return int(tag.RowsAffected()), nil
}

// GetDocument returns a committed document scoped to its owner.
func (s *Store) GetDocument(ctx context.Context, documentID, ownerID string) (*domain.Document, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, owner_id, filename, content_length, chunk_count, slot_start, slot_end, status, created_at
		 FROM documents
		 WHERE id = $1 AND owner_id = $2 AND status = $3`,
		documentID, ownerID, domain.DocumentStatusCommitted,
	)

	doc, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrDocumentNotFound
	}
	if err != nil {
		return nil, storeErr("failed to get document", err)
	}
	return doc, nil
}

// ListDocuments returns the owner's committed documents, newest first.
func (s *Store) ListDocuments(ctx context.Context, ownerID string) ([]*domain.Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, owner_id, filename, content_length, chunk_count, slot_start, slot_end, status, created_at
		 FROM documents
		 WHERE owner_id = $1 AND status = $2
		 ORDER BY created_at DESC, id`,
		ownerID, domain.DocumentStatusCommitted,
	)
	if err != nil {
		return nil, storeErr("failed to list documents", err)
	}
	defer rows.Close()

	var docs []*domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, storeErr("failed to scan document", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("failed to iterate documents", err)
	}
	return docs, nil
}

// GetChunksBySlots resolves slot positions to committed chunks owned by the
// given owner. Positions that resolve to other owners, pending documents or
// nothing at all are simply absent from the result.
func (s *Store) GetChunksBySlots(ctx context.Context, positions []int, ownerID string) ([]*domain.Chunk, error) {
	if len(positions) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT c.id, c.document_id, c.owner_id, c.filename, c.chunk_index, c.text,
		        c.start_char, c.end_char, c.slot_position, c.created_at
		 FROM chunks c
		 JOIN documents d ON d.id = c.document_id
		 WHERE c.slot_position = ANY($1) AND c.owner_id = $2 AND d.status = $3`,
		positions, ownerID, domain.DocumentStatusCommitted,
	)
	if err != nil {
		return nil, storeErr("failed to query chunks by slots", err)
	}
	defer rows.Close()

	var chunks []*domain.Chunk
	for rows.Next() {
		var c domain.Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.OwnerID, &c.Filename, &c.ChunkIndex, &c.Text,
			&c.StartChar, &c.EndChar, &c.SlotPosition, &c.CreatedAt); err != nil {
			return nil, storeErr("failed to scan chunk", err)
		}
		chunks = append(chunks, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("failed to iterate chunks", err)
	}
	return chunks, nil
}

// DeleteDocument removes a document and its chunks as a unit and returns
// the slot positions freed for index invalidation.
func (s *Store) DeleteDocument(ctx context.Context, documentID, ownerID string) ([]int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, storeErr("failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx,
		`SELECT slot_position FROM chunks
		 WHERE document_id = $1 AND owner_id = $2 AND slot_position >= 0`,
		documentID, ownerID,
	)
	if err != nil {
		return nil, storeErr("failed to collect slot positions", err)
	}
	var positions []int
	for rows.Next() {
		var pos int
		if err := rows.Scan(&pos); err != nil {
			rows.Close()
			return nil, storeErr("failed to scan slot position", err)
		}
		positions = append(positions, pos)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, storeErr("failed to iterate slot positions", err)
	}

	tag, err := tx.Exec(ctx,
		`DELETE FROM documents WHERE id = $1 AND owner_id = $2`,
		documentID, ownerID,
	)
	if err != nil {
		return nil, storeErr("failed to delete document", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, domain.ErrDocumentNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, storeErr("failed to commit document delete", err)
	}
	return positions, nil
}

// ListCommittedChunks returns every committed chunk with its embedding in
// slot order, for index rebuilds.
func (s *Store) ListCommittedChunks(ctx context.Context) ([]*domain.Chunk, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT c.id, c.document_id, c.owner_id, c.filename, c.chunk_index, c.text,
		        c.start_char, c.end_char, c.slot_position, c.embedding, c.created_at
		 FROM chunks c
		 JOIN documents d ON d.id = c.document_id
		 WHERE d.status = $1 AND c.slot_position >= 0
		 ORDER BY c.slot_position`,
		domain.DocumentStatusCommitted,
	)
	if err != nil {
		return nil, storeErr("failed to query committed chunks", err)
	}
	defer rows.Close()

	var chunks []*domain.Chunk
	for rows.Next() {
		var c domain.Chunk
		var vec pgvector.Vector
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.OwnerID, &c.Filename, &c.ChunkIndex, &c.Text,
			&c.StartChar, &c.EndChar, &c.SlotPosition, &vec, &c.CreatedAt); err != nil {
			return nil, storeErr("failed to scan chunk", err)
		}
		c.Embedding = vec.Slice()
		chunks = append(chunks, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("failed to iterate chunks", err)
	}
	return chunks, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var d domain.Document
	if err := row.Scan(&d.ID, &d.OwnerID, &d.Filename, &d.ContentLength, &d.ChunkCount,
		&d.SlotStart, &d.SlotEnd, &d.Status, &d.CreatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}
