package domain

import (
	"fmt"
	"time"
)

// DocumentStatus tracks the two-step ingestion commit. A document is written
// as pending before its vectors enter the index and flipped to committed
// afterwards; a crash in between leaves a recoverable pending orphan.
type DocumentStatus string

const (
	DocumentStatusPending   DocumentStatus = "pending"
	DocumentStatusCommitted DocumentStatus = "committed"
)

// Document represents an ingested document. Immutable once committed;
// deleted only as a whole unit, cascading chunk deletion.
type Document struct {
	ID            string
	OwnerID       string
	Filename      string
	ContentLength int
	ChunkCount    int
	SlotStart     int // first vector index slot, inclusive
	SlotEnd       int // last vector index slot, exclusive
	Status        DocumentStatus
	CreatedAt     time.Time
}

// Chunk represents a bounded, overlapping segment of a document's text, the
// unit of embedding and retrieval. OwnerID and Filename are denormalized so
// search results resolve without a document lookup.
type Chunk struct {
	ID           string
	DocumentID   string
	OwnerID      string
	Filename     string
	ChunkIndex   int
	Text         string
	StartChar    int
	EndChar      int
	SlotPosition int
	Embedding    []float32
	CreatedAt    time.Time
}

// ValidateDocument validates a Document instance
func ValidateDocument(d *Document) error {
	if d == nil {
		return fmt.Errorf("document cannot be nil")
	}
	if d.ID == "" {
		return fmt.Errorf("document ID is required")
	}
	if d.OwnerID == "" {
		return fmt.Errorf("document OwnerID is required")
	}
	if d.Filename == "" {
		return fmt.Errorf("document Filename is required")
	}
	if !isValidDocumentStatus(d.Status) {
		return fmt.Errorf("document Status is invalid: %s", d.Status)
	}
	return nil
}

// ValidateChunk validates a Chunk instance
func ValidateChunk(c *Chunk) error {
	if c == nil {
		return fmt.Errorf("chunk cannot be nil")
	}
	if c.ID == "" {
		return fmt.Errorf("chunk ID is required")
	}
	if c.DocumentID == "" {
		return fmt.Errorf("chunk DocumentID is required")
	}
	if c.OwnerID == "" {
		return fmt.Errorf("chunk OwnerID is required")
	}
	if c.ChunkIndex < 0 {
		return fmt.Errorf("chunk ChunkIndex cannot be negative")
	}
	if c.StartChar < 0 || c.EndChar <= c.StartChar {
		return fmt.Errorf("chunk offsets are invalid: start=%d end=%d", c.StartChar, c.EndChar)
	}
	return nil
}

func isValidDocumentStatus(s DocumentStatus) bool {
	switch s {
	case DocumentStatusPending, DocumentStatusCommitted:
		return true
	}
	return false
}
