package jobs

import (
	"context"
	"fmt"
	"log"
)

// SnapshotIndex is the part of the vector index the snapshot worker needs.
type SnapshotIndex interface {
	Dirty() bool
	Live() int
	Persist(path string) error
}

// SnapshotWorker periodically persists the vector index to disk so a
// restart can skip a full rebuild. A snapshot is only written when the
// index has changed since the last one.
type SnapshotWorker struct {
	index SnapshotIndex
	path  string
}

// NewSnapshotWorker creates a new SnapshotWorker writing to path.
func NewSnapshotWorker(index SnapshotIndex, path string) *SnapshotWorker {
	return &SnapshotWorker{
		index: index,
		path:  path,
	}
}

// ProcessJobs writes a snapshot if the index is dirty.
func (w *SnapshotWorker) ProcessJobs(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !w.index.Dirty() {
		return nil
	}

	if err := w.index.Persist(w.path); err != nil {
		return fmt.Errorf("failed to persist index snapshot: %w", err)
	}

	log.Printf("Index snapshot written to %s (%d live vectors)", w.path, w.index.Live())
	return nil
}
