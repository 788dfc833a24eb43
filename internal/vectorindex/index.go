// Package vectorindex implements an in-memory exact nearest-neighbor index
// over fixed-dimension vectors with append-only slot positions.
package vectorindex

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

var (
	// ErrDimensionMismatch is returned when a vector does not match the index dimension
	ErrDimensionMismatch = errors.New("vector dimension does not match index dimension")
	// ErrEmptyBatch is returned when an insert batch contains no vectors
	ErrEmptyBatch = errors.New("insert batch is empty")
)

// Hit is a single search result: the slot position of a vector and its
// squared L2 distance from the query.
type Hit struct {
	Position int
	Distance float32
}

// snapshot is an immutable view of the index published atomically to
// readers. data holds count*dim float32 values in slot order; dead marks
// logically deleted slots. Readers never index past their snapshot's count,
// so appends into spare backing capacity are invisible to them, and
// invalidation copies dead before mutating it.
type snapshot struct {
	data  []float32
	dead  []bool
	count int
}

// FlatIndex is a brute-force squared-L2 index. Inserts are serialized by a
// mutex and claim monotonically increasing slot positions; searches run
// lock-free against the latest published snapshot. Slots are never reused
// while the index is live; deletion tombstones a slot logically.
type FlatIndex struct {
	dim   int
	mu    sync.Mutex
	snap  atomic.Pointer[snapshot]
	dirty atomic.Bool
}

// NewFlatIndex creates an empty index for vectors of the given dimension.
func NewFlatIndex(dim int) (*FlatIndex, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dim)
	}
	idx := &FlatIndex{dim: dim}
	idx.snap.Store(&snapshot{})
	return idx, nil
}

// Dimension returns the fixed vector dimension of the index.
func (idx *FlatIndex) Dimension() int {
	return idx.dim
}

// Len returns the number of slots ever claimed, including tombstoned ones.
func (idx *FlatIndex) Len() int {
	return idx.snap.Load().count
}

// Live returns the number of searchable (non-tombstoned) vectors.
func (idx *FlatIndex) Live() int {
	s := idx.snap.Load()
	live := s.count
	for _, d := range s.dead {
		if d {
			live--
		}
	}
	return live
}

// Insert appends a single vector and returns its slot position.
func (idx *FlatIndex) Insert(vec []float32) (int, error) {
	start, _, err := idx.InsertBatch([][]float32{vec})
	return start, err
}

// InsertBatch appends vectors as one serialized operation and returns the
// first claimed slot position and the number of slots claimed. The claimed
// range is always contiguous.
func (idx *FlatIndex) InsertBatch(vecs [][]float32) (int, int, error) {
	if len(vecs) == 0 {
		return 0, 0, ErrEmptyBatch
	}
	for _, v := range vecs {
		if len(v) != idx.dim {
			return 0, 0, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), idx.dim)
		}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	cur := idx.snap.Load()
	start := cur.count

	data := cur.data
	for _, v := range vecs {
		data = append(data, v...)
	}
	dead := append(cur.dead, make([]bool, len(vecs))...)

	// Vector data is fully written before the new snapshot is published, so
	// a concurrent search either misses the batch entirely or sees it whole.
	idx.snap.Store(&snapshot{
		data:  data,
		dead:  dead,
		count: cur.count + len(vecs),
	})
	idx.dirty.Store(true)
	return start, len(vecs), nil
}

// Invalidate tombstones the given slot positions. Out-of-range positions
// are ignored. The slots stay claimed; a rebuild is needed to reclaim space.
func (idx *FlatIndex) Invalidate(positions []int) {
	if len(positions) == 0 {
		return
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	cur := idx.snap.Load()
	dead := make([]bool, len(cur.dead))
	copy(dead, cur.dead)

	changed := false
	for _, p := range positions {
		if p >= 0 && p < cur.count && !dead[p] {
			dead[p] = true
			changed = true
		}
	}
	if !changed {
		return
	}

	idx.snap.Store(&snapshot{
		data:  cur.data,
		dead:  dead,
		count: cur.count,
	})
	idx.dirty.Store(true)
}

// Search returns up to k live vectors ordered by ascending squared L2
// distance from the query. Fewer than k hits are returned when the index
// holds fewer live vectors. The scan runs against a consistent snapshot;
// inserts that complete after the snapshot was taken are not observed.
func (idx *FlatIndex) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != idx.dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(query), idx.dim)
	}
	if k <= 0 {
		return []Hit{}, nil
	}

	s := idx.snap.Load()
	hits := make([]Hit, 0, s.count)
	for i := 0; i < s.count; i++ {
		if i < len(s.dead) && s.dead[i] {
			continue
		}
		row := s.data[i*idx.dim : (i+1)*idx.dim]
		var dist float32
		for j, q := range query {
			d := row[j] - q
			dist += d * d
		}
		hits = append(hits, Hit{Position: i, Distance: dist})
	}

	sort.Slice(hits, func(a, b int) bool {
		if hits[a].Distance == hits[b].Distance {
			return hits[a].Position < hits[b].Position
		}
		return hits[a].Distance < hits[b].Distance
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Dirty reports whether the index has changed since the last Persist.
func (idx *FlatIndex) Dirty() bool {
	return idx.dirty.Load()
}

// clearDirtyIfUnchanged resets the dirty flag only when the published
// snapshot is still the one that was persisted. A batch that lands while a
// persist is writing keeps its dirty mark for the next flush.
func (idx *FlatIndex) clearDirtyIfUnchanged(s *snapshot) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.snap.Load() == s {
		idx.dirty.Store(false)
	}
}
