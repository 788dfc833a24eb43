package vectorindex

import (
	"bytes"
	"encoding/binary"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFlatIndex_InvalidDimension(t *testing.T) {
	_, err := NewFlatIndex(0)
	assert.Error(t, err)

	_, err = NewFlatIndex(-3)
	assert.Error(t, err)
}

func TestFlatIndex_InsertAndSearch(t *testing.T) {
	idx, err := NewFlatIndex(3)
	require.NoError(t, err)

	pos, err := idx.Insert([]float32{1, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, 0, pos)

	pos, err = idx.Insert([]float32{0, 1, 0})
	require.NoError(t, err)
	assert.Equal(t, 1, pos)

	pos, err = idx.Insert([]float32{0.9, 0.1, 0})
	require.NoError(t, err)
	assert.Equal(t, 2, pos)

	hits, err := idx.Search([]float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, 0, hits[0].Position)
	assert.Equal(t, float32(0), hits[0].Distance)
	assert.Equal(t, 2, hits[1].Position)
	assert.Less(t, hits[0].Distance, hits[1].Distance)
}

func TestFlatIndex_InsertBatch_ContiguousSlots(t *testing.T) {
	idx, err := NewFlatIndex(2)
	require.NoError(t, err)

	_, err = idx.Insert([]float32{1, 1})
	require.NoError(t, err)

	start, count, err := idx.InsertBatch([][]float32{{2, 2}, {3, 3}, {4, 4}})
	require.NoError(t, err)
	assert.Equal(t, 1, start)
	assert.Equal(t, 3, count)
	assert.Equal(t, 4, idx.Len())
}

func TestFlatIndex_InsertBatch_Empty(t *testing.T) {
	idx, err := NewFlatIndex(2)
	require.NoError(t, err)

	_, _, err = idx.InsertBatch(nil)
	assert.ErrorIs(t, err, ErrEmptyBatch)
}

func TestFlatIndex_DimensionMismatch(t *testing.T) {
	idx, err := NewFlatIndex(3)
	require.NoError(t, err)

	_, err = idx.Insert([]float32{1, 2})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = idx.Search([]float32{1, 2, 3, 4}, 1)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestFlatIndex_Search_FewerThanK(t *testing.T) {
	idx, err := NewFlatIndex(2)
	require.NoError(t, err)

	_, err = idx.Insert([]float32{1, 0})
	require.NoError(t, err)

	hits, err := idx.Search([]float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestFlatIndex_Search_Empty(t *testing.T) {
	idx, err := NewFlatIndex(2)
	require.NoError(t, err)

	hits, err := idx.Search([]float32{0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestFlatIndex_Invalidate(t *testing.T) {
	idx, err := NewFlatIndex(2)
	require.NoError(t, err)

	_, _, err = idx.InsertBatch([][]float32{{1, 0}, {0, 1}, {1, 1}})
	require.NoError(t, err)

	idx.Invalidate([]int{0, 99, -1})

	assert.Equal(t, 3, idx.Len())
	assert.Equal(t, 2, idx.Live())

	hits, err := idx.Search([]float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	for _, h := range hits {
		assert.NotEqual(t, 0, h.Position)
	}
}

func TestFlatIndex_PersistLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.bin")

	idx, err := NewFlatIndex(8)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(42))
	vecs := make([][]float32, 50)
	for i := range vecs {
		v := make([]float32, 8)
		for j := range v {
			v[j] = rng.Float32()
		}
		vecs[i] = v
	}
	_, _, err = idx.InsertBatch(vecs)
	require.NoError(t, err)
	idx.Invalidate([]int{3, 17, 49})

	require.True(t, idx.Dirty())
	require.NoError(t, idx.Persist(path))
	assert.False(t, idx.Dirty())

	loaded, err := NewFlatIndex(8)
	require.NoError(t, err)
	require.NoError(t, loaded.Load(path))

	assert.Equal(t, idx.Len(), loaded.Len())
	assert.Equal(t, idx.Live(), loaded.Live())

	query := make([]float32, 8)
	for j := range query {
		query[j] = rng.Float32()
	}

	want, err := idx.Search(query, 10)
	require.NoError(t, err)
	got, err := loaded.Search(query, 10)
	require.NoError(t, err)

	require.Equal(t, len(want), len(got))
	for i := range want {
		assert.Equal(t, want[i].Position, got[i].Position)
		assert.InDelta(t, want[i].Distance, got[i].Distance, 1e-6)
	}
}

// An insert that lands while a persist is writing must keep its dirty mark
// for the next flush.
func TestFlatIndex_Persist_KeepsDirtyAfterConcurrentInsert(t *testing.T) {
	idx, err := NewFlatIndex(2)
	require.NoError(t, err)

	_, err = idx.Insert([]float32{1, 0})
	require.NoError(t, err)

	persisted := idx.snap.Load()
	_, err = idx.Insert([]float32{0, 1})
	require.NoError(t, err)

	idx.clearDirtyIfUnchanged(persisted)
	assert.True(t, idx.Dirty())

	idx.clearDirtyIfUnchanged(idx.snap.Load())
	assert.False(t, idx.Dirty())
}

// A corrupt header must error out instead of allocating count*dim floats.
func TestFlatIndex_Load_OversizedCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.bin")

	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, []uint32{fileMagic, fileVersion, 2}))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint64(1)<<40))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	idx, err := NewFlatIndex(2)
	require.NoError(t, err)
	err = idx.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match slot count")
}

func TestFlatIndex_Load_TruncatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.bin")

	idx, err := NewFlatIndex(2)
	require.NoError(t, err)
	_, _, err = idx.InsertBatch([][]float32{{1, 0}, {0, 1}})
	require.NoError(t, err)
	require.NoError(t, idx.Persist(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw[:len(raw)-5], 0o644))

	target, err := NewFlatIndex(2)
	require.NoError(t, err)
	assert.Error(t, target.Load(path))
}

func TestFlatIndex_Load_DimensionMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.bin")

	idx, err := NewFlatIndex(4)
	require.NoError(t, err)
	_, err = idx.Insert([]float32{1, 2, 3, 4})
	require.NoError(t, err)
	require.NoError(t, idx.Persist(path))

	other, err := NewFlatIndex(8)
	require.NoError(t, err)
	assert.Error(t, other.Load(path))
}

func TestFlatIndex_Load_NonEmptyIndex(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.bin")

	idx, err := NewFlatIndex(2)
	require.NoError(t, err)
	_, err = idx.Insert([]float32{1, 2})
	require.NoError(t, err)
	require.NoError(t, idx.Persist(path))

	target, err := NewFlatIndex(2)
	require.NoError(t, err)
	_, err = target.Insert([]float32{3, 4})
	require.NoError(t, err)
	assert.Error(t, target.Load(path))
}

// Concurrent inserts and searches must never observe a partially written
// vector or a slot claimed twice.
func TestFlatIndex_ConcurrentInsertSearch(t *testing.T) {
	idx, err := NewFlatIndex(4)
	require.NoError(t, err)

	var wg sync.WaitGroup
	positions := make(chan int, 400)

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < 100; i++ {
				v := []float32{rng.Float32(), rng.Float32(), rng.Float32(), rng.Float32()}
				pos, err := idx.Insert(v)
				assert.NoError(t, err)
				positions <- pos
			}
		}(int64(w))
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			hits, err := idx.Search([]float32{0.5, 0.5, 0.5, 0.5}, 10)
			assert.NoError(t, err)
			for _, h := range hits {
				assert.GreaterOrEqual(t, h.Position, 0)
				assert.Less(t, h.Position, idx.Len())
			}
		}
	}()

	wg.Wait()
	close(positions)

	seen := make(map[int]bool)
	for p := range positions {
		assert.False(t, seen[p], "slot %d claimed twice", p)
		seen[p] = true
	}
	assert.Equal(t, 400, idx.Len())
}
