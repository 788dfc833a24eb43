package vectorindex

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
)

// On-disk layout, little-endian: magic, format version, dimension (uint32
// each), slot count (uint64), count*dimension float32 vector values in slot
// order, then one byte per slot for the tombstone flag. Reload reproduces
// identical slot positions and search results.
const (
	fileMagic   uint32 = 0x44534958 // "DSIX"
	fileVersion uint32 = 1
)

// Persist atomically writes the current snapshot to path. The file is
// written to a temp sibling and renamed into place so a crash mid-write
// never corrupts an existing index file.
func (idx *FlatIndex) Persist(path string) error {
	s := idx.snap.Load()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp index file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	header := []uint32{fileMagic, fileVersion, uint32(idx.dim)}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write index header: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(s.count)); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write index count: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, s.data[:s.count*idx.dim]); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write index vectors: %w", err)
	}
	flags := make([]byte, s.count)
	for i := 0; i < s.count; i++ {
		if i < len(s.dead) && s.dead[i] {
			flags[i] = 1
		}
	}
	if err := binary.Write(w, binary.LittleEndian, flags); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write index tombstones: %w", err)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to flush index file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close index file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace index file: %w", err)
	}

	idx.clearDirtyIfUnchanged(s)
	return nil
}

// Load reads an index file written by Persist. The index must be empty and
// the file's dimension must match.
func (idx *FlatIndex) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open index file: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var header [3]uint32
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return fmt.Errorf("failed to read index header: %w", err)
	}
	if header[0] != fileMagic {
		return fmt.Errorf("not an index file: bad magic 0x%08x", header[0])
	}
	if header[1] != fileVersion {
		return fmt.Errorf("unsupported index file version %d", header[1])
	}
	if int(header[2]) != idx.dim {
		return fmt.Errorf("index file dimension %d does not match configured dimension %d", header[2], idx.dim)
	}

	var count uint64
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return fmt.Errorf("failed to read index count: %w", err)
	}

	// The count comes from the file; validate it against the file size
	// before allocating, so a truncated or corrupt header errors instead of
	// exhausting memory.
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat index file: %w", err)
	}
	const headerSize = 3*4 + 8
	slotSize := uint64(idx.dim)*4 + 1
	if count > uint64(info.Size())/slotSize || headerSize+int64(count*slotSize) != info.Size() {
		return fmt.Errorf("index file size %d does not match slot count %d", info.Size(), count)
	}

	data := make([]float32, int(count)*idx.dim)
	if err := binary.Read(r, binary.LittleEndian, data); err != nil {
		return fmt.Errorf("failed to read index vectors: %w", err)
	}
	flags := make([]byte, count)
	if err := binary.Read(r, binary.LittleEndian, flags); err != nil {
		return fmt.Errorf("failed to read index tombstones: %w", err)
	}
	dead := make([]bool, count)
	for i, fl := range flags {
		dead[i] = fl != 0
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.snap.Load().count != 0 {
		return fmt.Errorf("cannot load into a non-empty index")
	}
	idx.snap.Store(&snapshot{data: data, dead: dead, count: int(count)})
	idx.dirty.Store(false)
	return nil
}
