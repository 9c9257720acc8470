// Package mmfile is the file abstraction component: page-aligned
// load/flush/evict/read/write over a file, backed by mmap. It plays the
// role the teacher's storage.FilePager plays for ReadAt/WriteAt pages,
// generalized to return writable memory-mapped regions instead of
// copying pages through read(2)/write(2) — the shape the hash index and
// the log window both need.
//
// Grounded on the mmap idiom used across the retrieval pack:
// other_examples' marmos91-dittofs wal/mmap.go (growable mmap'd WAL) and
// hmarui66-blink-tree-go bufmgr.go (mmap'd page-zero buffer manager),
// both of which reach for golang.org/x/sys/unix the same way this does.
package mmfile

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// File owns an os.File plus whatever regions of it are currently
// mapped. Every returned Mapping must be released via Evict on
// all exit paths — it is a scoped resource, not something that can be
// cloned or forgotten (design notes, "mapped pages as owned resources").
type File struct {
	f        *os.File
	pageSize int
}

// Open opens (creating if needed) the file backing a page-aligned
// region store.
func Open(path string, pageSize int) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("mmfile: open %s: %w", path, err)
	}
	return &File{f: f, pageSize: pageSize}, nil
}

// PageSize reports the configured page size.
func (f *File) PageSize() int { return f.pageSize }

// Size returns the current file size in bytes.
func (f *File) Size() (int64, error) {
	st, err := f.f.Stat()
	if err != nil {
		return 0, fmt.Errorf("mmfile: stat: %w", err)
	}
	return st.Size(), nil
}

// Truncate grows or shrinks the backing file to exactly n bytes.
func (f *File) Truncate(n int64) error {
	if err := f.f.Truncate(n); err != nil {
		return fmt.Errorf("mmfile: truncate to %d: %w", n, err)
	}
	return nil
}

// EnsureSize grows the file so that it covers at least n bytes,
// zero-filling the extension (ftruncate on Linux zero-fills).
func (f *File) EnsureSize(n int64) error {
	cur, err := f.Size()
	if err != nil {
		return err
	}
	if cur >= n {
		return nil
	}
	return f.Truncate(n)
}

// ReadAt/WriteAt are kept for the cold paths that don't justify mapping
// a region in: reading and writing the index and log metadata headers.
func (f *File) ReadAt(b []byte, off int64) (int, error) {
	n, err := f.f.ReadAt(b, off)
	if err != nil && n == int(len(b)) {
		err = nil
	}
	return n, err
}

func (f *File) WriteAt(b []byte, off int64) (int, error) {
	return f.f.WriteAt(b, off)
}

func (f *File) Sync() error {
	return f.f.Sync()
}

func (f *File) Fd() uintptr { return f.f.Fd() }

// Close closes the underlying file. Callers must evict every mapping
// taken from this file first.
func (f *File) Close() error {
	if err := f.f.Close(); err != nil {
		return fmt.Errorf("mmfile: close: %w", err)
	}
	return nil
}

// Mapping is a single owned mmap'd region: pageOffset pages in,
// nPages*pageSize bytes long.
type Mapping struct {
	data       []byte
	writable   bool
	pageOffset int64
	nPages     int
}

// Bytes exposes the mapped region. For a writable Mapping, writes are
// visible to other mappings of the same file region and become durable
// only after Flush.
func (m *Mapping) Bytes() []byte { return m.data }

// Load maps in nPages pages starting at the page-aligned offset
// pageOffset, for read-write access. The file is grown first if
// necessary.
func (f *File) Load(pageOffset int64, nPages int) (*Mapping, error) {
	return f.load(pageOffset, nPages, true)
}

// LoadReadOnly maps in a region for read-only access (used by the
// read-only page cache for cold log reads).
func (f *File) LoadReadOnly(pageOffset int64, nPages int) (*Mapping, error) {
	return f.load(pageOffset, nPages, false)
}

func (f *File) load(pageOffset int64, nPages int, writable bool) (*Mapping, error) {
	if nPages <= 0 {
		return nil, fmt.Errorf("mmfile: load: nPages must be positive, got %d", nPages)
	}
	byteOff := pageOffset * int64(f.pageSize)
	length := nPages * f.pageSize

	if writable {
		if err := f.EnsureSize(byteOff + int64(length)); err != nil {
			return nil, err
		}
	}

	prot := unix.PROT_READ
	if writable {
		prot |= unix.PROT_WRITE
	}

	data, err := unix.Mmap(int(f.Fd()), byteOff, length, prot, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmfile: mmap offset=%d len=%d: %w", byteOff, length, err)
	}

	return &Mapping{data: data, writable: writable, pageOffset: pageOffset, nPages: nPages}, nil
}

// Flush persists a writable mapping's contents with msync. It is a
// no-op (but still valid to call) for read-only mappings.
func (m *Mapping) Flush() error {
	if !m.writable || m.data == nil {
		return nil
	}
	if err := unix.Msync(m.data, unix.MS_SYNC); err != nil {
		return fmt.Errorf("mmfile: msync: %w", err)
	}
	return nil
}

// FlushRange persists just the [pageOffset, pageOffset+nPages) sub-span
// of this mapping (both page-relative to the mapping's own start),
// letting a caller durably commit part of a large mapping without
// paying for the whole region — the log window's background flusher
// drains exactly the pages it has queued, nothing more.
func (m *Mapping) FlushRange(pageOffset, nPages, pageSize int) error {
	if !m.writable || m.data == nil {
		return nil
	}
	start := pageOffset * pageSize
	end := start + nPages*pageSize
	if start < 0 || end > len(m.data) {
		return fmt.Errorf("mmfile: flush range [%d,%d) outside mapping of %d bytes", start, end, len(m.data))
	}
	if err := unix.Msync(m.data[start:end], unix.MS_SYNC); err != nil {
		return fmt.Errorf("mmfile: msync range: %w", err)
	}
	return nil
}

// NPages reports how many pages this mapping spans.
func (m *Mapping) NPages() int { return m.nPages }

// Evict flushes (if writable) and then unmaps the region. After Evict
// the Mapping must not be used again.
func (m *Mapping) Evict() error {
	if m.data == nil {
		return nil
	}
	if err := m.Flush(); err != nil {
		return err
	}
	if err := unix.Munmap(m.data); err != nil {
		return fmt.Errorf("mmfile: munmap: %w", err)
	}
	m.data = nil
	return nil
}
