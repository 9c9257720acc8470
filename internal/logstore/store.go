package logstore

import (
	"fmt"

	"github.com/kvslite-go/kvslite/internal/kverr"
	"github.com/kvslite-go/kvslite/internal/mmfile"
	"github.com/kvslite-go/kvslite/internal/pagecache"
	"github.com/kvslite-go/kvslite/internal/record"
)

// Store is the append-only record log described in spec.md §4.2: a
// single writable window for recent records plus a read-only cache
// (component B) for cold reads of records that have scrolled behind
// the window's head.
type Store struct {
	f    *mmfile.File
	w    *window
	cold *pagecache.Cache
}

// Create initializes a brand-new log over f (truncated to zero length
// by the caller).
func Create(f *mmfile.File, coldCacheCapacity int) (*Store, error) {
	return &Store{f: f, w: newWindow(f), cold: pagecache.New(f, coldCacheCapacity)}, nil
}

// Open loads an existing log, trusting the coordinator to have already
// validated the system catalog; log_end_addr is re-derived by reading
// page 0 rather than replaying, since every record below it is already
// durable by construction (Checkpoint's contract).
func Open(f *mmfile.File, coldCacheCapacity int) (*Store, error) {
	hdr := make([]byte, metaPageBytes)
	if _, err := f.ReadAt(hdr, 0); err != nil {
		return nil, fmt.Errorf("logstore: read metadata page: %w", err)
	}
	pageSize := getU64(hdr[0:8])
	if pageSize != 0 && pageSize != PageSize {
		return nil, kverr.ErrLoadMismatch
	}
	endAddr := getU64(hdr[8:16])
	if endAddr == 0 {
		endAddr = 1
	}

	w := newWindow(f)
	w.endAddr = endAddr
	w.lastFlushRequestUntilAddr = endAddr
	w.mu.Lock()
	err := w.ensureLocked(endAddr)
	w.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("logstore: remap window at open: %w", err)
	}
	w.persistPage = w.headPage + uint64(w.spanPages)

	return &Store{f: f, w: w, cold: pagecache.New(f, coldCacheCapacity)}, nil
}

// Put appends a new record, returning its address.
func (s *Store) Put(prevAddr uint64, key, value []byte) (uint64, error) {
	return s.append(prevAddr, key, value, false)
}

// Delete appends a tombstone record.
func (s *Store) Delete(prevAddr uint64, key []byte) (uint64, error) {
	return s.append(prevAddr, key, nil, true)
}

func (s *Store) append(prevAddr uint64, key, value []byte, tombstone bool) (uint64, error) {
	sz := record.Size(len(key), len(value))
	addr, err := s.w.reserve(sz)
	if err != nil {
		return 0, err
	}

	var delta uint64
	if prevAddr != 0 {
		delta = addr - prevAddr
	}
	h := record.Header{PrevAddr: delta, Tombstone: tombstone, KeySize: uint32(len(key)), ValueSize: uint32(len(value))}
	buf := make([]byte, sz)
	record.WriteTo(buf, h, key, value)
	s.w.place(addr, buf)
	return addr, nil
}

// Get decodes the record at addr, following prev_addr back-links
// (stored as a delta from the record's own address, per
// original_source's flexible_log.cc) until match reports a serialized
// key as equal or the chain ends. match is the caller's key's
// EqualSerialized, so equality is decided by the key's own capability
// contract rather than a raw byte comparison baked into the log.
func (s *Store) Get(addr uint64, match func(serialized []byte) bool) ([]byte, error) {
	for addr != 0 {
		h, gotKey, gotValue, err := s.readRecord(addr)
		if err != nil {
			return nil, err
		}
		if match(gotKey) {
			if h.Tombstone {
				return nil, kverr.ErrNotFound
			}
			return gotValue, nil
		}
		if h.PrevAddr == 0 {
			break
		}
		addr -= h.PrevAddr
	}
	return nil, kverr.ErrNotFound
}

func (s *Store) readRecord(addr uint64) (record.Header, []byte, []byte, error) {
	if data, off, ok := s.w.liveRange(addr); ok {
		h, err := record.DecodeHeader(data[off : off+record.HeaderSize])
		if err != nil {
			return record.Header{}, nil, nil, fmt.Errorf("logstore: decode header at %d: %w", addr, err)
		}
		need := h.Size()
		if off+need > len(data) {
			return record.Header{}, nil, nil, fmt.Errorf("logstore: record at %d exceeds mapped window: %w", addr, kverr.ErrIOFailure)
		}
		_, k, v, err := record.Decode(data[off : off+need])
		return h, k, v, err
	}

	coldAddr := int64(PageSize) + int64(addr)
	hdrBytes, err := s.cold.GetPage(coldAddr, record.HeaderSize)
	if err != nil {
		return record.Header{}, nil, nil, fmt.Errorf("logstore: cold header read at %d: %w", addr, err)
	}
	h, err := record.DecodeHeader(hdrBytes)
	if err != nil {
		return record.Header{}, nil, nil, fmt.Errorf("logstore: decode cold header at %d: %w", addr, err)
	}
	need := h.Size()
	full, err := s.cold.GetPage(coldAddr, need)
	if err != nil {
		return record.Header{}, nil, nil, fmt.Errorf("logstore: cold record read at %d: %w", addr, err)
	}
	_, k, v, err := record.Decode(full)
	return h, k, v, err
}

// BackgroundFlush drains a bounded batch of pending window pages,
// waiting briefly for work if none is currently pending.
func (s *Store) BackgroundFlush() (bool, error) {
	return s.w.backgroundFlush()
}

// Checkpoint drains the flush queue, flushes the page holding
// log_end_addr, then persists {page_size, log_end_addr} into the log
// file's metadata page.
func (s *Store) Checkpoint() error {
	if err := s.w.checkpoint(); err != nil {
		return err
	}

	buf := make([]byte, metaPageBytes)
	putU64(buf[0:8], PageSize)
	putU64(buf[8:16], s.w.endAddrSnapshot())
	if _, err := s.f.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("logstore: write metadata page: %w", err)
	}
	return s.f.Sync()
}

// Close releases the window mapping and the cold-read cache.
func (s *Store) Close() error {
	if err := s.w.close(); err != nil {
		return err
	}
	return s.cold.Close()
}

func putU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func getU64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}
