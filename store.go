// Package kvslite is an embeddable persistent key-value store built on
// an extendible hash index (internal/hashindex) over a fixed-budget
// memory-mapped page cache, and an append-only record log
// (internal/logstore) over a circular memory-mapped window with a
// background flusher.
//
// Grounded in the teacher's pkg/database.Database: Open wires the
// storage components together and returns one handle; Close tears them
// down in the reverse order.
package kvslite

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kvslite-go/kvslite/internal/catalog"
	"github.com/kvslite-go/kvslite/internal/hashindex"
	"github.com/kvslite-go/kvslite/internal/kverr"
	"github.com/kvslite-go/kvslite/internal/kvtypes"
	"github.com/kvslite-go/kvslite/internal/logstore"
	"github.com/kvslite-go/kvslite/internal/mmfile"
)

// Re-exported sentinel errors (spec.md §7) so callers never need to
// import internal/kverr directly.
var (
	ErrNotFound          = kverr.ErrNotFound
	ErrExists            = kverr.ErrExists
	ErrIOFailure         = kverr.ErrIOFailure
	ErrLoadMismatch      = kverr.ErrLoadMismatch
	ErrRecordTooLarge    = kverr.ErrRecordTooLarge
	ErrAllocationFailure = kverr.ErrAllocationFailure
)

// backgroundFlushSleep approximates spec.md §4.4's "~60ns" coordinator
// poll interval; Go's scheduler and timer resolution are far coarser
// than that in practice, so this mostly just yields between batches
// rather than literally sleeping 60 nanoseconds.
const backgroundFlushSleep = 60 * time.Nanosecond

// backgroundFlushBatch bounds how many BackgroundFlush calls the
// coordinator makes per loop iteration (each call may drain several
// pages).
const backgroundFlushBatch = 10

// Store is a single open kvslite database.
type Store struct {
	opts Options

	idxFile *mmfile.File
	logFile *mmfile.File
	idx     *hashindex.Index
	log     *logstore.Store

	cat catalog.Catalog

	stop chan struct{}
	wg   sync.WaitGroup
}

// Open opens an existing store, or creates one if its system catalog
// is absent.
func Open(opts Options) (*Store, error) {
	opts = opts.withDefaults()

	scPath, _, _ := catalog.Paths(opts.Dir, opts.Name)
	fresh := !catalog.Exists(scPath)

	var cat catalog.Catalog
	if fresh {
		cat = catalog.New(opts.Dir, opts.Name)
		if err := catalog.Write(scPath, cat); err != nil {
			return nil, fmt.Errorf("kvslite: write catalog: %w", err)
		}
	} else {
		var err error
		cat, err = catalog.Read(scPath)
		if err != nil {
			return nil, fmt.Errorf("kvslite: read catalog: %w", err)
		}
	}

	idxFile, err := mmfile.Open(cat.IndexPath, hashindex.PageSize)
	if err != nil {
		return nil, fmt.Errorf("kvslite: open index file: %w", err)
	}
	logFile, err := mmfile.Open(cat.LogPath, logstore.PageSize)
	if err != nil {
		idxFile.Close()
		return nil, fmt.Errorf("kvslite: open log file: %w", err)
	}

	var idx *hashindex.Index
	var logStore *logstore.Store
	if fresh {
		if err = idxFile.Truncate(0); err == nil {
			err = logFile.Truncate(0)
		}
		if err == nil {
			idx, err = hashindex.Create(idxFile, opts.Logger)
		}
		if err == nil {
			logStore, err = logstore.Create(logFile, opts.ColdCacheCapacityPages)
		}
	} else {
		idx, err = hashindex.Open(idxFile, opts.Logger)
		if err == nil {
			logStore, err = logstore.Open(logFile, opts.ColdCacheCapacityPages)
		}
	}
	if err != nil {
		idxFile.Close()
		logFile.Close()
		return nil, fmt.Errorf("kvslite: initialize store %q: %w", opts.Name, err)
	}

	s := &Store{
		opts:    opts,
		idxFile: idxFile,
		logFile: logFile,
		idx:     idx,
		log:     logStore,
		cat:     cat,
		stop:    make(chan struct{}),
	}
	s.startFlusher()
	return s, nil
}

func (s *Store) startFlusher() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-s.stop:
				return
			default:
			}
			for i := 0; i < backgroundFlushBatch; i++ {
				flushed, err := s.log.BackgroundFlush()
				if err != nil {
					s.opts.Logger.Warn("background flush failed", "error", err)
					break
				}
				if !flushed {
					break
				}
			}
			time.Sleep(backgroundFlushSleep)
		}
	}()
}

// Get looks up key and decodes its value with opts.ValueDecoder.
func (s *Store) Get(key kvtypes.Key) (kvtypes.Value, error) {
	fp := s.opts.Fingerprint(key.Represent())
	addr, err := s.idx.Get(fp)
	if err != nil {
		return nil, err
	}
	valueBytes, err := s.log.Get(addr, key.EqualSerialized)
	if err != nil {
		return nil, err
	}
	return s.opts.ValueDecoder(valueBytes)
}

// Put inserts or overwrites key's value.
func (s *Store) Put(key kvtypes.Key, value kvtypes.Value) error {
	fp := s.opts.Fingerprint(key.Represent())
	prevAddr, err := s.lookupChainHead(fp)
	if err != nil {
		return err
	}

	newAddr, err := s.log.Put(prevAddr, key.Serialize(), value.Serialize())
	if err != nil {
		return err
	}
	if _, err := s.idx.Upsert(fp, newAddr); err != nil {
		return fmt.Errorf("kvslite: index upsert: %w", err)
	}
	return nil
}

// Insert inserts key's value, failing with ErrExists if key is already
// present. Fingerprint collisions between distinct keys are resolved by
// walking the log's prev_addr chain rather than trusting the index
// entry's mere presence, since the index only tracks "something is at
// this fingerprint", not which key.
func (s *Store) Insert(key kvtypes.Key, value kvtypes.Value) error {
	fp := s.opts.Fingerprint(key.Represent())
	prevAddr, err := s.lookupChainHead(fp)
	if err != nil {
		return err
	}

	if prevAddr != 0 {
		if _, err := s.log.Get(prevAddr, key.EqualSerialized); err == nil {
			return ErrExists
		} else if !errors.Is(err, kverr.ErrNotFound) {
			return err
		}
	}

	newAddr, err := s.log.Put(prevAddr, key.Serialize(), value.Serialize())
	if err != nil {
		return err
	}
	if _, err := s.idx.Upsert(fp, newAddr); err != nil {
		return fmt.Errorf("kvslite: index upsert: %w", err)
	}
	return nil
}

// Delete removes key, returning ErrNotFound if it was not present.
func (s *Store) Delete(key kvtypes.Key) error {
	fp := s.opts.Fingerprint(key.Represent())
	prevAddr, err := s.lookupChainHead(fp)
	if err != nil {
		return err
	}
	if prevAddr == 0 {
		return ErrNotFound
	}

	if _, err := s.log.Get(prevAddr, key.EqualSerialized); err != nil {
		return err
	}

	tombAddr, err := s.log.Delete(prevAddr, key.Serialize())
	if err != nil {
		return err
	}
	if _, err := s.idx.Upsert(fp, tombAddr); err != nil {
		return fmt.Errorf("kvslite: index upsert: %w", err)
	}
	return nil
}

// lookupChainHead returns the log address the index currently
// associates with fp, or 0 if none, collapsing ErrNotFound.
func (s *Store) lookupChainHead(fp uint64) (uint64, error) {
	addr, err := s.idx.Get(fp)
	if err != nil {
		if errors.Is(err, kverr.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return addr, nil
}

// Checkpoint flushes the index and the log to a crash-consistent state.
func (s *Store) Checkpoint() error {
	if err := s.idx.Checkpoint(); err != nil {
		return fmt.Errorf("kvslite: checkpoint index: %w", err)
	}
	if err := s.log.Checkpoint(); err != nil {
		return fmt.Errorf("kvslite: checkpoint log: %w", err)
	}
	return nil
}

// Stats snapshots a few index-level counters, generalizing the
// teacher's database.Stats/BufferPoolStats.
type Stats struct {
	GlobalDepth    uint64
	PagesAllocated uint64
}

// Stats returns a point-in-time snapshot of index statistics.
func (s *Store) Stats() Stats {
	return Stats{GlobalDepth: s.idx.GlobalDepth(), PagesAllocated: s.idx.PagesAllocated()}
}

// Close stops the background flusher, then closes the index, the log,
// and their backing files.
func (s *Store) Close() error {
	close(s.stop)
	s.wg.Wait()

	var firstErr error
	if err := s.idx.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.log.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.idxFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.logFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
