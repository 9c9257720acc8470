package hashindex

import (
	"fmt"

	"github.com/kvslite-go/kvslite/internal/kverr"
	"github.com/kvslite-go/kvslite/internal/kvlog"
	"github.com/kvslite-go/kvslite/internal/mmfile"
)

const metaHeaderSize = 24 // page_size, pages_allocated, global_depth

// Index is the hash index component (spec.md §4.1): one active writer,
// addressing through the directory, mutation through the page cache.
type Index struct {
	f              *mmfile.File
	dir            *Directory
	cache          *PageCache
	pagesAllocated uint64
	logger         kvlog.Logger
}

func validationFull(fp uint64, ld uint64) uint64 { return (fp / PrimaryBuckets) >> ld }
func bucketIdx(fp uint64) int                    { return int(fp % PrimaryBuckets) }

// Create initializes a brand-new index over f (already truncated to
// zero length by the caller).
func Create(f *mmfile.File, logger kvlog.Logger) (*Index, error) {
	idx := &Index{
		f:              f,
		dir:            NewDirectory(),
		cache:          NewPageCache(f, NIndexSlots),
		pagesAllocated: 1,
		logger:         logger,
	}
	slot, err := idx.cache.Acquire(0)
	if err != nil {
		return nil, err
	}
	slot.page.Zero(0)
	slot.Release(true)
	return idx, nil
}

// Open loads an existing index, verifying the stored page size matches
// PageSize.
func Open(f *mmfile.File, logger kvlog.Logger) (*Index, error) {
	hdr := make([]byte, metaHeaderSize)
	if _, err := f.ReadAt(hdr, 0); err != nil {
		return nil, fmt.Errorf("hashindex: read metadata header: %w", err)
	}
	pageSize := getU64(hdr[0:8])
	if pageSize != 0 && pageSize != PageSize {
		return nil, kverr.ErrLoadMismatch
	}
	pagesAllocated := getU64(hdr[8:16])
	globalDepth := getU64(hdr[16:24])

	dirBytes := make([]byte, (uint64(1)<<globalDepth)*dirRecordSize)
	if len(dirBytes) > 0 {
		if _, err := f.ReadAt(dirBytes, metaHeaderSize); err != nil {
			return nil, fmt.Errorf("hashindex: read directory: %w", err)
		}
	}
	dir := decodeDirectory(dirBytes, globalDepth)

	return &Index{
		f:              f,
		dir:            dir,
		cache:          NewPageCache(f, NIndexSlots),
		pagesAllocated: pagesAllocated,
		logger:         logger,
	}, nil
}

// Get returns the log address most recently associated with fp.
func (idx *Index) Get(fp uint64) (uint64, error) {
	de := idx.dir.Entry(idx.dir.RefDirIdx(fp))
	if de.FileOffset == Unallocated {
		return 0, kverr.ErrNotFound
	}
	slot, err := idx.cache.Acquire(de.FileOffset)
	if err != nil {
		return 0, err
	}
	defer slot.Release(false)

	ld := slot.page.LocalDepth()
	res := scanChain(slot.page, bucketIdx(fp), validationFull(fp, ld))
	if !res.found || res.foundDeleted {
		return 0, kverr.ErrNotFound
	}
	return slot.page.Entry(res.entryBucket, res.entrySlot).Address(), nil
}

// Put inserts a new mapping, failing with kverr.ErrExists (and
// returning the pre-existing address) if fp is already present and not
// deleted.
func (idx *Index) Put(fp, addr uint64) (uint64, error) {
	return idx.putOrUpsert(fp, addr, false)
}

// Upsert overwrites or inserts, returning the previous address on
// overwrite (0 on a fresh insert).
func (idx *Index) Upsert(fp, addr uint64) (uint64, error) {
	return idx.putOrUpsert(fp, addr, true)
}

func (idx *Index) putOrUpsert(fp, addr uint64, upsert bool) (uint64, error) {
	for {
		ref := idx.dir.RefDirIdx(fp)
		de := idx.dir.Entry(ref)
		if de.FileOffset == Unallocated {
			// RefDirIdx always resolves to an already-allocated page
			// (extend records every split's new page on the sibling
			// slot); reaching this means directory state is
			// inconsistent.
			return 0, fmt.Errorf("hashindex: ref dir idx %d unallocated: %w", ref, kverr.ErrAllocationFailure)
		}

		slot, err := idx.cache.Acquire(de.FileOffset)
		if err != nil {
			return 0, err
		}

		ld := slot.page.LocalDepth()
		validation := validationFull(fp, ld)
		res := scanChain(slot.page, bucketIdx(fp), validation)

		if res.found {
			e := slot.page.Entry(res.entryBucket, res.entrySlot)
			if !e.Deleted() {
				prev := e.Address()
				if !upsert {
					slot.Release(false)
					return prev, kverr.ErrExists
				}
				e = e.WithAddress(addr).WithChainLength(e.ChainLength() + 1)
				slot.page.SetEntry(res.entryBucket, res.entrySlot, e)
				slot.Release(true)
				return prev, nil
			}
			e = e.WithDeleted(false).WithAddress(addr).WithChainLength(1)
			slot.page.SetEntry(res.entryBucket, res.entrySlot, e)
			slot.Release(true)
			return 0, nil
		}

		if res.reservedSet {
			e := NewLiveEntry(validation, addr, false, 0)
			slot.page.SetEntry(res.reservedBucket, res.reservedSlot, e)
			slot.Release(true)
			return 0, nil
		}

		if !res.stopIsOverflowEnd {
			e := NewLiveEntry(validation, addr, false, 0)
			slot.page.SetEntry(res.stopBucket, res.stopSlot, e)
			slot.Release(true)
			return 0, nil
		}

		// Chain ends at a bucket's terminal slot with no overflow yet.
		if de.OverflowCursor >= BucketsPerPage {
			slot.Release(false)
			if err := idx.extend(fp); err != nil {
				return 0, err
			}
			continue
		}

		newBucket := de.OverflowCursor
		de.OverflowCursor++

		slot.page.ZeroOverflowBucket(int(newBucket))

		term := slot.page.Entry(res.lastBucketVisited, EntriesPerBucket-1)
		term = term.WithOverflowIndex(newBucket)
		slot.page.SetEntry(res.lastBucketVisited, EntriesPerBucket-1, term)

		e := NewLiveEntry(validation, addr, false, 0)
		slot.page.SetEntry(int(newBucket), 0, e)

		slot.Release(true)
		return 0, nil
	}
}

// Delete marks fp's entry deleted, returning the address it pointed at
// just before deletion.
func (idx *Index) Delete(fp uint64) (uint64, error) {
	de := idx.dir.Entry(idx.dir.RefDirIdx(fp))
	if de.FileOffset == Unallocated {
		return 0, kverr.ErrNotFound
	}
	slot, err := idx.cache.Acquire(de.FileOffset)
	if err != nil {
		return 0, err
	}

	ld := slot.page.LocalDepth()
	res := scanChain(slot.page, bucketIdx(fp), validationFull(fp, ld))
	if !res.found || res.foundDeleted {
		slot.Release(false)
		return 0, kverr.ErrNotFound
	}

	e := slot.page.Entry(res.entryBucket, res.entrySlot)
	addr := e.Address()
	e = e.WithDeleted(true).WithChainLength(0)
	slot.page.SetEntry(res.entryBucket, res.entrySlot, e)
	slot.Release(true)
	return addr, nil
}

// BackgroundFlush flushes a single LRU dirty page. Advisory; kvslite's
// coordinator leaves this unscheduled by default, matching the
// reference design (spec.md §4.1).
func (idx *Index) BackgroundFlush() (bool, error) {
	return idx.cache.FlushOne()
}

// Checkpoint flushes every dirty index page, then persists page_size,
// pages_allocated, global_depth, and the directory array into the
// file's reserved metadata prefix.
func (idx *Index) Checkpoint() error {
	if err := idx.cache.Checkpoint(); err != nil {
		return err
	}

	dirBytes := idx.dir.encode()
	if metaHeaderSize+len(dirBytes) > MetadataPages*PageSize {
		return fmt.Errorf("hashindex: directory outgrew metadata prefix: %w", kverr.ErrAllocationFailure)
	}

	buf := make([]byte, metaHeaderSize+len(dirBytes))
	putU64(buf[0:8], PageSize)
	putU64(buf[8:16], idx.pagesAllocated)
	putU64(buf[16:24], idx.dir.GlobalDepth())
	copy(buf[metaHeaderSize:], dirBytes)

	if _, err := idx.f.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("hashindex: write metadata: %w", err)
	}
	return idx.f.Sync()
}

// Close releases the page cache.
func (idx *Index) Close() error {
	return idx.cache.Close()
}

// GlobalDepth reports the directory's current depth, for stats.
func (idx *Index) GlobalDepth() uint64 { return idx.dir.GlobalDepth() }

// PagesAllocated reports how many hash pages have been allocated.
func (idx *Index) PagesAllocated() uint64 { return idx.pagesAllocated }
