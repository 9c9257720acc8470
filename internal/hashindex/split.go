package hashindex

import "fmt"

// extend performs the split that makes room for fp's bucket chain:
// doubling the directory first if the owning page's local_depth has
// caught up with global_depth, then dividing the page's live entries
// between the existing page (rebuilt from a zeroed scratch copy) and a
// freshly allocated sibling, routed by the fingerprint bit that
// local_depth is about to absorb.
func (idx *Index) extend(fp uint64) error {
	ref := idx.dir.RefDirIdx(fp)
	if idx.dir.Entry(ref).LocalDepth == idx.dir.GlobalDepth() {
		idx.dir.Double()
		ref = idx.dir.RefDirIdx(fp) // Double() reallocates the entry slice
	}

	srcDe := idx.dir.Entry(ref)
	ld := srcDe.LocalDepth
	newLd := ld + 1
	stride := uint64(1) << ld
	srcFileOffset := srcDe.FileOffset

	srcSlot, err := idx.cache.Acquire(srcFileOffset)
	if err != nil {
		return err
	}
	srcPage := srcSlot.page

	tgtFileOffset := idx.pagesAllocated
	idx.pagesAllocated++
	tgtSlot, err := idx.cache.Acquire(tgtFileOffset)
	if err != nil {
		srcSlot.Release(false)
		return err
	}
	tgtPage := tgtSlot.page
	tgtPage.Zero(newLd)

	scratch := NewHashPage(make([]byte, PageSize))
	scratch.Zero(newLd)

	srcCursor := uint64(PrimaryBuckets)
	tgtCursor := uint64(PrimaryBuckets)

	for i := 0; i < PrimaryBuckets; i++ {
		bucket := i
		for {
			stop := false
			for slot := 0; slot < EntriesPerBucket-1; slot++ {
				e := srcPage.Entry(bucket, slot)
				if !e.Taken() {
					stop = true
					break
				}
				if e.Deleted() {
					continue
				}
				oldValidation := e.Validation(false)
				newValidation := oldValidation >> 1
				routed := e.WithValidation(newValidation, false)
				if oldValidation&1 == 0 {
					appendLive(scratch, &srcCursor, i, routed)
				} else {
					appendLive(tgtPage, &tgtCursor, i, routed)
				}
			}
			if stop {
				break
			}
			term := srcPage.Entry(bucket, EntriesPerBucket-1)
			next := term.OverflowIndex()
			if next == 0 {
				break
			}
			bucket = int(next)
		}
	}

	copy(srcPage.Bytes(), scratch.Bytes())
	srcSlot.Release(true)
	tgtSlot.Release(true)

	for i := ref; i < uint64(idx.dir.Size()); i += stride {
		e := idx.dir.Entry(i)
		if e.FileOffset != srcFileOffset && e.FileOffset != Unallocated {
			continue
		}
		e.LocalDepth = newLd
		if ((i-ref)/stride)%2 == 0 {
			e.OverflowCursor = srcCursor
		} else {
			e.FileOffset = tgtFileOffset
			e.OverflowCursor = tgtCursor
		}
	}

	return nil
}

// appendLive places e (already carrying its post-split validation bits)
// into the first free slot of bucket's chain on page, allocating a new
// overflow bucket via cursor if the chain is full. The source page this
// redistributes from held no more entries than fit before the split, so
// this can never itself need to recurse into another split.
func appendLive(page *HashPage, cursor *uint64, bucket int, e HashEntry) {
	b := bucket
	for {
		for slot := 0; slot < EntriesPerBucket-1; slot++ {
			if !page.Entry(b, slot).Taken() {
				page.SetEntry(b, slot, e)
				return
			}
		}

		term := page.Entry(b, EntriesPerBucket-1)
		next := term.OverflowIndex()
		if next == 0 {
			nb := *cursor
			*cursor++
			if nb >= BucketsPerPage {
				panic(fmt.Sprintf("hashindex: split overflowed page redistributing bucket %d", bucket))
			}
			page.ZeroOverflowBucket(int(nb))
			term = term.WithOverflowIndex(nb)
			page.SetEntry(b, EntriesPerBucket-1, term)
			b = int(nb)
			continue
		}
		b = int(next)
	}
}
