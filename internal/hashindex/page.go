package hashindex

// HashPage is a thin view over one page-sized []byte holding
// BucketsPerPage buckets of EntriesPerBucket entries each. The first
// PrimaryBuckets buckets are primary (addressed by fingerprint mod b);
// the rest are overflow buckets allocated on demand.
//
// The very last entry of the page (bucket BucketsPerPage-1, slot
// EntriesPerBucket-1) is always a bucket-terminal slot — per spec.md
// that slot is never "taken", it only ever carries overflow linkage —
// and since the last bucket of a page has nowhere further to link to,
// that slot's address field is repurposed to store the page's
// local_depth for recovery (spec.md §6), costing no extra space.
type HashPage struct {
	data []byte
}

// NewHashPage wraps a raw page's bytes (from a mapped mmfile.Mapping
// or a scratch buffer) as a HashPage. data must be exactly PageSize
// bytes.
func NewHashPage(data []byte) *HashPage {
	return &HashPage{data: data}
}

func bucketOffset(bucket int) int { return bucket * CacheLineSize }

func entryOffset(bucket, slot int) int {
	return bucketOffset(bucket) + slot*EntrySize
}

// Entry reads the entry at (bucket, slot).
func (p *HashPage) Entry(bucket, slot int) HashEntry {
	off := entryOffset(bucket, slot)
	return decodeEntry(p.data[off : off+EntrySize])
}

// SetEntry writes the entry at (bucket, slot).
func (p *HashPage) SetEntry(bucket, slot int, e HashEntry) {
	off := entryOffset(bucket, slot)
	enc := encodeEntry(e)
	copy(p.data[off:off+EntrySize], enc[:])
}

// IsTerminalSlot reports whether slot is a bucket's last (linkage)
// slot.
func IsTerminalSlot(slot int) bool { return slot == EntriesPerBucket-1 }

// lastEntryPos is the (bucket, slot) of the whole page's final entry,
// which doubles as local_depth storage.
func lastEntryPos() (int, int) { return BucketsPerPage - 1, EntriesPerBucket - 1 }

// LocalDepth reads the page's local_depth, stored in the final entry's
// address field.
func (p *HashPage) LocalDepth() uint64 {
	b, s := lastEntryPos()
	return p.Entry(b, s).Address()
}

// SetLocalDepth stores the page's local_depth in the final entry's
// address field, leaving its overflow-index bits untouched.
func (p *HashPage) SetLocalDepth(ld uint64) {
	b, s := lastEntryPos()
	p.SetEntry(b, s, p.Entry(b, s).WithAddress(ld))
}

// Zero clears the whole page to its fresh, empty state and stamps
// local_depth.
func (p *HashPage) Zero(localDepth uint64) {
	for i := range p.data {
		p.data[i] = 0
	}
	p.SetLocalDepth(localDepth)
}

// Bytes exposes the raw page bytes (for copying into/out of scratch
// buffers during a split).
func (p *HashPage) Bytes() []byte { return p.data }

// ZeroOverflowBucket clears a newly allocated overflow bucket, taking
// care not to disturb local_depth if bucket happens to be the page's
// very last bucket.
func (p *HashPage) ZeroOverflowBucket(bucket int) {
	lastB, lastS := lastEntryPos()
	for s := 0; s < EntriesPerBucket; s++ {
		if bucket == lastB && s == lastS {
			p.SetEntry(bucket, s, p.Entry(bucket, s).WithOverflowIndex(0))
			continue
		}
		p.SetEntry(bucket, s, ZeroEntry())
	}
}
