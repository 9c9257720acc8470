package hashindex

// DirEntry is the in-memory directory entry from spec.md §3. PagePtr is
// deliberately absent: page identity is the FileOffset, and the page
// cache (cache.go) keys its LRU pool by FileOffset so that two
// directory slots sharing a page (before that page has been split
// since the last directory doubling) transparently share one cached
// mapping, exactly as "page sharing via pointer to the pre-existing
// entry is expressed by pointing to the same offset" describes.
type DirEntry struct {
	LocalDepth     uint64
	OverflowCursor uint64
	FileOffset     uint64 // page index, or Unallocated
}

// Directory is the extendible hash directory: 2^globalDepth entries.
type Directory struct {
	entries     []DirEntry
	globalDepth uint64
}

// NewDirectory builds a fresh single-entry directory pointing at page
// 0, global_depth 0.
func NewDirectory() *Directory {
	return &Directory{
		entries:     []DirEntry{{LocalDepth: 0, OverflowCursor: PrimaryBuckets, FileOffset: 0}},
		globalDepth: 0,
	}
}

func (d *Directory) GlobalDepth() uint64 { return d.globalDepth }
func (d *Directory) Size() int           { return len(d.entries) }
func (d *Directory) Entry(i uint64) *DirEntry { return &d.entries[i] }

// DirIdx is dir_idx(fp) = (fp / b) mod 2^global_depth.
func (d *Directory) DirIdx(fp uint64) uint64 {
	return (fp / PrimaryBuckets) % (uint64(1) << d.globalDepth)
}

// RefDirIdx is ref_dir_idx(fp): the entry that actually owns the page
// once local_depth is taken into account.
func (d *Directory) RefDirIdx(fp uint64) uint64 {
	di := d.DirIdx(fp)
	ld := d.entries[di].LocalDepth
	return (fp / PrimaryBuckets) % (uint64(1) << ld)
}

// Double allocates a directory of twice the size: slot i keeps
// entries[i] verbatim, slot i+2^globalDepth gets a partial copy
// carrying only local_depth (file_offset Unallocated, overflow_cursor
// zero) until that page is actually split.
func (d *Directory) Double() {
	oldSize := len(d.entries)
	next := make([]DirEntry, oldSize*2)
	for i := 0; i < oldSize; i++ {
		next[i] = d.entries[i]
		next[i+oldSize] = DirEntry{
			LocalDepth:     d.entries[i].LocalDepth,
			OverflowCursor: 0,
			FileOffset:     Unallocated,
		}
	}
	d.entries = next
	d.globalDepth++
}

// encode/decode the directory array for the checkpoint metadata
// prefix.
func (d *Directory) encode() []byte {
	buf := make([]byte, len(d.entries)*dirRecordSize)
	for i, e := range d.entries {
		off := i * dirRecordSize
		putU64(buf[off:off+8], e.LocalDepth)
		putU64(buf[off+8:off+16], e.OverflowCursor)
		putU64(buf[off+16:off+24], e.FileOffset)
	}
	return buf
}

func decodeDirectory(buf []byte, globalDepth uint64) *Directory {
	n := int(uint64(1) << globalDepth)
	entries := make([]DirEntry, n)
	for i := 0; i < n; i++ {
		off := i * dirRecordSize
		entries[i] = DirEntry{
			LocalDepth:     getU64(buf[off : off+8]),
			OverflowCursor: getU64(buf[off+8 : off+16]),
			FileOffset:     getU64(buf[off+16 : off+24]),
		}
	}
	return &Directory{entries: entries, globalDepth: globalDepth}
}
