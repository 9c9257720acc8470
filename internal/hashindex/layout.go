// Package hashindex implements the extendible hash index (spec.md §4.1):
// in-file pages, per-page overflow buckets, directory doubling, lazy
// splits, and an LRU page cache with dirty flushing.
//
// Structurally this generalizes the teacher's storage.BufferPool LRU
// (map + intrusive doubly linked list) from page-id keys with
// fixed-size opaque pages to directory-addressed, mmap-backed hash
// pages with per-page re-entrant locks, and it generalizes the teacher's
// B+-tree split machinery (bptree.go's leaf/internal splitting) from a
// sorted-key split to an extendible-hash bucket split driven by a
// fingerprint's validation bit rather than a median key.
package hashindex

import "math"

const (
	// PageSize is the on-disk hash page size.
	PageSize = 4096

	// CacheLineSize is the bucket size: 4 entries * 16 bytes/entry.
	CacheLineSize = 64

	// EntrySize is sizeof(hash entry) — two 64-bit words.
	EntrySize = 16

	// EntriesPerBucket is cacheline / sizeof(entry).
	EntriesPerBucket = CacheLineSize / EntrySize

	// BucketsPerPage is page_size / cacheline.
	BucketsPerPage = PageSize / CacheLineSize

	// PrimaryBuckets ("b" in spec.md) is the first half of a page's
	// buckets, addressed directly by fingerprint mod b.
	PrimaryBuckets = BucketsPerPage / 2

	// overflowIndexBits is log2(BucketsPerPage): the width of the
	// in-page overflow-bucket index packed into a terminal entry's low
	// bits.
	overflowIndexBits = 6

	// NIndexSlots is the fixed LRU pool size for mapped hash pages.
	NIndexSlots = 1024

	// MetadataPages is the file's reserved prefix: page_size,
	// pages_allocated, global_depth, and the directory array.
	MetadataPages = 256
)

// Unallocated marks a directory entry with no backing page yet.
const Unallocated uint64 = math.MaxUint64

// dirRecordSize is the on-disk size of one persisted directory entry:
// local_depth, overflow_cursor, file_offset, each a uint64. page_ptr is
// in-memory only.
const dirRecordSize = 24
