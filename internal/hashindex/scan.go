package hashindex

// scanResult is the outcome of walking a fingerprint's bucket chain
// (spec.md §4.1's lookup/insertion walk): either a matching entry, a
// reusable deleted slot seen along the way, or the point where the
// chain runs out.
type scanResult struct {
	found       bool
	foundDeleted bool
	entryBucket, entrySlot int

	reservedSet              bool
	reservedBucket, reservedSlot int

	stopBucket, stopSlot int
	stopIsOverflowEnd    bool

	lastBucketVisited int
}

// scanChain walks the chain for a fingerprint's validation bits,
// starting at the primary bucket startBucket. A non-terminal slot with
// taken=0 ends the chain outright (the invariant that every slot after
// the first free one is also free). A bucket's terminal slot never
// holds live data; it only ever carries overflow linkage, so it is
// consulted for its overflow index and skipped over for validation
// matching.
func scanChain(page *HashPage, startBucket int, validation uint64) scanResult {
	var res scanResult
	res.reservedBucket, res.reservedSlot = -1, -1

	bucket := startBucket
outer:
	for {
		for slot := 0; slot < EntriesPerBucket; slot++ {
			e := page.Entry(bucket, slot)

			if !IsTerminalSlot(slot) {
				if !e.Taken() {
					res.stopBucket, res.stopSlot = bucket, slot
					res.lastBucketVisited = bucket
					return res
				}
				if e.Validation(false) == validation {
					res.found = true
					res.foundDeleted = e.Deleted()
					res.entryBucket, res.entrySlot = bucket, slot
					return res
				}
				if e.Deleted() && !res.reservedSet {
					res.reservedSet = true
					res.reservedBucket, res.reservedSlot = bucket, slot
				}
				continue
			}

			res.lastBucketVisited = bucket
			next := e.OverflowIndex()
			if next == 0 {
				res.stopBucket, res.stopSlot = bucket, slot
				res.stopIsOverflowEnd = true
				return res
			}
			bucket = int(next)
			continue outer
		}
	}
}
