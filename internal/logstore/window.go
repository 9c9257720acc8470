package logstore

import (
	"fmt"
	"sync"
	"time"

	"github.com/kvslite-go/kvslite/internal/kverr"
	"github.com/kvslite-go/kvslite/internal/mmfile"
	"github.com/kvslite-go/kvslite/internal/record"
)

// window is the log's live write state: one contiguous mapping of at
// most WindowPages pages, remapped (never wrapped) when it must grow or
// its head must advance, so no record straddles a wraparound. Addresses held here
// (headPage, endAddr, persistPage) are all data-relative: byte/page 0
// is the first byte after the log file's one-page metadata header, not
// the start of the file. Address 0 itself is reserved as the "no
// previous record" sentinel, so the very first record written lands at
// address 1.
type window struct {
	f *mmfile.File

	mu   sync.Mutex
	cond *sync.Cond
	wake chan struct{} // buffered 1; signaled when pages become pending

	mapping  *mmfile.Mapping
	headPage uint64 // data-relative page index of mapping's first page
	spanPages int

	endAddr uint64 // next insertion byte, data-relative

	persistPage uint64 // data-relative page index up to which pages are durable

	flushPendingCount         uint64
	flushInProgress           bool
	lastFlushRequestUntilAddr uint64
}

func newWindow(f *mmfile.File) *window {
	w := &window{f: f, wake: make(chan struct{}, 1), endAddr: 1, lastFlushRequestUntilAddr: 1}
	w.cond = sync.NewCond(&w.mu)
	return w
}

func dataPageOffset(pageIdx uint64) int64 { return 1 + int64(pageIdx) }

// reserve makes room for a record of size sz starting at or after the
// current end-of-log address, applying the padding rule, and returns
// the address the record should be placed at. The window is grown (and
// slid forward, evicting durable head pages) as needed.
func (w *window) reserve(sz int) (uint64, error) {
	if sz >= WindowPages*PageSize {
		return 0, kverr.ErrRecordTooLarge
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	placeAddr := w.endAddr
	residue := PageSize - int(placeAddr%PageSize)
	if residue < record.HeaderSize {
		// The header must never straddle a page boundary.
		placeAddr += uint64(residue)
	}

	newEnd := placeAddr + uint64(sz)
	if (newEnd-1)/PageSize-placeAddr/PageSize >= WindowPages {
		// Once placed, the record would span more pages than the window holds.
		return 0, kverr.ErrRecordTooLarge
	}
	if err := w.ensureLocked(newEnd); err != nil {
		return 0, err
	}

	w.endAddr = newEnd
	w.requestFlushLocked()
	return placeAddr, nil
}

// ensureLocked grows or slides the mapped window so that it covers
// every byte up to newEnd. Must be called with w.mu held.
func (w *window) ensureLocked(newEnd uint64) error {
	topPage := (newEnd - 1) / PageSize

	if w.mapping == nil {
		var headPage uint64
		if topPage+1 > WindowPages {
			headPage = topPage - WindowPages + 1
		}
		span := int(topPage-headPage) + 1
		m, err := w.f.Load(dataPageOffset(headPage), span)
		if err != nil {
			return fmt.Errorf("logstore: map initial window: %w", err)
		}
		w.mapping, w.headPage, w.spanPages = m, headPage, span
		if w.persistPage < headPage {
			w.persistPage = headPage
		}
		return nil
	}

	span := int(topPage-w.headPage) + 1
	if span <= WindowPages {
		if span <= w.spanPages {
			return nil // already covered
		}
		return w.remapLocked(w.headPage, span)
	}

	// Must slide the head forward to stay within the page budget.
	newHeadPage := topPage - WindowPages + 1
	for w.persistPage < newHeadPage {
		w.cond.Wait()
	}
	return w.remapLocked(newHeadPage, WindowPages)
}

func (w *window) remapLocked(headPage uint64, spanPages int) error {
	if w.mapping != nil {
		if err := w.mapping.Evict(); err != nil {
			return fmt.Errorf("logstore: evict window mapping: %w", err)
		}
	}
	m, err := w.f.Load(dataPageOffset(headPage), spanPages)
	if err != nil {
		return fmt.Errorf("logstore: map window [%d,%d): %w", headPage, headPage+uint64(spanPages), err)
	}
	w.mapping, w.headPage, w.spanPages = m, headPage, spanPages
	if w.persistPage < headPage {
		w.persistPage = headPage
	}
	return nil
}

// requestFlushLocked updates the pending-flush bookkeeping after
// endAddr has advanced. Must be called with w.mu held.
func (w *window) requestFlushLocked() {
	if w.endAddr-w.lastFlushRequestUntilAddr <= PageSize {
		return
	}
	pages := (w.endAddr - w.lastFlushRequestUntilAddr) / PageSize
	w.flushPendingCount += pages
	w.lastFlushRequestUntilAddr += pages * PageSize
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// place writes a fully serialized record at addr, which must already be
// covered by the mapped window (reserve returns such an address).
func (w *window) place(addr uint64, buf []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	off := int(addr-w.headPage*PageSize)
	copy(w.mapping.Bytes()[off:off+len(buf)], buf)
}

// liveRange reports whether addr falls within the currently mapped
// window, and if so the mapping and offset within it.
func (w *window) liveRange(addr uint64) (data []byte, off int, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	start := w.headPage * PageSize
	end := w.headPage*PageSize + uint64(w.spanPages)*PageSize
	if addr < start || addr >= end {
		return nil, 0, false
	}
	return w.mapping.Bytes(), int(addr - start), true
}

// endAddrSnapshot reads log_end_addr under lock.
func (w *window) endAddrSnapshot() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.endAddr
}

// backgroundFlush drains whatever pages are currently pending, waiting
// up to flushWaitTimeout for work if none are pending yet. It reports
// whether it flushed anything.
func (w *window) backgroundFlush() (bool, error) {
	w.mu.Lock()
	if w.flushPendingCount == 0 {
		w.mu.Unlock()
		select {
		case <-w.wake:
		case <-time.After(flushWaitTimeout):
		}
		w.mu.Lock()
	}
	if w.flushPendingCount == 0 || w.mapping == nil {
		w.mu.Unlock()
		return false, nil
	}

	w.flushInProgress = true
	batch := w.flushPendingCount
	avail := (w.headPage + uint64(w.spanPages)) - w.persistPage
	if batch > avail {
		batch = avail
	}
	startPage := w.persistPage
	relOffset := int(startPage - w.headPage)
	mapping := w.mapping
	w.mu.Unlock()

	var flushErr error
	if batch > 0 {
		flushErr = mapping.FlushRange(relOffset, int(batch), PageSize)
	}

	w.mu.Lock()
	w.flushInProgress = false
	if flushErr != nil {
		w.mu.Unlock()
		return false, flushErr
	}
	w.persistPage = startPage + batch
	w.flushPendingCount -= batch
	w.cond.Broadcast()
	w.mu.Unlock()
	return batch > 0, nil
}

// checkpoint drains every pending page, then flushes the page currently
// holding log_end_addr.
func (w *window) checkpoint() error {
	for {
		w.mu.Lock()
		pending := w.flushPendingCount
		w.mu.Unlock()
		if pending == 0 {
			break
		}
		if _, err := w.backgroundFlush(); err != nil {
			return err
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.mapping == nil {
		return nil
	}
	endPage := (w.endAddr - 1) / PageSize
	rel := int(endPage - w.headPage)
	return w.mapping.FlushRange(rel, 1, PageSize)
}

func (w *window) close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.mapping == nil {
		return nil
	}
	return w.mapping.Evict()
}
