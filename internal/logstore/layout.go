// Package logstore implements the append-only record log (spec.md
// §4.2): a circular in-memory mapped window over a disk file, a
// background flusher draining dirty pages under back-pressure, and
// fingerprint collision resolution via prev_addr back-links.
//
// The spec's window is a literal ring buffer addressed with modular
// page arithmetic. Go's mmap can't slide a live mapping in place, so
// this implementation instead remaps a contiguous span whenever the
// window needs to grow or its head needs to advance — see the window
// type's doc comment and DESIGN.md for the consequence this has for record
// placement (no record ever straddles a wraparound, because there is
// none).
//
// Grounded in the teacher's pkg/wal.WAL (file-backed append log, mutex
// guarded, fmt.Errorf-wrapped) generalized from plain read/write/fsync
// to an mmap'd window with bounded residency and asynchronous flushing.
package logstore

import "time"

const (
	// PageSize is the log file's page size.
	PageSize = 4096

	// WindowPages is kNumBufPage: the window's page budget.
	WindowPages = 1024

	// metaPageBytes is page 0 of the log file: u64 page_size, u64
	// log_end_addr.
	metaPageBytes = 16
)

// flushWaitTimeout is the flusher's wake timeout from spec.md §5
// ("timeout 6µs"). A goroutine-based flusher checks far less often in
// practice since Go's scheduler granularity dwarfs this, but the
// timeout keeps the flusher responsive to being driven in a tight loop
// by the coordinator even without any pending work signal.
const flushWaitTimeout = 6 * time.Microsecond
