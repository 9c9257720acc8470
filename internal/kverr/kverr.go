// Package kverr defines the error taxonomy shared by the hash index, the
// log store, and the coordinator. Callers check kind with errors.Is;
// context is attached with fmt.Errorf("...: %w", ...).
package kverr

import "errors"

var (
	// ErrNotFound means no mapping exists for the fingerprint, or a
	// record chain was walked to prev_addr==0 without a key match.
	ErrNotFound = errors.New("kvslite: not found")

	// ErrExists means Put was called on a fingerprint already present
	// and not deleted.
	ErrExists = errors.New("kvslite: fingerprint already exists")

	// ErrIOFailure wraps a failed open/read/write/mmap/msync/munmap/
	// ftruncate on an underlying file.
	ErrIOFailure = errors.New("kvslite: io failure")

	// ErrLoadMismatch means the file's stored page_size disagrees with
	// the running system's configured page size.
	ErrLoadMismatch = errors.New("kvslite: page size mismatch on load")

	// ErrRecordTooLarge means a record would not fit even after the
	// whole log window was mapped in.
	ErrRecordTooLarge = errors.New("kvslite: record too large for log window")

	// ErrAllocationFailure means a scratch or directory allocation
	// failed.
	ErrAllocationFailure = errors.New("kvslite: allocation failure")
)
