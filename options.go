package kvslite

import (
	"io"

	"github.com/kvslite-go/kvslite/internal/kvhash"
	"github.com/kvslite-go/kvslite/internal/kvlog"
	"github.com/kvslite-go/kvslite/internal/kvtypes"
)

// Options configures a Store. The zero value is usable: it opens or
// creates a store named "kvslite" in the current directory, using the
// default fingerprint mixer and raw-bytes keys/values, logging to
// stderr.
type Options struct {
	// Dir is the directory the store's files live in. Defaults to ".".
	Dir string

	// Name is the store's base name, used to derive <name>sc.txt,
	// <name>.index, and <name>.log. Defaults to "kvslite".
	Name string

	// Fingerprint mixes a key's string representation into a 64-bit
	// fingerprint. Defaults to kvhash.Default.
	Fingerprint kvhash.FingerprintFunc

	// ValueDecoder reconstructs typed values from serialized bytes read
	// back out of the log. KeyDecoder is defaulted but never called:
	// stored keys are compared in serialized form via EqualSerialized.
	// Both default to the raw BytesKey/BytesValue codecs.
	KeyDecoder   kvtypes.KeyDecoder
	ValueDecoder kvtypes.ValueDecoder

	// ColdCacheCapacityPages overrides the log's read-only page cache
	// size (spec.md §4.3's kNumSwapPage). Zero uses the package default.
	ColdCacheCapacityPages int

	// Logger receives structured diagnostics. Defaults to kvlog.Default().
	Logger kvlog.Logger

	// LogOutput, if set and Logger is nil, builds a Logger writing here
	// instead of stderr.
	LogOutput io.Writer
}

func (o Options) withDefaults() Options {
	if o.Dir == "" {
		o.Dir = "."
	}
	if o.Name == "" {
		o.Name = "kvslite"
	}
	if o.Fingerprint == nil {
		o.Fingerprint = kvhash.Default
	}
	if o.KeyDecoder == nil {
		o.KeyDecoder = kvtypes.DecodeBytesKey
	}
	if o.ValueDecoder == nil {
		o.ValueDecoder = kvtypes.DecodeBytesValue
	}
	if o.Logger == nil {
		if o.LogOutput != nil {
			o.Logger = kvlog.New(o.LogOutput)
		} else {
			o.Logger = kvlog.Default()
		}
	}
	return o
}
