package logstore

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kvslite-go/kvslite/internal/kverr"
	"github.com/kvslite-go/kvslite/internal/mmfile"
)

// equalTo builds the matcher Store.Get expects, standing in for a
// real Key's EqualSerialized in these package-local tests.
func equalTo(key []byte) func([]byte) bool {
	return func(candidate []byte) bool { return bytes.Equal(candidate, key) }
}

func newTestStore(t *testing.T) (*Store, *mmfile.File) {
	t.Helper()
	f, err := mmfile.Open(filepath.Join(t.TempDir(), "test.log"), PageSize)
	require.NoError(t, err)
	s, err := Create(f, 16)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
		_ = f.Close()
	})
	return s, f
}

func TestStorePutGetDelete(t *testing.T) {
	s, _ := newTestStore(t)

	addr, err := s.Put(0, []byte("hello"), []byte("world"))
	require.NoError(t, err)
	require.NotZero(t, addr)

	value, err := s.Get(addr, equalTo([]byte("hello")))
	require.NoError(t, err)
	require.Equal(t, []byte("world"), value)

	_, err = s.Get(addr, equalTo([]byte("nope")))
	require.ErrorIs(t, err, kverr.ErrNotFound)

	tombAddr, err := s.Delete(addr, []byte("hello"))
	require.NoError(t, err)

	_, err = s.Get(tombAddr, equalTo([]byte("hello")))
	require.ErrorIs(t, err, kverr.ErrNotFound)
}

// TestStoreChainWalksBackThroughUpdates confirms that after repeated Put
// calls chained via prevAddr, reading from the latest address (as the
// coordinator always does) returns the most recent value.
func TestStoreChainWalksBackThroughUpdates(t *testing.T) {
	s, _ := newTestStore(t)

	addr1, err := s.Put(0, []byte("k"), []byte("v1"))
	require.NoError(t, err)
	addr2, err := s.Put(addr1, []byte("k"), []byte("v2"))
	require.NoError(t, err)
	addr3, err := s.Put(addr2, []byte("k"), []byte("v3"))
	require.NoError(t, err)

	value, err := s.Get(addr3, equalTo([]byte("k")))
	require.NoError(t, err)
	require.Equal(t, []byte("v3"), value)
}

// TestStoreCollisionChainDistinguishesKeys exercises the scenario where
// two unrelated keys share the same index fingerprint: the log must
// still distinguish them by serialized key while walking prevAddr.
func TestStoreCollisionChainDistinguishesKeys(t *testing.T) {
	s, _ := newTestStore(t)

	addrA, err := s.Put(0, []byte("alpha"), []byte("1"))
	require.NoError(t, err)
	addrB, err := s.Put(addrA, []byte("beta"), []byte("2"))
	require.NoError(t, err)

	valueA, err := s.Get(addrB, equalTo([]byte("alpha")))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), valueA)

	valueB, err := s.Get(addrB, equalTo([]byte("beta")))
	require.NoError(t, err)
	require.Equal(t, []byte("2"), valueB)

	_, err = s.Get(addrB, equalTo([]byte("gamma")))
	require.ErrorIs(t, err, kverr.ErrNotFound)
}

func TestStoreRecordTooLarge(t *testing.T) {
	s, _ := newTestStore(t)

	huge := make([]byte, WindowPages*PageSize)
	_, err := s.Put(0, []byte("k"), huge)
	require.ErrorIs(t, err, kverr.ErrRecordTooLarge)
}

// TestStoreWindowGrowsPastInitialSpan writes enough records (about 26
// pages) to push the window well beyond a single page, exercising the
// grow path in ensureLocked, and drains pending pages with
// BackgroundFlush after every Put. The window stays under WindowPages,
// so the slide-and-evict path is not reached.
func TestStoreWindowGrowsPastInitialSpan(t *testing.T) {
	s, _ := newTestStore(t)

	value := make([]byte, 512)
	var prev uint64
	var addrs []uint64
	const n = 200
	for i := 0; i < n; i++ {
		addr, err := s.Put(prev, []byte("key"), value)
		require.NoError(t, err)
		addrs = append(addrs, addr)
		prev = addr

		for {
			flushed, err := s.BackgroundFlush()
			require.NoError(t, err)
			if !flushed {
				break
			}
		}
	}

	got, err := s.Get(addrs[len(addrs)-1], equalTo([]byte("key")))
	require.NoError(t, err)
	require.Equal(t, value, got)
}

func TestStoreCheckpointReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.log")

	f, err := mmfile.Open(path, PageSize)
	require.NoError(t, err)

	s, err := Create(f, 16)
	require.NoError(t, err)

	addr, err := s.Put(0, []byte("durable"), []byte("value"))
	require.NoError(t, err)
	require.NoError(t, s.Checkpoint())
	require.NoError(t, s.Close())
	require.NoError(t, f.Close())

	f2, err := mmfile.Open(path, PageSize)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f2.Close() })

	reopened, err := Open(f2, 16)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	value, err := reopened.Get(addr, equalTo([]byte("durable")))
	require.NoError(t, err)
	require.Equal(t, []byte("value"), value)
}
