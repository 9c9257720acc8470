package hashindex

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kvslite-go/kvslite/internal/kverr"
	"github.com/kvslite-go/kvslite/internal/kvlog"
	"github.com/kvslite-go/kvslite/internal/mmfile"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	f, err := mmfile.Open(filepath.Join(t.TempDir(), "test.index"), PageSize)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	idx, err := Create(f, kvlog.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestIndexPutGetDelete(t *testing.T) {
	idx := newTestIndex(t)

	_, err := idx.Get(42)
	require.ErrorIs(t, err, kverr.ErrNotFound)

	_, err = idx.Put(42, 1000)
	require.NoError(t, err)

	addr, err := idx.Get(42)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), addr)

	_, err = idx.Put(42, 2000)
	require.ErrorIs(t, err, kverr.ErrExists)

	prev, err := idx.Upsert(42, 2000)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), prev)

	addr, err = idx.Get(42)
	require.NoError(t, err)
	require.Equal(t, uint64(2000), addr)

	deletedAddr, err := idx.Delete(42)
	require.NoError(t, err)
	require.Equal(t, uint64(2000), deletedAddr)

	_, err = idx.Get(42)
	require.ErrorIs(t, err, kverr.ErrNotFound)

	_, err = idx.Delete(42)
	require.ErrorIs(t, err, kverr.ErrNotFound)
}

func TestIndexResurrectsDeletedSlot(t *testing.T) {
	idx := newTestIndex(t)

	_, err := idx.Put(7, 111)
	require.NoError(t, err)
	_, err = idx.Delete(7)
	require.NoError(t, err)

	_, err = idx.Put(7, 222)
	require.NoError(t, err)

	addr, err := idx.Get(7)
	require.NoError(t, err)
	require.Equal(t, uint64(222), addr)
}

// TestIndexSurvivesManyInsertsAndSplits drives enough distinct
// fingerprints through a single page to force repeated Extend calls
// (directory doubling plus page splits), then checks every mapping is
// still resolvable afterward.
func TestIndexSurvivesManyInsertsAndSplits(t *testing.T) {
	idx := newTestIndex(t)

	const n = 5000
	for i := uint64(0); i < n; i++ {
		fp := i * 2654435761 // Knuth multiplicative spread
		_, err := idx.Upsert(fp, i+1)
		require.NoErrorf(t, err, "upsert %d", i)
	}

	for i := uint64(0); i < n; i++ {
		fp := i * 2654435761
		addr, err := idx.Get(fp)
		require.NoErrorf(t, err, "get %d", i)
		require.Equalf(t, i+1, addr, "fp %d", fp)
	}

	require.Greater(t, idx.GlobalDepth(), uint64(0))
	require.Greater(t, idx.PagesAllocated(), uint64(1))
}

func TestIndexCheckpointReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.index")

	f, err := mmfile.Open(path, PageSize)
	require.NoError(t, err)

	idx, err := Create(f, kvlog.NewNop())
	require.NoError(t, err)

	for i := uint64(0); i < 200; i++ {
		_, err := idx.Upsert(i*97, i+1)
		require.NoError(t, err)
	}
	require.NoError(t, idx.Checkpoint())
	require.NoError(t, idx.Close())
	require.NoError(t, f.Close())

	f2, err := mmfile.Open(path, PageSize)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f2.Close() })

	reopened, err := Open(f2, kvlog.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	for i := uint64(0); i < 200; i++ {
		addr, err := reopened.Get(i * 97)
		require.NoErrorf(t, err, "get %d", i)
		require.Equal(t, i+1, addr)
	}
}
