package kvslite

import (
	"errors"
	"testing"

	"github.com/kvslite-go/kvslite/internal/kvhash"
	"github.com/kvslite-go/kvslite/internal/kvtypes"
)

func TestStorePutGetDelete(t *testing.T) {
	dir := t.TempDir()

	store, err := Open(Options{Dir: dir, Name: "basic"})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	key := kvtypes.BytesKey("alpha")
	value := kvtypes.BytesValue("one")

	if err := store.Put(key, value); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.Get(key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got.Serialize()) != "one" {
		t.Errorf("got value %q, want %q", got.Serialize(), "one")
	}

	if err := store.Delete(key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := store.Get(key); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete: got err %v, want ErrNotFound", err)
	}

	if err := store.Delete(key); !errors.Is(err, ErrNotFound) {
		t.Errorf("double Delete: got err %v, want ErrNotFound", err)
	}
}

func TestStoreInsertFailsOnExisting(t *testing.T) {
	dir := t.TempDir()

	store, err := Open(Options{Dir: dir, Name: "insert"})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	key := kvtypes.BytesKey("k")

	if err := store.Insert(key, kvtypes.BytesValue("v1")); err != nil {
		t.Fatalf("first Insert failed: %v", err)
	}
	if err := store.Insert(key, kvtypes.BytesValue("v2")); !errors.Is(err, ErrExists) {
		t.Errorf("second Insert: got err %v, want ErrExists", err)
	}

	// Put, unlike Insert, overwrites freely.
	if err := store.Put(key, kvtypes.BytesValue("v2")); err != nil {
		t.Fatalf("Put over existing key failed: %v", err)
	}
	got, err := store.Get(key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got.Serialize()) != "v2" {
		t.Errorf("got value %q, want %q", got.Serialize(), "v2")
	}

	if err := store.Delete(key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Insert(key, kvtypes.BytesValue("v3")); err != nil {
		t.Fatalf("Insert after delete should succeed: %v", err)
	}
}

// TestStoreFingerprintCollision uses kvhash.WeakReference, whose mixer
// only looks at a key's first seven bytes, to force two distinct keys
// onto the exact same index fingerprint and checks that Get, Insert,
// and Delete all still resolve by the correct key.
func TestStoreFingerprintCollision(t *testing.T) {
	dir := t.TempDir()

	store, err := Open(Options{Dir: dir, Name: "collide", Fingerprint: kvhash.WeakReference})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	keyA := kvtypes.BytesKey("collideA-longtail")
	keyB := kvtypes.BytesKey("collideB-differenttail")

	if kvhash.WeakReference(keyA.Represent()) != kvhash.WeakReference(keyB.Represent()) {
		t.Fatalf("test setup invalid: keys do not share a fingerprint")
	}

	if err := store.Insert(keyA, kvtypes.BytesValue("valueA")); err != nil {
		t.Fatalf("Insert keyA failed: %v", err)
	}
	if err := store.Insert(keyB, kvtypes.BytesValue("valueB")); err != nil {
		t.Fatalf("Insert keyB failed: %v", err)
	}

	gotA, err := store.Get(keyA)
	if err != nil {
		t.Fatalf("Get keyA failed: %v", err)
	}
	if string(gotA.Serialize()) != "valueA" {
		t.Errorf("keyA: got %q, want %q", gotA.Serialize(), "valueA")
	}

	gotB, err := store.Get(keyB)
	if err != nil {
		t.Fatalf("Get keyB failed: %v", err)
	}
	if string(gotB.Serialize()) != "valueB" {
		t.Errorf("keyB: got %q, want %q", gotB.Serialize(), "valueB")
	}

	if err := store.Delete(keyA); err != nil {
		t.Fatalf("Delete keyA failed: %v", err)
	}
	if _, err := store.Get(keyA); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get keyA after delete: got err %v, want ErrNotFound", err)
	}
	gotB2, err := store.Get(keyB)
	if err != nil {
		t.Fatalf("Get keyB after deleting keyA failed: %v", err)
	}
	if string(gotB2.Serialize()) != "valueB" {
		t.Errorf("keyB after deleting keyA: got %q, want %q", gotB2.Serialize(), "valueB")
	}
}

func TestStoreCheckpointAndReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := Open(Options{Dir: dir, Name: "reopen"})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}

	for _, kv := range [][2]string{{"a", "1"}, {"b", "2"}, {"c", "3"}} {
		if err := store.Put(kvtypes.BytesKey(kv[0]), kvtypes.BytesValue(kv[1])); err != nil {
			t.Fatalf("Put %s failed: %v", kv[0], err)
		}
	}

	if err := store.Checkpoint(); err != nil {
		t.Fatalf("Checkpoint failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := Open(Options{Dir: dir, Name: "reopen"})
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer reopened.Close()

	for _, kv := range [][2]string{{"a", "1"}, {"b", "2"}, {"c", "3"}} {
		got, err := reopened.Get(kvtypes.BytesKey(kv[0]))
		if err != nil {
			t.Fatalf("Get %s after reopen failed: %v", kv[0], err)
		}
		if string(got.Serialize()) != kv[1] {
			t.Errorf("%s: got %q, want %q", kv[0], got.Serialize(), kv[1])
		}
	}

	stats := reopened.Stats()
	t.Logf("index stats after reopen: global depth=%d pages allocated=%d", stats.GlobalDepth, stats.PagesAllocated)
}

func TestStoreOpenRejectsMissingDir(t *testing.T) {
	_, err := Open(Options{Dir: "/no/such/kvslite/dir", Name: "x"})
	if err == nil {
		t.Fatalf("expected error opening store in a nonexistent directory")
	}
}
