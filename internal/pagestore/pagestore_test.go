package pagestore

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPutGetDelete(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "pages"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	if _, ok, err := store.Get([]byte("missing")); err != nil || ok {
		t.Fatalf("Get(missing) = ok=%v, err=%v; want ok=false, err=nil", ok, err)
	}

	if err := store.Put([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	v, ok, err := store.Get([]byte("a"))
	if err != nil || !ok || string(v) != "1" {
		t.Fatalf("Get(a) = %q, %v, %v; want 1, true, nil", v, ok, err)
	}

	if err := store.Delete([]byte("a")); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, err := store.Get([]byte("a")); err != nil || ok {
		t.Fatalf("Get(a) after delete = ok=%v, err=%v; want false, nil", ok, err)
	}
}

func TestPutSyncPersistsAcrossReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "pages")

	store, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.PutSync([]byte("key"), []byte("value")); err != nil {
		t.Fatalf("PutSync: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	v, ok, err := reopened.Get([]byte("key"))
	if err != nil || !ok || string(v) != "value" {
		t.Fatalf("Get after reopen = %q, %v, %v; want value, true, nil", v, ok, err)
	}
}

func TestSnapshotIsolatesFromLaterWrites(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "pages"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	if err := store.Put([]byte("k"), []byte("before")); err != nil {
		t.Fatal(err)
	}

	snap := store.NewSnapshot()
	defer snap.Close()

	if err := store.Put([]byte("k"), []byte("after")); err != nil {
		t.Fatal(err)
	}

	v, ok, err := store.GetAt([]byte("k"), snap)
	if err != nil || !ok || string(v) != "before" {
		t.Fatalf("GetAt(snapshot) = %q, %v, %v; want before, true, nil", v, ok, err)
	}

	live, ok, err := store.Get([]byte("k"))
	if err != nil || !ok || string(live) != "after" {
		t.Fatalf("live Get = %q, %v, %v; want after, true, nil", live, ok, err)
	}
}

func TestDestroyRemovesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "pages")
	store, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.Put([]byte("a"), []byte("1")); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := Destroy(dir); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("expected %s to be removed, stat err = %v", dir, err)
	}
}
