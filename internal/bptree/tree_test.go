package bptree

import (
	"fmt"
	"sync"
	"testing"

	"github.com/ssargent/btreedb/internal/keycmp"
)

func key(i int) []byte { return []byte(fmt.Sprintf("key-%04d", i)) }

func TestTreePutGet(t *testing.T) {
	tr := NewTree(keycmp.ByteComparator{}, 2, nil)

	const n = 200
	for i := 0; i < n; i++ {
		if err := tr.Put(key(i), []byte(fmt.Sprintf("val-%d", i))); err != nil {
			t.Fatalf("Put(%d): %v", i, err)
		}
	}

	for i := 0; i < n; i++ {
		v, found, err := tr.Get(key(i))
		if err != nil {
			t.Fatalf("Get(%d): %v", i, err)
		}
		if !found {
			t.Fatalf("Get(%d): not found", i)
		}
		want := fmt.Sprintf("val-%d", i)
		if string(v) != want {
			t.Fatalf("Get(%d) = %q, want %q", i, v, want)
		}
	}

	if _, found, _ := tr.Get([]byte("absent")); found {
		t.Fatal("expected absent key to be not found")
	}

	if tr.Height() <= 1 {
		t.Fatalf("height = %d, expected tree to have grown past a single leaf with %d inserts", tr.Height(), n)
	}
}

func TestTreePutOverwrite(t *testing.T) {
	tr := NewTree(keycmp.ByteComparator{}, 4, nil)

	if err := tr.Put([]byte("a"), []byte("1")); err != nil {
		t.Fatal(err)
	}
	if err := tr.Put([]byte("a"), []byte("2")); err != nil {
		t.Fatal(err)
	}

	v, found, err := tr.Get([]byte("a"))
	if err != nil || !found {
		t.Fatalf("Get: %v, found=%v", err, found)
	}
	if string(v) != "2" {
		t.Fatalf("Get = %q, want 2 (overwrite should win)", v)
	}
}

func TestTreeEraseRebalances(t *testing.T) {
	tr := NewTree(keycmp.ByteComparator{}, 2, nil)

	const n = 200
	for i := 0; i < n; i++ {
		if err := tr.Put(key(i), key(i)); err != nil {
			t.Fatal(err)
		}
	}

	// Erase most of the keys, exercising borrow and merge across the
	// full depth of the tree built above.
	for i := 0; i < n-5; i++ {
		if err := tr.Erase(key(i)); err != nil {
			t.Fatalf("Erase(%d): %v", i, err)
		}
	}

	for i := 0; i < n-5; i++ {
		if _, found, _ := tr.Get(key(i)); found {
			t.Fatalf("key %d should have been erased", i)
		}
	}
	for i := n - 5; i < n; i++ {
		if _, found, _ := tr.Get(key(i)); !found {
			t.Fatalf("key %d should still be present", i)
		}
	}

	stats := tr.Stats()
	if stats.KeyCount != 5 {
		t.Fatalf("KeyCount = %d, want 5", stats.KeyCount)
	}
}

func TestTreeEraseAbsentIsNoop(t *testing.T) {
	tr := NewTree(keycmp.ByteComparator{}, 4, nil)
	if err := tr.Put([]byte("a"), []byte("1")); err != nil {
		t.Fatal(err)
	}
	if err := tr.Erase([]byte("missing")); err != nil {
		t.Fatalf("Erase of absent key should not error: %v", err)
	}
	if _, found, _ := tr.Get([]byte("a")); !found {
		t.Fatal("unrelated key should survive erasing an absent one")
	}
}

func TestCursorIteratesInOrder(t *testing.T) {
	tr := NewTree(keycmp.ByteComparator{}, 3, nil)

	const n = 100
	for i := n - 1; i >= 0; i-- {
		if err := tr.Put(key(i), key(i)); err != nil {
			t.Fatal(err)
		}
	}

	c := tr.NewCursor()
	count := 0
	for c.Valid() {
		if string(c.Key()) != string(key(count)) {
			t.Fatalf("cursor key %d = %q, want %q", count, c.Key(), key(count))
		}
		count++
		c.Next()
	}
	if count != n {
		t.Fatalf("cursor visited %d keys, want %d", count, n)
	}
}

func TestSeekCursor(t *testing.T) {
	tr := NewTree(keycmp.ByteComparator{}, 3, nil)
	for i := 0; i < 50; i++ {
		if err := tr.Put(key(i*2), key(i*2)); err != nil {
			t.Fatal(err)
		}
	}

	c := tr.SeekCursor(key(7))
	if !c.Valid() {
		t.Fatal("expected a cursor positioned at the next even key")
	}
	if string(c.Key()) != string(key(8)) {
		t.Fatalf("SeekCursor(7) landed on %q, want %q", c.Key(), key(8))
	}
}

func TestTreeConcurrentReadersDuringWrites(t *testing.T) {
	tr := NewTree(keycmp.ByteComparator{}, 4, nil)
	for i := 0; i < 20; i++ {
		if err := tr.Put(key(i), key(i)); err != nil {
			t.Fatal(err)
		}
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					_, _, _ = tr.Get(key(5))
				}
			}
		}()
	}

	for i := 20; i < 220; i++ {
		if err := tr.Put(key(i), key(i)); err != nil {
			t.Fatal(err)
		}
	}
	close(stop)
	wg.Wait()

	v, found, err := tr.Get(key(219))
	if err != nil || !found || string(v) != string(key(219)) {
		t.Fatalf("Get(219) = %q, found=%v, err=%v", v, found, err)
	}
}
