package bptree

import (
	"bytes"
	"testing"

	"github.com/ssargent/btreedb/internal/keycmp"
)

func TestLeafMapPutGetErase(t *testing.T) {
	cmp := keycmp.ByteComparator{}
	m := NewLeafMap(cmp)

	m.Put([]byte("b"), []byte("2"))
	m.Put([]byte("a"), []byte("1"))
	m.Put([]byte("c"), []byte("3"))

	if m.Size() != 3 {
		t.Fatalf("size = %d, want 3", m.Size())
	}
	for i, want := range []string{"a", "b", "c"} {
		if got := string(m.KeyAt(i)); got != want {
			t.Errorf("KeyAt(%d) = %q, want %q", i, got, want)
		}
	}

	v, ok := m.Get([]byte("b"))
	if !ok || string(v) != "2" {
		t.Fatalf("Get(b) = %q, %v; want 2, true", v, ok)
	}

	m.Put([]byte("b"), []byte("20"))
	v, _ = m.Get([]byte("b"))
	if string(v) != "20" {
		t.Fatalf("Get(b) after overwrite = %q, want 20", v)
	}

	m.Erase([]byte("a"))
	if _, ok := m.Get([]byte("a")); ok {
		t.Fatal("expected a to be erased")
	}
	if m.Size() != 2 {
		t.Fatalf("size after erase = %d, want 2", m.Size())
	}
}

func TestLeafMapSplit(t *testing.T) {
	cmp := keycmp.ByteComparator{}
	m := NewLeafMap(cmp)
	for _, k := range []string{"a", "b", "c", "d"} {
		m.Put([]byte(k), []byte(k))
	}

	right, splitKey := m.Split()
	if m.Size() != 2 || right.Size() != 2 {
		t.Fatalf("split sizes = %d/%d, want 2/2", m.Size(), right.Size())
	}
	if !bytes.Equal(splitKey, []byte("c")) {
		t.Fatalf("splitKey = %q, want c", splitKey)
	}
	if string(m.KeyAt(0)) != "a" || string(right.KeyAt(0)) != "c" {
		t.Fatal("split did not preserve order across halves")
	}
}

func TestLeafMapPopAndAppend(t *testing.T) {
	cmp := keycmp.ByteComparator{}
	left := NewLeafMap(cmp)
	left.Put([]byte("a"), []byte("1"))
	left.Put([]byte("b"), []byte("2"))

	right := NewLeafMap(cmp)
	right.Put([]byte("c"), []byte("3"))
	right.Put([]byte("d"), []byte("4"))

	k, v, newFront := right.PopFront()
	if string(k) != "c" || string(v) != "3" || string(newFront) != "d" {
		t.Fatalf("PopFront = %q/%q/%q, want c/3/d", k, v, newFront)
	}

	k, v = left.PopBack()
	if string(k) != "b" || string(v) != "2" {
		t.Fatalf("PopBack = %q/%q, want b/2", k, v)
	}

	left.AppendRight(right)
	if left.Size() != 2 {
		t.Fatalf("size after append = %d, want 2", left.Size())
	}
	if right.Size() != 0 {
		t.Fatalf("donor size after append = %d, want 0", right.Size())
	}
}

func TestLeafMapClone(t *testing.T) {
	cmp := keycmp.ByteComparator{}
	m := NewLeafMap(cmp)
	m.Put([]byte("a"), []byte("1"))

	c := m.Clone()
	c.Put([]byte("b"), []byte("2"))

	if m.Size() != 1 {
		t.Fatalf("original mutated by clone: size = %d, want 1", m.Size())
	}
	if c.Size() != 2 {
		t.Fatalf("clone size = %d, want 2", c.Size())
	}
}

func TestInternalMapGetAndSplit(t *testing.T) {
	cmp := keycmp.ByteComparator{}
	leafA := NewLeaf(cmp)
	leafB := NewLeaf(cmp)
	m := NewInternalMap(cmp, leafA, []byte("m"), leafB)

	if m.Get([]byte("a")) != leafA {
		t.Error("Get below separator should return left child")
	}
	if m.Get([]byte("m")) != leafB {
		t.Error("Get at separator should return right child")
	}
	if m.Get([]byte("z")) != leafB {
		t.Error("Get above separator should return right child")
	}

	leafC := NewLeaf(cmp)
	m.Put([]byte("t"), leafC)
	if m.Size() != 3 {
		t.Fatalf("size after put = %d, want 3", m.Size())
	}
	if m.Get([]byte("u")) != leafC {
		t.Error("Get above new separator should return newest child")
	}
}

func TestInternalMapSiblings(t *testing.T) {
	cmp := keycmp.ByteComparator{}
	leafA := NewLeaf(cmp)
	leafB := NewLeaf(cmp)
	leafC := NewLeaf(cmp)
	m := NewInternalMap(cmp, leafA, []byte("m"), leafB)
	m.Put([]byte("t"), leafC)

	if _, _, ok := m.GetLeft([]byte("a")); ok {
		t.Error("leftmost child should have no left sibling")
	}
	if _, right, ok := m.GetRight([]byte("a")); !ok || right != leafB {
		t.Error("expected leafB as right sibling of leafA's subtree")
	}
	if _, _, ok := m.GetRight([]byte("u")); ok {
		t.Error("rightmost child should have no right sibling")
	}
}
