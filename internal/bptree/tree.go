package bptree

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/ssargent/btreedb/internal/keycmp"
)

// Tree is a concurrent, copy-on-write B+Tree. Readers descend without
// ever taking a node's lock for longer than it takes to sample a
// pointer and a version; writers lock-couple down the tree, splitting
// (Put) or fixing (Erase) a child before releasing its parent so a
// structural change never needs to propagate back up through a
// released lock.
//
// branchFactor (B) bounds every node's size: a node holds between B and
// 2B+1 entries, except the root, which may hold fewer. The next writer
// descending through a node splits it once it has reached 2B+1 entries
// (Put) or fixes it while it holds exactly B (Erase).
type Tree struct {
	mu     sync.Mutex // guards the root pointer itself, not its contents
	root   *Node
	cmp    keycmp.Comparator
	branch int

	manager NodeManager // nil for a pure in-memory tree
}

// NewTree returns a tree with a single empty leaf as its root.
func NewTree(cmp keycmp.Comparator, branchFactor int, manager NodeManager) *Tree {
	root := NewLeaf(cmp)
	if manager != nil {
		manager.Allocate(root)
	}
	return &Tree{root: root, cmp: cmp, branch: branchFactor, manager: manager}
}

// NewTreeFromRoot attaches an already-resolved root (typically fetched
// from a node manager during recovery) as the tree's root.
func NewTreeFromRoot(cmp keycmp.Comparator, branchFactor int, manager NodeManager, root *Node) *Tree {
	return &Tree{root: root, cmp: cmp, branch: branchFactor, manager: manager}
}

// Root returns the tree's current root node.
func (t *Tree) Root() *Node {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.root
}

// SetRoot replaces the tree's root, used by the engine when attaching a
// tree to a root node loaded from the page store during recovery.
func (t *Tree) SetRoot(n *Node) {
	t.mu.Lock()
	t.root = n
	t.mu.Unlock()
}

// BranchFactor returns B, the tree's branching parameter.
func (t *Tree) BranchFactor() int { return t.branch }

// Comparator returns the key ordering the tree was built with.
func (t *Tree) Comparator() keycmp.Comparator { return t.cmp }

func (t *Tree) ensureLoadedUnderLock(n *Node) error {
	if t.manager == nil || n.InMemory() {
		return nil
	}
	if err := t.manager.Fetch(n.ID(), n); err != nil {
		return err
	}
	n.MarkLoaded()
	return nil
}

func (t *Tree) ensureLoadedLocking(n *Node) error {
	n.Lock()
	defer n.Unlock()
	return t.ensureLoadedUnderLock(n)
}

// Get performs an optimistic read that holds each node's lock only
// long enough to sample its map and version: it descends the tree
// sampling a version at each step, then re-validates every sampled
// version once it reaches the leaf. Any mismatch means a writer raced
// the descent, and the whole walk restarts from the root.
func (t *Tree) Get(k []byte) ([]byte, bool, error) {
	type step struct {
		node    *Node
		version uint64
	}

	for {
		t.mu.Lock()
		node := t.root
		t.mu.Unlock()

		var path []step
		for node.IsInternal() {
			child, v := node.GetChild(k)
			if err := t.ensureLoadedLocking(child); err != nil {
				return nil, false, err
			}
			path = append(path, step{node, v})
			node = child
		}

		value, leafVersion, found := node.GetLeafValue(k)

		consistent := true
		for _, s := range path {
			if !s.node.CheckVersion(s.version) {
				consistent = false
				break
			}
		}
		if consistent && node.CheckVersion(leafVersion) {
			return value, found, nil
		}
	}
}

// lockedRootForPut returns the root locked and guaranteed not to need a
// split, splitting it first (and promoting a fresh root) as many times
// as necessary. Every attempt re-reads t.root under t.mu, so a
// concurrent splitter's promotion is never missed.
func (t *Tree) lockedRootForPut() *Node {
	for {
		t.mu.Lock()
		root := t.root
		root.Lock()
		if !root.NeedSplit(t.branch) {
			t.mu.Unlock()
			return root
		}

		right, splitKey := root.Split()
		if t.manager != nil {
			t.manager.Allocate(right)
		}
		newRoot := NewInternalRoot(t.cmp, root, splitKey, right)
		if t.manager != nil {
			t.manager.Allocate(newRoot)
		}
		t.root = newRoot
		root.Unlock()
		t.mu.Unlock()
	}
}

// Put inserts or overwrites (k, v), splitting any overflowing node on
// the way down so a structural change never has to propagate back up
// through an already-released lock.
func (t *Tree) Put(k, v []byte) error {
	node := t.lockedRootForPut()

	for node.IsInternal() {
		child := node.GetChildLocked(k)
		child.Lock()
		if err := t.ensureLoadedUnderLock(child); err != nil {
			child.Unlock()
			node.Unlock()
			return err
		}

		if child.NeedSplit(t.branch) {
			right, splitKey := child.Split()
			if t.manager != nil {
				t.manager.Allocate(right)
			}
			node.PutChild(splitKey, right)
			if !t.cmp.Less(k, splitKey) {
				child.Unlock()
				child = right
				child.Lock()
			}
		}

		node.Unlock()
		node = child
	}

	node.PutLeaf(k, v)
	node.Unlock()
	return nil
}

// lockedRootForErase returns the root locked and guaranteed not to need
// fixing, collapsing it first (dropping a level) as many times as
// necessary when an internal root has shrunk to a single child.
func (t *Tree) lockedRootForErase() *Node {
	for {
		t.mu.Lock()
		root := t.root
		root.Lock()
		if root.IsLeaf() || !root.NeedFix(true, t.branch) {
			t.mu.Unlock()
			return root
		}

		only := root.OnlyChild()
		t.root = only
		root.Unlock()
		t.mu.Unlock()
	}
}

// Erase removes k, if present, rebalancing any underflowing node on the
// way down so a structural change never has to propagate back up
// through an already-released lock.
func (t *Tree) Erase(k []byte) error {
	node := t.lockedRootForErase()

	for node.IsInternal() {
		child := node.GetChildLocked(k)
		child.Lock()
		if err := t.ensureLoadedUnderLock(child); err != nil {
			child.Unlock()
			node.Unlock()
			return err
		}

		if child.NeedFix(false, t.branch) {
			node.FixChild(t.branch, k)
			child.Unlock()
			child = node.GetChildLocked(k)
			child.Lock()
		}

		node.Unlock()
		node = child
	}

	node.EraseLeaf(k)
	node.Unlock()
	return nil
}

// Stats summarizes the tree's current shape.
type Stats struct {
	Height        int
	LeafCount     int
	InternalCount int
	KeyCount      int
}

// Stats walks the live tree, holding each node's lock only while it
// reads that node, and reports its shape. It samples no versions and
// does not pin a snapshot: a
// concurrent writer may change the tree while Stats is running, so the
// counts are a best-effort approximation, not a point-in-time total.
func (t *Tree) Stats() Stats {
	var s Stats
	t.mu.Lock()
	root := t.root
	t.mu.Unlock()
	t.walkStats(root, 1, &s)
	return s
}

func (t *Tree) walkStats(n *Node, depth int, s *Stats) {
	n.Lock()
	if depth > s.Height {
		s.Height = depth
	}
	if n.IsLeaf() {
		s.LeafCount++
		s.KeyCount += n.leafMap.Size()
		n.Unlock()
		return
	}
	s.InternalCount++
	m := n.internal
	n.Unlock()

	for i := 0; i < m.Size(); i++ {
		t.walkStats(m.ChildAt(i), depth+1, s)
	}
}

// Height reports the tree's current depth, leaf nodes counting as
// depth 1.
func (t *Tree) Height() int {
	return t.Stats().Height
}

// Dump writes a human-readable tree of node ids and sizes to w, used by
// diagnostics and by tests asserting structural invariants.
func (t *Tree) Dump(w io.Writer) {
	t.mu.Lock()
	root := t.root
	t.mu.Unlock()
	t.dumpNode(w, root, 0)
}

func (t *Tree) dumpNode(w io.Writer, n *Node, depth int) {
	indent := strings.Repeat("  ", depth)
	n.Lock()
	if n.IsLeaf() {
		fmt.Fprintf(w, "%sleaf(%d) size=%d\n", indent, n.id, n.leafMap.Size())
		n.Unlock()
		return
	}
	fmt.Fprintf(w, "%sinternal(%d) size=%d\n", indent, n.id, n.internal.Size())
	m := n.internal
	n.Unlock()

	for i := 0; i < m.Size(); i++ {
		t.dumpNode(w, m.ChildAt(i), depth+1)
	}
}

// Cursor provides forward-only iteration over the tree's keys via the
// leaf sibling chain. It is not a snapshot: iteration may observe
// concurrent inserts or deletes as it advances, matching the forward
// cursor cowbpt exposes (no isolation guarantee beyond "read the live
// tree").
type Cursor struct {
	leaf *Node
	idx  int
}

// NewCursor returns a cursor positioned at the tree's first key, or an
// exhausted cursor if the tree is empty.
func (t *Tree) NewCursor() *Cursor {
	t.mu.Lock()
	node := t.root
	t.mu.Unlock()

	for node.IsInternal() {
		node.Lock()
		child := node.internal.ChildAt(0)
		node.Unlock()
		node = child
	}
	return &Cursor{leaf: node, idx: 0}
}

// SeekCursor returns a cursor positioned at the first key >= k.
func (t *Tree) SeekCursor(k []byte) *Cursor {
	t.mu.Lock()
	node := t.root
	t.mu.Unlock()

	for node.IsInternal() {
		child, _ := node.GetChild(k)
		node = child
	}

	node.Lock()
	idx := node.leafMap.findGE(k)
	size := node.leafMap.Size()
	next := node.next
	node.Unlock()

	// k sorts after every key in this leaf: the first key >= k, if any,
	// is the first entry of the next non-empty leaf.
	for idx >= size && next != nil {
		next.Lock()
		size = next.leafMap.Size()
		after := next.next
		next.Unlock()
		node, idx, next = next, 0, after
	}
	return &Cursor{leaf: node, idx: idx}
}

// Valid reports whether the cursor is positioned at an entry.
func (c *Cursor) Valid() bool {
	c.leaf.Lock()
	defer c.leaf.Unlock()
	return c.idx < c.leaf.leafMap.Size()
}

// Key returns the key at the cursor's current position.
func (c *Cursor) Key() []byte {
	c.leaf.Lock()
	defer c.leaf.Unlock()
	return c.leaf.leafMap.KeyAt(c.idx)
}

// Value returns the value at the cursor's current position.
func (c *Cursor) Value() []byte {
	c.leaf.Lock()
	defer c.leaf.Unlock()
	return c.leaf.leafMap.ValueAt(c.idx)
}

// Next advances the cursor, crossing into the next leaf via the
// sibling chain when the current one is exhausted.
func (c *Cursor) Next() {
	c.leaf.Lock()
	c.idx++
	crossing := c.idx >= c.leaf.leafMap.Size()
	next := c.leaf.next
	c.leaf.Unlock()

	if !crossing {
		return
	}
	for next != nil {
		next.Lock()
		size := next.leafMap.Size()
		after := next.next
		next.Unlock()
		if size > 0 {
			c.leaf = next
			c.idx = 0
			return
		}
		next = after
	}
	// exhausted: leave c.leaf as is, its idx already past the last entry
}
