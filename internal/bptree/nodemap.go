package bptree

import "github.com/ssargent/btreedb/internal/keycmp"

// leafEntry is one (key, value) pair held by a LeafMap, sorted by key.
type leafEntry struct {
	key   []byte
	value []byte
}

// LeafMap is the sorted key-value container backing a leaf node. All
// operations are O(n) in the map's size, which is acceptable because a
// node's size is bounded by the tree's branching parameter (2B+1).
type LeafMap struct {
	cmp     keycmp.Comparator
	entries []leafEntry
}

// NewLeafMap returns an empty leaf map ordered by cmp.
func NewLeafMap(cmp keycmp.Comparator) *LeafMap {
	return &LeafMap{cmp: cmp}
}

// Size returns the number of key-value pairs held by m.
func (m *LeafMap) Size() int { return len(m.entries) }

// findGE returns the offset of the first entry whose key is >= k, or
// len(m.entries) if none is.
func (m *LeafMap) findGE(k []byte) int {
	i := 0
	for ; i < len(m.entries); i++ {
		if m.cmp.Less(m.entries[i].key, k) {
			continue
		}
		break
	}
	return i
}

// Get returns the value for k and true, or nil and false if k is absent.
func (m *LeafMap) Get(k []byte) ([]byte, bool) {
	i := m.findGE(k)
	if i < len(m.entries) && keycmp.Equal(m.cmp, m.entries[i].key, k) {
		return m.entries[i].value, true
	}
	return nil, false
}

// Put upserts (k, v), preserving sorted order.
func (m *LeafMap) Put(k, v []byte) {
	i := m.findGE(k)
	if i < len(m.entries) && keycmp.Equal(m.cmp, m.entries[i].key, k) {
		m.entries[i].value = v
		return
	}
	m.entries = append(m.entries, leafEntry{})
	copy(m.entries[i+1:], m.entries[i:])
	m.entries[i] = leafEntry{key: k, value: v}
}

// Erase removes k if present; it is a no-op otherwise.
func (m *LeafMap) Erase(k []byte) {
	i := m.findGE(k)
	if i < len(m.entries) && keycmp.Equal(m.cmp, m.entries[i].key, k) {
		m.entries = append(m.entries[:i], m.entries[i+1:]...)
	}
}

// KeyAt and ValueAt expose the i-th entry, used by cursors.
func (m *LeafMap) KeyAt(i int) []byte   { return m.entries[i].key }
func (m *LeafMap) ValueAt(i int) []byte { return m.entries[i].value }

// Split moves the upper half of m's entries (including the midpoint) into
// a freshly allocated right map and reports the first key of that half.
func (m *LeafMap) Split() (right *LeafMap, splitKey []byte) {
	mid := len(m.entries) / 2
	right = &LeafMap{cmp: m.cmp, entries: append([]leafEntry(nil), m.entries[mid:]...)}
	m.entries = m.entries[:mid]
	return right, right.entries[0].key
}

// PopFront removes the first entry and reports the key now at the front
// (the "second key" before the pop), mirroring the rebalance use where a
// leaf borrows its leftmost entry from a right sibling.
func (m *LeafMap) PopFront() (removedKey, removedValue []byte, newFrontKey []byte) {
	removedKey, removedValue = m.entries[0].key, m.entries[0].value
	m.entries = m.entries[1:]
	if len(m.entries) > 0 {
		newFrontKey = m.entries[0].key
	}
	return removedKey, removedValue, newFrontKey
}

// PopBack removes the last entry and returns it.
func (m *LeafMap) PopBack() (key, value []byte) {
	last := len(m.entries) - 1
	key, value = m.entries[last].key, m.entries[last].value
	m.entries = m.entries[:last]
	return key, value
}

// AppendRight concatenates other's entries onto m and empties other.
func (m *LeafMap) AppendRight(other *LeafMap) {
	m.entries = append(m.entries, other.entries...)
	other.entries = nil
}

// Clone returns an independent deep copy, used by the node's
// copy-on-write discipline, which clones the current map before every
// mutation so readers holding the old map keep an unchanged view.
func (m *LeafMap) Clone() *LeafMap {
	return &LeafMap{cmp: m.cmp, entries: append([]leafEntry(nil), m.entries...)}
}

// NewLeafMapFromEntries builds a LeafMap directly from parallel
// key/value slices, already in sorted order. Used by the node manager
// when decoding a leaf page off the wire.
func NewLeafMapFromEntries(cmp keycmp.Comparator, keys, values [][]byte) *LeafMap {
	entries := make([]leafEntry, len(keys))
	for i := range keys {
		entries[i] = leafEntry{key: keys[i], value: values[i]}
	}
	return &LeafMap{cmp: cmp, entries: entries}
}

// childEntry is one (separator key, child) pair in an InternalMap.
// Position 0's key is a sentinel and is never compared against.
type childEntry struct {
	key   []byte
	child *Node
}

// InternalMap is the sorted separator/child container backing an
// internal node. Position 0 holds the "less than everything" child;
// positions 1..n-1 hold strictly increasing separator keys.
type InternalMap struct {
	cmp     keycmp.Comparator
	entries []childEntry
}

// NewInternalMap builds a two-child map: v1 covers everything less than
// k2, v2 covers everything from k2 onward.
func NewInternalMap(cmp keycmp.Comparator, v1 *Node, k2 []byte, v2 *Node) *InternalMap {
	return &InternalMap{
		cmp: cmp,
		entries: []childEntry{
			{key: nil, child: v1},
			{key: k2, child: v2},
		},
	}
}

// Size returns the number of (separator, child) slots, including
// position 0.
func (m *InternalMap) Size() int { return len(m.entries) }

// findGE returns the largest position i>=1 such that every entry before
// it has a separator < k, or len(m.entries) if k is >= every separator.
func (m *InternalMap) findGE(k []byte) int {
	i := 1
	for ; i < len(m.entries); i++ {
		if m.cmp.Less(m.entries[i].key, k) {
			continue
		}
		break
	}
	return i
}

// Get locates the child whose subtree may contain k.
func (m *InternalMap) Get(k []byte) *Node {
	i := m.findGE(k)
	if len(m.entries) > 1 && i < len(m.entries) && keycmp.Equal(m.cmp, m.entries[i].key, k) {
		return m.entries[i].child
	}
	return m.entries[i-1].child
}

// Put inserts a new (sepKey, child) pair at its sorted position. sepKey
// must not already be present.
func (m *InternalMap) Put(sepKey []byte, child *Node) {
	i := m.findGE(sepKey)
	m.entries = append(m.entries, childEntry{})
	copy(m.entries[i+1:], m.entries[i:])
	m.entries[i] = childEntry{key: sepKey, child: child}
}

// Erase removes the entry whose separator is sepKey. sepKey must be
// present.
func (m *InternalMap) Erase(sepKey []byte) {
	i := m.findGE(sepKey)
	m.entries = append(m.entries[:i], m.entries[i+1:]...)
}

// ChildAt and KeyAt expose the i-th slot, used by the checkpoint
// traversal and by cursors descending to the first leaf.
func (m *InternalMap) ChildAt(i int) *Node { return m.entries[i].child }
func (m *InternalMap) KeyAt(i int) []byte  { return m.entries[i].key }

// GetMiddle returns the position (and its separator key) whose child
// subtree may contain k — the node fix_child should inspect.
func (m *InternalMap) GetMiddle(k []byte) (pos int, sepKey []byte, child *Node) {
	i := m.findGE(k)
	if len(m.entries) > 1 && i < len(m.entries) && keycmp.Equal(m.cmp, m.entries[i].key, k) {
		return i, m.entries[i].key, m.entries[i].child
	}
	return i - 1, m.entries[i-1].key, m.entries[i-1].child
}

// GetRight returns the sibling immediately to the right of k's subtree,
// or ok=false if k's subtree is already the rightmost.
func (m *InternalMap) GetRight(k []byte) (sepKey []byte, child *Node, ok bool) {
	pos, _, _ := m.GetMiddle(k)
	if pos+1 >= len(m.entries) {
		return nil, nil, false
	}
	return m.entries[pos+1].key, m.entries[pos+1].child, true
}

// GetLeft returns the sibling immediately to the left of k's subtree, or
// ok=false if k's subtree is already the leftmost (position 0).
func (m *InternalMap) GetLeft(k []byte) (sepKey []byte, child *Node, ok bool) {
	pos, _, _ := m.GetMiddle(k)
	if pos-1 < 0 {
		return nil, nil, false
	}
	return m.entries[pos].key, m.entries[pos-1].child, true
}

// Split moves the upper half of m's entries into a freshly allocated
// right map and reports the first key of that half.
func (m *InternalMap) Split() (right *InternalMap, splitKey []byte) {
	mid := len(m.entries) / 2
	right = &InternalMap{cmp: m.cmp, entries: append([]childEntry(nil), m.entries[mid:]...)}
	m.entries = m.entries[:mid]
	return right, right.entries[0].key
}

// PopFront removes position 0's child, promotes position 1 into
// position 0 (rewriting its key to the sentinel), and reports the
// removed child plus the key that used to sit at position 1 (the new
// "second key" a caller should use as the updated separator).
func (m *InternalMap) PopFront() (removedChild *Node, newFrontSepKey []byte) {
	removedChild = m.entries[0].child
	m.entries = m.entries[1:]
	newFrontSepKey = m.entries[0].key
	m.entries[0] = childEntry{key: nil, child: m.entries[0].child}
	return removedChild, newFrontSepKey
}

// PopBack removes and returns the last (separator, child) pair.
func (m *InternalMap) PopBack() (sepKey []byte, child *Node) {
	last := len(m.entries) - 1
	sepKey, child = m.entries[last].key, m.entries[last].child
	m.entries = m.entries[:last]
	return sepKey, child
}

// PushFront inserts child at position 0, demoting the old position 0 to
// position 1 under sepForOldFront.
func (m *InternalMap) PushFront(child *Node, sepForOldFront []byte) {
	oldFront := m.entries[0].child
	rest := append([]childEntry{{key: sepForOldFront, child: oldFront}}, m.entries[1:]...)
	m.entries = append([]childEntry{{key: nil, child: child}}, rest...)
}

// AppendRight concatenates other's entries onto m (rewriting other's
// position 0 separator to sepBetween, the key that used to route between
// m and other) and empties other.
func (m *InternalMap) AppendRight(other *InternalMap, sepBetween []byte) {
	other.entries[0] = childEntry{key: sepBetween, child: other.entries[0].child}
	m.entries = append(m.entries, other.entries...)
	other.entries = nil
}

// Clone returns an independent deep copy of the entry slice; the child
// pointers themselves are shared (children are owned by the DAG, not by
// the map).
func (m *InternalMap) Clone() *InternalMap {
	return &InternalMap{cmp: m.cmp, entries: append([]childEntry(nil), m.entries...)}
}

// NewInternalMapFromEntries builds an InternalMap directly from
// parallel key/child slices, already in sorted order; keys[0] is
// ignored (position 0 is always the sentinel). Used by the node
// manager when decoding an internal page off the wire.
func NewInternalMapFromEntries(cmp keycmp.Comparator, keys [][]byte, children []*Node) *InternalMap {
	entries := make([]childEntry, len(children))
	for i := range children {
		key := keys[i]
		if i == 0 {
			key = nil
		}
		entries[i] = childEntry{key: key, child: children[i]}
	}
	return &InternalMap{cmp: cmp, entries: entries}
}
