package bptree

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ssargent/btreedb/internal/keycmp"
)

// NodeID is a monotonically allocated, never-reused page identifier.
type NodeID uint64

// NodeManager is the collaborator that assigns node ids and fetches
// evicted nodes back into memory. Tree holds one and calls it directly
// during descent — a Node never reaches back into the manager itself,
// matching the original cowbpt::Bpt, which calls _nm->fetch() around the
// node rather than the node calling it on itself.
type NodeManager interface {
	Allocate(n *Node)
	Fetch(id NodeID, target *Node) error
}

// kind tags which variant a Node is. Leaf and Internal differ in value
// type and in which operations are legal; the descent algorithm already
// knows which it is holding, so the "wrong" operations below panic
// rather than silently doing nothing — they should be unreachable by
// construction.
type kind uint8

const (
	leafKind kind = iota
	internalKind
)

// Node is a copy-on-write B+Tree node. Readers hold mu only briefly:
// every mutation replaces a node's map with a freshly cloned one rather than
// editing it in place, so a map pointer sampled once under a brief hold
// of mu stays valid to read forever after, even while a writer goes on
// to mutate the node further. Writers hold mu for the duration of a
// lock-coupled step.
type Node struct {
	mu sync.Mutex

	id      NodeID
	version uint64 // atomic; incremented on every local mutation
	dirty   bool
	inMem   bool

	tag      kind
	leafMap  *LeafMap
	internal *InternalMap

	// next links this leaf to its right sibling for forward cursors.
	// Internal nodes leave this nil.
	next *Node
}

// NewLeaf returns an empty, in-memory, dirty leaf node.
func NewLeaf(cmp keycmp.Comparator) *Node {
	return &Node{
		tag:     leafKind,
		leafMap: NewLeafMap(cmp),
		dirty:   true,
		inMem:   true,
		version: 1,
	}
}

// NewInternalRoot builds a fresh internal node with two children, used
// when a split promotes a new root.
func NewInternalRoot(cmp keycmp.Comparator, left *Node, splitKey []byte, right *Node) *Node {
	return &Node{
		tag:      internalKind,
		internal: NewInternalMap(cmp, left, splitKey, right),
		dirty:    true,
		inMem:    true,
		version:  1,
	}
}

// NewShell returns a Node that knows only its id. It is not yet
// resolved into a leaf or an internal node — the node manager does
// that with ResolveLeaf/ResolveInternal when the tree's descent first
// touches it. Callers must route every shell through a NodeManager.Fetch
// before calling IsLeaf, IsInternal, or any accessor on it.
func NewShell(id NodeID) *Node {
	return &Node{id: id, inMem: false}
}

// ResolveLeaf populates a shell node (or rebuilds an evicted one) as a
// leaf with the given map. Requires n's lock.
func (n *Node) ResolveLeaf(m *LeafMap) {
	n.tag = leafKind
	n.leafMap = m
	n.version = 1
	n.inMem = true
	n.dirty = false
}

// ResolveInternal populates a shell node (or rebuilds an evicted one)
// as an internal node with the given map, whose children are
// themselves unresolved shells keyed only by NodeID. Requires n's lock.
func (n *Node) ResolveInternal(m *InternalMap) {
	n.tag = internalKind
	n.internal = m
	n.version = 1
	n.inMem = true
	n.dirty = false
}

// LeafEntries exposes n's backing map for read-only iteration by the
// node manager's serializer. Requires n's lock. n must be a leaf.
func (n *Node) LeafEntries() *LeafMap {
	n.mustBe(leafKind)
	return n.leafMap
}

// InternalEntries exposes n's backing map for read-only iteration by
// the node manager's serializer. Requires n's lock. n must be internal.
func (n *Node) InternalEntries() *InternalMap {
	n.mustBe(internalKind)
	return n.internal
}

// ID returns the node's page identifier.
func (n *Node) ID() NodeID { return n.id }

// SetID assigns the node's page identifier; called once by the node
// manager at allocation or load time.
func (n *Node) SetID(id NodeID) { n.id = id }

// IsLeaf reports whether n is a leaf node.
func (n *Node) IsLeaf() bool { return n.tag == leafKind }

// IsInternal reports whether n is an internal node.
func (n *Node) IsInternal() bool { return n.tag == internalKind }

// Lock acquires n's exclusive lock for lock-coupled writes.
func (n *Node) Lock() { n.mu.Lock() }

// Unlock releases n's exclusive lock.
func (n *Node) Unlock() { n.mu.Unlock() }

// CheckVersion reports whether n's version still equals v, the
// consistency check an optimistic reader performs against a sampled
// version after consuming a map snapshot.
func (n *Node) CheckVersion(v uint64) bool {
	return atomic.LoadUint64(&n.version) == v
}

// Version returns the current version under acquire ordering.
func (n *Node) Version() uint64 { return atomic.LoadUint64(&n.version) }

func (n *Node) bumpVersion() { atomic.AddUint64(&n.version, 1) }

// Dirty reports whether n has been modified since the last checkpoint.
// Callers hold n's lock (the checkpoint traversal does).
func (n *Node) Dirty() bool { return n.dirty }

// ClearDirty marks n clean; called by the checkpoint path after a
// successful flush.
func (n *Node) ClearDirty() { n.dirty = false }

// InMemory reports whether n's map is resident.
func (n *Node) InMemory() bool { return n.inMem }

// MarkLoaded marks n as resident and clean, called by the node manager
// right after a successful fetch populates n's map.
func (n *Node) MarkLoaded() {
	n.dirty = false
	n.inMem = true
}

// MarkAllocated marks n as resident and dirty, called by the node
// manager right after assigning a fresh id to a newly split node.
func (n *Node) MarkAllocated() {
	n.dirty = true
	n.inMem = true
}

// Size returns the number of entries in n's map. Callers hold n's lock
// or are the sole owner during construction.
func (n *Node) Size() int {
	if n.tag == leafKind {
		return n.leafMap.Size()
	}
	return n.internal.Size()
}

// NeedSplit reports whether n has overflowed and must split before any
// further descent (size == 2B+1).
func (n *Node) NeedSplit(branchFactor int) bool {
	return n.Size() == 2*branchFactor+1
}

// NeedFix reports whether n has underflowed and must be rebalanced
// before any further descent. A root leaf never needs fixing; a root
// internal node needs fixing when it has collapsed to a single child;
// a non-root node needs fixing at exactly B entries.
func (n *Node) NeedFix(isRoot bool, branchFactor int) bool {
	if isRoot {
		if n.tag == leafKind {
			return false
		}
		return n.Size() == 1
	}
	return n.Size() == branchFactor
}

// GetLeafValue performs an optimistic read on a leaf node, returning the
// value for k (nil, false if absent) along with the version sampled
// before the map was consumed. The caller re-validates that version
// against n after using the result.
func (n *Node) GetLeafValue(k []byte) (value []byte, version uint64, found bool) {
	n.mu.Lock()
	m := n.leafMap
	version = atomic.LoadUint64(&n.version)
	n.mu.Unlock()
	value, found = m.Get(k)
	return value, version, found
}

// GetChild performs an optimistic read on an internal node, returning
// the child that may hold k along with the version sampled before the
// map was consumed.
func (n *Node) GetChild(k []byte) (child *Node, version uint64) {
	n.mu.Lock()
	m := n.internal
	version = atomic.LoadUint64(&n.version)
	n.mu.Unlock()
	return m.Get(k), version
}

// GetChildLocked returns the child that may hold k without sampling a
// version; used during lock-coupled writer descent where n is already
// held exclusively.
func (n *Node) GetChildLocked(k []byte) *Node {
	return n.internal.Get(k)
}

// OnlyChild returns position 0's child of an internal node that has
// collapsed to a single entry. Requires n's lock.
func (n *Node) OnlyChild() *Node {
	n.mustBe(internalKind)
	return n.internal.ChildAt(0)
}

// PutLeaf upserts (k, v) into a leaf node by cloning the current map,
// mutating the clone, and swapping it in. Requires n's lock.
func (n *Node) PutLeaf(k, v []byte) {
	n.mustBe(leafKind)
	clone := n.leafMap.Clone()
	clone.Put(k, v)
	n.leafMap = clone
	n.bumpVersion()
	n.dirty = true
}

// EraseLeaf removes k from a leaf node. Requires n's lock.
func (n *Node) EraseLeaf(k []byte) {
	n.mustBe(leafKind)
	clone := n.leafMap.Clone()
	clone.Erase(k)
	n.leafMap = clone
	n.bumpVersion()
	n.dirty = true
}

// PutChild inserts (sepKey, child) into an internal node. Requires n's
// lock.
func (n *Node) PutChild(sepKey []byte, child *Node) {
	n.mustBe(internalKind)
	clone := n.internal.Clone()
	clone.Put(sepKey, child)
	n.internal = clone
	n.bumpVersion()
	n.dirty = true
}

// EraseChild removes the entry with separator sepKey from an internal
// node. Requires n's lock.
func (n *Node) EraseChild(sepKey []byte) {
	n.mustBe(internalKind)
	clone := n.internal.Clone()
	clone.Erase(sepKey)
	n.internal = clone
	n.bumpVersion()
	n.dirty = true
}

// Split transfers the upper half of n's entries into a freshly
// allocated sibling node and reports the separator key the caller must
// insert into the parent. Requires n's lock.
func (n *Node) Split() (right *Node, splitKey []byte) {
	switch n.tag {
	case leafKind:
		clone := n.leafMap.Clone()
		rm, sk := clone.Split()
		n.leafMap = clone
		right = &Node{tag: leafKind, leafMap: rm, version: 1, dirty: true, inMem: true, next: n.next}
		n.next = right
		splitKey = sk
	case internalKind:
		clone := n.internal.Clone()
		rm, sk := clone.Split()
		n.internal = clone
		right = &Node{tag: internalKind, internal: rm, version: 1, dirty: true, inMem: true}
		splitKey = sk
	}
	n.bumpVersion()
	n.dirty = true
	return right, splitKey
}

// FixChild rebalances the child whose subtree may contain k via
// borrow-from-right, merge-right-sibling-into-child, borrow-from-left or
// merge-child-into-left-sibling, trying each in that order; exactly one must
// succeed given B-tree size bounds. Requires n's lock and that the
// caller already holds the lock of the child being fixed.
func (n *Node) FixChild(branchFactor int, k []byte) {
	n.mustBe(internalKind)

	_, midKey, child := n.internal.GetMiddle(k)
	if !child.NeedFix(false, branchFactor) {
		panic("bptree: FixChild called on a child that does not need fixing")
	}

	if rightKey, right, ok := n.internal.GetRight(k); ok {
		right.Lock()
		fixed := n.borrowFromRight(branchFactor, child, right, rightKey) ||
			n.mergeRightIntoLeft(child, right, rightKey)
		right.Unlock()
		if fixed {
			return
		}
	}

	if _, left, ok := n.internal.GetLeft(k); ok {
		left.Lock()
		fixed := n.borrowFromLeft(branchFactor, left, child, midKey) ||
			n.mergeRightIntoLeft(left, child, midKey)
		left.Unlock()
		if fixed {
			return
		}
	}

	panic("bptree: FixChild found neither a borrow nor a merge candidate")
}

// borrowFromRight moves right's frontmost entry into left, rewriting
// the separator at rightKey's position. Returns false if right is
// itself at the fix threshold and cannot spare an entry.
func (n *Node) borrowFromRight(branchFactor int, left, right *Node, rightKey []byte) bool {
	if right.NeedFix(false, branchFactor) {
		return false
	}
	switch left.tag {
	case leafKind:
		rightClone := right.leafMap.Clone()
		k, v, newRightKey := rightClone.PopFront()
		right.leafMap = rightClone
		right.bumpVersion()
		right.dirty = true
		left.PutLeaf(k, v)
		n.EraseChild(rightKey)
		n.PutChild(newRightKey, right)
	case internalKind:
		rightClone := right.internal.Clone()
		borrowed, newRightKey := rightClone.PopFront()
		right.internal = rightClone
		right.bumpVersion()
		right.dirty = true
		left.PutChild(rightKey, borrowed)
		n.EraseChild(rightKey)
		n.PutChild(newRightKey, right)
	}
	return true
}

// borrowFromLeft moves left's backmost entry into right, rewriting the
// separator at rightKey's position. Returns false if left is itself at
// the fix threshold and cannot spare an entry.
func (n *Node) borrowFromLeft(branchFactor int, left, right *Node, rightKey []byte) bool {
	if left.NeedFix(false, branchFactor) {
		return false
	}
	switch right.tag {
	case leafKind:
		leftClone := left.leafMap.Clone()
		k, v := leftClone.PopBack()
		left.leafMap = leftClone
		left.bumpVersion()
		left.dirty = true
		right.PutLeaf(k, v)
		n.EraseChild(rightKey)
		n.PutChild(k, right)
	case internalKind:
		leftClone := left.internal.Clone()
		sepKey, borrowed := leftClone.PopBack()
		left.internal = leftClone
		left.bumpVersion()
		left.dirty = true
		rightClone := right.internal.Clone()
		rightClone.PushFront(borrowed, rightKey)
		right.internal = rightClone
		right.bumpVersion()
		right.dirty = true
		n.EraseChild(rightKey)
		n.PutChild(sepKey, right)
	}
	return true
}

// mergeRightIntoLeft merges right's entries into left and removes
// right's separator from n. Always succeeds; callers only reach it once
// borrowing has already failed, and the B-tree size bounds guarantee a
// merge is then possible.
func (n *Node) mergeRightIntoLeft(left, right *Node, rightKey []byte) bool {
	n.EraseChild(rightKey)
	switch left.tag {
	case leafKind:
		leftClone := left.leafMap.Clone()
		leftClone.AppendRight(right.leafMap.Clone())
		left.leafMap = leftClone
		left.next = right.next
	case internalKind:
		leftClone := left.internal.Clone()
		leftClone.AppendRight(right.internal.Clone(), rightKey)
		left.internal = leftClone
	}
	left.bumpVersion()
	left.dirty = true
	right.bumpVersion()
	right.dirty = true
	return true
}

func (n *Node) mustBe(want kind) {
	if n.tag != want {
		panic(fmt.Sprintf("bptree: operation requires kind %d, got %d", want, n.tag))
	}
}
