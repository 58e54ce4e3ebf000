// Package pager implements the node manager (C5): it allocates NodeIds,
// serializes dirty in-memory nodes to the page store at checkpoint
// time, and lazily fetches evicted or never-loaded nodes back into
// memory on demand, the way pkg/storage.DefaultStorage brokers reads
// and writes against pebble for the teacher's document store.
package pager

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/ssargent/btreedb/internal/bptree"
	"github.com/ssargent/btreedb/internal/keycmp"
	"github.com/ssargent/btreedb/internal/pagestore"
)

// Metadata key names, stored verbatim as UTF-8 strings in the page
// store. The engine reads and writes these directly; the node manager
// only owns MetaNextNodeID and the page namespace below it.
const (
	MetaLogFileNumber             = "LOGFILENUMBER"
	MetaLastSeqInLastLogFile      = "LastSeqInLastLogFile"
	MetaLastCheckpointSnapshotSeq = "LastCheckpointSnapshotSeq"
	MetaNextNodeID                = "NextNodeId"
	MetaRootPageID                = "RootPageId"
	MetaDatabaseID                = "DatabaseId"
)

// pageKeyPrefix separates the page namespace from the metadata
// namespace in the page store's flat key space. Every metadata key
// above is longer than 8 bytes, so this is belt-and-suspenders rather
// than load-bearing, but it keeps the two namespaces unambiguous even
// if a future metadata key is added that's shorter.
var pageKeyPrefix = []byte("p")

func pageKey(id bptree.NodeID) []byte {
	key := make([]byte, len(pageKeyPrefix)+8)
	copy(key, pageKeyPrefix)
	binary.BigEndian.PutUint64(key[len(pageKeyPrefix):], uint64(id))
	return key
}

// Manager implements bptree.NodeManager against a pagestore.PageStore.
type Manager struct {
	store    *pagestore.PageStore
	cmp      keycmp.Comparator
	nextID   uint64 // atomic
	snapshot *pagestore.Snapshot
}

// NewManager wires a Manager to store. startID is the next id to hand
// out: 1 for a brand-new database, or whatever MetaNextNodeID held at
// the end of the last successful checkpoint during recovery.
func NewManager(store *pagestore.PageStore, cmp keycmp.Comparator, startID uint64) *Manager {
	return &Manager{store: store, cmp: cmp, nextID: startID}
}

// Allocate assigns the next NodeId to n and marks it resident and
// dirty. n is a newly built node that no other goroutine can reach yet.
func (m *Manager) Allocate(n *bptree.Node) {
	id := bptree.NodeID(atomic.AddUint64(&m.nextID, 1) - 1)
	n.SetID(id)
	n.MarkAllocated()
}

// NextID returns the id that will be handed out next, persisted by the
// engine as MetaNextNodeID at every checkpoint.
func (m *Manager) NextID() uint64 {
	return atomic.LoadUint64(&m.nextID)
}

// PinSnapshot routes every subsequent Fetch through snap instead of the
// page store's live state, until Unpin is called. Used by recovery to
// read a consistent view of the checkpointed root and its descendants
// while replay runs concurrently with any other opener.
func (m *Manager) PinSnapshot(snap *pagestore.Snapshot) {
	m.snapshot = snap
}

// Unpin releases a snapshot pinned by PinSnapshot and closes it.
// Fetch reverts to reading the page store's live state.
func (m *Manager) Unpin() error {
	if m.snapshot == nil {
		return nil
	}
	snap := m.snapshot
	m.snapshot = nil
	return snap.Close()
}

// Fetch loads id's page from the page store and resolves target as
// either a leaf or an internal node in place. target is already
// exclusively locked by its caller.
func (m *Manager) Fetch(id bptree.NodeID, target *bptree.Node) error {
	data, ok, err := m.store.GetAt(pageKey(id), m.snapshot)
	if err != nil {
		return fmt.Errorf("pager: fetch node %d: %w", id, err)
	}
	if !ok {
		return fmt.Errorf("pager: node %d not found in page store", id)
	}

	isLeaf, leaf, internal, err := decodePage(m.cmp, data)
	if err != nil {
		return fmt.Errorf("pager: fetch node %d: %w", id, err)
	}

	target.SetID(id)
	if isLeaf {
		target.ResolveLeaf(leaf)
	} else {
		target.ResolveInternal(internal)
	}
	return nil
}

// Checkpoint walks the tree depth-first from root, writing every
// dirty, in-memory node to the page store in post-order — a node's
// children are always durable before the node that references their
// ids — and clears each node's dirty flag once its page is written.
// Nodes that are not resident are left untouched; their on-disk page
// already matches what a live node there would serialize to, since
// nothing has touched them this session.
func (m *Manager) Checkpoint(root *bptree.Node) error {
	return m.checkpointNode(root)
}

func (m *Manager) checkpointNode(n *bptree.Node) error {
	n.Lock()
	if !n.InMemory() {
		n.Unlock()
		return nil
	}
	dirty := n.Dirty()

	var children []*bptree.Node
	if n.IsInternal() {
		im := n.InternalEntries()
		children = make([]*bptree.Node, im.Size())
		for i := 0; i < im.Size(); i++ {
			children[i] = im.ChildAt(i)
		}
	}

	var page []byte
	if dirty {
		page = encodePage(n)
	}
	id := n.ID()
	n.Unlock()

	// Sibling subtrees share no state, so they checkpoint concurrently;
	// the errgroup still forms a barrier before this node's own page is
	// written, preserving the post-order durability guarantee.
	var g errgroup.Group
	for _, child := range children {
		child := child
		g.Go(func() error { return m.checkpointNode(child) })
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if !dirty {
		return nil
	}
	if err := m.store.Put(pageKey(id), page); err != nil {
		return fmt.Errorf("pager: write node %d: %w", id, err)
	}

	n.Lock()
	n.ClearDirty()
	n.Unlock()
	return nil
}
