// Package pagestore implements the durable key-value collaborator the
// node manager and the engine's checkpoint path use to persist pages
// and metadata, backed by github.com/cockroachdb/pebble the same way
// pkg/storage.DefaultStorage wraps it for document storage.
package pagestore

import (
	"os"

	"github.com/cockroachdb/pebble"
)

// PageStore is a pebble-backed byte-string store keyed by opaque byte
// strings (serialized NodeIds or the fixed metadata key names). It is
// the "external page store" the node manager and the checkpoint path
// read and write through; nothing outside this package touches pebble
// directly.
type PageStore struct {
	db *pebble.DB
}

// Open opens (creating if absent) the pebble database rooted at dir.
func Open(dir string) (*PageStore, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PageStore{db: db}, nil
}

// Close releases the underlying pebble handle.
func (p *PageStore) Close() error {
	return p.db.Close()
}

// Destroy removes a page store directory that is not currently open.
// Used by engine.DestroyDB to tear down a database's on-disk state.
func Destroy(dir string) error {
	return os.RemoveAll(dir)
}

// Get reads key's current value. It returns (nil, false, nil) if key is
// absent.
func (p *PageStore) Get(key []byte) ([]byte, bool, error) {
	data, closer, err := p.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()

	out := make([]byte, len(data))
	copy(out, data)
	return out, true, nil
}

// Put writes key/value without forcing an fsync. Used for the bulk of a
// checkpoint's dirty-page writes, which become durable only once the
// checkpoint's final metadata write below syncs.
func (p *PageStore) Put(key, value []byte) error {
	return p.db.Set(key, value, pebble.NoSync)
}

// PutSync writes key/value and forces an fsync before returning. The
// checkpoint path uses this for exactly one write per checkpoint: the
// final LastCheckpointSnapshotSeq write, whose sync also makes every
// page and metadata write before it durable.
func (p *PageStore) PutSync(key, value []byte) error {
	return p.db.Set(key, value, pebble.Sync)
}

// Delete removes key. Used by tests; not on the hot path.
func (p *PageStore) Delete(key []byte) error {
	return p.db.Delete(key, pebble.NoSync)
}

// Snapshot is a pinned, consistent read-only view of the page store
// taken at a point in time, realizing spec's "snapshot_seq" parameter
// as an opaque handle rather than a bare sequence number — pebble pins
// reads via a Snapshot object, not by accepting a caller-supplied
// sequence number on Get.
type Snapshot struct {
	snap *pebble.Snapshot
}

// NewSnapshot pins the page store's current state. Recovery takes one
// before fetching the checkpointed root and replaying the log against
// it, so that a concurrent process opening the same store (or a later
// part of recovery itself) can never observe pages written after the
// point recovery is reconstructing.
func (p *PageStore) NewSnapshot() *Snapshot {
	return &Snapshot{snap: p.db.NewSnapshot()}
}

// Close releases the snapshot. After Close, GetAt with this snapshot
// must not be called again.
func (s *Snapshot) Close() error {
	return s.snap.Close()
}

// GetAt reads key as of the moment snap was taken.
func (p *PageStore) GetAt(key []byte, snap *Snapshot) ([]byte, bool, error) {
	if snap == nil {
		return p.Get(key)
	}
	data, closer, err := snap.snap.Get(key)
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()

	out := make([]byte, len(data))
	copy(out, data)
	return out, true, nil
}
