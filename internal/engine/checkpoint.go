package engine

import (
	"encoding/binary"
	"time"

	"github.com/ssargent/btreedb/internal/pager"
)

// ManualCheckpoint serializes every dirty in-memory node to the page
// store and records the tree's current root, next node id, and
// sequence number as the new recovery baseline, so the log prefix
// preceding this sequence becomes replay-safe but no longer
// load-bearing.
func (db *DB) ManualCheckpoint() error {
	db.checkpointMu.Lock()
	defer db.checkpointMu.Unlock()

	db.mu.Lock()
	snapshotSeq := db.lastSeq
	db.mu.Unlock()

	root := db.tree.Root()
	if err := db.manager.Checkpoint(root); err != nil {
		return newError(StatusIOError, "checkpoint tree: %w", err)
	}

	if err := putMetaUint64(db.store, pager.MetaRootPageID, uint64(root.ID())); err != nil {
		return newError(StatusIOError, "write %s: %w", pager.MetaRootPageID, err)
	}
	if err := putMetaUint64(db.store, pager.MetaNextNodeID, db.manager.NextID()); err != nil {
		return newError(StatusIOError, "write %s: %w", pager.MetaNextNodeID, err)
	}
	if err := putMetaUint64(db.store, pager.MetaLastSeqInLastLogFile, snapshotSeq); err != nil {
		return newError(StatusIOError, "write %s: %w", pager.MetaLastSeqInLastLogFile, err)
	}
	// Rotate to a fresh log file before declaring the old one obsolete.
	// Writes after this point must land somewhere recovery will still
	// replay; once last_obsolete_log_number covers a file, the next
	// open both skips it during replay and deletes it (see recover).
	retired, err := db.rotateWAL()
	if err != nil {
		return err
	}
	if err := putMetaUint64(db.store, pager.MetaLogFileNumber, retired); err != nil {
		return newError(StatusIOError, "write %s: %w", pager.MetaLogFileNumber, err)
	}
	// The snapshot sequence is the one metadata write that must be
	// durable before this checkpoint can be trusted on the next open:
	// it is what tells recovery which WAL records are now redundant.
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], snapshotSeq)
	if err := db.store.PutSync([]byte(pager.MetaLastCheckpointSnapshotSeq), buf[:]); err != nil {
		return newError(StatusIOError, "write %s: %w", pager.MetaLastCheckpointSnapshotSeq, err)
	}
	return nil
}

// startCheckpointTicker runs ManualCheckpoint every interval until
// Close stops it, mirroring the periodic checkpoint teacher's
// BPlusTree left as an unwired field and cowbpt drives from its own
// background thread.
func (db *DB) startCheckpointTicker(interval time.Duration) {
	db.tickerStop = make(chan struct{})
	db.tickerDone = make(chan struct{})

	go func() {
		defer close(db.tickerDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-db.tickerStop:
				return
			case <-ticker.C:
				_ = db.ManualCheckpoint()
			}
		}
	}()
}
