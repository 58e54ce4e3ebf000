package engine

import (
	"github.com/ssargent/btreedb/internal/batch"
	"github.com/ssargent/btreedb/internal/walrecord"
)

// maxBatchGroupSize caps how many bytes BuildBatchGroup folds into one
// log record, the same 1MiB default LevelDB-style engines use to keep
// one slow/huge writer from starving everyone queued behind it.
const maxBatchGroupSize = 1 << 20

// smallFirstBatchThreshold: when the leader's own batch is small, cap
// the group at firstSize+128KiB instead of the full 1MiB, so a string
// of tiny writes doesn't get throttled waiting for a 1MiB group to
// fill up.
const smallFirstBatchThreshold = 128 << 10

// Put writes a single key/value pair. sync requests an fsync of the
// log record before Put returns.
func (db *DB) Put(key, value []byte, sync bool) error {
	b := batch.New()
	b.Put(key, value)
	return db.Write(b, sync)
}

// Delete removes key. sync requests an fsync of the log record before
// Delete returns.
func (db *DB) Delete(key []byte, sync bool) error {
	b := batch.New()
	b.Delete(key)
	return db.Write(b, sync)
}

// Write enqueues b for group commit and blocks until it — or the group
// it was folded into — has been appended to the log (and fsynced, if
// sync or any other writer folded into the same group asked for sync)
// and applied to the tree.
//
// Only the writer at the front of the queue acts as leader: it folds
// in as many queued followers as BuildBatchGroup allows, does the
// single log append (and optional fsync) and tree apply for the whole
// group, then wakes everyone up. A follower just waits for its turn,
// or for a leader to mark it done.
func (db *DB) Write(b *batch.Batch, sync bool) error {
	w := &pendingWrite{batch: b, sync: sync}

	db.mu.Lock()
	db.writers = append(db.writers, w)
	for !w.done && db.writers[0] != w {
		db.cond.Wait()
	}
	if w.done {
		db.mu.Unlock()
		return w.err
	}

	// w is the leader: fold in followers, assign sequence numbers, and
	// release the lock for the actual I/O so new writers can keep
	// enqueueing behind the group already being committed.
	group, groupSync, last := db.buildBatchGroup(w)

	seq := db.lastSeq + 1
	db.lastSeq += uint64(group.Count())
	group.SetSequence(seq)

	db.mu.Unlock()
	err := db.appendAndApply(group, groupSync)
	db.mu.Lock()

	for {
		ready := db.writers[0]
		db.writers = db.writers[1:]
		if ready != w {
			ready.err = err
			ready.done = true
		}
		if ready == last {
			break
		}
	}
	db.cond.Broadcast()
	db.mu.Unlock()
	return err
}

// buildBatchGroup folds as many writers queued behind the leader into
// one batch as fit under the size cap, stopping at the first writer
// that wants a sync the leader's group doesn't already provide — a
// sync write never merges into (or gets silently downgraded out of) a
// non-sync group; it becomes the next group's leader instead and gets
// its own real fsync.
func (db *DB) buildBatchGroup(leader *pendingWrite) (group *batch.Batch, groupSync bool, last *pendingWrite) {
	size := leader.batch.ByteSize()
	maxSize := maxBatchGroupSize
	if size <= smallFirstBatchThreshold {
		maxSize = size + smallFirstBatchThreshold
	}

	group = batch.New()
	group.Append(leader.batch)
	groupSync = leader.sync
	last = leader

	for i := 1; i < len(db.writers); i++ {
		w := db.writers[i]
		if w.barrier {
			break
		}
		if w.sync && !groupSync {
			break
		}
		size += w.batch.ByteSize()
		if size > maxSize {
			break
		}
		group.Append(w.batch)
		last = w
	}
	return group, groupSync, last
}

// rotateWAL claims the head of the group-commit queue as a barrier —
// never folded into a leader's group — so it is guaranteed no leader
// is mid-append on db.wal, then closes the current log file and opens
// the next-numbered one. It returns the number of the file just
// retired, which ManualCheckpoint records as last_obsolete_log_number.
func (db *DB) rotateWAL() (retired uint64, err error) {
	w := &pendingWrite{barrier: true}

	db.mu.Lock()
	db.writers = append(db.writers, w)
	for !w.done && db.writers[0] != w {
		db.cond.Wait()
	}
	if w.done {
		db.mu.Unlock()
		return 0, w.err
	}
	retired = db.logNumber
	old := db.wal
	db.mu.Unlock()

	next := retired + 1
	newWal, openErr := walrecord.Open(logFilePath(db.dir, next))

	db.mu.Lock()
	if openErr == nil {
		db.wal = newWal
		db.logNumber = next
	}
	db.writers = db.writers[1:]
	db.cond.Broadcast()
	db.mu.Unlock()

	if openErr != nil {
		return 0, newError(StatusIOError, "open next log file: %w", openErr)
	}
	if err := old.Close(); err != nil {
		return 0, newError(StatusIOError, "close retired log file: %w", err)
	}
	return retired, nil
}

// appendAndApply writes group's wire encoding as a single log record,
// fsyncs it if sync is set, and replays it against the tree. Called
// without db.mu held so concurrent callers can keep enqueueing.
func (db *DB) appendAndApply(group *batch.Batch, sync bool) error {
	if _, err := db.wal.Append(group.Encode()); err != nil {
		return newError(StatusIOError, "append log record: %w", err)
	}
	if sync {
		if err := db.wal.Sync(); err != nil {
			return newError(StatusIOError, "sync log: %w", err)
		}
	} else if err := db.wal.Flush(); err != nil {
		return newError(StatusIOError, "flush log: %w", err)
	}
	if err := group.Apply(db.tree); err != nil {
		return newError(StatusIOError, "apply batch to tree: %w", err)
	}
	return nil
}
