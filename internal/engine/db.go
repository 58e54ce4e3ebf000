// Package engine implements the database engine (C8): group-commit
// writes, crash recovery, and checkpointing over a bptree.Tree backed
// by a pager.Manager and a pagestore.PageStore.
package engine

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/segmentio/ksuid"

	"github.com/ssargent/btreedb/internal/batch"
	"github.com/ssargent/btreedb/internal/bptree"
	"github.com/ssargent/btreedb/internal/keycmp"
	"github.com/ssargent/btreedb/internal/pager"
	"github.com/ssargent/btreedb/internal/pagestore"
	"github.com/ssargent/btreedb/internal/walrecord"
)

// Status categorizes the outcome of an engine operation so a caller
// can branch on it without string-matching an error.
type Status int

const (
	StatusOK Status = iota
	StatusNotFound
	StatusCorruption
	StatusNotSupported
	StatusInvalidArgument
	StatusIOError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusNotFound:
		return "NotFound"
	case StatusCorruption:
		return "Corruption"
	case StatusNotSupported:
		return "NotSupported"
	case StatusInvalidArgument:
		return "InvalidArgument"
	case StatusIOError:
		return "IOError"
	default:
		return "Unknown"
	}
}

// Error wraps an underlying error with the Status a caller should
// branch on, following the KVError/ErrKeyNotFound pattern in the
// teacher's store package.
type Error struct {
	Status Status
	Err    error
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Status, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

func newError(status Status, format string, args ...interface{}) *Error {
	return &Error{Status: status, Err: fmt.Errorf(format, args...)}
}

// ErrNotFound is returned by Get for an absent key.
var ErrNotFound = newError(StatusNotFound, "key not found")

// Options configures Open.
type Options struct {
	// BranchFactor (B) bounds node size: every node but the root holds
	// between B and 2B+1 entries. Defaults to 64.
	BranchFactor int
	// Comparator orders keys. Defaults to byte-lexicographic order.
	Comparator keycmp.Comparator
	// CheckpointInterval, if non-zero, runs ManualCheckpoint on a
	// ticker for the life of the DB.
	CheckpointInterval time.Duration
	// CorruptionReporter, if set, is invoked during recovery for every
	// WAL record dropped because it was torn or failed its checksum.
	CorruptionReporter walrecord.CorruptionReporter
}

func (o Options) withDefaults() Options {
	if o.BranchFactor == 0 {
		o.BranchFactor = 64
	}
	if o.Comparator == nil {
		o.Comparator = keycmp.ByteComparator{}
	}
	return o
}

// pendingWrite is one caller's entry in the group-commit writer queue.
// A barrier entry carries no batch: it is ManualCheckpoint claiming
// exclusive use of the WAL handle to rotate it, and is never folded
// into a neighboring leader's group.
type pendingWrite struct {
	batch   *batch.Batch
	sync    bool
	barrier bool
	done    bool
	err     error
}

// DB is the embedded database engine. It owns the tree, the node
// manager, the page store, and the write-ahead log, and serializes
// concurrent Write calls through a leader/follower group-commit queue.
type DB struct {
	dir       string
	opts      Options
	store     *pagestore.PageStore
	manager   *pager.Manager
	tree      *bptree.Tree
	wal       *walrecord.Writer
	logNumber uint64

	mu      sync.Mutex
	cond    *sync.Cond
	writers []*pendingWrite
	lastSeq uint64

	checkpointMu sync.Mutex

	tickerStop chan struct{}
	tickerDone chan struct{}

	closed bool

	databaseID string
}

// Open opens (or creates) the database rooted at dir, replaying its
// write-ahead log since the last checkpoint.
func Open(dir string, opts Options) (*DB, error) {
	o := opts.withDefaults()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, newError(StatusIOError, "create data directory: %w", err)
	}

	store, err := pagestore.Open(filepath.Join(dir, "pages"))
	if err != nil {
		return nil, newError(StatusIOError, "open page store: %w", err)
	}

	db := &DB{dir: dir, opts: o, store: store}
	db.cond = sync.NewCond(&db.mu)

	if err := db.recover(); err != nil {
		store.Close()
		return nil, err
	}

	if err := db.stampDatabaseID(); err != nil {
		store.Close()
		return nil, err
	}

	if o.CheckpointInterval > 0 {
		db.startCheckpointTicker(o.CheckpointInterval)
	}
	return db, nil
}

func metaUint64(store *pagestore.PageStore, key string) (uint64, error) {
	data, ok, err := store.Get([]byte(key))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("metadata key %q has unexpected length %d", key, len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}

func putMetaUint64(store *pagestore.PageStore, key string, v uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return store.Put([]byte(key), buf[:])
}

func (db *DB) recover() error {
	nextID, err := metaUint64(db.store, pager.MetaNextNodeID)
	if err != nil {
		return newError(StatusIOError, "read %s: %w", pager.MetaNextNodeID, err)
	}
	if nextID == 0 {
		nextID = 1
	}
	db.manager = pager.NewManager(db.store, db.opts.Comparator, nextID)

	// Pin a snapshot for the root fetch and the replay that follows: both
	// only ever read pages a prior checkpoint already made durable, and
	// pinning keeps that view stable even if something else is
	// concurrently writing through this same store.
	db.manager.PinSnapshot(db.store.NewSnapshot())

	rootID, err := metaUint64(db.store, pager.MetaRootPageID)
	if err != nil {
		return newError(StatusIOError, "read %s: %w", pager.MetaRootPageID, err)
	}
	if rootID != 0 || nextID > 1 {
		root := bptree.NewShell(bptree.NodeID(rootID))
		root.Lock()
		ferr := db.manager.Fetch(bptree.NodeID(rootID), root)
		root.Unlock()
		if ferr != nil {
			return newError(StatusCorruption, "fetch root node %d: %w", rootID, ferr)
		}
		db.tree = bptree.NewTreeFromRoot(db.opts.Comparator, db.opts.BranchFactor, db.manager, root)
	} else {
		db.tree = bptree.NewTree(db.opts.Comparator, db.opts.BranchFactor, db.manager)
	}

	checkpointSeq, err := metaUint64(db.store, pager.MetaLastCheckpointSnapshotSeq)
	if err != nil {
		return newError(StatusIOError, "read %s: %w", pager.MetaLastCheckpointSnapshotSeq, err)
	}
	db.lastSeq = checkpointSeq

	// MetaLogFileNumber persists last_obsolete_log_number: the highest
	// log file number a checkpoint has already fully captured in the
	// page store. Every log file at or below it is redundant and gets
	// deleted below; every log file above it still holds records this
	// checkpoint doesn't cover and must be replayed.
	lastObsolete, err := metaUint64(db.store, pager.MetaLogFileNumber)
	if err != nil {
		return newError(StatusIOError, "read %s: %w", pager.MetaLogFileNumber, err)
	}

	seen, err := listLogFiles(db.dir)
	if err != nil {
		return newError(StatusIOError, "list log files: %w", err)
	}

	maxSeen := lastObsolete
	for _, n := range seen {
		if n > lastObsolete {
			if err := db.replayLog(logFilePath(db.dir, n), checkpointSeq); err != nil {
				return err
			}
		}
		if n > maxSeen {
			maxSeen = n
		}
	}

	// Replay is the last reader that needs the pinned view; everything
	// from here on should see the page store's live state.
	if err := db.manager.Unpin(); err != nil {
		return newError(StatusIOError, "unpin recovery snapshot: %w", err)
	}

	db.logNumber = maxSeen + 1
	wal, err := walrecord.Open(logFilePath(db.dir, db.logNumber))
	if err != nil {
		return newError(StatusIOError, "open write-ahead log: %w", err)
	}
	db.wal = wal

	for _, n := range seen {
		if n <= lastObsolete {
			if err := os.Remove(logFilePath(db.dir, n)); err != nil && !os.IsNotExist(err) {
				return newError(StatusIOError, "remove obsolete log file %d: %w", n, err)
			}
		}
	}
	return nil
}

// replayLog applies every batch whose sequence exceeds checkpointSeq
// (everything else is already reflected in the tree root just loaded)
// and advances db.lastSeq past every sequence number it observes,
// applied or not, so future writes never reuse one.
func (db *DB) replayLog(path string, checkpointSeq uint64) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	reader, err := walrecord.OpenReader(path)
	if err != nil {
		return newError(StatusIOError, "open wal for replay: %w", err)
	}
	defer reader.Close()

	for {
		payload, err := reader.Next(db.opts.CorruptionReporter)
		if err == io.EOF {
			break
		}
		if err == walrecord.ErrCorruption {
			// Everything before this record is the durable prefix;
			// the tail is truncated below.
			break
		}
		if err != nil {
			return newError(StatusIOError, "replay wal: %w", err)
		}

		b, err := batch.Decode(payload)
		if err != nil {
			return newError(StatusCorruption, "decode batch during replay: %w", err)
		}

		if b.Sequence() > checkpointSeq {
			if err := b.Apply(db.tree); err != nil {
				return newError(StatusIOError, "apply batch during replay: %w", err)
			}
		}
		if seqEnd := b.Sequence() + uint64(b.Count()) - 1; seqEnd > db.lastSeq {
			db.lastSeq = seqEnd
		}
	}

	if f, err := os.OpenFile(path, os.O_RDWR, 0o644); err == nil {
		_ = f.Truncate(reader.Offset())
		_ = f.Close()
	}
	return nil
}

// stampDatabaseID reads the directory's KSUID identity, generating and
// persisting one on first open. The id is purely informational (diagnostics,
// log correlation across backups) and never affects tree or log semantics.
func (db *DB) stampDatabaseID() error {
	data, ok, err := db.store.Get([]byte(pager.MetaDatabaseID))
	if err != nil {
		return newError(StatusIOError, "read %s: %w", pager.MetaDatabaseID, err)
	}
	if ok {
		db.databaseID = string(data)
		return nil
	}

	id := ksuid.New().String()
	if err := db.store.PutSync([]byte(pager.MetaDatabaseID), []byte(id)); err != nil {
		return newError(StatusIOError, "write %s: %w", pager.MetaDatabaseID, err)
	}
	db.databaseID = id
	return nil
}

// DatabaseID returns the KSUID stamped into this database's directory
// the first time it was opened.
func (db *DB) DatabaseID() string { return db.databaseID }

// Get returns the value for key, or ErrNotFound.
func (db *DB) Get(key []byte) ([]byte, error) {
	value, found, err := db.tree.Get(key)
	if err != nil {
		return nil, newError(StatusIOError, "get: %w", err)
	}
	if !found {
		return nil, ErrNotFound
	}
	return value, nil
}

// Close stops the checkpoint ticker (if running), runs a final
// checkpoint, and closes the log and the page store.
func (db *DB) Close() error {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return nil
	}
	db.closed = true
	db.mu.Unlock()

	if db.tickerStop != nil {
		close(db.tickerStop)
		<-db.tickerDone
	}

	if err := db.ManualCheckpoint(); err != nil {
		return err
	}
	if err := db.wal.Close(); err != nil {
		return newError(StatusIOError, "close wal: %w", err)
	}
	if err := db.store.Close(); err != nil {
		return newError(StatusIOError, "close page store: %w", err)
	}
	return nil
}
