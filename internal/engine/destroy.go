package engine

import (
	"os"
	"path/filepath"

	"github.com/ssargent/btreedb/internal/pagestore"
)

// DestroyDB removes every file belonging to the database at dir: every
// numbered write-ahead log and its page store directory. dir must not
// be open in this or any other process. Grounded on cowbpt's free
// DestroyDB function, which likewise just unlinks the logs and
// recursively removes the backing store rather than going through an
// open DB handle.
func DestroyDB(dir string) error {
	logNumbers, err := listLogFiles(dir)
	if err != nil {
		return newError(StatusIOError, "list log files: %w", err)
	}
	for _, n := range logNumbers {
		if err := os.Remove(logFilePath(dir, n)); err != nil && !os.IsNotExist(err) {
			return newError(StatusIOError, "remove log file %d: %w", n, err)
		}
	}
	if err := pagestore.Destroy(filepath.Join(dir, "pages")); err != nil {
		return newError(StatusIOError, "destroy page store: %w", err)
	}
	if err := os.Remove(dir); err != nil && !os.IsNotExist(err) {
		return newError(StatusIOError, "remove data directory: %w", err)
	}
	return nil
}
