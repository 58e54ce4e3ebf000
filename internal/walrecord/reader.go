package walrecord

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
)

// ErrCorruption indicates a record's checksum did not match its
// payload, or the end of the file cut its header or payload short.
var ErrCorruption = errors.New("walrecord: corrupt record")

// CorruptionReporter is invoked with the number of bytes a dropped
// record occupied and the error that caused it to be dropped, mirroring
// cowbpt's log reporter. Recovery treats everything read before the
// first bad record as the durable prefix and stops there; it does not
// attempt to resync past a torn or corrupt record.
type CorruptionReporter func(bytes int, err error)

// Reader replays framed records sequentially from the start of a file.
type Reader struct {
	file   *os.File
	br     *bufio.Reader
	offset int64
}

// OpenReader opens path for sequential replay from its beginning.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{file: f, br: bufio.NewReader(f)}, nil
}

// Next returns the next record's payload, io.EOF at a clean end of
// file, or ErrCorruption at a torn or checksum-mismatched tail record
// — the same shape a crash mid-append leaves behind. If reporter is
// non-nil it is invoked before ErrCorruption is returned.
func (r *Reader) Next(reporter CorruptionReporter) ([]byte, error) {
	var header [headerSize]byte
	n, err := io.ReadFull(r.br, header[:])
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		if reporter != nil {
			reporter(n, err)
		}
		return nil, ErrCorruption
	}

	length := binary.LittleEndian.Uint32(header[0:4])
	wantCRC := binary.LittleEndian.Uint32(header[4:8])

	payload := make([]byte, length)
	pn, err := io.ReadFull(r.br, payload)
	if err != nil {
		if reporter != nil {
			reporter(headerSize+pn, err)
		}
		return nil, ErrCorruption
	}

	if crc32.ChecksumIEEE(payload) != wantCRC {
		if reporter != nil {
			reporter(headerSize+len(payload), fmt.Errorf("walrecord: crc mismatch at offset %d", r.offset))
		}
		return nil, ErrCorruption
	}

	r.offset += int64(headerSize) + int64(len(payload))
	return payload, nil
}

// Offset reports the byte offset just past the last successfully read
// record — where recovery should truncate the file to if a later
// record turns out to be corrupt.
func (r *Reader) Offset() int64 { return r.offset }

// Close releases the underlying file.
func (r *Reader) Close() error { return r.file.Close() }
