// Package batch implements the write-batch codec (C7): the wire format
// for one sequence-stamped group of Put/Delete operations, as written
// to the log in a single record and later replayed against the tree
// both during normal operation and during recovery.
package batch

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Op tags, pinned by the wire format: Delete is 0, Put is 1.
const (
	TagDelete byte = iota
	TagPut
)

type op struct {
	tag   byte
	key   []byte
	value []byte
}

// Batch is an ordered group of Put/Delete operations sharing one
// sequence number. Ops within a batch apply in order, so a later Put or
// Delete on the same key wins over an earlier one in the same batch —
// exactly as if they had been issued one at a time.
type Batch struct {
	seq uint64
	ops []op
}

// New returns an empty batch.
func New() *Batch { return &Batch{} }

// Put appends a Put op.
func (b *Batch) Put(key, value []byte) {
	b.ops = append(b.ops, op{tag: TagPut, key: key, value: value})
}

// Delete appends a Delete op.
func (b *Batch) Delete(key []byte) {
	b.ops = append(b.ops, op{tag: TagDelete, key: key})
}

// Count returns the number of ops in the batch.
func (b *Batch) Count() int { return len(b.ops) }

// Sequence returns the batch's stamped sequence number.
func (b *Batch) Sequence() uint64 { return b.seq }

// SetSequence stamps the batch with seq, called by group commit once a
// group's leading sequence number has been assigned.
func (b *Batch) SetSequence(seq uint64) { b.seq = seq }

// Append concatenates other's ops onto b, used by group commit to fold
// a follower's batch into the leader's before a single log append.
func (b *Batch) Append(other *Batch) {
	b.ops = append(b.ops, other.ops...)
}

// ByteSize estimates the encoded size of b, used by BuildBatchGroup's
// size cap to decide how many batches to fold into one group.
func (b *Batch) ByteSize() int {
	n := 8 + 4 // seq + count
	for _, o := range b.ops {
		n += 1 + uvarintLen(len(o.key)) + len(o.key)
		if o.tag == TagPut {
			n += uvarintLen(len(o.value)) + len(o.value)
		}
	}
	return n
}

func uvarintLen(n int) int {
	l := 1
	v := uint64(n)
	for v >= 0x80 {
		v >>= 7
		l++
	}
	return l
}

// Encode serializes b as [seq u64-LE][count u32-LE][op...], where each
// op is [tag u8][key_len varint][key][value_len varint][value] (the
// value length and bytes are omitted for a Delete op).
func (b *Batch) Encode() []byte {
	var buf bytes.Buffer
	var scratch [binary.MaxVarintLen64]byte
	var u64 [8]byte
	var u32 [4]byte

	binary.LittleEndian.PutUint64(u64[:], b.seq)
	buf.Write(u64[:])
	binary.LittleEndian.PutUint32(u32[:], uint32(len(b.ops)))
	buf.Write(u32[:])

	for _, o := range b.ops {
		buf.WriteByte(o.tag)
		l := binary.PutUvarint(scratch[:], uint64(len(o.key)))
		buf.Write(scratch[:l])
		buf.Write(o.key)
		if o.tag == TagPut {
			l := binary.PutUvarint(scratch[:], uint64(len(o.value)))
			buf.Write(scratch[:l])
			buf.Write(o.value)
		}
	}
	return buf.Bytes()
}

// Decode parses the write-batch wire format produced by Encode.
func Decode(data []byte) (*Batch, error) {
	if len(data) < 12 {
		return nil, fmt.Errorf("batch: truncated header (%d bytes)", len(data))
	}
	seq := binary.LittleEndian.Uint64(data[0:8])
	count := binary.LittleEndian.Uint32(data[8:12])

	r := bytes.NewReader(data[12:])
	b := &Batch{seq: seq}

	for i := uint32(0); i < count; i++ {
		tag, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("batch: read op %d tag: %w", i, err)
		}
		keyLen, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("batch: read op %d key length: %w", i, err)
		}
		key := make([]byte, keyLen)
		if _, err := io.ReadFull(r, key); err != nil {
			return nil, fmt.Errorf("batch: read op %d key: %w", i, err)
		}

		o := op{tag: tag, key: key}
		if tag == TagPut {
			valLen, err := binary.ReadUvarint(r)
			if err != nil {
				return nil, fmt.Errorf("batch: read op %d value length: %w", i, err)
			}
			value := make([]byte, valLen)
			if _, err := io.ReadFull(r, value); err != nil {
				return nil, fmt.Errorf("batch: read op %d value: %w", i, err)
			}
			o.value = value
		}
		b.ops = append(b.ops, o)
	}
	return b, nil
}

// Applier is the target a batch replays its ops against — the tree in
// production, a fake in tests.
type Applier interface {
	Put(key, value []byte) error
	Erase(key []byte) error
}

// Apply replays every op in b against a, in order.
func (b *Batch) Apply(a Applier) error {
	for _, o := range b.ops {
		switch o.tag {
		case TagPut:
			if err := a.Put(o.key, o.value); err != nil {
				return err
			}
		case TagDelete:
			if err := a.Erase(o.key); err != nil {
				return err
			}
		}
	}
	return nil
}
