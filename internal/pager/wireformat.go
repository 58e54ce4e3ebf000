package pager

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ssargent/btreedb/internal/bptree"
	"github.com/ssargent/btreedb/internal/keycmp"
)

const (
	pageTypeLeaf uint64 = iota
	pageTypeInternal
)

// encodePage serializes n's current map into the on-disk page layout:
// [type varint][entry_count varint][entries...]. A leaf entry is
// [key_len varint][key][value_len varint][value]; an internal entry is
// [key_len varint][key][child_node_id u64-LE], with position 0's key
// length encoded as zero. Requires n's lock.
func encodePage(n *bptree.Node) []byte {
	var buf bytes.Buffer
	var scratch [binary.MaxVarintLen64]byte

	putUvarint := func(v uint64) {
		l := binary.PutUvarint(scratch[:], v)
		buf.Write(scratch[:l])
	}

	if n.IsLeaf() {
		m := n.LeafEntries()
		putUvarint(pageTypeLeaf)
		putUvarint(uint64(m.Size()))
		for i := 0; i < m.Size(); i++ {
			k, v := m.KeyAt(i), m.ValueAt(i)
			putUvarint(uint64(len(k)))
			buf.Write(k)
			putUvarint(uint64(len(v)))
			buf.Write(v)
		}
		return buf.Bytes()
	}

	m := n.InternalEntries()
	putUvarint(pageTypeInternal)
	putUvarint(uint64(m.Size()))
	var idBuf [8]byte
	for i := 0; i < m.Size(); i++ {
		k := m.KeyAt(i)
		if i == 0 {
			k = nil
		}
		putUvarint(uint64(len(k)))
		buf.Write(k)
		binary.LittleEndian.PutUint64(idBuf[:], uint64(m.ChildAt(i).ID()))
		buf.Write(idBuf[:])
	}
	return buf.Bytes()
}

// decodePage parses a page back into either a LeafMap or an
// InternalMap whose children are unresolved shells keyed only by
// NodeID.
func decodePage(cmp keycmp.Comparator, data []byte) (isLeaf bool, leaf *bptree.LeafMap, internal *bptree.InternalMap, err error) {
	r := bytes.NewReader(data)

	typ, err := binary.ReadUvarint(r)
	if err != nil {
		return false, nil, nil, fmt.Errorf("pager: read page type: %w", err)
	}
	count, err := binary.ReadUvarint(r)
	if err != nil {
		return false, nil, nil, fmt.Errorf("pager: read entry count: %w", err)
	}

	readBytes := func() ([]byte, error) {
		n, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, nil
		}
		b := make([]byte, n)
		if _, err := io.ReadFull(r, b); err != nil {
			return nil, err
		}
		return b, nil
	}

	switch typ {
	case pageTypeLeaf:
		keys := make([][]byte, count)
		values := make([][]byte, count)
		for i := uint64(0); i < count; i++ {
			if keys[i], err = readBytes(); err != nil {
				return false, nil, nil, fmt.Errorf("pager: read leaf key %d: %w", i, err)
			}
			if values[i], err = readBytes(); err != nil {
				return false, nil, nil, fmt.Errorf("pager: read leaf value %d: %w", i, err)
			}
		}
		return true, bptree.NewLeafMapFromEntries(cmp, keys, values), nil, nil

	case pageTypeInternal:
		keys := make([][]byte, count)
		children := make([]*bptree.Node, count)
		var idBytes [8]byte
		for i := uint64(0); i < count; i++ {
			if keys[i], err = readBytes(); err != nil {
				return false, nil, nil, fmt.Errorf("pager: read internal key %d: %w", i, err)
			}
			if _, err := io.ReadFull(r, idBytes[:]); err != nil {
				return false, nil, nil, fmt.Errorf("pager: read child id %d: %w", i, err)
			}
			children[i] = bptree.NewShell(bptree.NodeID(binary.LittleEndian.Uint64(idBytes[:])))
		}
		return false, nil, bptree.NewInternalMapFromEntries(cmp, keys, children), nil

	default:
		return false, nil, nil, fmt.Errorf("pager: unknown page type %d", typ)
	}
}
