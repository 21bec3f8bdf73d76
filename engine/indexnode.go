package engine

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/brlbcm/allele-registry/pagedfile"
)

// nodeMode tags the single disk record every IndexNode is stored as.
type nodeMode uint8

const (
	modeEmpty nodeMode = iota
	modeLeaf           // the covered byte range routes to one data-page run
	modeChild          // the covered byte range (width 1) deepens into a
	// full IndexNode keyed by the next key byte
	modeSplit // the covered byte range splits in half at the same level
)

// leafRef points at the data-page run holding the records for one leaf.
type leafRef struct {
	page  pagedfile.PageID
	count uint32
}

// indexNode is one on-disk index record: either a leaf, a one-level
// deepening pointer, or a same-level binary split. A
// node always covers a byte-value range [lo, hi) of width 2^n at its
// level; width shrinks by half on every modeSplit hop and routing
// switches to the next key byte on every modeChild hop.
type indexNode struct {
	revision uint64
	mode     nodeMode

	leaf leafRef

	child pagedfile.PageID // modeChild

	left, right pagedfile.PageID // modeSplit
}

// slotOf returns the byte value this key contributes at level.
func slotOf(key Key, level, keyBytes int) byte {
	shift := uint((keyBytes - 1 - level) * 8)
	return byte((key >> shift) & 0xff)
}

// encodeIndexNode serializes node into one half-page buffer (exactly
// halfPageBytes long), writing revision + crc32 header followed by the
// mode-specific payload.
func encodeIndexNode(node indexNode, revision uint64) []byte {
	buf := make([]byte, halfPageBytes)

	payload := buf[13:13]
	payload = append(payload, byte(node.mode))
	switch node.mode {
	case modeEmpty:
		// no payload
	case modeLeaf:
		payload = varintEncode(payload, uint64(node.leaf.page), 7)
		payload = varintEncode(payload, uint64(node.leaf.count), 7)
	case modeChild:
		payload = varintEncode(payload, uint64(node.child), 7)
	case modeSplit:
		payload = varintEncode(payload, uint64(node.left), 7)
		payload = varintEncode(payload, uint64(node.right), 7)
	}

	n := len(payload)
	if 13+n > halfPageBytes {
		panic("engine: index node payload overflowed half page")
	}

	binary.LittleEndian.PutUint64(buf[0:8], revision)
	buf[12] = byte(n)
	copy(buf[13:13+n], payload)

	crc := crc32.ChecksumIEEE(buf[12 : 13+n])
	binary.LittleEndian.PutUint32(buf[8:12], crc)

	return buf
}

// decodeHalfPage validates one half-page buffer's CRC and returns the
// decoded node and its revision. ok is false when the half is corrupt or
// was never written (all zero).
func decodeHalfPage(buf []byte) (node indexNode, revision uint64, ok bool) {
	if len(buf) < 13 {
		return indexNode{}, 0, false
	}

	n := int(buf[12])
	if 13+n > len(buf) {
		return indexNode{}, 0, false
	}

	wantCRC := binary.LittleEndian.Uint32(buf[8:12])
	gotCRC := crc32.ChecksumIEEE(buf[12 : 13+n])
	if wantCRC != gotCRC {
		return indexNode{}, 0, false
	}

	revision = binary.LittleEndian.Uint64(buf[0:8])
	payload := buf[13 : 13+n]
	if len(payload) == 0 {
		return indexNode{}, 0, false
	}

	mode := nodeMode(payload[0])
	rest := payload[1:]

	switch mode {
	case modeEmpty:
		return indexNode{mode: modeEmpty, revision: revision}, revision, true
	case modeLeaf:
		page, k, err := varintDecode(rest, 7)
		if err != nil {
			return indexNode{}, 0, false
		}
		rest = rest[k:]
		count, _, err := varintDecode(rest, 7)
		if err != nil {
			return indexNode{}, 0, false
		}
		return indexNode{
			mode:     modeLeaf,
			revision: revision,
			leaf:     leafRef{page: pagedfile.PageID(page), count: uint32(count)},
		}, revision, true
	case modeChild:
		child, _, err := varintDecode(rest, 7)
		if err != nil {
			return indexNode{}, 0, false
		}
		return indexNode{mode: modeChild, revision: revision, child: pagedfile.PageID(child)}, revision, true
	case modeSplit:
		left, k, err := varintDecode(rest, 7)
		if err != nil {
			return indexNode{}, 0, false
		}
		rest = rest[k:]
		right, _, err := varintDecode(rest, 7)
		if err != nil {
			return indexNode{}, 0, false
		}
		return indexNode{
			mode:     modeSplit,
			revision: revision,
			left:     pagedfile.PageID(left),
			right:    pagedfile.PageID(right),
		}, revision, true
	default:
		return indexNode{}, 0, false
	}
}

// encodeIndexPage packs node into the full indexPageBytes on-disk record:
// two half-pages, the new one written at revision+1 into whichever half
// currently holds the lower (or invalid) revision.
func encodeIndexPage(prevBuf []byte, node indexNode) []byte {
	out := make([]byte, indexPageBytes)

	nextRevision := uint64(1)
	targetHalf := 0

	if len(prevBuf) == indexPageBytes {
		_, rev0, ok0 := decodeHalfPage(prevBuf[0:halfPageBytes])
		_, rev1, ok1 := decodeHalfPage(prevBuf[halfPageBytes:indexPageBytes])

		copy(out, prevBuf)

		switch {
		case ok0 && ok1:
			if rev0 >= rev1 {
				nextRevision = rev0 + 1
				targetHalf = 1
			} else {
				nextRevision = rev1 + 1
				targetHalf = 0
			}
		case ok0:
			nextRevision = rev0 + 1
			targetHalf = 1
		case ok1:
			nextRevision = rev1 + 1
			targetHalf = 0
		}
	}

	half := encodeIndexNode(node, nextRevision)
	copy(out[targetHalf*halfPageBytes:(targetHalf+1)*halfPageBytes], half)
	return out
}

// decodeIndexPage reads the most recently written valid half, per the
// highest-revision-wins rule.
func decodeIndexPage(buf []byte) (indexNode, error) {
	if len(buf) != indexPageBytes {
		return indexNode{}, ErrCorruptedPage
	}

	node0, rev0, ok0 := decodeHalfPage(buf[0:halfPageBytes])
	node1, rev1, ok1 := decodeHalfPage(buf[halfPageBytes:indexPageBytes])

	switch {
	case ok0 && ok1:
		if rev0 >= rev1 {
			return node0, nil
		}
		return node1, nil
	case ok0:
		return node0, nil
	case ok1:
		return node1, nil
	default:
		return indexNode{}, ErrCorruptedPage
	}
}
