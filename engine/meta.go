package engine

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/brlbcm/allele-registry/pagedfile"
)

// metaPageBytes is the fixed size of the engine's single meta record,
// always resident at page 0 of the index file. It spans exactly one
// index-file page so it can be read/written with the same PagedFile
// page-count convention as every other index-file page.
const metaPageBytes = halfPageBytes

// meta is the engine-wide bookkeeping record: the root
// index-node pointer, record count, and the largest key written so far.
type meta struct {
	revision    uint64
	rootPage    pagedfile.PageID
	recordCount uint64
	largestKey  Key
	hasLargest  bool
}

func encodeMeta(m meta) []byte {
	buf := make([]byte, metaPageBytes)
	binary.LittleEndian.PutUint64(buf[0:8], m.revision)

	body := buf[16:16]
	body = varintEncode(body, uint64(m.rootPage), 7)
	body = varintEncode(body, m.recordCount, 7)
	body = varintEncode(body, uint64(m.largestKey), 7)
	if m.hasLargest {
		body = append(body, 1)
	} else {
		body = append(body, 0)
	}

	copy(buf[16:], body)
	crc := crc32.ChecksumIEEE(buf[16 : 16+len(body)])
	binary.LittleEndian.PutUint32(buf[8:12], crc)
	binary.LittleEndian.PutUint32(buf[12:16], uint32(len(body)))

	return buf
}

func decodeMeta(buf []byte) (meta, error) {
	if len(buf) < 16 {
		return meta{}, ErrCorruptedPage
	}

	revision := binary.LittleEndian.Uint64(buf[0:8])
	wantCRC := binary.LittleEndian.Uint32(buf[8:12])
	n := int(binary.LittleEndian.Uint32(buf[12:16]))
	if 16+n > len(buf) {
		return meta{}, ErrCorruptedPage
	}

	body := buf[16 : 16+n]
	gotCRC := crc32.ChecksumIEEE(body)
	if wantCRC != gotCRC {
		return meta{}, ErrCorruptedPage
	}

	root, k, err := varintDecode(body, 7)
	if err != nil {
		return meta{}, ErrCorruptedPage
	}
	body = body[k:]

	count, k, err := varintDecode(body, 7)
	if err != nil {
		return meta{}, ErrCorruptedPage
	}
	body = body[k:]

	largest, k, err := varintDecode(body, 7)
	if err != nil {
		return meta{}, ErrCorruptedPage
	}
	body = body[k:]

	hasLargest := len(body) > 0 && body[0] == 1

	return meta{
		revision:    revision,
		rootPage:    pagedfile.PageID(root),
		recordCount: count,
		largestKey:  Key(largest),
		hasLargest:  hasLargest,
	}, nil
}
