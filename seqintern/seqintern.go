// Package seqintern implements the sequence interning table: distinct
// nucleotide/amino-acid sequences are stored once and referred to
// everywhere else by a small integer id.
//
// Grounded on original_source/src/allelesDatabase/TableSequence.{hpp,cpp}:
// sequences are bucketed by the high bits of CRC32(sequence), and
// sequences colliding into the same bucket are distinguished by a
// sub-id. The original reserves 8 bits for that sub-id; this widens it
// to 16 bits (see DESIGN.md Open Question resolution) so a single
// popular CRC32 bucket can hold far more distinct colliding sequences
// before the table must refuse new insertions.
package seqintern

import (
	"context"
	"fmt"
	"hash/crc32"

	"github.com/brlbcm/allele-registry/engine"
)

// MaxSequenceLength bounds how long a single interned sequence may be
//.
const MaxSequenceLength = 1 << 20

// ID identifies one interned sequence: the CRC32 bucket it hashed into,
// plus its position within that bucket's collision list.
type ID struct {
	Bucket uint32
	Sub    uint16
}

// bucketShift discards the low 8 bits of the CRC32 so that sequences
// differing only in those bits still land in the same bucket, bounding
// the number of distinct buckets relative to the number of distinct
// sequences.
const bucketShift = 8

func bucketOf(seq []byte) uint32 {
	return crc32.ChecksumIEEE(seq) >> bucketShift
}

type bucketEntry struct {
	sub uint16
	seq []byte
}

// bucketRecord is the engine record stored at one CRC32 bucket key: the
// list of distinct sequences that have ever collided into it.
type bucketRecord struct {
	entries []bucketEntry
}

func (r bucketRecord) Len() int {
	n := uvarintLen(uint64(len(r.entries)))
	for _, e := range r.entries {
		n += 2 + uvarintLen(uint64(len(e.seq))) + len(e.seq)
	}
	return n
}

func (r bucketRecord) Serialize(buf []byte) {
	n := putUvarint(buf, uint64(len(r.entries)))
	for _, e := range r.entries {
		buf[n] = byte(e.sub)
		buf[n+1] = byte(e.sub >> 8)
		n += 2
		n += putUvarint(buf[n:], uint64(len(e.seq)))
		n += copy(buf[n:], e.seq)
	}
}

func decodeBucketRecord(key uint64, buf []byte) (bucketRecord, error) {
	count, n, err := getUvarint(buf)
	if err != nil {
		return bucketRecord{}, err
	}
	off := n

	entries := make([]bucketEntry, 0, count)
	for i := uint64(0); i < count; i++ {
		if len(buf)-off < 2 {
			return bucketRecord{}, fmt.Errorf("seqintern: truncated bucket entry")
		}
		sub := uint16(buf[off]) | uint16(buf[off+1])<<8
		off += 2

		l, n, err := getUvarint(buf[off:])
		if err != nil {
			return bucketRecord{}, err
		}
		off += n
		if uint64(len(buf)-off) < l {
			return bucketRecord{}, fmt.Errorf("seqintern: truncated sequence bytes")
		}
		seq := append([]byte(nil), buf[off:off+int(l)]...)
		off += int(l)

		entries = append(entries, bucketEntry{sub: sub, seq: seq})
	}
	return bucketRecord{entries: entries}, nil
}

// Table interns sequences over a dedicated engine store keyed by CRC32
// bucket.
type Table struct {
	eng *engine.Engine[bucketRecord]
}

// Open opens (or creates) the sequence interning table under dir.
func Open(dir, name string) (*Table, error) {
	eng, err := engine.Open(engine.Options{Dir: dir, Name: name, KeyBytes: 4}, decodeBucketRecord)
	if err != nil {
		return nil, fmt.Errorf("seqintern: open: %w", err)
	}
	return &Table{eng: eng}, nil
}

// Close releases the underlying engine.
func (t *Table) Close() error { return t.eng.Close() }

// Intern returns the ID for seq, assigning a fresh one if this is the
// first time seq has been seen.
func (t *Table) Intern(ctx context.Context, seq []byte) (ID, error) {
	if len(seq) > MaxSequenceLength {
		return ID{}, engine.ErrSequenceTooLong
	}

	bucket := bucketOf(seq)
	record, found, err := t.eng.Get(ctx, uint64(bucket))
	if err != nil {
		return ID{}, err
	}

	if found {
		for _, e := range record.entries {
			if string(e.seq) == string(seq) {
				return ID{Bucket: bucket, Sub: e.sub}, nil
			}
		}
	}

	if len(record.entries) >= 1<<16 {
		return ID{}, fmt.Errorf("seqintern: bucket %d is full", bucket)
	}
	nextSub := uint16(len(record.entries))
	record.entries = append(record.entries, bucketEntry{sub: nextSub, seq: append([]byte(nil), seq...)})

	if err := t.eng.Put(ctx, uint64(bucket), record); err != nil {
		return ID{}, err
	}
	return ID{Bucket: bucket, Sub: nextSub}, nil
}

// Lookup returns the sequence bytes for a previously interned id.
func (t *Table) Lookup(ctx context.Context, id ID) ([]byte, bool, error) {
	record, found, err := t.eng.Get(ctx, uint64(id.Bucket))
	if err != nil || !found {
		return nil, false, err
	}
	for _, e := range record.entries {
		if e.sub == id.Sub {
			return e.seq, true, nil
		}
	}
	return nil, false, nil
}

func uvarintLen(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

func putUvarint(buf []byte, v uint64) int {
	i := 0
	for v >= 0x80 {
		buf[i] = byte(v) | 0x80
		v >>= 7
		i++
	}
	buf[i] = byte(v)
	return i + 1
}

func getUvarint(buf []byte) (uint64, int, error) {
	var v uint64
	var shift uint
	for i := 0; i < len(buf); i++ {
		b := buf[i]
		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, i + 1, nil
		}
		shift += 7
		if shift > 63 {
			return 0, 0, fmt.Errorf("seqintern: varint overflow")
		}
	}
	return 0, 0, fmt.Errorf("seqintern: truncated varint")
}
