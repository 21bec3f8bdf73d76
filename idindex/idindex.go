// Package idindex implements the secondary indexes that let the
// registry look variants up by their short numeric identifiers instead
// of by genomic/protein key.
//
// Grounded on original_source/src/allelesDatabase/IndexIdentifierCa.hpp,
// IndexIdentifierPa.hpp and IndexIdentifierUInt32.hpp: CA and PA ids are
// asserted unique across the whole registry (inserting a second variant
// under an already-assigned CA/PA id is a programming error, spec
// §4.9), while the general short-id index used for lookups during
// merges tolerates one id resolving to more than one variant key.
package idindex

import (
	"context"
	"fmt"

	"github.com/brlbcm/allele-registry/engine"
)

// Ref addresses one stored variant record: the engine key of the bucket
// holding it, its position within that bucket's entries, and which
// table (genomic or protein) the bucket lives in. Genomic and protein
// keys share one uint64 key space but are stored in two separate engine
// instances, so a bare key alone cannot say which table to resolve it
// against - IsGenomic carries that tag (§3.3/§4.9).
type Ref struct {
	Key       uint64
	Sub       uint16
	IsGenomic bool
}

// entry is the engine record for one short-id index key: the set of
// variant refs currently registered under that id.
type entry struct {
	refs []Ref
}

func (e entry) Len() int {
	n := uvarintLen(uint64(len(e.refs)))
	for _, r := range e.refs {
		n += uvarintLen(r.Key) + uvarintLen(uint64(r.Sub)) + 1
	}
	return n
}

func (e entry) Serialize(buf []byte) {
	n := putUvarint(buf, uint64(len(e.refs)))
	for _, r := range e.refs {
		n += putUvarint(buf[n:], r.Key)
		n += putUvarint(buf[n:], uint64(r.Sub))
		if r.IsGenomic {
			buf[n] = 1
		} else {
			buf[n] = 0
		}
		n++
	}
}

func decodeEntry(key uint64, buf []byte) (entry, error) {
	count, n, err := getUvarint(buf)
	if err != nil {
		return entry{}, err
	}
	off := n
	refs := make([]Ref, 0, count)
	for i := uint64(0); i < count; i++ {
		k, n, err := getUvarint(buf[off:])
		if err != nil {
			return entry{}, err
		}
		off += n

		sub, n, err := getUvarint(buf[off:])
		if err != nil {
			return entry{}, err
		}
		off += n

		if off >= len(buf) {
			return entry{}, fmt.Errorf("idindex: truncated ref tag")
		}
		isGenomic := buf[off] != 0
		off++

		refs = append(refs, Ref{Key: k, Sub: uint16(sub), IsGenomic: isGenomic})
	}
	return entry{refs: refs}, nil
}

func refEqual(a, b Ref) bool {
	return a.Key == b.Key && a.Sub == b.Sub && a.IsGenomic == b.IsGenomic
}

// Unique is a short-id index that enforces at most one variant ref per
// id, such as a CA or PA id.
type Unique struct {
	eng *engine.Engine[entry]
}

// OpenUnique opens (or creates) a uniqueness-enforcing index.
func OpenUnique(dir, name string) (*Unique, error) {
	eng, err := engine.Open(engine.Options{Dir: dir, Name: name, KeyBytes: 4}, decodeEntry)
	if err != nil {
		return nil, fmt.Errorf("idindex: open %s: %w", name, err)
	}
	return &Unique{eng: eng}, nil
}

// Close releases the underlying engine.
func (u *Unique) Close() error { return u.eng.Close() }

// Assign registers id -> ref. It is a no-op if id is already assigned
// to ref, and returns engine.ErrDuplicateUniqueID if id is already
// assigned to a different ref.
func (u *Unique) Assign(ctx context.Context, id uint32, ref Ref) error {
	e, found, err := u.eng.Get(ctx, uint64(id))
	if err != nil {
		return err
	}
	if found && len(e.refs) > 0 {
		if refEqual(e.refs[0], ref) {
			return nil
		}
		return engine.ErrDuplicateUniqueID
	}
	return u.eng.Put(ctx, uint64(id), entry{refs: []Ref{ref}})
}

// Lookup returns the variant ref assigned to id, if any.
func (u *Unique) Lookup(ctx context.Context, id uint32) (Ref, bool, error) {
	e, found, err := u.eng.Get(ctx, uint64(id))
	if err != nil || !found || len(e.refs) == 0 {
		return Ref{}, false, err
	}
	return e.refs[0], true, nil
}

// Release removes id's assignment entirely, regardless of which ref it
// pointed to.
func (u *Unique) Release(ctx context.Context, id uint32) error {
	_, err := u.eng.Delete(ctx, uint64(id))
	return err
}

// Rebuild replays entries into the index from scratch, used at startup
// to recover from a crash between a variant write and its index update
//. Conflicting duplicate assignments
// encountered during replay are reported via onConflict rather than
// aborting the whole rebuild.
func (u *Unique) Rebuild(ctx context.Context, entries func(yield func(id uint32, ref Ref) error) error, onConflict func(id uint32, ref Ref, err error)) error {
	return entries(func(id uint32, ref Ref) error {
		if err := u.Assign(ctx, id, ref); err != nil {
			if onConflict != nil {
				onConflict(id, ref, err)
				return nil
			}
			return err
		}
		return nil
	})
}

// Multi is a short-id index where one id may resolve to several variant
// refs.
type Multi struct {
	eng *engine.Engine[entry]
}

// OpenMulti opens (or creates) a multi-value index.
func OpenMulti(dir, name string) (*Multi, error) {
	eng, err := engine.Open(engine.Options{Dir: dir, Name: name, KeyBytes: 4}, decodeEntry)
	if err != nil {
		return nil, fmt.Errorf("idindex: open %s: %w", name, err)
	}
	return &Multi{eng: eng}, nil
}

// Close releases the underlying engine.
func (m *Multi) Close() error { return m.eng.Close() }

// Add registers ref under id, returning whether it was newly added (a
// no-op if already present).
func (m *Multi) Add(ctx context.Context, id uint32, ref Ref) (bool, error) {
	e, _, err := m.eng.Get(ctx, uint64(id))
	if err != nil {
		return false, err
	}
	for _, r := range e.refs {
		if refEqual(r, ref) {
			return false, nil
		}
	}
	e.refs = append(e.refs, ref)
	return true, m.eng.Put(ctx, uint64(id), e)
}

// Remove unregisters ref from id, returning whether it had been
// present. Once the last ref under id is removed, the entry itself is
// deleted from the underlying engine.
func (m *Multi) Remove(ctx context.Context, id uint32, ref Ref) (bool, error) {
	e, found, err := m.eng.Get(ctx, uint64(id))
	if err != nil || !found {
		return false, err
	}
	idx := -1
	for i, r := range e.refs {
		if refEqual(r, ref) {
			idx = i
			break
		}
	}
	if idx == -1 {
		return false, nil
	}
	e.refs = append(e.refs[:idx], e.refs[idx+1:]...)

	if len(e.refs) == 0 {
		_, err := m.eng.Delete(ctx, uint64(id))
		return true, err
	}
	return true, m.eng.Put(ctx, uint64(id), e)
}

// Lookup returns every variant ref currently registered under id.
func (m *Multi) Lookup(ctx context.Context, id uint32) ([]Ref, error) {
	e, _, err := m.eng.Get(ctx, uint64(id))
	if err != nil {
		return nil, err
	}
	return append([]Ref(nil), e.refs...), nil
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
			return 0, 0, fmt.Errorf("idindex: varint overflow")
		}
	}
	return 0, 0, fmt.Errorf("idindex: truncated varint")
}
