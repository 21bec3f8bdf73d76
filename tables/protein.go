package tables

import (
	"bytes"
	"context"
	"sort"

	"github.com/brlbcm/allele-registry/engine"
	"github.com/brlbcm/allele-registry/taskmanager"
	"github.com/brlbcm/allele-registry/variant"
)

// maxProteinInsertAA bounds an inserted amino-acid sequence (§4.6):
// unlike a genomic nucleotide insertion, a protein insertion past this
// length is rejected outright rather than interned.
const maxProteinInsertAA = 7

// ProteinKey derives the exact engine key for a protein variant
// definition: the protein accession id in the high 48 bits and the
// first modification's position (within-protein, so 16 bits suffices)
// in the low 16 (§3.3).
func ProteinKey(def variant.ProteinVariantDefinition) uint64 {
	var pos uint16
	if len(def.Modifications) > 0 {
		pos = uint16(def.Modifications[0].Position)
	}
	return uint64(def.ProteinID)<<16 | uint64(pos)
}

// ProteinTable is the engine-backed store of protein variant records,
// keyed by ProteinKey.
type ProteinTable struct {
	eng *engine.Engine[variant.ProteinBucket]
}

// OpenProtein opens (or creates) the protein variant table under dir.
func OpenProtein(dir, name string) (*ProteinTable, error) {
	eng, err := engine.Open(engine.Options{Dir: dir, Name: name, KeyBytes: 8}, variant.DecodeProteinBucket)
	if err != nil {
		return nil, err
	}
	return &ProteinTable{eng: eng}, nil
}

// Close releases the underlying engine.
func (t *ProteinTable) Close() error { return t.eng.Close() }

// Tasks returns the bounded worker pool backing this table's engine, for
// callers that want to fan out independent lookups across it.
func (t *ProteinTable) Tasks() *taskmanager.TaskManager { return t.eng.Tasks }

// Query returns the record for def, if one exists.
func (t *ProteinTable) Query(ctx context.Context, def variant.ProteinVariantDefinition) (variant.ProteinVariantRecord, Ref, bool, error) {
	key := ProteinKey(def)
	bucket, found, err := t.eng.Get(ctx, key)
	if err != nil || !found {
		return variant.ProteinVariantRecord{}, Ref{}, false, err
	}
	for i, e := range bucket.Entries {
		if e.Definition.IsZero() || !e.Definition.Equal(def) {
			continue
		}
		return e, Ref{Key: key, Sub: uint16(i)}, true, nil
	}
	return variant.ProteinVariantRecord{}, Ref{}, false, nil
}

// GetByRef returns the record stored at an already-resolved ref.
func (t *ProteinTable) GetByRef(ctx context.Context, ref Ref) (variant.ProteinVariantRecord, bool, error) {
	bucket, found, err := t.eng.Get(ctx, ref.Key)
	if err != nil || !found || int(ref.Sub) >= len(bucket.Entries) {
		return variant.ProteinVariantRecord{}, false, err
	}
	e := bucket.Entries[ref.Sub]
	if e.Definition.IsZero() {
		return variant.ProteinVariantRecord{}, false, nil
	}
	return e, true, nil
}

// FetchAndAdd returns the record for def, creating it with ids if absent
// and otherwise merging ids into the existing record's identifier bag.
// def is rejected with engine.ErrOverlappingSimpleAlleles (I3) or
// engine.ErrSequenceTooLong (an inserted sequence longer than
// maxProteinInsertAA) before anything is stored.
func (t *ProteinTable) FetchAndAdd(ctx context.Context, def variant.ProteinVariantDefinition, ids variant.Identifiers) (ref Ref, created bool, added variant.Identifiers, err error) {
	if err := def.Validate(); err != nil {
		return Ref{}, false, variant.Identifiers{}, err
	}
	if err := validateProteinInsertLengths(def.Modifications); err != nil {
		return Ref{}, false, variant.Identifiers{}, err
	}

	key := ProteinKey(def)
	bucket, _, err := t.eng.Get(ctx, key)
	if err != nil {
		return Ref{}, false, variant.Identifiers{}, err
	}

	for i, e := range bucket.Entries {
		if e.Definition.IsZero() || !e.Definition.Equal(def) {
			continue
		}
		added = e.Identifiers.Add(ids)
		bucket.Entries[i] = e
		if err := t.eng.Put(ctx, key, bucket); err != nil {
			return Ref{}, false, variant.Identifiers{}, err
		}
		return Ref{Key: key, Sub: uint16(i)}, false, added, nil
	}

	entry := variant.ProteinVariantRecord{Definition: def, Identifiers: ids.Clone()}
	sub := firstProteinTombstone(bucket.Entries)
	if sub == -1 {
		sub = len(bucket.Entries)
		bucket.Entries = append(bucket.Entries, entry)
	} else {
		bucket.Entries[sub] = entry
	}
	if err := t.eng.Put(ctx, key, bucket); err != nil {
		return Ref{}, false, variant.Identifiers{}, err
	}
	return Ref{Key: key, Sub: uint16(sub)}, true, ids.Clone(), nil
}

// FetchAndDelete removes ids from the record for def, tombstoning the
// slot once its identifier bag is empty.
func (t *ProteinTable) FetchAndDelete(ctx context.Context, def variant.ProteinVariantDefinition, ids variant.Identifiers) (found bool, err error) {
	key := ProteinKey(def)
	bucket, found, err := t.eng.Get(ctx, key)
	if err != nil || !found {
		return false, err
	}
	for i, e := range bucket.Entries {
		if e.Definition.IsZero() || !e.Definition.Equal(def) {
			continue
		}
		return true, t.removeIdentifiersAt(ctx, key, bucket, i, ids)
	}
	return false, nil
}

// FetchAndFullDelete unconditionally tombstones the record for def.
func (t *ProteinTable) FetchAndFullDelete(ctx context.Context, def variant.ProteinVariantDefinition) (bool, error) {
	key := ProteinKey(def)
	bucket, found, err := t.eng.Get(ctx, key)
	if err != nil || !found {
		return false, err
	}
	for i, e := range bucket.Entries {
		if e.Definition.IsZero() || !e.Definition.Equal(def) {
			continue
		}
		bucket.Entries[i] = variant.ProteinVariantRecord{}
		if allProteinTombstoned(bucket.Entries) {
			_, err := t.eng.Delete(ctx, key)
			return true, err
		}
		return true, t.eng.Put(ctx, key, bucket)
	}
	return false, nil
}

// DeleteIdentifiers removes ids from the record stored at ref directly.
func (t *ProteinTable) DeleteIdentifiers(ctx context.Context, ref Ref, ids variant.Identifiers) (found bool, err error) {
	bucket, found, err := t.eng.Get(ctx, ref.Key)
	if err != nil || !found || int(ref.Sub) >= len(bucket.Entries) || bucket.Entries[ref.Sub].Definition.IsZero() {
		return false, err
	}
	return true, t.removeIdentifiersAt(ctx, ref.Key, bucket, int(ref.Sub), ids)
}

func (t *ProteinTable) removeIdentifiersAt(ctx context.Context, key uint64, bucket variant.ProteinBucket, idx int, ids variant.Identifiers) error {
	e := bucket.Entries[idx]
	e.Identifiers.Remove(ids)
	if e.Identifiers.Empty() {
		e = variant.ProteinVariantRecord{}
	}
	bucket.Entries[idx] = e
	if allProteinTombstoned(bucket.Entries) {
		_, err := t.eng.Delete(ctx, key)
		return err
	}
	return t.eng.Put(ctx, key, bucket)
}

// RangeAscending visits every live record in ascending key order.
func (t *ProteinTable) RangeAscending(ctx context.Context, visit func(ref Ref, record variant.ProteinVariantRecord) (bool, error)) error {
	return t.eng.RangeAscending(ctx, func(key uint64, bucket variant.ProteinBucket) (bool, error) {
		for i, e := range bucket.Entries {
			if e.Definition.IsZero() {
				continue
			}
			cont, err := visit(Ref{Key: key, Sub: uint16(i)}, e)
			if err != nil || !cont {
				return cont, err
			}
		}
		return true, nil
	})
}

// QueryRange scans records whose key (see ProteinKey) falls in
// [first, last], plus records keyed up to guardRangeMarginBP below first
// whose first modification extends past first; a record whose first
// modification ends at or before first is skipped. Records are delivered
// to visit in one chunk per batch of minChunkSize engine keys, each
// chunk sorted by full definition (§4.8).
func (t *ProteinTable) QueryRange(ctx context.Context, first, last uint64, minChunkSize int, visit func(chunk []variant.ProteinVariantRecord, isLast bool) (bool, error)) error {
	scanFirst := first
	if scanFirst > guardRangeMarginBP {
		scanFirst -= guardRangeMarginBP
	} else {
		scanFirst = 0
	}

	return t.eng.RangeBetween(ctx, scanFirst, last, minChunkSize, func(entries []engine.RangeEntry[variant.ProteinBucket], isLast bool) (bool, error) {
		var chunk []variant.ProteinVariantRecord
		for _, re := range entries {
			for _, e := range re.Record.Entries {
				if e.Definition.IsZero() {
					continue
				}
				if len(e.Definition.Modifications) > 0 {
					m := e.Definition.Modifications[0]
					end := uint64(e.Definition.ProteinID)<<16 + m.Position + uint64(m.DeletedLength)
					if end <= first {
						continue
					}
				}
				chunk = append(chunk, e)
			}
		}
		sort.Slice(chunk, func(i, j int) bool {
			return proteinDefinitionLess(chunk[i].Definition, chunk[j].Definition)
		})
		return visit(chunk, isLast)
	})
}

func validateProteinInsertLengths(mods []variant.Modification) error {
	for _, m := range mods {
		if len(m.InsertedSeq) > maxProteinInsertAA {
			return engine.ErrSequenceTooLong
		}
	}
	return nil
}

func firstProteinTombstone(entries []variant.ProteinVariantRecord) int {
	for i, e := range entries {
		if e.Definition.IsZero() {
			return i
		}
	}
	return -1
}

func allProteinTombstoned(entries []variant.ProteinVariantRecord) bool {
	for _, e := range entries {
		if !e.Definition.IsZero() {
			return false
		}
	}
	return true
}

func proteinDefinitionLess(a, b variant.ProteinVariantDefinition) bool {
	if a.ProteinID != b.ProteinID {
		return a.ProteinID < b.ProteinID
	}
	n := len(a.Modifications)
	if len(b.Modifications) < n {
		n = len(b.Modifications)
	}
	for i := 0; i < n; i++ {
		if a.Modifications[i].Position != b.Modifications[i].Position {
			return a.Modifications[i].Position < b.Modifications[i].Position
		}
		if a.Modifications[i].DeletedLength != b.Modifications[i].DeletedLength {
			return a.Modifications[i].DeletedLength < b.Modifications[i].DeletedLength
		}
		if c := bytes.Compare(a.Modifications[i].InsertedSeq, b.Modifications[i].InsertedSeq); c != 0 {
			return c < 0
		}
	}
	return len(a.Modifications) < len(b.Modifications)
}
