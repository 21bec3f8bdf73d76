// Package tables implements the genomic and protein variant tables: the
// position-keyed stores that hold every variant definition seen for a
// contig or protein, plus the identifiers currently attached to each.
//
// Grounded on original_source/src/allelesDatabase/TableGenomic.{hpp,cpp}
// and TableProtein.{hpp,cpp}: both expose the same four verbs over a
// definition - query (read-only), fetchAndAdd (get-or-create, merging
// identifiers), fetchAndDelete (remove identifiers, pruning the record
// once empty) and fetchAndFullDelete (unconditional removal) - plus a
// deleteIdentifiers verb addressed directly by ref for callers that
// already resolved one via an idindex lookup, and a ranged query verb
// (query(range, minChunk, visitor)) for position-ordered scans.
package tables

import (
	"bytes"
	"context"
	"sort"

	"github.com/brlbcm/allele-registry/engine"
	"github.com/brlbcm/allele-registry/seqintern"
	"github.com/brlbcm/allele-registry/taskmanager"
	"github.com/brlbcm/allele-registry/variant"
)

// Ref addresses one stored variant record: the engine key of the bucket
// holding it, plus its position within that bucket's entries. Distinct
// definitions that fold to the same engine key (§3.1's duplicate-key
// multiset) live side by side in one bucket and are told apart by Sub.
type Ref struct {
	Key uint64
	Sub uint16
}

// inlineInsertBudgetNucleotide caps how long an inserted nucleotide
// sequence may be before it is interned rather than stored inline
// (§4.7).
const inlineInsertBudgetNucleotide = 16

// maxVariationRegionBP bounds the deleted span of a single genomic
// modification (§4.6); wider spans are rejected outright, since a
// variation region this wide falls outside what interning is meant to
// absorb.
const maxVariationRegionBP = 10000

// guardRangeMarginBP widens a range query's underlying key scan below
// its requested lower bound, so a variant whose first modification
// starts before the window but extends into it via a long deletion is
// not missed by the key-only prefilter (§4.8).
const guardRangeMarginBP = 10000

// GenomicKey derives the engine key for a genomic variant definition
// from its contig and its first modification's position (§3.3). A true
// global linear-genome coordinate needs a reference-length table (to
// sum the lengths of every preceding contig), which is out of scope
// here (see DESIGN.md); folding the contig id into the key's high 32
// bits in place of that running offset keeps keys ordered contig-major
// then position-major, which is what every range query in this package
// relies on, without requiring that table.
func GenomicKey(def variant.GenomicVariantDefinition) uint64 {
	var pos uint32
	if len(def.Modifications) > 0 {
		pos = uint32(def.Modifications[0].Position)
	}
	return uint64(def.ContigID)<<32 | uint64(pos)
}

// GenomicTable is the engine-backed store of genomic variant records,
// keyed by GenomicKey.
type GenomicTable struct {
	eng *engine.Engine[variant.GenomicBucket]
	seq *seqintern.Table
}

// OpenGenomic opens (or creates) the genomic variant table under dir,
// using seq to intern and later resolve inserted sequences past
// inlineInsertBudgetNucleotide.
func OpenGenomic(dir, name string, seq *seqintern.Table) (*GenomicTable, error) {
	eng, err := engine.Open(engine.Options{Dir: dir, Name: name, KeyBytes: 8}, variant.DecodeGenomicBucket)
	if err != nil {
		return nil, err
	}
	return &GenomicTable{eng: eng, seq: seq}, nil
}

// Close releases the underlying engine.
func (t *GenomicTable) Close() error { return t.eng.Close() }

// Tasks returns the bounded worker pool backing this table's engine, for
// callers that want to fan out independent lookups across it.
func (t *GenomicTable) Tasks() *taskmanager.TaskManager { return t.eng.Tasks }

// Query returns the record for def, if one exists, without modifying
// anything.
func (t *GenomicTable) Query(ctx context.Context, def variant.GenomicVariantDefinition) (variant.GenomicVariantRecord, Ref, bool, error) {
	key := GenomicKey(def)
	bucket, found, err := t.eng.Get(ctx, key)
	if err != nil || !found {
		return variant.GenomicVariantRecord{}, Ref{}, false, err
	}
	for i, e := range bucket.Entries {
		if e.Definition.IsZero() {
			continue
		}
		rec, ok, err := t.hydrate(ctx, e)
		if err != nil {
			return variant.GenomicVariantRecord{}, Ref{}, false, err
		}
		if !ok || !rec.Definition.Equal(def) {
			continue
		}
		return rec, Ref{Key: key, Sub: uint16(i)}, true, nil
	}
	return variant.GenomicVariantRecord{}, Ref{}, false, nil
}

// GetByRef returns the record stored at an already-resolved ref, for
// callers (the registry façade) that reached it via an idindex lookup
// rather than by recomputing GenomicKey from a definition.
func (t *GenomicTable) GetByRef(ctx context.Context, ref Ref) (variant.GenomicVariantRecord, bool, error) {
	bucket, found, err := t.eng.Get(ctx, ref.Key)
	if err != nil || !found || int(ref.Sub) >= len(bucket.Entries) {
		return variant.GenomicVariantRecord{}, false, err
	}
	e := bucket.Entries[ref.Sub]
	if e.Definition.IsZero() {
		return variant.GenomicVariantRecord{}, false, nil
	}
	return t.hydrate(ctx, e)
}

// FetchAndAdd returns the record for def, creating it with ids if absent
// and otherwise merging ids into the existing record's identifier bag.
// It reports the record's ref, whether it was newly created, and which
// ids were newly attached (for the caller to register in the short-id
// index). def is rejected with engine.ErrOverlappingSimpleAlleles (I3)
// or engine.ErrSequenceTooLong (a variation region wider than
// maxVariationRegionBP) before anything is stored.
func (t *GenomicTable) FetchAndAdd(ctx context.Context, def variant.GenomicVariantDefinition, ids variant.Identifiers) (ref Ref, created bool, added variant.Identifiers, err error) {
	if err := def.Validate(); err != nil {
		return Ref{}, false, variant.Identifiers{}, err
	}
	if err := validateVariationRegion(def.Modifications); err != nil {
		return Ref{}, false, variant.Identifiers{}, err
	}

	mods, err := t.internLongSequences(ctx, def.Modifications)
	if err != nil {
		return Ref{}, false, variant.Identifiers{}, err
	}
	def.Modifications = mods

	key := GenomicKey(def)
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

	entry := variant.GenomicVariantRecord{Definition: def, Identifiers: ids.Clone()}
	sub := firstGenomicTombstone(bucket.Entries)
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
// slot once its identifier bag is empty. It reports whether a record
// was found at all.
func (t *GenomicTable) FetchAndDelete(ctx context.Context, def variant.GenomicVariantDefinition, ids variant.Identifiers) (found bool, err error) {
	key := GenomicKey(def)
	bucket, found, err := t.eng.Get(ctx, key)
	if err != nil || !found {
		return false, err
	}
	for i, e := range bucket.Entries {
		if e.Definition.IsZero() {
			continue
		}
		rec, ok, err := t.hydrate(ctx, e)
		if err != nil {
			return false, err
		}
		if !ok || !rec.Definition.Equal(def) {
			continue
		}
		return true, t.removeIdentifiersAt(ctx, key, bucket, i, ids)
	}
	return false, nil
}

// FetchAndFullDelete unconditionally tombstones the record for def
// regardless of its remaining identifiers, reporting whether one
// existed.
func (t *GenomicTable) FetchAndFullDelete(ctx context.Context, def variant.GenomicVariantDefinition) (bool, error) {
	key := GenomicKey(def)
	bucket, found, err := t.eng.Get(ctx, key)
	if err != nil || !found {
		return false, err
	}
	for i, e := range bucket.Entries {
		if e.Definition.IsZero() {
			continue
		}
		rec, ok, err := t.hydrate(ctx, e)
		if err != nil {
			return false, err
		}
		if !ok || !rec.Definition.Equal(def) {
			continue
		}
		bucket.Entries[i] = variant.GenomicVariantRecord{}
		if allGenomicTombstoned(bucket.Entries) {
			_, err := t.eng.Delete(ctx, key)
			return true, err
		}
		return true, t.eng.Put(ctx, key, bucket)
	}
	return false, nil
}

// DeleteIdentifiers removes ids from the record stored at ref directly,
// for callers that already resolved ref via an idindex lookup rather
// than recomputing it from the definition.
func (t *GenomicTable) DeleteIdentifiers(ctx context.Context, ref Ref, ids variant.Identifiers) (found bool, err error) {
	bucket, found, err := t.eng.Get(ctx, ref.Key)
	if err != nil || !found || int(ref.Sub) >= len(bucket.Entries) || bucket.Entries[ref.Sub].Definition.IsZero() {
		return false, err
	}
	return true, t.removeIdentifiersAt(ctx, ref.Key, bucket, int(ref.Sub), ids)
}

func (t *GenomicTable) removeIdentifiersAt(ctx context.Context, key uint64, bucket variant.GenomicBucket, idx int, ids variant.Identifiers) error {
	e := bucket.Entries[idx]
	e.Identifiers.Remove(ids)
	if e.Identifiers.Empty() {
		e = variant.GenomicVariantRecord{}
	}
	bucket.Entries[idx] = e
	if allGenomicTombstoned(bucket.Entries) {
		_, err := t.eng.Delete(ctx, key)
		return err
	}
	return t.eng.Put(ctx, key, bucket)
}

// RangeAscending visits every live record in ascending key order. A
// record whose interned sequence cannot be resolved is silently
// dropped (§4.7) rather than aborting the walk.
func (t *GenomicTable) RangeAscending(ctx context.Context, visit func(ref Ref, record variant.GenomicVariantRecord) (bool, error)) error {
	return t.eng.RangeAscending(ctx, func(key uint64, bucket variant.GenomicBucket) (bool, error) {
		for i, e := range bucket.Entries {
			if e.Definition.IsZero() {
				continue
			}
			rec, ok, err := t.hydrate(ctx, e)
			if err != nil {
				return false, err
			}
			if !ok {
				continue
			}
			cont, err := visit(Ref{Key: key, Sub: uint16(i)}, rec)
			if err != nil || !cont {
				return cont, err
			}
		}
		return true, nil
	})
}

// QueryRange scans records whose key (see GenomicKey) falls in
// [first, last], plus records keyed up to guardRangeMarginBP below first
// whose first modification extends past first; a record whose first
// modification ends at or before first is skipped. Records are delivered
// to visit in one chunk per batch of minChunkSize engine keys, each
// chunk sorted by full definition (§4.8).
func (t *GenomicTable) QueryRange(ctx context.Context, first, last uint64, minChunkSize int, visit func(chunk []variant.GenomicVariantRecord, isLast bool) (bool, error)) error {
	scanFirst := first
	if scanFirst > guardRangeMarginBP {
		scanFirst -= guardRangeMarginBP
	} else {
		scanFirst = 0
	}

	return t.eng.RangeBetween(ctx, scanFirst, last, minChunkSize, func(entries []engine.RangeEntry[variant.GenomicBucket], isLast bool) (bool, error) {
		var chunk []variant.GenomicVariantRecord
		for _, re := range entries {
			for _, e := range re.Record.Entries {
				if e.Definition.IsZero() {
					continue
				}
				if len(e.Definition.Modifications) > 0 {
					m := e.Definition.Modifications[0]
					end := uint64(e.Definition.ContigID)<<32 + m.Position + uint64(m.DeletedLength)
					if end <= first {
						continue
					}
				}
				rec, ok, err := t.hydrate(ctx, e)
				if err != nil {
					return false, err
				}
				if !ok {
					continue
				}
				chunk = append(chunk, rec)
			}
		}
		sort.Slice(chunk, func(i, j int) bool {
			return genomicDefinitionLess(chunk[i].Definition, chunk[j].Definition)
		})
		return visit(chunk, isLast)
	})
}

func validateVariationRegion(mods []variant.Modification) error {
	for _, m := range mods {
		if m.DeletedLength > maxVariationRegionBP {
			return engine.ErrSequenceTooLong
		}
	}
	return nil
}

func (t *GenomicTable) internLongSequences(ctx context.Context, mods []variant.Modification) ([]variant.Modification, error) {
	out := make([]variant.Modification, len(mods))
	copy(out, mods)
	for i, m := range out {
		if m.InsertedRef != nil || len(m.InsertedSeq) <= inlineInsertBudgetNucleotide {
			continue
		}
		id, err := t.seq.Intern(ctx, m.InsertedSeq)
		if err != nil {
			return nil, err
		}
		out[i].InsertedRef = &variant.SequenceRef{Bucket: id.Bucket, Sub: id.Sub}
		out[i].InsertedSeq = nil
	}
	return out, nil
}

// hydrate resolves any interned sequences in rec back to literal bytes.
// ok is false when an interned sequence could not be found, in which
// case the record must be dropped rather than returned (§4.7).
func (t *GenomicTable) hydrate(ctx context.Context, rec variant.GenomicVariantRecord) (out variant.GenomicVariantRecord, ok bool, err error) {
	mods := make([]variant.Modification, len(rec.Definition.Modifications))
	copy(mods, rec.Definition.Modifications)
	for i, m := range mods {
		if m.InsertedRef == nil {
			continue
		}
		seq, found, err := t.seq.Lookup(ctx, seqintern.ID{Bucket: m.InsertedRef.Bucket, Sub: m.InsertedRef.Sub})
		if err != nil {
			return variant.GenomicVariantRecord{}, false, err
		}
		if !found {
			return variant.GenomicVariantRecord{}, false, nil
		}
		mods[i].InsertedSeq = seq
		mods[i].InsertedRef = nil
	}
	rec.Definition.Modifications = mods
	return rec, true, nil
}

func firstGenomicTombstone(entries []variant.GenomicVariantRecord) int {
	for i, e := range entries {
		if e.Definition.IsZero() {
			return i
		}
	}
	return -1
}

func allGenomicTombstoned(entries []variant.GenomicVariantRecord) bool {
	for _, e := range entries {
		if !e.Definition.IsZero() {
			return false
		}
	}
	return true
}

func genomicDefinitionLess(a, b variant.GenomicVariantDefinition) bool {
	if a.ContigID != b.ContigID {
		return a.ContigID < b.ContigID
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
