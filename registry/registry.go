// Package registry implements the AlleleRegistry façade: the public
// surface that ties the genomic/protein variant tables, the CA/PA/short
// id indexes and the sequence interning table together into the
// batch-oriented API the rest of the system calls.
//
// Grounded on original_source/src/allelesDatabase/allelesDatabase.cpp
// and src/apiDb/db.hpp: both route every write through fetch-and-add or
// fetch-and-delete against a definition, then reconcile the CA/PA and
// short-id indexes from whatever identifiers the table reports as
// newly attached or removed, rather than letting callers touch the
// indexes directly.
package registry

import (
	"context"
	"fmt"

	"github.com/brlbcm/allele-registry/idindex"
	"github.com/brlbcm/allele-registry/seqintern"
	"github.com/brlbcm/allele-registry/tables"
	"github.com/brlbcm/allele-registry/taskmanager"
	"github.com/brlbcm/allele-registry/variant"
)

// Registry is the assembled allele registry: two variant tables, their
// CA/PA uniqueness indexes, a general short-id index, and the sequence
// interning table the genomic table references.
type Registry struct {
	Genomic *tables.GenomicTable
	Protein *tables.ProteinTable

	// CAIndex resolves a canonical allele id to a genomic variant; PAIndex
	// resolves a protein allele id to a protein variant (§4.9).
	CAIndex      *idindex.Unique
	PAIndex      *idindex.Unique
	ShortIDIndex *idindex.Multi

	Sequences *seqintern.Table
}

// Open opens (or creates) every underlying store rooted at dir.
func Open(dir string) (*Registry, error) {
	sequences, err := seqintern.Open(dir, "sequences")
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	genomic, err := tables.OpenGenomic(dir, "genomic", sequences)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	protein, err := tables.OpenProtein(dir, "protein")
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	ca, err := idindex.OpenUnique(dir, "ca")
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	pa, err := idindex.OpenUnique(dir, "pa")
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	shortIDs, err := idindex.OpenMulti(dir, "shortids")
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}

	return &Registry{
		Genomic:      genomic,
		Protein:      protein,
		CAIndex:      ca,
		PAIndex:      pa,
		ShortIDIndex: shortIDs,
		Sequences:    sequences,
	}, nil
}

// Close releases every underlying store.
func (r *Registry) Close() error {
	for _, c := range []func() error{
		r.Genomic.Close, r.Protein.Close, r.CAIndex.Close, r.PAIndex.Close, r.ShortIDIndex.Close, r.Sequences.Close,
	} {
		if err := c(); err != nil {
			return err
		}
	}
	return nil
}

func genomicRef(ref tables.Ref) idindex.Ref { return idindex.Ref{Key: ref.Key, Sub: ref.Sub, IsGenomic: true} }
func proteinRef(ref tables.Ref) idindex.Ref { return idindex.Ref{Key: ref.Key, Sub: ref.Sub, IsGenomic: false} }

// FetchByDefinition looks up a genomic variant by its definition alone,
// without creating or modifying anything.
func (r *Registry) FetchByDefinition(ctx context.Context, def variant.GenomicVariantDefinition) (variant.GenomicVariantRecord, bool, error) {
	rec, _, found, err := r.Genomic.Query(ctx, def)
	return rec, found, err
}

// FetchByProteinDefinition looks up a protein variant by its definition
// alone, without creating or modifying anything.
func (r *Registry) FetchByProteinDefinition(ctx context.Context, def variant.ProteinVariantDefinition) (variant.ProteinVariantRecord, bool, error) {
	rec, _, found, err := r.Protein.Query(ctx, def)
	return rec, found, err
}

// FetchByDefinitionAndAdd gets-or-creates the genomic variant for def
// and attaches caID (optional; pass 0 to omit) plus any extra short
// ids, reconciling the CA and short-id indexes afterward. caID is
// rejected with idindex's duplicate-id error if already bound to a
// different variant.
func (r *Registry) FetchByDefinitionAndAdd(ctx context.Context, def variant.GenomicVariantDefinition, caID uint32, extraShortIDs []variant.ShortID) (ref tables.Ref, created bool, err error) {
	ids := variant.Identifiers{}
	if caID != 0 {
		ids.AddShortID(variant.ShortID(caID))
	}
	for _, id := range extraShortIDs {
		ids.AddShortID(id)
	}

	ref, created, added, err := r.Genomic.FetchAndAdd(ctx, def, ids)
	if err != nil {
		return tables.Ref{}, false, err
	}

	if caID != 0 {
		if err := r.CAIndex.Assign(ctx, caID, genomicRef(ref)); err != nil {
			return ref, created, err
		}
	}
	for _, id := range added.ShortIDs {
		if uint32(id) == caID {
			continue
		}
		if _, err := r.ShortIDIndex.Add(ctx, uint32(id), genomicRef(ref)); err != nil {
			return ref, created, err
		}
	}

	return ref, created, nil
}

// FetchByProteinDefinitionAndAdd gets-or-creates the protein variant for
// def and attaches paID (optional; pass 0 to omit) plus any extra short
// ids, reconciling the PA and short-id indexes afterward. paID is
// rejected with idindex's duplicate-id error if already bound to a
// different variant.
func (r *Registry) FetchByProteinDefinitionAndAdd(ctx context.Context, def variant.ProteinVariantDefinition, paID uint32, extraShortIDs []variant.ShortID) (ref tables.Ref, created bool, err error) {
	ids := variant.Identifiers{}
	if paID != 0 {
		ids.AddShortID(variant.ShortID(paID))
	}
	for _, id := range extraShortIDs {
		ids.AddShortID(id)
	}

	ref, created, added, err := r.Protein.FetchAndAdd(ctx, def, ids)
	if err != nil {
		return tables.Ref{}, false, err
	}

	if paID != 0 {
		if err := r.PAIndex.Assign(ctx, paID, proteinRef(ref)); err != nil {
			return ref, created, err
		}
	}
	for _, id := range added.ShortIDs {
		if uint32(id) == paID {
			continue
		}
		if _, err := r.ShortIDIndex.Add(ctx, uint32(id), proteinRef(ref)); err != nil {
			return ref, created, err
		}
	}

	return ref, created, nil
}

// FetchByCA resolves a canonical allele id straight to its genomic
// variant record via the CA uniqueness index.
func (r *Registry) FetchByCA(ctx context.Context, caID uint32) (variant.GenomicVariantRecord, bool, error) {
	ref, found, err := r.CAIndex.Lookup(ctx, caID)
	if err != nil || !found {
		return variant.GenomicVariantRecord{}, false, err
	}
	return r.Genomic.GetByRef(ctx, tables.Ref{Key: ref.Key, Sub: ref.Sub})
}

// FetchByPA resolves a protein allele id straight to its protein variant
// record via the PA uniqueness index.
func (r *Registry) FetchByPA(ctx context.Context, paID uint32) (variant.ProteinVariantRecord, bool, error) {
	ref, found, err := r.PAIndex.Lookup(ctx, paID)
	if err != nil || !found {
		return variant.ProteinVariantRecord{}, false, err
	}
	return r.Protein.GetByRef(ctx, tables.Ref{Key: ref.Key, Sub: ref.Sub})
}

// ShortIDMatch is one variant resolved by QueryByShortID: exactly one of
// Genomic or Protein is populated, selected by IsGenomic (§3.3/§4.9).
type ShortIDMatch struct {
	IsGenomic bool
	Genomic   variant.GenomicVariantRecord
	Protein   variant.ProteinVariantRecord
}

// QueryByShortID resolves every variant - genomic or protein - currently
// registered under a general (non-CA/PA) short id. The per-ref lookups
// are fanned out across the genomic table's TaskManager so a short id
// attached to many variants does not resolve them one page fetch at a
// time.
func (r *Registry) QueryByShortID(ctx context.Context, id uint32) ([]ShortIDMatch, error) {
	refs, err := r.ShortIDIndex.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}

	matches := make([]ShortIDMatch, len(refs))
	found := make([]bool, len(refs))

	tasks := r.Genomic.Tasks()
	taskCtx := ctx
	var taskID taskmanager.TaskID
	for i, ref := range refs {
		i, ref := i, ref
		var err error
		taskCtx, err = tasks.AddTask(taskCtx, func(ctx context.Context) error {
			tref := tables.Ref{Key: ref.Key, Sub: ref.Sub}
			if ref.IsGenomic {
				rec, ok, err := r.Genomic.GetByRef(ctx, tref)
				if err != nil {
					return err
				}
				matches[i] = ShortIDMatch{IsGenomic: true, Genomic: rec}
				found[i] = ok
				return nil
			}
			rec, ok, err := r.Protein.GetByRef(ctx, tref)
			if err != nil {
				return err
			}
			matches[i] = ShortIDMatch{IsGenomic: false, Protein: rec}
			found[i] = ok
			return nil
		})
		if err != nil {
			return nil, err
		}
		if tc, ok := taskmanager.IDFromContext(taskCtx); ok {
			taskID = tc
		}
	}
	if err := tasks.JoinTask(taskCtx, taskID); err != nil {
		return nil, err
	}

	out := make([]ShortIDMatch, 0, len(refs))
	for i, ok := range found {
		if ok {
			out = append(out, matches[i])
		}
	}
	return out, nil
}

// QueryByRange scans genomic variants whose key (tables.GenomicKey)
// falls in [first, last] or whose first modification extends into it,
// delivering them to visit in chunks as tables.GenomicTable.QueryRange
// describes (§4.8).
func (r *Registry) QueryByRange(ctx context.Context, first, last uint64, minChunkSize int, visit func(chunk []variant.GenomicVariantRecord, isLast bool) (bool, error)) error {
	return r.Genomic.QueryRange(ctx, first, last, minChunkSize, visit)
}

// QueryProteinByRange is the protein analogue of QueryByRange.
func (r *Registry) QueryProteinByRange(ctx context.Context, first, last uint64, minChunkSize int, visit func(chunk []variant.ProteinVariantRecord, isLast bool) (bool, error)) error {
	return r.Protein.QueryRange(ctx, first, last, minChunkSize, visit)
}
