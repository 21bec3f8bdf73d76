package registry

import (
	"context"

	"github.com/brlbcm/allele-registry/idindex"
	"github.com/brlbcm/allele-registry/tables"
	"github.com/brlbcm/allele-registry/variant"
)

// RebuildShortIDIndex replays every identifier found in the genomic and
// protein tables into the short-id index, recovering entries lost when
// a table write landed durably but a crash struck before the matching
// index update. It is additive only:
// stale entries left behind by a record that was since fully deleted
// are not pruned, since nothing in the surviving tables says which
// entries used to point at it (see DESIGN.md).
//
// CA/PA uniqueness indexes are not replayed here: nothing in a stored
// record distinguishes "this short id is the CA id" from "this short
// id is an incidental extra one", so only the general multi-value
// index can be rebuilt from table content alone.
func (r *Registry) RebuildShortIDIndex(ctx context.Context) error {
	if err := r.Genomic.RangeAscending(ctx, func(ref tables.Ref, record variant.GenomicVariantRecord) (bool, error) {
		return true, r.addAllShortIDs(ctx, record.Identifiers, genomicRef(ref))
	}); err != nil {
		return err
	}

	return r.Protein.RangeAscending(ctx, func(ref tables.Ref, record variant.ProteinVariantRecord) (bool, error) {
		return true, r.addAllShortIDs(ctx, record.Identifiers, proteinRef(ref))
	})
}

func (r *Registry) addAllShortIDs(ctx context.Context, ids variant.Identifiers, ref idindex.Ref) error {
	for _, id := range ids.ShortIDs {
		if _, err := r.ShortIDIndex.Add(ctx, uint32(id), ref); err != nil {
			return err
		}
	}
	return nil
}
