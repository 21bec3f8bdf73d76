package tables

import (
	"context"
	"testing"

	"github.com/brlbcm/allele-registry/variant"
	"github.com/stretchr/testify/require"
)

func sampleProteinDef(proteinID uint32, pos uint64) variant.ProteinVariantDefinition {
	return variant.ProteinVariantDefinition{
		ProteinID: proteinID,
		Modifications: []variant.Modification{
			{Position: pos, DeletedLength: 1, InsertedSeq: []byte("M")},
		},
	}
}

func TestProteinFetchAndAddCreatesThenMerges(t *testing.T) {
	table, err := OpenProtein(t.TempDir(), "protein")
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, table.Close()) })

	ctx := context.Background()
	def := sampleProteinDef(1, 42)

	ref1, created, added, err := table.FetchAndAdd(ctx, def, variant.Identifiers{ShortIDs: []variant.ShortID{1}})
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, []variant.ShortID{1}, added.ShortIDs)

	ref2, created, added, err := table.FetchAndAdd(ctx, def, variant.Identifiers{ShortIDs: []variant.ShortID{1, 2}})
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, []variant.ShortID{2}, added.ShortIDs)
	require.Equal(t, ref1, ref2)
}

func TestProteinDeleteIdentifiersByRefPrunesEmptyRecord(t *testing.T) {
	table, err := OpenProtein(t.TempDir(), "protein")
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, table.Close()) })

	ctx := context.Background()
	def := sampleProteinDef(2, 7)

	ref, _, _, err := table.FetchAndAdd(ctx, def, variant.Identifiers{ShortIDs: []variant.ShortID{5}})
	require.NoError(t, err)

	found, err := table.DeleteIdentifiers(ctx, ref, variant.Identifiers{ShortIDs: []variant.ShortID{5}})
	require.NoError(t, err)
	require.True(t, found)

	_, found, err = table.GetByRef(ctx, ref)
	require.NoError(t, err)
	require.False(t, found, "the record is pruned once its identifier bag is empty")
}

func TestProteinAndGenomicKeysDoNotCollideAcrossTables(t *testing.T) {
	dir := t.TempDir()
	genomic := openTestGenomic(t)

	protein, err := OpenProtein(dir, "protein")
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, protein.Close()) })

	ctx := context.Background()
	gDef := sampleDef(1, 100)
	pDef := sampleProteinDef(1, 100)

	gRef, _, _, err := genomic.FetchAndAdd(ctx, gDef, variant.Identifiers{ShortIDs: []variant.ShortID{1}})
	require.NoError(t, err)
	pRef, _, _, err := protein.FetchAndAdd(ctx, pDef, variant.Identifiers{ShortIDs: []variant.ShortID{2}})
	require.NoError(t, err)

	gRec, found, err := genomic.GetByRef(ctx, gRef)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, gDef, gRec.Definition)

	pRec, found, err := protein.GetByRef(ctx, pRef)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, pDef, pRec.Definition)
}

func TestProteinFetchAndAddRejectsOverlongInsertion(t *testing.T) {
	table, err := OpenProtein(t.TempDir(), "protein")
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, table.Close()) })

	def := variant.ProteinVariantDefinition{
		ProteinID: 3,
		Modifications: []variant.Modification{
			{Position: 1, DeletedLength: 0, InsertedSeq: []byte("MVLSPADKTN")},
		},
	}

	_, _, _, err = table.FetchAndAdd(context.Background(), def, variant.Identifiers{})
	require.Error(t, err)
}
