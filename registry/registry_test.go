package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/brlbcm/allele-registry/engine"
	"github.com/brlbcm/allele-registry/variant"
	"github.com/stretchr/testify/require"
)

func sampleDef(contig uint32, pos uint64) variant.GenomicVariantDefinition {
	return variant.GenomicVariantDefinition{
		ContigID: contig,
		Modifications: []variant.Modification{
			{Position: pos, DeletedLength: 1, InsertedSeq: []byte("T")},
		},
	}
}

func sampleProteinDef(proteinID uint32, pos uint64) variant.ProteinVariantDefinition {
	return variant.ProteinVariantDefinition{
		ProteinID: proteinID,
		Modifications: []variant.Modification{
			{Position: pos, DeletedLength: 1, InsertedSeq: []byte("M")},
		},
	}
}

func TestFetchByDefinitionAndAddWiresCaIndex(t *testing.T) {
	reg, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, reg.Close()) })

	ctx := context.Background()
	def := sampleDef(1, 100)

	ref, created, err := reg.FetchByDefinitionAndAdd(ctx, def, 10, []variant.ShortID{30})
	require.NoError(t, err)
	require.True(t, created)

	byCA, found, err := reg.FetchByCA(ctx, 10)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, def, byCA.Definition)

	matches, err := reg.QueryByShortID(ctx, 30)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.True(t, matches[0].IsGenomic)
	require.Equal(t, def, matches[0].Genomic.Definition)

	_, createdAgain, err := reg.FetchByDefinitionAndAdd(ctx, def, 10, nil)
	require.NoError(t, err)
	require.False(t, createdAgain)

	rec, found, err := reg.FetchByDefinition(ctx, def)
	require.NoError(t, err)
	require.True(t, found)
	_ = ref
	require.ElementsMatch(t, []variant.ShortID{10, 30}, rec.Identifiers.ShortIDs)
}

func TestFetchByProteinDefinitionAndAddWiresPaIndex(t *testing.T) {
	reg, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, reg.Close()) })

	ctx := context.Background()
	def := sampleProteinDef(1, 50)

	_, created, err := reg.FetchByProteinDefinitionAndAdd(ctx, def, 20, []variant.ShortID{30})
	require.NoError(t, err)
	require.True(t, created)

	byPA, found, err := reg.FetchByPA(ctx, 20)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, def, byPA.Definition)

	matches, err := reg.QueryByShortID(ctx, 30)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.False(t, matches[0].IsGenomic)
	require.Equal(t, def, matches[0].Protein.Definition)

	rec, found, err := reg.FetchByProteinDefinition(ctx, def)
	require.NoError(t, err)
	require.True(t, found)
	require.ElementsMatch(t, []variant.ShortID{20, 30}, rec.Identifiers.ShortIDs)
}

func TestQueryByShortIDResolvesAllAttachedVariants(t *testing.T) {
	reg, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, reg.Close()) })

	ctx := context.Background()
	const shared = variant.ShortID(42)

	var defs []variant.GenomicVariantDefinition
	for i := 0; i < 20; i++ {
		def := sampleDef(uint32(i), uint64(i))
		defs = append(defs, def)
		_, _, err := reg.FetchByDefinitionAndAdd(ctx, def, 0, []variant.ShortID{shared})
		require.NoError(t, err)
	}

	matches, err := reg.QueryByShortID(ctx, uint32(shared))
	require.NoError(t, err)
	require.Len(t, matches, len(defs))

	gotDefs := make([]variant.GenomicVariantDefinition, len(matches))
	for i, m := range matches {
		require.True(t, m.IsGenomic)
		gotDefs[i] = m.Genomic.Definition
	}
	require.ElementsMatch(t, defs, gotDefs)
}

func TestQueryByShortIDResolvesMixedGenomicAndProtein(t *testing.T) {
	reg, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, reg.Close()) })

	ctx := context.Background()
	const shared = variant.ShortID(7)

	gDef := sampleDef(1, 10)
	pDef := sampleProteinDef(1, 10)

	_, _, err = reg.FetchByDefinitionAndAdd(ctx, gDef, 0, []variant.ShortID{shared})
	require.NoError(t, err)
	_, _, err = reg.FetchByProteinDefinitionAndAdd(ctx, pDef, 0, []variant.ShortID{shared})
	require.NoError(t, err)

	matches, err := reg.QueryByShortID(ctx, uint32(shared))
	require.NoError(t, err)
	require.Len(t, matches, 2)

	var sawGenomic, sawProtein bool
	for _, m := range matches {
		if m.IsGenomic {
			sawGenomic = true
			require.Equal(t, gDef, m.Genomic.Definition)
		} else {
			sawProtein = true
			require.Equal(t, pDef, m.Protein.Definition)
		}
	}
	require.True(t, sawGenomic)
	require.True(t, sawProtein)
}

func TestQueryByShortIDUnknownIDReturnsEmpty(t *testing.T) {
	reg, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, reg.Close()) })

	matches, err := reg.QueryByShortID(context.Background(), 999)
	require.NoError(t, err)
	require.Empty(t, matches)
}

func TestFetchByDefinitionAndAddRejectsConflictingCaID(t *testing.T) {
	reg, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, reg.Close()) })

	ctx := context.Background()
	_, _, err = reg.FetchByDefinitionAndAdd(ctx, sampleDef(1, 100), 99, nil)
	require.NoError(t, err)

	_, _, err = reg.FetchByDefinitionAndAdd(ctx, sampleDef(2, 200), 99, nil)
	require.True(t, errors.Is(err, engine.ErrDuplicateUniqueID))
}

func TestFetchByProteinDefinitionAndAddRejectsConflictingPaID(t *testing.T) {
	reg, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, reg.Close()) })

	ctx := context.Background()
	_, _, err = reg.FetchByProteinDefinitionAndAdd(ctx, sampleProteinDef(1, 10), 11, nil)
	require.NoError(t, err)

	_, _, err = reg.FetchByProteinDefinitionAndAdd(ctx, sampleProteinDef(2, 20), 11, nil)
	require.True(t, errors.Is(err, engine.ErrDuplicateUniqueID))
}
