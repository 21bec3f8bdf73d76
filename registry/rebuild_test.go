package registry

import (
	"context"
	"testing"

	"github.com/brlbcm/allele-registry/variant"
	"github.com/stretchr/testify/require"
)

func TestRebuildShortIDIndexRecoversLostEntry(t *testing.T) {
	reg, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, reg.Close()) })

	ctx := context.Background()
	def := sampleDef(7, 700)

	ref, _, err := reg.FetchByDefinitionAndAdd(ctx, def, 0, []variant.ShortID{55})
	require.NoError(t, err)

	// Simulate a crash between the table write and the index write by
	// removing the entry the initial FetchByDefinitionAndAdd created.
	_, err = reg.ShortIDIndex.Remove(ctx, 55, genomicRef(ref))
	require.NoError(t, err)

	matches, err := reg.QueryByShortID(ctx, 55)
	require.NoError(t, err)
	require.Empty(t, matches, "index entry is missing until rebuilt")

	require.NoError(t, reg.RebuildShortIDIndex(ctx))

	matches, err = reg.QueryByShortID(ctx, 55)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.True(t, matches[0].IsGenomic)
	require.Equal(t, def, matches[0].Genomic.Definition)
}

func TestRebuildShortIDIndexRecoversLostProteinEntry(t *testing.T) {
	reg, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, reg.Close()) })

	ctx := context.Background()
	def := sampleProteinDef(7, 70)

	ref, _, err := reg.FetchByProteinDefinitionAndAdd(ctx, def, 0, []variant.ShortID{56})
	require.NoError(t, err)

	_, err = reg.ShortIDIndex.Remove(ctx, 56, proteinRef(ref))
	require.NoError(t, err)

	matches, err := reg.QueryByShortID(ctx, 56)
	require.NoError(t, err)
	require.Empty(t, matches, "index entry is missing until rebuilt")

	require.NoError(t, reg.RebuildShortIDIndex(ctx))

	matches, err = reg.QueryByShortID(ctx, 56)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.False(t, matches[0].IsGenomic)
	require.Equal(t, def, matches[0].Protein.Definition)
}
