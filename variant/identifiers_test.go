package variant

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIdentifierBagSetAlgebra(t *testing.T) {
	a := Identifiers{ShortIDs: []ShortID{1, 2, 3}, StringIDs: []string{"HGVS:A"}}

	// add(a, empty) == a
	unchanged := a.Clone()
	added := unchanged.Add(Identifiers{})
	require.True(t, added.Empty())
	require.Equal(t, a, unchanged)

	// add(a, a) == a
	selfAdd := a.Clone()
	added = selfAdd.Add(a)
	require.True(t, added.Empty())
	require.Equal(t, a, selfAdd)

	// added_ids = a.add(b) satisfies added_ids subset-of b and a' = a union b
	b := Identifiers{ShortIDs: []ShortID{3, 4}, StringIDs: []string{"HGVS:A", "HGVS:B"}}
	union := a.Clone()
	added = union.Add(b)
	require.Equal(t, []ShortID{4}, added.ShortIDs)
	require.Equal(t, []string{"HGVS:B"}, added.StringIDs)
	for _, id := range added.ShortIDs {
		require.True(t, b.HasShortID(id))
	}
	require.Equal(t, []ShortID{1, 2, 3, 4}, union.ShortIDs)
	require.Equal(t, []string{"HGVS:A", "HGVS:B"}, union.StringIDs)

	// removed_ids = a.remove(b) satisfies removed_ids = a intersect b and
	// a' = a minus b
	diff := union.Clone()
	removed := diff.Remove(b)
	require.Equal(t, []ShortID{3, 4}, removed.ShortIDs)
	require.Equal(t, []string{"HGVS:A", "HGVS:B"}, removed.StringIDs)
	require.Equal(t, []ShortID{1, 2}, diff.ShortIDs)
	require.Empty(t, diff.StringIDs)

	// exchange(other) leaves both sides holding the union
	left := Identifiers{ShortIDs: []ShortID{1, 2}}
	right := Identifiers{ShortIDs: []ShortID{2, 3}}
	gained := left.Exchange(&right)
	require.Equal(t, []ShortID{3}, gained.ShortIDs)
	require.Equal(t, []ShortID{1, 2, 3}, left.ShortIDs)
	require.Equal(t, []ShortID{1, 2, 3}, right.ShortIDs)
}

func TestIdentifierHasOneOf(t *testing.T) {
	var ids Identifiers
	ids.AddShortID(1)
	ids.AddShortID(2)

	require.True(t, ids.HasOneOf([]ShortID{5, 2}))
	require.False(t, ids.HasOneOf([]ShortID{5, 6}))
	require.False(t, ids.HasOneOf(nil))
}

func TestIdentifierAddReportsOnlyNewIDs(t *testing.T) {
	a := Identifiers{ShortIDs: []ShortID{1, 2}, StringIDs: []string{"HGVS:A"}}
	b := Identifiers{ShortIDs: []ShortID{2, 3}, StringIDs: []string{"HGVS:A", "HGVS:B"}}

	added := a.Add(b)

	require.Equal(t, []ShortID{3}, added.ShortIDs)
	require.Equal(t, []string{"HGVS:B"}, added.StringIDs)
	require.Equal(t, []ShortID{1, 2, 3}, a.ShortIDs)
	require.Equal(t, []string{"HGVS:A", "HGVS:B"}, a.StringIDs)
}

func TestIdentifiersClonedNotAliased(t *testing.T) {
	a := Identifiers{ShortIDs: []ShortID{1}}
	b := a.Clone()
	b.AddShortID(2)

	require.Equal(t, []ShortID{1}, a.ShortIDs)
	require.Equal(t, []ShortID{1, 2}, b.ShortIDs)
}
