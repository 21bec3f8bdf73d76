// Package variant implements the genomic and protein variant record
// types stored by the registry's engine tables, and the identifier-bag
// set algebra used to track which short ids and HGVS-style ids a given
// variant definition currently answers to.
//
// Grounded on original_source/src/allelesDatabase/RecordVariant.hpp:
// BinaryIdentifiers there keeps one sorted vector of short (CA/PA)
// numeric ids and one sorted vector of longer string ids, and supports
// add/remove/exchange/hasOneOf over both. Identifiers here plays the
// same role with Go sorted slices instead of a C++ vector.
package variant

import "sort"

// ShortID is a compact numeric identifier such as a CA or PA id.
type ShortID uint32

// Identifiers is a sorted-slice set of ShortIDs plus a sorted-slice set
// of string ids (HGVS names) attached to one variant definition.
type Identifiers struct {
	ShortIDs []ShortID
	StringIDs []string
}

// Clone returns a deep copy, since Identifiers is mutated in place by
// Add/Remove/Exchange and callers holding a record loaded from the
// engine must not alias its backing arrays across table operations.
func (ids Identifiers) Clone() Identifiers {
	out := Identifiers{
		ShortIDs:  append([]ShortID(nil), ids.ShortIDs...),
		StringIDs: append([]string(nil), ids.StringIDs...),
	}
	return out
}

// HasShortID reports whether id is present.
func (ids Identifiers) HasShortID(id ShortID) bool {
	_, ok := searchShort(ids.ShortIDs, id)
	return ok
}

// HasStringID reports whether id is present.
func (ids Identifiers) HasStringID(id string) bool {
	_, ok := searchString(ids.StringIDs, id)
	return ok
}

// HasOneOf reports whether any of the given short ids is present
//.
func (ids Identifiers) HasOneOf(candidates []ShortID) bool {
	for _, c := range candidates {
		if ids.HasShortID(c) {
			return true
		}
	}
	return false
}

// Empty reports whether both id sets are empty.
func (ids Identifiers) Empty() bool {
	return len(ids.ShortIDs) == 0 && len(ids.StringIDs) == 0
}

// AddShortID inserts id if absent, returning whether it was newly added.
func (ids *Identifiers) AddShortID(id ShortID) bool {
	idx, ok := searchShort(ids.ShortIDs, id)
	if ok {
		return false
	}
	ids.ShortIDs = append(ids.ShortIDs, 0)
	copy(ids.ShortIDs[idx+1:], ids.ShortIDs[idx:])
	ids.ShortIDs[idx] = id
	return true
}

// RemoveShortID deletes id if present, returning whether it was removed.
func (ids *Identifiers) RemoveShortID(id ShortID) bool {
	idx, ok := searchShort(ids.ShortIDs, id)
	if !ok {
		return false
	}
	ids.ShortIDs = append(ids.ShortIDs[:idx], ids.ShortIDs[idx+1:]...)
	return true
}

// AddStringID inserts id if absent, returning whether it was newly added.
func (ids *Identifiers) AddStringID(id string) bool {
	idx, ok := searchString(ids.StringIDs, id)
	if ok {
		return false
	}
	ids.StringIDs = append(ids.StringIDs, "")
	copy(ids.StringIDs[idx+1:], ids.StringIDs[idx:])
	ids.StringIDs[idx] = id
	return true
}

// RemoveStringID deletes id if present, returning whether it was removed.
func (ids *Identifiers) RemoveStringID(id string) bool {
	idx, ok := searchString(ids.StringIDs, id)
	if !ok {
		return false
	}
	ids.StringIDs = append(ids.StringIDs[:idx], ids.StringIDs[idx+1:]...)
	return true
}

// Add adds every id in other that is not already present in ids,
// returning the ids that were actually newly added (P4: add(a, empty)
// == a, add(a, a) == a, and the result is a ∪ other).
func (ids *Identifiers) Add(other Identifiers) (added Identifiers) {
	for _, id := range other.ShortIDs {
		if ids.AddShortID(id) {
			added.ShortIDs = append(added.ShortIDs, id)
		}
	}
	for _, id := range other.StringIDs {
		if ids.AddStringID(id) {
			added.StringIDs = append(added.StringIDs, id)
		}
	}
	return added
}

// Remove deletes every id that is present in both ids and other,
// returning the ids that were actually removed (P4: the result is
// ids ∩ other, and ids becomes ids \ other).
func (ids *Identifiers) Remove(other Identifiers) (removed Identifiers) {
	for _, id := range other.ShortIDs {
		if ids.RemoveShortID(id) {
			removed.ShortIDs = append(removed.ShortIDs, id)
		}
	}
	for _, id := range other.StringIDs {
		if ids.RemoveStringID(id) {
			removed.StringIDs = append(removed.StringIDs, id)
		}
	}
	return removed
}

// Exchange merges ids and other so that both end up holding their
// union, mutating ids in place and returning the ids it gained from
// other (mirrors original_source's BinaryIdentifiers::exchange, used
// when the same variant is submitted twice in one batch and both
// copies' bags must end up identical).
func (ids *Identifiers) Exchange(other *Identifiers) (gained Identifiers) {
	gained = ids.Add(*other)
	other.Add(*ids)
	return gained
}

func searchShort(s []ShortID, v ShortID) (int, bool) {
	idx := sort.Search(len(s), func(i int) bool { return s[i] >= v })
	return idx, idx < len(s) && s[idx] == v
}

func searchString(s []string, v string) (int, bool) {
	idx := sort.Search(len(s), func(i int) bool { return s[i] >= v })
	return idx, idx < len(s) && s[idx] == v
}
