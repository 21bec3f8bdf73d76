package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

type blobRecord struct {
	data []byte
}

func (r blobRecord) Len() int { return len(r.data) }

func (r blobRecord) Serialize(buf []byte) { copy(buf, r.data) }

func decodeBlob(key Key, buf []byte) (blobRecord, error) {
	return blobRecord{data: append([]byte(nil), buf...)}, nil
}

func openTestEngine(t *testing.T, keyBytes int) *Engine[blobRecord] {
	t.Helper()
	dir := t.TempDir()
	e, err := Open(Options{Dir: dir, Name: "store", KeyBytes: keyBytes, DataPageSize: 512}, decodeBlob)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, e.Close()) })
	return e
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	e := openTestEngine(t, 4)
	ctx := context.Background()

	require.True(t, e.IsNewlyCreated())

	keys := []Key{1, 2, 300, 65536, 0xdeadbeef}
	for _, k := range keys {
		require.NoError(t, e.Put(ctx, k, blobRecord{data: []byte(fmt.Sprintf("value-%d", k))}))
	}

	for _, k := range keys {
		rec, found, err := e.Get(ctx, k)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, fmt.Sprintf("value-%d", k), string(rec.data))
	}

	_, found, err := e.Get(ctx, 999)
	require.NoError(t, err)
	require.False(t, found)

	require.Equal(t, uint64(len(keys)), e.RecordCount())
	largest, ok := e.LargestKey()
	require.True(t, ok)
	require.Equal(t, Key(0xdeadbeef), largest)
}

func TestOverwriteDoesNotGrowCount(t *testing.T) {
	e := openTestEngine(t, 4)
	ctx := context.Background()

	require.NoError(t, e.Put(ctx, 42, blobRecord{data: []byte("first")}))
	require.NoError(t, e.Put(ctx, 42, blobRecord{data: []byte("second")}))

	require.Equal(t, uint64(1), e.RecordCount())
	rec, found, err := e.Get(ctx, 42)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "second", string(rec.data))
}

func TestDeleteRemovesRecord(t *testing.T) {
	e := openTestEngine(t, 4)
	ctx := context.Background()

	require.NoError(t, e.Put(ctx, 7, blobRecord{data: []byte("seven")}))
	removed, err := e.Delete(ctx, 7)
	require.NoError(t, err)
	require.True(t, removed)

	_, found, err := e.Get(ctx, 7)
	require.NoError(t, err)
	require.False(t, found)
	require.Equal(t, uint64(0), e.RecordCount())

	removedAgain, err := e.Delete(ctx, 7)
	require.NoError(t, err)
	require.False(t, removedAgain)
}

func TestRangeReadCompleteness(t *testing.T) {
	e := openTestEngine(t, 4)
	ctx := context.Background()

	const n = 400
	for i := 0; i < n; i++ {
		k := Key(i * 7919 % 1000003)
		require.NoError(t, e.Put(ctx, k, blobRecord{data: []byte(fmt.Sprintf("v%d", k))}))
	}

	var seen []Key
	require.NoError(t, e.RangeAscending(ctx, func(key Key, rec blobRecord) (bool, error) {
		seen = append(seen, key)
		return true, nil
	}))

	require.Equal(t, int(e.RecordCount()), len(seen))
	for i := 1; i < len(seen); i++ {
		require.Less(t, seen[i-1], seen[i], "range scan must yield ascending keys")
	}
}

func TestRangeReadEarlyStop(t *testing.T) {
	e := openTestEngine(t, 4)
	ctx := context.Background()

	for i := Key(0); i < 50; i++ {
		require.NoError(t, e.Put(ctx, i, blobRecord{data: []byte("x")}))
	}

	count := 0
	require.NoError(t, e.RangeAscending(ctx, func(key Key, rec blobRecord) (bool, error) {
		count++
		return count < 10, nil
	}))
	require.Equal(t, 10, count)
}

func TestReopenPreservesState(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	e1, err := Open(Options{Dir: dir, Name: "store", KeyBytes: 8, DataPageSize: 512}, decodeBlob)
	require.NoError(t, err)
	require.NoError(t, e1.Put(ctx, 12345, blobRecord{data: []byte("persisted")}))
	require.NoError(t, e1.Close())

	e2, err := Open(Options{Dir: dir, Name: "store", KeyBytes: 8, DataPageSize: 512}, decodeBlob)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, e2.Close()) })

	require.False(t, e2.IsNewlyCreated())
	rec, found, err := e2.Get(ctx, 12345)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "persisted", string(rec.data))
}

func TestDeepensWhenSingleSlotOverflows(t *testing.T) {
	e := openTestEngine(t, 4)
	ctx := context.Background()

	// All keys share the same top byte (0x01______) and each value is
	// large enough that 300 of them overflow one leaf's maxLeafPages run,
	// so the root must deepen past a single split before it can hold
	// them all.
	val := func(i int) string { return fmt.Sprintf("v%d-%0120d", i, i) }
	for i := 0; i < 300; i++ {
		k := Key(0x01000000) | Key(i)
		require.NoError(t, e.Put(ctx, k, blobRecord{data: []byte(val(i))}))
	}

	for i := 0; i < 300; i++ {
		k := Key(0x01000000) | Key(i)
		rec, found, err := e.Get(ctx, k)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, val(i), string(rec.data))
	}
	require.Equal(t, uint64(300), e.RecordCount())

	// Following the root's splits toward byte 0x01 must end at a child
	// node one level down.
	pageID, lo, hi := e.meta.rootPage, 0, 256
	node, err := e.readIndexNode(pageID)
	require.NoError(t, err)
	for node.mode == modeSplit {
		mid := (lo + hi) / 2
		if 0x01 < mid {
			pageID, hi = node.left, mid
		} else {
			pageID, lo = node.right, mid
		}
		node, err = e.readIndexNode(pageID)
		require.NoError(t, err)
	}
	require.Equal(t, modeChild, node.mode)
}

func TestCrashSafetyHalfPageWrite(t *testing.T) {
	node := indexNode{mode: modeLeaf, leaf: leafRef{page: 9, count: 3}}

	half0 := encodeIndexNode(node, 1)
	page := make([]byte, indexPageBytes)
	copy(page[0:halfPageBytes], half0)

	decoded, err := decodeIndexPage(page)
	require.NoError(t, err)
	require.Equal(t, node.mode, decoded.mode)
	require.Equal(t, node.leaf, decoded.leaf)

	updated := indexNode{mode: modeLeaf, leaf: leafRef{page: 9, count: 4}}
	page2 := encodeIndexPage(page, updated)

	// Corrupt the half that now holds the newest revision.
	_, rev0, ok0 := decodeHalfPage(page2[0:halfPageBytes])
	_, rev1, ok1 := decodeHalfPage(page2[halfPageBytes:indexPageBytes])
	require.True(t, ok0 && ok1)

	corrupted := append([]byte(nil), page2...)
	if rev0 > rev1 {
		corrupted[13] ^= 0xff
	} else {
		corrupted[halfPageBytes+13] ^= 0xff
	}

	decodedAfterCorruption, err := decodeIndexPage(corrupted)
	require.NoError(t, err, "surviving half must still decode")
	require.Equal(t, uint32(3), decodedAfterCorruption.leaf.count, "must fall back to the older valid half")
}
