package pagedfile

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteThenReadRoundTrip(t *testing.T) {
	pf, err := Open(filepath.Join(t.TempDir(), "data"), 512)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, pf.Close()) })

	pageID, err := pf.Allocate(2)
	require.NoError(t, err)

	want := bytes.Repeat([]byte{0xab}, 2*512)
	require.NoError(t, pf.Write(pageID, 2, want))

	got := make([]byte, 2*512)
	require.NoError(t, pf.Read(pageID, 2, got))
	require.Equal(t, want, got)
}

func TestAllocateGrowsFileWhenNoFreeRunFits(t *testing.T) {
	pf, err := Open(filepath.Join(t.TempDir(), "data"), 512)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, pf.Close()) })

	require.Equal(t, uint64(0), pf.PageCount())

	first, err := pf.Allocate(1)
	require.NoError(t, err)
	require.Equal(t, PageID(0), first)
	require.Greater(t, pf.PageCount(), uint64(0))
}

func TestReleaseThenAllocateReusesFreedRun(t *testing.T) {
	pf, err := Open(filepath.Join(t.TempDir(), "data"), 512)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, pf.Close()) })

	first, err := pf.Allocate(4)
	require.NoError(t, err)

	pf.Release(first, 4)
	before := pf.PageCount()

	second, err := pf.Allocate(4)
	require.NoError(t, err)

	require.Equal(t, first, second, "a freed run of the exact requested size must be reused")
	require.Equal(t, before, pf.PageCount(), "reusing a freed run must not grow the file")
}

func TestReleaseCoalescesAdjacentRuns(t *testing.T) {
	pf, err := Open(filepath.Join(t.TempDir(), "data"), 512)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, pf.Close()) })

	a, err := pf.Allocate(2)
	require.NoError(t, err)
	b, err := pf.Allocate(3)
	require.NoError(t, err)
	require.Equal(t, a+2, b)

	pf.Release(a, 2)
	pf.Release(b, 3)

	merged, err := pf.Allocate(5)
	require.NoError(t, err)
	require.Equal(t, a, merged, "adjacent freed runs must coalesce into one allocatable run")
}

func TestSecondOpenerIsRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")

	pf, err := Open(path, 512)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, pf.Close()) })

	_, err = Open(path, 512)
	require.Error(t, err)
}
