// Package pagedfile owns a single flat file divided into fixed-size pages.
//
// It allocates, reads, writes and frees runs of consecutive pages. Free
// runs are tracked so that repeated allocate/release cycles reuse space
// instead of growing the file forever. The file is opened with an
// exclusive advisory lock: a second opener fails immediately rather than
// silently corrupting the free list.
package pagedfile

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"golang.org/x/sys/unix"
)

// PageID identifies the first page of a run.
type PageID uint64

// SentinelPageID marks an empty leaf / absent pointer (all-ones).
const SentinelPageID PageID = ^PageID(0)

// growChunkPages is the minimum number of pages the file grows by when no
// free run is large enough, rounded up to this size.
const growChunkPages = 4096

// freeRun is a contiguous run of free pages, [Start, Start+Count).
type freeRun struct {
	Start PageID
	Count uint32
}

// PagedFile manages one file's page allocation and positioned I/O.
type PagedFile struct {
	path     string
	pageSize int

	mu    sync.Mutex
	file  *os.File
	pages uint64 // total pages currently backing the file

	// free runs, kept sorted by Start; allocate() does a best-fit linear
	// scan over this slice (teacher-sized files keep this list short
	// enough that a linear scan is cheaper than maintaining two balanced
	// trees, see DESIGN.md).
	free []freeRun

	allocatedSinceOpen bool
}

// Open opens (creating if necessary) the file at path, exclusively locks
// it, and prepares it for page-level I/O.
func Open(path string, pageSize int) (*PagedFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("pagedfile: open %s: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("pagedfile: exclusive lock %s: %w", path, err)
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("pagedfile: stat %s: %w", path, err)
	}

	pf := &PagedFile{
		path:     path,
		pageSize: pageSize,
		file:     f,
		pages:    uint64(stat.Size()) / uint64(pageSize),
	}

	return pf, nil
}

// Close releases the lock and closes the underlying file.
func (pf *PagedFile) Close() error {
	pf.mu.Lock()
	defer pf.mu.Unlock()

	if err := pf.file.Close(); err != nil {
		return fmt.Errorf("pagedfile: close %s: %w", pf.path, err)
	}
	return nil
}

// PageCount returns the total number of pages currently backing the file,
// used or free.
func (pf *PagedFile) PageCount() uint64 {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	return pf.pages
}

// Allocate returns n consecutive free pages, best-fit: the smallest free
// run that is >= n. If none exists the file is extended by
// max(n, pages/12) rounded up to growChunkPages pages and the new run is
// carved from the fresh tail.
func (pf *PagedFile) Allocate(n uint32) (PageID, error) {
	if n == 0 {
		return 0, errors.New("pagedfile: allocate: n must be > 0")
	}

	pf.mu.Lock()
	defer pf.mu.Unlock()

	pf.allocatedSinceOpen = true

	if idx, ok := pf.bestFitLocked(n); ok {
		run := pf.free[idx]
		start := run.Start

		switch {
		case run.Count == n:
			pf.free = append(pf.free[:idx], pf.free[idx+1:]...)
		default:
			pf.free[idx] = freeRun{Start: run.Start + PageID(n), Count: run.Count - n}
		}

		return start, nil
	}

	grow := uint64(n)
	if byTwelfth := pf.pages / 12; byTwelfth > grow {
		grow = byTwelfth
	}
	grow = roundUp(grow, growChunkPages)

	newSize := (pf.pages + grow) * uint64(pf.pageSize)
	if err := pf.file.Truncate(int64(newSize)); err != nil {
		return 0, fmt.Errorf("pagedfile: grow %s: %w", pf.path, err)
	}

	start := PageID(pf.pages)
	if grow > n {
		pf.insertFreeLocked(freeRun{Start: start + PageID(n), Count: uint32(grow - uint64(n))})
	}
	pf.pages += grow

	return start, nil
}

// bestFitLocked returns the index of the smallest free run whose Count is
// >= n, or false if none fits.
func (pf *PagedFile) bestFitLocked(n uint32) (int, bool) {
	best := -1
	for i, run := range pf.free {
		if run.Count < n {
			continue
		}
		if best == -1 || run.Count < pf.free[best].Count {
			best = i
		}
	}
	if best == -1 {
		return 0, false
	}
	return best, true
}

// Release marks a run of n pages starting at pageId as free, coalescing
// with abutting free runs on either side.
func (pf *PagedFile) Release(pageID PageID, n uint32) {
	pf.mu.Lock()
	defer pf.mu.Unlock()

	pf.insertFreeLocked(freeRun{Start: pageID, Count: n})
}

func (pf *PagedFile) insertFreeLocked(run freeRun) {
	pf.free = append(pf.free, run)
	sort.Slice(pf.free, func(i, j int) bool { return pf.free[i].Start < pf.free[j].Start })

	merged := pf.free[:0]
	for _, r := range pf.free {
		if len(merged) > 0 {
			last := &merged[len(merged)-1]
			if last.Start+PageID(last.Count) == r.Start {
				last.Count += r.Count
				continue
			}
		}
		merged = append(merged, r)
	}
	pf.free = merged
}

// Write performs a positioned write of n pages of buf at pageId, looping
// through partial writes to completion.
func (pf *PagedFile) Write(pageID PageID, n uint32, buf []byte) error {
	want := int(n) * pf.pageSize
	if len(buf) != want {
		return fmt.Errorf("pagedfile: write: buffer length %d != %d pages (%d bytes)", len(buf), n, want)
	}

	off := int64(pageID) * int64(pf.pageSize)
	written := 0
	for written < want {
		m, err := pf.file.WriteAt(buf[written:], off+int64(written))
		if err != nil {
			return fmt.Errorf("pagedfile: write %s at page %d: %w", pf.path, pageID, err)
		}
		written += m
	}

	return nil
}

// Read performs a positioned read of n pages into buf at pageId, looping
// through partial reads to completion.
func (pf *PagedFile) Read(pageID PageID, n uint32, buf []byte) error {
	want := int(n) * pf.pageSize
	if len(buf) != want {
		return fmt.Errorf("pagedfile: read: buffer length %d != %d pages (%d bytes)", len(buf), n, want)
	}

	off := int64(pageID) * int64(pf.pageSize)
	read := 0
	for read < want {
		m, err := pf.file.ReadAt(buf[read:], off+int64(read))
		if err != nil {
			return fmt.Errorf("pagedfile: read %s at page %d: %w", pf.path, pageID, err)
		}
		read += m
	}

	return nil
}

// Sync flushes the file to stable storage.
func (pf *PagedFile) Sync() error {
	if err := pf.file.Sync(); err != nil {
		return fmt.Errorf("pagedfile: sync %s: %w", pf.path, err)
	}
	return nil
}

// SetFreePages is a one-shot startup trim: truncates the file to
// newPageCount pages and installs runs as the free list. Callable only
// when no pages have been allocated since construction.
func (pf *PagedFile) SetFreePages(newPageCount uint64, runs []struct {
	Start PageID
	Count uint32
}) error {
	pf.mu.Lock()
	defer pf.mu.Unlock()

	if pf.allocatedSinceOpen {
		return errors.New("pagedfile: SetFreePages called after pages were allocated")
	}

	if err := pf.file.Truncate(int64(newPageCount) * int64(pf.pageSize)); err != nil {
		return fmt.Errorf("pagedfile: truncate %s: %w", pf.path, err)
	}

	pf.pages = newPageCount
	pf.free = pf.free[:0]
	for _, r := range runs {
		pf.free = append(pf.free, freeRun{Start: r.Start, Count: r.Count})
	}
	sort.Slice(pf.free, func(i, j int) bool { return pf.free[i].Start < pf.free[j].Start })

	return nil
}

func roundUp(v, multiple uint64) uint64 {
	if multiple == 0 {
		return v
	}
	rem := v % multiple
	if rem == 0 {
		return v
	}
	return v + (multiple - rem)
}
