// Package pagecache memoizes page buffers read from a pagedfile.PagedFile.
//
// Entries are keyed by a (first page, page count) range; partial overlap
// between two cached ranges is not recognized, matching the engine's use
// where every reader always asks for the same whole node/record run. A
// goroutine that misses on a range in flight waits on a condition
// variable rather than polling the "being created" flag on a timer.
package pagecache

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/brlbcm/allele-registry/pagedfile"
)

// Range identifies a cached span of pages.
type Range struct {
	First pagedfile.PageID
	Count uint32
}

type entry struct {
	buf          []byte
	pins         int
	beingCreated bool
	beingDeleted bool
	elem         *list.Element // position in the LRU list, nil while pinned
}

// PageCache is an LRU cache of pinned page buffers backed by one
// PagedFile.
type PageCache struct {
	file     *pagedfile.PagedFile
	pageSize int
	maxPages int

	mu      sync.Mutex
	cond    *sync.Cond
	entries map[Range]*entry
	lru     *list.List // front = most recently released
}

// New creates a PageCache over file with a soft cap of maxPages resident
// pages across all cached ranges.
func New(file *pagedfile.PagedFile, pageSize, maxPages int) *PageCache {
	pc := &PageCache{
		file:     file,
		pageSize: pageSize,
		maxPages: maxPages,
		entries:  make(map[Range]*entry),
		lru:      list.New(),
	}
	pc.cond = sync.NewCond(&pc.mu)
	return pc
}

// Acquire returns a pinned buffer for the given range, reading it from
// disk on first acquisition. The caller must call Release exactly once
// per Acquire.
func (pc *PageCache) Acquire(r Range) ([]byte, error) {
	pc.mu.Lock()

	e, ok := pc.entries[r]
	if !ok {
		e = &entry{beingCreated: true}
		pc.entries[r] = e
		pc.mu.Unlock()

		buf := make([]byte, int(r.Count)*pc.pageSize)
		if err := pc.file.Read(r.First, r.Count, buf); err != nil {
			pc.mu.Lock()
			delete(pc.entries, r)
			pc.cond.Broadcast()
			pc.mu.Unlock()
			return nil, fmt.Errorf("pagecache: fill %+v: %w", r, err)
		}

		pc.mu.Lock()
		e.buf = buf
		e.beingCreated = false
		e.pins = 1
		pc.cond.Broadcast()
		pc.mu.Unlock()
		return buf, nil
	}

	for e.beingCreated {
		pc.cond.Wait()
	}

	if e.elem != nil {
		pc.lru.Remove(e.elem)
		e.elem = nil
	}
	e.pins++
	buf := e.buf
	pc.mu.Unlock()

	return buf, nil
}

// Release drops one pin on the range. When the last pin drops and the
// entry is not marked for deletion, it is pushed to the front of the
// eviction LRU; if the cache exceeds maxPages resident pages, the
// least-recently-released entries are evicted from the back.
func (pc *PageCache) Release(r Range) {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	e, ok := pc.entries[r]
	if !ok || e.pins == 0 {
		return
	}

	e.pins--
	if e.pins > 0 {
		return
	}

	if e.beingDeleted {
		delete(pc.entries, r)
		pc.file.Release(r.First, r.Count)
		return
	}

	e.elem = pc.lru.PushFront(r)
	pc.evictLocked()
}

// MarkDeleted flags the range for removal. On the last unpin the backing
// pages are released back to the PagedFile.
func (pc *PageCache) MarkDeleted(r Range) {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	e, ok := pc.entries[r]
	if !ok {
		pc.file.Release(r.First, r.Count)
		return
	}

	e.beingDeleted = true
	if e.pins == 0 {
		if e.elem != nil {
			pc.lru.Remove(e.elem)
			e.elem = nil
		}
		delete(pc.entries, r)
		pc.file.Release(r.First, r.Count)
	}
}

// WriteBack writes each of the given ranges through the PagedFile. Ranges
// are sorted by first page but are not merged across calls.
func (pc *PageCache) WriteBack(ranges []Range) error {
	sorted := append([]Range(nil), ranges...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].First < sorted[j-1].First; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}

	for _, r := range sorted {
		pc.mu.Lock()
		e, ok := pc.entries[r]
		var buf []byte
		if ok {
			buf = e.buf
		}
		pc.mu.Unlock()

		if !ok {
			return fmt.Errorf("pagecache: writeBack: range %+v not resident", r)
		}
		if err := pc.file.Write(r.First, r.Count, buf); err != nil {
			return fmt.Errorf("pagecache: writeBack %+v: %w", r, err)
		}
	}

	return nil
}

// residentPagesLocked is the sum of page counts of all entries currently in the
// cache (pinned or not); used only to decide when to evict.
func (pc *PageCache) residentPagesLocked() int {
	total := 0
	for r := range pc.entries {
		total += int(r.Count)
	}
	return total
}

func (pc *PageCache) evictLocked() {
	for pc.residentPagesLocked() > pc.maxPages {
		back := pc.lru.Back()
		if back == nil {
			return
		}
		r := back.Value.(Range)
		pc.lru.Remove(back)
		delete(pc.entries, r)
	}
}
