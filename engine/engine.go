// Package engine implements the persistent, fixed-page, byte-routed
// prefix-tree key-value store: a PagedFile-backed index file of
// crash-safe two-half-page IndexNode records, a PagedFile-backed data
// file of variable-length leaf pages, and a bounded TaskManager worker
// pool callers can use to fan independent per-key operations out
// concurrently (RangeAscending itself stays sequential, since it must
// preserve ascending key order).
//
// The index tree routes on one key byte per level: a node
// covers a [lo, hi) sub-range of that level's 256 possible byte values
// and is one of four things — empty, a leaf whose entire range shares
// one data-page run, a same-level split into two half-width children,
// or a one-level deepening into a fresh full-range node keyed by the
// next byte. A node only splits or deepens when its leaf would
// otherwise overflow maxLeafPages, so small sub-trees stay flat
// regardless of how many levels the key has left.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/brlbcm/allele-registry/pagecache"
	"github.com/brlbcm/allele-registry/pagedfile"
	"github.com/brlbcm/allele-registry/taskmanager"
)

// maxLeafPages bounds how large a single leaf's data-page run may grow
// before the index node holding it splits (if its range still has width
// to split) or deepens a level (once routed down to a single byte).
const maxLeafPages = 32

// Engine is a single open key-value store instance over one (index,
// data) file pair. R is the caller's record type; Engine never
// interprets record bytes beyond R.Len()/Serialize/the Decode function
// supplied to Open.
type Engine[R Record] struct {
	opts Options

	indexFile *pagedfile.PagedFile
	dataFile  *pagedfile.PagedFile

	indexCache *pagecache.PageCache
	dataCache  *pagecache.PageCache

	decode Decode[R]

	// Tasks is a bounded worker pool sized from Options.TaskCapacity.
	// The engine itself never schedules work on it; it is exposed for
	// callers (see the tables and registry packages) that want to fan
	// a batch of independent Get/Put calls against this store out
	// concurrently instead of resolving them one at a time.
	Tasks *taskmanager.TaskManager

	mu    sync.Mutex
	meta  meta
	isNew bool
}

// Open opens (creating if absent) the index and data files under
// opts.Dir and returns a ready Engine.
func Open[R Record](opts Options, decode Decode[R]) (*Engine[R], error) {
	if opts.KeyBytes != 4 && opts.KeyBytes != 8 {
		return nil, fmt.Errorf("engine: KeyBytes must be 4 or 8, got %d", opts.KeyBytes)
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("engine: mkdir %s: %w", opts.Dir, err)
	}

	indexPath := filepath.Join(opts.Dir, opts.Name+".index")
	dataPath := filepath.Join(opts.Dir, opts.Name+".data")

	indexFile, err := pagedfile.Open(indexPath, indexFilePageSize)
	if err != nil {
		return nil, fmt.Errorf("engine: open index file: %w", err)
	}
	dataFile, err := pagedfile.Open(dataPath, opts.dataPageSize())
	if err != nil {
		indexFile.Close()
		return nil, fmt.Errorf("engine: open data file: %w", err)
	}

	e := &Engine[R]{
		opts:       opts,
		indexFile:  indexFile,
		dataFile:   dataFile,
		indexCache: pagecache.New(indexFile, indexFilePageSize, opts.indexCachePages()),
		dataCache:  pagecache.New(dataFile, opts.dataPageSize(), opts.dataCachePages()),
		decode:     decode,
		Tasks:      taskmanager.New(opts.taskCapacity()),
	}

	if indexFile.PageCount() == 0 {
		if err := e.initializeEmpty(); err != nil {
			indexFile.Close()
			dataFile.Close()
			return nil, err
		}
		e.isNew = true
		return e, nil
	}

	buf := make([]byte, metaPageBytes)
	if err := indexFile.Read(0, 1, buf); err != nil {
		indexFile.Close()
		dataFile.Close()
		return nil, fmt.Errorf("engine: read meta: %w", err)
	}
	m, err := decodeMeta(buf)
	if err != nil {
		indexFile.Close()
		dataFile.Close()
		return nil, fmt.Errorf("engine: decode meta: %w", err)
	}
	e.meta = m

	return e, nil
}

func (e *Engine[R]) initializeEmpty() error {
	metaPage, err := e.indexFile.Allocate(1)
	if err != nil {
		return fmt.Errorf("engine: allocate meta page: %w", err)
	}
	if metaPage != 0 {
		return fmt.Errorf("engine: %w: meta page expected at 0, got %d", ErrAssertionViolation, metaPage)
	}

	rootPage, err := e.indexFile.Allocate(2)
	if err != nil {
		return fmt.Errorf("engine: allocate root page: %w", err)
	}

	empty := encodeIndexPage(nil, indexNode{mode: modeEmpty})
	if err := e.indexFile.Write(rootPage, 2, empty); err != nil {
		return fmt.Errorf("engine: write root page: %w", err)
	}

	e.meta = meta{revision: 1, rootPage: rootPage}
	return e.writeMeta()
}

// Close flushes and releases the underlying files.
func (e *Engine[R]) Close() error {
	if err := e.indexFile.Close(); err != nil {
		return err
	}
	return e.dataFile.Close()
}

// IsNewlyCreated reports whether Open created the store rather than
// opening an existing one.
func (e *Engine[R]) IsNewlyCreated() bool { return e.isNew }

// RecordCount returns the number of records currently stored.
func (e *Engine[R]) RecordCount() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.meta.recordCount
}

// LargestKey returns the largest key ever successfully written, and
// whether any record has been written at all.
func (e *Engine[R]) LargestKey() (Key, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.meta.largestKey, e.meta.hasLargest
}

func (e *Engine[R]) writeMeta() error {
	buf := encodeMeta(e.meta)
	return e.indexFile.Write(0, 1, buf)
}

// Get fetches the record stored under key.
func (e *Engine[R]) Get(ctx context.Context, key Key) (record R, found bool, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	suffix := suffixOf(key, 0, e.opts.KeyBytes)
	raw, found, err := e.find(e.meta.rootPage, 0, 0, 256, suffix)
	if err != nil || !found {
		var zero R
		return zero, false, err
	}

	record, err = e.decode(key, raw)
	return record, true, err
}

func (e *Engine[R]) find(pageID pagedfile.PageID, level, lo, hi int, suffix []byte) ([]byte, bool, error) {
	node, err := e.readIndexNode(pageID)
	if err != nil {
		return nil, false, err
	}

	switch node.mode {
	case modeEmpty:
		return nil, false, nil

	case modeLeaf:
		entries, err := e.readLeafEntries(node.leaf)
		if err != nil {
			return nil, false, err
		}
		idx, ok := searchEntries(entries, suffix)
		if !ok {
			return nil, false, nil
		}
		return entries[idx].value, true, nil

	case modeChild:
		return e.find(node.child, level+1, 0, 256, suffix[1:])

	case modeSplit:
		mid := (lo + hi) / 2
		if int(suffix[0]) < mid {
			return e.find(node.left, level, lo, mid, suffix)
		}
		return e.find(node.right, level, mid, hi, suffix)

	default:
		return nil, false, fmt.Errorf("engine: %w: unknown node mode %d", ErrAssertionViolation, node.mode)
	}
}

// Put inserts or overwrites the record stored under key.
func (e *Engine[R]) Put(ctx context.Context, key Key, record R) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	buf := make([]byte, record.Len())
	record.Serialize(buf)

	suffix := suffixOf(key, 0, e.opts.KeyBytes)
	wasNew, err := e.putInto(e.meta.rootPage, 0, 0, 256, dataRecord{suffix: suffix, value: buf})
	if err != nil {
		return err
	}

	if wasNew {
		e.meta.recordCount++
	}
	if !e.meta.hasLargest || key > e.meta.largestKey {
		e.meta.largestKey = key
		e.meta.hasLargest = true
	}
	e.meta.revision++
	return e.writeMeta()
}

func (e *Engine[R]) putInto(pageID pagedfile.PageID, level, lo, hi int, entry dataRecord) (wasNew bool, err error) {
	buf, node, err := e.readIndexPageBuf(pageID)
	if err != nil {
		return false, err
	}

	switch node.mode {
	case modeEmpty:
		leaf, err := e.writeNewLeaf([]dataRecord{entry})
		if err != nil {
			return false, err
		}
		return true, e.writeIndexPage(pageID, buf, indexNode{mode: modeLeaf, leaf: leaf})

	case modeLeaf:
		entries, err := e.readLeafEntries(node.leaf)
		if err != nil {
			return false, err
		}
		wasNew := upsertEntry(&entries, entry)

		newLeaf, err := e.writeNewLeaf(entries)
		if err == nil {
			if err := e.writeIndexPage(pageID, buf, indexNode{mode: modeLeaf, leaf: newLeaf}); err != nil {
				return false, err
			}
			return wasNew, e.freeLeaf(node.leaf)
		}
		if !errors.Is(err, errLeafOverflow) {
			return false, err
		}

		var newNode indexNode
		if hi-lo > 1 {
			mid := (lo + hi) / 2
			left, right := partitionEntries(entries, mid)
			leftPage, err := e.buildSubtree(left, level, lo, mid)
			if err != nil {
				return false, err
			}
			rightPage, err := e.buildSubtree(right, level, mid, hi)
			if err != nil {
				return false, err
			}
			newNode = indexNode{mode: modeSplit, left: leftPage, right: rightPage}
		} else {
			stripped := stripLeadingByte(entries)
			childPage, err := e.buildSubtree(stripped, level+1, 0, 256)
			if err != nil {
				return false, err
			}
			newNode = indexNode{mode: modeChild, child: childPage}
		}

		if err := e.writeIndexPage(pageID, buf, newNode); err != nil {
			return false, err
		}
		return wasNew, e.freeLeaf(node.leaf)

	case modeChild:
		child := dataRecord{suffix: entry.suffix[1:], value: entry.value}
		return e.putInto(node.child, level+1, 0, 256, child)

	case modeSplit:
		mid := (lo + hi) / 2
		if int(entry.suffix[0]) < mid {
			return e.putInto(node.left, level, lo, mid, entry)
		}
		return e.putInto(node.right, level, mid, hi, entry)

	default:
		return false, fmt.Errorf("engine: %w: unknown node mode %d", ErrAssertionViolation, node.mode)
	}
}

// buildSubtree allocates a brand-new index (sub-)tree holding exactly
// entries, used when a leaf outgrows maxLeafPages and must split or
// deepen.
func (e *Engine[R]) buildSubtree(entries []dataRecord, level, lo, hi int) (pagedfile.PageID, error) {
	if len(entries) == 0 {
		return e.allocIndexPage(indexNode{mode: modeEmpty})
	}

	if leaf, err := e.writeNewLeaf(entries); err == nil {
		return e.allocIndexPage(indexNode{mode: modeLeaf, leaf: leaf})
	} else if !errors.Is(err, errLeafOverflow) {
		return 0, err
	}

	if hi-lo > 1 {
		mid := (lo + hi) / 2
		left, right := partitionEntries(entries, mid)
		leftPage, err := e.buildSubtree(left, level, lo, mid)
		if err != nil {
			return 0, err
		}
		rightPage, err := e.buildSubtree(right, level, mid, hi)
		if err != nil {
			return 0, err
		}
		return e.allocIndexPage(indexNode{mode: modeSplit, left: leftPage, right: rightPage})
	}

	stripped := stripLeadingByte(entries)
	childPage, err := e.buildSubtree(stripped, level+1, 0, 256)
	if err != nil {
		return 0, err
	}
	return e.allocIndexPage(indexNode{mode: modeChild, child: childPage})
}

// Delete removes the record stored under key, if any, returning whether
// a record was actually removed.
func (e *Engine[R]) Delete(ctx context.Context, key Key) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	suffix := suffixOf(key, 0, e.opts.KeyBytes)
	removed, err := e.deleteFrom(e.meta.rootPage, 0, 0, 256, suffix)
	if err != nil || !removed {
		return removed, err
	}

	e.meta.recordCount--
	e.meta.revision++
	return true, e.writeMeta()
}

func (e *Engine[R]) deleteFrom(pageID pagedfile.PageID, level, lo, hi int, suffix []byte) (bool, error) {
	buf, node, err := e.readIndexPageBuf(pageID)
	if err != nil {
		return false, err
	}

	switch node.mode {
	case modeEmpty:
		return false, nil

	case modeLeaf:
		entries, err := e.readLeafEntries(node.leaf)
		if err != nil {
			return false, err
		}
		idx, ok := searchEntries(entries, suffix)
		if !ok {
			return false, nil
		}
		entries = append(entries[:idx], entries[idx+1:]...)

		newNode := indexNode{mode: modeEmpty}
		if len(entries) > 0 {
			newLeaf, err := e.writeNewLeaf(entries)
			if err != nil {
				return false, err
			}
			newNode = indexNode{mode: modeLeaf, leaf: newLeaf}
		}
		if err := e.writeIndexPage(pageID, buf, newNode); err != nil {
			return false, err
		}
		return true, e.freeLeaf(node.leaf)

	case modeChild:
		return e.deleteFrom(node.child, level+1, 0, 256, suffix[1:])

	case modeSplit:
		mid := (lo + hi) / 2
		if int(suffix[0]) < mid {
			return e.deleteFrom(node.left, level, lo, mid, suffix)
		}
		return e.deleteFrom(node.right, level, mid, hi, suffix)

	default:
		return false, fmt.Errorf("engine: %w: unknown node mode %d", ErrAssertionViolation, node.mode)
	}
}

// RangeAscending visits every stored record in ascending key order,
// stopping early if visit returns false.
func (e *Engine[R]) RangeAscending(ctx context.Context, visit func(key Key, record R) (bool, error)) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, err := e.walk(e.meta.rootPage, 0, 0, 256, nil, func(key Key, raw []byte) (bool, error) {
		record, err := e.decode(key, raw)
		if err != nil {
			return false, err
		}
		return visit(key, record)
	})
	return err
}

func (e *Engine[R]) walk(pageID pagedfile.PageID, level, lo, hi int, prefix []byte, visit func(Key, []byte) (bool, error)) (bool, error) {
	node, err := e.readIndexNode(pageID)
	if err != nil {
		return false, err
	}

	switch node.mode {
	case modeEmpty:
		return true, nil

	case modeLeaf:
		entries, err := e.readLeafEntries(node.leaf)
		if err != nil {
			return false, err
		}
		for _, en := range entries {
			full := make([]byte, 0, len(prefix)+len(en.suffix))
			full = append(full, prefix...)
			full = append(full, en.suffix...)
			key := bytesToKey(full, e.opts.KeyBytes)

			cont, err := visit(key, en.value)
			if err != nil || !cont {
				return false, err
			}
		}
		return true, nil

	case modeChild:
		childPrefix := make([]byte, 0, len(prefix)+1)
		childPrefix = append(childPrefix, prefix...)
		childPrefix = append(childPrefix, byte(lo))
		return e.walk(node.child, level+1, 0, 256, childPrefix, visit)

	case modeSplit:
		mid := (lo + hi) / 2
		cont, err := e.walk(node.left, level, lo, mid, prefix, visit)
		if err != nil || !cont {
			return cont, err
		}
		return e.walk(node.right, level, mid, hi, prefix, visit)

	default:
		return false, fmt.Errorf("engine: %w: unknown node mode %d", ErrAssertionViolation, node.mode)
	}
}

// RangeBetween visits every stored record whose key lies in [first, last]
// in ascending key order, batching decoded records into chunks of up to
// minChunkSize entries before each call to visit. visit is always called
// at least once, even with an empty final chunk if nothing in range was
// found; its isLast argument is true exactly on that final call.
// Returning false (or a non-nil error) from visit stops traversal early.
// Index subtrees whose entire covered key range falls outside
// [first, last] are skipped without being read.
func (e *Engine[R]) RangeBetween(ctx context.Context, first, last Key, minChunkSize int, visit func(chunk []RangeEntry[R], isLast bool) (bool, error)) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if minChunkSize <= 0 {
		minChunkSize = 1
	}

	var chunk []RangeEntry[R]
	stopped := false

	_, err := e.walkRange(e.meta.rootPage, 0, 0, 256, nil, first, last, func(key Key, raw []byte) (bool, error) {
		record, err := e.decode(key, raw)
		if err != nil {
			return false, err
		}
		chunk = append(chunk, RangeEntry[R]{Key: key, Record: record})
		if len(chunk) < minChunkSize {
			return true, nil
		}
		cont, err := visit(chunk, false)
		chunk = nil
		if err != nil || !cont {
			stopped = true
		}
		return cont, err
	})
	if err != nil {
		return err
	}
	if stopped {
		return nil
	}
	_, err = visit(chunk, true)
	return err
}

func (e *Engine[R]) walkRange(pageID pagedfile.PageID, level, lo, hi int, prefix []byte, first, last Key, visit func(Key, []byte) (bool, error)) (bool, error) {
	keyBytes := e.opts.KeyBytes
	remaining := keyBytes - level - 1
	loKey := boundKey(prefix, byte(lo), remaining, 0x00, keyBytes)
	hiKey := boundKey(prefix, byte(hi-1), remaining, 0xFF, keyBytes)
	if hiKey < first || loKey > last {
		return true, nil
	}

	node, err := e.readIndexNode(pageID)
	if err != nil {
		return false, err
	}

	switch node.mode {
	case modeEmpty:
		return true, nil

	case modeLeaf:
		entries, err := e.readLeafEntries(node.leaf)
		if err != nil {
			return false, err
		}
		for _, en := range entries {
			full := make([]byte, 0, len(prefix)+len(en.suffix))
			full = append(full, prefix...)
			full = append(full, en.suffix...)
			key := bytesToKey(full, keyBytes)
			if key < first || key > last {
				continue
			}
			cont, err := visit(key, en.value)
			if err != nil || !cont {
				return false, err
			}
		}
		return true, nil

	case modeChild:
		childPrefix := make([]byte, 0, len(prefix)+1)
		childPrefix = append(childPrefix, prefix...)
		childPrefix = append(childPrefix, byte(lo))
		return e.walkRange(node.child, level+1, 0, 256, childPrefix, first, last, visit)

	case modeSplit:
		mid := (lo + hi) / 2
		cont, err := e.walkRange(node.left, level, lo, mid, prefix, first, last, visit)
		if err != nil || !cont {
			return cont, err
		}
		return e.walkRange(node.right, level, mid, hi, prefix, first, last, visit)

	default:
		return false, fmt.Errorf("engine: %w: unknown node mode %d", ErrAssertionViolation, node.mode)
	}
}

func boundKey(prefix []byte, b byte, remaining int, fill byte, keyBytes int) Key {
	full := make([]byte, 0, keyBytes)
	full = append(full, prefix...)
	full = append(full, b)
	for i := 0; i < remaining; i++ {
		full = append(full, fill)
	}
	return bytesToKey(full, keyBytes)
}

func suffixOf(key Key, level, keyBytes int) []byte {
	n := keyBytes - level
	out := make([]byte, n)
	v := key
	for i := n - 1; i >= 0; i-- {
		out[i] = byte(v & 0xff)
		v >>= 8
	}
	return out
}

func bytesToKey(b []byte, keyBytes int) Key {
	var k Key
	for i := 0; i < keyBytes && i < len(b); i++ {
		k = (k << 8) | Key(b[i])
	}
	return k
}

func searchEntries(entries []dataRecord, suffix []byte) (int, bool) {
	lo, hi := 0, len(entries)
	for lo < hi {
		mid := (lo + hi) / 2
		switch compareSuffix(entries[mid].suffix, suffix) {
		case 0:
			return mid, true
		case -1:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return lo, false
}

func compareSuffix(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// upsertEntry inserts or replaces entry in the sorted entries slice,
// reporting whether it was a fresh insertion.
func upsertEntry(entries *[]dataRecord, entry dataRecord) bool {
	idx, ok := searchEntries(*entries, entry.suffix)
	if ok {
		(*entries)[idx] = entry
		return false
	}
	*entries = append(*entries, dataRecord{})
	copy((*entries)[idx+1:], (*entries)[idx:])
	(*entries)[idx] = entry
	return true
}

func partitionEntries(entries []dataRecord, mid int) (left, right []dataRecord) {
	for _, e := range entries {
		if int(e.suffix[0]) < mid {
			left = append(left, e)
		} else {
			right = append(right, e)
		}
	}
	return left, right
}

func stripLeadingByte(entries []dataRecord) []dataRecord {
	out := make([]dataRecord, len(entries))
	for i, e := range entries {
		out[i] = dataRecord{suffix: e.suffix[1:], value: e.value}
	}
	return out
}

func (e *Engine[R]) readIndexNode(pageID pagedfile.PageID) (indexNode, error) {
	_, node, err := e.readIndexPageBuf(pageID)
	return node, err
}

func (e *Engine[R]) readIndexPageBuf(pageID pagedfile.PageID) ([]byte, indexNode, error) {
	r := pagecache.Range{First: pageID, Count: 2}
	cached, err := e.indexCache.Acquire(r)
	if err != nil {
		return nil, indexNode{}, fmt.Errorf("engine: read index page %d: %w", pageID, err)
	}
	buf := append([]byte(nil), cached...)
	e.indexCache.Release(r)

	node, err := decodeIndexPage(buf)
	if err != nil {
		return nil, indexNode{}, err
	}
	return buf, node, nil
}

func (e *Engine[R]) writeIndexPage(pageID pagedfile.PageID, prevBuf []byte, node indexNode) error {
	newBuf := encodeIndexPage(prevBuf, node)

	r := pagecache.Range{First: pageID, Count: 2}
	cached, err := e.indexCache.Acquire(r)
	if err != nil {
		return fmt.Errorf("engine: write index page %d: %w", pageID, err)
	}
	copy(cached, newBuf)
	werr := e.indexCache.WriteBack([]pagecache.Range{r})
	e.indexCache.Release(r)
	if werr != nil {
		return fmt.Errorf("engine: flush index page %d: %w", pageID, werr)
	}
	return nil
}

func (e *Engine[R]) allocIndexPage(node indexNode) (pagedfile.PageID, error) {
	pageID, err := e.indexFile.Allocate(2)
	if err != nil {
		return 0, fmt.Errorf("engine: allocate index page: %w", err)
	}
	buf := encodeIndexPage(nil, node)
	if err := e.indexFile.Write(pageID, 2, buf); err != nil {
		return 0, fmt.Errorf("engine: write new index page: %w", err)
	}
	return pageID, nil
}

func (e *Engine[R]) readLeafEntries(leaf leafRef) ([]dataRecord, error) {
	r := pagecache.Range{First: leaf.page, Count: leaf.count}
	cached, err := e.dataCache.Acquire(r)
	if err != nil {
		return nil, fmt.Errorf("engine: read leaf %+v: %w", leaf, err)
	}
	buf := append([]byte(nil), cached...)
	e.dataCache.Release(r)

	entries, _, err := decodeDataPage(buf)
	return entries, err
}

func (e *Engine[R]) writeNewLeaf(entries []dataRecord) (leafRef, error) {
	sortEntries(entries)

	size := 0
	for _, en := range entries {
		size += 1 + len(en.suffix) + varintLen(uint64(len(en.value)), 7) + len(en.value)
	}

	pageCount := pageCountFor(size, e.opts.dataPageSize())
	if pageCount > maxLeafPages {
		return leafRef{}, errLeafOverflow
	}

	buf, err := encodeDataPage(entries, 1, pageCount, e.opts.dataPageSize())
	if err != nil {
		return leafRef{}, err
	}

	pageID, err := e.dataFile.Allocate(uint32(pageCount))
	if err != nil {
		return leafRef{}, fmt.Errorf("engine: allocate leaf: %w", err)
	}
	if err := e.dataFile.Write(pageID, uint32(pageCount), buf); err != nil {
		return leafRef{}, fmt.Errorf("engine: write leaf: %w", err)
	}

	return leafRef{page: pageID, count: uint32(pageCount)}, nil
}

func (e *Engine[R]) freeLeaf(leaf leafRef) error {
	r := pagecache.Range{First: leaf.page, Count: leaf.count}
	e.dataCache.MarkDeleted(r)
	return nil
}
