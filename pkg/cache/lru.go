package cache

import (
	"slices"

	"github.com/dustin/go-humanize"
	"github.com/pierrec/lz4/v4"

	"github.com/Sumatoshi-tech/packfang/pkg/object"
)

// DefaultDecodeBudget is the default maximum memory size for one worker's
// decode cache (96 MB).
const DefaultDecodeBudget = 96 * humanize.MiByte

// bytesPerKB is the number of bytes in a kilobyte.
const bytesPerKB = 1024.0

// lz4MinSize is the smallest entry worth compressing; below it the block
// overhead dominates.
const lz4MinSize = 512

type lruKey struct {
	packID uint32
	offset uint64
}

// lruEntry is a doubly-linked list node for LRU tracking.
type lruEntry struct {
	key            lruKey
	kind           object.Kind
	compressedSize int
	data           []byte
	rawSize        int
	packed         bool
	accessCount    int64 // Number of times this entry has been accessed.
	prev           *lruEntry
	next           *lruEntry
}

// storedSize is the number of bytes the entry accounts against the budget.
func (e *lruEntry) storedSize() int64 {
	return int64(len(e.data))
}

// evictionCost calculates the cost of evicting this entry.
// Higher cost = less desirable to evict.
// Cost = AccessCount / Size (normalized) - we want to evict large, rarely-accessed items first.
func (e *lruEntry) evictionCost() float64 {
	size := e.storedSize()
	if size == 0 {
		return float64(e.accessCount)
	}

	// Normalize size to KB to avoid tiny fractions.
	sizeKB := float64(size) / bytesPerKB
	if sizeKB < 1 {
		sizeKB = 1
	}

	return float64(e.accessCount) / sizeKB
}

// LRU is a byte-budgeted DecodeEntry cache for decoded pack entries, keyed
// by (pack id, pack offset). It tracks memory usage and evicts entries with
// size-aware eviction when the limit is exceeded. When compression is
// enabled, stored entries are lz4 block compressed and only the compressed
// bytes count against the budget. Each worker owns its own instance; there
// is no locking.
type LRU struct {
	entries     map[lruKey]*lruEntry
	head        *lruEntry // Most recently used.
	tail        *lruEntry // Least recently used.
	maxSize     int64
	currentSize int64
	compress    bool

	hits   int64
	misses int64
}

// NewLRU creates a decode cache with the specified maximum size in bytes.
// A non-positive size falls back to DefaultDecodeBudget. When compress is
// true, stored entries are lz4 compressed in memory.
func NewLRU(maxSize int64, compress bool) *LRU {
	if maxSize <= 0 {
		maxSize = DefaultDecodeBudget
	}

	return &LRU{
		entries:  make(map[lruKey]*lruEntry),
		maxSize:  maxSize,
		compress: compress,
	}
}

// Get overwrites *out with the cached entry's data on a hit and reports the
// entry's kind and on-disk compressed size. On a miss *out is untouched.
func (c *LRU) Get(packID uint32, offset uint64, out *[]byte) (object.Kind, int, bool) {
	entry, ok := c.entries[lruKey{packID: packID, offset: offset}]
	if !ok {
		c.misses++

		return 0, 0, false
	}

	if !c.unpack(entry, out) {
		// A block that no longer decompresses is dropped and reported as a miss.
		c.removeFromList(entry)
		delete(c.entries, entry.key)
		c.currentSize -= entry.storedSize()
		c.misses++

		return 0, 0, false
	}

	c.hits++

	entry.accessCount++
	c.moveToFront(entry)

	return entry.kind, entry.compressedSize, true
}

// Put adds a decoded entry to the cache. If the cache exceeds maxSize,
// entries are evicted using size-aware eviction (large, infrequently
// accessed items evicted first). Entries larger than the entire cache are
// not stored. data is copied.
func (c *LRU) Put(packID uint32, offset uint64, data []byte, kind object.Kind, compressedSize int) {
	key := lruKey{packID: packID, offset: offset}

	// Check if already exists (but increment access count). Pack offsets are
	// content-stable, so the stored data never needs refreshing.
	if entry, ok := c.entries[key]; ok {
		entry.accessCount++
		c.moveToFront(entry)

		return
	}

	stored, packed := c.seal(data)

	size := int64(len(stored))

	// Don't cache entries larger than the entire cache.
	if size > c.maxSize {
		return
	}

	// Evict entries until we have room using size-aware eviction.
	for c.currentSize+size > c.maxSize && c.tail != nil {
		c.evictLowestCost()
	}

	entry := &lruEntry{
		key:            key,
		kind:           kind,
		compressedSize: compressedSize,
		data:           stored,
		rawSize:        len(data),
		packed:         packed,
		accessCount:    1,
	}

	c.entries[key] = entry
	c.currentSize += size
	c.addToFront(entry)
}

// Stats returns cache statistics.
func (c *LRU) Stats() Stats {
	return Stats{
		Hits:        c.hits,
		Misses:      c.misses,
		Entries:     len(c.entries),
		CurrentSize: c.currentSize,
		MaxSize:     c.maxSize,
	}
}

// Clear removes all entries from the cache.
func (c *LRU) Clear() {
	c.entries = make(map[lruKey]*lruEntry)
	c.head = nil
	c.tail = nil
	c.currentSize = 0
}

// seal prepares data for storage, lz4 compressing it when that is enabled
// and actually saves space.
func (c *LRU) seal(data []byte) (stored []byte, packed bool) {
	if c.compress && len(data) >= lz4MinSize {
		compressed := make([]byte, lz4.CompressBlockBound(len(data)))

		written, err := lz4.CompressBlock(data, compressed, nil)
		if err == nil && written > 0 && written < len(data) {
			return compressed[:written:written], true
		}
	}

	return slices.Clone(data), false
}

// unpack writes an entry's data into *out, decompressing when needed.
func (c *LRU) unpack(entry *lruEntry, out *[]byte) bool {
	if !entry.packed {
		*out = append((*out)[:0], entry.data...)

		return true
	}

	buf := slices.Grow((*out)[:0], entry.rawSize)[:entry.rawSize]

	if _, err := lz4.UncompressBlock(entry.data, buf); err != nil {
		return false
	}

	*out = buf

	return true
}

// Stats holds cache performance metrics.
type Stats struct {
	Hits        int64
	Misses      int64
	Entries     int
	CurrentSize int64
	MaxSize     int64
}

// HitRate returns the cache hit rate (0.0 to 1.0).
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0.0
	}

	return float64(s.Hits) / float64(total)
}

// moveToFront moves an entry to the front of the LRU list (most recently used).
func (c *LRU) moveToFront(entry *lruEntry) {
	if entry == c.head {
		return
	}

	c.removeFromList(entry)
	c.addToFront(entry)
}

// addToFront adds an entry to the front of the LRU list.
func (c *LRU) addToFront(entry *lruEntry) {
	entry.prev = nil
	entry.next = c.head

	if c.head != nil {
		c.head.prev = entry
	}

	c.head = entry

	if c.tail == nil {
		c.tail = entry
	}
}

// removeFromList removes an entry from the LRU list.
func (c *LRU) removeFromList(entry *lruEntry) {
	if entry.prev != nil {
		entry.prev.next = entry.next
	} else {
		c.head = entry.next
	}

	if entry.next != nil {
		entry.next.prev = entry.prev
	} else {
		c.tail = entry.prev
	}
}

// evictionSampleSize is the number of LRU candidates to sample for size-aware eviction.
// Sampling reduces O(n) scan to O(k) where k is constant.
const evictionSampleSize = 5

// evictLowestCost removes the entry with the lowest eviction cost from the LRU tail region.
// This implements size-aware eviction: large, infrequently accessed items are evicted first.
// We sample up to evictionSampleSize entries from the tail to avoid O(n) scans.
func (c *LRU) evictLowestCost() {
	if c.tail == nil {
		return
	}

	// Sample candidates from the tail (LRU region).
	var candidates [evictionSampleSize]*lruEntry

	count := 0
	entry := c.tail

	for entry != nil && count < evictionSampleSize {
		candidates[count] = entry
		count++
		entry = entry.prev
	}

	if count == 0 {
		return
	}

	// Find the entry with lowest eviction cost (large size, low access count).
	victim := candidates[0]
	lowestCost := victim.evictionCost()

	for i := 1; i < count; i++ {
		cost := candidates[i].evictionCost()
		if cost < lowestCost {
			lowestCost = cost
			victim = candidates[i]
		}
	}

	// Evict the victim.
	c.removeFromList(victim)
	delete(c.entries, victim.key)
	c.currentSize -= victim.storedSize()
}
