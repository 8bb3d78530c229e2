package cache

import (
	"slices"

	"github.com/Sumatoshi-tech/packfang/pkg/githash"
	"github.com/Sumatoshi-tech/packfang/pkg/object"
)

// objectEntry is a doubly-linked list node for LRU tracking.
type objectEntry struct {
	id   githash.Hash
	kind object.Kind
	data []byte
	prev *objectEntry
	next *objectEntry
}

// ObjectLRU is a byte-budgeted whole-object cache keyed by id. The tree-diff
// expansion path keeps recently used trees in it so consecutive commits
// sharing subtrees avoid repeated store reads. Each worker owns its own
// instance; there is no locking.
type ObjectLRU struct {
	entries     map[githash.Hash]*objectEntry
	head        *objectEntry // Most recently used.
	tail        *objectEntry // Least recently used.
	maxSize     int64
	currentSize int64

	hits   int64
	misses int64
}

// NewObjectLRU creates an object cache with the specified maximum size in
// bytes. The size must be positive; callers disable caching by using
// NeverObject instead of a zero budget here.
func NewObjectLRU(maxSize int64) *ObjectLRU {
	return &ObjectLRU{
		entries: make(map[githash.Hash]*objectEntry),
		maxSize: maxSize,
	}
}

// Get overwrites *out with the cached object's data on a hit. On a miss
// *out is untouched.
func (c *ObjectLRU) Get(id githash.Hash, out *[]byte) (object.Kind, bool) {
	entry, ok := c.entries[id]
	if !ok {
		c.misses++

		return 0, false
	}

	c.hits++
	c.moveToFront(entry)
	*out = append((*out)[:0], entry.data...)

	return entry.kind, true
}

// Put adds an object to the cache, evicting least recently used entries
// until the budget holds. Objects larger than the entire cache are not
// stored. data is copied.
func (c *ObjectLRU) Put(id githash.Hash, kind object.Kind, data []byte) {
	size := int64(len(data))

	// Don't cache objects larger than the entire cache.
	if size > c.maxSize {
		return
	}

	if entry, ok := c.entries[id]; ok {
		c.moveToFront(entry)

		return
	}

	// Evict entries until we have room.
	for c.currentSize+size > c.maxSize && c.tail != nil {
		c.evictLRU()
	}

	entry := &objectEntry{
		id:   id,
		kind: kind,
		data: slices.Clone(data),
	}

	c.entries[id] = entry
	c.currentSize += size
	c.addToFront(entry)
}

// Stats returns cache statistics.
func (c *ObjectLRU) Stats() Stats {
	return Stats{
		Hits:        c.hits,
		Misses:      c.misses,
		Entries:     len(c.entries),
		CurrentSize: c.currentSize,
		MaxSize:     c.maxSize,
	}
}

// moveToFront moves an entry to the front of the LRU list (most recently used).
func (c *ObjectLRU) moveToFront(entry *objectEntry) {
	if entry == c.head {
		return
	}

	c.removeFromList(entry)
	c.addToFront(entry)
}

// addToFront adds an entry to the front of the LRU list.
func (c *ObjectLRU) addToFront(entry *objectEntry) {
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
func (c *ObjectLRU) removeFromList(entry *objectEntry) {
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

// evictLRU removes the least recently used entry.
func (c *ObjectLRU) evictLRU() {
	if c.tail == nil {
		return
	}

	entry := c.tail
	c.removeFromList(entry)
	delete(c.entries, entry.id)
	c.currentSize -= int64(len(entry.data))
}
