package cache_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/packfang/pkg/cache"
	"github.com/Sumatoshi-tech/packfang/pkg/githash"
	"github.com/Sumatoshi-tech/packfang/pkg/object"
)

func TestLRU_PutGet(t *testing.T) {
	t.Parallel()

	c := cache.NewLRU(1024, false)
	c.Put(1, 12, []byte("tree-bytes"), object.Tree, 7)

	var out []byte

	kind, compressed, ok := c.Get(1, 12, &out)
	require.True(t, ok)
	assert.Equal(t, object.Tree, kind)
	assert.Equal(t, 7, compressed)
	assert.Equal(t, []byte("tree-bytes"), out)
}

func TestLRU_Miss(t *testing.T) {
	t.Parallel()

	c := cache.NewLRU(1024, false)

	out := []byte("untouched")

	_, _, ok := c.Get(9, 99, &out)
	assert.False(t, ok)
	assert.Equal(t, []byte("untouched"), out)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(0), stats.Hits)
}

func TestLRU_CopiesData(t *testing.T) {
	t.Parallel()

	c := cache.NewLRU(1024, false)

	scratch := []byte("original")
	c.Put(1, 0, scratch, object.Blob, 4)
	copy(scratch, "clobber!")

	var out []byte

	_, _, ok := c.Get(1, 0, &out)
	require.True(t, ok)
	assert.Equal(t, []byte("original"), out)
}

func TestLRU_EvictsWithinBudget(t *testing.T) {
	t.Parallel()

	c := cache.NewLRU(64, false)

	payload := bytes.Repeat([]byte{'x'}, 30)
	for offset := uint64(0); offset < 8; offset++ {
		c.Put(1, offset, payload, object.Blob, 10)
	}

	stats := c.Stats()
	assert.LessOrEqual(t, stats.CurrentSize, int64(64))
	assert.LessOrEqual(t, stats.Entries, 2)
}

func TestLRU_OversizedEntrySkipped(t *testing.T) {
	t.Parallel()

	c := cache.NewLRU(16, false)
	c.Put(1, 0, bytes.Repeat([]byte{'x'}, 64), object.Blob, 1)

	var out []byte

	_, _, ok := c.Get(1, 0, &out)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Stats().Entries)
}

func TestLRU_CompressedRoundTrip(t *testing.T) {
	t.Parallel()

	c := cache.NewLRU(1<<20, true)

	// Highly repetitive content so the lz4 block is actually smaller.
	payload := bytes.Repeat([]byte("abcdefgh"), 512)
	c.Put(3, 1234, payload, object.Commit, 99)

	var out []byte

	kind, compressed, ok := c.Get(3, 1234, &out)
	require.True(t, ok)
	assert.Equal(t, object.Commit, kind)
	assert.Equal(t, 99, compressed)
	assert.Equal(t, payload, out)

	// The stored form must account less than the raw payload.
	assert.Less(t, c.Stats().CurrentSize, int64(len(payload)))
}

func TestLRU_Clear(t *testing.T) {
	t.Parallel()

	c := cache.NewLRU(1024, false)
	c.Put(1, 0, []byte("abc"), object.Blob, 3)
	c.Clear()

	var out []byte

	_, _, ok := c.Get(1, 0, &out)
	assert.False(t, ok)
	assert.Equal(t, int64(0), c.Stats().CurrentSize)
}

func TestStatsHitRate(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 0.0, cache.Stats{}.HitRate(), 1e-9)
	assert.InDelta(t, 0.75, cache.Stats{Hits: 3, Misses: 1}.HitRate(), 1e-9)
}

func TestNoop(t *testing.T) {
	t.Parallel()

	c := cache.Noop()
	c.Put(1, 0, []byte("abc"), object.Blob, 3)

	var out []byte

	_, _, ok := c.Get(1, 0, &out)
	assert.False(t, ok)
}

func TestObjectLRU_PutGet(t *testing.T) {
	t.Parallel()

	id := githash.MustParse("aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d")

	c := cache.NewObjectLRU(1024)
	c.Put(id, object.Tree, []byte("entries"))

	var out []byte

	kind, ok := c.Get(id, &out)
	require.True(t, ok)
	assert.Equal(t, object.Tree, kind)
	assert.Equal(t, []byte("entries"), out)
}

func TestObjectLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	first := githash.MustParse("4b825dc642cb6eb9a060e54bf8d69288fbee4904")
	second := githash.MustParse("8d1c8b69c3fce7bea45c73efd06983e3c419a92f")
	third := githash.MustParse("aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d")

	c := cache.NewObjectLRU(20)
	c.Put(first, object.Blob, bytes.Repeat([]byte{'a'}, 8))
	c.Put(second, object.Blob, bytes.Repeat([]byte{'b'}, 8))

	// Touch first so second becomes the eviction candidate.
	var out []byte

	_, ok := c.Get(first, &out)
	require.True(t, ok)

	c.Put(third, object.Blob, bytes.Repeat([]byte{'c'}, 8))

	_, ok = c.Get(first, &out)
	assert.True(t, ok)

	_, ok = c.Get(second, &out)
	assert.False(t, ok)
}

func TestNeverObject(t *testing.T) {
	t.Parallel()

	id := githash.MustParse("4b825dc642cb6eb9a060e54bf8d69288fbee4904")

	c := cache.NeverObject()
	c.Put(id, object.Blob, []byte("abc"))

	var out []byte

	_, ok := c.Get(id, &out)
	assert.False(t, ok)
}
