package odb_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/packfang/pkg/githash"
	"github.com/Sumatoshi-tech/packfang/pkg/object"
	"github.com/Sumatoshi-tech/packfang/pkg/odb"
)

func rawTreeEntry(mode, name string, id githash.Hash) []byte {
	raw := []byte(mode + " " + name)
	raw = append(raw, 0)
	raw = append(raw, id[:]...)

	return raw
}

func TestHashObject_KnownIDs(t *testing.T) {
	t.Parallel()

	// The empty blob and the empty tree hash to well-known ids.
	assert.Equal(t, githash.MustParse("e69de29bb2d1d6434b8b29ae775ad8c2e48c5391"),
		odb.HashObject(object.Blob, nil))
	assert.Equal(t, githash.MustParse("4b825dc642cb6eb9a060e54bf8d69288fbee4904"),
		odb.HashObject(object.Tree, nil))
}

func TestMemoryStore_FindRoundTrip(t *testing.T) {
	t.Parallel()

	store := odb.NewMemoryStore()
	id := store.Add(object.Blob, []byte("some file content"))

	var buf []byte

	o, err := store.Find(id, &buf, nil)
	require.NoError(t, err)
	assert.Equal(t, object.Blob, o.Kind)
	assert.Equal(t, []byte("some file content"), o.Data)
}

func TestMemoryStore_FindMissing(t *testing.T) {
	t.Parallel()

	store := odb.NewMemoryStore()
	missing := githash.MustParse("00112233445566778899aabbccddeeff00112233")

	var buf []byte

	_, err := store.Find(missing, &buf, nil)

	var notFound *odb.NotFoundError

	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, missing, notFound.ID)
}

func TestMemoryStore_FindTreeIter(t *testing.T) {
	t.Parallel()

	store := odb.NewMemoryStore()
	blobID := store.Add(object.Blob, []byte("leaf"))
	treeID := store.Add(object.Tree, rawTreeEntry("100644", "leaf.txt", blobID))

	var buf []byte

	it, err := store.FindTreeIter(treeID, &buf, nil)
	require.NoError(t, err)

	entry, ok, err := it.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("leaf.txt"), entry.Name)
	assert.Equal(t, blobID, entry.ID)

	_, ok, err = it.Next()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_FindTreeIter_WrongKind(t *testing.T) {
	t.Parallel()

	store := odb.NewMemoryStore()
	blobID := store.Add(object.Blob, []byte("not a tree"))

	var buf []byte

	_, err := store.FindTreeIter(blobID, &buf, nil)

	var wrongKind *odb.WrongKindError

	require.ErrorAs(t, err, &wrongKind)
	assert.Equal(t, blobID, wrongKind.ID)
	assert.Equal(t, object.Tree, wrongKind.Want)
	assert.Equal(t, object.Blob, wrongKind.Got)
}

func TestMemoryStore_LocationByOid(t *testing.T) {
	t.Parallel()

	store := odb.NewMemoryStore()
	id := store.Add(object.Blob, []byte("x"))

	var buf []byte

	_, ok := store.LocationByOid(id, &buf)
	assert.False(t, ok)
}
