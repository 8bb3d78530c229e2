package odb_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/packfang/pkg/githash"
	"github.com/Sumatoshi-tech/packfang/pkg/object"
	"github.com/Sumatoshi-tech/packfang/pkg/odb"
	"github.com/Sumatoshi-tech/packfang/pkg/pack/packtest"
)

// writePack stores a built pack pair under the objects directory.
func writePack(t *testing.T, objectsDir, name string, built packtest.Built) {
	t.Helper()

	dir := filepath.Join(objectsDir, "pack")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".pack"), built.PackData, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".idx"), built.IndexData, 0o644))
}

func singleBlobPack(content string) packtest.Built {
	b := packtest.NewBuilder()
	b.AddBase(object.Blob, []byte(content))

	return b.Build()
}

func TestCompoundStore_FindAcrossSources(t *testing.T) {
	t.Parallel()

	objectsDir := t.TempDir()
	packA := singleBlobPack("first packed blob")
	packB := singleBlobPack("second packed blob")
	writePack(t, objectsDir, "pack-aaaa", packA)
	writePack(t, objectsDir, "pack-bbbb", packB)
	looseID := writeLoose(t, objectsDir, object.Blob, []byte("loose fallback blob"))

	store, err := odb.OpenCompoundStore(objectsDir)
	require.NoError(t, err)
	assert.Equal(t, 2, store.NumPacks())

	var buf []byte

	o, err := store.Find(packA.IDs[0], &buf, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("first packed blob"), o.Data)

	o, err = store.Find(packB.IDs[0], &buf, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("second packed blob"), o.Data)

	o, err = store.Find(looseID, &buf, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("loose fallback blob"), o.Data)

	_, err = store.Find(githash.MustParse("00112233445566778899aabbccddeeff00112233"), &buf, nil)

	var notFound *odb.NotFoundError

	require.ErrorAs(t, err, &notFound)
}

func TestCompoundStore_LocationByOid(t *testing.T) {
	t.Parallel()

	objectsDir := t.TempDir()
	packA := singleBlobPack("first packed blob")
	packB := singleBlobPack("second packed blob")

	// ReadDir order decides pack ids, so name A before B.
	writePack(t, objectsDir, "pack-aaaa", packA)
	writePack(t, objectsDir, "pack-bbbb", packB)
	looseID := writeLoose(t, objectsDir, object.Blob, []byte("loose fallback blob"))

	store, err := odb.OpenCompoundStore(objectsDir)
	require.NoError(t, err)

	var buf []byte

	loc, ok := store.LocationByOid(packA.IDs[0], &buf)
	require.True(t, ok)
	assert.Equal(t, uint32(0), loc.PackID)
	assert.Equal(t, packA.Offsets[0], loc.PackOffset)

	loc, ok = store.LocationByOid(packB.IDs[0], &buf)
	require.True(t, ok)
	assert.Equal(t, uint32(1), loc.PackID)

	_, ok = store.LocationByOid(looseID, &buf)
	assert.False(t, ok)
}

func TestCompoundStore_NoPackDirectory(t *testing.T) {
	t.Parallel()

	objectsDir := t.TempDir()
	looseID := writeLoose(t, objectsDir, object.Blob, []byte("only loose"))

	store, err := odb.OpenCompoundStore(objectsDir)
	require.NoError(t, err)
	assert.Zero(t, store.NumPacks())

	var buf []byte

	o, err := store.Find(looseID, &buf, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("only loose"), o.Data)
}

func TestDiscoverObjectsDir(t *testing.T) {
	t.Parallel()

	checkout := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(checkout, ".git", "objects"), 0o755))
	assert.Equal(t, filepath.Join(checkout, ".git", "objects"), odb.DiscoverObjectsDir(checkout))

	bare := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(bare, "objects"), 0o755))
	assert.Equal(t, filepath.Join(bare, "objects"), odb.DiscoverObjectsDir(bare))

	plain := t.TempDir()
	assert.Equal(t, plain, odb.DiscoverObjectsDir(plain))
}
