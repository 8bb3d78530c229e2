package revlist_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/packfang/pkg/githash"
	"github.com/Sumatoshi-tech/packfang/pkg/object"
	"github.com/Sumatoshi-tech/packfang/pkg/odb"
	"github.com/Sumatoshi-tech/packfang/pkg/revlist"
)

func rawCommit(treeID githash.Hash, parents []githash.Hash, when int64) []byte {
	raw := fmt.Appendf(nil, "tree %s\n", treeID)
	for _, parent := range parents {
		raw = fmt.Appendf(raw, "parent %s\n", parent)
	}

	raw = fmt.Appendf(raw, "author Ada <ada@example.com> %d +0000\n", when)
	raw = fmt.Appendf(raw, "committer Ada <ada@example.com> %d +0000\n\nchange\n", when)

	return raw
}

func rawTag(target githash.Hash, name string) []byte {
	raw := fmt.Appendf(nil, "object %s\ntype commit\ntag %s\n", target, name)
	raw = append(raw, "tagger Ada <ada@example.com> 1700000150 +0000\n\nrelease\n"...)

	return raw
}

// collect drains a walk into its infos, stopping at the first error.
func collect(walk func(func(revlist.Info, error) bool)) ([]revlist.Info, error) {
	var out []revlist.Info

	for info, err := range walk {
		if err != nil {
			return out, err
		}

		out = append(out, info)
	}

	return out, nil
}

func walkIDs(infos []revlist.Info) []githash.Hash {
	out := make([]githash.Hash, len(infos))
	for i, info := range infos {
		out[i] = info.ID
	}

	return out
}

func TestAncestors_LinearChain(t *testing.T) {
	t.Parallel()

	store := odb.NewMemoryStore()
	treeID := store.Add(object.Tree, nil)
	c1 := store.Add(object.Commit, rawCommit(treeID, nil, 100))
	c2 := store.Add(object.Commit, rawCommit(treeID, []githash.Hash{c1}, 200))
	c3 := store.Add(object.Commit, rawCommit(treeID, []githash.Hash{c2}, 300))

	infos, err := collect(revlist.Ancestors(store, nil, c3))
	require.NoError(t, err)

	assert.Equal(t, []githash.Hash{c3, c2, c1}, walkIDs(infos))
	assert.Equal(t, int64(300), infos[0].CommitTime)
	assert.Equal(t, []githash.Hash{c2}, infos[0].ParentIDs)
	assert.Equal(t, int64(100), infos[2].CommitTime)
	assert.Empty(t, infos[2].ParentIDs)
}

func TestAncestors_NewestFirstAcrossBranches(t *testing.T) {
	t.Parallel()

	store := odb.NewMemoryStore()
	treeID := store.Add(object.Tree, nil)
	root := store.Add(object.Commit, rawCommit(treeID, nil, 100))
	older := store.Add(object.Commit, rawCommit(treeID, []githash.Hash{root}, 200))
	newer := store.Add(object.Commit, rawCommit(treeID, []githash.Hash{root}, 300))
	merge := store.Add(object.Commit, rawCommit(treeID, []githash.Hash{older, newer}, 400))

	infos, err := collect(revlist.Ancestors(store, nil, merge))
	require.NoError(t, err)

	// Commit times outrank parent order, and the shared root surfaces once.
	assert.Equal(t, []githash.Hash{merge, newer, older, root}, walkIDs(infos))
}

func TestAncestors_EqualTimesKeepDiscoveryOrder(t *testing.T) {
	t.Parallel()

	store := odb.NewMemoryStore()
	treeID := store.Add(object.Tree, nil)
	root := store.Add(object.Commit, rawCommit(treeID, nil, 100))
	first := store.Add(object.Commit, rawCommit(treeID, []githash.Hash{root}, 150))

	// Same timestamps, distinct content: extend the message so the ids differ.
	secondRaw := append(rawCommit(treeID, []githash.Hash{root}, 150), "on the other branch\n"...)
	second := store.Add(object.Commit, secondRaw)
	merge := store.Add(object.Commit, rawCommit(treeID, []githash.Hash{first, second}, 200))

	infos, err := collect(revlist.Ancestors(store, nil, merge))
	require.NoError(t, err)

	assert.Equal(t, []githash.Hash{merge, first, second, root}, walkIDs(infos))
}

func TestAncestors_PeelsAnnotatedTag(t *testing.T) {
	t.Parallel()

	store := odb.NewMemoryStore()
	treeID := store.Add(object.Tree, nil)
	c1 := store.Add(object.Commit, rawCommit(treeID, nil, 100))
	c2 := store.Add(object.Commit, rawCommit(treeID, []githash.Hash{c1}, 200))
	tag := store.Add(object.Tag, rawTag(c2, "v1.0"))

	infos, err := collect(revlist.Ancestors(store, nil, tag))
	require.NoError(t, err)

	assert.Equal(t, []githash.Hash{c2, c1}, walkIDs(infos))
}

func TestAncestors_RejectsNonCommitTip(t *testing.T) {
	t.Parallel()

	store := odb.NewMemoryStore()
	blobID := store.Add(object.Blob, []byte("not a commit\n"))

	_, err := collect(revlist.Ancestors(store, nil, blobID))

	var wrongKind *odb.WrongKindError

	require.ErrorAs(t, err, &wrongKind)
	assert.Equal(t, object.Commit, wrongKind.Want)
	assert.Equal(t, object.Blob, wrongKind.Got)
}

func TestAncestors_MissingTipFails(t *testing.T) {
	t.Parallel()

	store := odb.NewMemoryStore()
	missing := githash.MustParse("00112233445566778899aabbccddeeff00112233")

	infos, err := collect(revlist.Ancestors(store, nil, missing))
	assert.Empty(t, infos)

	var notFound *odb.NotFoundError

	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, missing, notFound.ID)
}

func TestAncestors_MissingParentSurfacesMidWalk(t *testing.T) {
	t.Parallel()

	store := odb.NewMemoryStore()
	treeID := store.Add(object.Tree, nil)
	missing := githash.MustParse("00112233445566778899aabbccddeeff00112233")
	head := store.Add(object.Commit, rawCommit(treeID, []githash.Hash{missing}, 200))

	infos, err := collect(revlist.Ancestors(store, nil, head))

	assert.Equal(t, []githash.Hash{head}, walkIDs(infos))

	var notFound *odb.NotFoundError

	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, missing, notFound.ID)
}

func TestAncestors_MalformedCommitFails(t *testing.T) {
	t.Parallel()

	store := odb.NewMemoryStore()
	treeID := store.Add(object.Tree, nil)
	bad := store.Add(object.Commit, fmt.Appendf(nil, "tree %s\n\nno committer here\n", treeID))

	_, err := collect(revlist.Ancestors(store, nil, bad))

	var decodeErr *object.DecodeError

	require.ErrorAs(t, err, &decodeErr)
}

func TestIDs_AdaptsWalk(t *testing.T) {
	t.Parallel()

	store := odb.NewMemoryStore()
	treeID := store.Add(object.Tree, nil)
	c1 := store.Add(object.Commit, rawCommit(treeID, nil, 100))
	c2 := store.Add(object.Commit, rawCommit(treeID, []githash.Hash{c1}, 200))

	var ids []githash.Hash

	for id, err := range revlist.IDs(revlist.Ancestors(store, nil, c2)) {
		require.NoError(t, err)

		ids = append(ids, id)
	}

	assert.Equal(t, []githash.Hash{c2, c1}, ids)
}

func TestIDs_PropagatesError(t *testing.T) {
	t.Parallel()

	store := odb.NewMemoryStore()
	missing := githash.MustParse("00112233445566778899aabbccddeeff00112233")

	var last error

	for _, err := range revlist.IDs(revlist.Ancestors(store, nil, missing)) {
		last = err
	}

	var notFound *odb.NotFoundError

	require.ErrorAs(t, last, &notFound)
}
