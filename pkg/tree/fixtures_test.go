package tree_test

import (
	"fmt"

	"github.com/Sumatoshi-tech/packfang/pkg/githash"
	"github.com/Sumatoshi-tech/packfang/pkg/object"
	"github.com/Sumatoshi-tech/packfang/pkg/tree"
)

// fakeID builds a recognizable id from a single byte.
func fakeID(b byte) githash.Hash {
	var h githash.Hash
	for i := range h {
		h[i] = b
	}

	return h
}

type entrySpec struct {
	mode object.EntryMode
	name string
	id   githash.Hash
}

// rawTree encodes entries in wire format. Entries must already follow tree
// ordering (directories compare with a trailing slash).
func rawTree(entries ...entrySpec) []byte {
	var raw []byte
	for _, e := range entries {
		raw = append(raw, fmt.Sprintf("%o %s", uint32(e.mode), e.name)...)
		raw = append(raw, 0)
		raw = append(raw, e.id[:]...)
	}

	return raw
}

// storeFind serves trees from an in-memory map.
func storeFind(store map[githash.Hash][]byte) tree.FindTree {
	return func(id githash.Hash, buf *[]byte) (object.TreeIter, bool) {
		data, ok := store[id]
		if !ok {
			return object.TreeIter{}, false
		}

		*buf = append((*buf)[:0], data...)

		return object.NewTreeIter(*buf), true
	}
}

// blob and subtree ids shared by the walk and diff tests.
var (
	blobA  = fakeID(0xa1)
	blobB  = fakeID(0xb2)
	blobC  = fakeID(0xc3)
	blobB2 = fakeID(0xb9)
	dirID  = fakeID(0xd1)
	dirID2 = fakeID(0xd2)
	subID  = fakeID(0xe1)
	linkID = fakeID(0xf1)
)

// nestedFixture builds root{a.txt, dir/{b.txt, sub/{c.txt}}} and returns the
// root tree bytes plus the tree store.
func nestedFixture() ([]byte, map[githash.Hash][]byte) {
	sub := rawTree(entrySpec{object.ModeBlob, "c.txt", blobC})
	dir := rawTree(
		entrySpec{object.ModeBlob, "b.txt", blobB},
		entrySpec{object.ModeTree, "sub", subID},
	)
	root := rawTree(
		entrySpec{object.ModeBlob, "a.txt", blobA},
		entrySpec{object.ModeTree, "dir", dirID},
	)

	return root, map[githash.Hash][]byte{
		dirID: dir,
		subID: sub,
	}
}
