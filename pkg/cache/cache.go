// Package cache provides the decode caches used by the pack engines: a
// per-worker cache for decoded pack entries keyed by pack offset, and a
// byte-budgeted whole-object cache for the tree-diff path. Instances are
// owned by a single worker and are not safe for concurrent use.
package cache

import (
	"github.com/Sumatoshi-tech/packfang/pkg/githash"
	"github.com/Sumatoshi-tech/packfang/pkg/object"
)

// DecodeEntry caches fully decoded pack entries keyed by (pack id, pack
// offset). The pack engines consult it while chasing delta chains and store
// each fully resolved entry back into it.
type DecodeEntry interface {
	// Put stores a decoded entry. data is copied; compressedSize is the
	// entry's on-disk compressed size, returned verbatim by Get.
	Put(packID uint32, offset uint64, data []byte, kind object.Kind, compressedSize int)
	// Get overwrites *out with the cached entry's data and reports its kind
	// and compressed size. The bool result is false on a miss, leaving *out
	// untouched.
	Get(packID uint32, offset uint64, out *[]byte) (object.Kind, int, bool)
}

// Noop returns a DecodeEntry that stores nothing and never hits.
func Noop() DecodeEntry {
	return noopDecode{}
}

type noopDecode struct{}

func (noopDecode) Put(uint32, uint64, []byte, object.Kind, int) {}

func (noopDecode) Get(uint32, uint64, *[]byte) (object.Kind, int, bool) {
	return 0, 0, false
}

// Object caches whole decoded objects by id. The tree-diff expansion path
// uses it to avoid re-reading trees shared between consecutive commits.
type Object interface {
	// Put stores an object's data under its id. data is copied.
	Put(id githash.Hash, kind object.Kind, data []byte)
	// Get overwrites *out with the cached object's data and reports its
	// kind. The bool result is false on a miss, leaving *out untouched.
	Get(id githash.Hash, out *[]byte) (object.Kind, bool)
}

// NeverObject returns an Object cache that stores nothing and never hits.
func NeverObject() Object {
	return noopObject{}
}

type noopObject struct{}

func (noopObject) Put(githash.Hash, object.Kind, []byte) {}

func (noopObject) Get(githash.Hash, *[]byte) (object.Kind, bool) {
	return 0, false
}
