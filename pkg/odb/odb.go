// Package odb provides read access to git object databases: an in-memory
// store for fixtures, loose object directories, packed stores backed by a
// pack data file and its index, and the compound store layering loose
// objects over any number of packs.
package odb

import (
	"crypto/sha1"
	"fmt"

	"github.com/Sumatoshi-tech/packfang/pkg/cache"
	"github.com/Sumatoshi-tech/packfang/pkg/githash"
	"github.com/Sumatoshi-tech/packfang/pkg/object"
	"github.com/Sumatoshi-tech/packfang/pkg/pack"
)

// Store is a read-only object database.
//
// Find and FindTreeIter write object data into buf, growing it as needed;
// the returned views borrow that memory and stay valid only until the next
// call that reuses the buffer. Implementations are safe for concurrent use
// as long as each goroutine brings its own buffer and decode cache.
type Store interface {
	// Find returns the object with the given id.
	Find(id githash.Hash, buf *[]byte, dc cache.DecodeEntry) (object.Object, error)

	// FindTreeIter returns an entry iterator over the tree with the given id.
	FindTreeIter(id githash.Hash, buf *[]byte, dc cache.DecodeEntry) (object.TreeIter, error)

	// LocationByOid reports where the object with the given id lives, if it
	// is stored in one of the packs behind this store.
	LocationByOid(id githash.Hash, buf *[]byte) (pack.Location, bool)
}

// NotFoundError reports an id that no backing store holds.
type NotFoundError struct {
	ID githash.Hash
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("object %s not found", e.ID)
}

// WrongKindError reports an object whose kind differs from the one the
// caller asked for.
type WrongKindError struct {
	ID   githash.Hash
	Want object.Kind
	Got  object.Kind
}

func (e *WrongKindError) Error() string {
	return fmt.Sprintf("object %s is a %s, want %s", e.ID, e.Got, e.Want)
}

// HashObject computes the content id of an object: the SHA-1 of its loose
// header followed by its data.
func HashObject(kind object.Kind, data []byte) githash.Hash {
	h := sha1.New()
	h.Write(object.LooseHeader(kind, len(data)))
	h.Write(data)

	return githash.FromBytes(h.Sum(nil))
}

func findTreeIter(s Store, id githash.Hash, buf *[]byte, dc cache.DecodeEntry) (object.TreeIter, error) {
	o, err := s.Find(id, buf, dc)
	if err != nil {
		return object.TreeIter{}, err
	}

	it, ok := o.TreeIterator()
	if !ok {
		return object.TreeIter{}, &WrongKindError{ID: id, Want: object.Tree, Got: o.Kind}
	}

	return it, nil
}
