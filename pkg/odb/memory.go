package odb

import (
	"slices"

	"github.com/Sumatoshi-tech/packfang/pkg/cache"
	"github.com/Sumatoshi-tech/packfang/pkg/githash"
	"github.com/Sumatoshi-tech/packfang/pkg/object"
	"github.com/Sumatoshi-tech/packfang/pkg/pack"
)

// MemoryStore keeps objects in a map. It backs tests and fixtures and is
// safe for concurrent readers once populated.
type MemoryStore struct {
	objects map[githash.Hash]memoryObject
}

type memoryObject struct {
	kind object.Kind
	data []byte
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: map[githash.Hash]memoryObject{}}
}

// Add stores a copy of data under its content id and returns that id.
func (s *MemoryStore) Add(kind object.Kind, data []byte) githash.Hash {
	id := HashObject(kind, data)
	s.objects[id] = memoryObject{kind: kind, data: slices.Clone(data)}

	return id
}

// Find implements Store.
func (s *MemoryStore) Find(id githash.Hash, buf *[]byte, _ cache.DecodeEntry) (object.Object, error) {
	stored, ok := s.objects[id]
	if !ok {
		return object.Object{}, &NotFoundError{ID: id}
	}

	*buf = append((*buf)[:0], stored.data...)

	return object.Object{Kind: stored.kind, Data: *buf}, nil
}

// FindTreeIter implements Store.
func (s *MemoryStore) FindTreeIter(id githash.Hash, buf *[]byte, dc cache.DecodeEntry) (object.TreeIter, error) {
	return findTreeIter(s, id, buf, dc)
}

// LocationByOid implements Store. Memory objects never live in a pack.
func (s *MemoryStore) LocationByOid(githash.Hash, *[]byte) (pack.Location, bool) {
	return pack.Location{}, false
}
