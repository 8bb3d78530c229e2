package odb

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Sumatoshi-tech/packfang/pkg/cache"
	"github.com/Sumatoshi-tech/packfang/pkg/githash"
	"github.com/Sumatoshi-tech/packfang/pkg/object"
	"github.com/Sumatoshi-tech/packfang/pkg/pack"
)

// PackedStore serves objects from one pack data file through its index.
type PackedStore struct {
	idx  *pack.Index
	data *pack.Data

	// offsets holds every entry offset in ascending order, so an entry's
	// full span runs to its successor or to the pack trailer.
	offsets []uint64
}

// NewPackedStore combines a parsed index and pack data file into a store.
func NewPackedStore(idx *pack.Index, data *pack.Data) *PackedStore {
	offsets := make([]uint64, idx.NumObjects())
	for i := range offsets {
		offsets[i] = idx.Offset(uint32(i))
	}

	slices.Sort(offsets)

	return &PackedStore{idx: idx, data: data, offsets: offsets}
}

// OpenPackedStore opens the pack pair at path, which may name the ".pack"
// file, the ".idx" file, or their shared prefix. id becomes the pack's
// cache identity.
func OpenPackedStore(path string, id uint32) (*PackedStore, error) {
	idxPath, dataPath := pairPaths(path)

	idx, err := pack.OpenIndex(idxPath)
	if err != nil {
		return nil, fmt.Errorf("open pack index %s: %w", idxPath, err)
	}

	data, err := pack.OpenData(dataPath, id)
	if err != nil {
		return nil, fmt.Errorf("open pack data %s: %w", dataPath, err)
	}

	return NewPackedStore(idx, data), nil
}

func pairPaths(path string) (idxPath, dataPath string) {
	switch {
	case strings.HasSuffix(path, ".idx"):
		return path, strings.TrimSuffix(path, ".idx") + ".pack"
	case strings.HasSuffix(path, ".pack"):
		return strings.TrimSuffix(path, ".pack") + ".idx", path
	default:
		return path + ".idx", path + ".pack"
	}
}

// Index returns the pack index backing the store.
func (s *PackedStore) Index() *pack.Index {
	return s.idx
}

// Data returns the pack data file backing the store.
func (s *PackedStore) Data() *pack.Data {
	return s.data
}

// Find implements Store.
func (s *PackedStore) Find(id githash.Hash, buf *[]byte, dc cache.DecodeEntry) (object.Object, error) {
	pos, ok := s.idx.Lookup(id)
	if !ok {
		return object.Object{}, &NotFoundError{ID: id}
	}

	entry, err := s.data.EntryAt(s.idx.Offset(pos))
	if err != nil {
		return object.Object{}, err
	}

	stats, err := s.data.DecodeEntry(entry, buf, s.resolveBase, dc)
	if err != nil {
		return object.Object{}, err
	}

	return object.Object{Kind: stats.Kind, Data: *buf}, nil
}

// FindTreeIter implements Store.
func (s *PackedStore) FindTreeIter(id githash.Hash, buf *[]byte, dc cache.DecodeEntry) (object.TreeIter, error) {
	return findTreeIter(s, id, buf, dc)
}

// LocationByOid implements Store.
func (s *PackedStore) LocationByOid(id githash.Hash, _ *[]byte) (pack.Location, bool) {
	pos, ok := s.idx.Lookup(id)
	if !ok {
		return pack.Location{}, false
	}

	offset := s.idx.Offset(pos)

	return pack.Location{
		PackID:     s.data.ID,
		PackOffset: offset,
		EntrySize:  s.entrySpan(offset),
	}, true
}

// resolveBase locates ref-delta bases among the pack's own entries.
func (s *PackedStore) resolveBase(id githash.Hash, _ *[]byte) (pack.ResolvedBase, bool) {
	pos, ok := s.idx.Lookup(id)
	if !ok {
		return pack.ResolvedBase{}, false
	}

	entry, err := s.data.EntryAt(s.idx.Offset(pos))
	if err != nil {
		return pack.ResolvedBase{}, false
	}

	return pack.ResolvedBase{InPack: true, Entry: entry}, true
}

func (s *PackedStore) entrySpan(offset uint64) uint64 {
	next, _ := slices.BinarySearch(s.offsets, offset+1)
	if next < len(s.offsets) {
		return s.offsets[next] - offset
	}

	return s.data.Len() - githash.Size - offset
}
