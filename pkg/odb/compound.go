package odb

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Sumatoshi-tech/packfang/pkg/cache"
	"github.com/Sumatoshi-tech/packfang/pkg/githash"
	"github.com/Sumatoshi-tech/packfang/pkg/object"
	"github.com/Sumatoshi-tech/packfang/pkg/pack"
)

// CompoundStore layers a loose object directory over the packs below it,
// mirroring an objects directory on disk. Packs are consulted first.
type CompoundStore struct {
	loose *LooseStore
	packs []*PackedStore
}

// OpenCompoundStore opens the objects directory at objectsDir together
// with every pack pair under its "pack" subdirectory. Pack ids follow the
// index filename order.
func OpenCompoundStore(objectsDir string) (*CompoundStore, error) {
	entries, err := os.ReadDir(filepath.Join(objectsDir, "pack"))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read pack directory: %w", err)
	}

	store := &CompoundStore{loose: NewLooseStore(objectsDir)}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".idx") {
			continue
		}

		packed, err := OpenPackedStore(filepath.Join(objectsDir, "pack", entry.Name()), uint32(len(store.packs)))
		if err != nil {
			return nil, fmt.Errorf("open pack %s: %w", entry.Name(), err)
		}

		store.packs = append(store.packs, packed)
	}

	return store, nil
}

// DiscoverObjectsDir resolves the objects directory for a repository path,
// accepting working-tree checkouts, bare repositories and plain objects
// directories.
func DiscoverObjectsDir(repoDir string) string {
	for _, candidate := range []string{
		filepath.Join(repoDir, ".git", "objects"),
		filepath.Join(repoDir, "objects"),
	} {
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
	}

	return repoDir
}

// NumPacks returns how many pack pairs the store opened.
func (s *CompoundStore) NumPacks() int {
	return len(s.packs)
}

// Find implements Store.
func (s *CompoundStore) Find(id githash.Hash, buf *[]byte, dc cache.DecodeEntry) (object.Object, error) {
	for _, packed := range s.packs {
		o, err := packed.Find(id, buf, dc)
		if err == nil {
			return o, nil
		}

		var notFound *NotFoundError
		if !errors.As(err, &notFound) {
			return object.Object{}, err
		}
	}

	return s.loose.Find(id, buf, dc)
}

// FindTreeIter implements Store.
func (s *CompoundStore) FindTreeIter(id githash.Hash, buf *[]byte, dc cache.DecodeEntry) (object.TreeIter, error) {
	return findTreeIter(s, id, buf, dc)
}

// LocationByOid implements Store.
func (s *CompoundStore) LocationByOid(id githash.Hash, buf *[]byte) (pack.Location, bool) {
	for _, packed := range s.packs {
		if loc, ok := packed.LocationByOid(id, buf); ok {
			return loc, true
		}
	}

	return pack.Location{}, false
}
