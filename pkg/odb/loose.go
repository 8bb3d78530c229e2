package odb

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/klauspost/compress/zlib"

	"github.com/Sumatoshi-tech/packfang/pkg/cache"
	"github.com/Sumatoshi-tech/packfang/pkg/githash"
	"github.com/Sumatoshi-tech/packfang/pkg/object"
	"github.com/Sumatoshi-tech/packfang/pkg/pack"
)

// ErrLooseCorrupt reports a loose object file whose content does not match
// the "<kind> <size>\x00<data>" layout after inflation.
var ErrLooseCorrupt = errors.New("corrupt loose object")

// LooseStore reads zlib-deflated loose objects from a directory laid out
// as <root>/<2 hex digits>/<38 hex digits>.
type LooseStore struct {
	root string
}

// NewLooseStore returns a store reading loose objects under root.
func NewLooseStore(root string) *LooseStore {
	return &LooseStore{root: root}
}

// Find implements Store.
func (s *LooseStore) Find(id githash.Hash, buf *[]byte, _ cache.DecodeEntry) (object.Object, error) {
	f, err := os.Open(s.objectPath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return object.Object{}, &NotFoundError{ID: id}
		}

		return object.Object{}, fmt.Errorf("open loose object %s: %w", id, err)
	}
	defer f.Close()

	zr, err := zlib.NewReader(f)
	if err != nil {
		return object.Object{}, fmt.Errorf("%w: %s: %v", ErrLooseCorrupt, id, err)
	}
	defer zr.Close()

	b := bytes.NewBuffer((*buf)[:0])
	if _, err := b.ReadFrom(zr); err != nil {
		return object.Object{}, fmt.Errorf("%w: %s: %v", ErrLooseCorrupt, id, err)
	}

	*buf = b.Bytes()

	kind, data, err := splitLooseHeader(*buf)
	if err != nil {
		return object.Object{}, fmt.Errorf("%w: %s: %v", ErrLooseCorrupt, id, err)
	}

	// Move the payload to the front so *buf holds exactly the object data,
	// like every other store.
	n := copy(*buf, data)
	*buf = (*buf)[:n]

	return object.Object{Kind: kind, Data: *buf}, nil
}

// FindTreeIter implements Store.
func (s *LooseStore) FindTreeIter(id githash.Hash, buf *[]byte, dc cache.DecodeEntry) (object.TreeIter, error) {
	return findTreeIter(s, id, buf, dc)
}

// LocationByOid implements Store. Loose objects never live in a pack.
func (s *LooseStore) LocationByOid(githash.Hash, *[]byte) (pack.Location, bool) {
	return pack.Location{}, false
}

func (s *LooseStore) objectPath(id githash.Hash) string {
	hex := id.String()

	return filepath.Join(s.root, hex[:2], hex[2:])
}

// splitLooseHeader separates the "<kind> <size>\x00" prefix from the object
// data that follows it and validates the advertised size.
func splitLooseHeader(content []byte) (object.Kind, []byte, error) {
	nul := bytes.IndexByte(content, 0)
	if nul < 0 {
		return 0, nil, errors.New("missing header terminator")
	}

	header, data := content[:nul], content[nul+1:]

	name, sizeText, ok := bytes.Cut(header, []byte(" "))
	if !ok {
		return 0, nil, errors.New("missing size in header")
	}

	kind, err := object.ParseKind(name)
	if err != nil {
		return 0, nil, err
	}

	size, err := strconv.Atoi(string(sizeText))
	if err != nil || size < 0 {
		return 0, nil, fmt.Errorf("bad size %q in header", sizeText)
	}

	if size != len(data) {
		return 0, nil, fmt.Errorf("header says %d bytes, found %d", size, len(data))
	}

	return kind, data, nil
}
