package pack

import (
	"cmp"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/Sumatoshi-tech/packfang/pkg/githash"
)

const (
	indexMagic   = "\xfftOc"
	indexVersion = 2

	fanoutCount     = 256
	indexHeaderLen  = 8
	fanoutLen       = fanoutCount * 4
	crcLen          = 4
	offset32Len     = 4
	offset64Len     = 8
	largeOffsetFlag = 1 << 31

	// minIndexLen is an index with zero objects: header, fanout and the two
	// trailing checksums.
	minIndexLen = indexHeaderLen + fanoutLen + 2*githash.Size
)

// ErrIndexCorrupt indicates an index file whose layout does not add up.
var ErrIndexCorrupt = errors.New("pack: corrupt index file")

// UnsupportedIndexVersionError reports an index format this reader does not
// handle. Version 1 files carry no magic and are recognized by its absence.
type UnsupportedIndexVersionError struct {
	Version uint32
}

// Error implements the error interface.
func (e *UnsupportedIndexVersionError) Error() string {
	return fmt.Sprintf("pack: unsupported index version %d", e.Version)
}

// IndexEntry is one object as recorded in a pack index.
type IndexEntry struct {
	ID     githash.Hash
	Offset uint64
	CRC    uint32
}

// Index is a parsed version 2 pack index. It keeps the raw file bytes and
// reads all tables directly out of them.
type Index struct {
	raw        []byte
	fanout     [fanoutCount]uint32
	numObjects uint32
	oidsAt     int
	crcsAt     int
	ofs32At    int
	ofs64At    int
	ofs64Count uint32
}

// NewIndex parses a version 2 pack index from data, which the returned Index
// retains and must not be mutated afterwards.
func NewIndex(data []byte) (*Index, error) {
	if len(data) < len(indexMagic) {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the magic", ErrIndexCorrupt, len(data))
	}

	if string(data[:len(indexMagic)]) != indexMagic {
		// Version 1 files start with fanout data instead of a magic.
		return nil, &UnsupportedIndexVersionError{Version: 1}
	}

	if len(data) < minIndexLen {
		return nil, fmt.Errorf("%w: %d bytes is shorter than an empty index", ErrIndexCorrupt, len(data))
	}

	if v := binary.BigEndian.Uint32(data[4:8]); v != indexVersion {
		return nil, &UnsupportedIndexVersionError{Version: v}
	}

	idx := &Index{raw: data}

	for i := range idx.fanout {
		idx.fanout[i] = binary.BigEndian.Uint32(data[indexHeaderLen+i*4:])

		if i > 0 && idx.fanout[i] < idx.fanout[i-1] {
			return nil, fmt.Errorf("%w: fanout bucket %d decreases", ErrIndexCorrupt, i)
		}
	}

	idx.numObjects = idx.fanout[fanoutCount-1]

	n := int(idx.numObjects)
	idx.oidsAt = indexHeaderLen + fanoutLen
	idx.crcsAt = idx.oidsAt + n*githash.Size
	idx.ofs32At = idx.crcsAt + n*crcLen
	idx.ofs64At = idx.ofs32At + n*offset32Len

	rest := len(data) - idx.ofs64At - 2*githash.Size
	if rest < 0 || rest%offset64Len != 0 {
		return nil, fmt.Errorf("%w: tables do not fit %d objects", ErrIndexCorrupt, idx.numObjects)
	}

	idx.ofs64Count = uint32(rest / offset64Len)

	// Flagged 32-bit offsets must land inside the 64-bit table or every
	// later Offset call would read past it.
	for i := range uint32(n) {
		v := binary.BigEndian.Uint32(data[idx.ofs32At+int(i)*offset32Len:])
		if v&largeOffsetFlag != 0 && v&^uint32(largeOffsetFlag) >= idx.ofs64Count {
			return nil, fmt.Errorf("%w: entry %d points past the large offset table", ErrIndexCorrupt, i)
		}
	}

	return idx, nil
}

// OpenIndex reads and parses the pack index file at path.
func OpenIndex(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}

	return NewIndex(data)
}

// NumObjects returns how many objects the index records.
func (idx *Index) NumObjects() uint32 {
	return idx.numObjects
}

// Oid returns the object id at position i in oid-sorted order.
// i must be below NumObjects.
func (idx *Index) Oid(i uint32) githash.Hash {
	at := idx.oidsAt + int(i)*githash.Size

	return githash.FromBytes(idx.raw[at : at+githash.Size])
}

// CRC returns the crc32 recorded for the entry at position i.
// i must be below NumObjects.
func (idx *Index) CRC(i uint32) uint32 {
	return binary.BigEndian.Uint32(idx.raw[idx.crcsAt+int(i)*crcLen:])
}

// Offset returns the pack data offset of the entry at position i, following
// the indirection through the 64-bit table for large packs.
// i must be below NumObjects.
func (idx *Index) Offset(i uint32) uint64 {
	v := binary.BigEndian.Uint32(idx.raw[idx.ofs32At+int(i)*offset32Len:])

	if v&largeOffsetFlag == 0 {
		return uint64(v)
	}

	at := idx.ofs64At + int(v&^uint32(largeOffsetFlag))*offset64Len

	return binary.BigEndian.Uint64(idx.raw[at:])
}

// Lookup returns the sorted position of id, or false when the index does not
// contain it.
func (idx *Index) Lookup(id githash.Hash) (uint32, bool) {
	lo := uint32(0)
	if id[0] > 0 {
		lo = idx.fanout[id[0]-1]
	}

	hi := idx.fanout[id[0]]

	for lo < hi {
		mid := lo + (hi-lo)/2

		switch c := idx.Oid(mid).Compare(id); {
		case c == 0:
			return mid, true
		case c < 0:
			lo = mid + 1
		default:
			hi = mid
		}
	}

	return 0, false
}

// EntriesSortedByOffset returns every recorded entry ordered by pack offset
// ascending, the order in which a pack file stores them.
func (idx *Index) EntriesSortedByOffset() []IndexEntry {
	entries := make([]IndexEntry, idx.numObjects)

	for i := range entries {
		u := uint32(i)
		entries[i] = IndexEntry{ID: idx.Oid(u), Offset: idx.Offset(u), CRC: idx.CRC(u)}
	}

	slices.SortFunc(entries, func(a, b IndexEntry) int {
		return cmp.Compare(a.Offset, b.Offset)
	})

	return entries
}

// PackChecksum returns the checksum of the pack data file this index
// describes.
func (idx *Index) PackChecksum() githash.Hash {
	return githash.FromBytes(idx.raw[len(idx.raw)-2*githash.Size:])
}

// IndexChecksum returns the trailing checksum of the index file itself. It
// identifies the pack-index pair.
func (idx *Index) IndexChecksum() githash.Hash {
	return githash.FromBytes(idx.raw[len(idx.raw)-githash.Size:])
}
