// Package pack reads, decodes and verifies pack data files and their
// version 2 indexes. Entries are decoded by random access, with delta chains
// resolved through a per-worker decode cache, and whole packs are checked by
// the concurrent Traverse entry point.
package pack

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"

	"github.com/klauspost/compress/zlib"

	"github.com/Sumatoshi-tech/packfang/pkg/cache"
	"github.com/Sumatoshi-tech/packfang/pkg/githash"
	"github.com/Sumatoshi-tech/packfang/pkg/object"
	"github.com/Sumatoshi-tech/packfang/pkg/safeconv"
)

const (
	dataMagic     = "PACK"
	dataHeaderLen = 12
	trailerLen    = githash.Size
	minDataLen    = dataHeaderLen + trailerLen

	// zlibMaxRatio bounds how far a deflate stream can expand, which caps
	// plausible size claims in entry headers before anything is allocated.
	zlibMaxRatio = 1032

	// maxChainLen bounds delta chain walks. Packs are written with depths
	// far below this, so hitting it means a corrupt or hostile file,
	// including ref-delta cycles that would otherwise never terminate.
	maxChainLen = 4096
)

// ErrDataCorrupt indicates a pack data file whose framing is broken.
var ErrDataCorrupt = errors.New("pack: corrupt data file")

// UnsupportedPackVersionError reports a pack data version other than 2 or 3.
type UnsupportedPackVersionError struct {
	Version uint32
}

// Error implements the error interface.
func (e *UnsupportedPackVersionError) Error() string {
	return fmt.Sprintf("pack: unsupported pack version %d", e.Version)
}

// CorruptEntryError reports a malformed entry header at a pack offset.
type CorruptEntryError struct {
	Offset uint64
	Reason string
}

// Error implements the error interface.
func (e *CorruptEntryError) Error() string {
	return fmt.Sprintf("pack: corrupt entry at offset %d: %s", e.Offset, e.Reason)
}

// DecodeEntryError wraps any failure while decoding a single entry, so
// traversal policies can tell decode problems from verification mismatches.
type DecodeEntryError struct {
	Offset uint64
	Err    error
}

// Error implements the error interface.
func (e *DecodeEntryError) Error() string {
	return fmt.Sprintf("pack: decode entry at offset %d: %v", e.Offset, e.Err)
}

// Unwrap returns the underlying decode failure.
func (e *DecodeEntryError) Unwrap() error {
	return e.Err
}

// DeltaBaseUnresolvedError reports a ref-delta whose base object cannot be
// found in the pack or through the resolver.
type DeltaBaseUnresolvedError struct {
	ID githash.Hash
}

// Error implements the error interface.
func (e *DeltaBaseUnresolvedError) Error() string {
	return fmt.Sprintf("pack: delta base %s cannot be found", e.ID)
}

// EntryType is the on-disk object type tag of a pack entry.
type EntryType byte

// Pack entry type tags as stored in the entry header.
const (
	EntryCommit   EntryType = 1
	EntryTree     EntryType = 2
	EntryBlob     EntryType = 3
	EntryTag      EntryType = 4
	EntryOfsDelta EntryType = 6
	EntryRefDelta EntryType = 7
)

// IsDelta reports whether the entry stores a delta against a base object.
func (t EntryType) IsDelta() bool {
	return t == EntryOfsDelta || t == EntryRefDelta
}

// Kind maps a base entry type to its object kind. Delta types have no kind
// of their own.
func (t EntryType) Kind() (object.Kind, bool) {
	switch t {
	case EntryCommit:
		return object.Commit, true
	case EntryTree:
		return object.Tree, true
	case EntryBlob:
		return object.Blob, true
	case EntryTag:
		return object.Tag, true
	default:
		return 0, false
	}
}

// Entry is a parsed entry header from a pack data file.
type Entry struct {
	// Offset is where the header starts in the file.
	Offset uint64
	// DataOffset is where the entry's zlib stream starts.
	DataOffset uint64
	// DecompressedSize is the advertised size of the inflated payload.
	DecompressedSize uint64
	// BaseOffset is the absolute offset of the base entry for ofs-deltas.
	BaseOffset uint64
	// BaseID names the base object for ref-deltas.
	BaseID githash.Hash
	// Type tags the payload.
	Type EntryType
}

// DecodeStats describes one fully decoded entry.
type DecodeStats struct {
	// Kind is the type of the reconstructed object.
	Kind object.Kind
	// NumDeltas is the delta chain length resolved for this entry. A decode
	// served straight from the cache reports zero.
	NumDeltas uint32
	// DecompressedSize is the entry's own inflated payload size, which for a
	// delta entry is the delta payload rather than the final object.
	DecompressedSize uint64
	// CompressedSize is the exact zlib stream length of the entry itself.
	CompressedSize uint64
	// ObjectSize is the size of the reconstructed object.
	ObjectSize uint64
}

// ResolvedBase is the result of resolving a ref-delta base object.
type ResolvedBase struct {
	// InPack selects Entry; otherwise the object bytes were written to the
	// buffer handed to the resolver and Kind tags them.
	InPack bool
	Entry  Entry
	Kind   object.Kind
}

// Resolve locates a ref-delta base by id, either as another entry of the
// same pack or by materializing the object into buf from elsewhere.
type Resolve func(id githash.Hash, buf *[]byte) (ResolvedBase, bool)

// Data is a pack data file held in memory.
type Data struct {
	// ID distinguishes this pack in decode-cache keys when several packs
	// share one cache. The owning store assigns it.
	ID uint32

	data        []byte
	version     uint32
	objectCount uint32
}

// NewData parses the pack data framing from data, which the returned Data
// retains. id becomes the pack's cache identity.
func NewData(data []byte, id uint32) (*Data, error) {
	if len(data) < minDataLen {
		return nil, fmt.Errorf("%w: %d bytes is shorter than header and trailer", ErrDataCorrupt, len(data))
	}

	if string(data[:len(dataMagic)]) != dataMagic {
		return nil, fmt.Errorf("%w: missing PACK signature", ErrDataCorrupt)
	}

	version := binary.BigEndian.Uint32(data[4:8])
	if version != 2 && version != 3 {
		return nil, &UnsupportedPackVersionError{Version: version}
	}

	return &Data{
		ID:          id,
		data:        data,
		version:     version,
		objectCount: binary.BigEndian.Uint32(data[8:12]),
	}, nil
}

// OpenData reads and parses the pack data file at path.
func OpenData(path string, id uint32) (*Data, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pack data: %w", err)
	}

	return NewData(data, id)
}

// Version returns the pack format version, 2 or 3.
func (d *Data) Version() uint32 {
	return d.version
}

// ObjectCount returns the entry count recorded in the pack header.
func (d *Data) ObjectCount() uint32 {
	return d.objectCount
}

// Len returns the pack data file length in bytes.
func (d *Data) Len() uint64 {
	return uint64(len(d.data))
}

// Checksum returns the trailing checksum of the pack data file.
func (d *Data) Checksum() githash.Hash {
	return githash.FromBytes(d.data[len(d.data)-trailerLen:])
}

// EntryCRC32 computes the checksum over size raw entry bytes starting at
// offset, header included. The span is clamped to the file so a wrong size
// surfaces as a mismatch rather than a panic.
func (d *Data) EntryCRC32(offset, size uint64) uint32 {
	end := offset + size
	if end < offset || end > uint64(len(d.data)) {
		end = uint64(len(d.data))
	}

	if offset > end {
		offset = end
	}

	return crc32.ChecksumIEEE(d.data[offset:end])
}

// EntryAt parses the entry header at offset.
func (d *Data) EntryAt(offset uint64) (Entry, error) {
	payloadEnd := uint64(len(d.data)) - trailerLen

	if offset < dataHeaderLen || offset >= payloadEnd {
		return Entry{}, &CorruptEntryError{Offset: offset, Reason: "offset outside the entry region"}
	}

	b := d.data[offset]
	entry := Entry{
		Offset:           offset,
		Type:             EntryType(b >> 4 & 0x7),
		DecompressedSize: uint64(b & 0x0f),
	}

	pos := offset + 1
	shift := uint(4)

	for b&0x80 != 0 {
		if pos >= payloadEnd {
			return Entry{}, &CorruptEntryError{Offset: offset, Reason: "size varint is truncated"}
		}

		if shift > 63 {
			return Entry{}, &CorruptEntryError{Offset: offset, Reason: "size varint overflows"}
		}

		b = d.data[pos]
		entry.DecompressedSize |= uint64(b&0x7f) << shift
		shift += 7
		pos++
	}

	switch entry.Type {
	case EntryCommit, EntryTree, EntryBlob, EntryTag:

	case EntryOfsDelta:
		if pos >= payloadEnd {
			return Entry{}, &CorruptEntryError{Offset: offset, Reason: "base distance is truncated"}
		}

		b = d.data[pos]
		pos++
		distance := uint64(b & 0x7f)

		for b&0x80 != 0 {
			if pos >= payloadEnd {
				return Entry{}, &CorruptEntryError{Offset: offset, Reason: "base distance is truncated"}
			}

			if distance >= 1<<56 {
				return Entry{}, &CorruptEntryError{Offset: offset, Reason: "base distance overflows"}
			}

			b = d.data[pos]
			pos++
			distance = (distance+1)<<7 | uint64(b&0x7f)
		}

		if distance == 0 || distance > offset-dataHeaderLen {
			return Entry{}, &CorruptEntryError{Offset: offset, Reason: "base offset outside the entry region"}
		}

		entry.BaseOffset = offset - distance
	case EntryRefDelta:
		if pos+githash.Size > payloadEnd {
			return Entry{}, &CorruptEntryError{Offset: offset, Reason: "base id is truncated"}
		}

		entry.BaseID = githash.FromBytes(d.data[pos : pos+githash.Size])
		pos += githash.Size
	default:
		return Entry{}, &CorruptEntryError{Offset: offset, Reason: fmt.Sprintf("invalid entry type %d", entry.Type)}
	}

	entry.DataOffset = pos

	if remaining := payloadEnd - pos; entry.DecompressedSize > remaining*zlibMaxRatio {
		return Entry{}, &CorruptEntryError{Offset: offset, Reason: "advertised size exceeds what the file can hold"}
	}

	return entry, nil
}

// DecodeEntry fully decodes the object stored at entry, following delta
// chains through the per-worker cache dc and resolving ref-delta bases via
// resolve. The reconstructed object lands in *out, which is reused across
// calls and only valid until the next one.
func (d *Data) DecodeEntry(entry Entry, out *[]byte, resolve Resolve, dc cache.DecodeEntry) (DecodeStats, error) {
	if dc == nil {
		dc = cache.Noop()
	}

	var (
		stats DecodeStats
		err   error
	)

	if entry.Type.IsDelta() {
		stats, err = d.resolveDeltas(entry, out, resolve, dc)
	} else {
		stats, err = d.decodeRaw(entry, out)
	}

	if err != nil {
		return DecodeStats{}, &DecodeEntryError{Offset: entry.Offset, Err: err}
	}

	return stats, nil
}

// decodeRaw inflates an undeltified entry straight into *out.
func (d *Data) decodeRaw(entry Entry, out *[]byte) (DecodeStats, error) {
	*out = resize(*out, entry.DecompressedSize)

	consumed, err := d.inflateInto(*out, entry.DataOffset)
	if err != nil {
		return DecodeStats{}, err
	}

	kind, ok := entry.Type.Kind()
	if !ok {
		return DecodeStats{}, &CorruptEntryError{Offset: entry.Offset, Reason: fmt.Sprintf("invalid entry type %d", entry.Type)}
	}

	return DecodeStats{
		Kind:             kind,
		DecompressedSize: entry.DecompressedSize,
		CompressedSize:   consumed,
		ObjectSize:       entry.DecompressedSize,
	}, nil
}

// chainLink captures one delta layer while walking toward the base.
type chainLink struct {
	dataOffset       uint64
	decompressedSize uint64
}

// resolveDeltas walks the delta chain of first back to a full base, inflates
// every layer and applies them innermost first. The chain walk stops early
// when a fully decoded object for an inner entry sits in the cache.
func (d *Data) resolveDeltas(first Entry, out *[]byte, resolve Resolve, dc cache.DecodeEntry) (DecodeStats, error) {
	var (
		chain    = make([]chainLink, 0, 16)
		kind     object.Kind
		haveBase bool
		base     []byte
		consumed uint64
	)

	cursor := first

walk:
	for cursor.Type.IsDelta() {
		if cached, packedSize, ok := dc.Get(d.ID, cursor.Offset, out); ok {
			kind = cached
			haveBase = true
			base = *out

			if len(chain) == 0 {
				consumed = uint64(packedSize)
			}

			break walk
		}

		if len(chain) == maxChainLen {
			return DecodeStats{}, &CorruptEntryError{Offset: first.Offset, Reason: "delta chain is too deep"}
		}

		chain = append(chain, chainLink{cursor.DataOffset, cursor.DecompressedSize})

		switch cursor.Type {
		case EntryOfsDelta:
			next, err := d.EntryAt(cursor.BaseOffset)
			if err != nil {
				return DecodeStats{}, err
			}

			cursor = next
		case EntryRefDelta:
			if resolve == nil {
				return DecodeStats{}, &DeltaBaseUnresolvedError{ID: cursor.BaseID}
			}

			resolved, ok := resolve(cursor.BaseID, out)
			if !ok {
				return DecodeStats{}, &DeltaBaseUnresolvedError{ID: cursor.BaseID}
			}

			if !resolved.InPack {
				kind = resolved.Kind
				haveBase = true
				base = *out

				break walk
			}

			cursor = resolved.Entry
		}
	}

	// Inflate every pending delta payload into one contiguous buffer. The
	// first link is the entry being decoded, so its consumed byte count
	// feeds the statistics.
	var total uint64
	for _, link := range chain {
		total += link.decompressedSize
	}

	deltas := make([]byte, total)

	var off uint64
	for i, link := range chain {
		n, err := d.inflateInto(deltas[off:off+link.decompressedSize], link.dataOffset)
		if err != nil {
			return DecodeStats{}, err
		}

		if i == 0 {
			consumed = n
		}

		off += link.decompressedSize
	}

	if !haveBase {
		// The walk ended on the undeltified base entry of the chain.
		k, ok := cursor.Type.Kind()
		if !ok {
			return DecodeStats{}, &CorruptEntryError{Offset: cursor.Offset, Reason: fmt.Sprintf("invalid entry type %d", cursor.Type)}
		}

		kind = k
		base = make([]byte, cursor.DecompressedSize)

		if _, err := d.inflateInto(base, cursor.DataOffset); err != nil {
			return DecodeStats{}, err
		}
	}

	// Apply innermost first: chain[0] is the outermost delta, and payloads
	// were laid out in chain order, so spans are consumed back to front.
	result := base
	end := total

	for i := len(chain) - 1; i >= 0; i-- {
		start := end - chain[i].decompressedSize

		next, err := ApplyDelta(result, deltas[start:end])
		if err != nil {
			return DecodeStats{}, err
		}

		result = next
		end = start
	}

	*out = result

	dc.Put(d.ID, first.Offset, result, kind, safeconv.MustUint64ToInt(consumed))

	return DecodeStats{
		Kind:             kind,
		NumDeltas:        uint32(len(chain)),
		DecompressedSize: first.DecompressedSize,
		CompressedSize:   consumed,
		ObjectSize:       uint64(len(result)),
	}, nil
}

// countingReader tracks how many compressed bytes the inflater consumed.
// Implementing io.ByteReader keeps zlib from adding its own buffering, so
// the count is exact.
type countingReader struct {
	r *bytes.Reader
	n uint64
}

// Read implements io.Reader.
func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += uint64(n)

	return n, err
}

// ReadByte implements io.ByteReader.
func (c *countingReader) ReadByte() (byte, error) {
	b, err := c.r.ReadByte()
	if err == nil {
		c.n++
	}

	return b, err
}

// inflateInto decompresses the zlib stream starting at dataOffset into dst,
// which must already be sized to the advertised decompressed size. It
// returns the number of compressed bytes consumed, zlib framing included.
func (d *Data) inflateInto(dst []byte, dataOffset uint64) (uint64, error) {
	if dataOffset > uint64(len(d.data)) {
		return 0, fmt.Errorf("%w: entry data starts past the end of the file", ErrDataCorrupt)
	}

	cr := &countingReader{r: bytes.NewReader(d.data[dataOffset:])}

	zr, err := zlib.NewReader(cr)
	if err != nil {
		return 0, fmt.Errorf("open zlib stream: %w", err)
	}
	defer zr.Close()

	if _, err := io.ReadFull(zr, dst); err != nil {
		return 0, fmt.Errorf("inflate entry: %w", err)
	}

	// Drain to the stream end so the adler32 trailer is read, verified and
	// counted.
	var tail [1]byte

	for {
		n, err := zr.Read(tail[:])
		if n != 0 {
			return 0, fmt.Errorf("%w: entry inflates past its advertised size", ErrDataCorrupt)
		}

		if err == io.EOF {
			break
		}

		if err != nil {
			return 0, fmt.Errorf("inflate entry: %w", err)
		}
	}

	return cr.n, nil
}

// resize returns buf grown or truncated to n bytes, reusing capacity.
func resize(buf []byte, n uint64) []byte {
	if uint64(cap(buf)) < n {
		return make([]byte, n)
	}

	return buf[:n]
}
