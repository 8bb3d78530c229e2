// Package packtest builds small pack data and index files in memory so
// tests can exercise decoding and verification against real wire bytes.
package packtest

import (
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"slices"

	"github.com/klauspost/compress/zlib"

	"github.com/Sumatoshi-tech/packfang/pkg/githash"
	"github.com/Sumatoshi-tech/packfang/pkg/object"
	"github.com/Sumatoshi-tech/packfang/pkg/pack"
	"github.com/Sumatoshi-tech/packfang/pkg/safeconv"
)

const (
	formBase = iota
	formOfs
	formRef
)

type entrySpec struct {
	form int
	kind object.Kind
	data []byte
	base int
}

// Builder assembles a pack data file and its matching index entry by entry.
// Delta entries must reference entries added before them.
type Builder struct {
	entries []entrySpec
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// AddBase appends an undeltified object and returns its entry number.
func (b *Builder) AddBase(kind object.Kind, data []byte) int {
	b.entries = append(b.entries, entrySpec{form: formBase, kind: kind, data: data, base: -1})

	return len(b.entries) - 1
}

// AddOfsDelta appends an offset-delta entry carrying payload against a
// previously added entry and returns its entry number.
func (b *Builder) AddOfsDelta(base int, payload []byte) int {
	b.entries = append(b.entries, entrySpec{form: formOfs, data: payload, base: base})

	return len(b.entries) - 1
}

// AddRefDelta appends a ref-delta entry whose base id is that of a
// previously added entry and returns its entry number.
func (b *Builder) AddRefDelta(base int, payload []byte) int {
	b.entries = append(b.entries, entrySpec{form: formRef, data: payload, base: base})

	return len(b.entries) - 1
}

// Built is a rendered pack pair plus per-entry facts in add order.
type Built struct {
	PackData  []byte
	IndexData []byte
	IDs       []githash.Hash
	Offsets   []uint64
	CRCs      []uint32
	Contents  [][]byte
	Kinds     []object.Kind
}

// Build renders the pack and index bytes. It panics on inconsistent fixture
// definitions such as a delta payload that does not apply to its base.
func (b *Builder) Build() Built {
	contents := make([][]byte, len(b.entries))
	kinds := make([]object.Kind, len(b.entries))

	for i, e := range b.entries {
		if e.form == formBase {
			contents[i] = e.data
			kinds[i] = e.kind

			continue
		}

		if e.base < 0 || e.base >= i {
			panic(fmt.Sprintf("packtest: entry %d deltifies entry %d, which is not before it", i, e.base))
		}

		result, err := pack.ApplyDelta(contents[e.base], e.data)
		if err != nil {
			panic(fmt.Sprintf("packtest: entry %d delta does not apply: %v", i, err))
		}

		contents[i] = result
		kinds[i] = kinds[e.base]
	}

	ids := make([]githash.Hash, len(b.entries))
	for i := range b.entries {
		h := sha1.New()
		h.Write(object.LooseHeader(kinds[i], len(contents[i])))
		h.Write(contents[i])
		ids[i] = githash.FromBytes(h.Sum(nil))
	}

	var buf bytes.Buffer

	header := make([]byte, 12)
	copy(header, "PACK")
	binary.BigEndian.PutUint32(header[4:], 2)
	binary.BigEndian.PutUint32(header[8:], safeconv.MustIntToUint32(len(b.entries)))
	buf.Write(header)

	offsets := make([]uint64, len(b.entries))

	for i, e := range b.entries {
		offsets[i] = uint64(buf.Len())

		var typ byte

		switch e.form {
		case formBase:
			typ = kindType(kinds[i])
		case formOfs:
			typ = 6
		case formRef:
			typ = 7
		}

		writeEntryHeader(&buf, typ, uint64(len(e.data)))

		if e.form == formOfs {
			writeOfsDistance(&buf, offsets[i]-offsets[e.base])
		}

		if e.form == formRef {
			buf.Write(ids[e.base][:])
		}

		zw := zlib.NewWriter(&buf)

		if _, err := zw.Write(e.data); err != nil {
			panic(fmt.Sprintf("packtest: deflate entry %d: %v", i, err))
		}

		if err := zw.Close(); err != nil {
			panic(fmt.Sprintf("packtest: deflate entry %d: %v", i, err))
		}
	}

	sum := sha1.Sum(buf.Bytes())
	buf.Write(sum[:])
	packData := buf.Bytes()

	crcs := make([]uint32, len(b.entries))
	for i := range b.entries {
		end := uint64(len(packData) - githash.Size)
		if i+1 < len(b.entries) {
			end = offsets[i+1]
		}

		crcs[i] = crc32.ChecksumIEEE(packData[offsets[i]:end])
	}

	return Built{
		PackData:  packData,
		IndexData: BuildIndex(ids, offsets, crcs, githash.FromBytes(sum[:])),
		IDs:       ids,
		Offsets:   offsets,
		CRCs:      crcs,
		Contents:  contents,
		Kinds:     kinds,
	}
}

// BuildIndex renders a version 2 index file over the given entries, which
// must be parallel slices in pack order.
func BuildIndex(ids []githash.Hash, offsets []uint64, crcs []uint32, packChecksum githash.Hash) []byte {
	order := make([]int, len(ids))
	for i := range order {
		order[i] = i
	}

	slices.SortFunc(order, func(a, b int) int {
		return ids[a].Compare(ids[b])
	})

	var buf bytes.Buffer
	buf.Write([]byte{0xff, 't', 'O', 'c'})
	writeBE32(&buf, 2)

	var counts [256]uint32
	for _, id := range ids {
		counts[id[0]]++
	}

	var running uint32
	for _, c := range counts {
		running += c
		writeBE32(&buf, running)
	}

	for _, i := range order {
		buf.Write(ids[i][:])
	}

	for _, i := range order {
		writeBE32(&buf, crcs[i])
	}

	var large []uint64

	for _, i := range order {
		if offsets[i] < 1<<31 {
			writeBE32(&buf, safeconv.MustUint64ToUint32(offsets[i]))

			continue
		}

		writeBE32(&buf, 0x80000000|safeconv.MustIntToUint32(len(large)))
		large = append(large, offsets[i])
	}

	for _, v := range large {
		var scratch [8]byte
		binary.BigEndian.PutUint64(scratch[:], v)
		buf.Write(scratch[:])
	}

	buf.Write(packChecksum[:])
	sum := sha1.Sum(buf.Bytes())
	buf.Write(sum[:])

	return buf.Bytes()
}

// InsertDelta builds a delta payload producing result purely from insert
// commands against a base of baseLen bytes.
func InsertDelta(baseLen int, result []byte) []byte {
	payload := appendVarint(nil, uint64(baseLen))
	payload = appendVarint(payload, uint64(len(result)))

	for chunk := result; len(chunk) > 0; {
		n := min(len(chunk), 127)
		payload = append(payload, byte(n))
		payload = append(payload, chunk[:n]...)
		chunk = chunk[n:]
	}

	return payload
}

// CopyDelta builds a delta payload reproducing a base of baseLen bytes via a
// single copy command. baseLen must be positive.
func CopyDelta(baseLen int) []byte {
	payload := appendVarint(nil, uint64(baseLen))
	payload = appendVarint(payload, uint64(baseLen))

	cmd := byte(0x80)

	var operands []byte

	for bit, shift := byte(0x10), 0; shift < 24; bit, shift = bit<<1, shift+8 {
		if v := byte(baseLen >> shift); v != 0 {
			cmd |= bit

			operands = append(operands, v)
		}
	}

	payload = append(payload, cmd)

	return append(payload, operands...)
}

// FlipByte returns a copy of data with the byte at i inverted.
func FlipByte(data []byte, i int) []byte {
	out := slices.Clone(data)
	out[i] ^= 0xff

	return out
}

func kindType(kind object.Kind) byte {
	switch kind {
	case object.Commit:
		return 1
	case object.Tree:
		return 2
	case object.Blob:
		return 3
	case object.Tag:
		return 4
	default:
		panic(fmt.Sprintf("packtest: no pack type for kind %v", kind))
	}
}

func writeEntryHeader(buf *bytes.Buffer, typ byte, size uint64) {
	b := typ<<4 | byte(size&0x0f)
	size >>= 4

	for size != 0 {
		buf.WriteByte(b | 0x80)
		b = byte(size & 0x7f)
		size >>= 7
	}

	buf.WriteByte(b)
}

func writeOfsDistance(buf *bytes.Buffer, distance uint64) {
	var scratch [10]byte

	i := len(scratch) - 1
	scratch[i] = byte(distance & 0x7f)

	for {
		distance >>= 7
		if distance == 0 {
			break
		}

		distance--
		i--
		scratch[i] = 0x80 | byte(distance&0x7f)
	}

	buf.Write(scratch[i:])
}

func appendVarint(buf []byte, v uint64) []byte {
	for v >= 0x80 {
		buf = append(buf, byte(v)|0x80)
		v >>= 7
	}

	return append(buf, byte(v))
}

func writeBE32(buf *bytes.Buffer, v uint32) {
	var scratch [4]byte
	binary.BigEndian.PutUint32(scratch[:], v)
	buf.Write(scratch[:])
}
