package pack

import (
	"crypto/sha1"
	"fmt"

	"github.com/Sumatoshi-tech/packfang/pkg/githash"
	"github.com/Sumatoshi-tech/packfang/pkg/interrupt"
	"github.com/Sumatoshi-tech/packfang/pkg/object"
	"github.com/Sumatoshi-tech/packfang/pkg/progress"
)

// SafetyCheck selects how much validation runs while traversing a pack.
// The zero value performs every check.
type SafetyCheck int

const (
	// All verifies file trailers, per-object checksums and entry crc32s.
	All SafetyCheck = iota
	// SkipFileChecksum trusts the pack and index trailers but still
	// verifies each decoded object against the index.
	SkipFileChecksum
	// SkipFileAndObjectChecksum only decodes, with no checksum
	// verification at all.
	SkipFileAndObjectChecksum
	// SkipFileAndObjectChecksumNoAbortOnDecodeError additionally skips
	// entries that fail to decode instead of aborting the traversal.
	SkipFileAndObjectChecksumNoAbortOnDecodeError
)

// FileChecksum reports whether whole-file trailers are verified.
func (c SafetyCheck) FileChecksum() bool {
	return c == All
}

// ObjectChecksum reports whether each decoded object is re-hashed and
// compared against the id and crc32 the index records.
func (c SafetyCheck) ObjectChecksum() bool {
	return c == All || c == SkipFileChecksum
}

// FatalDecodeError reports whether an entry that fails to decode aborts the
// traversal.
func (c SafetyCheck) FatalDecodeError() bool {
	return c != SkipFileAndObjectChecksumNoAbortOnDecodeError
}

// String returns a stable name for the policy.
func (c SafetyCheck) String() string {
	switch c {
	case All:
		return "all"
	case SkipFileChecksum:
		return "skip-file-checksum"
	case SkipFileAndObjectChecksum:
		return "skip-file-and-object-checksum"
	case SkipFileAndObjectChecksumNoAbortOnDecodeError:
		return "skip-file-and-object-checksum-no-abort"
	default:
		return fmt.Sprintf("invalid(%d)", int(c))
	}
}

// ChecksumMismatchError reports a file whose contents do not hash to its
// recorded checksum.
type ChecksumMismatchError struct {
	Expected githash.Hash
	Actual   githash.Hash
}

// Error implements the error interface.
func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("pack: checksum mismatch: expected %s, got %s", e.Expected, e.Actual)
}

// ObjectMismatchError reports a decoded object whose checksum differs from
// the id the index records for its entry.
type ObjectMismatchError struct {
	Offset   uint64
	Kind     object.Kind
	Expected githash.Hash
	Actual   githash.Hash
}

// Error implements the error interface.
func (e *ObjectMismatchError) Error() string {
	return fmt.Sprintf("pack: %s object at offset %d hashes to %s, index records %s", e.Kind, e.Offset, e.Actual, e.Expected)
}

// CRC32MismatchError reports an entry whose raw bytes do not match the crc32
// recorded in the index.
type CRC32MismatchError struct {
	Offset   uint64
	Expected uint32
	Actual   uint32
}

// Error implements the error interface.
func (e *CRC32MismatchError) Error() string {
	return fmt.Sprintf("pack: crc32 mismatch for entry at offset %d: expected %08x, got %08x", e.Offset, e.Expected, e.Actual)
}

// hashChunkLen is how many bytes are hashed between interrupt checks.
const hashChunkLen = 1 << 20

// verifyTrailer hashes everything before the trailing checksum of raw and
// compares the digest against it. Progress is reported in bytes.
func verifyTrailer(raw []byte, flag *interrupt.Flag, prog progress.Progress) (githash.Hash, error) {
	if prog == nil {
		prog = progress.Discard()
	}

	body := raw[:len(raw)-githash.Size]
	prog.Init(int64(len(body)), "bytes")

	h := sha1.New()

	for len(body) > 0 {
		if flag != nil && flag.IsTriggered() {
			return githash.Zero(), interrupt.ErrInterrupted
		}

		n := min(len(body), hashChunkLen)
		h.Write(body[:n])
		prog.IncBy(int64(n))
		body = body[n:]
	}

	actual := githash.FromBytes(h.Sum(nil))
	expected := githash.FromBytes(raw[len(raw)-githash.Size:])

	if actual != expected {
		return githash.Zero(), &ChecksumMismatchError{Expected: expected, Actual: actual}
	}

	return actual, nil
}

// VerifyChecksum re-hashes the index file against its trailing checksum.
// It stops early when flag triggers.
func (idx *Index) VerifyChecksum(flag *interrupt.Flag, prog progress.Progress) (githash.Hash, error) {
	return verifyTrailer(idx.raw, flag, prog)
}

// VerifyChecksum re-hashes the pack data file against its trailing checksum.
// It stops early when flag triggers.
func (d *Data) VerifyChecksum(flag *interrupt.Flag, prog progress.Progress) (githash.Hash, error) {
	return verifyTrailer(d.data, flag, prog)
}
