package pack_test

import (
	"crypto/sha1"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/packfang/pkg/githash"
	"github.com/Sumatoshi-tech/packfang/pkg/interrupt"
	"github.com/Sumatoshi-tech/packfang/pkg/object"
	"github.com/Sumatoshi-tech/packfang/pkg/pack"
	"github.com/Sumatoshi-tech/packfang/pkg/pack/packtest"
)

// threeBlobPack builds a pack holding three distinct undeltified blobs.
func threeBlobPack() packtest.Built {
	b := packtest.NewBuilder()
	b.AddBase(object.Blob, []byte("first blob content"))
	b.AddBase(object.Blob, []byte("second blob, a little longer than the first"))
	b.AddBase(object.Blob, []byte("third"))

	return b.Build()
}

func TestNewIndex_Version1Rejected(t *testing.T) {
	t.Parallel()

	// Version 1 files have no magic; they open with fanout data.
	data := make([]byte, 1072)

	_, err := pack.NewIndex(data)

	var versionErr *pack.UnsupportedIndexVersionError

	require.ErrorAs(t, err, &versionErr)
	assert.Equal(t, uint32(1), versionErr.Version)
}

func TestNewIndex_FutureVersionRejected(t *testing.T) {
	t.Parallel()

	built := threeBlobPack()
	data := slices.Clone(built.IndexData)
	data[7] = 3

	_, err := pack.NewIndex(data)

	var versionErr *pack.UnsupportedIndexVersionError

	require.ErrorAs(t, err, &versionErr)
	assert.Equal(t, uint32(3), versionErr.Version)
}

func TestNewIndex_Truncated(t *testing.T) {
	t.Parallel()

	built := threeBlobPack()

	_, err := pack.NewIndex(built.IndexData[:100])
	require.ErrorIs(t, err, pack.ErrIndexCorrupt)

	_, err = pack.NewIndex(built.IndexData[:len(built.IndexData)-1])
	require.ErrorIs(t, err, pack.ErrIndexCorrupt)
}

func TestIndex_Accessors(t *testing.T) {
	t.Parallel()

	built := threeBlobPack()

	idx, err := pack.NewIndex(built.IndexData)
	require.NoError(t, err)

	require.Equal(t, uint32(3), idx.NumObjects())

	for i, id := range built.IDs {
		pos, ok := idx.Lookup(id)
		require.True(t, ok, "id %s must be present", id)

		assert.Equal(t, id, idx.Oid(pos))
		assert.Equal(t, built.Offsets[i], idx.Offset(pos))
		assert.Equal(t, built.CRCs[i], idx.CRC(pos))
	}
}

func TestIndex_LookupMissing(t *testing.T) {
	t.Parallel()

	built := threeBlobPack()

	idx, err := pack.NewIndex(built.IndexData)
	require.NoError(t, err)

	_, ok := idx.Lookup(githash.MustParse("00112233445566778899aabbccddeeff00112233"))
	assert.False(t, ok)
}

func TestIndex_EntriesSortedByOffset(t *testing.T) {
	t.Parallel()

	built := threeBlobPack()

	idx, err := pack.NewIndex(built.IndexData)
	require.NoError(t, err)

	entries := idx.EntriesSortedByOffset()
	require.Len(t, entries, 3)

	for i, entry := range entries {
		assert.Equal(t, built.Offsets[i], entry.Offset)
		assert.Equal(t, built.IDs[i], entry.ID)
		assert.Equal(t, built.CRCs[i], entry.CRC)
	}
}

func TestIndex_LargeOffsets(t *testing.T) {
	t.Parallel()

	ids := []githash.Hash{
		githash.MustParse("1111111111111111111111111111111111111111"),
		githash.MustParse("2222222222222222222222222222222222222222"),
	}
	offsets := []uint64{12, 1<<31 + 42}
	crcs := []uint32{7, 9}

	data := packtest.BuildIndex(ids, offsets, crcs, githash.Zero())

	idx, err := pack.NewIndex(data)
	require.NoError(t, err)

	for i, id := range ids {
		pos, ok := idx.Lookup(id)
		require.True(t, ok)
		assert.Equal(t, offsets[i], idx.Offset(pos))
	}
}

func TestIndex_Checksums(t *testing.T) {
	t.Parallel()

	built := threeBlobPack()

	idx, err := pack.NewIndex(built.IndexData)
	require.NoError(t, err)

	sum := sha1.Sum(built.IndexData[:len(built.IndexData)-githash.Size])
	assert.Equal(t, githash.FromBytes(sum[:]), idx.IndexChecksum())

	packSum := built.PackData[len(built.PackData)-githash.Size:]
	assert.Equal(t, githash.FromBytes(packSum), idx.PackChecksum())

	id, err := idx.VerifyChecksum(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, idx.IndexChecksum(), id)
}

func TestIndex_VerifyChecksumMismatch(t *testing.T) {
	t.Parallel()

	built := threeBlobPack()

	// Flip a byte inside the oid table so only the trailer check notices.
	idx, err := pack.NewIndex(packtest.FlipByte(built.IndexData, 1040))
	require.NoError(t, err)

	_, err = idx.VerifyChecksum(nil, nil)

	var mismatch *pack.ChecksumMismatchError

	require.ErrorAs(t, err, &mismatch)
	assert.NotEqual(t, mismatch.Expected, mismatch.Actual)
}

func TestIndex_VerifyChecksumInterrupted(t *testing.T) {
	t.Parallel()

	built := threeBlobPack()

	idx, err := pack.NewIndex(built.IndexData)
	require.NoError(t, err)

	var flag interrupt.Flag

	flag.Trigger()

	_, err = idx.VerifyChecksum(&flag, nil)
	require.ErrorIs(t, err, interrupt.ErrInterrupted)
}
