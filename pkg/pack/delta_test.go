package pack_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/packfang/pkg/pack"
	"github.com/Sumatoshi-tech/packfang/pkg/pack/packtest"
)

// appendDeltaVarint mirrors the little-endian size prefix of delta payloads.
func appendDeltaVarint(buf []byte, v uint64) []byte {
	for v >= 0x80 {
		buf = append(buf, byte(v)|0x80)
		v >>= 7
	}

	return append(buf, byte(v))
}

func TestApplyDelta_InsertOnly(t *testing.T) {
	t.Parallel()

	base := []byte("the base object is ignored entirely")
	result := []byte("fresh content produced by inserts alone")

	got, err := pack.ApplyDelta(base, packtest.InsertDelta(len(base), result))
	require.NoError(t, err)
	assert.Equal(t, result, got)
}

func TestApplyDelta_CopyOnly(t *testing.T) {
	t.Parallel()

	base := []byte("copied through verbatim")

	got, err := pack.ApplyDelta(base, packtest.CopyDelta(len(base)))
	require.NoError(t, err)
	assert.Equal(t, base, got)
}

func TestApplyDelta_CopyAndInsert(t *testing.T) {
	t.Parallel()

	base := []byte("abcd")

	// Copy "bc" out of the base, then insert "WXYZ".
	payload := appendDeltaVarint(nil, uint64(len(base)))
	payload = appendDeltaVarint(payload, 6)
	payload = append(payload, 0x91, 0x01, 0x02)
	payload = append(payload, 0x04, 'W', 'X', 'Y', 'Z')

	got, err := pack.ApplyDelta(base, payload)
	require.NoError(t, err)
	assert.Equal(t, []byte("bcWXYZ"), got)
}

func TestApplyDelta_ImplicitCopySize(t *testing.T) {
	t.Parallel()

	// A copy command without size operands copies 0x10000 bytes.
	base := bytes.Repeat([]byte{0xab}, 0x10000+16)

	payload := appendDeltaVarint(nil, uint64(len(base)))
	payload = appendDeltaVarint(payload, 0x10000)
	payload = append(payload, 0x80)

	got, err := pack.ApplyDelta(base, payload)
	require.NoError(t, err)
	assert.Equal(t, base[:0x10000], got)
}

func TestApplyDelta_BaseSizeMismatch(t *testing.T) {
	t.Parallel()

	base := []byte("four")

	_, err := pack.ApplyDelta(base, packtest.InsertDelta(len(base)+1, []byte("x")))
	require.ErrorIs(t, err, pack.ErrCorruptDelta)
}

func TestApplyDelta_ResultSizeMismatch(t *testing.T) {
	t.Parallel()

	base := []byte("base")

	payload := appendDeltaVarint(nil, uint64(len(base)))
	payload = appendDeltaVarint(payload, 5)
	payload = append(payload, 0x03, 'a', 'b', 'c')

	_, err := pack.ApplyDelta(base, payload)
	require.ErrorIs(t, err, pack.ErrCorruptDelta)
}

func TestApplyDelta_ZeroCommand(t *testing.T) {
	t.Parallel()

	base := []byte("base")

	payload := appendDeltaVarint(nil, uint64(len(base)))
	payload = appendDeltaVarint(payload, 1)
	payload = append(payload, 0x00)

	_, err := pack.ApplyDelta(base, payload)
	require.ErrorIs(t, err, pack.ErrCorruptDelta)
}

func TestApplyDelta_TruncatedInsert(t *testing.T) {
	t.Parallel()

	base := []byte("base")

	payload := appendDeltaVarint(nil, uint64(len(base)))
	payload = appendDeltaVarint(payload, 10)
	payload = append(payload, 0x0a, 'x', 'y')

	_, err := pack.ApplyDelta(base, payload)
	require.ErrorIs(t, err, pack.ErrCorruptDelta)
}

func TestApplyDelta_TruncatedCopy(t *testing.T) {
	t.Parallel()

	base := []byte("base")

	payload := appendDeltaVarint(nil, uint64(len(base)))
	payload = appendDeltaVarint(payload, 2)
	payload = append(payload, 0x91, 0x01)

	_, err := pack.ApplyDelta(base, payload)
	require.ErrorIs(t, err, pack.ErrCorruptDelta)
}

func TestApplyDelta_CopyOutOfBounds(t *testing.T) {
	t.Parallel()

	base := []byte("tiny")

	payload := appendDeltaVarint(nil, uint64(len(base)))
	payload = appendDeltaVarint(payload, 32)
	payload = append(payload, 0x90, 0x20)

	_, err := pack.ApplyDelta(base, payload)
	require.ErrorIs(t, err, pack.ErrCorruptDelta)
}

func TestApplyDelta_EmptyPayload(t *testing.T) {
	t.Parallel()

	_, err := pack.ApplyDelta([]byte("base"), nil)
	require.ErrorIs(t, err, pack.ErrCorruptDelta)
}

func TestApplyDelta_ImplausibleResultSize(t *testing.T) {
	t.Parallel()

	base := []byte("base")

	payload := appendDeltaVarint(nil, uint64(len(base)))
	payload = appendDeltaVarint(payload, 1<<40)

	_, err := pack.ApplyDelta(base, payload)
	require.ErrorIs(t, err, pack.ErrCorruptDelta)
}
