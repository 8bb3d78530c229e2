package pack

import (
	"errors"
	"fmt"
)

// ErrCorruptDelta indicates a delta payload that cannot be applied.
var ErrCorruptDelta = errors.New("pack: corrupt delta")

// maxCopySize is the largest span one copy command can produce, encoded as a
// size of zero.
const maxCopySize = 0x10000

// ApplyDelta reconstructs an object by applying a delta payload to its base.
// The payload starts with the base and result sizes as varints, followed by
// copy commands reading from the base and insert commands carrying literal
// bytes.
func ApplyDelta(base, delta []byte) ([]byte, error) {
	baseSize, n := deltaVarint(delta)
	if n < 0 {
		return nil, fmt.Errorf("%w: truncated base size", ErrCorruptDelta)
	}

	delta = delta[n:]

	if baseSize != uint64(len(base)) {
		return nil, fmt.Errorf("%w: base is %d bytes, delta expects %d", ErrCorruptDelta, len(base), baseSize)
	}

	resultSize, n := deltaVarint(delta)
	if n < 0 {
		return nil, fmt.Errorf("%w: truncated result size", ErrCorruptDelta)
	}

	delta = delta[n:]

	// Each remaining payload byte can at most start a maximum-size copy, so
	// a claim past that bound cannot be honest. Checking before allocating
	// keeps corrupt headers from forcing huge buffers.
	if resultSize > (uint64(len(delta))+1)*maxCopySize {
		return nil, fmt.Errorf("%w: result size %d is implausible", ErrCorruptDelta, resultSize)
	}

	result := make([]byte, 0, resultSize)

	for len(delta) > 0 {
		cmd := delta[0]
		delta = delta[1:]

		switch {
		case cmd&0x80 != 0:
			offset, size, n := copyCommand(cmd, delta)
			if n < 0 {
				return nil, fmt.Errorf("%w: truncated copy command", ErrCorruptDelta)
			}

			delta = delta[n:]

			if offset+size < offset || offset+size > uint64(len(base)) {
				return nil, fmt.Errorf("%w: copy of %d bytes at %d exceeds the base", ErrCorruptDelta, size, offset)
			}

			result = append(result, base[offset:offset+size]...)
		case cmd != 0:
			if int(cmd) > len(delta) {
				return nil, fmt.Errorf("%w: truncated insert of %d bytes", ErrCorruptDelta, cmd)
			}

			result = append(result, delta[:cmd]...)
			delta = delta[cmd:]
		default:
			return nil, fmt.Errorf("%w: reserved zero command", ErrCorruptDelta)
		}
	}

	if uint64(len(result)) != resultSize {
		return nil, fmt.Errorf("%w: produced %d bytes, expected %d", ErrCorruptDelta, len(result), resultSize)
	}

	return result, nil
}

// deltaVarint reads the little-endian 7-bit varint that prefixes delta
// payloads, returning the value and the bytes consumed, or -1 on truncation.
func deltaVarint(buf []byte) (uint64, int) {
	var (
		value uint64
		shift uint
	)

	for i, b := range buf {
		value |= uint64(b&0x7f) << shift

		if b&0x80 == 0 {
			return value, i + 1
		}

		shift += 7
		if shift > 63 {
			break
		}
	}

	return 0, -1
}

// copyCommand decodes a copy command's operands. Bits 0-3 of cmd select
// which offset bytes follow, bits 4-6 which size bytes; a size of zero means
// maxCopySize. It returns the operand bytes consumed, or -1 on truncation.
func copyCommand(cmd byte, buf []byte) (offset, size uint64, n int) {
	for bit := range 4 {
		if cmd&(1<<bit) != 0 {
			if n >= len(buf) {
				return 0, 0, -1
			}

			offset |= uint64(buf[n]) << (8 * bit)
			n++
		}
	}

	for bit := range 3 {
		if cmd&(0x10<<bit) != 0 {
			if n >= len(buf) {
				return 0, 0, -1
			}

			size |= uint64(buf[n]) << (8 * bit)
			n++
		}
	}

	if size == 0 {
		size = maxCopySize
	}

	return offset, size, n
}
