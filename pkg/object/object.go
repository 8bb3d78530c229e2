// Package object provides the decoded object model of the store: object
// kinds, the borrowed object view handed out by decode calls, and field-level
// decoding of raw commit, tag and tree content.
package object

import (
	"errors"
	"fmt"
	"strconv"
)

// Kind enumerates the object types a repository stores.
type Kind int8

const (
	// Commit is a snapshot pointer with ancestry metadata.
	Commit Kind = iota
	// Tree lists named entries describing one directory level.
	Tree
	// Blob holds raw file content.
	Blob
	// Tag is an annotated pointer at another object.
	Tag
)

// ErrUnknownKind indicates an object type name that is not commit/tree/blob/tag.
var ErrUnknownKind = errors.New("unknown object kind")

// String returns the canonical wire name of the kind.
func (k Kind) String() string {
	switch k {
	case Commit:
		return "commit"
	case Tree:
		return "tree"
	case Blob:
		return "blob"
	case Tag:
		return "tag"
	default:
		return fmt.Sprintf("invalid(%d)", int8(k))
	}
}

// ParseKind decodes a wire-format kind name.
func ParseKind(name []byte) (Kind, error) {
	switch string(name) {
	case "commit":
		return Commit, nil
	case "tree":
		return Tree, nil
	case "blob":
		return Blob, nil
	case "tag":
		return Tag, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, name)
	}
}

// Object is an immutable view of one decoded object. Data is borrowed from
// the scratch buffer supplied to the decode call that produced it: the next
// decode call into the same buffer invalidates the view. Never retain Data
// across decode calls.
type Object struct {
	Kind Kind
	Data []byte
}

// TreeIterator returns an iterator over the object's entries when it is a tree.
func (o Object) TreeIterator() (TreeIter, bool) {
	if o.Kind != Tree {
		return TreeIter{}, false
	}

	return NewTreeIter(o.Data), true
}

// LooseHeader encodes the "<kind> <size>\x00" prefix that object checksums
// and the loose on-disk format hash together with the content.
func LooseHeader(kind Kind, size int) []byte {
	header := make([]byte, 0, looseHeaderCap)
	header = append(header, kind.String()...)
	header = append(header, ' ')
	header = strconv.AppendInt(header, int64(size), 10)
	header = append(header, 0)

	return header
}

// looseHeaderCap covers the longest kind name plus a 19-digit size, space and NUL.
const looseHeaderCap = len("commit") + 1 + 19 + 1

// DecodeError reports structurally malformed object content encountered while
// iterating a decoded object's fields. It is distinct from store lookup
// failures so callers can tell data corruption from missing objects.
type DecodeError struct {
	Kind Kind
	Msg  string
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed %s object: %s", e.Kind, e.Msg)
}
