package object

import (
	"bytes"

	"github.com/Sumatoshi-tech/packfang/pkg/githash"
)

// EntryMode is the file mode of one tree entry, as stored (octal).
type EntryMode uint32

// Known entry modes.
const (
	ModeTree       EntryMode = 0o040000
	ModeBlob       EntryMode = 0o100644
	ModeExecutable EntryMode = 0o100755
	ModeSymlink    EntryMode = 0o120000
	ModeGitlink    EntryMode = 0o160000

	modeTypeMask EntryMode = 0o170000
)

// IsTree reports whether the entry names a subtree.
func (m EntryMode) IsTree() bool {
	return m&modeTypeMask == ModeTree
}

// IsGitlink reports whether the entry is a submodule commit reference. Such
// entries point outside the repository's own object graph.
func (m EntryMode) IsGitlink() bool {
	return m&modeTypeMask == ModeGitlink
}

// IsBlob reports whether the entry names blob content (regular, executable
// or symlink).
func (m EntryMode) IsBlob() bool {
	return !m.IsTree() && !m.IsGitlink()
}

// TreeEntry is one decoded tree entry. Name is borrowed from the underlying
// tree data and shares its lifetime.
type TreeEntry struct {
	Mode EntryMode
	Name []byte
	ID   githash.Hash
}

// TreeIter iterates the raw entries of a tree object without allocating.
// The zero value iterates nothing.
type TreeIter struct {
	data []byte
}

// NewTreeIter returns an iterator over raw tree content.
func NewTreeIter(data []byte) TreeIter {
	return TreeIter{data: data}
}

// Len returns the number of unconsumed bytes; zero means exhausted.
func (it TreeIter) Len() int {
	return len(it.data)
}

// Next decodes the next entry. The second result is false once the tree is
// exhausted; a non-nil error means the remaining bytes are not a valid entry.
func (it *TreeIter) Next() (TreeEntry, bool, error) {
	if len(it.data) == 0 {
		return TreeEntry{}, false, nil
	}

	var entry TreeEntry

	mode, rest, ok := parseOctalMode(it.data)
	if !ok {
		return TreeEntry{}, false, &DecodeError{Kind: Tree, Msg: "entry has no valid mode"}
	}

	nul := bytes.IndexByte(rest, 0)
	if nul < 0 || len(rest) < nul+1+githash.Size {
		return TreeEntry{}, false, &DecodeError{Kind: Tree, Msg: "entry is truncated"}
	}

	entry.Mode = mode
	entry.Name = rest[:nul]
	entry.ID = githash.FromBytes(rest[nul+1 : nul+1+githash.Size])

	it.data = rest[nul+1+githash.Size:]

	return entry, true, nil
}

// parseOctalMode reads the leading "<octal> " of a tree entry.
func parseOctalMode(data []byte) (EntryMode, []byte, bool) {
	var mode EntryMode

	i := 0
	for ; i < len(data) && data[i] != ' '; i++ {
		c := data[i]
		if c < '0' || c > '7' {
			return 0, nil, false
		}

		mode = mode<<3 | EntryMode(c-'0')
	}

	if i == 0 || i == len(data) {
		return 0, nil, false
	}

	return mode, data[i+1:], true
}
