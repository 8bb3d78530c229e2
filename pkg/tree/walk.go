// Package tree provides the graph algorithms behind object expansion: a
// breadth-first walk over tree objects and a two-tree diff that reports the
// changes needed to obtain one tree from another.
package tree

import (
	"errors"
	"fmt"

	"github.com/Sumatoshi-tech/packfang/pkg/githash"
	"github.com/Sumatoshi-tech/packfang/pkg/object"
)

// Action controls a walk from a visitor callback.
type Action int8

const (
	// Continue proceeds normally, descending into subtrees.
	Continue Action = iota
	// Skip does not descend into the current subtree. It has no effect on
	// non-tree entries or change visits.
	Skip
	// Cancel aborts the whole walk with ErrCancelled.
	Cancel
)

// ErrCancelled is returned when a visitor cancels the walk.
var ErrCancelled = errors.New("tree: cancelled by visitor")

// NotFoundError reports a tree id the find callback could not resolve.
type NotFoundError struct {
	ID githash.Hash
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("tree: %s could not be found", e.ID)
}

// FindTree resolves a tree id into an entry iterator, using *buf as decode
// scratch space. The iterator borrows *buf; the next call invalidates it.
// Returning false means the tree does not exist or could not be decoded.
type FindTree func(id githash.Hash, buf *[]byte) (object.TreeIter, bool)

// Visitor sees every entry of a breadth-first walk. Tree entries decide
// descent through the returned Action; entry names are only valid during the
// call.
type Visitor interface {
	// VisitTree is called for each subtree entry.
	VisitTree(entry object.TreeEntry) Action
	// VisitNonTree is called for each blob or gitlink entry.
	VisitNonTree(entry object.TreeEntry) Action
}

// WalkState holds the queue and scratch buffer of breadth-first walks so
// one worker can reuse them across roots. The zero value is ready to use.
type WalkState struct {
	next []githash.Hash
	buf  []byte
}

// Clear empties the state for reuse.
func (s *WalkState) Clear() {
	s.next = s.next[:0]
	s.buf = s.buf[:0]
}

// BreadthFirst walks the tree rooted at root level by level. Subtrees whose
// visit returns Continue are fetched through find and walked in turn;
// unresolvable subtrees yield a NotFoundError. The root iterator itself is
// supplied by the caller, who has already resolved it.
func BreadthFirst(root object.TreeIter, state *WalkState, find FindTree, visitor Visitor) error {
	state.Clear()

	current := root

	for {
		for {
			entry, ok, err := current.Next()
			if err != nil {
				return err
			}

			if !ok {
				break
			}

			if entry.Mode.IsTree() {
				switch visitor.VisitTree(entry) {
				case Continue:
					state.next = append(state.next, entry.ID)
				case Skip:
				case Cancel:
					return ErrCancelled
				}

				continue
			}

			if visitor.VisitNonTree(entry) == Cancel {
				return ErrCancelled
			}
		}

		if len(state.next) == 0 {
			return nil
		}

		id := state.next[0]
		state.next = state.next[1:]

		next, ok := find(id, &state.buf)
		if !ok {
			return &NotFoundError{ID: id}
		}

		current = next
	}
}
