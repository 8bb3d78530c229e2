package tree

import (
	"bytes"
	"cmp"

	"github.com/Sumatoshi-tech/packfang/pkg/githash"
	"github.com/Sumatoshi-tech/packfang/pkg/object"
)

// ChangeAction represents the type of change between two trees.
type ChangeAction int8

const (
	// Insert indicates an entry that only exists in the target tree.
	Insert ChangeAction = iota
	// Delete indicates an entry that only exists in the base tree.
	Delete
	// Modify indicates an entry present on both sides with different
	// content or mode.
	Modify
)

// ChangeEntry represents one side of a change. Name borrows from the decode
// buffer backing the tree and is only valid during the visit.
type ChangeEntry struct {
	Name []byte
	Mode object.EntryMode
	ID   githash.Hash
}

// Change represents a single entry-level change between two trees. From is
// set for Delete and Modify, To for Insert and Modify.
type Change struct {
	Action ChangeAction
	From   ChangeEntry
	To     ChangeEntry
}

// ChangeVisitor sees every change of a diff. Returning Cancel aborts the
// diff with ErrCancelled; Skip and Continue are equivalent here.
type ChangeVisitor interface {
	VisitChange(change Change) Action
}

// treeTask is one queued subtree comparison. An absent side means the other
// side's contents are pure additions or deletions.
type treeTask struct {
	lhs    githash.Hash
	rhs    githash.Hash
	hasLHS bool
	hasRHS bool
}

// DiffState holds the recursion queue and scratch buffers of tree diffs so
// one worker can reuse them across comparisons. The zero value is ready to
// use.
type DiffState struct {
	queue  []treeTask
	lhsBuf []byte
	rhsBuf []byte
}

// Clear empties the state for reuse.
func (s *DiffState) Clear() {
	s.queue = s.queue[:0]
	s.lhsBuf = s.lhsBuf[:0]
	s.rhsBuf = s.rhsBuf[:0]
}

// Changes diffs trees against a base tree.
type Changes struct {
	base object.TreeIter
}

// NewChanges returns a differ with the given base. A zero TreeIter is the
// empty tree, turning every target entry into an insertion.
func NewChanges(base object.TreeIter) Changes {
	return Changes{base: base}
}

// NeededToObtain visits the changes required to turn the base tree into
// target. Inserted and modified subtrees are descended into recursively, as
// are deleted subtrees so their contents surface as deletions. Subtrees with
// identical ids on both sides are not descended. Both root iterators are
// supplied by the caller; nested trees resolve through find.
func (c Changes) NeededToObtain(target object.TreeIter, state *DiffState, find FindTree, visitor ChangeVisitor) error {
	state.Clear()

	d := differ{state: state, visitor: visitor}

	if err := d.level(c.base, target); err != nil {
		return err
	}

	for len(state.queue) > 0 {
		task := state.queue[0]
		state.queue = state.queue[1:]

		var lhs, rhs object.TreeIter

		if task.hasLHS {
			it, ok := find(task.lhs, &state.lhsBuf)
			if !ok {
				return &NotFoundError{ID: task.lhs}
			}

			lhs = it
		}

		if task.hasRHS {
			it, ok := find(task.rhs, &state.rhsBuf)
			if !ok {
				return &NotFoundError{ID: task.rhs}
			}

			rhs = it
		}

		if err := d.level(lhs, rhs); err != nil {
			return err
		}
	}

	return nil
}

// differ merges two sorted entry lists level by level, scheduling subtree
// recursion on the state queue.
type differ struct {
	state   *DiffState
	visitor ChangeVisitor
}

func (d *differ) level(lhs, rhs object.TreeIter) error {
	lhsEntry, lhsOK, err := lhs.Next()
	if err != nil {
		return err
	}

	rhsEntry, rhsOK, err := rhs.Next()
	if err != nil {
		return err
	}

	for lhsOK || rhsOK {
		switch {
		case !lhsOK:
			if err = d.added(rhsEntry); err != nil {
				return err
			}

			rhsEntry, rhsOK, err = rhs.Next()
		case !rhsOK:
			if err = d.deleted(lhsEntry); err != nil {
				return err
			}

			lhsEntry, lhsOK, err = lhs.Next()
		default:
			switch entryCompare(lhsEntry, rhsEntry) {
			case 0:
				if err = d.matched(lhsEntry, rhsEntry); err != nil {
					return err
				}

				lhsEntry, lhsOK, err = lhs.Next()
				if err != nil {
					return err
				}

				rhsEntry, rhsOK, err = rhs.Next()
			case -1:
				if err = d.deleted(lhsEntry); err != nil {
					return err
				}

				lhsEntry, lhsOK, err = lhs.Next()
			default:
				if err = d.added(rhsEntry); err != nil {
					return err
				}

				rhsEntry, rhsOK, err = rhs.Next()
			}
		}

		if err != nil {
			return err
		}
	}

	return nil
}

// added visits an insertion and schedules descent into inserted subtrees.
func (d *differ) added(entry object.TreeEntry) error {
	change := Change{
		Action: Insert,
		To:     ChangeEntry{Name: entry.Name, Mode: entry.Mode, ID: entry.ID},
	}

	if d.visitor.VisitChange(change) == Cancel {
		return ErrCancelled
	}

	if entry.Mode.IsTree() {
		d.state.queue = append(d.state.queue, treeTask{rhs: entry.ID, hasRHS: true})
	}

	return nil
}

// deleted visits a deletion and schedules descent into deleted subtrees.
func (d *differ) deleted(entry object.TreeEntry) error {
	change := Change{
		Action: Delete,
		From:   ChangeEntry{Name: entry.Name, Mode: entry.Mode, ID: entry.ID},
	}

	if d.visitor.VisitChange(change) == Cancel {
		return ErrCancelled
	}

	if entry.Mode.IsTree() {
		d.state.queue = append(d.state.queue, treeTask{lhs: entry.ID, hasLHS: true})
	}

	return nil
}

// matched handles two entries sharing a name. The entry ordering guarantees
// both are subtrees or both are non-trees.
func (d *differ) matched(lhsEntry, rhsEntry object.TreeEntry) error {
	if lhsEntry.Mode.IsTree() {
		if lhsEntry.ID == rhsEntry.ID {
			return nil
		}

		change := Change{
			Action: Modify,
			From:   ChangeEntry{Name: lhsEntry.Name, Mode: lhsEntry.Mode, ID: lhsEntry.ID},
			To:     ChangeEntry{Name: rhsEntry.Name, Mode: rhsEntry.Mode, ID: rhsEntry.ID},
		}

		if d.visitor.VisitChange(change) == Cancel {
			return ErrCancelled
		}

		d.state.queue = append(d.state.queue, treeTask{
			lhs:    lhsEntry.ID,
			rhs:    rhsEntry.ID,
			hasLHS: true,
			hasRHS: true,
		})

		return nil
	}

	if lhsEntry.ID == rhsEntry.ID && lhsEntry.Mode == rhsEntry.Mode {
		return nil
	}

	change := Change{
		Action: Modify,
		From:   ChangeEntry{Name: lhsEntry.Name, Mode: lhsEntry.Mode, ID: lhsEntry.ID},
		To:     ChangeEntry{Name: rhsEntry.Name, Mode: rhsEntry.Mode, ID: rhsEntry.ID},
	}

	if d.visitor.VisitChange(change) == Cancel {
		return ErrCancelled
	}

	return nil
}

// entryCompare orders entries the way trees store them: a directory's name
// compares as if it ended with '/'. Equality implies both sides are the same
// entry class.
func entryCompare(a, b object.TreeEntry) int {
	common := min(len(a.Name), len(b.Name))
	if c := bytes.Compare(a.Name[:common], b.Name[:common]); c != 0 {
		return c
	}

	return cmp.Compare(tailByte(a, common), tailByte(b, common))
}

// tailByte is the virtual byte at position i: '/' past a directory name, -1
// past a non-directory name.
func tailByte(e object.TreeEntry, i int) int {
	if i < len(e.Name) {
		return int(e.Name[i])
	}

	if e.Mode.IsTree() {
		return int('/')
	}

	return -1
}
