package count

import (
	"github.com/Sumatoshi-tech/packfang/pkg/githash"
	"github.com/Sumatoshi-tech/packfang/pkg/object"
	"github.com/Sumatoshi-tech/packfang/pkg/tree"
)

// allUnseen is the walk visitor behind full tree expansion. Subtrees gate
// descent on the shared seen-set; blobs that pass it are stashed for later
// counting.
type allUnseen struct {
	seen     seenSet
	nonTrees []githash.Hash
}

func (d *allUnseen) clear() {
	d.nonTrees = d.nonTrees[:0]
}

// VisitTree claims the subtree, descending only on first sight.
func (d *allUnseen) VisitTree(entry object.TreeEntry) tree.Action {
	if d.seen.Add(entry.ID) {
		return tree.Continue
	}

	return tree.Skip
}

// VisitNonTree stashes unseen blobs. Gitlink entries point at commits of
// another repository and are not counted.
func (d *allUnseen) VisitNonTree(entry object.TreeEntry) tree.Action {
	if entry.Mode.IsGitlink() {
		return tree.Continue
	}

	if d.seen.Add(entry.ID) {
		d.nonTrees = append(d.nonTrees, entry.ID)
	}

	return tree.Continue
}

// allNew is the diff visitor behind ancestor comparison. It keeps the target
// side of insertions and modifications; deletions need no objects.
type allNew struct {
	seen    seenSet
	objects []githash.Hash
}

func (d *allNew) clear() {
	d.objects = d.objects[:0]
}

// VisitChange stashes the unseen target id of each addition or rewrite.
func (d *allNew) VisitChange(change tree.Change) tree.Action {
	switch change.Action {
	case tree.Insert, tree.Modify:
		if change.To.Mode.IsGitlink() {
			return tree.Continue
		}

		if d.seen.Add(change.To.ID) {
			d.objects = append(d.objects, change.To.ID)
		}
	case tree.Delete:
	}

	return tree.Continue
}
