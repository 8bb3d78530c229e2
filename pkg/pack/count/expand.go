package count

import (
	"fmt"
	"iter"

	"github.com/Sumatoshi-tech/packfang/pkg/cache"
	"github.com/Sumatoshi-tech/packfang/pkg/githash"
	"github.com/Sumatoshi-tech/packfang/pkg/interrupt"
	"github.com/Sumatoshi-tech/packfang/pkg/object"
	"github.com/Sumatoshi-tech/packfang/pkg/odb"
	"github.com/Sumatoshi-tech/packfang/pkg/tree"
)

// expander carries the scratch state of one expansion pass over a sequence
// of input ids. All of it is single-goroutine; sharing across workers
// happens only through the seen-set.
type expander struct {
	store            odb.Store
	seen             seenSet
	st               *workerState
	flag             *interrupt.Flag
	allowPackLookups bool

	walkState tree.WalkState
	diffState tree.DiffState
	parentIDs []githash.Hash
	traverse  allUnseen
	changes   allNew

	out     []Count
	outcome Outcome
}

// expand applies the expansion policy to every id in ids and returns the
// produced counts with their statistics. The first failure aborts the pass.
func expand(
	store odb.Store,
	policy ObjectExpansion,
	seen seenSet,
	ids iter.Seq[inputID],
	st *workerState,
	flag *interrupt.Flag,
	allowPackLookups bool,
) ([]Count, Outcome, error) {
	e := &expander{
		store:            store,
		seen:             seen,
		st:               st,
		flag:             flag,
		allowPackLookups: allowPackLookups,
		traverse:         allUnseen{seen: seen},
		changes:          allNew{seen: seen},
	}

	for input := range ids {
		if e.flag.IsTriggered() {
			return nil, Outcome{}, interrupt.ErrInterrupted
		}

		if input.err != nil {
			return nil, Outcome{}, fmt.Errorf("input iteration: %w", input.err)
		}

		o, err := e.store.Find(input.id, &e.st.buf1, e.st.dc)
		if err != nil {
			return nil, Outcome{}, err
		}

		e.outcome.InputObjects++

		switch policy {
		case TreeContents:
			err = e.treeContents(input.id, o)
		case TreeAdditionsComparedToAncestor:
			err = e.treeAdditions(input.id, o)
		default:
			e.pushUnique(input.id, false)
		}

		if err != nil {
			return nil, Outcome{}, err
		}
	}

	return e.out, e.outcome, nil
}

// treeContents counts o itself and everything reachable from its tree.
// Commits and tags hop to their tree or target first.
func (e *expander) treeContents(id githash.Hash, o object.Object) error {
	for {
		e.pushUnique(id, false)

		var err error

		switch o.Kind {
		case object.Tree:
			return e.walkTree(object.NewTreeIter(o.Data), &e.st.buf1)
		case object.Blob:
			return nil
		case object.Commit:
			id, err = object.CommitTree(o.Data)
		case object.Tag:
			id, err = object.TagTarget(o.Data)
		}

		if err != nil {
			return err
		}

		o, err = e.store.Find(id, &e.st.buf1, e.st.dc)
		if err != nil {
			return err
		}

		e.outcome.ExpandedObjects++
	}
}

// treeAdditions counts o itself plus, for commits, what the commit's tree
// adds over the trees of its parents. Tags hop to their target first; bare
// trees and blobs count as themselves only.
func (e *expander) treeAdditions(id githash.Hash, o object.Object) error {
	for {
		e.pushUnique(id, false)

		var err error

		switch o.Kind {
		case object.Tree, object.Blob:
			return nil
		case object.Commit:
			return e.commitAdditions(o)
		case object.Tag:
			id, err = object.TagTarget(o.Data)
		}

		if err != nil {
			return err
		}

		o, err = e.store.Find(id, &e.st.buf1, e.st.dc)
		if err != nil {
			return err
		}

		e.outcome.ExpandedObjects++
	}
}

// commitAdditions diffs the commit's tree against each parent's tree and
// counts what only the new side holds. Root commits fall back to a full
// tree walk.
func (e *expander) commitAdditions(commit object.Object) error {
	treeID, err := object.CommitTree(commit.Data)
	if err != nil {
		return err
	}

	parentIDs, err := object.CommitParents(commit.Data, e.parentIDs[:0])
	if err != nil {
		return err
	}

	e.parentIDs = parentIDs

	treeObj, err := e.store.Find(treeID, &e.st.buf1, e.st.dc)
	if err != nil {
		return err
	}

	e.pushUnique(treeID, true)

	// The current tree stays in buf1 for the whole diff; parent objects go
	// through buf2.
	currentTree := object.NewTreeIter(treeObj.Data)

	if len(parentIDs) == 0 {
		return e.walkTree(currentTree, &e.st.buf2)
	}

	e.changes.clear()

	for _, parentID := range parentIDs {
		parentObj, err := e.store.Find(parentID, &e.st.buf2, e.st.dc)
		if err != nil {
			return err
		}

		e.pushUnique(parentID, true)

		parentTreeID, err := object.CommitTree(parentObj.Data)
		if err != nil {
			return err
		}

		parentTreeObj, err := e.store.Find(parentTreeID, &e.st.buf2, e.st.dc)
		if err != nil {
			return err
		}

		e.pushUnique(parentTreeID, true)

		diff := tree.NewChanges(object.NewTreeIter(parentTreeObj.Data))
		if err := diff.NeededToObtain(currentTree, &e.diffState, e.findCached, &e.changes); err != nil {
			return err
		}
	}

	for _, addedID := range e.changes.objects {
		e.out = append(e.out, e.idToCount(addedID, &e.st.buf2))
	}

	return nil
}

// walkTree counts every unseen object below root: subtrees as soon as they
// are fetched, other entries afterwards via idToCount.
func (e *expander) walkTree(root object.TreeIter, leafBuf *[]byte) error {
	e.traverse.clear()

	if err := tree.BreadthFirst(root, &e.walkState, e.findCounted, &e.traverse); err != nil {
		return err
	}

	for _, leafID := range e.traverse.nonTrees {
		e.out = append(e.out, e.idToCount(leafID, leafBuf))
	}

	return nil
}

// findCounted resolves subtrees for walkTree, counting each tree as it is
// fetched. A failed fetch aborts the walk.
func (e *expander) findCounted(id githash.Hash, buf *[]byte) (object.TreeIter, bool) {
	e.outcome.DecodedObjects++

	found, err := e.store.Find(id, buf, e.st.dc)
	if err != nil {
		return object.TreeIter{}, false
	}

	e.st.prog.Inc()
	e.outcome.ExpandedObjects++
	e.out = append(e.out, Count{ID: id})

	return found.TreeIterator()
}

// findCached resolves subtrees for tree diffs through the object cache, so
// trees shared between parent diffs decode once.
func (e *expander) findCached(id githash.Hash, buf *[]byte) (object.TreeIter, bool) {
	e.outcome.DecodedObjects++

	if _, ok := e.st.oc.Get(id, buf); ok {
		return object.NewTreeIter(*buf), true
	}

	it, err := e.store.FindTreeIter(id, buf, e.st.dc)
	if err != nil {
		return object.TreeIter{}, false
	}

	e.st.oc.Put(id, object.Tree, *buf)

	return it, true
}

// pushUnique claims id in the seen-set and, when it was new, counts it.
func (e *expander) pushUnique(id githash.Hash, countExpanded bool) {
	if !e.seen.Add(id) {
		return
	}

	e.st.prog.Inc()
	e.outcome.DecodedObjects++

	if countExpanded {
		e.outcome.ExpandedObjects++
	}

	e.out = append(e.out, Count{ID: id})
}

// idToCount counts an id discovered through expansion, optionally looking
// up its pack placement.
func (e *expander) idToCount(id githash.Hash, buf *[]byte) Count {
	e.st.prog.Inc()
	e.outcome.ExpandedObjects++

	c := Count{ID: id}

	if e.allowPackLookups {
		c.PackLocation.LookedUp = true

		if loc, ok := e.store.LocationByOid(id, buf); ok {
			c.PackLocation.Found = true
			c.PackLocation.Location = loc
		}
	}

	return c
}

// objectCache picks the tree cache for diffing: capped when a budget is
// set, disabled otherwise.
func objectCache(maxBytes int64) cache.Object {
	if maxBytes > 0 {
		return cache.NewObjectLRU(maxBytes)
	}

	return cache.NeverObject()
}
