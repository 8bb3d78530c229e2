// Package revlist walks commit ancestry newest-first, producing the id
// sequences object counting consumes.
package revlist

import (
	"container/heap"
	"iter"

	"github.com/Sumatoshi-tech/packfang/pkg/cache"
	"github.com/Sumatoshi-tech/packfang/pkg/githash"
	"github.com/Sumatoshi-tech/packfang/pkg/object"
	"github.com/Sumatoshi-tech/packfang/pkg/odb"
)

// Info describes one commit met during an ancestry walk.
type Info struct {
	// ID is the commit id.
	ID githash.Hash
	// CommitTime is the committer timestamp in seconds since the epoch.
	CommitTime int64
	// ParentIDs are the commit's parents in commit order.
	ParentIDs []githash.Hash
}

// queueEntry is one scheduled commit. seq breaks timestamp ties so commits
// sharing a second pop in discovery order.
type queueEntry struct {
	info Info
	seq  uint64
}

// commitQueue is a max-heap on commit time. Implements heap.Interface.
type commitQueue []queueEntry

func (q commitQueue) Len() int { return len(q) }

func (q commitQueue) Less(i, j int) bool {
	if q[i].info.CommitTime != q[j].info.CommitTime {
		return q[i].info.CommitTime > q[j].info.CommitTime
	}

	return q[i].seq < q[j].seq
}

func (q commitQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *commitQueue) Push(x any) { *q = append(*q, x.(queueEntry)) }

func (q *commitQueue) Pop() any {
	old := *q
	entry := old[len(old)-1]
	*q = old[:len(old)-1]

	return entry
}

// Ancestors yields tip and every commit reachable from it, newest committer
// timestamp first; equal timestamps come out in discovery order and each
// commit exactly once. Annotated tags peel to their target before the walk
// starts; a tip of any other kind fails with a WrongKindError. Decode
// failures end the sequence with the failure as its last element.
func Ancestors(store odb.Store, dc cache.DecodeEntry, tip githash.Hash) iter.Seq2[Info, error] {
	return func(yield func(Info, error) bool) {
		var (
			buf   []byte
			queue commitQueue
			seq   uint64
		)

		seen := map[githash.Hash]struct{}{}

		schedule := func(id githash.Hash, o object.Object) error {
			if o.Kind != object.Commit {
				return &odb.WrongKindError{ID: id, Want: object.Commit, Got: o.Kind}
			}

			parents, err := object.CommitParents(o.Data, nil)
			if err != nil {
				return err
			}

			when, err := object.CommitTime(o.Data)
			if err != nil {
				return err
			}

			heap.Push(&queue, queueEntry{
				info: Info{ID: id, CommitTime: when, ParentIDs: parents},
				seq:  seq,
			})
			seq++

			return nil
		}

		id := tip

		o, err := store.Find(id, &buf, dc)
		for err == nil && o.Kind == object.Tag {
			if id, err = object.TagTarget(o.Data); err != nil {
				break
			}

			o, err = store.Find(id, &buf, dc)
		}

		if err == nil {
			seen[id] = struct{}{}
			err = schedule(id, o)
		}

		if err != nil {
			yield(Info{}, err)

			return
		}

		for queue.Len() > 0 {
			entry := heap.Pop(&queue).(queueEntry)

			if !yield(entry.info, nil) {
				return
			}

			for _, parent := range entry.info.ParentIDs {
				if _, ok := seen[parent]; ok {
					continue
				}

				seen[parent] = struct{}{}

				po, err := store.Find(parent, &buf, dc)
				if err == nil {
					err = schedule(parent, po)
				}

				if err != nil {
					yield(Info{}, err)

					return
				}
			}
		}
	}
}

// IDs reduces an ancestry walk to the bare id sequence object counting
// consumes.
func IDs(walk iter.Seq2[Info, error]) iter.Seq2[githash.Hash, error] {
	return func(yield func(githash.Hash, error) bool) {
		for info, err := range walk {
			if !yield(info.ID, err) {
				return
			}
		}
	}
}
