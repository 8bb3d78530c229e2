// Package count turns a stream of object ids into the deduplicated set of
// objects a pack built from them would contain. Input objects are expanded
// according to a policy: taken as they are, widened to the full contents of
// their trees, or reduced to what their trees add over their ancestors.
package count

import (
	"fmt"
	"iter"
	"slices"
	"sync"

	"github.com/Sumatoshi-tech/packfang/pkg/cache"
	"github.com/Sumatoshi-tech/packfang/pkg/githash"
	"github.com/Sumatoshi-tech/packfang/pkg/interrupt"
	"github.com/Sumatoshi-tech/packfang/pkg/odb"
	"github.com/Sumatoshi-tech/packfang/pkg/pack"
	"github.com/Sumatoshi-tech/packfang/pkg/parallel"
	"github.com/Sumatoshi-tech/packfang/pkg/progress"
)

// ObjectExpansion selects how input ids grow into the counted object set.
type ObjectExpansion int8

const (
	// AsIs counts exactly the input objects.
	AsIs ObjectExpansion = iota
	// TreeContents counts each input object plus everything reachable from
	// its tree: commits and tags are followed to their tree first.
	TreeContents
	// TreeAdditionsComparedToAncestor counts each input commit plus the
	// objects its tree adds over the trees of its parent commits. Inputs
	// without parents fall back to full tree contents.
	TreeAdditionsComparedToAncestor
)

// String returns the flag spelling of the expansion policy.
func (e ObjectExpansion) String() string {
	switch e {
	case AsIs:
		return "as-is"
	case TreeContents:
		return "tree-contents"
	case TreeAdditionsComparedToAncestor:
		return "tree-additions"
	default:
		return fmt.Sprintf("ObjectExpansion(%d)", int8(e))
	}
}

// ParseObjectExpansion maps a flag spelling back to its policy.
func ParseObjectExpansion(name string) (ObjectExpansion, error) {
	switch name {
	case "as-is":
		return AsIs, nil
	case "tree-contents":
		return TreeContents, nil
	case "tree-additions":
		return TreeAdditionsComparedToAncestor, nil
	default:
		return 0, fmt.Errorf("unknown expansion policy %q", name)
	}
}

// Count is one selected object together with what is known about its
// placement in a pack.
type Count struct {
	ID           githash.Hash
	PackLocation PackLocation
}

// PackLocation records the result of an optional pack placement lookup.
type PackLocation struct {
	// LookedUp is true when a placement lookup was performed at all.
	LookedUp bool
	// Found is true when the lookup placed the object in a pack.
	Found bool
	// Location is the placement. Valid only when Found is true.
	Location pack.Location
}

// Options configures an expansion run.
type Options struct {
	// ThreadLimit caps the worker count. Zero uses every processor.
	ThreadLimit int
	// ChunkSize is how many input ids one worker claims at a time. Zero
	// picks a default.
	ChunkSize int
	// Expansion selects the policy applied to each input object.
	Expansion ObjectExpansion
	// Interrupt cooperatively cancels the run when triggered.
	Interrupt *interrupt.Flag
	// ObjectCacheBytes bounds the tree cache consulted while diffing under
	// the tree-additions policy. Zero disables that cache.
	ObjectCacheBytes int64
}

// inputID is one element of the input sequence: an id or the error that
// ended its production.
type inputID struct {
	id  githash.Hash
	err error
}

// workerState is the per-worker scratch that survives across chunks.
type workerState struct {
	buf1 []byte
	buf2 []byte
	dc   cache.DecodeEntry
	oc   cache.Object
	prog progress.Progress
}

// Objects expands ids over store with a bounded worker pool and returns one
// Count per selected object plus run statistics. Duplicates are dropped
// through a shared seen-set, so no object is counted twice regardless of
// worker count. newCache builds one decode cache per worker; nil disables
// pack caching. Pack placements are looked up for objects discovered
// through expansion.
func Objects(
	store odb.Store,
	newCache func() cache.DecodeEntry,
	ids iter.Seq2[githash.Hash, error],
	prog progress.Progress,
	opts Options,
) ([]Count, Outcome, error) {
	if prog == nil {
		prog = progress.Discard()
	}

	flag := opts.Interrupt
	if flag == nil {
		flag = new(interrupt.Flag)
	}

	if newCache == nil {
		newCache = cache.Noop
	}

	chunkSize, threads := parallel.Optimize(opts.ChunkSize, 0, opts.ThreadLimit)
	seen := &syncSeen{}

	newState := func(worker int) *workerState {
		child := prog.AddChild(fmt.Sprintf("thread %d", worker))
		child.Init(0, "objects")

		return &workerState{
			dc:   newCache(),
			oc:   objectCache(opts.ObjectCacheBytes),
			prog: child,
		}
	}

	work := func(chunk []inputID, st *workerState) (expansion, error) {
		counts, outcome, err := expand(store, opts.Expansion, seen, slices.Values(chunk), st, flag, true)
		if err != nil {
			return expansion{}, err
		}

		return expansion{counts: counts, outcome: outcome}, nil
	}

	result, err := parallel.InParallel(
		parallel.Chunks(pairSeq(ids), chunkSize),
		threads,
		newState,
		work,
		&expansionReducer{},
	)
	if err != nil {
		return nil, Outcome{}, err
	}

	return result.counts, result.outcome, nil
}

// ObjectsUnthreaded is Objects on the calling goroutine only, saving the
// scheduling overhead for small inputs. ThreadLimit and ChunkSize are
// ignored and pack placements are not looked up.
func ObjectsUnthreaded(
	store odb.Store,
	dc cache.DecodeEntry,
	ids iter.Seq2[githash.Hash, error],
	prog progress.Progress,
	opts Options,
) ([]Count, Outcome, error) {
	if prog == nil {
		prog = progress.Discard()
	}

	flag := opts.Interrupt
	if flag == nil {
		flag = new(interrupt.Flag)
	}

	st := &workerState{dc: dc, oc: objectCache(opts.ObjectCacheBytes), prog: prog}

	counts, outcome, err := expand(store, opts.Expansion, mapSeen{}, pairSeq(ids), st, flag, false)
	if err != nil {
		return nil, Outcome{}, err
	}

	outcome.TotalObjects = uint64(len(counts))

	return counts, outcome, nil
}

// pairSeq flattens an id sequence with errors into single input elements.
func pairSeq(ids iter.Seq2[githash.Hash, error]) iter.Seq[inputID] {
	return func(yield func(inputID) bool) {
		for id, err := range ids {
			if !yield(inputID{id: id, err: err}) {
				return
			}
		}
	}
}

// seenSet records which ids have been counted. Add reports whether id was
// absent, claiming it for the caller.
type seenSet interface {
	Add(id githash.Hash) bool
}

// syncSeen is the insert-only concurrent seen-set shared by workers.
type syncSeen struct {
	m sync.Map
}

func (s *syncSeen) Add(id githash.Hash) bool {
	_, loaded := s.m.LoadOrStore(id, struct{}{})

	return !loaded
}

// mapSeen is the single-threaded seen-set.
type mapSeen map[githash.Hash]struct{}

func (s mapSeen) Add(id githash.Hash) bool {
	if _, ok := s[id]; ok {
		return false
	}

	s[id] = struct{}{}

	return true
}

// expansion is one chunk's worth of counts and statistics.
type expansion struct {
	counts  []Count
	outcome Outcome
}

// expansionReducer concatenates chunk counts and sums chunk statistics.
type expansionReducer struct {
	counts  []Count
	outcome Outcome
}

// Feed implements parallel.Reducer.
func (r *expansionReducer) Feed(item expansion) error {
	item.outcome.TotalObjects = uint64(len(item.counts))
	r.outcome.Add(item.outcome)
	r.counts = append(r.counts, item.counts...)

	return nil
}

// Finalize implements parallel.Reducer.
func (r *expansionReducer) Finalize() (expansion, error) {
	return expansion{counts: r.counts, outcome: r.outcome}, nil
}
