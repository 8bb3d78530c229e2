package pack

import (
	"crypto/sha1"
	"errors"
	"fmt"
	"slices"

	"github.com/Sumatoshi-tech/packfang/pkg/cache"
	"github.com/Sumatoshi-tech/packfang/pkg/githash"
	"github.com/Sumatoshi-tech/packfang/pkg/interrupt"
	"github.com/Sumatoshi-tech/packfang/pkg/object"
	"github.com/Sumatoshi-tech/packfang/pkg/parallel"
	"github.com/Sumatoshi-tech/packfang/pkg/progress"
)

// decodeBufLen preallocates each worker's decode buffer.
const decodeBufLen = 2048

// Processor examines one decoded object during traversal. Implementations
// run concurrently, one instance per worker.
type Processor func(kind object.Kind, data []byte, entry IndexEntry, prog progress.Progress) error

// Options configures Traverse.
type Options struct {
	// ThreadLimit caps worker goroutines; zero uses all available cores.
	ThreadLimit int
	// ChunkSize is how many entries one worker claims at a time. Zero
	// derives one from the entry count.
	ChunkSize int
	// Check selects the safety checks performed while traversing.
	Check SafetyCheck
	// Interrupt aborts the traversal when triggered. Traverse triggers it
	// itself when file verification fails, so decoding stops early instead
	// of running the pack to completion.
	Interrupt *interrupt.Flag
}

// traverseState is the per-worker scratch of one traversal.
type traverseState struct {
	cache   cache.DecodeEntry
	process Processor
	buf     []byte
	prog    progress.Progress
}

// Traverse decodes every object in the pack while verifying it according to
// opts.Check, handing each decoded object to a processor. Whole-file
// verification and entry decoding run concurrently. It returns the index
// checksum identifying the pack-index pair and the aggregated statistics.
//
// newProcessor and newCache are invoked once per worker; either may be nil
// to process or cache nothing.
func (idx *Index) Traverse(
	d *Data,
	prog progress.Progress,
	newProcessor func() Processor,
	newCache func() cache.DecodeEntry,
	opts Options,
) (githash.Hash, TraversalOutcome, error) {
	if prog == nil {
		prog = progress.Discard()
	}

	flag := opts.Interrupt
	if flag == nil {
		flag = new(interrupt.Flag)
	}

	type verifyResult struct {
		id  githash.Hash
		err error
	}

	type traverseResult struct {
		outcome TraversalOutcome
		err     error
	}

	packProg := prog.AddChild("sha1 of pack")
	indexProg := prog.AddChild("sha1 of index")

	verified, traversed := parallel.Join(
		func() verifyResult {
			id, err := idx.possiblyVerify(d, opts.Check, flag, packProg, indexProg)
			if err != nil {
				flag.Trigger()
			}

			return verifyResult{id: id, err: err}
		},
		func() traverseResult {
			outcome, err := idx.traverseEntries(d, prog, newProcessor, newCache, opts, flag)

			return traverseResult{outcome: outcome, err: err}
		},
	)

	if verified.err != nil {
		return githash.Zero(), TraversalOutcome{}, verified.err
	}

	if traversed.err != nil {
		return githash.Zero(), TraversalOutcome{}, traversed.err
	}

	return verified.id, traversed.outcome, nil
}

// possiblyVerify runs the whole-file checks selected by check and returns
// the index checksum that identifies this pack-index pair.
func (idx *Index) possiblyVerify(
	d *Data,
	check SafetyCheck,
	flag *interrupt.Flag,
	packProg, indexProg progress.Progress,
) (githash.Hash, error) {
	if !check.FileChecksum() {
		return idx.IndexChecksum(), nil
	}

	if recorded, actual := idx.PackChecksum(), d.Checksum(); recorded != actual {
		return githash.Zero(), &ChecksumMismatchError{Expected: recorded, Actual: actual}
	}

	if _, err := d.VerifyChecksum(flag, packProg); err != nil {
		return githash.Zero(), err
	}

	return idx.VerifyChecksum(flag, indexProg)
}

// traverseEntries decodes all entries in offset order across a worker pool
// and folds their statistics into one outcome.
func (idx *Index) traverseEntries(
	d *Data,
	prog progress.Progress,
	newProcessor func() Processor,
	newCache func() cache.DecodeEntry,
	opts Options,
	flag *interrupt.Flag,
) (TraversalOutcome, error) {
	collectProg := prog.AddChild("collecting sorted index")
	collectProg.Init(int64(idx.NumObjects()), "entries")
	entries := idx.EntriesSortedByOffset()
	collectProg.IncBy(int64(len(entries)))

	chunkSize, threads := parallel.Optimize(opts.ChunkSize, len(entries), opts.ThreadLimit)

	reduceProg := prog.AddChild("Traversing")
	reduceProg.Init(int64(idx.NumObjects()), "objects")

	newState := func(worker int) *traverseState {
		dc := cache.Noop()
		if newCache != nil {
			dc = newCache()
		}

		var proc Processor
		if newProcessor != nil {
			proc = newProcessor()
		}

		return &traverseState{
			cache:   dc,
			process: proc,
			buf:     make([]byte, 0, decodeBufLen),
			prog:    reduceProg.AddChild(fmt.Sprintf("thread %d", worker)),
		}
	}

	work := func(chunk []IndexEntry, st *traverseState) ([]DecodeStats, error) {
		st.prog.Init(int64(len(chunk)), "objects")

		stats := make([]DecodeStats, 0, len(chunk))

		for _, indexEntry := range chunk {
			stat, err := idx.decodeAndProcessEntry(d, opts.Check, st, indexEntry)
			st.prog.Inc()

			if err != nil {
				var decodeErr *DecodeEntryError
				if errors.As(err, &decodeErr) && !opts.Check.FatalDecodeError() {
					st.prog.Info(fmt.Sprintf("Ignoring decode error: %v", err))

					continue
				}

				return nil, err
			}

			stats = append(stats, stat)
		}

		return stats, nil
	}

	reducer := &traverseReducer{
		prog: reduceProg,
		flag: flag,
		outcome: TraversalOutcome{
			ObjectsPerChainLength: make(map[uint32]uint32),
			PackSize:              d.Len(),
		},
	}

	return parallel.InParallelIf(
		func() bool { return len(entries) > chunkSize*threads },
		slices.Chunk(entries, chunkSize),
		threads,
		newState,
		work,
		reducer,
	)
}

// decodeAndProcessEntry decodes one entry, verifies it per check and hands
// the reconstructed object to the worker's processor.
func (idx *Index) decodeAndProcessEntry(
	d *Data,
	check SafetyCheck,
	st *traverseState,
	indexEntry IndexEntry,
) (DecodeStats, error) {
	entry, err := d.EntryAt(indexEntry.Offset)
	if err != nil {
		return DecodeStats{}, &DecodeEntryError{Offset: indexEntry.Offset, Err: err}
	}

	resolve := func(id githash.Hash, _ *[]byte) (ResolvedBase, bool) {
		i, ok := idx.Lookup(id)
		if !ok {
			return ResolvedBase{}, false
		}

		base, err := d.EntryAt(idx.Offset(i))
		if err != nil {
			return ResolvedBase{}, false
		}

		return ResolvedBase{InPack: true, Entry: base}, true
	}

	stats, err := d.DecodeEntry(entry, &st.buf, resolve, st.cache)
	if err != nil {
		return DecodeStats{}, err
	}

	entrySize := entry.DataOffset - entry.Offset + stats.CompressedSize

	if err := verifyEntry(d, check, stats.Kind, st.buf, indexEntry, entrySize); err != nil {
		return DecodeStats{}, err
	}

	if st.process != nil {
		if err := st.process(stats.Kind, st.buf, indexEntry, st.prog); err != nil {
			return DecodeStats{}, fmt.Errorf("process object %s: %w", indexEntry.ID, err)
		}
	}

	return stats, nil
}

// verifyEntry re-hashes the decoded object and checks the raw entry crc32
// against what the index records, when the policy asks for it.
func verifyEntry(
	d *Data,
	check SafetyCheck,
	kind object.Kind,
	data []byte,
	indexEntry IndexEntry,
	entrySize uint64,
) error {
	if !check.ObjectChecksum() {
		return nil
	}

	h := sha1.New()
	h.Write(object.LooseHeader(kind, len(data)))
	h.Write(data)

	if actual := githash.FromBytes(h.Sum(nil)); actual != indexEntry.ID {
		return &ObjectMismatchError{
			Offset:   indexEntry.Offset,
			Kind:     kind,
			Expected: indexEntry.ID,
			Actual:   actual,
		}
	}

	if actual := d.EntryCRC32(indexEntry.Offset, entrySize); actual != indexEntry.CRC {
		return &CRC32MismatchError{Offset: indexEntry.Offset, Expected: indexEntry.CRC, Actual: actual}
	}

	return nil
}
