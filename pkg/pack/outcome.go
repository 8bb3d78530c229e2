package pack

import (
	"github.com/Sumatoshi-tech/packfang/pkg/interrupt"
	"github.com/Sumatoshi-tech/packfang/pkg/object"
	"github.com/Sumatoshi-tech/packfang/pkg/progress"
)

// TraversalOutcome aggregates per-entry decode statistics over a whole pack.
// Entries skipped by a tolerant safety check are absent from every figure.
type TraversalOutcome struct {
	NumCommits uint32
	NumTrees   uint32
	NumBlobs   uint32
	NumTags    uint32

	// ObjectsPerChainLength counts decoded objects by delta chain length.
	ObjectsPerChainLength map[uint32]uint32

	// TotalCompressedSize sums the consumed zlib stream bytes per entry.
	TotalCompressedSize uint64
	// TotalDecompressedSize sums each entry's own inflated payload size.
	TotalDecompressedSize uint64
	// TotalObjectSize sums the fully reconstructed object sizes.
	TotalObjectSize uint64
	// PackSize is the pack data file length in bytes.
	PackSize uint64
}

// TotalObjects returns how many entries contributed to the statistics.
func (o *TraversalOutcome) TotalObjects() uint32 {
	return o.NumCommits + o.NumTrees + o.NumBlobs + o.NumTags
}

// AverageObjectSize returns the mean reconstructed object size in bytes.
func (o *TraversalOutcome) AverageObjectSize() uint64 {
	n := o.TotalObjects()
	if n == 0 {
		return 0
	}

	return o.TotalObjectSize / uint64(n)
}

// AverageCompressedSize returns the mean compressed entry size in bytes.
func (o *TraversalOutcome) AverageCompressedSize() uint64 {
	n := o.TotalObjects()
	if n == 0 {
		return 0
	}

	return o.TotalCompressedSize / uint64(n)
}

// AverageDecompressedSize returns the mean inflated payload size in bytes.
func (o *TraversalOutcome) AverageDecompressedSize() uint64 {
	n := o.TotalObjects()
	if n == 0 {
		return 0
	}

	return o.TotalDecompressedSize / uint64(n)
}

// AverageChainLength returns the mean delta chain length across all decoded
// entries.
func (o *TraversalOutcome) AverageChainLength() float64 {
	n := o.TotalObjects()
	if n == 0 {
		return 0
	}

	var total uint64
	for length, count := range o.ObjectsPerChainLength {
		total += uint64(length) * uint64(count)
	}

	return float64(total) / float64(n)
}

// add merges one entry's statistics into the outcome.
func (o *TraversalOutcome) add(s DecodeStats) {
	o.ObjectsPerChainLength[s.NumDeltas]++
	o.TotalCompressedSize += s.CompressedSize
	o.TotalDecompressedSize += s.DecompressedSize
	o.TotalObjectSize += s.ObjectSize

	switch s.Kind {
	case object.Commit:
		o.NumCommits++
	case object.Tree:
		o.NumTrees++
	case object.Blob:
		o.NumBlobs++
	case object.Tag:
		o.NumTags++
	}
}

// traverseReducer folds worker chunk results into one TraversalOutcome and
// aborts the run as soon as the shared interrupt flag trips, which is also
// how a failed file verification stops decoding.
type traverseReducer struct {
	outcome     TraversalOutcome
	prog        progress.Progress
	flag        *interrupt.Flag
	entriesSeen int64
}

// Feed implements parallel.Reducer.
func (r *traverseReducer) Feed(stats []DecodeStats) error {
	r.entriesSeen += int64(len(stats))

	for _, s := range stats {
		r.outcome.add(s)
	}

	r.prog.Set(r.entriesSeen)

	if r.flag.IsTriggered() {
		return interrupt.ErrInterrupted
	}

	return nil
}

// Finalize implements parallel.Reducer.
func (r *traverseReducer) Finalize() (TraversalOutcome, error) {
	return r.outcome, nil
}
