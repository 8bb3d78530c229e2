package parallel

import "runtime"

const (
	// defaultChunkSize is used when the caller gives no chunk size and the
	// input length is unknown.
	defaultChunkSize = 50

	// maxChunkSize bounds computed chunk sizes so progress reporting and
	// reduction stay responsive on huge inputs.
	maxChunkSize = 1000

	// chunksPerWorker is the desired number of chunks each worker should
	// see at minimum when the input length is known.
	chunksPerWorker = 2
)

// Workers returns the usable parallelism: the runtime's available
// parallelism, capped by limit when limit is positive.
func Workers(limit int) int {
	available := runtime.GOMAXPROCS(0)
	if limit > 0 && limit < available {
		return limit
	}

	return available
}

// Optimize computes an effective chunk size and worker count. A positive
// desiredChunkSize is taken as-is. Otherwise the chunk size is derived from
// lowerBound (a known minimum input length) when one is given, and defaulted
// when the input length is unknown. Whenever lowerBound is positive the
// worker count is capped so every worker gets at least one full chunk, so
// small inputs never over-parallelize. Workers never exceed available
// parallelism or threadLimit.
func Optimize(desiredChunkSize, lowerBound, threadLimit int) (chunkSize, threads int) {
	threads = Workers(threadLimit)

	switch {
	case desiredChunkSize > 0:
		chunkSize = desiredChunkSize
	case lowerBound > 0:
		chunkSize = lowerBound / (threads * chunksPerWorker)
		chunkSize = min(max(chunkSize, 1), maxChunkSize)
	default:
		chunkSize = defaultChunkSize
	}

	if lowerBound > 0 {
		if numChunks := lowerBound / chunkSize; numChunks < threads {
			threads = max(numChunks, 1)
		}
	}

	return chunkSize, threads
}
