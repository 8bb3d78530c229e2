package parallel

import "iter"

// Chunks batches a sequence into slices of at most size items. Each yielded
// slice owns its backing array, so chunks may be handed to concurrent
// workers. A size below one is treated as one.
func Chunks[T any](seq iter.Seq[T], size int) iter.Seq[[]T] {
	if size < 1 {
		size = 1
	}

	return func(yield func([]T) bool) {
		chunk := make([]T, 0, size)

		for item := range seq {
			chunk = append(chunk, item)
			if len(chunk) == size {
				if !yield(chunk) {
					return
				}

				chunk = make([]T, 0, size)
			}
		}

		if len(chunk) > 0 {
			yield(chunk)
		}
	}
}
