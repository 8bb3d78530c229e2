package parallel

// Join runs left on its own goroutine and right on the calling goroutine,
// returning both results once both complete. This is the fork/join used
// above chunk level, where pack verification and entry decoding run side by
// side.
func Join[A, B any](left func() A, right func() B) (A, B) {
	var a A

	done := make(chan struct{})

	go func() {
		defer close(done)

		a = left()
	}()

	b := right()
	<-done

	return a, b
}
