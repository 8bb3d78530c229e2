// Package interrupt provides the shared cooperative cancellation flag that
// engine calls poll at their safe points. Cancellation is advisory: a worker
// midway through one object finishes that object before observing the flag.
package interrupt

import (
	"errors"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
)

// ErrInterrupted is returned by calls aborted through a triggered Flag.
var ErrInterrupted = errors.New("interrupted")

// Flag is a cancellation switch shared between concurrent activities of one
// call. The zero value is ready to use and not triggered.
type Flag struct {
	triggered atomic.Bool
}

// Trigger requests cancellation.
func (f *Flag) Trigger() {
	f.triggered.Store(true)
}

// IsTriggered reports whether cancellation has been requested.
func (f *Flag) IsTriggered() bool {
	return f.triggered.Load()
}

// Reset clears the flag so it can be reused by a later call.
func (f *Flag) Reset() {
	f.triggered.Store(false)
}

// HandleSignals triggers the flag when the process receives SIGINT or
// SIGTERM. The returned stop function releases the handler; the flag keeps
// whatever state it reached.
func (f *Flag) HandleSignals() (stop func()) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})

	go func() {
		select {
		case <-signals:
			f.Trigger()
		case <-done:
		}
	}()

	return func() {
		signal.Stop(signals)
		close(done)
	}
}
