package symex

import (
	"os"
	"os/signal"
	"sync/atomic"
)

// halted is polled once per scheduler iteration in Executor.Run; no
// ecosystem package in this module's dependency surface offers a
// substitute for catching process signals, so this one corner stays on
// the standard library (os/signal) by necessity rather than preference.
var halted atomic.Bool

// Halted reports whether Halt has been called.
func Halted() bool { return halted.Load() }

// Halt requests that every running Executor.Run loop stop at its next
// scheduler iteration.
func Halt() { halted.Store(true) }

// Reset clears a previous Halt request, for reuse across multiple runs
// in the same process (e.g. a test suite or a long-lived server).
func Reset() { halted.Store(false) }

// InstallSignalHandler arranges for SIGINT to call Halt instead of
// terminating the process outright, so a running search can flush its
// test cases before exiting. Returns a function that stops watching for
// the signal.
func InstallSignalHandler() (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt)
	done := make(chan struct{})
	go func() {
		select {
		case <-ch:
			Halt()
		case <-done:
		}
	}()
	return func() {
		signal.Stop(ch)
		close(done)
	}
}
