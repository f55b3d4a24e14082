// Package recovery guarantees teardown of recording resources on every
// exit path: normal completion, fault, or external termination signal.
//
// Teardown runs exactly once no matter how many paths race to trigger it.
// A session's own stop, the process signal handler, and a deferred call in
// main may all invoke the same Cleanup.
package recovery

import (
	"os"
	"os/signal"
	"sync"

	"github.com/replaykit/recorderd/internal/infrastructure/logging"
	"go.uber.org/zap"
)

// Cleanup runs a set of teardown functions exactly once.
type Cleanup struct {
	once sync.Once
	fns  []func() error
	log  *logging.Logger
}

// New creates a cleanup over the given teardown functions. Functions run
// in order; a failing step is logged and the remaining steps still run.
func New(log *logging.Logger, fns ...func() error) *Cleanup {
	if log == nil {
		log = logging.Nop()
	}
	return &Cleanup{fns: fns, log: log}
}

// Run executes the teardown. Safe to invoke multiple times and from
// multiple goroutines; only the first call does anything.
func (c *Cleanup) Run() {
	c.once.Do(func() {
		for _, fn := range c.fns {
			if err := fn(); err != nil {
				c.log.Warn("cleanup step failed", zap.Error(err))
			}
		}
	})
}

// OnSignal arranges for Run to execute when one of the given signals
// arrives. It returns a stop function that detaches the handler without
// running the teardown (for when a clean path already ran it).
func (c *Cleanup) OnSignal(signals ...os.Signal) func() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, signals...)

	done := make(chan struct{})
	go func() {
		select {
		case sig := <-ch:
			c.log.Info("signal received, tearing down", zap.String("signal", sig.String()))
			c.Run()
		case <-done:
		}
		signal.Stop(ch)
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}
}
