// Package worker runs the mining workflow of a node in the background.
package worker

import (
	"sync"

	"github.com/ardanlabs/grokchain/foundation/blockchain/state"
	"go.uber.org/atomic"
)

// Stats represents the outcome of the mining operations so far.
type Stats struct {
	Mined     int64 `json:"mined"`
	Cancelled int64 `json:"cancelled"`
	Failed    int64 `json:"failed"`
}

// Worker mines blocks whenever the state signals there is work.
type Worker struct {
	state        *state.State
	wg           sync.WaitGroup
	shut         chan struct{}
	startMining  chan struct{}
	cancelMining chan chan struct{}
	evHandler    state.EventHandler

	mined     atomic.Int64
	cancelled atomic.Int64
	failed    atomic.Int64
}

// Run constructs a worker, registers it with the state and starts the
// mining goroutine. Run returns once the goroutine is running.
func Run(st *state.State, evHandler state.EventHandler) *Worker {
	if evHandler == nil {
		evHandler = func(string, ...any) {}
	}

	w := Worker{
		state:        st,
		shut:         make(chan struct{}),
		startMining:  make(chan struct{}, 1),
		cancelMining: make(chan chan struct{}, 1),
		evHandler:    evHandler,
	}

	st.Worker = &w

	started := make(chan struct{})
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		close(started)
		w.miningOperations()
	}()
	<-started

	// Mine whatever is already waiting in the mempool.
	w.SignalStartMining()

	return &w
}

// Stats returns the mining counters.
func (w *Worker) Stats() Stats {
	return Stats{
		Mined:     w.mined.Load(),
		Cancelled: w.cancelled.Load(),
		Failed:    w.failed.Load(),
	}
}

// =============================================================================
// These methods implement the state.Worker interface.

// Shutdown cancels any mining in progress and waits for the mining
// goroutine to terminate.
func (w *Worker) Shutdown() {
	w.evHandler("worker: shutdown: started")
	defer w.evHandler("worker: shutdown: completed")

	done := w.SignalCancelMining()
	close(w.shut)
	done()

	w.wg.Wait()
}

// SignalStartMining asks for a mining operation. A signal already pending
// covers this one.
func (w *Worker) SignalStartMining() {
	select {
	case w.startMining <- struct{}{}:
		w.evHandler("worker: SignalStartMining: mining signaled")
	default:
	}
}

// SignalCancelMining stops the mining operation in progress, if any. The
// operation holds until done is called, so the caller can finish its own
// state changes before the next operation starts.
func (w *Worker) SignalCancelMining() (done func()) {
	wait := make(chan struct{})

	select {
	case w.cancelMining <- wait:
		w.evHandler("worker: SignalCancelMining: MINING: CANCEL: signaled")
	default:
	}

	var once sync.Once
	return func() { once.Do(func() { close(wait) }) }
}

// =============================================================================

func (w *Worker) isShutdown() bool {
	select {
	case <-w.shut:
		return true
	default:
		return false
	}
}
