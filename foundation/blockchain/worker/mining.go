package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ardanlabs/grokchain/foundation/blockchain/state"
)

// Bounds of the pause after a failed mining operation.
const (
	minRetryDelay = 100 * time.Millisecond
	maxRetryDelay = 30 * time.Second
)

// miningOperations waits for mining signals until the worker is shut down.
// Only one block is mined at a time. After a failed operation the next one
// waits for a retry delay that doubles with every consecutive failure, and
// start signals that arrive in the meantime are covered by the retry.
func (w *Worker) miningOperations() {
	w.evHandler("worker: miningOperations: G started")
	defer w.evHandler("worker: miningOperations: G completed")

	var (
		delay time.Duration
		retry *time.Timer
		wake  <-chan time.Time
	)
	defer func() {
		if retry != nil {
			retry.Stop()
		}
	}()

	for {
		select {
		case <-w.shut:
			w.evHandler("worker: miningOperations: received shut signal")
			return

		case <-w.startMining:
			if w.isShutdown() || wake != nil {
				continue
			}

		case <-wake:
			wake = nil
			if w.isShutdown() {
				continue
			}
			w.evHandler("worker: miningOperations: MINING: retry after [%v]", delay)
		}

		if w.runMiningOperation() == outcomeFailed {
			delay = nextRetryDelay(delay)
			retry = time.NewTimer(delay)
			wake = retry.C
			w.evHandler("worker: miningOperations: MINING: failed: retry in [%v]", delay)
			continue
		}
		delay = 0

		// Anything left in the mempool, including transactions that
		// arrived while mining, needs another round.
		if n := w.state.QueryMempoolLength(); n > 0 && !w.isShutdown() {
			w.evHandler("worker: miningOperations: MINING: signal new mining operation: Txs[%d]", n)
			w.SignalStartMining()
		}
	}
}

// nextRetryDelay doubles the delay within the retry bounds.
func nextRetryDelay(delay time.Duration) time.Duration {
	switch {
	case delay < minRetryDelay:
		return minRetryDelay
	case delay*2 > maxRetryDelay:
		return maxRetryDelay
	default:
		return delay * 2
	}
}

// outcome is the result of a single mining operation.
type outcome int

const (
	outcomeIdle outcome = iota
	outcomeMined
	outcomeCancelled
	outcomeFailed
)

// runMiningOperation mines a single block from the mempool. The operation
// is abandoned when a cancel signal arrives, and it doesn't return until
// the canceller says its own state changes are done.
func (w *Worker) runMiningOperation() outcome {
	w.evHandler("worker: runMiningOperation: MINING: started")
	defer w.evHandler("worker: runMiningOperation: MINING: completed")

	if n := w.state.QueryMempoolLength(); n == 0 {
		w.evHandler("worker: runMiningOperation: MINING: no transactions to mine: Txs[%d]", n)
		return outcomeIdle
	}

	// A cancel signal left over from a previous operation is stale.
	select {
	case <-w.cancelMining:
		w.evHandler("worker: runMiningOperation: MINING: drained cancel channel")
	default:
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		wg   sync.WaitGroup
		wait chan struct{}
	)
	wg.Add(1)

	go func() {
		defer wg.Done()

		select {
		case wait = <-w.cancelMining:
			w.evHandler("worker: runMiningOperation: MINING: CANCEL: requested")
			cancel()
		case <-ctx.Done():
		}
	}()

	result := w.mine(ctx)

	// Stop the cancel watcher and then hold here until the canceller is done.
	cancel()
	wg.Wait()

	if wait != nil {
		w.evHandler("worker: runMiningOperation: MINING: termination signal: waiting")
		<-wait
		w.evHandler("worker: runMiningOperation: MINING: termination signal: received")
	}

	return result
}

// mine asks the state for the next block and records the outcome.
func (w *Worker) mine(ctx context.Context) outcome {
	t := time.Now()
	block, err := w.state.MineNewBlock(ctx)
	w.evHandler("worker: runMiningOperation: MINING: mining duration[%v]", time.Since(t))

	switch {
	case err == nil:
		w.mined.Inc()
		w.evHandler("worker: runMiningOperation: MINING: blk[%d]: hash[%s]", block.Header.Number, block.Hash())
		return outcomeMined

	case errors.Is(err, state.ErrNoTransactions):
		w.evHandler("worker: runMiningOperation: MINING: WARNING: no transactions in mempool")
		return outcomeIdle

	case ctx.Err() != nil:
		w.cancelled.Inc()
		w.evHandler("worker: runMiningOperation: MINING: CANCEL: complete")
		return outcomeCancelled

	default:
		w.failed.Inc()
		w.evHandler("worker: runMiningOperation: MINING: ERROR: %s", err)
		return outcomeFailed
	}
}
