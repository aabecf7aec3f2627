// Package worker implements mining, peer updates, and inbound event processing
// for the blockchain.
package worker

import (
	"sync"
	"time"

	"github.com/ardanlabs/qchain/foundation/blockchain/state"
)

// DefaultMiningInterval is how often pending transactions are checked for
// mining when no submission has signalled a cycle.
const DefaultMiningInterval = 10 * time.Second

// peerUpdateInterval is how often peers are polled, pruned and announced to.
const peerUpdateInterval = time.Minute

// netTimeout bounds every network call the worker makes.
const netTimeout = 10 * time.Second

// =============================================================================

// Worker runs the background operations of a node: mining cycles, inbound
// peer events and peer list maintenance.
type Worker struct {
	state        *state.State
	wg           sync.WaitGroup
	miningTicker *time.Ticker
	peerTicker   *time.Ticker
	shut         chan struct{}
	startMining  chan bool
	cancelMining chan chan struct{}
	evHandler    state.EventHandler
}

// Run constructs a worker for the state, syncs with the known peers and
// starts the background operations. A non-positive interval uses
// DefaultMiningInterval.
func Run(st *state.State, interval time.Duration, evHandler state.EventHandler) {
	if interval <= 0 {
		interval = DefaultMiningInterval
	}

	ev := func(v string, args ...any) {
		if evHandler != nil {
			evHandler(v, args...)
		}
	}

	w := Worker{
		state:        st,
		miningTicker: time.NewTicker(interval),
		peerTicker:   time.NewTicker(peerUpdateInterval),
		shut:         make(chan struct{}),
		startMining:  make(chan bool, 1),
		cancelMining: make(chan chan struct{}, 1),
		evHandler:    ev,
	}

	// The state calls back into the worker to signal and cancel mining.
	st.Worker = &w

	// Catch up with the known peers before mining on a stale tail.
	w.Sync()

	operations := []func(){
		w.peerOperations,
		w.miningOperations,
		w.inboundOperations,
	}

	// Run does not return until every operation is running so a signal
	// sent right after it returns has a receiver.
	started := make(chan struct{}, len(operations))
	for _, op := range operations {
		w.wg.Go(func() {
			started <- struct{}{}
			op()
		})
	}

	for range operations {
		<-started
	}
}

// =============================================================================
// These methods implement the state.Worker interface.

// Shutdown terminates the goroutine performing work.
func (w *Worker) Shutdown() {
	w.evHandler("worker: shutdown: started")
	defer w.evHandler("worker: shutdown: completed")

	w.evHandler("worker: shutdown: stop tickers")
	w.miningTicker.Stop()
	w.peerTicker.Stop()

	w.evHandler("worker: shutdown: signal cancel mining")
	done := w.SignalCancelMining()
	done()

	w.evHandler("worker: shutdown: terminate goroutines")
	close(w.shut)
	w.wg.Wait()
}

// SignalStartMining starts a mining operation. If there is already a signal
// pending in the channel, just return since a mining operation will start.
func (w *Worker) SignalStartMining() {
	if !w.state.IsMiningAllowed() {
		w.evHandler("worker: SignalStartMining: mining turned off")
		return
	}

	select {
	case w.startMining <- true:
	default:
	}
	w.evHandler("worker: SignalStartMining: mining signaled")
}

// SignalCancelMining signals the G executing the runMiningOperation function
// to stop immediately. That G will not return from the function until done
// is called. This allows the caller to complete any state changes before a
// new mining operation takes place.
func (w *Worker) SignalCancelMining() (done func()) {
	wait := make(chan struct{})

	select {
	case w.cancelMining <- wait:
	default:
	}
	w.evHandler("worker: SignalCancelMining: MINING: CANCEL: signaled")

	return func() { close(wait) }
}

// =============================================================================

// isShutdown is used to test if a shutdown has been signaled.
func (w *Worker) isShutdown() bool {
	select {
	case <-w.shut:
		return true
	default:
		return false
	}
}
