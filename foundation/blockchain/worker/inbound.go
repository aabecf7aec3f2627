package worker

import (
	"context"
	"errors"

	"github.com/ardanlabs/qchain/foundation/blockchain/gateway"
	"github.com/ardanlabs/qchain/foundation/blockchain/state"
)

// inboundOperations handles blocks and transactions delivered by peers.
func (w *Worker) inboundOperations() {
	w.evHandler("worker: inboundOperations: G started")
	defer w.evHandler("worker: inboundOperations: G completed")

	events := w.state.Gateway().Events()

	for {
		select {
		case event := <-events:
			if !w.isShutdown() {
				w.runInboundOperation(event)
			}
		case <-w.shut:
			w.evHandler("worker: inboundOperations: received shut signal")
			return
		}
	}
}

// runInboundOperation applies one inbound event. Invalid input is logged
// and discarded.
func (w *Worker) runInboundOperation(event gateway.Event) {
	w.evHandler("worker: runInboundOperation: started: %s", event)
	defer w.evHandler("worker: runInboundOperation: completed")

	switch event.Kind {
	case gateway.EventTransaction:
		if err := w.state.ProcessNodeTransaction(event.Tx); err != nil {
			w.evHandler("worker: runInboundOperation: ProcessNodeTransaction: WARNING: %s", err)
		}

	case gateway.EventBlock:
		err := w.state.ProcessProposedBlock(event.Block)
		switch {
		case err == nil:

		case errors.Is(err, state.ErrChainBehind):
			w.evHandler("worker: runInboundOperation: %s: syncing from peer[%s]", err, event.From.Host)

			ctx, cancel := context.WithTimeout(context.Background(), netTimeout)
			defer cancel()

			if err := w.state.SyncFrom(ctx, event.From); err != nil {
				w.evHandler("worker: runInboundOperation: SyncFrom: ERROR: %s", err)
			}

		default:
			w.evHandler("worker: runInboundOperation: ProcessProposedBlock: WARNING: %s", err)
		}

	default:
		w.evHandler("worker: runInboundOperation: WARNING: unknown event kind %d", event.Kind)
	}
}
