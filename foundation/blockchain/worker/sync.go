package worker

import (
	"context"
)

// Sync pulls missing blocks and pending transactions from every known peer.
// A peer that fails is logged and skipped.
func (w *Worker) Sync() {
	w.evHandler("worker: sync: started")
	defer w.evHandler("worker: sync: completed")

	for _, pr := range w.state.Gateway().Peers() {
		ctx, cancel := context.WithTimeout(context.Background(), netTimeout)
		if err := w.state.SyncFrom(ctx, pr); err != nil {
			w.evHandler("worker: sync: SyncFrom: %s: ERROR: %s", pr.Host, err)
		}
		cancel()
	}
}
