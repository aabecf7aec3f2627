package worker

import (
	"context"
)

// peerOperations refreshes the peer list on every peer tick.
func (w *Worker) peerOperations() {
	w.evHandler("worker: peerOperations: G started")
	defer w.evHandler("worker: peerOperations: G completed")

	for {
		select {
		case <-w.peerTicker.C:
			if !w.isShutdown() {
				w.runPeersOperation()
			}
		case <-w.shut:
			w.evHandler("worker: peerOperations: received shut signal")
			return
		}
	}
}

// runPeersOperation drops peers that don't answer, learns the peers each
// remaining peer knows and announces this node to all of them.
func (w *Worker) runPeersOperation() {
	w.evHandler("worker: runPeersOperation: started")
	defer w.evHandler("worker: runPeersOperation: completed")

	ctx, cancel := context.WithTimeout(context.Background(), netTimeout)
	defer cancel()

	gw := w.state.Gateway()

	for _, pr := range gw.Peers() {
		status, err := gw.Status(ctx, pr)
		if err != nil {
			w.evHandler("worker: runPeersOperation: Status: %s: ERROR: %s", pr.Host, err)
			gw.RemovePeer(pr)
			continue
		}

		gw.AddPeers(status.KnownPeers)
	}

	// The list now includes the peers just learned.
	for _, pr := range gw.Peers() {
		if err := gw.Announce(ctx, pr); err != nil {
			w.evHandler("worker: runPeersOperation: Announce: %s: ERROR: %s", pr.Host, err)
		}
	}
}
