// Package private maintains the group of handlers for node to node access.
package private

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/ardanlabs/qchain/business/web/errs"
	"github.com/ardanlabs/qchain/foundation/blockchain/database"
	"github.com/ardanlabs/qchain/foundation/blockchain/gateway"
	"github.com/ardanlabs/qchain/foundation/blockchain/peer"
	"github.com/ardanlabs/qchain/foundation/blockchain/state"
	"github.com/ardanlabs/qchain/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of node to node endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
}

// SubmitNodeTransaction queues a transaction shared by a peer. The
// transaction is validated when the event is processed.
func (h Handlers) SubmitNodeTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var tx database.Tx
	if err := web.Decode(r, &tx); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	event := gateway.Event{
		Kind: gateway.EventTransaction,
		Tx:   tx,
		From: fromPeer(r),
	}

	h.Log.Infow("node tran", "traceid", web.GetTraceID(ctx), "event", event)

	return h.deliver(ctx, w, event)
}

// ProposeBlock queues a block received from a peer. The block is validated
// and added to the chain when the event is processed.
func (h Handlers) ProposeBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var block database.Block
	if err := web.Decode(r, &block); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	event := gateway.Event{
		Kind:  gateway.EventBlock,
		Block: block,
		From:  fromPeer(r),
	}

	h.Log.Infow("propose block", "traceid", web.GetTraceID(ctx), "event", event)

	return h.deliver(ctx, w, event)
}

// SubmitPeer is called by a node so they can be added to the known peer list.
func (h Handlers) SubmitPeer(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var pr peer.Peer
	if err := web.Decode(r, &pr); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	if pr.Host == "" {
		return errs.NewTrusted(errors.New("missing host"), http.StatusBadRequest)
	}

	h.State.Gateway().AddPeers([]peer.Peer{pr})

	return web.Respond(ctx, w, nil, http.StatusNoContent)
}

// Status returns the current status of the node.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.Status(), http.StatusOK)
}

// BlocksByNumber returns all the blocks based on the specified to/from values.
func (h Handlers) BlocksByNumber(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	latest := h.State.Tail().Header.Index

	from, err := parseIndex(web.Param(r, "from"), latest)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	to, err := parseIndex(web.Param(r, "to"), latest)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	if from > to {
		return errs.NewTrusted(errors.New("from greater than to"), http.StatusBadRequest)
	}

	blocks := h.State.QueryBlocks(from, to)
	if len(blocks) == 0 {
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}

	return web.Respond(ctx, w, blocks, http.StatusOK)
}

// Mempool returns the set of uncommitted transactions.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.QueryPending(), http.StatusOK)
}

// =============================================================================

// deliver hands the event to the node and reports it as accepted for
// processing.
func (h Handlers) deliver(ctx context.Context, w http.ResponseWriter, event gateway.Event) error {
	if err := h.State.Gateway().Deliver(ctx, event); err != nil {
		return errs.NewTrusted(err, http.StatusServiceUnavailable)
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "accepted",
	}

	return web.Respond(ctx, w, resp, http.StatusAccepted)
}

// fromPeer identifies the node making the request.
func fromPeer(r *http.Request) peer.Peer {
	if host := r.Header.Get(gateway.HostHeader); host != "" {
		return peer.New(host)
	}
	return peer.New(r.RemoteAddr)
}

// parseIndex converts a block index parameter. The value latest is the tail.
func parseIndex(s string, latest uint64) (uint64, error) {
	if s == "latest" || s == "" {
		return latest, nil
	}
	return strconv.ParseUint(s, 10, 64)
}
