// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ardanlabs/qchain/business/sys/validate"
	"github.com/ardanlabs/qchain/business/web/errs"
	"github.com/ardanlabs/qchain/foundation/blockchain/database"
	"github.com/ardanlabs/qchain/foundation/blockchain/gateway"
	"github.com/ardanlabs/qchain/foundation/blockchain/peer"
	"github.com/ardanlabs/qchain/foundation/blockchain/state"
	"github.com/ardanlabs/qchain/foundation/events"
	"github.com/ardanlabs/qchain/foundation/nameservice"
	"github.com/ardanlabs/qchain/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handlers manages the set of public endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	NS    *nameservice.NameService
	WS    websocket.Upgrader
	Evts  *events.Events
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	id, ch := h.Evts.Acquire()
	defer h.Evts.Release(id)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// SubmitWalletTransaction adds a transaction signed by a wallet to the
// pending transactions.
func (h Handlers) SubmitWalletTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var st submitTx
	if err := web.Decode(r, &st); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	if err := validate.Check(st); err != nil {
		return err
	}

	tx := st.toTx()

	h.Log.Infow("submit wallet tran", "traceid", web.GetTraceID(ctx), "tx", tx)
	if err := h.State.SubmitWalletTransaction(ctx, tx); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	resp := struct {
		Status string `json:"status"`
		ID     string `json:"id"`
	}{
		Status: "transaction added to pending",
		ID:     tx.ID().Hex(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// SendTransaction signs a transfer from the node account and adds it to the
// pending transactions.
func (h Handlers) SendTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var st sendTx
	if err := web.Decode(r, &st); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	if err := validate.Check(st); err != nil {
		return err
	}

	tx, err := h.State.CreateTransaction(ctx, st.To, st.Amount)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	h.Log.Infow("send node tran", "traceid", web.GetTraceID(ctx), "tx", tx)

	return web.Respond(ctx, w, h.toTx(tx), http.StatusOK)
}

// Mempool returns the set of uncommitted transactions.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	pending := h.State.QueryPending()

	trans := make([]tx, len(pending))
	for i, tran := range pending {
		trans[i] = h.toTx(tran)
	}

	return web.Respond(ctx, w, trans, http.StatusOK)
}

// Blocks returns the committed blocks in the requested range. Without a
// range every block is returned.
func (h Handlers) Blocks(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	from := uint64(0)
	to := h.State.Tail().Header.Index

	if fromStr := web.Param(r, "from"); fromStr != "" {
		var err error
		if from, err = parseIndex(fromStr, to); err != nil {
			return errs.NewTrusted(err, http.StatusBadRequest)
		}
		if to, err = parseIndex(web.Param(r, "to"), to); err != nil {
			return errs.NewTrusted(err, http.StatusBadRequest)
		}
	}

	if from > to {
		return errs.NewTrusted(errors.New("from greater than to"), http.StatusBadRequest)
	}

	dbBlocks := h.State.QueryBlocks(from, to)
	if len(dbBlocks) == 0 {
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}

	blocks := make([]block, len(dbBlocks))
	for j, blk := range dbBlocks {
		trans := make([]tx, len(blk.Trans))
		for i, tran := range blk.Trans {
			trans[i] = h.toTx(tran)
		}

		blocks[j] = block{
			Index:        blk.Header.Index,
			TimeStamp:    blk.Header.TimeStamp,
			PrevHash:     blk.Header.PrevHash,
			Nonce:        blk.Header.Nonce,
			Difficulty:   blk.Header.Difficulty,
			Hash:         blk.Hash,
			Transactions: trans,
		}
	}

	return web.Respond(ctx, w, blocks, http.StatusOK)
}

// Balances returns the current balances for all accounts or the one account
// specified.
func (h Handlers) Balances(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	dbBalances, err := h.State.QueryBalances(web.Param(r, "account"))
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	bals := make([]balance, len(dbBalances))
	for i, b := range dbBalances {
		bals[i] = balance{
			Account: b.Account,
			Name:    h.NS.Lookup(b.Account),
			Credits: b.Credits,
			Debits:  b.Debits,
			Net:     b.Net(),
		}
	}

	resp := balances{
		TailHash:    h.State.Tail().Hash,
		Uncommitted: h.State.QueryPendingLength(),
		Balances:    bals,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// ToggleMining turns mining on or off.
func (h Handlers) ToggleMining(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var tm toggleMining
	if err := web.Decode(r, &tm); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	if err := validate.Check(tm); err != nil {
		return err
	}

	h.State.ToggleMining(*tm.Enabled)

	return web.Respond(ctx, w, h.miningStatus(), http.StatusOK)
}

// MiningStatus returns where the mining cycle is.
func (h Handlers) MiningStatus(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.miningStatus(), http.StatusOK)
}

// ConnectPeer dials a peer and adds it and the peers it knows.
func (h Handlers) ConnectPeer(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var cp connectPeer
	if err := web.Decode(r, &cp); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	if err := validate.Check(cp); err != nil {
		return err
	}

	status, err := h.State.Gateway().Connect(ctx, cp.Host)
	if err != nil {
		if errors.Is(err, gateway.ErrPeerUnreachable) {
			return errs.NewTrusted(err, http.StatusBadGateway)
		}
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	// Catch up with the new peer in the background.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		if err := h.State.SyncFrom(ctx, peer.New(cp.Host)); err != nil {
			h.Log.Infow("connect peer", "status", "sync failed", "host", cp.Host, "ERROR", err)
		}
	}()

	return web.Respond(ctx, w, status, http.StatusOK)
}

// ValidateChain walks the whole chain checking every block.
func (h Handlers) ValidateChain(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	cs := chainStatus{
		Valid:  true,
		Length: int(h.State.Tail().Header.Index) + 1,
	}

	if err := h.State.ValidateChain(); err != nil {
		cs.Valid = false
		cs.Error = err.Error()
	}

	return web.Respond(ctx, w, cs, http.StatusOK)
}

// Genesis returns the genesis information.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.Genesis(), http.StatusOK)
}

// =============================================================================

func (h Handlers) toTx(tran database.Tx) tx {
	return tx{
		ID:       tran.ID(),
		From:     tran.From,
		FromName: h.NS.Lookup(tran.From),
		To:       tran.To,
		ToName:   h.NS.Lookup(tran.To),
		Amount:   tran.Amount,
	}
}

func (h Handlers) miningStatus() miningStatus {
	return miningStatus{
		Enabled: h.State.IsMiningAllowed(),
		Mode:    h.State.MiningMode(),
		Stage:   h.State.Stage(),
		Account: h.State.Account(),
		Pending: h.State.QueryPendingLength(),
		Tail:    h.State.Tail().Header.Index,
	}
}

// parseIndex converts a block index parameter. The value latest is the tail.
func parseIndex(s string, latest uint64) (uint64, error) {
	if s == "latest" || s == "" {
		return latest, nil
	}
	return strconv.ParseUint(s, 10, 64)
}
