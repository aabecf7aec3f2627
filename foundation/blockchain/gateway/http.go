package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ardanlabs/qchain/foundation/blockchain/database"
	"github.com/ardanlabs/qchain/foundation/blockchain/peer"
)

// HostHeader carries the host of the node making a request so the receiver
// knows which peer an event came from.
const HostHeader = "X-Node-Host"

const baseURL = "http://%s/v1/node"

// HTTPTransport talks to the private node API of peers using JSON over HTTP.
type HTTPTransport struct {
	self   string
	client *http.Client
}

// NewHTTPTransport constructs a transport that identifies itself as self.
func NewHTTPTransport(self string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}

	return &HTTPTransport{
		self:   self,
		client: client,
	}
}

// SendBlock proposes the block to the peer.
func (t *HTTPTransport) SendBlock(ctx context.Context, to peer.Peer, block database.Block) error {
	url := fmt.Sprintf("%s/block/propose", fmt.Sprintf(baseURL, to.Host))
	return t.send(ctx, http.MethodPost, url, block, nil)
}

// SendTx shares the transaction with the peer.
func (t *HTTPTransport) SendTx(ctx context.Context, to peer.Peer, tx database.Tx) error {
	url := fmt.Sprintf("%s/tx/submit", fmt.Sprintf(baseURL, to.Host))
	return t.send(ctx, http.MethodPost, url, tx, nil)
}

// Status requests the chain status of the peer.
func (t *HTTPTransport) Status(ctx context.Context, to peer.Peer) (peer.Status, error) {
	url := fmt.Sprintf("%s/status", fmt.Sprintf(baseURL, to.Host))

	var status peer.Status
	if err := t.send(ctx, http.MethodGet, url, nil, &status); err != nil {
		return peer.Status{}, err
	}

	return status, nil
}

// Pending requests the pending transactions of the peer.
func (t *HTTPTransport) Pending(ctx context.Context, to peer.Peer) ([]database.Tx, error) {
	url := fmt.Sprintf("%s/tx/list", fmt.Sprintf(baseURL, to.Host))

	var txs []database.Tx
	if err := t.send(ctx, http.MethodGet, url, nil, &txs); err != nil {
		return nil, err
	}

	return txs, nil
}

// Blocks requests a range of blocks from the peer.
func (t *HTTPTransport) Blocks(ctx context.Context, to peer.Peer, from uint64, through uint64) ([]database.Block, error) {
	url := fmt.Sprintf("%s/block/list/%d/%d", fmt.Sprintf(baseURL, to.Host), from, through)

	var blocks []database.Block
	if err := t.send(ctx, http.MethodGet, url, nil, &blocks); err != nil {
		return nil, err
	}

	return blocks, nil
}

// Announce tells the peer about this node.
func (t *HTTPTransport) Announce(ctx context.Context, to peer.Peer, self peer.Peer) error {
	url := fmt.Sprintf("%s/peers", fmt.Sprintf(baseURL, to.Host))
	return t.send(ctx, http.MethodPost, url, self, nil)
}

// =============================================================================

// send is a helper function to send an HTTP request to a node.
func (t *HTTPTransport) send(ctx context.Context, method string, url string, dataSend any, dataRecv any) error {
	var body io.Reader
	if dataSend != nil {
		data, err := json.Marshal(dataSend)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	if dataSend != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(HostHeader, t.self)

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if dataRecv != nil {
		if err := json.NewDecoder(resp.Body).Decode(dataRecv); err != nil {
			return err
		}
	}

	return nil
}
