// Package gateway is the boundary between the node and its peers. Outbound
// blocks and transactions are queued as commands and fanned out to every
// known peer by a driver goroutine. Inbound blocks and transactions arrive
// as events for the node to validate and apply.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ardanlabs/qchain/foundation/blockchain/database"
	"github.com/ardanlabs/qchain/foundation/blockchain/peer"
)

// ErrPeerUnreachable is returned when a peer can't be contacted.
var ErrPeerUnreachable = errors.New("peer unreachable")

// ErrShutdown is returned when the gateway is stopping.
var ErrShutdown = errors.New("gateway shutting down")

// Capacity is the number of commands or events that can be in flight before
// producers block.
const Capacity = 32

// sendTimeout bounds the delivery of one command to one peer.
const sendTimeout = 10 * time.Second

// =============================================================================

// CommandKind identifies what a command carries.
type CommandKind int

// Set of command kinds.
const (
	CommandBlock CommandKind = iota + 1
	CommandTransaction
)

// Command is an outbound broadcast. Only the field matching Kind is set.
type Command struct {
	Kind  CommandKind
	Block database.Block
	Tx    database.Tx
}

// BlockCommand constructs a command to broadcast a block.
func BlockCommand(block database.Block) Command {
	return Command{Kind: CommandBlock, Block: block}
}

// TxCommand constructs a command to broadcast a transaction.
func TxCommand(tx database.Tx) Command {
	return Command{Kind: CommandTransaction, Tx: tx}
}

// EventKind identifies what an event carries.
type EventKind int

// Set of event kinds.
const (
	EventBlock EventKind = iota + 1
	EventTransaction
)

// Event is an inbound block or transaction received from a peer. Only the
// field matching Kind is set.
type Event struct {
	Kind  EventKind
	Block database.Block
	Tx    database.Tx
	From  peer.Peer
}

// String implements the fmt.Stringer interface for logging.
func (e Event) String() string {
	switch e.Kind {
	case EventBlock:
		return fmt.Sprintf("block[%s] from[%s]", e.Block, e.From.Host)
	case EventTransaction:
		return fmt.Sprintf("tx[%s] from[%s]", e.Tx, e.From.Host)
	}
	return "unknown"
}

// =============================================================================

// Transport represents the behavior required to talk to a peer.
type Transport interface {
	SendBlock(ctx context.Context, to peer.Peer, block database.Block) error
	SendTx(ctx context.Context, to peer.Peer, tx database.Tx) error
	Status(ctx context.Context, to peer.Peer) (peer.Status, error)
	Pending(ctx context.Context, to peer.Peer) ([]database.Tx, error)
	Blocks(ctx context.Context, to peer.Peer, from uint64, through uint64) ([]database.Block, error)
	Announce(ctx context.Context, to peer.Peer, self peer.Peer) error
}

// Config represents the configuration required to start the gateway.
type Config struct {
	Host       string
	KnownPeers *peer.Set
	Transport  Transport
	EvHandler  func(v string, args ...any)
}

// Gateway manages the outbound commands and inbound events.
type Gateway struct {
	host      string
	peers     *peer.Set
	transport Transport
	evHandler func(v string, args ...any)

	commands chan Command
	events   chan Event
	shut     chan struct{}
	once     sync.Once
	wg       sync.WaitGroup
}

// New constructs a gateway. Call Start to begin delivering commands.
func New(cfg Config) *Gateway {
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	peers := cfg.KnownPeers
	if peers == nil {
		peers = peer.NewSet()
	}

	return &Gateway{
		host:      cfg.Host,
		peers:     peers,
		transport: cfg.Transport,
		evHandler: ev,
		commands:  make(chan Command, Capacity),
		events:    make(chan Event, Capacity),
		shut:      make(chan struct{}),
	}
}

// Start launches the driver goroutine that delivers commands to peers.
func (g *Gateway) Start() {
	g.wg.Add(1)

	go func() {
		defer g.wg.Done()

		g.evHandler("gateway: driver: G started")
		defer g.evHandler("gateway: driver: G completed")

		for {
			select {
			case cmd := <-g.commands:
				g.deliver(cmd)
			case <-g.shut:
				return
			}
		}
	}()
}

// Shutdown stops the driver goroutine. Commands still queued are not sent.
func (g *Gateway) Shutdown() {
	g.once.Do(func() {
		close(g.shut)
	})
	g.wg.Wait()
}

// Host returns the host of this node.
func (g *Gateway) Host() string {
	return g.host
}

// =============================================================================

// Broadcast queues a command for every known peer. It blocks while the queue
// is full until the context is done or the gateway shuts down.
func (g *Gateway) Broadcast(ctx context.Context, cmd Command) error {
	select {
	case g.commands <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-g.shut:
		return ErrShutdown
	}
}

// Deliver queues an inbound event for the node. It blocks while the queue is
// full until the context is done or the gateway shuts down.
func (g *Gateway) Deliver(ctx context.Context, event Event) error {
	select {
	case g.events <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-g.shut:
		return ErrShutdown
	}
}

// Events returns the channel of inbound events.
func (g *Gateway) Events() <-chan Event {
	return g.events
}

// =============================================================================

// Connect dials the peer by asking for its status. On success the peer and
// every peer it knows are added to the known set and the peer is told about
// this node.
func (g *Gateway) Connect(ctx context.Context, host string) (peer.Status, error) {
	pr := peer.New(host)
	if pr.Match(g.host) {
		return peer.Status{}, fmt.Errorf("can't connect to self %s", host)
	}

	status, err := g.Status(ctx, pr)
	if err != nil {
		return peer.Status{}, err
	}

	if g.peers.Add(pr) {
		g.evHandler("gateway: Connect: added peer[%s]", host)
	}
	g.AddPeers(status.KnownPeers)

	if err := g.Announce(ctx, pr); err != nil {
		g.evHandler("gateway: Connect: announce: peer[%s]: WARNING: %s", host, err)
	}

	return status, nil
}

// Peers returns the known peers except this node.
func (g *Gateway) Peers() []peer.Peer {
	return g.peers.Copy(g.host)
}

// AddPeers adds the peers to the known set skipping this node.
func (g *Gateway) AddPeers(peers []peer.Peer) {
	for _, pr := range peers {
		if pr.Match(g.host) {
			continue
		}
		if g.peers.Add(pr) {
			g.evHandler("gateway: AddPeers: added peer[%s]", pr.Host)
		}
	}
}

// RemovePeer drops the peer from the known set.
func (g *Gateway) RemovePeer(pr peer.Peer) {
	g.peers.Remove(pr)
	g.evHandler("gateway: RemovePeer: removed peer[%s]", pr.Host)
}

// Status requests the chain status of the peer.
func (g *Gateway) Status(ctx context.Context, pr peer.Peer) (peer.Status, error) {
	status, err := g.transport.Status(ctx, pr)
	if err != nil {
		return peer.Status{}, unreachable(pr, err)
	}
	return status, nil
}

// Pending requests the pending transactions of the peer.
func (g *Gateway) Pending(ctx context.Context, pr peer.Peer) ([]database.Tx, error) {
	txs, err := g.transport.Pending(ctx, pr)
	if err != nil {
		return nil, unreachable(pr, err)
	}
	return txs, nil
}

// Blocks requests the blocks from through to inclusive held by the peer.
func (g *Gateway) Blocks(ctx context.Context, pr peer.Peer, from uint64, through uint64) ([]database.Block, error) {
	blocks, err := g.transport.Blocks(ctx, pr, from, through)
	if err != nil {
		return nil, unreachable(pr, err)
	}
	return blocks, nil
}

// Announce tells the peer this node exists.
func (g *Gateway) Announce(ctx context.Context, pr peer.Peer) error {
	if err := g.transport.Announce(ctx, pr, peer.New(g.host)); err != nil {
		return unreachable(pr, err)
	}
	return nil
}

// =============================================================================

// deliver sends one command to every known peer. A failing peer is logged
// and does not stop delivery to the others.
func (g *Gateway) deliver(cmd Command) {
	for _, pr := range g.Peers() {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)

		var err error
		switch cmd.Kind {
		case CommandBlock:
			err = g.transport.SendBlock(ctx, pr, cmd.Block)
		case CommandTransaction:
			err = g.transport.SendTx(ctx, pr, cmd.Tx)
		default:
			err = fmt.Errorf("unknown command kind %d", cmd.Kind)
		}
		cancel()

		if err != nil {
			g.evHandler("gateway: deliver: peer[%s]: WARNING: %s", pr.Host, err)
			continue
		}

		g.evHandler("gateway: deliver: peer[%s]: kind[%d]: sent", pr.Host, cmd.Kind)
	}
}

func unreachable(pr peer.Peer, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPeerUnreachable, pr.Host, err)
}
