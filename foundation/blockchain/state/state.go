// Package state is the core API for the blockchain and implements all the
// business rules and processing.
package state

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ardanlabs/qchain/foundation/blockchain/database"
	"github.com/ardanlabs/qchain/foundation/blockchain/gateway"
	"github.com/ardanlabs/qchain/foundation/blockchain/genesis"
	"github.com/ardanlabs/qchain/foundation/blockchain/peer"
	"github.com/ardanlabs/qchain/foundation/blockchain/pow"
	"github.com/ardanlabs/qchain/foundation/blockchain/signature"
)

// Set of mining modes.
const (
	MiningExclusive  = "exclusive"  // Gate held for the whole cycle including the search.
	MiningOptimistic = "optimistic" // Gate released during the search, commit retried on mismatch.
)

// DefaultMaxRetries is the number of rebuilds an optimistic cycle attempts.
const DefaultMaxRetries = 3

// Stage represents where the mining cycle is.
type Stage string

// Set of mining stages.
const (
	StageIdle         Stage = "Idle"
	StageBuilding     Stage = "Building"
	StageMining       Stage = "Mining"
	StageCommitting   Stage = "Committing"
	StageBroadcasting Stage = "Broadcasting"
)

// =============================================================================

// EventHandler defines a function that is called when events
// occur in the processing of persisting blocks.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by any
// package providing support for mining, peer updates, and inbound events.
type Worker interface {
	Shutdown()
	Sync()
	SignalStartMining()
	SignalCancelMining() (done func())
}

// noopWorker is used until a real worker registers itself.
type noopWorker struct{}

func (noopWorker) Shutdown()                        {}
func (noopWorker) Sync()                            {}
func (noopWorker) SignalStartMining()               {}
func (noopWorker) SignalCancelMining() (done func()) { return func() {} }

// =============================================================================

// Config represents the configuration required to start
// the blockchain node.
type Config struct {
	Signer        *signature.Signer
	Host          string
	Genesis       genesis.Genesis
	Hasher        pow.Hasher
	Storage       database.Serializer
	Gateway       *gateway.Gateway
	MiningMode    string
	MaxRetries    int
	MiningEnabled bool
	EvHandler     EventHandler
}

// State manages the blockchain database.
type State struct {
	mu sync.Mutex

	signer     *signature.Signer
	host       string
	evHandler  EventHandler
	miningMode string
	maxRetries int
	allowMine  atomic.Bool
	stage      atomic.Value

	genesis genesis.Genesis
	db      *database.Database
	gateway *gateway.Gateway

	Worker Worker
}

// New constructs a new blockchain for data management.
func New(cfg Config) (*State, error) {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	switch cfg.MiningMode {
	case "":
		cfg.MiningMode = MiningExclusive
	case MiningExclusive, MiningOptimistic:
	default:
		return nil, fmt.Errorf("unknown mining mode %q", cfg.MiningMode)
	}

	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}

	if cfg.Signer != nil && cfg.Signer.Algorithm() != cfg.Genesis.Algorithm {
		return nil, fmt.Errorf("signer uses %s, chain requires %s", cfg.Signer.Algorithm(), cfg.Genesis.Algorithm)
	}

	// Access the storage for the blockchain and replay what is stored.
	db, err := database.New(cfg.Genesis, cfg.Hasher, cfg.Storage, ev)
	if err != nil {
		return nil, err
	}

	gw := cfg.Gateway
	if gw == nil {
		gw = gateway.New(gateway.Config{Host: cfg.Host, EvHandler: ev})
	}

	state := State{
		signer:     cfg.Signer,
		host:       cfg.Host,
		evHandler:  ev,
		miningMode: cfg.MiningMode,
		maxRetries: cfg.MaxRetries,
		genesis:    cfg.Genesis,
		db:         db,
		gateway:    gw,
		Worker:     noopWorker{},
	}
	state.allowMine.Store(cfg.MiningEnabled)
	state.setStage(StageIdle)

	// The Worker is not set here. The call to worker.Run will assign itself
	// and start everything up and running for the node.

	return &state, nil
}

// Shutdown cleanly brings the node down.
func (s *State) Shutdown() error {
	s.evHandler("state: shutdown: started")
	defer s.evHandler("state: shutdown: completed")

	// Stop all blockchain writing activity.
	s.Worker.Shutdown()

	// Make sure the database file is properly closed.
	return s.db.Close()
}

// =============================================================================

// IsMiningAllowed identifies if mining is turned on.
func (s *State) IsMiningAllowed() bool {
	return s.allowMine.Load()
}

// ToggleMining turns mining on or off. Turning it off cancels a running
// search and turning it on signals a new cycle.
func (s *State) ToggleMining(on bool) {
	s.allowMine.Store(on)
	s.evHandler("state: ToggleMining: mining[%t]", on)

	if on {
		s.Worker.SignalStartMining()
		return
	}

	done := s.Worker.SignalCancelMining()
	done()
}

// MiningMode returns the configured mining mode.
func (s *State) MiningMode() string {
	return s.miningMode
}

// Stage returns the current stage of the mining cycle.
func (s *State) Stage() Stage {
	return s.stage.Load().(Stage)
}

func (s *State) setStage(stage Stage) {
	s.stage.Store(stage)
	s.evHandler("state: mining: stage[%s]", stage)
}

// =============================================================================

// Host returns the host of this node.
func (s *State) Host() string {
	return s.host
}

// Genesis returns a copy of the genesis information.
func (s *State) Genesis() genesis.Genesis {
	return s.genesis
}

// Gateway returns the network gateway.
func (s *State) Gateway() *gateway.Gateway {
	return s.gateway
}

// Account returns the fingerprint of the node signer.
func (s *State) Account() string {
	if s.signer == nil {
		return ""
	}
	return s.signer.Fingerprint()
}

// Tail returns the latest committed block.
func (s *State) Tail() database.Block {
	return s.db.Tail()
}

// QueryBlocks returns the committed blocks from through to inclusive.
func (s *State) QueryBlocks(from uint64, to uint64) []database.Block {
	return s.db.Blocks(from, to)
}

// QueryPending returns a copy of the pending transactions.
func (s *State) QueryPending() []database.Tx {
	return s.db.Pending()
}

// QueryPendingLength returns the number of pending transactions.
func (s *State) QueryPendingLength() int {
	return s.db.PendingCount()
}

// QueryBalances returns the balances of every account or of the one account
// when specified.
func (s *State) QueryBalances(account string) ([]database.Balance, error) {
	if account == "" {
		return s.db.Balances()
	}

	b, err := s.db.Balance(account)
	if err != nil {
		return nil, err
	}

	return []database.Balance{b}, nil
}

// ValidateChain walks the full chain checking every block.
func (s *State) ValidateChain() error {
	return s.db.ValidateChain()
}

// Status returns what this node reports about its chain.
func (s *State) Status() peer.Status {
	tail := s.db.Tail()

	return peer.Status{
		TailHash:   tail.Hash,
		TailIndex:  tail.Header.Index,
		Pending:    s.db.PendingCount(),
		KnownPeers: s.KnownPeers(),
	}
}

// KnownPeers returns the known peers including this node.
func (s *State) KnownPeers() []peer.Peer {
	return append(s.gateway.Peers(), peer.New(s.host))
}
