// Package peer maintains the peer related information such as the set
// of known peers and their status.
package peer

import (
	"slices"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Peer represents information about a Node in the network.
type Peer struct {
	Host string `json:"host"`
}

// New constructs a new peer value.
func New(host string) Peer {
	return Peer{
		Host: host,
	}
}

// Match validates if the specified host matches this node.
func (p Peer) Match(host string) bool {
	return p.Host == host
}

// =============================================================================

// Status represents what a peer reports about its chain.
type Status struct {
	TailHash   common.Hash `json:"tail_hash"`
	TailIndex  uint64      `json:"tail_index"`
	Pending    int         `json:"pending"`
	KnownPeers []Peer      `json:"known_peers"`
}

// =============================================================================

// Set represents the data representation to maintain a set of known peers.
type Set struct {
	mu  sync.RWMutex
	set map[Peer]struct{}
}

// NewSet constructs a new set to manage node peer information.
func NewSet() *Set {
	return &Set{
		set: make(map[Peer]struct{}),
	}
}

// Add adds a new node to the set. It reports false if the peer was already
// known or has no host.
func (s *Set) Add(peer Peer) bool {
	if peer.Host == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.set[peer]; exists {
		return false
	}

	s.set[peer] = struct{}{}
	return true
}

// Remove removes a node from the set.
func (s *Set) Remove(peer Peer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.set, peer)
}

// Len returns the number of known peers.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.set)
}

// Copy returns the known peers sorted by host, excluding the specified host.
func (s *Set) Copy(host string) []Peer {
	s.mu.RLock()
	defer s.mu.RUnlock()

	peers := make([]Peer, 0, len(s.set))
	for peer := range s.set {
		if !peer.Match(host) {
			peers = append(peers, peer)
		}
	}

	slices.SortFunc(peers, func(a, b Peer) int {
		return strings.Compare(a.Host, b.Host)
	})

	return peers
}
