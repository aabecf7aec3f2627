package worker_test

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ardanlabs/qchain/foundation/blockchain/database"
	"github.com/ardanlabs/qchain/foundation/blockchain/gateway"
	"github.com/ardanlabs/qchain/foundation/blockchain/genesis"
	"github.com/ardanlabs/qchain/foundation/blockchain/peer"
	"github.com/ardanlabs/qchain/foundation/blockchain/pow"
	"github.com/ardanlabs/qchain/foundation/blockchain/signature"
	"github.com/ardanlabs/qchain/foundation/blockchain/state"
	"github.com/ardanlabs/qchain/foundation/blockchain/storage/memory"
	"github.com/ardanlabs/qchain/foundation/blockchain/worker"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// =============================================================================

func Test_MiningCancelledByPeerBlock(t *testing.T) {
	t.Log("Given the need to apply a peer block while mining holds the gate.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen a peer block arrives during an exclusive search.", testID)
		{
			st := newState(t, state.MiningExclusive, &fakeTransport{})
			gb := st.Tail()

			worker.Run(st, time.Hour, nil)
			t.Cleanup(func() { st.Shutdown() })

			a, b := newSigner(t), newSigner(t)
			mine := newTx(t, a, b, "1")
			theirs := newTx(t, b, a, "2")

			if err := st.ProcessNodeTransaction(mine); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould accept the transaction: %v", failed, testID, err)
			}

			if !eventually(func() bool { return st.Stage() == state.StageMining }) {
				t.Fatalf("\t%s\tTest %d:\tShould start mining.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould start mining.", success, testID)

			replay := make(chan error, 1)
			go func() {
				replay <- st.ProcessProposedBlock(gb)
			}()

			select {
			case err := <-replay:
				if !errors.Is(err, database.ErrChainMismatch) {
					t.Fatalf("\t%s\tTest %d:\tShould reject a committed block: %v", failed, testID, err)
				}
			case <-time.After(5 * time.Second):
				t.Fatalf("\t%s\tTest %d:\tShould reject a committed block without waiting on the search.", failed, testID)
			}

			if st.Stage() != state.StageMining {
				t.Fatalf("\t%s\tTest %d:\tShould keep mining after a committed block is replayed, got %s.", failed, testID, st.Stage())
			}
			t.Logf("\t%s\tTest %d:\tShould reject a committed block without disturbing the search.", success, testID)

			peerBlock := solve(database.NewBlock(gb, []database.Tx{theirs}, time.Now()))

			ch := make(chan error, 1)
			go func() {
				ch <- st.ProcessProposedBlock(peerBlock)
			}()

			select {
			case err := <-ch:
				if err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould accept the peer block: %v", failed, testID, err)
				}
			case <-time.After(5 * time.Second):
				t.Fatalf("\t%s\tTest %d:\tShould not wait on the search.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould accept the peer block without waiting on the search.", success, testID)

			st.ToggleMining(false)

			settled := eventually(func() bool {
				return st.Stage() == state.StageIdle && st.QueryPendingLength() == 1
			})
			if !settled {
				t.Fatalf("\t%s\tTest %d:\tShould requeue the drained transaction.", failed, testID)
			}

			pending := st.QueryPending()
			if pending[0].ID() != mine.ID() {
				t.Fatalf("\t%s\tTest %d:\tShould requeue the drained transaction.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould requeue the drained transaction.", success, testID)

			if st.Tail().Hash != peerBlock.Hash || len(st.QueryBlocks(0, 10)) != 2 {
				t.Fatalf("\t%s\tTest %d:\tShould have the peer block as the tail.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould have the peer block as the tail.", success, testID)
		}
	}
}

func Test_QueuedCancelHoldsNextCycle(t *testing.T) {
	t.Log("Given the need to apply a peer block that was signalled before a cycle starts.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen a cancel is queued ahead of the cycle.", testID)
		{
			st := newState(t, state.MiningExclusive, &fakeTransport{})

			worker.Run(st, time.Hour, nil)
			t.Cleanup(func() { st.Shutdown() })

			done := st.Worker.SignalCancelMining()

			a, b := newSigner(t), newSigner(t)
			if err := st.ProcessNodeTransaction(newTx(t, a, b, "1")); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould accept the transaction: %v", failed, testID, err)
			}

			time.Sleep(300 * time.Millisecond)
			if st.Stage() != state.StageIdle || st.QueryPendingLength() != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould not start the search before the canceller finishes, got %s.", failed, testID, st.Stage())
			}
			t.Logf("\t%s\tTest %d:\tShould not start the search before the canceller finishes.", success, testID)

			done()

			if !eventually(func() bool { return st.Stage() == state.StageMining }) {
				t.Fatalf("\t%s\tTest %d:\tShould start the search once released.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould start the search once released.", success, testID)
		}
	}
}

func Test_InboundEvents(t *testing.T) {
	t.Log("Given the need to process events delivered by peers.")
	{
		remote := &fakeTransport{}
		st := newState(t, state.MiningExclusive, remote)
		st.ToggleMining(false)

		worker.Run(st, time.Hour, nil)
		t.Cleanup(func() { st.Shutdown() })

		a, b := newSigner(t), newSigner(t)
		from := peer.New("peer:9080")

		testID := 0
		t.Logf("\tTest %d:\tWhen receiving transactions.", testID)
		{
			forged := newTx(t, a, b, "1")
			forged.Amount = database.MustParseAmount("100")

			deliver(t, st, gateway.Event{Kind: gateway.EventTransaction, Tx: forged, From: from})
			deliver(t, st, gateway.Event{Kind: gateway.EventTransaction, Tx: newTx(t, a, b, "3"), From: from})

			if !eventually(func() bool { return st.QueryPendingLength() == 1 }) {
				t.Fatalf("\t%s\tTest %d:\tShould queue only the valid transaction.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould queue only the valid transaction.", success, testID)
		}

		testID = 1
		t.Logf("\tTest %d:\tWhen receiving a block from further ahead.", testID)
		{
			blk1 := solve(database.NewBlock(st.Tail(), []database.Tx{newTx(t, a, b, "4")}, time.Now()))
			blk2 := solve(database.NewBlock(blk1, []database.Tx{newTx(t, b, a, "5")}, time.Now()))
			remote.setChain([]database.Block{blk1, blk2})

			deliver(t, st, gateway.Event{Kind: gateway.EventBlock, Block: blk2, From: from})

			if !eventually(func() bool { return st.Tail().Hash == blk2.Hash }) {
				t.Fatalf("\t%s\tTest %d:\tShould sync the missing blocks from the peer.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould sync the missing blocks from the peer.", success, testID)

			if err := st.ValidateChain(); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould have a valid chain: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould have a valid chain.", success, testID)
		}
	}
}

// =============================================================================

// peerNonce is where test blocks start their search. The stallHasher never
// solves below it so local mining runs until cancelled.
const peerNonce = uint64(1) << 40

type stallHasher struct{}

func (stallHasher) Hash(input []byte) [pow.HashLength]byte {
	if binary.LittleEndian.Uint64(input[len(input)-8:]) < peerNonce {
		var digest [pow.HashLength]byte
		for i := range digest {
			digest[i] = 0xff
		}
		return digest
	}
	return sha256.Sum256(input)
}

func solve(block database.Block) database.Block {
	target := pow.Target(block.Header.Difficulty)
	header := block.HeaderBytes()

	for nonce := peerNonce; ; nonce++ {
		digest := stallHasher{}.Hash(pow.Input(header, nonce))
		if pow.IsSolved(digest, target) {
			block.Header.Nonce = nonce
			block.Hash = digest
			return block
		}
	}
}

type fakeTransport struct {
	mu    sync.Mutex
	chain []database.Block
}

func (f *fakeTransport) setChain(blocks []database.Block) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.chain = blocks
}

func (f *fakeTransport) blocks() []database.Block {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.chain
}

func (f *fakeTransport) SendBlock(context.Context, peer.Peer, database.Block) error { return nil }
func (f *fakeTransport) SendTx(context.Context, peer.Peer, database.Tx) error       { return nil }
func (f *fakeTransport) Announce(context.Context, peer.Peer, peer.Peer) error       { return nil }

func (f *fakeTransport) Pending(context.Context, peer.Peer) ([]database.Tx, error) {
	return nil, nil
}

func (f *fakeTransport) Status(context.Context, peer.Peer) (peer.Status, error) {
	blocks := f.blocks()
	if len(blocks) == 0 {
		return peer.Status{}, nil
	}

	tail := blocks[len(blocks)-1]
	return peer.Status{TailHash: tail.Hash, TailIndex: tail.Header.Index}, nil
}

func (f *fakeTransport) Blocks(_ context.Context, _ peer.Peer, from uint64, through uint64) ([]database.Block, error) {
	var out []database.Block
	for _, block := range f.blocks() {
		if block.Header.Index >= from && block.Header.Index <= through {
			out = append(out, block)
		}
	}
	return out, nil
}

func newState(t *testing.T, mode string, transport gateway.Transport) *state.State {
	t.Helper()

	gen := genesis.Default()
	gen.Algorithm = signature.Ed25519

	gw := gateway.New(gateway.Config{
		Host:      "localhost:9080",
		Transport: transport,
	})
	gw.Start()

	st, err := state.New(state.Config{
		Signer:        newSigner(t),
		Host:          "localhost:9080",
		Genesis:       gen,
		Hasher:        stallHasher{},
		Storage:       memory.New(),
		Gateway:       gw,
		MiningMode:    mode,
		MiningEnabled: true,
	})
	if err != nil {
		t.Fatalf("Should be able to construct the state: %s", err)
	}

	t.Cleanup(gw.Shutdown)

	return st
}

func newSigner(t *testing.T) *signature.Signer {
	t.Helper()

	signer, err := signature.New(signature.Ed25519)
	if err != nil {
		t.Fatalf("Should be able to construct a signer: %s", err)
	}

	return signer
}

func newTx(t *testing.T, from *signature.Signer, to *signature.Signer, amount string) database.Tx {
	t.Helper()

	tx, err := database.NewTx(from, to.Fingerprint(), database.MustParseAmount(amount))
	if err != nil {
		t.Fatalf("Should be able to sign the transaction: %s", err)
	}

	return tx
}

func deliver(t *testing.T, st *state.State, event gateway.Event) {
	t.Helper()

	if err := st.Gateway().Deliver(t.Context(), event); err != nil {
		t.Fatalf("Should be able to deliver the event: %s", err)
	}
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}
