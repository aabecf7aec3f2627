package database_test

import (
	"context"
	"crypto/sha256"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ardanlabs/qchain/foundation/blockchain/database"
	"github.com/ardanlabs/qchain/foundation/blockchain/genesis"
	"github.com/ardanlabs/qchain/foundation/blockchain/oracle"
	"github.com/ardanlabs/qchain/foundation/blockchain/pow"
	"github.com/ardanlabs/qchain/foundation/blockchain/signature"
	"github.com/ardanlabs/qchain/foundation/blockchain/storage/memory"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// =============================================================================

func Test_AppendBlock(t *testing.T) {
	t.Log("Given the need to append blocks to the chain.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen handling blocks against the genesis tail.", testID)
		{
			db := newDB(t, memory.New())
			gb := db.Tail()

			bill, jill := newSigner(t), newSigner(t)
			tx := newTx(t, bill, jill, "10")

			good := mine(t, database.NewBlock(gb, []database.Tx{tx}, time.Now()))

			badPrev := good
			badPrev.Header.PrevHash[0] ^= 0xff
			badPrev = mine(t, badPrev)
			if err := db.AppendBlock(badPrev); !errors.Is(err, database.ErrChainMismatch) {
				t.Fatalf("\t%s\tTest %d:\tShould reject a block with the wrong previous hash: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould reject a block with the wrong previous hash.", success, testID)

			badIndex := good
			badIndex.Header.Index = 2
			badIndex = mine(t, badIndex)
			if err := db.AppendBlock(badIndex); !errors.Is(err, database.ErrChainMismatch) {
				t.Fatalf("\t%s\tTest %d:\tShould reject a block with the wrong index: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould reject a block with the wrong index.", success, testID)

			badHash := good
			badHash.Trans = []database.Tx{newTx(t, bill, jill, "11")}
			if err := db.AppendBlock(badHash); !errors.Is(err, database.ErrInvalidBlockHash) {
				t.Fatalf("\t%s\tTest %d:\tShould reject a block whose hash does not match its contents: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould reject a block whose hash does not match its contents.", success, testID)

			badDifficulty := good
			badDifficulty.Header.Difficulty = 1
			badDifficulty = mine(t, badDifficulty)
			if err := db.AppendBlock(badDifficulty); !errors.Is(err, database.ErrInvalidBlockHash) {
				t.Fatalf("\t%s\tTest %d:\tShould reject a block that changes the difficulty: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould reject a block that changes the difficulty.", success, testID)

			if db.Length() != 1 || db.Tail().Hash != gb.Hash {
				t.Fatalf("\t%s\tTest %d:\tShould leave the chain unchanged after rejections.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould leave the chain unchanged after rejections.", success, testID)

			if err := db.AppendBlock(good); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to append the valid block: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to append the valid block.", success, testID)

			if err := db.AppendBlock(good); !errors.Is(err, database.ErrChainMismatch) {
				t.Fatalf("\t%s\tTest %d:\tShould reject the same block twice: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould reject the same block twice.", success, testID)

			if err := db.ValidateChain(); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould have a valid chain: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould have a valid chain.", success, testID)
		}
	}
}

func Test_DrainRequeue(t *testing.T) {
	t.Log("Given the need to drain and requeue pending transactions.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen another block commits while transactions are drained.", testID)
		{
			db := newDB(t, memory.New())
			bill, jill := newSigner(t), newSigner(t)

			t1 := newTx(t, bill, jill, "1")
			t2 := newTx(t, bill, jill, "2")
			t3 := newTx(t, bill, jill, "3")
			t4 := newTx(t, jill, bill, "4")

			db.SubmitTransaction(t1)
			db.SubmitTransaction(t2)
			db.SubmitTransaction(t3)

			drained := db.DrainPending()
			if len(drained) != 3 || db.PendingCount() != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould drain every pending transaction.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould drain every pending transaction.", success, testID)

			db.SubmitTransaction(t4)

			other := mine(t, database.NewBlock(db.Tail(), []database.Tx{t2}, time.Now()))
			if err := db.AppendBlock(other); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to append the other block: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to append the other block.", success, testID)

			db.Requeue(drained)

			exp := []database.Tx{t1, t3, t4}
			got := db.Pending()
			if len(got) != len(exp) {
				t.Fatalf("\t%s\tTest %d:\tShould have %d pending transactions, got %d.", failed, testID, len(exp), len(got))
			}
			for i := range exp {
				if got[i].ID() != exp[i].ID() {
					t.Fatalf("\t%s\tTest %d:\tShould keep drained transactions ahead in order at %d: got %s, exp %s", failed, testID, i, got[i], exp[i])
				}
			}
			t.Logf("\t%s\tTest %d:\tShould keep drained transactions ahead in order.", success, testID)

			seen := make(map[string]int)
			for _, block := range db.Blocks(0, 100) {
				for _, tx := range block.Trans {
					seen[tx.ID().Hex()]++
				}
			}
			for _, tx := range db.Pending() {
				seen[tx.ID().Hex()]++
			}
			for _, tx := range []database.Tx{t1, t2, t3, t4} {
				if seen[tx.ID().Hex()] != 1 {
					t.Fatalf("\t%s\tTest %d:\tShould see %s exactly once, got %d.", failed, testID, tx, seen[tx.ID().Hex()])
				}
			}
			t.Logf("\t%s\tTest %d:\tShould not lose or duplicate any transaction.", success, testID)
		}

		testID = 1
		t.Logf("\tTest %d:\tWhen working through the exclusive gate.", testID)
		{
			db := newDB(t, memory.New())
			bill, jill := newSigner(t), newSigner(t)
			db.SubmitTransaction(newTx(t, bill, jill, "1"))

			err := db.Exclusive(func(g *database.Gate) error {
				if g.PendingCount() != 1 {
					return errors.New("expected one pending transaction")
				}

				tail := g.Tail()
				txs := g.DrainPending()
				block := mine(t, database.NewBlock(tail, txs, time.Now()))

				return g.AppendMinedBlock(block)
			})
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to commit through the gate: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to commit through the gate.", success, testID)

			if db.Length() != 2 || db.PendingCount() != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould have two blocks and nothing pending.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould have two blocks and nothing pending.", success, testID)
		}
	}
}

func Test_IdenticalPayments(t *testing.T) {
	t.Log("Given the need to keep every copy of an identical payment.")
	{
		bill, jill := newSigner(t), newSigner(t)

		testID := 0
		t.Logf("\tTest %d:\tWhen a copy is submitted while the first is being mined.", testID)
		{
			db := newDB(t, memory.New())
			tx := newTx(t, bill, jill, "10")

			db.SubmitTransaction(tx)
			drained := db.DrainPending()
			db.SubmitTransaction(tx)

			block := mine(t, database.NewBlock(db.Tail(), drained, time.Now()))
			if err := db.AppendMinedBlock(block); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to commit the mined block: %v", failed, testID, err)
			}

			pending := db.Pending()
			if len(pending) != 1 || pending[0].ID() != tx.ID() {
				t.Fatalf("\t%s\tTest %d:\tShould keep the second copy pending, got %d.", failed, testID, len(pending))
			}
			t.Logf("\t%s\tTest %d:\tShould keep the second copy pending.", success, testID)
		}

		testID = 1
		t.Logf("\tTest %d:\tWhen a peer block commits the drained copy first.", testID)
		{
			db := newDB(t, memory.New())
			tx := newTx(t, bill, jill, "10")

			db.SubmitTransaction(tx)
			drained := db.DrainPending()
			db.SubmitTransaction(tx)

			peerBlock := mine(t, database.NewBlock(db.Tail(), []database.Tx{tx}, time.Now()))
			if err := db.AppendBlock(peerBlock); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to append the peer block: %v", failed, testID, err)
			}

			if db.PendingCount() != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould settle the peer block against the drained copy, got %d pending.", failed, testID, db.PendingCount())
			}
			t.Logf("\t%s\tTest %d:\tShould settle the peer block against the drained copy.", success, testID)

			db.Requeue(drained)

			if db.PendingCount() != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould drop the committed copy on requeue, got %d pending.", failed, testID, db.PendingCount())
			}
			t.Logf("\t%s\tTest %d:\tShould drop the committed copy on requeue.", success, testID)
		}

		testID = 2
		t.Logf("\tTest %d:\tWhen a peer block carries a queued payment.", testID)
		{
			db := newDB(t, memory.New())
			tx := newTx(t, bill, jill, "10")

			db.SubmitTransaction(tx)
			db.SubmitTransaction(tx)

			peerBlock := mine(t, database.NewBlock(db.Tail(), []database.Tx{tx}, time.Now()))
			if err := db.AppendBlock(peerBlock); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to append the peer block: %v", failed, testID, err)
			}

			if db.PendingCount() != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould prune one copy per committed copy, got %d pending.", failed, testID, db.PendingCount())
			}
			t.Logf("\t%s\tTest %d:\tShould prune one copy per committed copy.", success, testID)
		}
	}
}

func Test_ConcurrentAppend(t *testing.T) {
	t.Log("Given the need to serialize competing commits.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen two blocks target the same tail.", testID)
		{
			db := newDB(t, memory.New())
			bill, jill := newSigner(t), newSigner(t)

			tail := db.Tail()
			txsA := []database.Tx{newTx(t, bill, jill, "1")}
			txsB := []database.Tx{newTx(t, jill, bill, "2")}

			blocks := []database.Block{
				mine(t, database.NewBlock(tail, txsA, time.Now())),
				mine(t, database.NewBlock(tail, txsB, time.Now())),
			}

			errs := make([]error, 2)
			var wg sync.WaitGroup
			start := make(chan struct{})
			for i := range blocks {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					<-start
					errs[i] = db.AppendBlock(blocks[i])
				}(i)
			}
			close(start)
			wg.Wait()

			var wins, mismatches int
			loser := -1
			for i, err := range errs {
				switch {
				case err == nil:
					wins++
				case errors.Is(err, database.ErrChainMismatch):
					mismatches++
					loser = i
				}
			}
			if wins != 1 || mismatches != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould have exactly one success and one mismatch: %v", failed, testID, errs)
			}
			t.Logf("\t%s\tTest %d:\tShould have exactly one success and one mismatch.", success, testID)

			rebuilt := mine(t, database.NewBlock(db.Tail(), blocks[loser].Trans, time.Now()))
			if err := db.AppendBlock(rebuilt); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould commit the rebuilt block: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould commit the rebuilt block.", success, testID)

			if db.Length() != 3 {
				t.Fatalf("\t%s\tTest %d:\tShould have three blocks, got %d.", failed, testID, db.Length())
			}

			if err := db.ValidateChain(); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould have a valid chain: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould have a valid chain.", success, testID)
		}
	}
}

func Test_ReplayTampered(t *testing.T) {
	t.Log("Given the need to detect tampered blocks in storage.")
	{
		bill, jill := newSigner(t), newSigner(t)
		gb := database.GenesisBlock(testGenesis(), sha256Hasher{})

		b1 := mine(t, database.NewBlock(gb, []database.Tx{newTx(t, bill, jill, "1")}, time.Now()))
		b2 := mine(t, database.NewBlock(b1, []database.Tx{newTx(t, jill, bill, "2")}, time.Now()))

		type table struct {
			name   string
			mutate func(b *database.Block)
			err    error
		}

		tt := []table{
			{name: "amount", mutate: func(b *database.Block) { b.Trans[0].Amount++ }, err: database.ErrInvalidBlockHash},
			{name: "nonce", mutate: func(b *database.Block) { b.Header.Nonce++ }, err: database.ErrInvalidBlockHash},
			{name: "prevhash", mutate: func(b *database.Block) { b.Header.PrevHash = database.ZeroHash }, err: database.ErrChainMismatch},
		}

		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen the %s of a stored block is changed.", testID, tst.name)
			{
				f := func(t *testing.T) {
					tampered := b2
					tampered.Trans = append([]database.Tx(nil), b2.Trans...)
					tst.mutate(&tampered)

					store := memory.New()
					if err := store.Write(b1); err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to store block 1: %v", failed, testID, err)
					}
					if err := store.Write(tampered); err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to store block 2: %v", failed, testID, err)
					}

					_, err := database.New(testGenesis(), sha256Hasher{}, store, nil)
					if !errors.Is(err, tst.err) {
						t.Fatalf("\t%s\tTest %d:\tShould refuse to load the chain with %v, got %v", failed, testID, tst.err, err)
					}
					t.Logf("\t%s\tTest %d:\tShould refuse to load the chain.", success, testID)
				}

				t.Run(tst.name, f)
			}
		}
	}
}

func Test_Balances(t *testing.T) {
	bill, jill := newSigner(t), newSigner(t)

	gen := testGenesis()
	gen.Balances = map[string]string{bill.Fingerprint(): "100"}

	db, err := database.New(gen, sha256Hasher{}, memory.New(), nil)
	if err != nil {
		t.Fatalf("Should be able to open the database: %s", err)
	}

	txs := []database.Tx{newTx(t, bill, jill, "30.5"), newTx(t, jill, bill, "0.5")}
	if err := db.AppendBlock(mine(t, database.NewBlock(db.Tail(), txs, time.Now()))); err != nil {
		t.Fatalf("Should be able to append the block: %s", err)
	}

	b, err := db.Balance(bill.Fingerprint())
	if err != nil {
		t.Fatalf("Should be able to compute the balance: %s", err)
	}
	if b.Net() != "70" {
		t.Fatalf("Should have a net of 70 for bill, got %s", b.Net())
	}

	j, err := db.Balance(jill.Fingerprint())
	if err != nil {
		t.Fatalf("Should be able to compute the balance: %s", err)
	}
	if j.Net() != "30" {
		t.Fatalf("Should have a net of 30 for jill, got %s", j.Net())
	}
}

func Test_OracleHashedChain(t *testing.T) {
	gen := testGenesis()
	gen.Oracle = oracle.Config{Items: 1024, Rounds: 8, ArgonTime: 1, ArgonMemory: 64, ArgonThreads: 1}

	dataset, err := oracle.New([]byte(gen.OracleSeed), gen.Oracle)
	if err != nil {
		t.Fatalf("Should be able to build the dataset: %s", err)
	}

	db, err := database.New(gen, dataset, memory.New(), nil)
	if err != nil {
		t.Fatalf("Should be able to open the database: %s", err)
	}

	bill, jill := newSigner(t), newSigner(t)
	block := database.NewBlock(db.Tail(), []database.Tx{newTx(t, bill, jill, "1")}, time.Now())

	result, err := pow.Search(t.Context(), dataset, block.HeaderBytes(), block.Header.Difficulty)
	if err != nil {
		t.Fatalf("Should be able to solve the block: %s", err)
	}
	block.Header.Nonce = result.Nonce
	block.Hash = result.Digest

	if err := db.AppendBlock(block); err != nil {
		t.Fatalf("Should be able to append the block: %s", err)
	}

	if err := db.ValidateChain(); err != nil {
		t.Fatalf("Should have a valid chain: %s", err)
	}
}

// =============================================================================

type sha256Hasher struct{}

func (sha256Hasher) Hash(input []byte) [pow.HashLength]byte {
	return sha256.Sum256(input)
}

func testGenesis() genesis.Genesis {
	gen := genesis.Default()
	gen.Algorithm = signature.Ed25519
	return gen
}

func newDB(t *testing.T, store database.Serializer) *database.Database {
	t.Helper()

	db, err := database.New(testGenesis(), sha256Hasher{}, store, nil)
	if err != nil {
		t.Fatalf("Should be able to open the database: %s", err)
	}

	return db
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

// mine solves the block with the test hasher.
func mine(t *testing.T, block database.Block) database.Block {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := pow.Search(ctx, sha256Hasher{}, block.HeaderBytes(), block.Header.Difficulty)
	if err != nil {
		t.Fatalf("Should be able to solve the block: %s", err)
	}

	block.Header.Nonce = result.Nonce
	block.Hash = result.Digest

	return block
}
