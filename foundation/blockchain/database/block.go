package database

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/ardanlabs/qchain/foundation/blockchain/genesis"
	"github.com/ardanlabs/qchain/foundation/blockchain/pow"
	"github.com/ethereum/go-ethereum/common"
)

// headerVersion identifies the layout produced by HeaderBytes.
const headerVersion = 1

// ZeroHash is the previous hash recorded by the genesis block.
var ZeroHash common.Hash

// =============================================================================

// BlockHeader represents common information required for each block.
type BlockHeader struct {
	Index      uint64      `json:"index"`      // Position of the block in the chain.
	TimeStamp  uint64      `json:"timestamp"`  // Time the block was built in unix milliseconds.
	PrevHash   common.Hash `json:"prev_hash"`  // Hash of the previous block in the chain.
	Nonce      uint64      `json:"nonce"`      // Value identified to solve the hash solution.
	Difficulty uint32      `json:"difficulty"` // Number of leading zero bits needed to solve the hash solution.
}

// Block represents a group of transactions batched together.
type Block struct {
	Header BlockHeader `json:"header"`
	Hash   common.Hash `json:"hash"`
	Trans  []Tx        `json:"trans"`
}

// NewBlock constructs the next candidate block on top of the parent. The
// difficulty is inherited from the parent. Nonce and hash are left for the
// proof of work.
func NewBlock(parent Block, trans []Tx, now time.Time) Block {
	return Block{
		Header: BlockHeader{
			Index:      parent.Header.Index + 1,
			TimeStamp:  uint64(now.UTC().UnixMilli()),
			PrevHash:   parent.Hash,
			Difficulty: parent.Header.Difficulty,
		},
		Trans: trans,
	}
}

// GenesisBlock constructs the first block of the chain from the genesis
// values. Every node derives the same block and hash.
func GenesisBlock(gen genesis.Genesis, hasher pow.Hasher) Block {
	b := Block{
		Header: BlockHeader{
			Index:      0,
			TimeStamp:  uint64(gen.Date.UTC().UnixMilli()),
			PrevHash:   ZeroHash,
			Difficulty: gen.Difficulty,
		},
		Trans: []Tx{},
	}
	b.Hash = b.ComputeHash(hasher)

	return b
}

// HeaderBytes returns the canonical encoding of every block field except the
// nonce and hash. This is the input handed to the proof of work.
func (b Block) HeaderBytes() []byte {
	buf := make([]byte, 0, 128+len(b.Trans)*256)
	buf = append(buf, headerVersion)
	buf = binary.BigEndian.AppendUint64(buf, b.Header.Index)
	buf = binary.BigEndian.AppendUint64(buf, b.Header.TimeStamp)
	buf = binary.BigEndian.AppendUint32(buf, b.Header.Difficulty)
	buf = append(buf, b.Header.PrevHash[:]...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(b.Trans)))
	for _, tx := range b.Trans {
		buf = tx.encode(buf)
	}

	return buf
}

// ComputeHash returns the identity hash of the block. It is the same digest
// the proof of work compares against the difficulty target.
func (b Block) ComputeHash(hasher pow.Hasher) common.Hash {
	return common.Hash(hasher.Hash(pow.Input(b.HeaderBytes(), b.Header.Nonce)))
}

// Solved reports whether the recorded hash satisfies the block difficulty.
func (b Block) Solved() bool {
	return pow.IsSolved(b.Hash, pow.Target(b.Header.Difficulty))
}

// ValidateHash checks the recorded hash matches the block contents and
// satisfies the difficulty target.
func (b Block) ValidateHash(hasher pow.Hasher) error {
	if hash := b.ComputeHash(hasher); hash != b.Hash {
		return fmt.Errorf("%w: blk[%d]: got %s, exp %s", ErrInvalidBlockHash, b.Header.Index, b.Hash, hash)
	}

	if !b.Solved() {
		return fmt.Errorf("%w: blk[%d]: %s does not meet difficulty %d", ErrInvalidBlockHash, b.Header.Index, b.Hash, b.Header.Difficulty)
	}

	return nil
}

// LinksTo checks the block is the next block after the parent.
func (b Block) LinksTo(parent Block) error {
	if b.Header.PrevHash != parent.Hash {
		return fmt.Errorf("%w: blk[%d]: prev hash %s, tail %s", ErrChainMismatch, b.Header.Index, b.Header.PrevHash, parent.Hash)
	}

	if b.Header.Index != parent.Header.Index+1 {
		return fmt.Errorf("%w: blk[%d]: tail is blk[%d]", ErrChainMismatch, b.Header.Index, parent.Header.Index)
	}

	return nil
}

// String implements the fmt.Stringer interface for logging.
func (b Block) String() string {
	return fmt.Sprintf("blk[%d]:%s", b.Header.Index, b.Hash.TerminalString())
}
