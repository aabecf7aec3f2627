package commands

import (
	"fmt"
	"io"
	"strconv"

	"github.com/ardanlabs/conf/v3"
	"github.com/ardanlabs/qchain/foundation/blockchain/database"
)

// Blocks writes the committed blocks in the requested range.
func Blocks(w io.Writer, args conf.Args, db *database.Database) error {
	from := uint64(0)
	to := db.Tail().Header.Index

	if s := args.Num(1); s != "" {
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return fmt.Errorf("from: %w", err)
		}
		from = v
	}

	if s := args.Num(2); s != "" {
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return fmt.Errorf("to: %w", err)
		}
		to = v
	}

	for _, block := range db.Blocks(from, to) {
		fmt.Fprintf(w, "%s  prev: %s  nonce: %d  difficulty: %d  txs: %d\n",
			block, block.Header.PrevHash, block.Header.Nonce, block.Header.Difficulty, len(block.Trans))

		for _, tx := range block.Trans {
			fmt.Fprintf(w, "    %s  id: %s\n", tx, tx.ID())
		}
	}

	return nil
}

// Validate walks the chain checking linkage and proof of work of every block.
func Validate(w io.Writer, db *database.Database) error {
	if err := db.ValidateChain(); err != nil {
		return err
	}

	fmt.Fprintf(w, "chain valid: blocks[%d]\n", db.Length())
	return nil
}

// Reset removes every stored block, leaving only the genesis block. The
// node must not be running against the same storage.
func Reset(w io.Writer, db *database.Database) error {
	removed := db.Length() - 1

	if err := db.Reset(); err != nil {
		return err
	}

	fmt.Fprintf(w, "chain reset: removed blocks[%d]\n", removed)
	return nil
}
