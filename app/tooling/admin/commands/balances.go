// Package commands contains the functionality for the admin tooling.
package commands

import (
	"fmt"
	"io"

	"github.com/ardanlabs/conf/v3"
	"github.com/ardanlabs/qchain/foundation/blockchain/database"
)

// Balances writes the current set of balances.
func Balances(w io.Writer, args conf.Args, db *database.Database) error {
	fmt.Fprintf(w, "Tail: blk[%d] %s\n\n", db.Tail().Header.Index, db.Tail().Hash)

	if account := args.Num(1); account != "" {
		b, err := db.Balance(account)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Account: %s  Credits: %s  Debits: %s  Net: %s\n", b.Account, b.Credits, b.Debits, b.Net())
		return nil
	}

	bals, err := db.Balances()
	if err != nil {
		return err
	}

	for _, b := range bals {
		fmt.Fprintf(w, "Account: %s  Credits: %s  Debits: %s  Net: %s\n", b.Account, b.Credits, b.Debits, b.Net())
	}

	return nil
}
