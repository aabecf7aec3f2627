package database

import (
	"fmt"
	"slices"
)

// Balance reports the value that moved through an account. Balances are not
// enforced when transactions are accepted so debits can exceed credits.
type Balance struct {
	Account string `json:"account"`
	Credits Amount `json:"credits"` // Genesis balance plus everything received.
	Debits  Amount `json:"debits"`  // Everything sent.
}

// Net renders credits minus debits, which may be negative.
func (b Balance) Net() string {
	if b.Debits > b.Credits {
		return "-" + (b.Debits - b.Credits).String()
	}
	return (b.Credits - b.Debits).String()
}

// Balances computes the balance of every account from the genesis balances
// and the committed transactions.
func (db *Database) Balances() ([]Balance, error) {
	accounts := make(map[string]*Balance)
	get := func(account string) *Balance {
		b, exists := accounts[account]
		if !exists {
			b = &Balance{Account: account}
			accounts[account] = b
		}
		return b
	}

	for account, value := range db.genesis.Balances {
		amount, err := ParseAmount(value)
		if err != nil {
			return nil, fmt.Errorf("genesis balance %s: %w", account, err)
		}
		get(account).Credits += amount
	}

	db.mu.RLock()
	for _, block := range db.chain {
		for _, tx := range block.Trans {
			get(tx.From).Debits += tx.Amount
			get(tx.To).Credits += tx.Amount
		}
	}
	db.mu.RUnlock()

	balances := make([]Balance, 0, len(accounts))
	for _, b := range accounts {
		balances = append(balances, *b)
	}
	slices.SortFunc(balances, func(a, b Balance) int {
		switch {
		case a.Account < b.Account:
			return -1
		case a.Account > b.Account:
			return 1
		}
		return 0
	})

	return balances, nil
}

// Balance computes the balance of one account.
func (db *Database) Balance(account string) (Balance, error) {
	balances, err := db.Balances()
	if err != nil {
		return Balance{}, err
	}

	for _, b := range balances {
		if b.Account == account {
			return b, nil
		}
	}

	return Balance{Account: account}, nil
}
