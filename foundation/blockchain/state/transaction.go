package state

import (
	"context"
	"errors"

	"github.com/ardanlabs/qchain/foundation/blockchain/database"
	"github.com/ardanlabs/qchain/foundation/blockchain/gateway"
)

// SubmitWalletTransaction accepts a transaction from a wallet for inclusion.
// The transaction is shared with the known peers.
func (s *State) SubmitWalletTransaction(ctx context.Context, tx database.Tx) error {
	if err := tx.Validate(s.genesis.Algorithm); err != nil {
		return err
	}

	s.db.SubmitTransaction(tx)

	if err := s.gateway.Broadcast(ctx, gateway.TxCommand(tx)); err != nil {
		s.evHandler("state: SubmitWalletTransaction: tx[%s]: broadcast: WARNING: %s", tx, err)
	}

	s.Worker.SignalStartMining()

	return nil
}

// ProcessNodeTransaction accepts a transaction shared by a peer for inclusion.
func (s *State) ProcessNodeTransaction(tx database.Tx) error {
	if err := tx.Validate(s.genesis.Algorithm); err != nil {
		return err
	}

	s.db.SubmitTransaction(tx)
	s.Worker.SignalStartMining()

	return nil
}

// CreateTransaction signs a transfer from the node account, submits it and
// shares it with the known peers.
func (s *State) CreateTransaction(ctx context.Context, to string, amount database.Amount) (database.Tx, error) {
	if s.signer == nil {
		return database.Tx{}, errors.New("node has no signing key")
	}

	tx, err := database.NewTx(s.signer, to, amount)
	if err != nil {
		return database.Tx{}, err
	}

	if err := s.SubmitWalletTransaction(ctx, tx); err != nil {
		return database.Tx{}, err
	}

	return tx, nil
}
