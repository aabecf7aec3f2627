package database_test

import (
	"errors"
	"testing"

	"github.com/ardanlabs/qchain/foundation/blockchain/database"
	"github.com/ardanlabs/qchain/foundation/blockchain/signature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTxValidate(t *testing.T) {
	bill, err := signature.New(signature.Dilithium2)
	require.NoError(t, err)
	jill, err := signature.New(signature.Dilithium2)
	require.NoError(t, err)

	tx, err := database.NewTx(bill, jill.Fingerprint(), database.MustParseAmount("10"))
	require.NoError(t, err)
	require.NoError(t, tx.Validate(signature.Dilithium2))
	assert.Equal(t, bill.Fingerprint(), tx.From)

	t.Run("amount", func(t *testing.T) {
		bad := tx
		bad.Amount++
		assert.ErrorIs(t, bad.Validate(signature.Dilithium2), database.ErrSignatureInvalid)
	})

	t.Run("recipient", func(t *testing.T) {
		bad := tx
		bad.To = bill.Fingerprint()
		assert.ErrorIs(t, bad.Validate(signature.Dilithium2), database.ErrSignatureInvalid)
	})

	t.Run("foreign key", func(t *testing.T) {
		bad := tx
		bad.PublicKey = jill.PublicKey()
		assert.ErrorIs(t, bad.Validate(signature.Dilithium2), database.ErrSignatureInvalid)
	})

	t.Run("impersonation", func(t *testing.T) {
		forged, err := database.NewTx(jill, bill.Fingerprint(), database.MustParseAmount("10"))
		require.NoError(t, err)
		forged.From = bill.Fingerprint()
		assert.ErrorIs(t, forged.Validate(signature.Dilithium2), database.ErrSignatureInvalid)
	})

	t.Run("algorithm", func(t *testing.T) {
		err := tx.Validate("RSA-4096")
		assert.True(t, errors.Is(err, signature.ErrAlgorithmUnsupported))
	})

	t.Run("malformed recipient", func(t *testing.T) {
		_, err := database.NewTx(bill, "jill", database.MustParseAmount("1"))
		assert.Error(t, err)
	})
}

func TestTxID(t *testing.T) {
	bill, err := signature.New(signature.Ed25519)
	require.NoError(t, err)
	jill, err := signature.New(signature.Ed25519)
	require.NoError(t, err)

	a, err := database.NewTx(bill, jill.Fingerprint(), database.MustParseAmount("1"))
	require.NoError(t, err)
	b, err := database.NewTx(bill, jill.Fingerprint(), database.MustParseAmount("2"))
	require.NoError(t, err)

	assert.Equal(t, a.ID(), a.ID())
	assert.NotEqual(t, a.ID(), b.ID())

	require.NoError(t, database.ValidateTransactions(signature.Ed25519, []database.Tx{a, b}))

	b.Signature[0] ^= 0xff
	assert.ErrorIs(t, database.ValidateTransactions(signature.Ed25519, []database.Tx{a, b}), database.ErrSignatureInvalid)
}
