package database

import (
	"encoding/binary"
	"fmt"

	"github.com/ardanlabs/qchain/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/crypto/blake2b"
)

// signDomain separates transaction signatures from any other use of the
// same keys.
const signDomain = "qchain/tx/v1"

// =============================================================================

// Tx is the transactional information between two parties.
type Tx struct {
	From      string        `json:"from"`       // Fingerprint of the public key that signed the transaction.
	To        string        `json:"to"`         // Fingerprint of the account receiving the value.
	Amount    Amount        `json:"amount"`     // Value moved from the sender to the recipient.
	Signature hexutil.Bytes `json:"signature"`  // Signature over the signing message.
	PublicKey hexutil.Bytes `json:"public_key"` // Public key of the sender.
}

// NewTx constructs and signs a transaction from the signer's account.
func NewTx(signer *signature.Signer, to string, amount Amount) (Tx, error) {
	if !signature.IsFingerprint(to) {
		return Tx{}, fmt.Errorf("to account %q is not properly formatted", to)
	}

	from := signer.Fingerprint()

	sig, err := signer.Sign(SignMessage(from, to, amount))
	if err != nil {
		return Tx{}, fmt.Errorf("signing transaction: %w", err)
	}

	tx := Tx{
		From:      from,
		To:        to,
		Amount:    amount,
		Signature: sig,
		PublicKey: signer.PublicKey(),
	}

	return tx, nil
}

// SignMessage returns the canonical bytes that are signed for a transfer.
func SignMessage(from string, to string, amount Amount) []byte {
	buf := make([]byte, 0, len(signDomain)+len(from)+len(to)+16)
	buf = append(buf, signDomain...)
	buf = appendBytes(buf, []byte(from))
	buf = appendBytes(buf, []byte(to))
	buf = binary.BigEndian.AppendUint64(buf, uint64(amount))

	return buf
}

// Validate verifies the transaction is well formed and carries a signature
// made by the key behind the From account.
func (tx Tx) Validate(algorithm string) error {
	if !signature.IsFingerprint(tx.To) {
		return fmt.Errorf("%w: invalid to account %q", ErrSignatureInvalid, tx.To)
	}

	if signature.Fingerprint(tx.PublicKey) != tx.From {
		return fmt.Errorf("%w: public key does not belong to %s", ErrSignatureInvalid, tx.From)
	}

	ok, err := signature.Verify(algorithm, SignMessage(tx.From, tx.To, tx.Amount), tx.Signature, tx.PublicKey)
	if err != nil {
		return err
	}

	if !ok {
		return fmt.Errorf("%w: %s", ErrSignatureInvalid, tx)
	}

	return nil
}

// ID returns the unique hash of the complete transaction including its
// signature.
func (tx Tx) ID() common.Hash {
	return common.Hash(blake2b.Sum256(tx.encode(nil)))
}

// String implements the fmt.Stringer interface for logging.
func (tx Tx) String() string {
	return fmt.Sprintf("%s->%s:%s", short(tx.From), short(tx.To), tx.Amount)
}

// encode appends the canonical encoding of the transaction. Every variable
// field is length prefixed so no two transactions share an encoding.
func (tx Tx) encode(buf []byte) []byte {
	buf = appendBytes(buf, []byte(tx.From))
	buf = appendBytes(buf, []byte(tx.To))
	buf = binary.BigEndian.AppendUint64(buf, uint64(tx.Amount))
	buf = appendBytes(buf, tx.Signature)
	buf = appendBytes(buf, tx.PublicKey)

	return buf
}

// =============================================================================

// ValidateTransactions checks the signature of every transaction.
func ValidateTransactions(algorithm string, txs []Tx) error {
	for i, tx := range txs {
		if err := tx.Validate(algorithm); err != nil {
			return fmt.Errorf("tx[%d]: %w", i, err)
		}
	}

	return nil
}

// appendBytes appends a 4 byte big endian length followed by the data.
func appendBytes(buf []byte, data []byte) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(data)))
	return append(buf, data...)
}

// short trims an account for log lines.
func short(account string) string {
	if len(account) <= 10 {
		return account
	}
	return account[:10]
}
