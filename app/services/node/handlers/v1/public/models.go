package public

import (
	"github.com/ardanlabs/qchain/foundation/blockchain/database"
	"github.com/ardanlabs/qchain/foundation/blockchain/state"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// submitTx is a transaction signed by a wallet.
type submitTx struct {
	From      string          `json:"from" validate:"required,account"`
	To        string          `json:"to" validate:"required,account"`
	Amount    database.Amount `json:"amount" validate:"required"`
	Signature hexutil.Bytes   `json:"signature" validate:"required"`
	PublicKey hexutil.Bytes   `json:"public_key" validate:"required"`
}

func (st submitTx) toTx() database.Tx {
	return database.Tx{
		From:      st.From,
		To:        st.To,
		Amount:    st.Amount,
		Signature: st.Signature,
		PublicKey: st.PublicKey,
	}
}

// sendTx asks the node to sign a transfer from its own account.
type sendTx struct {
	To     string          `json:"to" validate:"required,account"`
	Amount database.Amount `json:"amount" validate:"required"`
}

// toggleMining turns mining on or off.
type toggleMining struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// connectPeer names the host of a peer to connect to.
type connectPeer struct {
	Host string `json:"host" validate:"required,hostname_port"`
}

// =============================================================================

type tx struct {
	ID       common.Hash     `json:"id"`
	From     string          `json:"from"`
	FromName string          `json:"from_name"`
	To       string          `json:"to"`
	ToName   string          `json:"to_name"`
	Amount   database.Amount `json:"amount"`
}

type block struct {
	Index        uint64      `json:"index"`
	TimeStamp    uint64      `json:"timestamp"`
	PrevHash     common.Hash `json:"prev_hash"`
	Nonce        uint64      `json:"nonce"`
	Difficulty   uint32      `json:"difficulty"`
	Hash         common.Hash `json:"hash"`
	Transactions []tx        `json:"transactions"`
}

type balance struct {
	Account string          `json:"account"`
	Name    string          `json:"name"`
	Credits database.Amount `json:"credits"`
	Debits  database.Amount `json:"debits"`
	Net     string          `json:"net"`
}

type balances struct {
	TailHash    common.Hash `json:"tail_hash"`
	Uncommitted int         `json:"uncommitted"`
	Balances    []balance   `json:"balances"`
}

type miningStatus struct {
	Enabled bool        `json:"enabled"`
	Mode    string      `json:"mode"`
	Stage   state.Stage `json:"stage"`
	Account string      `json:"account"`
	Pending int         `json:"pending"`
	Tail    uint64      `json:"tail"`
}

type chainStatus struct {
	Valid  bool   `json:"valid"`
	Length int    `json:"length"`
	Error  string `json:"error,omitempty"`
}
