package public

import (
	"github.com/ardanlabs/grokchain/business/sys/validate"
	"github.com/ardanlabs/grokchain/foundation/blockchain/database"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// submitTx is what a wallet posts to have a transaction included.
type submitTx struct {
	From  database.AccountID `json:"from" validate:"required"`
	To    database.AccountID `json:"to" validate:"required"`
	Value uint64             `json:"value"`
	ID    uint64             `json:"id"`
	Sig   hexutil.Bytes      `json:"sig" validate:"required"`
}

// Validate checks the request carries every field. The transaction rules
// themselves are applied by the node so failures count against the sender.
func (st submitTx) Validate() error {
	return validate.Check(st)
}

func (st submitTx) toSignedTx() database.SignedTx {
	return database.SignedTx{
		Tx: database.Tx{
			FromID: st.From,
			ToID:   st.To,
			Value:  st.Value,
			ID:     st.ID,
		},
		Sig: st.Sig,
	}
}

// accountParam is the account named in the request path.
type accountParam struct {
	Account string `json:"account" validate:"required,account"`
}

type act struct {
	Account database.AccountID `json:"account"`
	Name    string             `json:"name"`
	Balance uint64             `json:"balance"`
	Grok    uint64             `json:"grok_balance"`
}

type actInfo struct {
	LatestBlock string `json:"latest_block"`
	Uncommitted int    `json:"uncommitted"`
	Accounts    []act  `json:"accounts"`
}

type tx struct {
	FromAccount database.AccountID `json:"from"`
	FromName    string             `json:"from_name"`
	To          database.AccountID `json:"to"`
	ToName      string             `json:"to_name"`
	ID          uint64             `json:"id"`
	Value       uint64             `json:"value"`
	Fee         uint64             `json:"fee"`
	TimeStamp   uint64             `json:"timestamp"`
	Sig         string             `json:"sig"`
}

type block struct {
	Hash          string             `json:"hash"`
	Number        uint64             `json:"number"`
	PrevBlockHash string             `json:"prev_block_hash"`
	TimeStamp     uint64             `json:"timestamp"`
	Nonce         uint64             `json:"nonce"`
	Difficulty    uint16             `json:"difficulty"`
	BeneficiaryID database.AccountID `json:"beneficiary"`
	Beneficiary   string             `json:"beneficiary_name"`
	MinerIdentity string             `json:"miner_identity"`
	PoHIndex      uint64             `json:"poh_index"`
	PoHHash       string             `json:"poh_hash"`
	Fees          uint64             `json:"fees"`
	TransHash     string             `json:"trans_hash"`
	Transactions  []tx               `json:"txs"`
}
