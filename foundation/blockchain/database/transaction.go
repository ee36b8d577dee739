package database

import (
	"crypto/ecdsa"
	"fmt"
	"time"

	"github.com/ardanlabs/grokchain/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Tx is the transactional information between two parties. This is the
// value that is signed by the sender.
type Tx struct {
	FromID AccountID `json:"from"`  // Account sending the value, must match the signer.
	ToID   AccountID `json:"to"`    // Account receiving the benefit of the transaction.
	Value  uint64    `json:"value"` // Monetary value received from this transaction.
	ID     uint64    `json:"id"`    // Unique id for the transaction supplied by the sender.
}

// NewTx constructs a new transaction.
func NewTx(fromID AccountID, toID AccountID, value uint64, id uint64) (Tx, error) {
	tx := Tx{
		FromID: fromID,
		ToID:   toID,
		Value:  value,
		ID:     id,
	}

	if err := tx.Validate(); err != nil {
		return Tx{}, err
	}

	return tx, nil
}

// Validate checks the transaction is well formed.
func (tx Tx) Validate() error {
	if !tx.FromID.IsChecksum() {
		return fmt.Errorf("%w: from account %q is not properly formatted", ErrInvalidTransaction, tx.FromID)
	}

	if !tx.ToID.IsChecksum() {
		return fmt.Errorf("%w: to account %q is not properly formatted", ErrInvalidTransaction, tx.ToID)
	}

	if tx.FromID == tx.ToID {
		return fmt.Errorf("%w: sending money to yourself, from %s, to %s", ErrInvalidTransaction, tx.FromID, tx.ToID)
	}

	if tx.Value == 0 {
		return fmt.Errorf("%w: value must be greater than zero", ErrInvalidTransaction)
	}

	return nil
}

// Sign uses the specified private key to sign the transaction.
func (tx Tx) Sign(privateKey *ecdsa.PrivateKey) (SignedTx, error) {
	if err := tx.Validate(); err != nil {
		return SignedTx{}, err
	}

	// Sign the transaction with the private key to produce a signature.
	sig, err := signature.Sign(tx, privateKey)
	if err != nil {
		return SignedTx{}, err
	}

	signedTx := SignedTx{
		Tx:  tx,
		Sig: sig,
	}

	return signedTx, nil
}

// =============================================================================

// SignedTx is a signed version of the transaction. This is how clients like
// a wallet provide transactions for inclusion into the blockchain.
type SignedTx struct {
	Tx
	Sig hexutil.Bytes `json:"sig"` // The 65 byte [R|S|V] signature.
}

// Validate verifies the transaction is well formed and has a proper
// signature produced by the from account over the transaction data.
func (tx SignedTx) Validate() error {
	if err := tx.Tx.Validate(); err != nil {
		return err
	}

	address, err := signature.FromAddress(tx.Tx, tx.Sig)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrSignatureInvalid, err)
	}

	if AccountID(address) != tx.FromID {
		return fmt.Errorf("%w: signed by %s, not from account %s", ErrSignatureInvalid, address, tx.FromID)
	}

	return nil
}

// UniqueKey returns the key used to detect replayed transactions.
func (tx SignedTx) UniqueKey() string {
	return fmt.Sprintf("%s:%d", tx.FromID, tx.ID)
}

// SignatureString returns the signature as a string.
func (tx SignedTx) SignatureString() string {
	return signature.SignatureString(tx.Sig)
}

// String implements the fmt.Stringer interface for logging.
func (tx SignedTx) String() string {
	return fmt.Sprintf("%s:%d", tx.FromID, tx.ID)
}

// =============================================================================

// BlockTx represents the transaction as it's recorded inside a block. This
// includes the time it arrived and the share of the block fee it pays.
type BlockTx struct {
	SignedTx
	TimeStamp uint64 `json:"timestamp"` // The time the transaction was received.
	Fee       uint64 `json:"fee"`       // This transaction's share of the block fees.
}

// NewBlockTx constructs a new block transaction.
func NewBlockTx(signedTx SignedTx) BlockTx {
	return BlockTx{
		SignedTx:  signedTx,
		TimeStamp: uint64(time.Now().UTC().Unix()),
	}
}
