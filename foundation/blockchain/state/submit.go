package state

import (
	"errors"
	"fmt"

	"github.com/ardanlabs/grokchain/foundation/blockchain/admission"
	"github.com/ardanlabs/grokchain/foundation/blockchain/database"
	"github.com/ardanlabs/grokchain/foundation/blockchain/ledger"
)

// ErrMalformed is reported for submissions that couldn't be decoded.
var ErrMalformed = errors.New("malformed submission")

// SubmitTransaction accepts a signed transaction from the submitter for
// inclusion in a future block. A transaction that fails validation counts
// against the submitter.
func (s *State) SubmitTransaction(identity string, signedTx database.SignedTx) error {
	if err := s.admission.Admit(identity); err != nil {
		return err
	}

	if err := s.validateTransaction(signedTx); err != nil {
		s.reportFailure(identity, err)
		return err
	}

	tx := database.NewBlockTx(signedTx)

	if _, err := s.mempool.Upsert(tx); err != nil {
		s.reportFailure(identity, err)
		return err
	}

	s.admission.ReportSuccess(identity)

	s.evHandler("state: SubmitTransaction: identity[%s]: tx[%s] accepted", identity, tx)

	if s.Worker != nil {
		s.Worker.SignalStartMining()
	}

	return nil
}

// SubmitBlock accepts a block from the submitter, validates it and if that
// passes, adds the block to the local blockchain. A block that fails
// validation counts against the submitter.
func (s *State) SubmitBlock(identity string, blockData database.BlockData) error {
	if err := s.admission.Admit(identity); err != nil {
		return err
	}

	block := database.ToBlock(blockData)

	s.evHandler("state: SubmitBlock: started: identity[%s]: prevBlk[%s]: newBlk[%s]: numTrans[%d]", identity, block.Header.PrevBlockHash, blockData.Hash, len(block.Trans))
	defer s.evHandler("state: SubmitBlock: completed: newBlk[%s]", blockData.Hash)

	// Validate the block and then update the blockchain database.
	if err := s.validateUpdateDatabase(block, blockData.Hash); err != nil {
		s.reportFailure(identity, err)
		return err
	}

	s.admission.ReportSuccess(identity)

	// If the runMiningOperation function is being executed it needs to stop
	// immediately. The G executing runMiningOperation will not return from the
	// function until done is called. That allows this function to complete
	// its state changes before a new mining operation takes place.
	if s.Worker != nil {
		done := s.Worker.SignalCancelMining()
		s.evHandler("state: SubmitBlock: signal runMiningOperation to terminate")
		done()
	}

	return nil
}

// =============================================================================

// validateTransaction takes the signed transaction and validates it has
// a proper signature and other aspects of the data.
func (s *State) validateTransaction(signedTx database.SignedTx) error {
	if err := signedTx.Validate(); err != nil {
		return err
	}

	if s.ledger.Seen(signedTx.FromID, signedTx.ID) {
		return fmt.Errorf("%w: %s is already committed", database.ErrDuplicateTransaction, signedTx.UniqueKey())
	}

	if balance := s.ledger.BalanceOf(signedTx.FromID); balance < signedTx.Value {
		return fmt.Errorf("%w: %s has %d, sends %d", ledger.ErrInsufficientFunds, signedTx.FromID, balance, signedTx.Value)
	}

	return nil
}

// ReportMalformed accounts for a submission whose payload couldn't be
// decoded. It is held to admission control like any other submission and
// when admitted counts as a failed attempt. The admission error is returned
// when the submitter is refused.
func (s *State) ReportMalformed(identity string, err error) error {
	if aerr := s.admission.Admit(identity); aerr != nil {
		return aerr
	}

	s.evHandler("state: ReportMalformed: identity[%s]: %s", identity, err)
	s.reportFailure(identity, fmt.Errorf("%w: %s", ErrMalformed, err))

	return nil
}

// reportFailure counts the error against the submitter. Failures of the node
// itself are not the submitter's fault.
func (s *State) reportFailure(identity string, err error) {
	switch {
	case errors.Is(err, database.ErrStorageFailure),
		errors.Is(err, admission.ErrRateLimited),
		errors.Is(err, admission.ErrBanned):
		return
	}

	if s.admission.ReportFailure(identity) {
		s.evHandler("state: reportFailure: identity[%s]: banned: %s", identity, err)
	}
}

// ReservePoH records the data into the proof of history on behalf of the
// submitter and returns the new entry. A miner building a block outside the
// node reserves the entry its block header will reference.
func (s *State) ReservePoH(identity string, data []byte) (PoHStatus, error) {
	if err := s.admission.Admit(identity); err != nil {
		return PoHStatus{}, err
	}

	index, hash, err := s.poh.Tick(data)
	if err != nil {
		return PoHStatus{}, err
	}
	s.evHandler("state: ReservePoH: identity[%s]: poh[%d:%s]", identity, index, hash)

	return PoHStatus{Index: index, Hash: hash}, nil
}
