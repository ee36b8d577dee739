package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ardanlabs/grokchain/foundation/blockchain/database"
	"github.com/ardanlabs/grokchain/foundation/blockchain/ledger"
)

// ErrNoTransactions is returned when a block is requested to be created
// and there are not enough transactions.
var ErrNoTransactions = errors.New("no transactions in mempool")

// =============================================================================

// MineNewBlock attempts to create a new block with a proper hash that can become
// the next block in the chain.
func (s *State) MineNewBlock(ctx context.Context) (database.Block, error) {
	s.evHandler("state: MineNewBlock: MINING: check mempool count")

	// Are there enough transactions in the pool.
	if s.mempool.Count() == 0 {
		return database.Block{}, ErrNoTransactions
	}

	s.evHandler("state: MineNewBlock: MINING: pick transactions")

	// Pick the best transactions from the mempool that can be paid for.
	trans, fees, err := s.assemble(s.mempool.PickBest(int(s.genesis.TransPerBlock)))
	if err != nil {
		return database.Block{}, err
	}

	if len(trans) == 0 {
		return database.Block{}, ErrNoTransactions
	}

	// Reserve the next entry in the proof of history for this block.
	prevBlock := s.db.LatestBlock()
	pohIndex, pohHash, err := s.poh.Tick([]byte(prevBlock.Hash() + database.TransHash(trans)))
	if err != nil {
		return database.Block{}, err
	}

	s.evHandler("state: MineNewBlock: MINING: perform POW: poh[%d]", pohIndex)

	// Attempt to create a new block by solving the POW puzzle. This can be cancelled.
	block, err := database.POW(ctx, database.POWArgs{
		BeneficiaryID: s.beneficiaryID,
		MinerIdentity: s.host,
		Difficulty:    s.genesis.Difficulty,
		PrevBlock:     prevBlock,
		PoHIndex:      pohIndex,
		PoHHash:       pohHash,
		Fees:          fees,
		Trans:         trans,
		EvHandler:     s.evHandler,
	})
	if err != nil {
		return database.Block{}, err
	}

	// Just check one more time we were not cancelled.
	if ctx.Err() != nil {
		return database.Block{}, ctx.Err()
	}

	s.evHandler("state: MineNewBlock: MINING: validate and update database")

	// Validate the block and then update the blockchain database.
	if err := s.validateUpdateDatabase(block, block.Hash()); err != nil {
		return database.Block{}, err
	}

	return block, nil
}

// assemble assigns the fee shares to the transactions and drops the ones the
// senders can't pay for. Dropped transactions are removed from the mempool.
// Dropping a transaction changes the shares of the ones after it, so the
// process repeats until every transaction is fundable.
func (s *State) assemble(trans []database.BlockTx) ([]database.BlockTx, uint64, error) {
	for {
		withFees, fees, err := database.AssignFees(trans, s.genesis.FeeBasisPoints)
		if err != nil {
			return nil, 0, err
		}

		accepted, rejected := s.ledger.Fundable(ledger.TransfersFromBlock(database.Block{Trans: withFees}))
		if len(rejected) == 0 {
			return withFees, fees, nil
		}

		keep := make([]database.BlockTx, 0, len(accepted))
		for _, i := range accepted {
			keep = append(keep, trans[i])
		}

		for i, err := range rejected {
			s.evHandler("state: MineNewBlock: MINING: drop tx[%s]: %s", trans[i], err)
			s.mempool.Delete(trans[i])
		}

		trans = keep
	}
}

// =============================================================================

// validateUpdateDatabase takes the block and validates the block against the
// consensus rules. If the block passes, then the state of the node is updated
// including adding the block to disk.
func (s *State) validateUpdateDatabase(block database.Block, declaredHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evHandler("state: validateUpdateDatabase: validate block")

	prevBlock := s.db.LatestBlock()

	err := block.ValidateBlock(database.ValidateArgs{
		PrevBlock:      prevBlock,
		DeclaredHash:   declaredHash,
		Difficulty:     s.genesis.Difficulty,
		TransPerBlock:  s.genesis.TransPerBlock,
		FeeBasisPoints: s.genesis.FeeBasisPoints,
		PoH:            s.poh,
		Verifier:       s.verifier,
		EvHandler:      s.evHandler,
	})
	if err != nil {
		return err
	}

	if !block.Header.BeneficiaryID.IsAccountID() {
		return fmt.Errorf("%w: beneficiary %q is not an account", database.ErrChainLinkMismatch, block.Header.BeneficiaryID)
	}

	s.evHandler("state: validateUpdateDatabase: check balances")

	feeTo, rewardTo := s.recipients(block)
	transfers := ledger.TransfersFromBlock(block)

	if err := s.ledger.Check(feeTo, rewardTo, transfers, block.Header.Fees, s.genesis.MiningReward); err != nil {
		return err
	}

	s.evHandler("state: validateUpdateDatabase: write to disk")

	// Write the new block to the chain on disk with the proof of history
	// entries recorded since its parent.
	segment := s.poh.Range(prevBlock.Header.PoHIndex+1, block.Header.PoHIndex)
	if err := s.db.Write(block, segment); err != nil {
		return err
	}

	s.evHandler("state: validateUpdateDatabase: update accounts")

	// The balances were checked under the same lock, so this can't fail
	// unless the ledger was changed behind our back.
	if err := s.ledger.ApplyBlock(feeTo, rewardTo, transfers, block.Header.Fees, s.genesis.MiningReward); err != nil {
		return fmt.Errorf("apply blk[%d]: %w", block.Header.Number, err)
	}
	s.db.UpdateLatestBlock(block)

	s.evHandler("state: validateUpdateDatabase: remove from mempool")

	for _, tx := range block.Trans {
		s.evHandler("state: validateUpdateDatabase: tx[%s] remove", tx)
		s.mempool.Delete(tx)
	}

	// Send an event about this new block.
	s.blockEvent(block)

	return nil
}

// recipients returns the accounts credited with the block's fees and its
// mining reward.
func (s *State) recipients(block database.Block) (database.AccountID, database.AccountID) {
	feeTo := s.feeAccount
	if feeTo == "" {
		feeTo = block.Header.BeneficiaryID
	}

	return feeTo, block.Header.BeneficiaryID
}

// blockEvent provides a specific event about a new block in the chain for
// application specific support.
func (s *State) blockEvent(block database.Block) {
	blockHeaderJSON, err := json.Marshal(block.Header)
	if err != nil {
		blockHeaderJSON = []byte(fmt.Sprintf("%q", err.Error()))
	}

	blockTransJSON, err := json.Marshal(block.Trans)
	if err != nil {
		blockTransJSON = []byte(fmt.Sprintf("%q", err.Error()))
	}

	s.evHandler(`viewer: block: {"hash":%q,"header":%s,"trans":%s}`, block.Hash(), string(blockHeaderJSON), string(blockTransJSON))
}
