package state

import (
	"errors"
	"fmt"

	"github.com/ardanlabs/grokchain/foundation/blockchain/admission"
	"github.com/ardanlabs/grokchain/foundation/blockchain/database"
	"github.com/ardanlabs/grokchain/foundation/blockchain/ledger"
	"github.com/ardanlabs/grokchain/foundation/blockchain/poh"
)

// QueryLatest represents to query the latest block in the chain.
const QueryLatest = ^uint64(0) >> 1

// ErrAccountNotFound is returned when an account has no balances.
var ErrAccountNotFound = errors.New("account not found")

// PoHStatus represents the head of the proof of history sequence.
type PoHStatus struct {
	Index uint64   `json:"index"`
	Hash  poh.Hash `json:"hash"`
}

// =============================================================================

// QueryAccount returns a copy of the account's balances.
func (s *State) QueryAccount(account database.AccountID) (ledger.Account, error) {
	accounts := s.ledger.Copy()

	if info, exists := accounts[account]; exists {
		return info, nil
	}

	return ledger.Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, account)
}

// QueryAccounts returns a copy of every account's balances.
func (s *State) QueryAccounts() map[database.AccountID]ledger.Account {
	return s.ledger.Copy()
}

// QueryMempoolLength returns the current length of the mempool.
func (s *State) QueryMempoolLength() int {
	return s.mempool.Count()
}

// QueryBlocksByNumber returns the set of blocks based on block numbers. This
// function reads the blockchain from disk first.
func (s *State) QueryBlocksByNumber(from uint64, to uint64) []database.BlockData {
	if from == QueryLatest {
		from = s.db.LatestBlock().Header.Number
		to = from
	}
	if to == QueryLatest {
		to = s.db.LatestBlock().Header.Number
	}

	var out []database.BlockData
	for i := from; i <= to; i++ {
		blockData, err := s.db.GetBlock(i)
		if err != nil {
			s.evHandler("state: getblock: ERROR: %s", err)
			return nil
		}
		out = append(out, blockData)
	}

	return out
}

// QueryBlocksByAccount returns the set of blocks by account. If the account
// is empty, all blocks are returned. This function reads the blockchain
// from disk first.
func (s *State) QueryBlocksByAccount(accountID database.AccountID) ([]database.BlockData, error) {
	var out []database.BlockData

	iter := s.db.ForEach()
	for blockData, err := iter.Next(); !iter.Done(); blockData, err = iter.Next() {
		if err != nil {
			return nil, err
		}

		if accountID == "" || blockData.Header.BeneficiaryID == accountID {
			out = append(out, blockData)
			continue
		}

		for _, tx := range blockData.Trans {
			if tx.FromID == accountID || tx.ToID == accountID {
				out = append(out, blockData)
				break
			}
		}
	}

	return out, nil
}

// QueryPoH returns the head of the proof of history sequence.
func (s *State) QueryPoH() PoHStatus {
	index, hash := s.poh.Current()
	return PoHStatus{Index: index, Hash: hash}
}

// QueryAdmission returns what admission control knows about the identity.
func (s *State) QueryAdmission(identity string) (admission.Status, error) {
	return s.admission.Status(identity)
}
