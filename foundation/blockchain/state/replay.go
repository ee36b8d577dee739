package state

import (
	"fmt"

	"github.com/ardanlabs/grokchain/foundation/blockchain/database"
	"github.com/ardanlabs/grokchain/foundation/blockchain/ledger"
	"github.com/ardanlabs/grokchain/foundation/blockchain/poh"
)

// replay walks every block in storage, validates it against its parent and
// applies it to the ledger. The proof of history is restored from the
// persisted entries, and the segments stored with the blocks are checked
// against them.
func (s *State) replay() error {
	s.evHandler("state: replay: started")

	entries, err := s.db.LoadPoH()
	if err != nil {
		return err
	}

	hist := make(history, 0, 1+len(entries))
	hist = append(hist, poh.Seed())
	hist = append(hist, entries...)

	prev := database.GenesisBlock(s.genesis)

	iter := s.db.ForEach()
	for blockData, err := iter.Next(); !iter.Done(); blockData, err = iter.Next() {
		if err != nil {
			return fmt.Errorf("%w: replay: %s", database.ErrStorageFailure, err)
		}

		block := database.ToBlock(blockData)
		if block.Header.Number == 0 {
			// Every genesis block hashes to the zero hash, so the headers
			// are compared.
			if block.Header != prev.Header {
				return fmt.Errorf("%w: replay: stored genesis header %+v, exp %+v", database.ErrChainLinkMismatch, block.Header, prev.Header)
			}
			continue
		}

		if hist, err = hist.merge(prev.Header.PoHIndex+1, blockData.PoH); err != nil {
			return fmt.Errorf("replay: blk[%d]: %w", block.Header.Number, err)
		}
		if end := prev.Header.PoHIndex + uint64(len(blockData.PoH)); end != block.Header.PoHIndex {
			return fmt.Errorf("%w: replay: blk[%d]: poh segment ends at %d, exp %d", database.ErrChainLinkMismatch, block.Header.Number, end, block.Header.PoHIndex)
		}

		err = block.ValidateBlock(database.ValidateArgs{
			PrevBlock:      prev,
			DeclaredHash:   blockData.Hash,
			Difficulty:     s.genesis.Difficulty,
			TransPerBlock:  s.genesis.TransPerBlock,
			FeeBasisPoints: s.genesis.FeeBasisPoints,
			PoH:            hist,
			Verifier:       s.verifier,
		})
		if err != nil {
			return fmt.Errorf("replay: blk[%d]: %w", block.Header.Number, err)
		}

		feeTo, rewardTo := s.recipients(block)
		if err := s.ledger.ApplyBlock(feeTo, rewardTo, ledger.TransfersFromBlock(block), block.Header.Fees, s.genesis.MiningReward); err != nil {
			return fmt.Errorf("replay: blk[%d]: %w", block.Header.Number, err)
		}

		s.db.UpdateLatestBlock(block)
		prev = block
	}

	// Entries taken from block segments that were never persisted on their
	// own are written now, so the next tick extends a gapless run.
	for i := len(entries) + 1; i < len(hist); i++ {
		if err := s.db.AppendPoH(uint64(i), hist[i]); err != nil {
			return err
		}
	}

	s.poh = poh.NewWithStore(hist[0], s.db, hist[1:]...)

	index, hash := s.poh.Current()
	s.evHandler("state: replay: completed: blk[%d]: poh[%d:%s]", prev.Header.Number, index, hash)

	return nil
}

// =============================================================================

// history is a proof of history sequence held in memory while blocks are
// replayed.
type history []poh.Hash

// Current returns the index and hash of the latest entry.
func (h history) Current() (uint64, poh.Hash) {
	return uint64(len(h) - 1), h[len(h)-1]
}

// At returns the entry at the specified index.
func (h history) At(index uint64) (poh.Hash, bool) {
	if index >= uint64(len(h)) {
		return poh.Hash{}, false
	}
	return h[index], true
}

// merge lays the segment over the history starting at index from. Entries
// already known must match, new ones extend the history.
func (h history) merge(from uint64, segment []poh.Hash) (history, error) {
	for i, entry := range segment {
		index := from + uint64(i)

		switch {
		case index < uint64(len(h)):
			if h[index] != entry {
				return nil, fmt.Errorf("%w: poh entry %d is %s, stored %s", database.ErrChainLinkMismatch, index, entry, h[index])
			}

		case index == uint64(len(h)):
			h = append(h, entry)

		default:
			return nil, fmt.Errorf("%w: poh entry %d leaves a hole after %d", database.ErrChainLinkMismatch, index, len(h)-1)
		}
	}

	return h, nil
}
