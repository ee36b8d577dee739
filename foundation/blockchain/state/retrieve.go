package state

import (
	"github.com/ardanlabs/grokchain/foundation/blockchain/admission"
	"github.com/ardanlabs/grokchain/foundation/blockchain/database"
	"github.com/ardanlabs/grokchain/foundation/blockchain/genesis"
)

// RetrieveHost returns a copy of host information.
func (s *State) RetrieveHost() string {
	return s.host
}

// RetrieveGenesis returns a copy of the genesis information.
func (s *State) RetrieveGenesis() genesis.Genesis {
	return s.genesis
}

// RetrieveLatestBlock returns a copy the current latest block.
func (s *State) RetrieveLatestBlock() database.Block {
	return s.db.LatestBlock()
}

// RetrieveMempool returns a copy of the mempool in arrival order.
func (s *State) RetrieveMempool() []database.BlockTx {
	return s.mempool.Copy()
}

// RetrieveAdmissionStats returns the node wide admission counters.
func (s *State) RetrieveAdmissionStats() admission.Stats {
	return s.admission.Stats()
}
