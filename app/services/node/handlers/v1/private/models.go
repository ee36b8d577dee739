package private

import (
	"github.com/ardanlabs/grokchain/business/sys/validate"
	"github.com/ardanlabs/grokchain/foundation/blockchain/admission"
	"github.com/ardanlabs/grokchain/foundation/blockchain/state"
)

// reservePoH is what a miner posts to reserve the proof of history entry
// its block will reference.
type reservePoH struct {
	Data string `json:"data" validate:"required"`
}

// Validate checks the request carries the data to record.
func (rp reservePoH) Validate() error {
	return validate.Check(rp)
}

// nodeStatus represents the current state of the node.
type nodeStatus struct {
	Host              string          `json:"host"`
	LatestBlockHash   string          `json:"latest_block_hash"`
	LatestBlockNumber uint64          `json:"latest_block_number"`
	Uncommitted       int             `json:"uncommitted"`
	PoH               state.PoHStatus `json:"poh"`
	Admission         admission.Stats `json:"admission"`
}
