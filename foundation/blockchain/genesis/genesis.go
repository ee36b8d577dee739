// Package genesis maintains access to the genesis file.
package genesis

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// DefaultPath is where the node looks for the genesis file.
const DefaultPath = "zblock/genesis.json"

// MaxBasisPoints represents a fee of 100 percent.
const MaxBasisPoints = 10_000

// Genesis represents the genesis file.
type Genesis struct {
	Date           time.Time         `json:"date"`
	ChainID        uint16            `json:"chain_id"`         // The chain id represents an unique id for this running instance.
	TransPerBlock  uint16            `json:"trans_per_block"`  // The maximum number of transactions that can be in a block.
	Difficulty     uint16            `json:"difficulty"`       // Number of leading zero bits a block hash needs.
	MiningReward   uint64            `json:"mining_reward"`    // Reward for mining a block, paid in grok balance.
	FeeBasisPoints uint16            `json:"fee_basis_points"` // Fee charged on the block's transferred amount, 100 is 1%.
	FeeAccount     string            `json:"fee_account"`      // Account collecting fees, the block beneficiary when empty.
	Balances       map[string]uint64 `json:"balances"`
}

// Validate checks the chain parameters are usable.
func (g Genesis) Validate() error {
	if g.TransPerBlock == 0 {
		return errors.New("trans_per_block must be greater than zero")
	}

	if g.Difficulty > 255 {
		return fmt.Errorf("difficulty %d is larger than the hash", g.Difficulty)
	}

	if g.FeeBasisPoints > MaxBasisPoints {
		return fmt.Errorf("fee_basis_points %d is greater than %d", g.FeeBasisPoints, MaxBasisPoints)
	}

	return nil
}

// =============================================================================

// Load opens and consumes the genesis file.
func Load(path string) (Genesis, error) {
	if path == "" {
		path = DefaultPath
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	var genesis Genesis
	err = json.Unmarshal(content, &genesis)
	if err != nil {
		return Genesis{}, err
	}

	if err := genesis.Validate(); err != nil {
		return Genesis{}, fmt.Errorf("genesis: %w", err)
	}

	return genesis, nil
}
