package commands

import (
	"fmt"
	"strconv"

	"github.com/ardanlabs/grokchain/foundation/blockchain/state"
)

// Blocks prints the stored blocks between the optional from and to numbers.
func Blocks(args []string, st *state.State) error {
	from, to := uint64(1), state.QueryLatest

	var err error
	if len(args) > 2 {
		if from, err = strconv.ParseUint(args[2], 10, 64); err != nil {
			return err
		}
	}
	if len(args) > 3 {
		if to, err = strconv.ParseUint(args[3], 10, 64); err != nil {
			return err
		}
	}

	for _, blk := range st.QueryBlocksByNumber(from, to) {
		fmt.Printf("Block: %d  Hash: %s  Prev: %s\n", blk.Header.Number, blk.Hash, blk.Header.PrevBlockHash)
		fmt.Printf("  Beneficiary: %s  PoH: %d  Fees: %d\n", blk.Header.BeneficiaryID, blk.Header.PoHIndex, blk.Header.Fees)
		for _, tx := range blk.Trans {
			fmt.Printf("  Tx: %s -> %s  Value: %d  Fee: %d\n", tx.FromID, tx.ToID, tx.Value, tx.Fee)
		}
	}

	return nil
}
