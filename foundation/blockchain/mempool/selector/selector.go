// Package selector provides different transaction selecting algorithms.
package selector

import (
	"fmt"
	"sort"

	"github.com/ardanlabs/grokchain/foundation/blockchain/database"
)

// List of different select strategies.
const (
	StrategyArrival = "arrival"
	StrategyAmount  = "amount"
)

// Map of different select strategies with functions.
var strategies = map[string]Func{
	StrategyArrival: arrivalSelect,
	StrategyAmount:  amountSelect,
}

// Func defines a function that takes the pending transactions in arrival
// order, oldest first, and selects howMany of them in an order based on the
// function's strategy. Receiving -1 for howMany must return all the
// transactions in the strategy's ordering.
type Func func(transactions []database.BlockTx, howMany int) []database.BlockTx

// Retrieve returns the specified select strategy function.
func Retrieve(strategy string) (Func, error) {
	fn, exists := strategies[strategy]
	if !exists {
		return nil, fmt.Errorf("strategy %q does not exist", strategy)
	}
	return fn, nil
}

// =============================================================================

// arrivalSelect returns the oldest transactions first.
var arrivalSelect = func(transactions []database.BlockTx, howMany int) []database.BlockTx {
	if howMany < 0 || howMany > len(transactions) {
		howMany = len(transactions)
	}

	final := make([]database.BlockTx, howMany)
	copy(final, transactions[:howMany])

	return final
}

// amountSelect returns the transactions moving the largest value first,
// which are the ones paying the largest fee. Ties keep arrival order.
var amountSelect = func(transactions []database.BlockTx, howMany int) []database.BlockTx {
	sorted := make([]database.BlockTx, len(transactions))
	copy(sorted, transactions)
	sort.Stable(byValue(sorted))

	if howMany < 0 || howMany > len(sorted) {
		howMany = len(sorted)
	}

	return sorted[:howMany]
}

// =============================================================================

// byValue provides sorting support by the transaction value.
type byValue []database.BlockTx

// Len returns the number of transactions in the list.
func (bv byValue) Len() int {
	return len(bv)
}

// Less helps to sort the list by value in decending order to pick the
// transactions that provide the best fee.
func (bv byValue) Less(i, j int) bool {
	return bv[i].Value > bv[j].Value
}

// Swap moves transactions in the order of the value.
func (bv byValue) Swap(i, j int) {
	bv[i], bv[j] = bv[j], bv[i]
}
