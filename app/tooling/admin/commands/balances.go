// Package commands contains the functionality for the set of commands
// currently supported by the admin tool.
package commands

import (
	"fmt"
	"sort"

	"github.com/ardanlabs/grokchain/foundation/blockchain/database"
	"github.com/ardanlabs/grokchain/foundation/blockchain/ledger"
	"github.com/ardanlabs/grokchain/foundation/blockchain/state"
)

// Balances prints the current set of balances.
func Balances(args []string, st *state.State) error {
	accounts := st.QueryAccounts()

	if len(args) == 3 {
		accountID, err := database.ToAccountID(args[2])
		if err != nil {
			return err
		}

		info, err := st.QueryAccount(accountID)
		if err != nil {
			return err
		}
		accounts = map[database.AccountID]ledger.Account{accountID: info}
	}

	latest := st.RetrieveLatestBlock()
	fmt.Printf("LatestBlock: %d  Hash: %s\n\n", latest.Header.Number, latest.Hash())

	ids := make([]database.AccountID, 0, len(accounts))
	for id := range accounts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		fmt.Printf("Account: %s  Balance: %d  Grok: %d\n", id, accounts[id].Balance, accounts[id].Grok)
	}

	return nil
}
