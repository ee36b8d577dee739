package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

type account struct {
	Account string `json:"account"`
	Name    string `json:"name"`
	Balance uint64 `json:"balance"`
	Grok    uint64 `json:"grok_balance"`
}

type accounts struct {
	LatestBlock string    `json:"latest_block"`
	Uncommitted int       `json:"uncommitted"`
	Accounts    []account `json:"accounts"`
}

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Print your balances.",
	RunE:  balanceRun,
}

func init() {
	rootCmd.AddCommand(balanceCmd)
	balanceCmd.Flags().StringVarP(&url, "url", "u", "http://localhost:8080", "Url of the node.")
}

func balanceRun(cmd *cobra.Command, args []string) error {
	_, accountID, err := loadKey()
	if err != nil {
		return err
	}
	fmt.Println("For Account:", accountID)

	resp, err := http.Get(fmt.Sprintf("%s/v1/accounts/list/%s", url, accountID))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		fmt.Println("balance: 0  grok: 0")
		return nil
	default:
		return fmt.Errorf("node responded %s", resp.Status)
	}

	var acts accounts
	if err := json.NewDecoder(resp.Body).Decode(&acts); err != nil {
		return err
	}

	for _, act := range acts.Accounts {
		fmt.Printf("balance: %d  grok: %d  pending: %d\n", act.Balance, act.Grok, acts.Uncommitted)
	}

	return nil
}
