package cmd

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ardanlabs/grokchain/foundation/blockchain/database"
	"github.com/spf13/cobra"
)

var (
	url   string
	id    uint64
	to    string
	value uint64
)

// sendCmd signs a transaction with the wallet's key and submits it.
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send transaction",
	RunE: func(cmd *cobra.Command, args []string) error {
		privateKey, fromID, err := loadKey()
		if err != nil {
			return err
		}

		toID, err := resolve(to)
		if err != nil {
			return err
		}

		return send(privateKey, fromID, toID)
	},
}

func send(privateKey *ecdsa.PrivateKey, fromID database.AccountID, toID database.AccountID) error {
	tx, err := database.NewTx(fromID, toID, value, id)
	if err != nil {
		return err
	}

	signedTx, err := tx.Sign(privateKey)
	if err != nil {
		return err
	}

	data, err := json.Marshal(signedTx)
	if err != nil {
		return err
	}

	resp, err := http.Post(fmt.Sprintf("%s/v1/tx/submit", url), "application/json", bytes.NewBuffer(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	fmt.Println(resp.Status, string(body))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("transaction %s:%d not accepted", fromID, id)
	}

	return nil
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVarP(&url, "url", "u", "http://localhost:8080", "Url of the node.")
	sendCmd.Flags().Uint64VarP(&id, "id", "i", 0, "Unique id for the transaction.")
	sendCmd.Flags().StringVarP(&to, "to", "t", "", "Account id or key name receiving the value.")
	sendCmd.Flags().Uint64VarP(&value, "value", "v", 0, "Value to send.")
}
