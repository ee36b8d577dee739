package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new key pair for the account",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := privateKeyPath()
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("key file %s already exists", path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}

		privateKey, err := crypto.GenerateKey()
		if err != nil {
			return err
		}

		if err := crypto.SaveECDSA(path, privateKey); err != nil {
			return err
		}

		_, accountID, err := loadKey()
		if err != nil {
			return err
		}

		fmt.Println(accountID)
		return nil
	},
}

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Print the account id of the wallet",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, accountID, err := loadKey()
		if err != nil {
			return err
		}

		fmt.Println(accountID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(accountCmd)
}
