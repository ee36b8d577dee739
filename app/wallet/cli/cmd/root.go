// Package cmd contains the wallet commands.
package cmd

import (
	"crypto/ecdsa"
	"os"
	"path/filepath"
	"strings"

	"github.com/ardanlabs/grokchain/foundation/blockchain/database"
	"github.com/ardanlabs/grokchain/foundation/nameservice"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

const keyExtension = ".ecdsa"

var (
	accountName string
	accountPath string
)

var rootCmd = &cobra.Command{
	Use:          "wallet",
	Short:        "Simple wallet for the grok chain",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&accountName, "account", "a", "private", "Name of the private key file.")
	rootCmd.PersistentFlags().StringVarP(&accountPath, "account-path", "p", "zblock/accounts/", "Path to the directory with private keys.")
}

// Execute runs the wallet command selected on the command line.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func privateKeyPath() string {
	name := accountName
	if !strings.HasSuffix(name, keyExtension) {
		name += keyExtension
	}

	return filepath.Join(accountPath, name)
}

// loadKey reads the private key of the selected account.
func loadKey() (*ecdsa.PrivateKey, database.AccountID, error) {
	privateKey, err := crypto.LoadECDSA(privateKeyPath())
	if err != nil {
		return nil, "", err
	}

	return privateKey, database.PublicKeyToAccountID(privateKey.PublicKey), nil
}

// resolve accepts either an account id or the name of a key file in the
// account path.
func resolve(nameOrID string) (database.AccountID, error) {
	if accountID, err := database.ToAccountID(nameOrID); err == nil {
		return accountID, nil
	}

	ns, err := nameservice.New(accountPath)
	if err != nil {
		return "", err
	}

	accountID, exists := ns.AccountID(nameOrID)
	if !exists {
		return database.ToAccountID(nameOrID)
	}

	return accountID, nil
}
