// This program is a wallet for the grok chain. It manages private keys and
// submits signed transactions to a node.
package main

import "github.com/ardanlabs/grokchain/app/wallet/cli/cmd"

func main() {
	cmd.Execute()
}
