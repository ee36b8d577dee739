// This program performs administrative tasks against the chain store of a
// stopped node.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/ardanlabs/grokchain/app/tooling/admin/commands"
	"github.com/ardanlabs/grokchain/foundation/blockchain/database/storage/kvdb"
	"github.com/ardanlabs/grokchain/foundation/blockchain/genesis"
	"github.com/ardanlabs/grokchain/foundation/blockchain/mempool/selector"
	"github.com/ardanlabs/grokchain/foundation/blockchain/state"
	"github.com/ardanlabs/grokchain/foundation/logger"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

func main() {

	// Construct the application logger.
	log, err := logger.New("ADMIN")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	// Perform the startup and shutdown sequence.
	if err := run(log); err != nil {
		log.Errorw("startup", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {
	if len(os.Args) < 2 {
		return errors.New("usage: admin bals [account] | blocks [from] [to]")
	}

	dbPath := os.Getenv("ADMIN_DB_PATH")
	if dbPath == "" {
		dbPath = "zblock/blocks.db"
	}

	gen, err := genesis.Load(os.Getenv("ADMIN_GENESIS_PATH"))
	if err != nil {
		return fmt.Errorf("loading genesis: %w", err)
	}

	store, err := kvdb.NewBadger(dbPath)
	if err != nil {
		return err
	}

	// Constructing the state replays the stored chain, which rebuilds the
	// balances the same way the node does on startup.
	ev := func(v string, args ...any) {
		log.Debugw(fmt.Sprintf(v, args...), "build", build)
	}

	st, err := state.New(state.Config{
		Storage:        store,
		Genesis:        gen,
		SelectStrategy: selector.StrategyArrival,
		EvHandler:      ev,
	})
	if err != nil {
		store.Close()
		return err
	}
	defer st.Shutdown()

	return processCommands(os.Args, st)
}

// processCommands handles the execution of the commands specified on
// the command line.
func processCommands(args []string, st *state.State) error {
	switch args[1] {
	case "bals":
		if err := commands.Balances(args, st); err != nil {
			return fmt.Errorf("getting balances: %w", err)
		}
	case "blocks":
		if err := commands.Blocks(args, st); err != nil {
			return fmt.Errorf("getting blocks: %w", err)
		}
	default:
		return fmt.Errorf("unknown command %q", args[1])
	}

	return nil
}
