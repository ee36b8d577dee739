// Package state is the core API for the blockchain and implements all the
// business rules and processing.
package state

import (
	"fmt"
	"sync"

	"github.com/ardanlabs/grokchain/foundation/blockchain/admission"
	"github.com/ardanlabs/grokchain/foundation/blockchain/database"
	"github.com/ardanlabs/grokchain/foundation/blockchain/genesis"
	"github.com/ardanlabs/grokchain/foundation/blockchain/ledger"
	"github.com/ardanlabs/grokchain/foundation/blockchain/mempool"
	"github.com/ardanlabs/grokchain/foundation/blockchain/poh"
)

// EventHandler defines a function that is called when events
// occur in the processing of persisting blocks.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by any
// package providing support for mining.
type Worker interface {
	Shutdown()
	SignalStartMining()
	SignalCancelMining() (done func())
}

// =============================================================================

// Config represents the configuration required to start
// the blockchain node.
type Config struct {
	BeneficiaryID  database.AccountID
	Host           string
	Storage        database.Storage
	Genesis        genesis.Genesis
	SelectStrategy string
	Admission      admission.Config
	VerifyWorkers  int
	EvHandler      EventHandler
}

// State manages the blockchain database.
type State struct {
	mu sync.Mutex

	beneficiaryID database.AccountID
	feeAccount    database.AccountID
	host          string
	evHandler     EventHandler

	genesis   genesis.Genesis
	mempool   *mempool.Mempool
	db        *database.Database
	ledger    *ledger.Ledger
	poh       *poh.Sequencer
	admission *admission.Control
	verifier  *database.Verifier

	Worker Worker
}

// New constructs a new blockchain for data management. The blocks found in
// storage are replayed to rebuild the balances and the proof of history.
func New(cfg Config) (*State, error) {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	if err := cfg.Genesis.Validate(); err != nil {
		return nil, fmt.Errorf("genesis: %w", err)
	}

	// The genesis balances seed the ledger.
	balances := make(map[database.AccountID]uint64, len(cfg.Genesis.Balances))
	for hex, balance := range cfg.Genesis.Balances {
		accountID, err := database.ToAccountID(hex)
		if err != nil {
			return nil, fmt.Errorf("genesis balance: %w", err)
		}
		balances[accountID] = balance
	}

	var feeAccount database.AccountID
	if cfg.Genesis.FeeAccount != "" {
		var err error
		if feeAccount, err = database.ToAccountID(cfg.Genesis.FeeAccount); err != nil {
			return nil, fmt.Errorf("genesis fee account: %w", err)
		}
	}

	// Access the storage for the blockchain.
	db, err := database.New(cfg.Genesis, cfg.Storage, ev)
	if err != nil {
		return nil, err
	}

	// Construct a mempool with the specified sort strategy.
	mempool, err := mempool.NewWithStrategy(cfg.SelectStrategy)
	if err != nil {
		return nil, err
	}

	workers := cfg.VerifyWorkers
	if workers <= 0 {
		workers = defaultVerifyWorkers
	}
	verifier, err := database.NewVerifier(workers)
	if err != nil {
		return nil, err
	}

	admCfg := cfg.Admission
	if admCfg.EvHandler == nil {
		admCfg.EvHandler = ev
	}
	adm, err := admission.New(admCfg)
	if err != nil {
		verifier.Release()
		return nil, err
	}

	// Create the State to provide support for managing the blockchain.
	state := State{
		beneficiaryID: cfg.BeneficiaryID,
		feeAccount:    feeAccount,
		host:          cfg.Host,
		evHandler:     ev,

		genesis:   cfg.Genesis,
		mempool:   mempool,
		db:        db,
		ledger:    ledger.New(balances),
		admission: adm,
		verifier:  verifier,
	}

	// Rebuild the balances and the proof of history from storage.
	if err := state.replay(); err != nil {
		verifier.Release()
		adm.Close()
		return nil, err
	}

	// The Worker is not set here. The call to worker.Run will assign itself
	// and start everything up and running for the node.

	return &state, nil
}

// Shutdown cleanly brings the node down.
func (s *State) Shutdown() error {
	s.evHandler("state: shutdown: started")
	defer s.evHandler("state: shutdown: completed")

	// Stop all blockchain writing activity.
	if s.Worker != nil {
		s.Worker.Shutdown()
	}

	s.verifier.Release()
	s.admission.Close()

	// Make sure the database is properly closed.
	return s.db.Close()
}

// defaultVerifyWorkers is the size of the signature verification pool when
// none is configured.
const defaultVerifyWorkers = 8
