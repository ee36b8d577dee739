// Package database handles all the lower level support for maintaining the
// blockchain in storage: blocks, transactions, proof of work and the rules
// a block must follow to be appended to the chain.
package database

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ardanlabs/grokchain/foundation/blockchain/genesis"
	"github.com/ardanlabs/grokchain/foundation/blockchain/poh"
)

// Storage interface represents the behavior required to be implemented by any
// package providing support for storing and reading the blockchain. Blocks
// are addressed by their number and are never overwritten. Proof of history
// entries are addressed by their index and LoadPoH returns the gapless run
// of entries starting at index 1.
type Storage interface {
	Write(blockData BlockData) error
	GetBlock(num uint64) (BlockData, error)
	ForEach() Iterator
	AppendPoH(index uint64, hash poh.Hash) error
	LoadPoH() ([]poh.Hash, error)
	Close() error
}

// Iterator interface represents the behavior required to be implemented by any
// package providing support to iterate over the blocks.
type Iterator interface {
	Next() (BlockData, error)
	Done() bool
}

// =============================================================================

// DatabaseIterator walks the blocks in storage starting with genesis.
type DatabaseIterator struct {
	iterator Iterator
}

// Next retrieves the next block from storage.
func (di *DatabaseIterator) Next() (BlockData, error) {
	return di.iterator.Next()
}

// Done returns the end of chain value.
func (di *DatabaseIterator) Done() bool {
	return di.iterator.Done()
}

// =============================================================================

// Database manages the chain in storage and the current head of the chain.
type Database struct {
	mu sync.RWMutex

	genesis     genesis.Genesis
	latestBlock Block

	storage Storage
}

// New constructs a new database over the specified storage. The genesis block
// is written at number 0 when storage doesn't have it yet.
func New(genesis genesis.Genesis, storage Storage, evHandler func(v string, args ...any)) (*Database, error) {
	db := Database{
		genesis:     genesis,
		latestBlock: GenesisBlock(genesis),
		storage:     storage,
	}

	_, err := storage.GetBlock(0)
	switch {
	case err == nil:
		evHandler("database: New: genesis block found in storage")

	case errors.Is(err, ErrBlockNotFound):
		evHandler("database: New: writing genesis block to storage")
		if err := storage.Write(NewBlockData(db.latestBlock, nil)); err != nil {
			return nil, fmt.Errorf("%w: write genesis: %s", ErrStorageFailure, err)
		}

	default:
		return nil, fmt.Errorf("%w: read genesis: %s", ErrStorageFailure, err)
	}

	return &db, nil
}

// Close closes the underlying storage.
func (db *Database) Close() error {
	return db.storage.Close()
}

// Genesis returns the genesis the database was constructed with.
func (db *Database) Genesis() genesis.Genesis {
	return db.genesis
}

// UpdateLatestBlock provides safe access to update the latest block.
func (db *Database) UpdateLatestBlock(block Block) {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.latestBlock = block
}

// LatestBlock returns the latest block.
func (db *Database) LatestBlock() Block {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.latestBlock
}

// Write adds a new block to the chain with the proof of history entries
// recorded since its parent.
func (db *Database) Write(block Block, segment []poh.Hash) error {
	if err := db.storage.Write(NewBlockData(block, segment)); err != nil {
		return fmt.Errorf("%w: write block %d: %s", ErrStorageFailure, block.Header.Number, err)
	}

	return nil
}

// AppendPoH persists a proof of history entry. It implements poh.Store so
// the database can back the node's sequence.
func (db *Database) AppendPoH(index uint64, hash poh.Hash) error {
	if err := db.storage.AppendPoH(index, hash); err != nil {
		return fmt.Errorf("%w: write poh %d: %s", ErrStorageFailure, index, err)
	}

	return nil
}

// LoadPoH returns the persisted proof of history entries after the seed.
func (db *Database) LoadPoH() ([]poh.Hash, error) {
	entries, err := db.storage.LoadPoH()
	if err != nil {
		return nil, fmt.Errorf("%w: load poh: %s", ErrStorageFailure, err)
	}

	return entries, nil
}

// ForEach returns an iterator to walk through all the blocks
// starting with the genesis block.
func (db *Database) ForEach() DatabaseIterator {
	return DatabaseIterator{iterator: db.storage.ForEach()}
}

// GetBlock searches the blockchain in storage to locate and return the
// contents of the specified block by number.
func (db *Database) GetBlock(num uint64) (BlockData, error) {
	return db.storage.GetBlock(num)
}
