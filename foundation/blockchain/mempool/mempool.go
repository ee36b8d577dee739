// Package mempool maintains the mempool for the blockchain.
package mempool

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ardanlabs/grokchain/foundation/blockchain/database"
	"github.com/ardanlabs/grokchain/foundation/blockchain/mempool/selector"
)

// entry keeps the order a transaction arrived in.
type entry struct {
	seq uint64
	tx  database.BlockTx
}

// Mempool represents a cache of transactions organized by account:id.
type Mempool struct {
	mu       sync.RWMutex
	pool     map[string]entry
	seq      uint64
	selectFn selector.Func
}

// New constructs a new mempool using the default select strategy.
func New() (*Mempool, error) {
	return NewWithStrategy(selector.StrategyArrival)
}

// NewWithStrategy constructs a new mempool with specified select strategy.
func NewWithStrategy(strategy string) (*Mempool, error) {
	selectFn, err := selector.Retrieve(strategy)
	if err != nil {
		return nil, err
	}

	mp := Mempool{
		pool:     make(map[string]entry),
		selectFn: selectFn,
	}

	return &mp, nil
}

// Count returns the current number of transaction in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.pool)
}

// Exists reports whether a transaction with the same account:id is pending.
func (mp *Mempool) Exists(tx database.BlockTx) bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	_, exists := mp.pool[tx.UniqueKey()]
	return exists
}

// Upsert adds a transaction to the mempool. A transaction with the same
// account:id as a pending one is rejected.
func (mp *Mempool) Upsert(tx database.BlockTx) (int, error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	key := tx.UniqueKey()
	if _, exists := mp.pool[key]; exists {
		return 0, fmt.Errorf("%w: %s is already pending", database.ErrDuplicateTransaction, key)
	}

	mp.seq++
	mp.pool[key] = entry{seq: mp.seq, tx: tx}

	return len(mp.pool), nil
}

// Delete removed a transaction from the mempool.
func (mp *Mempool) Delete(tx database.BlockTx) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	delete(mp.pool, tx.UniqueKey())
}

// Truncate clears all the transactions from the pool.
func (mp *Mempool) Truncate() {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool = make(map[string]entry)
}

// Copy returns a list of the current transactions in the pool in arrival
// order.
func (mp *Mempool) Copy() []database.BlockTx {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return mp.ordered()
}

// PickBest uses the configured select strategy to return the next set
// of transactions for the next block. Use -1 to return all transactions.
func (mp *Mempool) PickBest(howMany int) []database.BlockTx {
	mp.mu.RLock()
	trans := mp.ordered()
	mp.mu.RUnlock()

	return mp.selectFn(trans, howMany)
}

// =============================================================================

// ordered returns the transactions oldest first. The caller must hold the lock.
func (mp *Mempool) ordered() []database.BlockTx {
	entries := make([]entry, 0, len(mp.pool))
	for _, e := range mp.pool {
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].seq < entries[j].seq
	})

	trans := make([]database.BlockTx, len(entries))
	for i, e := range entries {
		trans[i] = e.tx
	}

	return trans
}
