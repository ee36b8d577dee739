// Package kvdb implements the database.Storage interface on top of a key
// value store. Each block is stored as JSON under the key block_<number> and
// each proof of history entry as raw bytes under poh_<index>.
package kvdb

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/ardanlabs/grokchain/foundation/blockchain/database"
	"github.com/ardanlabs/grokchain/foundation/blockchain/poh"
	"github.com/cockroachdb/errors"
	"github.com/dgraph-io/badger/v2"
	"github.com/iotaledger/hive.go/kvstore"
	badgerstore "github.com/iotaledger/hive.go/kvstore/badger"
	"github.com/iotaledger/hive.go/kvstore/mapdb"
)

// KVDB represents the serialization implementation for reading and storing
// blocks in a key value store.
type KVDB struct {
	mu     sync.Mutex
	store  kvstore.KVStore
	closer func() error
}

// New constructs a KVDB over the specified store. The caller owns the
// store's lifecycle.
func New(store kvstore.KVStore) *KVDB {
	return &KVDB{
		store:  store,
		closer: func() error { return nil },
	}
}

// NewMemory constructs a KVDB that keeps the chain in memory.
func NewMemory() *KVDB {
	return New(mapdb.NewMapDB())
}

// NewBadger constructs a KVDB that persists the chain in a badger database
// in the specified directory.
func NewBadger(dirname string) (*KVDB, error) {
	if err := os.MkdirAll(dirname, 0700); err != nil {
		return nil, errors.Wrapf(err, "could not create DB directory %s", dirname)
	}

	opts := badger.DefaultOptions(dirname)
	opts.Logger = nil
	opts.SyncWrites = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "could not open DB")
	}

	kv := KVDB{
		store:  badgerstore.New(db),
		closer: db.Close,
	}

	return &kv, nil
}

// Close releases the underlying database.
func (kv *KVDB) Close() error {
	return kv.closer()
}

// Write stores the block under its number. A block that already exists is
// never overwritten.
func (kv *KVDB) Write(blockData database.BlockData) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	key := Key(blockData.Header.Number)

	exists, err := kv.store.Has(key)
	if err != nil {
		return errors.WithStack(err)
	}
	if exists {
		return errors.Newf("block %d already exists", blockData.Header.Number)
	}

	data, err := json.Marshal(blockData)
	if err != nil {
		return errors.WithStack(err)
	}

	if err := kv.store.Set(key, data); err != nil {
		return errors.WithStack(err)
	}

	return nil
}

// GetBlock returns the block stored under the specified number.
func (kv *KVDB) GetBlock(num uint64) (database.BlockData, error) {
	data, err := kv.store.Get(Key(num))
	if err != nil {
		if errors.Is(err, kvstore.ErrKeyNotFound) {
			return database.BlockData{}, fmt.Errorf("%w: %d", database.ErrBlockNotFound, num)
		}
		return database.BlockData{}, errors.WithStack(err)
	}

	var blockData database.BlockData
	if err := json.Unmarshal(data, &blockData); err != nil {
		return database.BlockData{}, errors.Wrapf(err, "decode block %d", num)
	}

	return blockData, nil
}

// Count probes the store for consecutive blocks starting at genesis and
// returns how many exist.
func (kv *KVDB) Count() (uint64, error) {
	var n uint64
	for {
		exists, err := kv.store.Has(Key(n))
		if err != nil {
			return 0, errors.WithStack(err)
		}
		if !exists {
			return n, nil
		}
		n++
	}
}

// ForEach returns an iterator to walk through all the blocks
// starting with the genesis block.
func (kv *KVDB) ForEach() database.Iterator {
	return &Iterator{kv: kv}
}

// AppendPoH stores the proof of history entry under its index.
func (kv *KVDB) AppendPoH(index uint64, hash poh.Hash) error {
	if err := kv.store.Set(PoHKey(index), hash[:]); err != nil {
		return errors.WithStack(err)
	}

	return nil
}

// LoadPoH reads the proof of history entries starting at index 1 until the
// first missing index.
func (kv *KVDB) LoadPoH() ([]poh.Hash, error) {
	var entries []poh.Hash
	for index := uint64(1); ; index++ {
		data, err := kv.store.Get(PoHKey(index))
		if err != nil {
			if errors.Is(err, kvstore.ErrKeyNotFound) {
				return entries, nil
			}
			return nil, errors.WithStack(err)
		}

		var h poh.Hash
		if len(data) != len(h) {
			return nil, errors.Newf("poh entry %d has %d bytes", index, len(data))
		}
		copy(h[:], data)

		entries = append(entries, h)
	}
}

// Key returns the store key for the specified block number.
func Key(num uint64) kvstore.Key {
	return kvstore.Key(fmt.Sprintf("block_%d", num))
}

// PoHKey returns the store key for the specified proof of history index.
func PoHKey(index uint64) kvstore.Key {
	return kvstore.Key(fmt.Sprintf("poh_%d", index))
}

// =============================================================================

// Iterator represents a simple iterator for all the blocks in the store.
type Iterator struct {
	kv      *KVDB
	current uint64
	eoc     bool
}

// Next retrieves the next block from the store.
func (i *Iterator) Next() (database.BlockData, error) {
	if i.eoc {
		return database.BlockData{}, errors.New("end of chain")
	}

	blockData, err := i.kv.GetBlock(i.current)
	if errors.Is(err, database.ErrBlockNotFound) {
		i.eoc = true
	}
	i.current++

	return blockData, err
}

// Done returns the end of chain value.
func (i *Iterator) Done() bool {
	return i.eoc
}
