package poh_test

import (
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/ardanlabs/grokchain/foundation/blockchain/poh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequencer_Tick(t *testing.T) {
	seq := poh.New(poh.Seed())

	idx, seed := seq.Current()
	assert.Equal(t, uint64(0), idx)
	assert.Equal(t, poh.Seed(), seed)
	assert.Equal(t, 1, seq.Len())

	const n = 10
	prev := seed
	for i := 1; i <= n; i++ {
		data := []byte{byte(i)}
		index, mix, err := seq.Tick(data)
		require.NoError(t, err)

		assert.Equal(t, uint64(i), index)
		assert.True(t, poh.Verify(prev, data, mix))

		at, ok := seq.At(index)
		require.True(t, ok)
		assert.Equal(t, mix, at)

		prev = mix
	}

	assert.Equal(t, n+1, seq.Len())

	_, ok := seq.At(n + 1)
	assert.False(t, ok)
}

func TestSequencer_ConcurrentTicks(t *testing.T) {
	seq := poh.New(poh.Seed())

	const workers = 8
	const ticks = 50

	var mu sync.Mutex
	var indices []int

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(w int) {
			defer wg.Done()
			for i := 0; i < ticks; i++ {
				index, _, err := seq.Tick([]byte{byte(w), byte(i)})
				if err != nil {
					t.Error(err)
					return
				}

				mu.Lock()
				indices = append(indices, int(index))
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()

	sort.Ints(indices)
	require.Len(t, indices, workers*ticks)
	for i, index := range indices {
		assert.Equal(t, i+1, index)
	}

	assert.Equal(t, workers*ticks+1, seq.Len())
}

func TestSequencer_Restore(t *testing.T) {
	seq := poh.New(poh.Seed())
	seq.Tick([]byte("a"))
	seq.Tick([]byte("b"))
	seq.Tick([]byte("c"))

	restored := poh.New(poh.Seed(), seq.Range(1, 3)...)
	assert.Equal(t, seq.Len(), restored.Len())

	i1, h1 := seq.Current()
	i2, h2 := restored.Current()
	assert.Equal(t, i1, i2)
	assert.Equal(t, h1, h2)

	index, _, err := restored.Tick([]byte("d"))
	require.NoError(t, err)
	assert.Equal(t, uint64(4), index)
}

// memStore keeps the persisted entries and fails once told to.
type memStore struct {
	entries map[uint64]poh.Hash
	fail    bool
}

func (m *memStore) AppendPoH(index uint64, hash poh.Hash) error {
	if m.fail {
		return errors.New("store unavailable")
	}
	m.entries[index] = hash
	return nil
}

func TestSequencer_Store(t *testing.T) {
	store := memStore{entries: make(map[uint64]poh.Hash)}
	seq := poh.NewWithStore(poh.Seed(), &store)

	for i := 1; i <= 3; i++ {
		index, mix, err := seq.Tick([]byte{byte(i)})
		require.NoError(t, err)
		assert.Equal(t, mix, store.entries[index])
	}
	assert.Len(t, store.entries, 3)

	store.fail = true
	_, _, err := seq.Tick([]byte("lost"))
	require.Error(t, err)

	index, _ := seq.Current()
	assert.Equal(t, uint64(3), index)
	assert.Equal(t, 4, seq.Len())

	store.fail = false
	index, _, err = seq.Tick([]byte("kept"))
	require.NoError(t, err)
	assert.Equal(t, uint64(4), index)

	restored := poh.New(poh.Seed(), store.entries[1], store.entries[2], store.entries[3], store.entries[4])
	i1, h1 := seq.Current()
	i2, h2 := restored.Current()
	assert.Equal(t, i1, i2)
	assert.Equal(t, h1, h2)
}

func TestSequencer_Range(t *testing.T) {
	seq := poh.New(poh.Seed())
	for i := 0; i < 5; i++ {
		seq.Tick([]byte{byte(i)})
	}

	assert.Len(t, seq.Range(2, 4), 3)
	assert.Len(t, seq.Range(4, 100), 2)
	assert.Nil(t, seq.Range(3, 2))
	assert.Nil(t, seq.Range(10, 12))
}

func TestHash_Text(t *testing.T) {
	seed := poh.Seed()

	h, err := poh.ParseHash(seed.String())
	require.NoError(t, err)
	assert.Equal(t, seed, h)

	_, err = poh.ParseHash("0x1234")
	assert.Error(t, err)
}
