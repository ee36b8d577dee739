// Package poh implements the proof of history sequence. Every entry is the
// hash of the previous entry mixed with the event data that was recorded,
// so the position of an event in the sequence proves it happened after
// everything before it.
package poh

import (
	"fmt"
	"sync"

	"github.com/ardanlabs/grokchain/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// SeedPhrase is hashed to produce entry 0 of every sequence.
const SeedPhrase = "GrokChain PoH Seed"

// Hash represents a single entry in the sequence.
type Hash [32]byte

// Seed returns the entry every sequence starts with.
func Seed() Hash {
	return Hash(signature.Mix(nil, []byte(SeedPhrase)))
}

// ParseHash converts a hex encoded string into a Hash.
func ParseHash(s string) (Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return Hash{}, err
	}

	if len(b) != len(Hash{}) {
		return Hash{}, fmt.Errorf("invalid poh hash length %d", len(b))
	}

	var h Hash
	copy(h[:], b)

	return h, nil
}

// String implements the fmt.Stringer interface.
func (h Hash) String() string {
	return hexutil.Encode(h[:])
}

// MarshalText implements the encoding.TextMarshaler interface.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (h *Hash) UnmarshalText(data []byte) error {
	v, err := ParseHash(string(data))
	if err != nil {
		return err
	}

	*h = v
	return nil
}

// Next computes the entry that follows prev when data is recorded.
func Next(prev Hash, data []byte) Hash {
	return Hash(signature.Mix(prev[:], data))
}

// Verify reports whether next is the entry produced by recording data
// after prev.
func Verify(prev Hash, data []byte, next Hash) bool {
	return Next(prev, data) == next
}

// =============================================================================

// Store persists the entries of a sequence as they are produced.
type Store interface {
	AppendPoH(index uint64, hash Hash) error
}

// Sequencer maintains the proof of history sequence for the process. The
// sequence only grows.
type Sequencer struct {
	mu      sync.RWMutex
	entries []Hash
	store   Store
}

// New constructs a sequencer starting from the seed entry. Restored entries
// are appended in order after the seed.
func New(seed Hash, restored ...Hash) *Sequencer {
	return NewWithStore(seed, nil, restored...)
}

// NewWithStore constructs a sequencer that hands every new entry to the
// store before it becomes part of the sequence. This is how a sequence
// survives a restart: the stored entries are passed back in as restored.
func NewWithStore(seed Hash, store Store, restored ...Hash) *Sequencer {
	entries := make([]Hash, 0, 1+len(restored))
	entries = append(entries, seed)
	entries = append(entries, restored...)

	return &Sequencer{
		entries: entries,
		store:   store,
	}
}

// Tick records the data into the sequence and returns the 1-based index of
// the new entry with its hash. Concurrent callers get distinct, gapless
// indices. When the store can't persist the entry the sequence is left as
// it was.
func (s *Sequencer) Tick(data []byte) (uint64, Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index := uint64(len(s.entries))
	next := Next(s.entries[index-1], data)

	if s.store != nil {
		if err := s.store.AppendPoH(index, next); err != nil {
			return 0, Hash{}, fmt.Errorf("persist poh entry %d: %w", index, err)
		}
	}

	s.entries = append(s.entries, next)

	return index, next, nil
}

// Current returns the index and hash of the latest entry.
func (s *Sequencer) Current() (uint64, Hash) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return uint64(len(s.entries) - 1), s.entries[len(s.entries)-1]
}

// Len returns the number of entries including the seed.
func (s *Sequencer) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries)
}

// At returns the entry at the specified index.
func (s *Sequencer) At(index uint64) (Hash, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if index >= uint64(len(s.entries)) {
		return Hash{}, false
	}

	return s.entries[index], true
}

// Range returns a copy of the entries in the inclusive range [from, to].
// Indices past the end of the sequence are ignored.
func (s *Sequencer) Range(from uint64, to uint64) []Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()

	last := uint64(len(s.entries) - 1)
	if to > last {
		to = last
	}

	if from > to {
		return nil
	}

	out := make([]Hash, to-from+1)
	copy(out, s.entries[from:to+1])

	return out
}
