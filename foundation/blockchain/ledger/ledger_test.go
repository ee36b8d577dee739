package ledger_test

import (
	"testing"

	"github.com/ardanlabs/grokchain/foundation/blockchain/database"
	"github.com/ardanlabs/grokchain/foundation/blockchain/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alice = database.AccountID("0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4")
	bob   = database.AccountID("0xF01813E4B85e178A83e29B8E7bF26BD830a25f32")
	carol = database.AccountID("0xbEE6ACE826eC3DE1B6349888B9151B92522F7F76")
	miner = database.AccountID("0xFef311483Cc040e1A89fb9bb469eeB8A70935EF8")
	trsry = database.AccountID("0x6Fe6CF3c8fF57c58d24BfC869668F48BCbDb3BD9")
)

func total(l *ledger.Ledger) uint64 {
	var sum uint64
	for _, acc := range l.Copy() {
		sum += acc.Balance + acc.Grok
	}
	return sum
}

func TestLedger_ApplyBlock(t *testing.T) {
	l := ledger.New(map[database.AccountID]uint64{alice: 1000, bob: 50})

	before := total(l)

	transfers := []ledger.Transfer{
		{From: alice, To: bob, Amount: 100, Fee: 1, ID: 1},
		{From: bob, To: carol, Amount: 120, Fee: 1, ID: 1},
		{From: alice, To: carol, Amount: 200, Fee: 2, ID: 2},
	}

	require.NoError(t, l.ApplyBlock(trsry, miner, transfers, 4, 10))

	assert.Equal(t, uint64(1000-101-202), l.BalanceOf(alice))
	assert.Equal(t, uint64(50+100-121), l.BalanceOf(bob))
	assert.Equal(t, uint64(320), l.BalanceOf(carol))
	assert.Equal(t, uint64(4), l.GrokBalanceOf(trsry))
	assert.Equal(t, uint64(10), l.GrokBalanceOf(miner))
	assert.Equal(t, uint64(0), l.BalanceOf(miner))

	// Only the reward changes the total supply.
	assert.Equal(t, before+10, total(l))

	assert.True(t, l.Seen(alice, 1))
	assert.True(t, l.Seen(alice, 2))
	assert.True(t, l.Seen(bob, 1))
	assert.False(t, l.Seen(carol, 1))
}

func TestLedger_AllOrNothing(t *testing.T) {
	l := ledger.New(map[database.AccountID]uint64{alice: 100, bob: 10})

	transfers := []ledger.Transfer{
		{From: alice, To: bob, Amount: 10, ID: 1},
		{From: alice, To: carol, Amount: 10, ID: 2},
		{From: bob, To: carol, Amount: 500, ID: 1},
		{From: alice, To: bob, Amount: 10, ID: 3},
		{From: alice, To: carol, Amount: 10, ID: 4},
	}

	before := l.Copy()

	err := l.ApplyBlock(miner, miner, transfers, 0, 10)
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	assert.Equal(t, before, l.Copy())
	assert.Equal(t, uint64(0), l.GrokBalanceOf(miner))
	assert.False(t, l.Seen(alice, 1))

	require.ErrorIs(t, l.Check(miner, miner, transfers, 0, 10), ledger.ErrInsufficientFunds)
}

func TestLedger_Duplicates(t *testing.T) {
	l := ledger.New(map[database.AccountID]uint64{alice: 100})

	repeated := []ledger.Transfer{
		{From: alice, To: bob, Amount: 10, ID: 7},
		{From: alice, To: bob, Amount: 10, ID: 7},
	}
	require.ErrorIs(t, l.ApplyBlock(miner, miner, repeated, 0, 0), database.ErrDuplicateTransaction)

	require.NoError(t, l.ApplyBlock(miner, miner, repeated[:1], 0, 0))
	require.ErrorIs(t, l.ApplyBlock(miner, miner, repeated[1:], 0, 0), database.ErrDuplicateTransaction)

	assert.Equal(t, uint64(90), l.BalanceOf(alice))
}

func TestLedger_FeeMismatch(t *testing.T) {
	l := ledger.New(map[database.AccountID]uint64{alice: 100})

	transfers := []ledger.Transfer{{From: alice, To: bob, Amount: 10, Fee: 1, ID: 1}}
	require.ErrorIs(t, l.ApplyBlock(miner, miner, transfers, 2, 0), ledger.ErrFeeMismatch)
	assert.Equal(t, uint64(100), l.BalanceOf(alice))
}

func TestLedger_FeeCountsAgainstBalance(t *testing.T) {
	l := ledger.New(map[database.AccountID]uint64{alice: 100})

	transfers := []ledger.Transfer{{From: alice, To: bob, Amount: 100, Fee: 1, ID: 1}}
	require.ErrorIs(t, l.ApplyBlock(miner, miner, transfers, 1, 0), ledger.ErrInsufficientFunds)
}

func TestLedger_Overflow(t *testing.T) {
	l := ledger.New(map[database.AccountID]uint64{alice: 10, bob: ^uint64(0)})

	transfers := []ledger.Transfer{{From: alice, To: bob, Amount: 1, ID: 1}}
	require.ErrorIs(t, l.ApplyBlock(miner, miner, transfers, 0, 0), ledger.ErrOverflow)
	assert.Equal(t, uint64(10), l.BalanceOf(alice))
}

func TestLedger_Fundable(t *testing.T) {
	l := ledger.New(map[database.AccountID]uint64{alice: 30})

	transfers := []ledger.Transfer{
		{From: alice, To: bob, Amount: 20, ID: 1},
		{From: alice, To: bob, Amount: 20, ID: 2},
		{From: bob, To: carol, Amount: 15, ID: 1},
		{From: alice, To: carol, Amount: 10, ID: 3},
		{From: alice, To: carol, Amount: 1, ID: 3},
	}

	accepted, rejected := l.Fundable(transfers)
	assert.Equal(t, []int{0, 2, 3}, accepted)
	require.Len(t, rejected, 2)
	assert.ErrorIs(t, rejected[1], ledger.ErrInsufficientFunds)
	assert.ErrorIs(t, rejected[4], database.ErrDuplicateTransaction)

	// Fundable never changes balances.
	assert.Equal(t, uint64(30), l.BalanceOf(alice))
}

func TestLedger_Reset(t *testing.T) {
	l := ledger.New(map[database.AccountID]uint64{alice: 30})

	require.NoError(t, l.ApplyBlock(miner, miner, []ledger.Transfer{{From: alice, To: bob, Amount: 5, ID: 1}}, 0, 10))
	l.Reset()

	assert.Equal(t, uint64(30), l.BalanceOf(alice))
	assert.Equal(t, uint64(0), l.BalanceOf(bob))
	assert.Equal(t, uint64(0), l.GrokBalanceOf(miner))
	assert.False(t, l.Seen(alice, 1))
}

func TestLedger_UnknownAccount(t *testing.T) {
	l := ledger.New(nil)

	assert.Equal(t, uint64(0), l.BalanceOf(alice))
	assert.Equal(t, uint64(0), l.GrokBalanceOf(alice))
}
