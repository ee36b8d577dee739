// Package ledger maintains the account balances of the blockchain. Every
// account has a native balance, moved by transfers, and a grok balance that
// collects block fees and mining rewards.
package ledger

import (
	"math/bits"
	"sync"

	"github.com/ardanlabs/grokchain/foundation/blockchain/database"
	"github.com/cockroachdb/errors"
)

// Set of error variables for applying balance changes.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrFeeMismatch       = errors.New("fee total mismatch")
	ErrOverflow          = errors.New("balance overflow")
)

// Account represents the balances held for an individual account.
type Account struct {
	AccountID database.AccountID `json:"account"`
	Balance   uint64             `json:"balance"`
	Grok      uint64             `json:"grok_balance"`
}

// Transfer represents the balance changes of a single transaction. The
// sender pays Amount plus Fee and the receiver gets Amount.
type Transfer struct {
	From   database.AccountID
	To     database.AccountID
	Amount uint64
	Fee    uint64
	ID     uint64
}

// TransfersFromBlock converts the block's transactions into transfers.
func TransfersFromBlock(block database.Block) []Transfer {
	transfers := make([]Transfer, len(block.Trans))
	for i, tx := range block.Trans {
		transfers[i] = Transfer{
			From:   tx.FromID,
			To:     tx.ToID,
			Amount: tx.Value,
			Fee:    tx.Fee,
			ID:     tx.ID,
		}
	}
	return transfers
}

// =============================================================================

// Ledger manages the balances for all accounts. All changes happen through
// ApplyBlock which either applies everything or nothing.
type Ledger struct {
	mu       sync.RWMutex
	genesis  map[database.AccountID]uint64
	balances map[database.AccountID]uint64
	grok     map[database.AccountID]uint64
	seen     map[string]struct{}
}

// New constructs a ledger with the starting balances.
func New(balances map[database.AccountID]uint64) *Ledger {
	l := Ledger{
		genesis: make(map[database.AccountID]uint64, len(balances)),
	}
	for account, balance := range balances {
		l.genesis[account] = balance
	}

	l.reset()

	return &l
}

// Reset puts the ledger back to the starting balances.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.reset()
}

// BalanceOf returns the native balance for the account, zero if unseen.
func (l *Ledger) BalanceOf(account database.AccountID) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.balances[account]
}

// GrokBalanceOf returns the grok balance for the account, zero if unseen.
func (l *Ledger) GrokBalanceOf(account database.AccountID) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.grok[account]
}

// Seen reports whether the transaction id from the account was committed.
func (l *Ledger) Seen(account database.AccountID, id uint64) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	_, exists := l.seen[seenKey(account, id)]
	return exists
}

// Copy makes a copy of the balances of every known account.
func (l *Ledger) Copy() map[database.AccountID]Account {
	l.mu.RLock()
	defer l.mu.RUnlock()

	accounts := make(map[database.AccountID]Account)
	for account, balance := range l.balances {
		acc := accounts[account]
		acc.AccountID = account
		acc.Balance = balance
		accounts[account] = acc
	}
	for account, grok := range l.grok {
		acc := accounts[account]
		acc.AccountID = account
		acc.Grok = grok
		accounts[account] = acc
	}

	return accounts
}

// Check validates the block's balance changes without applying them.
func (l *Ledger) Check(feeRecipient database.AccountID, rewardRecipient database.AccountID, transfers []Transfer, fees uint64, reward uint64) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	_, err := l.simulate(feeRecipient, rewardRecipient, transfers, fees, reward)
	return err
}

// ApplyBlock validates every balance change of a block and then applies them.
// If any transfer would overdraw its sender no balance is changed. Fees and
// the reward are credited to the grok balances of their recipients.
func (l *Ledger) ApplyBlock(feeRecipient database.AccountID, rewardRecipient database.AccountID, transfers []Transfer, fees uint64, reward uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	d, err := l.simulate(feeRecipient, rewardRecipient, transfers, fees, reward)
	if err != nil {
		return err
	}

	for account, balance := range d.balances {
		l.balances[account] = balance
	}
	for account, grok := range d.grok {
		l.grok[account] = grok
	}
	for key := range d.seen {
		l.seen[key] = struct{}{}
	}

	return nil
}

// Fundable runs the transfers in order against the current balances and
// reports which ones can be applied together. Rejected transfers are skipped
// so they don't affect the ones after them.
func (l *Ledger) Fundable(transfers []Transfer) ([]int, map[int]error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	d := l.newDelta()
	accepted := make([]int, 0, len(transfers))
	rejected := make(map[int]error)

	for i, tr := range transfers {
		if err := d.transfer(tr); err != nil {
			rejected[i] = err
			continue
		}
		accepted = append(accepted, i)
	}

	return accepted, rejected
}

// =============================================================================

func (l *Ledger) reset() {
	l.balances = make(map[database.AccountID]uint64, len(l.genesis))
	for account, balance := range l.genesis {
		l.balances[account] = balance
	}
	l.grok = make(map[database.AccountID]uint64)
	l.seen = make(map[string]struct{})
}

// simulate computes the balances the block would leave behind for every
// account it touches. The caller must hold the lock.
func (l *Ledger) simulate(feeRecipient database.AccountID, rewardRecipient database.AccountID, transfers []Transfer, fees uint64, reward uint64) (*delta, error) {
	var sum uint64
	for _, tr := range transfers {
		var carry uint64
		sum, carry = bits.Add64(sum, tr.Fee, 0)
		if carry != 0 {
			return nil, errors.Wrap(ErrOverflow, "fee total")
		}
	}
	if sum != fees {
		return nil, errors.Wrapf(ErrFeeMismatch, "transfers pay %d, block declares %d", sum, fees)
	}

	d := l.newDelta()
	for i, tr := range transfers {
		if err := d.transfer(tr); err != nil {
			return nil, errors.Wrapf(err, "transfer %d", i)
		}
	}

	if err := d.creditGrok(feeRecipient, fees); err != nil {
		return nil, err
	}
	if err := d.creditGrok(rewardRecipient, reward); err != nil {
		return nil, err
	}

	return d, nil
}

func (l *Ledger) newDelta() *delta {
	return &delta{
		ledger:   l,
		balances: make(map[database.AccountID]uint64),
		grok:     make(map[database.AccountID]uint64),
		seen:     make(map[string]struct{}),
	}
}

func seenKey(account database.AccountID, id uint64) string {
	return database.SignedTx{Tx: database.Tx{FromID: account, ID: id}}.UniqueKey()
}

// =============================================================================

// delta holds the pending balances of the accounts touched by a set of
// transfers on top of the ledger's committed balances.
type delta struct {
	ledger   *Ledger
	balances map[database.AccountID]uint64
	grok     map[database.AccountID]uint64
	seen     map[string]struct{}
}

func (d *delta) balance(account database.AccountID) uint64 {
	if v, exists := d.balances[account]; exists {
		return v
	}
	return d.ledger.balances[account]
}

func (d *delta) grokBalance(account database.AccountID) uint64 {
	if v, exists := d.grok[account]; exists {
		return v
	}
	return d.ledger.grok[account]
}

func (d *delta) transfer(tr Transfer) error {
	key := seenKey(tr.From, tr.ID)
	if _, exists := d.ledger.seen[key]; exists {
		return errors.Wrapf(database.ErrDuplicateTransaction, "%s already committed", key)
	}
	if _, exists := d.seen[key]; exists {
		return errors.Wrapf(database.ErrDuplicateTransaction, "%s repeated", key)
	}

	debit, carry := bits.Add64(tr.Amount, tr.Fee, 0)
	if carry != 0 {
		return errors.Wrapf(ErrOverflow, "debit for %s", key)
	}

	from := d.balance(tr.From)
	if from < debit {
		return errors.Wrapf(ErrInsufficientFunds, "%s has %d, needs %d", tr.From, from, debit)
	}
	d.balances[tr.From] = from - debit

	to, carry := bits.Add64(d.balance(tr.To), tr.Amount, 0)
	if carry != 0 {
		d.balances[tr.From] = from
		return errors.Wrapf(ErrOverflow, "credit for %s", tr.To)
	}
	d.balances[tr.To] = to

	d.seen[key] = struct{}{}

	return nil
}

func (d *delta) creditGrok(account database.AccountID, amount uint64) error {
	if amount == 0 {
		return nil
	}

	v, carry := bits.Add64(d.grokBalance(account), amount, 0)
	if carry != 0 {
		return errors.Wrapf(ErrOverflow, "grok credit for %s", account)
	}
	d.grok[account] = v

	return nil
}
