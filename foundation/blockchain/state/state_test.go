package state_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ardanlabs/grokchain/foundation/blockchain/admission"
	"github.com/ardanlabs/grokchain/foundation/blockchain/database"
	"github.com/ardanlabs/grokchain/foundation/blockchain/database/storage/kvdb"
	"github.com/ardanlabs/grokchain/foundation/blockchain/genesis"
	"github.com/ardanlabs/grokchain/foundation/blockchain/ledger"
	"github.com/ardanlabs/grokchain/foundation/blockchain/state"
	"github.com/ardanlabs/grokchain/foundation/blockchain/worker"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/iotaledger/hive.go/kvstore/mapdb"
	"go.uber.org/atomic"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const (
	pkHexKey    = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"
	minerHexKey = "8dc79feefd3b86e2f9991def0e5ccd9a5128e104682407b308594bc1032ac7f0"

	from   = database.AccountID("0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4")
	toB    = database.AccountID("0xF01813E4B85e178A83e29B8E7bF26BD830a25f32")
	toC    = database.AccountID("0xbEE6ACE826eC3DE1B6349888B9151B92522F7F76")
	toD    = database.AccountID("0x6Fe6CF3c8fF57c58d24BfC869668F48BCbDb3BD9")
	client = "10.0.0.1"
)

func ifErrFailNow(t *testing.T, err error) {
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
}

// stubWorker records the signals sent by the state.
type stubWorker struct {
	mu      sync.Mutex
	starts  int
	cancels int
}

func (w *stubWorker) Shutdown() {}

func (w *stubWorker) SignalStartMining() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.starts++
}

func (w *stubWorker) SignalCancelMining() func() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cancels++
	return func() {}
}

// clock is a time source that only moves when told to.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// brokenStorage refuses to write blocks once it is broken. Reads and proof
// of history entries still work.
type brokenStorage struct {
	database.Storage
	broken atomic.Bool
}

func (s *brokenStorage) Write(blockData database.BlockData) error {
	if s.broken.Load() {
		return errors.New("disk full")
	}
	return s.Storage.Write(blockData)
}

func testGenesis() genesis.Genesis {
	return genesis.Genesis{
		Date:           time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		ChainID:        1,
		TransPerBlock:  10,
		Difficulty:     6,
		MiningReward:   10,
		FeeBasisPoints: 100,
		Balances: map[string]uint64{
			string(from): 1000,
		},
	}
}

func minerID(t *testing.T) database.AccountID {
	key, err := crypto.HexToECDSA(minerHexKey)
	ifErrFailNow(t, err)
	return database.PublicKeyToAccountID(key.PublicKey)
}

func newState(t *testing.T, storage database.Storage, clk *clock) (*state.State, *stubWorker) {
	st, err := state.New(state.Config{
		BeneficiaryID:  minerID(t),
		Host:           "127.0.0.1:9080",
		Storage:        storage,
		Genesis:        testGenesis(),
		SelectStrategy: "arrival",
		Admission: admission.Config{
			Now: clk.Now,
		},
		VerifyWorkers: 2,
	})
	ifErrFailNow(t, err)

	w := stubWorker{}
	st.Worker = &w

	return st, &w
}

func signTx(t *testing.T, to database.AccountID, value uint64, id uint64) database.SignedTx {
	pk, err := crypto.HexToECDSA(pkHexKey)
	ifErrFailNow(t, err)

	tx, err := database.NewTx(from, to, value, id)
	ifErrFailNow(t, err)

	signedTx, err := tx.Sign(pk)
	ifErrFailNow(t, err)

	return signedTx
}

// externalBlock mines the next block outside the node, reserving its proof
// of history entry through the node.
func externalBlock(t *testing.T, st *state.State, beneficiary database.AccountID, txs ...database.SignedTx) (database.Block, uint64) {
	g := st.RetrieveGenesis()
	prev := st.RetrieveLatestBlock()

	var trans []database.BlockTx
	for _, tx := range txs {
		trans = append(trans, database.NewBlockTx(tx))
	}

	trans, fees, err := database.AssignFees(trans, g.FeeBasisPoints)
	ifErrFailNow(t, err)

	entry, err := st.ReservePoH(client, []byte(prev.Hash()+database.TransHash(trans)))
	ifErrFailNow(t, err)

	block, err := database.POW(context.Background(), database.POWArgs{
		BeneficiaryID: beneficiary,
		MinerIdentity: client,
		Difficulty:    g.Difficulty,
		PrevBlock:     prev,
		PoHIndex:      entry.Index,
		PoHHash:       entry.Hash,
		Fees:          fees,
		Trans:         trans,
		EvHandler:     func(string, ...any) {},
	})
	ifErrFailNow(t, err)

	return block, fees
}

// =============================================================================

func Test_SubmitAndMine(t *testing.T) {
	t.Log("Given the need to submit transactions and mine them into blocks.")
	{
		clk := clock{now: time.Now()}
		st, w := newState(t, kvdb.NewMemory(), &clk)
		defer st.Shutdown()

		miner := minerID(t)

		txs := []database.SignedTx{
			signTx(t, toB, 10, 1),
			signTx(t, toC, 20, 2),
			signTx(t, toD, 5, 3),
		}

		for _, tx := range txs {
			if err := st.SubmitTransaction(client, tx); err != nil {
				t.Fatalf("\t%s\tShould be able to submit transaction %s: %s", failed, tx, err)
			}
		}
		t.Logf("\t%s\tShould be able to submit transactions.", success)

		if st.QueryMempoolLength() != 3 || w.starts != 3 {
			t.Fatalf("\t%s\tShould have 3 transactions pending and 3 mining signals: %d %d", failed, st.QueryMempoolLength(), w.starts)
		}
		t.Logf("\t%s\tShould have 3 transactions pending and 3 mining signals.", success)

		block, err := st.MineNewBlock(context.Background())
		if err != nil {
			t.Fatalf("\t%s\tShould be able to mine a block: %s", failed, err)
		}
		t.Logf("\t%s\tShould be able to mine a block.", success)

		if block.Header.Number != 1 || len(block.Trans) != 3 || block.Header.Fees != 0 {
			t.Fatalf("\t%s\tShould get block 1 with 3 transactions and no fees: %d %d %d", failed, block.Header.Number, len(block.Trans), block.Header.Fees)
		}
		t.Logf("\t%s\tShould get block 1 with 3 transactions and no fees.", success)

		for i, tx := range block.Trans {
			if tx.ID != uint64(i+1) {
				t.Fatalf("\t%s\tShould keep arrival order: got id %d at %d", failed, tx.ID, i)
			}
		}
		t.Logf("\t%s\tShould keep arrival order.", success)

		if st.QueryMempoolLength() != 0 {
			t.Fatalf("\t%s\tShould have an empty mempool.", failed)
		}
		t.Logf("\t%s\tShould have an empty mempool.", success)

		if p := st.QueryPoH(); p.Index != 1 || block.Header.PoHIndex != 1 || block.Header.PoHHash != p.Hash.String() {
			t.Fatalf("\t%s\tShould reference poh entry 1: %d %d", failed, p.Index, block.Header.PoHIndex)
		}
		t.Logf("\t%s\tShould reference poh entry 1.", success)

		balances := map[database.AccountID]uint64{from: 965, toB: 10, toC: 20, toD: 5}
		for account, exp := range balances {
			acc, err := st.QueryAccount(account)
			if err != nil || acc.Balance != exp {
				t.Fatalf("\t%s\tShould have balance %d for %s: got %d: %v", failed, exp, account, acc.Balance, err)
			}
		}
		t.Logf("\t%s\tShould have updated balances.", success)

		acc, err := st.QueryAccount(miner)
		if err != nil || acc.Grok != 10 {
			t.Fatalf("\t%s\tShould pay the mining reward: %d: %v", failed, acc.Grok, err)
		}
		t.Logf("\t%s\tShould pay the mining reward.", success)

		// A 1% fee on 500 is 5, paid by the sender and collected by the miner.
		if err := st.SubmitTransaction(client, signTx(t, toB, 500, 4)); err != nil {
			t.Fatalf("\t%s\tShould be able to submit transaction: %s", failed, err)
		}

		block, err = st.MineNewBlock(context.Background())
		if err != nil {
			t.Fatalf("\t%s\tShould be able to mine a second block: %s", failed, err)
		}
		t.Logf("\t%s\tShould be able to mine a second block.", success)

		if block.Header.Fees != 5 || block.Trans[0].Fee != 5 {
			t.Fatalf("\t%s\tShould charge a fee of 5: %d", failed, block.Header.Fees)
		}
		t.Logf("\t%s\tShould charge a fee of 5.", success)

		fromAcc, _ := st.QueryAccount(from)
		minerAcc, _ := st.QueryAccount(miner)
		if fromAcc.Balance != 460 || minerAcc.Grok != 25 {
			t.Fatalf("\t%s\tShould debit the fee and credit it to the miner: %d %d", failed, fromAcc.Balance, minerAcc.Grok)
		}
		t.Logf("\t%s\tShould debit the fee and credit it to the miner.", success)

		if _, err := st.MineNewBlock(context.Background()); !errors.Is(err, state.ErrNoTransactions) {
			t.Fatalf("\t%s\tShould not mine an empty block: %v", failed, err)
		}
		t.Logf("\t%s\tShould not mine an empty block.", success)

		blocks := st.QueryBlocksByNumber(0, state.QueryLatest)
		if len(blocks) != 3 || blocks[2].Hash != block.Hash() {
			t.Fatalf("\t%s\tShould read back the chain from storage: %d", failed, len(blocks))
		}
		t.Logf("\t%s\tShould read back the chain from storage.", success)
	}
}

func Test_SubmitRejections(t *testing.T) {
	t.Log("Given the need to reject bad transactions.")
	{
		clk := clock{now: time.Now()}
		st, _ := newState(t, kvdb.NewMemory(), &clk)
		defer st.Shutdown()

		t.Logf("\tTest 0:\tWhen a transaction is already pending.")
		{
			tx := signTx(t, toB, 10, 1)
			if err := st.SubmitTransaction(client, tx); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to submit transaction: %s", failed, err)
			}
			if err := st.SubmitTransaction(client, tx); !errors.Is(err, database.ErrDuplicateTransaction) {
				t.Fatalf("\t%s\tTest 0:\tShould reject the duplicate: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould reject the duplicate.", success)
		}

		t.Logf("\tTest 1:\tWhen a transaction was already committed.")
		{
			if _, err := st.MineNewBlock(context.Background()); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to mine a block: %s", failed, err)
			}
			if err := st.SubmitTransaction("10.0.0.2", signTx(t, toC, 10, 1)); !errors.Is(err, database.ErrDuplicateTransaction) {
				t.Fatalf("\t%s\tTest 1:\tShould reject the replay: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould reject the replay.", success)
		}

		t.Logf("\tTest 2:\tWhen the sender can't pay.")
		{
			if err := st.SubmitTransaction("10.0.0.3", signTx(t, toC, 5000, 7)); !errors.Is(err, ledger.ErrInsufficientFunds) {
				t.Fatalf("\t%s\tTest 2:\tShould reject the transaction: %v", failed, err)
			}
			t.Logf("\t%s\tTest 2:\tShould reject the transaction.", success)
		}

		t.Logf("\tTest 3:\tWhen the signature was tampered with.")
		{
			tx := signTx(t, toC, 10, 8)
			tx.Value = 11
			if err := st.SubmitTransaction("10.0.0.4", tx); !errors.Is(err, database.ErrSignatureInvalid) {
				t.Fatalf("\t%s\tTest 3:\tShould reject the transaction: %v", failed, err)
			}
			t.Logf("\t%s\tTest 3:\tShould reject the transaction.", success)
		}
	}
}

func Test_AdmissionControl(t *testing.T) {
	t.Log("Given the need to protect the node from misbehaving submitters.")
	{
		clk := clock{now: time.Now()}
		st, _ := newState(t, kvdb.NewMemory(), &clk)
		defer st.Shutdown()

		t.Logf("\tTest 0:\tWhen a submitter sends too fast.")
		{
			for i := 1; i <= admission.DefaultRateLimit; i++ {
				if err := st.SubmitTransaction(client, signTx(t, toB, 1, uint64(i))); err != nil {
					t.Fatalf("\t%s\tTest 0:\tShould admit submission %d: %s", failed, i, err)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould admit the first %d submissions.", success, admission.DefaultRateLimit)

			if err := st.SubmitTransaction(client, signTx(t, toB, 1, 99)); !errors.Is(err, admission.ErrRateLimited) {
				t.Fatalf("\t%s\tTest 0:\tShould rate limit the next submission: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould rate limit the next submission.", success)

			clk.Advance(time.Second)
			if err := st.SubmitTransaction(client, signTx(t, toB, 1, 99)); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould admit once the window slides: %s", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould admit once the window slides.", success)
		}

		t.Logf("\tTest 1:\tWhen a submitter keeps sending invalid blocks.")
		{
			const bad = "10.0.0.66"

			latest := st.RetrieveLatestBlock()
			for i := 0; i < admission.DefaultFailureThreshold; i++ {
				blockData := database.BlockData{
					Hash: "0x00",
					Header: database.BlockHeader{
						Number:        latest.Header.Number + 1,
						PrevBlockHash: "0xbad",
					},
				}
				if err := st.SubmitBlock(bad, blockData); !errors.Is(err, database.ErrChainLinkMismatch) {
					t.Fatalf("\t%s\tTest 1:\tShould reject the block: %v", failed, err)
				}
			}
			t.Logf("\t%s\tTest 1:\tShould reject the blocks.", success)

			status, err := st.QueryAdmission(bad)
			if err != nil || !status.Banned {
				t.Fatalf("\t%s\tTest 1:\tShould ban the submitter: %+v: %v", failed, status, err)
			}
			t.Logf("\t%s\tTest 1:\tShould ban the submitter.", success)

			if err := st.SubmitTransaction(bad, signTx(t, toB, 1, 200)); !errors.Is(err, admission.ErrBanned) {
				t.Fatalf("\t%s\tTest 1:\tShould refuse a banned submitter: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould refuse a banned submitter.", success)

			clk.Advance(admission.DefaultBanDuration)
			if err := st.SubmitTransaction(bad, signTx(t, toB, 1, 200)); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould admit the submitter after the ban: %s", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould admit the submitter after the ban.", success)

			if st.RetrieveAdmissionStats().Bans != 1 {
				t.Fatalf("\t%s\tTest 1:\tShould count one ban.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould count one ban.", success)
		}
	}
}

func Test_SubmitBlock(t *testing.T) {
	t.Log("Given the need to accept a block mined outside the node.")
	{
		clk := clock{now: time.Now()}
		st, w := newState(t, kvdb.NewMemory(), &clk)
		defer st.Shutdown()

		g := st.RetrieveGenesis()
		prev := st.RetrieveLatestBlock()
		beneficiary := database.AccountID("0xFef311483Cc040e1A89fb9bb469eeB8A70935EF8")

		trans, fees, err := database.AssignFees([]database.BlockTx{
			database.NewBlockTx(signTx(t, toB, 100, 1)),
			database.NewBlockTx(signTx(t, toC, 300, 2)),
		}, g.FeeBasisPoints)
		ifErrFailNow(t, err)

		entry, err := st.ReservePoH(client, []byte(prev.Hash()+database.TransHash(trans)))
		ifErrFailNow(t, err)

		block, err := database.POW(context.Background(), database.POWArgs{
			BeneficiaryID: beneficiary,
			MinerIdentity: client,
			Difficulty:    g.Difficulty,
			PrevBlock:     prev,
			PoHIndex:      entry.Index,
			PoHHash:       entry.Hash,
			Fees:          fees,
			Trans:         trans,
			EvHandler:     func(string, ...any) {},
		})
		ifErrFailNow(t, err)

		t.Logf("\tTest 0:\tWhen the block was tampered with.")
		{
			tampered := database.NewBlockData(block, nil)
			tampered.Header.Fees++

			if err := st.SubmitBlock(client, tampered); !errors.Is(err, database.ErrChainLinkMismatch) {
				t.Fatalf("\t%s\tTest 0:\tShould reject the block: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould reject the block.", success)
		}

		t.Logf("\tTest 1:\tWhen the block is valid.")
		{
			if err := st.SubmitBlock(client, database.NewBlockData(block, nil)); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould accept the block: %s", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould accept the block.", success)

			if w.cancels != 1 {
				t.Fatalf("\t%s\tTest 1:\tShould cancel the local mining operation.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould cancel the local mining operation.", success)

			acc, err := st.QueryAccount(beneficiary)
			if err != nil || acc.Grok != g.MiningReward+fees {
				t.Fatalf("\t%s\tTest 1:\tShould credit the block's beneficiary: %d: %v", failed, acc.Grok, err)
			}
			t.Logf("\t%s\tTest 1:\tShould credit the block's beneficiary.", success)

			status, err := st.QueryAdmission(client)
			if err != nil || status.FailedAttempts != 0 {
				t.Fatalf("\t%s\tTest 1:\tShould clear the failed attempts: %+v: %v", failed, status, err)
			}
			t.Logf("\t%s\tTest 1:\tShould clear the failed attempts.", success)
		}

		t.Logf("\tTest 2:\tWhen the same block is sent again.")
		{
			if err := st.SubmitBlock(client, database.NewBlockData(block, nil)); !errors.Is(err, database.ErrChainLinkMismatch) {
				t.Fatalf("\t%s\tTest 2:\tShould reject the stale block: %v", failed, err)
			}
			t.Logf("\t%s\tTest 2:\tShould reject the stale block.", success)
		}
	}
}

func Test_Restart(t *testing.T) {
	t.Log("Given the need to recover the node from storage.")
	{
		clk := clock{now: time.Now()}
		store := mapdb.NewMapDB()

		st, _ := newState(t, kvdb.New(store), &clk)

		for i := 1; i <= 3; i++ {
			if err := st.SubmitTransaction(client, signTx(t, toB, 100, uint64(i))); err != nil {
				t.Fatalf("\t%s\tShould be able to submit transaction: %s", failed, err)
			}
			if _, err := st.MineNewBlock(context.Background()); err != nil {
				t.Fatalf("\t%s\tShould be able to mine block %d: %s", failed, i, err)
			}
		}
		t.Logf("\t%s\tShould be able to mine 3 blocks.", success)

		// A tick nobody commits leaves a gap in the sequence.
		if _, err := st.ReservePoH("10.0.0.2", []byte("gap")); err != nil {
			t.Fatalf("\t%s\tShould be able to reserve a tick: %s", failed, err)
		}
		if err := st.SubmitTransaction(client, signTx(t, toC, 100, 4)); err != nil {
			t.Fatalf("\t%s\tShould be able to submit transaction: %s", failed, err)
		}
		if _, err := st.MineNewBlock(context.Background()); err != nil {
			t.Fatalf("\t%s\tShould be able to mine after a gap: %s", failed, err)
		}
		t.Logf("\t%s\tShould be able to mine after a gap.", success)

		// Entries reserved after the last block belong to their holders.
		for i := 0; i < 2; i++ {
			if _, err := st.ReservePoH("10.0.0.3", []byte{byte(i)}); err != nil {
				t.Fatalf("\t%s\tShould be able to reserve a tick: %s", failed, err)
			}
		}

		before := st.QueryAccounts()
		latest := st.RetrieveLatestBlock()
		pohBefore := st.QueryPoH()

		// The store outlives the state that used it.
		ifErrFailNow(t, st.Shutdown())

		restarted, _ := newState(t, kvdb.New(store), &clk)
		defer restarted.Shutdown()

		if restarted.RetrieveLatestBlock().Hash() != latest.Hash() {
			t.Fatalf("\t%s\tShould restore the latest block.", failed)
		}
		t.Logf("\t%s\tShould restore the latest block.", success)

		after := restarted.QueryAccounts()
		if len(after) != len(before) {
			t.Fatalf("\t%s\tShould restore every account: %d != %d", failed, len(after), len(before))
		}
		for account, acc := range before {
			if after[account] != acc {
				t.Fatalf("\t%s\tShould restore balances for %s: %+v != %+v", failed, account, after[account], acc)
			}
		}
		t.Logf("\t%s\tShould restore balances.", success)

		if p := restarted.QueryPoH(); p != pohBefore {
			t.Fatalf("\t%s\tShould restore the proof of history: %d != %d", failed, p.Index, pohBefore.Index)
		}
		t.Logf("\t%s\tShould restore the proof of history.", success)

		entry, err := restarted.ReservePoH("10.0.0.3", []byte("next"))
		if err != nil || entry.Index != pohBefore.Index+1 {
			t.Fatalf("\t%s\tShould continue the proof of history after the reserved entries: %d: %v", failed, entry.Index, err)
		}
		t.Logf("\t%s\tShould continue the proof of history after the reserved entries.", success)

		if err := restarted.SubmitTransaction(client, signTx(t, toB, 100, 2)); !errors.Is(err, database.ErrDuplicateTransaction) {
			t.Fatalf("\t%s\tShould remember committed transactions: %v", failed, err)
		}
		t.Logf("\t%s\tShould remember committed transactions.", success)
	}
}

func Test_WorkerMining(t *testing.T) {
	t.Log("Given the need to mine in the background.")
	{
		clk := clock{now: time.Now()}
		mined := make(chan string, 10)

		ev := func(v string, args ...any) {
			if v == "worker: runMiningOperation: MINING: blk[%d]: hash[%s]" {
				mined <- args[1].(string)
			}
		}

		st, err := state.New(state.Config{
			BeneficiaryID:  minerID(t),
			Host:           "127.0.0.1:9080",
			Storage:        kvdb.NewMemory(),
			Genesis:        testGenesis(),
			SelectStrategy: "arrival",
			Admission:      admission.Config{Now: clk.Now},
			EvHandler:      ev,
		})
		ifErrFailNow(t, err)
		defer st.Shutdown()

		w := worker.Run(st, ev)

		if err := st.SubmitTransaction(client, signTx(t, toB, 10, 1)); err != nil {
			t.Fatalf("\t%s\tShould be able to submit transaction: %s", failed, err)
		}

		select {
		case hash := <-mined:
			if st.RetrieveLatestBlock().Hash() != hash {
				t.Fatalf("\t%s\tShould commit the mined block.", failed)
			}
			t.Logf("\t%s\tShould commit the mined block.", success)

			if stats := w.Stats(); stats.Mined != 1 || stats.Failed != 0 {
				t.Fatalf("\t%s\tShould count the mined block: %+v", failed, stats)
			}
			t.Logf("\t%s\tShould count the mined block.", success)

		case <-time.After(10 * time.Second):
			t.Fatalf("\t%s\tShould mine a block in time.", failed)
		}
	}
}

func Test_GenesisMismatch(t *testing.T) {
	t.Log("Given the need to refuse a store built for another chain.")
	{
		clk := clock{now: time.Now()}
		store := mapdb.NewMapDB()

		st, _ := newState(t, kvdb.New(store), &clk)
		ifErrFailNow(t, st.Shutdown())

		g := testGenesis()
		g.Date = g.Date.Add(24 * time.Hour)

		_, err := state.New(state.Config{
			BeneficiaryID:  minerID(t),
			Storage:        kvdb.New(store),
			Genesis:        g,
			SelectStrategy: "arrival",
			Admission:      admission.Config{Now: clk.Now},
		})
		if !errors.Is(err, database.ErrChainLinkMismatch) {
			t.Fatalf("\t%s\tShould refuse the stored genesis block: %v", failed, err)
		}
		t.Logf("\t%s\tShould refuse the stored genesis block.", success)
	}
}

func Test_StorageFailure(t *testing.T) {
	t.Log("Given the need to survive a storage failure during a commit.")
	{
		clk := clock{now: time.Now()}
		storage := brokenStorage{Storage: kvdb.NewMemory()}
		st, _ := newState(t, &storage, &clk)
		defer st.Shutdown()

		beneficiary := database.AccountID("0xFef311483Cc040e1A89fb9bb469eeB8A70935EF8")
		block, _ := externalBlock(t, st, beneficiary, signTx(t, toB, 100, 1))
		genesisHash := st.RetrieveLatestBlock().Hash()

		storage.broken.Store(true)

		t.Logf("\tTest 0:\tWhen the block can't be written.")
		{
			if err := st.SubmitBlock(client, database.NewBlockData(block, nil)); !errors.Is(err, database.ErrStorageFailure) {
				t.Fatalf("\t%s\tTest 0:\tShould fail with a storage failure: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould fail with a storage failure.", success)

			if st.RetrieveLatestBlock().Hash() != genesisHash {
				t.Fatalf("\t%s\tTest 0:\tShould keep the chain head.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould keep the chain head.", success)

			accounts := st.QueryAccounts()
			if accounts[from].Balance != 1000 || accounts[toB].Balance != 0 || accounts[beneficiary].Grok != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould leave the ledger untouched: %+v", failed, accounts)
			}
			t.Logf("\t%s\tTest 0:\tShould leave the ledger untouched.", success)

			status, err := st.QueryAdmission(client)
			if err != nil || status.FailedAttempts != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould not count against the submitter: %+v: %v", failed, status, err)
			}
			t.Logf("\t%s\tTest 0:\tShould not count against the submitter.", success)
		}

		t.Logf("\tTest 1:\tWhen the same block is sent again after storage recovers.")
		{
			storage.broken.Store(false)

			if err := st.SubmitBlock(client, database.NewBlockData(block, nil)); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould accept the block: %s", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould accept the block.", success)

			if acc, err := st.QueryAccount(toB); err != nil || acc.Balance != 100 {
				t.Fatalf("\t%s\tTest 1:\tShould apply the block: %d: %v", failed, acc.Balance, err)
			}
			t.Logf("\t%s\tTest 1:\tShould apply the block.", success)
		}
	}
}

func Test_WorkerStorageFailure(t *testing.T) {
	t.Log("Given the need to back off mining while storage is failing.")
	{
		clk := clock{now: time.Now()}
		storage := brokenStorage{Storage: kvdb.NewMemory()}

		st, err := state.New(state.Config{
			BeneficiaryID:  minerID(t),
			Host:           "127.0.0.1:9080",
			Storage:        &storage,
			Genesis:        testGenesis(),
			SelectStrategy: "arrival",
			Admission:      admission.Config{Now: clk.Now},
		})
		ifErrFailNow(t, err)
		defer st.Shutdown()

		storage.broken.Store(true)

		if err := st.SubmitTransaction(client, signTx(t, toB, 10, 1)); err != nil {
			t.Fatalf("\t%s\tShould be able to submit transaction: %s", failed, err)
		}

		w := worker.Run(st, nil)
		time.Sleep(500 * time.Millisecond)

		stats := w.Stats()
		if stats.Failed == 0 || stats.Failed > 5 || stats.Mined != 0 {
			t.Fatalf("\t%s\tShould retry a few times only: %+v", failed, stats)
		}
		t.Logf("\t%s\tShould retry a few times only: %+v", success, stats)

		if p := st.QueryPoH(); p.Index > uint64(stats.Failed)+1 {
			t.Fatalf("\t%s\tShould tick once per attempt: poh[%d] failed[%d]", failed, p.Index, stats.Failed)
		}
		t.Logf("\t%s\tShould tick once per attempt.", success)

		if acc, err := st.QueryAccount(from); err != nil || acc.Balance != 1000 {
			t.Fatalf("\t%s\tShould leave the ledger untouched: %d: %v", failed, acc.Balance, err)
		}
		t.Logf("\t%s\tShould leave the ledger untouched.", success)

		if st.QueryMempoolLength() != 1 {
			t.Fatalf("\t%s\tShould keep the transaction pending.", failed)
		}
		t.Logf("\t%s\tShould keep the transaction pending.", success)
	}
}

func Test_WorkerCancelled(t *testing.T) {
	t.Log("Given the need to abandon local mining when another block is committed first.")
	{
		clk := clock{now: time.Now()}

		powStarted := make(chan struct{})
		release := make(chan struct{})
		cancelled := make(chan struct{}, 1)

		var pause sync.Once
		ev := func(v string, args ...any) {
			switch v {
			case "state: MineNewBlock: MINING: perform POW: poh[%d]":
				pause.Do(func() {
					close(powStarted)
					<-release
				})

			case "worker: runMiningOperation: MINING: CANCEL: complete":
				select {
				case cancelled <- struct{}{}:
				default:
				}
			}
		}

		st, err := state.New(state.Config{
			BeneficiaryID:  minerID(t),
			Host:           "127.0.0.1:9080",
			Storage:        kvdb.NewMemory(),
			Genesis:        testGenesis(),
			SelectStrategy: "arrival",
			Admission:      admission.Config{Now: clk.Now},
			EvHandler:      ev,
		})
		ifErrFailNow(t, err)
		defer st.Shutdown()

		var unpause sync.Once
		resume := func() { unpause.Do(func() { close(release) }) }
		defer resume()

		tx := signTx(t, toB, 100, 1)
		beneficiary := database.AccountID("0xFef311483Cc040e1A89fb9bb469eeB8A70935EF8")
		block, _ := externalBlock(t, st, beneficiary, tx)

		if err := st.SubmitTransaction(client, tx); err != nil {
			t.Fatalf("\t%s\tShould be able to submit transaction: %s", failed, err)
		}

		w := worker.Run(st, ev)

		select {
		case <-powStarted:
		case <-time.After(10 * time.Second):
			t.Fatalf("\t%s\tShould start mining in time.", failed)
		}
		t.Logf("\t%s\tShould start mining.", success)

		if err := st.SubmitBlock(client, database.NewBlockData(block, nil)); err != nil {
			t.Fatalf("\t%s\tShould accept the competing block: %s", failed, err)
		}
		t.Logf("\t%s\tShould accept the competing block.", success)

		resume()

		select {
		case <-cancelled:
		case <-time.After(10 * time.Second):
			t.Fatalf("\t%s\tShould cancel the mining operation in time.", failed)
		}
		t.Logf("\t%s\tShould cancel the mining operation.", success)

		if stats := w.Stats(); stats.Cancelled != 1 || stats.Mined != 0 || stats.Failed != 0 {
			t.Fatalf("\t%s\tShould count one cancelled operation: %+v", failed, stats)
		}
		t.Logf("\t%s\tShould count one cancelled operation.", success)

		latest := st.RetrieveLatestBlock()
		if latest.Header.Number != 1 || latest.Hash() != block.Hash() {
			t.Fatalf("\t%s\tShould keep the competing block as the head: %d", failed, latest.Header.Number)
		}
		t.Logf("\t%s\tShould keep the competing block as the head.", success)

		if acc, err := st.QueryAccount(beneficiary); err != nil || acc.Grok == 0 {
			t.Fatalf("\t%s\tShould credit the competing miner: %v", failed, err)
		}
		t.Logf("\t%s\tShould credit the competing miner.", success)
	}
}
