// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ardanlabs/grokchain/business/sys/validate"
	"github.com/ardanlabs/grokchain/business/web/errs"
	"github.com/ardanlabs/grokchain/foundation/blockchain/database"
	"github.com/ardanlabs/grokchain/foundation/blockchain/ledger"
	"github.com/ardanlabs/grokchain/foundation/blockchain/state"
	"github.com/ardanlabs/grokchain/foundation/events"
	"github.com/ardanlabs/grokchain/foundation/nameservice"
	"github.com/ardanlabs/grokchain/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handlers manages the set of public node endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	NS    *nameservice.NameService
	WS    websocket.Upgrader
	Evts  *events.Events
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// SubmitTransaction adds a new wallet transaction to the mempool. The remote
// host of the request is the identity held to admission control.
func (h Handlers) SubmitTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	identity := web.RemoteHost(r)

	var st submitTx
	if err := web.Decode(r, &st); err != nil {
		if aerr := h.State.ReportMalformed(identity, err); aerr != nil {
			return errs.NewCore(aerr)
		}
		if validate.IsFieldErrors(err) {
			return err
		}
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	signedTx := st.toSignedTx()

	h.Log.Infow("submit tran", "traceid", v.TraceID, "identity", identity, "from:id", signedTx, "to", signedTx.ToID, "value", signedTx.Value)
	if err := h.State.SubmitTransaction(identity, signedTx); err != nil {
		return errs.NewCore(err)
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "transaction added to mempool",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Genesis returns the genesis information.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	gen := h.State.RetrieveGenesis()
	return web.Respond(ctx, w, gen, http.StatusOK)
}

// Accounts returns the current balances for all accounts, or for the
// account in the path.
func (h Handlers) Accounts(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var accounts map[database.AccountID]ledger.Account

	switch account := web.Param(r, "account"); account {
	case "":
		accounts = h.State.QueryAccounts()

	default:
		if err := validate.Check(accountParam{Account: account}); err != nil {
			return err
		}

		info, err := h.State.QueryAccount(database.AccountID(account))
		if err != nil {
			return errs.NewCore(err)
		}
		accounts = map[database.AccountID]ledger.Account{info.AccountID: info}
	}

	acts := make([]act, 0, len(accounts))
	for accountID, info := range accounts {
		acts = append(acts, act{
			Account: accountID,
			Name:    h.NS.Lookup(accountID),
			Balance: info.Balance,
			Grok:    info.Grok,
		})
	}

	ai := actInfo{
		LatestBlock: h.State.RetrieveLatestBlock().Hash(),
		Uncommitted: h.State.QueryMempoolLength(),
		Accounts:    acts,
	}

	return web.Respond(ctx, w, ai, http.StatusOK)
}

// BlocksByNumber returns the blocks between the from and to numbers, both
// included. The word latest can be used for either.
func (h Handlers) BlocksByNumber(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	from, err := blockNumber(web.Param(r, "from"))
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	to, err := blockNumber(web.Param(r, "to"))
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	if from != state.QueryLatest && to != state.QueryLatest && from > to {
		return errs.NewTrusted(errors.New("from greater than to"), http.StatusBadRequest)
	}

	blocks := h.State.QueryBlocksByNumber(from, to)
	if len(blocks) == 0 {
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}

	return web.Respond(ctx, w, h.toBlocks(blocks), http.StatusOK)
}

// BlocksByAccount returns the blocks that carry transactions for the
// account or were mined for it.
func (h Handlers) BlocksByAccount(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	account := web.Param(r, "account")
	if err := validate.Check(accountParam{Account: account}); err != nil {
		return err
	}

	blocks, err := h.State.QueryBlocksByAccount(database.AccountID(account))
	if err != nil {
		return errs.NewCore(err)
	}

	if len(blocks) == 0 {
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}

	return web.Respond(ctx, w, h.toBlocks(blocks), http.StatusOK)
}

// Mempool returns the set of uncommitted transactions in arrival order.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	acct := database.AccountID(web.Param(r, "account"))

	mempool := h.State.RetrieveMempool()

	trans := make([]tx, 0, len(mempool))
	for _, tran := range mempool {
		if acct != "" && acct != tran.FromID && acct != tran.ToID {
			continue
		}
		trans = append(trans, h.toTx(tran))
	}

	return web.Respond(ctx, w, trans, http.StatusOK)
}

// PoH returns the head of the proof of history sequence.
func (h Handlers) PoH(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.QueryPoH(), http.StatusOK)
}

// =============================================================================

func (h Handlers) toTx(tran database.BlockTx) tx {
	return tx{
		FromAccount: tran.FromID,
		FromName:    h.NS.Lookup(tran.FromID),
		To:          tran.ToID,
		ToName:      h.NS.Lookup(tran.ToID),
		ID:          tran.ID,
		Value:       tran.Value,
		Fee:         tran.Fee,
		TimeStamp:   tran.TimeStamp,
		Sig:         tran.SignatureString(),
	}
}

func (h Handlers) toBlocks(dbBlocks []database.BlockData) []block {
	blocks := make([]block, len(dbBlocks))
	for j, blk := range dbBlocks {
		trans := make([]tx, len(blk.Trans))
		for i, tran := range blk.Trans {
			trans[i] = h.toTx(tran)
		}

		blocks[j] = block{
			Hash:          blk.Hash,
			Number:        blk.Header.Number,
			PrevBlockHash: blk.Header.PrevBlockHash,
			TimeStamp:     blk.Header.TimeStamp,
			Nonce:         blk.Header.Nonce,
			Difficulty:    blk.Header.Difficulty,
			BeneficiaryID: blk.Header.BeneficiaryID,
			Beneficiary:   h.NS.Lookup(blk.Header.BeneficiaryID),
			MinerIdentity: blk.Header.MinerIdentity,
			PoHIndex:      blk.Header.PoHIndex,
			PoHHash:       blk.Header.PoHHash,
			Fees:          blk.Header.Fees,
			TransHash:     blk.Header.TransHash,
			Transactions:  trans,
		}
	}

	return blocks
}

func blockNumber(param string) (uint64, error) {
	if param == "latest" || param == "" {
		return state.QueryLatest, nil
	}

	num, err := strconv.ParseUint(param, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid block number %q: %w", param, err)
	}

	return num, nil
}
