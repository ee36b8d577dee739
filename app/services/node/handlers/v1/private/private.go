// Package private maintains the group of handlers for miners and operators.
package private

import (
	"context"
	"net/http"

	"github.com/ardanlabs/grokchain/business/sys/validate"
	"github.com/ardanlabs/grokchain/business/web/errs"
	"github.com/ardanlabs/grokchain/foundation/blockchain/database"
	"github.com/ardanlabs/grokchain/foundation/blockchain/state"
	"github.com/ardanlabs/grokchain/foundation/nameservice"
	"github.com/ardanlabs/grokchain/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of private node endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	NS    *nameservice.NameService
}

// SubmitBlock takes a block mined outside the node, validates it and if
// that passes, adds the block to the local blockchain.
func (h Handlers) SubmitBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	identity := web.RemoteHost(r)

	// Decode the JSON in the post call into a block. A block that can't be
	// decoded still counts against the submitter.
	var blockData database.BlockData
	if err := web.Decode(r, &blockData); err != nil {
		if aerr := h.State.ReportMalformed(identity, err); aerr != nil {
			return errs.NewCore(aerr)
		}
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	// Ask the state package to validate the block. If the block passes
	// validation, it will be added to the blockchain database.
	h.Log.Infow("submit block", "traceid", v.TraceID, "identity", identity, "blk", blockData.Header.Number, "hash", blockData.Hash)
	if err := h.State.SubmitBlock(identity, blockData); err != nil {
		return errs.NewCore(err)
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "accepted",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// ReservePoH records the posted data into the proof of history and returns
// the entry a block can reference.
func (h Handlers) ReservePoH(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	identity := web.RemoteHost(r)

	var rp reservePoH
	if err := web.Decode(r, &rp); err != nil {
		if aerr := h.State.ReportMalformed(identity, err); aerr != nil {
			return errs.NewCore(aerr)
		}
		if validate.IsFieldErrors(err) {
			return err
		}
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	status, err := h.State.ReservePoH(identity, []byte(rp.Data))
	if err != nil {
		return errs.NewCore(err)
	}

	return web.Respond(ctx, w, status, http.StatusOK)
}

// Admission returns what admission control knows about the identity.
func (h Handlers) Admission(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	status, err := h.State.QueryAdmission(web.Param(r, "identity"))
	if err != nil {
		return errs.NewCore(err)
	}

	return web.Respond(ctx, w, status, http.StatusOK)
}

// Status returns the current status of the node.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	latestBlock := h.State.RetrieveLatestBlock()

	status := nodeStatus{
		Host:              h.State.RetrieveHost(),
		LatestBlockHash:   latestBlock.Hash(),
		LatestBlockNumber: latestBlock.Header.Number,
		Uncommitted:       h.State.QueryMempoolLength(),
		PoH:               h.State.QueryPoH(),
		Admission:         h.State.RetrieveAdmissionStats(),
	}

	return web.Respond(ctx, w, status, http.StatusOK)
}
