package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aman-zulfiqar/crosschain-swap/internal/models"
	"github.com/aman-zulfiqar/crosschain-swap/internal/storage"
	"github.com/aman-zulfiqar/crosschain-swap/internal/swapengine"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// ExecuteSwap signs and broadcasts a quote, then starts settlement tracking.
// The response is 202: the swap is PENDING until the tracker settles it.
func (h *Handlers) ExecuteSwap(c echo.Context) error {
	if h.Engine == nil {
		return h.err(c, http.StatusBadRequest, "execution is not configured", nil)
	}
	var req ExecuteRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	if req.Quote == nil {
		return h.err(c, http.StatusBadRequest, "quote is required", map[string]any{"quote": "required"})
	}
	if req.PIN == "" {
		return h.err(c, http.StatusBadRequest, "pin is required", map[string]any{"pin": "required"})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 4*time.Minute)
	defer cancel()

	start := time.Now()
	res, err := h.Engine.Execute(ctx, swapengine.ExecuteRequest{Quote: req.Quote, PIN: req.PIN})
	if err != nil {
		return h.err(c, executionStatus(err), swapengine.UserMessage(err), map[string]any{"err": err.Error()})
	}

	return c.JSON(http.StatusAccepted, ExecuteResponse{
		TxID:         res.TxID,
		ApprovalTxID: res.ApprovalTxID,
		Record:       res.Record,
		Tracking:     res.Handle != nil,
		TookMs:       time.Since(start).Milliseconds(),
	})
}

// CreateRecord stores a PENDING record directly, for swaps broadcast elsewhere.
func (h *Handlers) CreateRecord(c echo.Context) error {
	var rec models.SwapRecord
	if err := c.Bind(&rec); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	rec.TxID = strings.TrimSpace(rec.TxID)
	if rec.TxID == "" {
		return h.err(c, http.StatusBadRequest, "tx_id is required", map[string]any{"tx_id": "required"})
	}
	if rec.Status == "" {
		rec.Status = models.StatusPending
	}
	if rec.Status != models.StatusPending {
		return h.err(c, http.StatusBadRequest, "new records must be PENDING", map[string]any{"status": string(rec.Status)})
	}
	if _, ok := h.Chains.ByID(rec.FromChain); !ok {
		return h.err(c, http.StatusBadRequest, "invalid from_chain", nil)
	}
	if _, ok := h.Chains.ByID(rec.ToChain); !ok {
		return h.err(c, http.StatusBadRequest, "invalid to_chain", nil)
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	rec.CompletedAt = nil

	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Ledger.Create(ctx, &rec); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return h.err(c, http.StatusConflict, "record already exists", nil)
		}
		return h.err(c, http.StatusInternalServerError, "failed to create record", nil)
	}
	return c.JSON(http.StatusCreated, &rec)
}

// ListSwaps returns the most recent records.
// Accepts limit query parameter (default: 50, range: 1-200)
func (h *Handlers) ListSwaps(c echo.Context) error {
	limit := 50
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return h.err(c, http.StatusBadRequest, "invalid limit", map[string]any{"limit": "must be an integer"})
		}
		limit = n
	}
	if limit < 1 || limit > 200 {
		return h.err(c, http.StatusBadRequest, "invalid limit", map[string]any{"limit": "min 1 max 200"})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	items, err := h.Ledger.List(ctx, limit)
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to list swaps", nil)
	}
	if items == nil {
		items = []*models.SwapRecord{}
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

func (h *Handlers) loadRecord(c echo.Context) (*models.SwapRecord, error) {
	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	rec, err := h.Ledger.Get(ctx, c.Param("txid"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, h.err(c, http.StatusNotFound, "swap not found", nil)
		}
		return nil, h.err(c, http.StatusInternalServerError, "failed to get swap", nil)
	}
	return rec, nil
}

// GetSwap returns one record by origin transaction id.
func (h *Handlers) GetSwap(c echo.Context) error {
	rec, err := h.loadRecord(c)
	if rec == nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

// SetTerminal records a settlement observed outside the tracker.
func (h *Handlers) SetTerminal(c echo.Context) error {
	txID := c.Param("txid")
	var req TerminalRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	f := models.TerminalFields{
		Substatus:        req.Substatus,
		SubstatusMessage: req.SubstatusMessage,
		ReceivingTxID:    req.ReceivingTxID,
		ToAmount:         req.ToAmount,
		CompletedAt:      time.Now().UTC(),
	}
	if req.CompletedAt != nil {
		f.CompletedAt = req.CompletedAt.UTC()
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	applied, err := h.Ledger.UpdateTerminal(ctx, txID, req.Status, f)
	switch {
	case errors.Is(err, storage.ErrInvalidStatus):
		return h.err(c, http.StatusBadRequest, "status must be DONE or FAILED", nil)
	case errors.Is(err, storage.ErrNotFound):
		return h.err(c, http.StatusNotFound, "swap not found", nil)
	case errors.Is(err, storage.ErrTerminalConflict):
		return h.err(c, http.StatusConflict, "swap already settled with a different status", nil)
	case err != nil:
		return h.err(c, http.StatusInternalServerError, "failed to update swap", nil)
	}
	if applied {
		// A manual settlement supersedes any polling loop.
		h.Tracker.Cancel(txID)
	}

	rec, err := h.Ledger.Get(ctx, txID)
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to get swap", nil)
	}
	return c.JSON(http.StatusOK, TerminalResponse{Applied: applied, Record: rec})
}

// StartTracking starts (or joins) the polling loop for a PENDING record.
func (h *Handlers) StartTracking(c echo.Context) error {
	rec, err := h.loadRecord(c)
	if rec == nil {
		return err
	}
	if rec.Status.Terminal() {
		return h.err(c, http.StatusConflict, "swap already settled", map[string]any{"status": string(rec.Status)})
	}

	// The loop outlives this request.
	handle := h.Tracker.Track(context.WithoutCancel(c.Request().Context()), rec)
	h.Logger.WithField("tx_id", rec.TxID).Info("tracking requested")
	return c.JSON(http.StatusAccepted, TrackResponse{TxID: rec.TxID, State: string(handle.State()), Last: handle.Last()})
}

// TrackingState reports the polling loop for a transaction, if any.
func (h *Handlers) TrackingState(c echo.Context) error {
	txID := c.Param("txid")
	handle, ok := h.Tracker.Handle(txID)
	if !ok {
		return h.err(c, http.StatusNotFound, "not tracking", nil)
	}
	return c.JSON(http.StatusOK, TrackResponse{TxID: txID, State: string(handle.State()), Last: handle.Last()})
}

// StopTracking cancels the polling loop. The record stays PENDING.
func (h *Handlers) StopTracking(c echo.Context) error {
	if !h.Tracker.Cancel(c.Param("txid")) {
		return h.err(c, http.StatusNotFound, "not tracking", nil)
	}
	return c.NoContent(http.StatusNoContent)
}

// Reconcile resumes tracking for every PENDING record.
func (h *Handlers) Reconcile(c echo.Context) error {
	ctx, cancel := h.withTimeout(c.Request().Context(), 15*time.Second)
	defer cancel()

	n, err := h.Tracker.Reconcile(ctx)
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "reconcile failed", map[string]any{"err": err.Error()})
	}
	return c.JSON(http.StatusOK, ReconcileResponse{Resumed: n})
}

// ExplainSwap describes why a swap failed. Without an AI agent, or if the
// model call fails, the aggregator's own message is returned.
func (h *Handlers) ExplainSwap(c echo.Context) error {
	rec, err := h.loadRecord(c)
	if rec == nil {
		return err
	}
	if rec.Status != models.StatusFailed {
		return h.err(c, http.StatusConflict, "only failed swaps can be explained", map[string]any{"status": string(rec.Status)})
	}

	out := ExplainResponse{TxID: rec.TxID, Explanation: fallbackExplanation(rec)}
	if h.AI == nil {
		return c.JSON(http.StatusOK, out)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 30*time.Second)
	defer cancel()

	text, err := h.AI.ExplainFailure(ctx, rec)
	if err != nil {
		h.Logger.WithError(err).WithField("tx_id", rec.TxID).Warn("failure explanation unavailable")
		return c.JSON(http.StatusOK, out)
	}
	out.Explanation = text
	out.Generated = true
	return c.JSON(http.StatusOK, out)
}

func fallbackExplanation(rec *models.SwapRecord) string {
	switch {
	case rec.SubstatusMessage != "":
		return rec.SubstatusMessage + " Request a new quote to try again."
	case rec.Substatus != "":
		return "The swap failed (" + rec.Substatus + "). Request a new quote to try again."
	}
	return "The swap failed. Request a new quote to try again."
}

// AddAsset registers a token for local listing. 201 when newly added.
func (h *Handlers) AddAsset(c echo.Context) error {
	var req AssetRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	ch, err := h.Chains.Resolve(req.Chain)
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid chain", map[string]any{"chain": err.Error()})
	}
	req.Address = strings.TrimSpace(req.Address)
	if req.Address == "" {
		return h.err(c, http.StatusBadRequest, "address is required", map[string]any{"address": "required"})
	}
	if req.Decimals < 0 || req.Decimals > 36 {
		return h.err(c, http.StatusBadRequest, "invalid decimals", map[string]any{"decimals": "0..36"})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	asset := models.KnownAsset{
		ChainID:  ch.ID,
		Address:  req.Address,
		Symbol:   strings.TrimSpace(req.Symbol),
		Decimals: req.Decimals,
		AddedAt:  time.Now().UTC(),
	}
	added, err := h.Assets.Add(ctx, asset)
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to add asset", nil)
	}
	code := http.StatusOK
	if added {
		code = http.StatusCreated
		h.Logger.WithFields(logrus.Fields{"chain": ch.Key, "address": asset.Address}).Info("asset registered")
	}
	return c.JSON(code, map[string]any{"added": added, "asset": asset})
}

// ListAssets returns registered tokens on a chain.
func (h *Handlers) ListAssets(c echo.Context) error {
	ch, err := h.chainParam(c, "chain")
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid chain", map[string]any{"chain": err.Error()})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	items, err := h.Assets.List(ctx, ch.ID)
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to list assets", nil)
	}
	if items == nil {
		items = []models.KnownAsset{}
	}
	return c.JSON(http.StatusOK, map[string]any{"chain": ch.Key, "items": items})
}
