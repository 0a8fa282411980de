package swapengine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aman-zulfiqar/crosschain-swap/internal/chain"
	"github.com/aman-zulfiqar/crosschain-swap/internal/models"
	"github.com/aman-zulfiqar/crosschain-swap/internal/settlement"
	"github.com/aman-zulfiqar/crosschain-swap/internal/storage"
	"github.com/aman-zulfiqar/crosschain-swap/internal/vault"
	"github.com/sirupsen/logrus"
)

// Unlocker exchanges a PIN for per-chain key material.
type Unlocker interface {
	Unlock(ctx context.Context, pin string) (*vault.Keys, error)
}

// Signer produces signed transaction bytes and wipes keys when done.
type Signer interface {
	BuildAndSign(ctx context.Context, q *models.Quote, keys *vault.Keys) (*models.SignedExecution, error)
}

// Submitter broadcasts signed bytes to a chain.
type Submitter interface {
	Submit(ctx context.Context, chainID int64, raw []byte) (string, error)
}

// SwapTracker starts settlement polling for a PENDING record.
type SwapTracker interface {
	Track(ctx context.Context, rec *models.SwapRecord) *settlement.Handle
}

// ChainGate reports whether execution on a chain is switched on.
type ChainGate interface {
	Allowed(ctx context.Context, chainKey string) (bool, error)
}

// EngineConfig holds the collaborators of the execution path. Gate is optional.
type EngineConfig struct {
	Chains  *chain.Registry
	Vault   Unlocker
	Builder Signer
	Sender  Submitter
	Ledger  storage.SwapLedger
	Tracker SwapTracker
	Gate    ChainGate
	Risk    RiskConfig
	Logger  *logrus.Logger
}

// Engine is the main orchestrator for swap operations
type Engine struct {
	chains  *chain.Registry
	vault   Unlocker
	builder Signer
	sender  Submitter
	ledger  storage.SwapLedger
	tracker SwapTracker
	gate    ChainGate
	risk    *RiskManager
	logger  *logrus.Logger
	now     func() time.Time
}

// NewEngine creates a new swap engine with all dependencies
func NewEngine(cfg EngineConfig) (*Engine, error) {
	switch {
	case cfg.Vault == nil:
		return nil, errors.New("swapengine: vault is required")
	case cfg.Builder == nil:
		return nil, errors.New("swapengine: builder is required")
	case cfg.Sender == nil:
		return nil, errors.New("swapengine: broadcaster is required")
	case cfg.Ledger == nil:
		return nil, errors.New("swapengine: ledger is required")
	case cfg.Tracker == nil:
		return nil, errors.New("swapengine: tracker is required")
	}
	if cfg.Chains == nil {
		cfg.Chains = chain.MustDefaultRegistry()
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Engine{
		chains:  cfg.Chains,
		vault:   cfg.Vault,
		builder: cfg.Builder,
		sender:  cfg.Sender,
		ledger:  cfg.Ledger,
		tracker: cfg.Tracker,
		gate:    cfg.Gate,
		risk:    NewRiskManager(cfg.Risk),
		logger:  cfg.Logger,
		now:     time.Now,
	}, nil
}

// Execute runs one confirmed quote end to end: gate and risk checks,
// unlock, build and sign, broadcast, PENDING record, tracking.
//
// Once Submit succeeds the swap is live, so later failures are logged
// and reported through ExecuteResult rather than returned as errors.
func (e *Engine) Execute(ctx context.Context, req ExecuteRequest) (*ExecuteResult, error) {
	q := req.Quote
	if q == nil {
		return nil, ErrMissingTransactionData
	}
	res := &ExecuteResult{StartedAt: e.now().UTC()}

	if err := e.precheck(ctx, q); err != nil {
		return nil, err
	}

	log := e.logger.WithFields(logrus.Fields{
		"quote_id":   q.ID,
		"from_chain": q.FromChain,
		"to_chain":   q.ToChain,
		"from_token": q.FromToken.Symbol,
		"to_token":   q.ToToken.Symbol,
		"amount":     q.FromAmount,
	})

	keys, err := e.vault.Unlock(ctx, req.PIN)
	if err != nil {
		log.WithError(err).Warn("vault unlock failed")
		return nil, err
	}

	signed, err := e.builder.BuildAndSign(ctx, q, keys)
	if err != nil {
		log.WithError(err).Warn("build failed")
		return nil, err
	}
	res.ApprovalTxID = signed.ApprovalTxID
	res.SignedAt = e.now().UTC()

	txID, err := e.sender.Submit(ctx, signed.ChainID, signed.Raw)
	if err != nil {
		return nil, err
	}
	if txID == "" {
		txID = signed.TxID
	}
	res.TxID = txID
	res.BroadcastAt = e.now().UTC()
	e.risk.RecordSwap(q)

	rec := models.NewPendingRecord(txID, q, res.BroadcastAt)
	log = log.WithField("tx_id", txID)

	// The request context may end as soon as we return.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := e.ledger.Create(persistCtx, rec); err != nil && !errors.Is(err, storage.ErrDuplicate) {
		log.WithError(err).Error("swap broadcast but ledger write failed; not tracking")
		res.Record = rec
		return res, nil
	}

	res.Handle = e.tracker.Track(context.WithoutCancel(ctx), rec)
	res.Record = rec
	log.Info("swap broadcast, tracking settlement")
	return res, nil
}

// CheckRisk evaluates a quote without executing it.
func (e *Engine) CheckRisk(q *models.Quote) *RiskCheckResult {
	return e.risk.CheckQuote(q)
}

// RiskStatus returns current risk limits and usage.
func (e *Engine) RiskStatus() RiskStatus {
	return e.risk.Status()
}

func (e *Engine) precheck(ctx context.Context, q *models.Quote) error {
	if err := q.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrQuoteRejected, err)
	}
	ch, ok := e.chains.ByID(q.FromChain)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnsupportedChain, q.FromChain)
	}
	if _, ok := e.chains.ByID(q.ToChain); !ok {
		return fmt.Errorf("%w: %d", ErrUnsupportedChain, q.ToChain)
	}

	if e.gate != nil {
		allowed, err := e.gate.Allowed(ctx, ch.Key)
		if err != nil {
			// Fail closed: an unreadable pause flag blocks execution.
			return fmt.Errorf("%w: %s: flag lookup: %v", ErrChainPaused, ch.Key, err)
		}
		if !allowed {
			return fmt.Errorf("%w: %s", ErrChainPaused, ch.Key)
		}
	}

	if check := e.risk.CheckQuote(q); !check.Allowed {
		e.logger.WithFields(logrus.Fields{"quote_id": q.ID, "reason": check.Reason}).Warn("quote rejected by risk check")
		return fmt.Errorf("%w: %s", ErrQuoteRejected, check.Reason)
	}
	return nil
}
