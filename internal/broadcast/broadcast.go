package broadcast

import (
	"context"
	"errors"
	"fmt"

	"github.com/aman-zulfiqar/crosschain-swap/internal/chain"
	"github.com/aman-zulfiqar/crosschain-swap/internal/metrics"
	"github.com/aman-zulfiqar/crosschain-swap/internal/rpc"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
)

var (
	// ErrSubmissionFailed covers transport failures and node-side refusals
	// that are not a simulation verdict. Resubmitting the same bytes is safe.
	ErrSubmissionFailed = errors.New("broadcast: submission failed")
	// ErrRejected matches any *RejectedError.
	ErrRejected = errors.New("broadcast: rejected by preflight")
)

// RejectedError means the chain's preflight simulation refused the
// transaction. It must not be retried as-is.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string { return "broadcast: rejected: " + e.Reason }

func (e *RejectedError) Is(target error) bool { return target == ErrRejected }

// EVMSender is the part of an EVM client needed to submit.
type EVMSender interface {
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// SolanaSender submits serialized account-model transactions.
type SolanaSender interface {
	SendTransaction(ctx context.Context, raw []byte, opts *rpc.SendOptions) (string, error)
}

type Config struct {
	Chains   *chain.Registry
	EVM      map[int64]EVMSender
	Solana   SolanaSender
	SendOpts rpc.SendOptions
	Logger   *logrus.Logger
}

// Broadcaster submits signed transactions. It does not deduplicate.
type Broadcaster struct {
	chains   *chain.Registry
	evm      map[int64]EVMSender
	solana   SolanaSender
	sendOpts rpc.SendOptions
	logger   *logrus.Logger
}

func New(cfg Config) *Broadcaster {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.SendOpts.PreflightCommitment == "" {
		cfg.SendOpts = rpc.DefaultSendOptions()
	}
	// Preflight is what turns a doomed transaction into a RejectedError.
	cfg.SendOpts.SkipPreflight = false
	return &Broadcaster{
		chains:   cfg.Chains,
		evm:      cfg.EVM,
		solana:   cfg.Solana,
		sendOpts: cfg.SendOpts,
		logger:   cfg.Logger,
	}
}

// Submit sends raw to chainID and returns the chain's transaction id.
func (b *Broadcaster) Submit(ctx context.Context, chainID int64, raw []byte) (string, error) {
	ch, ok := b.chains.ByID(chainID)
	if !ok {
		return "", fmt.Errorf("%w: unknown chain %d", ErrSubmissionFailed, chainID)
	}
	label := ch.Key

	var (
		txID string
		err  error
	)
	switch ch.Kind {
	case chain.KindEVM:
		txID, err = b.submitEVM(ctx, chainID, raw)
	case chain.KindAccountModel:
		txID, err = b.submitSolana(ctx, raw)
	default:
		err = fmt.Errorf("%w: unsupported chain kind %s", ErrSubmissionFailed, ch.Kind)
	}

	log := b.logger.WithFields(logrus.Fields{"chain": label, "bytes": len(raw)})
	if err != nil {
		outcome := "failed"
		if errors.Is(err, ErrRejected) {
			outcome = "rejected"
		}
		metrics.BroadcastsTotal.WithLabelValues(label, outcome).Inc()
		log.WithError(err).Warn("broadcast failed")
		return "", err
	}
	metrics.BroadcastsTotal.WithLabelValues(label, "ok").Inc()
	log.WithField("tx_id", txID).Info("transaction broadcast")
	return txID, nil
}

func (b *Broadcaster) submitEVM(ctx context.Context, chainID int64, raw []byte) (string, error) {
	client, ok := b.evm[chainID]
	if !ok {
		return "", fmt.Errorf("%w: no client for chain %d", ErrSubmissionFailed, chainID)
	}
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return "", fmt.Errorf("%w: decode: %v", ErrSubmissionFailed, err)
	}
	if err := client.SendTransaction(ctx, tx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}
	return tx.Hash().Hex(), nil
}

func (b *Broadcaster) submitSolana(ctx context.Context, raw []byte) (string, error) {
	if b.solana == nil {
		return "", fmt.Errorf("%w: no account-model client configured", ErrSubmissionFailed)
	}
	opts := b.sendOpts
	sig, err := b.solana.SendTransaction(ctx, raw, &opts)
	if err != nil {
		var rpcErr *rpc.RPCError
		if errors.As(err, &rpcErr) {
			return "", &RejectedError{Reason: rpcErr.Message}
		}
		return "", fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}
	return sig, nil
}
