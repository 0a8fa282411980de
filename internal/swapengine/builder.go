package swapengine

import (
	"context"
	"fmt"
	"time"

	"github.com/aman-zulfiqar/crosschain-swap/internal/chain"
	"github.com/aman-zulfiqar/crosschain-swap/internal/models"
	"github.com/aman-zulfiqar/crosschain-swap/internal/vault"
	"github.com/sirupsen/logrus"
)

// BuilderConfig wires the per-chain clients the builder needs.
type BuilderConfig struct {
	Chains     *chain.Registry
	EVMClients map[int64]EVMClient
	SolanaRPC  SolanaRPC
	// TokenAccounts defaults to DefaultTokenAccountResolver over SolanaRPC.
	TokenAccounts TokenAccountResolver

	ApprovalTimeout      time.Duration
	ApprovalPollInterval time.Duration
	BlockhashCommitment  string

	Logger *logrus.Logger
}

// Builder turns a quote into signed transaction bytes for the quote's
// origin chain.
type Builder struct {
	chains *chain.Registry
	evm    *evmBuilder
	solana *solanaBuilder
}

func NewBuilder(cfg BuilderConfig) *Builder {
	if cfg.Chains == nil {
		cfg.Chains = chain.MustDefaultRegistry()
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.ApprovalTimeout <= 0 {
		cfg.ApprovalTimeout = 3 * time.Minute
	}
	if cfg.ApprovalPollInterval <= 0 {
		cfg.ApprovalPollInterval = 2 * time.Second
	}
	if cfg.BlockhashCommitment == "" {
		cfg.BlockhashCommitment = "confirmed"
	}

	b := &Builder{
		chains: cfg.Chains,
		evm: &evmBuilder{
			clients:         cfg.EVMClients,
			approvalTimeout: cfg.ApprovalTimeout,
			receiptPoll:     cfg.ApprovalPollInterval,
			logger:          cfg.Logger,
		},
	}
	if cfg.SolanaRPC != nil {
		accounts := cfg.TokenAccounts
		if accounts == nil {
			accounts = NewDefaultTokenAccountResolver(cfg.SolanaRPC, cfg.BlockhashCommitment)
		}
		b.solana = &solanaBuilder{
			rpc:        cfg.SolanaRPC,
			accounts:   accounts,
			commitment: cfg.BlockhashCommitment,
			logger:     cfg.Logger,
		}
	}
	return b
}

// BuildAndSign signs the quote's transaction with the origin chain's key.
// keys is wiped before returning on every path.
func (b *Builder) BuildAndSign(ctx context.Context, q *models.Quote, keys *vault.Keys) (*models.SignedExecution, error) {
	defer keys.Wipe()

	if q == nil {
		return nil, ErrMissingTransactionData
	}
	ch, ok := b.chains.ByID(q.FromChain)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedChain, q.FromChain)
	}
	if keys == nil {
		return nil, fmt.Errorf("%w: %s", vault.ErrUnavailable, ch.WalletKey())
	}
	key, err := keys.For(ch.WalletKey())
	if err != nil {
		return nil, err
	}

	switch ch.Kind {
	case chain.KindEVM:
		return b.evm.build(ctx, ch, q, key)
	case chain.KindAccountModel:
		if b.solana == nil {
			return nil, fmt.Errorf("%w: no Solana RPC configured", ErrUnsupportedChain)
		}
		return b.solana.build(ctx, ch, q, key)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedChain, ch.Kind)
}
