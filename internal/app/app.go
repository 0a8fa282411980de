// Package app wires the swap services from configuration. Both the API
// server and the command line client build on it.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/aman-zulfiqar/crosschain-swap/internal/aggregator"
	"github.com/aman-zulfiqar/crosschain-swap/internal/ai"
	"github.com/aman-zulfiqar/crosschain-swap/internal/broadcast"
	"github.com/aman-zulfiqar/crosschain-swap/internal/cache"
	"github.com/aman-zulfiqar/crosschain-swap/internal/chain"
	"github.com/aman-zulfiqar/crosschain-swap/internal/config"
	"github.com/aman-zulfiqar/crosschain-swap/internal/flags"
	"github.com/aman-zulfiqar/crosschain-swap/internal/rpc"
	"github.com/aman-zulfiqar/crosschain-swap/internal/settlement"
	"github.com/aman-zulfiqar/crosschain-swap/internal/storage"
	"github.com/aman-zulfiqar/crosschain-swap/internal/storage/memory"
	"github.com/aman-zulfiqar/crosschain-swap/internal/storage/postgres"
	"github.com/aman-zulfiqar/crosschain-swap/internal/swapengine"
	"github.com/aman-zulfiqar/crosschain-swap/internal/vault"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// App holds every long-lived service. Optional parts are nil when their
// backing store is not configured.
type App struct {
	Config *config.Config
	Logger *logrus.Logger

	Chains     *chain.Registry
	Aggregator *aggregator.Client
	Catalog    *aggregator.Catalog
	Vault      *vault.Vault
	Ledger     storage.SwapLedger
	Assets     storage.AssetRegistry
	Tracker    *settlement.Tracker
	Engine     *swapengine.Engine

	Redis   *redis.Client        // nil without REDIS_ADDR
	PubSub  *cache.PubSubManager // nil without REDIS_ADDR
	Flags   *flags.Store         // nil without REDIS_ADDR
	Archive *cache.OutcomeArchive
	Agent   *ai.Agent
	AIBase  ai.AgentConfig

	closers []func() error
}

// New connects to every configured backend. On error, anything opened so
// far is closed.
func New(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (_ *App, err error) {
	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.Chains, err = chain.NewRegistry(chain.Defaults(), cfg.RPCOverrides)
	if err != nil {
		return nil, err
	}

	a.Aggregator = aggregator.NewClient(aggregator.ClientConfig{
		BaseURL: cfg.AggregatorBaseURL,
		APIKey:  cfg.AggregatorAPIKey,
		Timeout: cfg.QuoteTimeout,
		Logger:  logger,
	})
	a.Catalog = aggregator.NewCatalog(a.Aggregator)

	if cfg.RedisAddr != "" {
		a.Redis, err = cache.NewRedisClient(ctx, cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, a.Redis.Close)
		a.PubSub = cache.NewPubSubManager(a.Redis, logger)
		if a.Flags, err = flags.NewStore(a.Redis); err != nil {
			return nil, err
		}
	}

	if err := a.openVault(); err != nil {
		return nil, err
	}
	if err := a.openLedger(ctx); err != nil {
		return nil, err
	}

	builder, sender, err := a.chainClients(ctx)
	if err != nil {
		return nil, err
	}

	var balances storage.BalanceRefresher = memory.NopRefresher{}
	var observers []storage.OutcomeObserver
	if a.PubSub != nil {
		balances = a.PubSub
		observers = append(observers, a.PubSub)
	}
	if cfg.ClickHouseAddr != "" {
		a.Archive, err = cache.NewOutcomeArchive(ctx, cache.ClickHouseConfig{
			Addr:     cfg.ClickHouseAddr,
			Database: cfg.ClickHouseDatabase,
			Username: cfg.ClickHouseUsername,
			Password: cfg.ClickHousePassword,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, a.Archive.Close)
		observers = append(observers, a.Archive)
	}

	a.Tracker, err = settlement.New(settlement.Config{
		Source:                 a.Aggregator,
		Ledger:                 a.Ledger,
		Assets:                 a.Assets,
		Balances:               balances,
		Observers:              observers,
		Interval:               cfg.PollInterval,
		PollTimeout:            cfg.PollTimeout,
		MaxConsecutiveFailures: cfg.MaxPollFailures,
		Logger:                 logger,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error { a.Tracker.Shutdown(); return nil })

	risk := swapengine.DefaultRiskConfig()
	risk.MaxSwapValueUSD = cfg.MaxSwapValueUSD
	risk.DailyLimitUSD = cfg.DailyLimitUSD
	if cfg.QuoteMaxAge > 0 {
		risk.QuoteMaxAge = cfg.QuoteMaxAge
	}

	engineCfg := swapengine.EngineConfig{
		Chains:  a.Chains,
		Vault:   a.Vault,
		Builder: builder,
		Sender:  sender,
		Ledger:  a.Ledger,
		Tracker: a.Tracker,
		Risk:    risk,
		Logger:  logger,
	}
	if a.Flags != nil {
		engineCfg.Gate = a.Flags
	}
	if a.Engine, err = swapengine.NewEngine(engineCfg); err != nil {
		return nil, err
	}

	a.AIBase = ai.AgentConfig{
		ClickHouseAddr:     cfg.ClickHouseAddr,
		ClickHouseDatabase: cfg.ClickHouseDatabase,
		ClickHouseUsername: cfg.ClickHouseUsername,
		ClickHousePassword: cfg.ClickHousePassword,
		OpenRouterAPIKey:   cfg.OpenRouterAPIKey,
		Model:              cfg.AIModel,
		Logger:             logger,
	}
	if cfg.OpenRouterAPIKey != "" {
		agent, err := ai.NewAgent(ctx, a.AIBase)
		if err != nil {
			logger.WithError(err).Warn("failed to initialize ai agent")
		} else {
			a.Agent = agent
			a.closers = append(a.closers, agent.Close)
		}
	}

	logger.WithFields(logrus.Fields{
		"ledger":     cfg.LedgerBackend,
		"redis":      a.Redis != nil,
		"archive":    a.Archive != nil,
		"ai":         a.Agent != nil,
		"aggregator": a.Aggregator.BaseURL,
	}).Info("services ready")
	return a, nil
}

// openVault keeps sealed keys in Redis when it is configured, otherwise in
// a local file.
func (a *App) openVault() error {
	var store vault.BlobStore = vault.NewFileStore(a.Config.VaultPath)
	if a.Redis != nil {
		store = cache.NewVaultStore(a.Redis)
	}
	v, err := vault.New(vault.Config{Store: store, Logger: a.Logger})
	if err != nil {
		return err
	}
	a.Vault = v
	return nil
}

func (a *App) openLedger(ctx context.Context) error {
	switch a.Config.LedgerBackend {
	case config.LedgerMemory:
		a.Ledger = memory.NewLedger()
		a.Assets = memory.NewAssets()
	case config.LedgerRedis:
		if a.Redis == nil {
			return errors.New("redis ledger requires REDIS_ADDR")
		}
		a.Ledger = cache.NewRedisLedger(a.Redis, a.Logger)
		a.Assets = cache.NewRedisAssets(a.Redis)
	case config.LedgerPostgres:
		db, err := postgres.NewDB(ctx, postgres.Config{URL: a.Config.PostgresURL})
		if err != nil {
			return err
		}
		a.closers = append(a.closers, db.Close)
		a.Ledger = postgres.NewLedger(db)
		a.Assets = postgres.NewAssets(db)
	default:
		return fmt.Errorf("unknown ledger backend %q", a.Config.LedgerBackend)
	}
	return nil
}

// chainClients dials one ethclient per EVM chain and one JSON-RPC client
// for Solana, then builds the transaction builder and broadcaster on them.
func (a *App) chainClients(ctx context.Context) (*swapengine.Builder, *broadcast.Broadcaster, error) {
	evmBuild := make(map[int64]swapengine.EVMClient)
	evmSend := make(map[int64]broadcast.EVMSender)
	var sol *rpc.Client

	for _, c := range a.Chains.All() {
		if c.RPCURL == "" {
			continue
		}
		if c.IsEVM() {
			client, err := ethclient.DialContext(ctx, c.RPCURL)
			if err != nil {
				return nil, nil, fmt.Errorf("dial %s: %w", c.Key, err)
			}
			a.closers = append(a.closers, func() error { client.Close(); return nil })
			evmBuild[c.ID] = client
			evmSend[c.ID] = client
			continue
		}
		if c.ID == chain.SolanaID {
			sol = rpc.NewClient(rpc.ClientConfig{
				BaseURL:      c.RPCURL,
				Timeout:      a.Config.RPCTimeout,
				MaxRetries:   a.Config.MaxRetries,
				RetryBackoff: a.Config.RetryBackoff,
				Logger:       a.Logger,
			})
		}
	}

	builderCfg := swapengine.BuilderConfig{
		Chains:              a.Chains,
		EVMClients:          evmBuild,
		ApprovalTimeout:     a.Config.ApprovalTimeout,
		BlockhashCommitment: a.Config.SolanaPreflightCommitment,
		Logger:              a.Logger,
	}
	sendOpts := rpc.DefaultSendOptions()
	sendOpts.PreflightCommitment = a.Config.SolanaPreflightCommitment
	broadcastCfg := broadcast.Config{
		Chains:   a.Chains,
		EVM:      evmSend,
		SendOpts: sendOpts,
		Logger:   a.Logger,
	}
	if sol != nil {
		builderCfg.SolanaRPC = sol
		broadcastCfg.Solana = sol
	}
	return swapengine.NewBuilder(builderCfg), broadcast.New(broadcastCfg), nil
}

// Close releases connections in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
