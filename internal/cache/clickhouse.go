package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/aman-zulfiqar/crosschain-swap/internal/models"
	"github.com/aman-zulfiqar/crosschain-swap/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// ClickHouseConfig holds connection settings for the settlement archive.
type ClickHouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string
	Logger   *logrus.Logger
}

// OutcomeArchive appends one row per settled swap for analytics.
type OutcomeArchive struct {
	conn   driver.Conn
	db     string
	logger *logrus.Logger
}

func NewOutcomeArchive(ctx context.Context, cfg ClickHouseConfig) (*OutcomeArchive, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Database == "" {
		cfg.Database = "crosschain"
	}
	if cfg.Username == "" {
		cfg.Username = "default"
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	a := &OutcomeArchive{conn: conn, db: cfg.Database, logger: cfg.Logger}
	if err := a.ensureSchema(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	cfg.Logger.WithFields(logrus.Fields{"addr": cfg.Addr, "database": cfg.Database}).Info("connected to ClickHouse")
	return a, nil
}

func (a *OutcomeArchive) ensureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.swap_outcomes (
			tx_id             String,
			status            LowCardinality(String),
			substatus         String,
			substatus_message String,
			from_chain        Int64,
			to_chain          Int64,
			from_symbol       String,
			to_symbol         String,
			from_amount       Float64,
			to_amount         Float64,
			value_usd         Float64,
			receiving_tx_id   String,
			duration_seconds  Int64,
			created_at        DateTime,
			completed_at      DateTime
		) ENGINE = ReplacingMergeTree
		ORDER BY (tx_id)
	`, a.db)
	if err := a.conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create swap_outcomes: %w", err)
	}
	return nil
}

// OnSettled implements storage.OutcomeObserver.
func (a *OutcomeArchive) OnSettled(ctx context.Context, rec *models.SwapRecord) error {
	completed := rec.UpdatedAt
	if rec.CompletedAt != nil {
		completed = *rec.CompletedAt
	}
	query := `
		INSERT INTO swap_outcomes (
			tx_id, status, substatus, substatus_message, from_chain, to_chain,
			from_symbol, to_symbol, from_amount, to_amount, value_usd,
			receiving_tx_id, duration_seconds, created_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	valueUSD, _ := rec.FromToken.ValueUSD(rec.FromAmount).Float64()
	err := a.conn.Exec(ctx, query,
		rec.TxID,
		string(rec.Status),
		rec.Substatus,
		rec.SubstatusMessage,
		rec.FromChain,
		rec.ToChain,
		rec.FromToken.Symbol,
		rec.ToToken.Symbol,
		humanAmount(rec.FromToken, rec.FromAmount),
		humanAmount(rec.ToToken, rec.ToAmount),
		valueUSD,
		rec.ReceivingTxID,
		int64(completed.Sub(rec.CreatedAt).Seconds()),
		rec.CreatedAt,
		completed,
	)
	if err != nil {
		return fmt.Errorf("failed to archive swap outcome: %w", err)
	}
	return nil
}

func (a *OutcomeArchive) Close() error { return a.conn.Close() }

func humanAmount(t models.Token, amount string) float64 {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return 0
	}
	f, _ := d.Shift(-t.Decimals).Float64()
	return f
}

var _ storage.OutcomeObserver = (*OutcomeArchive)(nil)
