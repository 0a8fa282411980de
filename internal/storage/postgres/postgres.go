// Package postgres is the PostgreSQL-backed swap ledger and asset registry.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aman-zulfiqar/crosschain-swap/internal/models"
	"github.com/aman-zulfiqar/crosschain-swap/internal/storage"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

const uniqueViolation = "23505"

// Config holds PostgreSQL connection configuration.
type Config struct {
	URL      string
	MaxConns int
	MinConns int
}

// DB wraps the PostgreSQL connection.
type DB struct {
	*sqlx.DB
}

// NewDB opens the pool, pings it and applies migrations.
func NewDB(ctx context.Context, cfg Config) (*DB, error) {
	db, err := sqlx.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	} else {
		db.SetMaxOpenConns(10)
	}
	if cfg.MinConns > 0 {
		db.SetMaxIdleConns(cfg.MinConns)
	} else {
		db.SetMaxIdleConns(2)
	}
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := migrate(db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &DB{DB: db}, nil
}

func migrate(db *sql.DB) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

type swapRow struct {
	TxID             string       `db:"tx_id"`
	FromChain        int64        `db:"from_chain"`
	ToChain          int64        `db:"to_chain"`
	FromToken        []byte       `db:"from_token"`
	ToToken          []byte       `db:"to_token"`
	FromAmount       string       `db:"from_amount"`
	ToAmount         string       `db:"to_amount"`
	Status           string       `db:"status"`
	Substatus        string       `db:"substatus"`
	SubstatusMessage string       `db:"substatus_message"`
	ReceivingTxID    string       `db:"receiving_tx_id"`
	CreatedAt        time.Time    `db:"created_at"`
	UpdatedAt        time.Time    `db:"updated_at"`
	CompletedAt      sql.NullTime `db:"completed_at"`
}

func (r swapRow) record() (*models.SwapRecord, error) {
	rec := &models.SwapRecord{
		TxID:             r.TxID,
		FromChain:        r.FromChain,
		ToChain:          r.ToChain,
		FromAmount:       r.FromAmount,
		ToAmount:         r.ToAmount,
		Status:           models.Status(r.Status),
		Substatus:        r.Substatus,
		SubstatusMessage: r.SubstatusMessage,
		ReceivingTxID:    r.ReceivingTxID,
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
	}
	if r.CompletedAt.Valid {
		t := r.CompletedAt.Time.UTC()
		rec.CompletedAt = &t
	}
	if err := json.Unmarshal(r.FromToken, &rec.FromToken); err != nil {
		return nil, fmt.Errorf("decode from_token for %s: %w", r.TxID, err)
	}
	if err := json.Unmarshal(r.ToToken, &rec.ToToken); err != nil {
		return nil, fmt.Errorf("decode to_token for %s: %w", r.TxID, err)
	}
	return rec, nil
}

const swapColumns = `tx_id, from_chain, to_chain, from_token, to_token, from_amount, to_amount, status,
	substatus, substatus_message, receiving_tx_id, created_at, updated_at, completed_at`

// Ledger implements storage.SwapLedger.
type Ledger struct {
	db  *DB
	now func() time.Time
}

func NewLedger(db *DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

func (l *Ledger) Create(ctx context.Context, rec *models.SwapRecord) error {
	from, err := json.Marshal(rec.FromToken)
	if err != nil {
		return fmt.Errorf("encode from_token: %w", err)
	}
	to, err := json.Marshal(rec.ToToken)
	if err != nil {
		return fmt.Errorf("encode to_token: %w", err)
	}

	query := `
		INSERT INTO swaps (` + swapColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	var completed sql.NullTime
	if rec.CompletedAt != nil {
		completed = sql.NullTime{Time: *rec.CompletedAt, Valid: true}
	}
	_, err = l.db.ExecContext(ctx, query,
		rec.TxID, rec.FromChain, rec.ToChain, from, to, rec.FromAmount, rec.ToAmount, string(rec.Status),
		rec.Substatus, rec.SubstatusMessage, rec.ReceivingTxID, rec.CreatedAt, rec.UpdatedAt, completed,
	)
	if isUniqueViolation(err) {
		return storage.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert swap: %w", err)
	}
	return nil
}

func (l *Ledger) Get(ctx context.Context, txID string) (*models.SwapRecord, error) {
	var row swapRow
	err := l.db.GetContext(ctx, &row, `SELECT `+swapColumns+` FROM swaps WHERE tx_id = $1`, txID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get swap: %w", err)
	}
	return row.record()
}

func (l *Ledger) UpdatePending(ctx context.Context, txID, substatus, message string) error {
	res, err := l.db.ExecContext(ctx, `
		UPDATE swaps SET substatus = $2, substatus_message = $3, updated_at = $4
		WHERE tx_id = $1 AND status = 'PENDING'
	`, txID, substatus, message, l.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update pending swap: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := l.status(ctx, txID); err != nil {
			return err
		}
	}
	return nil
}

func (l *Ledger) UpdateTerminal(ctx context.Context, txID string, status models.Status, f models.TerminalFields) (bool, error) {
	if !status.Terminal() {
		return false, storage.ErrInvalidStatus
	}
	now := l.now().UTC()
	completed := f.CompletedAt
	if completed.IsZero() {
		completed = now
	}

	// The status guard makes the transition atomic: exactly one caller
	// observes a changed row.
	res, err := l.db.ExecContext(ctx, `
		UPDATE swaps SET
			status = $2,
			substatus = $3,
			substatus_message = $4,
			receiving_tx_id = $5,
			to_amount = COALESCE(NULLIF($6, ''), to_amount),
			updated_at = $7,
			completed_at = $8
		WHERE tx_id = $1 AND status = 'PENDING'
	`, txID, string(status), f.Substatus, f.SubstatusMessage, f.ReceivingTxID, f.ToAmount, now, completed)
	if err != nil {
		return false, fmt.Errorf("failed to update terminal swap: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 1 {
		return true, nil
	}

	current, err := l.status(ctx, txID)
	if err != nil {
		return false, err
	}
	apply, err := storage.ValidateTerminal(current, status)
	if apply {
		// Row went back to PENDING between the two statements; not possible
		// through this ledger.
		return false, fmt.Errorf("swap %s changed concurrently", txID)
	}
	return false, err
}

func (l *Ledger) status(ctx context.Context, txID string) (models.Status, error) {
	var s string
	err := l.db.GetContext(ctx, &s, `SELECT status FROM swaps WHERE tx_id = $1`, txID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read swap status: %w", err)
	}
	return models.Status(s), nil
}

func (l *Ledger) List(ctx context.Context, limit int) ([]*models.SwapRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []swapRow
	err := l.db.SelectContext(ctx, &rows,
		`SELECT `+swapColumns+` FROM swaps ORDER BY created_at DESC, tx_id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list swaps: %w", err)
	}
	return records(rows)
}

func (l *Ledger) ListPending(ctx context.Context) ([]*models.SwapRecord, error) {
	var rows []swapRow
	err := l.db.SelectContext(ctx, &rows,
		`SELECT `+swapColumns+` FROM swaps WHERE status = 'PENDING' ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending swaps: %w", err)
	}
	return records(rows)
}

func records(rows []swapRow) ([]*models.SwapRecord, error) {
	out := make([]*models.SwapRecord, 0, len(rows))
	for _, r := range rows {
		rec, err := r.record()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Assets implements storage.AssetRegistry.
type Assets struct {
	db *DB
}

func NewAssets(db *DB) *Assets {
	return &Assets{db: db}
}

func (a *Assets) Add(ctx context.Context, asset models.KnownAsset) (bool, error) {
	if asset.AddedAt.IsZero() {
		asset.AddedAt = time.Now().UTC()
	}
	res, err := a.db.ExecContext(ctx, `
		INSERT INTO known_assets (chain_id, address_key, address, symbol, decimals, added_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (chain_id, address_key) DO NOTHING
	`, asset.ChainID, strings.ToLower(asset.Address), asset.Address, asset.Symbol, asset.Decimals, asset.AddedAt)
	if err != nil {
		return false, fmt.Errorf("failed to add asset: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func (a *Assets) List(ctx context.Context, chainID int64) ([]models.KnownAsset, error) {
	out := make([]models.KnownAsset, 0)
	err := a.db.SelectContext(ctx, &out, `
		SELECT chain_id, address, symbol, decimals, added_at
		FROM known_assets WHERE chain_id = $1 ORDER BY symbol
	`, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

var (
	_ storage.SwapLedger    = (*Ledger)(nil)
	_ storage.AssetRegistry = (*Assets)(nil)
)
