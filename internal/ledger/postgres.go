package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/wonny/optrader/internal/contracts"
	"github.com/wonny/optrader/pkg/database"
)

// Schema is the postgres DDL for the trades table
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS trades (
		id                 BIGSERIAL PRIMARY KEY,
		symbol             TEXT NOT NULL,
		entry_order_id     TEXT NOT NULL,
		underlying_symbol  TEXT NOT NULL DEFAULT '',
		instrument_token   BIGINT NOT NULL DEFAULT 0,
		exchange           TEXT NOT NULL DEFAULT '',
		direction          TEXT NOT NULL DEFAULT '',
		side               TEXT NOT NULL DEFAULT '',
		instruction        TEXT NOT NULL DEFAULT '',
		quantity           INTEGER NOT NULL DEFAULT 0,
		lots               INTEGER NOT NULL DEFAULT 0,
		lot_size           INTEGER NOT NULL DEFAULT 0,
		stop_loss_percent  DOUBLE PRECISION NOT NULL DEFAULT 0,
		trail_sl           BOOLEAN NOT NULL DEFAULT FALSE,
		end_time           TEXT NOT NULL DEFAULT '',
		entry_order_time   TIMESTAMPTZ NOT NULL,
		entry_order_price  DOUBLE PRECISION NOT NULL DEFAULT 0,
		entry_order_status TEXT NOT NULL DEFAULT '',
		entry_time         TIMESTAMPTZ,
		entry_price        DOUBLE PRECISION,
		stop_loss          DOUBLE PRECISION,
		final_stop_loss    DOUBLE PRECISION,
		position_status    TEXT,
		exit_order_id      TEXT,
		exit_order_time    TIMESTAMPTZ,
		exit_order_price   DOUBLE PRECISION,
		exit_order_status  TEXT,
		exit_time          TIMESTAMPTZ,
		exit_price         DOUBLE PRECISION,
		exit_type          TEXT,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (symbol, entry_order_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_entry_order_time ON trades (entry_order_time)`,
}

const selectColumns = `id, symbol, entry_order_id, underlying_symbol, instrument_token, exchange,
	direction, side, instruction, quantity, lots, lot_size, stop_loss_percent, trail_sl, end_time,
	entry_order_time, entry_order_price, entry_order_status, entry_time, entry_price, stop_loss,
	final_stop_loss, position_status, exit_order_id, exit_order_time, exit_order_price,
	exit_order_status, exit_time, exit_price, exit_type, created_at, updated_at`

// PostgresStore keeps the ledger in a shared postgres database
type PostgresStore struct {
	db *database.DB
}

// NewPostgresStore wraps an open pool
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate applies Schema
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return s.db.Migrate(ctx, Schema...)
}

// Apply persists one lifecycle event
func (s *PostgresStore) Apply(ctx context.Context, ev contracts.LedgerEvent) error {
	if e, ok := ev.(contracts.MakeEntry); ok {
		return s.insertEntry(ctx, recordFromEntry(e))
	}

	u, err := updateFor(ev)
	if err != nil {
		return err
	}

	key := ev.Key()
	query, args := buildUpdate(key, u)

	tag, err := s.db.Pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s %s/%s: %w", ev.Kind(), key.Symbol, key.EntryOrderID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %s/%s: %w", ev.Kind(), key.Symbol, key.EntryOrderID, ErrTradeNotFound)
	}
	return nil
}

func (s *PostgresStore) insertEntry(ctx context.Context, r TradeRecord) error {
	query := `
		INSERT INTO trades (
			symbol, entry_order_id, underlying_symbol, instrument_token, exchange,
			direction, side, instruction, quantity, lots, lot_size,
			stop_loss_percent, trail_sl, end_time,
			entry_order_time, entry_order_price, entry_order_status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (symbol, entry_order_id) DO UPDATE SET
			underlying_symbol = EXCLUDED.underlying_symbol,
			instrument_token = EXCLUDED.instrument_token,
			exchange = EXCLUDED.exchange,
			direction = EXCLUDED.direction,
			side = EXCLUDED.side,
			instruction = EXCLUDED.instruction,
			quantity = EXCLUDED.quantity,
			lots = EXCLUDED.lots,
			lot_size = EXCLUDED.lot_size,
			stop_loss_percent = EXCLUDED.stop_loss_percent,
			trail_sl = EXCLUDED.trail_sl,
			end_time = EXCLUDED.end_time,
			entry_order_time = EXCLUDED.entry_order_time,
			entry_order_price = EXCLUDED.entry_order_price,
			entry_order_status = EXCLUDED.entry_order_status,
			updated_at = NOW()
	`

	_, err := s.db.Pool.Exec(ctx, query,
		r.Symbol, r.EntryOrderID, r.UnderlyingSymbol, r.InstrumentToken, r.Exchange,
		r.Direction, r.Side, r.Instruction, r.Quantity, r.Lots, r.LotSize,
		r.StopLossPercent, r.TrailSL, r.EndTime,
		r.EntryOrderTime, r.EntryOrderPrice, r.EntryOrderStatus,
	)
	if err != nil {
		return fmt.Errorf("insert trade %s/%s: %w", r.Symbol, r.EntryOrderID, err)
	}
	return nil
}

// buildUpdate renders a conditional UPDATE with columns in a stable order
func buildUpdate(key contracts.TradeKey, u update) (string, []interface{}) {
	columns := make([]string, 0, len(u.values))
	for col := range u.values {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	args := []interface{}{key.Symbol, key.EntryOrderID, u.condValue}
	sets := make([]string, 0, len(columns)+1)
	for _, col := range columns {
		args = append(args, u.values[col])
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	sets = append(sets, "updated_at = NOW()")

	query := fmt.Sprintf(
		"UPDATE trades SET %s WHERE symbol = $1 AND entry_order_id = $2 AND %s = $3",
		strings.Join(sets, ", "), u.condColumn,
	)
	return query, args
}

// OpenTrades returns rows of day whose position or entry order is still open
func (s *PostgresStore) OpenTrades(ctx context.Context, day time.Time) ([]TradeRecord, error) {
	from, to := dayRange(day)
	query := `SELECT ` + selectColumns + ` FROM trades
		WHERE entry_order_time >= $1 AND entry_order_time < $2
		  AND (position_status = 'OPEN' OR entry_order_status = 'OPEN')
		ORDER BY entry_order_time, id`

	rows, err := s.db.Pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("query open trades: %w", err)
	}
	return scanTrades(rows)
}

// Trades returns every row of day
func (s *PostgresStore) Trades(ctx context.Context, day time.Time) ([]TradeRecord, error) {
	from, to := dayRange(day)
	query := `SELECT ` + selectColumns + ` FROM trades
		WHERE entry_order_time >= $1 AND entry_order_time < $2
		ORDER BY entry_order_time, id`

	rows, err := s.db.Pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	return scanTrades(rows)
}

func scanTrades(rows pgx.Rows) ([]TradeRecord, error) {
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		var r TradeRecord
		err := rows.Scan(
			&r.ID, &r.Symbol, &r.EntryOrderID, &r.UnderlyingSymbol, &r.InstrumentToken, &r.Exchange,
			&r.Direction, &r.Side, &r.Instruction, &r.Quantity, &r.Lots, &r.LotSize,
			&r.StopLossPercent, &r.TrailSL, &r.EndTime,
			&r.EntryOrderTime, &r.EntryOrderPrice, &r.EntryOrderStatus,
			&r.EntryTime, &r.EntryPrice, &r.StopLoss, &r.FinalStopLoss, &r.PositionStatus,
			&r.ExitOrderID, &r.ExitOrderTime, &r.ExitOrderPrice, &r.ExitOrderStatus,
			&r.ExitTime, &r.ExitPrice, &r.ExitType, &r.CreatedAt, &r.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close releases the pool
func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}
