package ledger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/wonny/optrader/internal/contracts"
)

// SQLiteStore is the default single-file ledger
type SQLiteStore struct {
	db *gorm.DB
}

// NewSQLiteStore opens (and creates) the ledger file at path
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("ledger path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite ledger: %w", err)
	}

	// 쓰기는 컨트롤러 한 곳에서만 발생
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}

	return &SQLiteStore{db: db}, nil
}

// Migrate creates or updates the trades table
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&TradeRecord{})
}

// Apply persists one lifecycle event
func (s *SQLiteStore) Apply(ctx context.Context, ev contracts.LedgerEvent) error {
	if e, ok := ev.(contracts.MakeEntry); ok {
		rec := recordFromEntry(e)
		return s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "symbol"}, {Name: "entry_order_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"underlying_symbol", "instrument_token", "exchange", "direction", "side",
				"instruction", "quantity", "lots", "lot_size", "stop_loss_percent", "trail_sl",
				"end_time", "entry_order_time", "entry_order_price", "entry_order_status", "updated_at",
			}),
		}).Create(&rec).Error
	}

	u, err := updateFor(ev)
	if err != nil {
		return err
	}

	key := ev.Key()
	res := s.db.WithContext(ctx).Model(&TradeRecord{}).
		Where("symbol = ? AND entry_order_id = ?", key.Symbol, key.EntryOrderID).
		Where(u.condColumn+" = ?", u.condValue).
		Updates(u.values)
	if res.Error != nil {
		return fmt.Errorf("%s %s/%s: %w", ev.Kind(), key.Symbol, key.EntryOrderID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%s %s/%s: %w", ev.Kind(), key.Symbol, key.EntryOrderID, ErrTradeNotFound)
	}
	return nil
}

// OpenTrades returns rows of day whose position or entry order is still open
func (s *SQLiteStore) OpenTrades(ctx context.Context, day time.Time) ([]TradeRecord, error) {
	from, to := dayRange(day)

	var rows []TradeRecord
	err := s.db.WithContext(ctx).
		Where("entry_order_time >= ? AND entry_order_time < ?", from, to).
		Where("position_status = ? OR entry_order_status = ?", string(contracts.PositionOpen), string(contracts.OrderStatusOpen)).
		Order("entry_order_time, id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query open trades: %w", err)
	}
	return rows, nil
}

// Trades returns every row of day
func (s *SQLiteStore) Trades(ctx context.Context, day time.Time) ([]TradeRecord, error) {
	from, to := dayRange(day)

	var rows []TradeRecord
	err := s.db.WithContext(ctx).
		Where("entry_order_time >= ? AND entry_order_time < ?", from, to).
		Order("entry_order_time, id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	return rows, nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
