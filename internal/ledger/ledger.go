package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/optrader/internal/contracts"
	"github.com/wonny/optrader/pkg/config"
	"github.com/wonny/optrader/pkg/database"
)

// ErrTradeNotFound is returned when a conditional update matches no row
var ErrTradeNotFound = errors.New("ledger: trade not found")

// Store persists trade rows keyed by (symbol, entry_order_id)
// ⭐ SSOT: 거래 기록 저장은 이 인터페이스로만
type Store interface {
	Apply(ctx context.Context, ev contracts.LedgerEvent) error
	OpenTrades(ctx context.Context, day time.Time) ([]TradeRecord, error)
	Trades(ctx context.Context, day time.Time) ([]TradeRecord, error)
	Migrate(ctx context.Context) error
	Close() error
}

// Drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open creates the configured store and migrates its schema
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	var store Store

	switch cfg.Ledger.Driver {
	case DriverSQLite:
		s, err := NewSQLiteStore(cfg.Ledger.SQLitePath)
		if err != nil {
			return nil, err
		}
		store = s
	case DriverPostgres:
		db, err := database.New(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		store = NewPostgresStore(db)
	default:
		return nil, fmt.Errorf("unknown ledger driver %q", cfg.Ledger.Driver)
	}

	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("migrate ledger: %w", err)
	}
	return store, nil
}

// dayRange returns [midnight, next midnight) of day in its own location, as UTC
func dayRange(day time.Time) (time.Time, time.Time) {
	y, m, d := day.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, day.Location())
	return start.UTC(), start.AddDate(0, 0, 1).UTC()
}

// update is a conditional row update derived from an event
type update struct {
	condColumn string
	condValue  string
	values     map[string]interface{}
}

// updateFor maps a non-entry event to its conditional update
func updateFor(ev contracts.LedgerEvent) (update, error) {
	open := string(contracts.OrderStatusOpen)

	switch e := ev.(type) {
	case contracts.ConfirmEntry:
		return update{
			condColumn: "entry_order_status",
			condValue:  open,
			values: map[string]interface{}{
				"entry_order_status": string(e.EntryOrderStatus),
				"entry_time":         utcPtr(e.EntryTime),
				"entry_price":        e.EntryPrice,
				"stop_loss":          e.StopLoss,
				"position_status":    statusPtr(e.PositionStatus),
			},
		}, nil

	case contracts.MakeExit:
		return update{
			condColumn: "position_status",
			condValue:  string(contracts.PositionOpen),
			values: map[string]interface{}{
				"exit_order_id":     e.ExitOrderID,
				"exit_order_time":   e.ExitOrderTime.UTC(),
				"exit_order_price":  e.ExitOrderPrice,
				"exit_order_status": string(e.ExitOrderStatus),
			},
		}, nil

	case contracts.ModifyExit:
		return update{
			condColumn: "exit_order_status",
			condValue:  open,
			values: map[string]interface{}{
				"final_stop_loss":  e.FinalStopLoss,
				"exit_order_price": e.ExitOrderPrice,
			},
		}, nil

	case contracts.ConfirmExit:
		var exitStatus *string
		if e.ExitOrderStatus != nil {
			s := string(*e.ExitOrderStatus)
			exitStatus = &s
		}
		return update{
			condColumn: "position_status",
			condValue:  string(contracts.PositionOpen),
			values: map[string]interface{}{
				"position_status":   statusPtr(e.PositionStatus),
				"exit_time":         utcPtr(e.ExitTime),
				"exit_price":        e.ExitPrice,
				"exit_type":         e.ExitType,
				"exit_order_status": exitStatus,
			},
		}, nil
	}

	return update{}, fmt.Errorf("unsupported ledger event %T", ev)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func statusPtr(s *contracts.PositionStatus) *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}
