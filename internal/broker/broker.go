package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/optrader/internal/contracts"
	"github.com/wonny/optrader/internal/external/kite"
	"github.com/wonny/optrader/pkg/logger"
)

// Broker defines the venue operations used by the trading core
// ⭐ SSOT: 증권사 연동 인터페이스는 여기서만 정의
// A non-nil error means the action must not be assumed to have happened.
type Broker interface {
	PlaceOrder(ctx context.Context, req contracts.OrderRequest) (string, error)
	ModifyOrder(ctx context.Context, req contracts.ModifyRequest) (string, error)
	CancelOrder(ctx context.Context, orderID string) (string, error)
	Orders(ctx context.Context) ([]contracts.OrderUpdate, error)
	Positions(ctx context.Context) ([]contracts.Position, error)
	LTP(ctx context.Context, keys ...string) (map[string]float64, error)
	Instruments(ctx context.Context, exchanges ...string) ([]contracts.Instrument, error)
}

// Venue is a logged-in venue client (implemented by kite.Client)
type Venue interface {
	Broker
	Generation() uint64
	Relogin(ctx context.Context, staleGen uint64) error
}

// Config controls retry behaviour
type Config struct {
	MaxAttempts int           // 일반 호출 시도 횟수
	LTPAttempts int           // 시세 조회 시도 횟수
	LTPBackoff  time.Duration // 빈 시세 재시도 간격
}

// Session wraps a venue with bounded retry and forced re-login
// 하나의 Session을 모든 컴포넌트가 공유 (토큰 공유)
type Session struct {
	venue  Venue
	cfg    Config
	logger *logger.Logger
}

// NewSession creates a retrying broker session
func NewSession(venue Venue, cfg Config, log *logger.Logger) *Session {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.LTPAttempts < 1 {
		cfg.LTPAttempts = 1
	}
	if cfg.LTPBackoff <= 0 {
		cfg.LTPBackoff = 200 * time.Millisecond
	}
	return &Session{
		venue:  venue,
		cfg:    cfg,
		logger: log.Component("broker"),
	}
}

var _ Broker = (*Session)(nil)

// retry runs fn up to attempts times, re-logging in after each failure
func retry[T any](ctx context.Context, s *Session, op string, attempts int, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		gen := s.venue.Generation()

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		s.logger.WithFields(map[string]interface{}{
			"op":      op,
			"attempt": attempt,
			"error":   err.Error(),
		}).Warn("Broker call failed")

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if attempt == attempts {
			break
		}

		if errors.Is(err, kite.ErrEmptyQuote) {
			// 빈 시세는 세션 문제가 아니므로 재로그인 없이 대기
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(s.cfg.LTPBackoff):
			}
			continue
		}

		if err := s.venue.Relogin(ctx, gen); err != nil {
			s.logger.WithError(err).Error("Relogin failed")
		}
	}

	return zero, fmt.Errorf("%s failed after %d attempts: %w", op, attempts, lastErr)
}

// PlaceOrder places an order
func (s *Session) PlaceOrder(ctx context.Context, req contracts.OrderRequest) (string, error) {
	return retry(ctx, s, "place_order", s.cfg.MaxAttempts, func() (string, error) {
		return s.venue.PlaceOrder(ctx, req)
	})
}

// ModifyOrder modifies a working order
func (s *Session) ModifyOrder(ctx context.Context, req contracts.ModifyRequest) (string, error) {
	return retry(ctx, s, "modify_order", s.cfg.MaxAttempts, func() (string, error) {
		return s.venue.ModifyOrder(ctx, req)
	})
}

// CancelOrder cancels a working order
func (s *Session) CancelOrder(ctx context.Context, orderID string) (string, error) {
	return retry(ctx, s, "cancel_order", s.cfg.MaxAttempts, func() (string, error) {
		return s.venue.CancelOrder(ctx, orderID)
	})
}

// Orders returns today's order book
func (s *Session) Orders(ctx context.Context) ([]contracts.OrderUpdate, error) {
	return retry(ctx, s, "orders", s.cfg.MaxAttempts, func() ([]contracts.OrderUpdate, error) {
		return s.venue.Orders(ctx)
	})
}

// Positions returns today's positions
func (s *Session) Positions(ctx context.Context) ([]contracts.Position, error) {
	return retry(ctx, s, "positions", s.cfg.MaxAttempts, func() ([]contracts.Position, error) {
		return s.venue.Positions(ctx)
	})
}

// LTP returns last traded prices keyed by "exchange:tradingsymbol"
func (s *Session) LTP(ctx context.Context, keys ...string) (map[string]float64, error) {
	return retry(ctx, s, "ltp", s.cfg.LTPAttempts, func() (map[string]float64, error) {
		return s.venue.LTP(ctx, keys...)
	})
}

// Instruments returns the instrument master of the given exchanges
func (s *Session) Instruments(ctx context.Context, exchanges ...string) ([]contracts.Instrument, error) {
	return retry(ctx, s, "instruments", s.cfg.MaxAttempts, func() ([]contracts.Instrument, error) {
		return s.venue.Instruments(ctx, exchanges...)
	})
}
