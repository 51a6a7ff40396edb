package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/optrader/internal/broker"
	"github.com/wonny/optrader/internal/contracts"
	"github.com/wonny/optrader/internal/ledger"
	"github.com/wonny/optrader/internal/lifecycle"
	"github.com/wonny/optrader/internal/selection"
	"github.com/wonny/optrader/internal/strategyconfig"
	"github.com/wonny/optrader/pkg/logger"
)

// Subscriber registers instrument tokens on the market-data feed
type Subscriber interface {
	Subscribe(tokens ...uint32) error
}

// Store is the part of the ledger a session uses
type Store interface {
	EventSink
	OpenTrades(ctx context.Context, day time.Time) ([]ledger.TradeRecord, error)
}

// RunConfig holds configuration for one trading session
type RunConfig struct {
	Params       *strategyconfig.Config // nil = recovery only
	Location     *time.Location
	PollInterval time.Duration
	Exchanges    []string
}

// RunResult summarises a finished session
type RunResult struct {
	RunID      string          `json:"run_id"`
	Date       time.Time       `json:"date"`
	ParamsHash string          `json:"params_hash,omitempty"`
	Recovered  int             `json:"recovered"`
	Batches    int             `json:"batches"`
	Selected   int             `json:"selected"`
	Stats      ControllerStats `json:"stats"`
	Duration   time.Duration   `json:"duration"`
}

// pendingSelection is a strategy batch still waiting for its contracts
type pendingSelection struct {
	batch strategyconfig.Batch
}

// Session runs recovery, strike selection and the tick loop for one trading day
// ⭐ SSOT: 세션 조율은 여기서만
type Session struct {
	broker     broker.Broker
	store      Store
	feed       Subscriber
	controller *Controller
	selector   *selection.Selector
	root       *logger.Logger
	logger     *logger.Logger
	now        func() time.Time

	pending []pendingSelection
}

// NewSession wires a session; now may be nil for time.Now
func NewSession(
	b broker.Broker,
	store Store,
	feed Subscriber,
	controller *Controller,
	selector *selection.Selector,
	log *logger.Logger,
	now func() time.Time,
) *Session {
	if now == nil {
		now = time.Now
	}
	return &Session{
		broker:     b,
		store:      store,
		feed:       feed,
		controller: controller,
		selector:   selector,
		root:       log,
		logger:     log.Component("session"),
		now:        now,
	}
}

// Controller returns the tick controller
func (s *Session) Controller() *Controller {
	return s.controller
}

// Run trades until no lifecycle and no pending selection remains, or ctx ends
func (s *Session) Run(ctx context.Context, cfg RunConfig) (*RunResult, error) {
	startTime := s.now()
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 50 * time.Millisecond
	}

	result := &RunResult{
		RunID: uuid.NewString(),
		Date:  startTime.In(cfg.Location),
	}
	log := s.logger.WithField("run_id", result.RunID)

	if cfg.Params != nil {
		if hash, err := strategyconfig.Hash(cfg.Params); err == nil {
			result.ParamsHash = hash
		}
	}
	log.WithFields(map[string]interface{}{
		"date":        result.Date.Format("2006-01-02"),
		"params_hash": result.ParamsHash,
	}).Info("Starting trading session")

	// 1. 미청산 거래 복구
	recovered, err := s.recover(ctx, cfg)
	if err != nil {
		return result, fmt.Errorf("recover open trades: %w", err)
	}
	result.Recovered = recovered

	// 2. 전략 배치 → 선택 대기열
	var universe []contracts.Instrument
	if cfg.Params != nil {
		batches := cfg.Params.ActiveBatches(s.now(), cfg.Location)
		result.Batches = len(batches)
		if len(batches) > 0 {
			universe, err = s.broker.Instruments(ctx, cfg.Exchanges...)
			if err != nil {
				return result, fmt.Errorf("load instruments: %w", err)
			}
		}
		for _, b := range batches {
			s.pending = append(s.pending, pendingSelection{batch: b})
		}
		if len(batches) == 0 {
			log.Warn("No strategy batches left for today, end time must be after the current time")
		}
	}

	if s.controller.Len() == 0 && len(s.pending) == 0 {
		log.Info("No symbols found for trading")
		result.Duration = s.now().Sub(startTime)
		return result, nil
	}

	// 3. 루프
	for {
		if err := ctx.Err(); err != nil {
			result.Stats = s.controller.Stats()
			result.Duration = s.now().Sub(startTime)
			return result, err
		}

		result.Selected += s.runSelections(ctx, cfg, universe)

		processed := s.controller.Cycle(ctx)

		if s.controller.Len() == 0 && len(s.pending) == 0 {
			log.Info("All instances closed, trading ended")
			break
		}

		if !processed {
			select {
			case <-ctx.Done():
			case <-time.After(cfg.PollInterval):
			}
		}
	}

	result.Stats = s.controller.Stats()
	result.Duration = s.now().Sub(startTime)

	log.WithFields(map[string]interface{}{
		"recovered": result.Recovered,
		"selected":  result.Selected,
		"events":    result.Stats.Events,
		"duration":  result.Duration.String(),
	}).Info("Trading session completed")

	return result, nil
}

// recover rebuilds lifecycles from today's open ledger rows
func (s *Session) recover(ctx context.Context, cfg RunConfig) (int, error) {
	rows, err := s.store.OpenTrades(ctx, s.now().In(cfg.Location))
	if err != nil {
		return 0, err
	}

	var tokens []uint32
	count := 0
	for _, r := range rows {
		lcfg, err := configFromRecord(r)
		if err != nil {
			s.logger.WithError(err).WithField("symbol", r.Symbol).Error("Skipping unreadable ledger row")
			continue
		}

		s.logger.WithFields(map[string]interface{}{
			"symbol":         r.Symbol,
			"entry_order_id": r.EntryOrderID,
		}).Info("Open position/order found, restoring")

		l := lifecycle.Restore(lcfg, recoveredFromRecord(r), s.broker, s.lifecycleOptions(cfg)...)
		if l.Terminated() {
			continue
		}
		s.controller.Add(l)
		tokens = append(tokens, l.Token())
		count++
	}

	s.subscribe(tokens)
	return count, nil
}

// runSelections resolves pending batches and returns the number of new lifecycles
func (s *Session) runSelections(ctx context.Context, cfg RunConfig, universe []contracts.Instrument) int {
	if len(s.pending) == 0 {
		return 0
	}

	var tokens []uint32
	added := 0
	kept := s.pending[:0]

	for _, p := range s.pending {
		log := s.logger.WithFields(map[string]interface{}{
			"symbol": p.batch.Strategy.Symbol,
			"batch":  p.batch.Index,
		})

		if contracts.TimeOfDayOf(s.now(), cfg.Location).Compare(p.batch.EndTime) >= 0 {
			log.Warn("Batch end time reached before a contract was selected")
			continue
		}

		candidates, err := s.selector.Select(ctx, p.batch.Request(), universe)
		switch {
		case errors.Is(err, selection.ErrNotYet):
			kept = append(kept, p)
			continue
		case err != nil:
			log.WithError(err).Warn("No option contracts selected, check parameters")
			continue
		}

		for _, c := range candidates {
			l := lifecycle.New(configFromCandidate(c), s.broker, s.lifecycleOptions(cfg)...)
			s.controller.Add(l)
			if !l.Terminated() {
				tokens = append(tokens, l.Token())
				added++
			}
		}
		log.WithField("contracts", len(candidates)).Info("Strikes retrieved, starting trading instances")
	}

	for i := len(kept); i < len(s.pending); i++ {
		s.pending[i] = pendingSelection{}
	}
	s.pending = kept

	s.subscribe(tokens)
	return added
}

func (s *Session) subscribe(tokens []uint32) {
	if len(tokens) == 0 {
		return
	}
	if err := s.feed.Subscribe(tokens...); err != nil {
		s.logger.WithError(err).WithField("tokens", len(tokens)).Warn("Subscribe failed, tokens are resent on reconnect")
	}
}

func (s *Session) lifecycleOptions(cfg RunConfig) []lifecycle.Option {
	return []lifecycle.Option{
		lifecycle.WithLogger(s.root.Component("lifecycle")),
		lifecycle.WithClock(s.now),
		lifecycle.WithLocation(cfg.Location),
	}
}

// Pending returns the number of unresolved strategy batches
func (s *Session) Pending() int {
	return len(s.pending)
}
