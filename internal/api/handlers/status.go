package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/optrader/internal/engine"
	"github.com/wonny/optrader/internal/ledger"
	"github.com/wonny/optrader/internal/lifecycle"
	"github.com/wonny/optrader/internal/realtime"
	"github.com/wonny/optrader/internal/scheduler"
	"github.com/wonny/optrader/pkg/logger"
)

// EngineSource exposes the running session's lifecycles
type EngineSource interface {
	Snapshot() []lifecycle.Snapshot
	Stats() engine.ControllerStats
}

// FeedSource exposes market-data feed state
type FeedSource interface {
	Stats() realtime.FeedStats
}

// TradeSource reads ledger rows of a day
type TradeSource interface {
	Trades(ctx context.Context, day time.Time) ([]ledger.TradeRecord, error)
	OpenTrades(ctx context.Context, day time.Time) ([]ledger.TradeRecord, error)
}

// JobSource exposes scheduler statistics (daemon mode only)
type JobSource interface {
	GetJobStats() map[string]scheduler.JobStats
}

// StatusHandler serves the read-only status endpoints
// ⭐ SSOT: 상태 조회 API 핸들러는 이 구조체에서만
type StatusHandler struct {
	engine EngineSource
	feed   FeedSource
	trades TradeSource
	jobs   JobSource
	loc    *time.Location
	logger *logger.Logger
	now    func() time.Time
}

// NewStatusHandler creates a status handler; feed and jobs may be nil
func NewStatusHandler(eng EngineSource, feed FeedSource, trades TradeSource, jobs JobSource, loc *time.Location, log *logger.Logger) *StatusHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &StatusHandler{
		engine: eng,
		feed:   feed,
		trades: trades,
		jobs:   jobs,
		loc:    loc,
		logger: log,
		now:    time.Now,
	}
}

// GetLifecycles returns all live lifecycles
// GET /api/lifecycles
func (h *StatusHandler) GetLifecycles(w http.ResponseWriter, r *http.Request) {
	snapshots := h.engine.Snapshot()
	if snapshots == nil {
		snapshots = []lifecycle.Snapshot{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"lifecycles": snapshots,
		"stats":      h.engine.Stats(),
	})
}

// GetLifecycle returns the lifecycles trading one symbol
// GET /api/lifecycles/{symbol}
func (h *StatusHandler) GetLifecycle(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	matched := []lifecycle.Snapshot{}
	for _, s := range h.engine.Snapshot() {
		if s.Symbol == symbol {
			matched = append(matched, s)
		}
	}
	if len(matched) == 0 {
		respondError(w, http.StatusNotFound, "No lifecycle for symbol "+symbol)
		return
	}

	respondJSON(w, http.StatusOK, matched)
}

// GetFeed returns the market-data feed state
// GET /api/feed
func (h *StatusHandler) GetFeed(w http.ResponseWriter, r *http.Request) {
	if h.feed == nil {
		respondError(w, http.StatusServiceUnavailable, "Feed is not running")
		return
	}

	stats := h.feed.Stats()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"feed":  stats,
		"stale": stats.IsStale(h.now(), 30*time.Second),
	})
}

// GetTrades returns ledger rows of a day
// GET /api/trades?date=YYYY-MM-DD&open=true
func (h *StatusHandler) GetTrades(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	day := h.now().In(h.loc)
	if d := r.URL.Query().Get("date"); d != "" {
		parsed, err := time.ParseInLocation("2006-01-02", d, h.loc)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid 'date' format (expected YYYY-MM-DD)")
			return
		}
		day = parsed
	}

	openOnly := false
	if o := r.URL.Query().Get("open"); o != "" {
		v, err := strconv.ParseBool(o)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid 'open' flag")
			return
		}
		openOnly = v
	}

	var (
		rows []ledger.TradeRecord
		err  error
	)
	if openOnly {
		rows, err = h.trades.OpenTrades(ctx, day)
	} else {
		rows, err = h.trades.Trades(ctx, day)
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to read trades")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve trades")
		return
	}
	if rows == nil {
		rows = []ledger.TradeRecord{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"date":   day.Format("2006-01-02"),
		"count":  len(rows),
		"trades": rows,
	})
}

// GetJobs returns scheduler job statistics
// GET /api/jobs
func (h *StatusHandler) GetJobs(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		respondError(w, http.StatusServiceUnavailable, "Scheduler is not running")
		return
	}
	respondJSON(w, http.StatusOK, h.jobs.GetJobStats())
}
