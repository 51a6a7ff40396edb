package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/optrader/internal/ledger"
	"github.com/wonny/optrader/pkg/logger"
)

// TradeReader lists ledger rows of a day
type TradeReader interface {
	Trades(ctx context.Context, day time.Time) ([]ledger.TradeRecord, error)
}

// DaySummaryJob logs the day's ledger after market close
type DaySummaryJob struct {
	trades   TradeReader
	loc      *time.Location
	schedule string
	logger   *logger.Logger
	now      func() time.Time
}

// NewDaySummaryJob creates a new summary job
func NewDaySummaryJob(trades TradeReader, loc *time.Location, schedule string, log *logger.Logger) *DaySummaryJob {
	return &DaySummaryJob{
		trades:   trades,
		loc:      loc,
		schedule: schedule,
		logger:   log,
		now:      time.Now,
	}
}

// Name returns the job name
func (j *DaySummaryJob) Name() string {
	return "day_summary"
}

// Schedule returns the cron schedule
func (j *DaySummaryJob) Schedule() string {
	return j.schedule
}

// DaySummary counts the day's trades by outcome
type DaySummary struct {
	Trades   int
	Filled   int
	Open     int
	Closed   int
	ByExit   map[string]int
	Rejected int
}

// Summarize counts rows by outcome
func Summarize(rows []ledger.TradeRecord) DaySummary {
	s := DaySummary{Trades: len(rows), ByExit: make(map[string]int)}
	for _, r := range rows {
		if r.EntryPrice != nil {
			s.Filled++
		}
		switch {
		case r.PositionOpen():
			s.Open++
		case r.PositionStatus != nil:
			s.Closed++
		}
		if r.ExitType != nil {
			s.ByExit[*r.ExitType]++
		}
		if r.EntryOrderStatus == "REJECTED" || r.EntryOrderStatus == "CANCELLED" {
			s.Rejected++
		}
	}
	return s
}

// Run logs the summary; open positions after close are reported as a warning
func (j *DaySummaryJob) Run(ctx context.Context) error {
	rows, err := j.trades.Trades(ctx, j.now().In(j.loc))
	if err != nil {
		return fmt.Errorf("read trades: %w", err)
	}

	s := Summarize(rows)
	log := j.logger.WithFields(map[string]interface{}{
		"trades":   s.Trades,
		"filled":   s.Filled,
		"closed":   s.Closed,
		"open":     s.Open,
		"rejected": s.Rejected,
		"by_exit":  s.ByExit,
	})

	if s.Open > 0 {
		log.Warn("Positions still open after session")
		return nil
	}
	log.Info("Day summary")
	return nil
}
