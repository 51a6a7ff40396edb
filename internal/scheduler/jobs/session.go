package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/optrader/pkg/logger"
)

// SessionRunner runs one complete trading session
type SessionRunner interface {
	RunSession(ctx context.Context) error
}

// TradingSessionJob starts the day's trading session
// ⭐ SSOT: 장중 세션 시작 스케줄은 이 Job에서만
type TradingSessionJob struct {
	runner   SessionRunner
	schedule string
	logger   *logger.Logger
}

// NewTradingSessionJob creates a new session job
func NewTradingSessionJob(runner SessionRunner, schedule string, log *logger.Logger) *TradingSessionJob {
	return &TradingSessionJob{
		runner:   runner,
		schedule: schedule,
		logger:   log,
	}
}

// Name returns the job name
func (j *TradingSessionJob) Name() string {
	return "trading_session"
}

// Schedule returns the cron schedule (weekdays before the first batch starts)
func (j *TradingSessionJob) Schedule() string {
	return j.schedule
}

// Run executes one session and returns when it ends
func (j *TradingSessionJob) Run(ctx context.Context) error {
	j.logger.Info("Starting scheduled trading session")

	if err := j.runner.RunSession(ctx); err != nil {
		return fmt.Errorf("trading session: %w", err)
	}

	j.logger.Info("Scheduled trading session finished")
	return nil
}
