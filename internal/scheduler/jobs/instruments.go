package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/optrader/internal/contracts"
	"github.com/wonny/optrader/pkg/logger"
)

// InstrumentLoader downloads the instrument master
type InstrumentLoader interface {
	Instruments(ctx context.Context, exchanges ...string) ([]contracts.Instrument, error)
}

// InstrumentWarmupJob loads the day's instrument master ahead of the session
// so the session start does not pay for the download
type InstrumentWarmupJob struct {
	loader    InstrumentLoader
	exchanges []string
	schedule  string
	logger    *logger.Logger
}

// NewInstrumentWarmupJob creates a new warm-up job
func NewInstrumentWarmupJob(loader InstrumentLoader, exchanges []string, schedule string, log *logger.Logger) *InstrumentWarmupJob {
	return &InstrumentWarmupJob{
		loader:    loader,
		exchanges: exchanges,
		schedule:  schedule,
		logger:    log,
	}
}

// Name returns the job name
func (j *InstrumentWarmupJob) Name() string {
	return "instrument_warmup"
}

// Schedule returns the cron schedule (weekdays before market open)
func (j *InstrumentWarmupJob) Schedule() string {
	return j.schedule
}

// Run downloads (or reads from cache) the instrument master
func (j *InstrumentWarmupJob) Run(ctx context.Context) error {
	j.logger.WithField("exchanges", j.exchanges).Info("Starting instrument warm-up")

	instruments, err := j.loader.Instruments(ctx, j.exchanges...)
	if err != nil {
		return fmt.Errorf("load instruments: %w", err)
	}
	if len(instruments) == 0 {
		return fmt.Errorf("instrument master is empty for %v", j.exchanges)
	}

	options := 0
	for _, inst := range instruments {
		if inst.Segment == contracts.SegmentNFOOpt {
			options++
		}
	}

	j.logger.WithFields(map[string]interface{}{
		"instruments": len(instruments),
		"options":     options,
	}).Info("Instrument warm-up completed")

	return nil
}
