package scheduler

import (
	"context"
	"time"
)

// Job represents a scheduled job
// ⭐ SSOT: 스케줄 작업 인터페이스는 여기서만 정의
type Job interface {
	// Name returns the job name
	Name() string

	// Run executes the job; ctx is cancelled when the scheduler stops
	Run(ctx context.Context) error

	// Schedule returns the cron schedule expression (with seconds)
	// Examples: "0 10 9 * * MON-FRI" (weekdays 09:10:00)
	Schedule() string
}

// historyLimit caps the results kept per job
const historyLimit = 100

// JobResult is one execution, retries included
type JobResult struct {
	JobName   string        `json:"job_name"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Attempts  int           `json:"attempts"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
}

// JobHistory keeps the latest results of a job, oldest first (guarded by the scheduler)
type JobHistory struct {
	Results []JobResult
}

// AddResult appends a result, dropping the oldest beyond historyLimit
func (h *JobHistory) AddResult(result JobResult) {
	h.Results = append(h.Results, result)
	if over := len(h.Results) - historyLimit; over > 0 {
		h.Results = append(h.Results[:0:0], h.Results[over:]...)
	}
}

// Latest returns the most recent result
func (h *JobHistory) Latest() (JobResult, bool) {
	if len(h.Results) == 0 {
		return JobResult{}, false
	}
	return h.Results[len(h.Results)-1], true
}

// HistorySummary aggregates a history in one pass
type HistorySummary struct {
	Total       int
	Failed      int
	LastSuccess *time.Time
	LastFailure *time.Time
}

// Succeeded is Total - Failed
func (s HistorySummary) Succeeded() int {
	return s.Total - s.Failed
}

// SuccessRate returns succeeded/total (0 when empty)
func (s HistorySummary) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Succeeded()) / float64(s.Total)
}

// Summary counts failures and finds the latest success and failure
func (h *JobHistory) Summary() HistorySummary {
	sum := HistorySummary{Total: len(h.Results)}

	for i := len(h.Results) - 1; i >= 0; i-- {
		r := h.Results[i]
		start := r.StartTime
		if r.Success {
			if sum.LastSuccess == nil {
				sum.LastSuccess = &start
			}
			continue
		}
		sum.Failed++
		if sum.LastFailure == nil {
			sum.LastFailure = &start
		}
	}
	return sum
}
