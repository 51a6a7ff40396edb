package strategyconfig

import (
	"time"

	"github.com/wonny/optrader/internal/contracts"
	"github.com/wonny/optrader/internal/selection"
)

// Config는 하루 세션의 전략 파라미터 파일 전체
type Config struct {
	Strategies []Strategy `yaml:"strategies" json:"strategies"`
}

// Strategy is one underlying traded in one or more batches
type Strategy struct {
	Symbol     string    `yaml:"symbol" json:"symbol"`           // "NIFTY 50", "NIFTY BANK" ...
	Exchange   string    `yaml:"exchange" json:"exchange"`       // quote exchange of the underlying
	ExpiryDate time.Time `yaml:"expiry_date" json:"expiry_date"` // YYYY-MM-DD

	StartTime contracts.TimeOfDay `yaml:"start_time" json:"start_time"`
	EndTime   contracts.TimeOfDay `yaml:"end_time" json:"end_time"`

	Lots          int `yaml:"lots" json:"lots"`
	NumBatches    int `yaml:"num_batches" json:"num_batches"`
	EntryInterval int `yaml:"entry_interval" json:"entry_interval"` // 분
	EndInterval   int `yaml:"end_interval" json:"end_interval"`     // 분

	OptType     selection.OptionType `yaml:"opt_type" json:"opt_type"`
	CallPremium float64              `yaml:"call_premium" json:"call_premium"`
	PutPremium  float64              `yaml:"put_premium" json:"put_premium"`
	StrikeDist  float64              `yaml:"strike_dist" json:"strike_dist"`
	StrikeDiff  float64              `yaml:"strike_diff" json:"strike_diff"`

	StopLoss  float64             `yaml:"stop_loss" json:"stop_loss"` // 퍼센트
	TrailSL   bool                `yaml:"trail_sl" json:"trail_sl"`
	Direction contracts.Direction `yaml:"direction" json:"direction"`
}

// ByPremium reports whether premium targets drive strike selection
func (s Strategy) ByPremium() bool {
	return s.CallPremium > 0 || s.PutPremium > 0
}

// Batch is one time-shifted slice of a strategy
type Batch struct {
	Strategy  Strategy            `json:"strategy"`
	Index     int                 `json:"index"`
	StartTime contracts.TimeOfDay `json:"start_time"`
	EndTime   contracts.TimeOfDay `json:"end_time"`
	Lots      int                 `json:"lots"`
}

// Request converts the batch into a selection request
func (b Batch) Request() selection.Request {
	s := b.Strategy
	return selection.Request{
		Symbol:          s.Symbol,
		Exchange:        s.Exchange,
		Expiry:          s.ExpiryDate,
		StartTime:       b.StartTime,
		EndTime:         b.EndTime,
		Lots:            b.Lots,
		OptType:         s.OptType,
		CallPremium:     s.CallPremium,
		PutPremium:      s.PutPremium,
		StrikeDist:      s.StrikeDist,
		StrikeDiff:      s.StrikeDiff,
		Direction:       s.Direction,
		StopLossPercent: s.StopLoss,
		TrailSL:         s.TrailSL,
	}
}
