package strategyconfig

import (
	"time"

	"github.com/wonny/optrader/internal/contracts"
)

// Batches expands s into its time-shifted batches
// Batch i starts entry_interval*i minutes after start_time and ends
// end_interval*i minutes after end_time, clamped to market close.
// Lots are split evenly; the remainder goes to the first batches.
func (s Strategy) Batches() []Batch {
	n := s.NumBatches
	if n < 1 {
		n = 1
	}

	batches := make([]Batch, 0, n)
	for i := 0; i < n; i++ {
		lots := s.Lots / n
		if i < s.Lots%n {
			lots++
		}

		start := s.StartTime.Add(time.Duration(s.EntryInterval*i) * time.Minute)
		end := s.EndTime.Add(time.Duration(s.EndInterval*i) * time.Minute)

		batches = append(batches, Batch{
			Strategy:  s,
			Index:     i,
			StartTime: start,
			EndTime:   end.Min(contracts.MarketClose),
			Lots:      lots,
		})
	}
	return batches
}

// ActiveBatches returns every batch of cfg whose end has not passed at now
func (c *Config) ActiveBatches(now time.Time, loc *time.Location) []Batch {
	var out []Batch
	for _, s := range c.Strategies {
		for _, b := range s.Batches() {
			if contracts.TimeOfDayOf(now, loc).Compare(b.EndTime) >= 0 {
				continue
			}
			out = append(out, b)
		}
	}
	return out
}
