package contracts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		in      string
		want    TimeOfDay
		wantErr bool
	}{
		{"09:20", TimeOfDay{9, 20, 0}, false},
		{"15:10:30", TimeOfDay{15, 10, 30}, false},
		{"25:00", TimeOfDay{}, true},
		{"", TimeOfDay{}, true},
		{"9h20", TimeOfDay{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimeOfDay(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTimeOfDayArithmetic(t *testing.T) {
	start := TimeOfDay{Hour: 9, Minute: 20}

	assert.Equal(t, TimeOfDay{Hour: 9, Minute: 30}, start.Add(10*time.Minute))
	assert.Equal(t, TimeOfDay{Hour: 23, Minute: 59, Second: 59}, start.Add(20*time.Hour))
	assert.Equal(t, "09:20:00", start.String())

	late := TimeOfDay{Hour: 15, Minute: 25}
	assert.Equal(t, MarketClose, late.Min(MarketClose))
	assert.Equal(t, start, start.Min(MarketClose))
	assert.Equal(t, -1, start.Compare(late))
	assert.Equal(t, 0, start.Compare(TimeOfDay{9, 20, 0}))
}

func TestTimeOfDayPassedAt(t *testing.T) {
	ist := time.FixedZone("IST", 19800)
	end := TimeOfDay{Hour: 15, Minute: 10}

	// 09:40 UTC == 15:10 IST, not strictly after
	assert.False(t, end.PassedAt(time.Date(2026, 10, 15, 9, 40, 0, 0, time.UTC), ist))
	assert.True(t, end.PassedAt(time.Date(2026, 10, 15, 9, 40, 1, 0, time.UTC), ist))
	assert.False(t, end.PassedAt(time.Date(2026, 10, 15, 14, 0, 0, 0, ist), ist))

	on := end.On(time.Date(2026, 10, 15, 1, 0, 0, 0, ist), ist)
	assert.Equal(t, time.Date(2026, 10, 15, 15, 10, 0, 0, ist), on)
}

func TestTimeOfDayYAML(t *testing.T) {
	var doc struct {
		Start TimeOfDay `yaml:"start"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(`start: "09:15"`), &doc))
	assert.Equal(t, TimeOfDay{Hour: 9, Minute: 15}, doc.Start)

	err := yaml.Unmarshal([]byte(`start: "later"`), &doc)
	assert.Error(t, err)
}

func TestDirectionSides(t *testing.T) {
	assert.Equal(t, SideBuy, DirectionLong.EntrySide())
	assert.Equal(t, SideSell, DirectionShort.EntrySide())
	assert.Equal(t, SideSell, DirectionLong.EntrySide().Opposite())
	assert.Equal(t, SideBuy, DirectionShort.EntrySide().Opposite())
	assert.True(t, DirectionLong.Valid())
	assert.False(t, Direction("FLAT").Valid())
}

func TestOrderStatusFailed(t *testing.T) {
	assert.True(t, OrderStatusRejected.Failed())
	assert.True(t, OrderStatusCancelled.Failed())
	assert.False(t, OrderStatusComplete.Failed())
	assert.False(t, OrderStatus("TRIGGER PENDING").Failed())
}

func TestLedgerEventKinds(t *testing.T) {
	key := TradeKey{Symbol: "NIFTY26OCT25000CE", EntryOrderID: "1001"}

	events := []LedgerEvent{
		MakeEntry{TradeKey: key},
		ConfirmEntry{TradeKey: key},
		MakeExit{TradeKey: key},
		ModifyExit{TradeKey: key},
		ConfirmExit{TradeKey: key},
	}
	kinds := []EventKind{EventMakeEntry, EventConfirmEntry, EventMakeExit, EventModifyExit, EventConfirmExit}

	for i, ev := range events {
		assert.Equal(t, kinds[i], ev.Kind())
		assert.Equal(t, key, ev.Key())
	}
}

func TestSameDay(t *testing.T) {
	a := time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC)
	b := time.Date(2026, 10, 20, 15, 30, 0, 0, time.UTC)
	assert.True(t, SameDay(a, b))
	assert.False(t, SameDay(a, b.AddDate(0, 0, 1)))
}
