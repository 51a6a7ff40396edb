package commands

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wonny/optrader/internal/contracts"
	"github.com/wonny/optrader/internal/ledger"
	"github.com/wonny/optrader/internal/realtime"
	"github.com/wonny/optrader/internal/selection"
)

func TestPrintTrades(t *testing.T) {
	var buf bytes.Buffer
	printTrades(&buf, nil)
	assert.Equal(t, "No trades\n", buf.String())

	entry, stop, trailed := 100.0, 98.0, 103.0
	sl, closed := "SL", "CLOSED"

	buf.Reset()
	printTrades(&buf, []ledger.TradeRecord{
		{Symbol: "NIFTY26OCT25000CE", EntryOrderID: "1001", Direction: "LONG", Quantity: 100,
			EntryPrice: &entry, EntryOrderStatus: "COMPLETE", StopLoss: &stop, FinalStopLoss: &trailed,
			ExitType: &sl, PositionStatus: &closed},
		{Symbol: "NIFTY26OCT24000PE", EntryOrderID: "1002", Direction: "SHORT", Quantity: 50,
			EntryOrderStatus: "REJECTED"},
	})

	out := buf.String()
	assert.Contains(t, out, "NIFTY26OCT25000CE")
	assert.Contains(t, out, "103.00")
	assert.NotContains(t, out, "98.00")
	assert.Contains(t, out, "REJECTED")
	assert.Contains(t, out, "2 trade(s)")
}

func TestPrintCandidates(t *testing.T) {
	var buf bytes.Buffer
	printCandidates(&buf, "NIFTY 50 batch 1", nil)
	assert.Contains(t, buf.String(), "(none)")

	buf.Reset()
	printCandidates(&buf, "NIFTY 50 batch 1", []selection.Candidate{{
		Instrument: contracts.Instrument{TradingSymbol: "NIFTY26OCT18100CE", InstrumentToken: 42, Strike: 18100, LotSize: 50},
		Lots:       2,
		EndTime:    contracts.TimeOfDay{Hour: 15, Minute: 10},
		Direction:  contracts.DirectionShort,
	}})

	out := buf.String()
	assert.Contains(t, out, "NIFTY26OCT18100CE")
	assert.Contains(t, out, "18100.00")
	assert.Contains(t, out, "100")
	assert.Contains(t, out, "15:10:00")
	assert.Contains(t, out, "SHORT")
}

func TestAppWithoutSession(t *testing.T) {
	app := &App{}

	assert.Nil(t, app.Snapshot())
	assert.Zero(t, app.Stats().Live)
	assert.Equal(t, realtime.StateDisconnected, feedView{app: app}.Stats().State)
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "daemon", "select", "trades", "db"} {
		assert.True(t, names[want], want)
	}
}
