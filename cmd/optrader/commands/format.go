package commands

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/optrader/internal/engine"
	"github.com/wonny/optrader/internal/ledger"
	"github.com/wonny/optrader/internal/selection"
)

const rule = "═══════════════════════════════════════════════════════════"

// printRunResult prints a session summary
func printRunResult(cmd *cobra.Command, r *engine.RunResult) {
	out := cmd.OutOrStdout()

	fmt.Fprintln(out)
	fmt.Fprintln(out, rule)
	fmt.Fprintf(out, "  Session   : %s\n", r.RunID)
	fmt.Fprintf(out, "  Date      : %s\n", r.Date.Format("2006-01-02"))
	if r.ParamsHash != "" {
		fmt.Fprintf(out, "  Params    : %s\n", r.ParamsHash[:12])
	}
	fmt.Fprintf(out, "  Recovered : %d\n", r.Recovered)
	fmt.Fprintf(out, "  Batches   : %d\n", r.Batches)
	fmt.Fprintf(out, "  Selected  : %d\n", r.Selected)
	fmt.Fprintf(out, "  Events    : %d (ledger errors %d)\n", r.Stats.Events, r.Stats.LedgerErrors)
	fmt.Fprintf(out, "  Duration  : %s\n", r.Duration.Round(time.Second))
	fmt.Fprintln(out, rule)
}

// printCandidates prints selected contracts per batch
func printCandidates(out io.Writer, label string, candidates []selection.Candidate) {
	fmt.Fprintf(out, "\n%s\n", label)
	if len(candidates) == 0 {
		fmt.Fprintln(out, "  (none)")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  SYMBOL\tTOKEN\tSTRIKE\tLOTS\tQTY\tEND\tDIRECTION")
	for _, c := range candidates {
		fmt.Fprintf(w, "  %s\t%d\t%.2f\t%d\t%d\t%s\t%s\n",
			c.Instrument.TradingSymbol,
			c.Instrument.InstrumentToken,
			c.Instrument.Strike,
			c.Lots,
			c.Lots*c.Instrument.LotSize,
			c.EndTime,
			c.Direction,
		)
	}
	w.Flush()
}

// printTrades prints ledger rows as a table
func printTrades(out io.Writer, rows []ledger.TradeRecord) {
	if len(rows) == 0 {
		fmt.Fprintln(out, "No trades")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tENTRY_ID\tDIR\tQTY\tENTRY\tSTATUS\tSTOP\tEXIT\tTYPE\tPOSITION")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Symbol,
			r.EntryOrderID,
			r.Direction,
			r.Quantity,
			price(r.EntryPrice),
			r.EntryOrderStatus,
			price(finalStop(r)),
			price(r.ExitPrice),
			text(r.ExitType),
			text(r.PositionStatus),
		)
	}
	w.Flush()

	fmt.Fprintf(out, "\n%d trade(s)\n", len(rows))
}

func finalStop(r ledger.TradeRecord) *float64 {
	if r.FinalStopLoss != nil {
		return r.FinalStopLoss
	}
	return r.StopLoss
}

func price(p *float64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *p)
}

func text(s *string) string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return "-"
	}
	return *s
}
