package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/optrader/internal/ledger"
)

// tradesCmd represents the trades command
var tradesCmd = &cobra.Command{
	Use:   "trades",
	Short: "Print ledger rows of a day",
	Long: `Prints the trades recorded for a day (default today in TRADING_TIMEZONE).

Example:
  go run ./cmd/optrader trades
  go run ./cmd/optrader trades --date 2026-10-20 --open
  go run ./cmd/optrader trades --json`,
	RunE: runTrades,
}

var (
	tradesDate string
	tradesOpen bool
	tradesJSON bool
)

func init() {
	rootCmd.AddCommand(tradesCmd)

	tradesCmd.Flags().StringVar(&tradesDate, "date", "", "trading day (YYYY-MM-DD)")
	tradesCmd.Flags().BoolVar(&tradesOpen, "open", false, "only rows with an open position")
	tradesCmd.Flags().BoolVar(&tradesJSON, "json", false, "print JSON instead of a table")
}

func runTrades(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	loc := cfg.Trading.Location()

	day := time.Now().In(loc)
	if tradesDate != "" {
		day, err = time.ParseInLocation("2006-01-02", tradesDate, loc)
		if err != nil {
			return fmt.Errorf("invalid --date %q (expected YYYY-MM-DD)", tradesDate)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := ledger.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer store.Close()

	var rows []ledger.TradeRecord
	if tradesOpen {
		rows, err = store.OpenTrades(ctx, day)
	} else {
		rows, err = store.Trades(ctx, day)
	}
	if err != nil {
		return fmt.Errorf("read trades: %w", err)
	}

	if tradesJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Trades on %s\n\n", day.Format("2006-01-02"))
	printTrades(cmd.OutOrStdout(), rows)
	return nil
}
