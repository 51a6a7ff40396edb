package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/optrader/internal/contracts"
	"github.com/wonny/optrader/internal/selection"
)

// selectCmd represents the select command
var selectCmd = &cobra.Command{
	Use:   "select",
	Short: "Dry-run strike selection for the parameter file",
	Long: `Logs in, downloads the instrument master and prints the contracts each
strategy batch would trade right now. No order is placed and no trade
is recorded. Start times are ignored.

Example:
  go run ./cmd/optrader select --params parameters.yaml`,
	RunE: runSelect,
}

func init() {
	rootCmd.AddCommand(selectCmd)
}

func runSelect(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	app, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.Close()

	params, err := app.loadParams()
	if err != nil {
		return fmt.Errorf("load params: %w", err)
	}

	if err := app.kite.Login(ctx); err != nil {
		return fmt.Errorf("login: %w", err)
	}

	universe, err := app.broker.Instruments(ctx, cfg.Trading.Exchanges...)
	if err != nil {
		return fmt.Errorf("load instruments: %w", err)
	}

	// 시작 시각 무시: 장 마감 시각으로 고정
	closeAt := contracts.MarketClose.On(time.Now(), app.loc)
	sel := selection.NewSelector(app.broker, app.loc, log, func() time.Time { return closeAt })

	out := cmd.OutOrStdout()
	for _, s := range params.Strategies {
		for _, b := range s.Batches() {
			label := fmt.Sprintf("%s batch %d (%s-%s, %d lots)", s.Symbol, b.Index+1, b.StartTime, b.EndTime, b.Lots)

			candidates, err := sel.Select(ctx, b.Request(), universe)
			if err != nil {
				fmt.Fprintf(out, "\n%s\n  error: %v\n", label, err)
				continue
			}
			printCandidates(out, label, candidates)
		}
	}

	return nil
}
