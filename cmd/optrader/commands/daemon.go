package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wonny/optrader/internal/scheduler"
	"github.com/wonny/optrader/internal/scheduler/jobs"
)

// summaryCron runs the day summary after market close
const summaryCron = "0 45 15 * * MON-FRI"

// daemonCmd represents the daemon command
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the scheduler (instrument warm-up, session start, day summary)",
	Long: `Starts the cron scheduler and the status API.

Registered jobs:
- instrument_warmup: TRADING_INSTRUMENTS_CRON (default weekdays 08:45)
- trading_session:   TRADING_SESSION_CRON (default weekdays 09:10)
- day_summary:       weekdays 15:45

The daemon runs until Ctrl+C or SIGTERM.`,
	RunE: runDaemon,
}

var (
	daemonNoHTTP bool
)

func init() {
	rootCmd.AddCommand(daemonCmd)

	daemonCmd.Flags().BoolVar(&daemonNoHTTP, "no-http", false, "do not serve the status API")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.Close()

	sched := scheduler.New(log, app.loc, scheduler.WithRetry(2, 30*time.Second))

	registered := []scheduler.Job{
		jobs.NewInstrumentWarmupJob(app.kite, cfg.Trading.Exchanges, cfg.Trading.InstrumentsCron, log.Component("job")),
		jobs.NewTradingSessionJob(app, cfg.Trading.SessionCron, log.Component("job")),
		jobs.NewDaySummaryJob(app.store, app.loc, summaryCron, log.Component("job")),
	}
	for _, job := range registered {
		if err := sched.AddJob(job); err != nil {
			return fmt.Errorf("add job %s: %w", job.Name(), err)
		}
	}

	sched.Start(ctx)

	fmt.Fprintln(cmd.OutOrStdout(), "Registered jobs:")
	for _, name := range sched.GetAllJobs() {
		if next, ok := sched.NextRun(name); ok {
			fmt.Fprintf(cmd.OutOrStdout(), "  - %-18s next %s\n", name, next.Format("2006-01-02 15:04:05"))
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	if !daemonNoHTTP {
		server := newStatusServer(app, sched)
		g.Go(func() error { return server.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	err = g.Wait()

	log.Info("Shutting down scheduler")
	sched.Stop()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
