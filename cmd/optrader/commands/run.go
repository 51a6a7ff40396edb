package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wonny/optrader/internal/api"
	"github.com/wonny/optrader/internal/api/handlers"
	"github.com/wonny/optrader/internal/scheduler"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one trading session to completion",
	Long: `Logs in, recovers open trades from the ledger, selects contracts for
the strategy batches and trades them until every lifecycle has ended.

Example:
  go run ./cmd/optrader run --params parameters.yaml
  go run ./cmd/optrader run --http`,
	RunE: runSession,
}

var (
	runHTTP bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runHTTP, "http", false, "serve the status API on PORT")
}

func runSession(cmd *cobra.Command, args []string) error {
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

	g, gctx := errgroup.WithContext(ctx)
	httpCtx, stopHTTP := context.WithCancel(gctx)
	defer stopHTTP()

	if runHTTP {
		server := newStatusServer(app, nil)
		g.Go(func() error { return server.Run(httpCtx) })
	}

	g.Go(func() error {
		defer stopHTTP()
		result, err := app.runSession(gctx)
		if result != nil {
			printRunResult(cmd, result)
		}
		return err
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// newStatusServer wires the status API; jobs is nil outside the daemon
func newStatusServer(app *App, jobs *scheduler.Scheduler) *api.Server {
	var jobSource handlers.JobSource
	if jobs != nil {
		jobSource = jobs
	}

	status := handlers.NewStatusHandler(app, feedView{app: app}, app.store, jobSource, app.loc, app.log)
	router := api.NewRouter(status, app.log)
	return api.New(":"+app.cfg.Port, app.log, router)
}
