package commands

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wonny/optrader/internal/broker"
	"github.com/wonny/optrader/internal/engine"
	"github.com/wonny/optrader/internal/external/kite"
	"github.com/wonny/optrader/internal/ledger"
	"github.com/wonny/optrader/internal/lifecycle"
	"github.com/wonny/optrader/internal/realtime"
	"github.com/wonny/optrader/internal/realtime/feed"
	"github.com/wonny/optrader/internal/selection"
	"github.com/wonny/optrader/internal/strategyconfig"
	"github.com/wonny/optrader/pkg/config"
	"github.com/wonny/optrader/pkg/logger"
	"github.com/wonny/optrader/pkg/redis"
)

// App holds the long-lived collaborators shared by every session
// ⭐ SSOT: 의존성 조립은 여기서만
type App struct {
	cfg    *config.Config
	log    *logger.Logger
	loc    *time.Location
	redis  *redis.Client
	kite   *kite.Client
	broker *broker.Session
	store  ledger.Store

	// 실행 중인 세션 (상태 API용)
	controller atomic.Pointer[engine.Controller]
	feed       atomic.Pointer[feed.Feed]
}

// newApp opens the ledger, redis and the venue client; it does not log in
func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	if err := cfg.RequireKite(); err != nil {
		return nil, err
	}

	loc := cfg.Trading.Location()

	rdb, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		log.WithError(err).Warn("Redis unavailable, continuing without shared cache")
		rdb = redis.Disabled()
	}

	store, err := ledger.Open(ctx, cfg)
	if err != nil {
		rdb.Close()
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	kc := kite.NewClient(cfg.Kite, loc, log,
		kite.WithCache(redis.NewCache(rdb, "optrader")),
		kite.WithSharedLimit(redis.NewRateLimiter(rdb, "optrader")),
	)

	b := broker.NewSession(kc, broker.Config{
		MaxAttempts: cfg.Trading.MaxAttempts,
		LTPAttempts: cfg.Trading.LTPAttempts,
	}, log)

	return &App{
		cfg:    cfg,
		log:    log,
		loc:    loc,
		redis:  rdb,
		kite:   kc,
		broker: b,
		store:  store,
	}, nil
}

// Close releases the ledger and redis connections
func (a *App) Close() {
	if err := a.store.Close(); err != nil {
		a.log.WithError(err).Warn("Failed to close ledger")
	}
	a.redis.Close()
}

// loadParams reads and validates the strategy parameter file, logging warnings
func (a *App) loadParams() (*strategyconfig.Config, error) {
	params, _, err := strategyconfig.Load(a.cfg.Trading.ParamsFile)
	if err != nil {
		return nil, err
	}
	for _, w := range strategyconfig.Warn(params, time.Now(), a.loc) {
		a.log.WithField("code", w.Code).Warn(w.Message)
	}
	return params, nil
}

// RunSession runs one trading session; used by the daemon job
func (a *App) RunSession(ctx context.Context) error {
	_, err := a.runSession(ctx)
	return err
}

// runSession logs in, starts the feed and trades until the session ends
func (a *App) runSession(ctx context.Context) (*engine.RunResult, error) {
	params, err := a.loadParams()
	if err != nil {
		return nil, fmt.Errorf("load params: %w", err)
	}

	if err := a.kite.Login(ctx); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	f := feed.New(a.kite.WebSocketURL, kite.NewDecoder(a.loc), a.log)
	ctrl := engine.NewController(f.Ticks(), f.Updates(), a.store, a.log, a.cfg.Trading.Workers)
	sel := selection.NewSelector(a.broker, a.loc, a.log, nil)
	sess := engine.NewSession(a.broker, a.store, f, ctrl, sel, a.log, nil)

	a.controller.Store(ctrl)
	a.feed.Store(f)

	g, gctx := errgroup.WithContext(ctx)
	feedCtx, stopFeed := context.WithCancel(gctx)
	defer stopFeed()

	var result *engine.RunResult

	g.Go(func() error {
		err := f.Run(feedCtx)
		if errors.Is(err, context.Canceled) && ctx.Err() == nil {
			return nil
		}
		return err
	})

	g.Go(func() error {
		defer stopFeed()
		r, err := sess.Run(gctx, engine.RunConfig{
			Params:       params,
			Location:     a.loc,
			PollInterval: a.cfg.Trading.PollInterval,
			Exchanges:    a.cfg.Trading.Exchanges,
		})
		result = r
		return err
	})

	if err := g.Wait(); err != nil {
		return result, err
	}
	return result, nil
}

// Snapshot returns the live lifecycles of the running session
func (a *App) Snapshot() []lifecycle.Snapshot {
	if c := a.controller.Load(); c != nil {
		return c.Snapshot()
	}
	return nil
}

// Stats returns the controller counters of the running session
func (a *App) Stats() engine.ControllerStats {
	if c := a.controller.Load(); c != nil {
		return c.Stats()
	}
	return engine.ControllerStats{}
}

// feedView exposes the running session's feed to the status API
type feedView struct {
	app *App
}

func (v feedView) Stats() realtime.FeedStats {
	if f := v.app.feed.Load(); f != nil {
		return f.Stats()
	}
	return realtime.FeedStats{State: realtime.StateDisconnected}
}
