package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gtoxlili/echoBand/collector"
	"github.com/gtoxlili/echoBand/config"
	"github.com/gtoxlili/echoBand/entity"
	"github.com/gtoxlili/echoBand/strategy"
	"github.com/gtoxlili/echoBand/ta"
	"github.com/gtoxlili/echoBand/trade"
	"github.com/gtoxlili/echoBand/utils"
)

// Live polls the exchange and feeds each newly closed fast candle to the
// position machine exactly once.
type Live struct {
	cfg  *config.Config
	deps Deps

	fastKey, slowKey entity.SeriesKey
	store            *collector.Store
	pipeline         *ta.Pipeline
	exec             *trade.LiveExecutor
	machine          *strategy.Machine
	logger           *zap.Logger

	// start of the newest fast row already given to the machine
	lastRow int64
}

func NewLive(cfg *config.Config, deps Deps) (*Live, error) {
	deps = deps.withDefaults()
	logger := deps.Logger.With(zap.String("run", cfg.Name), zap.String("symbol", cfg.Symbol()))

	ledger, err := trade.NewLedger(cfg.LedgerPath)
	if err != nil {
		return nil, err
	}
	exec := trade.NewLiveExecutor(deps.Exchange, trade.LiveConfig{
		Symbol:         cfg.Symbol(),
		Base:           cfg.Base,
		Quote:          cfg.Quote,
		Asset:          cfg.AssetType,
		Leverage:       cfg.Leverage,
		SafetyMargin:   cfg.SafetyMargin,
		MaxSlippagePct: cfg.MaxSlippagePct,
		BookDepth:      cfg.BookDepth,
		Retry:          cfg.RetryPolicy(),
	}, trade.LiveDeps{
		Manager:  trade.NewManager(logger),
		Ledger:   ledger,
		Sink:     deps.Recorder,
		Notifier: deps.Notifier,
		Logger:   logger,
		Now:      deps.Now,
	})
	machine, err := strategy.NewMachine(cfg.Strategy, exec, logger)
	if err != nil {
		return nil, err
	}

	fast, slow := seriesKeys(cfg, deps.Exchange)
	return &Live{
		cfg:      cfg,
		deps:     deps,
		fastKey:  fast,
		slowKey:  slow,
		store:    collector.NewStore(config.MaxStoreLength),
		pipeline: ta.NewPipeline(cfg.Strategy.Indicators(fast.Period, slow.Period)),
		exec:     exec,
		machine:  machine,
		logger:   logger,
	}, nil
}

func (l *Live) Machine() *strategy.Machine {
	return l.machine
}

// HistoryStart is the first candle needed to seed every indicator:
// max(period * lookback) plus two slow periods of padding, aligned down to
// the slow period.
func (l *Live) HistoryStart(now time.Time) time.Time {
	window := int64(0)
	for _, s := range l.cfg.Series {
		window = max(window, s.Period*int64(s.Lookback))
	}
	window += 2 * l.slowKey.Period
	start := now.Unix() - window
	start -= start % l.slowKey.Period
	return time.Unix(start, 0).UTC()
}

// Run bootstraps history, then polls until ctx ends or a fatal error.
func (l *Live) Run(ctx context.Context) error {
	if err := l.Bootstrap(ctx); err != nil {
		return err
	}

	hb := NewHeartbeat(l.cfg.Symbol(), l.exec, l.deps.Notifier, l.logger)
	c := cron.New(cron.WithSeconds())
	if _, err := c.AddFunc(l.cfg.HeartbeatCron, func() { hb.Beat(ctx) }); err != nil {
		return &entity.ConfigError{Field: "heartbeat_cron", Reason: err.Error()}
	}
	c.Start()
	defer func() { <-c.Stop().Done() }()

	l.notify(ctx, fmt.Sprintf("▶️ live trading %s (%s, %s)", l.cfg.Symbol(), l.cfg.AssetType, l.cfg.Strategy.Variant))
	ticker := time.NewTicker(l.cfg.PollInterval.Std())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("live trading stopped")
			return nil
		case <-ticker.C:
		}

		err := l.Poll(ctx)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			l.logger.Info("live trading stopped")
			return nil
		case recoverable(err):
			l.logger.Warn("poll failed, retrying next tick", zap.Error(err))
		default:
			l.logger.Error("live trading halted", zap.Error(err))
			l.notify(ctx, fmt.Sprintf("🛑 %s halted: %v", l.cfg.Symbol(), err))
			return err
		}
	}
}

// Bootstrap loads the history window into the store. Rows already closed
// are marked as seen and never traded. A position the ledger still shows
// open is reported to the operator and left alone.
func (l *Live) Bootstrap(ctx context.Context) error {
	now := l.deps.Now()
	start := l.HistoryStart(now)
	l.logger.Info("bootstrapping history", zap.Time("start", start))

	_, err := utils.RetryWithBackoff(ctx, l.retryPolicy("bootstrap"), func(ctx context.Context) (struct{}, error) {
		g, gctx := errgroup.WithContext(ctx)
		for _, key := range []entity.SeriesKey{l.fastKey, l.slowKey} {
			g.Go(func() error {
				candles, err := collector.FetchHistory(gctx, l.deps.Exchange, l.deps.Cache, collector.HistoryRequest{
					Key: key, Start: start, End: now, Now: now,
				}, l.logger)
				if err != nil {
					return err
				}
				return l.store.Load(key, candles)
			})
		}
		return struct{}{}, g.Wait()
	})
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	for key, series := range map[entity.SeriesKey]config.Series{l.fastKey: l.cfg.Fast(), l.slowKey: l.cfg.Slow()} {
		if err := collector.ValidateWarmup(key, l.store.Closed(key, now.Unix()), series.Lookback); err != nil {
			return err
		}
	}

	rows := l.pipeline.Build(l.store.Series(l.fastKey), l.store.Series(l.slowKey), now.Unix())
	if len(rows) == 0 {
		return &entity.DataIntegrityError{
			Series: l.fastKey.String(),
			Reason: "no tradable row after indicator warmup",
		}
	}
	l.lastRow = rows[len(rows)-1].Start
	l.logger.Info("history loaded", zap.Int("rows", len(rows)), zap.Int64("last_row", l.lastRow))

	rec, ok, err := l.exec.OpenInLedger()
	if err != nil {
		return err
	}
	if ok {
		// positions are not carried across restarts
		l.logger.Warn("ledger ends with an open position",
			zap.String("direction", string(rec.Direction)),
			zap.Float64("quantity", rec.Fill.Quantity),
			zap.Float64("price", rec.Fill.Price),
		)
		l.notify(ctx, fmt.Sprintf("⚠️ %s ledger ends with an open %s %g @ %g that this session does not manage", l.cfg.Symbol(), rec.Direction, rec.Fill.Quantity, rec.Fill.Price))
	}
	return nil
}

// Poll refreshes both series and gives every newly closed fast row to the
// machine, oldest first.
func (l *Live) Poll(ctx context.Context) error {
	now := l.deps.Now()
	for _, key := range []entity.SeriesKey{l.fastKey, l.slowKey} {
		if err := l.refresh(ctx, key, now); err != nil {
			return err
		}
	}

	rows := l.pipeline.Build(l.store.Series(l.fastKey), l.store.Series(l.slowKey), now.Unix())
	for _, row := range rows {
		if row.Start <= l.lastRow {
			continue
		}
		// a failed row stays pending and is fed again on the next poll
		closed, err := l.machine.OnCandle(ctx, row)
		if err != nil {
			return fmt.Errorf("candle %d: %w", row.Start, err)
		}
		l.lastRow = row.Start
		l.logger.Debug("candle processed",
			zap.Int64("candle", row.Start),
			zap.Float64("close", row.Close),
			zap.Stringer("position", l.machine.Position()),
			zap.Bool("closed", closed),
		)
	}
	return nil
}

// refresh fetches from the newest stored candle once it has closed, so its
// final values replace the partial ones and newer candles are appended.
func (l *Live) refresh(ctx context.Context, key entity.SeriesKey, now time.Time) error {
	last, ok := l.store.Last(key)
	if !ok {
		return fmt.Errorf("series %s is empty", key)
	}
	if !last.ClosedAt(key.Period, now.Unix()) {
		return nil
	}

	candles, err := utils.RetryWithBackoff(ctx, l.retryPolicy("candles"), func(ctx context.Context) ([]entity.Candle, error) {
		return collector.FetchHistory(ctx, l.deps.Exchange, nil, collector.HistoryRequest{
			Key: key, Start: time.Unix(last.Start, 0), End: now, Now: now,
		}, l.logger)
	})
	if err != nil {
		return err
	}
	for _, c := range candles {
		if err := l.store.AppendOrUpdate(key, c); err != nil {
			return err
		}
	}
	return nil
}

func (l *Live) notify(ctx context.Context, msg string) {
	if err := l.deps.Notifier.Send(ctx, msg); err != nil {
		l.logger.Warn("notification failed", zap.Error(err))
	}
}

func (l *Live) retryPolicy(op string) utils.RetryPolicy {
	policy := l.cfg.RetryPolicy()
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		l.logger.Warn("retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	}
	return policy
}
