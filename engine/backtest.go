package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gtoxlili/echoBand/accounting"
	"github.com/gtoxlili/echoBand/collector"
	"github.com/gtoxlili/echoBand/config"
	"github.com/gtoxlili/echoBand/entity"
	"github.com/gtoxlili/echoBand/recorder"
	"github.com/gtoxlili/echoBand/strategy"
	"github.com/gtoxlili/echoBand/ta"
	"github.com/gtoxlili/echoBand/trade"
)

type BacktestResult struct {
	Trades  []entity.TradeIntent
	Rows    int
	Fee     float64
	PnL     accounting.Result
	Report  accounting.Report
	Records []entity.TradeRecord
}

// Backtest replays history through the position machine. Nothing is
// written until the whole replay has succeeded.
type Backtest struct {
	cfg  *config.Config
	deps Deps

	fastKey, slowKey entity.SeriesKey
}

func NewBacktest(cfg *config.Config, deps Deps) (*Backtest, error) {
	if cfg.Start == nil || cfg.Start.IsZero() {
		return nil, &entity.ConfigError{Field: "start", Reason: "required for a backtest"}
	}
	deps = deps.withDefaults()
	fast, slow := seriesKeys(cfg, deps.Exchange)
	return &Backtest{cfg: cfg, deps: deps, fastKey: fast, slowKey: slow}, nil
}

// Window is the replayed span: start aligned down to the slow period, end
// defaulting to now.
func (b *Backtest) Window() (start, end time.Time) {
	s := b.cfg.Start.Time().Unix()
	s -= s % b.slowKey.Period
	end = b.deps.Now()
	if b.cfg.End != nil && !b.cfg.End.IsZero() {
		end = b.cfg.End.Time()
	}
	return time.Unix(s, 0).UTC(), end.UTC()
}

func (b *Backtest) Run(ctx context.Context) (*BacktestResult, error) {
	logger := b.deps.Logger.With(zap.String("run", b.cfg.Name), zap.String("symbol", b.cfg.Symbol()))
	start, end := b.Window()
	logger.Info("backtest starting", zap.Time("start", start), zap.Time("end", end), zap.String("variant", string(b.cfg.Strategy.Variant)))

	var fast, slow []entity.Candle
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		fast, err = b.history(gctx, b.fastKey, b.cfg.Fast(), start, end)
		return err
	})
	g.Go(func() error {
		var err error
		slow, err = b.history(gctx, b.slowKey, b.cfg.Slow(), start, end)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	fast = collector.TrimToSlow(fast, slow, b.slowKey.Period)

	pipeline := ta.NewPipeline(b.cfg.Strategy.Indicators(b.fastKey.Period, b.slowKey.Period))
	rows := pipeline.Build(fast, slow, end.Unix())
	logger.Info("indicators ready", zap.Int("fast", len(fast)), zap.Int("slow", len(slow)), zap.Int("rows", len(rows)))

	exec := trade.NewBacktestExecutor(logger)
	machine, err := strategy.NewMachine(b.cfg.Strategy, exec, logger)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := machine.OnCandle(ctx, row); err != nil {
			return nil, fmt.Errorf("candle %d: %w", row.Start, err)
		}
	}

	fee := feeRate(ctx, b.cfg, b.deps.Exchange, logger)
	res := &BacktestResult{Trades: exec.Trades(), Rows: len(rows), Fee: fee}
	if res.PnL, err = accounting.CalcPnL(res.Trades, fee, b.cfg.StartCapital); err != nil {
		return nil, err
	}
	res.Report = accounting.BuildReport(res.PnL, fast)
	res.Records = exec.Records(b.cfg.Symbol())
	if res.PnL.OpenAtEnd {
		logger.Info("position still open at the end of the window")
	}

	b.publish(ctx, logger, res, start, end)
	return res, nil
}

func (b *Backtest) history(ctx context.Context, key entity.SeriesKey, series config.Series, start, end time.Time) ([]entity.Candle, error) {
	candles, err := collector.FetchHistory(ctx, b.deps.Exchange, b.deps.Cache, collector.HistoryRequest{
		Key: key, Start: start, End: end, Now: b.deps.Now(),
	}, b.deps.Logger)
	if err != nil {
		return nil, err
	}
	if err := collector.ValidateSeries(key, candles); err != nil {
		return nil, err
	}
	if err := collector.ValidateWarmup(key, candles, series.Lookback); err != nil {
		return nil, err
	}
	return candles, nil
}

// publish writes the ledger, equity curve, recorder run and summary.
// Output failures are logged; the replay result stands.
func (b *Backtest) publish(ctx context.Context, logger *zap.Logger, res *BacktestResult, start, end time.Time) {
	summary := res.Report.String()
	logger.Info("backtest finished",
		zap.Int("trades", len(res.Trades)),
		zap.Float64("end_capital", res.PnL.EndCapital),
		zap.Float64("fee", res.Fee),
	)
	logger.Info(summary)

	if b.cfg.LedgerPath != "" {
		ledger, err := trade.NewLedger(b.cfg.LedgerPath)
		if err == nil {
			err = ledger.AppendAll(res.Records)
		}
		if err != nil {
			logger.Error("ledger write failed", zap.Error(err))
		}
	}
	if b.cfg.EquityPath != "" {
		if err := trade.WriteEquity(b.cfg.EquityPath, res.PnL.StartCapital, res.PnL.Balances); err != nil {
			logger.Error("equity write failed", zap.Error(err))
		}
	}

	run := &recorder.Run{
		Name:     b.cfg.Name,
		Symbol:   b.cfg.Symbol(),
		Asset:    b.cfg.AssetType,
		Variant:  string(b.cfg.Strategy.Variant),
		Start:    start,
		End:      end,
		Report:   res.Report,
		Trades:   res.Records,
		Balances: res.PnL.Balances,
	}
	if err := b.deps.Recorder.RecordRun(ctx, run); err != nil {
		logger.Warn("run not recorded", zap.Error(err))
	}
	if err := b.deps.Notifier.Send(ctx, fmt.Sprintf("📊 backtest %s %s\n%s", b.cfg.Name, b.cfg.Symbol(), summary)); err != nil {
		logger.Warn("notification failed", zap.Error(err))
	}
}
