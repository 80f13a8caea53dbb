package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gtoxlili/echoBand/collector"
	"github.com/gtoxlili/echoBand/config"
	"github.com/gtoxlili/echoBand/entity"
	"github.com/gtoxlili/echoBand/notify"
	"github.com/gtoxlili/echoBand/recorder"
	"github.com/gtoxlili/echoBand/trade"
)

type Mode string

const (
	ModeBacktest Mode = "backtest"
	ModeLive     Mode = "live"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(s)); m {
	case ModeBacktest, ModeLive:
		return m, nil
	}
	return "", &entity.ConfigError{Field: "mode", Reason: fmt.Sprintf("unknown mode %q", s)}
}

// Deps are the collaborators a run needs. Only Exchange is required.
type Deps struct {
	Exchange collector.Exchange
	Cache    collector.CandleCache
	Recorder recorder.Recorder
	Notifier notify.Notifier
	Logger   *zap.Logger
	// Now is the wall clock; nil means time.Now.
	Now func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Recorder == nil {
		d.Recorder = recorder.Noop{}
	}
	if d.Notifier == nil {
		d.Notifier = notify.Noop{}
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// Run validates cfg for mode and drives one backtest or live session.
// Configuration errors are returned before any exchange I/O.
func Run(ctx context.Context, cfg *config.Config, mode Mode, deps Deps) error {
	if deps.Exchange == nil {
		return errors.New("engine: no exchange")
	}
	switch mode {
	case ModeBacktest:
		if err := cfg.ValidateBacktest(); err != nil {
			return err
		}
		bt, err := NewBacktest(cfg, deps)
		if err != nil {
			return err
		}
		_, err = bt.Run(ctx)
		return err
	case ModeLive:
		if err := cfg.ValidateLive(); err != nil {
			return err
		}
		live, err := NewLive(cfg, deps)
		if err != nil {
			return err
		}
		return live.Run(ctx)
	}
	_, err := ParseMode(string(mode))
	return err
}

func seriesKeys(cfg *config.Config, ex collector.Exchange) (fast, slow entity.SeriesKey) {
	base := entity.SeriesKey{Exchange: ex.Name(), Symbol: cfg.Symbol(), Asset: cfg.AssetType}
	fast, slow = base, base
	fast.Period, slow.Period = cfg.Fast().Period, cfg.Slow().Period
	return fast, slow
}

// feeRate is the configured rate, else the exchange taker rate, else the
// asset default.
func feeRate(ctx context.Context, cfg *config.Config, ex collector.Exchange, logger *zap.Logger) float64 {
	if cfg.FeeRate > 0 {
		return cfg.FeeRate
	}
	fee, err := ex.TradeFee(ctx, cfg.Symbol(), cfg.AssetType)
	if err != nil || fee.Taker <= 0 {
		logger.Warn("trade fee lookup failed, using default", zap.Float64("fee", cfg.Fee()), zap.Error(err))
		return cfg.Fee()
	}
	return fee.Taker
}

// recoverable reports whether the live loop may retry after err.
// Anything that can leave the account and the machine out of step halts it.
func recoverable(err error) bool {
	switch {
	case errors.Is(err, entity.ErrApplicationState),
		errors.Is(err, entity.ErrOrderPlacement),
		errors.Is(err, trade.ErrUnconfirmed):
		return false
	}
	return errors.Is(err, entity.ErrDataIntegrity) || errors.Is(err, entity.ErrExchange)
}
