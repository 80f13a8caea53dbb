package trade

import (
	"context"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/gtoxlili/echoBand/entity"
)

// BacktestExecutor fills every intent at the row's close price and only
// keeps the in-memory log.
type BacktestExecutor struct {
	trades []entity.TradeIntent
	logger *zap.Logger
}

func NewBacktestExecutor(logger *zap.Logger) *BacktestExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BacktestExecutor{logger: logger}
}

func (e *BacktestExecutor) Execute(_ context.Context, intent entity.TradeIntent) error {
	e.trades = append(e.trades, intent)
	e.logger.Debug("simulated trade",
		zap.Int64("candle", intent.CandleTime),
		zap.String("intent", intent.String()),
	)
	return nil
}

// Trades returns a copy of the log in execution order.
func (e *BacktestExecutor) Trades() []entity.TradeIntent {
	return append([]entity.TradeIntent(nil), e.trades...)
}

// Records turns the log into ledger rows, stamped with the candle time.
func (e *BacktestExecutor) Records(symbol string) []entity.TradeRecord {
	return lo.Map(e.trades, func(intent entity.TradeIntent, _ int) entity.TradeRecord {
		return entity.TradeRecord{
			TradeIntent: intent,
			TradeTime:   time.Unix(intent.CandleTime, 0).UTC(),
			Symbol:      symbol,
		}
	})
}
