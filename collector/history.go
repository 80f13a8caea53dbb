package collector

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/gtoxlili/echoBand/entity"
)

type HistoryRequest struct {
	Key   entity.SeriesKey
	Start time.Time
	End   time.Time
	// Now decides which candles are closed and may be cached; zero means time.Now().
	Now time.Time
}

// Span returns the grid-aligned [start, end) in unix seconds and the number
// of candles it holds.
func (r HistoryRequest) Span() (start, end, count int64) {
	p := r.Key.Period
	start = r.Start.Unix()
	if rem := start % p; rem != 0 {
		start += p - rem
	}
	end = r.End.Unix()
	if end <= start {
		return start, start, 0
	}
	return start, end, (end - start + p - 1) / p
}

// FetchHistory returns the candles starting in [Start, End), served from
// cache when it holds the full span and paginated from the exchange
// otherwise. Gaps are not checked here.
func FetchHistory(ctx context.Context, ex Exchange, cache CandleCache, req HistoryRequest, logger *zap.Logger) ([]entity.Candle, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}
	start, end, count := req.Span()
	if count == 0 {
		return nil, nil
	}
	key := req.Key

	if cache != nil {
		cached, err := cache.LoadCandles(ctx, key, start, end)
		if err != nil {
			logger.Warn("candle cache read failed", zap.Stringer("series", key), zap.Error(err))
		} else if int64(len(cached)) == count && ValidateSeries(key, cached) == nil {
			logger.Debug("history served from cache", zap.Stringer("series", key), zap.Int("candles", len(cached)))
			return cached, nil
		}
	}

	var (
		candles []entity.Candle
		cursor  = start
	)
	for cursor < end {
		page, err := ex.HistoricalCandles(ctx, key.Symbol, key.Period, time.Unix(cursor, 0), time.Unix(end, 0), key.Asset)
		if err != nil {
			return nil, fmt.Errorf("fetch %s from %d: %w", key, cursor, err)
		}
		if len(page) == 0 {
			break
		}
		candles = append(candles, page...)

		next := lo.MaxBy(page, func(a, b entity.Candle) bool { return a.Start > b.Start }).Start + key.Period
		if next <= cursor {
			break
		}
		cursor = next
	}

	candles = lo.Filter(candles, func(c entity.Candle, _ int) bool { return c.Start >= start && c.Start < end })
	candles = lo.UniqBy(candles, func(c entity.Candle) int64 { return c.Start })
	sort.Slice(candles, func(i, j int) bool { return candles[i].Start < candles[j].Start })
	logger.Info("history fetched",
		zap.Stringer("series", key),
		zap.Int("candles", len(candles)),
		zap.Int64("expected", count),
	)

	if cache != nil {
		closed := lo.Filter(candles, func(c entity.Candle, _ int) bool { return c.ClosedAt(key.Period, now.Unix()) })
		if err := cache.SaveCandles(ctx, key, closed); err != nil {
			logger.Warn("candle cache write failed", zap.Stringer("series", key), zap.Error(err))
		}
	}
	return candles, nil
}
