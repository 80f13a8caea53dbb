package collector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gtoxlili/echoBand/entity"
)

// Exchange is everything the engine needs from a venue. Implementations
// must be safe for concurrent use.
type Exchange interface {
	Name() string
	// HistoricalCandles returns at most one page of candles starting in [start, end).
	HistoricalCandles(ctx context.Context, symbol string, period int64, start, end time.Time, asset entity.AssetType) ([]entity.Candle, error)
	Book(ctx context.Context, symbol string, asset entity.AssetType, depth int) (entity.OrderBook, error)
	// Balances maps asset to free balance.
	Balances(ctx context.Context, asset entity.AssetType) (map[string]float64, error)
	PlaceOrder(ctx context.Context, req entity.OrderRequest) (string, error)
	OrderStatus(ctx context.Context, symbol string, asset entity.AssetType, orderID string) (entity.OrderStatus, error)
	TradeFee(ctx context.Context, symbol string, asset entity.AssetType) (entity.FeeRate, error)
	SymbolRules(ctx context.Context, symbol string, asset entity.AssetType) (entity.SymbolRules, error)
	// MarkPrice is the futures mark price or the spot last price.
	MarkPrice(ctx context.Context, symbol string, asset entity.AssetType) (float64, error)
	// IndexPrice is the futures index price.
	IndexPrice(ctx context.Context, symbol string) (float64, error)
}

// CandleCache stores fetched history between runs.
type CandleCache interface {
	LoadCandles(ctx context.Context, key entity.SeriesKey, start, end int64) ([]entity.Candle, error)
	SaveCandles(ctx context.Context, key entity.SeriesKey, candles []entity.Candle) error
}

// ResolveExchange builds the client for a configured exchange name.
func ResolveExchange(name, apiKey, secretKey string, useTestnet bool, opts ...Option) (Exchange, error) {
	switch strings.ToLower(name) {
	case "binance":
		return NewBinance(apiKey, secretKey, useTestnet, opts...), nil
	default:
		return nil, &entity.ConfigError{Field: "exchange", Reason: fmt.Sprintf("unsupported exchange %q", name)}
	}
}
