package collector

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/gtoxlili/echoBand/config"
	"github.com/gtoxlili/echoBand/entity"
)

var quoteAssets = []string{"USDT", "USDC", "FDUSD", "BUSD", "BTC", "ETH", "BNB"}

type Option func(*Binance)

func WithLogger(logger *zap.Logger) Option {
	return func(b *Binance) { b.logger = logger }
}

// Binance serves both spot and USDT-M futures through one Exchange.
type Binance struct {
	spot    *binance.Client
	futures *futures.Client
	logger  *zap.Logger

	mu sync.Mutex
	// spot fills arrive only on the create-order response
	fills map[int64][]*binance.Fill
	// futures taker rate per symbol, for fee estimates
	takers map[string]float64
}

func NewBinance(apiKey, secretKey string, useTestnet bool, opts ...Option) *Binance {
	binance.UseTestnet = useTestnet
	futures.UseTestnet = useTestnet

	b := &Binance{
		spot:    binance.NewClient(apiKey, secretKey),
		futures: binance.NewFuturesClient(apiKey, secretKey),
		logger:  zap.NewNop(),
		fills:   make(map[int64][]*binance.Fill),
		takers:  make(map[string]float64),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Binance) Name() string {
	return "binance"
}

func (b *Binance) HistoricalCandles(ctx context.Context, symbol string, period int64, start, end time.Time, asset entity.AssetType) ([]entity.Candle, error) {
	interval, err := config.BinanceInterval(period)
	if err != nil {
		return nil, err
	}
	startMs := start.UnixMilli()
	// klines endTime is inclusive
	endMs := end.UnixMilli() - 1

	var candles []entity.Candle
	switch asset {
	case entity.Futures:
		klines, err := b.futures.NewKlinesService().Symbol(symbol).Interval(interval).
			StartTime(startMs).EndTime(endMs).Limit(config.KlineLimit).Do(ctx)
		if err != nil {
			return nil, &entity.ExchangeError{Op: "futures klines " + symbol, Err: err}
		}
		candles = lo.Map(klines, func(k *futures.Kline, _ int) entity.Candle {
			return parseCandle(k.OpenTime, k.Open, k.High, k.Low, k.Close, k.Volume)
		})
	default:
		klines, err := b.spot.NewKlinesService().Symbol(symbol).Interval(interval).
			StartTime(startMs).EndTime(endMs).Limit(config.KlineLimit).Do(ctx)
		if err != nil {
			return nil, &entity.ExchangeError{Op: "spot klines " + symbol, Err: err}
		}
		candles = lo.Map(klines, func(k *binance.Kline, _ int) entity.Candle {
			return parseCandle(k.OpenTime, k.Open, k.High, k.Low, k.Close, k.Volume)
		})
	}
	return candles, nil
}

func parseCandle(openTimeMs int64, open, high, low, closing, volume string) entity.Candle {
	return entity.Candle{
		Start:  openTimeMs / 1000,
		Open:   parseFloat(open),
		High:   parseFloat(high),
		Low:    parseFloat(low),
		Close:  parseFloat(closing),
		Volume: parseFloat(volume),
	}
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func (b *Binance) Book(ctx context.Context, symbol string, asset entity.AssetType, depth int) (entity.OrderBook, error) {
	limit := bookLimit(depth)
	if asset == entity.Futures {
		res, err := b.futures.NewDepthService().Symbol(symbol).Limit(limit).Do(ctx)
		if err != nil {
			return entity.OrderBook{}, &entity.ExchangeError{Op: "futures depth " + symbol, Err: err}
		}
		return entity.OrderBook{
			Bids: lo.Map(res.Bids, func(l futures.Bid, _ int) entity.Level { return level(l.Price, l.Quantity) }),
			Asks: lo.Map(res.Asks, func(l futures.Ask, _ int) entity.Level { return level(l.Price, l.Quantity) }),
		}, nil
	}

	res, err := b.spot.NewDepthService().Symbol(symbol).Limit(limit).Do(ctx)
	if err != nil {
		return entity.OrderBook{}, &entity.ExchangeError{Op: "spot depth " + symbol, Err: err}
	}
	return entity.OrderBook{
		Bids: lo.Map(res.Bids, func(l binance.Bid, _ int) entity.Level { return level(l.Price, l.Quantity) }),
		Asks: lo.Map(res.Asks, func(l binance.Ask, _ int) entity.Level { return level(l.Price, l.Quantity) }),
	}, nil
}

func level(price, quantity string) entity.Level {
	return entity.Level{Price: parseFloat(price), Quantity: parseFloat(quantity)}
}

// bookLimit rounds depth up to a limit the depth endpoint accepts.
func bookLimit(depth int) int {
	for _, l := range []int{5, 10, 20, 50, 100, 500, 1000} {
		if depth <= l {
			return l
		}
	}
	return 1000
}

func (b *Binance) Balances(ctx context.Context, asset entity.AssetType) (map[string]float64, error) {
	if asset == entity.Futures {
		res, err := b.futures.NewGetBalanceService().Do(ctx)
		if err != nil {
			return nil, &entity.ExchangeError{Op: "futures balance", Err: err}
		}
		return lo.SliceToMap(res, func(bal *futures.Balance) (string, float64) {
			return bal.Asset, parseFloat(bal.AvailableBalance)
		}), nil
	}

	account, err := b.spot.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, &entity.ExchangeError{Op: "spot account", Err: err}
	}
	return lo.SliceToMap(account.Balances, func(bal binance.Balance) (string, float64) {
		return bal.Asset, parseFloat(bal.Free)
	}), nil
}

func (b *Binance) PlaceOrder(ctx context.Context, req entity.OrderRequest) (string, error) {
	if req.Asset == entity.Futures {
		svc := b.futures.NewCreateOrderService().Symbol(req.Symbol).
			Side(futures.SideType(req.Side)).Type(futures.OrderTypeMarket).Quantity(req.Quantity)
		if req.ReduceOnly {
			svc = svc.ReduceOnly(true)
		}
		res, err := svc.Do(ctx)
		if err != nil {
			return "", &entity.ExchangeError{Op: "futures order " + req.Symbol, Err: errors.Join(entity.ErrOrderPlacement, err)}
		}
		return strconv.FormatInt(res.OrderID, 10), nil
	}

	res, err := b.spot.NewCreateOrderService().Symbol(req.Symbol).
		Side(binance.SideType(req.Side)).Type(binance.OrderTypeMarket).Quantity(req.Quantity).
		NewOrderRespType(binance.NewOrderRespTypeFULL).Do(ctx)
	if err != nil {
		return "", &entity.ExchangeError{Op: "spot order " + req.Symbol, Err: errors.Join(entity.ErrOrderPlacement, err)}
	}

	b.mu.Lock()
	b.fills[res.OrderID] = res.Fills
	b.mu.Unlock()
	return strconv.FormatInt(res.OrderID, 10), nil
}

func (b *Binance) OrderStatus(ctx context.Context, symbol string, asset entity.AssetType, orderID string) (entity.OrderStatus, error) {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return entity.OrderStatus{}, fmt.Errorf("invalid order id %q: %w", orderID, err)
	}

	if asset == entity.Futures {
		order, err := b.futures.NewGetOrderService().Symbol(symbol).OrderID(id).Do(ctx)
		if err != nil {
			return entity.OrderStatus{}, &entity.ExchangeError{Op: "futures order status " + orderID, Err: err}
		}
		status := entity.OrderStatus{
			OrderID:  orderID,
			Side:     entity.Side(order.Side),
			Status:   string(order.Status),
			Price:    parseFloat(order.AvgPrice),
			Quantity: parseFloat(order.ExecutedQuantity),
			FeeAsset: quoteOf(symbol),
		}
		taker, err := b.futuresTaker(ctx, symbol)
		if err != nil {
			b.logger.Warn("commission rate unavailable", zap.String("symbol", symbol), zap.Error(err))
			taker = config.DefaultFuturesFee
		}
		status.Fee = status.Price * status.Quantity * taker
		return status, nil
	}

	order, err := b.spot.NewGetOrderService().Symbol(symbol).OrderID(id).Do(ctx)
	if err != nil {
		return entity.OrderStatus{}, &entity.ExchangeError{Op: "spot order status " + orderID, Err: err}
	}
	status := entity.OrderStatus{
		OrderID:  orderID,
		Side:     entity.Side(order.Side),
		Status:   string(order.Status),
		Quantity: parseFloat(order.ExecutedQuantity),
	}
	if status.Quantity > 0 {
		status.Price = parseFloat(order.CummulativeQuoteQuantity) / status.Quantity
	}

	b.mu.Lock()
	fills := b.fills[id]
	if status.Filled() {
		delete(b.fills, id)
	}
	b.mu.Unlock()
	status.Fee = lo.SumBy(fills, func(f *binance.Fill) float64 { return parseFloat(f.Commission) })
	if len(fills) > 0 {
		status.FeeAsset = fills[0].CommissionAsset
	}
	return status, nil
}

func (b *Binance) futuresTaker(ctx context.Context, symbol string) (float64, error) {
	b.mu.Lock()
	taker, ok := b.takers[symbol]
	b.mu.Unlock()
	if ok {
		return taker, nil
	}
	fee, err := b.TradeFee(ctx, symbol, entity.Futures)
	if err != nil {
		return 0, err
	}
	b.mu.Lock()
	b.takers[symbol] = fee.Taker
	b.mu.Unlock()
	return fee.Taker, nil
}

func (b *Binance) TradeFee(ctx context.Context, symbol string, asset entity.AssetType) (entity.FeeRate, error) {
	if asset == entity.Futures {
		res, err := b.futures.NewCommissionRateService().Symbol(symbol).Do(ctx)
		if err != nil {
			return entity.FeeRate{}, &entity.ExchangeError{Op: "futures commission " + symbol, Err: err}
		}
		return entity.FeeRate{
			Maker: parseFloat(res.MakerCommissionRate),
			Taker: parseFloat(res.TakerCommissionRate),
		}, nil
	}

	res, err := b.spot.NewTradeFeeService().Symbol(symbol).Do(ctx)
	if err != nil {
		return entity.FeeRate{}, &entity.ExchangeError{Op: "spot trade fee " + symbol, Err: err}
	}
	for _, fee := range res {
		if fee.Symbol == symbol {
			return entity.FeeRate{
				Maker: parseFloat(fee.MakerCommission),
				Taker: parseFloat(fee.TakerCommission),
			}, nil
		}
	}
	return entity.FeeRate{}, &entity.ExchangeError{Op: "spot trade fee " + symbol, Err: errors.New("symbol not found")}
}

func (b *Binance) SymbolRules(ctx context.Context, symbol string, asset entity.AssetType) (entity.SymbolRules, error) {
	if asset == entity.Futures {
		info, err := b.futures.NewExchangeInfoService().Do(ctx)
		if err != nil {
			return entity.SymbolRules{}, &entity.ExchangeError{Op: "futures exchange info", Err: err}
		}
		for _, s := range info.Symbols {
			if s.Symbol != symbol {
				continue
			}
			var rules entity.SymbolRules
			if lot := s.LotSizeFilter(); lot != nil {
				rules.StepSize, rules.MinQuantity = lot.StepSize, lot.MinQuantity
			}
			if price := s.PriceFilter(); price != nil {
				rules.TickSize = price.TickSize
			}
			return rules, nil
		}
		return entity.SymbolRules{}, &entity.ExchangeError{Op: "futures exchange info", Err: fmt.Errorf("symbol %s not found", symbol)}
	}

	info, err := b.spot.NewExchangeInfoService().Symbol(symbol).Do(ctx)
	if err != nil {
		return entity.SymbolRules{}, &entity.ExchangeError{Op: "spot exchange info", Err: err}
	}
	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		var rules entity.SymbolRules
		if lot := s.LotSizeFilter(); lot != nil {
			rules.StepSize, rules.MinQuantity = lot.StepSize, lot.MinQuantity
		}
		if price := s.PriceFilter(); price != nil {
			rules.TickSize = price.TickSize
		}
		return rules, nil
	}
	return entity.SymbolRules{}, &entity.ExchangeError{Op: "spot exchange info", Err: fmt.Errorf("symbol %s not found", symbol)}
}

func (b *Binance) MarkPrice(ctx context.Context, symbol string, asset entity.AssetType) (float64, error) {
	if asset == entity.Futures {
		idx, err := b.premiumIndex(ctx, symbol)
		if err != nil {
			return 0, err
		}
		return parseFloat(idx.MarkPrice), nil
	}

	prices, err := b.spot.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, &entity.ExchangeError{Op: "spot price " + symbol, Err: err}
	}
	for _, p := range prices {
		if p.Symbol == symbol {
			return parseFloat(p.Price), nil
		}
	}
	return 0, &entity.ExchangeError{Op: "spot price " + symbol, Err: errors.New("symbol not found in price list")}
}

func (b *Binance) IndexPrice(ctx context.Context, symbol string) (float64, error) {
	idx, err := b.premiumIndex(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return parseFloat(idx.IndexPrice), nil
}

func (b *Binance) premiumIndex(ctx context.Context, symbol string) (*futures.PremiumIndex, error) {
	res, err := b.futures.NewPremiumIndexService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, &entity.ExchangeError{Op: "futures premium index " + symbol, Err: err}
	}
	// the endpoint returns a list even for one symbol
	for _, r := range res {
		if r.Symbol == symbol {
			return r, nil
		}
	}
	return nil, &entity.ExchangeError{Op: "futures premium index " + symbol, Err: errors.New("symbol not found")}
}

func quoteOf(symbol string) string {
	for _, q := range quoteAssets {
		if strings.HasSuffix(symbol, q) {
			return q
		}
	}
	return ""
}
