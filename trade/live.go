package trade

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gtoxlili/echoBand/collector"
	"github.com/gtoxlili/echoBand/entity"
	"github.com/gtoxlili/echoBand/utils"
)

var (
	ErrOrderNotFilled = errors.New("order ended without a fill")
	// ErrUnconfirmed means an order was placed but its fill could not be
	// confirmed, so the account position is unknown.
	ErrUnconfirmed = errors.New("order placed but not confirmed")
	errPending     = errors.New("order not filled yet")
)

// Notifier delivers operator messages.
type Notifier interface {
	Send(ctx context.Context, msg string) error
}

// TradeSink mirrors ledger rows to secondary storage.
type TradeSink interface {
	RecordTrade(ctx context.Context, rec entity.TradeRecord) error
}

type LiveConfig struct {
	Symbol         string
	Base           string
	Quote          string
	Asset          entity.AssetType
	Leverage       float64
	SafetyMargin   float64
	MaxSlippagePct float64
	BookDepth      int
	// Retry covers idempotent reads and fill polling, never placement.
	Retry utils.RetryPolicy
}

type LiveDeps struct {
	Manager  *Manager
	Ledger   *Ledger
	Sink     TradeSink
	Notifier Notifier
	Logger   *zap.Logger
	// Now stamps trade times; nil means time.Now.
	Now func() time.Time
}

// LiveExecutor sizes, places and confirms market orders, then records them.
type LiveExecutor struct {
	ex   collector.Exchange
	cfg  LiveConfig
	deps LiveDeps

	rules *entity.SymbolRules
}

func NewLiveExecutor(ex collector.Exchange, cfg LiveConfig, deps LiveDeps) *LiveExecutor {
	if deps.Manager == nil {
		deps.Manager = NewManager(deps.Logger)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &LiveExecutor{ex: ex, cfg: cfg, deps: deps}
}

func (e *LiveExecutor) Manager() *Manager {
	return e.deps.Manager
}

type marketSnapshot struct {
	balances entity.Balances
	book     entity.OrderBook
	mark     float64
	// futures only
	index float64
}

// Execute places the order for intent and returns once it has filled.
// Placement is attempted exactly once.
func (e *LiveExecutor) Execute(ctx context.Context, intent entity.TradeIntent) error {
	logger := e.deps.Logger.With(zap.String("symbol", e.cfg.Symbol), zap.String("intent", intent.String()))

	rules, err := e.symbolRules(ctx)
	if err != nil {
		return err
	}
	before, err := e.snapshot(ctx)
	if err != nil {
		return fmt.Errorf("pre-trade snapshot: %w", err)
	}

	side := intent.Side()
	var openQty float64
	if pos, ok := e.deps.Manager.Get(e.cfg.Symbol); ok {
		openQty = pos.Quantity
	}
	qty, err := SizeOrder(SizeRequest{
		Intent:       intent,
		Asset:        e.cfg.Asset,
		Base:         before.balances.Base,
		Quote:        before.balances.Quote,
		Price:        e.referencePrice(before, side),
		OpenQuantity: openQty,
		Leverage:     e.cfg.Leverage,
		SafetyMargin: e.cfg.SafetyMargin,
		Rules:        rules,
	})
	if err != nil {
		e.notify(ctx, fmt.Sprintf("⚠️ %s: cannot size %s: %v", e.cfg.Symbol, intent, err))
		return err
	}

	if quote, err := WalkBook(before.book, side, qty.InexactFloat64()); err != nil {
		logger.Warn("book walk failed", zap.Error(err))
	} else if !quote.Acceptable(e.cfg.MaxSlippagePct) {
		logger.Warn("expected slippage above limit",
			zap.Float64("slippage_pct", quote.SlippagePct),
			zap.Float64("avg_price", quote.AvgPrice),
			zap.Bool("book_complete", quote.Complete),
		)
		e.notify(ctx, fmt.Sprintf("⚠️ %s: expected slippage %.3f%% for %s %s", e.cfg.Symbol, quote.SlippagePct, side, qty))
	}

	orderID, err := e.ex.PlaceOrder(ctx, entity.OrderRequest{
		Symbol:     e.cfg.Symbol,
		Asset:      e.cfg.Asset,
		Side:       side,
		Quantity:   qty.String(),
		ReduceOnly: e.cfg.Asset == entity.Futures && intent.Action == entity.Close,
	})
	if err != nil {
		logger.Error("order placement failed", zap.Error(err))
		e.notify(ctx, fmt.Sprintf("🚨 %s: order placement failed for %s: %v", e.cfg.Symbol, intent, err))
		return fmt.Errorf("%w: %s: %w", entity.ErrOrderPlacement, intent, err)
	}
	logger.Info("order placed", zap.String("order_id", orderID), zap.String("quantity", qty.String()))

	fill, err := e.awaitFill(ctx, orderID)
	if err != nil {
		e.notify(ctx, fmt.Sprintf("🚨 %s: order %s not confirmed: %v", e.cfg.Symbol, orderID, err))
		return fmt.Errorf("%w: order %s: %w", ErrUnconfirmed, orderID, err)
	}

	rec := entity.TradeRecord{
		TradeIntent: intent,
		TradeTime:   e.deps.Now().UTC(),
		Symbol:      e.cfg.Symbol,
		Fill:        &fill,
		Before:      &before.balances,
	}
	if after, err := e.balances(ctx, fill.Price); err != nil {
		logger.Warn("post-trade balances unavailable", zap.Error(err))
	} else {
		rec.After = &after
	}

	e.track(intent, fill)
	e.record(ctx, rec)
	return nil
}

// Balances snapshots the account at the current mark price.
func (e *LiveExecutor) Balances(ctx context.Context) (entity.Balances, error) {
	mark, err := utils.RetryWithBackoff(ctx, e.retryPolicy("mark price"), func(ctx context.Context) (float64, error) {
		return e.ex.MarkPrice(ctx, e.cfg.Symbol, e.cfg.Asset)
	})
	if err != nil {
		return entity.Balances{}, err
	}
	return e.balances(ctx, mark)
}

func (e *LiveExecutor) track(intent entity.TradeIntent, fill entity.OrderStatus) {
	if intent.Action == entity.Close {
		e.deps.Manager.Remove(e.cfg.Symbol)
		return
	}
	e.deps.Manager.Add(OpenPosition{
		Symbol:     e.cfg.Symbol,
		Direction:  intent.Direction,
		Quantity:   fill.Quantity,
		EntryPrice: fill.Price,
		CandleTime: intent.CandleTime,
		OrderID:    fill.OrderID,
		OpenedAt:   e.deps.Now(),
	})
}

// ledgerDepth is how many ledger rows OpenInLedger looks back through.
const ledgerDepth = 50

// OpenInLedger returns the newest live ledger row for the symbol when it is
// an Open, meaning an earlier session left a position that was never closed.
func (e *LiveExecutor) OpenInLedger() (entity.TradeRecord, bool, error) {
	if e.deps.Ledger == nil {
		return entity.TradeRecord{}, false, nil
	}
	rows, err := e.deps.Ledger.LastN(ledgerDepth)
	if err != nil {
		return entity.TradeRecord{}, false, fmt.Errorf("read ledger: %w", err)
	}
	for i := len(rows) - 1; i >= 0; i-- {
		rec := rows[i]
		// backtest rows carry no fill
		if rec.Symbol != e.cfg.Symbol || rec.Fill == nil {
			continue
		}
		return rec, rec.Action == entity.Open, nil
	}
	return entity.TradeRecord{}, false, nil
}

// record persists a filled trade. Failures here are reported but do not
// undo the fill.
func (e *LiveExecutor) record(ctx context.Context, rec entity.TradeRecord) {
	logger := e.deps.Logger
	if e.deps.Ledger != nil {
		if err := e.deps.Ledger.Append(rec); err != nil {
			logger.Error("ledger append failed", zap.Error(err), zap.String("record", rec.JSON()))
			e.notify(ctx, fmt.Sprintf("🚨 %s: ledger write failed: %v", e.cfg.Symbol, err))
		}
	}
	if e.deps.Sink != nil {
		if err := e.deps.Sink.RecordTrade(ctx, rec); err != nil {
			logger.Warn("trade mirror failed", zap.Error(err))
		}
	}
	logger.Info("trade filled", zap.String("record", rec.JSON()))
	e.notify(ctx, formatTrade(rec))
}

func formatTrade(rec entity.TradeRecord) string {
	msg := fmt.Sprintf("✅ %s %s %s (%s)\nqty %g @ %g, fee %g %s",
		rec.Symbol, rec.Action, rec.Direction, rec.Reason,
		rec.Fill.Quantity, rec.Fill.Price, rec.Fill.Fee, rec.Fill.FeeAsset)
	if rec.After != nil {
		msg += fmt.Sprintf("\nnetliq %.2f → %.2f", rec.Before.NetLiq, rec.After.NetLiq)
	}
	return msg
}

func (e *LiveExecutor) notify(ctx context.Context, msg string) {
	if e.deps.Notifier == nil {
		return
	}
	if err := e.deps.Notifier.Send(ctx, msg); err != nil {
		e.deps.Logger.Warn("notification failed", zap.Error(err))
	}
}

func (e *LiveExecutor) symbolRules(ctx context.Context) (entity.SymbolRules, error) {
	if e.rules != nil {
		return *e.rules, nil
	}
	rules, err := utils.RetryWithBackoff(ctx, e.retryPolicy("symbol rules"), func(ctx context.Context) (entity.SymbolRules, error) {
		return e.ex.SymbolRules(ctx, e.cfg.Symbol, e.cfg.Asset)
	})
	if err != nil {
		return entity.SymbolRules{}, fmt.Errorf("symbol rules: %w", err)
	}
	e.rules = &rules
	return rules, nil
}

func (e *LiveExecutor) snapshot(ctx context.Context) (marketSnapshot, error) {
	return utils.RetryWithBackoff(ctx, e.retryPolicy("snapshot"), func(ctx context.Context) (marketSnapshot, error) {
		var (
			snap marketSnapshot
			free map[string]float64
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			free, err = e.ex.Balances(gctx, e.cfg.Asset)
			return err
		})
		g.Go(func() error {
			var err error
			snap.book, err = e.ex.Book(gctx, e.cfg.Symbol, e.cfg.Asset, e.cfg.BookDepth)
			return err
		})
		g.Go(func() error {
			var err error
			snap.mark, err = e.ex.MarkPrice(gctx, e.cfg.Symbol, e.cfg.Asset)
			return err
		})
		if e.cfg.Asset == entity.Futures {
			g.Go(func() error {
				var err error
				snap.index, err = e.ex.IndexPrice(gctx, e.cfg.Symbol)
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return marketSnapshot{}, err
		}
		snap.balances = e.toBalances(free, snap.mark)
		return snap, nil
	})
}

func (e *LiveExecutor) balances(ctx context.Context, price float64) (entity.Balances, error) {
	free, err := utils.RetryWithBackoff(ctx, e.retryPolicy("balances"), func(ctx context.Context) (map[string]float64, error) {
		return e.ex.Balances(ctx, e.cfg.Asset)
	})
	if err != nil {
		return entity.Balances{}, err
	}
	return e.toBalances(free, price), nil
}

// toBalances values spot holdings at price. Futures report the margin balance.
func (e *LiveExecutor) toBalances(free map[string]float64, price float64) entity.Balances {
	b := entity.Balances{Base: free[e.cfg.Base], Quote: free[e.cfg.Quote]}
	if e.cfg.Asset == entity.Futures {
		b.NetLiq = b.Quote
		return b
	}
	b.NetLiq = b.Base*price + b.Quote
	return b
}

// referencePrice is the futures index price, or for spot the top of the book
// a market order would hit, falling back to the mark price when that side is empty.
func (e *LiveExecutor) referencePrice(snap marketSnapshot, side entity.Side) float64 {
	if e.cfg.Asset == entity.Futures {
		return snap.index
	}
	levels := snap.book.Asks
	if side == entity.Sell {
		levels = snap.book.Bids
	}
	if len(levels) == 0 {
		return snap.mark
	}
	return levels[0].Price
}

func (e *LiveExecutor) awaitFill(ctx context.Context, orderID string) (entity.OrderStatus, error) {
	policy := e.retryPolicy("order status")
	policy.Retryable = func(err error) bool { return !errors.Is(err, ErrOrderNotFilled) }
	return utils.RetryWithBackoff(ctx, policy, func(ctx context.Context) (entity.OrderStatus, error) {
		status, err := e.ex.OrderStatus(ctx, e.cfg.Symbol, e.cfg.Asset, orderID)
		switch {
		case err != nil:
			return status, err
		case status.Filled():
			return status, nil
		case status.Terminal():
			return status, fmt.Errorf("%w: order %s is %s", ErrOrderNotFilled, orderID, status.Status)
		default:
			return status, errPending
		}
	})
}

func (e *LiveExecutor) retryPolicy(op string) utils.RetryPolicy {
	policy := e.cfg.Retry
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		e.deps.Logger.Warn("retrying exchange call",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	}
	return policy
}
