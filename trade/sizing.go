package trade

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/gtoxlili/echoBand/entity"
)

var (
	ErrOrderTooSmall = errors.New("order size below exchange minimum")
	ErrNoOpenSize    = errors.New("no open position size to close")
)

// SizeRequest is everything SizeOrder needs, read from the account just
// before the order.
type SizeRequest struct {
	Intent entity.TradeIntent
	Asset  entity.AssetType
	// Base and Quote are free balances of the symbol's two assets; for
	// futures Quote is the available margin.
	Base  float64
	Quote float64
	// Price is the reference price: the index price for futures, top of book for spot.
	Price float64
	// OpenQuantity is the size of the futures position a Close unwinds.
	OpenQuantity float64
	Leverage     float64
	SafetyMargin float64
	Rules        entity.SymbolRules
}

// SizeOrder returns the order quantity floored to the lot step.
//
// Spot buys spend the quote balance and spot sells the base balance.
// Futures opens commit the margin times leverage; closes unwind the open size.
func SizeOrder(req SizeRequest) (decimal.Decimal, error) {
	if req.Price <= 0 {
		return decimal.Zero, fmt.Errorf("invalid reference price %g", req.Price)
	}
	keep := decimal.NewFromFloat(1 - req.SafetyMargin)
	price := decimal.NewFromFloat(req.Price)

	var qty decimal.Decimal
	switch {
	case req.Asset == entity.Futures && req.Intent.Action == entity.Close:
		if req.OpenQuantity <= 0 {
			return decimal.Zero, ErrNoOpenSize
		}
		qty = decimal.NewFromFloat(req.OpenQuantity)
	case req.Asset == entity.Futures:
		leverage := decimal.NewFromFloat(max(req.Leverage, 1))
		qty = decimal.NewFromFloat(req.Quote).Mul(leverage).Mul(keep).Div(price)
	case req.Intent.Side() == entity.Buy:
		qty = decimal.NewFromFloat(req.Quote).Mul(keep).Div(price)
	default:
		qty = decimal.NewFromFloat(req.Base).Mul(keep)
	}

	qty, err := ApplyLotSize(qty, req.Rules)
	if err != nil {
		return decimal.Zero, fmt.Errorf("size %s: %w", req.Intent, err)
	}
	return qty, nil
}

// ApplyLotSize floors qty to the step size and enforces the minimum.
func ApplyLotSize(qty decimal.Decimal, rules entity.SymbolRules) (decimal.Decimal, error) {
	if rules.StepSize != "" {
		step, err := decimal.NewFromString(rules.StepSize)
		if err != nil {
			return decimal.Zero, fmt.Errorf("step size %q: %w", rules.StepSize, err)
		}
		if step.IsPositive() {
			qty = qty.Div(step).Floor().Mul(step)
		}
	}
	minQty := decimal.Zero
	if rules.MinQuantity != "" {
		m, err := decimal.NewFromString(rules.MinQuantity)
		if err != nil {
			return decimal.Zero, fmt.Errorf("min quantity %q: %w", rules.MinQuantity, err)
		}
		minQty = m
	}
	if !qty.IsPositive() || qty.LessThan(minQty) {
		return decimal.Zero, fmt.Errorf("%w: %s < %s", ErrOrderTooSmall, qty, minQty)
	}
	return qty, nil
}
