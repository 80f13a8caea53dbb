package accounting

import (
	"fmt"

	"github.com/gtoxlili/echoBand/entity"
)

// Result is the realised outcome of a trade log.
type Result struct {
	StartCapital float64               `json:"start_capital"`
	EndCapital   float64               `json:"end_capital"`
	PnL          float64               `json:"pnl"`
	ReturnPct    float64               `json:"return_pct"`
	Balances     []entity.BalancePoint `json:"balances"`
	// RoundTrips are the closed Open/Close pairs in order.
	RoundTrips []RoundTrip `json:"round_trips"`
	// OpenAtEnd is true when the log ends with an unmatched Open.
	OpenAtEnd bool `json:"open_at_end"`
}

type RoundTrip struct {
	Direction entity.Direction `json:"direction"`
	OpenTime  int64            `json:"open_time"`
	CloseTime int64            `json:"close_time"`
	OpenPrice float64          `json:"open_price"`
	ClosePx   float64          `json:"close_price"`
	Return    float64          `json:"return"`
	Balance   float64          `json:"balance"`
}

// CalcPnL walks the log and compounds each closed trade as
// balance * (1 + r) * (1 - 2*fee), with r negated for shorts.
// A Close that does not follow an Open of the same direction is an
// *entity.ApplicationStateError.
func CalcPnL(trades []entity.TradeIntent, feeRate, startCapital float64) (Result, error) {
	res := Result{StartCapital: startCapital, EndCapital: startCapital}

	var (
		balance = startCapital
		open    *entity.TradeIntent
	)
	for i := range trades {
		t := trades[i]
		switch t.Action {
		case entity.Open:
			if open != nil {
				return res, fmt.Errorf("trade %d: %w", i,
					&entity.ApplicationStateError{Position: string(open.Direction), Intent: t})
			}
			open = &trades[i]
		case entity.Close:
			if open == nil || open.Direction != t.Direction {
				position := "Flat"
				if open != nil {
					position = string(open.Direction)
				}
				return res, fmt.Errorf("trade %d: %w", i,
					&entity.ApplicationStateError{Position: position, Intent: t})
			}
			if open.Price <= 0 {
				return res, fmt.Errorf("trade %d: non-positive open price %g", i, open.Price)
			}

			r := (t.Price - open.Price) / open.Price
			if t.Direction == entity.Short {
				r = -r
			}
			balance = balance * (1 + r) * (1 - 2*feeRate)

			res.Balances = append(res.Balances, entity.BalancePoint{Time: t.CandleTime, Balance: balance})
			res.RoundTrips = append(res.RoundTrips, RoundTrip{
				Direction: t.Direction,
				OpenTime:  open.CandleTime,
				CloseTime: t.CandleTime,
				OpenPrice: open.Price,
				ClosePx:   t.Price,
				Return:    r,
				Balance:   balance,
			})
			open = nil
		default:
			return res, fmt.Errorf("trade %d: unknown action %q", i, t.Action)
		}
	}

	res.EndCapital = balance
	res.PnL = balance - startCapital
	if startCapital != 0 {
		res.ReturnPct = res.PnL / startCapital * 100
	}
	res.OpenAtEnd = open != nil
	return res, nil
}
