package accounting

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/gtoxlili/echoBand/entity"
	"github.com/gtoxlili/echoBand/utils"
)

const tradingDays = 365

// Report summarises a backtest run.
type Report struct {
	Trades       int                   `json:"trades"`
	Wins         int                   `json:"wins"`
	Losses       int                   `json:"losses"`
	WinRate      float64               `json:"win_rate"`
	AvgROI       float64               `json:"avg_roi"`
	BestROI      float64               `json:"best_roi"`
	WorstROI     float64               `json:"worst_roi"`
	AvgHold      time.Duration         `json:"avg_hold"`
	MaxDrawdown  float64               `json:"max_drawdown"`
	Sharpe       float64               `json:"sharpe"`
	PriceChange  float64               `json:"price_change"`
	Volatility   float64               `json:"volatility"`
	EndOfDay     []entity.BalancePoint `json:"end_of_day"`
	StartCapital float64               `json:"start_capital"`
	EndCapital   float64               `json:"end_capital"`
	ReturnPct    float64               `json:"return_pct"`
}

// BuildReport derives the trade statistics of res, and the price statistics
// of the fast candles the run replayed.
func BuildReport(res Result, candles []entity.Candle) Report {
	rep := Report{
		Trades:       len(res.RoundTrips),
		StartCapital: res.StartCapital,
		EndCapital:   res.EndCapital,
		ReturnPct:    res.ReturnPct,
	}

	if rep.Trades > 0 {
		rois := lo.Map(res.RoundTrips, func(rt RoundTrip, _ int) float64 { return rt.Return })
		rep.Wins = lo.CountBy(rois, func(r float64) bool { return r > 0 })
		rep.Losses = rep.Trades - rep.Wins
		rep.WinRate = float64(rep.Wins) / float64(rep.Trades)
		rep.AvgROI = utils.Avg(rois)
		rep.BestROI = lo.Max(rois)
		rep.WorstROI = lo.Min(rois)
		rep.AvgHold = time.Duration(utils.Avg(lo.Map(res.RoundTrips, func(rt RoundTrip, _ int) float64 {
			return float64(rt.CloseTime - rt.OpenTime)
		}))) * time.Second
	}

	rep.MaxDrawdown = maxDrawdown(res.StartCapital, res.Balances)
	rep.EndOfDay = endOfDay(res.StartCapital, res.Balances, candles)
	rep.Sharpe = sharpe(rep.EndOfDay)

	if len(candles) > 1 && candles[0].Close != 0 {
		first, last := candles[0].Close, candles[len(candles)-1].Close
		rep.PriceChange = (last - first) / first
		returns := lo.Map(candles[1:], func(c entity.Candle, i int) float64 {
			return c.Close/candles[i].Close - 1
		})
		rep.Volatility = utils.StdDev(returns)
	}
	return rep
}

func (r Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "capital %.2f -> %.2f (%+.2f%%)\n", r.StartCapital, r.EndCapital, r.ReturnPct)
	fmt.Fprintf(&b, "trades %d, wins %d, losses %d, win rate %.1f%%\n", r.Trades, r.Wins, r.Losses, r.WinRate*100)
	fmt.Fprintf(&b, "roi avg %.3f%% best %.3f%% worst %.3f%%, avg hold %s\n",
		r.AvgROI*100, r.BestROI*100, r.WorstROI*100, r.AvgHold)
	fmt.Fprintf(&b, "max drawdown %.2f%%, sharpe %.2f, price change %.2f%%, volatility %.4f",
		r.MaxDrawdown*100, r.Sharpe, r.PriceChange*100, r.Volatility)
	return b.String()
}

func maxDrawdown(start float64, balances []entity.BalancePoint) float64 {
	peak, worst := start, 0.0
	for _, p := range balances {
		peak = max(peak, p.Balance)
		if peak > 0 {
			worst = max(worst, (peak-p.Balance)/peak)
		}
	}
	return worst
}

// endOfDay samples the balance at the end of each UTC day covered by the
// candles, carrying the last realised balance forward.
func endOfDay(start float64, balances []entity.BalancePoint, candles []entity.Candle) []entity.BalancePoint {
	if len(candles) == 0 {
		return nil
	}
	const day = int64(24 * time.Hour / time.Second)
	first := candles[0].Start - candles[0].Start%day
	last := candles[len(candles)-1].Start - candles[len(candles)-1].Start%day

	sorted := append([]entity.BalancePoint(nil), balances...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time < sorted[j].Time })

	var (
		out     []entity.BalancePoint
		balance = start
		j       = 0
	)
	for d := first; d <= last; d += day {
		for j < len(sorted) && sorted[j].Time < d+day {
			balance = sorted[j].Balance
			j++
		}
		out = append(out, entity.BalancePoint{Time: d + day, Balance: balance})
	}
	return out
}

// sharpe is the annualised ratio of daily end-of-day returns.
func sharpe(eod []entity.BalancePoint) float64 {
	if len(eod) < 3 {
		return 0
	}
	returns := lo.Map(eod[1:], func(p entity.BalancePoint, i int) float64 {
		if eod[i].Balance == 0 {
			return 0
		}
		return p.Balance/eod[i].Balance - 1
	})
	std := utils.StdDev(returns)
	if std == 0 {
		return 0
	}
	return utils.Avg(returns) / std * math.Sqrt(tradingDays)
}
