package ta

import (
	"math"

	"github.com/cinar/indicator"
	"github.com/samber/lo"

	"github.com/gtoxlili/echoBand/utils"
)

// WilliamsR returns %R in [-100, 0]. The first period-1 values are NaN, and
// so is any window whose high equals its low.
func WilliamsR(period int, high, low, closing []float64) []float64 {
	out := utils.NaNs(len(closing))
	if period <= 0 || len(closing) < period || len(high) != len(closing) || len(low) != len(closing) {
		return out
	}

	highest := indicator.Max(period, high)
	lowest := indicator.Min(period, low)
	for i := period - 1; i < len(closing); i++ {
		span := highest[i] - lowest[i]
		if span == 0 {
			continue
		}
		out[i] = (highest[i] - closing[i]) / span * -100
	}
	return out
}

// EMA is an exponential moving average seeded with the simple mean of the
// first period defined values. NaN inputs are skipped and stay NaN in the output.
func EMA(period int, values []float64) []float64 {
	out := utils.NaNs(len(values))
	if period <= 0 {
		return out
	}

	idx := lo.FilterMap(values, func(v float64, i int) (int, bool) {
		return i, !math.IsNaN(v)
	})
	if len(idx) < period {
		return out
	}

	seed := utils.Avg(lo.Map(idx[:period], func(i int, _ int) float64 { return values[i] }))
	rest := lo.Map(idx[period:], func(i int, _ int) float64 { return values[i] })
	ema := indicator.Ema(period, append([]float64{seed}, rest...))

	for j, v := range ema {
		out[idx[period-1+j]] = v
	}
	return out
}

type Bands struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// BollingerBands is SMA(period) ± devs population standard deviations of closing.
func BollingerBands(period int, devs float64, closing []float64) Bands {
	bands := Bands{
		Upper:  utils.NaNs(len(closing)),
		Middle: utils.NaNs(len(closing)),
		Lower:  utils.NaNs(len(closing)),
	}
	if period <= 0 || len(closing) < period {
		return bands
	}

	sma := indicator.Sma(period, closing)
	for i := period - 1; i < len(closing); i++ {
		std := utils.PStdDev(closing[i-period+1 : i+1])
		bands.Middle[i] = sma[i]
		bands.Upper[i] = sma[i] + devs*std
		bands.Lower[i] = sma[i] - devs*std
	}
	return bands
}

// Shift returns values delayed by n rows; the first n entries are NaN.
func Shift(values []float64, n int) []float64 {
	out := utils.NaNs(len(values))
	if n < 0 {
		return out
	}
	for i := n; i < len(values); i++ {
		out[i] = values[i-n]
	}
	return out
}
