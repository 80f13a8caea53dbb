package entity

import (
	"fmt"
	"math"
)

type AssetType string

const (
	Spot    AssetType = "spot"
	Futures AssetType = "futures"
)

func (a AssetType) Valid() bool {
	return a == Spot || a == Futures
}

// SeriesKey identifies one candle series; Period is in seconds.
type SeriesKey struct {
	Exchange string    `json:"exchange"`
	Symbol   string    `json:"symbol"`
	Asset    AssetType `json:"asset"`
	Period   int64     `json:"period"`
}

func (k SeriesKey) String() string {
	return fmt.Sprintf("%s:%s:%s:%ds", k.Exchange, k.Symbol, k.Asset, k.Period)
}

// Candle is one OHLCV bar. Start is the period start in unix seconds.
type Candle struct {
	Start  int64   `json:"start"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// ClosedAt reports whether the candle's period has fully elapsed at now (unix seconds).
func (c Candle) ClosedAt(period, now int64) bool {
	return c.Start+period <= now
}

// IndicatorRow carries the indicators computed for one candle, plus the
// previous row's copies that crossover tests need. Undefined values are NaN.
type IndicatorRow struct {
	Candle
	ClosePrev float64 `json:"close_prev"`

	WillR        float64 `json:"willr"`
	WillREMA     float64 `json:"willr_ema"`
	WillREMAPrev float64 `json:"willr_ema_prev"`

	BBandLow      float64 `json:"bband_low"`
	BBandLowPrev  float64 `json:"bband_low_prev"`
	BBandHigh     float64 `json:"bband_high"`
	BBandHighPrev float64 `json:"bband_high_prev"`
	BBandMid      float64 `json:"bband_mid"`
	BBandMidPrev  float64 `json:"bband_mid_prev"`
}

// SlowSnapshot is the slow-timeframe trend state copied onto a fast row.
type SlowSnapshot struct {
	Start        int64   `json:"start"`
	WillR        float64 `json:"willr"`
	WillREMA     float64 `json:"willr_ema"`
	WillREMAPrev float64 `json:"willr_ema_prev"`
}

func (s SlowSnapshot) Defined() bool {
	return defined(s.WillR, s.WillREMA, s.WillREMAPrev)
}

// Crosses are the four crossover flags evaluated on a fast row.
type Crosses struct {
	LongEntry  bool `json:"long_entry"`
	LongClose  bool `json:"long_close"`
	ShortEntry bool `json:"short_entry"`
	ShortClose bool `json:"short_close"`
}

// AlignedRow is a fast row joined with the slow snapshot one full slow period behind it.
type AlignedRow struct {
	IndicatorRow
	Slow    SlowSnapshot `json:"slow"`
	Crosses Crosses      `json:"crosses"`
}

// Defined reports whether every field a trading decision reads is present.
func (r AlignedRow) Defined() bool {
	return r.Slow.Defined() && defined(
		r.Close, r.ClosePrev,
		r.BBandLow, r.BBandLowPrev,
		r.BBandHigh, r.BBandHighPrev,
		r.BBandMid, r.BBandMidPrev,
	)
}

func defined(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) {
			return false
		}
	}
	return true
}
