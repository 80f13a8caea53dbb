package ta

import (
	"github.com/samber/lo"

	"github.com/gtoxlili/echoBand/entity"
)

type Config struct {
	WillRPeriod    int
	WillREMAPeriod int
	BBandPeriod    int
	BBandDevs      float64
	FastPeriod     int64
	SlowPeriod     int64
	Crosses        CrossSpec
}

// Compute derives the indicator rows of one series. Every column is computed
// from rows at or before its own index only.
func Compute(candles []entity.Candle, cfg Config) []entity.IndicatorRow {
	var (
		high    = lo.Map(candles, func(c entity.Candle, _ int) float64 { return c.High })
		low     = lo.Map(candles, func(c entity.Candle, _ int) float64 { return c.Low })
		closing = lo.Map(candles, func(c entity.Candle, _ int) float64 { return c.Close })
	)

	willr := WilliamsR(cfg.WillRPeriod, high, low, closing)
	willrEMA := EMA(cfg.WillREMAPeriod, willr)
	bands := BollingerBands(cfg.BBandPeriod, cfg.BBandDevs, closing)

	var (
		closePrev    = Shift(closing, 1)
		willrEMAPrev = Shift(willrEMA, 1)
		lowPrev      = Shift(bands.Lower, 1)
		highPrev     = Shift(bands.Upper, 1)
		midPrev      = Shift(bands.Middle, 1)
	)

	return lo.Map(candles, func(c entity.Candle, i int) entity.IndicatorRow {
		return entity.IndicatorRow{
			Candle:        c,
			ClosePrev:     closePrev[i],
			WillR:         willr[i],
			WillREMA:      willrEMA[i],
			WillREMAPrev:  willrEMAPrev[i],
			BBandLow:      bands.Lower[i],
			BBandLowPrev:  lowPrev[i],
			BBandHigh:     bands.Upper[i],
			BBandHighPrev: highPrev[i],
			BBandMid:      bands.Middle[i],
			BBandMidPrev:  midPrev[i],
		}
	})
}

// Align maps every fast row start to the slow snapshot of the candle starting
// one full slow period before the slow period containing it. Fast rows whose
// key precedes the slow series, or whose snapshot is still warming up, are left out.
func Align(fast, slow []entity.IndicatorRow, slowPeriod int64) map[int64]entity.SlowSnapshot {
	bySlowStart := lo.KeyBy(slow, func(r entity.IndicatorRow) int64 { return r.Start })

	out := make(map[int64]entity.SlowSnapshot, len(fast))
	for _, row := range fast {
		key := SlowKey(row.Start, slowPeriod)
		s, ok := bySlowStart[key]
		if !ok {
			continue
		}
		snap := entity.SlowSnapshot{
			Start:        s.Start,
			WillR:        s.WillR,
			WillREMA:     s.WillREMA,
			WillREMAPrev: s.WillREMAPrev,
		}
		if !snap.Defined() {
			continue
		}
		out[row.Start] = snap
	}
	return out
}

// SlowKey is floor(ts, slowPeriod) - slowPeriod: the last slow candle already closed
// when the slow period containing ts began.
func SlowKey(ts, slowPeriod int64) int64 {
	return ts - mod(ts, slowPeriod) - slowPeriod
}

func mod(a, b int64) int64 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

type Pipeline struct {
	cfg Config
}

func NewPipeline(cfg Config) *Pipeline {
	return &Pipeline{cfg: cfg}
}

// Build turns the fast and slow candles into the rows the position machine
// consumes. Only candles closed at now (unix seconds) are used; a slow candle
// still in progress never reaches the indicators.
func (p *Pipeline) Build(fast, slow []entity.Candle, now int64) []entity.AlignedRow {
	fast = lo.Filter(fast, func(c entity.Candle, _ int) bool { return c.ClosedAt(p.cfg.FastPeriod, now) })
	slow = lo.Filter(slow, func(c entity.Candle, _ int) bool { return c.ClosedAt(p.cfg.SlowPeriod, now) })

	fastRows := Compute(fast, p.cfg)
	slowRows := Compute(slow, p.cfg)
	snapshots := Align(fastRows, slowRows, p.cfg.SlowPeriod)

	var (
		crosses    = p.cfg.Crosses
		longEntry  = DetectCross(crosses.LongEntry.A.values(fastRows), crosses.LongEntry.B.values(fastRows), Over)
		longClose  = DetectCross(crosses.LongClose.A.values(fastRows), crosses.LongClose.B.values(fastRows), Over)
		shortEntry = DetectCross(crosses.ShortEntry.A.values(fastRows), crosses.ShortEntry.B.values(fastRows), Under)
		shortClose = DetectCross(crosses.ShortClose.A.values(fastRows), crosses.ShortClose.B.values(fastRows), Under)
	)

	return lo.FilterMap(fastRows, func(row entity.IndicatorRow, i int) (entity.AlignedRow, bool) {
		snap, ok := snapshots[row.Start]
		if !ok {
			return entity.AlignedRow{}, false
		}
		aligned := entity.AlignedRow{
			IndicatorRow: row,
			Slow:         snap,
			Crosses: entity.Crosses{
				LongEntry:  longEntry[i],
				LongClose:  longClose[i],
				ShortEntry: shortEntry[i],
				ShortClose: shortClose[i],
			},
		}
		return aligned, aligned.Defined()
	})
}

func (c Column) values(rows []entity.IndicatorRow) []float64 {
	return lo.Map(rows, func(r entity.IndicatorRow, _ int) float64 {
		switch c {
		case ColBBandLow:
			return r.BBandLow
		case ColBBandHigh:
			return r.BBandHigh
		case ColBBandMid:
			return r.BBandMid
		default:
			return r.Close
		}
	})
}
