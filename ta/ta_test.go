package ta

import (
	"math"
	"testing"

	"github.com/gtoxlili/echoBand/entity"
)

const eps = 1e-9

func almost(a, b float64) bool {
	return math.Abs(a-b) < eps
}

func TestWilliamsR(t *testing.T) {
	high := []float64{10, 12, 11, 11}
	low := []float64{8, 9, 7, 11}
	closing := []float64{9, 11, 10, 11}

	got := WilliamsR(3, high, low, closing)
	if !math.IsNaN(got[0]) || !math.IsNaN(got[1]) {
		t.Fatalf("warm-up rows should be NaN: %v", got[:2])
	}
	if !almost(got[2], -40) {
		t.Fatalf("willr[2] = %v, want -40", got[2])
	}
	// window 1..3: highest 12, lowest 7, close 11
	if !almost(got[3], -20) {
		t.Fatalf("willr[3] = %v, want -20", got[3])
	}

	flat := WilliamsR(2, []float64{5, 5}, []float64{5, 5}, []float64{5, 5})
	if !math.IsNaN(flat[1]) {
		t.Fatalf("zero range must be undefined, got %v", flat[1])
	}
}

func TestEMASeeded(t *testing.T) {
	got := EMA(3, []float64{1, 2, 3, 4, 5})
	want := []float64{math.NaN(), math.NaN(), 2, 3, 4}
	for i := range want {
		if math.IsNaN(want[i]) {
			if !math.IsNaN(got[i]) {
				t.Fatalf("ema[%d] = %v, want NaN", i, got[i])
			}
			continue
		}
		if !almost(got[i], want[i]) {
			t.Fatalf("ema[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestEMASkipsLeadingNaN(t *testing.T) {
	got := EMA(2, []float64{math.NaN(), math.NaN(), 1, 2, 3, 4})
	if !math.IsNaN(got[2]) {
		t.Fatalf("ema[2] should still be warming up, got %v", got[2])
	}
	if !almost(got[3], 1.5) || !almost(got[4], 2.5) || !almost(got[5], 3.5) {
		t.Fatalf("unexpected ema %v", got)
	}
}

func TestBollingerBands(t *testing.T) {
	bands := BollingerBands(3, 2, []float64{1, 2, 3, 4, 5})
	if !math.IsNaN(bands.Middle[1]) || !math.IsNaN(bands.Upper[1]) || !math.IsNaN(bands.Lower[1]) {
		t.Fatalf("warm-up rows should be NaN")
	}
	std := math.Sqrt(2.0 / 3.0)
	for i, mid := range map[int]float64{2: 2, 3: 3, 4: 4} {
		if !almost(bands.Middle[i], mid) {
			t.Fatalf("mid[%d] = %v, want %v", i, bands.Middle[i], mid)
		}
		if !almost(bands.Upper[i], mid+2*std) || !almost(bands.Lower[i], mid-2*std) {
			t.Fatalf("bands[%d] = (%v, %v)", i, bands.Lower[i], bands.Upper[i])
		}
	}
}

func TestShift(t *testing.T) {
	got := Shift([]float64{1, 2, 3}, 1)
	if !math.IsNaN(got[0]) || got[1] != 1 || got[2] != 2 {
		t.Fatalf("Shift = %v", got)
	}
}

func TestDetectCrossStrict(t *testing.T) {
	a := []float64{1, 3, 3, 1, 3}
	b := []float64{2, 2, 2, 2, 2}

	over := DetectCross(a, b, Over)
	want := []bool{false, true, false, false, true}
	for i := range want {
		if over[i] != want[i] {
			t.Fatalf("over[%d] = %v, want %v", i, over[i], want[i])
		}
		if over[i] && !(a[i] > b[i] && !(a[i-1] > b[i-1])) {
			t.Fatalf("cross at %d is not a strict transition", i)
		}
	}

	under := DetectCross(a, b, Under)
	if !under[3] || under[1] || under[4] {
		t.Fatalf("under = %v", under)
	}
}

func TestDetectCrossAlwaysAbove(t *testing.T) {
	a := []float64{5, 6, 7, 8, 9}
	b := []float64{1, 2, 3, 4, 5}
	for i, v := range DetectCross(a, b, Over) {
		if v {
			t.Fatalf("series always above must not cross, fired at %d", i)
		}
	}
}

func TestDetectCrossNeedsDefinedNeighbours(t *testing.T) {
	a := []float64{math.NaN(), 3, 1, 3}
	b := []float64{2, 2, math.NaN(), 2}
	for i, v := range DetectCross(a, b, Over) {
		if v {
			t.Fatalf("cross next to an undefined value fired at %d", i)
		}
	}
}

func TestColumnText(t *testing.T) {
	var c Column
	if err := c.UnmarshalText([]byte("BBand_High")); err != nil || c != ColBBandHigh {
		t.Fatalf("UnmarshalText: %v %v", c, err)
	}
	if err := c.UnmarshalText([]byte("sma")); err == nil {
		t.Fatalf("unknown column accepted")
	}
	text, err := ColBBandMid.MarshalText()
	if err != nil || string(text) != "bband_mid" {
		t.Fatalf("MarshalText = %q, %v", text, err)
	}
}

func TestSlowKey(t *testing.T) {
	cases := []struct{ ts, period, want int64 }{
		{7200 + 180, 3600, 3600},
		{7200, 3600, 3600},
		{3600 - 60, 3600, -3600},
		{600, 300, 300},
	}
	for _, c := range cases {
		if got := SlowKey(c.ts, c.period); got != c.want {
			t.Errorf("SlowKey(%d, %d) = %d, want %d", c.ts, c.period, got, c.want)
		}
	}
}

func TestAlignOnePeriodBehind(t *testing.T) {
	slow := []entity.IndicatorRow{
		{Candle: entity.Candle{Start: 0}, WillR: -10, WillREMA: -20, WillREMAPrev: -25},
		{Candle: entity.Candle{Start: 3600}, WillR: -30, WillREMA: -40, WillREMAPrev: -20},
		{Candle: entity.Candle{Start: 7200}, WillR: -50, WillREMA: -60, WillREMAPrev: -40},
	}
	fast := []entity.IndicatorRow{
		{Candle: entity.Candle{Start: 1800}},
		{Candle: entity.Candle{Start: 3600}},
		{Candle: entity.Candle{Start: 7200 + 180}},
	}

	got := Align(fast, slow, 3600)
	if _, ok := got[1800]; ok {
		t.Fatalf("row before the first slow key must be excluded")
	}
	if got[3600].Start != 0 || got[3600].WillREMA != -20 {
		t.Fatalf("row 3600 aligned to %+v", got[3600])
	}
	if got[7380].Start != 3600 || got[7380].WillREMA != -40 {
		t.Fatalf("row 7380 aligned to %+v", got[7380])
	}
}

// synthetic builds n candles of the given period with a deterministic wave.
func synthetic(n int, period int64, start int64) []entity.Candle {
	out := make([]entity.Candle, n)
	for i := range out {
		mid := 100 + 10*math.Sin(float64(i)/3) + float64(i%5)
		out[i] = entity.Candle{
			Start:  start + int64(i)*period,
			Open:   mid - 0.5,
			High:   mid + 1 + float64(i%3),
			Low:    mid - 1 - float64(i%2),
			Close:  mid,
			Volume: 1,
		}
	}
	return out
}

func testConfig() Config {
	return Config{
		WillRPeriod:    3,
		WillREMAPeriod: 3,
		BBandPeriod:    4,
		BBandDevs:      2,
		FastPeriod:     60,
		SlowPeriod:     300,
		Crosses:        DefaultCrossSpec(),
	}
}

func TestBuildIgnoresOpenSlowCandle(t *testing.T) {
	cfg := testConfig()
	p := NewPipeline(cfg)

	slow := synthetic(12, cfg.SlowPeriod, 0)
	fast := synthetic(12*5, cfg.FastPeriod, 0)
	// the last slow candle [3300, 3600) is still open at now
	now := int64(3300 + 180)

	before := p.Build(fast, slow, now)
	if len(before) == 0 {
		t.Fatalf("expected aligned rows")
	}

	mutated := append([]entity.Candle(nil), slow...)
	mutated[len(mutated)-1].Close *= 3
	mutated[len(mutated)-1].High *= 3
	after := p.Build(fast, mutated, now)

	if len(before) != len(after) {
		t.Fatalf("row count changed: %d vs %d", len(before), len(after))
	}
	for i := range before {
		if before[i].Start != after[i].Start || before[i].Slow != after[i].Slow || before[i].Crosses != after[i].Crosses {
			t.Fatalf("row %d changed after mutating the open slow candle", i)
		}
	}
}

func TestAlignUnaffectedByOpenSlowCandle(t *testing.T) {
	cfg := testConfig()
	slow := synthetic(12, cfg.SlowPeriod, 0)
	fast := Compute(synthetic(12*5, cfg.FastPeriod, 0), cfg)

	mutated := append([]entity.Candle(nil), slow...)
	mutated[len(mutated)-1].Close += 50
	mutated[len(mutated)-1].Low -= 50

	a := Align(fast, Compute(slow, cfg), cfg.SlowPeriod)
	b := Align(fast, Compute(mutated, cfg), cfg.SlowPeriod)

	openStart := slow[len(slow)-1].Start
	for _, row := range fast {
		if row.Start < openStart {
			continue
		}
		if a[row.Start] != b[row.Start] {
			t.Fatalf("fast row %d saw the in-progress slow candle", row.Start)
		}
		if snap, ok := a[row.Start]; ok && snap.Start+cfg.SlowPeriod != row.Start-row.Start%cfg.SlowPeriod {
			t.Fatalf("snapshot %d is not a full period behind %d", snap.Start, row.Start)
		}
	}
}

func TestBuildRowsAreDefined(t *testing.T) {
	cfg := testConfig()
	rows := NewPipeline(cfg).Build(synthetic(200, 60, 0), synthetic(40, 300, 0), 12000)
	if len(rows) == 0 {
		t.Fatalf("expected rows")
	}
	for i, r := range rows {
		if !r.Defined() {
			t.Fatalf("row %d is not fully defined", i)
		}
		if i > 0 && r.Start <= rows[i-1].Start {
			t.Fatalf("rows out of order at %d", i)
		}
		if r.Slow.Start+cfg.SlowPeriod != r.Start-r.Start%cfg.SlowPeriod {
			t.Fatalf("row %d aligned to a slow candle that was not closed", r.Start)
		}
	}
}
