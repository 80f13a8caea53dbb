package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gtoxlili/echoBand/entity"
)

var key = entity.SeriesKey{Exchange: "test", Symbol: "BTCUSDT", Asset: entity.Spot, Period: 60}

func candle(start int64, closing float64) entity.Candle {
	return entity.Candle{Start: start, Open: closing, High: closing + 1, Low: closing - 1, Close: closing, Volume: 1}
}

func TestAppendOrUpdateIsIdempotent(t *testing.T) {
	s := NewStore(0)
	for _, c := range []entity.Candle{candle(0, 100), candle(60, 101), candle(60, 101)} {
		if err := s.AppendOrUpdate(key, c); err != nil {
			t.Fatalf("AppendOrUpdate: %v", err)
		}
	}
	series := s.Series(key)
	if len(series) != 2 || series[1] != candle(60, 101) {
		t.Fatalf("series = %v", series)
	}
}

func TestAppendOrUpdateRevisesInPlace(t *testing.T) {
	s := NewStore(0)
	_ = s.AppendOrUpdate(key, candle(0, 100))
	_ = s.AppendOrUpdate(key, candle(60, 101))
	if err := s.AppendOrUpdate(key, candle(60, 105)); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendOrUpdate(key, candle(0, 99)); err != nil {
		t.Fatal(err)
	}
	series := s.Series(key)
	if len(series) != 2 || series[0].Close != 99 || series[1].Close != 105 {
		t.Fatalf("series = %v", series)
	}
}

func TestAppendOrUpdateRejectsGaps(t *testing.T) {
	s := NewStore(0)
	_ = s.AppendOrUpdate(key, candle(60, 100))

	err := s.AppendOrUpdate(key, candle(180, 100))
	var integrity *entity.DataIntegrityError
	if !errors.As(err, &integrity) || integrity.Timestamp != 180 {
		t.Fatalf("expected gap error, got %v", err)
	}
	if err := s.AppendOrUpdate(key, candle(0, 100)); !errors.Is(err, entity.ErrDataIntegrity) {
		t.Fatalf("candle before the series accepted: %v", err)
	}
	if err := s.AppendOrUpdate(key, candle(130, 100)); !errors.Is(err, entity.ErrDataIntegrity) {
		t.Fatalf("misaligned candle accepted: %v", err)
	}
	if len(s.Series(key)) != 1 {
		t.Fatalf("rejected candles were stored")
	}
}

func TestClosedAndTrim(t *testing.T) {
	s := NewStore(3)
	for i := int64(0); i < 5; i++ {
		if err := s.AppendOrUpdate(key, candle(i*60, 100)); err != nil {
			t.Fatal(err)
		}
	}
	if got := s.Series(key); len(got) != 3 || got[0].Start != 120 {
		t.Fatalf("capped series = %v", got)
	}
	closed := s.Closed(key, 4*60+30)
	if len(closed) != 2 || closed[1].Start != 180 {
		t.Fatalf("closed = %v", closed)
	}
	if last, ok := s.Last(key); !ok || last.Start != 240 {
		t.Fatalf("last = %v, %v", last, ok)
	}
}

func TestValidateSeriesGap(t *testing.T) {
	err := ValidateSeries(key, []entity.Candle{candle(0, 1), candle(60, 1), candle(180, 1)})
	var integrity *entity.DataIntegrityError
	if !errors.As(err, &integrity) {
		t.Fatalf("expected data integrity error, got %v", err)
	}
	if integrity.Timestamp != 120 {
		t.Fatalf("gap reported at %d, want 120", integrity.Timestamp)
	}

	if err := ValidateSeries(key, []entity.Candle{candle(0, 1), candle(0, 1)}); !errors.Is(err, entity.ErrDataIntegrity) {
		t.Fatalf("duplicate accepted: %v", err)
	}
	if err := ValidateSeries(key, []entity.Candle{candle(0, 1), candle(60, 1), candle(120, 1)}); err != nil {
		t.Fatalf("valid series rejected: %v", err)
	}
	if err := ValidateWarmup(key, []entity.Candle{candle(0, 1)}, 2); !errors.Is(err, entity.ErrDataIntegrity) {
		t.Fatalf("short history accepted: %v", err)
	}
}

func TestTrimToSlow(t *testing.T) {
	slow := []entity.Candle{candle(0, 1), candle(300, 1)}
	var fast []entity.Candle
	for ts := int64(0); ts < 1200; ts += 60 {
		fast = append(fast, candle(ts, 1))
	}
	got := TrimToSlow(fast, slow, 300)
	if last := got[len(got)-1].Start; last != 840 {
		t.Fatalf("last kept fast candle %d, want 840", last)
	}
}

type pagedExchange struct {
	Exchange
	candles  []entity.Candle
	pageSize int
	calls    int
}

func (p *pagedExchange) HistoricalCandles(_ context.Context, _ string, _ int64, start, end time.Time, _ entity.AssetType) ([]entity.Candle, error) {
	p.calls++
	var page []entity.Candle
	for _, c := range p.candles {
		if c.Start >= start.Unix() && c.Start < end.Unix() && len(page) < p.pageSize {
			page = append(page, c)
		}
	}
	return page, nil
}

type memoryCache struct {
	saved map[entity.SeriesKey][]entity.Candle
}

func (m *memoryCache) LoadCandles(_ context.Context, key entity.SeriesKey, start, end int64) ([]entity.Candle, error) {
	var out []entity.Candle
	for _, c := range m.saved[key] {
		if c.Start >= start && c.Start < end {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memoryCache) SaveCandles(_ context.Context, key entity.SeriesKey, candles []entity.Candle) error {
	m.saved[key] = append(m.saved[key], candles...)
	return nil
}

func TestFetchHistoryPaginatesAndCaches(t *testing.T) {
	ex := &pagedExchange{pageSize: 4}
	for ts := int64(0); ts < 600; ts += 60 {
		ex.candles = append(ex.candles, candle(ts, float64(ts)))
	}
	cache := &memoryCache{saved: map[entity.SeriesKey][]entity.Candle{}}
	req := HistoryRequest{Key: key, Start: time.Unix(30, 0), End: time.Unix(600, 0), Now: time.Unix(10_000, 0)}

	got, err := FetchHistory(context.Background(), ex, cache, req, nil)
	if err != nil {
		t.Fatalf("FetchHistory: %v", err)
	}
	if len(got) != 9 || got[0].Start != 60 || got[8].Start != 540 {
		t.Fatalf("got %d candles from %d", len(got), got[0].Start)
	}
	if ex.calls != 3 {
		t.Fatalf("expected 3 pages, got %d calls", ex.calls)
	}
	if err := ValidateSeries(key, got); err != nil {
		t.Fatalf("fetched series invalid: %v", err)
	}

	again, err := FetchHistory(context.Background(), ex, cache, req, nil)
	if err != nil || len(again) != 9 {
		t.Fatalf("cached fetch: %d, %v", len(again), err)
	}
	if ex.calls != 3 {
		t.Fatalf("cache miss: %d calls", ex.calls)
	}
}

func TestFetchHistoryDoesNotCacheOpenCandles(t *testing.T) {
	ex := &pagedExchange{pageSize: 100}
	for ts := int64(0); ts < 300; ts += 60 {
		ex.candles = append(ex.candles, candle(ts, 1))
	}
	cache := &memoryCache{saved: map[entity.SeriesKey][]entity.Candle{}}
	req := HistoryRequest{Key: key, Start: time.Unix(0, 0), End: time.Unix(300, 0), Now: time.Unix(270, 0)}

	if _, err := FetchHistory(context.Background(), ex, cache, req, nil); err != nil {
		t.Fatal(err)
	}
	if n := len(cache.saved[key]); n != 4 {
		t.Fatalf("cached %d candles, want the 4 closed ones", n)
	}
}
