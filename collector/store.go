package collector

import (
	"fmt"
	"sort"
	"sync"

	"github.com/samber/lo"

	"github.com/gtoxlili/echoBand/entity"
)

// Store keeps one ordered, gap-free candle series per key.
type Store struct {
	mu     sync.RWMutex
	series map[entity.SeriesKey][]entity.Candle
	maxLen int
}

// NewStore caps every series at maxLen candles; 0 keeps everything.
func NewStore(maxLen int) *Store {
	return &Store{
		series: make(map[entity.SeriesKey][]entity.Candle),
		maxLen: maxLen,
	}
}

// Load replaces a series after validating it.
func (s *Store) Load(key entity.SeriesKey, candles []entity.Candle) error {
	if err := ValidateSeries(key, candles); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.series[key] = s.trim(append([]entity.Candle(nil), candles...))
	return nil
}

// Series returns a copy of the series in time order.
func (s *Store) Series(key entity.SeriesKey) []entity.Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]entity.Candle(nil), s.series[key]...)
}

// Closed returns the candles whose period has ended at now (unix seconds).
func (s *Store) Closed(key entity.SeriesKey, now int64) []entity.Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.Filter(s.series[key], func(c entity.Candle, _ int) bool {
		return c.ClosedAt(key.Period, now)
	})
}

func (s *Store) Last(key entity.SeriesKey) (entity.Candle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	series := s.series[key]
	if len(series) == 0 {
		return entity.Candle{}, false
	}
	return series[len(series)-1], true
}

// AppendOrUpdate inserts c or overwrites the candle with the same start.
// A candle must land on the period grid and may not leave a gap after the
// last one.
func (s *Store) AppendOrUpdate(key entity.SeriesKey, c entity.Candle) error {
	if key.Period <= 0 {
		return fmt.Errorf("series %s: invalid period", key)
	}
	if c.Start%key.Period != 0 {
		return &entity.DataIntegrityError{Series: key.String(), Timestamp: c.Start, Reason: "candle is not aligned to the period"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	series := s.series[key]
	if len(series) == 0 {
		s.series[key] = []entity.Candle{c}
		return nil
	}

	last := series[len(series)-1]
	switch {
	case c.Start == last.Start+key.Period:
		s.series[key] = s.trim(append(series, c))
	case c.Start > last.Start+key.Period:
		return &entity.DataIntegrityError{
			Series:    key.String(),
			Timestamp: c.Start,
			Reason:    fmt.Sprintf("gap after %d", last.Start),
		}
	default:
		i := sort.Search(len(series), func(i int) bool { return series[i].Start >= c.Start })
		if i == len(series) || series[i].Start != c.Start {
			return &entity.DataIntegrityError{Series: key.String(), Timestamp: c.Start, Reason: "candle precedes the stored series"}
		}
		series[i] = c
	}
	return nil
}

func (s *Store) trim(series []entity.Candle) []entity.Candle {
	if s.maxLen > 0 && len(series) > s.maxLen {
		return append([]entity.Candle(nil), series[len(series)-s.maxLen:]...)
	}
	return series
}
