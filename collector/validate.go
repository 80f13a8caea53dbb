package collector

import (
	"fmt"

	"github.com/gtoxlili/echoBand/entity"
)

// ValidateSeries checks that candles are on the period grid, strictly
// increasing and without gaps.
func ValidateSeries(key entity.SeriesKey, candles []entity.Candle) error {
	if key.Period <= 0 {
		return fmt.Errorf("series %s: invalid period", key)
	}
	for i, c := range candles {
		if c.Start%key.Period != 0 {
			return &entity.DataIntegrityError{Series: key.String(), Timestamp: c.Start, Reason: "candle is not aligned to the period"}
		}
		if i == 0 {
			continue
		}
		prev := candles[i-1].Start
		switch {
		case c.Start == prev:
			return &entity.DataIntegrityError{Series: key.String(), Timestamp: c.Start, Reason: "duplicate timestamp"}
		case c.Start < prev:
			return &entity.DataIntegrityError{Series: key.String(), Timestamp: c.Start, Reason: "timestamps out of order"}
		case c.Start != prev+key.Period:
			return &entity.DataIntegrityError{
				Series:    key.String(),
				Timestamp: prev + key.Period,
				Reason:    fmt.Sprintf("missing %d candle(s)", (c.Start-prev)/key.Period-1),
			}
		}
	}
	return nil
}

// ValidateWarmup checks a series is long enough to seed its indicators.
func ValidateWarmup(key entity.SeriesKey, candles []entity.Candle, need int) error {
	if len(candles) < need {
		return &entity.DataIntegrityError{
			Series: key.String(),
			Reason: fmt.Sprintf("insufficient history: %d candles, need %d", len(candles), need),
		}
	}
	return nil
}

// TrimToSlow drops fast candles that no closed slow candle can cover yet.
func TrimToSlow(fast, slow []entity.Candle, slowPeriod int64) []entity.Candle {
	if len(slow) == 0 {
		return nil
	}
	limit := slow[len(slow)-1].Start + 2*slowPeriod
	for i, c := range fast {
		if c.Start >= limit {
			return fast[:i]
		}
	}
	return fast
}
