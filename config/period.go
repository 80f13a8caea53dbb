package config

import (
	"fmt"
	"strconv"
	"strings"
)

var periodUnits = map[byte]int64{
	's': 1,
	'm': 60,
	'h': 60 * 60,
	'd': 24 * 60 * 60,
}

// ParsePeriod converts "3m", "60m", "4h" or "1d" to seconds.
func ParsePeriod(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid period %q", s)
	}
	unit, ok := periodUnits[s[len(s)-1]]
	if !ok {
		return 0, fmt.Errorf("invalid period unit in %q", s)
	}
	n, err := strconv.ParseInt(s[:len(s)-1], 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid period %q", s)
	}
	return n * unit, nil
}

var binanceIntervals = map[int64]string{
	1:         "1s",
	60:        "1m",
	3 * 60:    "3m",
	5 * 60:    "5m",
	15 * 60:   "15m",
	30 * 60:   "30m",
	3600:      "1h",
	2 * 3600:  "2h",
	4 * 3600:  "4h",
	6 * 3600:  "6h",
	8 * 3600:  "8h",
	12 * 3600: "12h",
	86400:     "1d",
	3 * 86400: "3d",
	7 * 86400: "1w",
}

// BinanceInterval maps a period in seconds to a klines interval.
func BinanceInterval(seconds int64) (string, error) {
	if interval, ok := binanceIntervals[seconds]; ok {
		return interval, nil
	}
	return "", fmt.Errorf("no binance interval for %ds", seconds)
}
