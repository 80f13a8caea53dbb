package ta

import (
	"fmt"
	"math"
	"strings"
)

type CrossDirection int

const (
	Over CrossDirection = iota
	Under
)

func (d CrossDirection) holds(a, b float64) bool {
	if d == Over {
		return a > b
	}
	return a < b
}

// DetectCross flags rows where a moves over (or under) b. Row i fires only if
// a and b are defined at i and i-1, the comparison holds at i and did not at i-1.
func DetectCross(a, b []float64, dir CrossDirection) []bool {
	n := min(len(a), len(b))
	out := make([]bool, n)
	for i := 1; i < n; i++ {
		if math.IsNaN(a[i]) || math.IsNaN(b[i]) || math.IsNaN(a[i-1]) || math.IsNaN(b[i-1]) {
			continue
		}
		out[i] = dir.holds(a[i], b[i]) && !dir.holds(a[i-1], b[i-1])
	}
	return out
}

// Column names a fast-series column that can take part in a crossover test.
type Column int

const (
	ColClose Column = iota
	ColBBandLow
	ColBBandHigh
	ColBBandMid
)

var columnNames = map[Column]string{
	ColClose:     "close",
	ColBBandLow:  "bband_low",
	ColBBandHigh: "bband_high",
	ColBBandMid:  "bband_mid",
}

func (c Column) String() string {
	if name, ok := columnNames[c]; ok {
		return name
	}
	return fmt.Sprintf("column(%d)", int(c))
}

func (c Column) MarshalText() ([]byte, error) {
	if _, ok := columnNames[c]; !ok {
		return nil, fmt.Errorf("unknown column %d", int(c))
	}
	return []byte(c.String()), nil
}

func (c *Column) UnmarshalText(text []byte) error {
	want := strings.ToLower(strings.TrimSpace(string(text)))
	for col, name := range columnNames {
		if name == want {
			*c = col
			return nil
		}
	}
	return fmt.Errorf("unknown column %q", string(text))
}

// Pair is one (a, b) crossover test.
type Pair struct {
	A Column `json:"a" yaml:"a"`
	B Column `json:"b" yaml:"b"`
}

// CrossSpec selects the four crossover tests. Entries and closes of longs
// cross over, those of shorts cross under.
type CrossSpec struct {
	LongEntry  Pair `json:"long_entry" yaml:"long_entry"`
	LongClose  Pair `json:"long_close" yaml:"long_close"`
	ShortEntry Pair `json:"short_entry" yaml:"short_entry"`
	ShortClose Pair `json:"short_close" yaml:"short_close"`
}

func DefaultCrossSpec() CrossSpec {
	return CrossSpec{
		LongEntry:  Pair{A: ColClose, B: ColBBandLow},
		LongClose:  Pair{A: ColClose, B: ColBBandHigh},
		ShortEntry: Pair{A: ColClose, B: ColBBandHigh},
		ShortClose: Pair{A: ColClose, B: ColBBandLow},
	}
}
