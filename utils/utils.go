package utils

import (
	"fmt"
	"math"
	"unsafe"

	json "github.com/bytedance/sonic"
	"github.com/kaptinlin/jsonrepair"
	"github.com/samber/lo"
)

// DecodeJSON repairs hand-edited JSON (trailing commas, comments, single quotes) before decoding.
func DecodeJSON[T any](raw []byte) (T, error) {
	repaired, err := jsonrepair.JSONRepair(string(raw))
	if err != nil {
		return lo.Empty[T](), fmt.Errorf("failed to repair JSON: %w", err)
	}

	var result T
	if err := json.Unmarshal(unsafe.Slice(unsafe.StringData(repaired), len(repaired)), &result); err != nil {
		return lo.Empty[T](), fmt.Errorf("failed to decode JSON: %w", err)
	}
	return result, nil
}

func Avg(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return lo.Sum(data) / float64(len(data))
}

// StdDev is the sample standard deviation (n-1).
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0.0
	}
	return math.Sqrt(sumOfSquares(data) / float64(len(data)-1))
}

// PStdDev is the population standard deviation (n), as used by Bollinger Bands.
func PStdDev(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return math.Sqrt(sumOfSquares(data) / float64(len(data)))
}

func sumOfSquares(data []float64) float64 {
	mean := Avg(data)
	return lo.SumBy(data, func(v float64) float64 {
		return (v - mean) * (v - mean)
	})
}

// NaNs returns a slice of n NaN values.
func NaNs(n int) []float64 {
	return lo.Times(n, func(int) float64 { return math.NaN() })
}
