package strategy

import (
	"fmt"

	"github.com/gtoxlili/echoBand/entity"
	"github.com/gtoxlili/echoBand/ta"
)

type Variant string

const (
	AllParams    Variant = "all_params"
	BBandEntry   Variant = "bband_entry"
	WillREMAStop Variant = "willrema_stop"
	TakeProfit   Variant = "take_profit"
	RunProfits   Variant = "run_profits"
	BBandOnly    Variant = "bband_only"
)

// Rules are the predicates a variant switches on. Stop-loss and time-stop
// always apply when their parameter is set.
type Rules struct {
	// RequireTrend gates entries on the slow Williams %R EMA trend.
	RequireTrend bool
	// BandEntry requires close to sit BBandEntry of the band width off the opposite band.
	BandEntry bool
	// CrossExit closes on the configured close crosses.
	CrossExit bool
	// RunProfits closes a long on the short-entry cross and a short on the long-entry cross.
	RunProfits bool
	// ReverseTrendExit closes when the slow EMA turns against the position.
	ReverseTrendExit bool
	TakeProfitExit   bool
	// MidBandExit closes when close passes the middle band.
	MidBandExit bool
}

var variants = map[Variant]Rules{
	AllParams:    {RequireTrend: true, CrossExit: true},
	BBandEntry:   {RequireTrend: true, BandEntry: true, CrossExit: true},
	WillREMAStop: {RequireTrend: true, CrossExit: true, ReverseTrendExit: true},
	TakeProfit:   {RequireTrend: true, CrossExit: true, TakeProfitExit: true},
	RunProfits:   {RequireTrend: true, CrossExit: true, RunProfits: true},
	BBandOnly:    {MidBandExit: true},
}

func (v Variant) Rules() (Rules, error) {
	rules, ok := variants[v]
	if !ok {
		return Rules{}, &entity.ConfigError{Field: "strategy.variant", Reason: fmt.Sprintf("unknown variant %q", v)}
	}
	return rules, nil
}

// Params is the full strategy configuration. Thresholds follow the
// Williams %R scale [-100, 0].
type Params struct {
	Variant Variant `json:"variant" yaml:"variant"`

	WillRPeriod    int     `json:"willr_period" yaml:"willr_period"`
	WillREMAPeriod int     `json:"willrema_period" yaml:"willrema_period"`
	BBandPeriod    int     `json:"bband_period" yaml:"bband_period"`
	BBandDevs      float64 `json:"bband_devs" yaml:"bband_devs"`

	// -100 and 0 leave the EMA thresholds open.
	WillREMALongEntry  float64 `json:"willrema_long_entry" yaml:"willrema_long_entry"`
	WillREMAShortEntry float64 `json:"willrema_short_entry" yaml:"willrema_short_entry"`
	WillRLongEntry     float64 `json:"willr_long_entry" yaml:"willr_long_entry"`
	WillRShortEntry    float64 `json:"willr_short_entry" yaml:"willr_short_entry"`
	// WillREMADiff is the minimum EMA move between consecutive slow rows.
	WillREMADiff float64 `json:"willrema_diff" yaml:"willrema_diff"`

	StopLoss   float64 `json:"stoploss" yaml:"stoploss"`
	TimeStop   int64   `json:"timestop" yaml:"timestop"`
	TakeProfit float64 `json:"takeprofit" yaml:"takeprofit"`
	BBandEntry float64 `json:"bband_entry" yaml:"bband_entry"`

	Crosses ta.CrossSpec `json:"crosses" yaml:"crosses"`
}

func DefaultParams() Params {
	return Params{
		Variant:            AllParams,
		WillRPeriod:        14,
		WillREMAPeriod:     43,
		BBandPeriod:        20,
		BBandDevs:          2.3,
		WillREMALongEntry:  -100,
		WillREMAShortEntry: 0,
		WillRLongEntry:     -100,
		WillRShortEntry:    0,
		Crosses:            ta.DefaultCrossSpec(),
	}
}

// SlowWarmup is the number of slow rows needed before the smoothed WillR is defined.
func (p Params) SlowWarmup() int {
	return p.WillRPeriod + p.WillREMAPeriod
}

// FastWarmup is the number of fast rows needed for the bands and one row of history.
func (p Params) FastWarmup() int {
	return p.BBandPeriod + 1
}

func (p Params) Validate() error {
	if _, err := p.Variant.Rules(); err != nil {
		return err
	}
	switch {
	case p.WillRPeriod <= 0:
		return &entity.ConfigError{Field: "strategy.willr_period", Reason: "must be positive"}
	case p.WillREMAPeriod <= 0:
		return &entity.ConfigError{Field: "strategy.willrema_period", Reason: "must be positive"}
	case p.BBandPeriod <= 0:
		return &entity.ConfigError{Field: "strategy.bband_period", Reason: "must be positive"}
	case p.BBandDevs <= 0:
		return &entity.ConfigError{Field: "strategy.bband_devs", Reason: "must be positive"}
	case p.StopLoss < 0 || p.StopLoss >= 1:
		return &entity.ConfigError{Field: "strategy.stoploss", Reason: "must be in [0, 1)"}
	case p.TimeStop < 0:
		return &entity.ConfigError{Field: "strategy.timestop", Reason: "must not be negative"}
	case p.TakeProfit < 0:
		return &entity.ConfigError{Field: "strategy.takeprofit", Reason: "must not be negative"}
	case p.BBandEntry < 0 || p.BBandEntry >= 1:
		return &entity.ConfigError{Field: "strategy.bband_entry", Reason: "must be in [0, 1)"}
	case p.WillREMADiff < 0:
		return &entity.ConfigError{Field: "strategy.willrema_diff", Reason: "must not be negative"}
	}
	for name, v := range map[string]float64{
		"willrema_long_entry":  p.WillREMALongEntry,
		"willrema_short_entry": p.WillREMAShortEntry,
		"willr_long_entry":     p.WillRLongEntry,
		"willr_short_entry":    p.WillRShortEntry,
	} {
		if v < -100 || v > 0 {
			return &entity.ConfigError{Field: "strategy." + name, Reason: "must be within [-100, 0]"}
		}
	}
	if p.Variant == TakeProfit && p.TakeProfit == 0 {
		return &entity.ConfigError{Field: "strategy.takeprofit", Reason: "required by the take_profit variant"}
	}
	if p.Variant == BBandEntry && p.BBandEntry == 0 {
		return &entity.ConfigError{Field: "strategy.bband_entry", Reason: "required by the bband_entry variant"}
	}
	return nil
}

// Indicators is the pipeline configuration these parameters imply.
func (p Params) Indicators(fastPeriod, slowPeriod int64) ta.Config {
	return ta.Config{
		WillRPeriod:    p.WillRPeriod,
		WillREMAPeriod: p.WillREMAPeriod,
		BBandPeriod:    p.BBandPeriod,
		BBandDevs:      p.BBandDevs,
		FastPeriod:     fastPeriod,
		SlowPeriod:     slowPeriod,
		Crosses:        p.Crosses,
	}
}
