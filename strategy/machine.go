package strategy

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/gtoxlili/echoBand/entity"
)

type Position int

const (
	Flat  Position = 0
	Long  Position = 1
	Short Position = -1
)

func (p Position) String() string {
	switch p {
	case Long:
		return "LongOpen"
	case Short:
		return "ShortOpen"
	default:
		return "Flat"
	}
}

// Executor carries out an intent. The machine only commits the transition
// when Execute returns nil.
type Executor interface {
	Execute(ctx context.Context, intent entity.TradeIntent) error
}

type trend int

const (
	neutral trend = iota
	bullish
	bearish
)

// Machine is the single-position state machine. It is not safe for
// concurrent use; drivers feed it one closed row at a time.
type Machine struct {
	params Params
	rules  Rules
	exec   Executor
	logger *zap.Logger

	position   Position
	entryPrice float64
	entryTime  int64

	seen    bool
	lastRow int64
}

func NewMachine(params Params, exec Executor, logger *zap.Logger) (*Machine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	rules, _ := params.Variant.Rules()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine{
		params: params,
		rules:  rules,
		exec:   exec,
		logger: logger,
	}, nil
}

func (m *Machine) Position() Position {
	return m.position
}

// Entry returns the reference price and candle time of the open position.
func (m *Machine) Entry() (price float64, candleTime int64) {
	return m.entryPrice, m.entryTime
}

// OnCandle evaluates one aligned row and reports whether a position was
// closed on it. After a close the same row is evaluated once more for a
// fresh entry. A row only counts as evaluated once it returns without
// error, so a row whose execution failed may be fed again.
func (m *Machine) OnCandle(ctx context.Context, row entity.AlignedRow) (bool, error) {
	if !row.Defined() {
		m.logger.Debug("skipping undefined row", zap.Int64("candle", row.Start))
		return false, nil
	}
	if m.seen && row.Start <= m.lastRow {
		return false, fmt.Errorf("row %d is not after the last evaluated row %d", row.Start, m.lastRow)
	}

	closed, err := m.step(ctx, row)
	if err == nil && closed {
		_, err = m.step(ctx, row)
	}
	if err != nil {
		return closed, err
	}
	m.seen, m.lastRow = true, row.Start
	return closed, nil
}

func (m *Machine) step(ctx context.Context, row entity.AlignedRow) (bool, error) {
	switch m.position {
	case Flat:
		switch {
		case row.Crosses.LongEntry && m.entryAllowed(row, entity.Long):
			return false, m.Apply(ctx, m.intent(row, entity.Long, entity.Open, "entry cross"))
		case row.Crosses.ShortEntry && m.entryAllowed(row, entity.Short):
			return false, m.Apply(ctx, m.intent(row, entity.Short, entity.Open, "entry cross"))
		}
	case Long:
		if reason := m.exitReason(row, entity.Long); reason != "" {
			if err := m.Apply(ctx, m.intent(row, entity.Long, entity.Close, reason)); err != nil {
				return false, err
			}
			return true, nil
		}
	case Short:
		if reason := m.exitReason(row, entity.Short); reason != "" {
			if err := m.Apply(ctx, m.intent(row, entity.Short, entity.Close, reason)); err != nil {
				return false, err
			}
			return true, nil
		}
	}
	return false, nil
}

// Apply checks the intent against the current position, executes it and
// commits the transition. An Open while a position is held, or a Close
// that does not match it, returns an *entity.ApplicationStateError.
func (m *Machine) Apply(ctx context.Context, intent entity.TradeIntent) error {
	want := Long
	if intent.Direction == entity.Short {
		want = Short
	}

	switch intent.Action {
	case entity.Open:
		if m.position != Flat {
			return &entity.ApplicationStateError{Position: m.position.String(), Intent: intent}
		}
	case entity.Close:
		if m.position != want {
			return &entity.ApplicationStateError{Position: m.position.String(), Intent: intent}
		}
	default:
		return &entity.ApplicationStateError{Position: m.position.String(), Intent: intent}
	}

	if err := m.exec.Execute(ctx, intent); err != nil {
		return fmt.Errorf("execute %s: %w", intent, err)
	}

	if intent.Action == entity.Open {
		m.position = want
		m.entryPrice = intent.Price
		m.entryTime = intent.CandleTime
	} else {
		m.position = Flat
		m.entryPrice = 0
		m.entryTime = 0
	}
	m.logger.Info("position changed",
		zap.Int64("candle", intent.CandleTime),
		zap.String("intent", intent.String()),
		zap.Stringer("position", m.position),
	)
	return nil
}

func (m *Machine) intent(row entity.AlignedRow, dir entity.Direction, action entity.Action, reason string) entity.TradeIntent {
	return entity.TradeIntent{
		CandleTime: row.Start,
		Direction:  dir,
		Action:     action,
		Price:      row.Close,
		Reason:     reason,
	}
}

// trend reads the slow Williams %R and its EMA against the entry thresholds.
func (m *Machine) trend(row entity.AlignedRow) trend {
	p, s := m.params, row.Slow
	switch {
	case s.WillREMA > p.WillREMALongEntry && s.WillR > p.WillRLongEntry && s.WillREMA-p.WillREMADiff > s.WillREMAPrev:
		return bullish
	case s.WillREMA < p.WillREMAShortEntry && s.WillR < p.WillRShortEntry && s.WillREMA+p.WillREMADiff < s.WillREMAPrev:
		return bearish
	}
	return neutral
}

func (m *Machine) entryAllowed(row entity.AlignedRow, dir entity.Direction) bool {
	if m.rules.RequireTrend {
		t := m.trend(row)
		if (dir == entity.Long && t != bullish) || (dir == entity.Short && t != bearish) {
			return false
		}
	}
	if m.rules.BandEntry && m.params.BBandEntry > 0 {
		width := row.BBandHigh - row.BBandLow
		if dir == entity.Long {
			return row.Close-row.BBandLow > m.params.BBandEntry*width
		}
		return row.BBandHigh-row.Close > m.params.BBandEntry*width
	}
	return true
}

func (m *Machine) exitReason(row entity.AlignedRow, dir entity.Direction) string {
	p, c := m.params, row.Crosses
	long := dir == entity.Long

	if m.rules.CrossExit {
		switch {
		case m.rules.RunProfits && long && c.ShortEntry,
			m.rules.RunProfits && !long && c.LongEntry:
			return "reverse cross"
		case !m.rules.RunProfits && long && c.LongClose,
			!m.rules.RunProfits && !long && c.ShortClose:
			return "close cross"
		}
	}
	if m.rules.MidBandExit {
		if (long && row.Close > row.BBandMid) || (!long && row.Close < row.BBandMid) {
			return "mid band"
		}
	}
	if p.StopLoss > 0 {
		if (long && row.Close < m.entryPrice*(1-p.StopLoss)) || (!long && row.Close > m.entryPrice*(1+p.StopLoss)) {
			return "stoploss"
		}
	}
	if p.TimeStop > 0 && row.Start-m.entryTime > p.TimeStop {
		return "timestop"
	}
	if m.rules.TakeProfitExit && p.TakeProfit > 0 {
		if (long && row.Close > m.entryPrice*(1+p.TakeProfit)) || (!long && row.Close < m.entryPrice*(1-p.TakeProfit)) {
			return "takeprofit"
		}
	}
	if m.rules.ReverseTrendExit {
		s := row.Slow
		if (long && s.WillREMA+p.WillREMADiff < s.WillREMAPrev) || (!long && s.WillREMA-p.WillREMADiff > s.WillREMAPrev) {
			return "trend reversal"
		}
	}
	return ""
}
