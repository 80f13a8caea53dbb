package recorder

import (
	"context"
	"errors"
	"time"

	"github.com/gtoxlili/echoBand/accounting"
	"github.com/gtoxlili/echoBand/entity"
)

// Run is one finished backtest.
type Run struct {
	Name     string
	Symbol   string
	Asset    entity.AssetType
	Variant  string
	Start    time.Time
	End      time.Time
	Report   accounting.Report
	Trades   []entity.TradeRecord
	Balances []entity.BalancePoint
}

// Recorder persists trades and runs outside the CSV ledger.
type Recorder interface {
	RecordTrade(ctx context.Context, rec entity.TradeRecord) error
	RecordRun(ctx context.Context, run *Run) error
	Close() error
}

type Noop struct{}

func (Noop) RecordTrade(context.Context, entity.TradeRecord) error { return nil }
func (Noop) RecordRun(context.Context, *Run) error                 { return nil }
func (Noop) Close() error                                          { return nil }

// Multi writes to every recorder and joins their errors.
type Multi []Recorder

func (m Multi) RecordTrade(ctx context.Context, rec entity.TradeRecord) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.RecordTrade(ctx, rec))
	}
	return errors.Join(errs...)
}

func (m Multi) RecordRun(ctx context.Context, run *Run) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.RecordRun(ctx, run))
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.Close())
	}
	return errors.Join(errs...)
}
