package entity

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrDataIntegrity    = errors.New("data integrity")
	ErrApplicationState = errors.New("application state")
	ErrConfiguration    = errors.New("configuration")
	ErrExchange         = errors.New("exchange")
	ErrOrderPlacement   = errors.New("order placement")
)

// DataIntegrityError reports a gap, duplicate or short history in a series.
type DataIntegrityError struct {
	Series    string
	Timestamp int64
	Reason    string
}

func (e *DataIntegrityError) Error() string {
	if e.Timestamp == 0 {
		return fmt.Sprintf("data integrity: %s: %s", e.Series, e.Reason)
	}
	return fmt.Sprintf("data integrity: %s at %s: %s",
		e.Series, time.Unix(e.Timestamp, 0).UTC().Format(time.RFC3339), e.Reason)
}

func (e *DataIntegrityError) Unwrap() error { return ErrDataIntegrity }

// ApplicationStateError means the position bookkeeping is inconsistent. Never recoverable.
type ApplicationStateError struct {
	Position string
	Intent   TradeIntent
}

func (e *ApplicationStateError) Error() string {
	return fmt.Sprintf("application state: %s intent while position is %s",
		e.Intent.String(), e.Position)
}

func (e *ApplicationStateError) Unwrap() error { return ErrApplicationState }

type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrConfiguration }

// ExchangeError wraps a failed exchange call. It matches both ErrExchange and the cause.
type ExchangeError struct {
	Op  string
	Err error
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("exchange %s: %v", e.Op, e.Err)
}

func (e *ExchangeError) Unwrap() []error { return []error{ErrExchange, e.Err} }
