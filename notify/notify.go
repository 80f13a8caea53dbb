package notify

import (
	"context"
	"errors"
)

// Notifier delivers a plain-text operator message.
type Notifier interface {
	Send(ctx context.Context, msg string) error
}

type Noop struct{}

func (Noop) Send(context.Context, string) error { return nil }

// Multi fans a message out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, msg string) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Combine drops nil notifiers and returns Noop when none remain.
func Combine(notifiers ...Notifier) Notifier {
	var out Multi
	for _, n := range notifiers {
		if n != nil {
			out = append(out, n)
		}
	}
	switch len(out) {
	case 0:
		return Noop{}
	case 1:
		return out[0]
	}
	return out
}
