package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/gtoxlili/echoBand/entity"
	"github.com/gtoxlili/echoBand/notify"
	"github.com/gtoxlili/echoBand/trade"
)

// BalanceSource reports the account value and the tracked open positions.
type BalanceSource interface {
	Balances(ctx context.Context) (entity.Balances, error)
	Manager() *trade.Manager
}

// Heartbeat sends a periodic net-liquidation snapshot. It only reads the
// position manager, never the machine, so it can run beside the poll loop.
type Heartbeat struct {
	symbol   string
	source   BalanceSource
	notifier notify.Notifier
	logger   *zap.Logger
}

func NewHeartbeat(symbol string, source BalanceSource, notifier notify.Notifier, logger *zap.Logger) *Heartbeat {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &Heartbeat{symbol: symbol, source: source, notifier: notifier, logger: logger}
}

func (h *Heartbeat) Beat(ctx context.Context) {
	msg, err := h.Message(ctx)
	if err != nil {
		h.logger.Warn("heartbeat skipped", zap.Error(err))
		return
	}
	h.logger.Info("heartbeat", zap.String("message", msg))
	if err := h.notifier.Send(ctx, msg); err != nil {
		h.logger.Warn("heartbeat notification failed", zap.Error(err))
	}
}

func (h *Heartbeat) Message(ctx context.Context) (string, error) {
	bal, err := h.source.Balances(ctx)
	if err != nil {
		return "", fmt.Errorf("balances: %w", err)
	}
	position := "flat"
	if open := h.source.Manager().GetAll(); len(open) > 0 {
		symbols := lo.Keys(open)
		sort.Strings(symbols)
		position = strings.Join(lo.Map(symbols, func(s string, _ int) string {
			pos := open[s]
			return fmt.Sprintf("%s %s %g @ %g", s, pos.Direction, pos.Quantity, pos.EntryPrice)
		}), "; ")
	}
	return fmt.Sprintf("💓 %s netliq %.2f (base %g, quote %.2f), %s", h.symbol, bal.NetLiq, bal.Base, bal.Quote, position), nil
}
