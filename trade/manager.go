package trade

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gtoxlili/echoBand/entity"
)

// OpenPosition is the bookkeeping kept for a filled Open until its Close fills.
type OpenPosition struct {
	Symbol     string           `json:"symbol"`
	Direction  entity.Direction `json:"direction"`
	Quantity   float64          `json:"quantity"`
	EntryPrice float64          `json:"entry_price"`
	CandleTime int64            `json:"candle_time"`
	OrderID    string           `json:"order_id"`
	OpenedAt   time.Time        `json:"opened_at"`
}

type Manager struct {
	mu sync.RWMutex
	// keyed by symbol, e.g. "BTCUSDT"
	openPositions map[string]OpenPosition
	logger        *zap.Logger
}

func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		openPositions: make(map[string]OpenPosition),
		logger:        logger,
	}
}

// Add is called once an Open order has filled.
func (tm *Manager) Add(pos OpenPosition) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.openPositions[pos.Symbol] = pos
	tm.logger.Info("position added",
		zap.String("symbol", pos.Symbol),
		zap.String("direction", string(pos.Direction)),
		zap.Float64("quantity", pos.Quantity),
		zap.Float64("entry_price", pos.EntryPrice),
	)
}

// Remove is called once a Close order has filled.
func (tm *Manager) Remove(symbol string) (OpenPosition, bool) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	pos, ok := tm.openPositions[symbol]
	if ok {
		delete(tm.openPositions, symbol)
		tm.logger.Info("position removed", zap.String("symbol", symbol))
	}
	return pos, ok
}

func (tm *Manager) Get(symbol string) (OpenPosition, bool) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	pos, ok := tm.openPositions[symbol]
	return pos, ok
}

// GetAll returns a copy of every open position.
func (tm *Manager) GetAll() map[string]OpenPosition {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	clone := make(map[string]OpenPosition, len(tm.openPositions))
	for k, v := range tm.openPositions {
		clone[k] = v
	}
	return clone
}
