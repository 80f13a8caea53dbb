package entity

import (
	"fmt"
	"time"

	json "github.com/bytedance/sonic"
)

type Direction string

const (
	Long  Direction = "Long"
	Short Direction = "Short"
)

type Action string

const (
	Open  Action = "Open"
	Close Action = "Close"
)

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// TradeIntent is what the position machine emits for one row.
type TradeIntent struct {
	CandleTime int64     `json:"candle_time"`
	Direction  Direction `json:"direction"`
	Action     Action    `json:"action"`
	Price      float64   `json:"price"`
	Reason     string    `json:"reason"`
}

func (t TradeIntent) String() string {
	return fmt.Sprintf("%s/%s@%g (%s)", t.Action, t.Direction, t.Price, t.Reason)
}

// Side returns the order side that realises the intent.
func (t TradeIntent) Side() Side {
	if (t.Direction == Long) == (t.Action == Open) {
		return Buy
	}
	return Sell
}

type OrderRequest struct {
	Symbol     string    `json:"symbol"`
	Asset      AssetType `json:"asset"`
	Side       Side      `json:"side"`
	Quantity   string    `json:"quantity"`
	ReduceOnly bool      `json:"reduce_only"`
}

type OrderStatus struct {
	OrderID  string  `json:"order_id"`
	Side     Side    `json:"side"`
	Status   string  `json:"status"`
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
	Fee      float64 `json:"fee"`
	FeeAsset string  `json:"fee_asset"`
}

const OrderFilled = "FILLED"

// Filled reports whether the order reached its terminal filled state.
func (o OrderStatus) Filled() bool {
	return o.Status == OrderFilled
}

// Terminal reports whether the order can no longer fill.
func (o OrderStatus) Terminal() bool {
	switch o.Status {
	case "CANCELED", "REJECTED", "EXPIRED", "EXPIRED_IN_MATCH":
		return true
	}
	return false
}

// Balances is a snapshot of the two legs of the traded symbol.
type Balances struct {
	Base   float64 `json:"base"`
	Quote  float64 `json:"quote"`
	NetLiq float64 `json:"netliq"`
}

// TradeRecord is one ledger row. Live fields stay zero in a backtest.
type TradeRecord struct {
	TradeIntent
	TradeTime time.Time    `json:"trade_time"`
	Symbol    string       `json:"symbol"`
	Fill      *OrderStatus `json:"fill,omitempty"`
	Before    *Balances    `json:"before,omitempty"`
	After     *Balances    `json:"after,omitempty"`
}

func (r TradeRecord) JSON() string {
	display, _ := json.MarshalString(r)
	return display
}

// BalancePoint is the balance right after a close.
type BalancePoint struct {
	Time    int64   `json:"time"`
	Balance float64 `json:"balance"`
}
