package recorder

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	json "github.com/bytedance/sonic"

	"github.com/gtoxlili/echoBand/accounting"
	"github.com/gtoxlili/echoBand/entity"
)

var key = entity.SeriesKey{Exchange: "binance", Symbol: "BTCUSDT", Asset: entity.Spot, Period: 60}

func openSQLite(t *testing.T) *SQLite {
	t.Helper()
	r, err := NewSQLite(filepath.Join(t.TempDir(), "db", "echoband.db"), nil)
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestSQLiteCandleCache(t *testing.T) {
	r := openSQLite(t)
	ctx := context.Background()

	candles := []entity.Candle{
		{Start: 0, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10},
		{Start: 60, Open: 1.5, High: 2.5, Low: 1, Close: 2, Volume: 11},
		{Start: 120, Open: 2, High: 3, Low: 1.5, Close: 2.5, Volume: 12},
	}
	if err := r.SaveCandles(ctx, key, candles); err != nil {
		t.Fatal(err)
	}
	// a revised candle replaces the stored one
	if err := r.SaveCandles(ctx, key, []entity.Candle{{Start: 60, Open: 1.5, High: 2.5, Low: 1, Close: 2.2, Volume: 13}}); err != nil {
		t.Fatal(err)
	}

	got, err := r.LoadCandles(ctx, key, 60, 180)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Close != 2.2 || got[1] != candles[2] {
		t.Fatalf("loaded %+v", got)
	}

	other := key
	other.Asset = entity.Futures
	if got, _ := r.LoadCandles(ctx, other, 0, 180); len(got) != 0 {
		t.Fatalf("futures key served spot candles: %+v", got)
	}
}

func TestSQLiteRecordsTradesAndRuns(t *testing.T) {
	r := openSQLite(t)
	ctx := context.Background()

	live := entity.TradeRecord{
		TradeIntent: entity.TradeIntent{CandleTime: 180, Direction: entity.Long, Action: entity.Open, Price: 99},
		TradeTime:   time.Unix(200, 0),
		Symbol:      "BTCUSDT",
		Fill:        &entity.OrderStatus{OrderID: "1", Price: 99.1, Quantity: 2},
		Before:      &entity.Balances{NetLiq: 1000},
	}
	if err := r.RecordTrade(ctx, live); err != nil {
		t.Fatal(err)
	}

	run := &Run{
		Name:   "btc_3m_60m",
		Symbol: "BTCUSDT",
		Asset:  entity.Spot,
		Start:  time.Unix(0, 0),
		End:    time.Unix(3600, 0),
		Report: accounting.Report{Trades: 1, StartCapital: 1000, EndCapital: 1040.4},
		Trades: []entity.TradeRecord{
			{TradeIntent: entity.TradeIntent{CandleTime: 180, Direction: entity.Long, Action: entity.Open, Price: 99}, TradeTime: time.Unix(180, 0), Symbol: "BTCUSDT"},
			{TradeIntent: entity.TradeIntent{CandleTime: 240, Direction: entity.Long, Action: entity.Close, Price: 103}, TradeTime: time.Unix(240, 0), Symbol: "BTCUSDT"},
		},
	}
	if err := r.RecordRun(ctx, run); err != nil {
		t.Fatal(err)
	}

	var runs, runTrades, liveTrades int
	var report string
	if err := r.db.QueryRow(`SELECT COUNT(*), MAX(report) FROM runs`).Scan(&runs, &report); err != nil {
		t.Fatal(err)
	}
	_ = r.db.QueryRow(`SELECT COUNT(*) FROM trades WHERE run_id IS NOT NULL`).Scan(&runTrades)
	_ = r.db.QueryRow(`SELECT COUNT(*) FROM trades WHERE run_id IS NULL`).Scan(&liveTrades)
	if runs != 1 || runTrades != 2 || liveTrades != 1 {
		t.Fatalf("runs %d, run trades %d, live trades %d", runs, runTrades, liveTrades)
	}
	var stored accounting.Report
	if err := json.UnmarshalString(report, &stored); err != nil || stored.EndCapital != 1040.4 {
		t.Fatalf("stored report %q: %v", report, err)
	}
}

func TestToTradeModel(t *testing.T) {
	runID := uint(3)
	rec := entity.TradeRecord{
		TradeIntent: entity.TradeIntent{CandleTime: 240, Direction: entity.Short, Action: entity.Close, Price: 103},
		TradeTime:   time.Unix(250, 0),
		Symbol:      "ETHUSDT",
		Fill:        &entity.OrderStatus{OrderID: "9", Price: 102.9, Quantity: 1, Fee: 0.04, FeeAsset: "USDT"},
		After:       &entity.Balances{NetLiq: 990},
	}
	row := toTradeModel(rec, &runID)
	if *row.RunID != 3 || row.Side != "BUY" || row.Price != 102.9 || row.OrderID != "9" {
		t.Fatalf("row = %+v", row)
	}
	if row.NetLiqBefore != nil || *row.NetLiqAfter != 990 || row.CandleTime.Unix() != 240 {
		t.Fatalf("row = %+v", row)
	}
}

type failing struct{ Noop }

func (failing) RecordTrade(context.Context, entity.TradeRecord) error { return errors.New("disk full") }

func TestMultiJoinsErrors(t *testing.T) {
	m := Multi{Noop{}, failing{}}
	if err := m.RecordTrade(context.Background(), entity.TradeRecord{}); err == nil {
		t.Fatalf("error swallowed")
	}
	if err := m.RecordRun(context.Background(), &Run{}); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
}
