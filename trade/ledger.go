package trade

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/gtoxlili/echoBand/entity"
)

var ledgerHeader = []string{
	"trade_time", "candle_time", "symbol", "side", "direction", "action", "reason",
	"order_id", "size", "fill_price", "fee", "fee_asset",
	"base_before", "quote_before", "netliq_before",
	"base_after", "quote_after", "netliq_after",
}

// Ledger is the append-only CSV trade log. Rows already written are never rewritten.
type Ledger struct {
	path string
	mu   sync.Mutex
}

// NewLedger opens path, creating it and its directory with a header row if needed.
func NewLedger(path string) (*Ledger, error) {
	if path == "" {
		return nil, errors.New("empty ledger path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	if _, err := os.Stat(abs); errors.Is(err, os.ErrNotExist) {
		if err := writeCSV(abs, os.O_CREATE|os.O_WRONLY|os.O_EXCL, [][]string{ledgerHeader}); err != nil {
			return nil, fmt.Errorf("create ledger: %w", err)
		}
	}
	return &Ledger{path: abs}, nil
}

func (l *Ledger) Path() string {
	return l.path
}

func (l *Ledger) Append(rec entity.TradeRecord) error {
	return l.AppendAll([]entity.TradeRecord{rec})
}

// AppendAll writes recs in one flush.
func (l *Ledger) AppendAll(recs []entity.TradeRecord) error {
	if len(recs) == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	rows := lo.Map(recs, func(r entity.TradeRecord, _ int) []string { return formatRecord(r) })
	if err := writeCSV(l.path, os.O_APPEND|os.O_WRONLY, rows); err != nil {
		return fmt.Errorf("append ledger: %w", err)
	}
	return nil
}

// LastN returns the newest n rows, oldest first.
func (l *Ledger) LastN(n int) ([]entity.TradeRecord, error) {
	if n <= 0 {
		n = 10
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	if len(rows) <= 1 {
		return nil, nil
	}
	rows = rows[1:]
	if len(rows) > n {
		rows = rows[len(rows)-n:]
	}
	return lo.Map(rows, func(row []string, _ int) entity.TradeRecord { return parseRecord(row) }), nil
}

// WriteEquity writes the balance curve to path, replacing any previous file.
func WriteEquity(path string, startCapital float64, points []entity.BalancePoint) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create equity dir: %w", err)
	}
	rows := [][]string{{"time", "balance"}, {"", formatF(startCapital)}}
	for _, p := range points {
		rows = append(rows, []string{time.Unix(p.Time, 0).UTC().Format(time.RFC3339), formatF(p.Balance)})
	}
	return writeCSV(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, rows)
}

func writeCSV(path string, flag int, rows [][]string) error {
	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func formatRecord(r entity.TradeRecord) []string {
	fill := lo.FromPtr(r.Fill)
	before, after := lo.FromPtr(r.Before), lo.FromPtr(r.After)
	price := r.Price
	if r.Fill != nil {
		price = fill.Price
	}
	side := fill.Side
	if side == "" {
		side = r.Side()
	}
	return []string{
		r.TradeTime.UTC().Format(time.RFC3339),
		strconv.FormatInt(r.CandleTime, 10),
		r.Symbol,
		string(side),
		string(r.Direction),
		string(r.Action),
		r.Reason,
		fill.OrderID,
		optionalF(r.Fill != nil, fill.Quantity),
		formatF(price),
		optionalF(r.Fill != nil, fill.Fee),
		fill.FeeAsset,
		optionalF(r.Before != nil, before.Base),
		optionalF(r.Before != nil, before.Quote),
		optionalF(r.Before != nil, before.NetLiq),
		optionalF(r.After != nil, after.Base),
		optionalF(r.After != nil, after.Quote),
		optionalF(r.After != nil, after.NetLiq),
	}
}

func parseRecord(row []string) entity.TradeRecord {
	row = append(row, make([]string, max(0, len(ledgerHeader)-len(row)))...)
	tradeTime, _ := time.Parse(time.RFC3339, row[0])
	candle, _ := strconv.ParseInt(row[1], 10, 64)
	rec := entity.TradeRecord{
		TradeIntent: entity.TradeIntent{
			CandleTime: candle,
			Direction:  entity.Direction(row[4]),
			Action:     entity.Action(row[5]),
			Price:      parseF(row[9]),
			Reason:     row[6],
		},
		TradeTime: tradeTime,
		Symbol:    row[2],
	}
	if row[8] != "" {
		rec.Fill = &entity.OrderStatus{
			OrderID:  row[7],
			Side:     entity.Side(row[3]),
			Status:   entity.OrderFilled,
			Price:    parseF(row[9]),
			Quantity: parseF(row[8]),
			Fee:      parseF(row[10]),
			FeeAsset: row[11],
		}
	}
	if row[12] != "" {
		rec.Before = &entity.Balances{Base: parseF(row[12]), Quote: parseF(row[13]), NetLiq: parseF(row[14])}
	}
	if row[15] != "" {
		rec.After = &entity.Balances{Base: parseF(row[15]), Quote: parseF(row[16]), NetLiq: parseF(row[17])}
	}
	return rec
}

func formatF(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

func optionalF(ok bool, f float64) string {
	if !ok {
		return ""
	}
	return formatF(f)
}

func parseF(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
