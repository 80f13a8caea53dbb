package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	json "github.com/bytedance/sonic"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/gtoxlili/echoBand/entity"
)

// SQLite caches fetched candles and mirrors trades and backtest runs.
type SQLite struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *zap.Logger
}

// NewSQLite opens (or creates) the database and runs migrations.
func NewSQLite(dbPath string, logger *zap.Logger) (*SQLite, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLite{db: db, logger: logger}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	logger.Info("sqlite recorder opened", zap.String("path", dbPath))
	return r, nil
}

func (r *SQLite) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS candles (
			exchange TEXT    NOT NULL,
			symbol   TEXT    NOT NULL,
			asset    TEXT    NOT NULL,
			period   INTEGER NOT NULL,
			ts       INTEGER NOT NULL,
			open     REAL,
			high     REAL,
			low      REAL,
			close    REAL,
			volume   REAL,
			PRIMARY KEY (exchange, symbol, asset, period, ts)
		)`,

		`CREATE TABLE IF NOT EXISTS runs (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			recorded_at  INTEGER NOT NULL,
			name         TEXT,
			symbol       TEXT,
			asset        TEXT,
			variant      TEXT,
			start_time   INTEGER,
			end_time     INTEGER,
			trades       INTEGER,
			start_capital REAL,
			end_capital  REAL,
			return_pct   REAL,
			max_drawdown REAL,
			sharpe       REAL,
			report       TEXT
		)`,

		`CREATE TABLE IF NOT EXISTS trades (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id      INTEGER REFERENCES runs(id),
			trade_time  INTEGER NOT NULL,
			candle_time INTEGER NOT NULL,
			symbol      TEXT,
			direction   TEXT,
			action      TEXT,
			reason      TEXT,
			price       REAL,
			order_id    TEXT,
			quantity    REAL,
			fee         REAL,
			fee_asset   TEXT,
			netliq_before REAL,
			netliq_after  REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_time ON trades(trade_time)`,
	}
	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// LoadCandles returns the cached candles of key starting in [start, end).
func (r *SQLite) LoadCandles(ctx context.Context, key entity.SeriesKey, start, end int64) ([]entity.Candle, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT ts, open, high, low, close, volume FROM candles
		WHERE exchange = ? AND symbol = ? AND asset = ? AND period = ? AND ts >= ? AND ts < ?
		ORDER BY ts`,
		key.Exchange, key.Symbol, string(key.Asset), key.Period, start, end)
	if err != nil {
		return nil, fmt.Errorf("query candles: %w", err)
	}
	defer rows.Close()

	var candles []entity.Candle
	for rows.Next() {
		var c entity.Candle
		if err := rows.Scan(&c.Start, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// SaveCandles upserts candles. Only closed candles should be passed.
func (r *SQLite) SaveCandles(ctx context.Context, key entity.SeriesKey, candles []entity.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO candles (exchange, symbol, asset, period, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare candle insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, key.Exchange, key.Symbol, string(key.Asset), key.Period,
			c.Start, c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			return fmt.Errorf("insert candle %d: %w", c.Start, err)
		}
	}
	return tx.Commit()
}

func (r *SQLite) RecordTrade(ctx context.Context, rec entity.TradeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return insertTrade(ctx, r.db, nil, rec)
}

func (r *SQLite) RecordRun(ctx context.Context, run *Run) error {
	report, err := json.MarshalString(run.Report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO runs (recorded_at, name, symbol, asset, variant, start_time, end_time, trades,
			start_capital, end_capital, return_pct, max_drawdown, sharpe, report)
		VALUES (strftime('%s','now'), ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.Name, run.Symbol, string(run.Asset), run.Variant, run.Start.Unix(), run.End.Unix(),
		run.Report.Trades, run.Report.StartCapital, run.Report.EndCapital, run.Report.ReturnPct,
		run.Report.MaxDrawdown, run.Report.Sharpe, report)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return err
	}
	for _, rec := range run.Trades {
		if err := insertTrade(ctx, tx, &runID, rec); err != nil {
			return err
		}
	}
	return tx.Commit()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertTrade(ctx context.Context, db execer, runID *int64, rec entity.TradeRecord) error {
	var (
		orderID, feeAsset   string
		qty, fee            float64
		netBefore, netAfter sql.NullFloat64
	)
	if rec.Fill != nil {
		orderID, feeAsset, qty, fee = rec.Fill.OrderID, rec.Fill.FeeAsset, rec.Fill.Quantity, rec.Fill.Fee
	}
	if rec.Before != nil {
		netBefore = sql.NullFloat64{Float64: rec.Before.NetLiq, Valid: true}
	}
	if rec.After != nil {
		netAfter = sql.NullFloat64{Float64: rec.After.NetLiq, Valid: true}
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO trades (run_id, trade_time, candle_time, symbol, direction, action, reason, price,
			order_id, quantity, fee, fee_asset, netliq_before, netliq_after)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, rec.TradeTime.Unix(), rec.CandleTime, rec.Symbol, string(rec.Direction), string(rec.Action),
		rec.Reason, rec.Price, orderID, qty, fee, feeAsset, netBefore, netAfter)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

func (r *SQLite) Close() error {
	return r.db.Close()
}
