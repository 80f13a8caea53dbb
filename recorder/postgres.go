package recorder

import (
	"context"
	"fmt"
	"time"

	json "github.com/bytedance/sonic"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/gtoxlili/echoBand/entity"
)

type RunModel struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	Name         string    `gorm:"size:64;index" json:"name"`
	Symbol       string    `gorm:"size:20;index;not null" json:"symbol"`
	Asset        string    `gorm:"size:10" json:"asset"`
	Variant      string    `gorm:"size:32" json:"variant"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	Trades       int       `json:"trades"`
	Wins         int       `json:"wins"`
	Losses       int       `json:"losses"`
	StartCapital float64   `json:"start_capital"`
	EndCapital   float64   `json:"end_capital"`
	ReturnPct    float64   `json:"return_pct"`
	MaxDrawdown  float64   `json:"max_drawdown"`
	Sharpe       float64   `json:"sharpe"`
	Report       string    `gorm:"type:jsonb" json:"report"`
}

func (RunModel) TableName() string {
	return "backtest_runs"
}

// TradeModel rows with a nil RunID come from live trading.
type TradeModel struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	RunID        *uint     `gorm:"index" json:"run_id,omitempty"`
	TradeTime    time.Time `gorm:"index;not null" json:"trade_time"`
	CandleTime   time.Time `gorm:"not null" json:"candle_time"`
	Symbol       string    `gorm:"size:20;index;not null" json:"symbol"`
	Side         string    `gorm:"size:4" json:"side"`
	Direction    string    `gorm:"size:5" json:"direction"`
	Action       string    `gorm:"size:5" json:"action"`
	Reason       string    `gorm:"size:64" json:"reason"`
	Price        float64   `json:"price"`
	OrderID      string    `gorm:"size:32" json:"order_id"`
	Quantity     float64   `json:"quantity"`
	Fee          float64   `json:"fee"`
	FeeAsset     string    `gorm:"size:10" json:"fee_asset"`
	NetLiqBefore *float64  `json:"netliq_before,omitempty"`
	NetLiqAfter  *float64  `json:"netliq_after,omitempty"`
}

func (TradeModel) TableName() string {
	return "trades"
}

type BalanceModel struct {
	ID      int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	RunID   uint      `gorm:"index;not null" json:"run_id"`
	Time    time.Time `gorm:"not null" json:"time"`
	Balance float64   `json:"balance"`
}

func (BalanceModel) TableName() string {
	return "backtest_balances"
}

// Postgres uploads backtest runs and mirrors live trades.
type Postgres struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewPostgres(dsn string, logger *zap.Logger) (*Postgres, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.AutoMigrate(&RunModel{}, &TradeModel{}, &BalanceModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	logger.Info("postgres recorder connected")
	return &Postgres{db: db, logger: logger}, nil
}

func (p *Postgres) RecordTrade(ctx context.Context, rec entity.TradeRecord) error {
	row := toTradeModel(rec, nil)
	if err := p.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("RecordTrade: %w", err)
	}
	return nil
}

func (p *Postgres) RecordRun(ctx context.Context, run *Run) error {
	model, err := toRunModel(run)
	if err != nil {
		return err
	}
	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		trades := lo.Map(run.Trades, func(rec entity.TradeRecord, _ int) TradeModel {
			return toTradeModel(rec, &model.ID)
		})
		if len(trades) > 0 {
			if err := tx.CreateInBatches(trades, 500).Error; err != nil {
				return err
			}
		}
		balances := lo.Map(run.Balances, func(b entity.BalancePoint, _ int) BalanceModel {
			return BalanceModel{RunID: model.ID, Time: time.Unix(b.Time, 0).UTC(), Balance: b.Balance}
		})
		if len(balances) > 0 {
			return tx.CreateInBatches(balances, 500).Error
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("RecordRun: %w", err)
	}
	p.logger.Info("backtest run uploaded", zap.Uint("run_id", model.ID), zap.Int("trades", len(run.Trades)))
	return nil
}

func (p *Postgres) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRunModel(run *Run) (RunModel, error) {
	report, err := json.MarshalString(run.Report)
	if err != nil {
		return RunModel{}, fmt.Errorf("marshal report: %w", err)
	}
	return RunModel{
		Name:         run.Name,
		Symbol:       run.Symbol,
		Asset:        string(run.Asset),
		Variant:      run.Variant,
		StartTime:    run.Start.UTC(),
		EndTime:      run.End.UTC(),
		Trades:       run.Report.Trades,
		Wins:         run.Report.Wins,
		Losses:       run.Report.Losses,
		StartCapital: run.Report.StartCapital,
		EndCapital:   run.Report.EndCapital,
		ReturnPct:    run.Report.ReturnPct,
		MaxDrawdown:  run.Report.MaxDrawdown,
		Sharpe:       run.Report.Sharpe,
		Report:       report,
	}, nil
}

func toTradeModel(rec entity.TradeRecord, runID *uint) TradeModel {
	row := TradeModel{
		RunID:      runID,
		TradeTime:  rec.TradeTime.UTC(),
		CandleTime: time.Unix(rec.CandleTime, 0).UTC(),
		Symbol:     rec.Symbol,
		Side:       string(rec.Side()),
		Direction:  string(rec.Direction),
		Action:     string(rec.Action),
		Reason:     rec.Reason,
		Price:      rec.Price,
	}
	if rec.Fill != nil {
		row.Price = rec.Fill.Price
		row.OrderID = rec.Fill.OrderID
		row.Quantity = rec.Fill.Quantity
		row.Fee = rec.Fill.Fee
		row.FeeAsset = rec.Fill.FeeAsset
	}
	if rec.Before != nil {
		row.NetLiqBefore = lo.ToPtr(rec.Before.NetLiq)
	}
	if rec.After != nil {
		row.NetLiqAfter = lo.ToPtr(rec.After.NetLiq)
	}
	return row
}
