package accounting

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/gtoxlili/echoBand/entity"
)

func intent(ts int64, dir entity.Direction, action entity.Action, price float64) entity.TradeIntent {
	return entity.TradeIntent{CandleTime: ts, Direction: dir, Action: action, Price: price}
}

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestCalcPnLRoundTrip(t *testing.T) {
	const fee = 0.00075
	cases := []struct {
		name string
		dir  entity.Direction
		open float64
		exit float64
		want float64
	}{
		{"long win", entity.Long, 100, 110, 1000 * (1 + 0.10) * (1 - 2*fee)},
		{"long loss", entity.Long, 100, 95, 1000 * (1 - 0.05) * (1 - 2*fee)},
		{"short win", entity.Short, 100, 90, 1000 * (1 + 0.10) * (1 - 2*fee)},
		{"short loss", entity.Short, 100, 104, 1000 * (1 - 0.04) * (1 - 2*fee)},
	}
	for _, c := range cases {
		res, err := CalcPnL([]entity.TradeIntent{
			intent(0, c.dir, entity.Open, c.open),
			intent(60, c.dir, entity.Close, c.exit),
		}, fee, 1000)
		if err != nil {
			t.Fatalf("%s: %v", c.name, err)
		}
		if !near(res.EndCapital, c.want) {
			t.Errorf("%s: end capital %v, want %v", c.name, res.EndCapital, c.want)
		}
		if !near(res.PnL, c.want-1000) || !near(res.ReturnPct, (c.want-1000)/10) {
			t.Errorf("%s: pnl %v return %v", c.name, res.PnL, res.ReturnPct)
		}
		if len(res.Balances) != 1 || res.Balances[0].Time != 60 {
			t.Errorf("%s: balances %v", c.name, res.Balances)
		}
	}
}

func TestCalcPnLScenario(t *testing.T) {
	res, err := CalcPnL([]entity.TradeIntent{
		intent(180, entity.Long, entity.Open, 99),
		intent(240, entity.Long, entity.Close, 103),
	}, 0, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(res.EndCapital-1040.40) > 0.01 {
		t.Fatalf("end capital = %v, want ~1040.40", res.EndCapital)
	}
}

func TestCalcPnLCompounds(t *testing.T) {
	res, err := CalcPnL([]entity.TradeIntent{
		intent(0, entity.Long, entity.Open, 100),
		intent(60, entity.Long, entity.Close, 110),
		intent(120, entity.Short, entity.Open, 110),
		intent(180, entity.Short, entity.Close, 99),
		intent(240, entity.Long, entity.Open, 99),
	}, 0, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if !near(res.EndCapital, 1000*1.1*1.1) {
		t.Fatalf("end capital = %v", res.EndCapital)
	}
	if len(res.RoundTrips) != 2 || !res.OpenAtEnd {
		t.Fatalf("round trips %d open at end %v", len(res.RoundTrips), res.OpenAtEnd)
	}
	if res.Balances[0].Balance >= res.Balances[1].Balance {
		t.Fatalf("balances not increasing: %v", res.Balances)
	}
}

func TestCalcPnLRejectsBrokenLogs(t *testing.T) {
	logs := map[string][]entity.TradeIntent{
		"close while flat": {intent(0, entity.Long, entity.Close, 100)},
		"wrong direction": {
			intent(0, entity.Long, entity.Open, 100),
			intent(60, entity.Short, entity.Close, 100),
		},
		"double open": {
			intent(0, entity.Long, entity.Open, 100),
			intent(60, entity.Long, entity.Open, 100),
		},
	}
	for name, log := range logs {
		_, err := CalcPnL(log, 0, 1000)
		var stateErr *entity.ApplicationStateError
		if !errors.As(err, &stateErr) {
			t.Errorf("%s: expected ApplicationStateError, got %v", name, err)
		}
	}
}

func TestBuildReport(t *testing.T) {
	const day = int64(24 * 60 * 60)
	res, err := CalcPnL([]entity.TradeIntent{
		intent(0, entity.Long, entity.Open, 100),
		intent(3600, entity.Long, entity.Close, 110),
		intent(day, entity.Short, entity.Open, 110),
		intent(day+7200, entity.Short, entity.Close, 121),
		intent(2*day, entity.Long, entity.Open, 100),
		intent(2*day+3600, entity.Long, entity.Close, 105),
	}, 0, 1000)
	if err != nil {
		t.Fatal(err)
	}

	candles := []entity.Candle{
		{Start: 0, Close: 100},
		{Start: day, Close: 110},
		{Start: 2 * day, Close: 100},
		{Start: 3 * day, Close: 120},
	}
	rep := BuildReport(res, candles)

	if rep.Trades != 3 || rep.Wins != 2 || rep.Losses != 1 {
		t.Fatalf("trades %d wins %d losses %d", rep.Trades, rep.Wins, rep.Losses)
	}
	if !near(rep.BestROI, 0.10) || !near(rep.WorstROI, -0.10) {
		t.Fatalf("best %v worst %v", rep.BestROI, rep.WorstROI)
	}
	wantHold := time.Duration((3600+7200+3600)/3) * time.Second
	if rep.AvgHold != wantHold {
		t.Fatalf("avg hold %v, want %v", rep.AvgHold, wantHold)
	}
	if !near(rep.MaxDrawdown, 0.10) {
		t.Fatalf("max drawdown %v", rep.MaxDrawdown)
	}
	if len(rep.EndOfDay) != 4 {
		t.Fatalf("end of day = %v", rep.EndOfDay)
	}
	if !near(rep.EndOfDay[0].Balance, 1100) || !near(rep.EndOfDay[1].Balance, 990) || !near(rep.EndOfDay[3].Balance, 1039.5) {
		t.Fatalf("end of day = %v", rep.EndOfDay)
	}
	if rep.Sharpe == 0 {
		t.Fatalf("expected a sharpe ratio")
	}
	if !near(rep.PriceChange, 0.2) {
		t.Fatalf("price change %v", rep.PriceChange)
	}
	if rep.String() == "" {
		t.Fatalf("empty summary")
	}
}

func TestBuildReportEmpty(t *testing.T) {
	res, _ := CalcPnL(nil, 0, 500)
	rep := BuildReport(res, nil)
	if rep.Trades != 0 || rep.EndCapital != 500 || rep.MaxDrawdown != 0 || rep.Sharpe != 0 {
		t.Fatalf("unexpected report %+v", rep)
	}
}
