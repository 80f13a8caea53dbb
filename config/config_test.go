package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gtoxlili/echoBand/entity"
	"github.com/gtoxlili/echoBand/strategy"
	"github.com/gtoxlili/echoBand/ta"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParsePeriod(t *testing.T) {
	cases := map[string]int64{"3m": 180, "60m": 3600, "4h": 14400, "1d": 86400, "30s": 30}
	for in, want := range cases {
		got, err := ParsePeriod(in)
		if err != nil || got != want {
			t.Errorf("ParsePeriod(%q) = %d, %v; want %d", in, got, err, want)
		}
	}
	for _, bad := range []string{"", "m", "3x", "-3m", "0m"} {
		if _, err := ParsePeriod(bad); err == nil {
			t.Errorf("ParsePeriod(%q) should fail", bad)
		}
	}
}

func TestBinanceInterval(t *testing.T) {
	if got, err := BinanceInterval(3600); err != nil || got != "1h" {
		t.Fatalf("BinanceInterval(3600) = %q, %v", got, err)
	}
	if _, err := BinanceInterval(7 * 60); err == nil {
		t.Fatalf("7m should not map to an interval")
	}
}

func TestLoadJSONNamedRun(t *testing.T) {
	path := writeFile(t, "config.json", `{
		// hand edited
		"default": {
			"base": "BTC",
			"quote": "USDT",
			"series": [["3m", 21], ["60m", 57]],
			"start": "2024-01-01",
			"start_capital": 1000,
			"strategy": {"variant": "all_params", "stoploss": 0.02,},
		},
		"eth_futures": {
			"base": "ETH",
			"asset_type": "futures",
			"leverage": 3,
			"poll_interval": "15s",
			"strategy": {"timestop": 3600, "crosses": {"long_close": {"a": "close", "b": "bband_mid"}}},
		},
	}`)

	cfg, err := Load(path, "eth_futures")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Name != "eth_futures" || cfg.Symbol() != "ETHUSDT" || cfg.AssetType != entity.Futures || cfg.Leverage != 3 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Fast().Period != 180 || cfg.Slow().Period != 3600 || cfg.Slow().Lookback != 57 {
		t.Fatalf("series = %v", cfg.Series)
	}
	if cfg.Strategy.StopLoss != 0.02 || cfg.Strategy.TimeStop != 3600 || cfg.Strategy.WillREMAPeriod != 43 {
		t.Fatalf("strategy = %+v", cfg.Strategy)
	}
	if cfg.Strategy.Crosses.LongClose.B != ta.ColBBandMid {
		t.Fatalf("crosses = %+v", cfg.Strategy.Crosses)
	}
	if cfg.PollInterval.Std() != 15*time.Second {
		t.Fatalf("poll interval = %v", cfg.PollInterval.Std())
	}
	if cfg.Start == nil || !cfg.Start.Time().Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("start = %v", cfg.Start)
	}
	if err := cfg.ValidateBacktest(); err != nil {
		t.Fatalf("ValidateBacktest: %v", err)
	}
	if cfg.Fee() != DefaultFuturesFee {
		t.Fatalf("fee = %v", cfg.Fee())
	}
}

func TestLoadJSONNumericDurations(t *testing.T) {
	path := writeFile(t, "config.json", `{
		"base": "BTC",
		"poll_interval": 10,
		"retry": {"backoff": 0.5},
		"start": 1700000000,
		"end": "2023-11-15T00:00:00Z"
	}`)

	cfg, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PollInterval.Std() != 10*time.Second || cfg.Retry.Backoff.Std() != 500*time.Millisecond {
		t.Fatalf("durations = %v, %v", cfg.PollInterval.Std(), cfg.Retry.Backoff.Std())
	}
	if cfg.Start == nil || cfg.Start.Time().Unix() != 1_700_000_000 {
		t.Fatalf("start = %v", cfg.Start)
	}
	if cfg.End == nil || !cfg.End.Time().Equal(time.Date(2023, 11, 15, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("end = %v", cfg.End)
	}
	if err := cfg.ValidateBacktest(); err != nil {
		t.Fatalf("ValidateBacktest: %v", err)
	}
}

func TestLoadMissingRun(t *testing.T) {
	path := writeFile(t, "config.json", `{"default": {"base": "BTC"}}`)
	_, err := Load(path, "nope")
	if !errors.Is(err, entity.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestLoadYAMLFlat(t *testing.T) {
	path := writeFile(t, "run.yaml", `
base: SOL
quote: USDT
asset_type: spot
series:
  - [1m, 21]
  - period: 15m
    lookback: 57
retry:
  max_attempts: -1
  backoff: 2s
strategy:
  variant: bband_only
  bband_devs: 2
`)
	cfg, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Symbol() != "SOLUSDT" || cfg.Fast().Period != 60 || cfg.Slow().Period != 900 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Strategy.Variant != strategy.BBandOnly || cfg.Strategy.BBandDevs != 2 {
		t.Fatalf("strategy = %+v", cfg.Strategy)
	}
	policy := cfg.RetryPolicy()
	if policy.MaxRetries != -1 || policy.BaseDelay != 2*time.Second || policy.MaxDelay != 2*time.Second {
		t.Fatalf("retry policy = %+v", policy)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"ratio":      func(c *Config) { c.Series[1].Period = 200 },
		"order":      func(c *Config) { c.Series = []Series{{Period: 3600, Lookback: 5}, {Period: 180, Lookback: 5}} },
		"one series": func(c *Config) { c.Series = c.Series[:1] },
		"lookback":   func(c *Config) { c.Series[0].Lookback = 0 },
		"asset":      func(c *Config) { c.AssetType = "margin" },
		"capital":    func(c *Config) { c.StartCapital = 0 },
		"leverage":   func(c *Config) { c.Leverage = 0.5 },
		"poll":       func(c *Config) { c.PollInterval = Duration(time.Hour) },
		"dates": func(c *Config) {
			start, end := Timestamp(time.Unix(200, 0)), Timestamp(time.Unix(100, 0))
			c.Start, c.End = &start, &end
		},
		"strategy":    func(c *Config) { c.Strategy.BBandPeriod = 0 },
		"interval":    func(c *Config) { c.Series = []Series{{Period: 7 * 60, Lookback: 21}, {Period: 14 * 60, Lookback: 57}} },
		"fast warmup": func(c *Config) { c.Series[0].Lookback = c.Strategy.BBandPeriod },
		"slow warmup": func(c *Config) { c.Series[1].Lookback = c.Strategy.SlowWarmup() - 1 },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(cfg)
		if err := cfg.Validate(); !IsConfigError(err) {
			t.Errorf("%s: expected configuration error, got %v", name, err)
		}
	}
	if err := Default().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestValidateLiveNeedsCredentials(t *testing.T) {
	cfg := Default()
	if err := cfg.ValidateLive(); !IsConfigError(err) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	cfg.Secrets.BinanceAPIKey, cfg.Secrets.BinanceSecretKey = "k", "s"
	if err := cfg.ValidateLive(); err != nil {
		t.Fatalf("ValidateLive: %v", err)
	}
}

func TestSecretsFromEnv(t *testing.T) {
	path := writeFile(t, ".env", "BINANCE_API_KEY=abc\nREDIS_ADDR=localhost:6379\n")
	t.Setenv("BINANCE_API_KEY", "")
	os.Unsetenv("BINANCE_API_KEY")
	t.Setenv("REDIS_CHANNEL", "")
	if err := LoadEnv(path); err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("REDIS_ADDR") })

	s := SecretsFromEnv()
	if s.BinanceAPIKey != "abc" || s.RedisAddr != "localhost:6379" || s.RedisChannel != DefaultRedisChannel {
		t.Fatalf("secrets = %+v", s)
	}
	if err := LoadEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("missing .env should be ignored: %v", err)
	}
}
