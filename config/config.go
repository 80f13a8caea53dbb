package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json "github.com/bytedance/sonic"
	"gopkg.in/yaml.v3"

	"github.com/gtoxlili/echoBand/entity"
	"github.com/gtoxlili/echoBand/strategy"
	"github.com/gtoxlili/echoBand/utils"
)

type Retry struct {
	// MaxAttempts < 0 retries forever.
	MaxAttempts int      `json:"max_attempts" yaml:"max_attempts"`
	Backoff     Duration `json:"backoff" yaml:"backoff"`
}

// Config is one named run.
type Config struct {
	Name string `json:"-" yaml:"-"`

	Exchange   string           `json:"exchange" yaml:"exchange"`
	Base       string           `json:"base" yaml:"base"`
	Quote      string           `json:"quote" yaml:"quote"`
	AssetType  entity.AssetType `json:"asset_type" yaml:"asset_type"`
	UseTestnet bool             `json:"use_testnet" yaml:"use_testnet"`

	// Series holds the fast timeframe first and the slow one second.
	Series []Series   `json:"series" yaml:"series"`
	Start  *Timestamp `json:"start,omitempty" yaml:"start,omitempty"`
	End    *Timestamp `json:"end,omitempty" yaml:"end,omitempty"`

	StartCapital float64 `json:"start_capital" yaml:"start_capital"`
	// FeeRate 0 looks the taker fee up on the exchange.
	FeeRate  float64         `json:"fee_rate" yaml:"fee_rate"`
	Leverage float64         `json:"leverage" yaml:"leverage"`
	Strategy strategy.Params `json:"strategy" yaml:"strategy"`

	PollInterval   Duration `json:"poll_interval" yaml:"poll_interval"`
	Retry          Retry    `json:"retry" yaml:"retry"`
	LedgerPath     string   `json:"ledger_path" yaml:"ledger_path"`
	EquityPath     string   `json:"equity_path" yaml:"equity_path"`
	HeartbeatCron  string   `json:"heartbeat_cron" yaml:"heartbeat_cron"`
	SafetyMargin   float64  `json:"safety_margin" yaml:"safety_margin"`
	MaxSlippagePct float64  `json:"max_slippage_pct" yaml:"max_slippage_pct"`
	BookDepth      int      `json:"book_depth" yaml:"book_depth"`

	Secrets Secrets `json:"-" yaml:"-"`
}

func Default() *Config {
	return &Config{
		Name:           "default",
		Exchange:       DefaultExchange,
		Base:           "BTC",
		Quote:          DefaultQuoteAsset,
		AssetType:      entity.Spot,
		Series:         []Series{{Period: 3 * 60, Lookback: 21}, {Period: 60 * 60, Lookback: 57}},
		StartCapital:   DefaultStartCapital,
		Leverage:       DefaultLeverage,
		Strategy:       strategy.DefaultParams(),
		PollInterval:   Duration(DefaultPollInterval),
		Retry:          Retry{MaxAttempts: DefaultRetryAttempts, Backoff: Duration(DefaultRetryBackoff)},
		LedgerPath:     DefaultLedgerPath,
		EquityPath:     DefaultEquityPath,
		HeartbeatCron:  DefaultHeartbeatCron,
		SafetyMargin:   DefaultSafetyMargin,
		MaxSlippagePct: DefaultMaxSlippagePct,
		BookDepth:      DefaultBookDepth,
	}
}

// Load reads the run called name from path. The file maps run names to
// settings; a "default" entry is applied first and the named run on top of
// it. A file without named runs is read as a single run. Secrets come from
// the environment afterwards.
func Load(path, name string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = decodeYAML(data, name, cfg)
	default:
		err = decodeJSON(data, name, cfg)
	}
	if err != nil {
		return nil, err
	}
	if name != "" {
		cfg.Name = name
	}
	cfg.Secrets = SecretsFromEnv()
	return cfg, nil
}

func decodeJSON(data []byte, name string, cfg *Config) error {
	sections, err := utils.DecodeJSON[map[string]any](data)
	if err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	apply := func(section any) error {
		raw, err := json.Marshal(section)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(raw, cfg); err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
		return nil
	}
	return overlay(name, func(key string) (any, bool) {
		v, ok := sections[key]
		return v, ok
	}, apply, func() error { return apply(sections) })
}

func decodeYAML(data []byte, name string, cfg *Config) error {
	var sections map[string]yaml.Node
	if err := yaml.Unmarshal(data, &sections); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	apply := func(section any) error {
		node := section.(yaml.Node)
		if err := node.Decode(cfg); err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
		return nil
	}
	return overlay(name, func(key string) (any, bool) {
		v, ok := sections[key]
		return v, ok
	}, apply, func() error {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
		return nil
	})
}

func overlay(name string, lookup func(string) (any, bool), apply func(any) error, flat func() error) error {
	base, hasDefault := lookup("default")
	run, hasRun := lookup(name)
	named := name != "" && name != "default"

	if !hasDefault && !hasRun {
		if named && !looksFlat(lookup) {
			return &entity.ConfigError{Field: "name", Reason: fmt.Sprintf("run %q not found", name)}
		}
		return flat()
	}
	if hasDefault {
		if err := apply(base); err != nil {
			return err
		}
	}
	if named {
		if !hasRun {
			return &entity.ConfigError{Field: "name", Reason: fmt.Sprintf("run %q not found", name)}
		}
		return apply(run)
	}
	return nil
}

// looksFlat reports whether the document is a single run rather than named runs.
func looksFlat(lookup func(string) (any, bool)) bool {
	for _, key := range []string{"series", "base", "strategy", "asset_type"} {
		if _, ok := lookup(key); ok {
			return true
		}
	}
	return false
}

func (c *Config) Symbol() string {
	return strings.ToUpper(c.Base + c.Quote)
}

func (c *Config) Fast() Series {
	return c.Series[0]
}

func (c *Config) Slow() Series {
	return c.Series[1]
}

// Fee is the configured fee rate, or the default for the asset type.
func (c *Config) Fee() float64 {
	if c.FeeRate > 0 {
		return c.FeeRate
	}
	if c.AssetType == entity.Futures {
		return DefaultFuturesFee
	}
	return DefaultSpotFee
}

func (c *Config) RetryPolicy() utils.RetryPolicy {
	backoff := c.Retry.Backoff.Std()
	return utils.RetryPolicy{
		MaxRetries: c.Retry.MaxAttempts,
		BaseDelay:  backoff,
		MaxDelay:   backoff,
	}
}

// Validate rejects configurations that cannot run. It does no I/O.
func (c *Config) Validate() error {
	if len(c.Series) != 2 {
		return &entity.ConfigError{Field: "series", Reason: "exactly two timeframes (fast, slow) are required"}
	}
	fast, slow := c.Fast(), c.Slow()
	switch {
	case fast.Period <= 0 || slow.Period <= 0:
		return &entity.ConfigError{Field: "series", Reason: "periods must be positive"}
	case slow.Period <= fast.Period:
		return &entity.ConfigError{Field: "series", Reason: "slow period must be longer than the fast period"}
	case slow.Period%fast.Period != 0:
		return &entity.ConfigError{Field: "series", Reason: fmt.Sprintf("slow period %ds is not a multiple of fast period %ds", slow.Period, fast.Period)}
	case fast.Lookback <= 0 || slow.Lookback <= 0:
		return &entity.ConfigError{Field: "series", Reason: "lookbacks must be positive"}
	case c.Base == "" || c.Quote == "":
		return &entity.ConfigError{Field: "symbol", Reason: "base and quote are required"}
	case !c.AssetType.Valid():
		return &entity.ConfigError{Field: "asset_type", Reason: fmt.Sprintf("unknown asset type %q", c.AssetType)}
	case c.StartCapital <= 0:
		return &entity.ConfigError{Field: "start_capital", Reason: "must be positive"}
	case c.FeeRate < 0 || c.FeeRate >= 0.5:
		return &entity.ConfigError{Field: "fee_rate", Reason: "must be in [0, 0.5)"}
	case c.Leverage < 1:
		return &entity.ConfigError{Field: "leverage", Reason: "must be at least 1"}
	case c.SafetyMargin < 0 || c.SafetyMargin >= 1:
		return &entity.ConfigError{Field: "safety_margin", Reason: "must be in [0, 1)"}
	case c.PollInterval <= 0:
		return &entity.ConfigError{Field: "poll_interval", Reason: "must be positive"}
	case c.PollInterval.Std().Seconds() > float64(fast.Period):
		return &entity.ConfigError{Field: "poll_interval", Reason: "must not exceed the fast period"}
	case c.Retry.Backoff <= 0:
		return &entity.ConfigError{Field: "retry.backoff", Reason: "must be positive"}
	case c.BookDepth <= 0:
		return &entity.ConfigError{Field: "book_depth", Reason: "must be positive"}
	case c.LedgerPath == "":
		return &entity.ConfigError{Field: "ledger_path", Reason: "required"}
	case c.Start != nil && c.End != nil && !c.Start.Time().Before(c.End.Time()):
		return &entity.ConfigError{Field: "start", Reason: "must be before end"}
	}
	if _, err := BinanceInterval(fast.Period); c.Exchange == DefaultExchange && err != nil {
		return &entity.ConfigError{Field: "series", Reason: err.Error()}
	}
	if _, err := BinanceInterval(slow.Period); c.Exchange == DefaultExchange && err != nil {
		return &entity.ConfigError{Field: "series", Reason: err.Error()}
	}
	if err := c.Strategy.Validate(); err != nil {
		return err
	}
	if need := c.Strategy.FastWarmup(); fast.Lookback < need {
		return &entity.ConfigError{Field: "series", Reason: fmt.Sprintf("fast lookback %d is below the %d rows the bands need", fast.Lookback, need)}
	}
	if need := c.Strategy.SlowWarmup(); slow.Lookback < need {
		return &entity.ConfigError{Field: "series", Reason: fmt.Sprintf("slow lookback %d is below the %d rows the smoothed WillR needs", slow.Lookback, need)}
	}
	return nil
}

// ValidateBacktest adds the checks only a backtest needs.
func (c *Config) ValidateBacktest() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Start == nil || c.Start.IsZero() {
		return &entity.ConfigError{Field: "start", Reason: "required for a backtest"}
	}
	return nil
}

// ValidateLive adds the checks only live trading needs.
func (c *Config) ValidateLive() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Secrets.BinanceAPIKey == "" || c.Secrets.BinanceSecretKey == "" {
		return &entity.ConfigError{Field: "BINANCE_API_KEY", Reason: "exchange credentials are required for live trading"}
	}
	return nil
}

// IsConfigError reports whether err is a configuration error.
func IsConfigError(err error) bool {
	return errors.Is(err, entity.ErrConfiguration)
}
