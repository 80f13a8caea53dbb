package config

import "time"

const (
	// KlineLimit is the most candles Binance returns per klines call.
	KlineLimit = 1000

	// MaxStoreLength caps each in-memory live series.
	MaxStoreLength = 5000

	DefaultSpotFee    = 0.00075
	DefaultFuturesFee = 0.0004

	DefaultStartCapital   = 1000.0
	DefaultSafetyMargin   = 0.002
	DefaultMaxSlippagePct = 0.5
	DefaultBookDepth      = 20
	DefaultLeverage       = 1.0

	DefaultPollInterval   = 10 * time.Second
	DefaultRetryBackoff   = 5 * time.Second
	DefaultRetryAttempts  = 10
	DefaultHeartbeatCron  = "0 0 * * * *"
	DefaultLedgerPath     = "data/ledger.csv"
	DefaultEquityPath     = "data/equity.csv"
	DefaultRedisChannel   = "echoband:events"
	DefaultExchange       = "binance"
	DefaultQuoteAsset     = "USDT"
	DefaultConfigFileName = "config.json"
)
