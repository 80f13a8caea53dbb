package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/gtoxlili/echoBand/collector"
	"github.com/gtoxlili/echoBand/config"
	"github.com/gtoxlili/echoBand/engine"
	"github.com/gtoxlili/echoBand/logx"
	"github.com/gtoxlili/echoBand/notify"
	"github.com/gtoxlili/echoBand/recorder"
)

func main() {
	configPath := flag.String("config", "config.yaml", "run configuration file (yaml or json)")
	name := flag.String("name", "default", "run name inside the configuration file")
	mode := flag.String("mode", string(engine.ModeBacktest), "backtest or live")
	envFile := flag.String("env", ".env", "dotenv file with credentials")
	flag.Parse()

	if err := config.LoadEnv(*envFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger, err := logx.New(config.SecretsFromEnv().LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *name, *mode); err != nil {
		logger.Error("run failed", zap.Error(err))
		stop()
		_ = logger.Sync()
		if config.IsConfigError(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *zap.Logger, path, name, modeName string) error {
	mode, err := engine.ParseMode(modeName)
	if err != nil {
		return err
	}
	cfg, err := config.Load(path, name)
	if err != nil {
		return err
	}
	secrets := cfg.Secrets

	exchange, err := collector.ResolveExchange(cfg.Exchange, secrets.BinanceAPIKey, secrets.BinanceSecretKey, cfg.UseTestnet, collector.WithLogger(logger))
	if err != nil {
		return err
	}
	deps := engine.Deps{Exchange: exchange, Logger: logger}

	var recorders recorder.Multi
	if secrets.SQLitePath != "" {
		store, err := recorder.NewSQLite(secrets.SQLitePath, logger)
		if err != nil {
			return err
		}
		defer store.Close()
		deps.Cache = store
		recorders = append(recorders, store)
	}
	if secrets.PostgresDSN != "" {
		pg, err := recorder.NewPostgres(secrets.PostgresDSN, logger)
		if err != nil {
			return err
		}
		defer pg.Close()
		recorders = append(recorders, pg)
	}
	if len(recorders) > 0 {
		deps.Recorder = recorders
	}

	var notifiers []notify.Notifier
	if secrets.TelegramToken != "" && secrets.TelegramChatID != "" {
		tg, err := notify.NewTelegram(secrets.TelegramToken, secrets.TelegramChatID, logger)
		if err != nil {
			logger.Warn("telegram notifications disabled", zap.Error(err))
		} else {
			notifiers = append(notifiers, tg)
		}
	}
	if secrets.RedisAddr != "" {
		rdb, err := notify.NewRedis(ctx, secrets.RedisAddr, secrets.RedisPassword, secrets.RedisChannel, cfg.Name)
		if err != nil {
			logger.Warn("redis notifications disabled", zap.Error(err))
		} else {
			defer rdb.Close()
			notifiers = append(notifiers, rdb)
		}
	}
	deps.Notifier = notify.Combine(notifiers...)

	logger.Info("starting",
		zap.String("run", cfg.Name),
		zap.String("mode", string(mode)),
		zap.String("symbol", cfg.Symbol()),
		zap.String("asset", string(cfg.AssetType)),
	)
	return engine.Run(ctx, cfg, mode, deps)
}
