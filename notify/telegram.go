package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/gtoxlili/echoBand/utils"
)

// Telegram sends messages to one chat through the Bot API.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	retry  utils.RetryPolicy
	logger *zap.Logger
}

// NewTelegram logs the bot in; a bad token fails here rather than on the
// first notification.
func NewTelegram(botToken, chatID string, logger *zap.Logger) (*Telegram, error) {
	return newTelegram(botToken, chatID, tgbotapi.APIEndpoint, logger)
}

func newTelegram(botToken, chatID, endpoint string, logger *zap.Logger) (*Telegram, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("telegram chat id %q: %w", chatID, err)
	}
	bot, err := tgbotapi.NewBotAPIWithClient(botToken, endpoint, &http.Client{Timeout: 30 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("telegram login: %w", err)
	}
	bot.Debug = false
	logger.Info("telegram connected", zap.String("bot", bot.Self.UserName))

	return &Telegram{
		bot:    bot,
		chatID: id,
		retry: utils.RetryPolicy{
			MaxRetries: 3,
			BaseDelay:  time.Second,
			MaxDelay:   8 * time.Second,
			Retryable:  retryableTelegram,
		},
		logger: logger,
	}, nil
}

// Send delivers msg and retries throttled or failed deliveries with backoff.
func (t *Telegram) Send(ctx context.Context, msg string) error {
	policy := t.retry
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		t.logger.Warn("telegram send failed",
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", delay),
			zap.Error(err),
		)
	}
	_, err := utils.RetryWithBackoff(ctx, policy, func(context.Context) (tgbotapi.Message, error) {
		return t.bot.Send(tgbotapi.NewMessage(t.chatID, msg))
	})
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// retryableTelegram gives up on client errors other than rate limiting.
func retryableTelegram(err error) bool {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError
	}
	return true
}
