// Package notify delivers reminders outside the local machine. The Telegram
// presenter mirrors each popup as a message to a configured chat.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"pereryv/internal/reminder"
)

// telegramClient is the subset of the bot API used here, extracted so tests
// can inject a mock.
type telegramClient interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type realTelegramClient struct {
	api *tgbotapi.BotAPI
}

func (c *realTelegramClient) Send(msg tgbotapi.Chattable) (tgbotapi.Message, error) {
	return c.api.Send(msg)
}

// TelegramConfig holds configuration for the Telegram presenter.
type TelegramConfig struct {
	BotToken string
	ChatID   int64
	Debug    bool

	// Rate is messages per second, Burst the token bucket size.
	Rate  float64
	Burst int

	MaxRetries  int
	RetryDelays []time.Duration
}

// DefaultTelegramConfig returns the default configuration.
func DefaultTelegramConfig() TelegramConfig {
	return TelegramConfig{
		Rate:       1,
		Burst:      5,
		MaxRetries: 3,
		RetryDelays: []time.Duration{
			1 * time.Second,
			5 * time.Second,
			30 * time.Second,
		},
	}
}

// Telegram implements reminder.Presenter over a Telegram chat.
type Telegram struct {
	tg      telegramClient
	chatID  int64
	limiter *rate.Limiter
	config  TelegramConfig
	logger  zerolog.Logger
}

// NewTelegram creates the presenter and verifies the bot token.
func NewTelegram(cfg TelegramConfig, logger zerolog.Logger) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	api.Debug = cfg.Debug
	return newTelegramWithClient(&realTelegramClient{api: api}, cfg, logger), nil
}

// newTelegramWithClient allows injecting a mocked Telegram client for tests.
func newTelegramWithClient(tg telegramClient, cfg TelegramConfig, logger zerolog.Logger) *Telegram {
	def := DefaultTelegramConfig()
	if cfg.Rate <= 0 {
		cfg.Rate = def.Rate
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if len(cfg.RetryDelays) == 0 {
		cfg.RetryDelays = def.RetryDelays
	}
	return &Telegram{
		tg:      tg,
		chatID:  cfg.ChatID,
		limiter: rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Burst),
		config:  cfg,
		logger:  logger.With().Str("component", "telegram").Logger(),
	}
}

// Show mirrors the popup as a chat message.
func (t *Telegram) Show(ctx context.Context, p reminder.Popup) error {
	text := p.Message
	if p.Title != "" {
		text = p.Title + "\n\n" + p.Message
	}
	return t.sendWithRetry(ctx, tgbotapi.NewMessage(t.chatID, text))
}

// Focus is a no-op for chat delivery: the message is already in the chat.
func (t *Telegram) Focus(ctx context.Context) error {
	t.logger.Debug().Msg("focus ignored for chat delivery")
	return nil
}

// SendDocument delivers a file to the chat, used for history exports.
func (t *Telegram) SendDocument(ctx context.Context, filename string, data io.Reader, caption string) error {
	doc := tgbotapi.NewDocument(t.chatID, tgbotapi.FileReader{Name: filename, Reader: data})
	doc.Caption = caption
	return t.sendWithRetry(ctx, doc)
}

// sendWithRetry sends with rate limiting and retry. 429 waits out the
// server-provided retry-after; 403 and 400 are terminal; other errors back
// off through the configured delays.
func (t *Telegram) sendWithRetry(ctx context.Context, msg tgbotapi.Chattable) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var lastErr error
	maxRetries := t.config.MaxRetries
	delays := t.config.RetryDelays

	for attempt := 0; attempt <= maxRetries; attempt++ {
		_, err := t.tg.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err

		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) {
			switch apiErr.Code {
			case 429:
				waitTime := time.Duration(apiErr.RetryAfter) * time.Second
				if waitTime == 0 && attempt < len(delays) {
					waitTime = delays[attempt]
				}
				t.logger.Info().
					Dur("retry_after", waitTime).
					Int("attempt", attempt).
					Msg("rate limited by Telegram, waiting")

				select {
				case <-time.After(waitTime):
					continue
				case <-ctx.Done():
					return ctx.Err()
				}

			case 403:
				t.logger.Error().Int64("chat_id", t.chatID).Msg("bot blocked by chat")
				return fmt.Errorf("telegram: chat blocked the bot: %w", err)

			case 400:
				t.logger.Error().Err(err).Msg("bad request to Telegram")
				return fmt.Errorf("telegram: bad request: %w", err)
			}
		}

		if attempt < maxRetries {
			delay := delays[min(attempt, len(delays)-1)]
			t.logger.Info().
				Int("attempt", attempt+1).
				Int("max_retries", maxRetries).
				Dur("delay", delay).
				Err(err).
				Msg("retrying Telegram send")

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	t.logger.Error().Err(lastErr).Msg("max retries exceeded for Telegram send")
	return fmt.Errorf("telegram: max retries exceeded: %w", lastErr)
}
