package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"fillbot/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	telegramMaxMsgLen      = 4000
	telegramMaxSendRetries = 3
)

// Telegram implements domain.Transport over the Bot API's getUpdates long
// poll. Unlike the channel-based update stream, the poller drives the
// offset explicitly so that the cursor stays in the caller's hands.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	logger *slog.Logger
}

type TelegramConfig struct {
	Token  string
	Logger *slog.Logger
}

func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	cfg.Logger.Info("telegram bot connected",
		"username", bot.Self.UserName,
		"id", bot.Self.ID,
	)
	return &Telegram{bot: bot, logger: cfg.Logger}, nil
}

// GetUpdates fetches updates with id >= offset, blocking up to timeout
// seconds. Results are returned in ascending update-id order; updates
// without extractable text are surfaced with empty Text so the caller can
// still advance past them.
func (t *Telegram) GetUpdates(ctx context.Context, offset int64, timeout int) ([]domain.InboundMessage, error) {
	cfg := tgbotapi.UpdateConfig{
		Offset:  int(offset),
		Timeout: timeout,
	}

	updates, err := t.bot.GetUpdates(cfg)
	if err != nil {
		return nil, fmt.Errorf("telegram getUpdates: %w", err)
	}

	msgs := make([]domain.InboundMessage, 0, len(updates))
	for _, u := range updates {
		m := extractMessage(u)
		msg := domain.InboundMessage{UpdateID: int64(u.UpdateID)}
		if m != nil {
			msg.ChatID = m.Chat.ID
			msg.Text = m.Text
			msg.ReceivedAt = time.Unix(int64(m.Date), 0)
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// extractMessage mirrors the update kinds the bot listens to: plain and
// edited messages, and channel posts.
func extractMessage(u tgbotapi.Update) *tgbotapi.Message {
	switch {
	case u.Message != nil && u.Message.Chat != nil:
		return u.Message
	case u.EditedMessage != nil && u.EditedMessage.Chat != nil:
		return u.EditedMessage
	case u.ChannelPost != nil && u.ChannelPost.Chat != nil:
		return u.ChannelPost
	case u.EditedChannelPost != nil && u.EditedChannelPost.Chat != nil:
		return u.EditedChannelPost
	}
	return nil
}

// Send delivers a reply, chunking at the Telegram message size limit.
func (t *Telegram) Send(ctx context.Context, chatID int64, text string) error {
	for len(text) > 0 {
		chunk := text
		if len(chunk) > telegramMaxMsgLen {
			cutAt := strings.LastIndex(chunk[:telegramMaxMsgLen], "\n")
			if cutAt < telegramMaxMsgLen/2 {
				cutAt = telegramMaxMsgLen
			}
			chunk = text[:cutAt]
			text = text[cutAt:]
		} else {
			text = ""
		}

		if err := t.sendChunk(ctx, chatID, chunk); err != nil {
			return err
		}
	}
	return nil
}

// sendChunk sends a single message with retry and rate limit handling.
// Replies are plain text; the fill confirmations carry no markup.
func (t *Telegram) sendChunk(ctx context.Context, chatID int64, text string) error {
	var lastErr error
	for attempt := 0; attempt <= telegramMaxSendRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg := tgbotapi.NewMessage(chatID, text)
		_, err := t.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err

		// Telegram rate limiting (HTTP 429) wants a longer pause.
		backoff := time.Duration(attempt+1) * time.Second
		if strings.Contains(err.Error(), "Too Many Requests") || strings.Contains(err.Error(), "429") {
			backoff = time.Duration(attempt+1) * 3 * time.Second
		}

		if attempt < telegramMaxSendRetries {
			t.logger.Warn("telegram send error, retrying", "err", err, "backoff", backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	t.logger.Error("telegram send failed after retries", "err", lastErr, "attempts", telegramMaxSendRetries+1)
	return fmt.Errorf("telegram send: %w", lastErr)
}
