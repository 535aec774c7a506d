package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/horoscope-bot/internal/deliver"
)

// MaxMessageRunes is Telegram's text message limit.
const MaxMessageRunes = 4096

// Messenger is the part of *telebot.Bot used to push messages.
type Messenger interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
}

// Sender pushes generated horoscopes to chats.
type Sender struct {
	messenger Messenger
	log       *slog.Logger
}

func NewSender(messenger Messenger, log *slog.Logger) *Sender {
	if log == nil {
		log = slog.Default()
	}
	return &Sender{messenger: messenger, log: log}
}

// Send delivers text to the user's private chat, split into chunks when it
// exceeds the message limit. Chats that blocked the bot or no longer exist
// yield deliver.ErrRecipientUnavailable.
func (s *Sender) Send(ctx context.Context, userID int64, text string) error {
	chat := &telebot.Chat{ID: userID}
	for _, chunk := range splitMessage(text, MaxMessageRunes) {
		if err := ctx.Err(); err != nil {
			return err
		}

		if _, err := s.messenger.Send(chat, chunk, telebot.NoPreview); err != nil {
			if recipientUnavailable(err) {
				s.log.Info("recipient unavailable", slog.Int64("user_id", userID), slog.Any("error", err))
				return fmt.Errorf("%w: %v", deliver.ErrRecipientUnavailable, err)
			}
			return fmt.Errorf("send message: %w", err)
		}
	}
	return nil
}

func recipientUnavailable(err error) bool {
	if errors.Is(err, telebot.ErrBlockedByUser) ||
		errors.Is(err, telebot.ErrUserIsDeactivated) ||
		errors.Is(err, telebot.ErrChatNotFound) {
		return true
	}

	var tgErr *telebot.Error
	return errors.As(err, &tgErr) && tgErr.Code == 403
}

// splitMessage cuts text into chunks of at most limit runes, preferring
// line breaks as cut points.
func splitMessage(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var chunks []string
	runes := []rune(text)
	for len(runes) > limit {
		cut := limit
		if idx := strings.LastIndex(string(runes[:limit]), "\n"); idx > 0 {
			cut = utf8.RuneCountInString(string(runes[:limit])[:idx]) + 1
		}
		chunks = append(chunks, strings.TrimRight(string(runes[:cut]), "\n"))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}
