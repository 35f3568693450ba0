package logger

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"marketrouter/config"
)

// telegramHook forwards logrus entries at or above MinLevel to a chat.
type telegramHook struct {
	bot      *tgbotapi.BotAPI
	chatID   int64
	minLevel logrus.Level
}

func newTelegramHook(cfg *config.TelegramConfig) (*telegramHook, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("telegram: new bot: %w", err)
	}

	level, err := logrus.ParseLevel(cfg.MinLevel)
	if err != nil {
		level = logrus.ErrorLevel
	}

	return &telegramHook{bot: bot, chatID: cfg.ChatID, minLevel: level}, nil
}

func (h *telegramHook) Levels() []logrus.Level {
	levels := make([]logrus.Level, 0, len(logrus.AllLevels))
	for _, l := range logrus.AllLevels {
		if l <= h.minLevel {
			levels = append(levels, l)
		}
	}
	return levels
}

func (h *telegramHook) Fire(entry *logrus.Entry) error {
	msg := tgbotapi.NewMessage(h.chatID, fmt.Sprintf("[%s] %s", entry.Level, entry.Message))
	_, err := h.bot.Send(msg)
	return err
}
