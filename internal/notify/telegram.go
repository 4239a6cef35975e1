// Package notify reports sync results and failed mutations to a Telegram
// chat.
package notify

import (
	"context"
	"fmt"
	"html"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/tazhate/taskcal/internal/service"
)

type Telegram struct {
	api    *tgbotapi.BotAPI
	chatID int64
	log    logrus.FieldLogger
}

// NewTelegram authorizes the bot token against the Bot API.
func NewTelegram(token string, chatID int64, log logrus.FieldLogger) (*Telegram, error) {
	return NewTelegramWithEndpoint(token, tgbotapi.APIEndpoint, chatID, log)
}

// NewTelegramWithEndpoint is NewTelegram against another Bot API server.
// endpoint takes the token and the method, as tgbotapi.APIEndpoint does.
func NewTelegramWithEndpoint(token, endpoint string, chatID int64, log logrus.FieldLogger) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, &http.Client{})
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("component", "telegram")
	log.WithField("bot", api.Self.UserName).Info("telegram notifier authorized")

	return &Telegram{api: api, chatID: chatID, log: log}, nil
}

// Notify sends text to the owner chat.
func (t *Telegram) Notify(_ context.Context, text string) error {
	msg := tgbotapi.NewMessage(t.chatID, html.EscapeString(text))
	msg.ParseMode = "HTML"
	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

// Observe sends a message for every failed mutation. It is meant to be
// registered as a coordinator observer.
func (t *Telegram) Observe(op service.Op, out service.Outcome) {
	if out.Phase != service.PhaseFailed {
		return
	}

	title := out.Task.Title
	if title == "" {
		title = string(out.Task.ID)
	}
	text := fmt.Sprintf("⚠️ <b>%s failed</b>\n%s\n%s",
		op, html.EscapeString(title), html.EscapeString(errText(out.Err)))

	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = "HTML"
	if _, err := t.api.Send(msg); err != nil {
		t.log.WithError(err).WithField("op", op).Warn("failure notification not sent")
	}
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// API returns the authorized Bot API client, shared with the command bot.
func (t *Telegram) API() *tgbotapi.BotAPI {
	return t.api
}
