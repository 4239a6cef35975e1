// Package bot lets the owner browse and edit the cached calendar from a
// Telegram chat.
package bot

import (
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/tazhate/taskcal/internal/service"
)

type Bot struct {
	api     *tgbotapi.BotAPI
	co      *service.Coordinator
	months  *service.MonthCache
	ownerID int64
	log     logrus.FieldLogger
	now     func() time.Time

	afterMutation func(ctx context.Context)
}

func New(api *tgbotapi.BotAPI, co *service.Coordinator, months *service.MonthCache, ownerID int64, log logrus.FieldLogger) *Bot {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Bot{
		api:     api,
		co:      co,
		months:  months,
		ownerID: ownerID,
		log:     log.WithField("component", "bot"),
		now:     time.Now,
	}
}

// OnMutation registers fn to run after a command changed the cache.
func (b *Bot) OnMutation(fn func(ctx context.Context)) {
	b.afterMutation = fn
}

func (b *Bot) mutated(ctx context.Context) {
	if b.afterMutation != nil {
		b.afterMutation(ctx)
	}
}

func (b *Bot) setCommands() {
	commands := []tgbotapi.BotCommand{
		{Command: "today", Description: "📅 Today's events"},
		{Command: "week", Description: "🗓 The next 7 days"},
		{Command: "month", Description: "📆 Month view"},
		{Command: "calendars", Description: "🎨 Show or hide calendars"},
		{Command: "sync", Description: "🔄 Sync with the CalDAV server"},
		{Command: "help", Description: "❓ Commands"},
	}

	cfg := tgbotapi.NewSetMyCommands(commands...)
	if _, err := b.api.Request(cfg); err != nil {
		b.log.WithError(err).Warn("failed to set commands")
	}
}

// Start long-polls for updates and handles them one at a time until ctx
// is done.
func (b *Bot) Start(ctx context.Context) error {
	b.setCommands()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	b.log.WithField("bot", b.api.Self.UserName).Info("listening for commands")
	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) SendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "HTML"
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) SendMessageWithKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "HTML"
	msg.ReplyMarkup = keyboard
	_, err := b.api.Send(msg)
	return err
}

// editMessage replaces a message the bot sent earlier. kb may be nil.
func (b *Bot) editMessage(chatID int64, msgID int, text string, kb *tgbotapi.InlineKeyboardMarkup) {
	edit := tgbotapi.NewEditMessageText(chatID, msgID, text)
	edit.ParseMode = "HTML"
	edit.ReplyMarkup = kb
	if _, err := b.api.Send(edit); err != nil {
		b.log.WithError(err).Warn("edit message")
	}
}
