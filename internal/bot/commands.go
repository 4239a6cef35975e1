package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/tazhate/taskcal/internal/domain"
	"github.com/tazhate/taskcal/internal/service"
)

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	args := strings.Fields(msg.CommandArguments())

	switch msg.Command() {
	case "start", "help":
		b.cmdHelp(chatID)
	case "today":
		b.cmdToday(ctx, chatID)
	case "week":
		b.cmdWeek(ctx, chatID)
	case "month":
		b.cmdMonth(ctx, chatID, args)
	case "calendars":
		b.cmdCalendars(ctx, chatID)
	case "sync":
		b.cmdSync(ctx, chatID)
	case "move":
		b.cmdMove(ctx, chatID, args)
	case "delete":
		b.cmdDelete(ctx, chatID, args)
	default:
		b.SendMessage(chatID, "Unknown command. /help lists them")
	}
}

func (b *Bot) cmdHelp(chatID int64) {
	text := `<b>Commands:</b>

<b>Events</b>
/today — today's events
/week — the next 7 days
/month 2024-03 — a month, with navigation
/move ID 2024-03-20 — reschedule, keeping the time of day
/move ID 2024-03-20T09:30 — reschedule to a time
/delete ID — delete an event

<b>Calendars</b>
/calendars — show or hide a calendar
/sync — sync with the CalDAV server`

	b.SendMessage(chatID, text)
}

func (b *Bot) today() time.Time {
	now := b.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

func (b *Bot) cmdToday(ctx context.Context, chatID int64) {
	day := b.today()
	tasks := b.co.Events(ctx, day, day)
	b.mutated(ctx)
	b.SendMessage(chatID, formatTasks("📅 Today", tasks))
}

func (b *Bot) cmdWeek(ctx context.Context, chatID int64) {
	day := b.today()
	tasks := b.co.Events(ctx, day, day.AddDate(0, 0, 6))
	b.mutated(ctx)
	b.SendMessage(chatID, formatTasks("🗓 Next 7 days", tasks))
}

func (b *Bot) cmdMonth(ctx context.Context, chatID int64, args []string) {
	key := service.MonthKey(b.now())
	if len(args) > 0 {
		key = args[0]
	}
	text, kb, err := b.monthView(ctx, key, false)
	if err != nil {
		b.SendMessage(chatID, "❌ "+html.EscapeString(err.Error()))
		return
	}
	b.SendMessageWithKeyboard(chatID, text, kb)
}

// monthView renders a month with its navigation keyboard.
func (b *Bot) monthView(ctx context.Context, key string, force bool) (string, tgbotapi.InlineKeyboardMarkup, error) {
	if _, _, err := service.MonthRange(key); err != nil {
		return "", tgbotapi.InlineKeyboardMarkup{}, fmt.Errorf("month must look like 2024-03")
	}
	first, err := time.ParseInLocation("2006-01", key, time.Local)
	if err != nil {
		return "", tgbotapi.InlineKeyboardMarkup{}, fmt.Errorf("month must look like 2024-03")
	}

	tasks := b.months.GetOrFetch(ctx, key, force)
	return formatTasks("📆 "+first.Format("January 2006"), tasks), monthKeyboard(first), nil
}

func (b *Bot) cmdCalendars(ctx context.Context, chatID int64) {
	cals, err := b.co.Calendars(ctx)
	if err != nil {
		b.SendMessage(chatID, "❌ "+html.EscapeString(err.Error()))
		return
	}
	if len(cals) == 0 {
		b.SendMessage(chatID, "No calendars.")
		return
	}
	b.SendMessageWithKeyboard(chatID, "<b>🎨 Calendars</b>\n\nTap to show or hide.", calendarsKeyboard(cals))
}

func (b *Bot) cmdSync(ctx context.Context, chatID int64) {
	stats, err := b.co.Sync(ctx)
	if err != nil {
		b.SendMessage(chatID, "❌ Sync failed: "+html.EscapeString(err.Error()))
		return
	}
	b.mutated(ctx)
	b.SendMessage(chatID, fmt.Sprintf("🔄 Synced: %d pushed, %d pulled", stats.Pushed, stats.Pulled))
}

func (b *Bot) cmdMove(ctx context.Context, chatID int64, args []string) {
	if len(args) != 2 {
		b.SendMessage(chatID, "Usage: /move ID 2024-03-20")
		return
	}
	drop, err := domain.ParseLocalTime(args[1])
	if err != nil {
		b.SendMessage(chatID, "❌ Bad date: "+html.EscapeString(args[1]))
		return
	}

	task, err := b.co.Move(ctx, domain.TaskID(args[0]), drop.Time).Result()
	if err != nil {
		b.SendMessage(chatID, "❌ "+html.EscapeString(describe(err)))
		return
	}
	b.mutated(ctx)
	b.SendMessage(chatID, "✅ Moved\n\n"+formatTask(task))
}

func (b *Bot) cmdDelete(ctx context.Context, chatID int64, args []string) {
	if len(args) != 1 {
		b.SendMessage(chatID, "Usage: /delete ID")
		return
	}
	id := domain.TaskID(args[0])
	task, ok := b.co.Get(id)
	if !ok {
		b.SendMessage(chatID, "❌ "+html.EscapeString(describe(domain.ErrNotFound)))
		return
	}

	if task.IsRecurring() {
		b.SendMessageWithKeyboard(chatID, "🔁 This event repeats. Delete:\n\n"+formatTask(task), scopeKeyboard(id))
		return
	}
	b.SendMessageWithKeyboard(chatID, "Delete this event?\n\n"+formatTask(task), confirmDeleteKeyboard(id))
}

// describe turns coordinator errors into chat text.
func describe(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "Event not cached, list its dates first"
	case errors.Is(err, service.ErrNotSaved):
		return "Event is still being saved"
	default:
		return err.Error()
	}
}
