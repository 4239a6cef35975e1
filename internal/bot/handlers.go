package bot

import (
	"context"
	"fmt"
	"html"
	"sort"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/tazhate/taskcal/internal/domain"
	"github.com/tazhate/taskcal/internal/service"
)

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message != nil {
		b.handleMessage(ctx, update.Message)
	} else if update.CallbackQuery != nil {
		b.handleCallback(ctx, update.CallbackQuery)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	if msg.From == nil || msg.From.ID != b.ownerID {
		b.SendMessage(chatID, "⛔ Access denied")
		return
	}

	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}
	if strings.TrimSpace(msg.Text) != "" {
		b.SendMessage(chatID, "/help lists the commands")
	}
}

func (b *Bot) handleCallback(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	if callback.From == nil || callback.From.ID != b.ownerID {
		b.answer(callback.ID, "⛔ Access denied")
		return
	}
	if callback.Message == nil {
		return
	}
	chatID := callback.Message.Chat.ID
	msgID := callback.Message.MessageID

	parts := strings.SplitN(callback.Data, ":", 3)
	switch parts[0] {
	case "month", "refresh":
		// month:YYYY-MM, refresh:YYYY-MM
		if len(parts) < 2 {
			return
		}
		text, kb, err := b.monthView(ctx, parts[1], parts[0] == "refresh")
		if err != nil {
			b.answer(callback.ID, err.Error())
			return
		}
		b.answer(callback.ID, "")
		b.editMessage(chatID, msgID, text, &kb)

	case "toggle":
		// toggle:calendarID
		if len(parts) < 2 {
			return
		}
		cal, err := b.co.Calendar(ctx, parts[1])
		if err != nil {
			b.answer(callback.ID, "❌ "+err.Error())
			return
		}
		if _, err := b.co.ToggleCalendar(ctx, cal.ID, !cal.Display); err != nil {
			b.answer(callback.ID, "❌ "+err.Error())
			return
		}
		b.mutated(ctx)
		b.answer(callback.ID, "✅")

		cals, err := b.co.Calendars(ctx)
		if err != nil {
			return
		}
		kb := calendarsKeyboard(cals)
		b.editMessage(chatID, msgID, "<b>🎨 Calendars</b>\n\nTap to show or hide.", &kb)

	case "del":
		// del:scope:id, scope empty for a single event
		if len(parts) < 3 {
			return
		}
		scope, ok := service.ParseScope(parts[1])
		if !ok {
			return
		}
		id := domain.TaskID(parts[2])
		if err := b.co.Delete(ctx, id, scope); err != nil {
			b.answer(callback.ID, "❌ "+describe(err))
			return
		}
		b.mutated(ctx)
		b.answer(callback.ID, "🗑 Deleted")
		b.editMessage(chatID, msgID, "🗑 Deleted", nil)

	case "cancel":
		b.answer(callback.ID, "")
		b.editMessage(chatID, msgID, "Cancelled.", nil)
	}
}

func (b *Bot) answer(callbackID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		b.log.WithError(err).Debug("answer callback")
	}
}

// formatTasks lists tasks grouped by day.
func formatTasks(title string, tasks []domain.Task) string {
	var sb strings.Builder
	sb.WriteString("<b>" + html.EscapeString(title) + "</b>\n")
	if len(tasks) == 0 {
		sb.WriteString("\nNo events 🎉")
		return sb.String()
	}

	sorted := make([]domain.Task, len(tasks))
	copy(sorted, tasks)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartDate.Before(sorted[j].StartDate.Time)
	})

	var day string
	for _, t := range sorted {
		if d := t.StartDate.Format("Mon 02 Jan"); d != day {
			sb.WriteString("\n<b>" + d + "</b>\n")
			day = d
		}
		sb.WriteString(formatLine(t))
	}
	return sb.String()
}

func formatLine(t domain.Task) string {
	repeat := ""
	if t.IsRecurring() {
		repeat = " 🔁"
	}
	return fmt.Sprintf("• %s %s%s <code>%s</code>\n",
		t.FormatTime(), html.EscapeString(t.Title), repeat, html.EscapeString(t.ID.String()))
}

func formatTask(t domain.Task) string {
	return "<b>" + t.StartDate.Format("Mon 02 Jan") + "</b>\n" + formatLine(t)
}
