package bot

import (
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/tazhate/taskcal/internal/domain"
	"github.com/tazhate/taskcal/internal/service"
)

// Month navigation keyboard
func monthKeyboard(first time.Time) tgbotapi.InlineKeyboardMarkup {
	prev := service.MonthKey(first.AddDate(0, -1, 0))
	next := service.MonthKey(first.AddDate(0, 1, 0))
	key := service.MonthKey(first)

	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⬅️", "month:"+prev),
			tgbotapi.NewInlineKeyboardButtonData("🔄", "refresh:"+key),
			tgbotapi.NewInlineKeyboardButtonData("➡️", "month:"+next),
		),
	)
}

// One toggle button per calendar
func calendarsKeyboard(cals []domain.CalendarSource) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, c := range cals {
		mark := "🙈"
		if c.Display {
			mark = "👁"
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("%s %s", mark, truncate(c.Name, 30)),
				"toggle:"+c.ID.String(),
			),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// Delete scope keyboard for recurring events
func scopeKeyboard(id domain.TaskID) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("This occurrence", "del:occurrence:"+id.String()),
			tgbotapi.NewInlineKeyboardButtonData("Whole series", "del:series:"+id.String()),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("◀️ Cancel", "cancel"),
		),
	)
}

// Confirm delete keyboard
func confirmDeleteKeyboard(id domain.TaskID) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("❌ Yes, delete", "del::"+id.String()),
			tgbotapi.NewInlineKeyboardButtonData("◀️ Cancel", "cancel"),
		),
	)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
