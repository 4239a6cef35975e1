package service

import (
	"context"
	"time"

	"github.com/tazhate/taskcal/internal/domain"
)

// Backend is the remote side the coordinator talks to. The REST client,
// its legacy task adapter and the direct CalDAV client all implement it.
type Backend interface {
	GetCalendars(ctx context.Context) ([]domain.CalendarSource, error)
	UpdateCalendar(ctx context.Context, id domain.TaskID, patch domain.CalendarPatch) (domain.CalendarSource, error)

	GetEvents(ctx context.Context, from, to time.Time, includeAll bool) ([]domain.Task, error)
	CreateEvent(ctx context.Context, t domain.Task) (domain.Task, error)
	// UpdateEvent returns the fields the backend echoed back, which may be
	// fewer than were sent.
	UpdateEvent(ctx context.Context, current domain.Task, patch domain.TaskPatch) (domain.TaskPatch, error)
	DeleteEvent(ctx context.Context, url string, id domain.TaskID, recurrenceID string) error
	BulkCreateEvents(ctx context.Context, req domain.BulkRequest) ([]domain.Task, error)

	Sync(ctx context.Context) (domain.SyncStats, error)
}

// Notifier delivers short human readable reports, e.g. after a sync.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}
