package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tazhate/taskcal/internal/domain"
)

// Legacy serves task operations through the /tasks/ endpoints. Calendars
// and sync still go to the CalDAV-facing endpoints.
type Legacy struct {
	*Client
}

// NewLegacy wraps c.
func NewLegacy(c *Client) *Legacy {
	return &Legacy{Client: c}
}

// GetEvents lists tasks; the /tasks/ endpoint has no display filter.
func (l *Legacy) GetEvents(ctx context.Context, from, to time.Time, _ bool) ([]domain.Task, error) {
	return l.ListTasks(ctx, from, to)
}

func (l *Legacy) CreateEvent(ctx context.Context, t domain.Task) (domain.Task, error) {
	return l.CreateTask(ctx, t)
}

func (l *Legacy) UpdateEvent(ctx context.Context, current domain.Task, patch domain.TaskPatch) (domain.TaskPatch, error) {
	return l.UpdateTask(ctx, current.ID, patch)
}

// DeleteEvent deletes by id; legacy tasks have no resource url nor
// occurrences.
func (l *Legacy) DeleteEvent(ctx context.Context, _ string, id domain.TaskID, _ string) error {
	return l.DeleteTask(ctx, id)
}

// BulkCreateEvents creates each occurrence with its own request, since
// /tasks/ has no batch endpoint.
func (l *Legacy) BulkCreateEvents(ctx context.Context, req domain.BulkRequest) ([]domain.Task, error) {
	created := make([]domain.Task, 0, len(req.Events))
	var errs []error
	for _, ev := range req.Events {
		t := domain.Task{
			Title:       ev.Title,
			Description: ev.Description,
			Location:    ev.Location,
			StartDate:   ev.StartDate,
			EndDate:     ev.EndDate,
			ClientID:    ev.ClientID,
			AffairID:    ev.AffairID,
		}.WithCalendar(req.Calendar())

		record, err := l.CreateTask(ctx, t)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ev.StartDate, err))
			continue
		}
		created = append(created, record)
	}
	return created, errors.Join(errs...)
}
