package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tazhate/taskcal/internal/domain"
	"github.com/tazhate/taskcal/internal/recurrence"
)

// BulkInput is a task to create on many dates, in one or more calendars.
type BulkInput struct {
	domain.TaskInput
	// Calendars are the target calendars. TaskInput.Calendar is used
	// when empty.
	Calendars []domain.CalendarSource
}

func (in BulkInput) targets() []domain.CalendarSource {
	if len(in.Calendars) > 0 {
		return in.Calendars
	}
	return []domain.CalendarSource{in.Calendar}
}

// BuildBulkEvents expands the input's rule or picked dates into the
// events of one bulk request.
func BuildBulkEvents(in domain.TaskInput) ([]domain.BulkEvent, error) {
	occs, err := recurrence.Expand(in.Start, in.End, in.Recurrence)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = domain.PlaceholderTitle
	}

	events := make([]domain.BulkEvent, len(occs))
	for i, o := range occs {
		events[i] = domain.BulkEvent{
			Title:        title,
			Description:  in.Description,
			Location:     in.Location,
			StartDate:    domain.NewLocalTime(o.Start),
			EndDate:      domain.NewLocalTime(o.End),
			RecurrenceID: o.RecurrenceID,
			ClientID:     in.ClientID,
			AffairID:     in.AffairID,
		}
	}
	return events, nil
}

// BulkCreate expands the input locally and sends one request per target
// calendar. Records of every calendar that succeeded are appended to the
// cache; failures are joined into the returned error.
func (c *Coordinator) BulkCreate(ctx context.Context, in BulkInput) ([]domain.Task, error) {
	if err := in.Validate(); err != nil {
		c.finish(OpBulkCreate, Outcome{Phase: PhaseFailed, Err: err}, nil, nil)
		return nil, err
	}
	events, err := BuildBulkEvents(in.TaskInput)
	if err != nil {
		c.finish(OpBulkCreate, Outcome{Phase: PhaseFailed, Err: err}, nil, nil)
		return nil, err
	}

	c.report(OpBulkCreate, Outcome{Phase: PhasePending})

	var (
		created []domain.Task
		errs    []error
	)
	for _, cal := range in.targets() {
		req := domain.BulkRequest{
			Events:              events,
			CalendarSourceID:    cal.ID,
			CalendarSourceURI:   cal.URI,
			CalendarSourceName:  cal.Name,
			CalendarSourceColor: cal.Color,
		}
		records, err := c.backend.BulkCreateEvents(ctx, req)
		if err != nil {
			errs = append(errs, fmt.Errorf("calendar %s: %w", cal.Name, err))
			continue
		}
		template := domain.Task{}.WithCalendar(cal)
		for _, r := range records {
			created = append(created, keepCalendar(r, template))
		}
	}

	err = errors.Join(errs...)
	out := Outcome{Phase: PhaseCommitted, Err: err}
	if len(created) == 0 && err != nil {
		out.Phase = PhaseFailed
	}
	c.finish(OpBulkCreate, out, func() {
		c.store.Append(created)
		if c.months != nil {
			c.months.Clear()
		}
	}, nil)
	return created, err
}
