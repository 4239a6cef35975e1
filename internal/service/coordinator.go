package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tazhate/taskcal/internal/domain"
	"github.com/tazhate/taskcal/internal/eventstore"
	"github.com/tazhate/taskcal/internal/metrics"
)

// ErrNotSaved is returned when a mutation targets a record that still
// carries a temporary id.
var ErrNotSaved = errors.New("task not saved yet")

// Coordinator owns the session cache and applies every mutation to it,
// optimistically or after the backend answered depending on the operation.
type Coordinator struct {
	backend    Backend
	store      *eventstore.Store
	months     *MonthCache
	log        logrus.FieldLogger
	metrics    *metrics.Metrics
	notifier   Notifier
	observer   Observer
	includeAll bool
	now        func() time.Time

	calMu     sync.Mutex
	calendars []domain.CalendarSource
}

// NewCoordinator creates a coordinator over store. A nil store starts an
// empty session.
func NewCoordinator(backend Backend, store *eventstore.Store, log logrus.FieldLogger) *Coordinator {
	if store == nil {
		store = eventstore.New()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Coordinator{
		backend: backend,
		store:   store,
		log:     log.WithField("component", "coordinator"),
		now:     time.Now,
	}
}

// SetObserver registers the phase observer.
func (c *Coordinator) SetObserver(o Observer) {
	c.observer = o
}

// SetMonthCache links a month cache whose keys are invalidated when a
// mutation touches their dates.
func (c *Coordinator) SetMonthCache(m *MonthCache) {
	c.months = m
}

// SetMetrics enables operation metrics.
func (c *Coordinator) SetMetrics(m *metrics.Metrics) {
	c.metrics = m
}

// SetNotifier sets where sync reports go.
func (c *Coordinator) SetNotifier(n Notifier) {
	c.notifier = n
}

// SetIncludeAll makes range reads return events of hidden calendars too.
func (c *Coordinator) SetIncludeAll(v bool) {
	c.includeAll = v
}

// Store exposes the session cache.
func (c *Coordinator) Store() *eventstore.Store {
	return c.store
}

func (c *Coordinator) report(op Op, out Outcome) {
	if c.observer != nil {
		c.observer(op, out)
	}
}

// finish applies a terminal outcome: commit on success, rollback on
// failure, then reports it.
func (c *Coordinator) finish(op Op, out Outcome, commit, rollback func()) Outcome {
	switch out.Phase {
	case PhaseCommitted:
		if commit != nil {
			commit()
		}
	case PhaseFailed:
		if rollback != nil {
			rollback()
		}
		c.log.WithError(out.Err).WithFields(logrus.Fields{
			"op": op,
			"id": out.Task.ID,
		}).Warn("mutation failed")
	case PhasePending:
		panic(fmt.Sprintf("finish %s: outcome still pending", op))
	}

	c.metrics.Operation(string(op), out.Phase.String())
	c.metrics.SetCachedEvents(c.store.Len())
	c.report(op, out)
	return out
}

func (c *Coordinator) invalidateDates(times ...time.Time) {
	if c.months == nil {
		return
	}
	for _, t := range times {
		if !t.IsZero() {
			c.months.InvalidateDate(t)
		}
	}
}

// Create inserts a tentative record under a temporary id, sends it, and
// swaps in the server record on success. On failure the tentative record
// is removed.
func (c *Coordinator) Create(ctx context.Context, in domain.TaskInput) Outcome {
	if err := in.Validate(); err != nil {
		return c.finish(OpCreate, Outcome{Phase: PhaseFailed, Err: err}, nil, nil)
	}
	if !in.Recurrence.IsSingle() {
		return c.finish(OpCreate, Outcome{Phase: PhaseFailed, Err: fmt.Errorf("recurring task: use bulk create")}, nil, nil)
	}

	tempID := domain.NewTempID(c.now())
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = domain.PlaceholderTitle
	}
	tentative := domain.Task{
		ID:          tempID,
		Title:       title,
		Description: in.Description,
		Location:    in.Location,
		StartDate:   domain.NewLocalTime(in.Start),
		EndDate:     domain.NewLocalTime(in.End),
		ClientID:    in.ClientID,
		AffairID:    in.AffairID,
	}.WithCalendar(in.Calendar)

	c.store.Add(tentative)
	c.report(OpCreate, Outcome{Phase: PhasePending, Task: tentative, TempID: tempID})

	created, err := c.backend.CreateEvent(ctx, tentative)
	if err != nil {
		out := Outcome{Phase: PhaseFailed, Task: tentative, TempID: tempID, Err: err}
		return c.finish(OpCreate, out, nil, func() { c.store.RemoveID(tempID) })
	}

	created = keepCalendar(created, tentative)
	out := Outcome{Phase: PhaseCommitted, Task: created, TempID: tempID}
	return c.finish(OpCreate, out, func() {
		c.store.Replace(tempID, created)
		c.invalidateDates(created.StartDate.Time)
	}, nil)
}

// keepCalendar fills the denormalized calendar fields the server left out.
func keepCalendar(record, tentative domain.Task) domain.Task {
	if record.CalendarSourceID == "" {
		record.CalendarSourceID = tentative.CalendarSourceID
	}
	if record.CalendarSourceURI == "" {
		record.CalendarSourceURI = tentative.CalendarSourceURI
	}
	if record.CalendarSourceName == "" {
		record.CalendarSourceName = tentative.CalendarSourceName
	}
	if record.CalendarSourceColor == "" {
		record.CalendarSourceColor = tentative.CalendarSourceColor
	}
	return record
}

// MoveTarget computes where a task dropped at drop ends up. The duration
// is kept; a drop at midnight (from a date-only view) keeps the original
// time of day.
func MoveTarget(original domain.Task, drop time.Time) (time.Time, time.Time) {
	start := drop
	if domain.IsMidnight(drop) {
		start = domain.AtTimeOfDay(drop, original.StartDate.Time)
	}
	return start, start.Add(original.Duration())
}

// Move reschedules a task optimistically. On failure the exact record
// cached before the move is put back.
func (c *Coordinator) Move(ctx context.Context, id domain.TaskID, drop time.Time) Outcome {
	original, ok := c.store.Get(id)
	if !ok {
		return c.finish(OpMove, Outcome{Phase: PhaseFailed, Task: domain.Task{ID: id}, Err: fmt.Errorf("task %s: %w", id, domain.ErrNotFound)}, nil, nil)
	}
	if id.IsTemp() {
		return c.finish(OpMove, Outcome{Phase: PhaseFailed, Task: original, Err: ErrNotSaved}, nil, nil)
	}

	start, end := MoveTarget(original, drop)
	patch := domain.SchedulePatch(start, end)

	c.store.Update(id, patch)
	c.report(OpMove, Outcome{Phase: PhasePending, Task: patch.Apply(original)})

	echoed, err := c.backend.UpdateEvent(ctx, original, patch)
	if err != nil {
		out := Outcome{Phase: PhaseFailed, Task: original, Err: err}
		return c.finish(OpMove, out, nil, func() { c.store.Restore(original) })
	}

	final := patch.Merge(echoed)
	out := Outcome{Phase: PhaseCommitted, Task: final.Apply(original)}
	return c.finish(OpMove, out, func() {
		c.store.Update(id, echoed)
		c.invalidateDates(original.StartDate.Time, start)
	}, nil)
}

// Edit sends patch first and merges the sent fields, then the echoed
// ones, into the cache only once the backend accepted it.
func (c *Coordinator) Edit(ctx context.Context, id domain.TaskID, patch domain.TaskPatch) (domain.Task, error) {
	current, ok := c.store.Get(id)
	if !ok {
		return domain.Task{}, fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	if id.IsTemp() {
		return current, ErrNotSaved
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		title := domain.PlaceholderTitle
		patch.Title = &title
	}

	c.report(OpEdit, Outcome{Phase: PhasePending, Task: current})

	echoed, err := c.backend.UpdateEvent(ctx, current, patch)
	if err != nil {
		out := c.finish(OpEdit, Outcome{Phase: PhaseFailed, Task: current, Err: err}, nil, nil)
		return out.Result()
	}

	merged := patch.Merge(echoed)
	updated := merged.Apply(current)
	out := c.finish(OpEdit, Outcome{Phase: PhaseCommitted, Task: updated}, func() {
		c.store.Update(id, merged)
		c.invalidateDates(current.StartDate.Time, updated.StartDate.Time)
	}, nil)
	return out.Result()
}

// Delete removes a task once the backend confirmed it. A recurring task
// needs an explicit scope.
func (c *Coordinator) Delete(ctx context.Context, id domain.TaskID, scope Scope) error {
	current, ok := c.store.Get(id)
	if !ok {
		return fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	if current.IsRecurring() && scope == ScopeUnset {
		return domain.ErrScopeRequired
	}
	if id.IsTemp() {
		return ErrNotSaved
	}

	rid := ""
	if current.IsRecurring() && scope == ScopeOccurrence {
		rid = current.RecurrenceID
	}

	c.report(OpDelete, Outcome{Phase: PhasePending, Task: current})

	if err := c.backend.DeleteEvent(ctx, current.URL, current.ID, rid); err != nil {
		out := c.finish(OpDelete, Outcome{Phase: PhaseFailed, Task: current, Err: err}, nil, nil)
		return out.Err
	}

	c.finish(OpDelete, Outcome{Phase: PhaseCommitted, Task: current}, func() {
		c.store.Remove(eventstore.DeleteScope{ID: current.ID, URL: current.URL, RecurrenceID: rid})
		if current.IsRecurring() && rid == "" && c.months != nil {
			// a series spans months
			c.months.Clear()
			return
		}
		c.invalidateDates(current.StartDate.Time)
	}, nil)
	return nil
}
