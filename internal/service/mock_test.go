package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tazhate/taskcal/internal/clients/api"
	"github.com/tazhate/taskcal/internal/clients/caldav"
	"github.com/tazhate/taskcal/internal/domain"
)

var (
	_ Backend = (*api.Client)(nil)
	_ Backend = (*api.Legacy)(nil)
	_ Backend = (*caldav.Client)(nil)
)

var errNotImplemented = errors.New("not implemented")

// mockBackend implements Backend for testing
type mockBackend struct {
	getCalendarsFunc     func(ctx context.Context) ([]domain.CalendarSource, error)
	updateCalendarFunc   func(ctx context.Context, id domain.TaskID, patch domain.CalendarPatch) (domain.CalendarSource, error)
	getEventsFunc        func(ctx context.Context, from, to time.Time, includeAll bool) ([]domain.Task, error)
	createEventFunc      func(ctx context.Context, t domain.Task) (domain.Task, error)
	updateEventFunc      func(ctx context.Context, current domain.Task, patch domain.TaskPatch) (domain.TaskPatch, error)
	deleteEventFunc      func(ctx context.Context, url string, id domain.TaskID, recurrenceID string) error
	bulkCreateEventsFunc func(ctx context.Context, req domain.BulkRequest) ([]domain.Task, error)
	syncFunc             func(ctx context.Context) (domain.SyncStats, error)
}

func (m *mockBackend) GetCalendars(ctx context.Context) ([]domain.CalendarSource, error) {
	if m.getCalendarsFunc != nil {
		return m.getCalendarsFunc(ctx)
	}
	return nil, errNotImplemented
}

func (m *mockBackend) UpdateCalendar(ctx context.Context, id domain.TaskID, patch domain.CalendarPatch) (domain.CalendarSource, error) {
	if m.updateCalendarFunc != nil {
		return m.updateCalendarFunc(ctx, id, patch)
	}
	return domain.CalendarSource{}, errNotImplemented
}

func (m *mockBackend) GetEvents(ctx context.Context, from, to time.Time, includeAll bool) ([]domain.Task, error) {
	if m.getEventsFunc != nil {
		return m.getEventsFunc(ctx, from, to, includeAll)
	}
	return nil, errNotImplemented
}

func (m *mockBackend) CreateEvent(ctx context.Context, t domain.Task) (domain.Task, error) {
	if m.createEventFunc != nil {
		return m.createEventFunc(ctx, t)
	}
	return domain.Task{}, errNotImplemented
}

func (m *mockBackend) UpdateEvent(ctx context.Context, current domain.Task, patch domain.TaskPatch) (domain.TaskPatch, error) {
	if m.updateEventFunc != nil {
		return m.updateEventFunc(ctx, current, patch)
	}
	return domain.TaskPatch{}, errNotImplemented
}

func (m *mockBackend) DeleteEvent(ctx context.Context, url string, id domain.TaskID, recurrenceID string) error {
	if m.deleteEventFunc != nil {
		return m.deleteEventFunc(ctx, url, id, recurrenceID)
	}
	return errNotImplemented
}

func (m *mockBackend) BulkCreateEvents(ctx context.Context, req domain.BulkRequest) ([]domain.Task, error) {
	if m.bulkCreateEventsFunc != nil {
		return m.bulkCreateEventsFunc(ctx, req)
	}
	return nil, errNotImplemented
}

func (m *mockBackend) Sync(ctx context.Context) (domain.SyncStats, error) {
	if m.syncFunc != nil {
		return m.syncFunc(ctx)
	}
	return domain.SyncStats{}, errNotImplemented
}

// mockNotifier records notifications
type mockNotifier struct {
	mu   sync.Mutex
	sent []string
}

func (m *mockNotifier) Notify(_ context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, text)
	return nil
}

// phaseLog records observer calls
type phaseLog struct {
	mu     sync.Mutex
	phases []Phase
	ops    []Op
}

func (p *phaseLog) observe(op Op, out Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ops = append(p.ops, op)
	p.phases = append(p.phases, out.Phase)
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func local(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, time.Local)
}

func lt(t time.Time) domain.LocalTime {
	return domain.NewLocalTime(t)
}
