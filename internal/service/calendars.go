package service

import (
	"context"
	"fmt"

	"github.com/tazhate/taskcal/internal/domain"
)

// Calendars returns the user's calendars. They are fetched once per
// session; Sync forgets them.
func (c *Coordinator) Calendars(ctx context.Context) ([]domain.CalendarSource, error) {
	c.calMu.Lock()
	cached := c.calendars
	c.calMu.Unlock()
	if cached != nil {
		c.metrics.CacheLookup("calendars", "hit")
		return cloneCalendars(cached), nil
	}
	c.metrics.CacheLookup("calendars", "miss")

	cals, err := c.backend.GetCalendars(ctx)
	if err != nil {
		return nil, fmt.Errorf("get calendars: %w", err)
	}
	if cals == nil {
		cals = []domain.CalendarSource{}
	}

	c.calMu.Lock()
	c.calendars = cals
	c.calMu.Unlock()
	return cloneCalendars(cals), nil
}

// Calendar looks a calendar up by id, or by name when no id matches.
func (c *Coordinator) Calendar(ctx context.Context, ref string) (domain.CalendarSource, error) {
	cals, err := c.Calendars(ctx)
	if err != nil {
		return domain.CalendarSource{}, err
	}
	for _, cal := range cals {
		if cal.ID.String() == ref {
			return cal, nil
		}
	}
	for _, cal := range cals {
		if cal.Name == ref {
			return cal, nil
		}
	}
	return domain.CalendarSource{}, fmt.Errorf("calendar %q: %w", ref, domain.ErrNotFound)
}

// Resources returns the calendars that book resources rather than people.
func (c *Coordinator) Resources(ctx context.Context) ([]domain.CalendarSource, error) {
	cals, err := c.Calendars(ctx)
	if err != nil {
		return nil, err
	}
	var out []domain.CalendarSource
	for _, cal := range cals {
		if cal.IsResource() {
			out = append(out, cal)
		}
	}
	return out, nil
}

// ToggleCalendar flips a calendar's display flag in the cached list right
// away and puts the previous value back if the backend refuses. Once
// accepted the event cache is dropped, since the set of calendars the
// backend returns events for has changed.
func (c *Coordinator) ToggleCalendar(ctx context.Context, id domain.TaskID, display bool) (domain.CalendarSource, error) {
	if _, err := c.Calendars(ctx); err != nil {
		return domain.CalendarSource{}, err
	}

	original, ok := c.swapCalendar(id, func(cal domain.CalendarSource) domain.CalendarSource {
		cal.Display = display
		return cal
	})
	if !ok {
		return domain.CalendarSource{}, fmt.Errorf("calendar %s: %w", id, domain.ErrNotFound)
	}

	updated, err := c.backend.UpdateCalendar(ctx, id, domain.CalendarPatch{Display: &display})
	if err != nil {
		c.swapCalendar(id, func(domain.CalendarSource) domain.CalendarSource { return original })
		c.metrics.Operation(string(OpToggleCalendar), PhaseFailed.String())
		c.log.WithError(err).WithField("calendar", id).Warn("toggle calendar failed")
		return original, fmt.Errorf("toggle calendar %s: %w", id, err)
	}

	if updated.ID == "" {
		updated = original
		updated.Display = display
	}
	c.swapCalendar(id, func(domain.CalendarSource) domain.CalendarSource { return updated })
	c.metrics.Operation(string(OpToggleCalendar), PhaseCommitted.String())

	c.resetEvents()
	return updated, nil
}

// swapCalendar replaces the cached calendar id with fn's result and
// returns the previous value.
func (c *Coordinator) swapCalendar(id domain.TaskID, fn func(domain.CalendarSource) domain.CalendarSource) (domain.CalendarSource, bool) {
	c.calMu.Lock()
	defer c.calMu.Unlock()

	for i, cal := range c.calendars {
		if cal.ID == id {
			next := make([]domain.CalendarSource, len(c.calendars))
			copy(next, c.calendars)
			next[i] = fn(cal)
			c.calendars = next
			return cal, true
		}
	}
	return domain.CalendarSource{}, false
}

func cloneCalendars(cals []domain.CalendarSource) []domain.CalendarSource {
	out := make([]domain.CalendarSource, len(cals))
	copy(out, cals)
	return out
}

// CachedCalendars returns the session's calendar list without fetching,
// nil when it was not loaded yet.
func (c *Coordinator) CachedCalendars() []domain.CalendarSource {
	c.calMu.Lock()
	defer c.calMu.Unlock()
	if c.calendars == nil {
		return nil
	}
	return cloneCalendars(c.calendars)
}

// PrimeCalendars seeds the calendar list, e.g. from a saved session.
func (c *Coordinator) PrimeCalendars(cals []domain.CalendarSource) {
	c.calMu.Lock()
	defer c.calMu.Unlock()
	if cals == nil {
		c.calendars = nil
		return
	}
	c.calendars = cloneCalendars(cals)
}
