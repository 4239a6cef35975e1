// Package eventstore holds the tasks fetched during one session.
//
// State is treated as an immutable value: every reducer returns a new
// State and never writes through to the slices of its input.
package eventstore

import (
	"github.com/tazhate/taskcal/internal/domain"
	"github.com/tazhate/taskcal/internal/rangeset"
)

// State is the full cache content at one point in time.
type State struct {
	Events []domain.Task      `json:"events"`
	Ranges []domain.DateRange `json:"ranges"`
}

// DeleteScope selects which records a delete confirmation removes.
type DeleteScope struct {
	ID           domain.TaskID
	URL          string
	RecurrenceID string
}

// Ingest appends tasks whose id is not yet present and records rng as
// fetched. Existing records are never dropped or overwritten, so a task
// deleted elsewhere stays cached until an explicit Remove or Reset.
func Ingest(s State, tasks []domain.Task, rng domain.DateRange) State {
	next := Append(s, tasks)
	next.Ranges = rangeset.Merge(s.Ranges, rng)
	return next
}

// Append adds tasks whose id is not yet present.
func Append(s State, tasks []domain.Task) State {
	seen := make(map[domain.TaskID]struct{}, len(s.Events)+len(tasks))
	for _, e := range s.Events {
		seen[e.ID] = struct{}{}
	}

	events := cloneEvents(s.Events, len(tasks))
	for _, t := range tasks {
		if _, ok := seen[t.ID]; ok {
			continue
		}
		seen[t.ID] = struct{}{}
		events = append(events, t)
	}
	return State{Events: events, Ranges: s.Ranges}
}

// Add inserts a single optimistic record.
func Add(s State, t domain.Task) State {
	events := cloneEvents(s.Events, 1)
	return State{Events: append(events, t), Ranges: s.Ranges}
}

// Replace overwrites the record with id in place, or appends record when
// no such id exists any more.
func Replace(s State, id domain.TaskID, record domain.Task) State {
	events := cloneEvents(s.Events, 1)
	for i := range events {
		if events[i].ID == id {
			events[i] = record
			return State{Events: events, Ranges: s.Ranges}
		}
	}
	return State{Events: append(events, record), Ranges: s.Ranges}
}

// Remove drops records matched by scope. With a recurrence id only the
// occurrence sharing both url and recurrence id goes; without one every
// record sharing the url goes. Records without url are matched by id.
func Remove(s State, scope DeleteScope) State {
	events := make([]domain.Task, 0, len(s.Events))
	for _, e := range s.Events {
		if scope.matches(e) {
			continue
		}
		events = append(events, e)
	}
	return State{Events: events, Ranges: s.Ranges}
}

// RemoveID drops the record with id.
func RemoveID(s State, id domain.TaskID) State {
	return Remove(s, DeleteScope{ID: id})
}

// Update merge-patches the record with id. Fields not set in patch keep
// their current value, which matters for the denormalized calendar fields
// an update response does not echo.
func Update(s State, id domain.TaskID, patch domain.TaskPatch) State {
	events := cloneEvents(s.Events, 0)
	for i := range events {
		if events[i].ID == id {
			events[i] = patch.Apply(events[i])
		}
	}
	return State{Events: events, Ranges: s.Ranges}
}

func (d DeleteScope) matches(e domain.Task) bool {
	if d.URL == "" {
		return d.ID != "" && e.ID == d.ID
	}
	if e.URL != d.URL {
		return false
	}
	if d.RecurrenceID != "" {
		return e.RecurrenceID == d.RecurrenceID
	}
	return true
}

func cloneEvents(events []domain.Task, extra int) []domain.Task {
	out := make([]domain.Task, len(events), len(events)+extra)
	copy(out, events)
	return out
}
