package eventstore

import (
	"sort"
	"sync"
	"time"

	"github.com/tazhate/taskcal/internal/domain"
	"github.com/tazhate/taskcal/internal/rangeset"
)

// Store owns the session State. Each mutation swaps in a new State built
// by a reducer, so readers holding an older Snapshot are never affected.
type Store struct {
	mu    sync.RWMutex
	state State
}

// New creates an empty store.
func New() *Store {
	return &Store{}
}

func (s *Store) apply(reduce func(State) State) {
	s.mu.Lock()
	s.state = reduce(s.state)
	s.mu.Unlock()
}

// Snapshot returns the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Load replaces the whole state, e.g. from a persisted snapshot.
func (s *Store) Load(state State) {
	s.apply(func(State) State { return state })
}

// Reset drops every event and fetched range.
func (s *Store) Reset() {
	s.apply(func(State) State { return State{} })
}

func (s *Store) Ingest(tasks []domain.Task, rng domain.DateRange) {
	s.apply(func(st State) State { return Ingest(st, tasks, rng) })
}

func (s *Store) Append(tasks []domain.Task) {
	s.apply(func(st State) State { return Append(st, tasks) })
}

func (s *Store) Add(t domain.Task) {
	s.apply(func(st State) State { return Add(st, t) })
}

func (s *Store) Replace(id domain.TaskID, record domain.Task) {
	s.apply(func(st State) State { return Replace(st, id, record) })
}

func (s *Store) Remove(scope DeleteScope) {
	s.apply(func(st State) State { return Remove(st, scope) })
}

func (s *Store) RemoveID(id domain.TaskID) {
	s.apply(func(st State) State { return RemoveID(st, id) })
}

func (s *Store) Update(id domain.TaskID, patch domain.TaskPatch) {
	s.apply(func(st State) State { return Update(st, id, patch) })
}

// Restore puts back an exact earlier copy of a record.
func (s *Store) Restore(original domain.Task) {
	s.Replace(original.ID, original)
}

// Get returns the record with id.
func (s *Store) Get(id domain.TaskID) (domain.Task, bool) {
	for _, e := range s.Snapshot().Events {
		if e.ID == id {
			return e, true
		}
	}
	return domain.Task{}, false
}

// Count returns how many records carry id.
func (s *Store) Count(id domain.TaskID) int {
	n := 0
	for _, e := range s.Snapshot().Events {
		if e.ID == id {
			n++
		}
	}
	return n
}

// Covers reports whether [from, to] lies within one fetched range.
func (s *Store) Covers(from, to time.Time) bool {
	rng := domain.NewDateRange(from, to)
	return rangeset.IsCovered(s.Snapshot().Ranges, rng.Start, rng.End)
}

// Between returns the cached tasks overlapping [from, to], ordered by start.
func (s *Store) Between(from, to time.Time) []domain.Task {
	var out []domain.Task
	for _, e := range s.Snapshot().Events {
		if e.Overlaps(from, to) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartDate.Before(out[j].StartDate.Time)
	})
	return out
}

// Len returns the number of cached tasks.
func (s *Store) Len() int {
	return len(s.Snapshot().Events)
}
