package eventstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tazhate/taskcal/internal/domain"
)

func at(day, hour int) domain.LocalTime {
	return domain.NewLocalTime(time.Date(2024, 1, day, hour, 0, 0, 0, time.Local))
}

func task(id string, day int) domain.Task {
	return domain.Task{ID: domain.TaskID(id), Title: id, StartDate: at(day, 9), EndDate: at(day, 10)}
}

func TestIngest_DedupByID(t *testing.T) {
	s := New()
	s.Ingest([]domain.Task{task("1", 1), task("2", 2)}, domain.DateRange{Start: "2024-01-01", End: "2024-01-15"})
	s.Ingest([]domain.Task{task("2", 2), task("3", 3)}, domain.DateRange{Start: "2024-01-10", End: "2024-01-31"})

	assert.Equal(t, 3, s.Len())
	assert.Equal(t, 1, s.Count("2"))
	assert.Equal(t, []domain.DateRange{{Start: "2024-01-01", End: "2024-01-31"}}, s.Snapshot().Ranges)
}

func TestIngest_IsAccretive(t *testing.T) {
	s := New()
	rng := domain.DateRange{Start: "2024-01-01", End: "2024-01-31"}
	s.Ingest([]domain.Task{task("1", 1), task("2", 2)}, rng)

	// the backend no longer returns "2"; the cache keeps it
	s.Ingest([]domain.Task{task("1", 1)}, rng)

	_, ok := s.Get("2")
	assert.True(t, ok)
}

func TestIngest_KeepsExistingVersion(t *testing.T) {
	s := New()
	s.Ingest([]domain.Task{task("1", 1)}, domain.DateRange{Start: "2024-01-01", End: "2024-01-02"})

	changed := task("1", 1)
	changed.Title = "changed remotely"
	s.Ingest([]domain.Task{changed}, domain.DateRange{Start: "2024-01-01", End: "2024-01-02"})

	got, _ := s.Get("1")
	assert.Equal(t, "1", got.Title)
}

func TestReplace(t *testing.T) {
	s := New()
	s.Add(task("temp_1_x", 5))
	s.Add(task("9", 6))

	confirmed := task("100", 5)
	s.Replace("temp_1_x", confirmed)

	assert.Equal(t, 0, s.Count("temp_1_x"))
	assert.Equal(t, 1, s.Count("100"))
	assert.Equal(t, domain.TaskID("100"), s.Snapshot().Events[0].ID)

	// missing temp id falls back to append
	s.Replace("temp_gone", task("101", 7))
	assert.Equal(t, 1, s.Count("101"))
	assert.Equal(t, 3, s.Len())
}

func TestRemove(t *testing.T) {
	seed := func() *Store {
		s := New()
		occ := func(id, rid string) domain.Task {
			tk := task(id, 1)
			tk.URL = "/cal/series.ics"
			tk.RecurrenceID = rid
			return tk
		}
		other := task("other", 2)
		other.URL = "/cal/other.ics"
		s.Append([]domain.Task{
			occ("s_1", "2024-01-01T09:00:00"),
			occ("s_2", "2024-01-08T09:00:00"),
			occ("s_3", "2024-01-15T09:00:00"),
			other,
			task("legacy", 3),
		})
		return s
	}

	t.Run("single occurrence", func(t *testing.T) {
		s := seed()
		s.Remove(DeleteScope{URL: "/cal/series.ics", RecurrenceID: "2024-01-08T09:00:00"})

		assert.Equal(t, 0, s.Count("s_2"))
		assert.Equal(t, 1, s.Count("s_1"))
		assert.Equal(t, 1, s.Count("s_3"))
		assert.Equal(t, 4, s.Len())
	})

	t.Run("full series", func(t *testing.T) {
		s := seed()
		s.Remove(DeleteScope{URL: "/cal/series.ics"})

		assert.Equal(t, 2, s.Len())
		assert.Equal(t, 1, s.Count("other"))
	})

	t.Run("no url falls back to id", func(t *testing.T) {
		s := seed()
		s.Remove(DeleteScope{ID: "legacy"})

		assert.Equal(t, 0, s.Count("legacy"))
		assert.Equal(t, 4, s.Len())
	})
}

func TestUpdate_PreservesUnsetFields(t *testing.T) {
	s := New()
	tk := task("1", 1)
	tk.CalendarSourceName = "Équipe"
	tk.CalendarSourceColor = "#00ff00"
	s.Add(tk)

	title := "Renamed"
	s.Update("1", domain.TaskPatch{Title: &title})

	got, ok := s.Get("1")
	require.True(t, ok)
	assert.Equal(t, "Renamed", got.Title)
	assert.Equal(t, "Équipe", got.CalendarSourceName)
	assert.Equal(t, "#00ff00", got.CalendarSourceColor)
}

func TestSnapshot_IsolatedFromLaterMutations(t *testing.T) {
	s := New()
	s.Add(task("1", 1))
	before := s.Snapshot()

	title := "after"
	s.Update("1", domain.TaskPatch{Title: &title})
	s.Add(task("2", 2))

	assert.Len(t, before.Events, 1)
	assert.Equal(t, "1", before.Events[0].Title)
}

func TestBetweenAndCovers(t *testing.T) {
	s := New()
	s.Ingest([]domain.Task{task("b", 20), task("a", 5), task("c", 28)}, domain.DateRange{Start: "2024-01-01", End: "2024-01-31"})

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.Local)
	to := time.Date(2024, 1, 21, 0, 0, 0, 0, time.Local)
	got := s.Between(from, to)

	require.Len(t, got, 2)
	assert.Equal(t, domain.TaskID("a"), got[0].ID)
	assert.Equal(t, domain.TaskID("b"), got[1].ID)

	assert.True(t, s.Covers(from, to))
	assert.False(t, s.Covers(from, time.Date(2024, 2, 3, 0, 0, 0, 0, time.Local)))
}

func TestReset(t *testing.T) {
	s := New()
	s.Ingest([]domain.Task{task("1", 1)}, domain.DateRange{Start: "2024-01-01", End: "2024-01-31"})
	s.Reset()

	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.Snapshot().Ranges)
}
