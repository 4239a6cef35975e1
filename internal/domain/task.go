package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TempIDPrefix marks ids generated client-side before the server confirms a record.
const TempIDPrefix = "temp_"

// PlaceholderTitle is used when a task is created with a blank title.
const PlaceholderTitle = "(Sans titre)"

// TaskID identifies a task. The backend sends numeric ids for legacy tasks
// and string ids for CalDAV events, so both decode into a TaskID.
type TaskID string

// NewTempID returns a temp_<millis>_<random> identifier.
func NewTempID(now time.Time) TaskID {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return TaskID(fmt.Sprintf("%s%d_%s", TempIDPrefix, now.UnixMilli(), random))
}

// IsTemp reports whether the id was generated client-side.
func (id TaskID) IsTemp() bool {
	return strings.HasPrefix(string(id), TempIDPrefix)
}

func (id TaskID) String() string {
	return string(id)
}

func (id *TaskID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = TaskID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("task id: %w", err)
	}
	*id = TaskID(n.String())
	return nil
}

// Task is one calendar occurrence as held by the client cache.
type Task struct {
	ID          TaskID `json:"id,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"` // HTML
	Location    string `json:"location,omitempty"`

	StartDate LocalTime `json:"start_date"`
	EndDate   LocalTime `json:"end_date"`

	// Calendar fields are copied at creation time, not looked up.
	CalendarSourceID    TaskID `json:"calendar_source_id,omitempty"`
	CalendarSourceURI   string `json:"calendar_source_uri,omitempty"`
	CalendarSourceName  string `json:"calendar_source_name,omitempty"`
	CalendarSourceColor string `json:"calendar_source_color,omitempty"`

	// RecurrenceID is the occurrence's own start when the task belongs to a series.
	RecurrenceID string `json:"recurrence_id,omitempty"`
	URL          string `json:"url,omitempty"`

	ClientID *int64 `json:"client_id,omitempty"`
	AffairID *int64 `json:"affair_id,omitempty"`
}

// Duration returns end - start.
func (t Task) Duration() time.Duration {
	return t.EndDate.Sub(t.StartDate.Time)
}

// IsRecurring reports whether the task is one occurrence of a series.
func (t Task) IsRecurring() bool {
	return t.RecurrenceID != ""
}

// Overlaps reports whether the task intersects [from, to].
func (t Task) Overlaps(from, to time.Time) bool {
	end := t.EndDate.Time
	if end.Before(t.StartDate.Time) {
		end = t.StartDate.Time
	}
	return !end.Before(from) && !t.StartDate.After(to)
}

// WithCalendar copies the calendar's display fields onto the task.
func (t Task) WithCalendar(c CalendarSource) Task {
	t.CalendarSourceID = c.ID
	t.CalendarSourceURI = c.URI
	t.CalendarSourceName = c.Name
	t.CalendarSourceColor = c.Color
	return t
}

// FormatTime returns formatted time for display
func (t Task) FormatTime() string {
	if t.EndDate.IsZero() {
		return t.StartDate.Format("15:04")
	}
	return t.StartDate.Format("15:04") + "-" + t.EndDate.Format("15:04")
}

// TaskPatch is a partial task. Nil fields are left untouched by Apply.
type TaskPatch struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Location    *string `json:"location,omitempty"`

	StartDate *LocalTime `json:"start_date,omitempty"`
	EndDate   *LocalTime `json:"end_date,omitempty"`

	CalendarSourceID    *TaskID `json:"calendar_source_id,omitempty"`
	CalendarSourceURI   *string `json:"calendar_source_uri,omitempty"`
	CalendarSourceName  *string `json:"calendar_source_name,omitempty"`
	CalendarSourceColor *string `json:"calendar_source_color,omitempty"`

	RecurrenceID *string `json:"recurrence_id,omitempty"`
	URL          *string `json:"url,omitempty"`

	ClientID *int64 `json:"client_id,omitempty"`
	AffairID *int64 `json:"affair_id,omitempty"`
}

// Apply merges the non-nil fields of p into t.
func (p TaskPatch) Apply(t Task) Task {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Location != nil {
		t.Location = *p.Location
	}
	if p.StartDate != nil {
		t.StartDate = *p.StartDate
	}
	if p.EndDate != nil {
		t.EndDate = *p.EndDate
	}
	if p.CalendarSourceID != nil {
		t.CalendarSourceID = *p.CalendarSourceID
	}
	if p.CalendarSourceURI != nil {
		t.CalendarSourceURI = *p.CalendarSourceURI
	}
	if p.CalendarSourceName != nil {
		t.CalendarSourceName = *p.CalendarSourceName
	}
	if p.CalendarSourceColor != nil {
		t.CalendarSourceColor = *p.CalendarSourceColor
	}
	if p.RecurrenceID != nil {
		t.RecurrenceID = *p.RecurrenceID
	}
	if p.URL != nil {
		t.URL = *p.URL
	}
	if p.ClientID != nil {
		id := *p.ClientID
		t.ClientID = &id
	}
	if p.AffairID != nil {
		id := *p.AffairID
		t.AffairID = &id
	}
	return t
}

// Merge returns a patch with q's fields layered over p's.
func (p TaskPatch) Merge(q TaskPatch) TaskPatch {
	out := p
	if q.Title != nil {
		out.Title = q.Title
	}
	if q.Description != nil {
		out.Description = q.Description
	}
	if q.Location != nil {
		out.Location = q.Location
	}
	if q.StartDate != nil {
		out.StartDate = q.StartDate
	}
	if q.EndDate != nil {
		out.EndDate = q.EndDate
	}
	if q.CalendarSourceID != nil {
		out.CalendarSourceID = q.CalendarSourceID
	}
	if q.CalendarSourceURI != nil {
		out.CalendarSourceURI = q.CalendarSourceURI
	}
	if q.CalendarSourceName != nil {
		out.CalendarSourceName = q.CalendarSourceName
	}
	if q.CalendarSourceColor != nil {
		out.CalendarSourceColor = q.CalendarSourceColor
	}
	if q.RecurrenceID != nil {
		out.RecurrenceID = q.RecurrenceID
	}
	if q.URL != nil {
		out.URL = q.URL
	}
	if q.ClientID != nil {
		out.ClientID = q.ClientID
	}
	if q.AffairID != nil {
		out.AffairID = q.AffairID
	}
	return out
}

// SchedulePatch is a patch that only moves a task.
func SchedulePatch(start, end time.Time) TaskPatch {
	s, e := NewLocalTime(start), NewLocalTime(end)
	return TaskPatch{StartDate: &s, EndDate: &e}
}
