package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskID_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want TaskID
	}{
		{name: "string", in: `"abc-1"`, want: "abc-1"},
		{name: "number", in: `42`, want: "42"},
		{name: "null", in: `null`, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var id TaskID
			require.NoError(t, json.Unmarshal([]byte(tt.in), &id))
			assert.Equal(t, tt.want, id)
		})
	}
}

func TestNewTempID(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	id := NewTempID(now)

	assert.True(t, id.IsTemp())
	assert.Regexp(t, `^temp_1700000000123_[0-9a-f]{9}$`, string(id))
	assert.NotEqual(t, id, NewTempID(now))
	assert.False(t, TaskID("17").IsTemp())
}

func TestLocalTime_JSON(t *testing.T) {
	start := NewLocalTime(time.Date(2024, 3, 10, 14, 30, 0, 0, time.Local))

	data, err := json.Marshal(start)
	require.NoError(t, err)
	assert.Equal(t, `"2024-03-10T14:30:00"`, string(data))

	var back LocalTime
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, back.Equal(start.Time))

	var day LocalTime
	require.NoError(t, json.Unmarshal([]byte(`"2024-03-10"`), &day))
	assert.Equal(t, 10, day.Day())
	assert.Equal(t, 0, day.Hour())

	var bad LocalTime
	assert.Error(t, json.Unmarshal([]byte(`"10/03/2024"`), &bad))
}

func TestParseLocalTime(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "2024-03-10T14:30:00", want: "2024-03-10T14:30:00"},
		{in: "2024-03-10T14:30", want: "2024-03-10T14:30:00"},
		{in: "2024-03-10 09:05", want: "2024-03-10T09:05:00"},
		{in: "2024-03-10", want: "2024-03-10T00:00:00"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLocalTime(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}

	_, err := ParseLocalTime("10/03/2024")
	assert.Error(t, err)
}

func TestTaskPatch_Apply(t *testing.T) {
	clientID := int64(7)
	task := Task{
		ID:                  "1",
		Title:               "Old",
		Location:            "Paris",
		CalendarSourceName:  "Work",
		CalendarSourceColor: "#ff0000",
		ClientID:            &clientID,
	}

	title := "New"
	got := TaskPatch{Title: &title}.Apply(task)

	assert.Equal(t, "New", got.Title)
	assert.Equal(t, "Paris", got.Location)
	assert.Equal(t, "Work", got.CalendarSourceName)
	assert.Equal(t, "#ff0000", got.CalendarSourceColor)
	require.NotNil(t, got.ClientID)
	assert.Equal(t, int64(7), *got.ClientID)
}

func TestTaskPatch_DecodeKeepsAbsentFieldsNil(t *testing.T) {
	var p TaskPatch
	require.NoError(t, json.Unmarshal([]byte(`{"title":"Echo","start_date":"2024-01-02T09:00:00"}`), &p))

	require.NotNil(t, p.Title)
	require.NotNil(t, p.StartDate)
	assert.Nil(t, p.CalendarSourceName)
	assert.Nil(t, p.EndDate)
}

func TestTaskPatch_Merge(t *testing.T) {
	a, b := "a", "b"
	loc := "Lyon"
	merged := TaskPatch{Title: &a, Location: &loc}.Merge(TaskPatch{Title: &b})

	assert.Equal(t, "b", *merged.Title)
	assert.Equal(t, "Lyon", *merged.Location)
}

func TestTaskInput_Validate(t *testing.T) {
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	t.Run("valid single", func(t *testing.T) {
		in := TaskInput{Title: "x", Start: start, End: start.Add(time.Hour)}
		assert.NoError(t, in.Validate())
	})

	t.Run("end before start", func(t *testing.T) {
		in := TaskInput{Start: start, End: start.Add(-time.Hour)}
		err := in.Validate()

		var verr *ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Contains(t, verr.Fields, "end")
	})

	t.Run("count without value", func(t *testing.T) {
		in := TaskInput{
			Start: start, End: start.Add(time.Hour),
			Recurrence: Recurrence{Type: RecurrenceDaily, EndType: EndCount},
		}
		var verr *ValidationError
		require.True(t, errors.As(in.Validate(), &verr))
		assert.Equal(t, "must be at least 1", verr.Fields["count"])
	})

	t.Run("custom needs interval and unit", func(t *testing.T) {
		in := TaskInput{
			Start: start, End: start.Add(time.Hour),
			Recurrence: Recurrence{Type: RecurrenceCustom, EndType: EndNever},
		}
		var verr *ValidationError
		require.True(t, errors.As(in.Validate(), &verr))
		assert.Contains(t, verr.Fields, "interval")
		assert.Contains(t, verr.Fields, "unit")
	})

	t.Run("unknown type", func(t *testing.T) {
		in := TaskInput{
			Start: start, End: start.Add(time.Hour),
			Recurrence: Recurrence{Type: "hourly"},
		}
		var verr *ValidationError
		require.True(t, errors.As(in.Validate(), &verr))
		assert.Contains(t, verr.Fields, "type")
	})
}

func TestCalendarSource_IsResource(t *testing.T) {
	assert.True(t, CalendarSource{Description: "Salle de réunion (Resource)"}.IsResource())
	assert.False(t, CalendarSource{Description: "Agenda perso"}.IsResource())
}
