package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

const (
	// LocalLayout is the wire format for task timestamps: wall-clock, no offset.
	LocalLayout = "2006-01-02T15:04:05"
	// DateLayout is the wire format for range bounds.
	DateLayout = "2006-01-02"
)

// LocalTime is a wall-clock timestamp. It is never converted to UTC when
// serialized so the backend receives the time exactly as entered.
type LocalTime struct {
	time.Time
}

func NewLocalTime(t time.Time) LocalTime {
	return LocalTime{Time: t}
}

// wallLayouts are accepted by ParseLocalTime besides RFC 3339.
var wallLayouts = []string{LocalLayout, "2006-01-02T15:04", "2006-01-02 15:04"}

// ParseLocalTime accepts LocalLayout (with or without seconds), RFC 3339
// and date-only values.
func ParseLocalTime(s string) (LocalTime, error) {
	for _, layout := range wallLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return LocalTime{Time: t}, nil
		}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return LocalTime{Time: t.In(time.Local)}, nil
	}
	if t, err := time.ParseInLocation(DateLayout, s, time.Local); err == nil {
		return LocalTime{Time: t}, nil
	}
	return LocalTime{}, fmt.Errorf("parse local time %q: unsupported format", s)
}

// String formats the wall clock as YYYY-MM-DDTHH:MM:SS.
func (t LocalTime) String() string {
	return t.Format(LocalLayout)
}

func (t LocalTime) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(LocalLayout))
}

func (t *LocalTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*t = LocalTime{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("local time: %w", err)
	}
	if s == "" {
		*t = LocalTime{}
		return nil
	}
	parsed, err := ParseLocalTime(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// AtTimeOfDay returns day's date combined with clock's hour, minute and second.
func AtTimeOfDay(day, clock time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(),
		clock.Hour(), clock.Minute(), clock.Second(), 0, day.Location())
}

// IsMidnight reports whether t has zero hour and minute.
func IsMidnight(t time.Time) bool {
	return t.Hour() == 0 && t.Minute() == 0
}
