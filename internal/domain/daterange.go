package domain

import (
	"fmt"
	"time"
)

// DateRange is one fetched interval. Bounds are ISO dates (YYYY-MM-DD),
// which order correctly as strings.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// NewDateRange builds a range from the calendar days of from and to.
func NewDateRange(from, to time.Time) DateRange {
	return DateRange{Start: from.Format(DateLayout), End: to.Format(DateLayout)}
}

// Bounds parses the range into local midnight times.
func (r DateRange) Bounds() (time.Time, time.Time, error) {
	start, err := time.ParseInLocation(DateLayout, r.Start, time.Local)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("range start: %w", err)
	}
	end, err := time.ParseInLocation(DateLayout, r.End, time.Local)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("range end: %w", err)
	}
	return start, end, nil
}

func (r DateRange) String() string {
	return r.Start + ".." + r.End
}
