package domain

// BulkEvent is one concrete occurrence inside a bulk create request.
type BulkEvent struct {
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	Location     string    `json:"location,omitempty"`
	StartDate    LocalTime `json:"start_date"`
	EndDate      LocalTime `json:"end_date"`
	RecurrenceID string    `json:"recurrence_id,omitempty"`
	ClientID     *int64    `json:"client_id,omitempty"`
	AffairID     *int64    `json:"affair_id,omitempty"`
}

// BulkRequest creates many occurrences in one calendar with a single call.
type BulkRequest struct {
	Events              []BulkEvent `json:"events"`
	CalendarSourceID    TaskID      `json:"calendar_source_id"`
	CalendarSourceURI   string      `json:"calendar_source_uri"`
	CalendarSourceName  string      `json:"calendar_source_name"`
	CalendarSourceColor string      `json:"calendar_source_color"`
	// Sequence is the iCalendar SEQUENCE of the new objects.
	Sequence int `json:"sequence"`
}

// Calendar returns the target calendar described by the request.
func (r BulkRequest) Calendar() CalendarSource {
	return CalendarSource{
		ID:    r.CalendarSourceID,
		URI:   r.CalendarSourceURI,
		Name:  r.CalendarSourceName,
		Color: r.CalendarSourceColor,
	}
}
