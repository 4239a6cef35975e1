package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/tazhate/taskcal/internal/domain"
)

type deleteEventRequest struct {
	URL          string        `json:"url"`
	ID           domain.TaskID `json:"id"`
	RecurrenceID string        `json:"recurrence_id,omitempty"`
}

// GetEvents returns CalDAV events between two dates. includeAll also
// returns events of calendars whose display flag is off.
func (c *Client) GetEvents(ctx context.Context, from, to time.Time, includeAll bool) ([]domain.Task, error) {
	q := url.Values{}
	q.Set("start_date", from.Format(domain.DateLayout))
	q.Set("end_date", to.Format(domain.DateLayout))
	if includeAll {
		q.Set("include_all", "true")
	}

	var events []domain.Task
	if err := c.getList(ctx, "/caldav/events/", q, &events); err != nil {
		return nil, fmt.Errorf("get events: %w", err)
	}
	return events, nil
}

// CreateEvent creates one event. Any client-side id is stripped.
func (c *Client) CreateEvent(ctx context.Context, t domain.Task) (domain.Task, error) {
	t.ID = ""
	var created domain.Task
	if err := c.doRequest(ctx, http.MethodPost, "/caldav/events/", nil, t, &created); err != nil {
		return domain.Task{}, fmt.Errorf("create event: %w", err)
	}
	return created, nil
}

// UpdateEvent sends patch for the event current and returns the fields
// the backend echoed. The resource url and recurrence id are always sent
// so the backend can locate the object or occurrence.
func (c *Client) UpdateEvent(ctx context.Context, current domain.Task, patch domain.TaskPatch) (domain.TaskPatch, error) {
	if patch.URL == nil && current.URL != "" {
		u := current.URL
		patch.URL = &u
	}
	if patch.RecurrenceID == nil && current.RecurrenceID != "" {
		rid := current.RecurrenceID
		patch.RecurrenceID = &rid
	}

	var echoed domain.TaskPatch
	path := "/caldav/events/" + url.PathEscape(current.ID.String()) + "/"
	if err := c.doRequest(ctx, http.MethodPut, path, nil, patch, &echoed); err != nil {
		return domain.TaskPatch{}, fmt.Errorf("update event %s: %w", current.ID, err)
	}
	return echoed, nil
}

// DeleteEvent deletes a whole event, or only the occurrence recurrenceID
// when it is set.
func (c *Client) DeleteEvent(ctx context.Context, resourceURL string, id domain.TaskID, recurrenceID string) error {
	req := deleteEventRequest{URL: resourceURL, ID: id, RecurrenceID: recurrenceID}
	if err := c.doRequest(ctx, http.MethodPost, "/caldav/events/delete/", nil, req, nil); err != nil {
		return fmt.Errorf("delete event %s: %w", id, err)
	}
	return nil
}

// BulkCreateEvents creates every occurrence of req in one call.
func (c *Client) BulkCreateEvents(ctx context.Context, req domain.BulkRequest) ([]domain.Task, error) {
	var raw json.RawMessage
	if err := c.doRequest(ctx, http.MethodPost, "/caldav/events/bulk/", nil, req, &raw); err != nil {
		return nil, fmt.Errorf("bulk create events: %w", err)
	}

	var created []domain.Task
	if err := decodeList(raw, &created); err != nil {
		return nil, fmt.Errorf("decode bulk create: %w", err)
	}
	return created, nil
}
