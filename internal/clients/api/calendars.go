package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/tazhate/taskcal/internal/domain"
)

// CalDAVConfig is the user's CalDAV account as stored by the backend.
type CalDAVConfig struct {
	ServerURL string `json:"server_url"`
	Username  string `json:"username"`
	Enabled   bool   `json:"enabled"`
}

// GetCalendars returns every calendar visible to the user.
func (c *Client) GetCalendars(ctx context.Context) ([]domain.CalendarSource, error) {
	var cals []domain.CalendarSource
	if err := c.getList(ctx, "/caldav/calendars/", nil, &cals); err != nil {
		return nil, fmt.Errorf("get calendars: %w", err)
	}
	return cals, nil
}

// UpdateCalendar patches calendar settings such as the display flag.
func (c *Client) UpdateCalendar(ctx context.Context, id domain.TaskID, patch domain.CalendarPatch) (domain.CalendarSource, error) {
	var cal domain.CalendarSource
	path := "/caldav/calendars/" + url.PathEscape(id.String()) + "/"
	if err := c.doRequest(ctx, http.MethodPatch, path, nil, patch, &cal); err != nil {
		return domain.CalendarSource{}, fmt.Errorf("update calendar %s: %w", id, err)
	}
	return cal, nil
}

// GetCalDAVConfig returns ErrNotConfigured when the backend has no
// account for the user.
func (c *Client) GetCalDAVConfig(ctx context.Context) (CalDAVConfig, error) {
	var cfg CalDAVConfig
	err := c.doRequest(ctx, http.MethodGet, "/caldav/config/", nil, nil, &cfg)
	if errors.Is(err, domain.ErrNotFound) {
		return CalDAVConfig{}, ErrNotConfigured
	}
	if err != nil {
		return CalDAVConfig{}, fmt.Errorf("get caldav config: %w", err)
	}
	return cfg, nil
}

// Sync asks the backend to reconcile with the CalDAV server.
func (c *Client) Sync(ctx context.Context) (domain.SyncStats, error) {
	var resp struct {
		Stats domain.SyncStats `json:"stats"`
	}
	if err := c.doRequest(ctx, http.MethodPost, "/caldav/sync/", nil, nil, &resp); err != nil {
		return domain.SyncStats{}, fmt.Errorf("sync: %w", err)
	}
	return resp.Stats, nil
}
