package domain

import "strings"

// CalendarSource is a CalDAV calendar collection a task belongs to.
type CalendarSource struct {
	ID          TaskID `json:"id"`
	Name        string `json:"name"`
	Color       string `json:"color,omitempty"`
	Description string `json:"description,omitempty"`
	URI         string `json:"uri,omitempty"`
	Display     bool   `json:"display"`
	OwnerID     *int64 `json:"user,omitempty"`
	IsOwner     bool   `json:"is_owner"`
}

// IsResource reports whether the calendar books a resource (room, car...)
// rather than a person's agenda.
func (c CalendarSource) IsResource() bool {
	return strings.Contains(strings.ToLower(c.Description), "resource")
}

// IsShared reports whether the calendar belongs to another user.
func (c CalendarSource) IsShared() bool {
	return !c.IsOwner
}

// CalendarPatch changes calendar settings.
type CalendarPatch struct {
	Display *bool   `json:"display,omitempty"`
	Name    *string `json:"name,omitempty"`
	Color   *string `json:"color,omitempty"`
}

// Apply merges the non-nil fields of p into c.
func (p CalendarPatch) Apply(c CalendarSource) CalendarSource {
	if p.Display != nil {
		c.Display = *p.Display
	}
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Color != nil {
		c.Color = *p.Color
	}
	return c
}

// Merge returns a patch with q's fields layered over p's.
func (p CalendarPatch) Merge(q CalendarPatch) CalendarPatch {
	if q.Display != nil {
		p.Display = q.Display
	}
	if q.Name != nil {
		p.Name = q.Name
	}
	if q.Color != nil {
		p.Color = q.Color
	}
	return p
}

// SyncStats is the result of a full backend sync.
type SyncStats struct {
	Pushed int `json:"pushed"`
	Pulled int `json:"pulled"`
}

// Client is a CRM client that tasks may be linked to.
type Client struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Affair is a CRM case ("affaire") that tasks may be linked to.
type Affair struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	ClientID *int64 `json:"client_id,omitempty"`
}
