package caldav

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tazhate/taskcal/internal/domain"
)

const (
	// Apple iCloud CalDAV endpoint
	DefaultiCloudURL = "https://caldav.icloud.com"
)

// Client talks to a CalDAV server directly. It serves the same operations
// as the REST backend; display toggles and renames are kept client-side
// because CalDAV has no per-user display flag.
type Client struct {
	baseURL    string
	username   string
	password   string
	calendarID string // Optional: default calendar for new events
	loc        *time.Location
	log        logrus.FieldLogger
	now        func() time.Time
	transport  http.RoundTripper

	mu        sync.Mutex
	client    *caldav.Client
	calendars []domain.CalendarSource
	overrides map[domain.TaskID]domain.CalendarPatch
}

// NewClient creates a new CalDAV client
func NewClient(baseURL, username, password string, log logrus.FieldLogger) *Client {
	if baseURL == "" {
		baseURL = DefaultiCloudURL
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{
		baseURL:   baseURL,
		username:  username,
		password:  password,
		loc:       time.Local,
		log:       log.WithField("component", "caldav"),
		now:       time.Now,
		transport: http.DefaultTransport,
		overrides: map[domain.TaskID]domain.CalendarPatch{},
	}
}

// IsConfigured returns true if the client has credentials
func (c *Client) IsConfigured() bool {
	return c.username != "" && c.password != ""
}

// SetCalendarID sets the calendar new events go to when none is given.
func (c *Client) SetCalendarID(id string) {
	c.calendarID = id
}

// SetLocation sets the zone floating times are read and written in.
func (c *Client) SetLocation(loc *time.Location) {
	if loc != nil {
		c.loc = loc
	}
}

// SetTransport replaces the HTTP transport basic auth is layered on.
func (c *Client) SetTransport(rt http.RoundTripper) {
	c.transport = rt
}

// connect establishes connection to CalDAV server
func (c *Client) connect() (*caldav.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return c.client, nil
	}

	httpClient := &http.Client{
		Transport: &basicAuthTransport{
			username: c.username,
			password: c.password,
			next:     c.transport,
		},
		Timeout: 30 * time.Second,
	}

	client, err := caldav.NewClient(httpClient, c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to CalDAV: %w", err)
	}

	c.client = client
	return client, nil
}

// basicAuthTransport adds Basic Auth to HTTP requests
type basicAuthTransport struct {
	username string
	password string
	next     http.RoundTripper
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.SetBasicAuth(t.username, t.password)
	return t.next.RoundTrip(req)
}

// discover returns all calendars for the user
func (c *Client) discover(ctx context.Context) ([]domain.CalendarSource, error) {
	client, err := c.connect()
	if err != nil {
		return nil, err
	}

	principal, err := client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return nil, fmt.Errorf("find principal: %w", err)
	}

	homeSet, err := client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("find home set: %w", err)
	}

	cals, err := client.FindCalendars(ctx, homeSet)
	if err != nil {
		return nil, fmt.Errorf("find calendars: %w", err)
	}

	result := make([]domain.CalendarSource, 0, len(cals))
	for _, cal := range cals {
		if !supportsEvents(cal.SupportedComponentSet) {
			continue
		}
		result = append(result, domain.CalendarSource{
			ID:          domain.TaskID(cal.Path),
			Name:        cal.Name,
			Description: cal.Description,
			URI:         cal.Path,
			Display:     true,
			IsOwner:     strings.HasPrefix(cal.Path, homeSet),
		})
	}
	return result, nil
}

func supportsEvents(comps []string) bool {
	if len(comps) == 0 {
		return true
	}
	for _, name := range comps {
		if name == ical.CompEvent {
			return true
		}
	}
	return false
}

// GetCalendars returns the discovered calendars with local display
// settings applied. Discovery runs once until Sync.
func (c *Client) GetCalendars(ctx context.Context) ([]domain.CalendarSource, error) {
	c.mu.Lock()
	cached := c.calendars
	c.mu.Unlock()

	if cached == nil {
		found, err := c.discover(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.calendars = found
		cached = found
		c.mu.Unlock()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.CalendarSource, len(cached))
	for i, cal := range cached {
		if patch, ok := c.overrides[cal.ID]; ok {
			cal = patch.Apply(cal)
		}
		out[i] = cal
	}
	return out, nil
}

// UpdateCalendar records a display toggle or rename for a calendar.
func (c *Client) UpdateCalendar(ctx context.Context, id domain.TaskID, patch domain.CalendarPatch) (domain.CalendarSource, error) {
	cals, err := c.GetCalendars(ctx)
	if err != nil {
		return domain.CalendarSource{}, err
	}
	for _, cal := range cals {
		if cal.ID != id {
			continue
		}
		c.mu.Lock()
		c.overrides[id] = c.overrides[id].Merge(patch)
		c.mu.Unlock()
		return patch.Apply(cal), nil
	}
	return domain.CalendarSource{}, fmt.Errorf("calendar %s: %w", id, domain.ErrNotFound)
}

// GetEvents returns occurrences between from and to (inclusive days) from
// every displayed calendar, or every calendar when includeAll is set.
func (c *Client) GetEvents(ctx context.Context, from, to time.Time, includeAll bool) ([]domain.Task, error) {
	client, err := c.connect()
	if err != nil {
		return nil, err
	}
	cals, err := c.GetCalendars(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, c.loc)
	end := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, c.loc).AddDate(0, 0, 1)

	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:     ical.CompCalendar,
			AllProps: true,
			AllComps: true,
		},
		CompFilter: caldav.CompFilter{
			Name: ical.CompCalendar,
			Comps: []caldav.CompFilter{
				{
					Name:  ical.CompEvent,
					Start: start.UTC(),
					End:   end.UTC(),
				},
			},
		},
	}

	var tasks []domain.Task
	for _, cal := range cals {
		if !cal.Display && !includeAll {
			continue
		}

		objects, err := client.QueryCalendar(ctx, cal.URI, query)
		if err != nil {
			return nil, fmt.Errorf("query calendar %s: %w", cal.Name, err)
		}

		for _, obj := range objects {
			if obj.Data == nil {
				continue
			}
			expanded, err := expandCalendar(obj.Data, start, end.Add(-time.Second), c.loc)
			if err != nil {
				c.log.WithError(err).WithField("path", obj.Path).Warn("skipping calendar object")
				continue
			}
			for _, t := range expanded {
				t.URL = obj.Path
				tasks = append(tasks, t.WithCalendar(cal))
			}
		}
	}

	sortTasks(tasks)
	return tasks, nil
}

// calendarFor resolves the calendar a new event goes to.
func (c *Client) calendarFor(ctx context.Context, t domain.Task) (domain.CalendarSource, error) {
	want := t.CalendarSourceURI
	if want == "" {
		want = t.CalendarSourceID.String()
	}
	if want == "" {
		want = c.calendarID
	}

	cals, err := c.GetCalendars(ctx)
	if err != nil {
		return domain.CalendarSource{}, err
	}
	for _, cal := range cals {
		if want == "" || cal.URI == want || cal.ID.String() == want {
			return cal, nil
		}
	}
	return domain.CalendarSource{}, fmt.Errorf("calendar %q: %w", want, domain.ErrNotFound)
}

func objectPath(calendarPath, uid string) string {
	if !strings.HasSuffix(calendarPath, "/") {
		calendarPath += "/"
	}
	return calendarPath + uid + ".ics"
}

// CreateEvent creates a new event in the calendar
func (c *Client) CreateEvent(ctx context.Context, t domain.Task) (domain.Task, error) {
	client, err := c.connect()
	if err != nil {
		return domain.Task{}, err
	}
	cal, err := c.calendarFor(ctx, t)
	if err != nil {
		return domain.Task{}, err
	}

	uid := uuid.NewString()
	path := objectPath(cal.URI, uid)
	if _, err := client.PutCalendarObject(ctx, path, newCalendar(uid, t, nil, 0, c.now())); err != nil {
		return domain.Task{}, fmt.Errorf("create event: %w", err)
	}

	t.ID = domain.TaskID(uid)
	t.URL = path
	t.RecurrenceID = ""
	return t.WithCalendar(cal), nil
}

// UpdateEvent applies patch to the object at current.URL. For an
// occurrence of a recurring event only that occurrence is overridden.
func (c *Client) UpdateEvent(ctx context.Context, current domain.Task, patch domain.TaskPatch) (domain.TaskPatch, error) {
	client, err := c.connect()
	if err != nil {
		return domain.TaskPatch{}, err
	}
	if current.URL == "" {
		return domain.TaskPatch{}, fmt.Errorf("update event %s: missing url", current.ID)
	}

	obj, err := client.GetCalendarObject(ctx, current.URL)
	if err != nil {
		return domain.TaskPatch{}, fmt.Errorf("get event: %w", err)
	}

	var comp *ical.Component
	if current.RecurrenceID != "" {
		comp, err = overrideFor(obj.Data, current.RecurrenceID, c.loc, c.now())
		if err != nil {
			return domain.TaskPatch{}, fmt.Errorf("update occurrence: %w", err)
		}
	} else {
		comp = findEvent(obj.Data, "", c.loc)
		if comp == nil {
			return domain.TaskPatch{}, fmt.Errorf("update event %s: no VEVENT", current.ID)
		}
	}
	writeTask(comp, patch.Apply(current))
	comp.Props.SetDateTime(ical.PropDateTimeStamp, c.now().UTC())

	if _, err := client.PutCalendarObject(ctx, current.URL, obj.Data); err != nil {
		return domain.TaskPatch{}, fmt.Errorf("update event: %w", err)
	}
	return patch, nil
}

// DeleteEvent removes the whole object, or excludes one occurrence when
// recurrenceID is set.
func (c *Client) DeleteEvent(ctx context.Context, url string, id domain.TaskID, recurrenceID string) error {
	client, err := c.connect()
	if err != nil {
		return err
	}
	if url == "" {
		return fmt.Errorf("delete event %s: missing url", id)
	}

	if recurrenceID == "" {
		if err := client.RemoveAll(ctx, url); err != nil {
			return fmt.Errorf("delete event: %w", err)
		}
		return nil
	}

	obj, err := client.GetCalendarObject(ctx, url)
	if err != nil {
		return fmt.Errorf("get event: %w", err)
	}
	if err := excludeOccurrence(obj.Data, recurrenceID, c.loc); err != nil {
		return fmt.Errorf("delete occurrence: %w", err)
	}
	if _, err := client.PutCalendarObject(ctx, url, obj.Data); err != nil {
		return fmt.Errorf("delete occurrence: %w", err)
	}
	return nil
}

// BulkCreateEvents stores every occurrence of req as a single object: the
// first event is DTSTART, the others are RDATE values.
func (c *Client) BulkCreateEvents(ctx context.Context, req domain.BulkRequest) ([]domain.Task, error) {
	if len(req.Events) == 0 {
		return nil, nil
	}
	client, err := c.connect()
	if err != nil {
		return nil, err
	}

	target := domain.Task{}.WithCalendar(req.Calendar())
	cal, err := c.calendarFor(ctx, target)
	if err != nil {
		return nil, err
	}

	first := req.Events[0]
	anchor := domain.Task{
		Title:       first.Title,
		Description: first.Description,
		Location:    first.Location,
		StartDate:   first.StartDate,
		EndDate:     first.EndDate,
	}
	rdates := make([]time.Time, 0, len(req.Events)-1)
	for _, ev := range req.Events[1:] {
		rdates = append(rdates, ev.StartDate.Time)
	}

	uid := uuid.NewString()
	path := objectPath(cal.URI, uid)
	if _, err := client.PutCalendarObject(ctx, path, newCalendar(uid, anchor, rdates, req.Sequence, c.now())); err != nil {
		return nil, fmt.Errorf("bulk create events: %w", err)
	}

	duration := anchor.Duration()
	created := make([]domain.Task, 0, len(req.Events))
	for _, ev := range req.Events {
		rid := ""
		if len(req.Events) > 1 {
			rid = ev.StartDate.String()
		}
		t := domain.Task{
			ID:           occurrenceID(uid, rid),
			Title:        anchor.Title,
			Description:  anchor.Description,
			Location:     anchor.Location,
			StartDate:    ev.StartDate,
			EndDate:      domain.NewLocalTime(ev.StartDate.Add(duration)),
			RecurrenceID: rid,
			URL:          path,
			ClientID:     ev.ClientID,
			AffairID:     ev.AffairID,
		}
		created = append(created, t.WithCalendar(cal))
	}
	return created, nil
}

// Sync drops the connection and calendar list so the next call
// rediscovers the account. Local display settings are kept.
func (c *Client) Sync(ctx context.Context) (domain.SyncStats, error) {
	c.mu.Lock()
	c.client = nil
	c.calendars = nil
	c.mu.Unlock()

	cals, err := c.GetCalendars(ctx)
	if err != nil {
		return domain.SyncStats{}, err
	}
	return domain.SyncStats{Pulled: len(cals)}, nil
}
