package caldav

import (
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tazhate/taskcal/internal/domain"
)

const (
	calendarPath = "/calendars/work/"
	seriesPath   = calendarPath + "series.ics"
)

var seriesICS = strings.Join([]string{
	"BEGIN:VCALENDAR",
	"VERSION:2.0",
	"PRODID:-//test//EN",
	"BEGIN:VEVENT",
	"UID:series",
	"DTSTAMP:20240101T000000Z",
	"SUMMARY:Standup",
	"DTSTART:20240101T090000",
	"DTEND:20240101T091500",
	"RRULE:FREQ=WEEKLY;COUNT=4",
	"EXDATE:20240115T090000",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:series",
	"DTSTAMP:20240101T000000Z",
	"RECURRENCE-ID:20240108T090000",
	"SUMMARY:Standup (moved)",
	"DTSTART:20240108T100000",
	"DTEND:20240108T101500",
	"END:VEVENT",
	"END:VCALENDAR",
}, "\r\n") + "\r\n"

// fakeCalDAV serves one account with a single event calendar and keeps
// calendar objects in memory.
type fakeCalDAV struct {
	mu      sync.Mutex
	objects map[string]string
	puts    []string
	deletes []string
	users   []string
}

func (f *fakeCalDAV) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	defer f.mu.Unlock()
	if user, _, ok := r.BasicAuth(); ok {
		f.users = append(f.users, user)
	}

	switch r.Method {
	case "PROPFIND":
		switch {
		case bytes.Contains(body, []byte("current-user-principal")):
			writeMultiStatus(w, davResponse("/",
				`<d:current-user-principal><d:href>/principal/</d:href></d:current-user-principal>`))
		case bytes.Contains(body, []byte("calendar-home-set")):
			writeMultiStatus(w, davResponse("/principal/",
				`<c:calendar-home-set><d:href>/calendars/</d:href></c:calendar-home-set>`))
		default:
			writeMultiStatus(w,
				davResponse("/calendars/", `<d:resourcetype><d:collection/></d:resourcetype>`),
				davResponse(calendarPath, `<d:resourcetype><d:collection/><c:calendar/></d:resourcetype>`+
					`<d:displayname>Work</d:displayname>`+
					`<c:supported-calendar-component-set><c:comp name="VEVENT"/></c:supported-calendar-component-set>`),
				davResponse("/calendars/todo/", `<d:resourcetype><d:collection/><c:calendar/></d:resourcetype>`+
					`<d:displayname>Todo</d:displayname>`+
					`<c:supported-calendar-component-set><c:comp name="VTODO"/></c:supported-calendar-component-set>`),
			)
		}

	case "REPORT":
		paths := make([]string, 0, len(f.objects))
		for path := range f.objects {
			if strings.HasPrefix(path, r.URL.Path) {
				paths = append(paths, path)
			}
		}
		sort.Strings(paths)
		responses := make([]string, len(paths))
		for i, path := range paths {
			var data bytes.Buffer
			_ = xml.EscapeText(&data, []byte(f.objects[path]))
			responses[i] = davResponse(path, `<c:calendar-data>`+data.String()+`</c:calendar-data>`)
		}
		writeMultiStatus(w, responses...)

	case http.MethodGet:
		data, ok := f.objects[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
		io.WriteString(w, data)

	case http.MethodPut:
		f.objects[r.URL.Path] = string(body)
		f.puts = append(f.puts, r.URL.Path)
		w.WriteHeader(http.StatusCreated)

	case http.MethodDelete:
		if _, ok := f.objects[r.URL.Path]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		delete(f.objects, r.URL.Path)
		f.deletes = append(f.deletes, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeCalDAV) object(path string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[path]
	return data, ok
}

func (f *fakeCalDAV) putPaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.puts...)
}

func (f *fakeCalDAV) deletedPaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deletes...)
}

func (f *fakeCalDAV) authUsers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.users...)
}

func writeMultiStatus(w http.ResponseWriter, responses ...string) {
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusMultiStatus)
	io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?>`+
		`<d:multistatus xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav">`+
		strings.Join(responses, "")+
		`</d:multistatus>`)
}

func davResponse(href, props string) string {
	return `<d:response><d:href>` + href + `</d:href><d:propstat><d:prop>` + props +
		`</d:prop><d:status>HTTP/1.1 200 OK</d:status></d:propstat></d:response>`
}

func newTestClient(t *testing.T, objects map[string]string) (*Client, *fakeCalDAV) {
	t.Helper()
	if objects == nil {
		objects = map[string]string{}
	}
	fake := &fakeCalDAV{objects: objects}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	log := logrus.New()
	log.SetOutput(io.Discard)

	c := NewClient(srv.URL, "alice", "secret", log)
	c.SetLocation(time.UTC)
	c.now = func() time.Time { return utc(2024, 1, 1, 12, 0) }
	return c, fake
}

func january(t *testing.T, c *Client) []domain.Task {
	t.Helper()
	tasks, err := c.GetEvents(context.Background(), utc(2024, 1, 1, 0, 0), utc(2024, 1, 31, 0, 0), false)
	require.NoError(t, err)
	return tasks
}

func TestClient_GetCalendars(t *testing.T) {
	c, fake := newTestClient(t, nil)

	cals, err := c.GetCalendars(context.Background())
	require.NoError(t, err)
	require.Len(t, cals, 1, "calendars without VEVENT are skipped")
	assert.Equal(t, "Work", cals[0].Name)
	assert.Equal(t, calendarPath, cals[0].URI)
	assert.True(t, cals[0].Display)
	assert.True(t, cals[0].IsOwner)

	assert.Contains(t, fake.authUsers(), "alice")
}

func TestClient_GetEvents(t *testing.T) {
	c, _ := newTestClient(t, map[string]string{seriesPath: seriesICS})

	tasks := january(t, c)
	assert.Equal(t, []string{
		"series_2024-01-01T09:00:00",
		"series_2024-01-08T09:00:00",
		"series_2024-01-22T09:00:00",
	}, ids(tasks))
	for _, task := range tasks {
		assert.Equal(t, seriesPath, task.URL)
		assert.Equal(t, calendarPath, task.CalendarSourceURI)
	}
}

func TestClient_DeleteOccurrence(t *testing.T) {
	c, fake := newTestClient(t, map[string]string{seriesPath: seriesICS})
	ctx := context.Background()

	tasks := january(t, c)
	require.Len(t, tasks, 3)
	last := tasks[2]

	require.NoError(t, c.DeleteEvent(ctx, last.URL, last.ID, last.RecurrenceID))

	assert.Equal(t, []string{seriesPath}, fake.putPaths())
	assert.Empty(t, fake.deletedPaths(), "an occurrence is excluded, not removed")
	stored, ok := fake.object(seriesPath)
	require.True(t, ok)
	assert.Contains(t, stored, "20240122T090000")
	assert.Contains(t, stored, "EXDATE")

	assert.Equal(t, []string{
		"series_2024-01-01T09:00:00",
		"series_2024-01-08T09:00:00",
	}, ids(january(t, c)))
}

func TestClient_DeleteOccurrenceDropsOverride(t *testing.T) {
	c, fake := newTestClient(t, map[string]string{seriesPath: seriesICS})

	moved := january(t, c)[1]
	require.Equal(t, "Standup (moved)", moved.Title)

	require.NoError(t, c.DeleteEvent(context.Background(), moved.URL, moved.ID, moved.RecurrenceID))

	stored, _ := fake.object(seriesPath)
	assert.NotContains(t, stored, "RECURRENCE-ID")
	assert.NotContains(t, stored, "Standup (moved)")
	assert.Equal(t, []string{
		"series_2024-01-01T09:00:00",
		"series_2024-01-22T09:00:00",
	}, ids(january(t, c)))
}

func TestClient_DeleteWholeEvent(t *testing.T) {
	c, fake := newTestClient(t, map[string]string{seriesPath: seriesICS})

	require.NoError(t, c.DeleteEvent(context.Background(), seriesPath, "series", ""))

	assert.Equal(t, []string{seriesPath}, fake.deletedPaths())
	_, ok := fake.object(seriesPath)
	assert.False(t, ok)
	assert.Empty(t, january(t, c))
}

func TestClient_DeleteEventMissingURL(t *testing.T) {
	c, fake := newTestClient(t, nil)

	err := c.DeleteEvent(context.Background(), "", "series", "")
	require.Error(t, err)
	assert.Empty(t, fake.deletedPaths())
}

func TestClient_CreateEvent(t *testing.T) {
	c, fake := newTestClient(t, nil)
	ctx := context.Background()

	created, err := c.CreateEvent(ctx, domain.Task{
		Title:     "Dentist",
		Location:  "Rue de la Paix",
		StartDate: domain.NewLocalTime(utc(2024, 1, 10, 14, 0)),
		EndDate:   domain.NewLocalTime(utc(2024, 1, 10, 15, 30)),
	})
	require.NoError(t, err)

	require.Len(t, fake.putPaths(), 1)
	assert.Equal(t, fake.putPaths()[0], created.URL)
	assert.True(t, strings.HasPrefix(created.URL, calendarPath))
	assert.Equal(t, calendarPath+created.ID.String()+".ics", created.URL)
	assert.Empty(t, created.RecurrenceID)
	assert.Equal(t, calendarPath, created.CalendarSourceURI)

	stored, _ := fake.object(created.URL)
	assert.Contains(t, stored, "UID:"+created.ID.String())
	assert.Contains(t, stored, "SUMMARY:Dentist")

	tasks := january(t, c)
	require.Len(t, tasks, 1)
	assert.Equal(t, created.ID, tasks[0].ID)
	assert.Equal(t, "2024-01-10T14:00:00", tasks[0].StartDate.String())
	assert.Equal(t, "2024-01-10T15:30:00", tasks[0].EndDate.String())
}

func TestClient_CreateEventUnknownCalendar(t *testing.T) {
	c, fake := newTestClient(t, nil)

	_, err := c.CreateEvent(context.Background(), domain.Task{
		Title:             "Dentist",
		StartDate:         domain.NewLocalTime(utc(2024, 1, 10, 14, 0)),
		CalendarSourceURI: "/calendars/missing/",
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, fake.putPaths())
}

func TestClient_UpdateOccurrence(t *testing.T) {
	c, fake := newTestClient(t, map[string]string{seriesPath: seriesICS})

	last := january(t, c)[2]
	title := "Retro"
	_, err := c.UpdateEvent(context.Background(), last, domain.TaskPatch{Title: &title})
	require.NoError(t, err)

	stored, _ := fake.object(seriesPath)
	assert.Contains(t, stored, "RECURRENCE-ID")
	assert.Contains(t, stored, "20240122T090000")

	tasks := january(t, c)
	require.Len(t, tasks, 3)
	assert.Equal(t, "Standup", tasks[0].Title)
	assert.Equal(t, "Retro", tasks[2].Title)
	assert.Equal(t, last.ID, tasks[2].ID)
}

func TestClient_BulkCreateEvents(t *testing.T) {
	c, fake := newTestClient(t, nil)

	events := []domain.BulkEvent{
		{Title: "Yoga", StartDate: domain.NewLocalTime(utc(2024, 1, 3, 18, 0)), EndDate: domain.NewLocalTime(utc(2024, 1, 3, 19, 0))},
		{Title: "Yoga", StartDate: domain.NewLocalTime(utc(2024, 1, 12, 18, 0)), EndDate: domain.NewLocalTime(utc(2024, 1, 12, 19, 0))},
		{Title: "Yoga", StartDate: domain.NewLocalTime(utc(2024, 1, 25, 18, 0)), EndDate: domain.NewLocalTime(utc(2024, 1, 25, 19, 0))},
	}
	created, err := c.BulkCreateEvents(context.Background(), domain.BulkRequest{
		Events:            events,
		CalendarSourceURI: calendarPath,
	})
	require.NoError(t, err)
	require.Len(t, created, 3)

	require.Len(t, fake.putPaths(), 1, "all occurrences share one object")
	stored, _ := fake.object(fake.putPaths()[0])
	assert.Contains(t, stored, "RDATE")
	assert.Contains(t, stored, "20240112T180000,20240125T180000")

	for i, task := range created {
		assert.Equal(t, fake.putPaths()[0], task.URL)
		assert.Equal(t, events[i].StartDate.String(), task.RecurrenceID)
		assert.Equal(t, time.Hour, task.Duration())
	}

	fetched := january(t, c)
	assert.Equal(t, ids(created), ids(fetched))
}

func TestClient_BulkCreateEventsEmpty(t *testing.T) {
	c, fake := newTestClient(t, nil)

	created, err := c.BulkCreateEvents(context.Background(), domain.BulkRequest{})
	require.NoError(t, err)
	assert.Nil(t, created)
	assert.Empty(t, fake.putPaths())
}
