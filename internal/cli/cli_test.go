package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend is a minimal REST backend holding one calendar and one event.
type fakeBackend struct {
	mu       sync.Mutex
	requests []string
	updates  []map[string]interface{}
	deletes  []map[string]interface{}
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)

	w.Header().Set("Content-Type", "application/json")
	body, _ := io.ReadAll(r.Body)

	switch {
	case r.URL.Path == "/caldav/calendars/":
		io.WriteString(w, `[{"id":"cal-1","name":"Équipe","color":"#3366ff","display":true,"is_owner":true},
			{"id":"cal-2","name":"Salle B","description":"Resource room","display":true}]`)
	case r.URL.Path == "/caldav/events/" && r.Method == http.MethodGet:
		io.WriteString(w, `{"results":[{"id":"10","title":"Client call",
			"start_date":"2024-03-12T14:00:00","end_date":"2024-03-12T15:30:00",
			"url":"/cal/team/10.ics","calendar_source_id":"cal-1","calendar_source_name":"Équipe"}]}`)
	case r.URL.Path == "/caldav/events/10/" && r.Method == http.MethodPut:
		var m map[string]interface{}
		json.Unmarshal(body, &m)
		f.updates = append(f.updates, m)
		w.Write(body)
	case r.URL.Path == "/caldav/events/delete/":
		var m map[string]interface{}
		json.Unmarshal(body, &m)
		f.deletes = append(f.deletes, m)
		io.WriteString(w, `{}`)
	case r.URL.Path == "/caldav/sync/":
		io.WriteString(w, `{"stats":{"pushed":0,"pulled":3}}`)
	default:
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"detail":"Not found."}`)
	}
}

func setup(t *testing.T) *fakeBackend {
	t.Helper()
	fake := &fakeBackend{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	t.Setenv("TASKCAL_BACKEND", "rest")
	t.Setenv("TASKCAL_API_URL", srv.URL)
	t.Setenv("TASKCAL_PREFETCH", "false")
	t.Setenv("DATABASE_PATH", filepath.Join(t.TempDir(), "taskcal.db"))
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("LOG_LEVEL", "panic")
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	return fake
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCLI_CalendarsAndEvents(t *testing.T) {
	fake := setup(t)

	out, err := run(t, "calendars", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Équipe")
	assert.Contains(t, out, "Salle B")

	out, err = run(t, "calendars", "resources")
	require.NoError(t, err)
	assert.Contains(t, out, "Salle B")
	assert.NotContains(t, out, "Équipe")

	out, err = run(t, "events", "list", "--from", "2024-03-01", "--to", "2024-03-31")
	require.NoError(t, err)
	assert.Contains(t, out, "Client call")
	assert.Contains(t, out, "14:00-15:30")

	// the second run is served from the saved session
	_, err = run(t, "events", "list", "--from", "2024-03-10", "--to", "2024-03-15")
	require.NoError(t, err)
	var gets int
	for _, r := range fake.requests {
		if r == "GET /caldav/events/" {
			gets++
		}
	}
	assert.Equal(t, 1, gets)

	out, err = run(t, "events", "move", "10", "2024-03-20")
	require.NoError(t, err)
	assert.Contains(t, out, "14:00-15:30")
	require.Len(t, fake.updates, 1)
	assert.Equal(t, "2024-03-20T14:00:00", fake.updates[0]["start_date"])
	assert.Equal(t, "2024-03-20T15:30:00", fake.updates[0]["end_date"])
	assert.Equal(t, "/cal/team/10.ics", fake.updates[0]["url"])

	out, err = run(t, "events", "delete", "10")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted 10")
	require.Len(t, fake.deletes, 1)
	assert.Equal(t, "10", fake.deletes[0]["id"])

	_, err = run(t, "events", "move", "10", "2024-03-21")
	assert.ErrorContains(t, err, "not cached")
}

func TestCLI_SyncJSON(t *testing.T) {
	setup(t)

	out, err := run(t, "--json", "sync")
	require.NoError(t, err)

	var stats struct {
		Pushed int `json:"pushed"`
		Pulled int `json:"pulled"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 3, stats.Pulled)
}

func TestCLI_Errors(t *testing.T) {
	setup(t)

	_, err := run(t, "month", "march")
	assert.ErrorContains(t, err, "month must look like")

	_, err = run(t, "calendars", "config")
	require.NoError(t, err)

	out, err := run(t, "events", "edit", "nope", "--title", "x")
	assert.Error(t, err)
	assert.True(t, strings.Contains(out, "not cached") || strings.Contains(err.Error(), "not cached"))

	_, err = run(t, "login", "--username", "marie")
	assert.ErrorContains(t, err, "password")
}
