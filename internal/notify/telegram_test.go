package notify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tazhate/taskcal/internal/domain"
	"github.com/tazhate/taskcal/internal/service"
)

type sentMessage struct {
	chatID    string
	text      string
	parseMode string
}

// fakeBotAPI answers getMe and records sendMessage calls.
type fakeBotAPI struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, "/getMe"):
		io.WriteString(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"taskcal","username":"taskcal_bot"}}`)
	case strings.HasSuffix(r.URL.Path, "/sendMessage"):
		_ = r.ParseForm()
		f.mu.Lock()
		f.sent = append(f.sent, sentMessage{
			chatID:    r.PostForm.Get("chat_id"),
			text:      r.PostForm.Get("text"),
			parseMode: r.PostForm.Get("parse_mode"),
		})
		f.mu.Unlock()
		io.WriteString(w, `{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"},"text":"ok"}}`)
	default:
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"ok":false,"error_code":404,"description":"Not Found"}`)
	}
}

func newTestTelegram(t *testing.T) (*Telegram, *fakeBotAPI) {
	t.Helper()
	fake := &fakeBotAPI{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	log := logrus.New()
	log.SetOutput(io.Discard)

	tg, err := NewTelegramWithEndpoint("123:abc", srv.URL+"/bot%s/%s", 42, log)
	require.NoError(t, err)
	return tg, fake
}

func TestTelegram_Notify(t *testing.T) {
	tg, fake := newTestTelegram(t)

	require.NoError(t, tg.Notify(context.Background(), "Sync completed: 1 pushed, 4 pulled"))

	require.Len(t, fake.sent, 1)
	assert.Equal(t, "42", fake.sent[0].chatID)
	assert.Equal(t, "Sync completed: 1 pushed, 4 pulled", fake.sent[0].text)
	assert.Equal(t, "HTML", fake.sent[0].parseMode)
}

func TestTelegram_Observe(t *testing.T) {
	tg, fake := newTestTelegram(t)

	tg.Observe(service.OpMove, service.Outcome{Phase: service.PhasePending, Task: domain.Task{ID: "1"}})
	tg.Observe(service.OpMove, service.Outcome{Phase: service.PhaseCommitted, Task: domain.Task{ID: "1"}})
	assert.Empty(t, fake.sent)

	tg.Observe(service.OpMove, service.Outcome{
		Phase: service.PhaseFailed,
		Task:  domain.Task{ID: "1", Title: "R&D <review>"},
		Err:   errors.New("API error 409: conflict"),
	})

	require.Len(t, fake.sent, 1)
	text := fake.sent[0].text
	assert.Contains(t, text, "<b>move failed</b>")
	assert.Contains(t, text, "R&amp;D &lt;review&gt;")
	assert.Contains(t, text, "API error 409: conflict")
}

func TestNewTelegram_BadToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"ok":false,"error_code":401,"description":"Unauthorized"}`)
	}))
	defer srv.Close()

	_, err := NewTelegramWithEndpoint("bad", srv.URL+"/bot%s/%s", 42, nil)
	assert.Error(t, err)
}
