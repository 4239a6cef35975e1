package scheduler

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tazhate/taskcal/config"
	"github.com/tazhate/taskcal/internal/domain"
)

type mockSyncer struct {
	mu       sync.Mutex
	calls    int
	syncFunc func(ctx context.Context) (domain.SyncStats, error)
}

func (m *mockSyncer) Sync(ctx context.Context) (domain.SyncStats, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.syncFunc != nil {
		return m.syncFunc(ctx)
	}
	return domain.SyncStats{}, errors.New("not implemented")
}

type mockMonths struct {
	keys   []string
	forced []bool
}

func (m *mockMonths) GetOrFetch(_ context.Context, key string, force bool) []domain.Task {
	m.keys = append(m.keys, key)
	m.forced = append(m.forced, force)
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	tz, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)
	return &config.Config{
		Timezone:        tz,
		SyncSchedule:    "*/15 * * * *",
		RefreshSchedule: "0 * * * *",
	}
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestScheduler_RunSync(t *testing.T) {
	syncer := &mockSyncer{
		syncFunc: func(ctx context.Context) (domain.SyncStats, error) {
			_, hasDeadline := ctx.Deadline()
			assert.True(t, hasDeadline)
			return domain.SyncStats{Pushed: 2}, nil
		},
	}
	s := New(testConfig(t), syncer, quietLogger())

	s.runSync()
	assert.Equal(t, 1, syncer.calls)

	// errors are only logged
	syncer.syncFunc = nil
	s.runSync()
	assert.Equal(t, 2, syncer.calls)
}

func TestScheduler_RefreshMonth(t *testing.T) {
	cfg := testConfig(t)
	months := &mockMonths{}
	s := New(cfg, &mockSyncer{}, quietLogger())
	s.SetMonths(months)
	// 23:30 UTC on Jan 31 is already February in Paris
	s.now = func() time.Time { return time.Date(2024, 1, 31, 23, 30, 0, 0, time.UTC) }

	s.refreshMonth()
	assert.Equal(t, []string{"2024-02"}, months.keys)
	assert.Equal(t, []bool{true}, months.forced)
}

func TestScheduler_Start(t *testing.T) {
	t.Run("registers jobs until cancelled", func(t *testing.T) {
		s := New(testConfig(t), &mockSyncer{}, quietLogger())
		s.SetMonths(&mockMonths{})

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- s.Start(ctx) }()

		require.Eventually(t, func() bool { return len(s.cron.Entries()) == 2 }, time.Second, 10*time.Millisecond)
		cancel()
		assert.NoError(t, <-done)
		s.Stop()
	})

	t.Run("invalid schedule", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.SyncSchedule = "every now and then"
		s := New(cfg, &mockSyncer{}, quietLogger())

		err := s.Start(context.Background())
		assert.ErrorContains(t, err, "add sync job")
	})
}
