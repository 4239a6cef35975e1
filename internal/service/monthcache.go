package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tazhate/taskcal/internal/domain"
	"github.com/tazhate/taskcal/internal/metrics"
)

const (
	monthKeyLayout = "2006-01"
	// monthPadding days are fetched on both sides of a month so events
	// crossing its boundaries are included.
	monthPadding = 7
)

// FetchFunc loads tasks between two days, both inclusive.
type FetchFunc func(ctx context.Context, from, to time.Time) ([]domain.Task, error)

// MonthCache caches tasks per YYYY-MM key with at most one fetch in
// flight per key.
type MonthCache struct {
	fetch    FetchFunc
	log      logrus.FieldLogger
	metrics  *metrics.Metrics
	prefetch bool

	mu      sync.Mutex
	entries map[string][]domain.Task
	loading map[string]bool

	wg sync.WaitGroup
}

// NewMonthCache creates a month cache. Adjacent months are prefetched in
// the background after each network load.
func NewMonthCache(fetch FetchFunc, log logrus.FieldLogger) *MonthCache {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &MonthCache{
		fetch:    fetch,
		log:      log.WithField("component", "monthcache"),
		prefetch: true,
		entries:  map[string][]domain.Task{},
		loading:  map[string]bool{},
	}
}

// SetPrefetch turns background prefetch of adjacent months on or off.
func (m *MonthCache) SetPrefetch(v bool) {
	m.prefetch = v
}

// SetMetrics enables lookup metrics.
func (m *MonthCache) SetMetrics(mt *metrics.Metrics) {
	m.metrics = mt
}

// MonthKey returns the YYYY-MM key of t.
func MonthKey(t time.Time) string {
	return t.Format(monthKeyLayout)
}

// MonthRange returns the padded fetch range of a month key.
func MonthRange(key string) (time.Time, time.Time, error) {
	first, err := time.ParseInLocation(monthKeyLayout, key, time.Local)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("month key %q: %w", key, err)
	}
	last := first.AddDate(0, 1, -1)
	return first.AddDate(0, 0, -monthPadding), last.AddDate(0, 0, monthPadding), nil
}

// GetOrFetch returns the tasks of month key. A cached month is returned as
// is unless force is set. While a fetch for key is in flight the current
// cached value, possibly nil, is returned instead of starting another.
// Fetch errors are logged and yield nil.
func (m *MonthCache) GetOrFetch(ctx context.Context, key string, force bool) []domain.Task {
	tasks, fetched := m.load(ctx, key, force)
	if fetched && m.prefetch {
		m.prefetchAround(ctx, key)
	}
	return tasks
}

// load returns the month and whether it came from the network.
func (m *MonthCache) load(ctx context.Context, key string, force bool) ([]domain.Task, bool) {
	m.mu.Lock()
	cached, ok := m.entries[key]
	if ok && !force {
		m.mu.Unlock()
		m.metrics.CacheLookup("month", "hit")
		return cloneTasks(cached), false
	}
	if m.loading[key] {
		m.mu.Unlock()
		m.metrics.CacheLookup("month", "inflight")
		return cloneTasks(cached), false
	}
	m.loading[key] = true
	m.mu.Unlock()
	m.metrics.CacheLookup("month", "miss")

	tasks, err := m.fetchMonth(ctx, key)

	m.mu.Lock()
	delete(m.loading, key)
	if err == nil {
		m.entries[key] = tasks
	}
	m.mu.Unlock()

	if err != nil {
		m.log.WithError(err).WithField("month", key).Error("fetch month failed")
		return nil, false
	}
	return cloneTasks(tasks), true
}

func (m *MonthCache) fetchMonth(ctx context.Context, key string) ([]domain.Task, error) {
	from, to, err := MonthRange(key)
	if err != nil {
		return nil, err
	}
	tasks, err := m.fetch(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].StartDate.Before(tasks[j].StartDate.Time)
	})
	return tasks, nil
}

// prefetchAround loads the previous and next month in detached goroutines.
func (m *MonthCache) prefetchAround(ctx context.Context, key string) {
	first, err := time.ParseInLocation(monthKeyLayout, key, time.Local)
	if err != nil {
		return
	}
	detached := context.WithoutCancel(ctx)

	for _, k := range []string{MonthKey(first.AddDate(0, -1, 0)), MonthKey(first.AddDate(0, 1, 0))} {
		m.mu.Lock()
		_, cached := m.entries[k]
		busy := m.loading[k]
		m.mu.Unlock()
		if cached || busy {
			continue
		}

		m.wg.Add(1)
		go func(k string) {
			defer m.wg.Done()
			m.load(detached, k, false)
		}(k)
	}
}

// Wait blocks until background prefetches finish.
func (m *MonthCache) Wait() {
	m.wg.Wait()
}

// Invalidate drops month key.
func (m *MonthCache) Invalidate(key string) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}

// InvalidateDate drops the month of t, and the neighbouring month whose
// padded range also reaches t.
func (m *MonthCache) InvalidateDate(t time.Time) {
	m.Invalidate(MonthKey(t))

	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	if t.Day() <= monthPadding {
		m.Invalidate(MonthKey(first.AddDate(0, -1, 0)))
	}
	if last := first.AddDate(0, 1, -1); last.Day()-t.Day() < monthPadding {
		m.Invalidate(MonthKey(first.AddDate(0, 1, 0)))
	}
}

// Clear drops every month.
func (m *MonthCache) Clear() {
	m.mu.Lock()
	m.entries = map[string][]domain.Task{}
	m.mu.Unlock()
}

// Keys returns the cached month keys in order.
func (m *MonthCache) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Cached returns month key without fetching.
func (m *MonthCache) Cached(key string) ([]domain.Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tasks, ok := m.entries[key]
	return cloneTasks(tasks), ok
}

func cloneTasks(tasks []domain.Task) []domain.Task {
	if tasks == nil {
		return nil
	}
	out := make([]domain.Task, len(tasks))
	copy(out, tasks)
	return out
}
