package service

import (
	"context"
	"time"

	"github.com/tazhate/taskcal/internal/domain"
)

// Events returns the tasks between the days of start and end, both
// inclusive. A range already covered by one earlier fetch is answered from
// the cache; anything else is fetched whole and ingested. Fetch errors are
// logged and yield an empty result.
func (c *Coordinator) Events(ctx context.Context, start, end time.Time) []domain.Task {
	from := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	to := time.Date(end.Year(), end.Month(), end.Day(), 23, 59, 59, 0, end.Location())

	if c.store.Covers(from, to) {
		c.metrics.CacheLookup("range", "hit")
		return c.store.Between(from, to)
	}
	c.metrics.CacheLookup("range", "miss")

	tasks, err := c.backend.GetEvents(ctx, from, to, c.includeAll)
	if err != nil {
		c.log.WithError(err).WithField("range", domain.NewDateRange(from, to).String()).Error("fetch events failed")
		return nil
	}

	c.store.Ingest(tasks, domain.NewDateRange(from, to))
	c.metrics.SetCachedEvents(c.store.Len())
	return c.store.Between(from, to)
}

// Get returns a cached task.
func (c *Coordinator) Get(id domain.TaskID) (domain.Task, bool) {
	return c.store.Get(id)
}
