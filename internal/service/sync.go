package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/tazhate/taskcal/internal/domain"
)

// Sync runs a full backend sync, then drops every cached event, month and
// calendar so the next reads see the synced state.
func (c *Coordinator) Sync(ctx context.Context) (domain.SyncStats, error) {
	stats, err := c.backend.Sync(ctx)
	c.metrics.SyncRun(err)
	if err != nil {
		return domain.SyncStats{}, fmt.Errorf("sync: %w", err)
	}

	c.resetEvents()
	c.calMu.Lock()
	c.calendars = nil
	c.calMu.Unlock()

	c.log.WithFields(logrus.Fields{
		"pushed": stats.Pushed,
		"pulled": stats.Pulled,
	}).Info("sync completed")

	if c.notifier != nil {
		text := fmt.Sprintf("Sync completed: %d pushed, %d pulled", stats.Pushed, stats.Pulled)
		if nerr := c.notifier.Notify(ctx, text); nerr != nil {
			c.log.WithError(nerr).Warn("sync notification failed")
		}
	}
	return stats, nil
}

// resetEvents clears the event store and the month cache.
func (c *Coordinator) resetEvents() {
	c.store.Reset()
	if c.months != nil {
		c.months.Clear()
	}
	c.metrics.SetCachedEvents(0)
}
