package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/tazhate/taskcal/config"
	"github.com/tazhate/taskcal/internal/domain"
	"github.com/tazhate/taskcal/internal/service"
)

const jobTimeout = 2 * time.Minute

type Syncer interface {
	Sync(ctx context.Context) (domain.SyncStats, error)
}

type MonthLoader interface {
	GetOrFetch(ctx context.Context, key string, force bool) []domain.Task
}

// Scheduler runs the periodic backend sync and keeps the current month
// fresh in the month cache.
type Scheduler struct {
	cron   *cron.Cron
	cfg    *config.Config
	syncer Syncer
	months MonthLoader
	log    logrus.FieldLogger
	now    func() time.Time

	base context.Context
}

func New(cfg *config.Config, syncer Syncer, log logrus.FieldLogger) *Scheduler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("component", "scheduler")

	location := cfg.Timezone
	if location == nil {
		location = time.Local
	}

	c := cron.New(
		cron.WithLocation(location),
		cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(log))),
	)

	return &Scheduler{
		cron:   c,
		cfg:    cfg,
		syncer: syncer,
		log:    log,
		now:    time.Now,
		base:   context.Background(),
	}
}

// SetMonths enables the month refresh job.
func (s *Scheduler) SetMonths(m MonthLoader) {
	s.months = m
}

// Start registers the jobs and blocks until ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.base = ctx

	if _, err := s.cron.AddFunc(s.cfg.SyncSchedule, s.runSync); err != nil {
		return fmt.Errorf("add sync job: %w", err)
	}

	if s.months != nil && s.cfg.RefreshSchedule != "" {
		if _, err := s.cron.AddFunc(s.cfg.RefreshSchedule, s.refreshMonth); err != nil {
			return fmt.Errorf("add month refresh: %w", err)
		}
	}

	s.cron.Start()
	s.log.WithFields(logrus.Fields{
		"tz":      s.cfg.Timezone,
		"sync":    s.cfg.SyncSchedule,
		"refresh": s.cfg.RefreshSchedule,
	}).Info("scheduler started")

	<-ctx.Done()
	return nil
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) runSync() {
	ctx, cancel := context.WithTimeout(s.base, jobTimeout)
	defer cancel()

	stats, err := s.syncer.Sync(ctx)
	if err != nil {
		s.log.WithError(err).Error("scheduled sync failed")
		return
	}
	s.log.WithFields(logrus.Fields{
		"pushed": stats.Pushed,
		"pulled": stats.Pulled,
	}).Debug("scheduled sync done")
}

func (s *Scheduler) refreshMonth() {
	ctx, cancel := context.WithTimeout(s.base, jobTimeout)
	defer cancel()

	key := service.MonthKey(s.now().In(s.location()))
	tasks := s.months.GetOrFetch(ctx, key, true)
	s.log.WithFields(logrus.Fields{
		"month": key,
		"tasks": len(tasks),
	}).Debug("month refreshed")
}

func (s *Scheduler) location() *time.Location {
	if s.cfg.Timezone != nil {
		return s.cfg.Timezone
	}
	return time.Local
}
