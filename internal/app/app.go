// Package app wires configuration, backends, the session cache and its
// persistence into one value shared by the command line front-ends.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tazhate/taskcal/config"
	"github.com/tazhate/taskcal/internal/clients/api"
	"github.com/tazhate/taskcal/internal/clients/caldav"
	"github.com/tazhate/taskcal/internal/domain"
	"github.com/tazhate/taskcal/internal/logger"
	"github.com/tazhate/taskcal/internal/metrics"
	"github.com/tazhate/taskcal/internal/notify"
	"github.com/tazhate/taskcal/internal/scheduler"
	"github.com/tazhate/taskcal/internal/service"
	"github.com/tazhate/taskcal/internal/storage"
)

const (
	settingAccess  = "access_token"
	settingRefresh = "refresh_token"
)

type App struct {
	Config      *config.Config
	Log         *logger.Logger
	Metrics     *metrics.Metrics
	Storage     *storage.Storage
	API         *api.Client // nil with the caldav backend
	Coordinator *service.Coordinator
	Months      *service.MonthCache
	Telegram    *notify.Telegram
}

func New(cfg *config.Config, log *logger.Logger) (*App, error) {
	if log == nil {
		log = logger.New(cfg.LogLevel, cfg.LogFormat)
	}

	store, err := storage.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	a := &App{
		Config:  cfg,
		Log:     log,
		Metrics: metrics.New(),
		Storage: store,
	}

	backend, monthSource := a.backends()
	a.Coordinator = service.NewCoordinator(backend, nil, log.Logger)
	a.Coordinator.SetMetrics(a.Metrics)
	a.Coordinator.SetIncludeAll(cfg.IncludeAll)

	a.Months = service.NewMonthCache(func(ctx context.Context, from, to time.Time) ([]domain.Task, error) {
		end := time.Date(to.Year(), to.Month(), to.Day(), 23, 59, 59, 0, to.Location())
		return monthSource.GetEvents(ctx, from, end, cfg.IncludeAll)
	}, log.Logger)
	a.Months.SetPrefetch(cfg.Prefetch)
	a.Months.SetMetrics(a.Metrics)
	a.Coordinator.SetMonthCache(a.Months)

	if cfg.NotificationsEnabled() {
		tg, err := notify.NewTelegram(cfg.TelegramToken, cfg.OwnerTelegramID, log.Logger)
		if err != nil {
			// notifications are optional
			log.WithError(err).Warn("telegram notifications disabled")
		} else {
			a.Telegram = tg
			a.Coordinator.SetNotifier(tg)
			a.Coordinator.SetObserver(tg.Observe)
		}
	}

	return a, nil
}

// backends returns the backend mutations go to and the one month reads
// use. Month reads always take the legacy task listing of the REST API.
func (a *App) backends() (service.Backend, service.Backend) {
	cfg := a.Config
	if cfg.Backend == config.BackendCalDAV {
		c := caldav.NewClient(cfg.CalDAVURL, cfg.CalDAVUsername, cfg.CalDAVPassword, a.Log.Logger)
		c.SetCalendarID(cfg.CalDAVCalendarID)
		c.SetLocation(cfg.Timezone)
		return c, c
	}

	a.API = api.NewClient(cfg.APIURL, a.Log.Logger)
	a.API.SetMetrics(a.Metrics)
	a.API.OnTokensChanged(a.saveTokens)
	a.API.OnLogout(a.forgetSession)

	legacy := api.NewLegacy(a.API)
	if cfg.Backend == config.BackendLegacy {
		return legacy, legacy
	}
	return a.API, legacy
}

func (a *App) saveTokens(t api.Tokens) {
	ctx := context.Background()
	err := errors.Join(
		a.Storage.SetSetting(ctx, settingAccess, t.Access),
		a.Storage.SetSetting(ctx, settingRefresh, t.Refresh),
	)
	if err != nil {
		a.Log.WithError(err).Error("save tokens")
	}
}

// forgetSession runs when the backend rejected the session for good.
func (a *App) forgetSession() {
	ctx := context.Background()
	err := errors.Join(
		a.Storage.DeleteSetting(ctx, settingAccess),
		a.Storage.DeleteSetting(ctx, settingRefresh),
		a.Storage.Clear(ctx),
	)
	if err != nil {
		a.Log.WithError(err).Error("clear session")
	}
	a.Coordinator.Store().Reset()
	a.Coordinator.PrimeCalendars(nil)
	a.Months.Clear()
	a.Log.Warn("session expired, log in again")
}

// Restore loads the tokens, cached events and calendars of the last run.
func (a *App) Restore(ctx context.Context) error {
	if a.API != nil {
		access, err := a.Storage.GetSetting(ctx, settingAccess)
		if err != nil {
			return fmt.Errorf("load tokens: %w", err)
		}
		refresh, err := a.Storage.GetSetting(ctx, settingRefresh)
		if err != nil {
			return fmt.Errorf("load tokens: %w", err)
		}
		if access != "" || refresh != "" {
			a.API.SetTokens(api.Tokens{Access: access, Refresh: refresh})
		}
	}

	state, err := a.Storage.LoadState(ctx)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	a.Coordinator.Store().Load(state)

	cals, err := a.Storage.LoadCalendars(ctx)
	if err != nil {
		return fmt.Errorf("load calendars: %w", err)
	}
	if len(cals) > 0 {
		a.Coordinator.PrimeCalendars(cals)
	}

	a.Metrics.SetCachedEvents(len(state.Events))
	return nil
}

// Persist saves the session cache for the next run.
func (a *App) Persist(ctx context.Context) error {
	a.Months.Wait()

	if err := a.Storage.SaveState(ctx, a.Coordinator.Store().Snapshot()); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if cals := a.Coordinator.CachedCalendars(); cals != nil {
		if err := a.Storage.SaveCalendars(ctx, cals); err != nil {
			return fmt.Errorf("save calendars: %w", err)
		}
	}
	return nil
}

// Scheduler returns a scheduler syncing through the coordinator.
func (a *App) Scheduler() *scheduler.Scheduler {
	s := scheduler.New(a.Config, a.Coordinator, a.Log.Logger)
	s.SetMonths(a.Months)
	return s
}

func (a *App) Close() error {
	return a.Storage.Close()
}
