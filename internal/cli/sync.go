package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tazhate/taskcal/internal/bot"
)

func newSyncCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run a full sync and drop the local cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := opts.app.Coordinator.Sync(cmdContext(cmd))
			if err != nil {
				return err
			}
			return opts.print(cmd, stats, func(w io.Writer) {
				fmt.Fprintf(w, "Pushed\t%d\nPulled\t%d\n", stats.Pushed, stats.Pulled)
			})
		},
	}
}

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Sync on a schedule, serve /metrics and the Telegram bot until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := opts.app
			log := a.Log.Component("serve")

			ctx, stop := signal.NotifyContext(cmdContext(cmd), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			mux := http.NewServeMux()
			mux.Handle("/metrics", a.Metrics.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			server := &http.Server{
				Addr:              ":" + a.Config.ServerPort,
				Handler:           mux,
				ReadHeaderTimeout: 10 * time.Second,
			}

			sched := a.Scheduler()
			schedErr := make(chan error, 1)
			go func() { schedErr <- sched.Start(ctx) }()

			if a.Telegram != nil {
				tg := bot.New(a.Telegram.API(), a.Coordinator, a.Months, a.Config.OwnerTelegramID, a.Log.Logger)
				tg.OnMutation(func(ctx context.Context) {
					if err := a.Persist(ctx); err != nil {
						log.WithError(err).Warn("persist cache")
					}
				})
				go func() {
					if err := tg.Start(ctx); err != nil {
						log.WithError(err).Error("telegram bot")
					}
				}()
			}

			go func() {
				log.WithField("addr", server.Addr).Info("serving metrics")
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.WithError(err).Error("http server")
					stop()
				}
			}()

			var err error
			select {
			case <-ctx.Done():
			case err = <-schedErr:
				stop()
			}

			log.Info("shutting down")
			sched.Stop()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if serr := server.Shutdown(shutdownCtx); serr != nil {
				log.WithError(serr).Warn("http shutdown")
			}
			return err
		},
	}
}
