package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/attention/internal/adapters/metrics"
	"github.com/alejandrodnm/attention/internal/application/scheduler"
)

// serve runs the scheduler and, when addr is set, the /metrics endpoint.
// Both stop when ctx is cancelled.
func serve(ctx context.Context, sched *scheduler.Scheduler, prom *metrics.Prometheus, addr string) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return sched.Start(ctx) })

	if addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", prom.Handler())
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			slog.Info("metrics listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}
