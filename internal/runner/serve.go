package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wanderwoll/mockup-pipeline/internal/httpapi"
	"github.com/wanderwoll/mockup-pipeline/internal/middleware"
	"github.com/wanderwoll/mockup-pipeline/internal/scheduler"
	"github.com/wanderwoll/mockup-pipeline/internal/system"
)

const limiterCleanupInterval = time.Minute

// Serve starts the HTTP API, plus the batch scheduler when a schedule is
// configured, and blocks until ctx is cancelled.
func (r *Runner) Serve(ctx context.Context) error {
	cfg := r.serve
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}

	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var limiter *middleware.RateLimiter
	if cfg.RateLimit > 0 {
		limiter = middleware.NewRateLimiter(cfg.RateLimit, cfg.RateBurst, r.log.Named("ratelimit"))
		limiter.StartCleanup(serveCtx, limiterCleanupInterval)
	}

	handler := httpapi.NewHandler(r.orch, httpapi.Options{
		Runs:           r.runs,
		RateLimiter:    limiter,
		AllowedOrigins: cfg.AllowedOrigins,
		Log:            r.log.Named("httpapi"),
	})
	server := httpapi.NewServer(cfg.Addr, handler, r.log.Named("http"))

	manager := system.NewManager(r.log.Named("system"))
	if err := manager.Register(server); err != nil {
		return err
	}

	if cfg.BatchSchedule != "" {
		if cfg.BatchFile == "" {
			return errors.New("BATCH_SCHEDULE requires BATCH_FILE")
		}
		sched, err := scheduler.New(scheduler.Config{
			Schedule: cfg.BatchSchedule,
			Subject:  cfg.BatchFile,
		}, r.orch, scheduler.FileLoader(cfg.BatchFile), r.runs, r.log.Named("scheduler"))
		if err != nil {
			return err
		}
		if err := manager.Register(sched); err != nil {
			return err
		}
		r.console.Info(fmt.Sprintf("Batch %s scheduled %q, next run %s",
			cfg.BatchFile, cfg.BatchSchedule, sched.Next(r.now()).Format(time.RFC3339)))
	}

	if err := manager.Start(serveCtx); err != nil {
		return err
	}
	r.console.Success(fmt.Sprintf("Serving pipeline API on %s", server.Addr()))
	if r.onServe != nil {
		r.onServe(server.Addr())
	}

	<-ctx.Done()
	r.console.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	return manager.Stop(shutdownCtx)
}
