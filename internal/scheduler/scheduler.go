// Package scheduler re-runs a product batch on a cron schedule while the
// pipeline is serving.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wanderwoll/mockup-pipeline/internal/pipeline"
	"github.com/wanderwoll/mockup-pipeline/internal/store"
	"github.com/wanderwoll/mockup-pipeline/internal/system"
	"github.com/wanderwoll/mockup-pipeline/pkg/logger"
)

var _ system.Service = (*Scheduler)(nil)

// BatchProcessor is the orchestrator operation the scheduler drives.
type BatchProcessor interface {
	BatchProcessProducts(ctx context.Context, products []pipeline.ProductRequest) []pipeline.ProductResult
}

// Loader returns the products to process on each run.
type Loader func() ([]pipeline.ProductRequest, error)

// FileLoader reloads the batch file on every run so edits apply without a
// restart.
func FileLoader(path string) Loader {
	return func() ([]pipeline.ProductRequest, error) {
		return pipeline.LoadBatch(path)
	}
}

// Config controls the schedule.
type Config struct {
	// Schedule is a standard five-field cron expression or a descriptor such
	// as "@every 6h".
	Schedule string
	// RunTimeout bounds one batch run. Zero means no limit.
	RunTimeout time.Duration
	// Subject labels recorded runs, typically the batch file path.
	Subject string
}

// Summary describes one completed run.
type Summary struct {
	StartedAt time.Time               `json:"startedAt"`
	Duration  string                  `json:"duration"`
	Total     int                     `json:"total"`
	Succeeded int                     `json:"succeeded"`
	Results   []pipeline.ProductResult `json:"results"`
}

// Scheduler runs the batch on its cron schedule.
type Scheduler struct {
	cfg       Config
	schedule  cron.Schedule
	processor BatchProcessor
	load      Loader
	results   store.ResultStore
	log       *logger.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	running bool
	last    *Summary
}

// New validates the schedule and builds a scheduler. results may be nil.
func New(cfg Config, processor BatchProcessor, load Loader, results store.ResultStore, log *logger.Logger) (*Scheduler, error) {
	if processor == nil || load == nil {
		return nil, fmt.Errorf("scheduler needs a processor and a loader")
	}
	schedule, err := cron.ParseStandard(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid batch schedule %q: %w", cfg.Schedule, err)
	}
	if log == nil {
		log = logger.NewDefault("scheduler")
	}
	return &Scheduler{
		cfg:       cfg,
		schedule:  schedule,
		processor: processor,
		load:      load,
		results:   results,
		log:       log,
	}, nil
}

func (s *Scheduler) Name() string { return "batch-scheduler" }

// Next reports when the schedule fires after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t)
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	cronLog := cron.PrintfLogger(s.log)
	c := cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)
	c.Schedule(s.schedule, cron.FuncJob(func() {
		if _, err := s.RunOnce(runCtx); err != nil {
			s.log.WithError(err).Error("scheduled batch failed")
		}
	}))
	c.Start()

	s.cron = c
	s.cancel = cancel
	s.running = true
	s.log.WithField("schedule", s.cfg.Schedule).
		WithField("next_run", s.schedule.Next(time.Now()).Format(time.RFC3339)).
		Info("batch scheduler started")
	return nil
}

func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	c, cancel := s.cron, s.cancel
	s.running = false
	s.cron = nil
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	done := c.Stop()

	select {
	case <-done.Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	s.log.Info("batch scheduler stopped")
	return nil
}

// RunOnce loads the batch, processes it and records the outcome.
func (s *Scheduler) RunOnce(ctx context.Context) (Summary, error) {
	products, err := s.load()
	if err != nil {
		return Summary{}, fmt.Errorf("load batch: %w", err)
	}
	if s.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RunTimeout)
		defer cancel()
	}

	start := time.Now()
	s.log.WithField("products", len(products)).Info("scheduled batch started")
	results := s.processor.BatchProcessProducts(ctx, products)

	summary := Summary{
		StartedAt: start.UTC(),
		Duration:  time.Since(start).Round(time.Millisecond).String(),
		Total:     len(results),
		Results:   results,
	}
	for _, r := range results {
		if r.Success {
			summary.Succeeded++
		}
	}

	s.mu.Lock()
	s.last = &summary
	s.mu.Unlock()

	s.log.WithField("succeeded", summary.Succeeded).
		WithField("total", summary.Total).
		Info("scheduled batch finished")

	if s.results != nil {
		if _, err := s.results.Record(ctx, store.KindScheduled, s.cfg.Subject, summary.Succeeded == summary.Total, summary); err != nil {
			s.log.WithError(err).Warn("record scheduled batch failed")
		}
	}
	return summary, nil
}

// Last returns the most recent run, if any.
func (s *Scheduler) Last() (Summary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return Summary{}, false
	}
	return *s.last, true
}
