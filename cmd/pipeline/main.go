// Package main runs the WanderWoll mockup pipeline from the command line.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/wanderwoll/mockup-pipeline/internal/cache"
	"github.com/wanderwoll/mockup-pipeline/internal/config"
	"github.com/wanderwoll/mockup-pipeline/internal/connector"
	"github.com/wanderwoll/mockup-pipeline/internal/pipeline"
	"github.com/wanderwoll/mockup-pipeline/internal/runner"
	"github.com/wanderwoll/mockup-pipeline/internal/selftest"
	"github.com/wanderwoll/mockup-pipeline/internal/store"
	"github.com/wanderwoll/mockup-pipeline/pkg/logger"
	"github.com/wanderwoll/mockup-pipeline/pkg/testutil"
)

// Latency unit for the mock connectors used by the self-test suite and mock
// mode, so the caching check sees a measurable speedup.
const mockLatency = 10 * time.Millisecond

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.New(logger.LoggingConfig{
		Level:     cfg.LogLevel,
		Format:    cfg.LogFormat,
		Output:    "stderr",
		Component: "pipeline",
	})

	var catalog *config.Catalog
	if cfg.CatalogFile != "" {
		if catalog, err = config.LoadCatalog(cfg.CatalogFile); err != nil {
			return err
		}
	}

	var cacheStore cache.Store
	if strings.EqualFold(cfg.CacheBackend, "redis") {
		redisCache, err := cache.DialRedis(ctx, cfg.RedisURL, "", cfg.CacheExpiry)
		if err != nil {
			return fmt.Errorf("connect cache: %w", err)
		}
		defer redisCache.Close()
		cacheStore = redisCache
	}

	orch := pipeline.New(pipeline.Config{
		CacheEnabled:    cfg.CacheEnabled,
		CacheExpiry:     cfg.CacheExpiry,
		FallbackEnabled: cfg.FallbackEnabled,
	}, cacheStore, log.Named("orchestrator"))

	mode := "real"
	if cfg.UseMocks {
		mode = "mock"
		orch.RegisterConnectors(testutil.NewSet().SimulateLatency(mockLatency).Connectors())
	} else {
		if err := registerConnectors(orch, connector.NewFactory(cfg, catalog, log.Named("connector-factory")), log); err != nil {
			return err
		}
	}
	log.WithField("connectors", mode).Info("initialized 3D mockup pipeline")

	results, err := store.NewFileStore(cfg.OutputDir, log.Named("store"))
	if err != nil {
		return err
	}
	var runs store.ResultStore = results
	if cfg.ResultsDatabaseURL != "" {
		pg, err := store.OpenPostgres(ctx, cfg.ResultsDatabaseURL)
		if err != nil {
			return err
		}
		defer pg.Close()
		runs = pg
	}

	suite := selftest.New(func() (*pipeline.Orchestrator, error) {
		o := pipeline.New(pipeline.DefaultConfig(), nil, log.Named("selftest-orchestrator"))
		o.RegisterConnectors(testutil.NewSet().SimulateLatency(mockLatency).Connectors())
		return o, nil
	}, log.Named("selftest"))

	r, err := runner.New(runner.Options{
		Orchestrator: orch,
		Results:      results,
		Runs:         runs,
		Suite:        suite,
		Serve: runner.ServeConfig{
			Addr:           cfg.HTTPAddr,
			RateLimit:      cfg.RateLimit,
			RateBurst:      cfg.RateBurst,
			AllowedOrigins: cfg.Origins(),
			BatchSchedule:  cfg.BatchSchedule,
			BatchFile:      cfg.BatchFile,
		},
		Out: os.Stdout,
		Log: log.Named("runner"),
	})
	if err != nil {
		return err
	}

	if err := r.Run(ctx, args); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// registerConnectors builds the routed providers and fails if any cannot be
// created. Printify is optional.
func registerConnectors(orch *pipeline.Orchestrator, factory *connector.Factory, log *logger.Logger) error {
	connectors, err := factory.Build(
		connector.ProviderVirtualThreads,
		connector.ProviderMockey,
		connector.ProviderCGTrader,
		connector.ProviderBlender,
		connector.ProviderShopify,
	)
	if err != nil {
		return err
	}
	orch.RegisterConnectors(connectors)

	printify, err := factory.New(connector.ProviderPrintify)
	if err != nil {
		log.WithError(err).Warn("Printify connector disabled")
		return nil
	}
	orch.RegisterConnector(string(connector.ProviderPrintify), printify)
	return nil
}
