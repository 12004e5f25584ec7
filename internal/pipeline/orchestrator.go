// Package pipeline routes mockup, 3D model and Shopify operations across
// registered connectors, caching successful primary results and substituting
// a fallback provider when the primary fails.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wanderwoll/mockup-pipeline/internal/cache"
	"github.com/wanderwoll/mockup-pipeline/internal/connector"
	"github.com/wanderwoll/mockup-pipeline/internal/metrics"
	"github.com/wanderwoll/mockup-pipeline/pkg/logger"
)

// Connector names the orchestrator routes to.
const (
	VirtualThreads = string(connector.ProviderVirtualThreads)
	Mockey         = string(connector.ProviderMockey)
	CGTrader       = string(connector.ProviderCGTrader)
	Blender        = string(connector.ProviderBlender)
	Shopify        = string(connector.ProviderShopify)
)

// Orchestrator owns the connector registry and the result cache.
type Orchestrator struct {
	cfg   Config
	cache cache.Store
	log   *logger.Logger

	mu         sync.RWMutex
	connectors map[string]connector.Connector
}

// New creates an orchestrator. A nil store gets an in-memory cache expiring
// after cfg.CacheExpiry.
func New(cfg Config, store cache.Store, log *logger.Logger) *Orchestrator {
	defaults := DefaultConfig()
	if cfg.CacheExpiry <= 0 {
		cfg.CacheExpiry = defaults.CacheExpiry
	}
	if len(cfg.DefaultColorVariants) == 0 {
		cfg.DefaultColorVariants = defaults.DefaultColorVariants
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = defaults.HealthTimeout
	}
	if store == nil {
		store = cache.NewMemory(cfg.CacheExpiry)
	}
	if log == nil {
		log = logger.NewDefault("pipeline")
	}

	log.WithField("cache_enabled", cfg.CacheEnabled).
		WithField("fallback_enabled", cfg.FallbackEnabled).
		Info("pipeline orchestrator initialized")

	return &Orchestrator{
		cfg:        cfg,
		cache:      store,
		log:        log,
		connectors: make(map[string]connector.Connector),
	}
}

// Config returns the effective configuration.
func (o *Orchestrator) Config() Config { return o.cfg }

// RegisterConnector adds or replaces a connector under name.
func (o *Orchestrator) RegisterConnector(name string, c connector.Connector) {
	o.mu.Lock()
	o.connectors[name] = c
	o.mu.Unlock()
	o.log.WithField("connector", name).Info("registered connector")
}

// RegisterConnectors registers each connector under its provider name.
func (o *Orchestrator) RegisterConnectors(connectors map[connector.Provider]connector.Connector) {
	for p, c := range connectors {
		o.RegisterConnector(string(p), c)
	}
}

// GetConnector returns the connector registered under name.
func (o *Orchestrator) GetConnector(name string) (connector.Connector, error) {
	o.mu.RLock()
	c, ok := o.connectors[name]
	o.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrConnectorNotFound, name)
	}
	return c, nil
}

// ConnectorNames lists registered connector names in sorted order.
func (o *Orchestrator) ConnectorNames() []string {
	o.mu.RLock()
	names := make([]string, 0, len(o.connectors))
	for name := range o.connectors {
		names = append(names, name)
	}
	o.mu.RUnlock()
	sort.Strings(names)
	return names
}

type cacheClearer interface {
	ClearCache()
}

// ClearCache drops every cached result, including connectors' HTTP caches.
func (o *Orchestrator) ClearCache(ctx context.Context) error {
	if err := o.cache.Clear(ctx); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	o.mu.RLock()
	for _, c := range o.connectors {
		if cc, ok := c.(cacheClearer); ok {
			cc.ClearCache()
		}
	}
	o.mu.RUnlock()
	o.log.Info("cache cleared")
	return nil
}

// capability looks up a connector and asserts it implements T.
func capability[T any](o *Orchestrator, name string) (T, error) {
	var zero T
	c, err := o.GetConnector(name)
	if err != nil {
		return zero, err
	}
	impl, ok := c.(T)
	if !ok {
		return zero, fmt.Errorf("connector %s: %w", name, ErrUnsupported)
	}
	return impl, nil
}

// operation identifies a cached, fallback-capable pipeline step.
type operation struct {
	name  string // cache key prefix and metrics label
	label string // used in composed error messages
}

var (
	opDesignUpload    = operation{name: "designUpload", label: "design upload"}
	opModelProcessing = operation{name: "modelProcessing", label: "3D model"}
)

// run drives one operation: cache lookup, primary call, cache store on
// success, then a single fallback substitution on failure. Fallback results
// are tagged by markFallback and never cached.
func run[T any](
	ctx context.Context,
	o *Orchestrator,
	op operation,
	args interface{},
	primary func(context.Context) (T, error),
	fallback func(context.Context) (T, error),
	markFallback func(*T),
) (T, error) {
	var zero T
	start := time.Now()
	log := o.log.WithField("operation", op.name)

	key, err := cache.Key(op.name, args)
	if err != nil {
		return zero, err
	}

	if o.cfg.CacheEnabled {
		var cached T
		if o.lookup(ctx, op.name, key, &cached) {
			log.Debug("using cached result")
			metrics.RecordOperation(op.name, "cached", time.Since(start))
			return cached, nil
		}
	}

	result, primaryErr := primary(ctx)
	if primaryErr == nil {
		if o.cfg.CacheEnabled {
			o.store(ctx, key, result)
		}
		metrics.RecordOperation(op.name, "success", time.Since(start))
		return result, nil
	}

	log.WithError(primaryErr).Error("primary connector failed")
	if !o.cfg.FallbackEnabled || ctx.Err() != nil {
		metrics.RecordOperation(op.name, "error", time.Since(start))
		return zero, primaryErr
	}

	log.Info("attempting fallback")
	fb, fallbackErr := fallback(ctx)
	if fallbackErr != nil {
		log.WithError(fallbackErr).Error("fallback also failed")
		metrics.RecordFallback(op.name, false)
		metrics.RecordOperation(op.name, "error", time.Since(start))
		return zero, &FallbackError{Operation: op.label, Primary: primaryErr, Fallback: fallbackErr}
	}

	markFallback(&fb)
	metrics.RecordFallback(op.name, true)
	metrics.RecordOperation(op.name, "fallback", time.Since(start))
	return fb, nil
}

func (o *Orchestrator) lookup(ctx context.Context, op, key string, out interface{}) bool {
	entry, ok, err := o.cache.Get(ctx, key)
	if err != nil {
		o.log.WithError(err).WithField("operation", op).Warn("cache read failed")
		metrics.RecordCacheLookup(op, false)
		return false
	}
	if !ok {
		metrics.RecordCacheLookup(op, false)
		return false
	}
	if err := json.Unmarshal(entry.Data, out); err != nil {
		o.log.WithError(err).WithField("operation", op).Warn("discarding undecodable cache entry")
		_ = o.cache.Delete(ctx, key)
		metrics.RecordCacheLookup(op, false)
		return false
	}
	metrics.RecordCacheLookup(op, true)
	return true
}

func (o *Orchestrator) store(ctx context.Context, key string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		o.log.WithError(err).Warn("result not cacheable")
		return
	}
	if err := o.cache.Set(ctx, key, data); err != nil {
		o.log.WithError(err).Warn("cache write failed")
	}
}
