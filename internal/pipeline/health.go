package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/wanderwoll/mockup-pipeline/internal/connector"
	"github.com/wanderwoll/mockup-pipeline/internal/metrics"
)

// CheckHealth probes every registered connector concurrently. Connectors
// without a health check report unknown; a probe error reports unhealthy.
func (o *Orchestrator) CheckHealth(ctx context.Context) HealthReport {
	o.log.Info("checking health of all connectors")

	o.mu.RLock()
	snapshot := make(map[string]connector.Connector, len(o.connectors))
	for name, c := range o.connectors {
		snapshot[name] = c
	}
	o.mu.RUnlock()

	report := HealthReport{
		Orchestrator: connector.HealthStatus{Status: connector.StatusHealthy, Timestamp: time.Now().UTC()},
		Connectors:   make(map[string]connector.HealthStatus, len(snapshot)),
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for name, c := range snapshot {
		wg.Add(1)
		go func(name string, c connector.Connector) {
			defer wg.Done()
			status := o.probe(ctx, c)
			metrics.RecordConnectorHealth(name, status.Status == connector.StatusHealthy)

			mu.Lock()
			report.Connectors[name] = status
			mu.Unlock()
		}(name, c)
	}
	wg.Wait()

	return report
}

func (o *Orchestrator) probe(ctx context.Context, c connector.Connector) connector.HealthStatus {
	checker, ok := c.(connector.HealthChecker)
	if !ok {
		return connector.HealthStatus{
			Status:    connector.StatusUnknown,
			Timestamp: time.Now().UTC(),
			Message:   "Health check not implemented",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, o.cfg.HealthTimeout)
	defer cancel()

	status, err := checker.CheckHealth(ctx)
	if err != nil {
		return connector.Unhealthy(err)
	}
	if status.Status == "" {
		status.Status = connector.StatusUnknown
	}
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now().UTC()
	}
	return status
}
