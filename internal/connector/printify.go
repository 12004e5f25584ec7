package connector

import (
	"context"

	"github.com/wanderwoll/mockup-pipeline/internal/providers/printify"
	"github.com/wanderwoll/mockup-pipeline/pkg/logger"
)

var _ HealthChecker = (*Printify)(nil)

// Printify exposes the print-on-demand account to health reporting.
type Printify struct {
	client *printify.Client
	log    *logger.Logger
}

func NewPrintifyConnector(client *printify.Client, log *logger.Logger) *Printify {
	if log == nil {
		log = logger.NewDefault("printify-connector")
	}
	return &Printify{client: client, log: log}
}

func (p *Printify) Provider() Provider { return ProviderPrintify }

// Client returns the underlying REST client.
func (p *Printify) Client() *printify.Client { return p.client }

func (p *Printify) CheckHealth(ctx context.Context) (HealthStatus, error) {
	shops, err := p.client.GetShops(ctx)
	if err != nil {
		return Unhealthy(err), nil
	}
	return Healthy(map[string]interface{}{"shops": len(shops)}), nil
}
