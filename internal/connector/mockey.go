package connector

import (
	"context"

	"github.com/wanderwoll/mockup-pipeline/internal/config"
	"github.com/wanderwoll/mockup-pipeline/internal/providers/mockey"
	"github.com/wanderwoll/mockup-pipeline/pkg/logger"
)

var (
	_ MockupGenerator        = (*Mockey)(nil)
	_ ProductMockupGenerator = (*Mockey)(nil)
	_ HealthChecker          = (*Mockey)(nil)
)

// Mockey generates mockups through Mockey.ai. It is the fallback for design
// uploads and renders stock product mockups for Shopify listings.
type Mockey struct {
	client  *mockey.Client
	catalog *config.Catalog
	log     *logger.Logger
}

func NewMockeyConnector(client *mockey.Client, catalog *config.Catalog, log *logger.Logger) *Mockey {
	if log == nil {
		log = logger.NewDefault("mockey-connector")
	}
	if catalog == nil {
		catalog = config.DefaultCatalog()
	}
	return &Mockey{client: client, catalog: catalog, log: log}
}

func (m *Mockey) Provider() Provider { return ProviderMockey }

func (m *Mockey) GenerateMockup(ctx context.Context, req MockupRequest) (MockupResult, error) {
	return m.render(ctx, req.DesignFile, req.ProductType, req.ColorVariant)
}

// GenerateProductMockup renders the product type's default design.
func (m *Mockey) GenerateProductMockup(ctx context.Context, productType, colorVariant string) (MockupResult, error) {
	return m.render(ctx, m.catalog.DefaultDesign(productType), productType, colorVariant)
}

func (m *Mockey) render(ctx context.Context, designURL, productType, colorVariant string) (MockupResult, error) {
	templateID, err := m.catalog.MockeyTemplate(productType, colorVariant)
	if err != nil {
		return MockupResult{}, err
	}

	job, err := m.client.GenerateMockup(ctx, designURL, templateID)
	if err != nil {
		return MockupResult{}, err
	}
	url, err := m.client.PollMockupCompletion(ctx, job.ID)
	if err != nil {
		return MockupResult{}, err
	}

	return MockupResult{
		Success:      true,
		MockupID:     job.ID,
		MockupURL:    url,
		ProductType:  productType,
		ColorVariant: colorVariant,
	}, nil
}

func (m *Mockey) CheckHealth(ctx context.Context) (HealthStatus, error) {
	templates, err := m.client.GetTemplates(ctx)
	if err != nil {
		return Unhealthy(err), nil
	}
	return Healthy(map[string]interface{}{"templates": len(templates)}), nil
}

func (m *Mockey) ClearCache() { m.client.ClearCache() }
