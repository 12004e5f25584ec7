package connector

import (
	"context"

	"github.com/wanderwoll/mockup-pipeline/internal/config"
	"github.com/wanderwoll/mockup-pipeline/internal/providers/virtualthreads"
	"github.com/wanderwoll/mockup-pipeline/pkg/logger"
)

var (
	_ MockupGenerator = (*VirtualThreads)(nil)
	_ HealthChecker   = (*VirtualThreads)(nil)
)

// VirtualThreads is the primary mockup generator.
type VirtualThreads struct {
	client  *virtualthreads.Client
	catalog *config.Catalog
	log     *logger.Logger
}

func NewVirtualThreadsConnector(client *virtualthreads.Client, catalog *config.Catalog, log *logger.Logger) *VirtualThreads {
	if log == nil {
		log = logger.NewDefault("virtualthreads-connector")
	}
	if catalog == nil {
		catalog = config.DefaultCatalog()
	}
	return &VirtualThreads{client: client, catalog: catalog, log: log}
}

func (v *VirtualThreads) Provider() Provider { return ProviderVirtualThreads }

// GenerateMockup submits the design against the product's template and waits
// for the job to complete.
func (v *VirtualThreads) GenerateMockup(ctx context.Context, req MockupRequest) (MockupResult, error) {
	templateID, err := v.catalog.VirtualThreadsTemplate(req.ProductType)
	if err != nil {
		return MockupResult{}, err
	}

	job, err := v.client.GenerateMockup(ctx, virtualthreads.GenerateRequest{
		DesignURL:     req.DesignFile,
		TemplateID:    templateID,
		Color:         req.ColorVariant,
		RenderOptions: req.CustomOptions,
	})
	if err != nil {
		return MockupResult{}, err
	}

	v.log.WithField("mockup_id", job.ID).
		WithField("template_id", templateID).
		Debug("virtualthreads job submitted")

	done, err := v.client.PollMockupCompletion(ctx, job.ID)
	if err != nil {
		return MockupResult{}, err
	}

	return MockupResult{
		Success:      true,
		MockupID:     done.ID,
		MockupURL:    done.URL,
		ProductType:  req.ProductType,
		ColorVariant: req.ColorVariant,
	}, nil
}

func (v *VirtualThreads) CheckHealth(ctx context.Context) (HealthStatus, error) {
	templates, err := v.client.GetTemplates(ctx, nil)
	if err != nil {
		return Unhealthy(err), nil
	}
	return Healthy(map[string]interface{}{"templates": len(templates)}), nil
}

// ClearCache drops the client's cached GET responses.
func (v *VirtualThreads) ClearCache() { v.client.ClearCache() }
