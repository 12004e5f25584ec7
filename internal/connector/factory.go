package connector

import (
	"errors"
	"fmt"

	"github.com/wanderwoll/mockup-pipeline/internal/config"
	"github.com/wanderwoll/mockup-pipeline/internal/providers/mockey"
	"github.com/wanderwoll/mockup-pipeline/internal/providers/printify"
	"github.com/wanderwoll/mockup-pipeline/internal/providers/shopify"
	"github.com/wanderwoll/mockup-pipeline/internal/providers/virtualthreads"
	"github.com/wanderwoll/mockup-pipeline/pkg/logger"
)

// Factory builds connectors from process configuration.
type Factory struct {
	cfg     *config.Config
	catalog *config.Catalog
	runner  CommandRunner
	log     *logger.Logger
}

// NewFactory creates a factory. A nil catalog uses the built-in one.
func NewFactory(cfg *config.Config, catalog *config.Catalog, log *logger.Logger) *Factory {
	if log == nil {
		log = logger.NewDefault("connector-factory")
	}
	if catalog == nil {
		catalog = config.DefaultCatalog()
	}
	if cfg == nil {
		cfg = &config.Config{}
	}
	return &Factory{cfg: cfg, catalog: catalog, runner: ExecRunner{}, log: log}
}

// WithRunner replaces the command runner handed to Blender connectors.
func (f *Factory) WithRunner(r CommandRunner) *Factory {
	f.runner = r
	return f
}

func (f *Factory) named(component string) *logger.Logger {
	return f.log.Named(component)
}

func (f *Factory) NewVirtualThreads() (*VirtualThreads, error) {
	c := f.cfg.VirtualThreads
	if c.APIKey == "" {
		return nil, errors.New("VirtualThreads API key is required")
	}
	f.log.Info("creating VirtualThreads connector")
	client := virtualthreads.New(virtualthreads.Config{
		APIKey:       c.APIKey,
		BaseURL:      c.BaseURL,
		MaxRetries:   f.cfg.ProviderRetries,
		Timeout:      f.cfg.ProviderTimeout,
		RateLimit:    f.cfg.ProviderRateLimit,
		CacheEnabled: f.cfg.CacheEnabled,
		CacheTTL:     f.cfg.CacheExpiry,
	}, f.named("virtualthreads"))
	return NewVirtualThreadsConnector(client, f.catalog, f.named("virtualthreads-connector")), nil
}

func (f *Factory) NewMockey() (*Mockey, error) {
	c := f.cfg.Mockey
	if c.APIKey == "" {
		return nil, errors.New("Mockey.ai API key is required")
	}
	f.log.Info("creating Mockey.ai connector")
	client := mockey.New(mockey.Config{
		APIKey:       c.APIKey,
		BaseURL:      c.BaseURL,
		MaxRetries:   f.cfg.ProviderRetries,
		Timeout:      f.cfg.ProviderTimeout,
		RateLimit:    f.cfg.ProviderRateLimit,
		CacheEnabled: f.cfg.CacheEnabled,
		CacheTTL:     f.cfg.CacheExpiry,
	}, f.named("mockey"))
	return NewMockeyConnector(client, f.catalog, f.named("mockey-connector")), nil
}

func (f *Factory) NewCGTrader() (*CGTrader, error) {
	f.log.Info("creating CGTrader connector")
	return NewCGTraderConnector(f.cfg.CGTrader.AssetsDir, f.named("cgtrader-connector")), nil
}

func (f *Factory) NewBlender() (*Blender, error) {
	f.log.Info("creating Blender connector")
	b := f.cfg.Blender
	return NewBlenderConnector(BlenderConfig{
		Path:       b.Path,
		Script:     b.Script,
		MaxWorkers: b.MaxWorkers,
	}, f.catalog, f.runner, f.named("blender-connector")), nil
}

func (f *Factory) NewShopify() (*Shopify, error) {
	c := f.cfg.Shopify
	if c.APIPassword == "" || (c.APIKey == "" && c.BaseURL == "") {
		return nil, errors.New("Shopify API credentials are required")
	}
	f.log.Info("creating Shopify connector")
	client, err := shopify.New(shopify.Config{
		ShopName:    c.ShopName,
		AccessToken: c.APIPassword,
		APIVersion:  c.APIVersion,
		BaseURL:     c.BaseURL,
		MaxRetries:  f.cfg.ProviderRetries,
		Timeout:     f.cfg.ProviderTimeout,
		RateLimit:   f.cfg.ProviderRateLimit,
	}, f.named("shopify"))
	if err != nil {
		return nil, err
	}
	return NewShopifyConnector(client, c.MetafieldNamespace, f.named("shopify-connector")), nil
}

func (f *Factory) NewPrintify() (*Printify, error) {
	c := f.cfg.Printify
	client, err := printify.New(printify.Config{
		APIKey:     c.APIKey,
		ShopID:     c.ShopID,
		BaseURL:    c.BaseURL,
		MaxRetries: f.cfg.ProviderRetries,
		Timeout:    f.cfg.ProviderTimeout,
		RateLimit:  f.cfg.ProviderRateLimit,
	}, f.named("printify"))
	if err != nil {
		return nil, err
	}
	f.log.Info("creating Printify connector")
	return NewPrintifyConnector(client, f.named("printify-connector")), nil
}

// New builds the connector for one provider.
func (f *Factory) New(p Provider) (Connector, error) {
	build, ok := f.constructors()[p]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", p)
	}
	return build()
}

// Build constructs the named providers, or every provider when none are
// given. It stops at the first failure.
func (f *Factory) Build(providers ...Provider) (map[Provider]Connector, error) {
	if len(providers) == 0 {
		providers = Providers()
	}
	out := make(map[Provider]Connector, len(providers))
	for _, p := range providers {
		c, err := f.New(p)
		if err != nil {
			return nil, fmt.Errorf("create %s connector: %w", p, err)
		}
		out[p] = c
	}
	return out, nil
}

// BuildAvailable constructs every provider whose credentials are present and
// returns the construction errors of the rest.
func (f *Factory) BuildAvailable() (map[Provider]Connector, map[Provider]error) {
	built := make(map[Provider]Connector)
	failed := make(map[Provider]error)
	for _, p := range Providers() {
		c, err := f.New(p)
		if err != nil {
			failed[p] = err
			continue
		}
		built[p] = c
	}
	return built, failed
}

func (f *Factory) constructors() map[Provider]func() (Connector, error) {
	return map[Provider]func() (Connector, error){
		ProviderVirtualThreads: func() (Connector, error) { return f.NewVirtualThreads() },
		ProviderMockey:         func() (Connector, error) { return f.NewMockey() },
		ProviderCGTrader:       func() (Connector, error) { return f.NewCGTrader() },
		ProviderBlender:        func() (Connector, error) { return f.NewBlender() },
		ProviderShopify:        func() (Connector, error) { return f.NewShopify() },
		ProviderPrintify:       func() (Connector, error) { return f.NewPrintify() },
	}
}
