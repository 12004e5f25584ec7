package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wanderwoll/mockup-pipeline/internal/cache"
	"github.com/wanderwoll/mockup-pipeline/internal/connector"
	"github.com/wanderwoll/mockup-pipeline/pkg/logger"
	"github.com/wanderwoll/mockup-pipeline/pkg/testutil"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestOrchestrator(t *testing.T, cfg Config) (*Orchestrator, *testutil.Set) {
	t.Helper()
	mocks := testutil.NewSet()
	o := New(cfg, nil, logger.NewDiscard())
	o.RegisterConnectors(mocks.Connectors())
	return o, mocks
}

var testUpload = DesignUpload{
	DesignFile:   "https://example.com/test-design.png",
	ProductType:  "tshirt",
	ColorVariant: "forest-green",
}

func TestNewAppliesDefaults(t *testing.T) {
	o := New(Config{}, nil, nil)
	cfg := o.Config()

	assert.Equal(t, 7*24*time.Hour, cfg.CacheExpiry)
	assert.Equal(t, []string{"forest-green", "beige", "black"}, cfg.DefaultColorVariants)
	assert.Equal(t, 10*time.Second, cfg.HealthTimeout)
	assert.False(t, cfg.CacheEnabled)
	assert.False(t, cfg.FallbackEnabled)
}

func TestRegisterAndGetConnector(t *testing.T) {
	o, mocks := newTestOrchestrator(t, DefaultConfig())

	c, err := o.GetConnector(VirtualThreads)
	require.NoError(t, err)
	assert.Same(t, mocks.VirtualThreads, c)

	_, err = o.GetConnector("etsy")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConnectorNotFound))
	assert.Equal(t, "connector not found: etsy", err.Error())

	assert.Equal(t, []string{"blender", "cgtrader", "mockey", "shopify", "virtualthreads"}, o.ConnectorNames())

	replacement := testutil.NewMockVirtualThreads()
	o.RegisterConnector(VirtualThreads, replacement)
	c, err = o.GetConnector(VirtualThreads)
	require.NoError(t, err)
	assert.Same(t, replacement, c)
}

func TestProcessDesignUploadPrimary(t *testing.T) {
	o, mocks := newTestOrchestrator(t, DefaultConfig())

	res, err := o.ProcessDesignUpload(context.Background(), testUpload)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.False(t, res.UsedFallback)
	assert.Equal(t, "https://cdn.virtualthreads.io/mockups/tshirt_forest-green.png", res.MockupURL)
	assert.Equal(t, 1, mocks.VirtualThreads.Calls())
	assert.Equal(t, 0, mocks.Mockey.Calls())
}

func TestProcessDesignUploadValidation(t *testing.T) {
	o, mocks := newTestOrchestrator(t, DefaultConfig())

	_, err := o.ProcessDesignUpload(context.Background(), DesignUpload{ProductType: "tshirt"})
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Equal(t, "designFile is required", err.Error())

	_, err = o.ProcessDesignUpload(context.Background(), DesignUpload{DesignFile: "x.png"})
	assert.Equal(t, "productType is required", err.Error())
	assert.Zero(t, mocks.VirtualThreads.Calls())
}

func TestCacheHitSkipsConnectors(t *testing.T) {
	o, mocks := newTestOrchestrator(t, DefaultConfig())
	ctx := context.Background()

	first, err := o.ProcessDesignUpload(ctx, testUpload)
	require.NoError(t, err)
	second, err := o.ProcessDesignUpload(ctx, testUpload)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("cached result differs (-first +second):\n%s", diff)
	}
	assert.Equal(t, 1, mocks.VirtualThreads.Calls())

	other := testUpload
	other.ColorVariant = "black"
	_, err = o.ProcessDesignUpload(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, 2, mocks.VirtualThreads.Calls())
}

func TestCacheDisabledAlwaysCallsConnector(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CacheEnabled = false
	o, mocks := newTestOrchestrator(t, cfg)

	for i := 0; i < 3; i++ {
		_, err := o.ProcessDesignUpload(context.Background(), testUpload)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, mocks.VirtualThreads.Calls())
}

func TestExpiredCacheEntryTriggersLiveCall(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	store := cache.NewMemory(time.Hour)
	store.SetClock(clock.Now)

	mocks := testutil.NewSet()
	o := New(DefaultConfig(), store, logger.NewDiscard())
	o.RegisterConnectors(mocks.Connectors())
	ctx := context.Background()

	_, err := o.ProcessDesignUpload(ctx, testUpload)
	require.NoError(t, err)

	clock.Advance(time.Hour)
	_, err = o.ProcessDesignUpload(ctx, testUpload)
	require.NoError(t, err)
	assert.Equal(t, 1, mocks.VirtualThreads.Calls(), "entry at exactly the expiry is still valid")

	clock.Advance(time.Second)
	_, err = o.ProcessDesignUpload(ctx, testUpload)
	require.NoError(t, err)
	assert.Equal(t, 2, mocks.VirtualThreads.Calls())
}

func TestClearCache(t *testing.T) {
	o, mocks := newTestOrchestrator(t, DefaultConfig())
	ctx := context.Background()

	_, err := o.ProcessDesignUpload(ctx, testUpload)
	require.NoError(t, err)
	require.NoError(t, o.ClearCache(ctx))
	_, err = o.ProcessDesignUpload(ctx, testUpload)
	require.NoError(t, err)

	assert.Equal(t, 2, mocks.VirtualThreads.Calls())
}

func TestFallbackToMockey(t *testing.T) {
	o, mocks := newTestOrchestrator(t, DefaultConfig())
	mocks.VirtualThreads.FailWith(errors.New("Simulated VirtualThreads failure for fallback test"))
	ctx := context.Background()

	res, err := o.ProcessDesignUpload(ctx, testUpload)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.True(t, res.UsedFallback)
	assert.Equal(t, "https://cdn.mockey.ai/mockups/tshirt_forest-green.png", res.MockupURL)
	assert.Equal(t, 1, mocks.Mockey.Calls())

	// Fallback output is not cached: the next call tries the primary again.
	mocks.VirtualThreads.FailWith(nil)
	res, err = o.ProcessDesignUpload(ctx, testUpload)
	require.NoError(t, err)
	assert.False(t, res.UsedFallback)
	assert.Equal(t, 2, mocks.VirtualThreads.Calls())
}

func TestFallbackDisabledPropagatesPrimaryError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FallbackEnabled = false
	o, mocks := newTestOrchestrator(t, cfg)

	primary := errors.New("virtualthreads unavailable")
	mocks.VirtualThreads.FailWith(primary)

	_, err := o.ProcessDesignUpload(context.Background(), testUpload)
	require.Error(t, err)
	assert.Same(t, primary, err)
	assert.Zero(t, mocks.Mockey.Calls())
}

func TestBothConnectorsFail(t *testing.T) {
	o, mocks := newTestOrchestrator(t, DefaultConfig())
	primary := errors.New("virtualthreads unavailable")
	secondary := errors.New("mockey unavailable")
	mocks.VirtualThreads.FailWith(primary)
	mocks.Mockey.FailWith(secondary)

	_, err := o.ProcessDesignUpload(context.Background(), testUpload)
	require.Error(t, err)
	assert.Equal(t, "failed to process design upload: virtualthreads unavailable", err.Error())
	assert.True(t, errors.Is(err, primary))
	assert.True(t, errors.Is(err, secondary))

	var fbErr *FallbackError
	require.True(t, errors.As(err, &fbErr))
	assert.Equal(t, "design upload", fbErr.Operation)
}

func TestMissingPrimaryConnectorFallsBack(t *testing.T) {
	o := New(DefaultConfig(), nil, logger.NewDiscard())
	mockey := testutil.NewMockMockey()
	o.RegisterConnector(Mockey, mockey)

	res, err := o.ProcessDesignUpload(context.Background(), testUpload)
	require.NoError(t, err)
	assert.True(t, res.UsedFallback)

	empty := New(DefaultConfig(), nil, logger.NewDiscard())
	_, err = empty.ProcessDesignUpload(context.Background(), testUpload)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConnectorNotFound))
	assert.Equal(t, "failed to process design upload: connector not found: virtualthreads", err.Error())
}

func TestUnsupportedCapability(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FallbackEnabled = false
	o := New(cfg, nil, logger.NewDiscard())
	o.RegisterConnector(VirtualThreads, testutil.BareConnector{P: connector.ProviderVirtualThreads})

	_, err := o.ProcessDesignUpload(context.Background(), testUpload)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupported))
}

func TestCancelledContextSkipsFallback(t *testing.T) {
	o, mocks := newTestOrchestrator(t, DefaultConfig())
	mocks.VirtualThreads.SetDelay(time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := o.ProcessDesignUpload(ctx, testUpload)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Zero(t, mocks.Mockey.Calls())
}

func TestProcess3DModel(t *testing.T) {
	o, mocks := newTestOrchestrator(t, DefaultConfig())

	res, err := o.Process3DModel(context.Background(), ModelRequest{
		ProductType:    "tshirt",
		ColorVariant:   "forest-green",
		ProcessingMode: connector.ModeConvert,
	})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.False(t, res.UsedFallback)
	assert.Equal(t, "tshirt", res.ProductType)
	assert.Equal(t, "/mock/cgtrader-assets/models/tshirt.glb", res.InputFile)
	assert.Equal(t, "/mock/cgtrader-assets/models/tshirt_processed_forest-green.glb", res.OutputFile)
	assert.Equal(t, 1, mocks.CGTrader.Calls())
	assert.Equal(t, 1, mocks.Blender.Calls())
}

func TestProcess3DModelWithExplicitFile(t *testing.T) {
	o, mocks := newTestOrchestrator(t, DefaultConfig())

	res, err := o.Process3DModel(context.Background(), ModelRequest{
		ModelFile:    "/tmp/custom.glb",
		ProductType:  "hoodie",
		ColorVariant: "black",
	})
	require.NoError(t, err)

	assert.Equal(t, "/tmp/custom.glb", res.InputFile)
	assert.Equal(t, connector.ModeConvert, res.Mode)
	assert.Zero(t, mocks.CGTrader.Calls())
}

func TestProcess3DModelDefaultModeSharesCacheEntry(t *testing.T) {
	o, mocks := newTestOrchestrator(t, DefaultConfig())
	ctx := context.Background()

	first, err := o.Process3DModel(ctx, ModelRequest{ProductType: "tshirt", ColorVariant: "black"})
	require.NoError(t, err)
	second, err := o.Process3DModel(ctx, ModelRequest{
		ProductType:    "tshirt",
		ColorVariant:   "black",
		ProcessingMode: connector.ModeConvert,
	})
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("cached model mismatch (-first +second):\n%s", diff)
	}
	assert.Equal(t, 1, mocks.Blender.Calls())
	assert.Equal(t, 1, mocks.CGTrader.Calls())
}

func TestProcess3DModelFallback(t *testing.T) {
	o, mocks := newTestOrchestrator(t, DefaultConfig())
	mocks.Blender.FailWith(errors.New("blender crashed"))

	res, err := o.Process3DModel(context.Background(), ModelRequest{ProductType: "tshirt", ColorVariant: "beige"})
	require.NoError(t, err)

	assert.True(t, res.UsedFallback)
	assert.Equal(t, "/mock/cgtrader-assets/models/tshirt_beige.glb", res.FilePath)

	mocks.CGTrader.FailWith(errors.New("asset library offline"))
	_, err = o.Process3DModel(context.Background(), ModelRequest{ProductType: "tshirt", ColorVariant: "black"})
	require.Error(t, err)
	assert.Equal(t, "failed to process 3D model: asset library offline", err.Error())
}

func TestGenerateProductMockups(t *testing.T) {
	o, mocks := newTestOrchestrator(t, DefaultConfig())
	variants := []string{"forest-green", "beige", "black"}

	results, err := o.GenerateProductMockups(context.Background(), MockupSetRequest{
		ProductType:   "tshirt",
		DesignFile:    "https://example.com/test-design.png",
		ColorVariants: variants,
	})
	require.NoError(t, err)

	require.Len(t, results, len(variants))
	for _, v := range variants {
		require.Contains(t, results, v)
		assert.True(t, results[v].Success)
		assert.Equal(t, v, results[v].ColorVariant)
	}
	assert.Equal(t, 3, mocks.VirtualThreads.Calls())
}

func TestGenerateProductMockupsRecordsFailures(t *testing.T) {
	o, mocks := newTestOrchestrator(t, DefaultConfig())
	mocks.VirtualThreads.FailWith(errors.New("vt down"))
	mocks.Mockey.FailWith(errors.New("mockey down"))

	results, err := o.GenerateProductMockups(context.Background(), MockupSetRequest{
		ProductType: "tshirt",
		DesignFile:  "https://example.com/test-design.png",
	})
	require.NoError(t, err)

	assert.Len(t, results, 3, "default colour variants are used")
	for _, res := range results {
		assert.False(t, res.Success)
		assert.Equal(t, "failed to process design upload: vt down", res.Error)
	}
}

func TestProcessProductForShopify(t *testing.T) {
	o, mocks := newTestOrchestrator(t, DefaultConfig())

	res, err := o.ProcessProductForShopify(context.Background(), ProductRequest{
		ProductType:     "tshirt",
		ColorVariants:   []string{"forest-green", "black"},
		GenerateMockups: true,
	})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Len(t, res.Models, 2)
	assert.Len(t, res.Mockups, 2)
	assert.Equal(t, "https://cdn.mockey.ai/mockups/tshirt_black.png", res.Mockups["black"].MockupURL)
	assert.Zero(t, mocks.VirtualThreads.Calls())
}

func TestProcessProductForShopifyWithoutMockups(t *testing.T) {
	o, mocks := newTestOrchestrator(t, DefaultConfig())

	res, err := o.ProcessProductForShopify(context.Background(), ProductRequest{ProductType: "beanie"})
	require.NoError(t, err)

	assert.Len(t, res.Models, 3)
	assert.Empty(t, res.Mockups)
	assert.Zero(t, mocks.Mockey.Calls())
}

func TestProcessProductForShopifyFailure(t *testing.T) {
	o, mocks := newTestOrchestrator(t, DefaultConfig())
	mocks.Blender.FailWith(errors.New("blender crashed"))
	mocks.CGTrader.FailWith(errors.New("no such model"))

	_, err := o.ProcessProductForShopify(context.Background(), ProductRequest{ProductType: "tshirt"})
	require.Error(t, err)
	assert.Equal(t, "failed to process product for Shopify: failed to process 3D model: no such model", err.Error())
}

func TestUpdateShopifyProduct(t *testing.T) {
	o, mocks := newTestOrchestrator(t, DefaultConfig())
	models := map[string]connector.ModelResult{
		"black": {Success: true, FilePath: "/out/tshirt_black.glb"},
	}

	res, err := o.UpdateShopifyProduct(context.Background(), ShopifyUpdate{
		ProductID: "7001",
		Models:    models,
		Mockups: map[string]connector.MockupResult{
			"forest-green": {Success: true, ImageURL: "https://img/green.png"},
			"beige":        {Success: true, MockupURL: "https://img/beige.png"},
			"black":        {Success: false, Error: "render failed"},
		},
	})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Len(t, res.Metafields, 2)
	assert.Len(t, res.Images, 2)
	assert.NotContains(t, res.Images, "black")

	fields := mocks.Shopify.Metafields("7001")
	assert.Equal(t, true, fields["has3dModel"])
	var decoded map[string]connector.ModelResult
	require.NoError(t, json.Unmarshal([]byte(fields["modelData"].(string)), &decoded))
	if diff := cmp.Diff(models, decoded); diff != "" {
		t.Fatalf("model data mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, []string{"https://img/beige.png", "https://img/green.png"}, mocks.Shopify.Images("7001"))
}

func TestUpdateShopifyProductErrors(t *testing.T) {
	o, mocks := newTestOrchestrator(t, DefaultConfig())

	_, err := o.UpdateShopifyProduct(context.Background(), ShopifyUpdate{})
	assert.True(t, IsValidation(err))

	mocks.Shopify.FailWith(errors.New("401 Unauthorized"))
	_, err = o.UpdateShopifyProduct(context.Background(), ShopifyUpdate{ProductID: "1"})
	require.Error(t, err)
	assert.Equal(t, "failed to update Shopify product: 401 Unauthorized", err.Error())
}

func TestBatchProcessProducts(t *testing.T) {
	o, mocks := newTestOrchestrator(t, DefaultConfig())

	results := o.BatchProcessProducts(context.Background(), []ProductRequest{
		{ProductType: "tshirt", ColorVariants: []string{"black"}, GenerateMockups: true, ProductID: "42"},
		{ColorVariants: []string{"black"}},
		{ProductType: "hoodie", ColorVariants: []string{"beige"}},
	})
	require.Len(t, results, 3)

	assert.True(t, results[0].Success)
	require.NotNil(t, results[0].ShopifyUpdate)
	assert.Equal(t, "42", results[0].ShopifyUpdate.ProductID)
	assert.Len(t, mocks.Shopify.Images("42"), 1)

	assert.False(t, results[1].Success)
	assert.Equal(t, "productType is required", results[1].Error)

	assert.True(t, results[2].Success)
	assert.Nil(t, results[2].ShopifyUpdate)
}

func TestCheckHealth(t *testing.T) {
	o, mocks := newTestOrchestrator(t, DefaultConfig())
	mocks.Mockey.FailWith(errors.New("mockey down"))
	o.RegisterConnector("printify", testutil.BareConnector{P: connector.ProviderPrintify})

	report := o.CheckHealth(context.Background())

	assert.Equal(t, connector.StatusHealthy, report.Orchestrator.Status)
	require.Len(t, report.Connectors, 6)
	assert.Equal(t, connector.StatusHealthy, report.Connectors[VirtualThreads].Status)
	assert.Equal(t, connector.StatusUnhealthy, report.Connectors[Mockey].Status)
	assert.Equal(t, "mockey down", report.Connectors[Mockey].Error)
	assert.Equal(t, connector.StatusUnknown, report.Connectors["printify"].Status)
	assert.Equal(t, "Health check not implemented", report.Connectors["printify"].Message)
	assert.False(t, report.Healthy())
}

func TestCheckHealthTimesOut(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HealthTimeout = 10 * time.Millisecond
	o, mocks := newTestOrchestrator(t, cfg)
	mocks.Blender.SetDelay(time.Second)

	start := time.Now()
	report := o.CheckHealth(context.Background())

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, connector.StatusUnhealthy, report.Connectors[Blender].Status)
	assert.Equal(t, connector.StatusHealthy, report.Connectors[Shopify].Status)
}
