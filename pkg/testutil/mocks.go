// Package testutil provides mock connectors for tests, the self-test suite
// and mock mode.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/wanderwoll/mockup-pipeline/internal/connector"
)

// ErrSimulated is returned by a mock told to fail without a specific error.
var ErrSimulated = errors.New("simulated connector failure")

// Behavior controls how a mock responds.
type Behavior struct {
	mu    sync.RWMutex
	delay time.Duration
	err   error
	calls atomic.Int64
}

// SetDelay makes every call wait d before answering.
func (b *Behavior) SetDelay(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.delay = d
}

// FailWith makes every call return err. A nil err restores success.
func (b *Behavior) FailWith(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.err = err
}

// Calls returns how many operations were invoked, health checks excluded.
func (b *Behavior) Calls() int {
	return int(b.calls.Load())
}

// ResetCalls zeroes the call counter.
func (b *Behavior) ResetCalls() {
	b.calls.Store(0)
}

func (b *Behavior) invoke(ctx context.Context) error {
	b.calls.Add(1)
	return b.wait(ctx)
}

func (b *Behavior) wait(ctx context.Context) error {
	b.mu.RLock()
	delay, err := b.delay, b.err
	b.mu.RUnlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

func (b *Behavior) health(ctx context.Context) (connector.HealthStatus, error) {
	if err := b.wait(ctx); err != nil {
		return connector.HealthStatus{}, err
	}
	return connector.Healthy(map[string]interface{}{"mock": true}), nil
}

// MockVirtualThreads renders mockups on the VirtualThreads CDN layout.
type MockVirtualThreads struct {
	Behavior
}

var (
	_ connector.MockupGenerator = (*MockVirtualThreads)(nil)
	_ connector.HealthChecker   = (*MockVirtualThreads)(nil)
)

func NewMockVirtualThreads() *MockVirtualThreads { return &MockVirtualThreads{} }

func (m *MockVirtualThreads) Provider() connector.Provider {
	return connector.ProviderVirtualThreads
}

func (m *MockVirtualThreads) GenerateMockup(ctx context.Context, req connector.MockupRequest) (connector.MockupResult, error) {
	if err := m.invoke(ctx); err != nil {
		return connector.MockupResult{}, err
	}
	return connector.MockupResult{
		Success:      true,
		MockupID:     "vt-" + uuid.NewString(),
		MockupURL:    fmt.Sprintf("https://cdn.virtualthreads.io/mockups/%s_%s.png", req.ProductType, req.ColorVariant),
		ProductType:  req.ProductType,
		ColorVariant: req.ColorVariant,
	}, nil
}

func (m *MockVirtualThreads) CheckHealth(ctx context.Context) (connector.HealthStatus, error) {
	return m.health(ctx)
}

// MockMockey renders mockups on the Mockey CDN layout.
type MockMockey struct {
	Behavior
}

var (
	_ connector.MockupGenerator        = (*MockMockey)(nil)
	_ connector.ProductMockupGenerator = (*MockMockey)(nil)
	_ connector.HealthChecker          = (*MockMockey)(nil)
)

func NewMockMockey() *MockMockey { return &MockMockey{} }

func (m *MockMockey) Provider() connector.Provider { return connector.ProviderMockey }

func (m *MockMockey) GenerateMockup(ctx context.Context, req connector.MockupRequest) (connector.MockupResult, error) {
	return m.GenerateProductMockup(ctx, req.ProductType, req.ColorVariant)
}

func (m *MockMockey) GenerateProductMockup(ctx context.Context, productType, colorVariant string) (connector.MockupResult, error) {
	if err := m.invoke(ctx); err != nil {
		return connector.MockupResult{}, err
	}
	return connector.MockupResult{
		Success:      true,
		MockupID:     "mk-" + uuid.NewString(),
		MockupURL:    fmt.Sprintf("https://cdn.mockey.ai/mockups/%s_%s.png", productType, colorVariant),
		ProductType:  productType,
		ColorVariant: colorVariant,
	}, nil
}

func (m *MockMockey) CheckHealth(ctx context.Context) (connector.HealthStatus, error) {
	return m.health(ctx)
}

// MockCGTrader serves models from a fixed asset path.
type MockCGTrader struct {
	Behavior
	Root string
}

var (
	_ connector.ModelSource         = (*MockCGTrader)(nil)
	_ connector.FallbackModelSource = (*MockCGTrader)(nil)
	_ connector.HealthChecker       = (*MockCGTrader)(nil)
)

func NewMockCGTrader() *MockCGTrader {
	return &MockCGTrader{Root: "/mock/cgtrader-assets"}
}

func (m *MockCGTrader) Provider() connector.Provider { return connector.ProviderCGTrader }

func (m *MockCGTrader) GetModel(ctx context.Context, productType string) (connector.ModelResult, error) {
	if err := m.invoke(ctx); err != nil {
		return connector.ModelResult{}, err
	}
	return connector.ModelResult{
		Success:     true,
		ProductType: productType,
		FilePath:    fmt.Sprintf("%s/models/%s.glb", m.Root, productType),
		Format:      "glb",
	}, nil
}

func (m *MockCGTrader) GetFallbackModel(ctx context.Context, productType, colorVariant string) (connector.ModelResult, error) {
	if err := m.invoke(ctx); err != nil {
		return connector.ModelResult{}, err
	}
	return connector.ModelResult{
		Success:      true,
		ProductType:  productType,
		ColorVariant: colorVariant,
		FilePath:     fmt.Sprintf("%s/models/%s_%s.glb", m.Root, productType, colorVariant),
		Format:       "glb",
	}, nil
}

func (m *MockCGTrader) CheckHealth(ctx context.Context) (connector.HealthStatus, error) {
	return m.health(ctx)
}

// MockBlender pretends to recolour models.
type MockBlender struct {
	Behavior
}

var (
	_ connector.ModelProcessor = (*MockBlender)(nil)
	_ connector.HealthChecker  = (*MockBlender)(nil)
)

func NewMockBlender() *MockBlender { return &MockBlender{} }

func (m *MockBlender) Provider() connector.Provider { return connector.ProviderBlender }

func (m *MockBlender) ProcessModel(ctx context.Context, job connector.ModelJob) (connector.ModelResult, error) {
	if err := m.invoke(ctx); err != nil {
		return connector.ModelResult{}, err
	}
	mode := job.Mode
	if mode == "" {
		mode = connector.ModeConvert
	}
	ext := "glb"
	if mode == connector.ModeRender {
		ext = "png"
	}
	output := job.OutputFile
	if output == "" {
		output = fmt.Sprintf("%s_processed_%s.%s", strings.TrimSuffix(job.InputFile, filepath.Ext(job.InputFile)), job.ColorVariant, ext)
	}
	return connector.ModelResult{
		Success:      true,
		ColorVariant: job.ColorVariant,
		InputFile:    job.InputFile,
		OutputFile:   output,
		FilePath:     output,
		Format:       ext,
		Mode:         mode,
	}, nil
}

func (m *MockBlender) CheckHealth(ctx context.Context) (connector.HealthStatus, error) {
	return m.health(ctx)
}

// MockShopify records metafield writes and image uploads.
type MockShopify struct {
	Behavior

	state      sync.Mutex
	nextID     int64
	metafields map[string]map[string]interface{}
	images     map[string][]string
}

var (
	_ connector.MetafieldUpdater = (*MockShopify)(nil)
	_ connector.ImageUploader    = (*MockShopify)(nil)
	_ connector.HealthChecker    = (*MockShopify)(nil)
)

func NewMockShopify() *MockShopify {
	return &MockShopify{
		metafields: make(map[string]map[string]interface{}),
		images:     make(map[string][]string),
	}
}

func (m *MockShopify) Provider() connector.Provider { return connector.ProviderShopify }

func (m *MockShopify) UpdateProductMetafields(ctx context.Context, productID string, fields map[string]interface{}) (map[string]connector.UpdateResult, error) {
	if err := m.invoke(ctx); err != nil {
		return nil, err
	}
	m.state.Lock()
	defer m.state.Unlock()

	stored := m.metafields[productID]
	if stored == nil {
		stored = make(map[string]interface{})
		m.metafields[productID] = stored
	}
	results := make(map[string]connector.UpdateResult, len(fields))
	for key, value := range fields {
		m.nextID++
		stored[key] = value
		results[key] = connector.UpdateResult{Success: true, MetafieldID: m.nextID}
	}
	return results, nil
}

func (m *MockShopify) UploadProductImage(ctx context.Context, productID, imageURL, _ string) (connector.ImageResult, error) {
	if err := m.invoke(ctx); err != nil {
		return connector.ImageResult{}, err
	}
	m.state.Lock()
	defer m.state.Unlock()

	m.nextID++
	m.images[productID] = append(m.images[productID], imageURL)
	return connector.ImageResult{Success: true, ImageID: m.nextID, Src: imageURL}, nil
}

// Metafields returns the values written for productID.
func (m *MockShopify) Metafields(productID string) map[string]interface{} {
	m.state.Lock()
	defer m.state.Unlock()
	out := make(map[string]interface{}, len(m.metafields[productID]))
	for k, v := range m.metafields[productID] {
		out[k] = v
	}
	return out
}

// Images returns the image URLs uploaded for productID, in upload order.
func (m *MockShopify) Images(productID string) []string {
	m.state.Lock()
	defer m.state.Unlock()
	return append([]string(nil), m.images[productID]...)
}

func (m *MockShopify) CheckHealth(ctx context.Context) (connector.HealthStatus, error) {
	return m.health(ctx)
}

// BareConnector implements no capabilities. Registered under a routed name
// it exercises the unsupported and unknown-health paths.
type BareConnector struct {
	P connector.Provider
}

func (b BareConnector) Provider() connector.Provider { return b.P }

// Set is the full mock connector set keyed by provider.
type Set struct {
	VirtualThreads *MockVirtualThreads
	Mockey         *MockMockey
	CGTrader       *MockCGTrader
	Blender        *MockBlender
	Shopify        *MockShopify
}

// NewSet creates one mock per routed provider.
func NewSet() *Set {
	return &Set{
		VirtualThreads: NewMockVirtualThreads(),
		Mockey:         NewMockMockey(),
		CGTrader:       NewMockCGTrader(),
		Blender:        NewMockBlender(),
		Shopify:        NewMockShopify(),
	}
}

// Connectors returns the set in the shape Orchestrator.RegisterConnectors takes.
func (s *Set) Connectors() map[connector.Provider]connector.Connector {
	return map[connector.Provider]connector.Connector{
		connector.ProviderVirtualThreads: s.VirtualThreads,
		connector.ProviderMockey:         s.Mockey,
		connector.ProviderCGTrader:       s.CGTrader,
		connector.ProviderBlender:        s.Blender,
		connector.ProviderShopify:        s.Shopify,
	}
}

// SimulateLatency gives each mock a fixed response delay modelled on the real
// providers' relative speeds, scaled by unit.
func (s *Set) SimulateLatency(unit time.Duration) *Set {
	s.VirtualThreads.SetDelay(5 * unit)
	s.Mockey.SetDelay(7 * unit)
	s.CGTrader.SetDelay(3 * unit)
	s.Blender.SetDelay(10 * unit)
	s.Shopify.SetDelay(2 * unit)
	return s
}
