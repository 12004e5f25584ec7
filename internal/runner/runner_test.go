package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wanderwoll/mockup-pipeline/internal/connector"
	"github.com/wanderwoll/mockup-pipeline/internal/pipeline"
	"github.com/wanderwoll/mockup-pipeline/internal/selftest"
	"github.com/wanderwoll/mockup-pipeline/internal/store"
	"github.com/wanderwoll/mockup-pipeline/pkg/logger"
	"github.com/wanderwoll/mockup-pipeline/pkg/testutil"
)

func newOrchestrator(mocks *testutil.Set) *pipeline.Orchestrator {
	o := pipeline.New(pipeline.DefaultConfig(), nil, logger.NewDiscard())
	o.RegisterConnectors(mocks.Connectors())
	return o
}

type fixture struct {
	runner *Runner
	mocks  *testutil.Set
	files  *store.FileStore
	out    *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mocks := testutil.NewSet()
	files, err := store.NewFileStore(t.TempDir(), logger.NewDiscard())
	require.NoError(t, err)

	out := &bytes.Buffer{}
	suite := selftest.New(func() (*pipeline.Orchestrator, error) {
		return newOrchestrator(testutil.NewSet().SimulateLatency(time.Millisecond)), nil
	}, logger.NewDiscard())

	r, err := New(Options{
		Orchestrator: newOrchestrator(mocks),
		Results:      files,
		Suite:        suite,
		Out:          out,
		Log:          logger.NewDiscard(),
	})
	require.NoError(t, err)
	r.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return &fixture{runner: r, mocks: mocks, files: files, out: out}
}

func (f *fixture) runs(t *testing.T, kind string) []store.Run {
	t.Helper()
	runs, err := f.files.List(context.Background(), kind, 0)
	require.NoError(t, err)
	return runs
}

func readJSON(t *testing.T, path string, v interface{}) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Options{})
	assert.EqualError(t, err, "runner needs an orchestrator")

	_, err = New(Options{Orchestrator: pipeline.New(pipeline.DefaultConfig(), nil, nil)})
	assert.EqualError(t, err, "runner needs a result store")
}

func TestHealthDefaultCommand(t *testing.T) {
	f := newFixture(t)
	f.runner.orch.RegisterConnector("printify", testutil.BareConnector{P: connector.ProviderPrintify})
	f.mocks.Shopify.FailWith(errors.New("401 Unauthorized"))

	require.NoError(t, f.runner.Run(context.Background(), nil))

	out := f.out.String()
	assert.Contains(t, out, "Orchestrator: healthy\n")
	assert.Contains(t, out, "blender: healthy\n")
	assert.Contains(t, out, "printify: unknown\n  Error: Health check not implemented\n")
	assert.Contains(t, out, "shopify: unhealthy\n  Error: 401 Unauthorized\n")

	runs := f.runs(t, store.KindHealth)
	require.Len(t, runs, 1)
	assert.False(t, runs[0].Success)
}

func TestProcessSavesResult(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.runner.Run(context.Background(), []string{"process", "hoodie"}))

	out := f.out.String()
	assert.Contains(t, out, "Processing product: hoodie")
	assert.Contains(t, out, "Generated 3 model variants")
	assert.Contains(t, out, "Generated 3 mockup variants")

	path := filepath.Join(f.files.Dir(), "hoodie-result.json")
	assert.Contains(t, out, "Results saved to "+path)

	var saved pipeline.ProductResult
	readJSON(t, path, &saved)
	assert.True(t, saved.Success)
	assert.Len(t, saved.Models, 3)
	assert.Equal(t, "https://cdn.mockey.ai/mockups/hoodie_black.png", saved.Mockups["black"].MockupURL)

	runs := f.runs(t, store.KindProcess)
	require.Len(t, runs, 1)
	assert.Equal(t, "hoodie", runs[0].Subject)
}

func TestProcessFailure(t *testing.T) {
	f := newFixture(t)
	f.mocks.Blender.FailWith(errors.New("blender crashed"))
	f.mocks.CGTrader.FailWith(errors.New("assets missing"))

	err := f.runner.Run(context.Background(), []string{"process"})
	require.Error(t, err)
	assert.Contains(t, f.out.String(), "Error processing product: failed to process product for Shopify")

	_, statErr := os.Stat(filepath.Join(f.files.Dir(), "tshirt-result.json"))
	assert.True(t, os.IsNotExist(statErr))
	runs := f.runs(t, store.KindProcess)
	require.Len(t, runs, 1)
	assert.False(t, runs[0].Success)
}

func TestDesignDefaults(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.runner.Run(context.Background(), []string{"design"}))

	assert.Contains(t, f.out.String(), "Processing design upload for tshirt: https://example.com/test-design.png")

	var saved map[string]connector.MockupResult
	readJSON(t, filepath.Join(f.files.Dir(), "tshirt-design-result.json"), &saved)
	assert.Len(t, saved, 3)
	assert.Equal(t, "https://cdn.virtualthreads.io/mockups/tshirt_beige.png", saved["beige"].MockupURL)
}

func TestTestCommand(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.runner.Run(context.Background(), []string{"test"}))

	out := f.out.String()
	assert.Contains(t, out, "Total Tests: 7\n")
	assert.Contains(t, out, "Passed Tests: 7\n")
	assert.Contains(t, out, "Success Rate: 100%\n")
	assert.Contains(t, out, "Overall Success: YES\n")

	var saved selftest.Report
	readJSON(t, filepath.Join(f.files.Dir(), "test-results", "test-results-1700000000000.json"), &saved)
	assert.Equal(t, 7, saved.Summary.PassedTests)
}

func TestAllRunsEveryStep(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.runner.Run(context.Background(), []string{"all"}))

	for _, name := range []string{"tshirt-result.json", "hoodie-result.json", "tshirt-design-result.json"} {
		_, err := os.Stat(filepath.Join(f.files.Dir(), name))
		assert.NoError(t, err, name)
	}
	assert.Len(t, f.runs(t, store.KindHealth), 1)
	assert.Len(t, f.runs(t, store.KindProcess), 2)
	assert.Len(t, f.runs(t, store.KindSelfTest), 1)
}

func TestAllContinuesAfterFailure(t *testing.T) {
	f := newFixture(t)
	f.mocks.Blender.FailWith(errors.New("blender crashed"))
	f.mocks.CGTrader.FailWith(errors.New("assets missing"))

	err := f.runner.Run(context.Background(), []string{"all"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to process product for Shopify")

	_, statErr := os.Stat(filepath.Join(f.files.Dir(), "tshirt-design-result.json"))
	assert.NoError(t, statErr)
	assert.Len(t, f.runs(t, store.KindSelfTest), 1)
}

func TestBatch(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(t.TempDir(), "batch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
products:
  - productType: tshirt
    colorVariants: [black]
    productId: "1001"
  - productType: beanie
    colorVariants: [beige]
`), 0o644))

	require.NoError(t, f.runner.Run(context.Background(), []string{"batch", path}))

	assert.Contains(t, f.out.String(), "Processing 2 products from "+path)
	assert.Contains(t, f.out.String(), "Processed 2/2 products successfully")
	assert.Equal(t, true, f.mocks.Shopify.Metafields("1001")["has3dModel"])
	assert.Empty(t, f.mocks.Shopify.Metafields("beanie"))

	var saved []pipeline.ProductResult
	readJSON(t, filepath.Join(f.files.Dir(), "batch-result.json"), &saved)
	require.Len(t, saved, 2)
	require.NotNil(t, saved[0].ShopifyUpdate)
	assert.Equal(t, "beanie", saved[1].ProductType)
}

func TestBatchRequiresFile(t *testing.T) {
	f := newFixture(t)

	err := f.runner.Run(context.Background(), []string{"batch"})
	assert.ErrorIs(t, err, ErrMissingArgument)
}

type fakeRenderer struct {
	fail map[string]bool
	got  []string
}

func (f *fakeRenderer) Provider() connector.Provider { return connector.ProviderBlender }

func (f *fakeRenderer) ProcessAllColors(_ context.Context, input, outputDir, baseName, mode string) []connector.ModelResult {
	f.got = []string{input, outputDir, baseName, mode}
	var out []connector.ModelResult
	for _, color := range []string{"beige", "black"} {
		if f.fail[color] {
			out = append(out, connector.ModelResult{ColorVariant: color, Error: "render failed"})
			continue
		}
		out = append(out, connector.ModelResult{
			Success:      true,
			ColorVariant: color,
			OutputFile:   filepath.Join(outputDir, fmt.Sprintf("%s_%s.png", baseName, color)),
		})
	}
	return out
}

func TestRender(t *testing.T) {
	f := newFixture(t)
	renderer := &fakeRenderer{}
	f.runner.orch.RegisterConnector(pipeline.Blender, renderer)

	require.NoError(t, f.runner.Run(context.Background(), []string{"render", "models/tshirt.glb", "tee", "render"}))

	assert.Equal(t, []string{"models/tshirt.glb", filepath.Join(f.files.Dir(), "renders"), "tee", "render"}, renderer.got)
	assert.Contains(t, f.out.String(), filepath.Join(f.files.Dir(), "renders", "tee_black.png"))
	runs := f.runs(t, store.KindRender)
	require.Len(t, runs, 1)
	assert.True(t, runs[0].Success)
}

func TestRenderReportsFailedColours(t *testing.T) {
	f := newFixture(t)
	f.runner.orch.RegisterConnector(pipeline.Blender, &fakeRenderer{fail: map[string]bool{"black": true}})

	err := f.runner.Run(context.Background(), []string{"render", "in.glb"})
	assert.EqualError(t, err, "render: 1 of 2 colours failed")
	assert.Contains(t, f.out.String(), "black: render failed")
}

func TestRenderNeedsCapableBlender(t *testing.T) {
	f := newFixture(t)

	err := f.runner.Run(context.Background(), []string{"render", "in.glb"})
	assert.ErrorIs(t, err, connector.ErrUnsupported)

	err = f.runner.Run(context.Background(), []string{"render"})
	assert.ErrorIs(t, err, ErrMissingArgument)
}

func TestUnknownCommandPrintsUsage(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.runner.Run(context.Background(), []string{"deploy"}))
	assert.Contains(t, f.out.String(), "Usage:\n  pipeline [command]")
}

func TestCompletion(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.runner.Run(context.Background(), []string{"completion", "zsh"}))
	assert.Contains(t, f.out.String(), "#compdef pipeline")
}

func TestServe(t *testing.T) {
	f := newFixture(t)
	f.runner.serve = ServeConfig{Addr: "127.0.0.1:0", RateLimit: 100, RateBurst: 100, ShutdownTimeout: 5 * time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	status := make(chan int, 1)
	f.runner.onServe = func(addr string) {
		go func() {
			defer cancel()
			resp, err := http.Get("http://" + addr + "/health")
			if err != nil {
				status <- 0
				return
			}
			resp.Body.Close()
			status <- resp.StatusCode
		}()
	}

	require.NoError(t, f.runner.Run(ctx, []string{"serve"}))
	assert.Equal(t, http.StatusOK, <-status)
	assert.Contains(t, f.out.String(), "Serving pipeline API on 127.0.0.1:")
}

func TestServeRejectsScheduleWithoutBatchFile(t *testing.T) {
	f := newFixture(t)
	f.runner.serve = ServeConfig{Addr: "127.0.0.1:0", BatchSchedule: "@every 1h", ShutdownTimeout: time.Second}

	err := f.runner.Serve(context.Background())
	assert.EqualError(t, err, "BATCH_SCHEDULE requires BATCH_FILE")
}

func TestServeRejectsBadSchedule(t *testing.T) {
	f := newFixture(t)
	f.runner.serve = ServeConfig{Addr: "127.0.0.1:0", BatchSchedule: "not a schedule", BatchFile: "batch.yaml", ShutdownTimeout: time.Second}

	err := f.runner.Serve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid batch schedule "not a schedule"`)
}
