// Package selftest exercises a configured pipeline end to end and reports
// which stages work.
package selftest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/wanderwoll/mockup-pipeline/internal/connector"
	"github.com/wanderwoll/mockup-pipeline/internal/pipeline"
	"github.com/wanderwoll/mockup-pipeline/pkg/logger"
	"github.com/wanderwoll/mockup-pipeline/pkg/testutil"
)

const testDesignFile = "https://example.com/test-design.png"

// ErrSimulatedFailure is what the fallback check's replacement
// VirtualThreads connector returns.
var ErrSimulatedFailure = errors.New("Simulated VirtualThreads failure for fallback test")

// Setup builds a fresh orchestrator with its connectors registered.
type Setup func() (*pipeline.Orchestrator, error)

// Result is the outcome of one check.
type Result struct {
	Success            bool        `json:"success"`
	Message            string      `json:"message,omitempty"`
	Error              string      `json:"error,omitempty"`
	Result             interface{} `json:"result,omitempty"`
	FirstCallDuration  int64       `json:"firstCallDuration,omitempty"`
	SecondCallDuration int64       `json:"secondCallDuration,omitempty"`
	Speedup            string      `json:"speedup,omitempty"`
}

type Summary struct {
	TotalTests  int    `json:"totalTests"`
	PassedTests int    `json:"passedTests"`
	Success     bool   `json:"success"`
	SuccessRate string `json:"successRate"`
}

// Report collects every check. Order lists check names in run order.
type Report struct {
	Timestamp time.Time         `json:"timestamp"`
	Tests     map[string]Result `json:"tests"`
	Order     []string          `json:"-"`
	Summary   Summary           `json:"summary"`
}

// Suite runs the checks.
type Suite struct {
	setup Setup
	log   *logger.Logger
	now   func() time.Time
}

func New(setup Setup, log *logger.Logger) *Suite {
	if log == nil {
		log = logger.NewDefault("selftest")
	}
	return &Suite{setup: setup, log: log, now: time.Now}
}

// Run executes every check. The fallback check gets its own orchestrator so
// its replaced connector cannot leak into the others.
func (s *Suite) Run(ctx context.Context) (Report, error) {
	s.log.Info("running all pipeline tests")

	o, err := s.setup()
	if err != nil {
		return Report{}, fmt.Errorf("set up pipeline: %w", err)
	}
	if err := o.ClearCache(ctx); err != nil {
		return Report{}, err
	}
	fallbackPipeline, err := s.setup()
	if err != nil {
		return Report{}, fmt.Errorf("set up fallback pipeline: %w", err)
	}

	report := Report{Timestamp: s.now().UTC(), Tests: make(map[string]Result)}
	record := func(name string, r Result) {
		report.Tests[name] = r
		report.Order = append(report.Order, name)
		entry := s.log.WithField("test", name).WithField("success", r.Success)
		if r.Message != "" {
			entry = entry.WithField("message", r.Message)
		}
		entry.Info("test finished")
	}

	record("healthCheck", s.HealthCheck(ctx, o))
	record("fallbackMechanisms", s.FallbackMechanisms(ctx, fallbackPipeline))
	record("designUpload", s.DesignUpload(ctx, o))
	record("modelProcessing", s.ModelProcessing(ctx, o))
	record("productMockups", s.ProductMockups(ctx, o))
	record("shopifyIntegration", s.ShopifyIntegration(ctx, o))
	record("caching", s.Caching(ctx, o))

	report.Summary = summarize(report.Tests)
	return report, nil
}

func summarize(tests map[string]Result) Summary {
	sum := Summary{TotalTests: len(tests)}
	for _, r := range tests {
		if r.Success {
			sum.PassedTests++
		}
	}
	sum.Success = sum.PassedTests == sum.TotalTests
	rate := 0
	if sum.TotalTests > 0 {
		rate = int(math.Round(float64(sum.PassedTests) / float64(sum.TotalTests) * 100))
	}
	sum.SuccessRate = fmt.Sprintf("%d%%", rate)
	return sum
}

func failed(err error) Result {
	return Result{Success: false, Error: err.Error()}
}

// HealthCheck passes when every connector reports healthy.
func (s *Suite) HealthCheck(ctx context.Context, o *pipeline.Orchestrator) Result {
	report := o.CheckHealth(ctx)

	var unhealthy []string
	for _, name := range o.ConnectorNames() {
		if report.Connectors[name].Status != connector.StatusHealthy {
			unhealthy = append(unhealthy, name)
		}
	}
	if len(unhealthy) > 0 {
		return Result{Success: false, Result: report, Message: "Unhealthy connectors: " + strings.Join(unhealthy, ", ")}
	}
	return Result{Success: true, Result: report, Message: "All connectors are healthy"}
}

// FallbackMechanisms swaps VirtualThreads for an always-failing connector and
// expects the design upload to be served by the fallback.
func (s *Suite) FallbackMechanisms(ctx context.Context, o *pipeline.Orchestrator) Result {
	if err := o.ClearCache(ctx); err != nil {
		return failed(err)
	}
	failing := testutil.NewMockVirtualThreads()
	failing.FailWith(ErrSimulatedFailure)
	o.RegisterConnector(pipeline.VirtualThreads, failing)

	res, err := o.ProcessDesignUpload(ctx, pipeline.DesignUpload{
		DesignFile:   fmt.Sprintf("https://example.com/test-design-fallback-%d.png", s.now().UnixMilli()),
		ProductType:  "tshirt",
		ColorVariant: "forest-green",
	})
	if err != nil {
		return Result{Success: false, Error: err.Error(), Message: "Error occurred during fallback test: " + err.Error()}
	}
	if !res.UsedFallback {
		return Result{Success: false, Result: res, Message: "Fallback was not triggered"}
	}
	return Result{Success: true, Result: res, Message: "Fallback mechanism worked correctly"}
}

func (s *Suite) DesignUpload(ctx context.Context, o *pipeline.Orchestrator) Result {
	res, err := o.ProcessDesignUpload(ctx, pipeline.DesignUpload{
		DesignFile:   testDesignFile,
		ProductType:  "tshirt",
		ColorVariant: "forest-green",
	})
	if err != nil {
		return failed(err)
	}
	return Result{Success: res.Success, Result: res}
}

func (s *Suite) ModelProcessing(ctx context.Context, o *pipeline.Orchestrator) Result {
	res, err := o.Process3DModel(ctx, pipeline.ModelRequest{
		ProductType:    "tshirt",
		ColorVariant:   "forest-green",
		ProcessingMode: connector.ModeConvert,
	})
	if err != nil {
		return failed(err)
	}
	return Result{Success: res.Success, Result: res}
}

// ProductMockups passes when every requested variant rendered.
func (s *Suite) ProductMockups(ctx context.Context, o *pipeline.Orchestrator) Result {
	variants := []string{"forest-green", "beige", "black"}
	res, err := o.GenerateProductMockups(ctx, pipeline.MockupSetRequest{
		ProductType:   "tshirt",
		DesignFile:    testDesignFile,
		ColorVariants: variants,
	})
	if err != nil {
		return failed(err)
	}

	var bad []string
	for _, v := range variants {
		if !res[v].Success {
			bad = append(bad, v)
		}
	}
	if len(bad) > 0 {
		return Result{Success: false, Result: res, Message: "Failed variants: " + strings.Join(bad, ", ")}
	}
	return Result{Success: true, Result: res, Message: "All variants generated successfully"}
}

func (s *Suite) ShopifyIntegration(ctx context.Context, o *pipeline.Orchestrator) Result {
	res, err := o.ProcessProductForShopify(ctx, pipeline.ProductRequest{
		ProductType:     "tshirt",
		ColorVariants:   []string{"forest-green", "beige", "black"},
		GenerateMockups: true,
	})
	if err != nil {
		return failed(err)
	}
	return Result{Success: res.Success, Result: res}
}

// Caching clears the cache and expects a repeated design upload to return
// faster than the first.
func (s *Suite) Caching(ctx context.Context, o *pipeline.Orchestrator) Result {
	if err := o.ClearCache(ctx); err != nil {
		return failed(err)
	}
	req := pipeline.DesignUpload{DesignFile: testDesignFile, ProductType: "tshirt", ColorVariant: "forest-green"}

	start := time.Now()
	if _, err := o.ProcessDesignUpload(ctx, req); err != nil {
		return failed(err)
	}
	first := time.Since(start)

	start = time.Now()
	if _, err := o.ProcessDesignUpload(ctx, req); err != nil {
		return failed(err)
	}
	second := time.Since(start)

	res := Result{
		Success:            second < first,
		FirstCallDuration:  first.Milliseconds(),
		SecondCallDuration: second.Milliseconds(),
		Speedup:            "0%",
	}
	if first > 0 {
		res.Speedup = fmt.Sprintf("%d%%", int(math.Round((1-float64(second)/float64(first))*100)))
	}
	if res.Success {
		res.Message = "Caching is working correctly"
	} else {
		res.Message = "Caching does not appear to be working"
	}
	return res
}
