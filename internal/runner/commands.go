package runner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/wanderwoll/mockup-pipeline/internal/cli"
	"github.com/wanderwoll/mockup-pipeline/internal/connector"
	"github.com/wanderwoll/mockup-pipeline/internal/pipeline"
	"github.com/wanderwoll/mockup-pipeline/internal/selftest"
	"github.com/wanderwoll/mockup-pipeline/internal/store"
)

// Renderer renders one model in every catalog colour. The Blender connector
// implements it.
type Renderer interface {
	ProcessAllColors(ctx context.Context, inputFile, outputDir, baseName, mode string) []connector.ModelResult
}

var _ Renderer = (*connector.Blender)(nil)

// Health prints the orchestrator and per-connector status.
func (r *Runner) Health(ctx context.Context) (pipeline.HealthReport, error) {
	r.console.Println("Running pipeline health check...")

	report := r.orch.CheckHealth(ctx)

	r.console.Heading("Pipeline Health:")
	r.console.Status("Orchestrator", string(report.Orchestrator.Status))
	names := make([]string, 0, len(report.Connectors))
	for name := range report.Connectors {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		status := report.Connectors[name]
		r.console.Status(name, string(status.Status))
		if status.Status != connector.StatusHealthy {
			reason := status.Error
			if reason == "" {
				reason = status.Message
			}
			if reason == "" {
				reason = "Unknown error"
			}
			r.console.Printf("  Error: %s\n", reason)
		}
	}

	r.record(ctx, store.KindHealth, "", report.Healthy(), report)
	return report, nil
}

// Process prepares a product in the standard colours with mockups and saves
// <productType>-result.json.
func (r *Runner) Process(ctx context.Context, productType string) (pipeline.ProductResult, error) {
	r.console.Printf("Processing product: %s\n", productType)

	result, err := r.orch.ProcessProductForShopify(ctx, pipeline.ProductRequest{
		ProductType:     productType,
		ColorVariants:   runVariants,
		GenerateMockups: true,
	})
	if err != nil {
		r.console.Error(fmt.Sprintf("Error processing product: %v", err))
		r.record(ctx, store.KindProcess, productType, false, map[string]string{"error": err.Error()})
		return pipeline.ProductResult{}, err
	}

	r.console.Success(fmt.Sprintf("Product processing complete: %s", productType))
	r.console.Printf("Generated %d model variants\n", len(result.Models))
	r.console.Printf("Generated %d mockup variants\n", len(result.Mockups))

	r.record(ctx, store.KindProcess, productType, true, result)
	return result, r.save(productType+"-result.json", result)
}

// Design renders a design in the standard colours and saves
// <productType>-design-result.json.
func (r *Runner) Design(ctx context.Context, designURL, productType string) (map[string]connector.MockupResult, error) {
	r.console.Printf("Processing design upload for %s: %s\n", productType, designURL)

	results, err := r.orch.GenerateProductMockups(ctx, pipeline.MockupSetRequest{
		ProductType:   productType,
		DesignFile:    designURL,
		ColorVariants: runVariants,
	})
	if err != nil {
		r.console.Error(fmt.Sprintf("Error processing design upload: %v", err))
		r.record(ctx, store.KindDesign, productType, false, map[string]string{"error": err.Error()})
		return nil, err
	}

	success := true
	for _, variant := range sortedVariants(results) {
		if res := results[variant]; !res.Success {
			success = false
			r.console.Warning(fmt.Sprintf("%s: %s", variant, res.Error))
		}
	}
	r.console.Success(fmt.Sprintf("Design upload processing complete: %s", productType))
	r.console.Printf("Generated %d mockup variants\n", len(results))

	r.record(ctx, store.KindDesign, productType, success, results)
	return results, r.save(productType+"-design-result.json", results)
}

// Test runs the self-test suite, prints its summary and saves the report
// under test-results/.
func (r *Runner) Test(ctx context.Context) (selftest.Report, error) {
	if r.suite == nil {
		return selftest.Report{}, errors.New("self-test suite is not configured")
	}
	r.console.Println("Running pipeline tests...")

	report, err := r.suite.Run(ctx)
	if err != nil {
		r.console.Error(fmt.Sprintf("Test run failed: %v", err))
		return selftest.Report{}, err
	}

	sum := report.Summary
	r.console.Heading("Test Summary:")
	r.console.Printf("Total Tests: %d\n", sum.TotalTests)
	r.console.Printf("Passed Tests: %d\n", sum.PassedTests)
	r.console.Printf("Success Rate: %s\n", sum.SuccessRate)
	overall := "NO"
	if sum.Success {
		overall = "YES"
	}
	r.console.Printf("Overall Success: %s\n", overall)

	r.record(ctx, store.KindSelfTest, "", sum.Success, report)
	name := filepath.Join("test-results", fmt.Sprintf("test-results-%d.json", r.now().UnixMilli()))
	return report, r.save(name, report)
}

// Batch processes every product listed in path, showing progress, and saves
// batch-result.json.
func (r *Runner) Batch(ctx context.Context, path string) ([]pipeline.ProductResult, error) {
	if path == "" {
		return nil, fmt.Errorf("batch: %w: file (or set BATCH_FILE)", ErrMissingArgument)
	}
	products, err := pipeline.LoadBatch(path)
	if err != nil {
		r.console.Error(fmt.Sprintf("Error loading batch: %v", err))
		return nil, err
	}

	r.console.Printf("Processing %d products from %s\n", len(products), path)
	bar := cli.NewProgressBar(r.console.Writer(), len(products), "batch")
	results := make([]pipeline.ProductResult, 0, len(products))
	for _, product := range products {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		results = append(results, r.orch.BatchProcessProducts(ctx, []pipeline.ProductRequest{product})...)
		bar.Increment()
	}
	bar.Finish()

	succeeded := 0
	for _, res := range results {
		if res.Success {
			succeeded++
			continue
		}
		r.console.Error(fmt.Sprintf("%s: %s", res.ProductType, res.Error))
	}
	r.console.Printf("Processed %d/%d products successfully\n", succeeded, len(results))

	r.record(ctx, store.KindBatch, path, succeeded == len(results), results)
	return results, r.save("batch-result.json", results)
}

// Render recolours input in every catalog colour with the registered Blender
// connector, writing files under <output>/renders.
func (r *Runner) Render(ctx context.Context, input, baseName, mode string) ([]connector.ModelResult, error) {
	c, err := r.orch.GetConnector(pipeline.Blender)
	if err != nil {
		return nil, err
	}
	renderer, ok := c.(Renderer)
	if !ok {
		return nil, fmt.Errorf("render: %w: %s cannot render every colour", connector.ErrUnsupported, pipeline.Blender)
	}

	r.console.Printf("Rendering %s in every colour\n", input)
	results := renderer.ProcessAllColors(ctx, input, filepath.Join(r.results.Dir(), "renders"), baseName, mode)

	succeeded := 0
	for _, res := range results {
		if res.Success {
			succeeded++
			r.console.Success(fmt.Sprintf("%s: %s", res.ColorVariant, res.OutputFile))
			continue
		}
		r.console.Error(fmt.Sprintf("%s: %s", res.ColorVariant, res.Error))
	}

	r.record(ctx, store.KindRender, input, succeeded == len(results), results)
	if succeeded < len(results) {
		return results, fmt.Errorf("render: %d of %d colours failed", len(results)-succeeded, len(results))
	}
	return results, nil
}

func sortedVariants(m map[string]connector.MockupResult) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
