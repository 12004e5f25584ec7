package connector

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/wanderwoll/mockup-pipeline/internal/config"
	"github.com/wanderwoll/mockup-pipeline/pkg/logger"
)

var (
	_ ModelProcessor = (*Blender)(nil)
	_ HealthChecker  = (*Blender)(nil)
)

// Processing modes understood by the automation script.
const (
	ModeConvert = "convert"
	ModeRender  = "render"
)

// CommandRunner executes an external command and returns its combined output.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// BlenderConfig configures the Blender connector.
type BlenderConfig struct {
	Path       string
	Script     string
	MaxWorkers int
}

// Blender recolours and converts models by driving Blender headless.
type Blender struct {
	cfg     BlenderConfig
	catalog *config.Catalog
	runner  CommandRunner
	log     *logger.Logger
}

func NewBlenderConnector(cfg BlenderConfig, catalog *config.Catalog, runner CommandRunner, log *logger.Logger) *Blender {
	if log == nil {
		log = logger.NewDefault("blender-connector")
	}
	if catalog == nil {
		catalog = config.DefaultCatalog()
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	if cfg.Path == "" {
		cfg.Path = "blender"
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 4
	}
	return &Blender{cfg: cfg, catalog: catalog, runner: runner, log: log}
}

func (b *Blender) Provider() Provider { return ProviderBlender }

// ProcessModel runs one job. Without an explicit output the result is written
// next to the input as <name>_processed_<color>.glb.
func (b *Blender) ProcessModel(ctx context.Context, job ModelJob) (ModelResult, error) {
	if job.InputFile == "" {
		return ModelResult{}, fmt.Errorf("input file is required")
	}
	if job.Mode == "" {
		job.Mode = ModeConvert
	}
	if job.OutputFile == "" {
		job.OutputFile = processedPath(job.InputFile, job.ColorVariant, job.Mode)
	}

	if dir := filepath.Dir(job.OutputFile); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return ModelResult{}, fmt.Errorf("create output dir: %w", err)
		}
	}

	color := b.catalog.ColorHex(job.ColorVariant)
	if color == "" {
		color = job.ColorVariant
	}

	args := []string{
		"--background",
		"--python", b.cfg.Script,
		"--",
		"--input", job.InputFile,
		"--output", job.OutputFile,
		"--color", color,
		"--mode", job.Mode,
	}

	b.log.WithField("input", job.InputFile).
		WithField("color", job.ColorVariant).
		WithField("mode", job.Mode).
		Debug("running blender")

	out, err := b.runner.Run(ctx, b.cfg.Path, args...)
	if err != nil {
		return ModelResult{}, fmt.Errorf("blender failed for %s: %w: %s", job.InputFile, err, strings.TrimSpace(string(out)))
	}

	return ModelResult{
		Success:      true,
		InputFile:    job.InputFile,
		OutputFile:   job.OutputFile,
		ColorVariant: job.ColorVariant,
		Mode:         job.Mode,
		Format:       strings.TrimPrefix(filepath.Ext(job.OutputFile), "."),
	}, nil
}

// ProcessBatch runs jobs on at most MaxWorkers concurrent Blender processes.
// Results keep the order of jobs; a failed job is reported in its result.
func (b *Blender) ProcessBatch(ctx context.Context, jobs []ModelJob) []ModelResult {
	results := make([]ModelResult, len(jobs))
	sem := make(chan struct{}, b.cfg.MaxWorkers)
	var wg sync.WaitGroup

	for i, job := range jobs {
		wg.Add(1)
		go func(i int, job ModelJob) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[i] = failedModel(job, ctx.Err())
				return
			}
			defer func() { <-sem }()

			res, err := b.ProcessModel(ctx, job)
			if err != nil {
				results[i] = failedModel(job, err)
				return
			}
			results[i] = res
		}(i, job)
	}
	wg.Wait()

	b.log.WithField("jobs", len(jobs)).
		WithField("workers", b.cfg.MaxWorkers).
		Info("blender batch finished")
	return results
}

// ProcessAllColors renders one input in every catalog colour, writing
// <outputDir>/<baseName>_<color>.<glb|png>.
func (b *Blender) ProcessAllColors(ctx context.Context, inputFile, outputDir, baseName, mode string) []ModelResult {
	if mode == "" {
		mode = ModeRender
	}
	if baseName == "" {
		baseName = strings.TrimSuffix(filepath.Base(inputFile), filepath.Ext(inputFile))
	}
	ext := "glb"
	if mode == ModeRender {
		ext = "png"
	}

	colors := make([]string, 0, len(b.catalog.Colors))
	for name := range b.catalog.Colors {
		colors = append(colors, name)
	}
	sort.Strings(colors)

	jobs := make([]ModelJob, 0, len(colors))
	for _, name := range colors {
		jobs = append(jobs, ModelJob{
			InputFile:    inputFile,
			OutputFile:   filepath.Join(outputDir, fmt.Sprintf("%s_%s.%s", baseName, name, ext)),
			ColorVariant: name,
			Mode:         mode,
		})
	}
	return b.ProcessBatch(ctx, jobs)
}

// CheckHealth verifies the Blender binary runs and reports host capacity.
func (b *Blender) CheckHealth(ctx context.Context) (HealthStatus, error) {
	out, err := b.runner.Run(ctx, b.cfg.Path, "--version")
	if err != nil {
		return Unhealthy(fmt.Errorf("blender not found at %s: %w", b.cfg.Path, err)), nil
	}

	details := map[string]interface{}{
		"version":    firstLine(string(out)),
		"maxWorkers": b.cfg.MaxWorkers,
	}
	if cores, err := cpu.CountsWithContext(ctx, true); err == nil {
		details["cpus"] = cores
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		details["memoryAvailable"] = vm.Available
		details["memoryUsedPercent"] = vm.UsedPercent
	}
	return Healthy(details), nil
}

func processedPath(input, color, mode string) string {
	ext := filepath.Ext(input)
	if ext == "" {
		ext = ".glb"
	}
	if mode == ModeRender {
		return strings.TrimSuffix(input, filepath.Ext(input)) + "_processed_" + color + ".png"
	}
	return strings.TrimSuffix(input, filepath.Ext(input)) + "_processed_" + color + ext
}

func failedModel(job ModelJob, err error) ModelResult {
	return ModelResult{
		Success:      false,
		InputFile:    job.InputFile,
		OutputFile:   job.OutputFile,
		ColorVariant: job.ColorVariant,
		Mode:         job.Mode,
		Error:        err.Error(),
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
