// Package runner implements the pipeline command line: health checks, product
// and design processing, the self-test suite, batches, renders and serving
// the HTTP API.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/wanderwoll/mockup-pipeline/internal/cli"
	"github.com/wanderwoll/mockup-pipeline/internal/pipeline"
	"github.com/wanderwoll/mockup-pipeline/internal/selftest"
	"github.com/wanderwoll/mockup-pipeline/internal/store"
	"github.com/wanderwoll/mockup-pipeline/pkg/logger"
)

const (
	defaultProductType = "tshirt"
	defaultDesignURL   = "https://example.com/test-design.png"
)

// runVariants are the colours processed by the process and design commands.
var runVariants = []string{"forest-green", "beige", "black"}

const usage = `
Usage:
  pipeline [command]

Commands:
  health                     - Run pipeline health check
  process [product]          - Process a product (default: tshirt)
  design [url] [product]     - Process a design upload (default: example URL, tshirt)
  test                       - Run pipeline tests
  all                        - Run all operations
  batch [file]               - Process every product in a batch file (default: BATCH_FILE)
  render <input> [name] [mode] - Render a model in every catalog colour (mode: render|convert)
  serve                      - Serve the HTTP API until interrupted
  completion [bash|zsh]      - Print a shell completion script
`

// ErrMissingArgument is returned when a command lacks a required argument.
var ErrMissingArgument = errors.New("missing argument")

// ServeConfig configures the serve command.
type ServeConfig struct {
	Addr            string
	RateLimit       float64
	RateBurst       int
	AllowedOrigins  []string
	BatchSchedule   string
	BatchFile       string
	ShutdownTimeout time.Duration
}

// Options wires a Runner. Orchestrator and Results are required.
type Options struct {
	Orchestrator *pipeline.Orchestrator
	// Results receives the JSON result files and, when Runs is nil, the run
	// records.
	Results *store.FileStore
	Runs    store.ResultStore
	Suite   *selftest.Suite
	Serve   ServeConfig
	Out     io.Writer
	Log     *logger.Logger
}

// Runner executes commands against one orchestrator.
type Runner struct {
	orch    *pipeline.Orchestrator
	results *store.FileStore
	runs    store.ResultStore
	suite   *selftest.Suite
	serve   ServeConfig
	console *cli.Console
	log     *logger.Logger
	now     func() time.Time

	// onServe is called with the bound address once serve is listening.
	onServe func(addr string)
}

func New(opts Options) (*Runner, error) {
	if opts.Orchestrator == nil {
		return nil, errors.New("runner needs an orchestrator")
	}
	if opts.Results == nil {
		return nil, errors.New("runner needs a result store")
	}
	log := opts.Log
	if log == nil {
		log = logger.NewDefault("runner")
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	runs := opts.Runs
	if runs == nil {
		runs = opts.Results
	}
	if opts.Serve.ShutdownTimeout <= 0 {
		opts.Serve.ShutdownTimeout = 30 * time.Second
	}
	return &Runner{
		orch:    opts.Orchestrator,
		results: opts.Results,
		runs:    runs,
		suite:   opts.Suite,
		serve:   opts.Serve,
		console: cli.NewConsole(out),
		log:     log,
		now:     time.Now,
	}, nil
}

// Run executes the command named by args[0], defaulting to health. Unknown
// commands print usage.
func (r *Runner) Run(ctx context.Context, args []string) error {
	command := "health"
	if len(args) > 0 {
		command = args[0]
		args = args[1:]
	}

	switch command {
	case "health":
		_, err := r.Health(ctx)
		return err
	case "process":
		_, err := r.Process(ctx, arg(args, 0, defaultProductType))
		return err
	case "design":
		_, err := r.Design(ctx, arg(args, 0, defaultDesignURL), arg(args, 1, defaultProductType))
		return err
	case "test":
		_, err := r.Test(ctx)
		return err
	case "all":
		return r.All(ctx)
	case "batch":
		_, err := r.Batch(ctx, arg(args, 0, r.serve.BatchFile))
		return err
	case "render":
		if len(args) == 0 {
			r.console.Printf("%s\n", usage)
			return fmt.Errorf("render: %w: input file", ErrMissingArgument)
		}
		_, err := r.Render(ctx, args[0], arg(args, 1, ""), arg(args, 2, ""))
		return err
	case "serve":
		return r.Serve(ctx)
	case "completion":
		return cli.GenerateCompletion(r.console.Writer(), arg(args, 0, "bash"))
	default:
		r.console.Printf("%s\n", usage)
		return nil
	}
}

// All runs health, processes a t-shirt and a hoodie, processes the example
// design and runs the self-test suite. Every step runs even if an earlier
// one fails.
func (r *Runner) All(ctx context.Context) error {
	var errs []error
	if _, err := r.Health(ctx); err != nil {
		errs = append(errs, err)
	}
	for _, productType := range []string{"tshirt", "hoodie"} {
		if _, err := r.Process(ctx, productType); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := r.Design(ctx, defaultDesignURL, defaultProductType); err != nil {
		errs = append(errs, err)
	}
	if _, err := r.Test(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (r *Runner) record(ctx context.Context, kind, subject string, success bool, payload interface{}) {
	if _, err := r.runs.Record(ctx, kind, subject, success, payload); err != nil {
		r.log.WithError(err).WithField("kind", kind).Warn("failed to record run")
	}
}

func (r *Runner) save(name string, v interface{}) error {
	path, err := r.results.WriteResult(name, v)
	if err != nil {
		r.console.Error(fmt.Sprintf("Failed to save results: %v", err))
		return err
	}
	r.console.Printf("Results saved to %s\n", path)
	return nil
}

func arg(args []string, i int, def string) string {
	if i < len(args) && args[i] != "" {
		return args[i]
	}
	return def
}
