// Package httpapi exposes the pipeline to storefront widgets over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/wanderwoll/mockup-pipeline/internal/connector"
	"github.com/wanderwoll/mockup-pipeline/internal/httputil"
	"github.com/wanderwoll/mockup-pipeline/internal/metrics"
	"github.com/wanderwoll/mockup-pipeline/internal/middleware"
	"github.com/wanderwoll/mockup-pipeline/internal/pipeline"
	"github.com/wanderwoll/mockup-pipeline/internal/store"
	"github.com/wanderwoll/mockup-pipeline/pkg/logger"
)

const maxBodyBytes = 1 << 20

// Pipeline is the orchestrator surface served over HTTP.
type Pipeline interface {
	ProcessDesignUpload(ctx context.Context, req pipeline.DesignUpload) (connector.MockupResult, error)
	GenerateProductMockups(ctx context.Context, req pipeline.MockupSetRequest) (map[string]connector.MockupResult, error)
	Process3DModel(ctx context.Context, req pipeline.ModelRequest) (connector.ModelResult, error)
	ProcessProductForShopify(ctx context.Context, req pipeline.ProductRequest) (pipeline.ProductResult, error)
	UpdateShopifyProduct(ctx context.Context, req pipeline.ShopifyUpdate) (pipeline.ShopifyUpdateResult, error)
	BatchProcessProducts(ctx context.Context, products []pipeline.ProductRequest) []pipeline.ProductResult
	CheckHealth(ctx context.Context) pipeline.HealthReport
	ClearCache(ctx context.Context) error
}

var _ Pipeline = (*pipeline.Orchestrator)(nil)

// Options configures the router. Zero values disable the optional parts.
type Options struct {
	Runs           store.ResultStore
	RateLimiter    *middleware.RateLimiter
	AllowedOrigins []string
	Log            *logger.Logger
}

type handler struct {
	pipeline Pipeline
	runs     store.ResultStore
	log      *logger.Logger
}

// NewHandler returns the routed API wrapped in its middleware.
func NewHandler(p Pipeline, opts Options) http.Handler {
	log := opts.Log
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	h := &handler{pipeline: p, runs: opts.Runs, log: log}

	router := mux.NewRouter()
	router.Use(middleware.Logging(log), metrics.InstrumentHandler)
	router.HandleFunc("/health", h.health).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	if opts.RateLimiter != nil {
		api.Use(opts.RateLimiter.Handler)
	}
	api.HandleFunc("/designs/preview", h.designPreview).Methods(http.MethodPost)
	api.HandleFunc("/designs/mockups", h.designMockups).Methods(http.MethodPost)
	api.HandleFunc("/models", h.models).Methods(http.MethodPost)
	api.HandleFunc("/products", h.product).Methods(http.MethodPost)
	api.HandleFunc("/products/batch", h.batch).Methods(http.MethodPost)
	api.HandleFunc("/products/{productId}/shopify", h.shopifyUpdate).Methods(http.MethodPost)
	api.HandleFunc("/cache", h.clearCache).Methods(http.MethodDelete)
	api.HandleFunc("/runs", h.listRuns).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}", h.getRun).Methods(http.MethodGet)

	router.NotFoundHandler = http.HandlerFunc(notFound)
	router.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	api.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)

	if len(opts.AllowedOrigins) == 0 {
		return router
	}
	return middleware.NewCORSMiddleware(opts.AllowedOrigins).Handler(router)
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteError(w, http.StatusNotFound, "not found")
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	report := h.pipeline.CheckHealth(r.Context())
	status := http.StatusOK
	if !report.Healthy() {
		status = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, status, report)
}

func (h *handler) designPreview(w http.ResponseWriter, r *http.Request) {
	var req pipeline.DesignUpload
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.pipeline.ProcessDesignUpload(r.Context(), req)
	if err != nil {
		h.fail(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *handler) designMockups(w http.ResponseWriter, r *http.Request) {
	var req pipeline.MockupSetRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.pipeline.GenerateProductMockups(r.Context(), req)
	if err != nil {
		h.fail(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *handler) models(w http.ResponseWriter, r *http.Request) {
	var req pipeline.ModelRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.pipeline.Process3DModel(r.Context(), req)
	if err != nil {
		h.fail(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *handler) product(w http.ResponseWriter, r *http.Request) {
	var req pipeline.ProductRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.pipeline.ProcessProductForShopify(r.Context(), req)
	if err != nil {
		h.fail(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *handler) batch(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Products []pipeline.ProductRequest `json:"products"`
	}
	if !h.decode(w, r, &payload) {
		return
	}
	if len(payload.Products) == 0 {
		httputil.BadRequest(w, "products is required")
		return
	}
	results := h.pipeline.BatchProcessProducts(r.Context(), payload.Products)
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

func (h *handler) shopifyUpdate(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Models  map[string]connector.ModelResult  `json:"models"`
		Mockups map[string]connector.MockupResult `json:"mockups"`
	}
	if !h.decode(w, r, &payload) {
		return
	}
	res, err := h.pipeline.UpdateShopifyProduct(r.Context(), pipeline.ShopifyUpdate{
		ProductID: mux.Vars(r)["productId"],
		Models:    payload.Models,
		Mockups:   payload.Mockups,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *handler) clearCache(w http.ResponseWriter, r *http.Request) {
	if err := h.pipeline.ClearCache(r.Context()); err != nil {
		h.log.WithError(err).Error("clear cache failed")
		httputil.InternalError(w, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) listRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		httputil.WriteError(w, http.StatusNotImplemented, "result store not configured")
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httputil.BadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	runs, err := h.runs.List(r.Context(), r.URL.Query().Get("kind"), limit)
	if err != nil {
		httputil.InternalError(w, err.Error())
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	httputil.WriteJSON(w, http.StatusOK, runs)
}

func (h *handler) getRun(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		httputil.WriteError(w, http.StatusNotImplemented, "result store not configured")
		return
	}
	run, err := h.runs.Get(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, store.ErrNotFound) {
		httputil.WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		httputil.InternalError(w, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, run)
}

func (h *handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := decodeJSON(http.MaxBytesReader(w, r.Body, maxBodyBytes), dst); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

// fail maps pipeline errors onto status codes: validation 400, missing or
// incapable connector 503, timeout 504, anything else is a provider failure.
func (h *handler) fail(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.WithError(err).WithField("status", status).Error("pipeline request failed")
	}
	httputil.WriteError(w, status, err.Error())
}

// StatusFor returns the HTTP status for a pipeline error.
func StatusFor(err error) int {
	switch {
	case pipeline.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrConnectorNotFound), errors.Is(err, pipeline.ErrUnsupported):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
