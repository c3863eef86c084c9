// Package api exposes the runtime over HTTP: document submission, job
// status, and dead letter operations. Handlers are plain net/http with
// method-qualified route patterns; mount the returned mux wherever the
// application serves.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/xraph/distill"
	"github.com/xraph/distill/engine"
	"github.com/xraph/distill/pipeline"
)

// DocumentIngestor accepts raw document text. Implemented by
// pipeline.Ingestor.
type DocumentIngestor interface {
	Ingest(ctx context.Context, contents ...string) (*pipeline.IngestResult, error)
}

// API wires the HTTP handlers for one engine.
type API struct {
	eng      *engine.Engine
	ingestor DocumentIngestor
	logger   *slog.Logger
}

// New creates an API over eng. The ingestor may be nil, in which case
// POST /v1/documents responds 501.
func New(eng *engine.Engine, ingestor DocumentIngestor, logger *slog.Logger) *API {
	return &API{eng: eng, ingestor: ingestor, logger: logger}
}

// Handler returns a mux with all routes registered.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	a.RegisterRoutes(mux)
	return mux
}

// RegisterRoutes registers all routes on the given mux.
func (a *API) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/documents", a.submitDocuments)
	mux.HandleFunc("GET /v1/jobs", a.listJobs)
	mux.HandleFunc("GET /v1/jobs/{jobID}", a.getJob)
	mux.HandleFunc("DELETE /v1/jobs/{jobID}", a.evictJob)
	mux.HandleFunc("GET /v1/dlq", a.listDLQ)
	mux.HandleFunc("GET /v1/dlq/count", a.dlqCount)
	mux.HandleFunc("GET /v1/dlq/{entryID}", a.getDLQ)
	mux.HandleFunc("POST /v1/dlq/{entryID}/replay", a.replayDLQ)
	mux.HandleFunc("POST /v1/dlq/purge", a.purgeDLQ)
	mux.HandleFunc("GET /v1/stats", a.stats)
}

// errorBody is the JSON shape of every non-2xx response.
type errorBody struct {
	Error string `json:"error"`
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Error("encode response", slog.String("error", err.Error()))
	}
}

func (a *API) writeError(w http.ResponseWriter, err error) {
	a.writeJSON(w, statusFor(err), errorBody{Error: err.Error()})
}

// statusFor maps sentinel errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, distill.ErrJobNotFound),
		errors.Is(err, distill.ErrDLQNotFound):
		return http.StatusNotFound
	case errors.Is(err, distill.ErrCapacityExceeded),
		errors.Is(err, distill.ErrSubmitThrottled):
		return http.StatusTooManyRequests
	case errors.Is(err, distill.ErrAlreadyReplayed),
		errors.Is(err, distill.ErrJobNotTerminal):
		return http.StatusConflict
	case errors.Is(err, distill.ErrShuttingDown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
