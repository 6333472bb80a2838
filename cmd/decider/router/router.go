// Package router configures the HTTP API of `decider serve`.
//
// Routes:
//   - POST /decide - run one invocation for a session summary, reply with the Decision Record
//   - GET /healthz - 200 when the store answers a ping
//   - GET /metrics - Prometheus metrics
//
// /decide replies 200 with the record once it is published, 409 when the
// key's address does not match the capture source (nothing published), 422
// for captures the pipeline cannot attribute to an endpoint, and 502 when the
// record could not be delivered to the bus.
package router

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alexoch/PoseidonML/cmd/decider/pipeline"
	"github.com/alexoch/PoseidonML/pkg/capture"
	"github.com/alexoch/PoseidonML/pkg/httpx"
	"github.com/alexoch/PoseidonML/pkg/publish"
)

// maxSummaryBytes bounds a /decide request body.
const maxSummaryBytes = 4 << 20

// Decider runs one pipeline invocation.
type Decider interface {
	Decide(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

// Pinger checks store connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SetupRoutes configures the decider's HTTP endpoints. Metrics are served
// from gatherer.
func SetupRoutes(d Decider, store Pinger, gatherer prometheus.Gatherer, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /decide", handleDecide(d, logger))

	mux.Handle("GET /healthz", httpx.HealthHandler(func(r *http.Request) error {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		return store.Ping(ctx)
	}))

	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return httpx.Chain(mux, httpx.Logging(logger), httpx.Recover(logger))
}

func handleDecide(d Decider, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := httpx.ReadBody(w, r, maxSummaryBytes)
		if err != nil {
			status := http.StatusBadRequest
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				status = http.StatusRequestEntityTooLarge
			}
			httpx.WriteErrorMessage(w, status, err.Error())
			return
		}

		summary, err := capture.ParseSummary(body)
		if err != nil {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, err.Error())
			return
		}
		if summary.Capture == "" {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, `summary has no "capture" name`)
			return
		}

		res, err := d.Decide(r.Context(), pipeline.Request{Summary: summary})
		if err != nil {
			status := statusFor(err)
			if status == http.StatusInternalServerError {
				logger.Error("decide failed", "run_id", res.RunID, "error", err)
			}
			httpx.WriteError(w, status, httpx.ErrorResponse{Error: err.Error(), RunID: res.RunID})
			return
		}

		w.Header().Set("X-Run-Id", res.RunID)
		if err := httpx.WriteJSON(w, http.StatusOK, res.Record); err != nil {
			logger.Error("failed to write decision", "run_id", res.RunID, "error", err)
		}
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrAddressMismatch):
		return http.StatusConflict
	case errors.Is(err, capture.ErrMalformedName), errors.Is(err, pipeline.ErrNoAddress):
		return http.StatusUnprocessableEntity
	case errors.Is(err, publish.ErrPublish):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
