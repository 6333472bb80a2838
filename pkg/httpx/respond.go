package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// ErrorResponse is the body of every error reply: {"error":"<msg>"}.
type ErrorResponse struct {
	Error string `json:"error"`
	// RunID identifies the invocation that failed, when there was one.
	RunID string `json:"run_id,omitempty"`
}

// WriteJSON encodes v as the response body with status.
func WriteJSON(w http.ResponseWriter, status int, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return fmt.Errorf("encode response: %w", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(body, '\n')); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	return nil
}

// WriteError replies with status and an ErrorResponse.
func WriteError(w http.ResponseWriter, status int, resp ErrorResponse) {
	if err := WriteJSON(w, status, resp); err != nil {
		slog.Error("failed to write error response", "error", err, "message", resp.Error)
	}
}

// WriteErrorMessage replies with status and message.
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	WriteError(w, status, ErrorResponse{Error: message})
}

// ReadBody reads at most limit bytes of the request body. A larger body
// yields an error wrapping *http.MaxBytesError.
func ReadBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("request body exceeds %d bytes: %w", limit, err)
		}
		return nil, fmt.Errorf("read request body: %w", err)
	}
	return body, nil
}

// HealthHandler replies 200 "OK" when check succeeds and 503 with the
// error otherwise.
func HealthHandler(check func(r *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r); err != nil {
				WriteErrorMessage(w, http.StatusServiceUnavailable, err.Error())
				return
			}
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if _, err := w.Write([]byte("OK")); err != nil {
			slog.Error("failed to write health response", "error", err)
		}
	}
}
