package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/vellum-io/vellum/internal/server"
	"github.com/vellum-io/vellum/pkg/kind"
)

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, kind.ErrInputInvalid):
		return http.StatusBadRequest
	case errors.Is(err, kind.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, kind.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, kind.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// errorMessage picks the body text for a failed request. Client errors
// keep their message so the caller can fix the request; server errors get
// a generic body and the detail stays in the log.
func errorMessage(status int, err error) string {
	if status < http.StatusInternalServerError {
		return err.Error()
	}
	return "error processing request"
}

// respondJSON writes v with the given status.
func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// respondError renders err as a JSON error body with the status its kind
// maps to.
func respondError(srv server.Server, w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		srv.Logger.Error("request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		srv.Logger.Warn("request rejected",
			"method", r.Method, "path", r.URL.Path, "error", err)
	}
	respondJSON(w, status, map[string]string{"error": errorMessage(status, err)})
}

// decodeJSON parses the request body into v. Malformed bodies are input
// errors.
func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding request body: %v: %w", err, kind.ErrInputInvalid)
	}
	return nil
}
