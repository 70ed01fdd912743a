package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/guillermoBallester/querylens/internal/core/domain"
)

// statusFromError maps domain errors to HTTP status codes.
func statusFromError(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidToken), errors.Is(err, domain.ErrNotReadOnly):
		return http.StatusNotAcceptable
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrMalformedRecord):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Code: status, Message: msg})
}

// writeError logs err and writes its mapped status. Rejections are warnings;
// malformed input and unexpected failures are errors. Messages of unexpected
// failures are not echoed to the client.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := statusFromError(err)

	level := slog.LevelWarn
	if status == http.StatusInternalServerError || status == http.StatusUnprocessableEntity {
		level = slog.LevelError
	}
	logger.LogAttrs(r.Context(), level, "request failed",
		slog.String("http.request.method", r.Method),
		slog.String("url.path", r.URL.Path),
		slog.String("request.id", w.Header().Get(requestIDHeader)),
		slog.Int("http.response.status_code", status),
		slog.String("error", err.Error()),
	)

	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	writeMessage(w, status, msg)
}
