package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"tgproxy/internal/channel"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// success writes {"status":"success"} merged with fields.
func success(w http.ResponseWriter, fields map[string]any) {
	body := map[string]any{"status": statusSuccess}
	for k, v := range fields {
		body[k] = v
	}
	writeJSON(w, http.StatusOK, body)
}

func failure(w http.ResponseWriter, code int, msg string, fields map[string]any) {
	if msg == "" {
		msg = "Unknown error"
	}
	body := map[string]any{"status": statusError, "message": msg}
	for k, v := range fields {
		body[k] = v
	}
	writeJSON(w, code, body)
}

// StatusFor maps a caller-facing error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, channel.ErrQueueFull):
		return http.StatusServiceUnavailable
	case errors.Is(err, channel.ErrChannelNotFound):
		return http.StatusNotFound
	case errors.Is(err, channel.ErrInvalidMessage), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, errNoJournal):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := StatusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		msg = "Internal error"
	}
	failure(w, code, msg, nil)
}
