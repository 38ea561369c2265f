package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// errResponse is the body of every error reply.
type errResponse struct {
	Error  string `json:"error" example:"not found"`
	Status int    `json:"status" example:"404"`
}

// writeJSON sends v with status. The header is already out when encoding
// fails, so the failure is only logged.
func writeJSON(w http.ResponseWriter, status int, v any) {
	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		slog.Warn("api: encode response", slog.Int("status", status), slog.String("error", err.Error()))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errResponse{Error: msg, Status: status})
}
