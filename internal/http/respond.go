package httpx

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// writeJSON writes JSON response with status code. Responses may carry
// tokens, so they are never cached.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Default().Debug("write response body", "error", err)
	}
}

// writeError sends an error message.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
