package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/askely/concierge/internal/models"
)

// Marshaled once at startup so a broken payload can still yield a sane 500.
var fallbackErrorBody []byte

func init() {
	body, err := json.Marshal(models.Error("Internal server error"))
	if err != nil {
		panic(fmt.Sprintf("cannot marshal fallback error body: %v", err))
	}
	fallbackErrorBody = body
}

// writeJSONResponse marshals the payload before touching headers so an
// encoding error can still be reported as a clean 500.
func writeJSONResponse(w http.ResponseWriter, statusCode int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Server.writeJSONResponse: marshal failed", "error", err)
		body = fallbackErrorBody
		statusCode = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, err := w.Write(body); err != nil {
		slog.Error("Server.writeJSONResponse: write failed", "error", err)
	}
}
