// Package api provides HTTP handlers for the concierge endpoints.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/askely/concierge/internal/identity"
	"github.com/askely/concierge/internal/intent"
	"github.com/askely/concierge/internal/models"
)

// webhookPayload is the JSON form of an inbound message.
type webhookPayload struct {
	From string `json:"from"`
	Body string `json:"body"`
}

// webhookHandler accepts an inbound WhatsApp message (POST /webhook) as
// either JSON or form-encoded From/Body pairs and returns the concierge
// reply in the response body.
func (s *Server) webhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var payload webhookPayload
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			slog.Warn("Server.webhookHandler: failed to decode JSON", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			slog.Warn("Server.webhookHandler: failed to parse form", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid form data"))
			return
		}
		payload.From = r.FormValue("From")
		payload.Body = r.FormValue("Body")
	}

	if payload.From == "" || payload.Body == "" {
		slog.Warn("Server.webhookHandler: missing fields", "from_set", payload.From != "")
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required fields: From, Body"))
		return
	}

	reply, err := s.responder.HandleInbound(r.Context(), models.Response{
		From: payload.From,
		Body: payload.Body,
		Time: time.Now().Unix(),
	})
	if err != nil {
		if errors.Is(err, models.ErrInvalidIdentifier) {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid sender identifier"))
			return
		}
		slog.Error("Server.webhookHandler: failed to process message", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process message"))
		return
	}

	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"reply": reply}))
}

// profileView is the external shape of a user profile. The phone number is
// never stored, so only the opaque display ID identifies the user.
type profileView struct {
	DisplayID string          `json:"display_id"`
	Country   string          `json:"country"`
	Language  string          `json:"language"`
	Points    int             `json:"points"`
	CreatedAt time.Time       `json:"created_at"`
	Reviews   []models.Review `json:"reviews"`
}

// profileHandler returns the profile for a phone number (GET /profile?from=).
func (s *Server) profileHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	userKey, err := identity.Resolve(r.URL.Query().Get("from"))
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid sender identifier"))
		return
	}

	u, err := s.st.GetUser(userKey)
	if err != nil {
		if errors.Is(err, models.ErrUnknownUser) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown user"))
			return
		}
		slog.Error("Server.profileHandler: failed to fetch user", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch profile"))
		return
	}

	reviews, err := s.st.RecentReviews(userKey, intent.OwnReviewsLimit)
	if err != nil {
		slog.Error("Server.profileHandler: failed to fetch reviews", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch profile"))
		return
	}
	if reviews == nil {
		reviews = []models.Review{}
	}

	writeJSONResponse(w, http.StatusOK, models.Success(profileView{
		DisplayID: u.DisplayID,
		Country:   u.Country,
		Language:  u.Language,
		Points:    u.Points,
		CreatedAt: u.CreatedAt,
		Reviews:   reviews,
	}))
}

// reviewsHandler returns the most recent public reviews (GET /reviews).
func (s *Server) reviewsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	limit := intent.PublicReviewsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid limit"))
			return
		}
		limit = parsed
	}

	reviews, err := s.st.PublicRecentReviews(limit)
	if err != nil {
		slog.Error("Server.reviewsHandler: failed to fetch reviews", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch reviews"))
		return
	}
	if reviews == nil {
		reviews = []models.Review{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(reviews))
}

// healthHandler provides a health check endpoint for monitoring.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	healthData := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	statusCode := http.StatusOK

	if _, err := s.st.ListUsers(); err != nil {
		slog.Warn("Health check: store unavailable", "error", err)
		healthData["status"] = "degraded"
		healthData["error"] = "store unavailable"
		statusCode = http.StatusServiceUnavailable
	}

	writeJSONResponse(w, statusCode, healthData)
}
