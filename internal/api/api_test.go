package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/askely/concierge/internal/api"
	"github.com/askely/concierge/internal/identity"
	"github.com/askely/concierge/internal/models"
	"github.com/askely/concierge/internal/testutil"
)

const testSender = "+212612345678"

func postWebhookJSON(t *testing.T, handler http.Handler, from, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := testutil.CreateHTTPRequest(t, http.MethodPost, "/webhook", map[string]string{
		"from": from,
		"body": body,
	})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func replyFrom(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	response := testutil.AssertJSONResponse(t, rr, "ok")
	result, ok := response["result"].(map[string]interface{})
	if !ok {
		t.Fatalf("response missing result object: %v", response)
	}
	reply, ok := result["reply"].(string)
	if !ok {
		t.Fatalf("result missing reply: %v", result)
	}
	return reply
}

func TestWebhookGuidedReviewScenario(t *testing.T) {
	server, st := testutil.NewTestServer()
	handler := server.Handler()

	rr := postWebhookJSON(t, handler, testSender, "start review hotel")
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "trigger")
	if reply := replyFrom(t, rr); !strings.Contains(reply, "1") || !strings.Contains(reply, "5") {
		t.Errorf("trigger should prompt for a 1-5 rating, got %q", reply)
	}

	rr = postWebhookJSON(t, handler, testSender, "4")
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "rating")

	rr = postWebhookJSON(t, handler, testSender, "great stay")
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "comment")
	if reply := replyFrom(t, rr); !strings.Contains(reply, "+7 points") {
		t.Errorf("hotel review should award 7 points, got %q", reply)
	}

	userKey, err := identity.Resolve(testSender)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	u, err := st.GetUser(userKey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Points != 7 {
		t.Errorf("expected balance 7, got %d", u.Points)
	}
	reviews, _ := st.RecentReviews(userKey, 10)
	if len(reviews) != 1 {
		t.Fatalf("expected one committed review, got %d", len(reviews))
	}
	if reviews[0].Rating != 4 || reviews[0].Comment != "great stay" {
		t.Errorf("unexpected review: %+v", reviews[0])
	}
}

func TestWebhookUnknownCategoryAwardsNothing(t *testing.T) {
	server, st := testutil.NewTestServer()

	rr := postWebhookJSON(t, server.Handler(), testSender, "start review spaceship")
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "unknown category")
	if reply := replyFrom(t, rr); !strings.Contains(reply, "hotel") {
		t.Errorf("rejection should list the valid categories, got %q", reply)
	}

	userKey, _ := identity.Resolve(testSender)
	u, err := st.GetUser(userKey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Points != 0 {
		t.Errorf("no points may be awarded, got %d", u.Points)
	}
}

func TestWebhookFormEncoded(t *testing.T) {
	server, _ := testutil.NewTestServer()

	form := url.Values{}
	form.Set("From", testSender)
	form.Set("Body", "menu")
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "form webhook")
	if reply := replyFrom(t, rr); !strings.Contains(reply, "Askely") {
		t.Errorf("unexpected reply: %q", reply)
	}
}

func TestWebhookValidation(t *testing.T) {
	server, _ := testutil.NewTestServer()
	handler := server.Handler()

	rr := postWebhookJSON(t, handler, "", "menu")
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "missing from")

	rr = postWebhookJSON(t, handler, testSender, "")
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "missing body")

	rr = postWebhookJSON(t, handler, "no-digits-here", "menu")
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "invalid sender")
	testutil.AssertJSONResponse(t, rr, "error")

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "malformed JSON")

	req = httptest.NewRequest(http.MethodGet, "/webhook", nil)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusMethodNotAllowed, rr.Code, "GET webhook")
}

func TestProfileEndpoint(t *testing.T) {
	server, st := testutil.NewTestServer()
	handler := server.Handler()

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/profile?from=%2B212612345678", nil))
	testutil.AssertHTTPStatus(t, http.StatusNotFound, rr.Code, "unknown user")

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/profile?from=abc", nil))
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "invalid identifier")

	userKey, _ := identity.Resolve(testSender)
	testutil.SeedReviews(t, st, userKey, models.Review{Category: models.CategoryFlight, Rating: 5, Comment: "parfait"})
	if _, err := st.AddPoints(userKey, 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/profile?from=%2B212612345678", nil))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "known user")
	response := testutil.AssertJSONResponse(t, rr, "ok")
	result := response["result"].(map[string]interface{})
	if result["points"].(float64) != 10 {
		t.Errorf("expected 10 points, got %v", result["points"])
	}
	if !strings.HasPrefix(result["display_id"].(string), "askely_") {
		t.Errorf("unexpected display ID: %v", result["display_id"])
	}
}

func TestReviewsEndpoint(t *testing.T) {
	server, st := testutil.NewTestServer()
	handler := server.Handler()

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/reviews", nil))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "empty reviews")
	response := testutil.AssertJSONResponse(t, rr, "ok")
	if reviews, ok := response["result"].([]interface{}); !ok || len(reviews) != 0 {
		t.Errorf("expected empty review list, got %v", response["result"])
	}

	testutil.SeedReviews(t, st, "seed-key",
		models.Review{Category: models.CategoryHotel, Rating: 4, Comment: "bien"},
		models.Review{Category: models.CategoryRestaurant, Rating: 5, Comment: "super"},
		models.Review{Category: models.CategoryFlight, Rating: 3, Comment: "correct"},
	)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/reviews?limit=2", nil))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "limited reviews")
	response = testutil.AssertJSONResponse(t, rr, "ok")
	reviews := response["result"].([]interface{})
	if len(reviews) != 2 {
		t.Fatalf("expected 2 reviews, got %d", len(reviews))
	}
	newest := reviews[0].(map[string]interface{})
	if newest["comment"] != "correct" {
		t.Errorf("reviews should be newest first, got %v", newest["comment"])
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/reviews?limit=0", nil))
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "invalid limit")
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := testutil.NewTestServer()

	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "health")

	var health map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&health); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if health["status"] != "healthy" {
		t.Errorf("expected healthy status, got %v", health["status"])
	}
}

func TestCustomAddr(t *testing.T) {
	server, _ := testutil.NewTestServer(api.WithAddr(":9999"))
	if server == nil {
		t.Fatal("server should be constructed with a custom address")
	}
}
