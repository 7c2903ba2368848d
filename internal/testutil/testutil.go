// Package testutil provides common test utilities and helpers for Askely tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/askely/concierge/internal/api"
	"github.com/askely/concierge/internal/flow"
	"github.com/askely/concierge/internal/intent"
	"github.com/askely/concierge/internal/messaging"
	"github.com/askely/concierge/internal/models"
	"github.com/askely/concierge/internal/store"
)

// NewTestServer creates a test API server over an in-memory store with no
// GenAI responder and no outbound channel. The store is returned for
// seeding and assertions.
func NewTestServer(opts ...api.Option) (*api.Server, *store.InMemoryStore) {
	st := store.NewInMemoryStore()
	reviewFlow := flow.NewReviewFlow(st)
	router := intent.NewRouter(st, nil)
	responder := messaging.NewConciergeResponder(st, reviewFlow, router, nil)
	return api.NewServer(st, responder, nil, opts...), st
}

// AssertHTTPStatus fails the test when the recorded status differs from
// the expected one.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: status = %d, want %d", context, actual, expected)
	}
}

// AssertJSONResponse decodes a recorded JSON body, checks its "status"
// field and returns the decoded object for further assertions.
func AssertJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus string) map[string]any {
	t.Helper()
	var decoded map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode JSON body: %v", err)
	}

	status, ok := decoded["status"].(string)
	if !ok {
		t.Errorf("body has no string 'status' field: %v", decoded)
	} else if status != expectedStatus {
		t.Errorf("status field = %q, want %q", status, expectedStatus)
	}
	return decoded
}

// CreateHTTPRequest builds a request, JSON-encoding the body when one is
// given.
func CreateHTTPRequest(t *testing.T, method, url string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request body: %v", err)
		}
	}

	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// SeedReviews adds a user and sample reviews to the store.
func SeedReviews(t *testing.T, st store.Store, userKey string, reviews ...models.Review) {
	t.Helper()
	if _, err := st.EnsureUser(userKey); err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	for _, r := range reviews {
		r.UserKey = userKey
		if _, err := st.AppendReview(r); err != nil {
			t.Fatalf("failed to seed review: %v", err)
		}
	}
}
