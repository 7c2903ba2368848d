package intent

import (
	"context"
	"strings"
	"testing"

	"github.com/askely/concierge/internal/models"
	"github.com/askely/concierge/internal/store"
)

// mockResponder implements Responder for testing.
type mockResponder struct {
	reply string
	err   error
	calls int
	last  string
}

func (m *mockResponder) GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m.calls++
	m.last = userPrompt
	return m.reply, m.err
}

func newTestRouter(t *testing.T, responder Responder, opts ...Option) (*Router, *store.InMemoryStore, string) {
	t.Helper()
	st := store.NewInMemoryStore()
	const userKey = "user-key-1"
	if _, err := st.EnsureUser(userKey); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return NewRouter(st, responder, opts...), st, userKey
}

func route(t *testing.T, r *Router, userKey, text string) string {
	t.Helper()
	reply, err := r.Route(context.Background(), userKey, text)
	if err != nil {
		t.Fatalf("Route(%q) error: %v", text, err)
	}
	return reply
}

func TestMenuIntent(t *testing.T) {
	r, _, userKey := newTestRouter(t, nil)
	for _, input := range []string{"menu", "HELP", "  aide  "} {
		if reply := route(t, r, userKey, input); !strings.Contains(reply, "Askely") {
			t.Errorf("input %q: expected menu, got %q", input, reply)
		}
	}
}

func TestSearchIntents(t *testing.T) {
	r, _, userKey := newTestRouter(t, nil)

	reply := route(t, r, userKey, "hotels à Marrakech")
	if !strings.Contains(reply, "Hôtels à marrakech") {
		t.Errorf("unexpected hotel reply: %q", reply)
	}

	reply = route(t, r, userKey, "restaurants in Fes")
	if !strings.Contains(reply, "Restaurants à fes") {
		t.Errorf("unexpected restaurant reply: %q", reply)
	}

	reply = route(t, r, userKey, "vols de Casablanca à Paris")
	if !strings.Contains(reply, "Vols de casablanca à paris") {
		t.Errorf("unexpected flight reply: %q", reply)
	}

	reply = route(t, r, userKey, "circuit Agadir")
	if !strings.Contains(reply, "Circuit touristique à agadir") {
		t.Errorf("unexpected plan reply: %q", reply)
	}

	reply = route(t, r, userKey, "bons plans au Maroc")
	if !strings.Contains(reply, "Bons plans au maroc") {
		t.Errorf("unexpected deals reply: %q", reply)
	}

	reply = route(t, r, userKey, "j'ai perdu ma valise")
	if reply != BaggageHelp {
		t.Errorf("unexpected baggage reply: %q", reply)
	}
}

func TestFirstMatchWins(t *testing.T) {
	r, _, userKey := newTestRouter(t, &mockResponder{reply: "llm"})

	// "hello baggage" matches both the greeting rule and the unanchored
	// baggage rule; the greeting sits earlier in the table and must win.
	if reply := route(t, r, userKey, "hello baggage"); reply == BaggageHelp {
		t.Errorf("greeting rule must win over baggage, got %q", reply)
	} else if !strings.Contains(reply, "Bonjour") {
		t.Errorf("expected the greeting reply, got %q", reply)
	}
}

func TestProfileIntent(t *testing.T) {
	r, st, userKey := newTestRouter(t, nil)
	if _, err := st.AddPoints(userKey, 12); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := st.AppendReview(models.Review{UserKey: userKey, Category: models.CategoryHotel, Rating: 4, Comment: "bien"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reply := route(t, r, userKey, "profil")
	if !strings.Contains(reply, "12") {
		t.Errorf("profile should show the balance, got %q", reply)
	}
	if !strings.Contains(reply, "askely_") {
		t.Errorf("profile should show the display ID, got %q", reply)
	}
	if !strings.Contains(reply, "bien") {
		t.Errorf("profile should show recent reviews, got %q", reply)
	}
}

func TestPublicReviewsIntent(t *testing.T) {
	r, st, userKey := newTestRouter(t, nil)

	if reply := route(t, r, userKey, "avis"); !strings.Contains(reply, "Aucun avis") {
		t.Errorf("expected empty-state message, got %q", reply)
	}

	for i := 0; i < 7; i++ {
		if _, err := st.AppendReview(models.Review{UserKey: userKey, Category: models.CategoryFlight, Rating: 5, Comment: "top"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	reply := route(t, r, userKey, "avis publics")
	if got := strings.Count(reply, "top"); got != PublicReviewsLimit {
		t.Errorf("expected %d public reviews, got %d", PublicReviewsLimit, got)
	}
}

func TestFallbackDelegatesToResponder(t *testing.T) {
	responder := &mockResponder{reply: "La meilleure saison est le printemps."}
	r, _, userKey := newTestRouter(t, responder)

	reply := route(t, r, userKey, "Quand visiter Chefchaouen ?")
	if reply != responder.reply {
		t.Errorf("expected responder reply, got %q", reply)
	}
	if responder.calls != 1 {
		t.Errorf("expected one responder call, got %d", responder.calls)
	}
	if responder.last != "Quand visiter Chefchaouen ?" {
		t.Errorf("responder should receive the raw message, got %q", responder.last)
	}
}

func TestFallbackApologyOnUpstreamFailure(t *testing.T) {
	responder := &mockResponder{err: models.ErrUpstreamUnavailable}
	r, _, userKey := newTestRouter(t, responder)

	if reply := route(t, r, userKey, "une question libre"); reply != Apology {
		t.Errorf("expected apology, got %q", reply)
	}
}

func TestFallbackApologyWithoutResponder(t *testing.T) {
	r, _, userKey := newTestRouter(t, nil)
	if reply := route(t, r, userKey, "une question libre"); reply != Apology {
		t.Errorf("expected apology, got %q", reply)
	}
}

func TestEngagementPointsPolicy(t *testing.T) {
	responder := &mockResponder{reply: "ok"}

	// Disabled by default.
	r, st, userKey := newTestRouter(t, responder)
	route(t, r, userKey, "question libre")
	u, _ := st.GetUser(userKey)
	if u.Points != 0 {
		t.Errorf("engagement points are off by default, got %d", u.Points)
	}

	// Enabled by configuration.
	r, st, userKey = newTestRouter(t, responder, WithEngagementPoints(2))
	route(t, r, userKey, "question libre")
	route(t, r, userKey, "autre question")
	u, _ = st.GetUser(userKey)
	if u.Points != 4 {
		t.Errorf("expected 4 engagement points, got %d", u.Points)
	}

	// Upstream failure awards nothing.
	responder.err = models.ErrUpstreamUnavailable
	route(t, r, userKey, "encore une question")
	u, _ = st.GetUser(userKey)
	if u.Points != 4 {
		t.Errorf("no award on apology, got %d", u.Points)
	}
}
