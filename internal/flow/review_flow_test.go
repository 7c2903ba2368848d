package flow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/askely/concierge/internal/models"
	"github.com/askely/concierge/internal/store"
)

func newTestFlow(t *testing.T) (*ReviewFlow, *store.InMemoryStore, string) {
	t.Helper()
	st := store.NewInMemoryStore()
	const userKey = "user-key-1"
	if _, err := st.EnsureUser(userKey); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return NewReviewFlow(st), st, userKey
}

// send runs one message through the flow and fails the test on error.
func send(t *testing.T, f *ReviewFlow, userKey, text string) (string, bool) {
	t.Helper()
	reply, handled, err := f.HandleMessage(context.Background(), userKey, text)
	if err != nil {
		t.Fatalf("HandleMessage(%q) error: %v", text, err)
	}
	return reply, handled
}

func TestGuidedReviewHappyPath(t *testing.T) {
	f, st, userKey := newTestFlow(t)

	reply, handled := send(t, f, userKey, "start review hotel")
	if !handled {
		t.Fatal("trigger should be consumed by the flow")
	}
	if !strings.Contains(reply, "1 à 5") {
		t.Errorf("expected rating prompt, got %q", reply)
	}

	if _, handled = send(t, f, userKey, "4"); !handled {
		t.Fatal("rating should be consumed by the flow")
	}

	reply, handled = send(t, f, userKey, "great stay")
	if !handled {
		t.Fatal("comment should be consumed by the flow")
	}
	if !strings.Contains(reply, "+7 points") {
		t.Errorf("expected hotel award of 7 in reply, got %q", reply)
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
		t.Fatalf("expected exactly one review, got %d", len(reviews))
	}
	r := reviews[0]
	if r.Category != models.CategoryHotel || r.Rating != 4 || r.Comment != "great stay" {
		t.Errorf("unexpected review: %+v", r)
	}

	state, _ := st.GetDialogueState(userKey)
	if state != nil {
		t.Errorf("dialogue state should be cleared after commit, got %+v", state)
	}
}

func TestCategoryAwards(t *testing.T) {
	cases := []struct {
		category string
		award    int
	}{
		{"flight", 10},
		{"hotel", 7},
		{"restaurant", 5},
		{"loyalty", 8},
	}
	for _, tc := range cases {
		f, st, userKey := newTestFlow(t)
		send(t, f, userKey, "review "+tc.category)
		send(t, f, userKey, "5")
		send(t, f, userKey, "parfait")

		u, _ := st.GetUser(userKey)
		if u.Points != tc.award {
			t.Errorf("%s: expected %d points, got %d", tc.category, tc.award, u.Points)
		}
	}
}

func TestInvalidRatingNeverAdvances(t *testing.T) {
	f, st, userKey := newTestFlow(t)
	send(t, f, userKey, "review flight")

	for _, bad := range []string{"7", "0", "abc", "-1", "5.5", ""} {
		reply, handled := send(t, f, userKey, bad)
		if !handled {
			t.Errorf("rating input %q should be consumed (re-prompt)", bad)
		}
		if !strings.Contains(reply, "entre 1 et 5") {
			t.Errorf("rating input %q should re-prompt, got %q", bad, reply)
		}
		state, _ := st.GetDialogueState(userKey)
		if state == nil || state.Awaiting != models.StateAwaitingRating {
			t.Fatalf("rating input %q must not advance state, got %+v", bad, state)
		}
	}

	reviews, _ := st.RecentReviews(userKey, 10)
	if len(reviews) != 0 {
		t.Errorf("no review should exist, got %d", len(reviews))
	}
}

func TestUnknownCategoryRejected(t *testing.T) {
	f, st, userKey := newTestFlow(t)

	reply, handled := send(t, f, userKey, "review spaceship")
	if !handled {
		t.Fatal("unknown-category trigger should still be consumed")
	}
	if !strings.Contains(reply, "inconnue") {
		t.Errorf("expected rejection message, got %q", reply)
	}

	state, _ := st.GetDialogueState(userKey)
	if state != nil {
		t.Errorf("no dialogue should be opened, got %+v", state)
	}
	reviews, _ := st.PublicRecentReviews(10)
	if len(reviews) != 0 {
		t.Errorf("no review should exist, got %d", len(reviews))
	}
}

func TestRestartResetsToNewCategory(t *testing.T) {
	f, st, userKey := newTestFlow(t)
	send(t, f, userKey, "review hotel")
	send(t, f, userKey, "3")

	// Starting over mid-flow resets cleanly to the new category.
	reply, handled := send(t, f, userKey, "review flight")
	if !handled {
		t.Fatal("restart trigger should be consumed")
	}
	if !strings.Contains(reply, "flight") {
		t.Errorf("expected a fresh flight prompt, got %q", reply)
	}

	state, _ := st.GetDialogueState(userKey)
	if state == nil || state.Category != models.CategoryFlight || state.Awaiting != models.StateAwaitingRating {
		t.Fatalf("expected reset to flight/AWAITING_RATING, got %+v", state)
	}
	if state.Rating != 0 {
		t.Errorf("old rating must not survive the reset, got %d", state.Rating)
	}
}

func TestCancelClearsDialogue(t *testing.T) {
	f, st, userKey := newTestFlow(t)
	send(t, f, userKey, "review restaurant")

	reply, handled := send(t, f, userKey, "cancel")
	if !handled {
		t.Fatal("cancel should be consumed while a dialogue is open")
	}
	if !strings.Contains(reply, "annulé") {
		t.Errorf("expected cancellation message, got %q", reply)
	}

	state, _ := st.GetDialogueState(userKey)
	if state != nil {
		t.Errorf("state should be cleared after cancel, got %+v", state)
	}

	// With no open dialogue, cancel words fall through to the router.
	if _, handled = send(t, f, userKey, "cancel"); handled {
		t.Error("cancel with no open dialogue should not be consumed")
	}
}

func TestUnrelatedInputFallsThrough(t *testing.T) {
	f, _, userKey := newTestFlow(t)
	if _, handled := send(t, f, userKey, "hotels in Marrakech"); handled {
		t.Error("unrelated input must fall through to the intent router")
	}
}

// failingReviewStore wraps a Store and fails AppendReview.
type failingReviewStore struct {
	store.Store
}

func (s *failingReviewStore) AppendReview(r models.Review) (int64, error) {
	return 0, errors.New("disk full")
}

func TestCommitFailureKeepsStateAndPoints(t *testing.T) {
	st := store.NewInMemoryStore()
	const userKey = "user-key-1"
	if _, err := st.EnsureUser(userKey); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	f := NewReviewFlow(&failingReviewStore{Store: st})

	send(t, f, userKey, "review hotel")
	send(t, f, userKey, "4")

	reply, handled := send(t, f, userKey, "great stay")
	if !handled {
		t.Fatal("comment should still be consumed on failure")
	}
	if !strings.Contains(reply, "Réessayez") {
		t.Errorf("expected re-prompt on append failure, got %q", reply)
	}

	state, _ := st.GetDialogueState(userKey)
	if state == nil || state.Awaiting != models.StateAwaitingComment {
		t.Fatalf("failed commit must leave session in AWAITING_COMMENT, got %+v", state)
	}
	u, _ := st.GetUser(userKey)
	if u.Points != 0 {
		t.Errorf("no points may be awarded without a stored review, got %d", u.Points)
	}
}

func TestConcurrentUsersIndependent(t *testing.T) {
	st := store.NewInMemoryStore()
	f := NewReviewFlow(st)

	const users = 10
	keys := make([]string, users)
	for i := range keys {
		keys[i] = "user-" + string(rune('a'+i))
		if _, err := st.EnsureUser(keys[i]); err != nil {
			t.Fatalf("failed to create user: %v", err)
		}
	}

	var wg sync.WaitGroup
	wg.Add(users)
	for _, key := range keys {
		go func(k string) {
			defer wg.Done()
			ctx := context.Background()
			for _, msg := range []string{"review restaurant", "5", "excellent"} {
				if _, _, err := f.HandleMessage(ctx, k, msg); err != nil {
					t.Errorf("user %s: %v", k, err)
				}
			}
		}(key)
	}
	wg.Wait()

	for _, key := range keys {
		u, err := st.GetUser(key)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if u.Points != 5 {
			t.Errorf("user %s: expected 5 points, got %d", key, u.Points)
		}
	}
	reviews, _ := st.PublicRecentReviews(100)
	if len(reviews) != users {
		t.Errorf("expected %d reviews, got %d", users, len(reviews))
	}
}
