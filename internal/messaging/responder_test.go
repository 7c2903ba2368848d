package messaging

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/askely/concierge/internal/flow"
	"github.com/askely/concierge/internal/identity"
	"github.com/askely/concierge/internal/intent"
	"github.com/askely/concierge/internal/models"
	"github.com/askely/concierge/internal/store"
)

// mockService records sent messages and exposes a feedable response channel.
type mockService struct {
	mu        sync.Mutex
	sent      []sentMessage
	responses chan models.Response
}

type sentMessage struct {
	to   string
	body string
}

func newMockService() *mockService {
	return &mockService{responses: make(chan models.Response, 10)}
}

func (m *mockService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhoneNumber(recipient)
}

func (m *mockService) SendMessage(ctx context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMessage{to: to, body: body})
	return nil
}

func (m *mockService) Start(ctx context.Context) error { return nil }
func (m *mockService) Stop() error                     { return nil }

func (m *mockService) Responses() <-chan models.Response { return m.responses }

func (m *mockService) sentMessages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]sentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

func newTestResponder(svc Service) (*ConciergeResponder, *store.InMemoryStore) {
	st := store.NewInMemoryStore()
	reviewFlow := flow.NewReviewFlow(st)
	router := intent.NewRouter(st, nil)
	return NewConciergeResponder(st, reviewFlow, router, svc), st
}

func inbound(from, body string) models.Response {
	return models.Response{From: from, Body: body, Time: time.Now().Unix()}
}

func TestHandleInboundWelcomesNewUser(t *testing.T) {
	cr, _ := newTestResponder(nil)
	ctx := context.Background()

	reply, err := cr.HandleInbound(ctx, inbound("+212612345678", "menu"))
	if err != nil {
		t.Fatalf("HandleInbound error: %v", err)
	}
	if !strings.HasPrefix(reply, intent.Welcome) {
		t.Errorf("first contact should open with the welcome, got %q", reply)
	}
	if !strings.Contains(reply, "Askely peut") {
		t.Errorf("reply should still carry the menu, got %q", reply)
	}

	reply, err = cr.HandleInbound(ctx, inbound("+212612345678", "menu"))
	if err != nil {
		t.Fatalf("HandleInbound error: %v", err)
	}
	if strings.Contains(reply, intent.Welcome) {
		t.Errorf("welcome must not repeat, got %q", reply)
	}
}

func TestHandleInboundInvalidSender(t *testing.T) {
	cr, _ := newTestResponder(nil)

	if _, err := cr.HandleInbound(context.Background(), inbound("not-a-number", "menu")); err == nil {
		t.Error("expected error for sender with no digits")
	}
}

func TestHandleInboundGuidedReview(t *testing.T) {
	cr, st := newTestResponder(nil)
	ctx := context.Background()
	const from = "+212612345678"

	for _, msg := range []string{"start review hotel", "4"} {
		if _, err := cr.HandleInbound(ctx, inbound(from, msg)); err != nil {
			t.Fatalf("HandleInbound(%q) error: %v", msg, err)
		}
	}
	reply, err := cr.HandleInbound(ctx, inbound(from, "great stay"))
	if err != nil {
		t.Fatalf("HandleInbound error: %v", err)
	}
	if !strings.Contains(reply, "+7 points") {
		t.Errorf("hotel review should award 7 points, got %q", reply)
	}

	userKey, err := identity.Resolve(from)
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
}

func TestHandleInboundSameUserAcrossFormats(t *testing.T) {
	cr, st := newTestResponder(nil)
	ctx := context.Background()

	if _, err := cr.HandleInbound(ctx, inbound("whatsapp:+212 612-345-678", "menu")); err != nil {
		t.Fatalf("HandleInbound error: %v", err)
	}
	if _, err := cr.HandleInbound(ctx, inbound("+212612345678", "menu")); err != nil {
		t.Fatalf("HandleInbound error: %v", err)
	}

	users, err := st.ListUsers()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(users) != 1 {
		t.Errorf("both formats should resolve to one user, got %d", len(users))
	}
}

func TestResponseLoopSendsReply(t *testing.T) {
	svc := newMockService()
	cr, _ := newTestResponder(svc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		cr.Start(ctx)
	}()

	svc.responses <- inbound("+212612345678", "menu")

	deadline := time.After(2 * time.Second)
	for len(svc.sentMessages()) == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for the reply")
		case <-time.After(10 * time.Millisecond):
		}
	}

	sent := svc.sentMessages()
	if sent[0].to != "+212612345678" {
		t.Errorf("reply should go back to the sender, got %q", sent[0].to)
	}
	if !strings.Contains(sent[0].body, "Askely") {
		t.Errorf("unexpected reply body: %q", sent[0].body)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("response loop did not stop on cancellation")
	}
}

func TestResponseLoopStopsOnChannelClose(t *testing.T) {
	svc := newMockService()
	cr, _ := newTestResponder(svc)

	done := make(chan error, 1)
	go func() {
		done <- cr.Start(context.Background())
	}()

	close(svc.responses)
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("closed channel should end the loop cleanly, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("response loop did not stop on channel close")
	}
}

func TestCanonicalizePhoneNumber(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"+212612345678", "212612345678", false},
		{"whatsapp:+212 612-345-678", "212612345678", false},
		{"(212) 612 345 678", "212612345678", false},
		{"", "", true},
		{"abc", "", true},
		{"12345", "", true},
	}
	for _, c := range cases {
		got, err := canonicalizePhoneNumber(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("canonicalizePhoneNumber(%q): expected error", c.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("canonicalizePhoneNumber(%q) error: %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("canonicalizePhoneNumber(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
