package twiliowhatsapp

import (
	"context"
	"testing"
)

func TestMockClientSendMessage(t *testing.T) {
	ctx := context.Background()
	mock := NewMockClient()

	if err := mock.SendMessage(ctx, "212612345678", "Bienvenue chez Askely"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(mock.SentMessages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(mock.SentMessages))
	}
	if mock.SentMessages[0].To != "212612345678" {
		t.Errorf("unexpected recipient: %q", mock.SentMessages[0].To)
	}
	if mock.SentMessages[0].Body != "Bienvenue chez Askely" {
		t.Errorf("unexpected body: %q", mock.SentMessages[0].Body)
	}
}

func TestNewClientRequiresCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")

	if _, err := NewClient(); err == nil {
		t.Error("expected error without credentials")
	}

	if _, err := NewClient(WithAccountSID("AC123"), WithAuthToken("token")); err == nil {
		t.Error("expected error without a sender number")
	}

	client, err := NewClient(WithAccountSID("AC123"), WithAuthToken("token"), WithFromWhats("whatsapp:+14155238886"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.fromWhats != "whatsapp:+14155238886" {
		t.Errorf("unexpected sender: %q", client.fromWhats)
	}
}
