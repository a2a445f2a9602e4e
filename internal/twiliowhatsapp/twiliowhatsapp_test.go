package twiliowhatsapp

import (
	"context"
	"errors"
	"testing"
)

func TestMockClient_SendMessage(t *testing.T) {
	ctx := context.Background()
	mock := NewMockClient()

	err := mock.SendMessage(ctx, "+34600111222", "Hola")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sent := mock.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(sent))
	}
	if sent[0].Body != "Hola" {
		t.Errorf("expected body %q, got %q", "Hola", sent[0].Body)
	}
}

func TestMockClient_Errors(t *testing.T) {
	ctx := context.Background()
	mock := NewMockClient()

	if err := mock.SendMessage(ctx, "  ", "Hola"); !errors.Is(err, ErrEmptyRecipient) {
		t.Errorf("expected ErrEmptyRecipient, got %v", err)
	}

	mock.Err = errors.New("twilio down")
	if err := mock.SendMessage(ctx, "+34600111222", "Hola"); err == nil {
		t.Error("expected injected error")
	}
	if len(mock.Sent()) != 0 {
		t.Errorf("expected no recorded messages, got %d", len(mock.Sent()))
	}
}

func TestWhatsAppAddress(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"+34 600 111 222", "whatsapp:+34600111222"},
		{"34600111222", "whatsapp:+34600111222"},
		{"whatsapp:+34600111222", "whatsapp:+34600111222"},
		{"+34-600.111(222)", "whatsapp:+34600111222"},
		{"", ""},
		{"whatsapp:", ""},
	}
	for _, tt := range tests {
		if got := WhatsAppAddress(tt.in); got != tt.want {
			t.Errorf("WhatsAppAddress(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewClient_RequiresCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")

	if _, err := NewClient(); err == nil {
		t.Error("expected error without credentials")
	}
	if _, err := NewClient(WithAccountSID("AC123"), WithAuthToken("tok")); err == nil {
		t.Error("expected error without from number")
	}
	c, err := NewClient(WithAccountSID("AC123"), WithAuthToken("tok"), WithFromWhats("+14155238886"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.fromWhats != "whatsapp:+14155238886" {
		t.Errorf("unexpected from address %q", c.fromWhats)
	}
}
