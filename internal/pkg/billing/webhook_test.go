package billing

import (
	"errors"
	"testing"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

const testSigningSecret = "whsec_test_secret"

func signedPayload(t *testing.T, body string) (payload []byte, header string) {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(body),
		Secret:    testSigningSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	return signed.Payload, signed.Header
}

func TestVerifyWebhookEventValidSignature(t *testing.T) {
	payload, header := signedPayload(t, `{"id":"evt_1","type":"checkout.session.completed","data":{"object":{}}}`)

	event, err := VerifyWebhookEvent(payload, header, testSigningSecret)
	if err != nil {
		t.Fatalf("VerifyWebhookEvent: %v", err)
	}
	if event.ID != "evt_1" {
		t.Fatalf("event id = %q", event.ID)
	}
	if string(event.Type) != "checkout.session.completed" {
		t.Fatalf("event type = %q", event.Type)
	}
}

func TestVerifyWebhookEventWrongSecret(t *testing.T) {
	payload, header := signedPayload(t, `{"id":"evt_2","type":"checkout.session.completed"}`)

	_, err := VerifyWebhookEvent(payload, header, "whsec_other_secret")
	if !errors.Is(err, ErrUnauthorizedEvent) {
		t.Fatalf("expected ErrUnauthorizedEvent, got %v", err)
	}
}

func TestVerifyWebhookEventTamperedBody(t *testing.T) {
	_, header := signedPayload(t, `{"id":"evt_3","type":"checkout.session.completed"}`)

	_, err := VerifyWebhookEvent([]byte(`{"id":"evt_3","type":"charge.refunded"}`), header, testSigningSecret)
	if !errors.Is(err, ErrUnauthorizedEvent) {
		t.Fatalf("expected ErrUnauthorizedEvent, got %v", err)
	}
}

func TestVerifyWebhookEventMissingHeaderOrSecret(t *testing.T) {
	payload, header := signedPayload(t, `{"id":"evt_4"}`)

	if _, err := VerifyWebhookEvent(payload, "", testSigningSecret); !errors.Is(err, ErrUnauthorizedEvent) {
		t.Fatalf("missing header: expected ErrUnauthorizedEvent, got %v", err)
	}
	if _, err := VerifyWebhookEvent(payload, header, ""); !errors.Is(err, ErrUnauthorizedEvent) {
		t.Fatalf("missing secret: expected ErrUnauthorizedEvent, got %v", err)
	}
}

func TestIsOutcomeEvent(t *testing.T) {
	tests := []struct {
		eventType string
		want      bool
	}{
		{"checkout.session.completed", true},
		{"checkout.session.async_payment_succeeded", true},
		{"checkout.session.async_payment_failed", true},
		{"checkout.session.expired", true},
		{"charge.refunded", true},
		{"customer.subscription.deleted", true},
		{"invoice.paid", true},
		{"invoice.created", false},
		{"customer.created", false},
		{"payment_intent.succeeded", false},
	}
	for _, tt := range tests {
		if got := IsOutcomeEvent(stripe.EventType(tt.eventType)); got != tt.want {
			t.Fatalf("IsOutcomeEvent(%q) = %v, want %v", tt.eventType, got, tt.want)
		}
	}
}
