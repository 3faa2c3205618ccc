package billing

import (
	"fmt"
	"strings"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// VerifyWebhookEvent authenticates a raw webhook body against the gateway's
// signing secret. Fails closed: a missing header or secret is treated the
// same as a bad signature, and the event is discarded without state change.
func VerifyWebhookEvent(payload []byte, sigHeader, secret string) (*stripe.Event, error) {
	if strings.TrimSpace(sigHeader) == "" || strings.TrimSpace(secret) == "" {
		return nil, ErrUnauthorizedEvent
	}
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorizedEvent, err)
	}
	return &event, nil
}

// IsOutcomeEvent reports whether the event type carries a billing outcome
// the engine consumes (checkout results, subscription renewals, refunds,
// cancellations). Everything else is journaled and ignored.
func IsOutcomeEvent(eventType stripe.EventType) bool {
	switch eventType {
	case "checkout.session.completed",
		"checkout.session.async_payment_succeeded",
		"checkout.session.async_payment_failed",
		"checkout.session.expired",
		"invoice.paid",
		"charge.refunded",
		"customer.subscription.deleted":
		return true
	default:
		return false
	}
}
