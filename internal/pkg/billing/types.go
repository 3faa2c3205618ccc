package billing

import (
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/campuskit/campuskit/internal/pkg/entitlements"
)

// Quote is the priced purchase intent for one (school, product, interval)
// checkout. It is never persisted; the correlation payload carries enough to
// re-derive it at reconciliation time.
type Quote struct {
	SchoolID        uint
	Product         entitlements.Plan
	BillingInterval string
	BaseCents       int64
	DiscountCents   int64
	PayableCents    int64
	Currency        string
	CouponCode      string
}

// CorrelationPayload is the typed form of the opaque metadata attached to a
// checkout session. The gateway echoes it back unchanged; amounts are never
// part of it and are always re-derived server-side.
type CorrelationPayload struct {
	SchoolID        uint   `validate:"required"`
	Product         string `validate:"required,oneof=standard premium"`
	BillingInterval string `validate:"required,oneof=month year"`
	CouponCode      string `validate:"omitempty,max=64"`
}

func (p *CorrelationPayload) Validate() error {
	v := validator.New()

	return v.Struct(p)
}

// Metadata serializes the payload into gateway session metadata.
func (p CorrelationPayload) Metadata() map[string]string {
	return map[string]string{
		"school_id": strconv.FormatUint(uint64(p.SchoolID), 10),
		"product":   p.Product,
		"interval":  p.BillingInterval,
		"coupon":    p.CouponCode,
	}
}

// CorrelationFromMetadata parses and validates gateway session metadata.
func CorrelationFromMetadata(md map[string]string) (CorrelationPayload, error) {
	schoolID, err := strconv.ParseUint(strings.TrimSpace(md["school_id"]), 10, 32)
	if err != nil {
		return CorrelationPayload{}, err
	}
	p := CorrelationPayload{
		SchoolID:        uint(schoolID),
		Product:         strings.ToLower(strings.TrimSpace(md["product"])),
		BillingInterval: strings.ToLower(strings.TrimSpace(md["interval"])),
		CouponCode:      strings.TrimSpace(md["coupon"]),
	}
	if err := p.Validate(); err != nil {
		return CorrelationPayload{}, err
	}
	return p, nil
}

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	PayloadJSON     string
	SignatureValid  bool
}

// Outcome is a normalized, already-authenticated gateway outcome event, fed
// to the reconciler by both the webhook path and the redirect path.
type Outcome struct {
	Provider        string
	PaymentRef      string
	CustomerRef     string
	SubscriptionRef string
	Succeeded       bool
	OccurredAt      time.Time
	Correlation     CorrelationPayload
}
