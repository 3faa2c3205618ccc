package billing

import (
	"context"
	"errors"
	"testing"

	stripe "github.com/stripe/stripe-go/v82"

	"github.com/campuskit/campuskit/internal/pkg/entitlements"
)

func testQuote(interval string) Quote {
	return Quote{
		SchoolID:        7,
		Product:         entitlements.PlanPremium,
		BillingInterval: interval,
		BaseCents:       39999,
		DiscountCents:   5000,
		PayableCents:    34999,
		Currency:        "eur",
		CouponCode:      "LAUNCH50",
	}
}

func TestStartCheckoutAnnualIsOneTimePayment(t *testing.T) {
	var captured *stripe.CheckoutSessionParams
	client := &CheckoutClient{
		createSession: func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
			captured = params
			return &stripe.CheckoutSession{ID: "cs_test_1", URL: "https://pay.example/cs_test_1"}, nil
		},
	}

	url, err := client.StartCheckout(context.Background(), testQuote("year"), "https://app.example/done", "https://app.example/cancel")
	if err != nil {
		t.Fatalf("StartCheckout: %v", err)
	}
	if url != "https://pay.example/cs_test_1" {
		t.Fatalf("url = %q", url)
	}
	if got := stripe.StringValue(captured.Mode); got != string(stripe.CheckoutSessionModePayment) {
		t.Fatalf("mode = %q, want payment", got)
	}
	li := captured.LineItems[0].PriceData
	if li.Recurring != nil {
		t.Fatalf("annual checkout must not be recurring")
	}
	if stripe.Int64Value(li.UnitAmount) != 34999 {
		t.Fatalf("unit amount = %d, want the payable amount", stripe.Int64Value(li.UnitAmount))
	}
}

func TestStartCheckoutMonthlyIsSubscription(t *testing.T) {
	var captured *stripe.CheckoutSessionParams
	client := &CheckoutClient{
		createSession: func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
			captured = params
			return &stripe.CheckoutSession{ID: "cs_test_2", URL: "https://pay.example/cs_test_2"}, nil
		},
	}

	q := testQuote("month")
	q.BaseCents, q.DiscountCents, q.PayableCents = 3999, 0, 3999
	if _, err := client.StartCheckout(context.Background(), q, "https://app.example/done", "https://app.example/cancel"); err != nil {
		t.Fatalf("StartCheckout: %v", err)
	}
	if got := stripe.StringValue(captured.Mode); got != string(stripe.CheckoutSessionModeSubscription) {
		t.Fatalf("mode = %q, want subscription", got)
	}
	rec := captured.LineItems[0].PriceData.Recurring
	if rec == nil || stripe.StringValue(rec.Interval) != "month" {
		t.Fatalf("monthly checkout must carry a monthly recurring price")
	}
}

func TestStartCheckoutEmbedsCorrelationPayload(t *testing.T) {
	var captured *stripe.CheckoutSessionParams
	client := &CheckoutClient{
		createSession: func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
			captured = params
			return &stripe.CheckoutSession{ID: "cs_test_3", URL: "https://pay.example/cs_test_3"}, nil
		},
	}

	if _, err := client.StartCheckout(context.Background(), testQuote("year"), "https://app.example/done", "https://app.example/cancel"); err != nil {
		t.Fatalf("StartCheckout: %v", err)
	}

	corr, err := CorrelationFromMetadata(captured.Metadata)
	if err != nil {
		t.Fatalf("metadata does not round-trip: %v", err)
	}
	if corr.SchoolID != 7 || corr.Product != "premium" || corr.BillingInterval != "year" || corr.CouponCode != "LAUNCH50" {
		t.Fatalf("correlation payload mangled: %+v", corr)
	}
	for _, forbidden := range []string{"amount", "payable", "price"} {
		if _, ok := captured.Metadata[forbidden]; ok {
			t.Fatalf("metadata must never carry amounts, found %q", forbidden)
		}
	}
}

func TestStartCheckoutGatewayFailure(t *testing.T) {
	client := &CheckoutClient{
		createSession: func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
			return nil, errors.New("connection reset")
		},
	}

	_, err := client.StartCheckout(context.Background(), testQuote("year"), "https://app.example/done", "https://app.example/cancel")
	if !errors.Is(err, ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}
}

func TestFetchSessionFailureIsUnauthorized(t *testing.T) {
	client := &CheckoutClient{
		getSession: func(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
			return nil, errors.New("no such session")
		},
	}

	_, err := client.FetchSession(context.Background(), "cs_unknown")
	if !errors.Is(err, ErrUnauthorizedEvent) {
		t.Fatalf("expected ErrUnauthorizedEvent, got %v", err)
	}

	if _, err := client.FetchSession(context.Background(), ""); !errors.Is(err, ErrUnauthorizedEvent) {
		t.Fatalf("empty session id must be unauthorized, got %v", err)
	}
}

func TestPortalURL(t *testing.T) {
	client := &CheckoutClient{
		createPortal: func(params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error) {
			if stripe.StringValue(params.Customer) != "cus_42" {
				t.Fatalf("customer = %q", stripe.StringValue(params.Customer))
			}
			return &stripe.BillingPortalSession{URL: "https://portal.example/sess"}, nil
		},
	}

	url, err := client.PortalURL(context.Background(), "cus_42", "https://app.example/settings")
	if err != nil {
		t.Fatalf("PortalURL: %v", err)
	}
	if url != "https://portal.example/sess" {
		t.Fatalf("url = %q", url)
	}
}

func TestOutcomeFromSession(t *testing.T) {
	sess := &stripe.CheckoutSession{
		ID:            "cs_done",
		Status:        stripe.CheckoutSessionStatusComplete,
		PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid,
		Created:       1767182400,
		PaymentIntent: &stripe.PaymentIntent{ID: "pi_done"},
		Customer:      &stripe.Customer{ID: "cus_done"},
		Metadata: map[string]string{
			"school_id": "7",
			"product":   "standard",
			"interval":  "month",
			"coupon":    "",
		},
	}

	out, err := OutcomeFromSession(sess)
	if err != nil {
		t.Fatalf("OutcomeFromSession: %v", err)
	}
	if !out.Succeeded {
		t.Fatalf("complete+paid session must be a success outcome")
	}
	if out.PaymentRef != "pi_done" {
		t.Fatalf("payment ref = %q, want the payment intent id", out.PaymentRef)
	}
	if out.CustomerRef != "cus_done" {
		t.Fatalf("customer ref = %q", out.CustomerRef)
	}
	if out.Correlation.SchoolID != 7 || out.Correlation.Product != "standard" {
		t.Fatalf("correlation mangled: %+v", out.Correlation)
	}
	if out.OccurredAt.IsZero() {
		t.Fatalf("occurred_at missing")
	}
}

func TestOutcomeFromExpiredSession(t *testing.T) {
	sess := &stripe.CheckoutSession{
		ID:            "cs_expired",
		Status:        stripe.CheckoutSessionStatusExpired,
		PaymentStatus: stripe.CheckoutSessionPaymentStatusUnpaid,
		Metadata: map[string]string{
			"school_id": "7",
			"product":   "premium",
			"interval":  "year",
		},
	}

	out, err := OutcomeFromSession(sess)
	if err != nil {
		t.Fatalf("OutcomeFromSession: %v", err)
	}
	if out.Succeeded {
		t.Fatalf("expired session must not succeed")
	}
	if out.PaymentRef != "cs_expired" {
		t.Fatalf("payment ref should fall back to the session id, got %q", out.PaymentRef)
	}
}

func TestOutcomeFromSessionRejectsBadMetadata(t *testing.T) {
	sess := &stripe.CheckoutSession{
		ID:       "cs_bad",
		Metadata: map[string]string{"school_id": "not-a-number", "product": "premium", "interval": "year"},
	}
	if _, err := OutcomeFromSession(sess); err == nil {
		t.Fatalf("expected error for unparseable correlation payload")
	}
}
