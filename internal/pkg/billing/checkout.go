package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	stripesession "github.com/stripe/stripe-go/v82/checkout/session"

	"github.com/campuskit/campuskit/app/models"
	"github.com/campuskit/campuskit/internal/pkg/env"
)

// CheckoutClient wraps the Stripe calls the engine makes. The function
// fields exist so tests can run without the network.
type CheckoutClient struct {
	createSession func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	getSession    func(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	createPortal  func(params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error)
}

// NewCheckoutClient creates a gateway client using the given secret key.
func NewCheckoutClient(apiKey string) *CheckoutClient {
	stripe.Key = strings.TrimSpace(apiKey)
	return &CheckoutClient{
		createSession: stripesession.New,
		getSession:    stripesession.Get,
		createPortal:  portalsession.New,
	}
}

// NewCheckoutClientFromEnv creates a gateway client from STRIPE_SECRET_KEY.
func NewCheckoutClientFromEnv() *CheckoutClient {
	return NewCheckoutClient(env.GetEnv("STRIPE_SECRET_KEY", ""))
}

// StartCheckout opens a payment collection session for the quote and returns
// the gateway-hosted URL the browser should be sent to. Monthly quotes open
// a subscription-mode session, annual quotes a one-time payment. Nothing is
// persisted here: an abandoned session must not leave a ledger row behind.
//
// The gateway call is made once with a bounded context and not retried; a
// failure surfaces as ErrGatewayUnavailable and the whole checkout can be
// restarted from scratch.
func (c *CheckoutClient) StartCheckout(ctx context.Context, q Quote, successURL, cancelURL string) (string, error) {
	priceData := &stripe.CheckoutSessionLineItemPriceDataParams{
		Currency:   stripe.String(q.Currency),
		UnitAmount: stripe.Int64(q.PayableCents),
		ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(fmt.Sprintf("CampusKit %s (%sly)", q.Product, q.BillingInterval)),
		},
	}

	mode := stripe.CheckoutSessionModePayment
	if q.BillingInterval == models.BillingIntervalMonth {
		mode = stripe.CheckoutSessionModeSubscription
		priceData.Recurring = &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
			Interval: stripe.String(string(stripe.PriceRecurringIntervalMonth)),
		}
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(mode)),
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: priceData,
				Quantity:  stripe.Int64(1),
			},
		},
		Metadata: q.Correlation().Metadata(),
	}
	params.Context = ctx

	sess, err := c.createSession(params)
	if err != nil || sess == nil || strings.TrimSpace(sess.URL) == "" {
		return "", fmt.Errorf("%w: checkout session creation failed: %v", ErrGatewayUnavailable, err)
	}
	return sess.URL, nil
}

// FetchSession re-fetches a checkout session by id. This is how the
// low-trust browser redirect path authenticates an outcome: a session the
// gateway does not know about never reaches the reconciler.
func (c *CheckoutClient) FetchSession(ctx context.Context, sessionID string) (*stripe.CheckoutSession, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrUnauthorizedEvent
	}
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	sess, err := c.getSession(sessionID, params)
	if err != nil || sess == nil {
		return nil, fmt.Errorf("%w: checkout session lookup failed: %v", ErrUnauthorizedEvent, err)
	}
	return sess, nil
}

// PortalURL creates a gateway-hosted customer portal session. Pure
// passthrough, no state mutation.
func (c *CheckoutClient) PortalURL(ctx context.Context, customerRef, returnURL string) (string, error) {
	if strings.TrimSpace(customerRef) == "" {
		return "", fmt.Errorf("billing: customer reference is required")
	}
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerRef),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx
	sess, err := c.createPortal(params)
	if err != nil || sess == nil {
		return "", fmt.Errorf("%w: portal session creation failed: %v", ErrGatewayUnavailable, err)
	}
	return sess.URL, nil
}

// OutcomeFromSession converts a completed (or failed) checkout session into
// the normalized outcome fed to the reconciler. The correlation payload is
// validated on the way in.
func OutcomeFromSession(sess *stripe.CheckoutSession) (Outcome, error) {
	corr, err := CorrelationFromMetadata(sess.Metadata)
	if err != nil {
		return Outcome{}, err
	}

	out := Outcome{
		Provider:    models.BillingProviderStripe,
		PaymentRef:  paymentRefFromSession(sess),
		Correlation: corr,
		Succeeded: sess.Status == stripe.CheckoutSessionStatusComplete &&
			sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
	}
	if sess.Customer != nil {
		out.CustomerRef = sess.Customer.ID
	}
	if sess.Subscription != nil {
		out.SubscriptionRef = sess.Subscription.ID
	}
	if sess.Created > 0 {
		out.OccurredAt = time.Unix(sess.Created, 0).UTC()
	}
	return out, nil
}

// paymentRefFromSession picks the most specific durable reference the
// gateway offers for this purchase.
func paymentRefFromSession(sess *stripe.CheckoutSession) string {
	if sess.PaymentIntent != nil && sess.PaymentIntent.ID != "" {
		return sess.PaymentIntent.ID
	}
	if sess.Subscription != nil && sess.Subscription.ID != "" {
		return sess.Subscription.ID
	}
	return sess.ID
}
