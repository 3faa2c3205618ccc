package constants

// Static route constants
const (
	BillingCheckoutRoute         = "/billing/checkout"
	BillingCheckoutCompleteRoute = "/billing/checkout/complete"
	BillingCheckoutCancelRoute   = "/billing/checkout/cancel"
	BillingPortalRoute           = "/billing/portal"
	StripeWebhookRoute           = "/webhooks/stripe"
)
