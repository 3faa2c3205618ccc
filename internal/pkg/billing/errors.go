package billing

import "errors"

var (
	// ErrNoPriceConfigured means the catalog has no entry for the requested
	// product/interval pair. Operator error, not a user error.
	ErrNoPriceConfigured = errors.New("billing: no price configured for product and interval")

	// ErrUnauthorizedEvent means a gateway event failed authentication
	// (bad webhook signature, or a redirect session that could not be
	// re-fetched). The event is discarded without any state change.
	ErrUnauthorizedEvent = errors.New("billing: event authentication failed")

	// ErrGatewayUnavailable means the call to the payment gateway failed.
	// Nothing was persisted; the whole checkout is safe to retry.
	ErrGatewayUnavailable = errors.New("billing: payment gateway unavailable")

	// ErrDuplicateOutcome means the outcome was already reconciled for this
	// gateway payment reference. Callers treat it as success.
	ErrDuplicateOutcome = errors.New("billing: outcome already reconciled")
)
