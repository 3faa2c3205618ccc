package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/campuskit/campuskit/app/controllers"
	"github.com/campuskit/campuskit/internal/pkg/constants"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// Checkout flow: the browser is sent to the gateway and comes back on
	// the complete/cancel routes.
	app.Post(constants.BillingCheckoutRoute, controllers.HandleBillingCheckout)
	app.Get(constants.BillingCheckoutCompleteRoute, controllers.HandleCheckoutComplete)
	app.Get(constants.BillingCheckoutCancelRoute, controllers.HandleCheckoutCancel)

	// Customer portal handoff
	app.Get(constants.BillingPortalRoute, controllers.HandleBillingPortal)

	// Billing provider webhooks (no CSRF, signature-verified in controller)
	app.Post(constants.StripeWebhookRoute, controllers.HandleStripeWebhook)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
