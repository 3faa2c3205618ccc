package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/sujit-baniya/flash"
	"gorm.io/gorm"

	"github.com/campuskit/campuskit/app/models"
	"github.com/campuskit/campuskit/internal/pkg/billing"
	"github.com/campuskit/campuskit/internal/pkg/constants"
	"github.com/campuskit/campuskit/internal/pkg/database"
	"github.com/campuskit/campuskit/internal/pkg/entitlements"
	"github.com/campuskit/campuskit/internal/pkg/env"
	"github.com/campuskit/campuskit/internal/pkg/metrics/counter"
)

// HandleBillingCheckout opens a gateway checkout session for the requested
// product/interval and sends the browser there. Nothing is persisted until
// the outcome comes back; an abandoned session leaves no trace.
func HandleBillingCheckout(c *fiber.Ctx) error {
	schoolID, err := parseSchoolID(c.FormValue("school_id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_school_id"})
	}
	product := entitlements.Normalize(c.FormValue("product"))
	if !entitlements.Paid(product) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "product_not_billable"})
	}
	interval := strings.ToLower(strings.TrimSpace(c.FormValue("interval")))
	coupon := strings.TrimSpace(c.FormValue("coupon"))

	svc := billing.NewServiceFromDB(database.GetDB())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	quote, err := svc.BuildQuote(ctx, schoolID, product, interval, coupon)
	if err != nil {
		if errors.Is(err, billing.ErrNoPriceConfigured) {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "no_price_configured"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "quote_failed"})
	}

	base := env.GetEnv("APP_BASE_URL", "http://localhost:4000")
	successURL := base + constants.BillingCheckoutCompleteRoute + "?session_id={CHECKOUT_SESSION_ID}"
	cancelURL := base + constants.BillingCheckoutCancelRoute

	client := billing.NewCheckoutClientFromEnv()
	redirectURL, err := client.StartCheckout(ctx, quote, successURL, cancelURL)
	if err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Payment provider is unavailable, please try again"}).
			Redirect(billingReturnTarget())
	}

	_ = counter.AddCheckoutStarted(string(product))
	return c.Redirect(redirectURL, fiber.StatusSeeOther)
}

// HandleCheckoutComplete is the synchronous success redirect the browser
// follows right after paying. It authenticates by re-fetching the session
// from the gateway and then runs the same idempotent reconciliation as the
// webhook path, so the race between the two is harmless.
func HandleCheckoutComplete(c *fiber.Ctx) error {
	sessionID := strings.TrimSpace(c.Query("session_id"))
	if sessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "session_id_missing"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	client := billing.NewCheckoutClientFromEnv()
	sess, err := client.FetchSession(ctx, sessionID)
	if err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Payment could not be verified"}).
			Redirect(billingReturnTarget())
	}

	out, err := billing.OutcomeFromSession(sess)
	if err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Payment could not be verified"}).
			Redirect(billingReturnTarget())
	}

	svc := billing.NewServiceFromDB(database.GetDB())
	if _, err := svc.ReconcileOutcome(ctx, out); err != nil {
		if !errors.Is(err, billing.ErrDuplicateOutcome) {
			return flash.WithError(c, fiber.Map{"type": "error", "message": "Payment received but could not be recorded yet, support has been notified"}).
				Redirect(billingReturnTarget())
		}
	} else {
		countOutcome(out.Succeeded, out.Correlation.Product)
	}

	if !out.Succeeded {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Payment was not completed"}).
			Redirect(billingReturnTarget())
	}

	msg := fmt.Sprintf("Membership %s is now active", out.Correlation.Product)
	return flash.WithSuccess(c, fiber.Map{"type": "success", "message": msg}).Redirect(billingReturnTarget())
}

// HandleCheckoutCancel is the cancel destination of the gateway session.
func HandleCheckoutCancel(c *fiber.Ctx) error {
	return flash.WithInfo(c, fiber.Map{"type": "info", "message": "Checkout cancelled"}).Redirect(billingReturnTarget())
}

// HandleStripeWebhook consumes the gateway's asynchronous, at-least-once
// event delivery. 2xx means processed or safe duplicate; non-2xx is reserved
// for verification and transient storage failures so the gateway retries
// only when retrying can help.
func HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("Stripe-Signature"))
	secret := env.GetEnv("STRIPE_WEBHOOK_SECRET", "")

	event, verifyErr := billing.VerifyWebhookEvent(rawBody, signature, secret)
	eventID, eventType := stripeEventEnvelope(rawBody)

	svc := billing.NewServiceFromDB(database.GetDB())
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	created, stored, err := svc.RecordWebhookEvent(ctx, billing.WebhookEventInput{
		Provider:        models.BillingProviderStripe,
		ProviderEventID: eventID,
		EventType:       eventType,
		PayloadJSON:     string(rawBody),
		SignatureValid:  verifyErr == nil,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	// Only a cleanly processed event is a safe duplicate. A journaled event
	// whose dispatch failed must be dispatched again on redelivery, or the
	// gateway's retry would be swallowed by the journal.
	if !created && stored.ProcessedCleanly() {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}
	if verifyErr != nil {
		_ = svc.MarkWebhookProcessed(ctx, stored.ID, errors.New("invalid webhook signature"))
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
	}
	if !billing.IsOutcomeEvent(event.Type) {
		_ = svc.MarkWebhookProcessed(ctx, stored.ID, nil)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
	}

	procErr := dispatchStripeEvent(ctx, svc, event)
	_ = svc.MarkWebhookProcessed(ctx, stored.ID, procErr)
	if procErr != nil {
		if isBusinessInvalid(procErr) {
			// Understood but not actionable. 2xx stops a retry storm.
			return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "event_processing_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}

// HandleBillingPortal hands the browser over to the gateway-hosted customer
// portal. Pure passthrough.
func HandleBillingPortal(c *fiber.Ctx) error {
	customerRef := strings.TrimSpace(c.Query("customer_ref"))
	returnURL := strings.TrimSpace(c.Query("return_url"))
	if returnURL == "" {
		returnURL = env.GetEnv("APP_BASE_URL", "http://localhost:4000")
	}
	if customerRef == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "customer_ref_missing"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	client := billing.NewCheckoutClientFromEnv()
	url, err := client.PortalURL(ctx, customerRef, returnURL)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "portal_unavailable"})
	}
	return c.Redirect(url, fiber.StatusSeeOther)
}

// dispatchStripeEvent routes one journaled outcome event into the engine.
func dispatchStripeEvent(ctx context.Context, svc *billing.Service, event *stripe.Event) error {
	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded",
		"checkout.session.async_payment_failed", "checkout.session.expired":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return fmt.Errorf("decode checkout.session: %w", err)
		}
		out, err := billing.OutcomeFromSession(&sess)
		if err != nil {
			return fmt.Errorf("correlation payload: %w", errInvalidPayload)
		}
		if _, err := svc.ReconcileOutcome(ctx, out); err != nil {
			if !errors.Is(err, billing.ErrDuplicateOutcome) {
				return err
			}
			return nil
		}
		countOutcome(out.Succeeded, out.Correlation.Product)
		return nil

	case "invoice.paid":
		// Minimal envelope; the full invoice object carries far more than
		// the renewal needs.
		var inv struct {
			ID            string `json:"id"`
			Subscription  string `json:"subscription"`
			PaymentIntent string `json:"payment_intent"`
			Created       int64  `json:"created"`
		}
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return fmt.Errorf("decode invoice: %w", err)
		}
		paymentRef := inv.PaymentIntent
		if paymentRef == "" {
			paymentRef = inv.ID
		}
		var occurred time.Time
		if inv.Created > 0 {
			occurred = time.Unix(inv.Created, 0).UTC()
		}
		_, err := svc.RenewSubscription(ctx, models.BillingProviderStripe, paymentRef, inv.Subscription, occurred)
		if errors.Is(err, billing.ErrDuplicateOutcome) {
			return nil
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Invoice for a subscription this engine never sold.
			return fmt.Errorf("unknown subscription %q: %w", inv.Subscription, errInvalidPayload)
		}
		return err

	case "charge.refunded":
		var ch stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
			return fmt.Errorf("decode charge: %w", err)
		}
		if ch.PaymentIntent == nil || ch.PaymentIntent.ID == "" {
			return errInvalidPayload
		}
		if _, err := svc.RefundOutcome(ctx, models.BillingProviderStripe, ch.PaymentIntent.ID); err != nil && !errors.Is(err, billing.ErrDuplicateOutcome) {
			return err
		}
		return nil

	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("decode subscription: %w", err)
		}
		return svc.CancelSubscription(ctx, sub.ID)
	}
	return nil
}

// countOutcome feeds the informational funnel counters after a first-time
// reconciliation. Duplicates never reach here, so the counts stay honest.
func countOutcome(succeeded bool, product string) {
	if succeeded {
		_ = counter.AddPaymentCompleted(product)
		return
	}
	_ = counter.AddPaymentFailed(product)
}

// stripeEventEnvelope extracts the event id and type from a raw webhook body
// before signature verification, so rejected deliveries can be journaled too.
// Bodies without a usable id get a synthetic one so the journal's uniqueness
// key does not conflate distinct garbage deliveries.
func stripeEventEnvelope(raw []byte) (id, eventType string) {
	var envelope struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	}
	_ = json.Unmarshal(raw, &envelope)
	if strings.TrimSpace(envelope.ID) == "" {
		return "invalid:" + uuid.NewString(), envelope.Type
	}
	return envelope.ID, envelope.Type
}

var errInvalidPayload = errors.New("event payload is not actionable")

func isBusinessInvalid(err error) bool {
	return errors.Is(err, errInvalidPayload)
}

func billingReturnTarget() string {
	return env.GetEnv("BILLING_RETURN_URL", "/")
}

func parseSchoolID(raw string) (uint, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid school id %q", raw)
	}
	return uint(id), nil
}
