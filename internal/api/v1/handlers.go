package apiv1

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/campuskit/campuskit/internal/pkg/billing"
	"github.com/campuskit/campuskit/internal/pkg/cache"
	"github.com/campuskit/campuskit/internal/pkg/database"
	"github.com/campuskit/campuskit/internal/pkg/entitlements"
	"github.com/campuskit/campuskit/internal/pkg/metrics/counter"
)

const membershipCacheTTL = 30 * time.Second

// APIServer serves the JSON endpoints the presentation layer consumes.
type APIServer struct{}

// NewAPIServer creates a new API server instance
func NewAPIServer() *APIServer {
	return &APIServer{}
}

// QuoteRequest is the query input for quote computation.
type QuoteRequest struct {
	SchoolID uint   `validate:"required"`
	Product  string `validate:"required,oneof=standard premium"`
	Interval string `validate:"required,oneof=month year"`
	Coupon   string `validate:"omitempty,max=64"`
}

// QuoteResponse mirrors billing.Quote for JSON consumers.
type QuoteResponse struct {
	SchoolID      uint   `json:"school_id"`
	Product       string `json:"product"`
	Interval      string `json:"interval"`
	BaseCents     int64  `json:"base_cents"`
	DiscountCents int64  `json:"discount_cents"`
	PayableCents  int64  `json:"payable_cents"`
	Currency      string `json:"currency"`
	CouponCode    string `json:"coupon_code,omitempty"`
}

// MembershipResponse is the current entitlement state of one school.
type MembershipResponse struct {
	SchoolID      uint                 `json:"school_id"`
	EffectivePlan string               `json:"effective_plan"`
	Memberships   []MembershipRowEntry `json:"memberships"`
}

type MembershipRowEntry struct {
	Product     string     `json:"product"`
	Status      string     `json:"status"`
	Interval    string     `json:"interval"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	RenewalDate *time.Time `json:"renewal_date,omitempty"`
}

// GetBillingQuote computes a purchase quote for (school, product, interval)
// with an optional coupon code. Stale or unknown coupons degrade to full
// price rather than erroring.
func (s *APIServer) GetBillingQuote(c *fiber.Ctx) error {
	schoolID, _ := c.ParamsInt("id")
	req := QuoteRequest{
		SchoolID: uint(schoolID),
		Product:  strings.ToLower(strings.TrimSpace(c.Query("product"))),
		Interval: strings.ToLower(strings.TrimSpace(c.Query("interval"))),
		Coupon:   strings.TrimSpace(c.Query("coupon")),
	}
	if err := validator.New().Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
	}

	svc := billing.NewServiceFromDB(database.GetDB())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	quote, err := svc.BuildQuote(ctx, req.SchoolID, entitlements.Plan(req.Product), req.Interval, req.Coupon)
	if err != nil {
		if errors.Is(err, billing.ErrNoPriceConfigured) {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "no_price_configured"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "quote_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(QuoteResponse{
		SchoolID:      quote.SchoolID,
		Product:       string(quote.Product),
		Interval:      quote.BillingInterval,
		BaseCents:     quote.BaseCents,
		DiscountCents: quote.DiscountCents,
		PayableCents:  quote.PayableCents,
		Currency:      quote.Currency,
		CouponCode:    quote.CouponCode,
	})
}

// GetSchoolMembership returns the current entitlement state for a school.
// Reads are cached briefly; the reconciler is the only writer, so a short
// TTL keeps the view fresh enough for the presentation layer.
func (s *APIServer) GetSchoolMembership(c *fiber.Ctx) error {
	schoolID, err := c.ParamsInt("id")
	if err != nil || schoolID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "school id missing"})
	}

	cacheKey := "membership:school:" + strings.TrimSpace(c.Params("id"))
	if cached, err := cache.Get(cacheKey); err == nil && cached != "" {
		var resp MembershipResponse
		if err := json.Unmarshal([]byte(cached), &resp); err == nil {
			return c.Status(fiber.StatusOK).JSON(resp)
		}
	}

	svc := billing.NewServiceFromDB(database.GetDB())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	plan, err := svc.EffectivePlan(ctx, uint(schoolID))
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "membership_lookup_failed"})
	}

	resp := MembershipResponse{
		SchoolID:      uint(schoolID),
		EffectivePlan: string(plan),
	}
	for _, product := range []string{string(entitlements.PlanStandard), string(entitlements.PlanPremium)} {
		m, err := svc.Membership(ctx, uint(schoolID), product)
		if err != nil {
			continue
		}
		resp.Memberships = append(resp.Memberships, MembershipRowEntry{
			Product:     m.Product,
			Status:      m.Status,
			Interval:    m.BillingInterval,
			ExpiresAt:   m.ExpiresAt,
			RenewalDate: m.RenewalDate,
		})
	}

	if encoded, err := json.Marshal(resp); err == nil {
		_ = cache.Set(cacheKey, string(encoded), membershipCacheTTL)
	}

	return c.Status(fiber.StatusOK).JSON(resp)
}

// GetBillingStats reports the informational purchase funnel counters.
func (s *APIServer) GetBillingStats(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stats, err := counter.Snapshot(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "stats_unavailable"})
	}
	return c.Status(fiber.StatusOK).JSON(stats)
}

// RegisterHandlers attaches the v1 routes to the given router group.
func RegisterHandlers(r fiber.Router, s *APIServer) {
	r.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ping": "pong"})
	})
	r.Get("/schools/:id/billing/quote", s.GetBillingQuote)
	r.Get("/schools/:id/membership", s.GetSchoolMembership)
	r.Get("/billing/stats", s.GetBillingStats)
}
