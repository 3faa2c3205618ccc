package billing

import (
	"context"

	"github.com/campuskit/campuskit/internal/pkg/entitlements"
)

// BuildQuote prices a purchase of product/interval for a school, applying an
// optional coupon code. Stale, exhausted or unknown codes degrade to full
// price without error; a missing catalog entry is an operator error.
func (s *Service) BuildQuote(ctx context.Context, schoolID uint, product entitlements.Plan, interval, couponCode string) (Quote, error) {
	_ = ctx
	base, err := s.catalog.BaseCents(product, interval)
	if err != nil {
		return Quote{}, err
	}

	discount, appliedCode, err := s.evaluateCoupon(couponCode, base, s.now())
	if err != nil {
		return Quote{}, err
	}

	return Quote{
		SchoolID:        schoolID,
		Product:         product,
		BillingInterval: interval,
		BaseCents:       base,
		DiscountCents:   discount,
		PayableCents:    base - discount,
		Currency:        s.catalog.Currency(),
		CouponCode:      appliedCode,
	}, nil
}

// Correlation returns the payload embedded into the checkout session for
// this quote. Amounts are deliberately absent.
func (q Quote) Correlation() CorrelationPayload {
	return CorrelationPayload{
		SchoolID:        q.SchoolID,
		Product:         string(q.Product),
		BillingInterval: q.BillingInterval,
		CouponCode:      q.CouponCode,
	}
}
