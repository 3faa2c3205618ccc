package billing

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/campuskit/campuskit/app/models"
)

// discountCents computes the discount a redeemable coupon grants on a base
// price. The result is clamped so the payable amount never goes negative.
func discountCents(c *models.Coupon, baseCents int64) int64 {
	if c == nil || baseCents <= 0 {
		return 0
	}
	var d int64
	switch c.DiscountType {
	case models.CouponTypePercent:
		pct := int64(c.PercentOff)
		if pct < 0 {
			pct = 0
		}
		if pct > 100 {
			pct = 100
		}
		d = baseCents * pct / 100
	default:
		d = c.AmountOffCents
	}
	if d < 0 {
		d = 0
	}
	if d > baseCents {
		d = baseCents
	}
	return d
}

// evaluateCoupon resolves a coupon code and returns the discount it grants
// on the base price at the given time. A missing, expired, exhausted or
// unknown code is not an error: the discount is simply zero and the coupon
// is not applied.
func (s *Service) evaluateCoupon(code string, baseCents int64, now time.Time) (int64, string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return 0, "", nil
	}
	coupon, err := s.repo.FindCouponByCode(code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, "", nil
		}
		return 0, "", err
	}
	if !coupon.Redeemable(now) {
		return 0, "", nil
	}
	return discountCents(coupon, baseCents), coupon.Code, nil
}
