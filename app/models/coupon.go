package models

import "time"

const (
	CouponTypeAmount  = "amount"
	CouponTypePercent = "percent"
)

// Coupon is a discount code with a validity window and a bounded usage
// counter. UsedCount is mutated only by the outcome reconciler, via an atomic
// bounded increment, exactly once per successful purchase that referenced it.
type Coupon struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	Code         string `gorm:"type:varchar(64);not null;uniqueIndex:ux_coupons_code" json:"code"`
	DiscountType string `gorm:"type:varchar(16);not null;default:'amount'" json:"discount_type"`
	// AmountOffCents applies for type "amount"; PercentOff (0-100) for "percent".
	AmountOffCents int64      `gorm:"not null;default:0" json:"amount_off_cents"`
	PercentOff     int        `gorm:"not null;default:0" json:"percent_off"`
	ValidFrom      *time.Time `gorm:"type:timestamp;default:null" json:"valid_from,omitempty"`
	ValidUntil     *time.Time `gorm:"type:timestamp;default:null" json:"valid_until,omitempty"`
	UsageLimit     int        `gorm:"not null;default:0" json:"usage_limit"`
	UsedCount      int        `gorm:"not null;default:0" json:"used_count"`
	IsActive       bool       `gorm:"default:true;index" json:"is_active"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// Redeemable reports whether the coupon can still be applied at the given
// time. Exhaustion and the validity window are both checked; the usage
// counter itself is only advanced by the reconciler.
func (c *Coupon) Redeemable(now time.Time) bool {
	if c == nil || !c.IsActive {
		return false
	}
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return false
	}
	if c.ValidUntil != nil && now.After(*c.ValidUntil) {
		return false
	}
	if c.UsageLimit > 0 && c.UsedCount >= c.UsageLimit {
		return false
	}
	return true
}
