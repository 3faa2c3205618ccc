package billing

import (
	"testing"

	"github.com/campuskit/campuskit/app/models"
)

func TestDiscountCents(t *testing.T) {
	tests := []struct {
		name   string
		coupon models.Coupon
		base   int64
		want   int64
	}{
		{name: "amount off", coupon: models.Coupon{DiscountType: models.CouponTypeAmount, AmountOffCents: 5000}, base: 39999, want: 5000},
		{name: "amount clamped to base", coupon: models.Coupon{DiscountType: models.CouponTypeAmount, AmountOffCents: 50000}, base: 19999, want: 19999},
		{name: "negative amount ignored", coupon: models.Coupon{DiscountType: models.CouponTypeAmount, AmountOffCents: -100}, base: 19999, want: 0},
		{name: "percent off", coupon: models.Coupon{DiscountType: models.CouponTypePercent, PercentOff: 25}, base: 10000, want: 2500},
		{name: "percent rounds down", coupon: models.Coupon{DiscountType: models.CouponTypePercent, PercentOff: 10}, base: 19999, want: 1999},
		{name: "percent capped at 100", coupon: models.Coupon{DiscountType: models.CouponTypePercent, PercentOff: 150}, base: 10000, want: 10000},
	}

	for _, tt := range tests {
		if got := discountCents(&tt.coupon, tt.base); got != tt.want {
			t.Fatalf("%s: discountCents = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestDiscountCentsNilCoupon(t *testing.T) {
	if got := discountCents(nil, 10000); got != 0 {
		t.Fatalf("nil coupon discount = %d, want 0", got)
	}
}
