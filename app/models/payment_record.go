package models

import "time"

// Billing provider constants used across billing-related models.
const (
	BillingProviderStripe = "stripe"
)

const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
	PaymentStatusRefunded  = "refunded"
)

// PaymentRecord is the append-oriented ledger row for one payment attempt.
// The unique index on (provider, provider_payment_ref) is the linearization
// point for idempotent reconciliation: the first insert for a gateway payment
// reference wins, every later one is a duplicate.
type PaymentRecord struct {
	ID                  uint      `gorm:"primaryKey" json:"id"`
	PublicID            string    `gorm:"type:varchar(36);not null;uniqueIndex:ux_payment_records_public_id" json:"public_id"`
	SchoolID            uint      `gorm:"not null;index" json:"school_id"`
	Product             string    `gorm:"type:varchar(32);not null" json:"product"`
	BillingInterval     string    `gorm:"type:varchar(16);not null" json:"billing_interval"`
	AmountCents         int64     `gorm:"not null;default:0" json:"amount_cents"`
	DiscountCents       int64     `gorm:"not null;default:0" json:"discount_cents"`
	Currency            string    `gorm:"type:varchar(3);not null;default:'eur'" json:"currency"`
	Provider            string    `gorm:"type:varchar(20);not null;index:ux_payment_records_provider_ref,unique,priority:1" json:"provider"`
	ProviderPaymentRef  string    `gorm:"type:varchar(191);not null;index:ux_payment_records_provider_ref,unique,priority:2" json:"provider_payment_ref"`
	ProviderCustomerRef string    `gorm:"type:varchar(191);default:''" json:"provider_customer_ref"`
	CouponCode          string    `gorm:"type:varchar(64);default:''" json:"coupon_code"`
	Status              string    `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	CreatedAt           time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
