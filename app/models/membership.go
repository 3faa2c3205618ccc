package models

import "time"

const (
	BillingIntervalMonth = "month"
	BillingIntervalYear  = "year"
)

const (
	MembershipStatusActive   = "active"
	MembershipStatusInactive = "inactive"
)

// Membership is the current entitlement state of a school for one product.
// At most one live row exists per (school, product); renewals update the row
// in place and expiry flips status to inactive, the row is never deleted.
type Membership struct {
	ID                      uint       `gorm:"primaryKey" json:"id"`
	SchoolID                uint       `gorm:"not null;index:ux_memberships_school_product,unique,priority:1" json:"school_id"`
	Product                 string     `gorm:"type:varchar(32);not null;index:ux_memberships_school_product,unique,priority:2" json:"product"`
	Status                  string     `gorm:"type:varchar(16);not null;default:'active';index" json:"status"`
	BillingInterval         string     `gorm:"type:varchar(16);not null;default:'year'" json:"billing_interval"`
	ExpiresAt               *time.Time `gorm:"type:timestamp;default:null;index" json:"expires_at,omitempty"`
	RenewalDate             *time.Time `gorm:"type:timestamp;default:null" json:"renewal_date,omitempty"`
	ProviderSubscriptionRef string     `gorm:"type:varchar(191);default:'';index" json:"provider_subscription_ref"`
	PurchasedAt             *time.Time `gorm:"type:timestamp;default:null" json:"purchased_at,omitempty"`
	CreatedAt               time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt               time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsLapsed reports whether the membership has an expiry in the past.
func (m *Membership) IsLapsed(now time.Time) bool {
	return m != nil && m.ExpiresAt != nil && now.After(*m.ExpiresAt)
}
