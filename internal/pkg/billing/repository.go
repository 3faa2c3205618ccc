package billing

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/campuskit/campuskit/app/models"
)

// Repository provides DB operations used by the billing service. It holds no
// business logic; all invariants are enforced by the reconciler. The unique
// index on (provider, provider_payment_ref) must be present so CreatePayment
// is race-safe under concurrent delivery.
type Repository interface {
	Transaction(fn func(tx Repository) error) error

	CreatePayment(rec *models.PaymentRecord) error
	FindPaymentByProviderRef(provider, ref string) (*models.PaymentRecord, error)
	MarkPaymentRefunded(provider, ref string) (*models.PaymentRecord, error)

	UpsertMembership(m *models.Membership) error
	FindMembership(schoolID uint, product string) (*models.Membership, error)
	FindMembershipBySubscriptionRef(ref string) (*models.Membership, error)
	ListMembershipsBySchool(schoolID uint) ([]models.Membership, error)
	DeactivateMembership(schoolID uint, product string) error
	DeactivateMembershipBySubscriptionRef(ref string) (int64, error)
	DeactivateExpiredMemberships(now time.Time) (int64, error)

	FindCouponByCode(code string) (*models.Coupon, error)
	IncrementCouponUsage(code string) (bool, error)

	CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	MarkWebhookProcessed(id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// Transaction runs fn against a transactional copy of the repository. A
// returned error rolls everything back.
func (r *gormRepository) Transaction(fn func(tx Repository) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}

// CreatePayment inserts a new ledger row. Inserting a second row for the
// same (provider, provider_payment_ref) surfaces gorm.ErrDuplicatedKey.
func (r *gormRepository) CreatePayment(rec *models.PaymentRecord) error {
	return r.db.Create(rec).Error
}

func (r *gormRepository) FindPaymentByProviderRef(provider, ref string) (*models.PaymentRecord, error) {
	var rec models.PaymentRecord
	err := r.db.Where("provider = ? AND provider_payment_ref = ?", provider, ref).First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// MarkPaymentRefunded moves a completed payment to refunded. The transition
// is forward-only: anything not in completed state is left untouched.
func (r *gormRepository) MarkPaymentRefunded(provider, ref string) (*models.PaymentRecord, error) {
	res := r.db.Model(&models.PaymentRecord{}).
		Where("provider = ? AND provider_payment_ref = ? AND status = ?", provider, ref, models.PaymentStatusCompleted).
		Update("status", models.PaymentStatusRefunded)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return r.FindPaymentByProviderRef(provider, ref)
}

func (r *gormRepository) UpsertMembership(m *models.Membership) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "school_id"},
			{Name: "product"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"status",
			"billing_interval",
			"expires_at",
			"renewal_date",
			"provider_subscription_ref",
			"purchased_at",
			"updated_at",
		}),
	}).Create(m).Error; err != nil {
		return err
	}

	// Ensure ID is populated after upsert.
	return r.db.Where("school_id = ? AND product = ?", m.SchoolID, m.Product).First(m).Error
}

func (r *gormRepository) FindMembership(schoolID uint, product string) (*models.Membership, error) {
	var m models.Membership
	err := r.db.Where("school_id = ? AND product = ?", schoolID, product).First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *gormRepository) FindMembershipBySubscriptionRef(ref string) (*models.Membership, error) {
	var m models.Membership
	err := r.db.Where("provider_subscription_ref = ?", ref).First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *gormRepository) ListMembershipsBySchool(schoolID uint) ([]models.Membership, error) {
	var ms []models.Membership
	err := r.db.Where("school_id = ?", schoolID).Find(&ms).Error
	return ms, err
}

func (r *gormRepository) DeactivateMembership(schoolID uint, product string) error {
	return r.db.Model(&models.Membership{}).
		Where("school_id = ? AND product = ?", schoolID, product).
		Update("status", models.MembershipStatusInactive).Error
}

func (r *gormRepository) DeactivateMembershipBySubscriptionRef(ref string) (int64, error) {
	res := r.db.Model(&models.Membership{}).
		Where("provider_subscription_ref = ? AND status = ?", ref, models.MembershipStatusActive).
		Update("status", models.MembershipStatusInactive)
	return res.RowsAffected, res.Error
}

func (r *gormRepository) DeactivateExpiredMemberships(now time.Time) (int64, error) {
	res := r.db.Model(&models.Membership{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?", models.MembershipStatusActive, now).
		Update("status", models.MembershipStatusInactive)
	return res.RowsAffected, res.Error
}

func (r *gormRepository) FindCouponByCode(code string) (*models.Coupon, error) {
	var c models.Coupon
	err := r.db.Where("code = ?", code).First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// IncrementCouponUsage advances used_count by one iff the usage limit has
// not been reached. A single conditional UPDATE, so concurrent redeemers
// cannot lose updates or overshoot the limit.
func (r *gormRepository) IncrementCouponUsage(code string) (bool, error) {
	res := r.db.Model(&models.Coupon{}).
		Where("code = ? AND (usage_limit = 0 OR used_count < usage_limit)", code).
		UpdateColumn("used_count", gorm.Expr("used_count + 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.BillingWebhookEvent
	if err := r.db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.BillingWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
