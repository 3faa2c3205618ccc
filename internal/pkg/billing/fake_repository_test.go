package billing

import (
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/campuskit/campuskit/app/models"
)

// fakeRepository is an in-memory Repository with the same uniqueness
// semantics the MySQL schema enforces, so reconciler behavior under
// duplicate and concurrent delivery can be exercised without a database.
type fakeRepository struct {
	mu               sync.Mutex
	payments         map[string]*models.PaymentRecord
	memberships      map[string]*models.Membership
	coupons          map[string]*models.Coupon
	events           map[string]*models.BillingWebhookEvent
	membershipWrites int
	nextID           uint
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		payments:    make(map[string]*models.PaymentRecord),
		memberships: make(map[string]*models.Membership),
		coupons:     make(map[string]*models.Coupon),
		events:      make(map[string]*models.BillingWebhookEvent),
	}
}

func paymentKey(provider, ref string) string { return provider + "|" + ref }

func membershipKey(schoolID uint, product string) string {
	return fmt.Sprintf("%d/%s", schoolID, product)
}

func (f *fakeRepository) Transaction(fn func(tx Repository) error) error {
	return fn(f)
}

func (f *fakeRepository) CreatePayment(rec *models.PaymentRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := paymentKey(rec.Provider, rec.ProviderPaymentRef)
	if _, exists := f.payments[key]; exists {
		return gorm.ErrDuplicatedKey
	}
	f.nextID++
	rec.ID = f.nextID
	cp := *rec
	f.payments[key] = &cp
	return nil
}

func (f *fakeRepository) FindPaymentByProviderRef(provider, ref string) (*models.PaymentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec, ok := f.payments[paymentKey(provider, ref)]; ok {
		cp := *rec
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepository) MarkPaymentRefunded(provider, ref string) (*models.PaymentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.payments[paymentKey(provider, ref)]
	if !ok || rec.Status != models.PaymentStatusCompleted {
		return nil, gorm.ErrRecordNotFound
	}
	rec.Status = models.PaymentStatusRefunded
	cp := *rec
	return &cp, nil
}

func (f *fakeRepository) UpsertMembership(m *models.Membership) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := membershipKey(m.SchoolID, m.Product)
	if existing, ok := f.memberships[key]; ok {
		m.ID = existing.ID
	} else {
		f.nextID++
		m.ID = f.nextID
	}
	cp := *m
	f.memberships[key] = &cp
	f.membershipWrites++
	return nil
}

func (f *fakeRepository) FindMembership(schoolID uint, product string) (*models.Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.memberships[membershipKey(schoolID, product)]; ok {
		cp := *m
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepository) FindMembershipBySubscriptionRef(ref string) (*models.Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.memberships {
		if m.ProviderSubscriptionRef == ref {
			cp := *m
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepository) ListMembershipsBySchool(schoolID uint) ([]models.Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Membership
	for _, m := range f.memberships {
		if m.SchoolID == schoolID {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (f *fakeRepository) DeactivateMembership(schoolID uint, product string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.memberships[membershipKey(schoolID, product)]; ok {
		m.Status = models.MembershipStatusInactive
	}
	return nil
}

func (f *fakeRepository) DeactivateMembershipBySubscriptionRef(ref string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, m := range f.memberships {
		if m.ProviderSubscriptionRef == ref && m.Status == models.MembershipStatusActive {
			m.Status = models.MembershipStatusInactive
			n++
		}
	}
	return n, nil
}

func (f *fakeRepository) DeactivateExpiredMemberships(now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, m := range f.memberships {
		if m.Status == models.MembershipStatusActive && m.ExpiresAt != nil && m.ExpiresAt.Before(now) {
			m.Status = models.MembershipStatusInactive
			n++
		}
	}
	return n, nil
}

func (f *fakeRepository) FindCouponByCode(code string) (*models.Coupon, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.coupons[code]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepository) IncrementCouponUsage(code string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.coupons[code]
	if !ok {
		return false, nil
	}
	if c.UsageLimit > 0 && c.UsedCount >= c.UsageLimit {
		return false, nil
	}
	c.UsedCount++
	return true, nil
}

func (f *fakeRepository) CreateWebhookEventIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := event.Provider + "|" + event.ProviderEventID
	if stored, ok := f.events[key]; ok {
		cp := *stored
		return false, &cp, nil
	}
	f.nextID++
	event.ID = f.nextID
	cp := *event
	f.events[key] = &cp
	out := cp
	return true, &out, nil
}

func (f *fakeRepository) MarkWebhookProcessed(id uint, processingError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	for _, e := range f.events {
		if e.ID == id {
			e.ProcessedAt = &now
			e.ProcessingError = processingError
		}
	}
	return nil
}

func (f *fakeRepository) coupon(code string) *models.Coupon {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.coupons[code]
}

func (f *fakeRepository) paymentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payments)
}
