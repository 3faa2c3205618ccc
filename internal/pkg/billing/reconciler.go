package billing

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/campuskit/campuskit/app/models"
	"github.com/campuskit/campuskit/internal/pkg/entitlements"
)

// Service is the membership and billing reconciliation engine: quote
// building, outcome reconciliation and membership lifecycle.
type Service struct {
	repo    Repository
	catalog *Catalog
	now     func() time.Time
}

// NewService creates a billing service from an injected repository.
func NewService(repo Repository, catalog *Catalog) *Service {
	return &Service{
		repo:    repo,
		catalog: catalog,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db), NewCatalogFromEnv())
}

// ReconcileOutcome applies an already-authenticated gateway outcome exactly
// once. Both delivery paths (webhook and redirect confirmation) converge
// here, so re-delivery and the redirect/webhook race are harmless.
//
// The unique index on the gateway payment reference is the linearization
// point: the ledger insert either wins or observes a duplicate, and the
// membership update plus coupon usage ride in the same transaction as the
// winning insert.
func (s *Service) ReconcileOutcome(ctx context.Context, out Outcome) (*models.PaymentRecord, error) {
	_ = ctx
	if out.PaymentRef == "" {
		return nil, errors.New("billing: outcome has no gateway payment reference")
	}
	if err := out.Correlation.Validate(); err != nil {
		return nil, err
	}

	// Fast path: already reconciled.
	if existing, err := s.repo.FindPaymentByProviderRef(out.Provider, out.PaymentRef); err == nil {
		return existing, ErrDuplicateOutcome
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// Re-derive the payable amount server-side; metadata amounts are never
	// trusted. Evaluated at reconciliation time, like the quote itself.
	quote, err := s.BuildQuote(ctx, out.Correlation.SchoolID, entitlements.Plan(out.Correlation.Product), out.Correlation.BillingInterval, out.Correlation.CouponCode)
	if err != nil {
		return nil, err
	}

	status := models.PaymentStatusCompleted
	if !out.Succeeded {
		status = models.PaymentStatusFailed
	}
	occurred := out.OccurredAt
	if occurred.IsZero() {
		occurred = s.now()
	}

	rec := &models.PaymentRecord{
		PublicID:            uuid.NewString(),
		SchoolID:            quote.SchoolID,
		Product:             string(quote.Product),
		BillingInterval:     quote.BillingInterval,
		AmountCents:         quote.PayableCents,
		DiscountCents:       quote.DiscountCents,
		Currency:            quote.Currency,
		Provider:            out.Provider,
		ProviderPaymentRef:  out.PaymentRef,
		ProviderCustomerRef: out.CustomerRef,
		CouponCode:          quote.CouponCode,
		Status:              status,
	}

	err = s.repo.Transaction(func(tx Repository) error {
		if err := tx.CreatePayment(rec); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				// Lost the insert race against a concurrent delivery.
				return ErrDuplicateOutcome
			}
			return err
		}

		// Failed outcomes are ledger-only.
		if !out.Succeeded {
			return nil
		}

		periodEnd := addPeriod(occurred, quote.BillingInterval)
		m := &models.Membership{
			SchoolID:                quote.SchoolID,
			Product:                 string(quote.Product),
			Status:                  models.MembershipStatusActive,
			BillingInterval:         quote.BillingInterval,
			ExpiresAt:               &periodEnd,
			RenewalDate:             &periodEnd,
			ProviderSubscriptionRef: out.SubscriptionRef,
			PurchasedAt:             &occurred,
		}
		if err := tx.UpsertMembership(m); err != nil {
			return err
		}

		if quote.CouponCode != "" && quote.DiscountCents > 0 {
			applied, err := tx.IncrementCouponUsage(quote.CouponCode)
			if err != nil {
				return err
			}
			if !applied {
				// Limit was reached between quoting and reconciling.
				// The payment stands; only the counter stays put.
				log.Printf("coupon %s hit its usage limit during reconciliation of %s", quote.CouponCode, out.PaymentRef)
			}
		}
		return nil
	})
	if errors.Is(err, ErrDuplicateOutcome) {
		if existing, ferr := s.repo.FindPaymentByProviderRef(out.Provider, out.PaymentRef); ferr == nil {
			return existing, ErrDuplicateOutcome
		}
		return nil, ErrDuplicateOutcome
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// RefundOutcome moves a completed payment to refunded and deactivates the
// membership it paid for. Unknown or already-refunded references are
// idempotent no-ops reported as ErrDuplicateOutcome.
func (s *Service) RefundOutcome(ctx context.Context, provider, paymentRef string) (*models.PaymentRecord, error) {
	_ = ctx
	var rec *models.PaymentRecord
	err := s.repo.Transaction(func(tx Repository) error {
		var err error
		rec, err = tx.MarkPaymentRefunded(provider, paymentRef)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrDuplicateOutcome
			}
			return err
		}
		return tx.DeactivateMembership(rec.SchoolID, rec.Product)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// RenewSubscription extends the membership tied to a gateway subscription
// by one billing period, recording the renewal payment in the ledger. The
// unique index on the payment reference makes redelivered renewal invoices
// no-ops, same as first purchases. An unknown subscription reference
// surfaces as gorm.ErrRecordNotFound; the caller decides whether that is
// worth a retry.
func (s *Service) RenewSubscription(ctx context.Context, provider, paymentRef, subscriptionRef string, occurredAt time.Time) (*models.PaymentRecord, error) {
	_ = ctx
	if paymentRef == "" {
		return nil, errors.New("billing: renewal has no gateway payment reference")
	}
	if subscriptionRef == "" {
		// One-time purchases carry no subscription; their membership rows
		// have an empty ref and must never match a renewal lookup.
		return nil, gorm.ErrRecordNotFound
	}
	m, err := s.repo.FindMembershipBySubscriptionRef(subscriptionRef)
	if err != nil {
		return nil, err
	}

	if existing, err := s.repo.FindPaymentByProviderRef(provider, paymentRef); err == nil {
		return existing, ErrDuplicateOutcome
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// Renewals are billed at the list price; coupons apply to the first
	// period only.
	base, err := s.catalog.BaseCents(entitlements.Normalize(m.Product), m.BillingInterval)
	if err != nil {
		return nil, err
	}

	occurred := occurredAt
	if occurred.IsZero() {
		occurred = s.now()
	}
	rec := &models.PaymentRecord{
		PublicID:           uuid.NewString(),
		SchoolID:           m.SchoolID,
		Product:            m.Product,
		BillingInterval:    m.BillingInterval,
		AmountCents:        base,
		Currency:           s.catalog.Currency(),
		Provider:           provider,
		ProviderPaymentRef: paymentRef,
		Status:             models.PaymentStatusCompleted,
	}

	err = s.repo.Transaction(func(tx Repository) error {
		if err := tx.CreatePayment(rec); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateOutcome
			}
			return err
		}
		periodEnd := addPeriod(occurred, m.BillingInterval)
		m.Status = models.MembershipStatusActive
		m.ExpiresAt = &periodEnd
		m.RenewalDate = &periodEnd
		return tx.UpsertMembership(m)
	})
	if errors.Is(err, ErrDuplicateOutcome) {
		if existing, ferr := s.repo.FindPaymentByProviderRef(provider, paymentRef); ferr == nil {
			return existing, ErrDuplicateOutcome
		}
		return nil, ErrDuplicateOutcome
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// CancelSubscription deactivates the membership tied to a gateway
// subscription reference. Unknown references are no-ops.
func (s *Service) CancelSubscription(ctx context.Context, subscriptionRef string) error {
	_ = ctx
	if subscriptionRef == "" {
		return nil
	}
	_, err := s.repo.DeactivateMembershipBySubscriptionRef(subscriptionRef)
	return err
}

// GrantFreeMembership upserts the complimentary tier a school receives on
// registration. No ledger entry, no expiry.
func (s *Service) GrantFreeMembership(ctx context.Context, schoolID uint) (*models.Membership, error) {
	_ = ctx
	if schoolID == 0 {
		return nil, errors.New("billing: school_id is required")
	}
	now := s.now()
	m := &models.Membership{
		SchoolID:        schoolID,
		Product:         string(entitlements.PlanFree),
		Status:          models.MembershipStatusActive,
		BillingInterval: models.BillingIntervalYear,
		PurchasedAt:     &now,
	}
	if err := s.repo.UpsertMembership(m); err != nil {
		return nil, err
	}
	return m, nil
}

// ExpireLapsedMemberships flips memberships past their expiry to inactive.
// Rows are retained for audit; nothing is deleted.
func (s *Service) ExpireLapsedMemberships(ctx context.Context) (int64, error) {
	_ = ctx
	return s.repo.DeactivateExpiredMemberships(s.now())
}

// EffectivePlan returns the best plan a school is currently entitled to.
func (s *Service) EffectivePlan(ctx context.Context, schoolID uint) (entitlements.Plan, error) {
	_ = ctx
	memberships, err := s.repo.ListMembershipsBySchool(schoolID)
	if err != nil {
		return entitlements.PlanFree, err
	}
	now := s.now()
	best := entitlements.PlanFree
	for i := range memberships {
		m := &memberships[i]
		if m.Status != models.MembershipStatusActive || m.IsLapsed(now) {
			continue
		}
		candidate := entitlements.Normalize(m.Product)
		if entitlements.Rank(candidate) > entitlements.Rank(best) {
			best = candidate
		}
	}
	return best, nil
}

// Membership returns the stored row for (school, product), if any.
func (s *Service) Membership(ctx context.Context, schoolID uint, product string) (*models.Membership, error) {
	_ = ctx
	return s.repo.FindMembership(schoolID, product)
}

// RecordWebhookEvent persists webhook payloads idempotently.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.BillingWebhookEvent, error) {
	_ = ctx
	event := &models.BillingWebhookEvent{
		Provider:        in.Provider,
		ProviderEventID: in.ProviderEventID,
		EventType:       in.EventType,
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	}
	return s.repo.CreateWebhookEventIfNotExists(event)
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error {
	_ = ctx
	if webhookEventID == 0 {
		return errors.New("billing: webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(webhookEventID, errMsg)
}

// addPeriod computes the end of one billing period: +1 year for annual,
// +1 month for monthly purchases.
func addPeriod(from time.Time, interval string) time.Time {
	if interval == models.BillingIntervalYear {
		return from.AddDate(1, 0, 0)
	}
	return from.AddDate(0, 1, 0)
}
