package counter

import (
	"context"
	"strconv"

	"github.com/campuskit/campuskit/internal/pkg/cache"
)

const (
	checkoutStartedKey  = "billing:counters:checkout_started"
	paymentCompletedKey = "billing:counters:payment_completed"
	paymentFailedKey    = "billing:counters:payment_failed"
)

// AddCheckoutStarted increments the per-product counter of opened checkout
// sessions. Best effort: counters are informational, a Redis hiccup must
// never block a checkout.
func AddCheckoutStarted(product string) error {
	return cache.GetClient().HIncrBy(context.Background(), checkoutStartedKey, product, 1).Err()
}

// AddPaymentCompleted increments the per-product counter of reconciled
// successful payments.
func AddPaymentCompleted(product string) error {
	return cache.GetClient().HIncrBy(context.Background(), paymentCompletedKey, product, 1).Err()
}

// AddPaymentFailed increments the per-product counter of reconciled failed
// payments.
func AddPaymentFailed(product string) error {
	return cache.GetClient().HIncrBy(context.Background(), paymentFailedKey, product, 1).Err()
}

// Stats is a point-in-time snapshot of the purchase funnel counters.
type Stats struct {
	CheckoutStarted  map[string]int64 `json:"checkout_started"`
	PaymentCompleted map[string]int64 `json:"payment_completed"`
	PaymentFailed    map[string]int64 `json:"payment_failed"`
}

// Snapshot reads all funnel counters from Redis.
func Snapshot(ctx context.Context) (Stats, error) {
	stats := Stats{
		CheckoutStarted:  map[string]int64{},
		PaymentCompleted: map[string]int64{},
		PaymentFailed:    map[string]int64{},
	}
	for key, dst := range map[string]map[string]int64{
		checkoutStartedKey:  stats.CheckoutStarted,
		paymentCompletedKey: stats.PaymentCompleted,
		paymentFailedKey:    stats.PaymentFailed,
	} {
		data, err := cache.GetClient().HGetAll(ctx, key).Result()
		if err != nil {
			return Stats{}, err
		}
		for field, raw := range data {
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				continue
			}
			dst[field] = n
		}
	}
	return stats, nil
}
