package billing

import (
	"strconv"
	"strings"

	"github.com/campuskit/campuskit/internal/pkg/entitlements"
	"github.com/campuskit/campuskit/internal/pkg/env"
)

type priceKey struct {
	product  entitlements.Plan
	interval string
}

// Catalog maps (product, interval) to a base price in cents. Static per
// process; prices come from defaults overridable through the environment.
type Catalog struct {
	prices   map[priceKey]int64
	currency string
}

// Default list prices in cents. Annual buys one year up front, monthly is a
// recurring subscription.
var defaultPrices = map[priceKey]int64{
	{entitlements.PlanStandard, "month"}: 1999,
	{entitlements.PlanStandard, "year"}:  19999,
	{entitlements.PlanPremium, "month"}:  3999,
	{entitlements.PlanPremium, "year"}:   39999,
}

// newCatalog builds a catalog from the given price table.
func newCatalog(prices map[priceKey]int64, currency string) *Catalog {
	cp := make(map[priceKey]int64, len(prices))
	for k, v := range prices {
		cp[k] = v
	}
	return &Catalog{prices: cp, currency: strings.ToLower(currency)}
}

// NewCatalogFromEnv builds the catalog from defaults, with per-pair env
// overrides like PRICE_PREMIUM_YEAR_CENTS=39999 and CURRENCY=eur.
func NewCatalogFromEnv() *Catalog {
	c := newCatalog(defaultPrices, env.GetEnv("CURRENCY", "eur"))
	for key := range c.prices {
		envKey := "PRICE_" + strings.ToUpper(string(key.product)) + "_" + strings.ToUpper(key.interval) + "_CENTS"
		if raw := env.GetEnv(envKey, ""); raw != "" {
			if cents, err := strconv.ParseInt(raw, 10, 64); err == nil && cents > 0 {
				c.prices[key] = cents
			}
		}
	}
	return c
}

// BaseCents returns the configured base price for a product/interval pair.
func (c *Catalog) BaseCents(product entitlements.Plan, interval string) (int64, error) {
	cents, ok := c.prices[priceKey{product, strings.ToLower(strings.TrimSpace(interval))}]
	if !ok || cents <= 0 {
		return 0, ErrNoPriceConfigured
	}
	return cents, nil
}

// Currency returns the catalog currency (ISO 4217, lower-case).
func (c *Catalog) Currency() string {
	if c.currency == "" {
		return "eur"
	}
	return c.currency
}
