// Package cache provides short-TTL read-through caching decorators over the
// storage repositories.
package cache

import (
	"context"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/svmadhu/jewelcart/internal/domain/coupon"
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository caches coupon rule lookups in front of another
// coupon.Repository. Cached rules carry a stale usage counter for up to the
// TTL; the conditional increment at redemption time still enforces the
// global cap, so staleness only shifts where an exhausted coupon is
// rejected. Usage counts per user are never cached.
type CouponRepository struct {
	next  coupon.Repository
	rules *gocache.Cache
}

// NewCouponRepository wraps next with a rule cache using the given TTL.
func NewCouponRepository(next coupon.Repository, ttl time.Duration) *CouponRepository {
	return &CouponRepository{
		next:  next,
		rules: gocache.New(ttl, 2*ttl),
	}
}

// FindByCode returns a cached rule when present, consulting the underlying
// repository otherwise. Negative results are not cached so a freshly
// created coupon is usable immediately.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Rule, error) {
	key := strings.ToUpper(code)
	if v, ok := r.rules.Get(key); ok {
		rule := v.(coupon.Rule)
		return &rule, nil
	}

	rule, err := r.next.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	// Store by value so callers cannot mutate the cached copy.
	r.rules.Set(key, *rule, gocache.DefaultExpiration)
	return rule, nil
}

// CountUsesByUser always hits the underlying repository: per-user counts
// gate per-user caps and must be as fresh as the store allows.
func (r *CouponRepository) CountUsesByUser(ctx context.Context, couponID, userID string) (int, error) {
	return r.next.CountUsesByUser(ctx, couponID, userID)
}
