package cache

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svmadhu/jewelcart/internal/domain/coupon"
)

type countingRepo struct {
	rule       *coupon.Rule
	findErr    error
	findCalls  int
	countCalls int
}

func (r *countingRepo) FindByCode(_ context.Context, _ string) (*coupon.Rule, error) {
	r.findCalls++
	if r.findErr != nil {
		return nil, r.findErr
	}
	return r.rule, nil
}

func (r *countingRepo) CountUsesByUser(_ context.Context, _, _ string) (int, error) {
	r.countCalls++
	return 0, nil
}

func testRule() *coupon.Rule {
	return &coupon.Rule{
		ID: "c1", Code: "SAVE20", DiscountType: coupon.DiscountPercentage,
		Value: decimal.NewFromInt(20), Scope: coupon.ScopeAll, Active: true,
	}
}

func TestCouponRepository_CachesRuleLookups(t *testing.T) {
	inner := &countingRepo{rule: testRule()}
	repo := NewCouponRepository(inner, time.Minute)

	first, err := repo.FindByCode(context.Background(), "SAVE20")
	require.NoError(t, err)

	second, err := repo.FindByCode(context.Background(), "save20")
	require.NoError(t, err)

	assert.Equal(t, 1, inner.findCalls, "second lookup should be served from cache")
	assert.Equal(t, first.ID, second.ID)
}

func TestCouponRepository_DoesNotCacheMisses(t *testing.T) {
	inner := &countingRepo{findErr: coupon.ErrNotFound}
	repo := NewCouponRepository(inner, time.Minute)

	_, err := repo.FindByCode(context.Background(), "NOPE")
	require.ErrorIs(t, err, coupon.ErrNotFound)

	_, err = repo.FindByCode(context.Background(), "NOPE")
	require.ErrorIs(t, err, coupon.ErrNotFound)

	assert.Equal(t, 2, inner.findCalls)
}

func TestCouponRepository_CachedCopyIsIsolated(t *testing.T) {
	inner := &countingRepo{rule: testRule()}
	repo := NewCouponRepository(inner, time.Minute)

	first, err := repo.FindByCode(context.Background(), "SAVE20")
	require.NoError(t, err)
	first.Active = false

	second, err := repo.FindByCode(context.Background(), "SAVE20")
	require.NoError(t, err)
	assert.True(t, second.Active, "mutating a returned rule must not poison the cache")
}

func TestCouponRepository_UsageCountsBypassCache(t *testing.T) {
	inner := &countingRepo{rule: testRule()}
	repo := NewCouponRepository(inner, time.Minute)

	for range 3 {
		_, err := repo.CountUsesByUser(context.Background(), "c1", "u1")
		require.NoError(t, err)
	}

	assert.Equal(t, 3, inner.countCalls)
}
