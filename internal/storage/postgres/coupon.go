package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/svmadhu/jewelcart/internal/domain/coupon"
)

const (
	getCouponByCodeSQL = `SELECT id, code, description, discount_type, value, scope,
		categories, product_ids, min_purchase, max_discount,
		max_uses, max_uses_per_user, uses, starts_at, expires_at, active
		FROM coupons WHERE UPPER(code) = UPPER($1)`

	countCouponUsesSQL = `SELECT COUNT(*) FROM coupon_usages
		WHERE coupon_id = $1 AND user_id = $2`

	// Conditional increment: refuses to move past max_uses so concurrent
	// redemptions cannot overrun a global cap.
	incrementCouponUsesSQL = `UPDATE coupons
		SET uses = uses + 1, updated_at = now()
		WHERE id = $1 AND (max_uses = 0 OR uses < max_uses)`

	insertCouponUsageSQL = `INSERT INTO coupon_usages (coupon_id, user_id, order_id, amount, redeemed_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5)`
)

var (
	_ coupon.Repository = (*CouponRepository)(nil)
	_ coupon.Recorder   = (*CouponRepository)(nil)
)

// CouponRepository implements coupon.Repository and coupon.Recorder backed
// by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its code. The SQL query applies UPPER()
// on both sides, so matching is case-insensitive. Returns coupon.ErrNotFound
// when no coupon exists for the code.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Rule, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	rule, err := pgx.CollectExactlyOneRow(rows, scanCouponRule)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &rule, nil
}

// CountUsesByUser returns the number of usage records for the given coupon
// and user.
func (r *CouponRepository) CountUsesByUser(ctx context.Context, couponID, userID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, countCouponUsesSQL, couponID, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting uses for coupon %q: %w", couponID, err)
	}
	return count, nil
}

// Record inserts one usage record and increments the coupon's usage counter
// in a single transaction. The increment is conditional on the global cap:
// when a concurrent redemption has already consumed the last use, the
// transaction rolls back and coupon.ErrGlobalLimitReached is returned.
func (r *CouponRepository) Record(ctx context.Context, red coupon.Redemption) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning redemption tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, incrementCouponUsesSQL, red.CouponID)
	if err != nil {
		return fmt.Errorf("incrementing uses for coupon %q: %w", red.CouponID, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrGlobalLimitReached
	}

	redeemedAt := red.RedeemedAt
	if redeemedAt.IsZero() {
		redeemedAt = time.Now()
	}

	_, err = tx.Exec(ctx, insertCouponUsageSQL,
		red.CouponID, red.UserID, red.OrderID, red.Amount, redeemedAt)
	if err != nil {
		return fmt.Errorf("inserting usage for coupon %q: %w", red.CouponID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing redemption for coupon %q: %w", red.CouponID, err)
	}
	return nil
}

func scanCouponRule(row pgx.CollectableRow) (coupon.Rule, error) {
	var (
		rule         coupon.Rule
		discountType string
		scope        string
		minPurchase  decimal.Decimal
		maxDiscount  decimal.Decimal
		maxUses      int32
		maxPerUser   int32
		uses         int32
		startsAt     *time.Time
		expiresAt    *time.Time
	)
	err := row.Scan(
		&rule.ID, &rule.Code, &rule.Description, &discountType, &rule.Value, &scope,
		&rule.Categories, &rule.ProductIDs, &minPurchase, &maxDiscount,
		&maxUses, &maxPerUser, &uses, &startsAt, &expiresAt, &rule.Active,
	)
	rule.DiscountType = coupon.DiscountType(discountType)
	rule.Scope = coupon.Scope(scope)
	rule.MinPurchase = minPurchase
	rule.MaxDiscount = maxDiscount
	rule.MaxUses = int(maxUses)
	rule.MaxUsesPerUser = int(maxPerUser)
	rule.Uses = int(uses)
	rule.StartsAt = startsAt
	rule.ExpiresAt = expiresAt
	return rule, err
}
