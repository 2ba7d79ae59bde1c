package coupon

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Evaluate decides whether the rule may be applied in the given context and
// computes the discount. It is a pure function over its inputs: no I/O, no
// clock reads, no mutation. Checks run in a fixed order and the first
// failure wins; the returned error is always one of the rejection sentinels.
func Evaluate(rule *Rule, rctx Context) (*Result, error) {
	if !rule.Active {
		return nil, ErrInactive
	}
	if rule.StartsAt != nil && rctx.Now.Before(*rule.StartsAt) {
		return nil, ErrNotYetActive
	}
	if rule.ExpiresAt != nil && rctx.Now.After(*rule.ExpiresAt) {
		return nil, ErrExpired
	}
	if rule.MaxUses > 0 && rule.Uses >= rule.MaxUses {
		return nil, ErrGlobalLimitReached
	}
	if rule.MaxUsesPerUser > 0 && rctx.PriorUserUses >= rule.MaxUsesPerUser {
		return nil, ErrUserLimitReached
	}

	// The minimum-purchase check always runs against the full cart total,
	// regardless of scope.
	cartTotal := subtotal(rctx.Lines)
	if rule.MinPurchase.IsPositive() && cartTotal.LessThan(rule.MinPurchase) {
		return nil, ErrBelowMinimumPurchase
	}

	amount := computeDiscount(rule, eligibleSubtotal(rule, rctx.Lines))
	if amount.IsZero() {
		return nil, ErrNoEligibleItems
	}

	return &Result{
		CouponID:    rule.ID,
		Amount:      amount,
		Description: rule.Description,
	}, nil
}

// eligibleSubtotal returns the sum of line totals the rule is allowed to
// discount. Lines outside the rule's scope contribute nothing; an empty
// matching set yields zero.
func eligibleSubtotal(rule *Rule, lines []CartLine) decimal.Decimal {
	switch rule.Scope {
	case ScopeCategory:
		return subtotalMatching(lines, func(l CartLine) bool {
			return contains(rule.Categories, l.Category)
		})
	case ScopeProduct:
		return subtotalMatching(lines, func(l CartLine) bool {
			return contains(rule.ProductIDs, l.ProductID)
		})
	default:
		return subtotal(lines)
	}
}

// computeDiscount turns an eligible subtotal into a monetary discount.
// Percentage discounts are capped at the rule's MaxDiscount when set; flat
// discounts are clamped to the eligible subtotal so totals never go
// negative. The result is rounded half-up at the cent boundary.
func computeDiscount(rule *Rule, eligible decimal.Decimal) decimal.Decimal {
	var raw decimal.Decimal
	switch rule.DiscountType {
	case DiscountPercentage:
		raw = eligible.Mul(rule.Value).Div(hundred)
		if rule.MaxDiscount.IsPositive() {
			raw = decimal.Min(raw, rule.MaxDiscount)
		}
	case DiscountFlat:
		raw = decimal.Min(rule.Value, eligible)
	default:
		return decimal.Zero
	}

	if raw.IsNegative() {
		return decimal.Zero
	}
	return raw.Round(2)
}

// subtotal returns the sum of price * quantity across all lines.
func subtotal(lines []CartLine) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return sum
}

func subtotalMatching(lines []CartLine, match func(CartLine) bool) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		if match(l) {
			sum = sum.Add(l.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
		}
	}
	return sum
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
