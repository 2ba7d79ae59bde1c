package coupon

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

var evalNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func line(productID, category, price string, qty int) CartLine {
	return CartLine{ProductID: productID, Category: category, Price: d(price), Quantity: qty}
}

func TestEvaluate(t *testing.T) {
	past := evalNow.Add(-24 * time.Hour)
	future := evalNow.Add(24 * time.Hour)

	tests := []struct {
		name       string
		rule       *Rule
		rctx       Context
		wantAmount decimal.Decimal
		wantErr    error
	}{
		{
			name: "percentage 20 off 500 cart",
			rule: &Rule{
				ID: "c1", Code: "SAVE20", DiscountType: DiscountPercentage,
				Value: d("20"), Scope: ScopeAll, Description: "20% off", Active: true,
			},
			rctx: Context{Now: evalNow, UserID: "u1", Lines: []CartLine{
				line("p1", "bangles", "250", 2),
			}},
			wantAmount: d("100.00"),
		},
		{
			name: "flat 50 clamped to 30 cart",
			rule: &Rule{
				ID: "c2", Code: "FLAT50", DiscountType: DiscountFlat,
				Value: d("50"), Scope: ScopeAll, Description: "Flat 50 off", Active: true,
			},
			rctx: Context{Now: evalNow, UserID: "u1", Lines: []CartLine{
				line("p1", "earrings", "30", 1),
			}},
			wantAmount: d("30.00"),
		},
		{
			name: "inactive coupon",
			rule: &Rule{
				ID: "c3", Code: "OFF", DiscountType: DiscountFlat,
				Value: d("10"), Scope: ScopeAll, Active: false,
			},
			rctx: Context{Now: evalNow, Lines: []CartLine{
				line("p1", "rings", "100", 1),
			}},
			wantErr: ErrInactive,
		},
		{
			name: "not yet active",
			rule: &Rule{
				ID: "c4", Code: "SOON", DiscountType: DiscountFlat,
				Value: d("10"), Scope: ScopeAll, StartsAt: &future, Active: true,
			},
			rctx: Context{Now: evalNow, Lines: []CartLine{
				line("p1", "rings", "100", 1),
			}},
			wantErr: ErrNotYetActive,
		},
		{
			name: "expired coupon",
			rule: &Rule{
				ID: "c5", Code: "OLD", DiscountType: DiscountPercentage,
				Value: d("10"), Scope: ScopeAll, ExpiresAt: &past, Active: true,
			},
			rctx: Context{Now: evalNow, Lines: []CartLine{
				line("p1", "rings", "100", 1),
			}},
			wantErr: ErrExpired,
		},
		{
			name: "expired reported before usage limits",
			rule: &Rule{
				ID: "c6", Code: "BOTH", DiscountType: DiscountPercentage,
				Value: d("10"), Scope: ScopeAll, ExpiresAt: &past,
				MaxUses: 5, Uses: 5, MaxUsesPerUser: 1, Active: true,
			},
			rctx: Context{Now: evalNow, PriorUserUses: 1, Lines: []CartLine{
				line("p1", "rings", "100", 1),
			}},
			wantErr: ErrExpired,
		},
		{
			name: "global usage cap reached",
			rule: &Rule{
				ID: "c7", Code: "CAPPED", DiscountType: DiscountPercentage,
				Value: d("10"), Scope: ScopeAll, MaxUses: 100, Uses: 100, Active: true,
			},
			rctx: Context{Now: evalNow, Lines: []CartLine{
				line("p1", "rings", "100", 1),
			}},
			wantErr: ErrGlobalLimitReached,
		},
		{
			name: "global cap reported before per-user cap",
			rule: &Rule{
				ID: "c8", Code: "CAPS", DiscountType: DiscountPercentage,
				Value: d("10"), Scope: ScopeAll,
				MaxUses: 10, Uses: 10, MaxUsesPerUser: 1, Active: true,
			},
			rctx: Context{Now: evalNow, PriorUserUses: 1, Lines: []CartLine{
				line("p1", "rings", "100", 1),
			}},
			wantErr: ErrGlobalLimitReached,
		},
		{
			name: "per-user cap reached",
			rule: &Rule{
				ID: "c9", Code: "ONCE", DiscountType: DiscountFlat,
				Value: d("10"), Scope: ScopeAll, MaxUsesPerUser: 1, Active: true,
			},
			rctx: Context{Now: evalNow, UserID: "u1", PriorUserUses: 1, Lines: []CartLine{
				line("p1", "rings", "100", 1),
			}},
			wantErr: ErrUserLimitReached,
		},
		{
			name: "below minimum purchase",
			rule: &Rule{
				ID: "c10", Code: "MIN500", DiscountType: DiscountPercentage,
				Value: d("10"), Scope: ScopeAll, MinPurchase: d("500"), Active: true,
			},
			rctx: Context{Now: evalNow, Lines: []CartLine{
				line("p1", "rings", "100", 1),
			}},
			wantErr: ErrBelowMinimumPurchase,
		},
		{
			name: "minimum purchase uses full cart total for scoped coupon",
			rule: &Rule{
				ID: "c11", Code: "BANGLE10", DiscountType: DiscountPercentage,
				Value: d("10"), Scope: ScopeCategory, Categories: []string{"bangles"},
				MinPurchase: d("500"), Description: "10% off bangles", Active: true,
			},
			rctx: Context{Now: evalNow, Lines: []CartLine{
				line("p1", "bangles", "100", 1),
				line("p2", "earrings", "450", 1),
			}},
			// Full cart = 550 passes the threshold; only the bangle line discounts.
			wantAmount: d("10.00"),
		},
		{
			name: "category scope with no matching lines",
			rule: &Rule{
				ID: "c12", Code: "BANGLE10", DiscountType: DiscountPercentage,
				Value: d("10"), Scope: ScopeCategory, Categories: []string{"bangles"}, Active: true,
			},
			rctx: Context{Now: evalNow, Lines: []CartLine{
				line("p1", "earrings", "200", 2),
			}},
			wantErr: ErrNoEligibleItems,
		},
		{
			name: "product scope sums only matching lines",
			rule: &Rule{
				ID: "c13", Code: "PICK", DiscountType: DiscountPercentage,
				Value: d("50"), Scope: ScopeProduct, ProductIDs: []string{"p1", "p3"}, Active: true,
			},
			rctx: Context{Now: evalNow, Lines: []CartLine{
				line("p1", "rings", "40", 1),
				line("p2", "rings", "100", 1),
				line("p3", "rings", "10", 2),
			}},
			// eligible = 40 + 20 = 60, 50% = 30
			wantAmount: d("30.00"),
		},
		{
			name: "percentage capped by max discount",
			rule: &Rule{
				ID: "c14", Code: "BIG", DiscountType: DiscountPercentage,
				Value: d("50"), Scope: ScopeAll, MaxDiscount: d("75"), Active: true,
			},
			rctx: Context{Now: evalNow, Lines: []CartLine{
				line("p1", "rings", "200", 1),
			}},
			wantAmount: d("75.00"),
		},
		{
			name: "rounding half up at cent boundary",
			rule: &Rule{
				ID: "c15", Code: "PCT33", DiscountType: DiscountPercentage,
				Value: d("33.33"), Scope: ScopeAll, Active: true,
			},
			rctx: Context{Now: evalNow, Lines: []CartLine{
				line("p1", "rings", "10.01", 1),
			}},
			// 10.01 * 33.33 / 100 = 3.336333 -> 3.34
			wantAmount: d("3.34"),
		},
		{
			name: "empty cart yields no eligible items",
			rule: &Rule{
				ID: "c16", Code: "ANY", DiscountType: DiscountPercentage,
				Value: d("10"), Scope: ScopeAll, Active: true,
			},
			rctx:    Context{Now: evalNow},
			wantErr: ErrNoEligibleItems,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(tt.rule, tt.rctx)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, got)
			assert.True(t, tt.wantAmount.Equal(got.Amount),
				"expected amount %s, got %s", tt.wantAmount, got.Amount)
			assert.Equal(t, tt.rule.ID, got.CouponID)
			assert.Equal(t, tt.rule.Description, got.Description)
		})
	}
}

func TestEvaluate_Deterministic(t *testing.T) {
	rule := &Rule{
		ID: "c1", Code: "SAVE20", DiscountType: DiscountPercentage,
		Value: d("20"), Scope: ScopeAll, MaxDiscount: d("90"), Active: true,
	}
	rctx := Context{Now: evalNow, UserID: "u1", Lines: []CartLine{
		line("p1", "bangles", "250", 2),
	}}

	first, err := Evaluate(rule, rctx)
	require.NoError(t, err)

	for range 5 {
		got, err := Evaluate(rule, rctx)
		require.NoError(t, err)
		assert.True(t, first.Amount.Equal(got.Amount))
		assert.Equal(t, first.CouponID, got.CouponID)
	}
}

func TestEvaluate_FlatNeverExceedsEligible(t *testing.T) {
	carts := [][]CartLine{
		{line("p1", "rings", "0.01", 1)},
		{line("p1", "rings", "49.99", 1)},
		{line("p1", "rings", "50", 1)},
		{line("p1", "rings", "25", 3)},
	}

	for _, lines := range carts {
		rule := &Rule{
			ID: "c1", Code: "FLAT50", DiscountType: DiscountFlat,
			Value: d("50"), Scope: ScopeAll, Active: true,
		}
		got, err := Evaluate(rule, Context{Now: evalNow, Lines: lines})
		require.NoError(t, err)
		assert.True(t, got.Amount.LessThanOrEqual(subtotal(lines)),
			"flat discount %s exceeds eligible subtotal %s", got.Amount, subtotal(lines))
	}
}

func TestEvaluate_RoundingIsStable(t *testing.T) {
	rule := &Rule{
		ID: "c1", Code: "PCT33", DiscountType: DiscountPercentage,
		Value: d("33.33"), Scope: ScopeAll, Active: true,
	}
	got, err := Evaluate(rule, Context{Now: evalNow, Lines: []CartLine{
		line("p1", "rings", "10.01", 3),
	}})
	require.NoError(t, err)

	// Re-rounding an already rounded amount must not change it.
	assert.True(t, got.Amount.Equal(got.Amount.Round(2)))
}
