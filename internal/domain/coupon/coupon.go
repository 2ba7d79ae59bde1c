package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage applies a percentage-based discount to the eligible subtotal.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFlat applies a fixed monetary discount capped at the eligible subtotal.
	DiscountFlat DiscountType = "flat"
)

// Scope enumerates which cart lines a coupon is allowed to discount.
type Scope string

const (
	// ScopeAll discounts every line in the cart.
	ScopeAll Scope = "all"
	// ScopeCategory discounts only lines whose category is in the rule's category set.
	ScopeCategory Scope = "category"
	// ScopeProduct discounts only lines whose product ID is in the rule's product set.
	ScopeProduct Scope = "product"
)

// Rejection reasons. Every failed evaluation maps to exactly one of these
// sentinels; callers surface the message to the end user as-is.
var (
	// ErrNotFound is returned when no coupon exists for a code.
	ErrNotFound = errors.New("invalid coupon code")
	// ErrInactive is returned when the coupon has been disabled.
	ErrInactive = errors.New("coupon is not active")
	// ErrNotYetActive is returned before the coupon's start date.
	ErrNotYetActive = errors.New("coupon is not active yet")
	// ErrExpired is returned after the coupon's expiry date.
	ErrExpired = errors.New("coupon has expired")
	// ErrGlobalLimitReached is returned when the coupon has exhausted its total allowed uses.
	ErrGlobalLimitReached = errors.New("coupon usage limit reached")
	// ErrUserLimitReached is returned when this user has exhausted their allowed uses.
	ErrUserLimitReached = errors.New("coupon usage limit reached for this user")
	// ErrBelowMinimumPurchase is returned when the cart total is under the rule's threshold.
	ErrBelowMinimumPurchase = errors.New("cart total is below the minimum purchase amount for this coupon")
	// ErrNoEligibleItems is returned when no cart line falls within the coupon's scope.
	ErrNoEligibleItems = errors.New("no eligible items in cart for this coupon")
)

// Rule defines a coupon's discount behaviour and eligibility constraints.
// Zero values mean "unset" for the optional constraints: MinPurchase and
// MaxDiscount at zero impose no bound, MaxUses and MaxUsesPerUser at zero
// mean unlimited, and nil window ends are open-ended.
type Rule struct {
	ID             string
	Code           string
	Description    string
	DiscountType   DiscountType
	Value          decimal.Decimal
	Scope          Scope
	Categories     []string
	ProductIDs     []string
	MinPurchase    decimal.Decimal
	MaxDiscount    decimal.Decimal
	MaxUses        int
	MaxUsesPerUser int
	Uses           int
	StartsAt       *time.Time
	ExpiresAt      *time.Time
	Active         bool
}

// CartLine is one line of the cart being evaluated. Lines are supplied by
// the caller; the engine never loads them itself.
type CartLine struct {
	ProductID string
	Category  string
	Price     decimal.Decimal
	Quantity  int
}

// Context is the redemption context for one evaluation: the instant of
// evaluation, the requesting user, the cart, and a snapshot of how many
// times this user has already redeemed the coupon.
type Context struct {
	Now           time.Time
	UserID        string
	Lines         []CartLine
	PriorUserUses int
}

// Result is a successful evaluation verdict.
type Result struct {
	CouponID    string
	Amount      decimal.Decimal
	Description string
}

// Redemption is one successful coupon use, recorded exactly once after the
// purchase completes. OrderID may be empty.
type Redemption struct {
	CouponID   string
	UserID     string
	OrderID    string
	Amount     decimal.Decimal
	RedeemedAt time.Time
}

// Repository provides coupon rule lookup and usage-ledger reads.
type Repository interface {
	// FindByCode looks up a coupon by its code, matching case-insensitively.
	// Returns ErrNotFound when no coupon exists for the code.
	FindByCode(ctx context.Context, code string) (*Rule, error)
	// CountUsesByUser returns how many usage records exist for the given
	// coupon and user.
	CountUsesByUser(ctx context.Context, couponID, userID string) (int, error)
}

// Recorder persists redemptions. Implementations must insert the usage
// record and increment the coupon's usage counter atomically.
type Recorder interface {
	Record(ctx context.Context, r Redemption) error
}
