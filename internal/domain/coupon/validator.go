package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Validator validates a coupon code against a cart for a user and returns
// the computed discount. Validation has no side effects; redemptions are
// persisted separately through a Recorder once the purchase succeeds.
type Validator interface {
	Validate(ctx context.Context, code, userID string, lines []CartLine) (*Result, error)
}

// RepoValidator implements Validator by loading the coupon rule and the
// user's usage count from a Repository and evaluating them with Evaluate.
type RepoValidator struct {
	repo Repository
	now  func() time.Time
}

// NewRepoValidator creates a RepoValidator backed by the given Repository.
func NewRepoValidator(repo Repository) *RepoValidator {
	return &RepoValidator{repo: repo, now: time.Now}
}

// Validate looks up the rule for the given code, snapshots the user's prior
// usage count, and evaluates eligibility and discount. The rejection
// sentinels pass through unwrapped so callers can surface their messages.
func (v *RepoValidator) Validate(ctx context.Context, code, userID string, lines []CartLine) (*Result, error) {
	rule, err := v.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	priorUses := 0
	if rule.MaxUsesPerUser > 0 {
		priorUses, err = v.repo.CountUsesByUser(ctx, rule.ID, userID)
		if err != nil {
			return nil, errors.Wrap(err, "count coupon uses")
		}
	}

	return Evaluate(rule, Context{
		Now:           v.now(),
		UserID:        userID,
		Lines:         lines,
		PriorUserUses: priorUses,
	})
}
