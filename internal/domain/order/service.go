package order

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/svmadhu/jewelcart/internal/domain/coupon"
	"github.com/svmadhu/jewelcart/internal/domain/product"
)

// Sentinel errors for order validation.
var (
	ErrEmptyItems = fmt.Errorf("items required")
	ErrNoUser     = fmt.Errorf("user required")
)

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	UserID     string
	Items      []OrderItem
	CouponCode string
}

// PlaceOrderResult holds the output of a successfully placed order.
type PlaceOrderResult struct {
	Order    *Order
	Products []product.Product
}

// Service encapsulates order placement business logic: pricing, coupon
// application, persistence, and redemption recording.
type Service struct {
	products product.Repository
	coupons  coupon.Validator
	redeems  coupon.Recorder
	orders   Repository
	tracer   trace.Tracer
	now      func() time.Time
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	products product.Repository,
	coupons coupon.Validator,
	redeems coupon.Recorder,
	orders Repository,
) *Service {
	return &Service{
		products: products,
		coupons:  coupons,
		redeems:  redeems,
		orders:   orders,
		tracer:   otel.Tracer("jewelcart/order"),
		now:      time.Now,
	}
}

// PlaceOrder validates items, fetches products in a single batch, applies
// the coupon, persists the order, and records the redemption. The usage
// record and the coupon counter increment happen in one storage transaction
// inside the Recorder, after the order row exists.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	ctx, span := s.tracer.Start(ctx, "PlaceOrder",
		trace.WithAttributes(
			attribute.Int("order.items", len(req.Items)),
			attribute.Bool("order.has_coupon", req.CouponCode != ""),
		))
	defer span.End()

	if req.UserID == "" {
		return nil, ErrNoUser
	}
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	// Validate quantities and collect product IDs.
	ids := make([]string, len(req.Items))
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
		ids[i] = item.ProductID
	}

	// Batch fetch all products in a single query.
	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}

	productMap := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		productMap[p.ID] = p
	}

	// Verify every requested product was found.
	products := make([]product.Product, 0, len(req.Items))
	for _, item := range req.Items {
		p, ok := productMap[item.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: item.ProductID}
		}
		products = append(products, p)
	}

	// Build cart lines for coupon evaluation and calculate the subtotal.
	lines := make([]coupon.CartLine, len(req.Items))
	subtotal := decimal.Zero
	for i, item := range req.Items {
		p := products[i]
		qty := decimal.NewFromInt(int64(item.Quantity))

		lines[i] = coupon.CartLine{
			ProductID: item.ProductID,
			Category:  p.Category,
			Price:     p.Price,
			Quantity:  item.Quantity,
		}
		subtotal = subtotal.Add(p.Price.Mul(qty))
	}

	// Apply coupon discount when a code is provided.
	var verdict *coupon.Result
	discountAmount := decimal.Zero
	if req.CouponCode != "" {
		verdict, err = s.coupons.Validate(ctx, req.CouponCode, req.UserID, lines)
		if err != nil {
			return nil, fmt.Errorf("validate coupon: %w", err)
		}
		discountAmount = verdict.Amount
	}

	// Total = subtotal - discount, floored at zero and rounded to 2 decimal places.
	total := subtotal.Sub(discountAmount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	total = total.Round(2)
	discountAmount = discountAmount.Round(2)

	o := &Order{
		ID:         uuid.New().String(),
		UserID:     req.UserID,
		Items:      req.Items,
		Total:      total,
		Discounts:  discountAmount,
		CouponCode: req.CouponCode,
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	// Record the redemption once the order exists. A concurrent redemption
	// racing past the usage cap surfaces here as ErrGlobalLimitReached.
	if verdict != nil {
		err := s.redeems.Record(ctx, coupon.Redemption{
			CouponID:   verdict.CouponID,
			UserID:     req.UserID,
			OrderID:    o.ID,
			Amount:     discountAmount,
			RedeemedAt: s.now(),
		})
		if err != nil {
			return nil, fmt.Errorf("record redemption: %w", err)
		}
	}

	return &PlaceOrderResult{
		Order:    o,
		Products: products,
	}, nil
}
