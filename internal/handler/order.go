package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"

	"github.com/svmadhu/jewelcart/internal/domain/coupon"
	"github.com/svmadhu/jewelcart/internal/domain/order"
)

type orderItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type orderRequest struct {
	UserID     string             `json:"userId"`
	Items      []orderItemRequest `json:"items"`
	CouponCode string             `json:"couponCode"`
}

type orderItemResponse struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type orderResponse struct {
	ID        string              `json:"id"`
	Total     float64             `json:"total"`
	Discounts float64             `json:"discounts"`
	Items     []orderItemResponse `json:"items"`
	Products  []productResponse   `json:"products"`
}

// PlaceOrder decodes the order request, delegates to the order service, and
// maps domain rejections onto HTTP statuses.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	items := make([]order.OrderItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = order.OrderItem{ProductID: it.ProductID, Quantity: it.Quantity}
	}

	result, err := h.orders.PlaceOrder(r.Context(), order.PlaceOrderRequest{
		UserID:     req.UserID,
		Items:      items,
		CouponCode: req.CouponCode,
	})
	if err != nil {
		h.respondOrderError(w, r, err)
		return
	}

	respItems := make([]orderItemResponse, len(result.Order.Items))
	for i, it := range result.Order.Items {
		respItems[i] = orderItemResponse{ProductID: it.ProductID, Quantity: it.Quantity}
	}
	respProducts := make([]productResponse, len(result.Products))
	for i, p := range result.Products {
		respProducts[i] = h.toProductResponse(p)
	}

	respondJSON(w, r, http.StatusCreated, orderResponse{
		ID:        result.Order.ID,
		Total:     result.Order.Total.InexactFloat64(),
		Discounts: result.Order.Discounts.InexactFloat64(),
		Items:     respItems,
		Products:  respProducts,
	})
}

func (h *Handler) respondOrderError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, order.ErrEmptyItems), errors.Is(err, order.ErrNoUser):
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var invalidQty *order.InvalidQuantityError
	if errors.As(err, &invalidQty) {
		respondError(w, http.StatusUnprocessableEntity, invalidQty.Error())
		return
	}
	var notFound *order.ProductNotFoundError
	if errors.As(err, &notFound) {
		respondError(w, http.StatusUnprocessableEntity, notFound.Error())
		return
	}

	if reason, ok := couponRejection(err); ok {
		respondError(w, http.StatusUnprocessableEntity, reason)
		return
	}

	respondInternal(w, r, err)
}

// couponRejection reports whether err is one of the coupon rejection
// sentinels and returns the user-facing message.
func couponRejection(err error) (string, bool) {
	for _, sentinel := range []error{
		coupon.ErrNotFound,
		coupon.ErrInactive,
		coupon.ErrNotYetActive,
		coupon.ErrExpired,
		coupon.ErrGlobalLimitReached,
		coupon.ErrUserLimitReached,
		coupon.ErrBelowMinimumPurchase,
		coupon.ErrNoEligibleItems,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error(), true
		}
	}
	return "", false
}
