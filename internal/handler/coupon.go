package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/svmadhu/jewelcart/internal/domain/coupon"
	"github.com/svmadhu/jewelcart/internal/domain/product"
)

type validateCouponRequest struct {
	CouponCode string             `json:"couponCode"`
	UserID     string             `json:"userId"`
	Items      []orderItemRequest `json:"items"`
}

// ValidateCoupon performs a dry-run coupon evaluation against the supplied
// cart. Nothing is recorded; the same code can be validated any number of
// times without consuming a use.
func (h *Handler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	var req validateCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CouponCode == "" {
		respondError(w, http.StatusBadRequest, "couponCode required")
		return
	}
	if len(req.Items) == 0 {
		respondError(w, http.StatusBadRequest, "items required")
		return
	}

	lines, err := h.cartLines(r, req.Items)
	if err != nil {
		var notFound *productNotInCartError
		if errors.As(err, &notFound) {
			respondError(w, http.StatusUnprocessableEntity, notFound.Error())
			return
		}
		respondInternal(w, r, err)
		return
	}

	verdict, err := h.coupons.Validate(r.Context(), req.CouponCode, req.UserID, lines)
	if err != nil {
		if reason, ok := couponRejection(err); ok {
			writeCouponVerdict(w, nil, reason)
			return
		}
		respondInternal(w, r, errors.Wrap(err, "validate coupon"))
		return
	}

	writeCouponVerdict(w, verdict, "")
}

type productNotInCartError struct {
	ProductID string
}

func (e *productNotInCartError) Error() string {
	return "product " + e.ProductID + " not found"
}

// cartLines resolves request items against the catalog so the engine sees
// real prices and categories.
func (h *Handler) cartLines(r *http.Request, items []orderItemRequest) ([]coupon.CartLine, error) {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ProductID
	}

	fetched, err := h.products.GetByIDs(r.Context(), ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	lines := make([]coupon.CartLine, len(items))
	for i, it := range items {
		p, ok := byID[it.ProductID]
		if !ok {
			return nil, &productNotInCartError{ProductID: it.ProductID}
		}
		lines[i] = coupon.CartLine{
			ProductID: it.ProductID,
			Category:  p.Category,
			Price:     p.Price,
			Quantity:  it.Quantity,
		}
	}
	return lines, nil
}

// writeCouponVerdict encodes the validation envelope. A rejected coupon is a
// successful validation request, so the status is 200 either way.
func writeCouponVerdict(w http.ResponseWriter, verdict *coupon.Result, reason string) {
	e := &jx.Encoder{}
	e.ObjStart()
	e.FieldStart("valid")
	e.Bool(verdict != nil)
	if verdict != nil {
		e.FieldStart("couponId")
		e.Str(verdict.CouponID)
		e.FieldStart("discount")
		e.Float64(verdict.Amount.InexactFloat64())
		e.FieldStart("description")
		e.Str(verdict.Description)
	} else {
		e.FieldStart("error")
		e.Str(reason)
	}
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(e.Bytes())
}
