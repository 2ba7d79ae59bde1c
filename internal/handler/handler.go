// Package handler exposes the storefront HTTP API.
package handler

import (
	"github.com/go-chi/chi/v5"

	"github.com/svmadhu/jewelcart/internal/domain/auth"
	"github.com/svmadhu/jewelcart/internal/domain/coupon"
	"github.com/svmadhu/jewelcart/internal/domain/order"
	"github.com/svmadhu/jewelcart/internal/domain/product"
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ImageBaseURL is prepended to relative image paths in product responses.
	// When empty, image paths are returned as stored in the database.
	ImageBaseURL string

	// APIKeyPepper is the secret key for HMAC hashing of client API keys.
	APIKeyPepper string
}

// Handler routes storefront API requests to the injected domain services.
type Handler struct {
	products     product.Repository
	coupons      coupon.Validator
	orders       *order.Service
	apikeys      auth.Repository
	imageBaseURL string
	pepper       []byte
}

// New constructs a Handler with the required domain dependencies.
func New(
	cfg Config,
	products product.Repository,
	coupons coupon.Validator,
	orders *order.Service,
	apikeys auth.Repository,
) *Handler {
	return &Handler{
		products:     products,
		coupons:      coupons,
		orders:       orders,
		apikeys:      apikeys,
		imageBaseURL: cfg.ImageBaseURL,
		pepper:       []byte(cfg.APIKeyPepper),
	}
}

// Routes returns the API router. Product reads are public; order placement
// and coupon validation require an API key.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/api", func(r chi.Router) {
		r.Get("/product", h.ListProducts)
		r.Get("/product/{productId}", h.GetProduct)

		r.Group(func(r chi.Router) {
			r.Use(h.RequireAPIKey)
			r.Post("/order", h.PlaceOrder)
			r.Post("/coupon/validate", h.ValidateCoupon)
		})
	})

	return r
}
