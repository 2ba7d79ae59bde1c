package handler

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svmadhu/jewelcart/internal/domain/auth"
	"github.com/svmadhu/jewelcart/internal/domain/coupon"
	"github.com/svmadhu/jewelcart/internal/domain/order"
	"github.com/svmadhu/jewelcart/internal/domain/product"
)

// --- Mock implementations ---

type mockProductRepo struct {
	products []product.Product
	byID     map[string]product.Product
	listErr  error
	getErr   error
}

func (m *mockProductRepo) List(_ context.Context) ([]product.Product, error) {
	return m.products, m.listErr
}

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type mockCouponValidator struct {
	verdict *coupon.Result
	err     error
}

func (m *mockCouponValidator) Validate(_ context.Context, _, _ string, _ []coupon.CartLine) (*coupon.Result, error) {
	return m.verdict, m.err
}

type mockRecorder struct {
	err error
}

func (m *mockRecorder) Record(_ context.Context, _ coupon.Redemption) error {
	return m.err
}

type mockOrderRepo struct {
	lastOrder *order.Order
	err       error
}

func (m *mockOrderRepo) Create(_ context.Context, o *order.Order) error {
	m.lastOrder = o
	return m.err
}

type mockAPIKeyRepo struct {
	info *auth.APIKeyInfo
	err  error
}

func (m *mockAPIKeyRepo) FindByHash(_ context.Context, _ string) (*auth.APIKeyInfo, error) {
	return m.info, m.err
}

// --- Helpers ---

const testPepper = "test-pepper"

func newTestProduct(id, name string, price decimal.Decimal) product.Product {
	return product.Product{
		ID:       id,
		Name:     name,
		Price:    price,
		Category: "rings",
		Image: product.Image{
			Thumbnail: "thumb.jpg",
			Mobile:    "mobile.jpg",
			Tablet:    "tablet.jpg",
			Desktop:   "desktop.jpg",
		},
	}
}

func newProductRepo(products ...product.Product) *mockProductRepo {
	byID := make(map[string]product.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return &mockProductRepo{products: products, byID: byID}
}

type testDeps struct {
	products *mockProductRepo
	coupons  *mockCouponValidator
	recorder *mockRecorder
	orders   *mockOrderRepo
	apikeys  *mockAPIKeyRepo
}

func newTestHandler(d testDeps) *Handler {
	if d.products == nil {
		d.products = newProductRepo()
	}
	if d.coupons == nil {
		d.coupons = &mockCouponValidator{}
	}
	if d.recorder == nil {
		d.recorder = &mockRecorder{}
	}
	if d.orders == nil {
		d.orders = &mockOrderRepo{}
	}
	if d.apikeys == nil {
		digest := hashAPIKey([]byte(testPepper), []byte("secret-key"))
		d.apikeys = &mockAPIKeyRepo{info: &auth.APIKeyInfo{
			ID:      "key-1",
			KeyHash: hex.EncodeToString(digest),
			Name:    "test-key",
		}}
	}

	svc := order.NewService(d.products, d.coupons, d.recorder, d.orders)
	return New(Config{APIKeyPepper: testPepper}, d.products, d.coupons, svc, d.apikeys)
}

func doJSON(t *testing.T, h *Handler, method, path string, body any, apiKey string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if apiKey != "" {
		req.Header.Set(APIKeyHeader, apiKey)
	}

	w := httptest.NewRecorder()
	h.Routes().ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

// --- Tests ---

func TestListProducts(t *testing.T) {
	h := newTestHandler(testDeps{products: newProductRepo(
		newTestProduct("p1", "Gold Ring", decimal.NewFromInt(500)),
		newTestProduct("p2", "Silver Chain", decimal.NewFromInt(120)),
	)})

	w := doJSON(t, h, http.MethodGet, "/api/product", nil, "")

	require.Equal(t, http.StatusOK, w.Code)
	var out []productResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
	require.Len(t, out, 2)
	assert.Equal(t, "p1", out[0].ID)
	assert.Equal(t, "Gold Ring", out[0].Name)
	assert.InDelta(t, 500, out[0].Price, 0.001)
}

func TestListProducts_Error(t *testing.T) {
	h := newTestHandler(testDeps{products: &mockProductRepo{listErr: errors.New("db down")}})

	w := doJSON(t, h, http.MethodGet, "/api/product", nil, "")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal server error", decodeBody(t, w)["message"])
}

func TestGetProduct(t *testing.T) {
	h := newTestHandler(testDeps{products: newProductRepo(
		newTestProduct("p1", "Gold Ring", decimal.NewFromInt(500)),
	)})

	t.Run("found", func(t *testing.T) {
		w := doJSON(t, h, http.MethodGet, "/api/product/p1", nil, "")

		require.Equal(t, http.StatusOK, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, "p1", body["id"])
		assert.Equal(t, "Gold Ring", body["name"])
	})

	t.Run("not found returns 404", func(t *testing.T) {
		w := doJSON(t, h, http.MethodGet, "/api/product/missing", nil, "")

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "product not found", decodeBody(t, w)["message"])
	})
}

func TestGetProduct_ImageBaseURL(t *testing.T) {
	repo := newProductRepo(newTestProduct("p1", "Gold Ring", decimal.NewFromInt(500)))
	svc := order.NewService(repo, &mockCouponValidator{}, &mockRecorder{}, &mockOrderRepo{})
	h := New(Config{ImageBaseURL: "https://cdn.example.com/"}, repo, &mockCouponValidator{}, svc, &mockAPIKeyRepo{})

	w := doJSON(t, h, http.MethodGet, "/api/product/p1", nil, "")

	require.Equal(t, http.StatusOK, w.Code)
	image := decodeBody(t, w)["image"].(map[string]any)
	assert.Equal(t, "https://cdn.example.com/thumb.jpg", image["thumbnail"])
}

func TestPlaceOrder(t *testing.T) {
	p1 := newTestProduct("p1", "Gold Ring", decimal.RequireFromString("10.00"))
	p2 := newTestProduct("p2", "Silver Chain", decimal.RequireFromString("20.00"))

	tests := []struct {
		name          string
		deps          testDeps
		body          orderRequest
		wantStatus    int
		wantMessage   string
		wantTotal     float64
		wantDiscounts float64
	}{
		{
			name:        "empty items returns 400",
			deps:        testDeps{products: newProductRepo(p1)},
			body:        orderRequest{UserID: "u1"},
			wantStatus:  http.StatusBadRequest,
			wantMessage: "items required",
		},
		{
			name:        "missing user returns 400",
			deps:        testDeps{products: newProductRepo(p1)},
			body:        orderRequest{Items: []orderItemRequest{{ProductID: "p1", Quantity: 1}}},
			wantStatus:  http.StatusBadRequest,
			wantMessage: "user required",
		},
		{
			name: "invalid quantity returns 422",
			deps: testDeps{products: newProductRepo(p1)},
			body: orderRequest{
				UserID: "u1",
				Items:  []orderItemRequest{{ProductID: "p1", Quantity: 0}},
			},
			wantStatus:  http.StatusUnprocessableEntity,
			wantMessage: "quantity must be greater than 0 for product p1",
		},
		{
			name: "product not found returns 422",
			deps: testDeps{products: newProductRepo(p1)},
			body: orderRequest{
				UserID: "u1",
				Items:  []orderItemRequest{{ProductID: "nonexistent", Quantity: 1}},
			},
			wantStatus:  http.StatusUnprocessableEntity,
			wantMessage: "product nonexistent not found",
		},
		{
			name: "valid order without coupon",
			deps: testDeps{products: newProductRepo(p1, p2)},
			body: orderRequest{
				UserID: "u1",
				Items: []orderItemRequest{
					{ProductID: "p1", Quantity: 2},
					{ProductID: "p2", Quantity: 1},
				},
			},
			wantStatus: http.StatusCreated,
			wantTotal:  40.00,
		},
		{
			name: "valid order with coupon applies discount",
			deps: testDeps{
				products: newProductRepo(p1, p2),
				coupons: &mockCouponValidator{verdict: &coupon.Result{
					CouponID:    "c1",
					Amount:      decimal.RequireFromString("5.00"),
					Description: "5 off",
				}},
			},
			body: orderRequest{
				UserID:     "u1",
				CouponCode: "SAVE5",
				Items: []orderItemRequest{
					{ProductID: "p1", Quantity: 2},
					{ProductID: "p2", Quantity: 1},
				},
			},
			wantStatus:    http.StatusCreated,
			wantTotal:     35.00,
			wantDiscounts: 5.00,
		},
		{
			name: "unknown coupon returns 422",
			deps: testDeps{
				products: newProductRepo(p1),
				coupons:  &mockCouponValidator{err: coupon.ErrNotFound},
			},
			body: orderRequest{
				UserID:     "u1",
				CouponCode: "BOGUS",
				Items:      []orderItemRequest{{ProductID: "p1", Quantity: 1}},
			},
			wantStatus:  http.StatusUnprocessableEntity,
			wantMessage: "invalid coupon code",
		},
		{
			name: "expired coupon returns 422",
			deps: testDeps{
				products: newProductRepo(p1),
				coupons:  &mockCouponValidator{err: coupon.ErrExpired},
			},
			body: orderRequest{
				UserID:     "u1",
				CouponCode: "OLD",
				Items:      []orderItemRequest{{ProductID: "p1", Quantity: 1}},
			},
			wantStatus:  http.StatusUnprocessableEntity,
			wantMessage: "coupon has expired",
		},
		{
			name: "redemption race returns 422",
			deps: testDeps{
				products: newProductRepo(p1),
				coupons: &mockCouponValidator{verdict: &coupon.Result{
					CouponID: "c1",
					Amount:   decimal.NewFromInt(1),
				}},
				recorder: &mockRecorder{err: coupon.ErrGlobalLimitReached},
			},
			body: orderRequest{
				UserID:     "u1",
				CouponCode: "LAST1",
				Items:      []orderItemRequest{{ProductID: "p1", Quantity: 1}},
			},
			wantStatus:  http.StatusUnprocessableEntity,
			wantMessage: "coupon usage limit reached",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(tt.deps)

			w := doJSON(t, h, http.MethodPost, "/api/order", tt.body, "secret-key")

			require.Equal(t, tt.wantStatus, w.Code)
			body := decodeBody(t, w)
			if tt.wantMessage != "" {
				assert.Equal(t, tt.wantMessage, body["message"])
				return
			}
			assert.NotEmpty(t, body["id"])
			assert.InDelta(t, tt.wantTotal, body["total"], 0.01)
			assert.InDelta(t, tt.wantDiscounts, body["discounts"], 0.01)
		})
	}
}

func TestPlaceOrder_CreateError(t *testing.T) {
	p1 := newTestProduct("p1", "Gold Ring", decimal.NewFromInt(10))
	h := newTestHandler(testDeps{
		products: newProductRepo(p1),
		orders:   &mockOrderRepo{err: errors.New("db write failed")},
	})

	w := doJSON(t, h, http.MethodPost, "/api/order", orderRequest{
		UserID: "u1",
		Items:  []orderItemRequest{{ProductID: "p1", Quantity: 1}},
	}, "secret-key")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestValidateCoupon(t *testing.T) {
	p1 := newTestProduct("p1", "Gold Ring", decimal.RequireFromString("500.00"))

	t.Run("valid coupon", func(t *testing.T) {
		h := newTestHandler(testDeps{
			products: newProductRepo(p1),
			coupons: &mockCouponValidator{verdict: &coupon.Result{
				CouponID:    "c1",
				Amount:      decimal.RequireFromString("100.00"),
				Description: "20% off",
			}},
		})

		w := doJSON(t, h, http.MethodPost, "/api/coupon/validate", validateCouponRequest{
			CouponCode: "SAVE20",
			UserID:     "u1",
			Items:      []orderItemRequest{{ProductID: "p1", Quantity: 1}},
		}, "secret-key")

		require.Equal(t, http.StatusOK, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, true, body["valid"])
		assert.Equal(t, "c1", body["couponId"])
		assert.InDelta(t, 100.00, body["discount"], 0.01)
		assert.Equal(t, "20% off", body["description"])
	})

	t.Run("rejected coupon returns valid false", func(t *testing.T) {
		h := newTestHandler(testDeps{
			products: newProductRepo(p1),
			coupons:  &mockCouponValidator{err: coupon.ErrBelowMinimumPurchase},
		})

		w := doJSON(t, h, http.MethodPost, "/api/coupon/validate", validateCouponRequest{
			CouponCode: "BIG50",
			UserID:     "u1",
			Items:      []orderItemRequest{{ProductID: "p1", Quantity: 1}},
		}, "secret-key")

		require.Equal(t, http.StatusOK, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, false, body["valid"])
		assert.Equal(t, "cart total is below the minimum purchase amount for this coupon", body["error"])
	})

	t.Run("missing code returns 400", func(t *testing.T) {
		h := newTestHandler(testDeps{products: newProductRepo(p1)})

		w := doJSON(t, h, http.MethodPost, "/api/coupon/validate", validateCouponRequest{
			UserID: "u1",
			Items:  []orderItemRequest{{ProductID: "p1", Quantity: 1}},
		}, "secret-key")

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown product returns 422", func(t *testing.T) {
		h := newTestHandler(testDeps{products: newProductRepo(p1)})

		w := doJSON(t, h, http.MethodPost, "/api/coupon/validate", validateCouponRequest{
			CouponCode: "SAVE20",
			UserID:     "u1",
			Items:      []orderItemRequest{{ProductID: "ghost", Quantity: 1}},
		}, "secret-key")

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, "product ghost not found", decodeBody(t, w)["message"])
	})
}

func TestRequireAPIKey(t *testing.T) {
	p1 := newTestProduct("p1", "Gold Ring", decimal.NewFromInt(10))
	body := orderRequest{
		UserID: "u1",
		Items:  []orderItemRequest{{ProductID: "p1", Quantity: 1}},
	}

	t.Run("missing key returns 401", func(t *testing.T) {
		h := newTestHandler(testDeps{products: newProductRepo(p1)})

		w := doJSON(t, h, http.MethodPost, "/api/order", body, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unknown key returns 401", func(t *testing.T) {
		h := newTestHandler(testDeps{
			products: newProductRepo(p1),
			apikeys:  &mockAPIKeyRepo{err: errors.New("not found")},
		})

		w := doJSON(t, h, http.MethodPost, "/api/order", body, "wrong-key")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("stored hash mismatch returns 401", func(t *testing.T) {
		other := hashAPIKey([]byte(testPepper), []byte("another-key"))
		h := newTestHandler(testDeps{
			products: newProductRepo(p1),
			apikeys: &mockAPIKeyRepo{info: &auth.APIKeyInfo{
				ID:      "key-1",
				KeyHash: hex.EncodeToString(other),
			}},
		})

		w := doJSON(t, h, http.MethodPost, "/api/order", body, "secret-key")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("valid key passes through", func(t *testing.T) {
		h := newTestHandler(testDeps{products: newProductRepo(p1)})

		w := doJSON(t, h, http.MethodPost, "/api/order", body, "secret-key")
		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("product reads are public", func(t *testing.T) {
		h := newTestHandler(testDeps{products: newProductRepo(p1)})

		w := doJSON(t, h, http.MethodGet, "/api/product", nil, "")
		assert.Equal(t, http.StatusOK, w.Code)
	})
}
