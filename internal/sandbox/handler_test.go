package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront-checkout/internal/domain"
)

// failingStore breaks reads so error paths can be exercised.
type failingStore struct {
	*MemoryStore
	mu      sync.Mutex
	failGet bool
}

func (f *failingStore) setFailGet(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failGet = v
}

func (f *failingStore) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	f.mu.Lock()
	fail := f.failGet
	f.mu.Unlock()
	if fail {
		return nil, errors.New("connection refused")
	}
	return f.MemoryStore.GetByID(ctx, id)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.OrderEvent
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event.(domain.OrderEvent))
	return nil
}

func (p *recordingPublisher) snapshot() []domain.OrderEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.events)
}

type testServer struct {
	*httptest.Server
	store   *failingStore
	created *recordingPublisher
	paid    *recordingPublisher
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		store:   &failingStore{MemoryStore: NewMemoryStore()},
		created: &recordingPublisher{},
		paid:    &recordingPublisher{},
	}

	mux := http.NewServeMux()
	ts.Server = httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	handler := NewHandler(ts.store, ts.store, Options{
		PublicURL:     ts.URL,
		ServiceToken:  "svc-token",
		ShippingPrice: decimal.NewFromInt(5),
		OrderCreated:  ts.created,
		OrderPaid:     ts.paid,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	handler.Register(mux)
	return ts
}

func (ts *testServer) call(t *testing.T, method, path, token, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	data, _ := io.ReadAll(resp.Body)
	return resp, data
}

const orderBody = `{
	"shippingAddress": {"details": "12 Nile Street", "phone": "01012345678", "city": "Cairo"},
	"paymentMethodType": "%s",
	"cartItems": [{"product": "p1", "quantity": 2, "price": 40}, {"product": "p2", "quantity": 1, "price": 19.99}]
}`

func (ts *testServer) createOrder(t *testing.T, token, method string) domain.Order {
	t.Helper()
	resp, data := ts.call(t, http.MethodPost, "/api/v1/orders", token, strings.Replace(orderBody, "%s", method, 1))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, data)
	}
	var env domain.Envelope[domain.Order]
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return env.Data
}

func TestHandleCreate(t *testing.T) {
	t.Run("computes the total and publishes", func(t *testing.T) {
		ts := newTestServer(t)
		order := ts.createOrder(t, "user-1", "cash")

		if order.ID == "" || order.User != "user-1" || order.Status != domain.OrderStatusPending {
			t.Errorf("unexpected order %+v", order)
		}
		if !order.TotalOrderPrice.Equal(decimal.RequireFromString("104.99")) {
			t.Errorf("expected total 104.99, got %s", order.TotalOrderPrice)
		}
		if order.PaymentURL != "" {
			t.Errorf("cash orders carry no payment url, got %q", order.PaymentURL)
		}
		if events := ts.created.snapshot(); len(events) != 1 || events[0].OrderID != order.ID {
			t.Errorf("expected one created event, got %+v", events)
		}
	})

	t.Run("external methods get a hosted payment url", func(t *testing.T) {
		ts := newTestServer(t)
		order := ts.createOrder(t, "user-1", "paypal")

		if order.PaymentURL != ts.URL+"/pay/"+order.ID {
			t.Errorf("unexpected payment url %q", order.PaymentURL)
		}
	})

	t.Run("rejects bad input", func(t *testing.T) {
		ts := newTestServer(t)
		cases := map[string]string{
			"cart is empty":                `{"shippingAddress": {"details": "12 Nile Street", "phone": "01012345678", "city": "Cairo"}, "cartItems": []}`,
			"invalid cart item":            `{"shippingAddress": {"details": "12 Nile Street", "phone": "01012345678", "city": "Cairo"}, "cartItems": [{"product": "p1", "quantity": 0, "price": 1}]}`,
			"shipping address is required": `{"cartItems": [{"product": "p1", "quantity": 1, "price": 1}]}`,
			"invalid request body":         `{`,
		}
		for want, body := range cases {
			resp, data := ts.call(t, http.MethodPost, "/api/v1/orders", "user-1", body)
			if resp.StatusCode != http.StatusBadRequest || !strings.Contains(string(data), want) {
				t.Errorf("expected 400 %q, got %d: %s", want, resp.StatusCode, data)
			}
		}
	})

	t.Run("requires a token", func(t *testing.T) {
		ts := newTestServer(t)
		resp, data := ts.call(t, http.MethodPost, "/api/v1/orders", "", strings.Replace(orderBody, "%s", "cash", 1))
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d: %s", resp.StatusCode, data)
		}
	})
}

func TestHandleGet(t *testing.T) {
	ts := newTestServer(t)
	order := ts.createOrder(t, "user-1", "cash")

	resp, _ := ts.call(t, http.MethodGet, "/api/v1/orders/"+order.ID, "user-1", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("owner should see the order, got %d", resp.StatusCode)
	}

	resp, _ = ts.call(t, http.MethodGet, "/api/v1/orders/"+order.ID, "user-2", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("other users should get 404, got %d", resp.StatusCode)
	}

	resp, _ = ts.call(t, http.MethodGet, "/api/v1/orders/"+order.ID, "svc-token", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("service token should see any order, got %d", resp.StatusCode)
	}

	ts.store.setFailGet(true)
	resp, _ = ts.call(t, http.MethodGet, "/api/v1/orders/"+order.ID, "user-1", "")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected 500 on store failure, got %d", resp.StatusCode)
	}
}

func TestHandleListUserOrders(t *testing.T) {
	ts := newTestServer(t)
	for range 3 {
		ts.createOrder(t, "user-1", "cash")
	}
	ts.createOrder(t, "user-2", "cash")

	resp, data := ts.call(t, http.MethodGet, "/api/v1/orders/user/orders?page=2&limit=2", "user-1", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, data)
	}

	var env domain.Envelope[[]domain.Order]
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatal(err)
	}
	if env.Results != 3 || len(env.Data) != 1 {
		t.Errorf("expected 1 of 3 orders, got %d of %d", len(env.Data), env.Results)
	}
	if env.Pagination == nil || env.Pagination.CurrentPage != 2 || env.Pagination.NumberOfPages != 2 {
		t.Errorf("unexpected pagination %+v", env.Pagination)
	}
}

func TestStatusTransitions(t *testing.T) {
	t.Run("pay then deliver", func(t *testing.T) {
		ts := newTestServer(t)
		order := ts.createOrder(t, "user-1", "cash")

		resp, data := ts.call(t, http.MethodPut, "/api/v1/orders/"+order.ID+"/deliver", "user-1", "{}")
		if resp.StatusCode != http.StatusConflict {
			t.Errorf("expected 409 for unpaid delivery, got %d: %s", resp.StatusCode, data)
		}

		for range 2 {
			resp, data = ts.call(t, http.MethodPut, "/api/v1/orders/"+order.ID+"/pay", "user-1", "{}")
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", resp.StatusCode, data)
			}
		}
		if len(ts.paid.snapshot()) != 1 {
			t.Errorf("expected a single paid event, got %d", len(ts.paid.snapshot()))
		}

		resp, data = ts.call(t, http.MethodPut, "/api/v1/orders/"+order.ID+"/deliver", "svc-token", "{}")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", resp.StatusCode, data)
		}
		var env domain.Envelope[domain.Order]
		_ = json.Unmarshal(data, &env)
		if !env.Data.IsDelivered || env.Data.Status != domain.OrderStatusDelivered {
			t.Errorf("expected delivered order, got %+v", env.Data)
		}
	})

	t.Run("unknown order", func(t *testing.T) {
		ts := newTestServer(t)
		resp, _ := ts.call(t, http.MethodPut, "/api/v1/orders/missing/pay", "user-1", "{}")
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("expected 404, got %d", resp.StatusCode)
		}
	})
}

func TestCheckoutSessionAndHostedPayment(t *testing.T) {
	ts := newTestServer(t)
	order := ts.createOrder(t, "user-1", "card")

	resp, data := ts.call(t, http.MethodGet, "/api/v1/orders/checkout-session/"+order.ID+"?url=http%3A%2F%2Fshop.local%3A4200", "user-1", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, data)
	}
	var session checkoutSessionResponse
	if err := json.Unmarshal(data, &session); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(session.Session.URL, ts.URL+"/pay/"+order.ID+"?return=") {
		t.Fatalf("unexpected session url %q", session.Session.URL)
	}

	resp, _ = ts.call(t, http.MethodGet, strings.TrimPrefix(session.Session.URL, ts.URL), "", "")
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "http://shop.local:4200/checkout/success?orderId="+order.ID {
		t.Errorf("unexpected redirect %q", loc)
	}
	if len(ts.paid.snapshot()) != 1 {
		t.Errorf("expected paid event, got %d", len(ts.paid.snapshot()))
	}

	resp, _ = ts.call(t, http.MethodGet, "/api/v1/orders/checkout-session/"+order.ID+"?url=http%3A%2F%2Fshop.local", "user-1", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("paid orders get no session, got %d", resp.StatusCode)
	}

	other := ts.createOrder(t, "user-1", "card")
	resp, _ = ts.call(t, http.MethodGet, "/api/v1/orders/checkout-session/"+other.ID+"?url=javascript:alert(1)", "user-1", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for bad origin, got %d", resp.StatusCode)
	}
}

func TestHostedPaymentRefusesCashOrders(t *testing.T) {
	ts := newTestServer(t)
	order := ts.createOrder(t, "user-1", "cash")

	resp, _ := ts.call(t, http.MethodGet, "/pay/"+order.ID+"?return=http%3A%2F%2Fshop.local", "", "")
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
	if len(ts.paid.snapshot()) != 0 {
		t.Errorf("expected no paid event, got %d", len(ts.paid.snapshot()))
	}

	resp, data := ts.call(t, http.MethodGet, "/api/v1/orders/"+order.ID, "user-1", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, data)
	}
	var env domain.Envelope[domain.Order]
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatal(err)
	}
	if env.Data.IsPaid {
		t.Error("cash order must stay unpaid")
	}

	resp, _ = ts.call(t, http.MethodGet, "/pay/missing", "", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for unknown order, got %d", resp.StatusCode)
	}
}

func TestPaymentIntents(t *testing.T) {
	ts := newTestServer(t)

	resp, data := ts.call(t, http.MethodPost, "/api/v1/payments/create-payment-intent", "user-1", `{"amount": 1999, "currency": "USD"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, data)
	}
	var created domain.Envelope[PaymentIntent]
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatal(err)
	}
	intent := created.Data
	if !strings.HasPrefix(intent.ClientSecret, intent.ID+"_secret_") || intent.Currency != "usd" {
		t.Errorf("unexpected intent %+v", intent)
	}

	resp, _ = ts.call(t, http.MethodPost, "/api/v1/payments/confirm-payment-intent", "user-1", `{"clientSecret": "`+intent.ID+`_secret_wrong", "paymentIntentId": "`+intent.ID+`"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for wrong secret, got %d", resp.StatusCode)
	}

	resp, data = ts.call(t, http.MethodPost, "/api/v1/payments/confirm-payment-intent", "user-1", `{"clientSecret": "`+intent.ClientSecret+`"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, data)
	}
	var confirmed domain.Envelope[PaymentIntent]
	_ = json.Unmarshal(data, &confirmed)
	if confirmed.Data.Status != intentSucceeded {
		t.Errorf("expected succeeded, got %q", confirmed.Data.Status)
	}

	resp, _ = ts.call(t, http.MethodPost, "/api/v1/payments/create-payment-intent", "user-1", `{"amount": 0}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for zero amount, got %d", resp.StatusCode)
	}

	resp, _ = ts.call(t, http.MethodPost, "/api/v1/payments/confirm-payment-intent", "user-1", `{"paymentIntentId": "pi_missing", "clientSecret": "x"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for unknown intent, got %d", resp.StatusCode)
	}
}
