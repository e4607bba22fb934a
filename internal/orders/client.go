package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/singleflight"

	"github.com/joao-fontenele/storefront-checkout/internal/domain"
)

var (
	ErrMissingToken  = errors.New("missing bearer token")
	ErrEmptyResponse = errors.New("response carried no data")
	ErrNoSessionURL  = errors.New("checkout session response carried no url")
)

// APIError is returned for any non-2xx answer from the commerce API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("commerce api returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("commerce api returned status %d: %s", e.StatusCode, e.Message)
}

// TokenSource hands out the bearer token held by the client.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	return string(t), nil
}

type CreateOrderRequest struct {
	ShippingAddress   domain.ShippingAddress
	PaymentMethodType domain.PaymentMethodType
}

type OrderPage struct {
	Orders     []domain.Order
	Results    int
	Pagination *domain.Pagination
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	breaker    *gobreaker.CircuitBreaker[[]byte]
	inflight   singleflight.Group
	logger     *slog.Logger
}

type Option func(*gobreaker.Settings)

// WithBreakerTimeout sets how long the breaker stays open before probing again.
func WithBreakerTimeout(d time.Duration) Option {
	return func(s *gobreaker.Settings) {
		s.Timeout = d
	}
}

// WithFailureThreshold sets how many consecutive failures open the breaker.
func WithFailureThreshold(n uint32) Option {
	return func(s *gobreaker.Settings) {
		s.ReadyToTrip = func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= n
		}
	}
}

func NewClient(baseURL string, httpClient *http.Client, tokens TokenSource, logger *slog.Logger, opts ...Option) *Client {
	settings := gobreaker.Settings{
		Name:    "commerce-api",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// client errors mean the API is up, only transport failures and 5xx trip the breaker
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return apiErr.StatusCode < http.StatusInternalServerError
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	}
	for _, opt := range opts {
		opt(&settings)
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/") + "/",
		httpClient: httpClient,
		tokens:     tokens,
		breaker:    gobreaker.NewCircuitBreaker[[]byte](settings),
		logger:     logger,
	}
}

type orderItemPayload struct {
	Product  string  `json:"product"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

type createOrderPayload struct {
	ShippingAddress   domain.ShippingAddress   `json:"shippingAddress"`
	PaymentMethodType domain.PaymentMethodType `json:"paymentMethodType"`
	CartItems         []orderItemPayload       `json:"cartItems"`
}

// CreateOrder persists an order for the given line items. Unit prices are
// taken from the items as passed, nothing is re-fetched.
func (c *Client) CreateOrder(ctx context.Context, items []domain.CartLineItem, req CreateOrderRequest) (*domain.Order, error) {
	payload := createOrderPayload{
		ShippingAddress:   req.ShippingAddress,
		PaymentMethodType: req.PaymentMethodType,
		CartItems:         make([]orderItemPayload, 0, len(items)),
	}
	for _, item := range items {
		payload.CartItems = append(payload.CartItems, orderItemPayload{
			Product:  item.Product.ID,
			Quantity: item.Quantity,
			Price:    item.Product.Price.InexactFloat64(),
		})
	}

	var env domain.Envelope[domain.Order]
	if err := c.do(ctx, http.MethodPost, "orders", payload, &env); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	if env.Data.ID == "" {
		return nil, fmt.Errorf("create order: %w", ErrEmptyResponse)
	}

	order := env.Data
	if order.PaymentURL == "" {
		order.PaymentURL = env.URL
	}

	c.logger.Info("order created", "order_id", order.ID, "payment_method", order.PaymentMethodType)
	return &order, nil
}

// GetOrder fetches one order. Concurrent calls for the same id share a
// single request; each caller stops waiting when its own ctx is done.
func (c *Client) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	shared := context.WithoutCancel(ctx)
	results := c.inflight.DoChan(id, func() (any, error) {
		var env domain.Envelope[domain.Order]
		if err := c.do(shared, http.MethodGet, "orders/"+url.PathEscape(id), nil, &env); err != nil {
			return nil, err
		}
		if env.Data.ID == "" {
			return nil, ErrEmptyResponse
		}
		return &env.Data, nil
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("get order %s: %w", id, ctx.Err())
	case res := <-results:
		if res.Err != nil {
			return nil, fmt.Errorf("get order %s: %w", id, res.Err)
		}
		order := *res.Val.(*domain.Order)
		return &order, nil
	}
}

func (c *Client) ListUserOrders(ctx context.Context, page int) (*OrderPage, error) {
	path := "orders/user/orders"
	if page > 0 {
		path += "?page=" + strconv.Itoa(page)
	}

	var env domain.Envelope[[]domain.Order]
	if err := c.do(ctx, http.MethodGet, path, nil, &env); err != nil {
		return nil, fmt.Errorf("list user orders: %w", err)
	}

	results := env.Results
	if results == 0 {
		results = len(env.Data)
	}
	return &OrderPage{
		Orders:     env.Data,
		Results:    results,
		Pagination: env.Pagination,
	}, nil
}

func (c *Client) MarkPaid(ctx context.Context, id string) (*domain.Order, error) {
	order, err := c.putStatus(ctx, id, "pay")
	if err != nil {
		return nil, fmt.Errorf("mark order %s paid: %w", id, err)
	}
	c.logger.Info("order marked paid", "order_id", id)
	return order, nil
}

func (c *Client) MarkDelivered(ctx context.Context, id string) (*domain.Order, error) {
	order, err := c.putStatus(ctx, id, "deliver")
	if err != nil {
		return nil, fmt.Errorf("mark order %s delivered: %w", id, err)
	}
	c.logger.Info("order marked delivered", "order_id", id)
	return order, nil
}

func (c *Client) putStatus(ctx context.Context, id, action string) (*domain.Order, error) {
	var env domain.Envelope[domain.Order]
	if err := c.do(ctx, http.MethodPut, "orders/"+url.PathEscape(id)+"/"+action, struct{}{}, &env); err != nil {
		return nil, err
	}
	return &env.Data, nil
}

type sessionResponse struct {
	Status  string `json:"status"`
	URL     string `json:"url"`
	Session struct {
		URL string `json:"url"`
	} `json:"session"`
}

// CheckoutSessionURL asks the API for a hosted payment page for the order.
// origin is the storefront's own origin; the gateway builds its return and
// cancel URLs from it.
func (c *Client) CheckoutSessionURL(ctx context.Context, orderID, origin string) (string, error) {
	path := "orders/checkout-session/" + url.PathEscape(orderID) + "?url=" + url.QueryEscape(origin)

	var resp sessionResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return "", fmt.Errorf("get checkout session for order %s: %w", orderID, err)
	}

	sessionURL := resp.URL
	if sessionURL == "" {
		sessionURL = resp.Session.URL
	}
	if sessionURL == "" {
		return "", fmt.Errorf("get checkout session for order %s: %w", orderID, ErrNoSessionURL)
	}
	return sessionURL, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("read bearer token: %w", err)
	}
	if token == "" {
		return ErrMissingToken
	}

	var reqBody []byte
	if body != nil {
		reqBody, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	respBody, err := c.breaker.Execute(func() ([]byte, error) {
		return c.send(ctx, method, c.baseURL+path, token, reqBody)
	})
	if err != nil {
		return err
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, target, token string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		_ = json.Unmarshal(data, &apiErr)
		msg := apiErr.Message
		if msg == "" {
			msg = apiErr.Error
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	return data, nil
}
