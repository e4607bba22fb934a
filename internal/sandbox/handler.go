package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront-checkout/internal/domain"
	"github.com/joao-fontenele/storefront-checkout/internal/telemetry"
)

const (
	APIPrefix   = "/api/v1"
	successPath = "/checkout/success"

	defaultPageSize = 10
	maxPageSize     = 50
)

type OrderStore interface {
	Create(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	ListByUser(ctx context.Context, userID string, page, limit int) ([]domain.Order, int, error)
	MarkPaid(ctx context.Context, id string) (*domain.Order, bool, error)
	MarkDelivered(ctx context.Context, id string) (*domain.Order, bool, error)
}

type IntentStore interface {
	CreateIntent(ctx context.Context, intent *PaymentIntent) error
	GetIntent(ctx context.Context, id string) (*PaymentIntent, error)
	UpdateIntentStatus(ctx context.Context, id, status string) error
}

// Publisher matches messaging.Producer.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

type Options struct {
	// PublicURL is where browsers reach this server; hosted payment links
	// are built from it.
	PublicURL string
	// ServiceToken lets internal callers act on any user's orders.
	ServiceToken  string
	ShippingPrice decimal.Decimal
	OrderCreated  Publisher
	OrderPaid     Publisher
}

// Handler serves the commerce API the storefront talks to.
type Handler struct {
	orders  OrderStore
	intents IntentStore
	opts    Options
	logger  *slog.Logger
}

func NewHandler(orders OrderStore, intents IntentStore, opts Options, logger *slog.Logger) *Handler {
	opts.PublicURL = strings.TrimRight(opts.PublicURL, "/")
	return &Handler{
		orders:  orders,
		intents: intents,
		opts:    opts,
		logger:  logger,
	}
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	route := func(pattern string, fn http.HandlerFunc) {
		mux.HandleFunc(pattern, telemetry.WithHTTPRoute(fn))
	}

	route("POST "+APIPrefix+"/orders", h.authenticated(h.HandleCreate))
	route("GET "+APIPrefix+"/orders/user/orders", h.authenticated(h.HandleListUserOrders))
	route("GET "+APIPrefix+"/orders/checkout-session/{id}", h.authenticated(h.HandleCheckoutSession))
	route("GET "+APIPrefix+"/orders/{id}", h.authenticated(h.HandleGet))
	route("PUT "+APIPrefix+"/orders/{id}/pay", h.authenticated(h.HandlePay))
	route("PUT "+APIPrefix+"/orders/{id}/deliver", h.authenticated(h.HandleDeliver))
	route("POST "+APIPrefix+"/payments/create-payment-intent", h.authenticated(h.HandleCreateIntent))
	route("POST "+APIPrefix+"/payments/confirm-payment-intent", h.authenticated(h.HandleConfirmIntent))
	route("GET /pay/{id}", h.HandleHostedPayment)
	route("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

type caller struct {
	UserID  string
	Service bool
}

type callerKey struct{}

func callerFrom(ctx context.Context) caller {
	c, _ := ctx.Value(callerKey{}).(caller)
	return c
}

// authenticated treats the bearer token as the user id.
func (h *Handler) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		token = strings.TrimSpace(token)
		if !ok || token == "" {
			h.writeError(w, http.StatusUnauthorized, "You are not logged in")
			return
		}

		c := caller{UserID: token}
		if h.opts.ServiceToken != "" && token == h.opts.ServiceToken {
			c.Service = true
		}
		next(w, r.WithContext(context.WithValue(r.Context(), callerKey{}, c)))
	}
}

type createOrderRequest struct {
	ShippingAddress   *domain.ShippingAddress  `json:"shippingAddress"`
	PaymentMethodType domain.PaymentMethodType `json:"paymentMethodType"`
	CartItems         []domain.OrderItem       `json:"cartItems"`
}

func (r createOrderRequest) validate() string {
	if len(r.CartItems) == 0 {
		return "cart is empty"
	}
	for _, item := range r.CartItems {
		if item.Product == "" || item.Quantity <= 0 || item.Price.IsNegative() {
			return "invalid cart item"
		}
	}
	addr := r.ShippingAddress
	if addr == nil || strings.TrimSpace(addr.Details) == "" || strings.TrimSpace(addr.Phone) == "" || strings.TrimSpace(addr.City) == "" {
		return "shipping address is required"
	}
	return ""
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		h.writeError(w, http.StatusBadRequest, msg)
		return
	}
	if req.PaymentMethodType == "" {
		req.PaymentMethodType = domain.PaymentMethodCash
	}

	total := h.opts.ShippingPrice
	for _, item := range req.CartItems {
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	order := &domain.Order{
		User:              callerFrom(r.Context()).UserID,
		CartItems:         req.CartItems,
		ShippingAddress:   req.ShippingAddress,
		TotalOrderPrice:   total.Round(2),
		PaymentMethodType: req.PaymentMethodType,
		Status:            domain.OrderStatusPending,
		CreatedAt:         time.Now().UTC(),
	}

	if err := h.orders.Create(r.Context(), order); err != nil {
		h.logger.Error("failed to create order", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	ordersCreated.Add(r.Context(), 1, paymentMethodAttr(order.PaymentMethodType))

	h.publish(r.Context(), h.opts.OrderCreated, order)
	h.decorate(order)

	h.logger.Info("order created", "order_id", order.ID, "user_id", order.User, "total", order.TotalOrderPrice.String())
	h.writeJSON(w, http.StatusCreated, domain.Envelope[domain.Order]{Status: "success", Data: *order, URL: order.PaymentURL})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	order, ok := h.ownedOrder(w, r)
	if !ok {
		return
	}

	h.decorate(order)
	h.writeJSON(w, http.StatusOK, domain.Envelope[domain.Order]{Status: "success", Data: *order})
}

func (h *Handler) HandleListUserOrders(w http.ResponseWriter, r *http.Request) {
	page := positiveInt(r.URL.Query().Get("page"), 1)
	limit := min(positiveInt(r.URL.Query().Get("limit"), defaultPageSize), maxPageSize)
	userID := callerFrom(r.Context()).UserID

	orders, total, err := h.orders.ListByUser(r.Context(), userID, page, limit)
	if err != nil {
		h.logger.Error("failed to list orders", "error", err, "user_id", userID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	for i := range orders {
		h.decorate(&orders[i])
	}

	h.logger.Info("orders listed", "user_id", userID, "count", len(orders), "page", page)
	h.writeJSON(w, http.StatusOK, domain.Envelope[[]domain.Order]{
		Status:  "success",
		Data:    orders,
		Results: total,
		Pagination: &domain.Pagination{
			CurrentPage:   page,
			NumberOfPages: int(math.Ceil(float64(total) / float64(limit))),
			Limit:         limit,
		},
	})
}

func (h *Handler) HandlePay(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.ownedOrder(w, r); !ok {
		return
	}

	order, err := h.markPaid(r.Context(), r.PathValue("id"))
	if err != nil {
		h.logger.Error("failed to mark order paid", "error", err, "order_id", r.PathValue("id"))
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, domain.Envelope[domain.Order]{Status: "success", Data: *order})
}

func (h *Handler) HandleDeliver(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.ownedOrder(w, r); !ok {
		return
	}

	id := r.PathValue("id")
	order, changed, err := h.orders.MarkDelivered(r.Context(), id)
	if errors.Is(err, ErrNotPaid) {
		h.writeError(w, http.StatusConflict, "order is not paid")
		return
	}
	if err != nil {
		h.logger.Error("failed to mark order delivered", "error", err, "order_id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if order == nil {
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}

	if changed {
		ordersDelivered.Add(r.Context(), 1)
		h.logger.Info("order delivered", "order_id", id)
	}
	h.writeJSON(w, http.StatusOK, domain.Envelope[domain.Order]{Status: "success", Data: *order})
}

type checkoutSessionResponse struct {
	Status  string `json:"status"`
	Session struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	} `json:"session"`
}

// HandleCheckoutSession returns a hosted payment page for the order. The
// url query parameter is the storefront origin the page returns to.
func (h *Handler) HandleCheckoutSession(w http.ResponseWriter, r *http.Request) {
	order, ok := h.ownedOrder(w, r)
	if !ok {
		return
	}
	if order.IsPaid {
		h.writeError(w, http.StatusBadRequest, "order is already paid")
		return
	}

	origin := r.URL.Query().Get("url")
	if _, err := parseOrigin(origin); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid return url")
		return
	}

	var resp checkoutSessionResponse
	resp.Status = "success"
	resp.Session.ID = "cs_" + order.ID
	resp.Session.URL = h.paymentURL(order.ID, origin)

	h.logger.Info("checkout session created", "order_id", order.ID)
	h.writeJSON(w, http.StatusOK, resp)
}

// HandleHostedPayment stands in for a payment provider's hosted page: it
// settles the order and sends the browser back to the storefront. Cash
// orders are settled on delivery and never through this page.
func (h *Handler) HandleHostedPayment(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	existing, err := h.orders.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to load order for hosted payment", "error", err, "order_id", id)
		http.Error(w, "payment failed", http.StatusInternalServerError)
		return
	}
	if existing == nil {
		http.Error(w, "order not found", http.StatusNotFound)
		return
	}
	if existing.PaymentMethodType == domain.PaymentMethodCash {
		h.logger.Warn("hosted payment refused for cash order", "order_id", id)
		http.Error(w, "cash orders cannot be paid online", http.StatusConflict)
		return
	}

	order, err := h.markPaid(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to settle hosted payment", "error", err, "order_id", id)
		http.Error(w, "payment failed", http.StatusInternalServerError)
		return
	}
	if order == nil {
		http.Error(w, "order not found", http.StatusNotFound)
		return
	}

	origin, err := parseOrigin(r.URL.Query().Get("return"))
	if err != nil {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("Payment complete. You can close this window.\n"))
		return
	}

	target := origin.JoinPath(successPath)
	target.RawQuery = url.Values{"orderId": {order.ID}}.Encode()
	http.Redirect(w, r, target.String(), http.StatusSeeOther)
}

// markPaid returns nil, nil for unknown orders. The paid event is published
// only on the first transition.
func (h *Handler) markPaid(ctx context.Context, id string) (*domain.Order, error) {
	order, changed, err := h.orders.MarkPaid(ctx, id)
	if err != nil || order == nil {
		return order, err
	}
	if changed {
		ordersPaid.Add(ctx, 1, paymentMethodAttr(order.PaymentMethodType))
		h.publish(ctx, h.opts.OrderPaid, order)
		h.logger.Info("order paid", "order_id", id)
	}
	return order, nil
}

// ownedOrder loads the {id} order and hides it from anyone but its owner and
// service callers.
func (h *Handler) ownedOrder(w http.ResponseWriter, r *http.Request) (*domain.Order, bool) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return nil, false
	}

	order, err := h.orders.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get order", "error", err, "order_id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return nil, false
	}

	c := callerFrom(r.Context())
	if order == nil || (!c.Service && order.User != c.UserID) {
		h.writeError(w, http.StatusNotFound, "order not found")
		return nil, false
	}
	return order, true
}

// decorate attaches a hosted payment link to unpaid orders whose method is
// settled off-site.
func (h *Handler) decorate(order *domain.Order) {
	switch order.PaymentMethodType {
	case domain.PaymentMethodCash, domain.PaymentMethodCard:
		return
	}
	if !order.IsPaid {
		order.PaymentURL = h.paymentURL(order.ID, "")
	}
}

func (h *Handler) paymentURL(orderID, origin string) string {
	u := h.opts.PublicURL + "/pay/" + url.PathEscape(orderID)
	if origin != "" {
		u += "?" + url.Values{"return": {origin}}.Encode()
	}
	return u
}

func (h *Handler) publish(ctx context.Context, publisher Publisher, order *domain.Order) {
	if publisher == nil {
		return
	}
	event := domain.OrderEvent{
		OrderID:       order.ID,
		UserID:        order.User,
		Status:        order.Status,
		PaymentMethod: order.PaymentMethodType,
		Items:         order.CartItems,
		Timestamp:     time.Now().UTC(),
	}
	if err := publisher.Publish(ctx, order.ID, event); err != nil {
		h.logger.Error("failed to publish order event", "error", err, "order_id", order.ID, "status", order.Status)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	state := "fail"
	if status >= http.StatusInternalServerError {
		state = "error"
	}
	h.writeJSON(w, status, map[string]string{"status": state, "message": message})
}

func parseOrigin(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errors.New("origin must be an absolute http url")
	}
	return &url.URL{Scheme: u.Scheme, Host: u.Host}, nil
}

func positiveInt(raw string, def int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	return n
}
