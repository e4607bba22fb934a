package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/joao-fontenele/storefront-checkout/internal/cart"
	"github.com/joao-fontenele/storefront-checkout/internal/domain"
	"github.com/joao-fontenele/storefront-checkout/internal/orders"
	"github.com/joao-fontenele/storefront-checkout/internal/platform"
)

const (
	ConfirmationPath = "/checkout/success"
	CartPath         = "/cart"

	DefaultSuccessDelay = 2 * time.Second
	DefaultPollInterval = time.Second
)

// OrderGateway is the part of the commerce API the checkout needs.
type OrderGateway interface {
	CreateOrder(ctx context.Context, items []domain.CartLineItem, req orders.CreateOrderRequest) (*domain.Order, error)
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	MarkPaid(ctx context.Context, id string) (*domain.Order, error)
	CheckoutSessionURL(ctx context.Context, orderID, origin string) (string, error)
}

type Cart interface {
	Snapshot() cart.Snapshot
	Clear()
}

type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

type Option func(*Orchestrator)

func WithSuccessDelay(d time.Duration) Option {
	return func(o *Orchestrator) { o.successDelay = d }
}

func WithPollInterval(d time.Duration) Option {
	return func(o *Orchestrator) { o.pollInterval = d }
}

func WithPublisher(p Publisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

func WithShipping(amount decimal.Decimal) Option {
	return func(o *Orchestrator) { o.shipping = amount }
}

// Orchestrator drives one checkout session from the shipping form to a
// completed or failed payment.
type Orchestrator struct {
	gateway   OrderGateway
	cart      Cart
	nav       platform.Navigator
	publisher Publisher
	logger    *slog.Logger
	metrics   *instruments

	checkoutID   string
	successDelay time.Duration
	pollInterval time.Duration
	shipping     decimal.Decimal

	mu          sync.Mutex
	state       State
	pending     *domain.Order
	basis       string
	inFlight    bool
	closed      bool
	timer       *time.Timer
	stopWatch   context.CancelFunc
	subscribers map[int]func(State)
	nextSubID   int
	wg          sync.WaitGroup
}

func NewOrchestrator(gateway OrderGateway, store Cart, nav platform.Navigator, logger *slog.Logger, opts ...Option) (*Orchestrator, error) {
	metrics, err := newInstruments()
	if err != nil {
		return nil, fmt.Errorf("create checkout instruments: %w", err)
	}

	o := &Orchestrator{
		gateway:      gateway,
		cart:         store,
		nav:          nav,
		logger:       logger,
		metrics:      metrics,
		checkoutID:   uuid.New().String(),
		successDelay: DefaultSuccessDelay,
		pollInterval: DefaultPollInterval,
		shipping:     decimal.Zero,
		state: State{
			Phase:         PhaseCollectingAddress,
			PaymentMethod: domain.PaymentMethodCash,
		},
		subscribers: make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(o)
	}

	return o, nil
}

func (o *Orchestrator) ID() string {
	return o.checkoutID
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.clone()
}

// CurrentOrder returns the last order created in this session, or nil.
func (o *Orchestrator) CurrentOrder() *domain.Order {
	return o.State().CurrentOrder
}

func (o *Orchestrator) ClearCurrentOrder() {
	o.update(func(s *State) { s.CurrentOrder = nil })
}

// Summary prices the cart as it is right now.
func (o *Orchestrator) Summary() domain.OrderSummary {
	return domain.Summarize(o.cart.Snapshot().Items(), o.shipping)
}

// Subscribe registers fn for every state change. The returned func removes it.
func (o *Orchestrator) Subscribe(fn func(State)) func() {
	o.mu.Lock()
	id := o.nextSubID
	o.nextSubID++
	o.subscribers[id] = fn
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		delete(o.subscribers, id)
		o.mu.Unlock()
	}
}

// SetAddress validates the shipping form and moves on to payment selection.
func (o *Orchestrator) SetAddress(addr domain.ShippingAddress) error {
	err := ValidateAddress(addr)

	var rejected bool
	o.update(func(s *State) {
		if o.inFlight {
			rejected = true
			return
		}
		s.Address = addr
		s.Error = ""
		if err != nil {
			s.FieldErrors = err.(*ValidationError).Fields
			return
		}
		s.FieldErrors = nil
		if s.Phase == PhaseCollectingAddress {
			s.Phase = PhaseSelectingPayment
		}
	})
	if rejected {
		return ErrSubmissionInFlight
	}
	return err
}

// SelectPaymentMethod records the method used by the next Submit. Methods
// outside the catalogue are allowed; they take the external payment branch.
func (o *Orchestrator) SelectPaymentMethod(method domain.PaymentMethodType) error {
	if method == "" {
		return &ValidationError{Fields: map[string]string{"paymentMethod": "paymentMethod is required"}}
	}

	var rejected bool
	o.update(func(s *State) {
		if o.inFlight {
			rejected = true
			return
		}
		s.PaymentMethod = method
	})
	if rejected {
		return ErrSubmissionInFlight
	}
	return nil
}

// Back returns to the shipping form.
func (o *Orchestrator) Back() {
	o.update(func(s *State) {
		if s.Phase == PhaseSelectingPayment || s.Phase == PhaseFailed {
			s.Phase = PhaseCollectingAddress
		}
	})
}

// Submit creates the order and runs the payment step for the selected
// method. Only one submission runs at a time. After a failed payment step
// the next Submit reuses the order already created, as long as the address,
// method and cart it was built from are unchanged.
func (o *Orchestrator) Submit(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if o.inFlight {
		o.mu.Unlock()
		return ErrSubmissionInFlight
	}
	addr, method := o.state.Address, o.state.PaymentMethod
	o.mu.Unlock()

	snapshot := o.cart.Snapshot()

	if snapshot.IsEmpty() {
		o.update(func(s *State) { s.Error = MsgInvalidForm })
		o.logger.Warn("checkout submitted with empty cart", "checkout_id", o.checkoutID)
		o.nav.Navigate(CartPath, nil)
		return ErrEmptyCart
	}

	if err := Validate(addr, method); err != nil {
		o.update(func(s *State) {
			s.FieldErrors = err.(*ValidationError).Fields
			s.Error = MsgInvalidForm
		})
		return err
	}

	var (
		acquired bool
		pending  *domain.Order
		stale    *domain.Order
	)
	basis := orderBasis(addr, method, snapshot.Items())
	o.update(func(s *State) {
		if o.inFlight {
			return
		}
		o.inFlight = true
		acquired = true
		if o.pending != nil && o.basis != basis {
			stale = o.pending
			o.pending = nil
		}
		pending = o.pending
		s.Phase = PhaseProcessing
		s.Error = ""
		s.Success = ""
		s.FieldErrors = nil
	})
	if !acquired {
		return ErrSubmissionInFlight
	}
	if stale != nil {
		o.logger.Info("checkout changed since order was created, placing a new order", "checkout_id", o.checkoutID, "stale_order_id", stale.ID)
	}

	handedOff := false
	defer func() {
		if !handedOff {
			o.release()
		}
	}()

	ctx, span := tracer.Start(ctx, "checkout.submit", trace.WithAttributes(
		attribute.String("checkout.id", o.checkoutID),
		attribute.String("checkout.payment_method", string(method)),
		attribute.Int("checkout.items", snapshot.Len()),
	))
	defer span.End()

	order := pending
	if order == nil {
		created, err := o.gateway.CreateOrder(ctx, snapshot.Items(), orders.CreateOrderRequest{
			ShippingAddress:   addr,
			PaymentMethodType: method,
		})
		if err != nil {
			return o.fail(ctx, span, ErrOrderCreation, err, method, "")
		}
		order = created

		o.update(func(s *State) {
			o.pending = order
			o.basis = basis
			s.CurrentOrder = order
		})
		o.metrics.orderCreated(ctx, string(method))
		o.publish(ctx, domain.CheckoutOrderCreated, order.ID, method, order.TotalOrderPrice, "")
		o.logger.Info("order created", "checkout_id", o.checkoutID, "order_id", order.ID, "payment_method", method)
	} else {
		o.logger.Info("retrying payment for existing order", "checkout_id", o.checkoutID, "order_id", order.ID, "payment_method", method)
	}
	span.SetAttributes(attribute.String("order.id", order.ID))

	switch method {
	case domain.PaymentMethodCash:
		return o.payCash(ctx, span, order, method)
	case domain.PaymentMethodCard:
		return o.payCard(ctx, span, order, method)
	default:
		var err error
		handedOff, err = o.payExternal(ctx, span, order, method)
		return err
	}
}

func (o *Orchestrator) payCash(ctx context.Context, span trace.Span, order *domain.Order, method domain.PaymentMethodType) error {
	paid, err := o.gateway.MarkPaid(ctx, order.ID)
	if err != nil {
		return o.fail(ctx, span, ErrPaymentProcessing, err, method, order.ID)
	}
	if paid == nil || paid.ID == "" {
		paid = order
	}

	o.cart.Clear()
	o.succeed(ctx, domain.CheckoutPaymentSucceeded, paid, method, MsgCashSuccess)
	o.scheduleConfirmation(order.ID)
	return nil
}

func (o *Orchestrator) payCard(ctx context.Context, span trace.Span, order *domain.Order, method domain.PaymentMethodType) error {
	sessionURL, err := o.gateway.CheckoutSessionURL(ctx, order.ID, o.nav.Origin())
	if err == nil && sessionURL == "" {
		err = orders.ErrNoSessionURL
	}
	if err != nil {
		return o.fail(ctx, span, ErrSessionURL, err, method, order.ID)
	}

	o.cart.Clear()
	o.succeed(ctx, domain.CheckoutRedirected, order, method, MsgRedirecting)
	o.nav.Redirect(sessionURL)
	return nil
}

// payExternal reports whether it handed the in-flight flag to a window
// watcher.
func (o *Orchestrator) payExternal(ctx context.Context, span trace.Span, order *domain.Order, method domain.PaymentMethodType) (bool, error) {
	if order.PaymentURL == "" {
		o.cart.Clear()
		o.succeed(ctx, domain.CheckoutPaymentSucceeded, order, method, "")
		o.nav.Navigate(ConfirmationPath, confirmationQuery(order.ID))
		return false, nil
	}

	win, ok := o.nav.OpenWindow(order.PaymentURL)
	if !ok {
		return false, o.fail(ctx, span, ErrPopupBlocked, nil, method, order.ID)
	}

	o.update(func(s *State) { s.Success = MsgRedirecting })
	o.publish(ctx, domain.CheckoutRedirected, order.ID, method, order.TotalOrderPrice, "")
	o.logger.Info("payment window opened", "checkout_id", o.checkoutID, "order_id", order.ID, "payment_method", method)

	if err := o.watchWindow(ctx, win, order, method); err != nil {
		return false, err
	}
	return true, nil
}

// watchWindow polls the payment window until it closes or the storefront
// regains focus, then reconciles the order. It owns the in-flight flag until
// it finishes.
func (o *Orchestrator) watchWindow(ctx context.Context, win platform.Window, order *domain.Order, method domain.PaymentMethodType) error {
	watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	// only focus changes after the window opened count
	focus := o.nav.Focus()
	for drained := false; !drained; {
		select {
		case <-focus:
		default:
			drained = true
		}
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		cancel()
		return ErrClosed
	}
	o.stopWatch = cancel
	o.wg.Add(1)
	o.mu.Unlock()

	go func() {
		defer o.wg.Done()
		defer cancel()
		defer o.release()

		ticker := time.NewTicker(o.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-watchCtx.Done():
				return
			case <-focus:
				o.logger.Debug("storefront refocused", "order_id", order.ID)
				o.reconcile(watchCtx, order, method)
				return
			case <-ticker.C:
				if win.Closed() {
					o.logger.Debug("payment window closed", "order_id", order.ID)
					o.reconcile(watchCtx, order, method)
					return
				}
			}
		}
	}()

	return nil
}

// reconcile re-reads the order after the user returns from an external
// payment page and lands on the confirmation view either way.
func (o *Orchestrator) reconcile(ctx context.Context, order *domain.Order, method domain.PaymentMethodType) {
	ctx, span := tracer.Start(ctx, "checkout.reconcile", trace.WithAttributes(
		attribute.String("checkout.id", o.checkoutID),
		attribute.String("order.id", order.ID),
	))
	defer span.End()

	latest, err := o.gateway.GetOrder(ctx, order.ID)
	switch {
	case err != nil:
		_ = o.fail(ctx, span, ErrPaymentProcessing, err, method, order.ID)
	case latest.IsPaid:
		o.cart.Clear()
		o.succeed(ctx, domain.CheckoutPaymentSucceeded, latest, method, "")
	default:
		o.update(func(s *State) { s.CurrentOrder = latest })
		_ = o.fail(ctx, span, ErrPaymentProcessing, errAwaitingPayment, method, order.ID)
	}

	o.nav.Navigate(ConfirmationPath, confirmationQuery(order.ID))
}

func (o *Orchestrator) scheduleConfirmation(orderID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return
	}
	if o.timer != nil {
		o.timer.Stop()
	}
	o.timer = time.AfterFunc(o.successDelay, func() {
		o.nav.Navigate(ConfirmationPath, confirmationQuery(orderID))
	})
}

func (o *Orchestrator) succeed(ctx context.Context, event domain.CheckoutEventType, order *domain.Order, method domain.PaymentMethodType, message string) {
	o.update(func(s *State) {
		o.pending = nil
		s.Phase = PhaseSucceeded
		s.CurrentOrder = order
		s.Success = message
		s.Error = ""
	})
	o.metrics.success(ctx, string(method))
	o.publish(ctx, event, order.ID, method, order.TotalOrderPrice, "")
	o.logger.Info("checkout payment step completed", "checkout_id", o.checkoutID, "order_id", order.ID, "payment_method", method)
}

// fail leaves the orchestrator in a retryable state and returns the
// wrapped error.
func (o *Orchestrator) fail(ctx context.Context, span trace.Span, kind, cause error, method domain.PaymentMethodType, orderID string) error {
	err := kind
	if cause != nil {
		err = fmt.Errorf("%w: %w", kind, cause)
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	o.logger.Error("checkout step failed", "error", err, "checkout_id", o.checkoutID, "order_id", orderID, "payment_method", method)
	o.metrics.failure(ctx, string(method), stageOf(kind))

	o.update(func(s *State) {
		s.Phase = PhaseFailed
		s.Error = UserMessage(kind)
		s.Success = ""
	})

	if orderID != "" {
		o.publish(ctx, domain.CheckoutPaymentFailed, orderID, method, decimal.Zero, err.Error())
	}
	return err
}

func (o *Orchestrator) publish(ctx context.Context, kind domain.CheckoutEventType, orderID string, method domain.PaymentMethodType, total decimal.Decimal, errMsg string) {
	if o.publisher == nil {
		return
	}

	event := domain.CheckoutEvent{
		Type:          kind,
		CheckoutID:    o.checkoutID,
		OrderID:       orderID,
		PaymentMethod: method,
		Total:         total,
		Error:         errMsg,
		Timestamp:     time.Now().UTC(),
	}
	if err := o.publisher.Publish(ctx, o.checkoutID, event); err != nil {
		o.logger.Error("failed to publish checkout event", "error", err, "type", kind, "order_id", orderID)
	}
}

func (o *Orchestrator) release() {
	o.mu.Lock()
	o.inFlight = false
	o.stopWatch = nil
	o.mu.Unlock()
}

func (o *Orchestrator) update(mutate func(*State)) {
	o.mu.Lock()
	mutate(&o.state)
	snap := o.state.clone()
	subs := make([]func(State), 0, len(o.subscribers))
	for _, fn := range o.subscribers {
		subs = append(subs, fn)
	}
	o.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

// Close stops the pending confirmation timer and any window watcher.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	if o.stopWatch != nil {
		o.stopWatch()
	}
	o.mu.Unlock()

	o.wg.Wait()
}

// orderBasis fingerprints what an order is created from.
func orderBasis(addr domain.ShippingAddress, method domain.PaymentMethodType, items []domain.CartLineItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%s|%s|%s|%s", method, addr.Details, addr.Phone, addr.City, addr.PostalCode)
	for _, item := range items {
		fmt.Fprintf(&b, "|%s:%d:%s", item.Product.ID, item.Quantity, item.Product.Price.String())
	}
	return b.String()
}

func confirmationQuery(orderID string) url.Values {
	return url.Values{"orderId": {orderID}}
}

func stageOf(kind error) string {
	switch {
	case errors.Is(kind, ErrOrderCreation):
		return "create_order"
	case errors.Is(kind, ErrSessionURL):
		return "session_url"
	case errors.Is(kind, ErrPopupBlocked):
		return "open_window"
	default:
		return "payment"
	}
}
