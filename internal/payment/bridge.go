package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront-checkout/internal/domain"
)

const (
	DefaultCurrency = "usd"

	intentSucceeded = "succeeded"
)

var (
	ErrNotInitialized  = errors.New("payment SDK not initialized")
	ErrInvalidAmount   = errors.New("amount must be positive")
	ErrMissingSecret   = errors.New("client secret is required")
	ErrUnexpectedReply = errors.New("payment intent response carried no client secret")
)

// Result is what a confirmation hands back to the caller. Error is a
// user-facing message and is only set when Success is false.
type Result struct {
	Success         bool   `json:"success"`
	PaymentIntentID string `json:"paymentIntentId,omitempty"`
	Error           string `json:"error,omitempty"`
}

type Intent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"clientSecret"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	Status       string `json:"status,omitempty"`
}

// Bridge is the card payment surface the checkout talks to.
type Bridge interface {
	MountCardInput(ctx context.Context, containerID string) error
	MountHostedPaymentUI(ctx context.Context, containerID, clientSecret string) error
	ConfirmWithCard(ctx context.Context, clientSecret string) Result
	ConfirmWithMountedUI(ctx context.Context) Result
	Teardown()
}

type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type elementKind int

const (
	elementCard elementKind = iota + 1
	elementHosted
)

type element struct {
	kind         elementKind
	containerID  string
	clientSecret string
}

// HTTPBridge confirms payment intents through the commerce API's payments
// routes. Mounting only records which element the user is interacting with.
type HTTPBridge struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	logger     *slog.Logger

	mu      sync.Mutex
	mounted *element
}

var _ Bridge = (*HTTPBridge)(nil)

func NewHTTPBridge(baseURL string, httpClient *http.Client, tokens TokenSource, logger *slog.Logger) *HTTPBridge {
	return &HTTPBridge{
		baseURL:    strings.TrimRight(baseURL, "/") + "/",
		httpClient: httpClient,
		tokens:     tokens,
		logger:     logger,
	}
}

// CreatePaymentIntent registers an intent for amount in major units. The
// amount is sent in minor units, rounded to the nearest cent.
func (b *HTTPBridge) CreatePaymentIntent(ctx context.Context, amount decimal.Decimal, currency string) (*Intent, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if currency == "" {
		currency = DefaultCurrency
	}

	body := map[string]any{
		"amount":   ToMinorUnits(amount),
		"currency": currency,
	}

	var env domain.Envelope[Intent]
	if err := b.post(ctx, "payments/create-payment-intent", body, &env); err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}
	if env.Data.ClientSecret == "" {
		return nil, fmt.Errorf("create payment intent: %w", ErrUnexpectedReply)
	}

	b.logger.Info("payment intent created", "payment_intent_id", env.Data.ID, "amount", env.Data.Amount, "currency", env.Data.Currency)
	return &env.Data, nil
}

func (b *HTTPBridge) MountCardInput(_ context.Context, containerID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.mounted = &element{kind: elementCard, containerID: containerID}
	b.logger.Debug("card input mounted", "container_id", containerID)
	return nil
}

func (b *HTTPBridge) MountHostedPaymentUI(_ context.Context, containerID, clientSecret string) error {
	if clientSecret == "" {
		return ErrMissingSecret
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.mounted = &element{kind: elementHosted, containerID: containerID, clientSecret: clientSecret}
	b.logger.Debug("hosted payment ui mounted", "container_id", containerID)
	return nil
}

func (b *HTTPBridge) ConfirmWithCard(ctx context.Context, clientSecret string) Result {
	if !b.isMounted(elementCard) {
		return Result{Error: ErrNotInitialized.Error()}
	}
	return b.confirm(ctx, clientSecret)
}

func (b *HTTPBridge) ConfirmWithMountedUI(ctx context.Context) Result {
	b.mu.Lock()
	mounted := b.mounted
	b.mu.Unlock()

	if mounted == nil || mounted.kind != elementHosted {
		return Result{Error: ErrNotInitialized.Error()}
	}
	return b.confirm(ctx, mounted.clientSecret)
}

func (b *HTTPBridge) Teardown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mounted = nil
}

func (b *HTTPBridge) isMounted(kind elementKind) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mounted != nil && b.mounted.kind == kind
}

func (b *HTTPBridge) confirm(ctx context.Context, clientSecret string) Result {
	intentID := IntentIDFromSecret(clientSecret)
	if intentID == "" {
		return Result{Error: "Payment failed"}
	}

	body := map[string]string{
		"paymentIntentId": intentID,
		"clientSecret":    clientSecret,
	}

	var env domain.Envelope[Intent]
	if err := b.post(ctx, "payments/confirm-payment-intent", body, &env); err != nil {
		b.logger.Error("failed to confirm payment intent", "error", err, "payment_intent_id", intentID)
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.message != "" {
			return Result{PaymentIntentID: intentID, Error: apiErr.message}
		}
		return Result{PaymentIntentID: intentID, Error: "Payment processing failed"}
	}

	if env.Data.Status != intentSucceeded {
		b.logger.Warn("payment intent not succeeded", "payment_intent_id", intentID, "status", env.Data.Status)
		return Result{PaymentIntentID: intentID, Error: "Payment failed"}
	}

	b.logger.Info("payment intent confirmed", "payment_intent_id", intentID)
	return Result{Success: true, PaymentIntentID: intentID}
}

type apiError struct {
	status  int
	message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("payments api returned status %d: %s", e.status, e.message)
}

func (b *HTTPBridge) post(ctx context.Context, path string, body, out any) error {
	token, err := b.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("read bearer token: %w", err)
	}

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errBody struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(respBody, &errBody)
		return &apiError{status: resp.StatusCode, message: errBody.Message}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// ToMinorUnits converts a major-unit amount to cents.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// IntentIDFromSecret extracts the intent id from a "<id>_secret_<suffix>"
// client secret.
func IntentIDFromSecret(clientSecret string) string {
	id, _, ok := strings.Cut(clientSecret, "_secret_")
	if !ok {
		return ""
	}
	return id
}
