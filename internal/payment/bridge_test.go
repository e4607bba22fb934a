package payment

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
)

type staticToken string

func (t staticToken) Token(context.Context) (string, error) { return string(t), nil }

func newTestBridge(serverURL string) *HTTPBridge {
	return NewHTTPBridge(serverURL, http.DefaultClient, staticToken("user-1"), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCreatePaymentIntent(t *testing.T) {
	t.Run("sends amount in cents and default currency", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/payments/create-payment-intent" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			var body map[string]any
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			if body["amount"] != float64(1999) {
				t.Errorf("expected 1999 cents, got %v", body["amount"])
			}
			if body["currency"] != "usd" {
				t.Errorf("expected usd, got %v", body["currency"])
			}
			_, _ = w.Write([]byte(`{"status":"success","data":{"id":"pi_1","clientSecret":"pi_1_secret_x","amount":1999,"currency":"usd"}}`))
		}))
		defer server.Close()

		intent, err := newTestBridge(server.URL).CreatePaymentIntent(context.Background(), decimal.RequireFromString("19.99"), "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if intent.ClientSecret != "pi_1_secret_x" {
			t.Errorf("unexpected secret %q", intent.ClientSecret)
		}
	})

	t.Run("rejects non-positive amounts", func(t *testing.T) {
		_, err := newTestBridge("http://unused").CreatePaymentIntent(context.Background(), decimal.Zero, "usd")
		if !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("expected ErrInvalidAmount, got %v", err)
		}
	})
}

func TestConfirmWithoutMountedElement(t *testing.T) {
	bridge := newTestBridge("http://unused")

	if got := bridge.ConfirmWithCard(context.Background(), "pi_1_secret_x"); got.Success || got.Error != "payment SDK not initialized" {
		t.Errorf("unexpected card result: %+v", got)
	}
	if got := bridge.ConfirmWithMountedUI(context.Background()); got.Success || got.Error != "payment SDK not initialized" {
		t.Errorf("unexpected hosted result: %+v", got)
	}
}

func TestConfirmWithCard(t *testing.T) {
	t.Run("succeeded intent", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["paymentIntentId"] != "pi_1" || body["clientSecret"] != "pi_1_secret_x" {
				t.Errorf("unexpected body: %v", body)
			}
			_, _ = w.Write([]byte(`{"data":{"id":"pi_1","status":"succeeded"}}`))
		}))
		defer server.Close()

		bridge := newTestBridge(server.URL)
		if err := bridge.MountCardInput(context.Background(), "card-element"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		got := bridge.ConfirmWithCard(context.Background(), "pi_1_secret_x")
		if !got.Success || got.PaymentIntentID != "pi_1" {
			t.Errorf("unexpected result: %+v", got)
		}
	})

	t.Run("api rejection surfaces the message", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusPaymentRequired)
			_, _ = w.Write([]byte(`{"message":"Your card was declined."}`))
		}))
		defer server.Close()

		bridge := newTestBridge(server.URL)
		_ = bridge.MountCardInput(context.Background(), "card-element")

		got := bridge.ConfirmWithCard(context.Background(), "pi_1_secret_x")
		if got.Success || got.Error != "Your card was declined." {
			t.Errorf("unexpected result: %+v", got)
		}
	})

	t.Run("not succeeded status fails", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"data":{"id":"pi_1","status":"requires_action"}}`))
		}))
		defer server.Close()

		bridge := newTestBridge(server.URL)
		_ = bridge.MountCardInput(context.Background(), "card-element")

		got := bridge.ConfirmWithCard(context.Background(), "pi_1_secret_x")
		if got.Success || got.Error != "Payment failed" {
			t.Errorf("unexpected result: %+v", got)
		}
	})
}

func TestConfirmWithMountedUI(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"id":"pi_9","status":"succeeded"}}`))
	}))
	defer server.Close()

	bridge := newTestBridge(server.URL)
	if err := bridge.MountHostedPaymentUI(context.Background(), "payment-element", ""); !errors.Is(err, ErrMissingSecret) {
		t.Fatalf("expected ErrMissingSecret, got %v", err)
	}
	if err := bridge.MountHostedPaymentUI(context.Background(), "payment-element", "pi_9_secret_y"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := bridge.ConfirmWithCard(context.Background(), "pi_9_secret_y"); got.Error != "payment SDK not initialized" {
		t.Errorf("card confirm should need a card element, got %+v", got)
	}

	got := bridge.ConfirmWithMountedUI(context.Background())
	if !got.Success || got.PaymentIntentID != "pi_9" {
		t.Errorf("unexpected result: %+v", got)
	}

	bridge.Teardown()
	if got := bridge.ConfirmWithMountedUI(context.Background()); got.Success {
		t.Error("expected teardown to unmount the element")
	}
}

func TestToMinorUnits(t *testing.T) {
	cases := map[string]int64{
		"10":     1000,
		"19.99":  1999,
		"0.005":  1,
		"123.45": 12345,
	}
	for in, want := range cases {
		if got := ToMinorUnits(decimal.RequireFromString(in)); got != want {
			t.Errorf("ToMinorUnits(%s) = %d, want %d", in, got, want)
		}
	}
}

func TestIntentIDFromSecret(t *testing.T) {
	if got := IntentIDFromSecret("pi_3Mtw_secret_abc"); got != "pi_3Mtw" {
		t.Errorf("unexpected id %q", got)
	}
	if got := IntentIDFromSecret("garbage"); got != "" {
		t.Errorf("expected empty id, got %q", got)
	}
}
