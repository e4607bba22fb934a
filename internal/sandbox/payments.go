package sandbox

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/joao-fontenele/storefront-checkout/internal/domain"
)

const (
	intentRequiresPaymentMethod = "requires_payment_method"
	intentSucceeded             = "succeeded"
)

type createIntentRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// HandleCreateIntent registers a payment intent. Amounts are in minor units.
func (h *Handler) HandleCreateIntent(w http.ResponseWriter, r *http.Request) {
	var req createIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Amount <= 0 {
		h.writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}
	if req.Currency == "" {
		req.Currency = "usd"
	}

	id := "pi_" + compactUUID()
	intent := &PaymentIntent{
		ID:           id,
		ClientSecret: id + "_secret_" + compactUUID(),
		Amount:       req.Amount,
		Currency:     strings.ToLower(req.Currency),
		Status:       intentRequiresPaymentMethod,
	}

	if err := h.intents.CreateIntent(r.Context(), intent); err != nil {
		h.logger.Error("failed to create payment intent", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("payment intent created", "intent_id", intent.ID, "amount", intent.Amount, "currency", intent.Currency)
	h.writeJSON(w, http.StatusCreated, domain.Envelope[PaymentIntent]{Status: "success", Data: *intent})
}

type confirmIntentRequest struct {
	PaymentIntentID string `json:"paymentIntentId"`
	ClientSecret    string `json:"clientSecret"`
}

func (h *Handler) HandleConfirmIntent(w http.ResponseWriter, r *http.Request) {
	var req confirmIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PaymentIntentID == "" {
		req.PaymentIntentID, _, _ = strings.Cut(req.ClientSecret, "_secret_")
	}

	intent, err := h.intents.GetIntent(r.Context(), req.PaymentIntentID)
	if err != nil {
		h.logger.Error("failed to get payment intent", "error", err, "intent_id", req.PaymentIntentID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if intent == nil {
		h.writeError(w, http.StatusNotFound, "payment intent not found")
		return
	}
	if subtle.ConstantTimeCompare([]byte(intent.ClientSecret), []byte(req.ClientSecret)) != 1 {
		h.writeError(w, http.StatusBadRequest, "invalid client secret")
		return
	}

	if intent.Status != intentSucceeded {
		if err := h.intents.UpdateIntentStatus(r.Context(), intent.ID, intentSucceeded); err != nil {
			h.logger.Error("failed to confirm payment intent", "error", err, "intent_id", intent.ID)
			h.writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		intent.Status = intentSucceeded
		h.logger.Info("payment intent confirmed", "intent_id", intent.ID)
	}

	h.writeJSON(w, http.StatusOK, domain.Envelope[PaymentIntent]{Status: "success", Data: *intent})
}

func compactUUID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}
