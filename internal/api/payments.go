package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Priya8975/payment-switch/internal/domain"
	"github.com/Priya8975/payment-switch/internal/engine"
	"github.com/Priya8975/payment-switch/internal/store"
	"github.com/go-chi/chi/v5"
)

type PaymentHandler struct {
	store *store.PostgresStore
	queue *engine.ConfirmQueue
}

func NewPaymentHandler(s *store.PostgresStore, q *engine.ConfirmQueue) *PaymentHandler {
	return &PaymentHandler{store: s, queue: q}
}

type createPaymentRequest struct {
	MerchantID         string                    `json:"merchant_id"`
	ProfileID          string                    `json:"profile_id"`
	AmountCents        int64                     `json:"amount_cents"`
	Currency           string                    `json:"currency"`
	AuthenticationType domain.AuthenticationType `json:"authentication_type"`
	FutureUsage        domain.FutureUsage        `json:"future_usage"`
	CaptureMethod      string                    `json:"capture_method"`
	BusinessCountry    string                    `json:"business_country"`
}

func (h *PaymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.MerchantID == "" {
		respondError(w, http.StatusBadRequest, "merchant_id is required")
		return
	}
	if req.ProfileID == "" {
		respondError(w, http.StatusBadRequest, "profile_id is required")
		return
	}
	if req.AmountCents <= 0 {
		respondError(w, http.StatusBadRequest, "amount_cents must be positive")
		return
	}
	if req.Currency == "" {
		respondError(w, http.StatusBadRequest, "currency is required")
		return
	}

	if req.AuthenticationType == "" {
		req.AuthenticationType = domain.AuthNoThreeDS
	}
	if req.FutureUsage == "" {
		req.FutureUsage = domain.UsageOnSession
	}
	if req.CaptureMethod == "" {
		req.CaptureMethod = "automatic"
	}

	intent, err := h.store.CreateIntent(r.Context(), &domain.PaymentIntent{
		MerchantID:         req.MerchantID,
		ProfileID:          req.ProfileID,
		Status:             domain.IntentRequiresConfirmation,
		AmountCents:        req.AmountCents,
		Currency:           req.Currency,
		AuthenticationType: req.AuthenticationType,
		FutureUsage:        req.FutureUsage,
		CaptureMethod:      req.CaptureMethod,
		BusinessCountry:    req.BusinessCountry,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create payment")
		return
	}

	respondJSON(w, http.StatusCreated, intent)
}

type confirmPaymentRequest struct {
	PaymentMethod *domain.PaymentMethodData `json:"payment_method"`
}

type confirmPaymentResponse struct {
	PaymentID string              `json:"payment_id"`
	Status    domain.IntentStatus `json:"status"`
	Queued    bool                `json:"queued"`
}

// Confirm stores the payment instrument on the intent and queues the
// confirmation for the worker pool.
func (h *PaymentHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req confirmPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PaymentMethod == nil {
		respondError(w, http.StatusBadRequest, "payment_method is required")
		return
	}

	intent, err := h.store.GetIntent(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "payment not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to get payment")
		return
	}

	if intent.Status != domain.IntentRequiresConfirmation {
		respondError(w, http.StatusConflict, "payment is not awaiting confirmation")
		return
	}

	if err := h.store.AttachPaymentMethod(r.Context(), id, req.PaymentMethod); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to store payment method")
		return
	}
	if err := h.store.UpdateIntentStatus(r.Context(), id, domain.IntentProcessing); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update payment")
		return
	}

	err = h.queue.Enqueue(r.Context(), engine.ConfirmJob{
		PaymentID:  intent.ID,
		MerchantID: intent.MerchantID,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to queue confirmation")
		return
	}

	respondJSON(w, http.StatusAccepted, confirmPaymentResponse{
		PaymentID: intent.ID,
		Status:    domain.IntentProcessing,
		Queued:    true,
	})
}

func (h *PaymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	intent, err := h.store.GetIntent(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "payment not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to get payment")
		return
	}

	type paymentDetail struct {
		domain.PaymentIntent
		ActiveAttempt *domain.PaymentAttempt `json:"active_attempt,omitempty"`
	}

	detail := paymentDetail{PaymentIntent: *intent}
	if intent.ActiveAttemptID != nil {
		attempt, err := h.store.GetActiveAttempt(r.Context(), id)
		if err == nil {
			detail.ActiveAttempt = attempt
		}
	}

	respondJSON(w, http.StatusOK, detail)
}
