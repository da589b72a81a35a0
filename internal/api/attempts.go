package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Priya8975/payment-switch/internal/store"
	"github.com/go-chi/chi/v5"
)

type AttemptHandler struct {
	store *store.PostgresStore
}

func NewAttemptHandler(s *store.PostgresStore) *AttemptHandler {
	return &AttemptHandler{store: s}
}

// List returns the attempt history for one payment, oldest first.
func (h *AttemptHandler) List(w http.ResponseWriter, r *http.Request) {
	paymentID := r.URL.Query().Get("payment_id")
	if paymentID == "" {
		respondError(w, http.StatusBadRequest, "payment_id is required")
		return
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 {
			limit = n
		}
	}

	attempts, err := h.store.ListAttempts(r.Context(), paymentID, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list attempts")
		return
	}

	respondJSON(w, http.StatusOK, attempts)
}

func (h *AttemptHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	attempt, err := h.store.GetAttempt(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "attempt not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to get attempt")
		return
	}

	respondJSON(w, http.StatusOK, attempt)
}
