package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/Priya8975/payment-switch/internal/domain"
	"github.com/Priya8975/payment-switch/internal/store"
)

type GsmHandler struct {
	store *store.PostgresStore
}

func NewGsmHandler(s *store.PostgresStore) *GsmHandler {
	return &GsmHandler{store: s}
}

type upsertGsmRequest struct {
	Connector      string             `json:"connector"`
	Flow           string             `json:"flow"`
	ErrorCode      string             `json:"error_code"`
	ErrorMessage   string             `json:"error_message"`
	Decision       domain.GsmDecision `json:"decision"`
	StepUpPossible bool               `json:"step_up_possible"`
	UnifiedCode    string             `json:"unified_code"`
	UnifiedMessage string             `json:"unified_message"`
}

// Upsert creates or replaces the retry policy for one failure signature.
func (h *GsmHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	var req upsertGsmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Connector == "" {
		respondError(w, http.StatusBadRequest, "connector is required")
		return
	}
	if req.Flow == "" {
		respondError(w, http.StatusBadRequest, "flow is required")
		return
	}
	switch req.Decision {
	case domain.GsmRetry, domain.GsmRequeue, domain.GsmDoDefault:
	default:
		respondError(w, http.StatusBadRequest, "decision must be retry, requeue, or do_default")
		return
	}

	rec, err := h.store.UpsertGsm(r.Context(), &domain.GsmRecord{
		Connector:      req.Connector,
		Flow:           req.Flow,
		ErrorCode:      req.ErrorCode,
		ErrorMessage:   req.ErrorMessage,
		Decision:       req.Decision,
		StepUpPossible: req.StepUpPossible,
		UnifiedCode:    req.UnifiedCode,
		UnifiedMessage: req.UnifiedMessage,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to upsert gsm rule")
		return
	}

	respondJSON(w, http.StatusCreated, rec)
}

func (h *GsmHandler) List(w http.ResponseWriter, r *http.Request) {
	connectorName := r.URL.Query().Get("connector")

	limit := 100
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 {
			limit = n
		}
	}

	records, err := h.store.ListGsm(r.Context(), connectorName, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list gsm rules")
		return
	}

	respondJSON(w, http.StatusOK, records)
}
