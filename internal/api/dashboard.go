package api

import (
	"net/http"

	"github.com/Priya8975/payment-switch/internal/connector"
	"github.com/Priya8975/payment-switch/internal/engine"
	"github.com/Priya8975/payment-switch/internal/store"
	ws "github.com/Priya8975/payment-switch/internal/websocket"
)

type DashboardHandler struct {
	store    *store.PostgresStore
	queue    *engine.ConfirmQueue
	cb       *engine.CircuitBreaker
	registry *connector.Registry
	hub      *ws.Hub
}

func NewDashboardHandler(s *store.PostgresStore, q *engine.ConfirmQueue, cb *engine.CircuitBreaker, registry *connector.Registry, hub *ws.Hub) *DashboardHandler {
	return &DashboardHandler{store: s, queue: q, cb: cb, registry: registry, hub: hub}
}

// Metrics returns aggregated switch metrics for the dashboard.
func (h *DashboardHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.store.GetSwitchMetrics(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get metrics")
		return
	}

	queueDepth, err := h.queue.QueueDepth(r.Context())
	if err != nil {
		queueDepth = 0
	}

	type metricsResponse struct {
		store.SwitchMetrics
		QueueDepth       int64 `json:"queue_depth"`
		WebSocketClients int   `json:"websocket_clients"`
	}

	respondJSON(w, http.StatusOK, metricsResponse{
		SwitchMetrics:    *metrics,
		QueueDepth:       queueDepth,
		WebSocketClients: h.hub.ClientCount(),
	})
}

// ConnectorHealth returns circuit breaker state for every registered connector.
func (h *DashboardHandler) ConnectorHealth(w http.ResponseWriter, r *http.Request) {
	type connectorHealth struct {
		Connector      string                     `json:"connector"`
		CircuitBreaker engine.CircuitBreakerState `json:"circuit_breaker"`
	}

	names := h.registry.Names()
	result := make([]connectorHealth, 0, len(names))
	for _, name := range names {
		result = append(result, connectorHealth{
			Connector:      name,
			CircuitBreaker: h.cb.GetState(r.Context(), name),
		})
	}

	respondJSON(w, http.StatusOK, result)
}
