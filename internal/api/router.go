package api

import (
	"net/http"

	"github.com/Priya8975/payment-switch/internal/connector"
	"github.com/Priya8975/payment-switch/internal/engine"
	"github.com/Priya8975/payment-switch/internal/store"
	ws "github.com/Priya8975/payment-switch/internal/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(pgStore *store.PostgresStore, queue *engine.ConfirmQueue, cb *engine.CircuitBreaker, registry *connector.Registry, hub *ws.Hub) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// CORS for dashboard
	r.Use(corsMiddleware)

	// Handlers
	paymentHandler := NewPaymentHandler(pgStore, queue)
	attemptHandler := NewAttemptHandler(pgStore)
	gsmHandler := NewGsmHandler(pgStore)
	dashHandler := NewDashboardHandler(pgStore, queue, cb, registry, hub)

	// WebSocket endpoint
	r.Get("/ws", hub.HandleWebSocket)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", HealthHandler(pgStore))

		r.Route("/payments", func(r chi.Router) {
			r.Post("/", paymentHandler.Create)
			r.Get("/{id}", paymentHandler.Get)
			r.Post("/{id}/confirm", paymentHandler.Confirm)
		})

		r.Route("/attempts", func(r chi.Router) {
			r.Get("/", attemptHandler.List)
			r.Get("/{id}", attemptHandler.Get)
		})

		r.Route("/gsm", func(r chi.Router) {
			r.Post("/", gsmHandler.Upsert)
			r.Get("/", gsmHandler.List)
		})

		r.Get("/metrics", dashHandler.Metrics)
		r.Get("/connectors-health", dashHandler.ConnectorHealth)
	})

	return r
}

// corsMiddleware adds CORS headers for dashboard development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
