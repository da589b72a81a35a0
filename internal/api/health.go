package api

import (
	"encoding/json"
	"net/http"

	"github.com/Priya8975/payment-switch/internal/store"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Database string `json:"database"`
}

// HealthHandler returns the health check handler. It pings the database so
// load balancers stop routing confirmations to a node that lost Postgres.
func HealthHandler(pgStore *store.PostgresStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:   "healthy",
			Version:  "1.0.0",
			Database: "up",
		}

		code := http.StatusOK
		if err := pgStore.Pool().Ping(r.Context()); err != nil {
			resp.Status = "degraded"
			resp.Database = "down"
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(resp)
	}
}
