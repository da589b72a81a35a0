package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Priya8975/payment-switch/internal/dispatch"
	"github.com/redis/go-redis/v9"
	"github.com/google/uuid"
)

// TelemetryStore records connector-call events in Postgres and named
// counters in Redis hashes keyed by counter name, fields tagged
// connector:flow. Telemetry must never fail a payment, so write errors are
// logged and swallowed.
type TelemetryStore struct {
	pg     *PostgresStore
	redis  *redis.Client
	logger *slog.Logger
}

func NewTelemetryStore(pg *PostgresStore, redisClient *redis.Client, logger *slog.Logger) *TelemetryStore {
	return &TelemetryStore{pg: pg, redis: redisClient, logger: logger}
}

func counterKey(counter string) string {
	return "ctr:" + counter
}

// Incr bumps a named counter tagged by connector and flow.
func (t *TelemetryStore) Incr(ctx context.Context, counter, connectorName, flow string) {
	field := connectorName + ":" + flow
	if err := t.redis.HIncrBy(ctx, counterKey(counter), field, 1).Err(); err != nil {
		t.logger.Error("failed to increment counter",
			"error", err,
			"counter", counter,
			"connector", connectorName,
			"flow", flow,
		)
	}
}

// Counters returns all fields of one named counter.
func (t *TelemetryStore) Counters(ctx context.Context, counter string) (map[string]string, error) {
	vals, err := t.redis.HGetAll(ctx, counterKey(counter)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading counter %s: %w", counter, err)
	}
	return vals, nil
}

// ConnectorEvent persists one connector-call audit record.
func (t *TelemetryStore) ConnectorEvent(ctx context.Context, ev dispatch.ConnectorEvent) {
	_, err := t.pg.pool.Exec(ctx, `
		INSERT INTO connector_events (
			id, attempt_id, payment_id, connector, flow, method, url,
			masked_body, latency_ms, status_code, outcome, error_code, error_message
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`,
		uuid.NewString(), ev.AttemptID, ev.PaymentID, ev.Connector, ev.Flow,
		ev.Method, ev.URL, ev.MaskedBody, ev.LatencyMs, ev.StatusCode,
		ev.Outcome, nullIfEmpty(ev.ErrorCode), nullIfEmpty(ev.ErrorMessage),
	)
	if err != nil {
		t.logger.Error("failed to record connector event",
			"error", err,
			"attempt_id", ev.AttemptID,
			"connector", ev.Connector,
		)
	}
}

// SwitchMetrics holds aggregated dispatch statistics for the dashboard.
type SwitchMetrics struct {
	TotalAttempts     int     `json:"total_attempts"`
	SucceededAttempts int     `json:"succeeded_attempts"`
	FailedAttempts    int     `json:"failed_attempts"`
	SuccessRate       float64 `json:"success_rate"`
	AvgLatencyMs      float64 `json:"avg_latency_ms"`
	TotalIntents      int     `json:"total_intents"`
	TotalEvents       int     `json:"total_connector_events"`
}

// GetSwitchMetrics aggregates attempt statistics from the database.
func (s *PostgresStore) GetSwitchMetrics(ctx context.Context) (*SwitchMetrics, error) {
	var m SwitchMetrics

	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status IN ('charged', 'authorized')) AS succeeded,
			COUNT(*) FILTER (WHERE status IN ('failure', 'authorization_failed', 'authentication_failed')) AS failed,
			COALESCE(AVG(external_latency_ms) FILTER (WHERE external_latency_ms > 0), 0) AS avg_latency_ms
		FROM payment_attempts
	`).Scan(&m.TotalAttempts, &m.SucceededAttempts, &m.FailedAttempts, &m.AvgLatencyMs)
	if err != nil {
		return nil, fmt.Errorf("querying attempt metrics: %w", err)
	}

	if m.TotalAttempts > 0 {
		m.SuccessRate = float64(m.SucceededAttempts) / float64(m.TotalAttempts) * 100
	}

	err = s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM payment_intents`).Scan(&m.TotalIntents)
	if err != nil {
		return nil, fmt.Errorf("querying intent count: %w", err)
	}

	err = s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM connector_events`).Scan(&m.TotalEvents)
	if err != nil {
		return nil, fmt.Errorf("querying connector event count: %w", err)
	}

	return &m, nil
}
