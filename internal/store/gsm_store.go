package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/Priya8975/payment-switch/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/google/uuid"
)

const gsmColumns = `id, connector, flow, error_code, error_message, decision,
	step_up_possible, unified_code, unified_message, created_at, updated_at`

// LookupGsm resolves a failure signature to a retry decision. Matching falls
// back from the exact (code, message) pair to a code-only rule to a
// connector-flow default rule (empty code and message). A nil result means no
// policy is configured and the caller treats the failure as DoDefault.
func (s *PostgresStore) LookupGsm(ctx context.Context, connectorName, flow string, errorCode, errorMessage *string) (*domain.GsmRecord, error) {
	code := ""
	if errorCode != nil {
		code = *errorCode
	}
	message := ""
	if errorMessage != nil {
		message = *errorMessage
	}

	row := s.pool.QueryRow(ctx, `
		SELECT `+gsmColumns+` FROM gateway_status_map
		WHERE connector = $1 AND flow = $2
		  AND (error_code = $3 OR error_code = '')
		  AND (error_message = $4 OR error_message = '')
		ORDER BY (error_code = $3)::int DESC, (error_message = $4)::int DESC
		LIMIT 1
	`, connectorName, flow, code, message)

	rec, err := scanGsm(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

// UpsertGsm creates or replaces the rule for one failure signature.
func (s *PostgresStore) UpsertGsm(ctx context.Context, rec *domain.GsmRecord) (*domain.GsmRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO gateway_status_map (
			id, connector, flow, error_code, error_message, decision,
			step_up_possible, unified_code, unified_message
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (connector, flow, error_code, error_message)
		DO UPDATE SET decision = EXCLUDED.decision,
			step_up_possible = EXCLUDED.step_up_possible,
			unified_code = EXCLUDED.unified_code,
			unified_message = EXCLUDED.unified_message,
			updated_at = NOW()
		RETURNING `+gsmColumns,
		rec.ID, rec.Connector, rec.Flow, rec.ErrorCode, rec.ErrorMessage,
		rec.Decision, rec.StepUpPossible, rec.UnifiedCode, rec.UnifiedMessage,
	)
	return scanGsm(row)
}

// ListGsm returns configured rules, optionally filtered by connector.
func (s *PostgresStore) ListGsm(ctx context.Context, connectorName string, limit int) ([]domain.GsmRecord, error) {
	query := `SELECT ` + gsmColumns + ` FROM gateway_status_map`
	args := []any{}
	if connectorName != "" {
		query += ` WHERE connector = $1`
		args = append(args, connectorName)
	}
	query += ` ORDER BY connector, flow, error_code`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying gsm rules: %w", err)
	}
	defer rows.Close()

	records := []domain.GsmRecord{}
	for rows.Next() {
		rec, err := scanGsm(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, nil
}

func scanGsm(row rowScanner) (*domain.GsmRecord, error) {
	var rec domain.GsmRecord
	err := row.Scan(
		&rec.ID, &rec.Connector, &rec.Flow, &rec.ErrorCode, &rec.ErrorMessage,
		&rec.Decision, &rec.StepUpPossible, &rec.UnifiedCode, &rec.UnifiedMessage,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning gsm rule: %w", err)
	}
	return &rec, nil
}
