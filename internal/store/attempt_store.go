package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/Priya8975/payment-switch/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrDuplicateAttempt is returned when an attempt id already exists.
	// Inserts are create-only: a concurrent replay must be rejected, never
	// silently overwritten.
	ErrDuplicateAttempt = errors.New("store: attempt id already exists")
	// ErrNotFound is returned by lookups and updates against missing rows.
	ErrNotFound = errors.New("store: not found")
)

const pgUniqueViolation = "23505"

const attemptColumns = `attempt_id, payment_id, ordinal, status, connector, network,
	connector_transaction_id, error_code, error_message, error_reason,
	unified_code, unified_message, amount_capturable_cents, authentication_type,
	external_latency_ms, connector_reference_id,
	merchant_id, profile_id, org_id, amount_cents, currency, capture_method,
	payment_method, mandate_id, browser_info, client_source, client_version,
	created_at, updated_at`

// InsertAttempt persists a new attempt. The primary key on attempt_id
// enforces the create-only contract.
func (s *PostgresStore) InsertAttempt(ctx context.Context, a *domain.PaymentAttempt) error {
	return insertAttempt(ctx, s.pool, a)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertAttempt(ctx context.Context, db execer, a *domain.PaymentAttempt) error {
	method, err := encodePaymentMethod(a.PaymentMethod)
	if err != nil {
		return err
	}

	_, err = db.Exec(ctx, `
		INSERT INTO payment_attempts (
			attempt_id, payment_id, ordinal, status, connector, network,
			connector_transaction_id, error_code, error_message, error_reason,
			unified_code, unified_message, amount_capturable_cents, authentication_type,
			external_latency_ms, connector_reference_id,
			merchant_id, profile_id, org_id, amount_cents, currency, capture_method,
			payment_method, mandate_id, browser_info, client_source, client_version
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27)
	`,
		a.AttemptID, a.PaymentID, a.Ordinal, a.Status, a.Connector, nullIfEmpty(string(a.Network)),
		a.ConnectorTransactionID, a.ErrorCode, a.ErrorMessage, a.ErrorReason,
		a.UnifiedCode, a.UnifiedMessage, a.AmountCapturableCents, a.AuthenticationType,
		a.ExternalLatencyMs, a.ConnectorReferenceID,
		a.MerchantID, a.ProfileID, nullIfEmpty(a.OrgID), a.AmountCents, a.Currency, a.CaptureMethod,
		method, a.MandateID, a.BrowserInfo, nullIfEmpty(a.ClientSource), nullIfEmpty(a.ClientVersion),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("%w: %s", ErrDuplicateAttempt, a.AttemptID)
		}
		return fmt.Errorf("inserting attempt: %w", err)
	}
	return nil
}

// AttemptChangeset carries the mutable outcome fields of an attempt. Nil
// pointer fields are left untouched; Status and latency are always written.
type AttemptChangeset struct {
	Status                 domain.AttemptStatus
	ConnectorTransactionID *string
	ErrorCode              *string
	ErrorMessage           *string
	ErrorReason            *string
	UnifiedCode            *string
	UnifiedMessage         *string
	AmountCapturableCents  *int64
	AuthenticationType     *domain.AuthenticationType
	ExternalLatencyMs      *int64
	ConnectorReferenceID   *string
}

// UpdateAttempt applies a changeset to an existing attempt. The write is a
// plain idempotent row update, safe to retry after its own failure.
func (s *PostgresStore) UpdateAttempt(ctx context.Context, attemptID string, ch AttemptChangeset) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE payment_attempts SET
			status = $2,
			connector_transaction_id = COALESCE($3, connector_transaction_id),
			error_code = COALESCE($4, error_code),
			error_message = COALESCE($5, error_message),
			error_reason = COALESCE($6, error_reason),
			unified_code = COALESCE($7, unified_code),
			unified_message = COALESCE($8, unified_message),
			amount_capturable_cents = COALESCE($9, amount_capturable_cents),
			authentication_type = COALESCE($10, authentication_type),
			external_latency_ms = COALESCE($11, external_latency_ms),
			connector_reference_id = COALESCE($12, connector_reference_id),
			updated_at = NOW()
		WHERE attempt_id = $1
	`,
		attemptID, ch.Status, ch.ConnectorTransactionID, ch.ErrorCode, ch.ErrorMessage,
		ch.ErrorReason, ch.UnifiedCode, ch.UnifiedMessage, ch.AmountCapturableCents,
		ch.AuthenticationType, ch.ExternalLatencyMs, ch.ConnectorReferenceID,
	)
	if err != nil {
		return fmt.Errorf("updating attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: attempt %s", ErrNotFound, attemptID)
	}
	return nil
}

// GetAttempt returns a single attempt by id.
func (s *PostgresStore) GetAttempt(ctx context.Context, attemptID string) (*domain.PaymentAttempt, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM payment_attempts WHERE attempt_id = $1`, attemptID)
	return scanAttempt(row)
}

// GetActiveAttempt resolves the intent's active-attempt pointer.
func (s *PostgresStore) GetActiveAttempt(ctx context.Context, paymentID string) (*domain.PaymentAttempt, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+attemptColumns+` FROM payment_attempts
		WHERE attempt_id = (SELECT active_attempt_id FROM payment_intents WHERE id = $1)
	`, paymentID)
	return scanAttempt(row)
}

// GetAttemptByConnectorTransactionID is the secondary lookup used by webhook
// and refund reconciliation.
func (s *PostgresStore) GetAttemptByConnectorTransactionID(ctx context.Context, txnID string) (*domain.PaymentAttempt, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM payment_attempts WHERE connector_transaction_id = $1`, txnID)
	return scanAttempt(row)
}

// GetAttemptByReferenceID is the secondary lookup by connector reference id.
func (s *PostgresStore) GetAttemptByReferenceID(ctx context.Context, refID string) (*domain.PaymentAttempt, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM payment_attempts WHERE connector_reference_id = $1`, refID)
	return scanAttempt(row)
}

// ListAttempts returns the attempt history for a payment, oldest first.
func (s *PostgresStore) ListAttempts(ctx context.Context, paymentID string, limit int) ([]domain.PaymentAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM payment_attempts WHERE payment_id = $1 ORDER BY ordinal ASC`
	args := []any{paymentID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying attempts: %w", err)
	}
	defer rows.Close()

	attempts := []domain.PaymentAttempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *a)
	}
	return attempts, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row rowScanner) (*domain.PaymentAttempt, error) {
	var a domain.PaymentAttempt
	var network, orgID, clientSource, clientVersion *string
	var method []byte

	err := row.Scan(
		&a.AttemptID, &a.PaymentID, &a.Ordinal, &a.Status, &a.Connector, &network,
		&a.ConnectorTransactionID, &a.ErrorCode, &a.ErrorMessage, &a.ErrorReason,
		&a.UnifiedCode, &a.UnifiedMessage, &a.AmountCapturableCents, &a.AuthenticationType,
		&a.ExternalLatencyMs, &a.ConnectorReferenceID,
		&a.MerchantID, &a.ProfileID, &orgID, &a.AmountCents, &a.Currency, &a.CaptureMethod,
		&method, &a.MandateID, &a.BrowserInfo, &clientSource, &clientVersion,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning attempt: %w", err)
	}

	if network != nil {
		a.Network = domain.CardNetwork(*network)
	}
	if orgID != nil {
		a.OrgID = *orgID
	}
	if clientSource != nil {
		a.ClientSource = *clientSource
	}
	if clientVersion != nil {
		a.ClientVersion = *clientVersion
	}
	if a.PaymentMethod, err = decodePaymentMethod(method); err != nil {
		return nil, err
	}
	return &a, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
