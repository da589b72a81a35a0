package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Priya8975/payment-switch/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/google/uuid"
)

const intentColumns = `id, merchant_id, profile_id, status, amount_cents, currency,
	active_attempt_id, attempt_count, authentication_type, future_usage,
	capture_method, business_country, payment_method, created_at, updated_at`

// CreateIntent persists a new payment intent with a generated id.
func (s *PostgresStore) CreateIntent(ctx context.Context, intent *domain.PaymentIntent) (*domain.PaymentIntent, error) {
	if intent.ID == "" {
		intent.ID = uuid.NewString()
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO payment_intents (
			id, merchant_id, profile_id, status, amount_cents, currency,
			attempt_count, authentication_type, future_usage, capture_method, business_country
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING `+intentColumns,
		intent.ID, intent.MerchantID, intent.ProfileID, intent.Status,
		intent.AmountCents, intent.Currency, intent.AttemptCount,
		intent.AuthenticationType, intent.FutureUsage, intent.CaptureMethod,
		nullIfEmpty(intent.BusinessCountry),
	)
	return scanIntent(row)
}

// GetIntent returns an intent by id.
func (s *PostgresStore) GetIntent(ctx context.Context, id string) (*domain.PaymentIntent, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+intentColumns+` FROM payment_intents WHERE id = $1`, id)
	return scanIntent(row)
}

// AttachPaymentMethod stores the confirmation request's payment instrument
// on the intent so the async worker can build the first attempt from it.
func (s *PostgresStore) AttachPaymentMethod(ctx context.Context, id string, method *domain.PaymentMethodData) error {
	encoded, err := encodePaymentMethod(method)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE payment_intents SET payment_method = $2, updated_at = NOW() WHERE id = $1`, id, encoded)
	if err != nil {
		return fmt.Errorf("attaching payment method: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: intent %s", ErrNotFound, id)
	}
	return nil
}

// UpdateIntentStatus writes the intent's terminal status after orchestration.
func (s *PostgresStore) UpdateIntentStatus(ctx context.Context, id string, status domain.IntentStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE payment_intents SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("updating intent status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: intent %s", ErrNotFound, id)
	}
	return nil
}

// InsertAttemptAndActivate inserts a new attempt and advances the parent
// intent's active-attempt pointer and attempt count in one transaction, so a
// reader can never observe a pointer to a row that does not exist.
func (s *PostgresStore) InsertAttemptAndActivate(ctx context.Context, a *domain.PaymentAttempt) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := insertAttempt(ctx, tx, a); err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE payment_intents
		SET active_attempt_id = $2, attempt_count = $3, status = $4, updated_at = NOW()
		WHERE id = $1
	`, a.PaymentID, a.AttemptID, a.Ordinal+1, domain.IntentProcessing)
	if err != nil {
		return fmt.Errorf("advancing active attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: intent %s", ErrNotFound, a.PaymentID)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing attempt insert: %w", err)
	}
	return nil
}

func scanIntent(row rowScanner) (*domain.PaymentIntent, error) {
	var in domain.PaymentIntent
	var country *string
	var method []byte
	err := row.Scan(
		&in.ID, &in.MerchantID, &in.ProfileID, &in.Status, &in.AmountCents, &in.Currency,
		&in.ActiveAttemptID, &in.AttemptCount, &in.AuthenticationType, &in.FutureUsage,
		&in.CaptureMethod, &country, &method, &in.CreatedAt, &in.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning intent: %w", err)
	}
	if country != nil {
		in.BusinessCountry = *country
	}
	if in.PaymentMethod, err = decodePaymentMethod(method); err != nil {
		return nil, err
	}
	return &in, nil
}

func encodePaymentMethod(m *domain.PaymentMethodData) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding payment method: %w", err)
	}
	return data, nil
}

func decodePaymentMethod(data []byte) (*domain.PaymentMethodData, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var m domain.PaymentMethodData
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding payment method: %w", err)
	}
	return &m, nil
}
