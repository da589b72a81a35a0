package domain

import (
	"fmt"
	"time"
)

// AttemptStatus is the lifecycle state of a single payment attempt.
type AttemptStatus string

const (
	StatusStarted              AttemptStatus = "started"
	StatusPending              AttemptStatus = "pending"
	StatusAuthorized           AttemptStatus = "authorized"
	StatusCharged              AttemptStatus = "charged"
	StatusAuthenticationFailed AttemptStatus = "authentication_failed"
	StatusAuthorizationFailed  AttemptStatus = "authorization_failed"
	StatusFailure              AttemptStatus = "failure"
	StatusVoided               AttemptStatus = "voided"
)

// IsTerminalFailure reports whether the status is one of the terminal
// failure states that the retry engine evaluates GSM policy for.
func (s AttemptStatus) IsTerminalFailure() bool {
	switch s {
	case StatusAuthenticationFailed, StatusAuthorizationFailed, StatusFailure:
		return true
	}
	return false
}

// IsTerminal reports whether no further connector calls can change the status.
func (s AttemptStatus) IsTerminal() bool {
	switch s {
	case StatusCharged, StatusVoided:
		return true
	}
	return s.IsTerminalFailure()
}

// AuthenticationType is the customer authentication level used for an attempt.
type AuthenticationType string

const (
	AuthNoThreeDS AuthenticationType = "no_three_ds"
	AuthThreeDS   AuthenticationType = "three_ds"
)

// FutureUsage indicates whether the payment method is being stored for
// later off-session use.
type FutureUsage string

const (
	UsageOnSession  FutureUsage = "on_session"
	UsageOffSession FutureUsage = "off_session"
)

// IntentStatus is the lifecycle state of the parent payment intent.
type IntentStatus string

const (
	IntentRequiresConfirmation IntentStatus = "requires_confirmation"
	IntentProcessing           IntentStatus = "processing"
	IntentSucceeded            IntentStatus = "succeeded"
	IntentFailed               IntentStatus = "failed"
)

// PaymentIntent is the merchant-scoped order a payment executes against.
// It holds only a weak reference to its active attempt; the attempt itself
// lives in the attempt store.
type PaymentIntent struct {
	ID                 string             `json:"id"`
	MerchantID         string             `json:"merchant_id"`
	ProfileID          string             `json:"profile_id"`
	Status             IntentStatus       `json:"status"`
	AmountCents        int64              `json:"amount_cents"`
	Currency           string             `json:"currency"`
	ActiveAttemptID    *string            `json:"active_attempt_id,omitempty"`
	AttemptCount       int                `json:"attempt_count"`
	AuthenticationType AuthenticationType `json:"authentication_type"`
	FutureUsage        FutureUsage        `json:"future_usage"`
	CaptureMethod      string             `json:"capture_method"`
	BusinessCountry    string             `json:"business_country,omitempty"`
	PaymentMethod      *PaymentMethodData `json:"payment_method,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// PaymentAttempt is one execution of a payment against one connector.
// Mutable outcome fields are written only by outcome application; the
// static fields are copied verbatim into the successor attempt on retry.
type PaymentAttempt struct {
	AttemptID string `json:"attempt_id"`
	PaymentID string `json:"payment_id"`
	Ordinal   int    `json:"ordinal"`

	// Mutable outcome fields.
	Status                 AttemptStatus      `json:"status"`
	Connector              string             `json:"connector"`
	Network                CardNetwork        `json:"network,omitempty"`
	ConnectorTransactionID *string            `json:"connector_transaction_id,omitempty"`
	ErrorCode              *string            `json:"error_code,omitempty"`
	ErrorMessage           *string            `json:"error_message,omitempty"`
	ErrorReason            *string            `json:"error_reason,omitempty"`
	UnifiedCode            *string            `json:"unified_code,omitempty"`
	UnifiedMessage         *string            `json:"unified_message,omitempty"`
	AmountCapturableCents  int64              `json:"amount_capturable_cents"`
	AuthenticationType     AuthenticationType `json:"authentication_type"`
	ExternalLatencyMs      int64              `json:"external_latency_ms"`
	ConnectorReferenceID   *string            `json:"connector_reference_id,omitempty"`

	// Static carried-forward fields.
	MerchantID        string             `json:"merchant_id"`
	ProfileID         string             `json:"profile_id"`
	OrgID             string             `json:"org_id,omitempty"`
	AmountCents       int64              `json:"amount_cents"`
	Currency          string             `json:"currency"`
	CaptureMethod     string             `json:"capture_method"`
	PaymentMethod     *PaymentMethodData `json:"payment_method,omitempty"`
	MandateID         *string            `json:"mandate_id,omitempty"`
	BrowserInfo       *string            `json:"browser_info,omitempty"`
	ClientSource      string             `json:"client_source,omitempty"`
	ClientVersion     string             `json:"client_version,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AttemptID derives the deterministic attempt identifier for a payment and
// ordinal. Sequential ordinals make ids collision-free across retries.
func AttemptID(paymentID string, ordinal int) string {
	return fmt.Sprintf("%s_%d", paymentID, ordinal)
}

// NextAttempt builds the successor attempt for a retry. Static fields are
// carried over verbatim, outcome fields reset to their defaults, and the
// connector/network come from the candidate being tried next. A step-up
// retry forces three-DS authentication on the new attempt.
func (a *PaymentAttempt) NextAttempt(candidate Candidate, stepUp bool) *PaymentAttempt {
	next := &PaymentAttempt{
		AttemptID: AttemptID(a.PaymentID, a.Ordinal+1),
		PaymentID: a.PaymentID,
		Ordinal:   a.Ordinal + 1,

		Status:                StatusStarted,
		Connector:             candidate.Connector,
		Network:               candidate.Network,
		AmountCapturableCents: a.AmountCents,
		AuthenticationType:    a.AuthenticationType,

		MerchantID:    a.MerchantID,
		ProfileID:     a.ProfileID,
		OrgID:         a.OrgID,
		AmountCents:   a.AmountCents,
		Currency:      a.Currency,
		CaptureMethod: a.CaptureMethod,
		PaymentMethod: a.PaymentMethod,
		MandateID:     a.MandateID,
		BrowserInfo:   a.BrowserInfo,
		ClientSource:  a.ClientSource,
		ClientVersion: a.ClientVersion,
	}
	if stepUp {
		next.AuthenticationType = AuthThreeDS
	}
	return next
}
