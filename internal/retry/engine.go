// Package retry drives a payment across attempts. After every dispatched
// call it consults the gateway status map (GSM) to decide whether to step up
// authentication, fail over to the next candidate connector, or stop.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Priya8975/payment-switch/internal/dispatch"
	"github.com/Priya8975/payment-switch/internal/domain"
	"github.com/Priya8975/payment-switch/internal/store"
)

// ErrRequeueNotSupported is the deliberate fail-fast for the requeue
// decision: dropping a payment into a queue with no defined consumer is
// worse than failing loudly.
var ErrRequeueNotSupported = errors.New("retry: requeue decision is not supported")

// Counter names emitted by the engine.
const (
	CounterRetryEligible    = "retry_eligible"
	CounterRetriesAttempted = "retries_attempted"
	CounterRetriesExhausted = "retries_exhausted"
	CounterGsmMatches       = "gsm_matches"
)

// Dispatcher re-enters the dispatch pipeline for a fresh attempt.
type Dispatcher interface {
	Execute(ctx context.Context, attempt *domain.PaymentAttempt, candidate domain.Candidate, action dispatch.Action) (*domain.CallOutcome, error)
	Flow() string
}

// GsmLookup resolves a failure signature to a retry decision. A nil record
// with a nil error means no policy is configured (treated as do-default).
type GsmLookup interface {
	LookupGsm(ctx context.Context, connectorName, flow string, errorCode, errorMessage *string) (*domain.GsmRecord, error)
}

// AttemptStore is the subset of the attempt store the engine writes through.
type AttemptStore interface {
	UpdateAttempt(ctx context.Context, attemptID string, ch store.AttemptChangeset) error
	InsertAttemptAndActivate(ctx context.Context, a *domain.PaymentAttempt) error
}

// Health advises whether a connector is currently worth trying. A nil Health
// never skips anyone.
type Health interface {
	Healthy(ctx context.Context, connectorName string) bool
}

// Counter is the telemetry subset the engine emits.
type Counter interface {
	Incr(ctx context.Context, counter, connectorName, flow string)
}

// Config reads the retry budgets and step-up enablement.
type Config interface {
	GetInt(ctx context.Context, key string) (int, bool, error)
	GetList(ctx context.Context, key string) ([]string, error)
}

// Engine is the retry / step-up state machine over one logical payment.
type Engine struct {
	dispatcher Dispatcher
	gsm        GsmLookup
	attempts   AttemptStore
	config     Config
	health     Health
	counter    Counter
	logger     *slog.Logger
}

func NewEngine(dispatcher Dispatcher, gsm GsmLookup, attempts AttemptStore, config Config, health Health, counter Counter, logger *slog.Logger) *Engine {
	return &Engine{
		dispatcher: dispatcher,
		gsm:        gsm,
		attempts:   attempts,
		config:     config,
		health:     health,
		counter:    counter,
		logger:     logger,
	}
}

// ShouldCallGsm gates the whole machinery: only an error outcome or a
// terminal failure status is worth a policy lookup. Pending, authorized and
// charged outcomes short-circuit straight back to the caller.
func ShouldCallGsm(outcome *domain.CallOutcome) bool {
	if outcome.Failed() {
		return true
	}
	return outcome.Status.IsTerminalFailure()
}

// Run consumes the first call's outcome and drives retries until a terminal
// decision. It returns the attempt and outcome the payment should surface;
// the returned outcome has already been applied to the returned attempt.
// Exhaustion of budget or candidates is not an error: the last real outcome
// is the authoritative result.
func (e *Engine) Run(ctx context.Context, attempt *domain.PaymentAttempt, candidates domain.CandidateList, outcome *domain.CallOutcome) (*domain.PaymentAttempt, *domain.CallOutcome, error) {
	if candidates.Kind == domain.ListSessionMultiple || !ShouldCallGsm(outcome) {
		if err := e.applyOutcome(ctx, attempt, outcome, nil); err != nil {
			return attempt, outcome, err
		}
		return attempt, outcome, nil
	}

	flow := e.dispatcher.Flow()
	e.counter.Incr(ctx, CounterRetryEligible, attempt.Connector, flow)

	gsmRec, err := e.lookupGsm(ctx, attempt.Connector, flow, outcome)
	if err != nil {
		e.logger.Error("gsm lookup failed", "error", err, "payment_id", attempt.PaymentID)
		gsmRec = nil
	}

	// Step-up is evaluated once, on the first failure only, and never loops.
	if e.stepUpApplies(ctx, attempt, gsmRec) {
		sameConnector := domain.Candidate{Connector: attempt.Connector, Network: attempt.Network}
		next, nextOutcome, err := e.doRetry(ctx, sameConnector, attempt, outcome, gsmRec, true)
		if err != nil {
			return next, nextOutcome, err
		}
		e.counter.Incr(ctx, CounterRetriesAttempted, sameConnector.Connector, flow)
		finalGsm := e.gsmForFinal(ctx, next, nextOutcome)
		if err := e.applyOutcome(ctx, next, nextOutcome, finalGsm); err != nil {
			return next, nextOutcome, err
		}
		return next, nextOutcome, nil
	}

	remaining := candidates.Rest()
	budget := -1 // resolved lazily on the first retry decision

	for {
		if gsmRec == nil || gsmRec.Decision == domain.GsmDoDefault {
			break
		}

		if gsmRec.Decision == domain.GsmRequeue {
			if err := e.applyOutcome(ctx, attempt, outcome, gsmRec); err != nil {
				return attempt, outcome, err
			}
			return attempt, outcome, ErrRequeueNotSupported
		}

		// GsmRetry from here on.
		if budget < 0 {
			budget = e.resolveBudget(ctx, attempt)
		}
		if budget == 0 {
			e.counter.Incr(ctx, CounterRetriesExhausted, attempt.Connector, flow)
			e.logger.Info("retry budget exhausted", "payment_id", attempt.PaymentID, "ordinal", attempt.Ordinal)
			break
		}
		candidate, rest, ok := e.popCandidate(ctx, remaining)
		remaining = rest
		if !ok {
			e.counter.Incr(ctx, CounterRetriesExhausted, attempt.Connector, flow)
			e.logger.Info("candidate list exhausted", "payment_id", attempt.PaymentID, "ordinal", attempt.Ordinal)
			break
		}

		next, nextOutcome, err := e.doRetry(ctx, candidate, attempt, outcome, gsmRec, false)
		if err != nil {
			return next, nextOutcome, err
		}
		budget--
		e.counter.Incr(ctx, CounterRetriesAttempted, candidate.Connector, flow)

		attempt, outcome = next, nextOutcome
		if !ShouldCallGsm(outcome) {
			break
		}
		gsmRec, err = e.lookupGsm(ctx, attempt.Connector, flow, outcome)
		if err != nil {
			e.logger.Error("gsm lookup failed", "error", err, "payment_id", attempt.PaymentID)
			gsmRec = nil
		}
	}

	finalGsm := gsmRec
	if !ShouldCallGsm(outcome) {
		finalGsm = nil
	}
	if err := e.applyOutcome(ctx, attempt, outcome, finalGsm); err != nil {
		return attempt, outcome, err
	}
	return attempt, outcome, nil
}

// doRetry is the re-entry primitive: apply the prior outcome, mint the
// successor attempt, advance the intent pointer, and dispatch the new call.
// The next candidate's call never starts before the prior attempt's outcome
// is durably applied; that ordering keeps the ordinal-derived attempt ids
// collision-free.
func (e *Engine) doRetry(ctx context.Context, candidate domain.Candidate, prior *domain.PaymentAttempt, priorOutcome *domain.CallOutcome, priorGsm *domain.GsmRecord, stepUp bool) (*domain.PaymentAttempt, *domain.CallOutcome, error) {
	if err := e.applyOutcome(ctx, prior, priorOutcome, priorGsm); err != nil {
		return prior, priorOutcome, err
	}

	next := prior.NextAttempt(candidate, stepUp)
	if err := e.attempts.InsertAttemptAndActivate(ctx, next); err != nil {
		return prior, priorOutcome, fmt.Errorf("creating retry attempt: %w", err)
	}

	e.logger.Info("retrying payment",
		"payment_id", next.PaymentID,
		"attempt_id", next.AttemptID,
		"connector", candidate.Connector,
		"network", candidate.Network,
		"step_up", stepUp,
	)

	outcome, err := e.dispatcher.Execute(ctx, next, candidate, dispatch.Trigger())
	if err != nil {
		// A pipeline-fatal error still gets recorded as a failed outcome
		// rather than silently dropped.
		failed := &domain.CallOutcome{
			Status: domain.StatusFailure,
			Error: &domain.ErrorResponse{
				Code:    "PIPELINE_ERROR",
				Message: err.Error(),
			},
		}
		if applyErr := e.applyOutcome(ctx, next, failed, nil); applyErr != nil {
			e.logger.Error("failed to record pipeline error outcome", "error", applyErr, "attempt_id", next.AttemptID)
		}
		return next, failed, err
	}
	return next, outcome, nil
}

// stepUpApplies checks the three step-up conditions: GSM flags the failure
// as authentication-recoverable, the attempt ran without three-DS, and the
// merchant has opted this connector into step-up.
func (e *Engine) stepUpApplies(ctx context.Context, attempt *domain.PaymentAttempt, gsmRec *domain.GsmRecord) bool {
	if gsmRec == nil || !gsmRec.StepUpPossible {
		return false
	}
	if attempt.AuthenticationType != domain.AuthNoThreeDS {
		return false
	}
	enabled, err := e.config.GetList(ctx, fmt.Sprintf(store.KeyMerchantStepUpConnectors, attempt.MerchantID))
	if err != nil {
		e.logger.Error("step-up config lookup failed", "error", err, "merchant_id", attempt.MerchantID)
		return false
	}
	for _, name := range enabled {
		if name == attempt.Connector {
			return true
		}
	}
	return false
}

// resolveBudget picks the retry budget: merchant override, then profile
// default, else zero.
func (e *Engine) resolveBudget(ctx context.Context, attempt *domain.PaymentAttempt) int {
	if n, ok, err := e.config.GetInt(ctx, fmt.Sprintf(store.KeyMerchantMaxAutoRetries, attempt.MerchantID)); err == nil && ok {
		return n
	}
	if n, ok, err := e.config.GetInt(ctx, fmt.Sprintf(store.KeyProfileMaxAutoRetries, attempt.ProfileID)); err == nil && ok {
		return n
	}
	return 0
}

// popCandidate takes the next candidate, skipping connectors the health
// tracker marks unhealthy as long as another candidate remains. The last
// candidate is always tried.
func (e *Engine) popCandidate(ctx context.Context, remaining []domain.Candidate) (domain.Candidate, []domain.Candidate, bool) {
	for len(remaining) > 0 {
		candidate := remaining[0]
		remaining = remaining[1:]
		if e.health != nil && len(remaining) > 0 && !e.health.Healthy(ctx, candidate.Connector) {
			e.logger.Warn("skipping unhealthy connector", "connector", candidate.Connector)
			continue
		}
		return candidate, remaining, true
	}
	return domain.Candidate{}, nil, false
}

func (e *Engine) lookupGsm(ctx context.Context, connectorName, flow string, outcome *domain.CallOutcome) (*domain.GsmRecord, error) {
	var code, message *string
	if outcome.Error != nil {
		code = &outcome.Error.Code
		message = &outcome.Error.Message
	}
	rec, err := e.gsm.LookupGsm(ctx, connectorName, flow, code, message)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		e.counter.Incr(ctx, CounterGsmMatches, connectorName, flow)
	}
	return rec, nil
}

// gsmForFinal re-resolves the GSM record for a step-up result so unified
// codes on the final failure come from its own signature, not the first one.
func (e *Engine) gsmForFinal(ctx context.Context, attempt *domain.PaymentAttempt, outcome *domain.CallOutcome) *domain.GsmRecord {
	if !ShouldCallGsm(outcome) {
		return nil
	}
	rec, err := e.lookupGsm(ctx, attempt.Connector, e.dispatcher.Flow(), outcome)
	if err != nil {
		return nil
	}
	return rec
}

// applyOutcome persists a call outcome onto an attempt via BuildChangeset
// and mirrors the result onto the in-memory attempt.
func (e *Engine) applyOutcome(ctx context.Context, attempt *domain.PaymentAttempt, outcome *domain.CallOutcome, gsmRec *domain.GsmRecord) error {
	ch := BuildChangeset(attempt, outcome, gsmRec)
	if err := e.attempts.UpdateAttempt(ctx, attempt.AttemptID, ch); err != nil {
		return fmt.Errorf("applying outcome to attempt %s: %w", attempt.AttemptID, err)
	}
	mirrorChangeset(attempt, ch)
	return nil
}

// BuildChangeset derives the store changeset for applying an outcome to an
// attempt. It is deterministic: applying the same outcome twice produces the
// same persisted state, so a failed application is safe to retry.
func BuildChangeset(attempt *domain.PaymentAttempt, outcome *domain.CallOutcome, gsmRec *domain.GsmRecord) store.AttemptChangeset {
	latency := attempt.ExternalLatencyMs
	ch := store.AttemptChangeset{ExternalLatencyMs: &latency}

	if outcome.Failed() {
		errResp := outcome.Error
		status := domain.StatusFailure
		if errResp.AttemptStatus != nil {
			status = *errResp.AttemptStatus
		}
		ch.Status = status
		ch.ErrorCode = &errResp.Code
		ch.ErrorMessage = &errResp.Message
		ch.ErrorReason = errResp.Reason
		ch.ConnectorTransactionID = errResp.ConnectorTransactionID
		zero := int64(0)
		ch.AmountCapturableCents = &zero
		if gsmRec != nil {
			ch.UnifiedCode = &gsmRec.UnifiedCode
			ch.UnifiedMessage = &gsmRec.UnifiedMessage
		}
		// After a step-up the auth type used for the call differs from the
		// one first recorded on the attempt row; persist the one used.
		auth := attempt.AuthenticationType
		ch.AuthenticationType = &auth
		return ch
	}

	resp := outcome.Response
	ch.Status = outcome.Status
	if resp != nil {
		if resp.ConnectorTransactionID != "" {
			ch.ConnectorTransactionID = &resp.ConnectorTransactionID
		}
		ch.ConnectorReferenceID = resp.ConnectorReferenceID
	}
	if outcome.Status.IsTerminal() {
		zero := int64(0)
		ch.AmountCapturableCents = &zero
	}
	return ch
}

func mirrorChangeset(attempt *domain.PaymentAttempt, ch store.AttemptChangeset) {
	attempt.Status = ch.Status
	if ch.ConnectorTransactionID != nil {
		attempt.ConnectorTransactionID = ch.ConnectorTransactionID
	}
	if ch.ErrorCode != nil {
		attempt.ErrorCode = ch.ErrorCode
	}
	if ch.ErrorMessage != nil {
		attempt.ErrorMessage = ch.ErrorMessage
	}
	if ch.ErrorReason != nil {
		attempt.ErrorReason = ch.ErrorReason
	}
	if ch.UnifiedCode != nil {
		attempt.UnifiedCode = ch.UnifiedCode
	}
	if ch.UnifiedMessage != nil {
		attempt.UnifiedMessage = ch.UnifiedMessage
	}
	if ch.AmountCapturableCents != nil {
		attempt.AmountCapturableCents = *ch.AmountCapturableCents
	}
	if ch.ConnectorReferenceID != nil {
		attempt.ConnectorReferenceID = ch.ConnectorReferenceID
	}
}
