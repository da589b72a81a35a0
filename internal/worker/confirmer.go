package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Priya8975/payment-switch/internal/debitrouting"
	"github.com/Priya8975/payment-switch/internal/dispatch"
	"github.com/Priya8975/payment-switch/internal/domain"
	"github.com/Priya8975/payment-switch/internal/engine"
	"github.com/Priya8975/payment-switch/internal/retry"
	"github.com/Priya8975/payment-switch/internal/store"
)

// Broadcaster pushes live attempt updates to dashboard clients.
type Broadcaster interface {
	BroadcastAttempt(paymentID, attemptID, connector string, status domain.AttemptStatus, errorCode string, latencyMs int64)
}

// Confirmer executes one payment confirmation end to end: optional debit
// routing, the first dispatch, and the retry engine until a terminal
// decision, then settles the intent from the final outcome.
type Confirmer struct {
	pgStore   *store.PostgresStore
	config    *store.ConfigStore
	optimizer *debitrouting.Optimizer
	pipeline  *dispatch.Pipeline
	engine    *retry.Engine
	hub       Broadcaster
	logger    *slog.Logger
}

func NewConfirmer(pgStore *store.PostgresStore, config *store.ConfigStore, optimizer *debitrouting.Optimizer, pipeline *dispatch.Pipeline, eng *retry.Engine, hub Broadcaster, logger *slog.Logger) *Confirmer {
	return &Confirmer{
		pgStore:   pgStore,
		config:    config,
		optimizer: optimizer,
		pipeline:  pipeline,
		engine:    eng,
		hub:       hub,
		logger:    logger,
	}
}

// Confirm processes one queued confirmation job.
func (c *Confirmer) Confirm(ctx context.Context, job engine.ConfirmJob) {
	start := time.Now()

	intent, err := c.pgStore.GetIntent(ctx, job.PaymentID)
	if err != nil {
		c.logger.Error("failed to load intent", "error", err, "payment_id", job.PaymentID)
		return
	}

	candidates, err := c.staticCandidates(ctx, intent)
	if err != nil {
		c.logger.Error("no routable connectors configured", "error", err, "payment_id", intent.ID)
		c.settleIntent(ctx, intent.ID, domain.IntentFailed)
		return
	}

	// Debit routing runs strictly before the first dispatch. A missing
	// US-local candidate rejects the optimization, never the payment.
	optimized, err := c.optimizer.Optimize(ctx, intent, intent.PaymentMethod, debitrouting.OperationConfirm, candidates)
	if err != nil {
		if errors.Is(err, debitrouting.ErrNoUSLocalNetwork) {
			c.logger.Warn("debit routing rejected, using static routing", "payment_id", intent.ID)
		} else {
			c.logger.Error("debit routing failed, using static routing", "error", err, "payment_id", intent.ID)
		}
	} else {
		candidates = optimized
	}

	first, ok := candidates.First()
	if !ok {
		c.logger.Error("empty candidate list", "payment_id", intent.ID)
		c.settleIntent(ctx, intent.ID, domain.IntentFailed)
		return
	}

	attempt := buildFirstAttempt(intent, first)
	if err := c.pgStore.InsertAttemptAndActivate(ctx, attempt); err != nil {
		c.logger.Error("failed to create first attempt", "error", err, "payment_id", intent.ID)
		return
	}

	outcome, err := c.pipeline.Execute(ctx, attempt, first, dispatch.Trigger())
	if err != nil {
		// Pipeline-fatal: record a failed outcome rather than dropping it.
		outcome = &domain.CallOutcome{
			Status: domain.StatusFailure,
			Error:  &domain.ErrorResponse{Code: "PIPELINE_ERROR", Message: err.Error()},
		}
		ch := retry.BuildChangeset(attempt, outcome, nil)
		if applyErr := c.pgStore.UpdateAttempt(ctx, attempt.AttemptID, ch); applyErr != nil {
			c.logger.Error("failed to record pipeline error", "error", applyErr, "attempt_id", attempt.AttemptID)
		}
		c.settleIntent(ctx, intent.ID, domain.IntentFailed)
		c.broadcast(attempt, outcome, start)
		return
	}

	finalAttempt, finalOutcome, err := c.engine.Run(ctx, attempt, candidates, outcome)
	if err != nil {
		c.logger.Error("retry engine aborted", "error", err, "payment_id", intent.ID, "attempt_id", finalAttempt.AttemptID)
		c.settleIntent(ctx, intent.ID, domain.IntentFailed)
		c.broadcast(finalAttempt, finalOutcome, start)
		return
	}

	c.settleIntent(ctx, intent.ID, intentStatusFor(finalOutcome))
	c.broadcast(finalAttempt, finalOutcome, start)

	c.logger.Info("confirmation complete",
		"payment_id", intent.ID,
		"attempt_id", finalAttempt.AttemptID,
		"connector", finalAttempt.Connector,
		"status", finalOutcome.Status,
		"attempts", finalAttempt.Ordinal+1,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
}

// staticCandidates builds the merchant's configured fallback-priority list.
func (c *Confirmer) staticCandidates(ctx context.Context, intent *domain.PaymentIntent) (domain.CandidateList, error) {
	names, err := c.config.GetList(ctx, fmt.Sprintf(store.KeyMerchantFallbackPriority, intent.MerchantID))
	if err != nil {
		return domain.CandidateList{}, err
	}
	if len(names) == 0 {
		return domain.CandidateList{}, fmt.Errorf("merchant %s has no fallback connectors", intent.MerchantID)
	}
	if len(names) == 1 {
		return domain.PreDetermined(domain.Candidate{Connector: names[0]}), nil
	}
	candidates := make([]domain.Candidate, 0, len(names))
	for _, name := range names {
		candidates = append(candidates, domain.Candidate{Connector: name})
	}
	return domain.Retryable(candidates...), nil
}

func buildFirstAttempt(intent *domain.PaymentIntent, candidate domain.Candidate) *domain.PaymentAttempt {
	return &domain.PaymentAttempt{
		AttemptID: domain.AttemptID(intent.ID, intent.AttemptCount),
		PaymentID: intent.ID,
		Ordinal:   intent.AttemptCount,

		Status:                domain.StatusStarted,
		Connector:             candidate.Connector,
		Network:               candidate.Network,
		AmountCapturableCents: intent.AmountCents,
		AuthenticationType:    intent.AuthenticationType,

		MerchantID:    intent.MerchantID,
		ProfileID:     intent.ProfileID,
		AmountCents:   intent.AmountCents,
		Currency:      intent.Currency,
		CaptureMethod: intent.CaptureMethod,
		PaymentMethod: intent.PaymentMethod,
	}
}

// intentStatusFor maps the final attempt outcome onto the parent intent.
// Intermediate failed attempts stay in attempt history only; the payment
// surfaces the last attempt's result.
func intentStatusFor(outcome *domain.CallOutcome) domain.IntentStatus {
	if outcome.Failed() {
		return domain.IntentFailed
	}
	switch outcome.Status {
	case domain.StatusCharged, domain.StatusAuthorized:
		return domain.IntentSucceeded
	case domain.StatusStarted, domain.StatusPending:
		return domain.IntentProcessing
	default:
		return domain.IntentFailed
	}
}

func (c *Confirmer) settleIntent(ctx context.Context, paymentID string, status domain.IntentStatus) {
	if err := c.pgStore.UpdateIntentStatus(ctx, paymentID, status); err != nil {
		c.logger.Error("failed to settle intent", "error", err, "payment_id", paymentID, "status", status)
	}
}

func (c *Confirmer) broadcast(attempt *domain.PaymentAttempt, outcome *domain.CallOutcome, start time.Time) {
	if c.hub == nil {
		return
	}
	errorCode := ""
	if outcome.Error != nil {
		errorCode = outcome.Error.Code
	}
	c.hub.BroadcastAttempt(attempt.PaymentID, attempt.AttemptID, attempt.Connector, outcome.Status, errorCode, time.Since(start).Milliseconds())
}
