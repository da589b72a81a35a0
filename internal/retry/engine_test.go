package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"

	"github.com/Priya8975/payment-switch/internal/dispatch"
	"github.com/Priya8975/payment-switch/internal/domain"
	"github.com/Priya8975/payment-switch/internal/store"
)

// fakeDispatcher replays scripted outcomes per connector, in call order.
type fakeDispatcher struct {
	outcomes map[string][]*domain.CallOutcome
	calls    []dispatchCall
}

type dispatchCall struct {
	attemptID string
	connector string
	authType  domain.AuthenticationType
}

func (f *fakeDispatcher) Execute(ctx context.Context, attempt *domain.PaymentAttempt, candidate domain.Candidate, action dispatch.Action) (*domain.CallOutcome, error) {
	f.calls = append(f.calls, dispatchCall{
		attemptID: attempt.AttemptID,
		connector: candidate.Connector,
		authType:  attempt.AuthenticationType,
	})
	queue := f.outcomes[candidate.Connector]
	if len(queue) == 0 {
		return nil, fmt.Errorf("no scripted outcome for %s", candidate.Connector)
	}
	outcome := queue[0]
	f.outcomes[candidate.Connector] = queue[1:]
	if outcome.Failed() && outcome.Error.AttemptStatus != nil {
		attempt.Status = *outcome.Error.AttemptStatus
	}
	return outcome, nil
}

func (f *fakeDispatcher) Flow() string { return "authorize" }

// fakeGsm maps "connector|code" to a record. A missing entry means no rule.
type fakeGsm struct {
	rules   map[string]*domain.GsmRecord
	lookups int
}

func (f *fakeGsm) LookupGsm(ctx context.Context, connectorName, flow string, errorCode, errorMessage *string) (*domain.GsmRecord, error) {
	f.lookups++
	code := ""
	if errorCode != nil {
		code = *errorCode
	}
	if rec, ok := f.rules[connectorName+"|"+code]; ok {
		return rec, nil
	}
	return nil, nil
}

type fakeAttemptStore struct {
	inserted []string
	updates  map[string][]store.AttemptChangeset
}

func newFakeAttemptStore() *fakeAttemptStore {
	return &fakeAttemptStore{updates: map[string][]store.AttemptChangeset{}}
}

func (f *fakeAttemptStore) UpdateAttempt(ctx context.Context, attemptID string, ch store.AttemptChangeset) error {
	f.updates[attemptID] = append(f.updates[attemptID], ch)
	return nil
}

func (f *fakeAttemptStore) InsertAttemptAndActivate(ctx context.Context, a *domain.PaymentAttempt) error {
	for _, id := range f.inserted {
		if id == a.AttemptID {
			return store.ErrDuplicateAttempt
		}
	}
	f.inserted = append(f.inserted, a.AttemptID)
	return nil
}

type fakeConfig struct {
	ints  map[string]int
	lists map[string][]string
}

func (f *fakeConfig) GetInt(ctx context.Context, key string) (int, bool, error) {
	n, ok := f.ints[key]
	return n, ok, nil
}

func (f *fakeConfig) GetList(ctx context.Context, key string) ([]string, error) {
	return f.lists[key], nil
}

type fakeHealth struct{ unhealthy map[string]bool }

func (f *fakeHealth) Healthy(ctx context.Context, connectorName string) bool {
	return !f.unhealthy[connectorName]
}

type fakeCounter struct{ counts map[string]int }

func (f *fakeCounter) Incr(ctx context.Context, counter, connectorName, flow string) {
	if f.counts == nil {
		f.counts = map[string]int{}
	}
	f.counts[counter]++
}

type harness struct {
	engine     *Engine
	dispatcher *fakeDispatcher
	gsm        *fakeGsm
	attempts   *fakeAttemptStore
	config     *fakeConfig
	counter    *fakeCounter
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dispatcher := &fakeDispatcher{outcomes: map[string][]*domain.CallOutcome{}}
	gsm := &fakeGsm{rules: map[string]*domain.GsmRecord{}}
	attempts := newFakeAttemptStore()
	config := &fakeConfig{ints: map[string]int{}, lists: map[string][]string{}}
	counter := &fakeCounter{}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	engine := NewEngine(dispatcher, gsm, attempts, config, &fakeHealth{unhealthy: map[string]bool{}}, counter, logger)
	return &harness{engine: engine, dispatcher: dispatcher, gsm: gsm, attempts: attempts, config: config, counter: counter}
}

func firstAttempt(connectorName string) *domain.PaymentAttempt {
	return &domain.PaymentAttempt{
		AttemptID:          "pay_1_0",
		PaymentID:          "pay_1",
		Ordinal:            0,
		Status:             domain.StatusStarted,
		Connector:          connectorName,
		AuthenticationType: domain.AuthNoThreeDS,
		MerchantID:         "m_1",
		ProfileID:          "prof_1",
		AmountCents:        5000,
		Currency:           "USD",
		CaptureMethod:      "automatic",
	}
}

func declineOutcome(code string) *domain.CallOutcome {
	status := domain.StatusAuthorizationFailed
	return &domain.CallOutcome{
		Status: status,
		Error: &domain.ErrorResponse{
			Code:          code,
			Message:       "declined",
			StatusCode:    402,
			AttemptStatus: &status,
		},
	}
}

func chargedOutcome() *domain.CallOutcome {
	return &domain.CallOutcome{
		Status:   domain.StatusCharged,
		Response: &domain.TransactionResponse{ConnectorTransactionID: "txn_ok", Status: domain.StatusCharged},
	}
}

func retryRule(unified string) *domain.GsmRecord {
	return &domain.GsmRecord{Decision: domain.GsmRetry, UnifiedCode: unified, UnifiedMessage: "unified message"}
}

func TestShouldCallGsm(t *testing.T) {
	tests := []struct {
		name    string
		outcome *domain.CallOutcome
		want    bool
	}{
		{"charged success", chargedOutcome(), false},
		{"pending success", &domain.CallOutcome{Status: domain.StatusPending, Response: &domain.TransactionResponse{}}, false},
		{"authorized success", &domain.CallOutcome{Status: domain.StatusAuthorized, Response: &domain.TransactionResponse{}}, false},
		{"error response", declineOutcome("CARD_DECLINED"), true},
		{"terminal failure without error", &domain.CallOutcome{Status: domain.StatusFailure}, true},
		{"authentication failed without error", &domain.CallOutcome{Status: domain.StatusAuthenticationFailed}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldCallGsm(tt.outcome); got != tt.want {
				t.Errorf("ShouldCallGsm() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRun_SuccessSkipsPolicy(t *testing.T) {
	h := newHarness(t)
	attempt := firstAttempt("stripe")

	final, outcome, err := h.engine.Run(context.Background(), attempt, domain.Retryable(domain.Candidate{Connector: "stripe"}), chargedOutcome())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if final.AttemptID != "pay_1_0" {
		t.Errorf("final attempt = %q, want the original", final.AttemptID)
	}
	if outcome.Status != domain.StatusCharged {
		t.Errorf("final status = %q, want charged", outcome.Status)
	}
	if h.gsm.lookups != 0 {
		t.Errorf("gsm lookups = %d, want 0", h.gsm.lookups)
	}
	if len(h.dispatcher.calls) != 0 {
		t.Errorf("dispatched %d retries, want 0", len(h.dispatcher.calls))
	}
	if final.ConnectorTransactionID == nil || *final.ConnectorTransactionID != "txn_ok" {
		t.Error("success outcome should be applied to the attempt")
	}
}

func TestRun_SessionMultiplePassesThrough(t *testing.T) {
	h := newHarness(t)
	attempt := firstAttempt("stripe")
	candidates := domain.CandidateList{
		Kind:       domain.ListSessionMultiple,
		Candidates: []domain.Candidate{{Connector: "stripe"}, {Connector: "adyen"}},
	}

	_, outcome, err := h.engine.Run(context.Background(), attempt, candidates, declineOutcome("CARD_DECLINED"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if h.gsm.lookups != 0 {
		t.Errorf("gsm lookups = %d, want 0 for session routing", h.gsm.lookups)
	}
	if len(h.dispatcher.calls) != 0 {
		t.Error("session routing must never trigger retries")
	}
	if !outcome.Failed() {
		t.Error("the original failure outcome should be returned")
	}
}

func TestRun_NoRuleMeansNoRetry(t *testing.T) {
	h := newHarness(t)
	attempt := firstAttempt("stripe")

	final, _, err := h.engine.Run(context.Background(), attempt,
		domain.Retryable(domain.Candidate{Connector: "stripe"}, domain.Candidate{Connector: "adyen"}),
		declineOutcome("HARD_DECLINE"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(h.dispatcher.calls) != 0 {
		t.Errorf("dispatched %d retries, want 0 without a rule", len(h.dispatcher.calls))
	}
	if final.Status != domain.StatusAuthorizationFailed {
		t.Errorf("final status = %q, want authorization_failed", final.Status)
	}
}

func TestRun_DoDefaultStops(t *testing.T) {
	h := newHarness(t)
	h.gsm.rules["stripe|CARD_DECLINED"] = &domain.GsmRecord{Decision: domain.GsmDoDefault, UnifiedCode: "UE_1001"}
	attempt := firstAttempt("stripe")

	final, _, err := h.engine.Run(context.Background(), attempt,
		domain.Retryable(domain.Candidate{Connector: "stripe"}, domain.Candidate{Connector: "adyen"}),
		declineOutcome("CARD_DECLINED"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(h.dispatcher.calls) != 0 {
		t.Error("do_default must not retry")
	}
	// The matched rule still contributes unified codes to the final state
	if final.UnifiedCode == nil || *final.UnifiedCode != "UE_1001" {
		t.Error("unified code from the matched rule should be applied")
	}
}

func TestRun_RequeueFailsFast(t *testing.T) {
	h := newHarness(t)
	h.gsm.rules["stripe|CARD_DECLINED"] = &domain.GsmRecord{Decision: domain.GsmRequeue}
	attempt := firstAttempt("stripe")

	_, _, err := h.engine.Run(context.Background(), attempt,
		domain.Retryable(domain.Candidate{Connector: "stripe"}, domain.Candidate{Connector: "adyen"}),
		declineOutcome("CARD_DECLINED"))
	if !errors.Is(err, ErrRequeueNotSupported) {
		t.Errorf("error = %v, want ErrRequeueNotSupported", err)
	}
	if len(h.dispatcher.calls) != 0 {
		t.Error("requeue must not dispatch")
	}
	// The outcome is applied before the error surfaces
	if len(h.attempts.updates["pay_1_0"]) == 0 {
		t.Error("the failure should be persisted before failing fast")
	}
}

func TestRun_FailoverAcrossCandidates(t *testing.T) {
	h := newHarness(t)
	h.gsm.rules["stripe|CARD_DECLINED"] = retryRule("UE_2001")
	h.gsm.rules["adyen|CARD_DECLINED"] = retryRule("UE_2001")
	h.config.ints[fmt.Sprintf(store.KeyMerchantMaxAutoRetries, "m_1")] = 2
	h.dispatcher.outcomes["adyen"] = []*domain.CallOutcome{declineOutcome("CARD_DECLINED")}
	h.dispatcher.outcomes["checkout"] = []*domain.CallOutcome{chargedOutcome()}

	attempt := firstAttempt("stripe")
	candidates := domain.Retryable(
		domain.Candidate{Connector: "stripe"},
		domain.Candidate{Connector: "adyen"},
		domain.Candidate{Connector: "checkout"},
	)

	final, outcome, err := h.engine.Run(context.Background(), attempt, candidates, declineOutcome("CARD_DECLINED"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// First call failed, budget 2 allows exactly two more: adyen then checkout
	if len(h.dispatcher.calls) != 2 {
		t.Fatalf("dispatched %d retries, want 2", len(h.dispatcher.calls))
	}
	if h.dispatcher.calls[0].connector != "adyen" || h.dispatcher.calls[1].connector != "checkout" {
		t.Errorf("retry order = %v, want adyen then checkout", h.dispatcher.calls)
	}
	if h.dispatcher.calls[0].attemptID != "pay_1_1" || h.dispatcher.calls[1].attemptID != "pay_1_2" {
		t.Errorf("attempt ids = %v, want sequential ordinals", h.dispatcher.calls)
	}
	if final.AttemptID != "pay_1_2" {
		t.Errorf("final attempt = %q, want pay_1_2", final.AttemptID)
	}
	if outcome.Status != domain.StatusCharged {
		t.Errorf("final status = %q, want charged", outcome.Status)
	}
	if got := h.attempts.inserted; len(got) != 2 {
		t.Errorf("inserted attempts = %v, want 2 successors", got)
	}
}

func TestRun_BudgetCapsCandidates(t *testing.T) {
	h := newHarness(t)
	h.gsm.rules["stripe|CARD_DECLINED"] = retryRule("UE_2001")
	h.gsm.rules["adyen|CARD_DECLINED"] = retryRule("UE_2001")
	h.config.ints[fmt.Sprintf(store.KeyMerchantMaxAutoRetries, "m_1")] = 1
	h.dispatcher.outcomes["adyen"] = []*domain.CallOutcome{declineOutcome("CARD_DECLINED")}

	attempt := firstAttempt("stripe")
	candidates := domain.Retryable(
		domain.Candidate{Connector: "stripe"},
		domain.Candidate{Connector: "adyen"},
		domain.Candidate{Connector: "checkout"},
	)

	final, _, err := h.engine.Run(context.Background(), attempt, candidates, declineOutcome("CARD_DECLINED"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(h.dispatcher.calls) != 1 {
		t.Fatalf("dispatched %d retries, want 1 (budget cap)", len(h.dispatcher.calls))
	}
	if final.AttemptID != "pay_1_1" {
		t.Errorf("final attempt = %q, want pay_1_1", final.AttemptID)
	}
	if h.counter.counts[CounterRetriesExhausted] != 1 {
		t.Errorf("exhausted counter = %d, want 1", h.counter.counts[CounterRetriesExhausted])
	}
}

func TestRun_ProfileBudgetFallback(t *testing.T) {
	h := newHarness(t)
	h.gsm.rules["stripe|CARD_DECLINED"] = retryRule("UE_2001")
	h.config.ints[fmt.Sprintf(store.KeyProfileMaxAutoRetries, "prof_1")] = 1
	h.dispatcher.outcomes["adyen"] = []*domain.CallOutcome{chargedOutcome()}

	attempt := firstAttempt("stripe")
	_, outcome, err := h.engine.Run(context.Background(), attempt,
		domain.Retryable(domain.Candidate{Connector: "stripe"}, domain.Candidate{Connector: "adyen"}),
		declineOutcome("CARD_DECLINED"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if outcome.Status != domain.StatusCharged {
		t.Errorf("final status = %q, want charged via profile budget", outcome.Status)
	}
}

func TestRun_ZeroBudgetByDefault(t *testing.T) {
	h := newHarness(t)
	h.gsm.rules["stripe|CARD_DECLINED"] = retryRule("UE_2001")

	attempt := firstAttempt("stripe")
	_, _, err := h.engine.Run(context.Background(), attempt,
		domain.Retryable(domain.Candidate{Connector: "stripe"}, domain.Candidate{Connector: "adyen"}),
		declineOutcome("CARD_DECLINED"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(h.dispatcher.calls) != 0 {
		t.Error("no configured budget means no retries")
	}
}

func TestRun_SkipsUnhealthyConnector(t *testing.T) {
	h := newHarness(t)
	h.gsm.rules["stripe|CARD_DECLINED"] = retryRule("UE_2001")
	h.config.ints[fmt.Sprintf(store.KeyMerchantMaxAutoRetries, "m_1")] = 2
	h.dispatcher.outcomes["checkout"] = []*domain.CallOutcome{chargedOutcome()}

	health := &fakeHealth{unhealthy: map[string]bool{"adyen": true}}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	engine := NewEngine(h.dispatcher, h.gsm, h.attempts, h.config, health, h.counter, logger)

	attempt := firstAttempt("stripe")
	_, outcome, err := engine.Run(context.Background(), attempt,
		domain.Retryable(
			domain.Candidate{Connector: "stripe"},
			domain.Candidate{Connector: "adyen"},
			domain.Candidate{Connector: "checkout"},
		),
		declineOutcome("CARD_DECLINED"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(h.dispatcher.calls) != 1 || h.dispatcher.calls[0].connector != "checkout" {
		t.Errorf("calls = %v, want unhealthy adyen skipped for checkout", h.dispatcher.calls)
	}
	if outcome.Status != domain.StatusCharged {
		t.Errorf("final status = %q, want charged", outcome.Status)
	}
}

func TestRun_LastCandidateTriedEvenIfUnhealthy(t *testing.T) {
	h := newHarness(t)
	h.gsm.rules["stripe|CARD_DECLINED"] = retryRule("UE_2001")
	h.config.ints[fmt.Sprintf(store.KeyMerchantMaxAutoRetries, "m_1")] = 2
	h.dispatcher.outcomes["adyen"] = []*domain.CallOutcome{chargedOutcome()}

	health := &fakeHealth{unhealthy: map[string]bool{"adyen": true}}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	engine := NewEngine(h.dispatcher, h.gsm, h.attempts, h.config, health, h.counter, logger)

	attempt := firstAttempt("stripe")
	_, outcome, err := engine.Run(context.Background(), attempt,
		domain.Retryable(domain.Candidate{Connector: "stripe"}, domain.Candidate{Connector: "adyen"}),
		declineOutcome("CARD_DECLINED"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(h.dispatcher.calls) != 1 || h.dispatcher.calls[0].connector != "adyen" {
		t.Errorf("calls = %v, want the sole remaining candidate tried", h.dispatcher.calls)
	}
	if outcome.Status != domain.StatusCharged {
		t.Errorf("final status = %q, want charged", outcome.Status)
	}
}

func TestRun_StepUpRetriesSameConnectorWithThreeDS(t *testing.T) {
	h := newHarness(t)
	h.gsm.rules["stripe|AUTH_REQUIRED"] = &domain.GsmRecord{
		Decision:       domain.GsmRetry,
		StepUpPossible: true,
		UnifiedCode:    "UE_3001",
	}
	h.config.lists[fmt.Sprintf(store.KeyMerchantStepUpConnectors, "m_1")] = []string{"stripe"}
	h.config.ints[fmt.Sprintf(store.KeyMerchantMaxAutoRetries, "m_1")] = 5
	h.dispatcher.outcomes["stripe"] = []*domain.CallOutcome{chargedOutcome()}

	attempt := firstAttempt("stripe")
	final, outcome, err := h.engine.Run(context.Background(), attempt,
		domain.Retryable(domain.Candidate{Connector: "stripe"}, domain.Candidate{Connector: "adyen"}),
		declineOutcome("AUTH_REQUIRED"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(h.dispatcher.calls) != 1 {
		t.Fatalf("dispatched %d calls, want exactly 1 step-up", len(h.dispatcher.calls))
	}
	call := h.dispatcher.calls[0]
	if call.connector != "stripe" {
		t.Errorf("step-up connector = %q, want the same connector", call.connector)
	}
	if call.authType != domain.AuthThreeDS {
		t.Errorf("step-up auth type = %q, want three_ds", call.authType)
	}
	if final.AttemptID != "pay_1_1" {
		t.Errorf("final attempt = %q, want pay_1_1", final.AttemptID)
	}
	if outcome.Status != domain.StatusCharged {
		t.Errorf("final status = %q, want charged", outcome.Status)
	}
}

func TestRun_StepUpNeverLoops(t *testing.T) {
	h := newHarness(t)
	// Both the original failure and the step-up failure would be step-up
	// eligible by GSM, but the second attempt runs three_ds so step-up no
	// longer applies — and the loop must not fire either.
	rule := &domain.GsmRecord{Decision: domain.GsmRetry, StepUpPossible: true, UnifiedCode: "UE_3001"}
	h.gsm.rules["stripe|AUTH_REQUIRED"] = rule
	h.config.lists[fmt.Sprintf(store.KeyMerchantStepUpConnectors, "m_1")] = []string{"stripe"}
	h.config.ints[fmt.Sprintf(store.KeyMerchantMaxAutoRetries, "m_1")] = 5
	h.dispatcher.outcomes["stripe"] = []*domain.CallOutcome{declineOutcome("AUTH_REQUIRED")}

	attempt := firstAttempt("stripe")
	final, outcome, err := h.engine.Run(context.Background(), attempt,
		domain.Retryable(domain.Candidate{Connector: "stripe"}, domain.Candidate{Connector: "adyen"}),
		declineOutcome("AUTH_REQUIRED"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(h.dispatcher.calls) != 1 {
		t.Fatalf("dispatched %d calls, want exactly 1 (step-up is one-shot)", len(h.dispatcher.calls))
	}
	if final.AttemptID != "pay_1_1" {
		t.Errorf("final attempt = %q, want the step-up attempt", final.AttemptID)
	}
	if !outcome.Failed() {
		t.Error("the step-up failure is the authoritative result")
	}
	// The final failure's unified codes come from its own GSM signature
	if final.UnifiedCode == nil || *final.UnifiedCode != "UE_3001" {
		t.Error("unified code should be re-resolved for the step-up result")
	}
}

func TestRun_StepUpRequiresMerchantOptIn(t *testing.T) {
	h := newHarness(t)
	h.gsm.rules["stripe|AUTH_REQUIRED"] = &domain.GsmRecord{Decision: domain.GsmDoDefault, StepUpPossible: true}
	// merchant list does not include stripe
	h.config.lists[fmt.Sprintf(store.KeyMerchantStepUpConnectors, "m_1")] = []string{"adyen"}

	attempt := firstAttempt("stripe")
	_, _, err := h.engine.Run(context.Background(), attempt,
		domain.Retryable(domain.Candidate{Connector: "stripe"}),
		declineOutcome("AUTH_REQUIRED"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(h.dispatcher.calls) != 0 {
		t.Error("step-up must not fire without merchant opt-in")
	}
}

func TestRun_StepUpSkippedForThreeDSAttempt(t *testing.T) {
	h := newHarness(t)
	h.gsm.rules["stripe|AUTH_REQUIRED"] = &domain.GsmRecord{Decision: domain.GsmDoDefault, StepUpPossible: true}
	h.config.lists[fmt.Sprintf(store.KeyMerchantStepUpConnectors, "m_1")] = []string{"stripe"}

	attempt := firstAttempt("stripe")
	attempt.AuthenticationType = domain.AuthThreeDS

	_, _, err := h.engine.Run(context.Background(), attempt,
		domain.Retryable(domain.Candidate{Connector: "stripe"}),
		declineOutcome("AUTH_REQUIRED"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(h.dispatcher.calls) != 0 {
		t.Error("an attempt that already ran three_ds cannot step up")
	}
}

func TestBuildChangeset_FailureOutcome(t *testing.T) {
	attempt := firstAttempt("stripe")
	attempt.ExternalLatencyMs = 120
	outcome := declineOutcome("CARD_DECLINED")
	gsmRec := &domain.GsmRecord{UnifiedCode: "UE_2001", UnifiedMessage: "card declined"}

	ch := BuildChangeset(attempt, outcome, gsmRec)

	if ch.Status != domain.StatusAuthorizationFailed {
		t.Errorf("status = %q, want authorization_failed", ch.Status)
	}
	if ch.ErrorCode == nil || *ch.ErrorCode != "CARD_DECLINED" {
		t.Error("error code should be written")
	}
	if ch.UnifiedCode == nil || *ch.UnifiedCode != "UE_2001" {
		t.Error("unified code should come from the GSM record")
	}
	if ch.AmountCapturableCents == nil || *ch.AmountCapturableCents != 0 {
		t.Error("a failed attempt has nothing capturable")
	}
	if ch.ExternalLatencyMs == nil || *ch.ExternalLatencyMs != 120 {
		t.Error("accumulated latency should be persisted")
	}

	// Deterministic: the same inputs produce the same changeset
	again := BuildChangeset(attempt, outcome, gsmRec)
	if ch.Status != again.Status || *ch.ErrorCode != *again.ErrorCode {
		t.Error("BuildChangeset should be deterministic")
	}
}

func TestBuildChangeset_SuccessOutcome(t *testing.T) {
	attempt := firstAttempt("stripe")
	outcome := chargedOutcome()

	ch := BuildChangeset(attempt, outcome, nil)

	if ch.Status != domain.StatusCharged {
		t.Errorf("status = %q, want charged", ch.Status)
	}
	if ch.ConnectorTransactionID == nil || *ch.ConnectorTransactionID != "txn_ok" {
		t.Error("transaction id should be written")
	}
	if ch.ErrorCode != nil {
		t.Error("a success writes no error fields")
	}
	if ch.AmountCapturableCents == nil || *ch.AmountCapturableCents != 0 {
		t.Error("charged is terminal: nothing left capturable")
	}
}

func TestBuildChangeset_PendingKeepsCapturable(t *testing.T) {
	attempt := firstAttempt("stripe")
	outcome := &domain.CallOutcome{
		Status:   domain.StatusPending,
		Response: &domain.TransactionResponse{ConnectorTransactionID: "txn_p", Status: domain.StatusPending},
	}

	ch := BuildChangeset(attempt, outcome, nil)
	if ch.AmountCapturableCents != nil {
		t.Error("a pending attempt keeps its capturable amount")
	}
}
