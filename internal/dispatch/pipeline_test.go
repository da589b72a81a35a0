package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/Priya8975/payment-switch/internal/connector"
	"github.com/Priya8975/payment-switch/internal/domain"
)

type stubTelemetry struct {
	counters []string
	events   []ConnectorEvent
}

func (s *stubTelemetry) ConnectorEvent(ctx context.Context, ev ConnectorEvent) {
	s.events = append(s.events, ev)
}

func (s *stubTelemetry) Incr(ctx context.Context, counter, connectorName, flow string) {
	s.counters = append(s.counters, counter)
}

func (s *stubTelemetry) has(counter string) bool {
	for _, c := range s.counters {
		if c == counter {
			return true
		}
	}
	return false
}

type stubLimiter struct{ allow bool }

func (s *stubLimiter) Allow(ctx context.Context, connectorName string) bool { return s.allow }

type stubHealth struct {
	successes int
	failures  int
}

func (s *stubHealth) RecordSuccess(ctx context.Context, connectorName string) { s.successes++ }
func (s *stubHealth) RecordFailure(ctx context.Context, connectorName string) { s.failures++ }

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testAttempt() *domain.PaymentAttempt {
	return &domain.PaymentAttempt{
		AttemptID:          "pay_1_0",
		PaymentID:          "pay_1",
		Status:             domain.StatusStarted,
		Connector:          "mock",
		AuthenticationType: domain.AuthNoThreeDS,
		MerchantID:         "m_1",
		ProfileID:          "prof_1",
		AmountCents:        5000,
		Currency:           "USD",
		CaptureMethod:      "automatic",
	}
}

func newTestPipeline(t *testing.T, baseURL string, timeout time.Duration) (*Pipeline, *stubTelemetry, *stubHealth) {
	t.Helper()
	adapter := &connector.RESTAdapter{ConnectorName: "mock", BaseURL: baseURL, APIKey: "test"}
	registry := connector.NewRegistry(adapter)
	telemetry := &stubTelemetry{}
	health := &stubHealth{}
	p := New(registry, telemetry, nil, health, "authorize", timeout, testLogger())
	return p, telemetry, health
}

func TestPipeline_SuccessResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/authorize" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.Header.Get("X-Flow") != "authorize" {
			t.Errorf("X-Flow = %q, want authorize", r.Header.Get("X-Flow"))
		}
		if r.Header.Get("X-Correlation-ID") == "" {
			t.Error("missing X-Correlation-ID header")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"transaction_id":"txn_1","status":"charged"}`))
	}))
	defer srv.Close()

	p, telemetry, health := newTestPipeline(t, srv.URL, 5*time.Second)
	attempt := testAttempt()

	outcome, err := p.Execute(context.Background(), attempt, domain.Candidate{Connector: "mock"}, Trigger())
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if outcome.Failed() {
		t.Fatalf("outcome failed: %+v", outcome.Error)
	}
	if outcome.Status != domain.StatusCharged {
		t.Errorf("status = %q, want charged", outcome.Status)
	}
	if outcome.Response.ConnectorTransactionID != "txn_1" {
		t.Errorf("transaction id = %q, want txn_1", outcome.Response.ConnectorTransactionID)
	}
	if outcome.HTTPStatusCode == nil || *outcome.HTTPStatusCode != 200 {
		t.Error("expected HTTP 200 recorded on the outcome")
	}
	if !telemetry.has(CounterCalls) {
		t.Error("expected a connector_calls counter increment")
	}
	if health.successes != 1 {
		t.Errorf("health successes = %d, want 1", health.successes)
	}
	if attempt.ExternalLatencyMs < 0 {
		t.Error("latency should accumulate on the attempt")
	}
}

func TestPipeline_DeclineAppliesAttemptStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"code":"CARD_DECLINED","message":"insufficient funds","declined":true}`))
	}))
	defer srv.Close()

	p, telemetry, health := newTestPipeline(t, srv.URL, 5*time.Second)
	attempt := testAttempt()

	outcome, err := p.Execute(context.Background(), attempt, domain.Candidate{Connector: "mock"}, Trigger())
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !outcome.Failed() {
		t.Fatal("expected a failed outcome")
	}
	if outcome.Error.Code != "CARD_DECLINED" {
		t.Errorf("error code = %q, want CARD_DECLINED", outcome.Error.Code)
	}
	if outcome.Error.StatusCode != 402 {
		t.Errorf("error status code = %d, want 402", outcome.Error.StatusCode)
	}
	// A 4xx naming an attempt status applies it to the attempt immediately
	if attempt.Status != domain.StatusAuthorizationFailed {
		t.Errorf("attempt status = %q, want authorization_failed", attempt.Status)
	}
	if outcome.Status != domain.StatusAuthorizationFailed {
		t.Errorf("outcome status = %q, want authorization_failed", outcome.Status)
	}
	if !telemetry.has(CounterErrorResponses) {
		t.Error("expected a connector_error_responses counter increment")
	}
	if health.failures != 1 {
		t.Errorf("health failures = %d, want 1", health.failures)
	}
}

func TestPipeline_ServerFaultUses5xxParser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"internal server error"}`))
	}))
	defer srv.Close()

	p, _, _ := newTestPipeline(t, srv.URL, 5*time.Second)
	attempt := testAttempt()

	outcome, err := p.Execute(context.Background(), attempt, domain.Candidate{Connector: "mock"}, Trigger())
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !outcome.Failed() {
		t.Fatal("expected a failed outcome")
	}
	if outcome.Error.Code != "CONNECTOR_UNAVAILABLE" {
		t.Errorf("error code = %q, want CONNECTOR_UNAVAILABLE", outcome.Error.Code)
	}
	if outcome.Error.StatusCode != 500 {
		t.Errorf("error status code = %d, want 500", outcome.Error.StatusCode)
	}
	// A 5xx carries no attempt status; the working attempt is untouched
	if attempt.Status != domain.StatusStarted {
		t.Errorf("attempt status = %q, want started", attempt.Status)
	}
}

func TestPipeline_UnexpectedStatusIsFatal(t *testing.T) {
	// 301 is outside every classification bucket
	redirect := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMovedPermanently)
	}))
	defer redirect.Close()

	p, _, _ := newTestPipeline(t, redirect.URL, 5*time.Second)

	_, err := p.Execute(context.Background(), testAttempt(), domain.Candidate{Connector: "mock"}, Trigger())
	if !errors.Is(err, ErrUnexpectedResponse) {
		t.Errorf("error = %v, want ErrUnexpectedResponse", err)
	}
}

func TestPipeline_TimeoutBecomesSynthetic504(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	p, telemetry, health := newTestPipeline(t, srv.URL, 50*time.Millisecond)
	attempt := testAttempt()

	outcome, err := p.Execute(context.Background(), attempt, domain.Candidate{Connector: "mock"}, Trigger())
	if err != nil {
		t.Fatalf("a timeout must not be fatal, got error %v", err)
	}
	if !outcome.Failed() {
		t.Fatal("expected a failed outcome")
	}
	if outcome.Error.Code != domain.ErrCodeRequestTimeout {
		t.Errorf("error code = %q, want %q", outcome.Error.Code, domain.ErrCodeRequestTimeout)
	}
	if outcome.Error.StatusCode != 504 {
		t.Errorf("error status code = %d, want 504", outcome.Error.StatusCode)
	}
	if !telemetry.has(CounterErrorResponses) {
		t.Error("expected a connector_error_responses counter increment")
	}
	if health.failures != 1 {
		t.Errorf("health failures = %d, want 1", health.failures)
	}
}

func TestPipeline_ThrottledCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("a throttled call must never reach the connector")
	}))
	defer srv.Close()

	adapter := &connector.RESTAdapter{ConnectorName: "mock", BaseURL: srv.URL, APIKey: "test"}
	registry := connector.NewRegistry(adapter)
	telemetry := &stubTelemetry{}
	p := New(registry, telemetry, &stubLimiter{allow: false}, nil, "authorize", 5*time.Second, testLogger())

	outcome, err := p.Execute(context.Background(), testAttempt(), domain.Candidate{Connector: "mock"}, Trigger())
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !outcome.Failed() {
		t.Fatal("expected a failed outcome")
	}
	if outcome.Error.Code != domain.ErrCodeConnectorThrottled {
		t.Errorf("error code = %q, want %q", outcome.Error.Code, domain.ErrCodeConnectorThrottled)
	}
	if outcome.Error.StatusCode != 429 {
		t.Errorf("error status code = %d, want 429", outcome.Error.StatusCode)
	}
}

func TestPipeline_UnknownConnectorIsFatal(t *testing.T) {
	p, _, _ := newTestPipeline(t, "http://localhost:0", time.Second)

	_, err := p.Execute(context.Background(), testAttempt(), domain.Candidate{Connector: "nope"}, Trigger())
	if !errors.Is(err, ErrAdapterNotFound) {
		t.Errorf("error = %v, want ErrAdapterNotFound", err)
	}
}

func TestPipeline_StatusUpdateAction(t *testing.T) {
	p, _, _ := newTestPipeline(t, "http://localhost:0", time.Second)
	attempt := testAttempt()

	code := "AUTHENTICATION_FAILED"
	msg := "3DS challenge failed"
	outcome, err := p.Execute(context.Background(), attempt, domain.Candidate{Connector: "mock"},
		StatusUpdate(domain.StatusAuthenticationFailed, &code, &msg))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if attempt.Status != domain.StatusAuthenticationFailed {
		t.Errorf("attempt status = %q, want authentication_failed", attempt.Status)
	}
	if outcome.Error == nil || outcome.Error.Code != code {
		t.Errorf("outcome error = %+v, want code %q", outcome.Error, code)
	}
}

func TestPipeline_AvoidAction(t *testing.T) {
	p, _, _ := newTestPipeline(t, "http://localhost:0", time.Second)
	attempt := testAttempt()
	attempt.Status = domain.StatusPending

	outcome, err := p.Execute(context.Background(), attempt, domain.Candidate{Connector: "mock"}, Avoid())
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if outcome.Status != domain.StatusPending {
		t.Errorf("outcome status = %q, want the attempt's current status", outcome.Status)
	}
}
