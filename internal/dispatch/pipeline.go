// Package dispatch executes exactly one connector call for one payment
// attempt and classifies the raw result into a normalized CallOutcome. It
// never decides to retry; that is the retry engine's job.
package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/Priya8975/payment-switch/internal/connector"
	"github.com/Priya8975/payment-switch/internal/domain"
	"github.com/google/uuid"
)

// Fatal pipeline errors. Everything else a connector can do is normalized
// into a failed CallOutcome and handed to retry policy.
var (
	ErrAdapterNotFound         = errors.New("dispatch: no adapter registered for connector")
	ErrRequestEncoding         = errors.New("dispatch: building connector request failed")
	ErrResponseDeserialization = errors.New("dispatch: connector response could not be parsed")
	ErrUnexpectedResponse      = errors.New("dispatch: unexpected connector response status")
)

// Counter names emitted by the pipeline.
const (
	CounterCalls                   = "connector_calls"
	CounterBuildFailures           = "request_build_failures"
	CounterDeserializationFailures = "response_deserialization_failures"
	CounterErrorResponses          = "connector_error_responses"
)

// ConnectorEvent is the audit record written for every connector call,
// success or failure. The request body is masked before it gets here.
type ConnectorEvent struct {
	AttemptID    string
	PaymentID    string
	Connector    string
	Flow         string
	Method       string
	URL          string
	MaskedBody   string
	LatencyMs    int64
	StatusCode   *int
	Outcome      string
	ErrorCode    string
	ErrorMessage string
}

// Telemetry receives connector events and named counters from the pipeline.
type Telemetry interface {
	ConnectorEvent(ctx context.Context, ev ConnectorEvent)
	Incr(ctx context.Context, counter, connectorName, flow string)
}

// Limiter gates outbound calls per connector. A nil limiter allows everything.
type Limiter interface {
	Allow(ctx context.Context, connectorName string) bool
}

// HealthRecorder tracks per-connector call results for the circuit breaker.
// A nil recorder is a no-op.
type HealthRecorder interface {
	RecordSuccess(ctx context.Context, connectorName string)
	RecordFailure(ctx context.Context, connectorName string)
}

// ActionKind selects what Execute does for a call.
type ActionKind string

const (
	actionTrigger        ActionKind = "trigger"
	actionHandleResponse ActionKind = "handle_response"
	actionStatusUpdate   ActionKind = "status_update"
	actionAvoid          ActionKind = "avoid"
)

// Action tells the pipeline whether to call the connector, re-parse bytes
// from a redirect continuation, force a status, or do nothing.
type Action struct {
	Kind         ActionKind
	Raw          []byte
	Status       domain.AttemptStatus
	ErrorCode    *string
	ErrorMessage *string
}

// Trigger builds and executes the connector HTTP call.
func Trigger() Action { return Action{Kind: actionTrigger} }

// HandleResponse skips the network call and runs only the response parser
// over caller-supplied bytes.
func HandleResponse(raw []byte) Action { return Action{Kind: actionHandleResponse, Raw: raw} }

// StatusUpdate forces the attempt's status without calling the connector.
func StatusUpdate(status domain.AttemptStatus, code, message *string) Action {
	return Action{Kind: actionStatusUpdate, Status: status, ErrorCode: code, ErrorMessage: message}
}

// Avoid is a no-op passthrough.
func Avoid() Action { return Action{Kind: actionAvoid} }

const maxResponseBytes = 64 * 1024

// Pipeline turns a payment attempt plus a connector candidate into one HTTP
// call and a classified outcome.
type Pipeline struct {
	httpClient *http.Client
	registry   *connector.Registry
	telemetry  Telemetry
	limiter    Limiter
	health     HealthRecorder
	logger     *slog.Logger
	flow       string
}

// New creates a pipeline for one flow name ("authorize" for confirmations).
func New(registry *connector.Registry, telemetry Telemetry, limiter Limiter, health HealthRecorder, flow string, timeout time.Duration, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		httpClient: &http.Client{Timeout: timeout},
		registry:   registry,
		telemetry:  telemetry,
		limiter:    limiter,
		health:     health,
		logger:     logger,
		flow:       flow,
	}
}

// Flow returns the flow name the pipeline executes.
func (p *Pipeline) Flow() string { return p.flow }

// Execute runs one action for one attempt and returns the classified
// outcome. Fatal errors (encoding, deserialization, protocol anomalies)
// return a nil outcome and an error; every business failure and timeout
// comes back as a normal failed outcome for retry policy to act on.
func (p *Pipeline) Execute(ctx context.Context, attempt *domain.PaymentAttempt, candidate domain.Candidate, action Action) (*domain.CallOutcome, error) {
	switch action.Kind {
	case actionTrigger:
		return p.trigger(ctx, attempt, candidate)
	case actionHandleResponse:
		return p.handleResponse(attempt, candidate, action.Raw)
	case actionStatusUpdate:
		attempt.Status = action.Status
		outcome := &domain.CallOutcome{Status: action.Status}
		if action.ErrorCode != nil || action.ErrorMessage != nil {
			outcome.Error = &domain.ErrorResponse{
				Code:          stringOr(action.ErrorCode, ""),
				Message:       stringOr(action.ErrorMessage, ""),
				AttemptStatus: &action.Status,
			}
		}
		return outcome, nil
	case actionAvoid:
		return &domain.CallOutcome{Status: attempt.Status}, nil
	default:
		return nil, fmt.Errorf("dispatch: unknown action %q", action.Kind)
	}
}

func (p *Pipeline) trigger(ctx context.Context, attempt *domain.PaymentAttempt, candidate domain.Candidate) (*domain.CallOutcome, error) {
	adapter, ok := p.registry.Get(candidate.Connector)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAdapterNotFound, candidate.Connector)
	}

	if p.limiter != nil && !p.limiter.Allow(ctx, candidate.Connector) {
		errResp := domain.ThrottledErrorResponse(candidate.Connector)
		p.telemetry.Incr(ctx, CounterErrorResponses, candidate.Connector, p.flow)
		return &domain.CallOutcome{Status: domain.StatusFailure, Error: errResp}, nil
	}

	req, err := adapter.BuildRequest(attempt)
	if err != nil {
		p.telemetry.Incr(ctx, CounterBuildFailures, candidate.Connector, p.flow)
		return nil, fmt.Errorf("%w: %v", ErrRequestEncoding, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		p.telemetry.Incr(ctx, CounterBuildFailures, candidate.Connector, p.flow)
		return nil, fmt.Errorf("%w: %v", ErrRequestEncoding, err)
	}
	for key, values := range req.Headers {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	httpReq.Header.Set("Content-Type", req.ContentType)
	httpReq.Header.Set("X-Flow", p.flow)
	httpReq.Header.Set("X-Connector", candidate.Connector)
	httpReq.Header.Set("X-Correlation-ID", uuid.NewString())

	event := ConnectorEvent{
		AttemptID:  attempt.AttemptID,
		PaymentID:  attempt.PaymentID,
		Connector:  candidate.Connector,
		Flow:       p.flow,
		Method:     req.Method,
		URL:        req.URL,
		MaskedBody: maskBody(req.Body),
	}

	start := time.Now()
	resp, err := p.httpClient.Do(httpReq)
	elapsed := time.Since(start).Milliseconds()
	attempt.ExternalLatencyMs += elapsed
	event.LatencyMs = elapsed

	p.telemetry.Incr(ctx, CounterCalls, candidate.Connector, p.flow)

	if err != nil {
		if isTimeout(err) {
			// A timed-out call is a normal failure as far as retry policy is
			// concerned; the synthetic 504 flows through GSM like any decline.
			errResp := domain.TimeoutErrorResponse()
			event.Outcome = "timeout"
			event.ErrorCode = errResp.Code
			p.telemetry.ConnectorEvent(ctx, event)
			p.telemetry.Incr(ctx, CounterErrorResponses, candidate.Connector, p.flow)
			p.recordHealth(ctx, candidate.Connector, false)
			code := errResp.StatusCode
			return &domain.CallOutcome{
				Status:            domain.StatusFailure,
				Error:             errResp,
				HTTPStatusCode:    &code,
				ExternalLatencyMs: elapsed,
			}, nil
		}
		event.Outcome = "transport_error"
		event.ErrorMessage = err.Error()
		p.telemetry.ConnectorEvent(ctx, event)
		p.recordHealth(ctx, candidate.Connector, false)
		return nil, fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		event.Outcome = "read_error"
		event.ErrorMessage = err.Error()
		p.telemetry.ConnectorEvent(ctx, event)
		return nil, fmt.Errorf("%w: reading body: %v", ErrUnexpectedResponse, err)
	}

	statusCode := resp.StatusCode
	event.StatusCode = &statusCode

	outcome, err := p.classify(ctx, adapter, attempt, candidate, statusCode, body)
	if err != nil {
		event.Outcome = "classification_error"
		event.ErrorMessage = err.Error()
		p.telemetry.ConnectorEvent(ctx, event)
		return nil, err
	}

	outcome.HTTPStatusCode = &statusCode
	outcome.ConnectorHTTPStatusCode = &statusCode
	outcome.ExternalLatencyMs = elapsed

	if outcome.Failed() {
		event.Outcome = "error"
		event.ErrorCode = outcome.Error.Code
		event.ErrorMessage = outcome.Error.Message
		p.telemetry.Incr(ctx, CounterErrorResponses, candidate.Connector, p.flow)
		p.recordHealth(ctx, candidate.Connector, false)
	} else {
		event.Outcome = "success"
		p.recordHealth(ctx, candidate.Connector, true)
	}
	p.telemetry.ConnectorEvent(ctx, event)

	return outcome, nil
}

func (p *Pipeline) recordHealth(ctx context.Context, connectorName string, success bool) {
	if p.health == nil {
		return
	}
	if success {
		p.health.RecordSuccess(ctx, connectorName)
	} else {
		p.health.RecordFailure(ctx, connectorName)
	}
}

// classify buckets the HTTP status and runs the matching adapter parser.
func (p *Pipeline) classify(ctx context.Context, adapter connector.Adapter, attempt *domain.PaymentAttempt, candidate domain.Candidate, statusCode int, body []byte) (*domain.CallOutcome, error) {
	switch {
	case statusCode >= 200 && statusCode <= 202, statusCode == 204, statusCode == 302:
		resp, err := adapter.HandleResponse(attempt, body)
		if err != nil {
			p.telemetry.Incr(ctx, CounterDeserializationFailures, candidate.Connector, p.flow)
			return nil, fmt.Errorf("%w: %v", ErrResponseDeserialization, err)
		}
		return &domain.CallOutcome{Status: resp.Status, Response: resp}, nil

	case statusCode >= 500 && statusCode <= 599:
		errResp, err := adapter.Get5xxErrorResponse(body)
		if err != nil {
			p.telemetry.Incr(ctx, CounterDeserializationFailures, candidate.Connector, p.flow)
			return nil, fmt.Errorf("%w: %v", ErrResponseDeserialization, err)
		}
		errResp.StatusCode = statusCode
		return &domain.CallOutcome{Status: failureStatus(errResp), Error: errResp}, nil

	case statusCode >= 400 && statusCode <= 499:
		errResp, err := adapter.GetErrorResponse(body)
		if err != nil {
			p.telemetry.Incr(ctx, CounterDeserializationFailures, candidate.Connector, p.flow)
			return nil, fmt.Errorf("%w: %v", ErrResponseDeserialization, err)
		}
		errResp.StatusCode = statusCode
		// A 4xx that names an attempt status applies it to the working
		// attempt right away; the store update follows later.
		if errResp.AttemptStatus != nil {
			attempt.Status = *errResp.AttemptStatus
		}
		return &domain.CallOutcome{Status: failureStatus(errResp), Error: errResp}, nil

	default:
		return nil, fmt.Errorf("%w: HTTP %d", ErrUnexpectedResponse, statusCode)
	}
}

func (p *Pipeline) handleResponse(attempt *domain.PaymentAttempt, candidate domain.Candidate, raw []byte) (*domain.CallOutcome, error) {
	adapter, ok := p.registry.Get(candidate.Connector)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAdapterNotFound, candidate.Connector)
	}
	resp, err := adapter.HandleResponse(attempt, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseDeserialization, err)
	}
	return &domain.CallOutcome{Status: resp.Status, Response: resp}, nil
}

func failureStatus(e *domain.ErrorResponse) domain.AttemptStatus {
	if e.AttemptStatus != nil {
		return *e.AttemptStatus
	}
	return domain.StatusFailure
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func stringOr(s *string, fallback string) string {
	if s != nil {
		return *s
	}
	return fallback
}
