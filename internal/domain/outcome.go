package domain

// ErrorResponse is the canonical failure shape every connector error and
// synthetic timeout is normalized into before retry policy sees it.
type ErrorResponse struct {
	Code                   string         `json:"code"`
	Message                string         `json:"message"`
	Reason                 *string        `json:"reason,omitempty"`
	StatusCode             int            `json:"status_code"`
	AttemptStatus          *AttemptStatus `json:"attempt_status,omitempty"`
	ConnectorTransactionID *string        `json:"connector_transaction_id,omitempty"`
}

// TransactionResponse is the parsed success payload of a connector call.
type TransactionResponse struct {
	ConnectorTransactionID string         `json:"connector_transaction_id"`
	Status                 AttemptStatus  `json:"status"`
	RedirectURL            *string        `json:"redirect_url,omitempty"`
	AuthenticationData     *string        `json:"authentication_data,omitempty"`
	ConnectorReferenceID   *string        `json:"connector_reference_id,omitempty"`
	NetworkTransactionID   *string        `json:"network_transaction_id,omitempty"`
}

// CallOutcome is the classified result of one dispatch pipeline execution.
// Exactly one of Response / Error is set.
type CallOutcome struct {
	Status                  AttemptStatus
	Response                *TransactionResponse
	Error                   *ErrorResponse
	HTTPStatusCode          *int
	ExternalLatencyMs       int64
	ConnectorHTTPStatusCode *int
}

// Failed reports whether the outcome carries an error instead of a parsed
// success payload.
func (o *CallOutcome) Failed() bool {
	return o.Error != nil
}

// Synthetic error codes produced by the pipeline rather than a connector.
const (
	ErrCodeRequestTimeout     = "REQUEST_TIMEOUT"
	ErrCodeConnectorThrottled = "CONNECTOR_THROTTLED"
)

// TimeoutErrorResponse builds the synthetic outcome for an upstream timeout.
// Timeouts are ordinary failures as far as retry policy is concerned.
func TimeoutErrorResponse() *ErrorResponse {
	status := StatusFailure
	return &ErrorResponse{
		Code:          ErrCodeRequestTimeout,
		Message:       "connector did not respond within the deadline",
		StatusCode:    504,
		AttemptStatus: &status,
	}
}

// ThrottledErrorResponse builds the synthetic outcome emitted when the
// per-connector rate limiter denies an outbound call.
func ThrottledErrorResponse(connector string) *ErrorResponse {
	status := StatusFailure
	return &ErrorResponse{
		Code:          ErrCodeConnectorThrottled,
		Message:       "outbound call to " + connector + " was throttled",
		StatusCode:    429,
		AttemptStatus: &status,
	}
}
