package domain

import "time"

// GsmDecision is what the gateway status map tells the retry engine to do
// with a classified failure.
type GsmDecision string

const (
	GsmRetry     GsmDecision = "retry"
	GsmRequeue   GsmDecision = "requeue"
	GsmDoDefault GsmDecision = "do_default"
)

// GsmRecord is one gateway-status-map row: a connector failure signature
// mapped to a retry decision, step-up eligibility, and normalized codes.
type GsmRecord struct {
	ID             string      `json:"id"`
	Connector      string      `json:"connector"`
	Flow           string      `json:"flow"`
	ErrorCode      string      `json:"error_code"`
	ErrorMessage   string      `json:"error_message"`
	Decision       GsmDecision `json:"decision"`
	StepUpPossible bool        `json:"step_up_possible"`
	UnifiedCode    string      `json:"unified_code"`
	UnifiedMessage string      `json:"unified_message"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}
