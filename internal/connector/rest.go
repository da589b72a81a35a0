package connector

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Priya8975/payment-switch/internal/domain"
)

// RESTAdapter is a generic JSON adapter for processors that speak the
// mock-connector wire format. Real processor integrations implement Adapter
// directly; this one exists for local testing and as the reference shape.
type RESTAdapter struct {
	ConnectorName string
	BaseURL       string
	APIKey        string
}

type restAuthorizeRequest struct {
	Reference          string `json:"reference"`
	AmountCents        int64  `json:"amount_cents"`
	Currency           string `json:"currency"`
	CaptureMethod      string `json:"capture_method"`
	AuthenticationType string `json:"authentication_type"`
	Network            string `json:"network,omitempty"`
}

type restAuthorizeResponse struct {
	TransactionID string  `json:"transaction_id"`
	Status        string  `json:"status"`
	RedirectURL   *string `json:"redirect_url,omitempty"`
	Reference     *string `json:"reference,omitempty"`
}

type restErrorResponse struct {
	Code          string  `json:"code"`
	Message       string  `json:"message"`
	Reason        *string `json:"reason,omitempty"`
	TransactionID *string `json:"transaction_id,omitempty"`
	Declined      bool    `json:"declined"`
}

func (a *RESTAdapter) Name() string { return a.ConnectorName }

func (a *RESTAdapter) GetContentType() string { return "application/json" }

func (a *RESTAdapter) GetHeaders(attempt *domain.PaymentAttempt) (http.Header, error) {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+a.APIKey)
	h.Set("Idempotency-Key", attempt.AttemptID)
	return h, nil
}

func (a *RESTAdapter) GetURL(attempt *domain.PaymentAttempt) (string, error) {
	return a.BaseURL + "/v1/authorize", nil
}

func (a *RESTAdapter) GetRequestBody(attempt *domain.PaymentAttempt) ([]byte, error) {
	body := restAuthorizeRequest{
		Reference:          attempt.AttemptID,
		AmountCents:        attempt.AmountCents,
		Currency:           attempt.Currency,
		CaptureMethod:      attempt.CaptureMethod,
		AuthenticationType: string(attempt.AuthenticationType),
		Network:            string(attempt.Network),
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding authorize request: %w", err)
	}
	return data, nil
}

func (a *RESTAdapter) BuildRequest(attempt *domain.PaymentAttempt) (*Request, error) {
	url, err := a.GetURL(attempt)
	if err != nil {
		return nil, err
	}
	headers, err := a.GetHeaders(attempt)
	if err != nil {
		return nil, err
	}
	body, err := a.GetRequestBody(attempt)
	if err != nil {
		return nil, err
	}
	return &Request{
		Method:      http.MethodPost,
		URL:         url,
		Headers:     headers,
		ContentType: a.GetContentType(),
		Body:        body,
	}, nil
}

func (a *RESTAdapter) HandleResponse(attempt *domain.PaymentAttempt, raw []byte) (*domain.TransactionResponse, error) {
	var resp restAuthorizeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decoding authorize response: %w", err)
	}
	status := domain.AttemptStatus(resp.Status)
	if status == "" {
		status = domain.StatusPending
	}
	return &domain.TransactionResponse{
		ConnectorTransactionID: resp.TransactionID,
		Status:                 status,
		RedirectURL:            resp.RedirectURL,
		ConnectorReferenceID:   resp.Reference,
	}, nil
}

func (a *RESTAdapter) GetErrorResponse(raw []byte) (*domain.ErrorResponse, error) {
	var resp restErrorResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decoding error response: %w", err)
	}
	out := &domain.ErrorResponse{
		Code:                   resp.Code,
		Message:                resp.Message,
		Reason:                 resp.Reason,
		ConnectorTransactionID: resp.TransactionID,
	}
	if resp.Declined {
		status := domain.StatusAuthorizationFailed
		out.AttemptStatus = &status
	}
	return out, nil
}

func (a *RESTAdapter) Get5xxErrorResponse(raw []byte) (*domain.ErrorResponse, error) {
	// Server faults from the reference gateway are a bare message, not the
	// structured decline shape.
	var resp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decoding 5xx response: %w", err)
	}
	return &domain.ErrorResponse{
		Code:    "CONNECTOR_UNAVAILABLE",
		Message: resp.Error,
	}, nil
}
