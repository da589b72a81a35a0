package debitrouting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Priya8975/payment-switch/internal/domain"
)

// OracleRequest identifies the card and acquiring context being ranked.
// Exactly one of CoBadgedCardData / ExtendedBin is set.
type OracleRequest struct {
	MerchantCategoryCode string                   `json:"merchant_category_code"`
	AcquirerCountry      string                   `json:"acquirer_country"`
	CoBadgedCardData     *domain.CoBadgedCardData `json:"co_badged_card_data,omitempty"`
	ExtendedBin          string                   `json:"extended_bin,omitempty"`
}

// OracleResponse is the fee-ascending network ranking. Advisory metadata is
// carried opaquely for logging; this service never interprets it.
type OracleResponse struct {
	Networks []domain.CardNetwork `json:"networks"`
	Advisory json.RawMessage      `json:"advisory,omitempty"`
}

// HTTPOracle calls the external open-router cost-decision service.
type HTTPOracle struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPOracle(baseURL string, timeout time.Duration) *HTTPOracle {
	return &HTTPOracle{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// RankNetworks submits the card identity and returns the cost ranking.
func (o *HTTPOracle) RankNetworks(ctx context.Context, req OracleRequest) (*OracleResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding oracle request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/v1/rank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building oracle request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling oracle: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oracle returned HTTP %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return nil, fmt.Errorf("reading oracle response: %w", err)
	}

	var out OracleResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decoding oracle response: %w", err)
	}
	return &out, nil
}
