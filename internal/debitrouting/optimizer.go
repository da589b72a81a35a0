// Package debitrouting re-orders connector and network choices by processing
// cost before the first dispatch of an eligible debit confirmation. It is a
// cost optimization, not a correctness requirement: every failure inside it
// degrades to passing the original candidate list through unchanged.
package debitrouting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Priya8975/payment-switch/internal/domain"
	"github.com/Priya8975/payment-switch/internal/store"
)

// ErrNoUSLocalNetwork rejects a rebuilt list with no PIN-debit candidate.
// Emitting such a list would silently violate the regulatory routing
// requirement, so the caller must fall back to the static list instead.
var ErrNoUSLocalNetwork = errors.New("debitrouting: rebuilt list has no US local network candidate")

// OperationConfirm is the only operation the optimizer runs for.
const OperationConfirm = "confirm"

const defaultMerchantCategoryCode = "5999"

// Oracle ranks card networks by ascending processing cost.
type Oracle interface {
	RankNetworks(ctx context.Context, req OracleRequest) (*OracleResponse, error)
}

// AccountResolver resolves a merchant-connector account's supported debit
// networks. ok=false means the merchant has no account for that connector.
type AccountResolver interface {
	SupportedDebitNetworks(ctx context.Context, merchantID, connectorName string) ([]domain.CardNetwork, bool, error)
}

// Config reads the debit-routing flags and allowlists.
type Config interface {
	GetBool(ctx context.Context, key string) (bool, error)
	GetSet(ctx context.Context, key string) (map[string]struct{}, error)
}

// Optimizer gates, ranks, and rebuilds the candidate list for eligible
// debit confirmations.
type Optimizer struct {
	config         Config
	oracle         Oracle
	accounts       AccountResolver
	logger         *slog.Logger
	defaultCountry string
}

func NewOptimizer(config Config, oracle Oracle, accounts AccountResolver, defaultCountry string, logger *slog.Logger) *Optimizer {
	if defaultCountry == "" {
		defaultCountry = "US"
	}
	return &Optimizer{
		config:         config,
		oracle:         oracle,
		accounts:       accounts,
		logger:         logger,
		defaultCountry: defaultCountry,
	}
}

// Optimize returns the candidate list the retry engine should consume. When
// the payment is ineligible, the oracle fails, or no card identity can be
// extracted, the original list comes back unchanged with a nil error. Only
// the missing-US-local invariant surfaces an error, and even then the
// original list is returned for the caller to fall back to.
func (o *Optimizer) Optimize(ctx context.Context, intent *domain.PaymentIntent, method *domain.PaymentMethodData, operation string, candidates domain.CandidateList) (domain.CandidateList, error) {
	eligible, err := o.shouldExecute(ctx, intent, method, operation, candidates)
	if err != nil {
		o.logger.Error("debit routing eligibility check failed", "error", err, "payment_id", intent.ID)
		return candidates, nil
	}
	if !eligible {
		return candidates, nil
	}

	identity, ok := extractCardIdentity(method)
	if !ok {
		return candidates, nil
	}

	country := intent.BusinessCountry
	if country == "" {
		country = o.defaultCountry
	}

	resp, err := o.oracle.RankNetworks(ctx, OracleRequest{
		MerchantCategoryCode: defaultMerchantCategoryCode,
		AcquirerCountry:      country,
		CoBadgedCardData:     identity.CoBadged,
		ExtendedBin:          identity.ExtendedBin,
	})
	if err != nil {
		// The oracle is advisory; its failures never propagate.
		o.logger.Warn("debit routing oracle unavailable", "error", err, "payment_id", intent.ID)
		return candidates, nil
	}
	if len(resp.Networks) == 0 {
		return candidates, nil
	}

	rebuilt, err := o.rebuild(ctx, intent.MerchantID, candidates, resp.Networks)
	if err != nil {
		return candidates, err
	}
	if len(rebuilt.Candidates) == 0 {
		return candidates, nil
	}

	o.logger.Info("debit routing applied",
		"payment_id", intent.ID,
		"candidates", len(rebuilt.Candidates),
	)
	return rebuilt, nil
}

// shouldExecute is the eligibility gate; every condition must hold.
func (o *Optimizer) shouldExecute(ctx context.Context, intent *domain.PaymentIntent, method *domain.PaymentMethodData, operation string, candidates domain.CandidateList) (bool, error) {
	if operation != OperationConfirm {
		return false, nil
	}
	if candidates.Kind == domain.ListSessionMultiple {
		return false, nil
	}

	profileEnabled, err := o.config.GetBool(ctx, fmt.Sprintf(store.KeyProfileDebitRouting, intent.ProfileID))
	if err != nil {
		return false, err
	}
	globalEnabled, err := o.config.GetBool(ctx, store.KeyGlobalDynamicRouting)
	if err != nil {
		return false, err
	}
	if !profileEnabled || !globalEnabled {
		return false, nil
	}

	if intent.FutureUsage == domain.UsageOffSession {
		return false, nil
	}
	if intent.AmountCents <= 0 {
		return false, nil
	}
	if intent.AuthenticationType != domain.AuthNoThreeDS {
		return false, nil
	}

	currencies, err := o.config.GetSet(ctx, store.KeyDebitRoutingCurrencies)
	if err != nil {
		return false, err
	}
	if _, ok := currencies[intent.Currency]; !ok {
		return false, nil
	}

	if !isDebitInstrument(method) {
		return false, nil
	}

	// At least one of the merchant's configured connectors must support
	// debit routing at all, or there is nothing to optimize.
	allowlist, err := o.config.GetSet(ctx, store.KeyDebitRoutingConnectors)
	if err != nil {
		return false, err
	}
	for _, c := range candidates.Candidates {
		if _, ok := allowlist[c.Connector]; ok {
			return true, nil
		}
	}
	return false, nil
}

// isDebitInstrument accepts a debit card or an Apple Pay wallet carrying a
// decrypted debit PAN token. A pass-through network token exposes no BIN and
// cannot be debit-routed.
func isDebitInstrument(method *domain.PaymentMethodData) bool {
	if method == nil {
		return false
	}
	switch method.Kind {
	case domain.MethodCard:
		return method.Card != nil && method.Card.CardType == domain.CardTypeDebit
	case domain.MethodApplePay:
		return method.ApplePay != nil &&
			method.ApplePay.TokenKind == domain.ApplePayDecrypted &&
			method.ApplePay.CardType == domain.CardTypeDebit
	}
	return false
}

type cardIdentity struct {
	CoBadged    *domain.CoBadgedCardData
	ExtendedBin string
}

// extractCardIdentity applies the precedence order: stored co-badged
// metadata, then the raw card's extended BIN, then the decrypted Apple Pay
// PAN's extended BIN. No match means the optimizer skips entirely.
func extractCardIdentity(method *domain.PaymentMethodData) (cardIdentity, bool) {
	if method == nil {
		return cardIdentity{}, false
	}
	if method.Card != nil && method.Card.CoBadged != nil {
		return cardIdentity{CoBadged: method.Card.CoBadged}, true
	}
	if method.Card != nil {
		if bin := domain.ExtendedBin(method.Card.Number); bin != "" {
			return cardIdentity{ExtendedBin: bin}, true
		}
	}
	if method.ApplePay != nil && method.ApplePay.TokenKind == domain.ApplePayDecrypted {
		if bin := domain.ExtendedBin(method.ApplePay.DecryptedPAN); bin != "" {
			return cardIdentity{ExtendedBin: bin}, true
		}
	}
	return cardIdentity{}, false
}

// rebuild intersects each original connector's supported debit networks with
// the oracle's fee-ordered list, fee order outermost, and enforces the
// US-local invariant on the result.
func (o *Optimizer) rebuild(ctx context.Context, merchantID string, candidates domain.CandidateList, ranked []domain.CardNetwork) (domain.CandidateList, error) {
	allowlist, err := o.config.GetSet(ctx, store.KeyDebitRoutingConnectors)
	if err != nil {
		return domain.CandidateList{}, err
	}

	connectors := uniqueConnectors(candidates)
	supported := make(map[string]map[domain.CardNetwork]struct{}, len(connectors))
	for _, name := range connectors {
		networks, ok, err := o.accounts.SupportedDebitNetworks(ctx, merchantID, name)
		if err != nil {
			return domain.CandidateList{}, fmt.Errorf("resolving networks for %s: %w", name, err)
		}
		if !ok {
			continue
		}
		set := make(map[domain.CardNetwork]struct{}, len(networks))
		for _, n := range networks {
			set[n] = struct{}{}
		}
		supported[name] = set
	}

	var rebuilt []domain.Candidate
	hasUSLocal := false
	for _, network := range ranked {
		for _, name := range connectors {
			set, ok := supported[name]
			if !ok {
				continue
			}
			if _, ok := set[network]; !ok {
				continue
			}
			// PIN networks require the connector to be allowlisted;
			// signature networks may always be considered.
			if _, allowed := allowlist[name]; !allowed && !network.IsSignature() {
				continue
			}
			rebuilt = append(rebuilt, domain.Candidate{Connector: name, Network: network})
			if network.IsUSLocal() {
				hasUSLocal = true
			}
		}
	}

	if len(rebuilt) > 0 && !hasUSLocal {
		return domain.CandidateList{}, ErrNoUSLocalNetwork
	}
	return domain.Retryable(rebuilt...), nil
}

func uniqueConnectors(candidates domain.CandidateList) []string {
	seen := make(map[string]struct{}, len(candidates.Candidates))
	var out []string
	for _, c := range candidates.Candidates {
		if _, ok := seen[c.Connector]; ok {
			continue
		}
		seen[c.Connector] = struct{}{}
		out = append(out, c.Connector)
	}
	return out
}
