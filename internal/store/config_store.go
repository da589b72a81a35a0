package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Priya8975/payment-switch/internal/domain"
	"github.com/redis/go-redis/v9"
)

// ConfigStore is the flat key→string lookup for merchant and profile
// configuration: step-up connector lists, retry budgets, and debit-routing
// flags and allowlists. Values are read per decision with no local cache, so
// a config write is visible on the next evaluation; that is the documented
// staleness tolerance.
type ConfigStore struct {
	client *redis.Client
}

func NewConfigStore(client *redis.Client) *ConfigStore {
	return &ConfigStore{client: client}
}

// Config key patterns. Lists are comma-separated values.
const (
	KeyMerchantStepUpConnectors  = "cfg:merchant:%s:step_up_connectors"
	KeyMerchantMaxAutoRetries    = "cfg:merchant:%s:max_auto_retries"
	KeyProfileMaxAutoRetries     = "cfg:profile:%s:max_auto_retries"
	KeyProfileDebitRouting       = "cfg:profile:%s:debit_routing_enabled"
	KeyGlobalDynamicRouting      = "cfg:global:dynamic_routing_enabled"
	KeyDebitRoutingConnectors    = "cfg:global:debit_routing_connectors"
	KeyDebitRoutingCurrencies    = "cfg:global:debit_routing_currencies"
	KeyConnectorRateLimit        = "cfg:connector:%s:rate_limit_per_second"
	KeyMerchantFallbackPriority  = "cfg:merchant:%s:fallback_connectors"
	KeyMerchantConnectorNetworks = "cfg:merchant:%s:connector:%s:debit_networks"
)

// Get returns the raw value for a key, or ok=false when unset.
func (c *ConfigStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("reading config key %s: %w", key, err)
	}
	return val, true, nil
}

// Set writes a config value. Used by provisioning and tests.
func (c *ConfigStore) Set(ctx context.Context, key, value string) error {
	if err := c.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("writing config key %s: %w", key, err)
	}
	return nil
}

// GetInt parses an integer config value. Returns ok=false when unset or
// unparseable.
func (c *ConfigStore) GetInt(ctx context.Context, key string) (int, bool, error) {
	val, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return 0, false, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		return 0, false, nil
	}
	return n, true, nil
}

// GetBool parses a boolean config value. Unset means false.
func (c *ConfigStore) GetBool(ctx context.Context, key string) (bool, error) {
	val, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	b, err := strconv.ParseBool(strings.TrimSpace(val))
	if err != nil {
		return false, nil
	}
	return b, nil
}

// GetList parses a comma-separated config value. Unset means empty.
func (c *ConfigStore) GetList(ctx context.Context, key string) ([]string, error) {
	val, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return nil, err
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out, nil
}

// GetSet parses a comma-separated config value into a membership set.
func (c *ConfigStore) GetSet(ctx context.Context, key string) (map[string]struct{}, error) {
	list, err := c.GetList(ctx, key)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(list))
	for _, item := range list {
		set[item] = struct{}{}
	}
	return set, nil
}

// SupportedDebitNetworks reads the enabled debit networks of one
// merchant-connector account. ok=false means the merchant has no account
// configured for that connector.
func (c *ConfigStore) SupportedDebitNetworks(ctx context.Context, merchantID, connectorName string) ([]domain.CardNetwork, bool, error) {
	key := fmt.Sprintf(KeyMerchantConnectorNetworks, merchantID, connectorName)
	val, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	var networks []domain.CardNetwork
	for _, part := range strings.Split(val, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			networks = append(networks, domain.CardNetwork(trimmed))
		}
	}
	return networks, true, nil
}
