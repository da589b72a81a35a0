package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ConnectorEndpoint is one configured processor endpoint.
type ConnectorEndpoint struct {
	Name    string
	BaseURL string
}

// Config holds all configuration for the application.
type Config struct {
	Port             string
	DatabaseURL      string
	RedisURL         string
	NumWorkers       int
	ConnectorTimeout time.Duration
	ConnectorAPIKey  string
	Connectors       []ConnectorEndpoint
	OracleURL        string
	AcquirerCountry  string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	port := getEnv("PORT", "8080")
	dbURL := getEnv("DATABASE_URL", "")
	redisURL := getEnv("REDIS_URL", "")
	numWorkers := getEnvInt("NUM_WORKERS", 50)
	connectorTimeout := getEnvInt("CONNECTOR_TIMEOUT_MS", 10000)
	apiKey := getEnv("CONNECTOR_API_KEY", "test_key")
	oracleURL := getEnv("DEBIT_ORACLE_URL", "")
	acquirerCountry := getEnv("DEBIT_ROUTING_DEFAULT_COUNTRY", "US")

	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if redisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	connectors, err := parseConnectors(getEnv("CONNECTORS", ""))
	if err != nil {
		return nil, err
	}
	if len(connectors) == 0 {
		return nil, fmt.Errorf("CONNECTORS is required (name=base_url,name=base_url)")
	}

	return &Config{
		Port:             port,
		DatabaseURL:      dbURL,
		RedisURL:         redisURL,
		NumWorkers:       numWorkers,
		ConnectorTimeout: time.Duration(connectorTimeout) * time.Millisecond,
		ConnectorAPIKey:  apiKey,
		Connectors:       connectors,
		OracleURL:        oracleURL,
		AcquirerCountry:  acquirerCountry,
	}, nil
}

// parseConnectors parses "name=base_url,name=base_url" pairs.
func parseConnectors(raw string) ([]ConnectorEndpoint, error) {
	if raw == "" {
		return nil, nil
	}

	var endpoints []ConnectorEndpoint
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, url, ok := strings.Cut(pair, "=")
		if !ok || name == "" || url == "" {
			return nil, fmt.Errorf("invalid CONNECTORS entry %q", pair)
		}
		endpoints = append(endpoints, ConnectorEndpoint{Name: name, BaseURL: url})
	}
	return endpoints, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}
