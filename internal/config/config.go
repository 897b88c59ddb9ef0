package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Environment names accepted in a session config.
const (
	EnvSandbox    = "sandbox"
	EnvProduction = "production"
)

// Config aggregates runtime configuration grouped by concern.
type Config struct {
	ServiceName string
	Capability  CapabilityConfig
	Bridge      BridgeConfig
	Kafka       KafkaConfig
	Session     SessionConfig
}

// CapabilityConfig selects the payment capability implementation at startup.
// The selection happens here, once, instead of runtime type checks in the
// call paths.
type CapabilityConfig struct {
	Kind         string // "sandbox" or "stripe"
	StripeAPIKey string
}

type BridgeConfig struct {
	// ResultTimeout bounds how long an accepted call may wait for its
	// authoritative event. Zero keeps the call pending until dispose.
	ResultTimeout time.Duration
}

type KafkaConfig struct {
	Brokers       []string
	OutcomesTopic string
}

// SessionConfig carries the credentials and hints handed to the native
// component at initialization. It is treated as opaque by the bridge core
// and is never mutated after init.
type SessionConfig struct {
	MerchantID  string
	Secret      string
	PublicKey   string
	Environment string
	Appearance  map[string]string
}

// Validate rejects configs the native component cannot initialize with.
func (s SessionConfig) Validate() error {
	if s.MerchantID == "" {
		return fmt.Errorf("session config: merchant id is required")
	}
	if s.PublicKey == "" {
		return fmt.Errorf("session config: public key is required")
	}
	if s.Environment != EnvSandbox && s.Environment != EnvProduction {
		return fmt.Errorf("session config: unknown environment %q", s.Environment)
	}
	return nil
}

// Redacted renders the config for logs. The secret never appears in full.
func (s SessionConfig) Redacted() string {
	return fmt.Sprintf("merchant=%s env=%s key=%s secret=%s",
		s.MerchantID, s.Environment, s.PublicKey, redact(s.Secret))
}

func redact(v string) string {
	if len(v) <= 4 {
		return "****"
	}
	return v[:2] + strings.Repeat("*", len(v)-4) + v[len(v)-2:]
}

// Load reads configuration from environment variables, applying sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		ServiceName: getEnv("SERVICE_NAME", "native-payment-bridge"),
		Capability: CapabilityConfig{
			Kind:         getEnv("BRIDGE_CAPABILITY", "sandbox"),
			StripeAPIKey: getEnv("STRIPE_API_KEY", ""),
		},
		Kafka: KafkaConfig{
			Brokers:       splitAndTrim(getEnv("KAFKA_BROKERS", "")),
			OutcomesTopic: getEnv("KAFKA_OUTCOMES_TOPIC", "payment-outcomes.v1"),
		},
		Session: SessionConfig{
			MerchantID:  getEnv("BRIDGE_MERCHANT_ID", "merchant-demo"),
			Secret:      getEnv("BRIDGE_SESSION_SECRET", ""),
			PublicKey:   getEnv("BRIDGE_PUBLIC_KEY", "pk_demo"),
			Environment: getEnv("BRIDGE_ENVIRONMENT", EnvSandbox),
		},
	}

	timeoutStr := getEnv("BRIDGE_RESULT_TIMEOUT", "0s")
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return Config{}, fmt.Errorf("parse BRIDGE_RESULT_TIMEOUT: %w", err)
	}
	cfg.Bridge.ResultTimeout = timeout

	if cfg.Capability.Kind != "sandbox" && cfg.Capability.Kind != "stripe" {
		return Config{}, fmt.Errorf("unknown BRIDGE_CAPABILITY %q", cfg.Capability.Kind)
	}
	if cfg.Capability.Kind == "stripe" && cfg.Capability.StripeAPIKey == "" {
		return Config{}, fmt.Errorf("STRIPE_API_KEY is required when BRIDGE_CAPABILITY=stripe")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
