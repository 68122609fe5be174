package config

import (
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		DatabaseURL:          "postgres://localhost/leads",
		BusTransport:         "memory",
		BusPartitions:        4,
		BusMaxDeliveries:     5,
		BusRedeliveryBackoff: time.Second,
		RequoteLimit:         1,
		AgentLookupTimeout:   2 * time.Second,
		AgentLookupAttempts:  3,
		LedgerRetention:      24 * time.Hour,
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidateRejectsLookupTimeoutBeyondRedeliveryWindow(t *testing.T) {
	cfg := validConfig()
	cfg.AgentLookupTimeout = 10 * time.Second
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected lookup timeout longer than the redelivery window to be rejected")
	}
}

func TestValidateRequiresRedisForRedisTransport(t *testing.T) {
	cfg := validConfig()
	cfg.BusTransport = "redis"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected missing REDIS_URL to be rejected")
	}
	cfg.RedisURL = "redis://localhost:6379/0"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected config with REDIS_URL to pass, got %v", err)
	}
}

func TestValidateRejectsShortLedgerRetention(t *testing.T) {
	cfg := validConfig()
	cfg.LedgerRetention = time.Second
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected retention shorter than the redelivery window to be rejected")
	}
}

func TestValidateRequiresDatabaseOnlyForDistributedMode(t *testing.T) {
	cfg := validConfig()
	cfg.DatabaseURL = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected memory mode without a database to pass, got %v", err)
	}

	cfg.BusTransport = "redis"
	cfg.RedisURL = "redis://localhost:6379/0"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected missing DATABASE_URL to be rejected for the redis transport")
	}
}
