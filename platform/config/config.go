// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// MigrationConfig provides the migrations directory for the service database.
type MigrationConfig interface {
	GetMigrationsDir() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetOperatorRPS() float64
}

// RedisConfig provides the shared Redis connection settings.
type RedisConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
}

// BusConfig provides settings for the event transport.
type BusConfig interface {
	RedisConfig
	GetBusTransport() string
	GetBusPartitions() int
	GetBusMaxDeliveries() int
	GetBusRedeliveryBackoff() time.Duration
	GetBusReadBlock() time.Duration
}

// SchedulerConfig provides settings for the asynq scheduler.
type SchedulerConfig interface {
	RedisConfig
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// ChoreographyConfig provides the lead lifecycle policy knobs.
type ChoreographyConfig interface {
	GetRequoteLimit() int
	GetAgentLookupTimeout() time.Duration
	GetAgentLookupAttempts() int
	GetAgentLookupBackoff() time.Duration
	GetLedgerRetention() time.Duration
	GetLedgerCleanupInterval() time.Duration
}

// OutboxConfig provides settings for the outbox relay.
type OutboxConfig interface {
	GetOutboxPollInterval() time.Duration
	GetOutboxBatchSize() int
}

// LeadLookupConfig provides settings for the synchronous lead lookup.
type LeadLookupConfig interface {
	GetLeadServiceURL() string
	GetLeadLookupTimeout() time.Duration
}

// AgentDirectoryConfig provides settings for the eligible-agent lookup.
type AgentDirectoryConfig interface {
	GetAgentDirectoryURL() string
	GetAgentDirectoryRPS() float64
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                   string
	ServiceName           string
	HTTPAddr              string
	OperatorRPS           float64
	DatabaseURL           string
	MigrationsDir         string
	RedisURL              string
	RedisTLSInsecure      bool
	BusTransport          string
	BusPartitions         int
	BusMaxDeliveries      int
	BusRedeliveryBackoff  time.Duration
	BusReadBlock          time.Duration
	AsynqQueueName        string
	AsynqConcurrency      int
	RequoteLimit          int
	AgentLookupTimeout    time.Duration
	AgentLookupAttempts   int
	AgentLookupBackoff    time.Duration
	AgentDirectoryURL     string
	AgentDirectoryRPS     float64
	LeadServiceURL        string
	LeadLookupTimeout     time.Duration
	LedgerRetention       time.Duration
	LedgerCleanupInterval time.Duration
	OutboxPollInterval    time.Duration
	OutboxBatchSize       int
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// MigrationConfig implementation
func (c *Config) GetMigrationsDir() string { return c.MigrationsDir }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string     { return c.HTTPAddr }
func (c *Config) GetOperatorRPS() float64 { return c.OperatorRPS }

// RedisConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }

// BusConfig implementation
func (c *Config) GetBusTransport() string                { return c.BusTransport }
func (c *Config) GetBusPartitions() int                  { return c.BusPartitions }
func (c *Config) GetBusMaxDeliveries() int               { return c.BusMaxDeliveries }
func (c *Config) GetBusRedeliveryBackoff() time.Duration { return c.BusRedeliveryBackoff }
func (c *Config) GetBusReadBlock() time.Duration         { return c.BusReadBlock }

// SchedulerConfig implementation
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

// ChoreographyConfig implementation
func (c *Config) GetRequoteLimit() int                    { return c.RequoteLimit }
func (c *Config) GetAgentLookupTimeout() time.Duration    { return c.AgentLookupTimeout }
func (c *Config) GetAgentLookupAttempts() int             { return c.AgentLookupAttempts }
func (c *Config) GetAgentLookupBackoff() time.Duration    { return c.AgentLookupBackoff }
func (c *Config) GetLedgerRetention() time.Duration       { return c.LedgerRetention }
func (c *Config) GetLedgerCleanupInterval() time.Duration { return c.LedgerCleanupInterval }

// OutboxConfig implementation
func (c *Config) GetOutboxPollInterval() time.Duration { return c.OutboxPollInterval }
func (c *Config) GetOutboxBatchSize() int              { return c.OutboxBatchSize }

// LeadLookupConfig implementation
func (c *Config) GetLeadServiceURL() string           { return c.LeadServiceURL }
func (c *Config) GetLeadLookupTimeout() time.Duration { return c.LeadLookupTimeout }

// AgentDirectoryConfig implementation
func (c *Config) GetAgentDirectoryURL() string  { return c.AgentDirectoryURL }
func (c *Config) GetAgentDirectoryRPS() float64 { return c.AgentDirectoryRPS }

// InMemory reports whether the single-process in-memory mode is selected.
func (c *Config) InMemory() bool {
	return c.BusTransport == "memory"
}

// RedeliveryWindow is the longest a partition will wait before redelivering
// a failed envelope.
func (c *Config) RedeliveryWindow() time.Duration {
	return c.BusRedeliveryBackoff * time.Duration(c.BusMaxDeliveries)
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:                   getEnv("APP_ENV", "development"),
		ServiceName:           getEnv("SERVICE_NAME", ""),
		HTTPAddr:              getEnv("HTTP_ADDR", ":8080"),
		OperatorRPS:           mustFloat(getEnv("OPERATOR_RPS", "0")),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		MigrationsDir:         getEnv("MIGRATIONS_DIR", ""),
		RedisURL:              getEnv("REDIS_URL", ""),
		RedisTLSInsecure:      strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		BusTransport:          strings.ToLower(getEnv("BUS_TRANSPORT", "redis")),
		BusPartitions:         mustInt(getEnv("BUS_PARTITIONS", "16")),
		BusMaxDeliveries:      mustInt(getEnv("BUS_MAX_DELIVERIES", "5")),
		BusRedeliveryBackoff:  mustDuration(getEnv("BUS_REDELIVERY_BACKOFF", "500ms")),
		BusReadBlock:          mustDuration(getEnv("BUS_READ_BLOCK", "2s")),
		AsynqQueueName:        getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:      mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		RequoteLimit:          mustInt(getEnv("REQUOTE_LIMIT", "1")),
		AgentLookupTimeout:    mustDuration(getEnv("AGENT_LOOKUP_TIMEOUT", "2s")),
		AgentLookupAttempts:   mustInt(getEnv("AGENT_LOOKUP_ATTEMPTS", "3")),
		AgentLookupBackoff:    mustDuration(getEnv("AGENT_LOOKUP_BACKOFF", "1s")),
		AgentDirectoryURL:     getEnv("AGENT_DIRECTORY_URL", ""),
		AgentDirectoryRPS:     mustFloat(getEnv("AGENT_DIRECTORY_RPS", "20")),
		LeadServiceURL:        getEnv("LEAD_SERVICE_URL", ""),
		LeadLookupTimeout:     mustDuration(getEnv("LEAD_LOOKUP_TIMEOUT", "2s")),
		LedgerRetention:       mustDuration(getEnv("LEDGER_RETENTION", "720h")),
		LedgerCleanupInterval: mustDuration(getEnv("LEDGER_CLEANUP_INTERVAL", "1h")),
		OutboxPollInterval:    mustDuration(getEnv("OUTBOX_POLL_INTERVAL", "500ms")),
		OutboxBatchSize:       mustInt(getEnv("OUTBOX_BATCH_SIZE", "100")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required keys and cross-field invariants.
func (c *Config) Validate() error {
	if c.BusTransport != "redis" && c.BusTransport != "memory" {
		return fmt.Errorf("BUS_TRANSPORT must be redis or memory, got %q", c.BusTransport)
	}
	if c.DatabaseURL == "" && c.BusTransport == "redis" {
		return fmt.Errorf("DATABASE_URL is required when BUS_TRANSPORT is redis")
	}
	if c.BusTransport == "redis" && c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required when BUS_TRANSPORT is redis")
	}
	if c.BusPartitions < 1 {
		return fmt.Errorf("BUS_PARTITIONS must be positive")
	}
	if c.BusMaxDeliveries < 1 {
		return fmt.Errorf("BUS_MAX_DELIVERIES must be positive")
	}
	if c.RequoteLimit < 0 {
		return fmt.Errorf("REQUOTE_LIMIT cannot be negative")
	}
	if c.AgentLookupAttempts < 1 {
		return fmt.Errorf("AGENT_LOOKUP_ATTEMPTS must be positive")
	}
	if c.AgentLookupTimeout <= 0 || c.AgentLookupTimeout >= c.RedeliveryWindow() {
		return fmt.Errorf("AGENT_LOOKUP_TIMEOUT must be positive and shorter than the redelivery window (%s)", c.RedeliveryWindow())
	}
	if c.LedgerRetention <= c.RedeliveryWindow() {
		return fmt.Errorf("LEDGER_RETENTION must exceed the redelivery window (%s)", c.RedeliveryWindow())
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}
	return result
}
