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

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// SchedulerConfig provides Redis and asynq settings.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// WhatsAppConfig provides settings for the WhatsApp gateway.
type WhatsAppConfig interface {
	GetWhatsAppURL() string
	GetWhatsAppKey() string
	GetWhatsAppDeviceID() string
	GetWhatsAppDefaultRegion() string
	GetWhatsAppSendsPerSecond() float64
}

// SequencesConfig provides settings for the sequence processor.
type SequencesConfig interface {
	GetCronSecret() string
	GetSequencesTimezone() *time.Location
	GetSequencesConcurrency() int
	GetSequencesBatchSize() int
	GetSequencesRunBudget() time.Duration
	GetSequencesClaimLease() time.Duration
	GetSequencesRetryBackoff() time.Duration
	GetSequencesSendWindowTolerance() time.Duration
	GetSequencesFailureAlertThreshold() int
}

// AlertConfig provides SMTP settings for operator alerts.
type AlertConfig interface {
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetAlertFromAddress() string
	GetAlertRecipients() []string
	IsAlertingEnabled() bool
}

// MinIOConfig provides settings for MinIO S3-compatible storage.
type MinIOConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinioBucketSequenceMedia() string
	IsMinIOEnabled() bool
}

// MonitoringConfig provides error tracking settings.
type MonitoringConfig interface {
	GetSentryDSN() string
	GetEnv() string
}

// RunTimeoutMargin is the slack a triggered processor run gets on top of
// SEQUENCES_RUN_BUDGET for sends already in flight when the budget ends.
const RunTimeoutMargin = 30 * time.Second

// CronConfig provides settings for the external processing caller.
type CronConfig interface {
	GetCronSecret() string
	GetProcessURL() string
	GetProcessSchedule() string
	GetProcessTimeout() time.Duration
	GetAutomationRunRetention() time.Duration
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                      string
	HTTPAddr                 string
	DatabaseURL              string
	MigrationsEnabled        bool
	JWTAccessSecret          string
	CORSAllowAll             bool
	CORSOrigins              []string
	CORSAllowCreds           bool
	RedisURL                 string
	RedisTLSInsecure         bool
	AsynqQueueName           string
	AsynqConcurrency         int
	WhatsAppURL              string
	WhatsAppKey              string
	WhatsAppDeviceID         string
	WhatsAppDefaultRegion    string
	WhatsAppSendsPerSecond   float64
	CronSecret               string
	SequencesTimezone        *time.Location
	SequencesConcurrency     int
	SequencesBatchSize       int
	SequencesRunBudget       time.Duration
	SequencesClaimLease      time.Duration
	SequencesRetryBackoff    time.Duration
	SendWindowTolerance      time.Duration
	FailureAlertThreshold    int
	SMTPHost                 string
	SMTPPort                 int
	SMTPUsername             string
	SMTPPassword             string
	AlertFromAddress         string
	AlertRecipients          []string
	MinIOEndpoint            string
	MinIOAccessKey           string
	MinIOSecretKey           string
	MinIOUseSSL              bool
	MinioBucketSequenceMedia string
	SentryDSN                string
	ProcessURL               string
	ProcessSchedule          string
	ProcessTimeout           time.Duration
	AutomationRunRetention   time.Duration
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

// WhatsAppConfig implementation
func (c *Config) GetWhatsAppURL() string             { return c.WhatsAppURL }
func (c *Config) GetWhatsAppKey() string             { return c.WhatsAppKey }
func (c *Config) GetWhatsAppDeviceID() string        { return c.WhatsAppDeviceID }
func (c *Config) GetWhatsAppDefaultRegion() string   { return c.WhatsAppDefaultRegion }
func (c *Config) GetWhatsAppSendsPerSecond() float64 { return c.WhatsAppSendsPerSecond }

// SequencesConfig implementation
func (c *Config) GetCronSecret() string                          { return c.CronSecret }
func (c *Config) GetSequencesTimezone() *time.Location           { return c.SequencesTimezone }
func (c *Config) GetSequencesConcurrency() int                   { return c.SequencesConcurrency }
func (c *Config) GetSequencesBatchSize() int                     { return c.SequencesBatchSize }
func (c *Config) GetSequencesRunBudget() time.Duration           { return c.SequencesRunBudget }
func (c *Config) GetSequencesClaimLease() time.Duration          { return c.SequencesClaimLease }
func (c *Config) GetSequencesRetryBackoff() time.Duration        { return c.SequencesRetryBackoff }
func (c *Config) GetSequencesSendWindowTolerance() time.Duration { return c.SendWindowTolerance }
func (c *Config) GetSequencesFailureAlertThreshold() int         { return c.FailureAlertThreshold }

// AlertConfig implementation
func (c *Config) GetSMTPHost() string          { return c.SMTPHost }
func (c *Config) GetSMTPPort() int             { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string      { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string      { return c.SMTPPassword }
func (c *Config) GetAlertFromAddress() string  { return c.AlertFromAddress }
func (c *Config) GetAlertRecipients() []string { return c.AlertRecipients }
func (c *Config) IsAlertingEnabled() bool {
	return c.SMTPHost != "" && c.AlertFromAddress != "" && len(c.AlertRecipients) > 0
}

// MinIOConfig implementation
func (c *Config) GetMinIOEndpoint() string  { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool      { return c.MinIOUseSSL }
func (c *Config) GetMinioBucketSequenceMedia() string {
	return c.MinioBucketSequenceMedia
}
func (c *Config) IsMinIOEnabled() bool { return c.MinIOEndpoint != "" }

// MonitoringConfig implementation
func (c *Config) GetSentryDSN() string { return c.SentryDSN }
func (c *Config) GetEnv() string       { return c.Env }

// CronConfig implementation
func (c *Config) GetProcessURL() string            { return c.ProcessURL }
func (c *Config) GetProcessSchedule() string       { return c.ProcessSchedule }
func (c *Config) GetProcessTimeout() time.Duration { return c.ProcessTimeout }
func (c *Config) GetAutomationRunRetention() time.Duration {
	return c.AutomationRunRetention
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:5173"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	timezone, err := time.LoadLocation(getEnv("SEQUENCES_TIMEZONE", "America/Sao_Paulo"))
	if err != nil {
		return nil, fmt.Errorf("SEQUENCES_TIMEZONE: %w", err)
	}

	cfg := &Config{
		Env:                      getEnv("APP_ENV", "development"),
		HTTPAddr:                 getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:              getEnv("DATABASE_URL", ""),
		MigrationsEnabled:        strings.EqualFold(getEnv("MIGRATIONS_ENABLED", "true"), "true"),
		JWTAccessSecret:          getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:             corsAllowAll,
		CORSOrigins:              corsOrigins,
		CORSAllowCreds:           strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		RedisURL:                 getEnv("REDIS_URL", ""),
		RedisTLSInsecure:         strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:           getEnv("ASYNQ_QUEUE", "automation"),
		AsynqConcurrency:         mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		WhatsAppURL:              getEnv("WHATSAPP_URL", ""),
		WhatsAppKey:              getEnv("WHATSAPP_KEY", ""),
		WhatsAppDeviceID:         getEnv("WHATSAPP_DEVICE_ID", ""),
		WhatsAppDefaultRegion:    getEnv("WHATSAPP_DEFAULT_REGION", "BR"),
		WhatsAppSendsPerSecond:   mustFloat(getEnv("WHATSAPP_SENDS_PER_SECOND", "5")),
		CronSecret:               getEnv("CRON_SECRET", ""),
		SequencesTimezone:        timezone,
		SequencesConcurrency:     mustInt(getEnv("SEQUENCES_CONCURRENCY", "4")),
		SequencesBatchSize:       mustInt(getEnv("SEQUENCES_BATCH_SIZE", "200")),
		SequencesRunBudget:       mustDuration(getEnv("SEQUENCES_RUN_BUDGET", "55s")),
		SequencesClaimLease:      mustDuration(getEnv("SEQUENCES_CLAIM_LEASE", "2m")),
		SequencesRetryBackoff:    mustDuration(getEnv("SEQUENCES_RETRY_BACKOFF", "5m")),
		SendWindowTolerance:      mustDuration(getEnv("SEQUENCES_SEND_WINDOW_TOLERANCE", "1h")),
		FailureAlertThreshold:    mustInt(getEnv("SEQUENCES_FAILURE_ALERT_THRESHOLD", "5")),
		SMTPHost:                 getEnv("SMTP_HOST", ""),
		SMTPPort:                 mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:             getEnv("SMTP_USERNAME", ""),
		SMTPPassword:             getEnv("SMTP_PASSWORD", ""),
		AlertFromAddress:         getEnv("ALERT_FROM_ADDRESS", ""),
		AlertRecipients:          splitCSV(getEnv("ALERT_RECIPIENTS", "")),
		MinIOEndpoint:            getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:           getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:           getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:              strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		MinioBucketSequenceMedia: getEnv("MINIO_BUCKET_SEQUENCE_MEDIA", "sequence-media"),
		SentryDSN:                getEnv("SENTRY_DSN", ""),
		ProcessURL:               getEnv("PROCESS_URL", "http://localhost:8080/api/v1/internal/sequences/process"),
		ProcessSchedule:          getEnv("PROCESS_SCHEDULE", "@every 1m"),
		ProcessTimeout:           mustDuration(getEnv("PROCESS_TIMEOUT", "90s")),
		AutomationRunRetention:   mustDuration(getEnv("AUTOMATION_RUN_RETENTION", "2160h")),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.CronSecret == "" {
		return nil, fmt.Errorf("CRON_SECRET is required")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	if cfg.ProcessTimeout > 0 && cfg.SequencesRunBudget+RunTimeoutMargin > cfg.ProcessTimeout {
		return nil, fmt.Errorf("PROCESS_TIMEOUT must be at least SEQUENCES_RUN_BUDGET plus %s", RunTimeoutMargin)
	}

	return cfg, nil
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

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
