package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Core settings
	Environment string
	ServiceName string
	LogLevel    string
	Version     string

	// Component configurations
	HTTP          HTTPConfig
	Retry         RetryConfig
	Handler       HandlerConfig
	Lambda        LambdaConfig
	Database      DatabaseConfig
	Ledger        LedgerConfig
	Policy        PolicyConfig
	Gateway       GatewayConfig
	Queue         QueueConfig
	Storage       StorageConfig
	Observability ObservabilityConfig
}

// HTTPConfig holds outbound HTTP client and listener configuration
type HTTPConfig struct {
	Timeout    time.Duration
	MaxRetries int
	UserAgent  string
	Addr       string // Server address for HTTP mode
}

// RetryConfig holds retry policy configuration
type RetryConfig struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// HandlerConfig holds handler configuration
type HandlerConfig struct {
	Timeout        time.Duration
	MaxRequestSize int64
	EnableHealth   bool
	EnableMetrics  bool
	EnableTracing  bool
	Platform       string // auto-detected if empty
}

// LambdaConfig holds Lambda-specific configuration
type LambdaConfig struct {
	Timeout                   time.Duration
	EnablePartialBatchFailure bool
}

// DatabaseConfig holds PostgreSQL connection settings for the ledger
// and the credential store
type DatabaseConfig struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	SSLMode  string

	MaxOpenConns int
	MaxIdleConns int

	// AutoMigrate applies embedded migrations on startup
	AutoMigrate bool
}

// DSN renders the lib/pq connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.Username,
		d.Password,
		d.Database,
		d.SSLMode,
	)
}

// LedgerConfig holds audit ledger settings
type LedgerConfig struct {
	// Backend selects postgres or memory for the ledger and credential store
	Backend string

	// HistoryLimit is the default and maximum number of rows a history query returns
	HistoryLimit int

	// SeedFile is a JSON list of projects loaded into the memory credential store
	SeedFile string
}

// PolicyConfig selects the evaluation profile and optional threshold overrides.
// Nil overrides keep the profile value.
type PolicyConfig struct {
	Profile          string
	MFAMinPercentage *float64
	RLSMinPercentage *float64
	PITRWALLevels    []string
}

// GatewayConfig holds LLM gateway settings used by the remediation advisor
type GatewayConfig struct {
	URL     string
	Timeout time.Duration
}

// QueueConfig holds check event publisher settings
type QueueConfig struct {
	Provider string // none, rabbitmq, sqs
	Target   string
	RabbitMQ RabbitMQConfig
	SQS      SQSConfig
}

// RabbitMQConfig holds RabbitMQ connection settings
type RabbitMQConfig struct {
	URL     string
	Timeout time.Duration
}

// SQSConfig holds SQS settings
type SQSConfig struct {
	Region   string
	Endpoint string // Only for local development
}

// StorageConfig holds check report archive settings
type StorageConfig struct {
	Provider string // none, s3, fs
	Bucket   string // bucket name for s3, base directory for fs
	Timeout  time.Duration
	S3       S3Config
}

// S3Config holds S3-specific configuration
type S3Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
}

// ObservabilityConfig holds metrics backend selection
type ObservabilityConfig struct {
	MetricsProvider     string // prometheus, cloudwatch
	CloudWatchRegion    string
	CloudWatchNamespace string
}

// Validate validates the entire configuration
func (c *Config) Validate() error {
	var errors []string

	// Core validations
	if c.ServiceName == "" {
		errors = append(errors, "SERVICE_NAME is required")
	}

	// Production-specific validations
	if c.IsProduction() {
		if c.Database.Password == "" {
			errors = append(errors, "DB_PASSWORD is required in production")
		}
		if c.Database.SSLMode == "disable" {
			errors = append(errors, "DB_SSL_MODE cannot be disable in production")
		}
	}

	// Range validations
	if c.HTTP.Timeout <= 0 {
		errors = append(errors, "HTTP_TIMEOUT must be positive")
	}
	if c.HTTP.MaxRetries < 0 {
		errors = append(errors, "HTTP_MAX_RETRIES cannot be negative")
	}
	if c.Handler.Timeout <= 0 {
		errors = append(errors, "HANDLER_TIMEOUT must be positive")
	}
	if c.Handler.Timeout > 0 && c.Gateway.Timeout > 0 && c.Handler.Timeout <= c.Gateway.Timeout {
		errors = append(errors, fmt.Sprintf("HANDLER_TIMEOUT (%v) must exceed GATEWAY_TIMEOUT (%v)", c.Handler.Timeout, c.Gateway.Timeout))
	}
	if c.Handler.MaxRequestSize <= 0 {
		errors = append(errors, "HANDLER_MAX_REQUEST_SIZE must be positive")
	}
	if c.Retry.MaxAttempts < 0 {
		errors = append(errors, "RETRY_MAX_ATTEMPTS cannot be negative")
	}
	if c.Retry.BackoffMultiplier < 1.0 {
		errors = append(errors, "RETRY_BACKOFF_MULTIPLIER must be >= 1.0")
	}
	if c.Ledger.HistoryLimit <= 0 {
		errors = append(errors, "LEDGER_HISTORY_LIMIT must be positive")
	}

	// Policy validations
	if p := c.Policy.MFAMinPercentage; p != nil && (*p < 0 || *p > 100) {
		errors = append(errors, "POLICY_MFA_MIN_PERCENTAGE must be between 0 and 100")
	}
	if p := c.Policy.RLSMinPercentage; p != nil && (*p < 0 || *p > 100) {
		errors = append(errors, "POLICY_RLS_MIN_PERCENTAGE must be between 0 and 100")
	}

	// Gateway validation
	if c.Gateway.URL != "" {
		if u, err := url.Parse(c.Gateway.URL); err != nil || u.Scheme == "" || u.Host == "" {
			errors = append(errors, "GATEWAY_URL must be an absolute URL")
		}
	}

	// Adapter selection
	switch c.Ledger.Backend {
	case "", "postgres":
		if c.Ledger.SeedFile != "" {
			errors = append(errors, "LEDGER_SEED_FILE requires LEDGER_BACKEND=memory")
		}
	case "memory":
	default:
		errors = append(errors, fmt.Sprintf("LEDGER_BACKEND %q is not supported", c.Ledger.Backend))
	}
	switch c.Queue.Provider {
	case "", "none", "rabbitmq", "sqs":
	default:
		errors = append(errors, fmt.Sprintf("QUEUE_PROVIDER %q is not supported", c.Queue.Provider))
	}
	switch c.Storage.Provider {
	case "", "none", "fs":
	case "s3":
		if c.Storage.Bucket == "" {
			errors = append(errors, "STORAGE_BUCKET is required for s3 storage")
		}
	default:
		errors = append(errors, fmt.Sprintf("STORAGE_PROVIDER %q is not supported", c.Storage.Provider))
	}
	switch c.Observability.MetricsProvider {
	case "", "prometheus", "cloudwatch":
	default:
		errors = append(errors, fmt.Sprintf("OBSERVABILITY_METRICS_PROVIDER %q is not supported", c.Observability.MetricsProvider))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

// gatewayHeadroom is the minimum gap kept in production between the
// gateway budget and the handler deadline.
const gatewayHeadroom = 15 * time.Second

// ProbeHTTP returns the client settings for project probes. Unreachable
// targets are retried by RetryMiddleware when request retries are on, so
// the client then makes a single attempt.
func (c *Config) ProbeHTTP() HTTPConfig {
	cfg := c.HTTP
	if c.Retry.MaxAttempts > 1 {
		cfg.MaxRetries = 0
	}
	return cfg
}

// GatewayHTTP returns the client settings for the LLM gateway. Gateway
// failures never reach RetryMiddleware, so HTTP_MAX_RETRIES applies here.
func (c *Config) GatewayHTTP() HTTPConfig {
	cfg := c.HTTP
	if c.Gateway.Timeout > 0 {
		cfg.Timeout = c.Gateway.Timeout
	}
	return cfg
}

// applyDefaults applies environment-specific defaults
func (c *Config) applyDefaults() {
	env := strings.ToLower(c.Environment)

	// Generate default resource names if not provided
	if c.Queue.Target == "" {
		c.Queue.Target = fmt.Sprintf("compliance-%s-checks", env)
	}
	if c.Storage.Provider == "fs" && c.Storage.Bucket == "" {
		c.Storage.Bucket = "./data/checks"
	}
	if c.Observability.CloudWatchNamespace == "" {
		c.Observability.CloudWatchNamespace = fmt.Sprintf("%s/%s", c.ServiceName, env)
	}

	// Apply environment-specific defaults
	if c.IsProduction() {
		// More conservative settings for production
		if c.Handler.Timeout < 60*time.Second {
			c.Handler.Timeout = 60 * time.Second
		}
		if c.Handler.Timeout <= c.Gateway.Timeout {
			c.Handler.Timeout = c.Gateway.Timeout + gatewayHeadroom
		}
		if c.Retry.MaxAttempts < 3 {
			c.Retry.MaxAttempts = 3
		}
		c.Handler.EnableMetrics = true
		c.Handler.EnableTracing = true
	}

	if c.IsLocal() {
		c.Handler.EnableTracing = false
	}
}
