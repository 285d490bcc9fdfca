package config

import "time"

// DefaultHandlerConfig returns sensible defaults for handler configuration
func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{
		Timeout:        90 * time.Second,
		MaxRequestSize: 1024 * 1024, // 1MB
		EnableHealth:   true,
		EnableMetrics:  true,
		EnableTracing:  true,
		Platform:       "", // Auto-detect
	}
}

// DefaultHTTPConfig returns sensible defaults for HTTP client configuration
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Timeout:    15 * time.Second,
		MaxRetries: 2,
		UserAgent:  "compliance-engine/1.0",
		Addr:       ":8080",
	}
}

// DefaultRetryConfig returns sensible defaults for retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       2,
		InitialBackoff:    200 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// DefaultLambdaConfig returns sensible defaults for Lambda configuration
func DefaultLambdaConfig() LambdaConfig {
	return LambdaConfig{
		Timeout:                   60 * time.Second,
		EnablePartialBatchFailure: true,
	}
}

// DefaultDatabaseConfig returns local development database settings
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Host:         "localhost",
		Port:         5432,
		Database:     "compliance",
		Username:     "postgres",
		Password:     "postgres",
		SSLMode:      "disable",
		MaxOpenConns: 10,
		MaxIdleConns: 2,
	}
}

// DefaultLedgerConfig returns the default history window
func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{Backend: "postgres", HistoryLimit: 10}
}

// DefaultPolicyConfig selects the baseline profile without overrides
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{Profile: "baseline"}
}

// DefaultGatewayConfig returns LLM gateway defaults
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		URL:     "http://localhost:3000/api/chat",
		Timeout: 60 * time.Second,
	}
}

// DefaultConfig returns a complete configuration with sensible defaults
// This is useful for testing or when you want to start with defaults and override specific parts
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		ServiceName: "compliance-engine",
		LogLevel:    "info",
		Version:     "1.0.0",

		HTTP:     DefaultHTTPConfig(),
		Retry:    DefaultRetryConfig(),
		Handler:  DefaultHandlerConfig(),
		Lambda:   DefaultLambdaConfig(),
		Database: DefaultDatabaseConfig(),
		Ledger:   DefaultLedgerConfig(),
		Policy:   DefaultPolicyConfig(),
		Gateway:  DefaultGatewayConfig(),
		Queue:    QueueConfig{Provider: "none"},
		Storage:  StorageConfig{Provider: "none", Timeout: 10 * time.Second},
		Observability: ObservabilityConfig{
			MetricsProvider: "prometheus",
		},
	}
}
