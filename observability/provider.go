package observability

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"compliance/observability/logger"
	"compliance/observability/metrics"
	"compliance/observability/types"
)

// Logger is a type alias for the Logger interface from the types package.
type Logger = types.Logger

// Metrics is a type alias for the Metrics interface from the types package.
type Metrics = types.Metrics

// Fields is a type alias for structured logging fields.
type Fields = types.Fields

// Config is a type alias for the observability configuration.
type Config = types.Config

// Provider is a type alias for the Provider interface from the types package.
type Provider = types.Provider

// DefaultProvider implements the Provider interface.
// It manages Logger and Metrics instances for different components,
// creating them lazily on first access and caching them afterwards.
type DefaultProvider struct {
	config  *Config
	loggers map[string]Logger
	metrics map[string]Metrics
	mu      sync.RWMutex
}

// NewProvider creates a new observability provider with the given configuration.
// If LogOutput is not specified in the config, it defaults to os.Stdout.
// If MetricsFactory is nil, components get Prometheus collectors.
//
// Example:
//
//	provider := NewProvider(&Config{
//		ServiceName: "compliance-engine",
//		Environment: "production",
//		LogLevel:    "info",
//	})
//	logger := provider.Logger("probe.rls")
func NewProvider(config *Config) Provider {
	if config.LogOutput == nil {
		config.LogOutput = os.Stdout
	}

	return &DefaultProvider{
		config:  config,
		loggers: make(map[string]Logger),
		metrics: make(map[string]Metrics),
	}
}

// Logger returns a Logger instance for the specified component.
//
// The returned logger includes:
//   - All fields from the provider's config.AdditionalFields
//   - A "component" field set to the provided component name
//   - Service name formatted as "{config.ServiceName}.{component}"
func (p *DefaultProvider) Logger(component string) Logger {
	p.mu.RLock()
	if l, exists := p.loggers[component]; exists {
		p.mu.RUnlock()
		return l
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	// Double-check
	if l, exists := p.loggers[component]; exists {
		return l
	}

	fields := make(Fields)
	for k, v := range p.config.AdditionalFields {
		fields[k] = v
	}
	fields["component"] = component

	l := logger.New(
		fmt.Sprintf("%s.%s", p.config.ServiceName, component),
		p.config.Environment,
		p.config.LogLevel,
		p.config.LogOutput,
		fields,
	)

	p.loggers[component] = l
	return l
}

// Metrics returns a Metrics instance for the specified component.
func (p *DefaultProvider) Metrics(component string) Metrics {
	p.mu.RLock()
	if m, exists := p.metrics[component]; exists {
		p.mu.RUnlock()
		return m
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	// Double-check
	if m, exists := p.metrics[component]; exists {
		return m
	}

	var m Metrics
	if p.config.MetricsFactory != nil {
		m = p.config.MetricsFactory(component)
	} else {
		m = metrics.New(MetricName(component))
	}

	p.metrics[component] = m
	return m
}

// Close shuts down the provider and releases associated resources.
// It closes the LogOutput if it implements io.Closer, except for
// os.Stdout and os.Stderr.
func (p *DefaultProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, m := range p.metrics {
		if closer, ok := m.(io.Closer); ok {
			closer.Close()
		}
	}

	if closer, ok := p.config.LogOutput.(io.Closer); ok {
		if closer != os.Stdout && closer != os.Stderr {
			return closer.Close()
		}
	}

	return nil
}

// MetricName converts a component name into a valid Prometheus metric prefix.
func MetricName(component string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, component)
}
