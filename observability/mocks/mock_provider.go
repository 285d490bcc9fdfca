package mocks

import (
	"compliance/observability/types"

	"github.com/stretchr/testify/mock"
)

// MockProvider is a mock implementation of types.Provider.
type MockProvider struct {
	mock.Mock
}

// NewPermissiveProvider returns a MockProvider handing out permissive
// loggers and metrics for any component.
func NewPermissiveProvider() *MockProvider {
	m := &MockProvider{}
	m.On("Logger", mock.Anything).Return(NewPermissiveLogger()).Maybe()
	m.On("Metrics", mock.Anything).Return(NewPermissiveMetrics()).Maybe()
	m.On("Close").Return(nil).Maybe()
	return m
}

func (m *MockProvider) Logger(component string) types.Logger {
	args := m.Called(component)
	if logger, ok := args.Get(0).(types.Logger); ok {
		return logger
	}
	return nil
}

func (m *MockProvider) Metrics(component string) types.Metrics {
	args := m.Called(component)
	if metrics, ok := args.Get(0).(types.Metrics); ok {
		return metrics
	}
	return nil
}

func (m *MockProvider) Close() error {
	args := m.Called()
	return args.Error(0)
}
