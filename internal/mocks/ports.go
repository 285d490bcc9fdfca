// Package mocks provides testify mocks for the compliance engine ports.
package mocks

import (
	"context"

	"compliance/internal/domain"

	"github.com/stretchr/testify/mock"
)

// MockCredentialStore is a mock implementation of domain.CredentialStore.
type MockCredentialStore struct {
	mock.Mock
}

var _ domain.CredentialStore = (*MockCredentialStore)(nil)

func (m *MockCredentialStore) Get(ctx context.Context, projectID string) (*domain.Project, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Project), args.Error(1)
}

// MockAuditLedger is a mock implementation of domain.AuditLedger.
type MockAuditLedger struct {
	mock.Mock
}

var _ domain.AuditLedger = (*MockAuditLedger)(nil)

func (m *MockAuditLedger) Append(ctx context.Context, check *domain.ComplianceCheck) (string, error) {
	args := m.Called(ctx, check)
	return args.String(0), args.Error(1)
}

func (m *MockAuditLedger) List(ctx context.Context, projectID string, checkType domain.CheckType, limit int) ([]domain.ComplianceCheck, error) {
	args := m.Called(ctx, projectID, checkType, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ComplianceCheck), args.Error(1)
}

// ExpectAppend accepts any check and stamps it with id, like a real ledger.
func (m *MockAuditLedger) ExpectAppend(id string) *mock.Call {
	return m.On("Append", mock.Anything, mock.AnythingOfType("*domain.ComplianceCheck")).
		Run(func(args mock.Arguments) {
			args.Get(1).(*domain.ComplianceCheck).ID = id
		}).
		Return(id, nil)
}

// MockProbeClient is a mock implementation of domain.ProbeClient.
type MockProbeClient struct {
	mock.Mock
}

var _ domain.ProbeClient = (*MockProbeClient)(nil)

func (m *MockProbeClient) CheckType() domain.CheckType {
	args := m.Called()
	return args.Get(0).(domain.CheckType)
}

func (m *MockProbeClient) Probe(ctx context.Context, projectURL, credential string) (domain.RawStatus, error) {
	args := m.Called(ctx, projectURL, credential)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(domain.RawStatus), args.Error(1)
}
