// Package mocks provides testify mocks for the worker's collaborators.
package mocks

import (
	"context"

	"compliance/internal/advisor"
	"compliance/internal/domain"
	"compliance/internal/service"

	"github.com/stretchr/testify/mock"
)

// MockCheckService is a mock implementation of worker.CheckService.
type MockCheckService struct {
	mock.Mock
}

func (m *MockCheckService) Run(ctx context.Context, identity domain.Identity, projectID string, checkType domain.CheckType) (*domain.CheckResult, error) {
	args := m.Called(ctx, identity, projectID, checkType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CheckResult), args.Error(1)
}

func (m *MockCheckService) History(ctx context.Context, identity domain.Identity, projectID string, checkType domain.CheckType, limit int) (*domain.History, error) {
	args := m.Called(ctx, identity, projectID, checkType, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.History), args.Error(1)
}

func (m *MockCheckService) Remediate(ctx context.Context, identity domain.Identity, req service.RemediateRequest) (*advisor.Advice, error) {
	args := m.Called(ctx, identity, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*advisor.Advice), args.Error(1)
}

func (m *MockCheckService) Continue(ctx context.Context, identity domain.Identity, conv advisor.Conversation) (advisor.Conversation, error) {
	args := m.Called(ctx, identity, conv)
	return args.Get(0).(advisor.Conversation), args.Error(1)
}
