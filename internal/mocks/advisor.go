package mocks

import (
	"context"

	"compliance/internal/advisor"

	"github.com/stretchr/testify/mock"
)

// MockAdvisor mocks the remediation gateway client.
type MockAdvisor struct {
	mock.Mock
}

func (m *MockAdvisor) RequestFix(ctx context.Context, token, prompt string) advisor.Advice {
	args := m.Called(ctx, token, prompt)
	return args.Get(0).(advisor.Advice)
}

func (m *MockAdvisor) Continue(ctx context.Context, token string, conv advisor.Conversation) advisor.Conversation {
	args := m.Called(ctx, token, conv)
	return args.Get(0).(advisor.Conversation)
}
