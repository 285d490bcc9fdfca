// Package mocks provides testify mocks for the handler contracts.
package mocks

import (
	"context"

	"compliance/handler"

	"github.com/stretchr/testify/mock"
)

// MockWorker is a mock implementation of handler.Worker.
type MockWorker struct {
	mock.Mock
}

var _ handler.Worker = (*MockWorker)(nil)

func (m *MockWorker) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockWorker) Process(ctx context.Context, request handler.Request) (handler.Response, error) {
	args := m.Called(ctx, request)
	return args.Get(0).(handler.Response), args.Error(1)
}

func (m *MockWorker) Health(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// ExpectProcess sets up an expectation for Process with a specific request type.
func (m *MockWorker) ExpectProcess(requestType string, response handler.Response, err error) *mock.Call {
	return m.On("Process",
		mock.Anything,
		mock.MatchedBy(func(req handler.Request) bool {
			return req.Type == requestType
		}),
	).Return(response, err)
}

// ExpectProcessAny sets up an expectation for any Process call.
func (m *MockWorker) ExpectProcessAny(response handler.Response, err error) *mock.Call {
	return m.On("Process", mock.Anything, mock.Anything).Return(response, err)
}
