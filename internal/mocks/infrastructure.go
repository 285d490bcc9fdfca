package mocks

import (
	"context"

	"compliance/infrastructure/queue"
	"compliance/infrastructure/storage"

	"github.com/stretchr/testify/mock"
)

// MockPublisher is a mock implementation of queue.Publisher.
type MockPublisher struct {
	mock.Mock
}

var _ queue.Publisher = (*MockPublisher)(nil)

func (m *MockPublisher) Publish(ctx context.Context, message *queue.Message) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

func (m *MockPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockArchive is a mock implementation of storage.Archive.
type MockArchive struct {
	mock.Mock
}

var _ storage.Archive = (*MockArchive)(nil)

func (m *MockArchive) Put(ctx context.Context, key string, data []byte) error {
	args := m.Called(ctx, key, data)
	return args.Error(0)
}
