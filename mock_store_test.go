package main

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/slateq/slateq/models"
	"github.com/slateq/slateq/store"
)

// MockStore is a mock implementation of the Store interface for testing.
type MockStore struct {
	mock.Mock
}

var _ store.Store = (*MockStore)(nil)

func (m *MockStore) CreateQueue(ctx context.Context, queue *models.Queue) error {
	args := m.Called(ctx, queue)
	return args.Error(0)
}

func (m *MockStore) GetQueue(ctx context.Context, name string) (*models.Queue, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Queue), args.Error(1)
}

func (m *MockStore) UpdateQueue(ctx context.Context, queue *models.Queue) error {
	args := m.Called(ctx, queue)
	return args.Error(0)
}

func (m *MockStore) DeleteQueue(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

func (m *MockStore) ListQueues(ctx context.Context) ([]*models.Queue, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Queue), args.Error(1)
}

func (m *MockStore) QueueStats(ctx context.Context, name string, nowMillis int64) (store.QueueStats, error) {
	args := m.Called(ctx, name, nowMillis)
	return args.Get(0).(store.QueueStats), args.Error(1)
}

func (m *MockStore) SendMessage(ctx context.Context, message *models.Message) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

func (m *MockStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockStore) UpdateMessage(ctx context.Context, message *models.Message) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

func (m *MockStore) DeleteMessage(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockStore) ReceiveMessage(ctx context.Context, queueName string, nowMillis, newNextDelivery int64) (*models.Message, error) {
	args := m.Called(ctx, queueName, nowMillis, newNextDelivery)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
