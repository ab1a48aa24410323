package store

import (
	"context"
	"errors"

	"github.com/slateq/slateq/models"
)

var (
	// ErrQueueAlreadyExists is returned when trying to create a queue that already exists.
	ErrQueueAlreadyExists = errors.New("queue already exists")
	// ErrQueueDoesNotExist is returned when trying to operate on a queue that does not exist.
	ErrQueueDoesNotExist = errors.New("queue does not exist")
	// ErrMessageDoesNotExist is returned when trying to operate on a message that does not exist.
	ErrMessageDoesNotExist = errors.New("message does not exist")
)

// QueueStats holds the per-queue visibility counters. A message whose
// NextDelivery equals the reference instant counts as visible.
type QueueStats struct {
	Visible   int
	Invisible int
}

// Store is the interface for the underlying storage system. It defines the
// queue and message operations the protocol adapter composes.
//
// Lookup operations (GetQueue, GetMessage, ReceiveMessage with no eligible
// message) return a nil value with a nil error on a miss; only operations
// that require the target to exist return sentinel errors. Every operation
// either fully succeeds or leaves the store unchanged.
//
// ReceiveMessage is the claim operation: it must atomically select the
// eligible message with the smallest NextDelivery (ties broken by ascending
// ID) and advance its NextDelivery, so that concurrent callers never claim
// the same message. Callers supply the clock; implementations never read
// wall-clock time to decide visibility.
type Store interface {
	// Queue Management
	CreateQueue(ctx context.Context, queue *models.Queue) error
	GetQueue(ctx context.Context, name string) (*models.Queue, error)
	UpdateQueue(ctx context.Context, queue *models.Queue) error
	DeleteQueue(ctx context.Context, name string) error
	ListQueues(ctx context.Context) ([]*models.Queue, error)
	QueueStats(ctx context.Context, name string, nowMillis int64) (QueueStats, error)

	// Message Management
	SendMessage(ctx context.Context, message *models.Message) error
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	UpdateMessage(ctx context.Context, message *models.Message) error
	DeleteMessage(ctx context.Context, id string) error
	ReceiveMessage(ctx context.Context, queueName string, nowMillis, newNextDelivery int64) (*models.Message, error)

	Close() error
}
