package store

import (
	"context"
	"sync"

	"github.com/slateq/slateq/models"
)

// MemoryStore is an in-process implementation of the Store interface. A
// single mutex guards the queue arena and the global message index, which
// makes every operation atomic, in particular the receive claim and the
// cascade on queue deletion.
//
// The store copies messages and queues on the way in and out, so callers can
// never mutate stored state behind its back.
type MemoryStore struct {
	mu sync.Mutex
	// queues indexes queue records by name.
	queues map[string]*models.Queue
	// order records queue names in creation order for ListQueues.
	order []string
	// byQueue holds the message IDs owned by each queue.
	byQueue map[string]map[string]struct{}
	// messages is the global message index; IDs are unique across queues.
	messages map[string]*models.Message
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		queues:   make(map[string]*models.Queue),
		byQueue:  make(map[string]map[string]struct{}),
		messages: make(map[string]*models.Message),
	}
}

func copyQueue(q *models.Queue) *models.Queue {
	dup := *q
	return &dup
}

func copyMessage(m *models.Message) *models.Message {
	dup := *m
	if m.Attributes != nil {
		dup.Attributes = make(map[string]models.MessageAttributeValue, len(m.Attributes))
		for k, v := range m.Attributes {
			dup.Attributes[k] = v
		}
	}
	return &dup
}

// CreateQueue stores a new queue record under its name.
func (s *MemoryStore) CreateQueue(ctx context.Context, queue *models.Queue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.queues[queue.Name]; ok {
		return ErrQueueAlreadyExists
	}
	s.queues[queue.Name] = copyQueue(queue)
	s.order = append(s.order, queue.Name)
	s.byQueue[queue.Name] = make(map[string]struct{})
	return nil
}

// GetQueue returns the queue with the given name, or nil if it does not exist.
func (s *MemoryStore) GetQueue(ctx context.Context, name string) (*models.Queue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.queues[name]
	if !ok {
		return nil, nil
	}
	return copyQueue(q), nil
}

// UpdateQueue replaces the mutable fields of the queue identified by
// queue.Name.
func (s *MemoryStore) UpdateQueue(ctx context.Context, queue *models.Queue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.queues[queue.Name]; !ok {
		return ErrQueueDoesNotExist
	}
	s.queues[queue.Name] = copyQueue(queue)
	return nil
}

// DeleteQueue removes the queue and every message it owns in one step.
func (s *MemoryStore) DeleteQueue(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.queues[name]; !ok {
		return ErrQueueDoesNotExist
	}
	for id := range s.byQueue[name] {
		delete(s.messages, id)
	}
	delete(s.byQueue, name)
	delete(s.queues, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// ListQueues returns all queues in creation order.
func (s *MemoryStore) ListQueues(ctx context.Context) ([]*models.Queue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	queues := make([]*models.Queue, 0, len(s.order))
	for _, name := range s.order {
		queues = append(queues, copyQueue(s.queues[name]))
	}
	return queues, nil
}

// QueueStats counts the queue's visible and invisible messages relative to
// the supplied instant.
func (s *MemoryStore) QueueStats(ctx context.Context, name string, nowMillis int64) (QueueStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, ok := s.byQueue[name]
	if !ok {
		return QueueStats{}, ErrQueueDoesNotExist
	}
	var stats QueueStats
	for id := range ids {
		if s.messages[id].NextDelivery <= nowMillis {
			stats.Visible++
		} else {
			stats.Invisible++
		}
	}
	return stats, nil
}

// SendMessage inserts a message into its queue. The queue must already exist.
func (s *MemoryStore) SendMessage(ctx context.Context, message *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, ok := s.byQueue[message.Queue]
	if !ok {
		return ErrQueueDoesNotExist
	}
	s.messages[message.ID] = copyMessage(message)
	ids[message.ID] = struct{}{}
	return nil
}

// GetMessage returns the message with the given ID, or nil if it does not
// exist. The lookup is global, not queue-scoped.
func (s *MemoryStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok {
		return nil, nil
	}
	return copyMessage(m), nil
}

// UpdateMessage replaces the body, attributes and next-delivery time of the
// message identified by message.ID.
func (s *MemoryStore) UpdateMessage(ctx context.Context, message *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.messages[message.ID]
	if !ok {
		return ErrMessageDoesNotExist
	}
	updated := copyMessage(message)
	// Ownership and creation time are immutable.
	updated.Queue = old.Queue
	updated.Created = old.Created
	s.messages[message.ID] = updated
	return nil
}

// DeleteMessage removes the message with the given ID.
func (s *MemoryStore) DeleteMessage(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok {
		return ErrMessageDoesNotExist
	}
	delete(s.messages, id)
	if ids, ok := s.byQueue[m.Queue]; ok {
		delete(ids, id)
	}
	return nil
}

// ReceiveMessage claims the queue's oldest-visible message: among messages
// with NextDelivery <= nowMillis it picks the smallest NextDelivery, breaking
// ties by ascending ID, sets NextDelivery to newNextDelivery and returns the
// updated message. Returns nil when nothing is eligible. The whole scan and
// update happens under the store mutex, so two concurrent calls can never
// claim the same message.
func (s *MemoryStore) ReceiveMessage(ctx context.Context, queueName string, nowMillis, newNextDelivery int64) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, ok := s.byQueue[queueName]
	if !ok {
		return nil, ErrQueueDoesNotExist
	}
	var best *models.Message
	for id := range ids {
		m := s.messages[id]
		if m.NextDelivery > nowMillis {
			continue
		}
		if best == nil || m.NextDelivery < best.NextDelivery ||
			(m.NextDelivery == best.NextDelivery && m.ID < best.ID) {
			best = m
		}
	}
	if best == nil {
		return nil, nil
	}
	best.NextDelivery = newNextDelivery
	return copyMessage(best), nil
}

// Close releases nothing; it exists to satisfy the Store interface.
func (s *MemoryStore) Close() error {
	return nil
}
