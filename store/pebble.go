package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/slateq/slateq/models"
)

// Key layout. Queue names are restricted to [a-zA-Z0-9_-], so "/" is a safe
// separator.
//
//	q/{name}                        -> JSON queue record (with creation seq)
//	m/{id}                          -> JSON message record
//	d/{queue}/{nextDelivery BE64}{id} -> delivery index, empty value
//	meta/qseq                       -> BE64 queue creation counter
//
// The delivery index orders each queue's messages by (nextDelivery, id), so
// the claim scan only has to look at the first key of the queue's prefix.
const (
	queueKeyPrefix    = "q/"
	messageKeyPrefix  = "m/"
	deliveryKeyPrefix = "d/"
	queueSeqKey       = "meta/qseq"
)

// PebbleOptions configures a PebbleStore.
type PebbleOptions struct {
	// DataDir is the path to the Pebble database directory.
	DataDir string
	// FS overrides the filesystem, e.g. vfs.NewMem() in tests. Optional.
	FS vfs.FS
}

// PebbleStore is a persistent implementation of the Store interface on top of
// a Pebble key-value database. Pebble has no transactions, so every mutation
// is prepared as a batch and committed while holding the store mutex; that
// mutex is the serialization point required by the receive claim and the
// queue-delete cascade.
type PebbleStore struct {
	mu sync.Mutex
	db *pebble.DB
}

var _ Store = (*PebbleStore)(nil)

// OpenPebbleStore creates or opens a Pebble-backed store.
func OpenPebbleStore(opts PebbleOptions) (*PebbleStore, error) {
	if opts.DataDir == "" && opts.FS == nil {
		return nil, errors.New("pebble store: DataDir is required")
	}
	po := &pebble.Options{}
	if opts.FS != nil {
		po.FS = opts.FS
	}
	db, err := pebble.Open(opts.DataDir, po)
	if err != nil {
		return nil, fmt.Errorf("open pebble: %w", err)
	}
	return &PebbleStore{db: db}, nil
}

// Close closes the underlying database.
func (s *PebbleStore) Close() error {
	return s.db.Close()
}

// queueRecord is the stored form of a queue plus its creation sequence, which
// preserves creation order for ListQueues.
type queueRecord struct {
	Queue models.Queue
	Seq   uint64
}

func queueKey(name string) []byte {
	return []byte(queueKeyPrefix + name)
}

func messageKey(id string) []byte {
	return []byte(messageKeyPrefix + id)
}

// deliveryKey builds d/{queue}/{nextDelivery BE64}{id}. NextDelivery is an
// epoch-millisecond value and therefore non-negative, so the unsigned
// big-endian encoding sorts chronologically.
func deliveryKey(queue string, nextDelivery int64, id string) []byte {
	prefix := deliveryKeyPrefix + queue + "/"
	key := make([]byte, len(prefix)+8+len(id))
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], uint64(nextDelivery))
	copy(key[len(prefix)+8:], id)
	return key
}

func deliveryPrefix(queue string) []byte {
	return []byte(deliveryKeyPrefix + queue + "/")
}

// parseDeliveryKey recovers (nextDelivery, id) from a delivery index key.
func parseDeliveryKey(queue string, key []byte) (int64, string) {
	rest := key[len(deliveryPrefix(queue)):]
	return int64(binary.BigEndian.Uint64(rest[:8])), string(rest[8:])
}

// keyUpperBound returns the smallest key greater than every key with the
// given prefix.
func keyUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil // prefix is all 0xff; no upper bound
}

// get reads a key and decodes its JSON value into out. Returns false when the
// key does not exist.
func (s *PebbleStore) get(key []byte, out interface{}) (bool, error) {
	val, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer closer.Close()
	if err := json.Unmarshal(val, out); err != nil {
		return false, err
	}
	return true, nil
}

func (s *PebbleStore) queueExists(name string) (bool, error) {
	_, closer, err := s.db.Get(queueKey(name))
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	closer.Close()
	return true, nil
}

// CreateQueue stores a new queue record tagged with the next creation
// sequence number.
func (s *PebbleStore) CreateQueue(ctx context.Context, queue *models.Queue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.queueExists(queue.Name)
	if err != nil {
		return err
	}
	if exists {
		return ErrQueueAlreadyExists
	}

	seq, err := s.nextQueueSeq()
	if err != nil {
		return err
	}
	data, err := json.Marshal(queueRecord{Queue: *queue, Seq: seq})
	if err != nil {
		return err
	}

	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(queueKey(queue.Name), data, nil); err != nil {
		return err
	}
	var seqBuf [8]byte
	binary.BigEndian.PutUint64(seqBuf[:], seq)
	if err := b.Set([]byte(queueSeqKey), seqBuf[:], nil); err != nil {
		return err
	}
	return b.Commit(pebble.Sync)
}

// nextQueueSeq reads the creation counter and returns its successor. Callers
// hold the store mutex and persist the new value in the same batch as the
// queue record.
func (s *PebbleStore) nextQueueSeq() (uint64, error) {
	val, closer, err := s.db.Get([]byte(queueSeqKey))
	if errors.Is(err, pebble.ErrNotFound) {
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	defer closer.Close()
	return binary.BigEndian.Uint64(val) + 1, nil
}

// GetQueue returns the queue with the given name, or nil if it does not exist.
func (s *PebbleStore) GetQueue(ctx context.Context, name string) (*models.Queue, error) {
	var rec queueRecord
	found, err := s.get(queueKey(name), &rec)
	if err != nil || !found {
		return nil, err
	}
	return &rec.Queue, nil
}

// UpdateQueue replaces the stored queue's mutable fields, keeping its
// creation sequence.
func (s *PebbleStore) UpdateQueue(ctx context.Context, queue *models.Queue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rec queueRecord
	found, err := s.get(queueKey(queue.Name), &rec)
	if err != nil {
		return err
	}
	if !found {
		return ErrQueueDoesNotExist
	}
	rec.Queue = *queue
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Set(queueKey(queue.Name), data, pebble.Sync)
}

// DeleteQueue removes the queue record, its delivery index and every owned
// message record in a single batch.
func (s *PebbleStore) DeleteQueue(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.queueExists(name)
	if err != nil {
		return err
	}
	if !exists {
		return ErrQueueDoesNotExist
	}

	b := s.db.NewBatch()
	defer b.Close()

	prefix := deliveryPrefix(name)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: keyUpperBound(prefix)})
	if err != nil {
		return err
	}
	for iter.First(); iter.Valid(); iter.Next() {
		_, id := parseDeliveryKey(name, iter.Key())
		if err := b.Delete(messageKey(id), nil); err != nil {
			iter.Close()
			return err
		}
	}
	if err := iter.Close(); err != nil {
		return err
	}
	if err := b.DeleteRange(prefix, keyUpperBound(prefix), nil); err != nil {
		return err
	}
	if err := b.Delete(queueKey(name), nil); err != nil {
		return err
	}
	return b.Commit(pebble.Sync)
}

// ListQueues returns all queues in creation order.
func (s *PebbleStore) ListQueues(ctx context.Context) ([]*models.Queue, error) {
	prefix := []byte(queueKeyPrefix)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: keyUpperBound(prefix)})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	type seqQueue struct {
		queue models.Queue
		seq   uint64
	}
	var records []seqQueue
	for iter.First(); iter.Valid(); iter.Next() {
		var rec queueRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, err
		}
		records = append(records, seqQueue{queue: rec.Queue, seq: rec.Seq})
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}

	// Key order is lexicographic by name; creation order is the seq order.
	sort.Slice(records, func(i, j int) bool { return records[i].seq < records[j].seq })
	queues := make([]*models.Queue, len(records))
	for i := range records {
		q := records[i].queue
		queues[i] = &q
	}
	return queues, nil
}

// QueueStats counts visible and invisible messages by walking the queue's
// delivery index; keys are nextDelivery-ordered, so every key before the
// cutoff is visible and everything after it is not.
func (s *PebbleStore) QueueStats(ctx context.Context, name string, nowMillis int64) (QueueStats, error) {
	exists, err := s.queueExists(name)
	if err != nil {
		return QueueStats{}, err
	}
	if !exists {
		return QueueStats{}, ErrQueueDoesNotExist
	}

	prefix := deliveryPrefix(name)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: keyUpperBound(prefix)})
	if err != nil {
		return QueueStats{}, err
	}
	defer iter.Close()

	var stats QueueStats
	for iter.First(); iter.Valid(); iter.Next() {
		nextDelivery, _ := parseDeliveryKey(name, iter.Key())
		if nextDelivery <= nowMillis {
			stats.Visible++
		} else {
			stats.Invisible++
		}
	}
	return stats, iter.Error()
}

// SendMessage inserts the message record and its delivery index entry. The
// existence check and the insert run under the store mutex, so a concurrent
// DeleteQueue can never leave an orphan message behind.
func (s *PebbleStore) SendMessage(ctx context.Context, message *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.queueExists(message.Queue)
	if err != nil {
		return err
	}
	if !exists {
		return ErrQueueDoesNotExist
	}

	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(messageKey(message.ID), data, nil); err != nil {
		return err
	}
	if err := b.Set(deliveryKey(message.Queue, message.NextDelivery, message.ID), nil, nil); err != nil {
		return err
	}
	return b.Commit(pebble.Sync)
}

// GetMessage returns the message with the given ID, or nil if it does not exist.
func (s *PebbleStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	var m models.Message
	found, err := s.get(messageKey(id), &m)
	if err != nil || !found {
		return nil, err
	}
	return &m, nil
}

// UpdateMessage replaces body, attributes and next-delivery time; ownership
// and creation time are immutable. The delivery index entry moves with the
// new next-delivery value in the same batch.
func (s *PebbleStore) UpdateMessage(ctx context.Context, message *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var old models.Message
	found, err := s.get(messageKey(message.ID), &old)
	if err != nil {
		return err
	}
	if !found {
		return ErrMessageDoesNotExist
	}

	updated := *message
	updated.Queue = old.Queue
	updated.Created = old.Created

	data, err := json.Marshal(&updated)
	if err != nil {
		return err
	}
	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Delete(deliveryKey(old.Queue, old.NextDelivery, old.ID), nil); err != nil {
		return err
	}
	if err := b.Set(deliveryKey(updated.Queue, updated.NextDelivery, updated.ID), nil, nil); err != nil {
		return err
	}
	if err := b.Set(messageKey(updated.ID), data, nil); err != nil {
		return err
	}
	return b.Commit(pebble.Sync)
}

// DeleteMessage removes the message record and its delivery index entry.
func (s *PebbleStore) DeleteMessage(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var m models.Message
	found, err := s.get(messageKey(id), &m)
	if err != nil {
		return err
	}
	if !found {
		return ErrMessageDoesNotExist
	}

	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Delete(messageKey(id), nil); err != nil {
		return err
	}
	if err := b.Delete(deliveryKey(m.Queue, m.NextDelivery, m.ID), nil); err != nil {
		return err
	}
	return b.Commit(pebble.Sync)
}

// ReceiveMessage claims the first key of the queue's delivery index, which by
// construction is the message with the smallest (nextDelivery, id). The scan
// and the index move commit under the store mutex, so concurrent receivers
// always claim distinct messages.
func (s *PebbleStore) ReceiveMessage(ctx context.Context, queueName string, nowMillis, newNextDelivery int64) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.queueExists(queueName)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrQueueDoesNotExist
	}

	prefix := deliveryPrefix(queueName)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: keyUpperBound(prefix)})
	if err != nil {
		return nil, err
	}
	if !iter.First() {
		err := iter.Error()
		iter.Close()
		return nil, err
	}
	nextDelivery, id := parseDeliveryKey(queueName, iter.Key())
	if err := iter.Close(); err != nil {
		return nil, err
	}
	if nextDelivery > nowMillis {
		return nil, nil
	}

	var m models.Message
	found, err := s.get(messageKey(id), &m)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("delivery index entry for missing message %s", id)
	}
	m.NextDelivery = newNextDelivery

	data, err := json.Marshal(&m)
	if err != nil {
		return nil, err
	}
	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Delete(deliveryKey(queueName, nextDelivery, id), nil); err != nil {
		return nil, err
	}
	if err := b.Set(deliveryKey(queueName, newNextDelivery, id), nil, nil); err != nil {
		return nil, err
	}
	if err := b.Set(messageKey(id), data, nil); err != nil {
		return nil, err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return nil, err
	}
	return &m, nil
}
