package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/apple/foundationdb/bindings/go/src/fdb"
	"github.com/apple/foundationdb/bindings/go/src/fdb/directory"
	"github.com/apple/foundationdb/bindings/go/src/fdb/tuple"

	"github.com/slateq/slateq/models"
)

// FDBStore is a FoundationDB implementation of the Store interface. Each
// queue gets its own directory holding a "meta" record, a "messages" subspace
// keyed by ID and a "delivery" subspace keyed by (nextDelivery, id) tuples;
// tuple encoding keeps that subspace ordered, so the claim scan only reads
// its first key. A root-level "ids" subspace maps message IDs to queue names
// for the global lookups.
//
// FoundationDB transactions are serializable, which is what makes the receive
// claim and the delete-queue cascade atomic here; there is no client-side
// locking.
type FDBStore struct {
	db  fdb.Database
	dir directory.DirectorySubspace
}

var _ Store = (*FDBStore)(nil)

// NewFDBStore opens the default cluster and creates the root directory.
func NewFDBStore() (*FDBStore, error) {
	fdb.MustAPIVersion(730)
	db, err := fdb.OpenDefault()
	if err != nil {
		return nil, err
	}

	dir, err := directory.CreateOrOpen(db, []string{"slateq"}, nil)
	if err != nil {
		return nil, err
	}

	return &FDBStore{db: db, dir: dir}, nil
}

func (s *FDBStore) idsKey(id string) fdb.KeyConvertible {
	return s.dir.Sub("ids").Pack(tuple.Tuple{id})
}

// CreateQueue creates a dedicated directory for the queue and writes its meta
// record, tagged with a creation sequence number for ordered listing.
func (s *FDBStore) CreateQueue(ctx context.Context, queue *models.Queue) error {
	_, err := s.db.Transact(func(tr fdb.Transaction) (interface{}, error) {
		queueDir, err := s.dir.Create(tr, []string{queue.Name}, nil)
		if err != nil {
			// The directory layer reports an existing directory with a
			// generic error, so the string check is the only handle we have.
			if strings.Contains(err.Error(), "already exists") {
				return nil, ErrQueueAlreadyExists
			}
			return nil, err
		}

		seq, err := s.nextQueueSeq(tr)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(queueRecord{Queue: *queue, Seq: seq})
		if err != nil {
			return nil, err
		}
		tr.Set(queueDir.Pack(tuple.Tuple{"meta"}), data)
		return nil, nil
	})
	return err
}

// nextQueueSeq atomically increments and returns the queue creation counter.
func (s *FDBStore) nextQueueSeq(tr fdb.Transaction) (uint64, error) {
	key := s.dir.Pack(tuple.Tuple{"queue_seq"})
	tr.Add(key, []byte{1, 0, 0, 0, 0, 0, 0, 0}) // 64-bit little-endian increment
	valBytes, err := tr.Get(key).Get()
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(valBytes), nil
}

func (s *FDBStore) readQueueRecord(rt fdb.ReadTransaction, name string) (*queueRecord, directory.DirectorySubspace, error) {
	exists, err := s.dir.Exists(rt, []string{name})
	if err != nil {
		return nil, nil, err
	}
	if !exists {
		return nil, nil, nil
	}
	queueDir, err := s.dir.Open(rt, []string{name}, nil)
	if err != nil {
		return nil, nil, err
	}
	data, err := rt.Get(queueDir.Pack(tuple.Tuple{"meta"})).Get()
	if err != nil {
		return nil, nil, err
	}
	var rec queueRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, nil, err
	}
	return &rec, queueDir, nil
}

// GetQueue returns the queue with the given name, or nil if it does not exist.
func (s *FDBStore) GetQueue(ctx context.Context, name string) (*models.Queue, error) {
	ret, err := s.db.ReadTransact(func(rt fdb.ReadTransaction) (interface{}, error) {
		rec, _, err := s.readQueueRecord(rt, name)
		if err != nil || rec == nil {
			return (*models.Queue)(nil), err
		}
		return &rec.Queue, nil
	})
	if err != nil {
		return nil, err
	}
	return ret.(*models.Queue), nil
}

// UpdateQueue replaces the stored queue's mutable fields, keeping its
// creation sequence.
func (s *FDBStore) UpdateQueue(ctx context.Context, queue *models.Queue) error {
	_, err := s.db.Transact(func(tr fdb.Transaction) (interface{}, error) {
		rec, queueDir, err := s.readQueueRecord(tr, queue.Name)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, ErrQueueDoesNotExist
		}
		rec.Queue = *queue
		data, err := json.Marshal(rec)
		if err != nil {
			return nil, err
		}
		tr.Set(queueDir.Pack(tuple.Tuple{"meta"}), data)
		return nil, nil
	})
	return err
}

// DeleteQueue removes the queue directory and unindexes every owned message
// in the same transaction, so a send racing the delete can never leave an
// orphan behind.
func (s *FDBStore) DeleteQueue(ctx context.Context, name string) error {
	_, err := s.db.Transact(func(tr fdb.Transaction) (interface{}, error) {
		exists, err := s.dir.Exists(tr, []string{name})
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, ErrQueueDoesNotExist
		}
		queueDir, err := s.dir.Open(tr, []string{name}, nil)
		if err != nil {
			return nil, err
		}

		messagesSub := queueDir.Sub("messages")
		kvs, err := tr.GetRange(messagesSub, fdb.RangeOptions{}).GetSliceWithError()
		if err != nil {
			return nil, err
		}
		for _, kv := range kvs {
			t, err := messagesSub.Unpack(kv.Key)
			if err != nil {
				return nil, err
			}
			tr.Clear(s.idsKey(t[0].(string)))
		}

		if _, err := s.dir.Remove(tr, []string{name}); err != nil {
			return nil, err
		}
		return nil, nil
	})
	return err
}

// ListQueues returns all queues in creation order.
func (s *FDBStore) ListQueues(ctx context.Context) ([]*models.Queue, error) {
	ret, err := s.db.ReadTransact(func(rt fdb.ReadTransaction) (interface{}, error) {
		names, err := s.dir.List(rt, []string{})
		if err != nil {
			return nil, err
		}
		records := make([]queueRecord, 0, len(names))
		for _, name := range names {
			rec, _, err := s.readQueueRecord(rt, name)
			if err != nil {
				return nil, err
			}
			if rec != nil {
				records = append(records, *rec)
			}
		}
		// Directory listing is name-ordered; creation order is the seq order.
		sort.Slice(records, func(i, j int) bool { return records[i].Seq < records[j].Seq })
		queues := make([]*models.Queue, len(records))
		for i := range records {
			q := records[i].Queue
			queues[i] = &q
		}
		return queues, nil
	})
	if err != nil {
		return nil, err
	}
	return ret.([]*models.Queue), nil
}

// QueueStats counts visible and invisible messages by scanning the queue's
// delivery subspace; the tuple keys carry the next-delivery instant.
func (s *FDBStore) QueueStats(ctx context.Context, name string, nowMillis int64) (QueueStats, error) {
	ret, err := s.db.ReadTransact(func(rt fdb.ReadTransaction) (interface{}, error) {
		rec, queueDir, err := s.readQueueRecord(rt, name)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, ErrQueueDoesNotExist
		}

		deliverySub := queueDir.Sub("delivery")
		kvs, err := rt.GetRange(deliverySub, fdb.RangeOptions{}).GetSliceWithError()
		if err != nil {
			return nil, err
		}
		var stats QueueStats
		for _, kv := range kvs {
			t, err := deliverySub.Unpack(kv.Key)
			if err != nil {
				return nil, err
			}
			if t[0].(int64) <= nowMillis {
				stats.Visible++
			} else {
				stats.Invisible++
			}
		}
		return stats, nil
	})
	if err != nil {
		return QueueStats{}, err
	}
	return ret.(QueueStats), nil
}

// SendMessage inserts the message record, its delivery index entry and the
// global ID mapping. The queue-existence check runs in the same transaction.
func (s *FDBStore) SendMessage(ctx context.Context, message *models.Message) error {
	_, err := s.db.Transact(func(tr fdb.Transaction) (interface{}, error) {
		exists, err := s.dir.Exists(tr, []string{message.Queue})
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, ErrQueueDoesNotExist
		}
		queueDir, err := s.dir.Open(tr, []string{message.Queue}, nil)
		if err != nil {
			return nil, err
		}

		data, err := json.Marshal(message)
		if err != nil {
			return nil, err
		}
		tr.Set(queueDir.Sub("messages").Pack(tuple.Tuple{message.ID}), data)
		tr.Set(queueDir.Sub("delivery").Pack(tuple.Tuple{message.NextDelivery, message.ID}), []byte{})
		tr.Set(s.idsKey(message.ID), []byte(message.Queue))
		return nil, nil
	})
	return err
}

// readMessageRecord resolves a global ID to its record and queue directory.
// Returns a nil record when the ID is unknown.
func (s *FDBStore) readMessageRecord(rt fdb.ReadTransaction, id string) (*models.Message, directory.DirectorySubspace, error) {
	queueName, err := rt.Get(s.idsKey(id)).Get()
	if err != nil {
		return nil, nil, err
	}
	if queueName == nil {
		return nil, nil, nil
	}
	queueDir, err := s.dir.Open(rt, []string{string(queueName)}, nil)
	if err != nil {
		return nil, nil, err
	}
	data, err := rt.Get(queueDir.Sub("messages").Pack(tuple.Tuple{id})).Get()
	if err != nil {
		return nil, nil, err
	}
	if data == nil {
		return nil, nil, fmt.Errorf("id index entry for missing message %s", id)
	}
	var m models.Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, nil, err
	}
	return &m, queueDir, nil
}

// GetMessage returns the message with the given ID, or nil if it does not
// exist. The lookup is global, not queue-scoped.
func (s *FDBStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	ret, err := s.db.ReadTransact(func(rt fdb.ReadTransaction) (interface{}, error) {
		m, _, err := s.readMessageRecord(rt, id)
		if err != nil {
			return (*models.Message)(nil), err
		}
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return ret.(*models.Message), nil
}

// UpdateMessage replaces body, attributes and next-delivery time; ownership
// and creation time are immutable. The delivery index entry moves with the
// new next-delivery value.
func (s *FDBStore) UpdateMessage(ctx context.Context, message *models.Message) error {
	_, err := s.db.Transact(func(tr fdb.Transaction) (interface{}, error) {
		old, queueDir, err := s.readMessageRecord(tr, message.ID)
		if err != nil {
			return nil, err
		}
		if old == nil {
			return nil, ErrMessageDoesNotExist
		}

		updated := *message
		updated.Queue = old.Queue
		updated.Created = old.Created
		data, err := json.Marshal(&updated)
		if err != nil {
			return nil, err
		}
		tr.Clear(queueDir.Sub("delivery").Pack(tuple.Tuple{old.NextDelivery, old.ID}))
		tr.Set(queueDir.Sub("delivery").Pack(tuple.Tuple{updated.NextDelivery, updated.ID}), []byte{})
		tr.Set(queueDir.Sub("messages").Pack(tuple.Tuple{updated.ID}), data)
		return nil, nil
	})
	return err
}

// DeleteMessage removes the message record, its delivery index entry and the
// global ID mapping.
func (s *FDBStore) DeleteMessage(ctx context.Context, id string) error {
	_, err := s.db.Transact(func(tr fdb.Transaction) (interface{}, error) {
		m, queueDir, err := s.readMessageRecord(tr, id)
		if err != nil {
			return nil, err
		}
		if m == nil {
			return nil, ErrMessageDoesNotExist
		}
		tr.Clear(queueDir.Sub("messages").Pack(tuple.Tuple{id}))
		tr.Clear(queueDir.Sub("delivery").Pack(tuple.Tuple{m.NextDelivery, m.ID}))
		tr.Clear(s.idsKey(id))
		return nil, nil
	})
	return err
}

// ReceiveMessage claims the first entry of the queue's delivery subspace,
// which by tuple ordering is the message with the smallest (nextDelivery,
// id). Serializable isolation guarantees concurrent receivers claim distinct
// messages.
func (s *FDBStore) ReceiveMessage(ctx context.Context, queueName string, nowMillis, newNextDelivery int64) (*models.Message, error) {
	ret, err := s.db.Transact(func(tr fdb.Transaction) (interface{}, error) {
		exists, err := s.dir.Exists(tr, []string{queueName})
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, ErrQueueDoesNotExist
		}
		queueDir, err := s.dir.Open(tr, []string{queueName}, nil)
		if err != nil {
			return nil, err
		}

		deliverySub := queueDir.Sub("delivery")
		kvs, err := tr.GetRange(deliverySub, fdb.RangeOptions{Limit: 1}).GetSliceWithError()
		if err != nil {
			return nil, err
		}
		if len(kvs) == 0 {
			return (*models.Message)(nil), nil
		}
		t, err := deliverySub.Unpack(kvs[0].Key)
		if err != nil {
			return nil, err
		}
		nextDelivery, id := t[0].(int64), t[1].(string)
		if nextDelivery > nowMillis {
			return (*models.Message)(nil), nil
		}

		data, err := tr.Get(queueDir.Sub("messages").Pack(tuple.Tuple{id})).Get()
		if err != nil {
			return nil, err
		}
		var m models.Message
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		m.NextDelivery = newNextDelivery
		updatedData, err := json.Marshal(&m)
		if err != nil {
			return nil, err
		}
		tr.Clear(deliverySub.Pack(tuple.Tuple{nextDelivery, id}))
		tr.Set(deliverySub.Pack(tuple.Tuple{newNextDelivery, id}), []byte{})
		tr.Set(queueDir.Sub("messages").Pack(tuple.Tuple{id}), updatedData)
		return &m, nil
	})
	if err != nil {
		return nil, err
	}
	return ret.(*models.Message), nil
}

// Close is a no-op; the FoundationDB client keeps no per-store handle.
func (s *FDBStore) Close() error {
	return nil
}
