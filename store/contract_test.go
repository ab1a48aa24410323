package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slateq/slateq/models"
)

func testQueue(name string) *models.Queue {
	now := time.Unix(1700000000, 0).UTC()
	return &models.Queue{
		Name:              name,
		VisibilityTimeout: 30 * time.Second,
		Created:           now,
		LastModified:      now,
	}
}

func testMessage(id, queue string, nextDelivery int64) *models.Message {
	return &models.Message{
		ID:           id,
		Queue:        queue,
		Body:         "body of " + id,
		NextDelivery: nextDelivery,
		Created:      time.Unix(1700000000, 0).UTC(),
	}
}

// testStoreContract runs the behavioral contract shared by every Store
// implementation against a fresh store per subtest.
func testStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()
	newQueue := testQueue
	newMessage := testMessage

	t.Run("QueueRoundTrip", func(t *testing.T) {
		s := newStore(t)
		q := newQueue("orders")
		require.NoError(t, s.CreateQueue(ctx, q))

		got, err := s.GetQueue(ctx, "orders")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, q.Name, got.Name)
		assert.Equal(t, q.VisibilityTimeout, got.VisibilityTimeout)
		assert.True(t, q.Created.Equal(got.Created))
		assert.True(t, q.LastModified.Equal(got.LastModified))
	})

	t.Run("QueueLookupMiss", func(t *testing.T) {
		s := newStore(t)
		got, err := s.GetQueue(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("CreateQueueDuplicate", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateQueue(ctx, newQueue("orders")))
		err := s.CreateQueue(ctx, newQueue("orders"))
		assert.ErrorIs(t, err, ErrQueueAlreadyExists)
	})

	t.Run("UpdateQueue", func(t *testing.T) {
		s := newStore(t)
		q := newQueue("orders")
		require.NoError(t, s.CreateQueue(ctx, q))

		q.VisibilityTimeout = 90 * time.Second
		q.LastModified = q.LastModified.Add(time.Hour)
		require.NoError(t, s.UpdateQueue(ctx, q))

		got, err := s.GetQueue(ctx, "orders")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, 90*time.Second, got.VisibilityTimeout)
		assert.True(t, q.LastModified.Equal(got.LastModified))
	})

	t.Run("UpdateQueueMissing", func(t *testing.T) {
		s := newStore(t)
		err := s.UpdateQueue(ctx, newQueue("missing"))
		assert.ErrorIs(t, err, ErrQueueDoesNotExist)
	})

	t.Run("ListQueuesCreationOrder", func(t *testing.T) {
		s := newStore(t)
		// Deliberately not in lexicographic order.
		for _, name := range []string{"zebra", "alpha", "mid"} {
			require.NoError(t, s.CreateQueue(ctx, newQueue(name)))
		}
		queues, err := s.ListQueues(ctx)
		require.NoError(t, err)
		names := make([]string, len(queues))
		for i, q := range queues {
			names[i] = q.Name
		}
		assert.Equal(t, []string{"zebra", "alpha", "mid"}, names)
	})

	t.Run("DeleteQueueMissing", func(t *testing.T) {
		s := newStore(t)
		err := s.DeleteQueue(ctx, "missing")
		assert.ErrorIs(t, err, ErrQueueDoesNotExist)
	})

	t.Run("DeleteQueueCascades", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateQueue(ctx, newQueue("orders")))
		require.NoError(t, s.CreateQueue(ctx, newQueue("other")))
		require.NoError(t, s.SendMessage(ctx, newMessage("m1", "orders", 100)))
		require.NoError(t, s.SendMessage(ctx, newMessage("m2", "orders", 200)))
		require.NoError(t, s.SendMessage(ctx, newMessage("m3", "other", 100)))

		require.NoError(t, s.DeleteQueue(ctx, "orders"))

		for _, id := range []string{"m1", "m2"} {
			m, err := s.GetMessage(ctx, id)
			require.NoError(t, err)
			assert.Nil(t, m, "message %s should have been deleted with its queue", id)
		}
		m, err := s.GetMessage(ctx, "m3")
		require.NoError(t, err)
		assert.NotNil(t, m, "messages of other queues must survive")

		q, err := s.GetQueue(ctx, "orders")
		require.NoError(t, err)
		assert.Nil(t, q)
	})

	t.Run("MessageRoundTrip", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateQueue(ctx, newQueue("orders")))

		val := "42"
		msg := newMessage("m1", "orders", 123)
		msg.Attributes = map[string]models.MessageAttributeValue{
			"count": {DataType: "Number", StringValue: &val},
			"blob":  {DataType: "Binary", BinaryValue: []byte{0x00, 0xff}},
		}
		require.NoError(t, s.SendMessage(ctx, msg))

		got, err := s.GetMessage(ctx, "m1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, msg.ID, got.ID)
		assert.Equal(t, msg.Queue, got.Queue)
		assert.Equal(t, msg.Body, got.Body)
		assert.Equal(t, msg.NextDelivery, got.NextDelivery)
		assert.True(t, msg.Created.Equal(got.Created))
		require.Contains(t, got.Attributes, "count")
		assert.Equal(t, "42", *got.Attributes["count"].StringValue)
		require.Contains(t, got.Attributes, "blob")
		assert.Equal(t, []byte{0x00, 0xff}, got.Attributes["blob"].BinaryValue)
	})

	t.Run("MessageLookupMiss", func(t *testing.T) {
		s := newStore(t)
		got, err := s.GetMessage(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("SendMessageQueueMissing", func(t *testing.T) {
		s := newStore(t)
		err := s.SendMessage(ctx, newMessage("m1", "missing", 100))
		assert.ErrorIs(t, err, ErrQueueDoesNotExist)
	})

	t.Run("MaxLengthBodyRoundTrip", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateQueue(ctx, newQueue("orders")))

		msg := newMessage("m1", "orders", 100)
		msg.Body = strings.Repeat("x", models.MaxMessageBodyLength)
		require.NoError(t, s.SendMessage(ctx, msg))

		got, err := s.GetMessage(ctx, "m1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Len(t, got.Body, models.MaxMessageBodyLength)
		assert.Equal(t, msg.Body, got.Body)
	})

	t.Run("UpdateMessage", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateQueue(ctx, newQueue("orders")))
		require.NoError(t, s.SendMessage(ctx, newMessage("m1", "orders", 100)))

		updated := newMessage("m1", "orders", 999)
		updated.Body = "changed"
		// The store must keep ownership and creation time even if the
		// caller hands in garbage for them.
		updated.Queue = "somewhere-else"
		updated.Created = time.Unix(0, 0)
		require.NoError(t, s.UpdateMessage(ctx, updated))

		got, err := s.GetMessage(ctx, "m1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "changed", got.Body)
		assert.Equal(t, int64(999), got.NextDelivery)
		assert.Equal(t, "orders", got.Queue)
		assert.True(t, time.Unix(1700000000, 0).UTC().Equal(got.Created))
	})

	t.Run("UpdateMessageMissing", func(t *testing.T) {
		s := newStore(t)
		err := s.UpdateMessage(ctx, newMessage("missing", "orders", 100))
		assert.ErrorIs(t, err, ErrMessageDoesNotExist)
	})

	t.Run("DeleteMessage", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateQueue(ctx, newQueue("orders")))
		require.NoError(t, s.SendMessage(ctx, newMessage("m1", "orders", 100)))

		require.NoError(t, s.DeleteMessage(ctx, "m1"))

		got, err := s.GetMessage(ctx, "m1")
		require.NoError(t, err)
		assert.Nil(t, got)

		assert.ErrorIs(t, s.DeleteMessage(ctx, "m1"), ErrMessageDoesNotExist)
	})

	t.Run("QueueStats", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateQueue(ctx, newQueue("orders")))
		for i, nd := range []int64{122, 123, 124, 125, 126} {
			require.NoError(t, s.SendMessage(ctx, newMessage(fmt.Sprintf("m%d", i), "orders", nd)))
		}
		stats, err := s.QueueStats(ctx, "orders", 123)
		require.NoError(t, err)
		assert.Equal(t, 2, stats.Visible)
		assert.Equal(t, 3, stats.Invisible)
	})

	t.Run("QueueStatsMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.QueueStats(ctx, "missing", 0)
		assert.ErrorIs(t, err, ErrQueueDoesNotExist)
	})

	t.Run("ReceiveFromEmptyQueue", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateQueue(ctx, newQueue("orders")))
		m, err := s.ReceiveMessage(ctx, "orders", 1000, 2000)
		require.NoError(t, err)
		assert.Nil(t, m)
	})

	t.Run("ReceiveQueueMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.ReceiveMessage(ctx, "missing", 1000, 2000)
		assert.ErrorIs(t, err, ErrQueueDoesNotExist)
	})

	t.Run("ReceiveClaimAdvancesNextDelivery", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateQueue(ctx, newQueue("orders")))
		require.NoError(t, s.SendMessage(ctx, newMessage("m1", "orders", 100)))

		m, err := s.ReceiveMessage(ctx, "orders", 123, 234)
		require.NoError(t, err)
		require.NotNil(t, m)
		assert.Equal(t, "m1", m.ID)
		assert.Equal(t, int64(234), m.NextDelivery)

		// The claim persists: a lookup sees the advanced delivery time and a
		// second receive before it finds nothing.
		got, err := s.GetMessage(ctx, "m1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, int64(234), got.NextDelivery)

		again, err := s.ReceiveMessage(ctx, "orders", 150, 300)
		require.NoError(t, err)
		assert.Nil(t, again)
	})

	t.Run("ReceiveSkipsInvisible", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateQueue(ctx, newQueue("orders")))
		require.NoError(t, s.SendMessage(ctx, newMessage("m1", "orders", 200)))

		m, err := s.ReceiveMessage(ctx, "orders", 123, 500)
		require.NoError(t, err)
		assert.Nil(t, m, "a message with NextDelivery in the future must not be claimed")
	})

	t.Run("ReceiveOrdering", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateQueue(ctx, newQueue("orders")))
		// Two messages share the earliest delivery time; the tie breaks by
		// ascending ID.
		require.NoError(t, s.SendMessage(ctx, newMessage("b", "orders", 100)))
		require.NoError(t, s.SendMessage(ctx, newMessage("a", "orders", 100)))
		require.NoError(t, s.SendMessage(ctx, newMessage("c", "orders", 150)))

		var order []string
		for i := 0; i < 3; i++ {
			m, err := s.ReceiveMessage(ctx, "orders", 200, 10000)
			require.NoError(t, err)
			require.NotNil(t, m)
			order = append(order, m.ID)
		}
		assert.Equal(t, []string{"a", "b", "c"}, order)
	})

	t.Run("ReceiveIsQueueScoped", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateQueue(ctx, newQueue("orders")))
		require.NoError(t, s.CreateQueue(ctx, newQueue("other")))
		require.NoError(t, s.SendMessage(ctx, newMessage("m1", "orders", 100)))

		m, err := s.ReceiveMessage(ctx, "other", 200, 300)
		require.NoError(t, err)
		assert.Nil(t, m)
	})

	t.Run("ConcurrentReceiversClaimDistinctMessages", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateQueue(ctx, newQueue("orders")))
		const n = 20
		for i := 0; i < n; i++ {
			require.NoError(t, s.SendMessage(ctx, newMessage(fmt.Sprintf("m%02d", i), "orders", 100)))
		}

		claimed := make(chan string, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				m, err := s.ReceiveMessage(ctx, "orders", 200, 10000)
				assert.NoError(t, err)
				if m != nil {
					claimed <- m.ID
				}
			}()
		}
		wg.Wait()
		close(claimed)

		seen := make(map[string]bool)
		for id := range claimed {
			assert.False(t, seen[id], "message %s claimed twice", id)
			seen[id] = true
		}
		assert.Len(t, seen, n)
	})
}
