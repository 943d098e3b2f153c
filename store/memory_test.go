package store

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabeth/sqstreams/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(t *testing.T) (*MemoryStore, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := NewMemoryStore(
		WithClock(clock.Now),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	return s, clock
}

func strPtr(s string) *string { return &s }

func send(t *testing.T, s *MemoryStore, queue, body string) *models.SendMessageResponse {
	t.Helper()
	resp, err := s.SendMessage(context.Background(), queue, &models.SendMessageRequest{MessageBody: body})
	require.NoError(t, err)
	return resp
}

func receive(t *testing.T, s *MemoryStore, queue string, n int) []models.ResponseMessage {
	t.Helper()
	resp, err := s.ReceiveMessage(context.Background(), queue, &models.ReceiveMessageRequest{MaxNumberOfMessages: n})
	require.NoError(t, err)
	return resp.Messages
}

func TestMemoryStore_CreateQueue(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	existing, err := s.CreateQueue(ctx, "q", map[string]string{"VisibilityTimeout": "10"}, map[string]string{"team": "a"})
	require.NoError(t, err)
	assert.Nil(t, existing)

	existing, err = s.CreateQueue(ctx, "q", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"VisibilityTimeout": "10"}, existing)

	tags, err := s.ListQueueTags(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"team": "a"}, tags)

	url, err := s.GetQueueURL(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, "/queues/q", url)

	_, err = s.GetQueueURL(ctx, "missing")
	assert.ErrorIs(t, err, ErrQueueDoesNotExist)
}

func TestMemoryStore_DeleteQueue(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	_, err := s.CreateQueue(ctx, "q", nil, nil)
	require.NoError(t, err)

	require.NoError(t, s.DeleteQueue(ctx, "q"))
	assert.ErrorIs(t, s.DeleteQueue(ctx, "q"), ErrQueueDoesNotExist)
	_, err = s.SendMessage(ctx, "q", &models.SendMessageRequest{MessageBody: "x"})
	assert.ErrorIs(t, err, ErrQueueDoesNotExist)
}

func TestMemoryStore_ListQueues(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	for _, n := range []string{"b-1", "a-2", "a-1", "a-3"} {
		_, err := s.CreateQueue(ctx, n, nil, nil)
		require.NoError(t, err)
	}

	names, next, err := s.ListQueues(ctx, 0, "", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a-1", "a-2", "a-3", "b-1"}, names)
	assert.Empty(t, next)

	names, next, err = s.ListQueues(ctx, 2, "", "a-")
	require.NoError(t, err)
	assert.Equal(t, []string{"a-1", "a-2"}, names)
	assert.Equal(t, "a-2", next)

	names, next, err = s.ListQueues(ctx, 2, next, "a-")
	require.NoError(t, err)
	assert.Equal(t, []string{"a-3"}, names)
	assert.Empty(t, next)
}

func TestMemoryStore_SendReceiveDelete(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()
	_, err := s.CreateQueue(ctx, "q", nil, nil)
	require.NoError(t, err)

	sent := send(t, s, "q", "hello")
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", sent.MD5OfMessageBody)
	assert.Nil(t, sent.SequenceNumber)

	msgs := receive(t, s, "q", 10)
	require.Len(t, msgs, 1)
	assert.Equal(t, sent.MessageId, msgs[0].MessageId)
	assert.Equal(t, "hello", msgs[0].Body)
	assert.Equal(t, sent.MD5OfMessageBody, msgs[0].MD5OfBody)
	assert.NotEmpty(t, msgs[0].ReceiptHandle)

	// Hidden until the visibility timeout passes.
	assert.Empty(t, receive(t, s, "q", 10))
	clock.Advance(31 * time.Second)
	again := receive(t, s, "q", 10)
	require.Len(t, again, 1)
	assert.NotEqual(t, msgs[0].ReceiptHandle, again[0].ReceiptHandle)

	// Only the latest receipt handle deletes.
	assert.ErrorIs(t, s.DeleteMessage(ctx, "q", msgs[0].ReceiptHandle), ErrInvalidReceiptHandle)
	require.NoError(t, s.DeleteMessage(ctx, "q", again[0].ReceiptHandle))

	clock.Advance(time.Hour)
	assert.Empty(t, receive(t, s, "q", 10))
}

func TestMemoryStore_ReceiveLimits(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	_, err := s.CreateQueue(ctx, "q", nil, nil)
	require.NoError(t, err)
	for i := 0; i < 15; i++ {
		send(t, s, "q", "m")
	}

	assert.Len(t, receive(t, s, "q", 0), 1)
	assert.Len(t, receive(t, s, "q", 50), 10)
	assert.Len(t, receive(t, s, "q", 10), 4)
}

func TestMemoryStore_DelaySeconds(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()
	_, err := s.CreateQueue(ctx, "q", nil, nil)
	require.NoError(t, err)

	delay := int32(5)
	_, err = s.SendMessage(ctx, "q", &models.SendMessageRequest{MessageBody: "later", DelaySeconds: &delay})
	require.NoError(t, err)

	attrs, err := s.GetQueueAttributes(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, "1", attrs["ApproximateNumberOfMessagesDelayed"])
	assert.Empty(t, receive(t, s, "q", 1))

	clock.Advance(5 * time.Second)
	assert.Len(t, receive(t, s, "q", 1), 1)
}

func TestMemoryStore_GetQueueAttributes(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	_, err := s.CreateQueue(ctx, "q", map[string]string{"VisibilityTimeout": "45"}, nil)
	require.NoError(t, err)
	send(t, s, "q", "a")
	send(t, s, "q", "b")
	receive(t, s, "q", 1)

	attrs, err := s.GetQueueAttributes(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, "45", attrs["VisibilityTimeout"])
	assert.Equal(t, "0", attrs["DelaySeconds"])
	assert.Equal(t, "1", attrs["ApproximateNumberOfMessages"])
	assert.Equal(t, "1", attrs["ApproximateNumberOfMessagesNotVisible"])
	assert.NotEmpty(t, attrs["CreatedTimestamp"])

	_, err = s.GetQueueAttributes(ctx, "missing")
	assert.ErrorIs(t, err, ErrQueueDoesNotExist)
}

func TestMemoryStore_Fifo(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	_, err := s.CreateQueue(ctx, "q.fifo", map[string]string{"FifoQueue": "true"}, nil)
	require.NoError(t, err)

	_, err = s.SendMessage(ctx, "q.fifo", &models.SendMessageRequest{MessageBody: "x", MessageDeduplicationId: strPtr("d")})
	assert.ErrorIs(t, err, ErrMissingGroupID)

	_, err = s.SendMessage(ctx, "q.fifo", &models.SendMessageRequest{MessageBody: "x", MessageGroupId: strPtr("g")})
	assert.ErrorIs(t, err, ErrMissingDeduplicationID)

	delay := int32(1)
	_, err = s.SendMessage(ctx, "q.fifo", &models.SendMessageRequest{
		MessageBody: "x", MessageGroupId: strPtr("g"), MessageDeduplicationId: strPtr("d"), DelaySeconds: &delay,
	})
	assert.ErrorIs(t, err, ErrUnsupportedParameter)

	first, err := s.SendMessage(ctx, "q.fifo", &models.SendMessageRequest{
		MessageBody: "one", MessageGroupId: strPtr("g"), MessageDeduplicationId: strPtr("d1"),
	})
	require.NoError(t, err)
	require.NotNil(t, first.SequenceNumber)
	assert.Equal(t, "1", *first.SequenceNumber)

	second, err := s.SendMessage(ctx, "q.fifo", &models.SendMessageRequest{
		MessageBody: "two", MessageGroupId: strPtr("g"), MessageDeduplicationId: strPtr("d2"),
	})
	require.NoError(t, err)
	assert.Equal(t, "2", *second.SequenceNumber)

	msgs := receive(t, s, "q.fifo", 10)
	require.Len(t, msgs, 2)
	assert.Equal(t, "one", msgs[0].Body)
	assert.Equal(t, "two", msgs[1].Body)
}

func TestMemoryStore_FifoDeduplication(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()
	_, err := s.CreateQueue(ctx, "q.fifo", map[string]string{"FifoQueue": "true"}, nil)
	require.NoError(t, err)

	req := &models.SendMessageRequest{MessageBody: "x", MessageGroupId: strPtr("g"), MessageDeduplicationId: strPtr("same")}
	first, err := s.SendMessage(ctx, "q.fifo", req)
	require.NoError(t, err)
	dup, err := s.SendMessage(ctx, "q.fifo", req)
	require.NoError(t, err)
	assert.Equal(t, first.MessageId, dup.MessageId)
	assert.Equal(t, *first.SequenceNumber, *dup.SequenceNumber)

	clock.Advance(deduplicationInterval)
	_, err = s.SendMessage(ctx, "q.fifo", req)
	require.NoError(t, err)

	clock.Advance(time.Hour)
	assert.Len(t, receive(t, s, "q.fifo", 10), 2)
}

func TestMemoryStore_FifoContentBasedDeduplication(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	_, err := s.CreateQueue(ctx, "q.fifo", map[string]string{"FifoQueue": "true", "ContentBasedDeduplication": "true"}, nil)
	require.NoError(t, err)

	for _, body := range []string{"a", "a", "b"} {
		_, err := s.SendMessage(ctx, "q.fifo", &models.SendMessageRequest{MessageBody: body, MessageGroupId: strPtr("g")})
		require.NoError(t, err)
	}
	msgs := receive(t, s, "q.fifo", 10)
	require.Len(t, msgs, 2)
	assert.Equal(t, "a", msgs[0].Body)
	assert.Equal(t, "b", msgs[1].Body)
}

func TestMemoryStore_FifoGroupBlocking(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	_, err := s.CreateQueue(ctx, "q.fifo", map[string]string{"FifoQueue": "true", "ContentBasedDeduplication": "true"}, nil)
	require.NoError(t, err)
	for _, m := range []struct{ group, body string }{{"a", "a1"}, {"a", "a2"}, {"b", "b1"}} {
		_, err := s.SendMessage(ctx, "q.fifo", &models.SendMessageRequest{MessageBody: m.body, MessageGroupId: strPtr(m.group)})
		require.NoError(t, err)
	}

	first := receive(t, s, "q.fifo", 1)
	require.Len(t, first, 1)
	assert.Equal(t, "a1", first[0].Body)

	// a2 waits behind the in-flight a1.
	next := receive(t, s, "q.fifo", 10)
	require.Len(t, next, 1)
	assert.Equal(t, "b1", next[0].Body)

	require.NoError(t, s.DeleteMessage(ctx, "q.fifo", first[0].ReceiptHandle))
	last := receive(t, s, "q.fifo", 10)
	require.Len(t, last, 1)
	assert.Equal(t, "a2", last[0].Body)
}

func TestMemoryStore_SystemAttributes(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	_, err := s.CreateQueue(ctx, "q", nil, nil)
	require.NoError(t, err)
	send(t, s, "q", "a")
	send(t, s, "q", "b")

	resp, err := s.ReceiveMessage(ctx, "q", &models.ReceiveMessageRequest{MaxNumberOfMessages: 1, AttributeNames: []string{"All"}})
	require.NoError(t, err)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "1", resp.Messages[0].Attributes["ApproximateReceiveCount"])
	assert.Contains(t, resp.Messages[0].Attributes, "SentTimestamp")

	resp, err = s.ReceiveMessage(ctx, "q", &models.ReceiveMessageRequest{MaxNumberOfMessages: 1, MessageSystemAttributeNames: []string{"SentTimestamp"}})
	require.NoError(t, err)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, []string{"SentTimestamp"}, keys(resp.Messages[0].Attributes))
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestMemoryStore_DeleteMessageBatch(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	_, err := s.CreateQueue(ctx, "q", nil, nil)
	require.NoError(t, err)
	send(t, s, "q", "a")
	send(t, s, "q", "b")
	msgs := receive(t, s, "q", 10)
	require.Len(t, msgs, 2)

	resp, err := s.DeleteMessageBatch(ctx, "q", []models.DeleteMessageBatchRequestEntry{
		{Id: "0", ReceiptHandle: msgs[0].ReceiptHandle},
		{Id: "1", ReceiptHandle: "bogus"},
		{Id: "2", ReceiptHandle: msgs[1].ReceiptHandle},
	})
	require.NoError(t, err)
	assert.Equal(t, []models.DeleteMessageBatchResultEntry{{Id: "0"}, {Id: "2"}}, resp.Successful)
	require.Len(t, resp.Failed, 1)
	assert.Equal(t, "1", resp.Failed[0].Id)
	assert.Equal(t, "ReceiptHandleIsInvalid", resp.Failed[0].Code)

	_, err = s.DeleteMessageBatch(ctx, "missing", nil)
	assert.ErrorIs(t, err, ErrQueueDoesNotExist)
}

func TestMemoryStore_ChangeMessageVisibility(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	_, err := s.CreateQueue(ctx, "q", nil, nil)
	require.NoError(t, err)
	send(t, s, "q", "a")
	msgs := receive(t, s, "q", 1)
	require.Len(t, msgs, 1)

	require.NoError(t, s.ChangeMessageVisibility(ctx, "q", msgs[0].ReceiptHandle, 0))
	assert.Len(t, receive(t, s, "q", 1), 1)

	assert.ErrorIs(t, s.ChangeMessageVisibility(ctx, "q", "bogus", 10), ErrInvalidReceiptHandle)
}

func TestMemoryStore_PurgeQueue(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()
	_, err := s.CreateQueue(ctx, "q", nil, nil)
	require.NoError(t, err)
	send(t, s, "q", "a")

	require.NoError(t, s.PurgeQueue(ctx, "q"))
	assert.Empty(t, receive(t, s, "q", 10))
	assert.ErrorIs(t, s.PurgeQueue(ctx, "q"), ErrPurgeQueueInProgress)

	clock.Advance(purgeCooldown)
	require.NoError(t, s.PurgeQueue(ctx, "q"))
	assert.ErrorIs(t, s.PurgeQueue(ctx, "missing"), ErrQueueDoesNotExist)
}

func TestMemoryStore_LongPoll(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	_, err := s.CreateQueue(ctx, "q", nil, nil)
	require.NoError(t, err)

	done := make(chan []models.ResponseMessage)
	go func() {
		resp, err := s.ReceiveMessage(ctx, "q", &models.ReceiveMessageRequest{MaxNumberOfMessages: 1, WaitTimeSeconds: 5})
		if err != nil {
			done <- nil
			return
		}
		done <- resp.Messages
	}()

	time.Sleep(50 * time.Millisecond)
	send(t, s, "q", "wake")

	select {
	case msgs := <-done:
		require.Len(t, msgs, 1)
		assert.Equal(t, "wake", msgs[0].Body)
	case <-time.After(3 * time.Second):
		t.Fatal("long poll did not return after a send")
	}
}

func TestMemoryStore_LongPollCanceled(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.CreateQueue(context.Background(), "q", nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = s.ReceiveMessage(ctx, "q", &models.ReceiveMessageRequest{WaitTimeSeconds: 20})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
