package streams

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/sqs"

	"github.com/tabeth/sqstreams/queue"
)

// ErrReceiverClosed is returned by a Receiver after Shutdown.
var ErrReceiverClosed = errors.New("receiver is shut down")

// Receiver polls one queue and decodes its messages into batches.
type Receiver struct {
	queue  *queue.Queue
	codec  Codec
	logger *slog.Logger

	mu      sync.Mutex
	nextSeq int64
	closed  bool
}

// NewReceiver returns a Receiver reading from q.
func NewReceiver(q *queue.Queue, codec Codec, logger *slog.Logger) *Receiver {
	if codec == nil {
		codec = JSONCodec{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Receiver{
		queue:  q,
		codec:  codec,
		logger: logger.With("queue", q.Name()),
	}
}

// QueueName returns the name of the queue being read.
func (r *Receiver) QueueName() string { return r.queue.Name() }

// Initialize resolves or creates the queue.
func (r *Receiver) Initialize(ctx context.Context) error {
	if r.isClosed() {
		return ErrReceiverClosed
	}
	return r.queue.InitQueue(ctx)
}

// GetQueueMessages reads up to maxCount batches. A negative maxCount reads as many
// as one request allows. Messages that cannot be decoded are deleted so
// they are not redelivered forever.
func (r *Receiver) GetQueueMessages(ctx context.Context, maxCount int) ([]*Batch, error) {
	if r.isClosed() {
		return nil, ErrReceiverClosed
	}
	count := queue.MaxMessagesPerReceive
	if maxCount >= 0 {
		count = min(maxCount, queue.MaxMessagesPerReceive)
	}
	if count == 0 {
		return nil, nil
	}

	msgs, err := r.queue.GetMessages(ctx, count)
	if err != nil {
		return nil, err
	}

	batches := make([]*Batch, 0, len(msgs))
	var poison []*sqs.Message
	r.mu.Lock()
	for _, m := range msgs {
		b, err := r.codec.Decode(aws.StringValue(m.Body))
		if err != nil {
			r.logger.Warn("dropping undecodable message", "message_id", aws.StringValue(m.MessageId), "error", err)
			poison = append(poison, m)
			continue
		}
		b.message = m
		b.Token = &EventSequenceToken{SequenceNumber: r.nextSeq}
		r.nextSeq++
		batches = append(batches, b)
	}
	r.mu.Unlock()

	if len(poison) > 0 {
		if err := r.queue.DeleteMessages(ctx, poison); err != nil {
			r.logger.Error("failed to delete undecodable messages", "count", len(poison), "error", err)
		}
	}
	return batches, nil
}

// MessagesDelivered acknowledges batches by deleting their messages.
// Batches that did not come from this receiver are skipped.
func (r *Receiver) MessagesDelivered(ctx context.Context, batches []*Batch) error {
	if r.isClosed() {
		return ErrReceiverClosed
	}
	msgs := make([]*sqs.Message, 0, len(batches))
	for _, b := range batches {
		if b != nil && b.message != nil {
			msgs = append(msgs, b.message)
		}
	}
	return r.queue.DeleteMessages(ctx, msgs)
}

// Shutdown stops the receiver. Unacknowledged messages become visible
// again once their visibility timeout expires.
func (r *Receiver) Shutdown(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *Receiver) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
