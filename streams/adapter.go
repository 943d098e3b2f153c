// Package streams carries stream event batches over SQS. An Adapter maps
// each stream onto one of a fixed set of queues, creating queues on first
// use, and a Receiver reads batches back from one queue.
package streams

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/google/uuid"

	"github.com/tabeth/sqstreams/config"
	"github.com/tabeth/sqstreams/queue"
)

// QueueFactory builds an uninitialized Queue for id.
type QueueFactory func(id QueueID) (*queue.Queue, error)

// Adapter writes event batches to SQS. It is safe for concurrent use.
type Adapter struct {
	name      string
	serviceID string
	opts      *config.Options
	mapper    Mapper
	codec     Codec
	logger    *slog.Logger

	queueOptions []queue.Option
	newQueue     QueueFactory

	// queues holds one initialized *queue.Queue per QueueID.
	queues sync.Map
}

// AdapterOption customizes an Adapter.
type AdapterOption func(*Adapter)

// WithCodec replaces the default JSONCodec.
func WithCodec(c Codec) AdapterOption {
	return func(a *Adapter) {
		if c != nil {
			a.codec = c
		}
	}
}

// WithLogger sets the logger handed to queues and receivers.
func WithLogger(l *slog.Logger) AdapterOption {
	return func(a *Adapter) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithQueueOptions adds options applied to every queue the adapter builds,
// e.g. queue.WithClient to share one client.
func WithQueueOptions(opts ...queue.Option) AdapterOption {
	return func(a *Adapter) {
		a.queueOptions = append(a.queueOptions, opts...)
	}
}

// WithQueueFactory replaces how queues are built.
func WithQueueFactory(f QueueFactory) AdapterOption {
	return func(a *Adapter) {
		a.newQueue = f
	}
}

// NewAdapter validates its configuration and returns an Adapter. No queue
// is contacted until the first batch for it is sent.
func NewAdapter(name, serviceID string, opts *config.Options, mapper Mapper, options ...AdapterOption) (*Adapter, error) {
	if opts == nil {
		return nil, fmt.Errorf("%w: options are required", queue.ErrInvalidArgument)
	}
	if opts.ConnectionString == "" {
		return nil, fmt.Errorf("%w: ConnectionString must be neither null nor empty", queue.ErrInvalidArgument)
	}
	if strings.TrimSpace(serviceID) == "" {
		return nil, fmt.Errorf("%w: service id is required", queue.ErrInvalidArgument)
	}
	if mapper == nil {
		return nil, fmt.Errorf("%w: stream queue mapper is required", queue.ErrInvalidArgument)
	}

	a := &Adapter{
		name:      name,
		serviceID: serviceID,
		opts:      opts,
		mapper:    mapper,
		codec:     JSONCodec{},
		logger:    slog.Default(),
	}
	for _, o := range options {
		o(a)
	}
	if a.newQueue == nil {
		a.newQueue = a.defaultQueue
	}
	return a, nil
}

func (a *Adapter) defaultQueue(id QueueID) (*queue.Queue, error) {
	opts := make([]queue.Option, 0, len(a.queueOptions)+1)
	opts = append(opts, queue.WithLogger(a.logger))
	opts = append(opts, a.queueOptions...)
	return queue.New(id.String(), a.serviceID, a.opts, opts...)
}

// Name returns the provider name.
func (a *Adapter) Name() string { return a.name }

// IsRewindable is false: SQS cannot replay from a sequence token.
func (a *Adapter) IsRewindable() bool { return false }

// Direction is ReadWrite; reading goes through CreateReceiver.
func (a *Adapter) Direction() Direction { return ReadWrite }

// QueueMessageBatch sends events for the stream as a single SQS message.
// token must be nil.
func (a *Adapter) QueueMessageBatch(ctx context.Context, streamID uuid.UUID, namespace string, events []any, token SequenceToken, requestContext map[string]any) error {
	if token != nil {
		return fmt.Errorf("%w: SQS stream provider does not support a non-nil sequence token", queue.ErrInvalidArgument)
	}

	id := a.mapper.QueueForStream(streamID, namespace)
	q, err := a.queueFor(ctx, id)
	if err != nil {
		return err
	}

	body, err := a.codec.Encode(&Batch{
		StreamID:       streamID,
		Namespace:      namespace,
		Events:         events,
		RequestContext: requestContext,
	})
	if err != nil {
		return err
	}

	msg := &sqs.SendMessageInput{MessageBody: aws.String(body)}
	if q.IsFifo() {
		msg.MessageGroupId = aws.String(a.opts.FifoMessageGroupID)
		// Queues with content-based dedup derive the id from the body.
		if !q.UsesContentBasedDeduplication() && a.opts.FifoMessageDeduplicationIDGenerator != nil {
			msg.MessageDeduplicationId = aws.String(a.opts.FifoMessageDeduplicationIDGenerator())
		}
	}

	return q.AddMessage(ctx, msg)
}

// queueFor returns the cached queue for id, initializing a new one on a
// miss. Racing callers may each build a candidate; only the first stored is
// kept and the rest are dropped.
func (a *Adapter) queueFor(ctx context.Context, id QueueID) (*queue.Queue, error) {
	if v, ok := a.queues.Load(id); ok {
		return v.(*queue.Queue), nil
	}

	candidate, err := a.newQueue(id)
	if err != nil {
		return nil, err
	}
	if err := candidate.InitQueue(ctx); err != nil {
		return nil, err
	}

	actual, loaded := a.queues.LoadOrStore(id, candidate)
	if loaded {
		a.logger.Debug("discarding queue built by a concurrent producer", "queue", candidate.Name())
	}
	return actual.(*queue.Queue), nil
}

// CreateReceiver returns a Receiver for id. It has its own queue handle and
// must be initialized before use.
func (a *Adapter) CreateReceiver(id QueueID) (*Receiver, error) {
	q, err := a.newQueue(id)
	if err != nil {
		return nil, err
	}
	return NewReceiver(q, a.codec, a.logger), nil
}
