// Package queue wraps a single SQS queue. A Queue resolves or creates its
// physical queue once and then sends, receives and deletes messages on it,
// reporting every service failure as an *OperationError.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/sqs"

	"github.com/tabeth/sqstreams/config"
)

// MaxMessagesPerReceive is the most messages SQS returns from one
// ReceiveMessage call.
const MaxMessagesPerReceive = 10

// fifoSuffix is required by SQS on the name of every FIFO queue.
const fifoSuffix = ".fifo"

// State is the lifecycle state of a Queue.
type State int

const (
	Uninitialized State = iota
	Resolving
	Ready
	Destroyed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "Uninitialized"
	case Resolving:
		return "Resolving"
	case Ready:
		return "Ready"
	case Destroyed:
		return "Destroyed"
	default:
		return "State(" + strconv.Itoa(int(s)) + ")"
	}
}

// Queue owns the connection to one SQS queue. It is safe for concurrent use.
type Queue struct {
	name         string
	attributes   map[string]string
	tags         map[string]string
	isFifo       bool
	contentDedup bool
	client       API
	logger       *slog.Logger

	// initMu serializes InitQueue so concurrent callers create at most once.
	initMu sync.Mutex

	mu    sync.RWMutex
	url   string
	state State
}

// Option customizes a Queue.
type Option func(*Queue)

// WithClient sets the SQS client instead of building one from the
// connection string.
func WithClient(c API) Option {
	return func(q *Queue) {
		q.client = c
	}
}

// WithLogger sets the logger used to report failed operations.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

// New returns an uninitialized Queue for name. A non-blank serviceID is
// prepended as "<serviceID>-<name>", and ".fifo" is appended when opts
// configures FIFO queues. No network call is made; call InitQueue before
// using the queue.
func New(name, serviceID string, opts *config.Options, options ...Option) (*Queue, error) {
	if opts == nil {
		return nil, fmt.Errorf("%w: options are required", ErrInvalidArgument)
	}
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: queue name is required", ErrInvalidArgument)
	}

	q := &Queue{
		name:       name,
		attributes: maps.Clone(opts.QueueAttributes),
		tags:       maps.Clone(opts.QueueTags),
		logger:     slog.Default(),
	}
	if strings.TrimSpace(serviceID) != "" {
		q.name = serviceID + "-" + name
	}
	_, q.isFifo = q.attributes[sqs.QueueAttributeNameFifoQueue]
	if q.isFifo {
		q.name += fifoSuffix
	}
	_, q.contentDedup = q.attributes[sqs.QueueAttributeNameContentBasedDeduplication]

	for _, o := range options {
		o(q)
	}
	if q.client == nil {
		c, err := NewClient(config.ParseConnectionString(opts.ConnectionString))
		if err != nil {
			return nil, err
		}
		q.client = c
	}
	q.logger = q.logger.With("queue", q.name)
	return q, nil
}

// Name returns the physical queue name.
func (q *Queue) Name() string { return q.name }

// IsFifo reports whether the queue is a FIFO queue; its name then ends in
// ".fifo".
func (q *Queue) IsFifo() bool { return q.isFifo }

// UsesContentBasedDeduplication reports whether the queue deduplicates on
// message content, in which case senders leave the deduplication id unset.
func (q *Queue) UsesContentBasedDeduplication() bool { return q.contentDedup }

// URL returns the bound queue URL, or "" before InitQueue succeeds.
func (q *Queue) URL() string {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.url
}

// State returns the current lifecycle state.
func (q *Queue) State() State {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.state
}

// InitQueue binds the queue URL, creating the queue with the configured
// attributes and tags if it does not exist yet. It returns immediately when
// a URL is already bound.
func (q *Queue) InitQueue(ctx context.Context) error {
	q.initMu.Lock()
	defer q.initMu.Unlock()

	switch q.State() {
	case Ready:
		return nil
	case Destroyed:
		return ErrQueueDestroyed
	}
	q.setState(Resolving, "")

	url, err := q.resolve(ctx)
	if err == nil && url == "" {
		url, err = q.create(ctx)
	}
	if err != nil {
		q.setState(Uninitialized, "")
		return q.fail("InitQueue", err)
	}

	q.setState(Ready, url)
	return nil
}

// resolve returns the URL of an existing queue, or "" if there is none.
func (q *Queue) resolve(ctx context.Context) (string, error) {
	out, err := q.client.GetQueueUrlWithContext(ctx, &sqs.GetQueueUrlInput{
		QueueName: aws.String(q.name),
	})
	if err != nil {
		if IsQueueDoesNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(aws.StringValue(out.QueueUrl)), nil
}

func (q *Queue) create(ctx context.Context) (string, error) {
	input := &sqs.CreateQueueInput{QueueName: aws.String(q.name)}
	if len(q.attributes) > 0 {
		input.Attributes = aws.StringMap(q.attributes)
	}
	if len(q.tags) > 0 {
		input.Tags = aws.StringMap(q.tags)
	}

	out, err := q.client.CreateQueueWithContext(ctx, input)
	if err != nil {
		return "", err
	}
	url := aws.StringValue(out.QueueUrl)
	if url == "" {
		return "", errors.New("CreateQueue returned an empty queue url")
	}
	return url, nil
}

// AddMessage sends msg to the queue. Its QueueUrl is overwritten with the
// bound URL.
func (q *Queue) AddMessage(ctx context.Context, msg *sqs.SendMessageInput) error {
	url, err := q.boundURL()
	if err != nil {
		return err
	}
	if msg == nil {
		return fmt.Errorf("%w: message is nil", ErrInvalidArgument)
	}

	msg.QueueUrl = aws.String(url)
	if _, err := q.client.SendMessageWithContext(ctx, msg); err != nil {
		return q.fail("AddMessage", err)
	}
	return nil
}

// GetMessages receives up to count messages. count must be at least 1 and
// is capped at MaxMessagesPerReceive. Fewer messages, including none, may be
// returned.
func (q *Queue) GetMessages(ctx context.Context, count int) ([]*sqs.Message, error) {
	url, err := q.boundURL()
	if err != nil {
		return nil, err
	}
	if count < 1 {
		return nil, fmt.Errorf("%w: count must be at least 1, got %d", ErrInvalidArgument, count)
	}
	count = min(count, MaxMessagesPerReceive)

	out, err := q.client.ReceiveMessageWithContext(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(url),
		MaxNumberOfMessages: aws.Int64(int64(count)),
	})
	if err != nil {
		return nil, q.fail("GetMessages", err)
	}
	return out.Messages, nil
}

// DeleteMessages acknowledges messages in a single batch request. Every
// message must carry a receipt handle. An empty slice is a no-op.
func (q *Queue) DeleteMessages(ctx context.Context, messages []*sqs.Message) error {
	if len(messages) == 0 {
		return nil
	}
	for i, m := range messages {
		if m == nil || strings.TrimSpace(aws.StringValue(m.ReceiptHandle)) == "" {
			return fmt.Errorf("%w: message %d has no receipt handle", ErrInvalidArgument, i)
		}
	}
	url, err := q.boundURL()
	if err != nil {
		return err
	}

	entries := make([]*sqs.DeleteMessageBatchRequestEntry, len(messages))
	for i, m := range messages {
		entries[i] = &sqs.DeleteMessageBatchRequestEntry{
			Id:            aws.String(strconv.Itoa(i)),
			ReceiptHandle: m.ReceiptHandle,
		}
	}

	out, err := q.client.DeleteMessageBatchWithContext(ctx, &sqs.DeleteMessageBatchInput{
		QueueUrl: aws.String(url),
		Entries:  entries,
	})
	if err != nil {
		return q.fail("DeleteMessages", err)
	}
	if out != nil && len(out.Failed) > 0 {
		f := out.Failed[0]
		return q.fail("DeleteMessages", fmt.Errorf("%d of %d entries failed, first: id=%s code=%s: %s",
			len(out.Failed), len(entries), aws.StringValue(f.Id), aws.StringValue(f.Code), aws.StringValue(f.Message)))
	}
	return nil
}

// DeleteQueue deletes the physical queue. The Queue cannot be used
// afterwards.
func (q *Queue) DeleteQueue(ctx context.Context) error {
	url, err := q.boundURL()
	if err != nil {
		return err
	}
	if _, err := q.client.DeleteQueueWithContext(ctx, &sqs.DeleteQueueInput{QueueUrl: aws.String(url)}); err != nil {
		return q.fail("DeleteQueue", err)
	}
	q.setState(Destroyed, "")
	return nil
}

func (q *Queue) boundURL() (string, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	switch q.state {
	case Ready:
		return q.url, nil
	case Destroyed:
		return "", ErrQueueDestroyed
	default:
		return "", ErrNotInitialized
	}
}

func (q *Queue) setState(s State, url string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.state = s
	q.url = url
}

// fail logs a service failure and wraps it for the caller.
func (q *Queue) fail(op string, err error) error {
	q.logger.Error("sqs operation failed", "op", op, "error", err)
	return &OperationError{Op: op, Queue: q.name, Err: err}
}
