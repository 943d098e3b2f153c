package store

import (
	"context"
	"errors"

	"github.com/tabeth/sqstreams/models"
)

var (
	// ErrQueueDoesNotExist is returned when operating on a queue that does not exist.
	ErrQueueDoesNotExist = errors.New("queue does not exist")
	// ErrPurgeQueueInProgress is returned when a queue was purged in the last 60 seconds.
	ErrPurgeQueueInProgress = errors.New("purge queue in progress")
	// ErrInvalidReceiptHandle is returned for a receipt handle that does not
	// match an in-flight message.
	ErrInvalidReceiptHandle = errors.New("receipt handle is invalid")
	// ErrMissingGroupID is returned when a FIFO message has no group id.
	ErrMissingGroupID = errors.New("MessageGroupId is required for FIFO queues")
	// ErrMissingDeduplicationID is returned when a FIFO queue without
	// content-based deduplication receives a message without a deduplication id.
	ErrMissingDeduplicationID = errors.New("MessageDeduplicationId is required when ContentBasedDeduplication is disabled")
	// ErrUnsupportedParameter is returned for parameters the queue type does not accept.
	ErrUnsupportedParameter = errors.New("unsupported parameter")
)

// Store is the storage behind the SQS-compatible API.
type Store interface {
	// CreateQueue creates the queue. If it already exists its current
	// attributes are returned and nothing changes; a new queue yields nil.
	CreateQueue(ctx context.Context, name string, attributes map[string]string, tags map[string]string) (map[string]string, error)
	DeleteQueue(ctx context.Context, name string) error
	ListQueues(ctx context.Context, maxResults int, nextToken, queueNamePrefix string) ([]string, string, error)
	GetQueueAttributes(ctx context.Context, name string) (map[string]string, error)
	// GetQueueURL returns the path of the queue's URL, "/queues/<name>".
	GetQueueURL(ctx context.Context, name string) (string, error)
	PurgeQueue(ctx context.Context, name string) error
	ListQueueTags(ctx context.Context, name string) (map[string]string, error)

	SendMessage(ctx context.Context, queueName string, message *models.SendMessageRequest) (*models.SendMessageResponse, error)
	ReceiveMessage(ctx context.Context, queueName string, req *models.ReceiveMessageRequest) (*models.ReceiveMessageResponse, error)
	DeleteMessage(ctx context.Context, queueName string, receiptHandle string) error
	DeleteMessageBatch(ctx context.Context, queueName string, entries []models.DeleteMessageBatchRequestEntry) (*models.DeleteMessageBatchResponse, error)
	ChangeMessageVisibility(ctx context.Context, queueName string, receiptHandle string, visibilityTimeout int) error
}
