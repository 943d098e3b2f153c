package queue

import (
	"errors"
	"fmt"
	"slices"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/sqs"
)

var (
	// ErrNotInitialized is returned when an operation needs a queue URL and
	// InitQueue has not bound one.
	ErrNotInitialized = errors.New("queue not initialized")
	// ErrQueueDestroyed is returned for any operation after DeleteQueue.
	ErrQueueDestroyed = fmt.Errorf("%w: queue has been deleted", ErrNotInitialized)
	// ErrInvalidArgument is returned when a caller-supplied value violates a
	// precondition. Nothing is sent to the service in that case.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrQueueOperationFailed matches every *OperationError via errors.Is.
	ErrQueueOperationFailed = errors.New("queue operation failed")
)

// OperationError reports a failed call to the queue service.
type OperationError struct {
	// Op is the wrapper operation that failed, e.g. "AddMessage".
	Op string
	// Queue is the queue name.
	Queue string
	// Err is the error returned by the service client.
	Err error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("error doing %s for SQS queue %s: %v", e.Op, e.Queue, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrQueueOperationFailed) true for any
// OperationError.
func (e *OperationError) Is(target error) bool {
	return target == ErrQueueOperationFailed
}

// Error codes the SDK may report for a missing queue. The JSON protocol
// reports the short shape name unless the query-compatible header is set.
var queueDoesNotExistCodes = []string{
	sqs.ErrCodeQueueDoesNotExist,
	"QueueDoesNotExist",
	"AWS.SimpleQueueService.NonExistentQueue",
}

// IsQueueDoesNotExist reports whether err is the service's "queue does not
// exist" failure.
func IsQueueDoesNotExist(err error) bool {
	var aerr awserr.Error
	if !errors.As(err, &aerr) {
		return false
	}
	return slices.Contains(queueDoesNotExistCodes, aerr.Code())
}
